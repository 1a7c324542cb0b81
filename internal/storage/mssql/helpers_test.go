// Package mssql contains tests for helper utilities used by the MSSQL adapter.
package mssql

import (
	"testing"
)

// TestMsIdent verifies that msIdent properly brackets SQL Server identifiers
// and escapes closing brackets to avoid syntax errors and injection issues.
func TestMsIdent(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"simple", "[simple]"},
		{"dbo", "[dbo]"},
		{"brack]et", "[brack]]et]"},
		{`weird]]name`, `[weird]]]]name]`},
	}
	for _, tc := range cases {
		if got := msIdent(tc.in); got != tc.want {
			t.Fatalf("msIdent(%q) = %q; want %q", tc.in, got, tc.want)
		}
	}
}

// TestMsFQN verifies that msFQN correctly quotes schema-qualified names using
// bracketed identifier segments, preserving multi-part names.
func TestMsFQN(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"table", "[table]"},
		{"dbo.table", "[dbo].[table]"},
		{"sales.q4.table", "[sales].[q4].[table]"},
		{"[dbo].[table]", "[dbo].[table]"},
	}
	for _, tc := range cases {
		if got := msFQN(tc.in); got != tc.want {
			t.Fatalf("msFQN(%q) = %q; want %q", tc.in, got, tc.want)
		}
	}
}

// TestBuildJoinCondition ensures that the ON clause of the correlated update
// is constructed from the key columns in caller order.
func TestBuildJoinCondition(t *testing.T) {
	cases := []struct {
		keys []string
		want string
	}{
		{nil, ""},
		{[]string{"Id"}, "([T].[Id] = [#s].[Id])"},
		{[]string{"pcv", "date_from"}, "([T].[pcv] = [#s].[pcv]) AND ([T].[date_from] = [#s].[date_from])"},
	}
	for _, tc := range cases {
		if got := buildJoinCondition("[T]", "[#s]", tc.keys); got != tc.want {
			t.Fatalf("buildJoinCondition(%v) = %q; want %q", tc.keys, got, tc.want)
		}
	}
}
