package mssql

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"testing"

	"bulkupdate/internal/dberr"
	"bulkupdate/internal/ddl"
	"bulkupdate/internal/storage"

	mssql "github.com/microsoft/go-mssqldb"
)

func TestDialectSQL(t *testing.T) {
	t.Parallel()

	d := Dialect{}
	const staging = "#People_0123"

	tests := []struct {
		name string
		got  string
		want string
	}{
		{
			"create staging",
			d.CreateStagingSQL("People", staging, []string{"Id", "Name"}),
			"SELECT [Id], [Name] INTO [#People_0123] FROM [People] WHERE 1=0",
		},
		{
			"add identity column",
			d.AddColumnSQL(staging, "Id", "[int]"),
			"ALTER TABLE [#People_0123] ADD [Id] [int] NOT NULL",
		},
		{
			"primary key",
			d.PrimaryKeySQL(staging, []string{"Id", "Code"}),
			"ALTER TABLE [#People_0123] ADD CONSTRAINT [PK_People_0123] PRIMARY KEY NONCLUSTERED ([Id], [Code])",
		},
		{
			"update single key",
			d.UpdateSQL("People", staging, []string{"Name", "Age"}, []string{"Id"}),
			"UPDATE [People]\n" +
				"SET [People].[Name] = [#People_0123].[Name], [People].[Age] = [#People_0123].[Age]\n" +
				"FROM [People]\n" +
				"INNER JOIN [#People_0123] ON ([People].[Id] = [#People_0123].[Id])",
		},
		{
			"update composite key",
			d.UpdateSQL("dbo.Orders", "#o", []string{"Qty"}, []string{"OrderId", "Line"}),
			"UPDATE [dbo].[Orders]\n" +
				"SET [dbo].[Orders].[Qty] = [#o].[Qty]\n" +
				"FROM [dbo].[Orders]\n" +
				"INNER JOIN [#o] ON ([dbo].[Orders].[OrderId] = [#o].[OrderId]) AND ([dbo].[Orders].[Line] = [#o].[Line])",
		},
		{
			"drop",
			d.DropSQL(staging),
			"DROP TABLE [#People_0123]",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if tt.got != tt.want {
				t.Fatalf("got\n%s\nwant\n%s", tt.got, tt.want)
			}
		})
	}
}

func TestStagingTableName(t *testing.T) {
	t.Parallel()

	name := Dialect{}.StagingTableName("dbo.People")
	if !strings.HasPrefix(name, "#dbo_People_") {
		t.Fatalf("StagingTableName() = %q; want #dbo_People_ prefix", name)
	}
	long := Dialect{}.StagingTableName(strings.Repeat("t", 150))
	if len(long) > maxTempNameLen {
		t.Fatalf("len(StagingTableName()) = %d; want <= %d", len(long), maxTempNameLen)
	}
}

func TestRenderType(t *testing.T) {
	t.Parallel()

	null := sql.NullInt64{}
	n := func(v int64) sql.NullInt64 { return sql.NullInt64{Int64: v, Valid: true} }

	cases := []struct {
		dataType         string
		maxLen, prec, sc sql.NullInt64
		want             string
	}{
		{"int", null, n(10), n(0), "[int]"},
		{"BIGINT", null, n(19), n(0), "[bigint]"},
		{"decimal", null, n(18), n(2), "[decimal](18, 2)"},
		{"numeric", null, n(9), n(0), "[numeric](9, 0)"},
		{"nvarchar", n(50), null, null, "[nvarchar](50)"},
		{"varchar", n(-1), null, null, "[varchar](max)"},
		{"uniqueidentifier", null, null, null, "[uniqueidentifier]"},
	}
	for _, tc := range cases {
		if got := renderType(tc.dataType, tc.maxLen, tc.prec, tc.sc); got != tc.want {
			t.Fatalf("renderType(%q) = %q; want %q", tc.dataType, got, tc.want)
		}
	}
}

func TestClassify(t *testing.T) {
	t.Parallel()

	cases := []struct {
		err  error
		want error
	}{
		{mssql.Error{Number: 208, Message: "Invalid object name 'Nope'."}, dberr.ErrSchema},
		{fmt.Errorf("wrapped: %w", mssql.Error{Number: 207}), dberr.ErrSchema},
		{mssql.Error{Number: 2627, Message: "Violation of PRIMARY KEY"}, nil},
		{errors.New("network down"), nil},
	}
	for _, tc := range cases {
		if got := (Dialect{}).Classify(tc.err); got != tc.want {
			t.Fatalf("Classify(%v) = %v; want %v", tc.err, got, tc.want)
		}
	}
}

func TestCreateTableSQL(t *testing.T) {
	t.Parallel()

	got, err := Dialect{}.CreateTableSQL(ddl.TableDef{
		FQN: "dbo.IdStore",
		Columns: []ddl.ColumnDef{
			{Name: "TableName", SQLType: "NVARCHAR(100)", PrimaryKey: true},
			{Name: "LastId", SQLType: "INT"},
		},
	})
	if err != nil {
		t.Fatalf("CreateTableSQL() error = %v", err)
	}
	want := "IF OBJECT_ID(N'[dbo].[IdStore]', N'U') IS NULL\nBEGIN\n" +
		"  CREATE TABLE [dbo].[IdStore] (\n" +
		"  [TableName] NVARCHAR(100) NOT NULL,\n" +
		"  [LastId] INT NOT NULL,\n" +
		"  PRIMARY KEY ([TableName])\n);\nEND;"
	if got != want {
		t.Fatalf("CreateTableSQL() =\n%s\nwant\n%s", got, want)
	}

	ident, err := Dialect{}.CreateTableSQL(ddl.TableDef{FQN: "People", Columns: []ddl.ColumnDef{
		{Name: "Id", SQLType: "INT", PrimaryKey: true, Identity: true},
	}})
	if err != nil || !strings.Contains(ident, "[Id] INT IDENTITY(1,1) NOT NULL") {
		t.Fatalf("identity column not rendered: %q, %v", ident, err)
	}
}

func TestRegistered(t *testing.T) {
	t.Parallel()

	b, err := storage.Lookup("mssql")
	if err != nil {
		t.Fatalf("Lookup(mssql) error = %v", err)
	}
	if b.DriverName != "sqlserver" {
		t.Fatalf("DriverName = %q; want sqlserver", b.DriverName)
	}
	if err := b.ValidateDSN("sqlserver://sa:pw@localhost:1433?database=master"); err != nil {
		t.Fatalf("ValidateDSN(valid) error = %v", err)
	}
	if err := b.ValidateDSN("sqlserver://localhost?connection+timeout=abc"); err == nil {
		t.Fatalf("ValidateDSN(bad timeout) = nil; want error")
	}
}
