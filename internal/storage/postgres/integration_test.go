//go:build integration

package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"bulkupdate/internal/rows"
	"bulkupdate/internal/storage"
)

func getTestDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set; skipping Postgres integration tests")
	}
	return dsn
}

func TestDialectIntegration(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	db, _, err := storage.Open(ctx, "postgres", getTestDSN(t))
	if err != nil {
		t.Fatalf("storage.Open() error = %v", err)
	}
	defer db.Close()
	conn, err := db.Conn(ctx)
	if err != nil {
		t.Fatalf("db.Conn() error = %v", err)
	}
	defer conn.Close()
	s := &storage.Session{Conn: conn}
	d := Dialect{}

	for _, q := range []string{
		`DROP TABLE IF EXISTS bulk_probe`,
		`CREATE TABLE bulk_probe (id bigint GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY, price numeric(12,3), name text)`,
	} {
		if _, err := s.ExecContext(ctx, q); err != nil {
			t.Fatalf("exec %q: %v", q, err)
		}
	}
	t.Cleanup(func() { _, _ = db.Exec(`DROP TABLE IF EXISTS bulk_probe`) })

	col, ok, err := d.IdentityColumn(ctx, s, "bulk_probe")
	if err != nil || !ok || col != "id" {
		t.Fatalf("IdentityColumn() = %q, %v, %v", col, ok, err)
	}
	if typ, err := d.ColumnType(ctx, s, "bulk_probe", "PRICE"); err != nil || typ != "numeric(12,3)" {
		t.Fatalf("ColumnType(PRICE) = %q, %v", typ, err)
	}

	staging := d.StagingTableName("bulk_probe")
	if _, err := s.ExecContext(ctx, d.CreateStagingSQL("bulk_probe", staging, []string{"id", "name"})); err != nil {
		t.Fatalf("create staging: %v", err)
	}
	defer s.ExecContext(context.Background(), d.DropSQL(staging))

	tbl := rows.NewTable("id", "name")
	_ = tbl.Append(int64(1), "a")
	_ = tbl.Append(int64(2), nil)
	n, err := storage.LoadBatches(ctx, rows.FromTable(tbl), 10, d.CopyFn(s, staging))
	if err != nil || n != 2 {
		t.Fatalf("LoadBatches() = %d, %v; want 2, nil", n, err)
	}
}
