package idgen

import (
	"context"
	"database/sql"
	"fmt"

	"bulkupdate/internal/dberr"
	"bulkupdate/internal/ddl"
	"bulkupdate/internal/storage"
)

// UpsertStore keeps counters in a plain table and advances them with a single
// INSERT ... ON CONFLICT DO UPDATE ... RETURNING statement. It serves
// PostgreSQL and SQLite (3.35+).
type UpsertStore struct {
	db *sql.DB
	d  storage.Dialect
	w  Width
}

func NewUpsertStore(db *sql.DB, d storage.Dialect, w Width) *UpsertStore {
	return &UpsertStore{db: db, d: d, w: w}
}

func (s *UpsertStore) Init(ctx context.Context) error {
	create, err := s.d.CreateTableSQL(ddl.TableDef{
		FQN: s.w.counterTable(),
		Columns: []ddl.ColumnDef{
			{Name: "TableName", SQLType: "VARCHAR(100)", PrimaryKey: true},
			{Name: "LastId", SQLType: s.w.sqlType()},
		},
	})
	if err != nil {
		return dberr.Configf("idgen init", "%v", err)
	}
	if _, err := s.db.ExecContext(ctx, create); err != nil {
		return dberr.Wrap("idgen init", create, err, s.d.Classify)
	}
	return nil
}

func (s *UpsertStore) reserveSQL() string {
	t := s.d.Quote(s.w.counterTable())
	name, last := s.d.Quote("TableName"), s.d.Quote("LastId")
	return fmt.Sprintf(
		"INSERT INTO %s (%s, %s) VALUES (%s, %s) ON CONFLICT (%s) DO UPDATE SET %s = %s.%s + excluded.%s RETURNING %s",
		t, name, last, s.d.Placeholder(1), s.d.Placeholder(2),
		name, last, t, last, last, last)
}

func (s *UpsertStore) Reserve(ctx context.Context, table string, n int) (int64, error) {
	stmt := s.reserveSQL()
	var last int64
	if err := s.db.QueryRowContext(ctx, stmt, table, int64(n)).Scan(&last); err != nil {
		return 0, dberr.Wrap("idgen reserve", stmt, err, s.d.Classify)
	}
	return last - int64(n) + 1, nil
}
