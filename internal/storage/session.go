package storage

import (
	"context"
	"database/sql"
	"errors"
)

// Session is the connection context one pipeline run executes on. Every
// statement goes to Tx when it is set, otherwise to Conn, so a caller's
// transaction is honoured without the dialects having to care.
type Session struct {
	Conn *sql.Conn
	Tx   *sql.Tx
}

// ErrNoConn is returned by Raw when the session only holds a transaction.
var ErrNoConn = errors.New("storage: session has no dedicated connection")

func (s *Session) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if s.Tx != nil {
		return s.Tx.ExecContext(ctx, query, args...)
	}
	return s.Conn.ExecContext(ctx, query, args...)
}

func (s *Session) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	if s.Tx != nil {
		return s.Tx.QueryContext(ctx, query, args...)
	}
	return s.Conn.QueryContext(ctx, query, args...)
}

func (s *Session) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	if s.Tx != nil {
		return s.Tx.QueryRowContext(ctx, query, args...)
	}
	return s.Conn.QueryRowContext(ctx, query, args...)
}

func (s *Session) PrepareContext(ctx context.Context, query string) (*sql.Stmt, error) {
	if s.Tx != nil {
		return s.Tx.PrepareContext(ctx, query)
	}
	return s.Conn.PrepareContext(ctx, query)
}

// Raw runs fn with the driver connection. It requires Conn; with a Tx that
// was begun on Conn, work done through the driver connection joins it.
func (s *Session) Raw(fn func(driverConn any) error) error {
	if s.Conn == nil {
		return ErrNoConn
	}
	return s.Conn.Raw(fn)
}
