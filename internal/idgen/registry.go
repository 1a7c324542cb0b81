package idgen

import (
	"database/sql"
	"fmt"
	"sort"
	"sync"

	"bulkupdate/internal/dberr"
	"bulkupdate/internal/storage"
)

// Width selects the counter's integer type and, with it, the names of the
// server-side objects.
type Width int

const (
	Int32 Width = iota + 1
	Int64
)

func (w Width) String() string {
	switch w {
	case Int32:
		return "int32"
	case Int64:
		return "int64"
	default:
		return fmt.Sprintf("Width(%d)", int(w))
	}
}

// counterTable is the table holding one row per logical table name.
func (w Width) counterTable() string {
	if w == Int64 {
		return "IdStoreInt64"
	}
	return "IdStore"
}

func (w Width) procedure() string {
	if w == Int64 {
		return "spGetNewIdInt64"
	}
	return "spGetNewId"
}

// sqlType is the portable counter type.
func (w Width) sqlType() string {
	if w == Int64 {
		return "BIGINT"
	}
	return "INTEGER"
}

func (w Width) valid() bool { return w == Int32 || w == Int64 }

// Factory builds a Store for one storage kind. d is the dialect registered
// for that kind.
type Factory func(db *sql.DB, d storage.Dialect, w Width) (Store, error)

var (
	regMu     sync.RWMutex
	factories = map[string]Factory{}
)

func init() {
	Register("mssql", func(db *sql.DB, d storage.Dialect, w Width) (Store, error) {
		return NewSQLServerStore(db, d, w), nil
	})
	upsert := func(db *sql.DB, d storage.Dialect, w Width) (Store, error) {
		return NewUpsertStore(db, d, w), nil
	}
	Register("postgres", upsert)
	Register("sqlite", upsert)
}

// Register registers (or replaces) the store factory for kind.
func Register(kind string, f Factory) {
	regMu.Lock()
	defer regMu.Unlock()
	factories[kind] = f
}

// Kinds lists the kinds with a store factory, sorted.
func Kinds() []string {
	regMu.RLock()
	defer regMu.RUnlock()
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// NewStore returns the counter store for kind on db. The storage backend for
// kind must be registered as well, since the store renders its DDL through
// that backend's dialect.
func NewStore(kind string, db *sql.DB, w Width) (Store, error) {
	if db == nil {
		return nil, dberr.Configf("idgen", "db must not be nil")
	}
	if !w.valid() {
		return nil, dberr.Configf("idgen", "unsupported counter width %v", w)
	}
	regMu.RLock()
	f, ok := factories[kind]
	regMu.RUnlock()
	if !ok {
		return nil, dberr.Configf("idgen", "no id store for storage kind %q (supported: %v)", kind, Kinds())
	}
	b, err := storage.Lookup(kind)
	if err != nil {
		return nil, err
	}
	return f(db, b.Dialect, w)
}
