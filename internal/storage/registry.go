package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"bulkupdate/internal/dberr"
)

// Backend describes one registered storage kind.
type Backend struct {
	// DriverName is the database/sql driver name passed to sql.Open.
	DriverName string
	Dialect    Dialect
	// ValidateDSN rejects malformed connection strings before sql.Open.
	// Optional.
	ValidateDSN func(dsn string) error
	// Configure tunes a freshly opened pool (pragmas, pool limits). Optional.
	Configure func(ctx context.Context, db *sql.DB, dsn string) error
}

var (
	regMu    sync.RWMutex
	backends = map[string]Backend{}
)

// Register registers (or replaces) the backend for kind. Backend packages
// call it from init.
func Register(kind string, b Backend) {
	regMu.Lock()
	defer regMu.Unlock()
	backends[kind] = b
}

// Lookup returns the backend registered for kind.
func Lookup(kind string) (Backend, error) {
	regMu.RLock()
	b, ok := backends[kind]
	regMu.RUnlock()
	if !ok {
		return Backend{}, dberr.Configf("storage", "unsupported storage kind %q (registered: %v)", kind, Kinds())
	}
	return b, nil
}

// Kinds lists registered kinds in sorted order.
func Kinds() []string {
	regMu.RLock()
	defer regMu.RUnlock()
	out := make([]string, 0, len(backends))
	for k := range backends {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Open validates dsn, opens a pool for kind and pings it.
func Open(ctx context.Context, kind, dsn string) (*sql.DB, Backend, error) {
	b, err := Lookup(kind)
	if err != nil {
		return nil, Backend{}, err
	}
	if b.ValidateDSN != nil {
		if err := b.ValidateDSN(dsn); err != nil {
			return nil, Backend{}, dberr.Configf("storage", "%s dsn: %v", kind, err)
		}
	}
	db, err := sql.Open(b.DriverName, dsn)
	if err != nil {
		return nil, Backend{}, fmt.Errorf("sql.Open: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, Backend{}, fmt.Errorf("ping %s: %w", kind, err)
	}
	if b.Configure != nil {
		if err := b.Configure(ctx, db, dsn); err != nil {
			_ = db.Close()
			return nil, Backend{}, fmt.Errorf("configure %s: %w", kind, err)
		}
	}
	return db, b, nil
}
