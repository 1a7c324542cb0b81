// Package idgen hands out unique numeric ids per logical table name, reserving
// them from a database-backed counter in blocks so that most calls never touch
// the database.
//
// Several generators (in one process or many) may share a counter table: each
// reservation advances the stored counter atomically, so the blocks they hold
// never overlap.
package idgen

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"bulkupdate/internal/dberr"
)

// Store is the persistent counter behind a Generator.
type Store interface {
	// Reserve advances the counter for table by n and returns the first id of
	// the reserved block [first, first+n).
	Reserve(ctx context.Context, table string, n int) (first int64, err error)
	// Init creates the counter table (and any server-side objects) if they do
	// not exist yet.
	Init(ctx context.Context) error
}

// Generator is safe for concurrent use.
type Generator struct {
	store     Store
	table     string
	batchSize int
	log       *slog.Logger

	mu sync.Mutex
	// next is the id Next returns; limit is one past the reserved block.
	next, limit int64
}

type Option func(*Generator)

// WithLogger sets the logger used for reservation debug lines.
func WithLogger(l *slog.Logger) Option {
	return func(g *Generator) {
		if l != nil {
			g.log = l
		}
	}
}

// New returns a generator for table that reserves batchSize ids per round trip.
func New(store Store, table string, batchSize int, opts ...Option) (*Generator, error) {
	if store == nil {
		return nil, dberr.Configf("idgen", "store must not be nil")
	}
	table = strings.TrimSpace(table)
	if table == "" {
		return nil, dberr.Configf("idgen", "table name is empty")
	}
	if batchSize <= 0 {
		return nil, dberr.Configf("idgen", "batch size must be > 0, got %d", batchSize)
	}
	g := &Generator{store: store, table: table, batchSize: batchSize, log: slog.Default()}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

func (g *Generator) Table() string  { return g.table }
func (g *Generator) BatchSize() int { return g.batchSize }

// Next returns the next id, reserving a new block first when the current one
// is used up. A failed reservation leaves the generator unchanged.
func (g *Generator) Next(ctx context.Context) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.next >= g.limit {
		first, err := g.store.Reserve(ctx, g.table, g.batchSize)
		if err != nil {
			return 0, err
		}
		g.log.DebugContext(ctx, "idgen: reserved block",
			"table", g.table, "first", first, "size", g.batchSize)
		g.next, g.limit = first, first+int64(g.batchSize)
	}
	id := g.next
	g.next++
	return id, nil
}

// GUIDGenerator produces random (version 4) UUIDs and needs no backing store.
type GUIDGenerator struct{}

func (GUIDGenerator) Next() uuid.UUID { return uuid.New() }
