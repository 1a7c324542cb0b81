// Package file implements a local filesystem-backed data source with
// transparent decompression of .gz and .zst inputs.
package file

import (
	"context"
	"fmt"
	"io"
	"os"

	"bulkupdate/internal/datasource"
)

// Local is a filesystem data source that opens files from the local disk.
type Local struct{ path string }

var _ datasource.Source = (*Local)(nil)

// NewLocal returns a Local bound to path. A ".gz" suffix selects gzip and a
// ".zst" suffix selects zstd decompression.
func NewLocal(path string) *Local { return &Local{path: path} }

func (l *Local) Path() string { return l.path }

// Open opens the configured path for reading.
//
//   - A context that is already done short-circuits before touching the
//     filesystem.
//   - Filesystem errors are wrapped with the path and stay matchable with
//     errors.Is (e.g. os.ErrNotExist).
//   - Closing the returned reader closes the decompressor and the file.
func (l *Local) Open(ctx context.Context) (io.ReadCloser, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	f, err := os.Open(l.path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", l.path, err)
	}
	adviseSequential(f)
	return datasource.Decompress(l.path, f)
}
