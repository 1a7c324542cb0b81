// Package datasource defines where job input bytes come from. Concrete
// sources live in subpackages: file for the local disk and httpds for HTTP
// downloads.
package datasource

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Source opens a fresh reader over the input. The caller closes it.
type Source interface {
	Open(ctx context.Context) (io.ReadCloser, error)
}

// Decompress wraps rc in a decoder chosen by the suffix of name: ".gz"
// selects gzip and ".zst" selects zstd, case-insensitively. Any other name
// returns rc unchanged. Closing the result closes the decoder and rc. On
// error rc is closed.
func Decompress(name string, rc io.ReadCloser) (io.ReadCloser, error) {
	switch lower := strings.ToLower(name); {
	case strings.HasSuffix(lower, ".gz"):
		zr, err := gzip.NewReader(rc)
		if err != nil {
			_ = rc.Close()
			return nil, fmt.Errorf("gzip %s: %w", name, err)
		}
		return &stackedReader{Reader: zr, closers: []func() error{zr.Close, rc.Close}}, nil
	case strings.HasSuffix(lower, ".zst"):
		zr, err := zstd.NewReader(rc)
		if err != nil {
			_ = rc.Close()
			return nil, fmt.Errorf("zstd %s: %w", name, err)
		}
		closeZ := func() error { zr.Close(); return nil }
		return &stackedReader{Reader: zr, closers: []func() error{closeZ, rc.Close}}, nil
	default:
		return rc, nil
	}
}

// stackedReader reads from the outermost decoder and closes every layer in
// order, returning the first error.
type stackedReader struct {
	io.Reader
	closers []func() error
}

func (r *stackedReader) Close() error {
	var first error
	for _, c := range r.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
