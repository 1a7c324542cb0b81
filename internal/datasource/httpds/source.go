package httpds

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path"

	"bulkupdate/internal/datasource"
)

// Source downloads one URL per Open. A URL path ending in .gz or .zst is
// decompressed like a local file with the same name.
type Source struct {
	url    string
	client *Client
}

var _ datasource.Source = (*Source)(nil)

// NewSource returns a Source for rawURL. A nil client means NewClient(Config{}).
func NewSource(rawURL string, client *Client) *Source {
	if client == nil {
		client = NewClient(Config{})
	}
	return &Source{url: rawURL, client: client}
}

func (s *Source) URL() string { return s.url }

// Open issues the GET and returns the (decompressed) body. Any status other
// than 2xx is an error.
func (s *Source) Open(ctx context.Context) (io.ReadCloser, error) {
	u, err := url.Parse(s.url)
	if err != nil {
		return nil, fmt.Errorf("httpds: parse %q: %w", s.url, err)
	}
	resp, err := s.client.Get(ctx, s.url, nil)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("httpds: GET %s: status %d", s.url, resp.StatusCode)
	}
	return datasource.Decompress(path.Base(u.Path), resp.Body)
}
