package table

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ============================================================================
// HTTP SOURCE: GET <base>/tables/<id>
// ============================================================================

// HTTPSource fetches table schemas from the tables API.
type HTTPSource struct {
	BaseURL string
	Client  *http.Client
	// Header is added to every request (auth tokens, tenant ids).
	Header http.Header
}

// NewHTTPSource creates a source for baseURL with a 10s client timeout.
func NewHTTPSource(baseURL string) *HTTPSource {
	return &HTTPSource{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// GetTableSchema implements Source.
func (s *HTTPSource) GetTableSchema(ctx context.Context, id string) (Schema, error) {
	endpoint := s.BaseURL + "/tables/" + url.PathEscape(id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Schema{}, fmt.Errorf("build table request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	for k, vs := range s.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return Schema{}, fmt.Errorf("fetch table %s: %w", id, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return Schema{}, fmt.Errorf("table %s: %w", id, ErrNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Schema{}, fmt.Errorf("fetch table %s: status %d: %s", id, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out Schema
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Schema{}, fmt.Errorf("decode table %s: %w", id, err)
	}
	if out.ID == "" {
		out.ID = id
	}
	return out, nil
}

// ============================================================================
// CSV SOURCE: <dir>/<id>.csv
// ============================================================================

// CSVSource serves tables from a directory of CSV files; the file name
// without extension is the table id.
type CSVSource struct {
	Dir     string
	Options DiscoverOptions
}

// NewCSVSource creates a source reading from dir.
func NewCSVSource(dir string) *CSVSource {
	return &CSVSource{Dir: dir, Options: DefaultDiscoverOptions()}
}

// GetTableSchema implements Source.
func (s *CSVSource) GetTableSchema(ctx context.Context, id string) (Schema, error) {
	if err := ctx.Err(); err != nil {
		return Schema{}, err
	}
	if id == "" || strings.ContainsAny(id, `/\`) || id != filepath.Base(id) {
		return Schema{}, fmt.Errorf("table %q: %w", id, ErrNotFound)
	}
	data, err := os.ReadFile(filepath.Join(s.Dir, id+".csv"))
	if errors.Is(err, os.ErrNotExist) {
		return Schema{}, fmt.Errorf("table %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Schema{}, fmt.Errorf("read table %s: %w", id, err)
	}
	return DiscoverCSV(id, data, s.Options)
}

// List returns the table ids available in the directory, sorted.
func (s *CSVSource) List() ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(s.Dir, "*.csv"))
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	ids := make([]string, len(matches))
	for i, m := range matches {
		ids[i] = strings.TrimSuffix(filepath.Base(m), ".csv")
	}
	return ids, nil
}
