package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/natefinch/atomic"

	"github.com/spektr-org/widgetkit/widget"
)

// FileStore keeps one JSON file per widget in Dir. Writes replace the file
// atomically so a crash never leaves a half-written widget behind.
type FileStore struct {
	Dir string
}

// NewFileStore creates dir if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	return &FileStore{Dir: dir}, nil
}

func (f *FileStore) path(id string) string {
	return filepath.Join(f.Dir, id+".json")
}

// Get reads one widget.
func (f *FileStore) Get(_ context.Context, id string) (widget.State, error) {
	if err := checkID(id); err != nil {
		return widget.State{}, err
	}
	data, err := os.ReadFile(f.path(id))
	if errors.Is(err, fs.ErrNotExist) {
		return widget.State{}, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	if err != nil {
		return widget.State{}, fmt.Errorf("read widget %s: %w", id, err)
	}
	return decodeState(id, data)
}

// Put writes s, replacing any previous version.
func (f *FileStore) Put(_ context.Context, s widget.State) error {
	if err := checkID(s.ID); err != nil {
		return err
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encode widget %s: %w", s.ID, err)
	}
	data = append(data, '\n')
	if err := atomic.WriteFile(f.path(s.ID), bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write widget %s: %w", s.ID, err)
	}
	return nil
}

// Delete removes a widget.
func (f *FileStore) Delete(_ context.Context, id string) error {
	if err := checkID(id); err != nil {
		return err
	}
	err := os.Remove(f.path(id))
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("delete widget %s: %w", id, err)
	}
	return nil
}

// List returns every stored widget ordered by ID.
func (f *FileStore) List(ctx context.Context) ([]widget.State, error) {
	entries, err := os.ReadDir(f.Dir)
	if err != nil {
		return nil, fmt.Errorf("list store dir: %w", err)
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(e.Name(), ".json"))
	}
	sort.Strings(ids)

	out := make([]widget.State, 0, len(ids))
	for _, id := range ids {
		s, err := f.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func decodeState(id string, data []byte) (widget.State, error) {
	var s widget.State
	if err := json.Unmarshal(data, &s); err != nil {
		return widget.State{}, fmt.Errorf("decode widget %s: %w", id, err)
	}
	if s.Query == nil {
		s.Query = widget.Query{}
	}
	if s.Metadata == nil {
		s.Metadata = widget.Metadata{}
	}
	return s, nil
}
