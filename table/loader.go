package table

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/spektr-org/widgetkit/observability"
)

// ============================================================================
// LOADER: de-duplicated, cached schema fetches
// ============================================================================
// Concurrent requests for one table share a single fetch. Successful
// schemas are cached until invalidated; failures are remembered so callers
// can render an empty, configurable widget instead of failing.
// ============================================================================

// DefaultFetchTimeout bounds one shared schema fetch.
const DefaultFetchTimeout = 30 * time.Second

// Status is the fetch state of one table.
type Status struct {
	Loading bool
	Failed  bool
	Err     error
}

// Ready reports whether a schema is available.
func (s Status) Ready() bool { return !s.Loading && !s.Failed }

type entry struct {
	schema  Schema
	loaded  bool
	loading bool
	err     error
}

// Loader wraps a Source with de-duplication and caching.
type Loader struct {
	src     Source
	flight  singleflight.Group
	logger  *slog.Logger
	metrics *observability.Metrics
	timeout time.Duration

	mu      sync.RWMutex
	entries map[string]*entry
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithLoaderLogger sets the logger (default slog.Default()).
func WithLoaderLogger(l *slog.Logger) LoaderOption {
	return func(ld *Loader) {
		if l != nil {
			ld.logger = l
		}
	}
}

// WithLoaderMetrics records fetch outcomes.
func WithLoaderMetrics(m *observability.Metrics) LoaderOption {
	return func(ld *Loader) { ld.metrics = m }
}

// WithFetchTimeout bounds each shared fetch. Values <= 0 are ignored.
func WithFetchTimeout(d time.Duration) LoaderOption {
	return func(ld *Loader) {
		if d > 0 {
			ld.timeout = d
		}
	}
}

// NewLoader creates a Loader over src.
func NewLoader(src Source, opts ...LoaderOption) *Loader {
	l := &Loader{
		src:     src,
		logger:  slog.Default(),
		timeout: DefaultFetchTimeout,
		entries: make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Get returns the schema for id, fetching it once if needed. The fetch is
// shared by every concurrent caller, so it is detached from ctx and bounded
// by the loader's fetch timeout instead; a caller whose ctx ends stops
// waiting without failing the others.
func (l *Loader) Get(ctx context.Context, id string) (Schema, error) {
	l.mu.RLock()
	if e, ok := l.entries[id]; ok && e.loaded {
		s := e.schema
		l.mu.RUnlock()
		return s, nil
	}
	l.mu.RUnlock()

	l.setLoading(id)
	fetchCtx := context.WithoutCancel(ctx)
	ch := l.flight.DoChan(id, func() (interface{}, error) {
		fctx, cancel := context.WithTimeout(fetchCtx, l.timeout)
		defer cancel()
		s, err := l.src.GetTableSchema(fctx, id)
		l.metrics.ObserveTableFetch(err)
		l.finish(id, s, err)
		if err != nil {
			l.logger.Warn("table schema fetch failed", "table", id, "error", err)
			return nil, err
		}
		return s, nil
	})
	select {
	case <-ctx.Done():
		return Schema{}, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return Schema{}, r.Err
		}
		return r.Val.(Schema), nil
	}
}

// Options returns the column options for id. A failed fetch yields no
// options rather than an error.
func (l *Loader) Options(ctx context.Context, id string) []ColumnOption {
	s, err := l.Get(ctx, id)
	if err != nil {
		return nil
	}
	return Options(s)
}

// Status reports the fetch state of id. A table never requested reports
// Loading.
func (l *Loader) Status(id string) Status {
	l.mu.RLock()
	defer l.mu.RUnlock()
	e, ok := l.entries[id]
	if !ok {
		return Status{Loading: true}
	}
	if e.loading {
		return Status{Loading: true}
	}
	if e.err != nil {
		return Status{Failed: true, Err: e.err}
	}
	return Status{}
}

// Invalidate drops the cached schema or failure for id.
func (l *Loader) Invalidate(id string) {
	l.mu.Lock()
	delete(l.entries, id)
	l.mu.Unlock()
	l.flight.Forget(id)
}

func (l *Loader) setLoading(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[id]
	if !ok {
		e = &entry{}
		l.entries[id] = e
	}
	e.loading = true
}

func (l *Loader) finish(id string, s Schema, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[id]
	if !ok {
		e = &entry{}
		l.entries[id] = e
	}
	e.loading = false
	e.err = err
	if err == nil {
		e.schema = s
		e.loaded = true
	}
}
