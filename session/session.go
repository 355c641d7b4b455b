// Package session owns one widget while it is being edited.
//
// A Session keeps two channels apart: the local state, replaced
// synchronously on every edit so readers see it at once, and a CommitQueue
// that forwards states to the external state container, immediately or
// once per debounce window for free-text style keys.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/spektr-org/widgetkit/engine"
	"github.com/spektr-org/widgetkit/observability"
	"github.com/spektr-org/widgetkit/widget"
)

var (
	// ErrClosed is returned by every operation after Close or Discard.
	ErrClosed = errors.New("session closed")
	// ErrInvalid is returned by Save while validation fails.
	ErrInvalid = errors.New("widget state is invalid")
)

// Notifier receives every committed widget state. It is the external state
// container's entry point and is responsible for durable storage.
type Notifier interface {
	OnUpdate(ctx context.Context, s widget.State, changedReportType bool) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, s widget.State, changedReportType bool) error

// OnUpdate implements Notifier.
func (f NotifierFunc) OnUpdate(ctx context.Context, s widget.State, changedReportType bool) error {
	return f(ctx, s, changedReportType)
}

// ErrorSink receives validation messages per filter key or group. An empty
// message clears the key.
type ErrorSink interface {
	OnValidationError(key, message string)
}

// ErrorSinkFunc adapts a function to ErrorSink.
type ErrorSinkFunc func(key, message string)

// OnValidationError implements ErrorSink.
func (f ErrorSinkFunc) OnValidationError(key, message string) { f(key, message) }

// ============================================================================
// OPTIONS
// ============================================================================

// Option configures a Session.
type Option func(*Session)

// WithDebounce sets the commit window (default DefaultDebounce).
func WithDebounce(d time.Duration) Option {
	return func(s *Session) { s.window = d }
}

// WithDebouncedKeys adds keys whose edits are debounced on top of those
// the registry marks as debounced.
func WithDebouncedKeys(keys ...string) Option {
	return func(s *Session) {
		for _, k := range keys {
			s.debounced[k] = true
		}
	}
}

// WithErrorSink publishes validation messages to sink.
func WithErrorSink(sink ErrorSink) Option {
	return func(s *Session) { s.sink = sink }
}

// WithLogger sets the session logger (default slog.Default()).
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics records commit counters.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

// ============================================================================
// SESSION
// ============================================================================

// Session is the single writer of one widget state. The mutex exists only
// because commit timers fire on their own goroutines.
type Session struct {
	engine    *engine.Engine
	queue     *CommitQueue
	sink      ErrorSink
	logger    *slog.Logger
	metrics   *observability.Metrics
	window    time.Duration
	debounced map[string]bool

	mu     sync.Mutex
	state  widget.State
	errors map[string]string
	closed bool
}

// Open starts editing initial. Nothing is committed until the first edit.
func Open(e *engine.Engine, initial widget.State, n Notifier, opts ...Option) *Session {
	s := &Session{
		engine:    e,
		logger:    slog.Default(),
		debounced: map[string]bool{},
		state:     initial.Clone(),
		errors:    map[string]string{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.queue = NewCommitQueue(n, s.window, s.logger, s.metrics)
	return s
}

// State returns a copy of the current local state.
func (s *Session) State() widget.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// Errors returns the validation messages currently published.
func (s *Session) Errors() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.errors))
	for k, v := range s.errors {
		out[k] = v
	}
	return out
}

// Pending reports whether a debounced commit is waiting.
func (s *Session) Pending() bool { return s.queue.Pending() }

// Edit applies a filter edit.
func (s *Session) Edit(ctx context.Context, key string, value any, opts ...engine.EditOption) (engine.Result, error) {
	var res engine.Result
	err := s.mutate(ctx, key, func(st widget.State) (widget.State, bool, error) {
		res = s.engine.ApplyFilterEdit(st, key, value, opts...)
		return res.State, res.ChangedReportType, nil
	})
	return res, err
}

// EditBulk applies several edits as one mutation.
func (s *Session) EditBulk(ctx context.Context, edits []engine.Edit) (engine.Result, error) {
	var res engine.Result
	err := s.mutate(ctx, "", func(st widget.State) (widget.State, bool, error) {
		res = s.engine.ApplyBulkEdit(st, edits)
		return res.State, res.ChangedReportType, nil
	})
	return res, err
}

// EditTimeRange sets a time filter and its range choice.
func (s *Session) EditTimeRange(ctx context.Context, key string, r widget.TimeRange, choice widget.RangeChoice) error {
	return s.mutate(ctx, key, func(st widget.State) (widget.State, bool, error) {
		res := s.engine.ApplyTimeRangeEdit(st, key, r, choice)
		return res.State, res.ChangedReportType, nil
	})
}

// UseDashboardTime makes a time filter follow the dashboard range.
func (s *Session) UseDashboardTime(ctx context.Context, key string, use bool) error {
	return s.mutate(ctx, key, func(st widget.State) (widget.State, bool, error) {
		return s.engine.UseDashboardTime(st, key, use).State, false, nil
	})
}

// Remove removes a filter and everything derived from it.
func (s *Session) Remove(ctx context.Context, key string, opts ...engine.RemoveOption) error {
	return s.mutate(ctx, key, func(st widget.State) (widget.State, bool, error) {
		return s.engine.RemoveFilter(st, key, opts...), false, nil
	})
}

// SetWeight sets one weight.
func (s *Session) SetWeight(ctx context.Context, key string, value float64) error {
	return s.mutate(ctx, key, func(st widget.State) (widget.State, bool, error) {
		return s.engine.ApplyWeightEdit(st, key, value).State, false, nil
	})
}

// SetMaxRecords sets the record limit.
func (s *Session) SetMaxRecords(ctx context.Context, n int) error {
	return s.mutate(ctx, "max_records", func(st widget.State) (widget.State, bool, error) {
		return s.engine.ApplyMaxRecords(st, n).State, false, nil
	})
}

// Transform applies an arbitrary state transform, such as an axis edit,
// through the same validation and commit path as filter edits.
func (s *Session) Transform(ctx context.Context, key string, fn func(widget.State) (widget.State, error)) error {
	return s.mutate(ctx, key, func(st widget.State) (widget.State, bool, error) {
		next, err := fn(st)
		return next, false, err
	})
}

// Validate runs validation on the current state without publishing.
func (s *Session) Validate() engine.ValidationReport {
	return s.engine.Validate(s.State())
}

// Save commits the current state immediately. It refuses while validation
// fails and returns the failing report.
func (s *Session) Save(ctx context.Context) (engine.ValidationReport, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return engine.ValidationReport{}, ErrClosed
	}
	st := s.state.Clone()
	s.mu.Unlock()

	report := s.engine.Validate(st)
	if !report.Valid() {
		s.logger.Info("save refused", "widget", st.ID, "failures", len(report.Failures()))
		return report, ErrInvalid
	}
	if err := s.queue.Commit(ctx, st, false); err != nil {
		return report, fmt.Errorf("save widget %s: %w", st.ID, err)
	}
	return report, nil
}

// Flush sends any pending debounced commit now.
func (s *Session) Flush(ctx context.Context) error {
	return s.queue.Flush(ctx)
}

// Close flushes pending commits and ends the session.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	return s.queue.Flush(ctx)
}

// Discard drops pending commits and ends the session. The local state is
// abandoned; nothing already committed is undone.
func (s *Session) Discard() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.queue.Discard()
}

// ============================================================================
// MUTATION PATH
// ============================================================================

// mutate replaces the local state synchronously, publishes validation, then
// hands the new state to the commit queue.
func (s *Session) mutate(ctx context.Context, key string, fn func(widget.State) (widget.State, bool, error)) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	next, changed, err := fn(s.state)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	prevType := s.state.Type
	s.state = next
	debounce := !changed && s.isDebounced(prevType, key)
	published := s.publishValidation(key, next)
	s.mu.Unlock()

	for _, p := range published {
		s.sink.OnValidationError(p.key, p.message)
	}

	if debounce {
		s.queue.Schedule(next.Clone(), false)
		return nil
	}
	return s.queue.Commit(ctx, next.Clone(), changed)
}

func (s *Session) isDebounced(reportType, key string) bool {
	if key == "" {
		return false
	}
	if s.debounced[key] {
		return true
	}
	d, ok := s.engine.Registry().Descriptor(reportType, key)
	return ok && d.Debounced
}

type publication struct {
	key     string
	message string
}

// publishValidation clears the edited key's message, re-runs validation
// and returns the sink calls needed to bring published messages in line.
// Callers hold s.mu.
func (s *Session) publishValidation(edited string, st widget.State) []publication {
	var out []publication
	if _, had := s.errors[edited]; had && edited != "" {
		delete(s.errors, edited)
		out = append(out, publication{key: edited})
	}

	current := map[string]string{}
	for _, f := range s.engine.Validate(st).Failures() {
		if _, dup := current[f.Key]; !dup {
			current[f.Key] = f.Message
		}
	}

	keys := make([]string, 0, len(current)+len(s.errors))
	for k := range current {
		keys = append(keys, k)
	}
	for k := range s.errors {
		if _, ok := current[k]; !ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	for _, k := range keys {
		msg, failing := current[k]
		prev, had := s.errors[k]
		switch {
		case failing && (!had || prev != msg):
			s.errors[k] = msg
			out = append(out, publication{key: k, message: msg})
		case !failing && had:
			delete(s.errors, k)
			out = append(out, publication{key: k})
		}
	}

	if s.sink == nil {
		return nil
	}
	return out
}
