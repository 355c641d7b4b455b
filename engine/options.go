package engine

import (
	"log/slog"

	"github.com/spektr-org/widgetkit/observability"
)

// ============================================================================
// ENGINE OPTIONS: Functional options for New() and the edit operations
// ============================================================================

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger (default slog.Default()).
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithMetrics records edit and validation counters.
func WithMetrics(m *observability.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// Partial match modes.
const (
	PartialBegins   = "$begins"
	PartialContains = "$contains"
)

// EditOption controls how a single filter edit is written.
type EditOption func(*editOptions)

type editOptions struct {
	exclude     bool
	partial     string
	customField bool
	metadata    map[string]any
}

// Exclude writes the value as an exclusion (query.exclude).
func Exclude() EditOption {
	return func(o *editOptions) { o.exclude = true }
}

// Partial writes the value as a partial match with the given mode
// (PartialBegins or PartialContains).
func Partial(mode string) EditOption {
	return func(o *editOptions) { o.partial = mode }
}

// AsCustomField treats a key with no descriptor as a custom field. Custom
// fields are discovered per workspace, so most never appear in the catalog.
func AsCustomField() EditOption {
	return func(o *editOptions) { o.customField = true }
}

// WithExtraMetadata merges m into the widget metadata as part of the same edit.
func WithExtraMetadata(m map[string]any) EditOption {
	return func(o *editOptions) { o.metadata = m }
}

func applyEditOptions(opts []EditOption) editOptions {
	var o editOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// RemoveOption controls how a filter is removed.
type RemoveOption func(*removeOptions)

type removeOptions struct {
	customField bool
	partialKey  string
}

// RemoveCustomField treats a key with no descriptor as a custom field.
func RemoveCustomField() RemoveOption {
	return func(o *removeOptions) { o.customField = true }
}

// RemovePartialKey overrides the partial_match key for keys with no
// descriptor.
func RemovePartialKey(key string) RemoveOption {
	return func(o *removeOptions) { o.partialKey = key }
}

func applyRemoveOptions(opts []RemoveOption) removeOptions {
	var o removeOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
