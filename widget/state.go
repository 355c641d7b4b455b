// Package widget holds the persisted configuration of a single dashboard widget.
//
// A State is treated as an immutable value: every transform in this module
// clones before it writes, so a State handed to a reader is never changed
// underneath it.
package widget

import (
	"sort"

	"github.com/google/uuid"
)

// ============================================================================
// WELL-KNOWN KEYS
// ============================================================================

// Query side-channel keys. These are allowed in a query regardless of which
// filters are selected.
const (
	KeyAcross                = "across"
	KeyInterval              = "interval"
	KeyStacks                = "stacks"
	KeySort                  = "sort"
	KeySortXAxis             = "sort_xaxis"
	KeyMetric                = "metric"
	KeyVisualization         = "visualization"
	KeyIssueManagementSystem = "issue_management_system"
	KeyExclude               = "exclude"
	KeyPartialMatch          = "partial_match"
	KeyCustomFields          = "custom_fields"
)

// Metadata keys.
const (
	MetaRangeFilterChoice = "range_filter_choice"
	MetaDashboardTimeKeys = "dashboard_time_keys"
	MetaFilterTabOrder    = "filter_tab_order"
	MetaAxis              = "axis"
	MetaLastSprint        = "last_sprint"
)

// SideChannelKeys lists the query keys that never correspond to a filter.
var SideChannelKeys = []string{
	KeyAcross, KeyInterval, KeyStacks, KeySort, KeySortXAxis, KeyMetric,
	KeyVisualization, KeyIssueManagementSystem, KeyExclude, KeyPartialMatch,
	KeyCustomFields,
}

// IsSideChannel reports whether key is one of SideChannelKeys.
func IsSideChannel(key string) bool {
	for _, k := range SideChannelKeys {
		if k == key {
			return true
		}
	}
	return false
}

// ============================================================================
// STATE
// ============================================================================

// Query maps backend filter keys to scalar, list or nested range values.
type Query map[string]any

// Metadata holds UI-only and cross-cutting widget state.
type Metadata map[string]any

// State is one widget's persisted configuration.
type State struct {
	ID         string             `json:"id"`
	Type       string             `json:"type"`
	Query      Query              `json:"query"`
	Metadata   Metadata           `json:"metadata"`
	Weights    map[string]float64 `json:"weights,omitempty"`
	MaxRecords *int               `json:"max_records,omitempty"`
}

// New creates an empty widget for reportType with a fresh ID.
func New(reportType string) State {
	return State{
		ID:       uuid.NewString(),
		Type:     reportType,
		Query:    Query{},
		Metadata: Metadata{},
	}
}

// Clone returns a deep copy of s. Maps are never nil on the copy.
func (s State) Clone() State {
	out := State{
		ID:       s.ID,
		Type:     s.Type,
		Query:    s.Query.Clone(),
		Metadata: Metadata(cloneMap(s.Metadata)),
	}
	if s.Weights != nil {
		out.Weights = make(map[string]float64, len(s.Weights))
		for k, v := range s.Weights {
			out.Weights[k] = v
		}
	}
	if s.MaxRecords != nil {
		n := *s.MaxRecords
		out.MaxRecords = &n
	}
	return out
}

// Clone returns a deep copy of q (never nil).
func (q Query) Clone() Query {
	return Query(cloneMap(q))
}

// Keys returns the query keys in sorted order.
func (q Query) Keys() []string {
	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Has reports whether key is present with a non-empty value.
func (q Query) Has(key string) bool {
	v, ok := q[key]
	return ok && !IsEmpty(v)
}

// String returns the value at key when it is a string.
func (q Query) String(key string) string {
	s, _ := q[key].(string)
	return s
}

// Strings returns the value at key as a string list. A scalar string is
// returned as a one-element list.
func (q Query) Strings(key string) []string {
	return toStrings(q[key])
}

// Nested returns the map stored at key, or nil.
func (q Query) Nested(key string) map[string]any {
	m, _ := q[key].(map[string]any)
	return m
}

// SetNested writes parent[key] = value, creating parent when missing.
// Callers must own q (i.e. it came from Clone).
func (q Query) SetNested(parent, key string, value any) {
	m, ok := q[parent].(map[string]any)
	if !ok {
		m = map[string]any{}
		q[parent] = m
	}
	m[key] = value
}

// DeleteNested removes parent[key] and drops parent once empty.
func (q Query) DeleteNested(parent, key string) {
	deleteNested(map[string]any(q), parent, key)
}

// Nested returns the metadata map stored at key, or nil.
func (m Metadata) Nested(key string) map[string]any {
	n, _ := m[key].(map[string]any)
	return n
}

// SetNested writes parent[key] = value, creating parent when missing.
func (m Metadata) SetNested(parent, key string, value any) {
	n, ok := m[parent].(map[string]any)
	if !ok {
		n = map[string]any{}
		m[parent] = n
	}
	n[key] = value
}

// DeleteNested removes parent[key] and drops parent once empty.
func (m Metadata) DeleteNested(parent, key string) {
	deleteNested(map[string]any(m), parent, key)
}

// Bool returns the metadata flag at key.
func (m Metadata) Bool(key string) bool {
	b, _ := m[key].(bool)
	return b
}

func deleteNested(root map[string]any, parent, key string) {
	m, ok := root[parent].(map[string]any)
	if !ok {
		return
	}
	delete(m, key)
	if len(m) == 0 {
		delete(root, parent)
	}
}

// ============================================================================
// VALUE HELPERS
// ============================================================================

// IsEmpty reports whether v carries no filter value: nil, "", an empty list
// or an empty map.
func IsEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case []any:
		return len(t) == 0
	case []string:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	case map[string]string:
		return len(t) == 0
	}
	return false
}

func toStrings(v any) []string {
	switch t := v.(type) {
	case string:
		if t == "" {
			return nil
		}
		return []string{t}
	case []string:
		return append([]string(nil), t...)
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = CloneValue(v)
	}
	return out
}

// CloneValue deep-copies the JSON-shaped values a query or metadata map can
// hold. Scalars and unknown types are returned as-is.
func CloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = CloneValue(item)
		}
		return out
	case []string:
		return append([]string(nil), t...)
	case []float64:
		return append([]float64(nil), t...)
	case []int:
		return append([]int(nil), t...)
	case map[string]string:
		out := make(map[string]string, len(t))
		for k, s := range t {
			out[k] = s
		}
		return out
	case []map[string]any:
		out := make([]map[string]any, len(t))
		for i, item := range t {
			out[i] = cloneMap(item)
		}
		return out
	}
	return v
}
