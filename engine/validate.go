package engine

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spektr-org/widgetkit/schema"
	"github.com/spektr-org/widgetkit/widget"
)

// ============================================================================
// VALIDATION: advisory checks run after every mutation
// ============================================================================
// Failures are data, never errors. Editing continues regardless; only an
// explicit save is refused while a report is invalid.
// ============================================================================

// Validation is the outcome of one rule for one key or group.
type Validation struct {
	Key     string `json:"key"`
	Valid   bool   `json:"valid"`
	Message string `json:"message,omitempty"`
}

func valid(key string) Validation { return Validation{Key: key, Valid: true} }

func invalid(key, format string, args ...any) Validation {
	return Validation{Key: key, Message: fmt.Sprintf(format, args...)}
}

// ValidationReport collects the results of Validate.
type ValidationReport struct {
	Results []Validation `json:"results"`
}

// Valid reports whether every rule passed.
func (r ValidationReport) Valid() bool {
	for _, v := range r.Results {
		if !v.Valid {
			return false
		}
	}
	return true
}

// Failures returns the failed results.
func (r ValidationReport) Failures() []Validation {
	var out []Validation
	for _, v := range r.Results {
		if !v.Valid {
			out = append(out, v)
		}
	}
	return out
}

// Keys used for results that are not tied to a single filter.
const (
	ValidationWeights    = "weights"
	ValidationMetricSort = "metric"
)

// MaxWeight is the ceiling for the sum of a widget's weights.
const MaxWeight = 100

// ValidateWeights checks that the weights sum to at most MaxWeight.
func ValidateWeights(weights map[string]float64) Validation {
	total := 0.0
	for _, w := range weights {
		total += w
	}
	if total > MaxWeight {
		return invalid(ValidationWeights, "total weight %s exceeds %d by %s",
			formatNumber(total), MaxWeight, formatNumber(total-MaxWeight))
	}
	return valid(ValidationWeights)
}

// ValidateRequiredOneOf checks that exactly one member of each required
// group of reportType is set, directly or through a dashboard default.
func (e *Engine) ValidateRequiredOneOf(reportType string, q widget.Query, m widget.Metadata) []Validation {
	groups := e.reg.Groups(reportType)
	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	sort.Strings(names)

	var out []Validation
	for _, name := range names {
		members := groups[name]
		ids := make([]string, len(members))
		present := 0
		for i, d := range members {
			ids[i] = d.ID
			if schema.HasGroupMember(d, q, m) {
				present++
			}
		}
		switch {
		case present == 0:
			out = append(out, invalid(name, "one of %s is required", strings.Join(ids, ", ")))
		case present > 1:
			out = append(out, invalid(name, "only one of %s may be set", strings.Join(ids, ", ")))
		default:
			out = append(out, valid(name))
		}
	}
	return out
}

// Value-based x-axis sorts.
var valueSorts = []string{"value_high-low", "value_low-high"}

// ValidateMetricSort rejects several metrics combined with a value sort.
func ValidateMetricSort(q widget.Query) Validation {
	if len(q.Strings(widget.KeyMetric)) > 1 && contains(valueSorts, q.String(widget.KeySortXAxis)) {
		return invalid(ValidationMetricSort, "multiple metrics cannot be sorted by value (%s)", q.String(widget.KeySortXAxis))
	}
	return valid(ValidationMetricSort)
}

// ValidatePartial checks a partial-match value: it must be non-blank text.
func ValidatePartial(key string, value any) Validation {
	s, isString := value.(string)
	if !isString || strings.TrimSpace(s) == "" {
		return invalid(key, "partial match on %s needs a non-empty text value", key)
	}
	return valid(key)
}

// Validate runs every rule that applies to state.
func (e *Engine) Validate(state widget.State) ValidationReport {
	var r ValidationReport
	rep, _ := e.reg.Lookup(state.Type)
	if len(rep.WeightKeys) > 0 || len(state.Weights) > 0 {
		r.Results = append(r.Results, ValidateWeights(state.Weights))
	}
	r.Results = append(r.Results, e.ValidateRequiredOneOf(state.Type, state.Query, state.Metadata)...)
	r.Results = append(r.Results, ValidateMetricSort(state.Query))

	partials := state.Query.Nested(widget.KeyPartialMatch)
	keys := make([]string, 0, len(partials))
	for k := range partials {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		modes, _ := partials[k].(map[string]any)
		if len(modes) == 0 {
			r.Results = append(r.Results, ValidatePartial(k, nil))
			continue
		}
		for _, v := range modes {
			r.Results = append(r.Results, ValidatePartial(k, v))
		}
	}

	if e.metrics != nil {
		for _, f := range r.Failures() {
			e.metrics.ObserveValidationFailure(state.Type, f.Key)
		}
	}
	return r
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
