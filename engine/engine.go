package engine

import (
	"log/slog"

	"github.com/spektr-org/widgetkit/observability"
	"github.com/spektr-org/widgetkit/schema"
	"github.com/spektr-org/widgetkit/widget"
)

// ============================================================================
// ENGINE: filter resolution and query building
// ============================================================================
// Every operation takes a widget.State and returns a new one; inputs are
// never written to. The Engine only carries the registry it resolves keys
// against plus logging and metrics, so one Engine serves any number of
// editing sessions.
//
// Edit pipeline (ApplyFilterEdit):
//   1. Resolve the edited key to its backend key (key map / KeyFunc)
//   2. Per-report cascades invalidate dependent state
//   3. Cross-cutting cascades
//   4. Base write (query, exclude, partial_match, custom_fields or metadata)
//   5. Extra metadata merge
// ============================================================================

// Engine applies edits to widget states.
type Engine struct {
	reg      *schema.Registry
	cascades cascadeTable
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// New creates an Engine resolving filters against reg.
func New(reg *schema.Registry, opts ...Option) *Engine {
	e := &Engine{
		reg:      reg,
		cascades: defaultCascades(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Registry returns the registry the engine resolves against.
func (e *Engine) Registry() *schema.Registry {
	return e.reg
}

// Result is the outcome of an edit.
type Result struct {
	State widget.State
	// ChangedReportType is set when a cascade moved the widget to another
	// report type. The state container uses it to reload report metadata.
	ChangedReportType bool
	// Cascades names the rules that fired, in order.
	Cascades []string
}

// Edit is one entry of a bulk edit.
type Edit struct {
	Key     string
	Value   any
	Options []EditOption
}

// ============================================================================
// FILTER EDITS
// ============================================================================

// ApplyFilterEdit applies one user edit to state.
func (e *Engine) ApplyFilterEdit(state widget.State, key string, value any, opts ...EditOption) Result {
	o := applyEditOptions(opts)
	rep, _ := e.reg.Lookup(state.Type)
	desc, hasDesc := rep.Descriptor(key)

	beKey := e.reg.ResolveKey(state.Type, key)
	if hasDesc {
		beKey = desc.Key(state.Query)
	}

	next := state.Clone()
	ch := &Change{
		Report:        rep,
		Descriptor:    desc,
		HasDescriptor: hasDesc,
		Key:           beKey,
		Value:         widget.CloneValue(value),
		Prev:          state,
		Next:          &next,
	}
	// Cascades must see the value that will be written.
	if hasDesc && fallsBackToDefault(desc, ch.Value, o) {
		ch.Value = widget.CloneValue(desc.DefaultValue)
	}

	var fired []string
	for _, rule := range e.cascades.lookup(rep, beKey, key) {
		if rule.Apply(ch) {
			fired = append(fired, rule.Name)
		}
	}
	for _, cc := range e.cascades.crossCutting {
		if cc.key != beKey {
			continue
		}
		if cc.rule.Apply(ch) {
			fired = append(fired, cc.rule.Name)
		}
	}
	for _, name := range fired {
		e.logger.Debug("cascade applied", "widget", state.ID, "report", state.Type, "key", beKey, "rule", name)
	}

	if !ch.SkipWrite {
		if hasDesc && desc.UpdateInWidgetMetadata {
			writeMetadata(&next, beKey, ch.Value, desc.Capabilities.Deletable)
		} else {
			custom := o.customField || (hasDesc && desc.CustomField)
			writeFilter(&next, ch, custom, o)
		}
	}

	for k, v := range o.metadata {
		next.Metadata[k] = widget.CloneValue(v)
	}

	if e.metrics != nil {
		e.metrics.ObserveEdit(state.Type, editKind(o, hasDesc && desc.UpdateInWidgetMetadata))
		for _, name := range fired {
			e.metrics.ObserveCascade(name)
		}
	}

	return Result{State: next, ChangedReportType: ch.ChangedReportType, Cascades: fired}
}

// ApplyBulkEdit applies edits in order and returns the final state.
func (e *Engine) ApplyBulkEdit(state widget.State, edits []Edit) Result {
	out := Result{State: state}
	for _, ed := range edits {
		r := e.ApplyFilterEdit(out.State, ed.Key, ed.Value, ed.Options...)
		out.State = r.State
		out.ChangedReportType = out.ChangedReportType || r.ChangedReportType
		out.Cascades = append(out.Cascades, r.Cascades...)
	}
	return out
}

// ApplyTimeRangeEdit sets a time filter together with the range choice that
// produced it. An explicit range replaces any dashboard-level default.
func (e *Engine) ApplyTimeRangeEdit(state widget.State, key string, r widget.TimeRange, choice widget.RangeChoice) Result {
	res := e.ApplyFilterEdit(state, key, r.Value())
	alias, beKey := e.rangeKeys(res.State, key)
	res.State.Metadata.SetNested(widget.MetaRangeFilterChoice, alias, choice.Value())
	res.State.Metadata.DeleteNested(widget.MetaDashboardTimeKeys, beKey)
	return res
}

// UseDashboardTime makes a time filter follow the dashboard time range.
// Turning it on drops the widget's own range for that key.
func (e *Engine) UseDashboardTime(state widget.State, key string, use bool) Result {
	next := state.Clone()
	alias, beKey := e.rangeKeys(next, key)
	if use {
		delete(next.Query, beKey)
		next.Metadata.DeleteNested(widget.MetaRangeFilterChoice, alias)
		next.Metadata.SetNested(widget.MetaDashboardTimeKeys, beKey, map[string]any{"use_dashboard_time": true})
	} else {
		next.Metadata.DeleteNested(widget.MetaDashboardTimeKeys, beKey)
	}
	return Result{State: next}
}

// ApplyWeightEdit sets one weight.
func (e *Engine) ApplyWeightEdit(state widget.State, key string, value float64) Result {
	next := state.Clone()
	if next.Weights == nil {
		next.Weights = map[string]float64{}
	}
	next.Weights[key] = value
	return Result{State: next}
}

// ApplyMaxRecords sets the record limit; n <= 0 clears it.
func (e *Engine) ApplyMaxRecords(state widget.State, n int) Result {
	next := state.Clone()
	if n <= 0 {
		next.MaxRecords = nil
	} else {
		next.MaxRecords = &n
	}
	return Result{State: next}
}

// rangeKeys returns the range-choice alias and backend key for a time filter.
func (e *Engine) rangeKeys(state widget.State, key string) (alias, beKey string) {
	if d, ok := e.reg.Descriptor(state.Type, key); ok {
		return d.RangeKey(state.Query), d.Key(state.Query)
	}
	be := e.reg.ResolveKey(state.Type, key)
	return be, be
}

func editKind(o editOptions, metadata bool) string {
	switch {
	case metadata:
		return "metadata"
	case o.partial != "":
		return "partial"
	case o.exclude:
		return "exclude"
	case o.customField:
		return "custom_field"
	}
	return "value"
}
