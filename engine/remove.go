package engine

import (
	"github.com/spektr-org/widgetkit/schema"
	"github.com/spektr-org/widgetkit/widget"
)

// ============================================================================
// REMOVAL: un-set a filter and everything derived from it
// ============================================================================
// After removal nothing in query or metadata is addressable only through the
// removed key: not the direct value, the exclude entry, the partial-match
// entry, the custom-field entry (plain or excluded), the range choice nor
// the dashboard-time default. Entries are cleared whatever the descriptor's
// capabilities say; a value written before a catalog change still goes.
// ============================================================================

// RemoveFilter removes key and all of its derived sub-keys from state.
func (e *Engine) RemoveFilter(state widget.State, key string, opts ...RemoveOption) widget.State {
	o := applyRemoveOptions(opts)
	next := state.Clone()
	e.removeInto(&next, key, o)
	if e.metrics != nil {
		e.metrics.ObserveEdit(state.Type, "remove")
	}
	return next
}

// RemoveFilters removes several keys in one pass.
func (e *Engine) RemoveFilters(state widget.State, keys ...string) widget.State {
	next := state.Clone()
	for _, k := range keys {
		e.removeInto(&next, k, removeOptions{})
	}
	if e.metrics != nil && len(keys) > 0 {
		e.metrics.ObserveEdit(state.Type, "remove")
	}
	return next
}

func (e *Engine) removeInto(next *widget.State, key string, o removeOptions) {
	d, ok := e.reg.Descriptor(next.Type, key)
	if !ok {
		be := e.reg.ResolveKey(next.Type, key)
		d = schema.FilterDescriptor{ID: key, BEKey: be, CustomField: o.customField}
	}
	if o.customField {
		d.CustomField = true
	}
	if o.partialKey != "" {
		d.PartialKey = o.partialKey
	}
	// Stat time filters are stored under a key derived from across.
	effective := d.Key(next.Query)
	clearEntries(next, d, effective)
	if effective != key && !d.IsDynamic() {
		clearEntries(next, d, key)
	}
}

// clearEntries deletes every entry addressable through key. It reports
// whether anything was removed.
func clearEntries(next *widget.State, d schema.FilterDescriptor, key string) bool {
	q, m := next.Query, next.Metadata
	before := len(q) + len(m) + nestedCount(q, m)

	if d.UpdateInWidgetMetadata {
		delete(m, key)
	}
	delete(q, key)
	q.DeleteNested(widget.KeyExclude, key)
	deleteExcludeCustom(q, key)
	q.DeleteNested(widget.KeyCustomFields, key)

	q.DeleteNested(widget.KeyPartialMatch, key)
	if pk := d.PartialKey; pk != "" {
		q.DeleteNested(widget.KeyPartialMatch, pk)
	}

	m.DeleteNested(widget.MetaRangeFilterChoice, key)
	if d.RangeAlias != "" {
		m.DeleteNested(widget.MetaRangeFilterChoice, d.RangeAlias)
	}
	m.DeleteNested(widget.MetaDashboardTimeKeys, key)

	return len(q)+len(m)+nestedCount(q, m) != before
}

// nestedCount sums the sizes of the sub-maps clearEntries touches.
func nestedCount(q widget.Query, m widget.Metadata) int {
	n := len(q.Nested(widget.KeyExclude)) +
		len(q.Nested(widget.KeyPartialMatch)) +
		len(q.Nested(widget.KeyCustomFields)) +
		len(m.Nested(widget.MetaRangeFilterChoice)) +
		len(m.Nested(widget.MetaDashboardTimeKeys))
	if ex := q.Nested(widget.KeyExclude); ex != nil {
		cf, _ := ex[widget.KeyCustomFields].(map[string]any)
		n += len(cf)
	}
	return n
}
