package engine

import (
	"github.com/spektr-org/widgetkit/schema"
	"github.com/spektr-org/widgetkit/widget"
)

// ============================================================================
// BASE WRITE: one filter lives in exactly one mode
// ============================================================================
// A filter value is either a direct match, an exclusion or a partial match.
// Writing any mode clears the other two so the query never carries two
// contradictory entries for the same key.
// ============================================================================

func writeFilter(next *widget.State, ch *Change, custom bool, o editOptions) {
	q := next.Query
	key := ch.Key
	partialKey := key
	if ch.HasDescriptor {
		partialKey = ch.Descriptor.PartialMatchKey()
	}
	caps := ch.Descriptor.Capabilities
	empty := widget.IsEmpty(ch.Value)

	switch {
	case o.partial != "" && (!ch.HasDescriptor || caps.PartialMatch):
		clearDirect(q, key, custom)
		clearExclude(q, key, custom)
		if empty {
			q.DeleteNested(widget.KeyPartialMatch, partialKey)
			return
		}
		q.SetNested(widget.KeyPartialMatch, partialKey, map[string]any{o.partial: ch.Value})

	case o.exclude && (!ch.HasDescriptor || caps.Excludable):
		clearDirect(q, key, custom)
		q.DeleteNested(widget.KeyPartialMatch, partialKey)
		if empty {
			clearExclude(q, key, custom)
			return
		}
		if custom {
			setExcludeCustom(q, key, ch.Value)
		} else {
			q.SetNested(widget.KeyExclude, key, ch.Value)
		}

	default:
		clearExclude(q, key, custom)
		q.DeleteNested(widget.KeyPartialMatch, partialKey)
		value := ch.Value
		if empty {
			// Non-deletable filters fall back to their default.
			if !ch.HasDescriptor || caps.Deletable || ch.Descriptor.DefaultValue == nil {
				clearDirect(q, key, custom)
				return
			}
			value = widget.CloneValue(ch.Descriptor.DefaultValue)
		}
		if custom {
			q.SetNested(widget.KeyCustomFields, key, value)
		} else {
			q[key] = value
		}
	}
}

// fallsBackToDefault reports whether a direct write of value for d stores
// d's default instead: the value is empty and d cannot be deleted.
func fallsBackToDefault(d schema.FilterDescriptor, value any, o editOptions) bool {
	if !widget.IsEmpty(value) || d.Capabilities.Deletable || d.DefaultValue == nil || d.UpdateInWidgetMetadata {
		return false
	}
	partial := o.partial != "" && d.Capabilities.PartialMatch
	exclude := o.exclude && d.Capabilities.Excludable
	return !partial && !exclude
}

func writeMetadata(next *widget.State, key string, value any, deletable bool) {
	if widget.IsEmpty(value) && deletable {
		delete(next.Metadata, key)
		return
	}
	next.Metadata[key] = value
}

func clearDirect(q widget.Query, key string, custom bool) {
	if custom {
		q.DeleteNested(widget.KeyCustomFields, key)
		return
	}
	delete(q, key)
}

func clearExclude(q widget.Query, key string, custom bool) {
	if custom {
		deleteExcludeCustom(q, key)
		return
	}
	q.DeleteNested(widget.KeyExclude, key)
}

// setExcludeCustom writes exclude.custom_fields[key].
func setExcludeCustom(q widget.Query, key string, value any) {
	ex, ok := q[widget.KeyExclude].(map[string]any)
	if !ok {
		ex = map[string]any{}
		q[widget.KeyExclude] = ex
	}
	cf, ok := ex[widget.KeyCustomFields].(map[string]any)
	if !ok {
		cf = map[string]any{}
		ex[widget.KeyCustomFields] = cf
	}
	cf[key] = value
}

// deleteExcludeCustom removes exclude.custom_fields[key], dropping emptied
// parents.
func deleteExcludeCustom(q widget.Query, key string) {
	ex, ok := q[widget.KeyExclude].(map[string]any)
	if !ok {
		return
	}
	cf, ok := ex[widget.KeyCustomFields].(map[string]any)
	if !ok {
		return
	}
	delete(cf, key)
	if len(cf) == 0 {
		delete(ex, widget.KeyCustomFields)
	}
	if len(ex) == 0 {
		delete(q, widget.KeyExclude)
	}
}
