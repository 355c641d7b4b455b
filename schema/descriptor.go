package schema

import (
	"github.com/spektr-org/widgetkit/widget"
)

// ============================================================================
// FILTER DESCRIPTOR: What the mutator consults for one filter key
// ============================================================================
// Descriptors are immutable once registered. The only behaviour they carry
// is KeyFunc: filters whose stored key depends on another filter's value
// resolve it here instead of at every call site.
// ============================================================================

// UI tabs a descriptor can live on.
const (
	TabFilters      = "filters"
	TabSettings     = "settings"
	TabAggregations = "aggregations"
	TabMetadata     = "metadata"
	TabWeights      = "weights"
)

// Issue management applications.
const (
	AppJira        = "jira"
	AppAzureDevOps = "azure_devops"
)

// Capabilities declare which edit modes a filter supports.
type Capabilities struct {
	Deletable        bool `json:"deletable"`
	PartialMatch     bool `json:"partial_match"`
	Excludable       bool `json:"excludable"`
	SupportsMultiple bool `json:"supports_multiple"`
}

// FilterDescriptor is one entry of a report's filter schema.
type FilterDescriptor struct {
	ID           string         `json:"id" validate:"required"`
	BEKey        string         `json:"be_key" validate:"required"`
	Label        string         `json:"label,omitempty"`
	Tab          string         `json:"tab" validate:"omitempty,oneof=filters settings aggregations metadata weights"`
	Capabilities Capabilities   `json:"capabilities"`
	DefaultValue any            `json:"default_value,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`

	// PartialKey is the partial_match sub-key when it differs from BEKey.
	PartialKey string `json:"partial_key,omitempty"`
	// CustomField values live under query.custom_fields.
	CustomField bool `json:"custom_field,omitempty"`
	// TimeRange filters keep a range choice under metadata.range_filter_choice.
	TimeRange  bool   `json:"time_range,omitempty"`
	RangeAlias string `json:"range_alias,omitempty"`
	// UpdateInWidgetMetadata routes writes to metadata instead of query.
	UpdateInWidgetMetadata bool `json:"update_in_widget_metadata,omitempty"`
	// Integration restricts the filter to one issue management application.
	Integration   string `json:"integration,omitempty" validate:"omitempty,oneof=jira azure_devops"`
	RequiredGroup string `json:"required_group,omitempty"`
	// Debounced edits (free text, labels, thresholds) are committed once per
	// debounce window instead of on every keystroke.
	Debounced bool `json:"debounced,omitempty"`
	// KeyFromAcross marks stat time filters stored under "<across>_at".
	KeyFromAcross bool `json:"key_from_across,omitempty"`

	// KeyFunc resolves the effective backend key from the current query.
	KeyFunc func(widget.Query) string `json:"-"`
}

// Key returns the backend key the filter is stored under for q.
func (d FilterDescriptor) Key(q widget.Query) string {
	if d.KeyFunc != nil {
		if k := d.KeyFunc(q); k != "" {
			return k
		}
	}
	return d.BEKey
}

// PartialMatchKey returns the key used under query.partial_match.
func (d FilterDescriptor) PartialMatchKey() string {
	if d.PartialKey != "" {
		return d.PartialKey
	}
	return d.BEKey
}

// RangeKey returns the metadata.range_filter_choice key for q.
func (d FilterDescriptor) RangeKey(q widget.Query) string {
	if d.RangeAlias != "" {
		return d.RangeAlias
	}
	return d.Key(q)
}

// IsDynamic reports whether the stored key depends on other filters.
func (d FilterDescriptor) IsDynamic() bool {
	return d.KeyFunc != nil
}

// AcrossTimeKey returns a KeyFunc mapping across "issue_resolved" to
// "issue_resolved_at". fallback is used while across is unset.
func AcrossTimeKey(fallback string) func(widget.Query) string {
	return func(q widget.Query) string {
		across := q.String(widget.KeyAcross)
		if across == "" {
			return fallback
		}
		return across + "_at"
	}
}

// ============================================================================
// DESCRIPTOR BUILDERS: used by the built-in catalog
// ============================================================================

func listFilter(id, beKey string) FilterDescriptor {
	return FilterDescriptor{
		ID:    id,
		BEKey: beKey,
		Tab:   TabFilters,
		Capabilities: Capabilities{
			Deletable:        true,
			PartialMatch:     true,
			Excludable:       true,
			SupportsMultiple: true,
		},
	}
}

func timeFilter(id, beKey string) FilterDescriptor {
	return FilterDescriptor{
		ID:           id,
		BEKey:        beKey,
		Tab:          TabFilters,
		TimeRange:    true,
		Capabilities: Capabilities{Deletable: true},
	}
}

func setting(id string, def any) FilterDescriptor {
	return FilterDescriptor{
		ID:           id,
		BEKey:        id,
		Tab:          TabSettings,
		DefaultValue: def,
	}
}

func customField(id, label string) FilterDescriptor {
	d := listFilter(id, id)
	d.Label = label
	d.CustomField = true
	return d
}

func (d FilterDescriptor) partial(key string) FilterDescriptor {
	d.PartialKey = key
	return d
}

func (d FilterDescriptor) only(app string) FilterDescriptor {
	d.Integration = app
	return d
}

func (d FilterDescriptor) required(group string) FilterDescriptor {
	d.RequiredGroup = group
	return d
}

func (d FilterDescriptor) multiple() FilterDescriptor {
	d.Capabilities.SupportsMultiple = true
	return d
}

func (d FilterDescriptor) debounced() FilterDescriptor {
	d.Debounced = true
	return d
}

func (d FilterDescriptor) inMetadata() FilterDescriptor {
	d.UpdateInWidgetMetadata = true
	d.Tab = TabMetadata
	return d
}

func (d FilterDescriptor) label(l string) FilterDescriptor {
	d.Label = l
	return d
}
