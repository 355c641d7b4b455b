package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/spektr-org/widgetkit/schema"
	"github.com/spektr-org/widgetkit/widget"
)

// fullyPopulated writes key into every place a filter can leave a trace.
func fullyPopulated(reportType string, d schema.FilterDescriptor, key string) widget.State {
	v := []any{"x"}
	return stateOf(reportType, widget.Query{
		key:                    v,
		widget.KeyExclude:      map[string]any{key: v, widget.KeyCustomFields: map[string]any{key: v}},
		widget.KeyPartialMatch: map[string]any{d.PartialMatchKey(): map[string]any{PartialBegins: "x"}},
		widget.KeyCustomFields: map[string]any{key: v},
	}, widget.Metadata{
		widget.MetaRangeFilterChoice: map[string]any{d.RangeKey(widget.Query{}): map[string]any{"type": "relative"}},
		widget.MetaDashboardTimeKeys: map[string]any{key: map[string]any{"use_dashboard_time": true}},
	})
}

func TestRemoveFilterCompleteness(t *testing.T) {
	e := newTestEngine(t)
	reg := e.Registry()
	for _, reportType := range reg.Types() {
		for _, d := range reg.GetConfig(reportType) {
			if d.IsDynamic() || d.UpdateInWidgetMetadata {
				continue
			}
			if !d.Capabilities.PartialMatch && !d.Capabilities.Excludable && !d.CustomField && !d.TimeRange {
				continue
			}
			key := d.BEKey
			s := fullyPopulated(reportType, d, key)

			out := e.RemoveFilter(s, d.ID)

			q := out.Query
			assert.NotContains(t, q, key, "%s/%s", reportType, d.ID)
			assert.NotContains(t, q, widget.KeyExclude, "%s/%s", reportType, d.ID)
			assert.NotContains(t, q, widget.KeyPartialMatch, "%s/%s", reportType, d.ID)
			assert.NotContains(t, q, widget.KeyCustomFields, "%s/%s", reportType, d.ID)
			assert.NotContains(t, out.Metadata, widget.MetaRangeFilterChoice, "%s/%s", reportType, d.ID)
			assert.NotContains(t, out.Metadata, widget.MetaDashboardTimeKeys, "%s/%s", reportType, d.ID)
		}
	}
}

func TestRemoveFilterKeepsOtherFilters(t *testing.T) {
	e := newTestEngine(t)
	s := stateOf(schema.TicketsReport, widget.Query{
		"assignee":             []any{"u1"},
		"priorities":           []any{"P1"},
		widget.KeyExclude:      map[string]any{"assignee": []any{"u2"}, "statuses": []any{"Done"}},
		widget.KeyPartialMatch: map[string]any{"assignee": map[string]any{PartialBegins: "a"}, "project": map[string]any{PartialBegins: "W"}},
	}, nil)

	out := e.RemoveFilter(s, "assignees")

	assert.NotContains(t, out.Query, "assignee")
	assert.Equal(t, []any{"P1"}, out.Query["priorities"])
	assert.Equal(t, map[string]any{"statuses": []any{"Done"}}, out.Query.Nested(widget.KeyExclude))
	assert.Equal(t, map[string]any{"project": map[string]any{PartialBegins: "W"}}, out.Query.Nested(widget.KeyPartialMatch))
	assert.Contains(t, s.Query, "assignee", "input must not change")
}

func TestRemoveStatTimeFilterUsesEffectiveKey(t *testing.T) {
	e := newTestEngine(t)
	s := stateOf(schema.TicketsReportStat, widget.Query{
		widget.KeyAcross:    "issue_resolved",
		"issue_resolved_at": widget.TimeRange{GT: "1", LT: "2"}.Value(),
	}, widget.Metadata{widget.MetaRangeFilterChoice: map[string]any{
		"issue_resolved_at": map[string]any{"type": "absolute"},
	}})

	out := e.RemoveFilter(s, "time_period")

	assert.NotContains(t, out.Query, "issue_resolved_at")
	assert.NotContains(t, out.Metadata, widget.MetaRangeFilterChoice)
	assert.Equal(t, "issue_resolved", out.Query[widget.KeyAcross])
}

func TestRemoveUnknownCustomField(t *testing.T) {
	e := newTestEngine(t)
	s := stateOf(schema.TicketsReport, widget.Query{
		widget.KeyCustomFields: map[string]any{"customfield_99999": []any{"x"}, "customfield_10010": []any{"y"}},
		widget.KeyPartialMatch: map[string]any{"cf_partial": map[string]any{PartialContains: "x"}},
	}, nil)

	out := e.RemoveFilter(s, "customfield_99999", RemoveCustomField(), RemovePartialKey("cf_partial"))

	assert.Equal(t, map[string]any{"customfield_10010": []any{"y"}}, out.Query.Nested(widget.KeyCustomFields))
	assert.NotContains(t, out.Query, widget.KeyPartialMatch)
}

func TestRemoveMetadataOnlyKey(t *testing.T) {
	e := newTestEngine(t)
	s := stateOf(schema.SprintMetricsTrend, nil, widget.Metadata{widget.MetaLastSprint: true})

	out := e.RemoveFilter(s, widget.MetaLastSprint)

	assert.NotContains(t, out.Metadata, widget.MetaLastSprint)
}

func TestRemoveFilters(t *testing.T) {
	e := newTestEngine(t)
	s := stateOf(schema.TicketsReport, widget.Query{
		"assignee": []any{"u1"},
		"projects": []any{"WEB"},
		"labels":   []any{"ui"},
	}, nil)

	out := e.RemoveFilters(s, "assignees", "projects")

	assert.Equal(t, widget.Query{"labels": []any{"ui"}}, out.Query)
}
