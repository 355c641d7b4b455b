package engine

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spektr-org/widgetkit/schema"
	"github.com/spektr-org/widgetkit/widget"
)

// ============================================================================
// TEST HELPERS
// ============================================================================

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	return New(schema.Default())
}

func stateOf(reportType string, q widget.Query, m widget.Metadata) widget.State {
	s := widget.New(reportType)
	s.ID = "w-1"
	for k, v := range q {
		s.Query[k] = v
	}
	for k, v := range m {
		s.Metadata[k] = v
	}
	return s
}

// ============================================================================
// BASE WRITE
// ============================================================================

func TestApplyFilterEditResolvesKeyMap(t *testing.T) {
	e := newTestEngine(t)
	s := stateOf(schema.TicketsReport, nil, nil)

	r := e.ApplyFilterEdit(s, "assignees", []any{"u1"})

	assert.Equal(t, []any{"u1"}, r.State.Query["assignee"])
	assert.NotContains(t, r.State.Query, "assignees")
	assert.False(t, r.ChangedReportType)
}

func TestApplyFilterEditDoesNotMutateInput(t *testing.T) {
	e := newTestEngine(t)
	s := stateOf(schema.TicketsReport, widget.Query{
		"assignee": []any{"u1"},
		"stacks":   []any{"priority"},
	}, widget.Metadata{"filter_tab_order": map[string]any{"assignee": float64(1)}})
	before := s.Clone()

	e.ApplyFilterEdit(s, "assignees", []any{"u2"}, Exclude())
	e.ApplyFilterEdit(s, widget.KeyVisualization, "donut_chart")

	assert.Empty(t, cmp.Diff(before, s))
}

func TestFilterModesAreExclusive(t *testing.T) {
	e := newTestEngine(t)
	s := stateOf(schema.TicketsReport, nil, nil)

	s = e.ApplyFilterEdit(s, "assignees", []any{"u1"}).State
	require.Contains(t, s.Query, "assignee")

	s = e.ApplyFilterEdit(s, "assignees", []any{"u1"}, Exclude()).State
	assert.NotContains(t, s.Query, "assignee")
	assert.Equal(t, []any{"u1"}, s.Query.Nested(widget.KeyExclude)["assignee"])

	s = e.ApplyFilterEdit(s, "assignees", "jo", Partial(PartialBegins)).State
	assert.NotContains(t, s.Query, widget.KeyExclude)
	assert.Equal(t, map[string]any{PartialBegins: "jo"}, s.Query.Nested(widget.KeyPartialMatch)["assignee"])

	s = e.ApplyFilterEdit(s, "assignees", []any{"u2"}).State
	assert.NotContains(t, s.Query, widget.KeyPartialMatch)
	assert.Equal(t, []any{"u2"}, s.Query["assignee"])
}

func TestPartialUsesDescriptorPartialKey(t *testing.T) {
	e := newTestEngine(t)
	s := stateOf(schema.TicketsReport, nil, nil)

	s = e.ApplyFilterEdit(s, "projects", "WEB", Partial(PartialContains)).State

	assert.Equal(t, map[string]any{PartialContains: "WEB"}, s.Query.Nested(widget.KeyPartialMatch)["project"])
}

func TestCustomFieldWrites(t *testing.T) {
	e := newTestEngine(t)
	s := stateOf(schema.TicketsReport, nil, nil)

	s = e.ApplyFilterEdit(s, "customfield_10010", []any{"Platform"}).State
	assert.Equal(t, []any{"Platform"}, s.Query.Nested(widget.KeyCustomFields)["customfield_10010"])
	assert.NotContains(t, s.Query, "customfield_10010")

	s = e.ApplyFilterEdit(s, "customfield_10010", []any{"Platform"}, Exclude()).State
	assert.NotContains(t, s.Query, widget.KeyCustomFields)
	ex := s.Query.Nested(widget.KeyExclude)
	require.NotNil(t, ex)
	assert.Equal(t, map[string]any{"customfield_10010": []any{"Platform"}}, ex[widget.KeyCustomFields])
}

func TestUnknownCustomFieldOption(t *testing.T) {
	e := newTestEngine(t)
	s := stateOf(schema.TicketsReport, nil, nil)

	s = e.ApplyFilterEdit(s, "customfield_99999", []any{"x"}, AsCustomField()).State

	assert.Equal(t, []any{"x"}, s.Query.Nested(widget.KeyCustomFields)["customfield_99999"])
}

func TestEmptyValueDeletesOrFallsBackToDefault(t *testing.T) {
	e := newTestEngine(t)
	s := stateOf(schema.TicketsReport, widget.Query{
		"assignee":      []any{"u1"},
		"visualization": "line_chart",
		"stacks":        []any{"priority"},
	}, nil)

	s = e.ApplyFilterEdit(s, "assignees", []any{}).State
	s = e.ApplyFilterEdit(s, widget.KeyVisualization, "").State
	s = e.ApplyFilterEdit(s, widget.KeyStacks, nil).State

	assert.NotContains(t, s.Query, "assignee")
	assert.NotContains(t, s.Query, widget.KeyStacks)
	assert.Equal(t, "bar_chart", s.Query[widget.KeyVisualization])
}

func TestUnknownReportTypeUsesIdentityKeys(t *testing.T) {
	e := newTestEngine(t)
	s := stateOf("legacy_report", nil, nil)

	r := e.ApplyFilterEdit(s, "assignees", []any{"u1"})

	assert.Equal(t, []any{"u1"}, r.State.Query["assignees"])
	assert.Empty(t, r.Cascades)
}

func TestMetadataOnlyKey(t *testing.T) {
	e := newTestEngine(t)
	s := stateOf(schema.TableReport, nil, nil)

	s = e.ApplyFilterEdit(s, "table_id", "tbl-1").State

	assert.Equal(t, "tbl-1", s.Metadata["table_id"])
	assert.NotContains(t, s.Query, "table_id")
}

func TestExtraMetadataMergedAtomically(t *testing.T) {
	e := newTestEngine(t)
	s := stateOf(schema.TicketsReport, nil, nil)

	s = e.ApplyFilterEdit(s, "assignees", []any{"u1"},
		WithExtraMetadata(map[string]any{"assignee_label": "Alice"})).State

	assert.Equal(t, "Alice", s.Metadata["assignee_label"])
	assert.Equal(t, []any{"u1"}, s.Query["assignee"])
}

// ============================================================================
// CASCADES
// ============================================================================

func TestAcrossIntervalSplit(t *testing.T) {
	e := newTestEngine(t)
	s := stateOf(schema.TicketsReport, widget.Query{
		widget.KeyAcross:      "assignee",
		"issue_resolved_week": true,
	}, nil)

	r := e.ApplyFilterEdit(s, widget.KeyAcross, "issue_resolved_week")

	assert.Equal(t, "issue_resolved", r.State.Query[widget.KeyAcross])
	assert.Equal(t, "week", r.State.Query[widget.KeyInterval])
	assert.NotContains(t, r.State.Query, "issue_resolved_week")
	assert.Contains(t, r.Cascades, "split_across_interval")
}

func TestAcrossIntervalSplitOnLeadTime(t *testing.T) {
	e := newTestEngine(t)
	s := stateOf(schema.LeadTimeByStageReport, nil, nil)

	s = e.ApplyFilterEdit(s, widget.KeyAcross, "issue_resolved_quarter").State

	assert.Equal(t, "issue_resolved", s.Query[widget.KeyAcross])
	assert.Equal(t, "quarter", s.Query[widget.KeyInterval])
}

func TestNonTimeAcrossDropsInterval(t *testing.T) {
	e := newTestEngine(t)
	s := stateOf(schema.TicketsReport, widget.Query{
		widget.KeyAcross:   "issue_created",
		widget.KeyInterval: "month",
	}, nil)

	s = e.ApplyFilterEdit(s, widget.KeyAcross, "priority").State
	assert.NotContains(t, s.Query, widget.KeyInterval)

	// A bare time dimension keeps its interval.
	s = e.ApplyFilterEdit(s, widget.KeyAcross, "issue_created_month").State
	s = e.ApplyFilterEdit(s, widget.KeyAcross, "issue_updated").State
	assert.Equal(t, "month", s.Query[widget.KeyInterval])
}

func TestClearingAcrossWritesDefaultAndDropsInterval(t *testing.T) {
	e := newTestEngine(t)
	s := stateOf(schema.TicketsReport, widget.Query{
		widget.KeyAcross:   "issue_resolved",
		widget.KeyInterval: "week",
	}, nil)

	r := e.ApplyFilterEdit(s, widget.KeyAcross, nil)

	assert.Equal(t, widget.Query{widget.KeyAcross: "assignee"}, r.State.Query)
}

func TestAcrossSuffixWithoutTimeFilterIsNotSplit(t *testing.T) {
	e := newTestEngine(t)
	s := stateOf(schema.TicketsReport, nil, nil)

	s = e.ApplyFilterEdit(s, widget.KeyAcross, "fix_version_day").State

	assert.Equal(t, "fix_version_day", s.Query[widget.KeyAcross])
}

func TestTicketsTrendAcrossDropsStacks(t *testing.T) {
	e := newTestEngine(t)
	s := stateOf(schema.TicketsReport, widget.Query{widget.KeyStacks: []any{"priority"}}, nil)

	s = e.ApplyFilterEdit(s, widget.KeyAcross, "trend").State

	assert.NotContains(t, s.Query, widget.KeyStacks)
}

func TestSCMAcrossRulesStayPerReport(t *testing.T) {
	e := newTestEngine(t)
	q := widget.Query{
		widget.KeyStacks:   []any{"author"},
		widget.KeyInterval: "week",
	}

	commits := e.ApplyFilterEdit(stateOf(schema.SCMCommitsReport, q, nil), widget.KeyAcross, "code_change").State
	assert.NotContains(t, commits.Query, widget.KeyStacks)
	assert.Equal(t, "week", commits.Query[widget.KeyInterval])

	prs := e.ApplyFilterEdit(stateOf(schema.SCMPRsReport, q, nil), widget.KeyAcross, "repo_id").State
	assert.NotContains(t, prs.Query, widget.KeyInterval)
	assert.Equal(t, []any{"author"}, prs.Query[widget.KeyStacks])

	prsTime := e.ApplyFilterEdit(stateOf(schema.SCMPRsReport, q, nil), widget.KeyAcross, "pr_created").State
	assert.Equal(t, "week", prsTime.Query[widget.KeyInterval])
}

func TestIssueManagementSystemSwitch(t *testing.T) {
	e := newTestEngine(t)
	s := stateOf(schema.EffortInvestmentTrendReport, widget.Query{
		widget.KeyIssueManagementSystem: schema.AppJira,
		"projects":                      []any{"WEB"},
		"issue_types":                   []any{"Bug"},
		"issue_resolved_at":             widget.TimeRange{GT: "1", LT: "2"}.Value(),
		"committed_at":                  widget.TimeRange{GT: "1", LT: "2"}.Value(),
		widget.KeyCustomFields:          map[string]any{"customfield_10010": []any{"Platform"}},
		widget.KeyPartialMatch:          map[string]any{"project": map[string]any{PartialBegins: "WE"}},
		widget.KeyExclude:               map[string]any{"issue_types": []any{"Epic"}},
	}, widget.Metadata{
		widget.MetaFilterTabOrder: map[string]any{"projects": float64(0)},
		widget.MetaRangeFilterChoice: map[string]any{
			"issue_resolved_at": map[string]any{"type": "relative"},
		},
	})

	r := e.ApplyFilterEdit(s, widget.KeyIssueManagementSystem, schema.AppAzureDevOps)

	require.True(t, r.ChangedReportType)
	assert.Equal(t, schema.AzureEffortInvestmentTrendReport, r.State.Type)
	assert.Equal(t, schema.AppAzureDevOps, r.State.Query[widget.KeyIssueManagementSystem])
	for _, k := range []string{"projects", "issue_types", "issue_resolved_at", widget.KeyCustomFields, widget.KeyPartialMatch, widget.KeyExclude} {
		assert.NotContains(t, r.State.Query, k)
	}
	assert.Contains(t, r.State.Query, "committed_at")
	assert.NotContains(t, r.State.Metadata, widget.MetaFilterTabOrder)
	assert.NotContains(t, r.State.Metadata, widget.MetaRangeFilterChoice)

	again := e.ApplyFilterEdit(r.State, widget.KeyIssueManagementSystem, schema.AppAzureDevOps)
	assert.False(t, again.ChangedReportType)
	assert.Empty(t, cmp.Diff(r.State, again.State))
}

func TestIssueManagementSystemSwitchDropsUndeclaredCustomFields(t *testing.T) {
	e := newTestEngine(t)
	s := stateOf(schema.EffortInvestmentTrendReport, widget.Query{
		widget.KeyIssueManagementSystem: schema.AppJira,
	}, nil)
	s = e.ApplyFilterEdit(s, "customfield_12345", []any{"x"}, AsCustomField()).State
	s = e.ApplyFilterEdit(s, "customfield_777", []any{"y"}, AsCustomField(), Exclude()).State
	require.Contains(t, s.Query, widget.KeyCustomFields)

	r := e.ApplyFilterEdit(s, widget.KeyIssueManagementSystem, schema.AppAzureDevOps)

	assert.Equal(t, widget.Query{widget.KeyIssueManagementSystem: schema.AppAzureDevOps}, r.State.Query)

	// Re-selecting the current application keeps its custom fields.
	kept := e.ApplyFilterEdit(r.State, "Custom.Area", []any{"z"}, AsCustomField()).State
	again := e.ApplyFilterEdit(kept, widget.KeyIssueManagementSystem, schema.AppAzureDevOps).State
	assert.Equal(t, []any{"z"}, again.Query.Nested(widget.KeyCustomFields)["Custom.Area"])
}

func TestEffortUnitSwitchResetsTimeKeys(t *testing.T) {
	e := newTestEngine(t)
	rng := widget.TimeRange{GT: "1", LT: "2"}.Value()
	s := stateOf(schema.EffortInvestmentTrendReport, widget.Query{
		"effort_unit":       schema.UnitTickets,
		"committed_at":      rng,
		"issue_resolved_at": rng,
	}, widget.Metadata{widget.MetaRangeFilterChoice: map[string]any{
		"committed_at":      map[string]any{"type": "absolute"},
		"issue_resolved_at": map[string]any{"type": "absolute"},
	}})

	same := e.ApplyFilterEdit(s, "effort_unit", schema.UnitStoryPoints).State
	assert.Contains(t, same.Query, "committed_at")
	assert.Contains(t, same.Query, "issue_resolved_at")

	switched := e.ApplyFilterEdit(s, "effort_unit", schema.UnitCommitCount).State
	assert.NotContains(t, switched.Query, "committed_at")
	assert.NotContains(t, switched.Query, "issue_resolved_at")
	assert.NotContains(t, switched.Metadata, widget.MetaRangeFilterChoice)
	assert.Equal(t, schema.UnitCommitCount, switched.Query["effort_unit"])
}

func TestStatAcrossDropsOldTimeKey(t *testing.T) {
	e := newTestEngine(t)
	s := stateOf(schema.TicketsReportStat, widget.Query{
		widget.KeyAcross:   "issue_created",
		"issue_created_at": widget.TimeRange{GT: "1", LT: "2"}.Value(),
	}, widget.Metadata{widget.MetaRangeFilterChoice: map[string]any{
		"issue_created_at": map[string]any{"type": "relative"},
	}})

	s = e.ApplyFilterEdit(s, widget.KeyAcross, "issue_resolved").State
	assert.NotContains(t, s.Query, "issue_created_at")
	assert.NotContains(t, s.Metadata, widget.MetaRangeFilterChoice)

	s = e.ApplyFilterEdit(s, "time_period", widget.TimeRange{GT: "3", LT: "4"}.Value()).State
	assert.Contains(t, s.Query, "issue_resolved_at")
}

func TestLastSprintClearsCompletedAt(t *testing.T) {
	e := newTestEngine(t)
	s := stateOf(schema.SprintMetricsTrend, widget.Query{
		"completed_at": widget.TimeRange{GT: "1", LT: "2"}.Value(),
	}, widget.Metadata{widget.MetaRangeFilterChoice: map[string]any{
		"completed_at": map[string]any{"type": "relative"},
	}})

	off := e.ApplyFilterEdit(s, widget.MetaLastSprint, false).State
	assert.Contains(t, off.Query, "completed_at")

	on := e.ApplyFilterEdit(s, widget.MetaLastSprint, true).State
	assert.NotContains(t, on.Query, "completed_at")
	assert.NotContains(t, on.Metadata, widget.MetaRangeFilterChoice)
	assert.Equal(t, true, on.Metadata[widget.MetaLastSprint])
}

func TestDonutDropsStacks(t *testing.T) {
	e := newTestEngine(t)
	for _, viz := range DonutVisualizations {
		s := stateOf(schema.TicketsReport, widget.Query{widget.KeyStacks: []any{"priority"}}, nil)
		s = e.ApplyFilterEdit(s, widget.KeyVisualization, viz).State
		assert.NotContains(t, s.Query, widget.KeyStacks, viz)
		assert.Equal(t, viz, s.Query[widget.KeyVisualization])
	}

	s := stateOf(schema.TicketsReport, widget.Query{widget.KeyStacks: []any{"priority"}}, nil)
	s = e.ApplyFilterEdit(s, widget.KeyVisualization, "line_chart").State
	assert.Contains(t, s.Query, widget.KeyStacks)
}

func TestMetricDegradesMultiSort(t *testing.T) {
	e := newTestEngine(t)
	sorted := widget.SortValue([]widget.SortEntry{{ID: "mean", Desc: true}, {ID: "median"}})
	s := stateOf(schema.LeadTimeByStageReport, widget.Query{widget.KeySort: sorted}, nil)

	kept := e.ApplyFilterEdit(s, widget.KeyMetric, []any{"mean", "median"}).State
	assert.Len(t, kept.Query.SortEntries(), 2)

	degraded := e.ApplyFilterEdit(s, widget.KeyMetric, "p90").State
	assert.Equal(t, []widget.SortEntry{{ID: "mean", Desc: true}}, degraded.Query.SortEntries())
}

// Every cascade leaves nothing behind that it was meant to invalidate, and
// a second identical edit changes nothing.
func TestCascadesAreIdempotent(t *testing.T) {
	e := newTestEngine(t)
	cases := []struct {
		name  string
		state widget.State
		key   string
		value any
	}{
		{"split", stateOf(schema.TicketsReport, widget.Query{"issue_created_day": 1.0}, nil), widget.KeyAcross, "issue_created_day"},
		{"donut", stateOf(schema.SprintMetricsTrend, widget.Query{widget.KeyStacks: []any{"team"}}, nil), widget.KeyVisualization, "pie_chart"},
		{"unit", stateOf(schema.AzureEffortInvestmentTrendReport, widget.Query{"workitem_resolved_at": map[string]any{}}, nil), "effort_unit", schema.UnitCommitCount},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			first := e.ApplyFilterEdit(tc.state, tc.key, tc.value).State
			second := e.ApplyFilterEdit(first, tc.key, tc.value).State
			assert.Empty(t, cmp.Diff(first, second))
		})
	}
}

func TestRulesListsPerReportThenCrossCutting(t *testing.T) {
	e := newTestEngine(t)

	assert.Equal(t, []string{"split_across_interval", "drop_stacks_on_across"}, e.Rules(schema.TicketsReport, widget.KeyAcross))
	assert.Equal(t, []string{"donut_drops_stacks"}, e.Rules(schema.TicketsReport, widget.KeyVisualization))
	assert.Empty(t, e.Rules(schema.TicketsReport, "assignees"))
}

// ============================================================================
// OTHER EDITS
// ============================================================================

func TestApplyBulkEdit(t *testing.T) {
	e := newTestEngine(t)
	s := stateOf(schema.EffortInvestmentTrendReport, nil, nil)

	r := e.ApplyBulkEdit(s, []Edit{
		{Key: widget.KeyIssueManagementSystem, Value: schema.AppAzureDevOps},
		{Key: "workitem_projects", Value: []any{"Ops"}},
	})

	assert.True(t, r.ChangedReportType)
	assert.Equal(t, schema.AzureEffortInvestmentTrendReport, r.State.Type)
	assert.Equal(t, []any{"Ops"}, r.State.Query["workitem_projects"])
}

func TestApplyTimeRangeEdit(t *testing.T) {
	e := newTestEngine(t)
	s := stateOf(schema.TicketsReport, nil, widget.Metadata{
		widget.MetaDashboardTimeKeys: map[string]any{"issue_created_at": map[string]any{"use_dashboard_time": true}},
	})
	choice := widget.RangeChoice{
		Type:     widget.RangeRelative,
		Relative: &widget.RelativeRange{Last: widget.RelativeOffset{Num: 7, Unit: "days"}},
	}

	s = e.ApplyTimeRangeEdit(s, "issue_created_at", widget.TimeRange{GT: "100", LT: "200"}, choice).State

	assert.Equal(t, map[string]any{"$gt": "100", "$lt": "200"}, s.Query["issue_created_at"])
	got, ok := widget.RangeChoiceFrom(s.Metadata.Nested(widget.MetaRangeFilterChoice)["issue_created_at"])
	require.True(t, ok)
	assert.Equal(t, choice, got)
	assert.NotContains(t, s.Metadata, widget.MetaDashboardTimeKeys)
}

func TestUseDashboardTime(t *testing.T) {
	e := newTestEngine(t)
	s := stateOf(schema.TicketsReport, widget.Query{
		"issue_created_at": widget.TimeRange{GT: "1", LT: "2"}.Value(),
	}, nil)

	s = e.UseDashboardTime(s, "issue_created_at", true).State
	assert.NotContains(t, s.Query, "issue_created_at")
	assert.Equal(t, map[string]any{"use_dashboard_time": true},
		s.Metadata.Nested(widget.MetaDashboardTimeKeys)["issue_created_at"])

	s = e.UseDashboardTime(s, "issue_created_at", false).State
	assert.NotContains(t, s.Metadata, widget.MetaDashboardTimeKeys)
}

func TestWeightAndMaxRecords(t *testing.T) {
	e := newTestEngine(t)
	s := stateOf(schema.HygieneReport, nil, nil)

	s = e.ApplyWeightEdit(s, "IDLE", 40).State
	s = e.ApplyMaxRecords(s, 25).State
	require.NotNil(t, s.MaxRecords)
	assert.Equal(t, 25, *s.MaxRecords)
	assert.Equal(t, 40.0, s.Weights["IDLE"])

	s = e.ApplyMaxRecords(s, 0).State
	assert.Nil(t, s.MaxRecords)
}
