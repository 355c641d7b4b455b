package engine

import (
	"strings"

	"github.com/spektr-org/widgetkit/schema"
	"github.com/spektr-org/widgetkit/widget"
)

// ============================================================================
// CASCADES: report-specific side effects of an edit
// ============================================================================
// Rules run before the base write: they invalidate whatever the edit makes
// stale, and may rewrite the value that is about to be written (the across
// split does). Per-report rules come from a dispatch table keyed by report
// type then edited key; cross-cutting rules follow in a fixed order.
//
// Some per-report rules look like they should be the same rule (one report
// drops interval where a similar one drops stacks). They are kept as they
// are, per report.
// ============================================================================

// Change is the in-flight edit a cascade rule inspects and adjusts.
type Change struct {
	Report        schema.Report
	Descriptor    schema.FilterDescriptor
	HasDescriptor bool
	// Key is the resolved backend key being written.
	Key   string
	Value any
	// Prev is the state before the edit. Rules must not write to it.
	Prev widget.State
	// Next is the state under construction.
	Next *widget.State

	ChangedReportType bool
	// SkipWrite suppresses the base write.
	SkipWrite bool
}

// CascadeRule is one named side effect. Apply reports whether it changed
// anything.
type CascadeRule struct {
	Name  string
	Apply func(*Change) bool
}

type crossCuttingRule struct {
	key  string
	rule CascadeRule
}

type cascadeTable struct {
	byReport     map[string]map[string][]CascadeRule
	byFamily     map[string]map[string][]CascadeRule
	crossCutting []crossCuttingRule
}

// lookup returns the per-report rules for an edit. Reports missing from the
// table (catalog additions) use the rules of their family.
func (t cascadeTable) lookup(rep schema.Report, beKey, uiKey string) []CascadeRule {
	rules, ok := t.byReport[rep.Type]
	if !ok {
		rules = t.byFamily[rep.Family]
	}
	if r, ok := rules[beKey]; ok {
		return r
	}
	return rules[uiKey]
}

func (t *cascadeTable) add(reportType, key string, rules ...CascadeRule) {
	if t.byReport[reportType] == nil {
		t.byReport[reportType] = map[string][]CascadeRule{}
	}
	t.byReport[reportType][key] = append(t.byReport[reportType][key], rules...)
}

func (t *cascadeTable) addFamily(family, key string, rules ...CascadeRule) {
	if t.byFamily[family] == nil {
		t.byFamily[family] = map[string][]CascadeRule{}
	}
	t.byFamily[family][key] = append(t.byFamily[family][key], rules...)
}

// Rules returns the names of the rules an edit of key on reportType would
// consult, per-report first then cross-cutting.
func (e *Engine) Rules(reportType, key string) []string {
	rep, _ := e.reg.Lookup(reportType)
	beKey := e.reg.ResolveKey(reportType, key)
	var names []string
	for _, r := range e.cascades.lookup(rep, beKey, key) {
		names = append(names, r.Name)
	}
	for _, cc := range e.cascades.crossCutting {
		if cc.key == beKey {
			names = append(names, cc.rule.Name)
		}
	}
	return names
}

func defaultCascades() cascadeTable {
	t := cascadeTable{
		byReport: map[string]map[string][]CascadeRule{},
		byFamily: map[string]map[string][]CascadeRule{},
	}

	// Time-bucketed family: across may carry its own granularity.
	for _, rt := range []string{schema.TicketsReport, schema.AzureTicketsReport, schema.LeadTimeByStageReport} {
		t.add(rt, widget.KeyAcross, splitAcrossInterval)
	}
	t.addFamily(schema.FamilyTimeBucketed, widget.KeyAcross, splitAcrossInterval)
	t.addFamily(schema.FamilyLeadTime, widget.KeyAcross, splitAcrossInterval)
	t.add(schema.TicketsReport, widget.KeyAcross, dropStacksOnAcross("trend"))

	t.add(schema.SCMCommitsReport, widget.KeyAcross, dropStacksOnAcross("trend", "code_change"))
	t.add(schema.SCMPRsReport, widget.KeyAcross, dropIntervalUnlessAcross("pr_created", "pr_closed"))

	for _, rt := range []string{schema.TicketsReportStat, schema.AzureTicketsReportStat} {
		t.add(rt, widget.KeyAcross, moveStatTimeKey)
	}
	t.addFamily(schema.FamilyStat, widget.KeyAcross, moveStatTimeKey)

	for _, rt := range []string{schema.EffortInvestmentTrendReport, schema.AzureEffortInvestmentTrendReport} {
		t.add(rt, widget.KeyIssueManagementSystem, switchIssueManagementSystem)
		t.add(rt, "effort_unit", resetUnitTimeKeys)
	}
	t.addFamily(schema.FamilyEffortInvestment, widget.KeyIssueManagementSystem, switchIssueManagementSystem)
	t.addFamily(schema.FamilyEffortInvestment, "effort_unit", resetUnitTimeKeys)

	t.add(schema.SprintMetricsTrend, widget.MetaLastSprint, lastSprintClearsCompleted)
	t.addFamily(schema.FamilySprint, widget.MetaLastSprint, lastSprintClearsCompleted)

	t.crossCutting = []crossCuttingRule{
		{key: widget.KeyVisualization, rule: donutDropsStacks},
		{key: widget.KeyMetric, rule: degradeMultiSort},
	}
	return t
}

// ============================================================================
// PER-REPORT RULES
// ============================================================================

// Intervals an across value may be suffixed with.
var acrossIntervals = []string{"day", "week", "biweekly", "month", "quarter", "year"}

// splitAcrossInterval turns across "issue_resolved_week" into
// across=issue_resolved, interval=week. A plain non-time across drops
// interval.
var splitAcrossInterval = CascadeRule{
	Name: "split_across_interval",
	Apply: func(ch *Change) bool {
		across, ok := ch.Value.(string)
		if !ok || across == "" {
			return false
		}
		q := ch.Next.Query
		if dim, interval, ok := splitTimeAcross(ch.Report, across); ok {
			// A raw "<dim>_<interval>" key left by older clients goes too.
			delete(q, across)
			q[widget.KeyInterval] = interval
			ch.Value = dim
			return true
		}
		if isTimeDimension(ch.Report, across) {
			return false
		}
		if _, had := q[widget.KeyInterval]; !had {
			return false
		}
		delete(q, widget.KeyInterval)
		return true
	},
}

func splitTimeAcross(rep schema.Report, across string) (dim, interval string, ok bool) {
	for _, iv := range acrossIntervals {
		suffix := "_" + iv
		if !strings.HasSuffix(across, suffix) {
			continue
		}
		dim = strings.TrimSuffix(across, suffix)
		if dim != "" && isTimeDimension(rep, dim) {
			return dim, iv, true
		}
	}
	return "", "", false
}

// isTimeDimension reports whether dim+"_at" is a time filter of rep.
func isTimeDimension(rep schema.Report, dim string) bool {
	d, ok := rep.Descriptor(dim + "_at")
	return ok && d.TimeRange
}

func dropStacksOnAcross(values ...string) CascadeRule {
	return CascadeRule{
		Name: "drop_stacks_on_across",
		Apply: func(ch *Change) bool {
			across, _ := ch.Value.(string)
			if !contains(values, across) {
				return false
			}
			return deleteKey(ch.Next.Query, widget.KeyStacks)
		},
	}
}

func dropIntervalUnlessAcross(timeAcross ...string) CascadeRule {
	return CascadeRule{
		Name: "drop_interval_on_across",
		Apply: func(ch *Change) bool {
			across, _ := ch.Value.(string)
			if contains(timeAcross, across) {
				return false
			}
			return deleteKey(ch.Next.Query, widget.KeyInterval)
		},
	}
}

// moveStatTimeKey drops the time filter stored under the key the old across
// resolved to.
var moveStatTimeKey = CascadeRule{
	Name: "reset_stat_time_key",
	Apply: func(ch *Change) bool {
		changed := false
		for _, d := range ch.Report.Filters {
			if !d.IsDynamic() {
				continue
			}
			oldKey := d.Key(ch.Prev.Query)
			probe := ch.Prev.Query.Clone()
			probe[widget.KeyAcross] = ch.Value
			if d.Key(probe) == oldKey {
				continue
			}
			if clearEntries(ch.Next, d, oldKey) {
				changed = true
			}
		}
		return changed
	},
}

// switchIssueManagementSystem moves an effort report to the variant of the
// selected application and drops the other application's filters.
var switchIssueManagementSystem = CascadeRule{
	Name: "switch_issue_management_system",
	Apply: func(ch *Change) bool {
		app, _ := ch.Value.(string)
		if app == "" {
			return false
		}
		changed := false
		for _, d := range ch.Report.Filters {
			if d.Integration == "" || d.Integration == app {
				continue
			}
			if clearEntries(ch.Next, d, d.Key(ch.Next.Query)) {
				changed = true
			}
		}
		prevApp := ch.Prev.Query.String(widget.KeyIssueManagementSystem)
		if prevApp == "" {
			prevApp = ch.Report.Application
		}
		if prevApp != app && dropUndeclaredCustomFields(ch.Next.Query, ch.Report, app) {
			changed = true
		}
		if variant, ok := ch.Report.SystemVariants[app]; ok && variant != ch.Next.Type {
			ch.Next.Type = variant
			ch.ChangedReportType = true
			changed = true
		}
		if _, ok := ch.Next.Metadata[widget.MetaFilterTabOrder]; ok {
			delete(ch.Next.Metadata, widget.MetaFilterTabOrder)
			changed = true
		}
		return changed
	},
}

// dropUndeclaredCustomFields removes custom field entries, included or
// excluded, that no shared or app descriptor declares. Workspace custom
// fields belong to a single application.
func dropUndeclaredCustomFields(q widget.Query, rep schema.Report, app string) bool {
	var keys []string
	for k := range q.Nested(widget.KeyCustomFields) {
		keys = append(keys, k)
	}
	if ex := q.Nested(widget.KeyExclude); ex != nil {
		cf, _ := ex[widget.KeyCustomFields].(map[string]any)
		for k := range cf {
			keys = append(keys, k)
		}
	}
	changed := false
	for _, k := range keys {
		if d, ok := rep.Descriptor(k); ok && (d.Integration == "" || d.Integration == app) {
			continue
		}
		q.DeleteNested(widget.KeyCustomFields, k)
		deleteExcludeCustom(q, k)
		changed = true
	}
	return changed
}

// resetUnitTimeKeys clears the time filters bound to the old and new unit
// when switching between commit counts and ticket units.
var resetUnitTimeKeys = CascadeRule{
	Name: "reset_unit_time_keys",
	Apply: func(ch *Change) bool {
		prevUnit := ch.Prev.Query.String(ch.Key)
		if prevUnit == "" && ch.HasDescriptor {
			prevUnit, _ = ch.Descriptor.DefaultValue.(string)
		}
		nextUnit, _ := ch.Value.(string)
		if (prevUnit == schema.UnitCommitCount) == (nextUnit == schema.UnitCommitCount) {
			return false
		}
		changed := false
		for _, key := range []string{ch.Report.TimeKeyFor(prevUnit), ch.Report.TimeKeyFor(nextUnit)} {
			if key == "" {
				continue
			}
			d, ok := ch.Report.Descriptor(key)
			if !ok {
				d = schema.FilterDescriptor{ID: key, BEKey: key, TimeRange: true}
			}
			if clearEntries(ch.Next, d, key) {
				changed = true
			}
		}
		return changed
	},
}

var lastSprintClearsCompleted = CascadeRule{
	Name: "last_sprint_clears_completed_at",
	Apply: func(ch *Change) bool {
		on, _ := ch.Value.(bool)
		if !on {
			return false
		}
		d, ok := ch.Report.Descriptor("completed_at")
		if !ok {
			return false
		}
		return clearEntries(ch.Next, d, d.Key(ch.Next.Query))
	},
}

// ============================================================================
// CROSS-CUTTING RULES
// ============================================================================

// DonutVisualizations cannot show stacked series.
var DonutVisualizations = []string{"donut_chart", "pie_chart", "donut", "pie"}

var donutDropsStacks = CascadeRule{
	Name: "donut_drops_stacks",
	Apply: func(ch *Change) bool {
		v, _ := ch.Value.(string)
		if !contains(DonutVisualizations, v) {
			return false
		}
		return deleteKey(ch.Next.Query, widget.KeyStacks)
	},
}

// degradeMultiSort keeps only the first sort entry when the selected metric
// cannot be sorted on several values.
var degradeMultiSort = CascadeRule{
	Name: "degrade_multi_sort",
	Apply: func(ch *Change) bool {
		metrics := widget.Query{widget.KeyMetric: ch.Value}.Strings(widget.KeyMetric)
		if len(metrics) == 0 {
			return false
		}
		for _, m := range metrics {
			if !ch.Report.AllowsMultiSort(m) {
				entries := ch.Next.Query.SortEntries()
				if len(entries) <= 1 {
					return false
				}
				ch.Next.Query[widget.KeySort] = widget.SortValue(entries[:1])
				return true
			}
		}
		return false
	},
}

// ============================================================================
// HELPERS
// ============================================================================

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func deleteKey(q widget.Query, key string) bool {
	if _, ok := q[key]; !ok {
		return false
	}
	delete(q, key)
	return true
}
