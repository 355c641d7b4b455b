package schema

import (
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/agnivade/levenshtein"

	"github.com/spektr-org/widgetkit/widget"
)

// ============================================================================
// REGISTRY: per-report filter schemas
// ============================================================================
// Lookups never fail: an unknown report type yields an empty config and
// callers fall back to their legacy fixed filter set.
// ============================================================================

// Report families. Cascade rules and validation key off these.
const (
	FamilyTimeBucketed     = "time_bucketed"
	FamilyStat             = "stat"
	FamilySCM              = "scm"
	FamilyEffortInvestment = "effort_investment"
	FamilyLeadTime         = "lead_time"
	FamilyHygiene          = "hygiene"
	FamilySprint           = "sprint"
	FamilyTable            = "table"
)

// Report is the static schema of one report type.
type Report struct {
	Type        string             `json:"type" validate:"required"`
	Family      string             `json:"family,omitempty"`
	Application string             `json:"application,omitempty" validate:"omitempty,oneof=jira azure_devops"`
	Filters     []FilterDescriptor `json:"filters" validate:"dive"`

	// KeyMap translates UI filter ids to backend keys.
	KeyMap map[string]string `json:"key_map,omitempty"`
	// SystemVariants maps an issue management application to the report type
	// serving it.
	SystemVariants map[string]string `json:"system_variants,omitempty"`
	// UnitTimeKeys binds an effort unit to the time filter it ranges over.
	// The "" entry is the binding for every unit not listed.
	UnitTimeKeys map[string]string `json:"unit_time_keys,omitempty"`
	// MultiSortMetrics are the metrics that keep a multi-entry sort.
	MultiSortMetrics []string `json:"multi_sort_metrics,omitempty"`
	// WeightKeys are the keys editable in the widget weights map.
	WeightKeys []string `json:"weight_keys,omitempty"`
}

// IntegrationState is the cached set of connected applications.
type IntegrationState struct {
	Applications []string
}

// WorkspaceProfile customises which filters a workspace exposes.
type WorkspaceProfile struct {
	Name          string
	HiddenFilters []string
}

// Registry holds report schemas. It is safe for concurrent use so a catalog
// watcher can swap reports while sessions read.
type Registry struct {
	mu      sync.RWMutex
	reports map[string]Report
	logger  *slog.Logger
}

// NewRegistry creates a registry holding reports.
func NewRegistry(reports ...Report) *Registry {
	r := &Registry{reports: make(map[string]Report), logger: slog.Default()}
	for _, rep := range reports {
		r.reports[rep.Type] = prepare(rep)
	}
	return r
}

// Default returns a registry loaded with the built-in catalog.
func Default() *Registry {
	return NewRegistry(BuiltinReports()...)
}

// SetLogger replaces the registry logger.
func (r *Registry) SetLogger(l *slog.Logger) {
	if l == nil {
		return
	}
	r.mu.Lock()
	r.logger = l
	r.mu.Unlock()
}

// Register adds or replaces one report.
func (r *Registry) Register(rep Report) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports[rep.Type] = prepare(rep)
}

// Merge registers every report in reports, replacing same-typed entries.
func (r *Registry) Merge(reports []Report) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rep := range reports {
		r.reports[rep.Type] = prepare(rep)
	}
}

// Lookup returns the schema for reportType.
func (r *Registry) Lookup(reportType string) (Report, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rep, ok := r.reports[reportType]
	return rep, ok
}

// Types returns all registered report types, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.reports))
	for t := range r.reports {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// ============================================================================
// CONFIG LOOKUP
// ============================================================================

// ConfigOption parameterises GetConfig.
type ConfigOption func(*configOptions)

type configOptions struct {
	query        widget.Query
	metadata     widget.Metadata
	integrations *IntegrationState
	profile      *WorkspaceProfile
}

// WithQuery resolves state-dependent descriptors against q.
func WithQuery(q widget.Query) ConfigOption {
	return func(o *configOptions) { o.query = q }
}

// WithMetadata supplies widget metadata (dashboard time defaults).
func WithMetadata(m widget.Metadata) ConfigOption {
	return func(o *configOptions) { o.metadata = m }
}

// WithIntegrations hides filters of applications that are not connected.
func WithIntegrations(s IntegrationState) ConfigOption {
	return func(o *configOptions) { o.integrations = &s }
}

// WithProfile applies a workspace profile.
func WithProfile(p WorkspaceProfile) ConfigOption {
	return func(o *configOptions) { o.profile = &p }
}

// GetConfig returns the ordered filter descriptors for reportType.
// Unknown report types return an empty slice.
func (r *Registry) GetConfig(reportType string, opts ...ConfigOption) []FilterDescriptor {
	rep, ok := r.Lookup(reportType)
	if !ok {
		r.log().Debug("schema miss, using legacy filter set", "report", reportType)
		return []FilterDescriptor{}
	}

	o := configOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	activeApp := ""
	if o.query != nil {
		activeApp = o.query.String(widget.KeyIssueManagementSystem)
	}
	connected := map[string]bool{}
	if o.integrations != nil {
		for _, app := range o.integrations.Applications {
			connected[app] = true
		}
	}
	hidden := map[string]bool{}
	if o.profile != nil {
		for _, id := range o.profile.HiddenFilters {
			hidden[id] = true
		}
	}

	out := make([]FilterDescriptor, 0, len(rep.Filters))
	for _, d := range rep.Filters {
		if hidden[d.ID] || hidden[d.BEKey] {
			continue
		}
		if d.Integration != "" {
			if activeApp != "" && d.Integration != activeApp {
				continue
			}
			if o.integrations != nil && !connected[d.Integration] {
				continue
			}
		}
		out = append(out, d)
	}

	if o.query != nil {
		resolveRequiredGroups(out, o.query, o.metadata)
	}
	return out
}

// resolveRequiredGroups marks the present member of each required-one-of
// group non-deletable and the rest deletable.
func resolveRequiredGroups(descs []FilterDescriptor, q widget.Query, m widget.Metadata) {
	present := map[string]string{}
	for _, d := range descs {
		if d.RequiredGroup == "" {
			continue
		}
		if _, done := present[d.RequiredGroup]; done {
			continue
		}
		if HasGroupMember(d, q, m) {
			present[d.RequiredGroup] = d.ID
		}
	}
	for i := range descs {
		if descs[i].RequiredGroup == "" {
			continue
		}
		descs[i].Capabilities.Deletable = present[descs[i].RequiredGroup] != descs[i].ID
	}
}

// HasGroupMember reports whether d is set directly in q or through a
// dashboard-level time default in m.
func HasGroupMember(d FilterDescriptor, q widget.Query, m widget.Metadata) bool {
	key := d.Key(q)
	if q.Has(key) {
		return true
	}
	if m == nil {
		return false
	}
	entry, _ := m.Nested(widget.MetaDashboardTimeKeys)[key].(map[string]any)
	use, _ := entry["use_dashboard_time"].(bool)
	return use
}

// Groups returns the required-one-of groups of reportType with their members.
func (r *Registry) Groups(reportType string) map[string][]FilterDescriptor {
	rep, ok := r.Lookup(reportType)
	if !ok {
		return nil
	}
	groups := map[string][]FilterDescriptor{}
	for _, d := range rep.Filters {
		if d.RequiredGroup != "" {
			groups[d.RequiredGroup] = append(groups[d.RequiredGroup], d)
		}
	}
	return groups
}

// ============================================================================
// KEY RESOLUTION
// ============================================================================

// ResolveKey maps a UI filter id to its backend key. Keys without a mapping
// resolve to themselves.
func (r *Registry) ResolveKey(reportType, key string) string {
	rep, ok := r.Lookup(reportType)
	if !ok {
		return key
	}
	if be, ok := rep.KeyMap[key]; ok && be != "" {
		return be
	}
	return key
}

// Descriptor finds the descriptor addressed by key, which may be a UI id or
// a backend key.
func (r *Registry) Descriptor(reportType, key string) (FilterDescriptor, bool) {
	rep, ok := r.Lookup(reportType)
	if !ok {
		return FilterDescriptor{}, false
	}
	return rep.Descriptor(key)
}

// Descriptor finds a descriptor by UI id first, then by backend key.
func (rep Report) Descriptor(key string) (FilterDescriptor, bool) {
	for _, d := range rep.Filters {
		if d.ID == key {
			return d, true
		}
	}
	for _, d := range rep.Filters {
		if d.BEKey == key {
			return d, true
		}
	}
	return FilterDescriptor{}, false
}

// TimeKeyFor returns the time filter bound to an effort unit.
func (rep Report) TimeKeyFor(unit string) string {
	if k, ok := rep.UnitTimeKeys[unit]; ok {
		return k
	}
	return rep.UnitTimeKeys[""]
}

// AllowsMultiSort reports whether metric keeps a multi-entry sort.
func (rep Report) AllowsMultiSort(metric string) bool {
	for _, m := range rep.MultiSortMetrics {
		if m == metric {
			return true
		}
	}
	return false
}

// ============================================================================
// SUGGESTIONS
// ============================================================================

// Suggest returns up to n registered report types closest to name.
func (r *Registry) Suggest(name string, n int) []string {
	type candidate struct {
		name string
		dist int
	}
	name = strings.ToLower(strings.TrimSpace(name))
	var cands []candidate
	for _, t := range r.Types() {
		d := levenshtein.ComputeDistance(name, t)
		if d <= len(t)/2 {
			cands = append(cands, candidate{t, d})
		}
	}
	sort.SliceStable(cands, func(i, j int) bool { return cands[i].dist < cands[j].dist })
	if len(cands) > n {
		cands = cands[:n]
	}
	out := make([]string, len(cands))
	for i, c := range cands {
		out[i] = c.name
	}
	return out
}

func (r *Registry) log() *slog.Logger {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.logger
}

// prepare fills derived fields: the key map gains every descriptor whose id
// differs from its backend key, and across-bound filters get their KeyFunc.
func prepare(rep Report) Report {
	keyMap := make(map[string]string, len(rep.KeyMap))
	for k, v := range rep.KeyMap {
		keyMap[k] = v
	}
	filters := make([]FilterDescriptor, len(rep.Filters))
	for i, d := range rep.Filters {
		if d.KeyFromAcross && d.KeyFunc == nil {
			d.KeyFunc = AcrossTimeKey(d.BEKey)
		}
		if d.ID != d.BEKey && d.KeyFunc == nil {
			if _, explicit := keyMap[d.ID]; !explicit {
				keyMap[d.ID] = d.BEKey
			}
		}
		filters[i] = d
	}
	rep.Filters = filters
	rep.KeyMap = keyMap
	return rep
}
