// Package axis edits the axis configuration of table-backed widgets.
//
// Table widgets have no static filter schema: their X axis, Y axes and
// stack-by columns are picked from the columns of a user-defined table, so
// every option list here comes from table.Options rather than the schema
// registry. Like the engine, every operation returns a new Config.
package axis

import (
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/spektr-org/widgetkit/table"
	"github.com/spektr-org/widgetkit/widget"
)

// Graph types a Y axis can be drawn as.
const (
	GraphBar   = "bar"
	GraphLine  = "line"
	GraphArea  = "area"
	GraphDonut = "donut"
)

var (
	// ErrDonutMultipleAxes is returned when a donut is picked while more
	// than one Y axis exists.
	ErrDonutMultipleAxes = errors.New("donut chart needs a single y axis")
	// ErrDonutSelected is returned when adding an axis or grouping while a
	// donut is selected.
	ErrDonutSelected = errors.New("not available with a donut chart")
	// ErrNoAxis is returned for an out-of-range axis index.
	ErrNoAxis = errors.New("no such y axis")
	// ErrUnknownColumn is returned for a key that is not a table column.
	ErrUnknownColumn = errors.New("unknown table column")
)

// YAxis is one plotted column.
type YAxis struct {
	Key           string `json:"key"`
	Value         string `json:"value"`
	Label         string `json:"label,omitempty"`
	Format        string `json:"format,omitempty"`
	DisplayColor  string `json:"display_color,omitempty"`
	ShowTrendLine bool   `json:"show_trend_line,omitempty"`
}

// Config is the axis configuration stored under metadata.axis.
type Config struct {
	XAxis string  `json:"x_axis,omitempty"`
	YAxis []YAxis `json:"y_axis"`
	// GroupBy hides per-axis configuration in favour of StackBy. Neither
	// side is deleted when it is toggled.
	GroupBy bool     `json:"group_by"`
	StackBy []string `json:"stack_by,omitempty"`
}

// Clone returns a deep copy of c.
func (c Config) Clone() Config {
	out := c
	out.YAxis = append([]YAxis(nil), c.YAxis...)
	out.StackBy = append([]string(nil), c.StackBy...)
	return out
}

// ============================================================================
// PLACEHOLDER KEYS
// ============================================================================
// A freshly added axis has no column yet. Several may exist at once, so each
// gets a unique synthetic key that readers never see.
// ============================================================================

const placeholderPrefix = "__empty__"

// NewPlaceholder returns a fresh placeholder key.
func NewPlaceholder() string {
	return placeholderPrefix + uuid.NewString()
}

// IsPlaceholder reports whether key is empty or a placeholder.
func IsPlaceholder(key string) bool {
	return key == "" || strings.HasPrefix(key, placeholderPrefix)
}

// DisplayKey strips the synthetic suffix: placeholders read as "".
func DisplayKey(key string) string {
	if IsPlaceholder(key) {
		return ""
	}
	return key
}

// ============================================================================
// PALETTE
// ============================================================================

// Palette is the fixed color cycle for bar axes.
var Palette = []string{
	"#4F46E5", "#10B981", "#F59E0B", "#EF4444", "#8B5CF6",
	"#06B6D4", "#EC4899", "#84CC16", "#F97316", "#6366F1",
}

// NextColor returns the first palette color no axis of c uses. Once the
// palette is exhausted it cycles.
func NextColor(c Config) string {
	used := make(map[string]bool, len(c.YAxis))
	for _, y := range c.YAxis {
		used[strings.ToUpper(y.DisplayColor)] = true
	}
	for _, color := range Palette {
		if !used[color] {
			return color
		}
	}
	return Palette[len(c.YAxis)%len(Palette)]
}

// ============================================================================
// STATE I/O
// ============================================================================

// FromState reads the axis configuration of s. A widget with none yields a
// zero Config.
func FromState(s widget.State) Config {
	var c Config
	widget.Decode(s.Metadata[widget.MetaAxis], &c)
	return c
}

// Apply returns a copy of s holding c.
func Apply(s widget.State, c Config) widget.State {
	next := s.Clone()
	next.Metadata[widget.MetaAxis] = widget.Encode(c)
	return next
}

// Keys returns the displayed Y axis keys, placeholders as "".
func Keys(c Config) []string {
	out := make([]string, len(c.YAxis))
	for i, y := range c.YAxis {
		out[i] = DisplayKey(y.Key)
	}
	return out
}

// ============================================================================
// Y AXES
// ============================================================================

// HasDonut reports whether any axis is drawn as a donut.
func HasDonut(c Config) bool {
	for _, y := range c.YAxis {
		if y.Value == GraphDonut {
			return true
		}
	}
	return false
}

// CanAddYAxis reports whether another axis may be added.
func CanAddYAxis(c Config) bool { return !HasDonut(c) }

// CanGroupBy reports whether the group-by toggle is enabled.
func CanGroupBy(c Config) bool { return !HasDonut(c) }

// CanSelectDonut reports whether a donut may be picked: at most one axis
// has a column.
func CanSelectDonut(c Config) bool {
	configured := 0
	for _, y := range c.YAxis {
		if !IsPlaceholder(y.Key) {
			configured++
		}
	}
	return configured <= 1
}

// AddYAxis appends an empty axis drawn as graphType (bar when empty).
func AddYAxis(c Config, graphType string) (Config, error) {
	if !CanAddYAxis(c) {
		return c, ErrDonutSelected
	}
	if graphType == "" {
		graphType = GraphBar
	}
	if graphType == GraphDonut && len(c.YAxis) > 0 {
		return c, ErrDonutMultipleAxes
	}
	y := YAxis{Key: NewPlaceholder(), Value: graphType}
	if graphType == GraphBar {
		y.DisplayColor = NextColor(c)
	}
	out := c.Clone()
	out.YAxis = append(out.YAxis, y)
	return out, nil
}

// UpdateYAxis replaces axis i. An empty key becomes a placeholder; a key
// already used elsewhere is kept until Normalize. Picking a donut drops the
// other, still empty, axes and fails when any of them has a column.
func UpdateYAxis(c Config, i int, y YAxis) (Config, error) {
	if i < 0 || i >= len(c.YAxis) {
		return c, ErrNoAxis
	}
	if y.Value == "" {
		y.Value = GraphBar
	}
	if IsPlaceholder(y.Key) {
		if IsPlaceholder(c.YAxis[i].Key) {
			y.Key = c.YAxis[i].Key
		} else {
			y.Key = NewPlaceholder()
		}
	}
	if y.Value == GraphBar && y.DisplayColor == "" {
		y.DisplayColor = NextColor(withoutAxis(c, i))
	}
	if y.Value != GraphDonut {
		out := c.Clone()
		out.YAxis[i] = y
		return out, nil
	}

	others := withoutAxis(c, i)
	for _, o := range others.YAxis {
		if !IsPlaceholder(o.Key) {
			return c, ErrDonutMultipleAxes
		}
	}
	out := c.Clone()
	out.YAxis = []YAxis{y}
	return out, nil
}

// SetYAxisKey points axis i at a column.
func SetYAxisKey(c Config, i int, key string) (Config, error) {
	if i < 0 || i >= len(c.YAxis) {
		return c, ErrNoAxis
	}
	y := c.YAxis[i]
	y.Key = key
	return UpdateYAxis(c, i, y)
}

// SetGraphType changes how axis i is drawn.
func SetGraphType(c Config, i int, graphType string) (Config, error) {
	if i < 0 || i >= len(c.YAxis) {
		return c, ErrNoAxis
	}
	y := c.YAxis[i]
	y.Value = graphType
	return UpdateYAxis(c, i, y)
}

// RemoveYAxis drops axis i.
func RemoveYAxis(c Config, i int) (Config, error) {
	if i < 0 || i >= len(c.YAxis) {
		return c, ErrNoAxis
	}
	out := c.Clone()
	out.YAxis = append(out.YAxis[:i], out.YAxis[i+1:]...)
	return out, nil
}

func withoutAxis(c Config, i int) Config {
	out := c.Clone()
	out.YAxis = append(out.YAxis[:i], out.YAxis[i+1:]...)
	return out
}

// Normalize drops placeholder axes and every axis repeating an earlier key.
// Surviving axes keep their order.
func Normalize(c Config) Config {
	out := c.Clone()
	out.YAxis = out.YAxis[:0]
	seen := map[string]bool{}
	for _, y := range c.YAxis {
		if IsPlaceholder(y.Key) || seen[y.Key] {
			continue
		}
		seen[y.Key] = true
		out.YAxis = append(out.YAxis, y)
	}
	out.StackBy = dedupe(c.StackBy)
	return out
}

// ============================================================================
// X AXIS, GROUPING, STACKS
// ============================================================================

// SetXAxis sets the X axis column. Y axes and stack-by columns that are no
// longer among the remaining options are invalidated: Y axes fall back to a
// placeholder, stack-by entries are dropped. With no options (the table is
// loading or failed to load) nothing else is touched.
func SetXAxis(c Config, key string, opts []table.ColumnOption) Config {
	out := c.Clone()
	out.XAxis = key
	if len(opts) == 0 {
		return out
	}
	remaining := make([]table.ColumnOption, 0, len(opts))
	for _, o := range opts {
		if o.Key != key {
			remaining = append(remaining, o)
		}
	}
	for i, y := range out.YAxis {
		if !IsPlaceholder(y.Key) && !table.HasOption(remaining, y.Key) {
			out.YAxis[i].Key = NewPlaceholder()
		}
	}
	stacks := out.StackBy[:0]
	for _, s := range out.StackBy {
		if table.HasOption(remaining, s) {
			stacks = append(stacks, s)
		}
	}
	out.StackBy = stacks
	return out
}

// SetGroupBy toggles grouping.
func SetGroupBy(c Config, on bool) (Config, error) {
	if on && !CanGroupBy(c) {
		return c, ErrDonutSelected
	}
	out := c.Clone()
	out.GroupBy = on
	return out, nil
}

// SetStackBy replaces the stack-by columns. The X axis column and
// duplicates are dropped.
func SetStackBy(c Config, keys []string) Config {
	out := c.Clone()
	out.StackBy = out.StackBy[:0]
	for _, k := range dedupe(keys) {
		if k != c.XAxis {
			out.StackBy = append(out.StackBy, k)
		}
	}
	return out
}

func dedupe(keys []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	return out
}

// ============================================================================
// CONTROLS
// ============================================================================

// Controls says which axis controls are shown and enabled.
type Controls struct {
	ShowAxisConfig bool
	ShowStackBy    bool
	CanAddYAxis    bool
	CanGroupBy     bool
	CanSelectDonut bool
}

// ControlsFor derives the controls for c.
func ControlsFor(c Config) Controls {
	return Controls{
		ShowAxisConfig: !c.GroupBy,
		ShowStackBy:    c.GroupBy,
		CanAddYAxis:    CanAddYAxis(c),
		CanGroupBy:     CanGroupBy(c),
		CanSelectDonut: CanSelectDonut(c),
	}
}
