package widget

import (
	"encoding/json"
	"strconv"
)

// ============================================================================
// RANGE VALUES
// ============================================================================

// TimeRange is a time filter value. Bounds are epoch seconds rendered as
// strings, matching what the aggregation API expects.
type TimeRange struct {
	GT string `json:"$gt"`
	LT string `json:"$lt"`
}

// Value renders the range as a query value.
func (r TimeRange) Value() map[string]any {
	return map[string]any{"$gt": r.GT, "$lt": r.LT}
}

// TimeRangeFrom reads a range back from a query value.
func TimeRangeFrom(v any) (TimeRange, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return TimeRange{}, false
	}
	return TimeRange{GT: scalarString(m["$gt"]), LT: scalarString(m["$lt"])}, true
}

// NumericRange is a {min, max} filter value.
type NumericRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Value renders the range as a query value.
func (r NumericRange) Value() map[string]any {
	return map[string]any{"min": r.Min, "max": r.Max}
}

// Range choice types.
const (
	RangeRelative = "relative"
	RangeAbsolute = "absolute"
)

// RangeChoice records how a time filter was picked in the UI.
type RangeChoice struct {
	Type     string         `json:"type"`
	Relative *RelativeRange `json:"relative,omitempty"`
	Absolute *TimeRange     `json:"absolute,omitempty"`
}

// RelativeRange is "last N units" / "next N units".
type RelativeRange struct {
	Last RelativeOffset `json:"last"`
	Next RelativeOffset `json:"next"`
}

// RelativeOffset is one side of a relative range.
type RelativeOffset struct {
	Num  int    `json:"num"`
	Unit string `json:"unit"`
}

// Value renders the choice as a JSON-shaped metadata value.
func (c RangeChoice) Value() map[string]any {
	return toJSONMap(c)
}

// RangeChoiceFrom decodes a metadata value back into a RangeChoice.
func RangeChoiceFrom(v any) (RangeChoice, bool) {
	var c RangeChoice
	if !fromJSONValue(v, &c) || c.Type == "" {
		return RangeChoice{}, false
	}
	return c, true
}

// ============================================================================
// SORT
// ============================================================================

// SortEntry is one element of the query "sort" list.
type SortEntry struct {
	ID   string `json:"id"`
	Desc bool   `json:"desc"`
}

// SortEntries decodes the query sort list.
func (q Query) SortEntries() []SortEntry {
	var out []SortEntry
	if !fromJSONValue(q[KeySort], &out) {
		return nil
	}
	return out
}

// SortValue renders entries as a query value.
func SortValue(entries []SortEntry) []any {
	out := make([]any, len(entries))
	for i, e := range entries {
		out[i] = map[string]any{"id": e.ID, "desc": e.Desc}
	}
	return out
}

// ============================================================================
// JSON SHAPING
// ============================================================================

// toJSONMap converts a struct into the map form it takes after a persistence
// round trip, so freshly written and reloaded states compare equal.
func toJSONMap(v any) map[string]any {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	return out
}

func fromJSONValue(v any, dst any) bool {
	if v == nil {
		return false
	}
	data, err := json.Marshal(v)
	if err != nil {
		return false
	}
	return json.Unmarshal(data, dst) == nil
}

// Decode converts a JSON-shaped value (as stored in a query or metadata map)
// into dst. It reports false when v is absent or has the wrong shape.
func Decode(v any, dst any) bool {
	return fromJSONValue(v, dst)
}

// Encode converts v into its JSON-shaped map form.
func Encode(v any) map[string]any {
	return toJSONMap(v)
}

func scalarString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	}
	return ""
}
