package axis

import (
	"context"

	"github.com/spektr-org/widgetkit/table"
	"github.com/spektr-org/widgetkit/widget"
)

// MetaTableID is the metadata key naming a widget's backing table.
const MetaTableID = "table_id"

// OptionSource returns the column options of a table. table.Loader
// satisfies it.
type OptionSource interface {
	Options(ctx context.Context, id string) []table.ColumnOption
	Status(id string) table.Status
}

// Resolver applies axis edits to widget states, reading column options for
// the widget's table from src.
type Resolver struct {
	src OptionSource
}

// NewResolver creates a Resolver over src.
func NewResolver(src OptionSource) *Resolver {
	return &Resolver{src: src}
}

// TableID returns the table backing s.
func TableID(s widget.State) string {
	id, _ := s.Metadata[MetaTableID].(string)
	return id
}

// Options returns the column options for s, empty while the table is
// loading or when it failed to load.
func (r *Resolver) Options(ctx context.Context, s widget.State) []table.ColumnOption {
	id := TableID(s)
	if id == "" {
		return nil
	}
	return r.src.Options(ctx, id)
}

// Status reports the load state of the table backing s.
func (r *Resolver) Status(s widget.State) table.Status {
	id := TableID(s)
	if id == "" {
		return table.Status{Failed: true}
	}
	return r.src.Status(id)
}

// SetXAxis sets the X axis of s and invalidates what no longer fits.
func (r *Resolver) SetXAxis(ctx context.Context, s widget.State, key string) widget.State {
	return Apply(s, SetXAxis(FromState(s), key, r.Options(ctx, s)))
}

// AddYAxis appends an axis to s.
func (r *Resolver) AddYAxis(s widget.State, graphType string) (widget.State, error) {
	c, err := AddYAxis(FromState(s), graphType)
	if err != nil {
		return s, err
	}
	return Apply(s, c), nil
}

// UpdateYAxis replaces axis i of s. Keys that are not columns of the table
// are refused once options are available.
func (r *Resolver) UpdateYAxis(ctx context.Context, s widget.State, i int, y YAxis) (widget.State, error) {
	if !IsPlaceholder(y.Key) {
		if opts := r.Options(ctx, s); len(opts) > 0 && !table.HasOption(opts, y.Key) {
			return s, ErrUnknownColumn
		}
	}
	c, err := UpdateYAxis(FromState(s), i, y)
	if err != nil {
		return s, err
	}
	return Apply(s, c), nil
}

// RemoveYAxis drops axis i of s.
func (r *Resolver) RemoveYAxis(s widget.State, i int) (widget.State, error) {
	c, err := RemoveYAxis(FromState(s), i)
	if err != nil {
		return s, err
	}
	return Apply(s, c), nil
}

// SetGroupBy toggles grouping on s.
func (r *Resolver) SetGroupBy(s widget.State, on bool) (widget.State, error) {
	c, err := SetGroupBy(FromState(s), on)
	if err != nil {
		return s, err
	}
	return Apply(s, c), nil
}

// SetStackBy sets the stack-by columns of s, keeping only known columns
// once options are available.
func (r *Resolver) SetStackBy(ctx context.Context, s widget.State, keys []string) widget.State {
	if opts := r.Options(ctx, s); len(opts) > 0 {
		known := keys[:0:0]
		for _, k := range keys {
			if table.HasOption(opts, k) {
				known = append(known, k)
			}
		}
		keys = known
	}
	return Apply(s, SetStackBy(FromState(s), keys))
}

// Normalize drops placeholder and duplicate axes from s.
func (r *Resolver) Normalize(s widget.State) widget.State {
	return Apply(s, Normalize(FromState(s)))
}
