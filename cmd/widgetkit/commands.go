package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/spektr-org/widgetkit/axis"
	"github.com/spektr-org/widgetkit/engine"
	"github.com/spektr-org/widgetkit/schema"
	"github.com/spektr-org/widgetkit/session"
	"github.com/spektr-org/widgetkit/table"
	"github.com/spektr-org/widgetkit/widget"
)

// ============================================================================
// SCHEMA
// ============================================================================

func newConfigCmd() *cobra.Command {
	var (
		id     string
		apps   []string
		hidden []string
	)
	cmd := &cobra.Command{
		Use:   "config <report-type>",
		Short: "Print the filter descriptors of a report type",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reportType := args[0]
			if _, ok := a.registry.Lookup(reportType); !ok {
				return unknownReport(reportType)
			}
			var opts []schema.ConfigOption
			if id != "" {
				st, err := a.store.Get(cmd.Context(), id)
				if err != nil {
					return err
				}
				opts = append(opts, schema.WithQuery(st.Query), schema.WithMetadata(st.Metadata))
			}
			if len(apps) > 0 {
				opts = append(opts, schema.WithIntegrations(schema.IntegrationState{Applications: apps}))
			}
			if len(hidden) > 0 {
				opts = append(opts, schema.WithProfile(schema.WorkspaceProfile{Name: "cli", HiddenFilters: hidden}))
			}
			return render(cmd.OutOrStdout(), a.registry.GetConfig(reportType, opts...), outFormat)
		},
	}
	cmd.Flags().StringVar(&id, "widget", "", "resolve state-dependent descriptors against a stored widget")
	cmd.Flags().StringSliceVar(&apps, "apps", nil, "connected applications (hides filters of the others)")
	cmd.Flags().StringSliceVar(&hidden, "hide", nil, "filter ids hidden by the workspace profile")
	return cmd
}

func unknownReport(reportType string) error {
	if s := a.registry.Suggest(reportType, 3); len(s) > 0 {
		return fmt.Errorf("unknown report type %q (did you mean %s?)", reportType, strings.Join(s, ", "))
	}
	return fmt.Errorf("unknown report type %q", reportType)
}

// ============================================================================
// WIDGET LIFECYCLE
// ============================================================================

func newNewCmd() *cobra.Command {
	var tableID string
	cmd := &cobra.Command{
		Use:   "new <report-type>",
		Short: "Create and store an empty widget",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, ok := a.registry.Lookup(args[0]); !ok {
				return unknownReport(args[0])
			}
			st := widget.New(args[0])
			if tableID != "" {
				st.Metadata[axis.MetaTableID] = tableID
			}
			if err := a.store.Put(cmd.Context(), st); err != nil {
				return err
			}
			a.logger.Info("widget created", "widget", st.ID, "type", st.Type)
			return render(cmd.OutOrStdout(), st, outFormat)
		},
	}
	cmd.Flags().StringVar(&tableID, "table", "", "backing table id for table reports")
	return cmd
}

func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show [widget-id]",
		Short: "Print a stored widget, or list all widgets",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				all, err := a.store.List(cmd.Context())
				if err != nil {
					return err
				}
				return render(cmd.OutOrStdout(), all, outFormat)
			}
			st, err := a.store.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), st, outFormat)
		},
	}
}

// ============================================================================
// FILTER EDITS
// ============================================================================

func newEditCmd() *cobra.Command {
	var (
		exclude bool
		partial string
		custom  bool
		literal bool
	)
	cmd := &cobra.Command{
		Use:   "edit <widget-id> <key> <value>",
		Short: "Set a filter value; dependent settings are adjusted",
		Long: `Sets one filter on a stored widget. The value is parsed as JSON when it
is valid JSON (lists, numbers, booleans) and used as text otherwise.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			var opts []engine.EditOption
			if exclude {
				opts = append(opts, engine.Exclude())
			}
			if partial != "" {
				mode, err := partialMode(partial)
				if err != nil {
					return err
				}
				opts = append(opts, engine.Partial(mode))
			}
			if custom {
				opts = append(opts, engine.AsCustomField())
			}
			value := parseValue(args[2], literal)
			return a.edit(cmd, args[0], func(s *session.Session) error {
				res, err := s.Edit(cmd.Context(), args[1], value, opts...)
				if res.ChangedReportType {
					a.logger.Info("report type switched", "widget", args[0], "type", res.State.Type)
				}
				return err
			})
		},
	}
	cmd.Flags().BoolVar(&exclude, "exclude", false, "write the value as an exclusion")
	cmd.Flags().StringVar(&partial, "partial", "", "partial match mode: begins or contains")
	cmd.Flags().BoolVar(&custom, "custom", false, "treat the key as a custom field")
	cmd.Flags().BoolVar(&literal, "text", false, "never parse the value as JSON")
	return cmd
}

func partialMode(s string) (string, error) {
	switch strings.TrimPrefix(s, "$") {
	case "begins":
		return engine.PartialBegins, nil
	case "contains":
		return engine.PartialContains, nil
	}
	return "", fmt.Errorf("unknown partial mode %q (want begins or contains)", s)
}

func parseValue(raw string, literal bool) any {
	if literal {
		return raw
	}
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}
	return v
}

func newTimeCmd() *cobra.Command {
	var (
		gt, lt    string
		last      int
		unit      string
		dashboard bool
	)
	cmd := &cobra.Command{
		Use:   "time <widget-id> <key>",
		Short: "Set a time range filter or make it follow the dashboard range",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, key := args[0], args[1]
			if dashboard {
				return a.edit(cmd, id, func(s *session.Session) error {
					return s.UseDashboardTime(cmd.Context(), key, true)
				})
			}
			r := widget.TimeRange{GT: gt, LT: lt}
			choice := widget.RangeChoice{Type: widget.RangeAbsolute, Absolute: &r}
			if last > 0 {
				choice = widget.RangeChoice{Type: widget.RangeRelative, Relative: &widget.RelativeRange{
					Last: widget.RelativeOffset{Num: last, Unit: unit},
					Next: widget.RelativeOffset{Num: 0, Unit: "today"},
				}}
			}
			return a.edit(cmd, id, func(s *session.Session) error {
				return s.EditTimeRange(cmd.Context(), key, r, choice)
			})
		},
	}
	cmd.Flags().StringVar(&gt, "gt", "", "lower bound, epoch seconds")
	cmd.Flags().StringVar(&lt, "lt", "", "upper bound, epoch seconds")
	cmd.Flags().IntVar(&last, "last", 0, "record the choice as the last N units")
	cmd.Flags().StringVar(&unit, "unit", "days", "unit for --last")
	cmd.Flags().BoolVar(&dashboard, "dashboard", false, "follow the dashboard time range")
	return cmd
}

func newWeightCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "weight <widget-id> <key> <value>",
		Short: "Set one weight; weights must sum to at most 100",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := strconv.ParseFloat(args[2], 64)
			if err != nil {
				return fmt.Errorf("weight %q: %w", args[2], err)
			}
			return a.edit(cmd, args[0], func(s *session.Session) error {
				return s.SetWeight(cmd.Context(), args[1], v)
			})
		},
	}
}

func newRemoveCmd() *cobra.Command {
	var (
		custom     bool
		partialKey string
	)
	cmd := &cobra.Command{
		Use:   "remove <widget-id> <key>...",
		Short: "Remove filters and everything derived from them",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var opts []engine.RemoveOption
			if custom {
				opts = append(opts, engine.RemoveCustomField())
			}
			if partialKey != "" {
				opts = append(opts, engine.RemovePartialKey(partialKey))
			}
			return a.edit(cmd, args[0], func(s *session.Session) error {
				for _, key := range args[1:] {
					if err := s.Remove(cmd.Context(), key, opts...); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&custom, "custom", false, "the keys are custom fields")
	cmd.Flags().StringVar(&partialKey, "partial-key", "", "partial match key to clear as well")
	return cmd
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <widget-id>",
		Short: "Validate a stored widget; exits non-zero when invalid",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.store.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			report := a.engine.Validate(st)
			if err := render(cmd.OutOrStdout(), report.Failures(), outFormat); err != nil {
				return err
			}
			if !report.Valid() {
				return fmt.Errorf("widget %s: %w", st.ID, session.ErrInvalid)
			}
			return nil
		},
	}
}

// ============================================================================
// AXIS
// ============================================================================

func newAxisCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "axis",
		Short: "Edit the axis configuration of table-backed widgets",
	}

	var graph string
	add := &cobra.Command{
		Use:   "add <widget-id>",
		Short: "Append an empty Y axis",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.transformAxis(cmd, args[0], func(st widget.State) (widget.State, error) {
				return a.axes.AddYAxis(st, graph)
			})
		},
	}
	add.Flags().StringVar(&graph, "graph", axis.GraphBar, "graph type: bar, line, area or donut")

	var (
		setGraph string
		label    string
	)
	set := &cobra.Command{
		Use:   "set <widget-id> <index> <column>",
		Short: "Point a Y axis at a column",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			i, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("axis index %q: %w", args[1], err)
			}
			return a.transformAxis(cmd, args[0], func(st widget.State) (widget.State, error) {
				c := axis.FromState(st)
				if i < 0 || i >= len(c.YAxis) {
					return st, fmt.Errorf("axis index %d out of range", i)
				}
				y := c.YAxis[i]
				y.Key = args[2]
				if setGraph != "" {
					y.Value = setGraph
				}
				if label != "" {
					y.Label = label
				}
				return a.axes.UpdateYAxis(cmd.Context(), st, i, y)
			})
		},
	}
	set.Flags().StringVar(&setGraph, "graph", "", "change the graph type")
	set.Flags().StringVar(&label, "label", "", "axis label")

	x := &cobra.Command{
		Use:   "x <widget-id> <column>",
		Short: "Set the X axis; Y axes and stacks that no longer fit are reset",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.transformAxis(cmd, args[0], func(st widget.State) (widget.State, error) {
				return a.axes.SetXAxis(cmd.Context(), st, args[1]), nil
			})
		},
	}

	rm := &cobra.Command{
		Use:   "rm <widget-id> <index>",
		Short: "Remove a Y axis",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			i, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("axis index %q: %w", args[1], err)
			}
			return a.transformAxis(cmd, args[0], func(st widget.State) (widget.State, error) {
				return a.axes.RemoveYAxis(st, i)
			})
		},
	}

	stack := &cobra.Command{
		Use:   "stack <widget-id> [column]...",
		Short: "Set the stack-by columns",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.transformAxis(cmd, args[0], func(st widget.State) (widget.State, error) {
				return a.axes.SetStackBy(cmd.Context(), st, args[1:]), nil
			})
		},
	}

	cmd.AddCommand(add, set, x, rm, stack)
	return cmd
}

// transformAxis applies an axis edit through a session and normalizes the
// configuration before it is stored.
func (a *app) transformAxis(cmd *cobra.Command, id string, fn func(widget.State) (widget.State, error)) error {
	return a.edit(cmd, id, func(s *session.Session) error {
		return s.Transform(cmd.Context(), widget.MetaAxis, func(st widget.State) (widget.State, error) {
			next, err := fn(st)
			if err != nil {
				return st, err
			}
			return a.axes.Normalize(next), nil
		})
	})
}

// ============================================================================
// TABLES
// ============================================================================

func newTableCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "table",
		Short: "Inspect table schemas",
	}

	var (
		id        string
		maxSelect int
	)
	discover := &cobra.Command{
		Use:   "discover <file.csv>",
		Short: "Infer a table schema from a CSV file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read csv: %w", err)
			}
			if id == "" {
				id = strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
			}
			opts := table.DefaultDiscoverOptions()
			opts.MaxSelectValues = maxSelect
			s, err := table.DiscoverCSV(id, data, opts)
			if err != nil {
				return err
			}
			a.logger.Info("table discovered", "table", s.ID, "columns", len(s.Columns), "rows", len(s.Rows))
			s.Rows = nil
			return render(cmd.OutOrStdout(), s, outFormat)
		},
	}
	discover.Flags().StringVar(&id, "id", "", "table id (default: file name)")
	discover.Flags().IntVar(&maxSelect, "max-select", table.DefaultDiscoverOptions().MaxSelectValues,
		"most distinct values a single_select column may have")

	columns := &cobra.Command{
		Use:   "columns <table-id>",
		Short: "List the column options of a table from the configured source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := a.tables.Get(cmd.Context(), args[0]); err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), a.tables.Options(cmd.Context(), args[0]), outFormat)
		},
	}

	cmd.AddCommand(discover, columns)
	return cmd
}

// ============================================================================
// CATALOG
// ============================================================================

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch-catalog",
		Short: "Reload the configured report catalog whenever it changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if a.cfg.Catalog.Path == "" {
				return fmt.Errorf("catalog.path is not configured")
			}
			a.logger.Info("watching catalog", "path", a.cfg.Catalog.Path)
			return a.registry.Watch(cmd.Context(), a.cfg.Catalog.Path)
		},
	}
}
