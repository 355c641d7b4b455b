package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/spektr-org/widgetkit/axis"
	"github.com/spektr-org/widgetkit/config"
	"github.com/spektr-org/widgetkit/engine"
	"github.com/spektr-org/widgetkit/observability"
	"github.com/spektr-org/widgetkit/schema"
	"github.com/spektr-org/widgetkit/session"
	"github.com/spektr-org/widgetkit/store"
	"github.com/spektr-org/widgetkit/table"
)

// ============================================================================
// WIDGETKIT CLI: edit persisted widget configurations
// ============================================================================

const version = "0.3.0"

// app is everything a command needs, built once from config before any
// command runs.
type app struct {
	cfg      config.Config
	logger   *slog.Logger
	registry *schema.Registry
	engine   *engine.Engine
	store    store.Store
	tables   *table.Loader
	axes     *axis.Resolver
	metrics  *observability.Metrics
	promReg  *prometheus.Registry
	closers  []func() error
}

var (
	configPath string
	outFormat  string
	a          = &app{}
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	root := newRootCmd()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "widgetkit",
		Short:         "Edit, validate and inspect analytics widget configurations",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return a.init()
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return a.close()
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ./widgetkit.yaml, env WIDGETKIT_CONFIG)")
	addFormatFlag(root.PersistentFlags(), &outFormat)

	root.AddCommand(
		newConfigCmd(),
		newNewCmd(),
		newShowCmd(),
		newEditCmd(),
		newTimeCmd(),
		newWeightCmd(),
		newRemoveCmd(),
		newValidateCmd(),
		newAxisCmd(),
		newTableCmd(),
		newWatchCmd(),
	)
	return root
}

// ============================================================================
// WIRING
// ============================================================================

func (a *app) init() error {
	var opts []config.Option
	if configPath != "" {
		opts = append(opts, config.WithFile(configPath))
	}
	cfg, err := config.Load(opts...)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = cfg.Log.NewLogger(os.Stderr)
	slog.SetDefault(a.logger)

	if cfg.Metrics.Enabled {
		a.promReg = prometheus.NewRegistry()
		a.metrics = observability.NewMetrics(a.promReg)
	}

	a.registry = schema.Default()
	a.registry.SetLogger(a.logger)
	if cfg.Catalog.Path != "" {
		if err := a.registry.LoadInto(cfg.Catalog.Path); err != nil {
			return err
		}
	}
	a.engine = engine.New(a.registry, engine.WithLogger(a.logger), engine.WithMetrics(a.metrics))

	if a.store, err = a.openStore(); err != nil {
		return err
	}

	a.tables = table.NewLoader(a.tableSource(),
		table.WithLoaderLogger(a.logger),
		table.WithLoaderMetrics(a.metrics))
	a.axes = axis.NewResolver(a.tables)
	return nil
}

func (a *app) openStore() (store.Store, error) {
	switch a.cfg.Store.Driver {
	case config.DriverSQLite, config.DriverPostgres:
		driver := "sqlite3"
		if a.cfg.Store.Driver == config.DriverPostgres {
			driver = "postgres"
		}
		s, err := store.OpenSQL(context.Background(), driver, a.cfg.Store.DSN)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, s.Close)
		return s, nil
	default:
		return store.NewFileStore(a.cfg.Store.Dir)
	}
}

func (a *app) tableSource() table.Source {
	switch {
	case a.cfg.Table.BaseURL != "":
		return table.NewHTTPSource(a.cfg.Table.BaseURL)
	case a.cfg.Table.CSVDir != "":
		return table.NewCSVSource(a.cfg.Table.CSVDir)
	}
	return noTables{}
}

type noTables struct{}

func (noTables) GetTableSchema(_ context.Context, id string) (table.Schema, error) {
	return table.Schema{}, fmt.Errorf("%s: no table source configured: %w", id, table.ErrNotFound)
}

func (a *app) close() error {
	a.logMetrics()
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

// logMetrics reports non-zero counters at the end of a command.
func (a *app) logMetrics() {
	if a.promReg == nil {
		return
	}
	families, err := a.promReg.Gather()
	if err != nil {
		a.logger.Warn("gather metrics", "error", err)
		return
	}
	for _, f := range families {
		for _, m := range f.GetMetric() {
			var labels []string
			for _, l := range m.GetLabel() {
				labels = append(labels, l.GetName()+"="+l.GetValue())
			}
			value := m.GetCounter().GetValue()
			if h := m.GetHistogram(); h != nil {
				value = float64(h.GetSampleCount())
			}
			if value == 0 {
				continue
			}
			a.logger.Info("metric", "name", f.GetName(), "labels", strings.Join(labels, ","), "value", value)
		}
	}
}

// openSession starts editing a stored widget. Commits go back to the store.
func (a *app) openSession(ctx context.Context, id string) (*session.Session, error) {
	st, err := a.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	sink := session.ErrorSinkFunc(func(key, message string) {
		if message != "" {
			fmt.Fprintf(os.Stderr, "invalid %s: %s\n", key, message)
		}
	})
	return session.Open(a.engine, st, store.NewNotifier(a.store, a.logger),
		session.WithDebounce(a.cfg.Session.Debounce),
		session.WithDebouncedKeys(a.cfg.Session.DebouncedKeys...),
		session.WithErrorSink(sink),
		session.WithLogger(a.logger),
		session.WithMetrics(a.metrics),
	), nil
}

// edit runs fn inside a session on widget id, flushes and prints the result.
func (a *app) edit(cmd *cobra.Command, id string, fn func(*session.Session) error) error {
	ctx := cmd.Context()
	s, err := a.openSession(ctx, id)
	if err != nil {
		return err
	}
	if err := fn(s); err != nil {
		s.Discard()
		return err
	}
	if err := s.Close(ctx); err != nil {
		return err
	}
	return render(cmd.OutOrStdout(), s.State(), outFormat)
}

