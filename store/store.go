// Package store persists widget states. It is the default external state
// container behind a session: Notifier adapts any Store to session commits.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spektr-org/widgetkit/widget"
)

// ErrNotFound is returned when no widget with the requested ID is stored.
var ErrNotFound = errors.New("widget not found")

// Store is a widget state repository.
type Store interface {
	Get(ctx context.Context, id string) (widget.State, error)
	Put(ctx context.Context, s widget.State) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]widget.State, error)
}

func checkID(id string) error {
	if id == "" || strings.ContainsAny(id, `/\`) || strings.Contains(id, "..") {
		return fmt.Errorf("invalid widget id %q", id)
	}
	return nil
}

// ============================================================================
// NOTIFIER
// ============================================================================

// Notifier writes every committed state to a Store.
type Notifier struct {
	store  Store
	logger *slog.Logger
}

// NewNotifier adapts st to session commits. A nil logger uses slog.Default().
func NewNotifier(st Store, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{store: st, logger: logger}
}

// OnUpdate persists s.
func (n *Notifier) OnUpdate(ctx context.Context, s widget.State, changedReportType bool) error {
	if err := n.store.Put(ctx, s); err != nil {
		n.logger.Error("persist widget", "widget", s.ID, "type", s.Type, "error", err)
		return err
	}
	if changedReportType {
		n.logger.Info("widget report type changed", "widget", s.ID, "type", s.Type)
	}
	return nil
}
