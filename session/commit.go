package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/spektr-org/widgetkit/observability"
	"github.com/spektr-org/widgetkit/widget"
)

// ============================================================================
// COMMIT QUEUE: the time-windowed channel to the state container
// ============================================================================
// Scheduled commits are coalesced: each Schedule restarts the window and
// replaces the pending state, so a burst of keystrokes reaches the notifier
// once, carrying the last state. Sends are serialized; a timer firing while
// an immediate commit is in progress waits for it.
// ============================================================================

// DefaultDebounce is the commit window used when none is configured.
const DefaultDebounce = 200 * time.Millisecond

type pendingCommit struct {
	state   widget.State
	changed bool
}

// CommitQueue delivers widget states to a Notifier.
type CommitQueue struct {
	notify  Notifier
	window  time.Duration
	logger  *slog.Logger
	metrics *observability.Metrics

	sendMu sync.Mutex

	mu      sync.Mutex
	timer   *time.Timer
	pending *pendingCommit
	gen     uint64
}

// NewCommitQueue creates a queue sending to n. A window <= 0 uses
// DefaultDebounce.
func NewCommitQueue(n Notifier, window time.Duration, logger *slog.Logger, metrics *observability.Metrics) *CommitQueue {
	if window <= 0 {
		window = DefaultDebounce
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CommitQueue{notify: n, window: window, logger: logger, metrics: metrics}
}

// Window returns the debounce window.
func (q *CommitQueue) Window() time.Duration { return q.window }

// Schedule queues s for delivery once the window passes without another
// Schedule. changedReportType sticks until the pending commit is sent.
func (q *CommitQueue) Schedule(s widget.State, changedReportType bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.pending != nil {
		changedReportType = changedReportType || q.pending.changed
	}
	q.pending = &pendingCommit{state: s, changed: changedReportType}
	if q.timer != nil {
		q.timer.Stop()
	}
	q.gen++
	gen := q.gen
	q.timer = time.AfterFunc(q.window, func() { q.fire(gen) })
}

// Commit sends s now, after flushing any pending commit.
func (q *CommitQueue) Commit(ctx context.Context, s widget.State, changedReportType bool) error {
	q.sendMu.Lock()
	defer q.sendMu.Unlock()
	if p := q.take(); p != nil {
		if err := q.send(ctx, "flush", p); err != nil {
			return err
		}
	}
	return q.send(ctx, "immediate", &pendingCommit{state: s, changed: changedReportType})
}

// Flush sends the pending commit, if any, now.
func (q *CommitQueue) Flush(ctx context.Context) error {
	q.sendMu.Lock()
	defer q.sendMu.Unlock()
	p := q.take()
	if p == nil {
		return nil
	}
	return q.send(ctx, "flush", p)
}

// Discard drops the pending commit.
func (q *CommitQueue) Discard() {
	if p := q.take(); p != nil {
		q.logger.Debug("pending commit discarded", "widget", p.state.ID)
	}
}

// Pending reports whether a commit is waiting for its window.
func (q *CommitQueue) Pending() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pending != nil
}

func (q *CommitQueue) take() *pendingCommit {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.takeLocked()
}

// takeForTimer takes the pending commit only if it is still the one the
// timer of generation gen was started for.
func (q *CommitQueue) takeForTimer(gen uint64) *pendingCommit {
	q.mu.Lock()
	defer q.mu.Unlock()
	if gen != q.gen {
		return nil
	}
	return q.takeLocked()
}

func (q *CommitQueue) takeLocked() *pendingCommit {
	if q.timer != nil {
		q.timer.Stop()
		q.timer = nil
	}
	p := q.pending
	q.pending = nil
	return p
}

func (q *CommitQueue) fire(gen uint64) {
	q.sendMu.Lock()
	defer q.sendMu.Unlock()
	p := q.takeForTimer(gen)
	if p == nil {
		return
	}
	// Errors are already logged by send; nobody is waiting on a timer.
	_ = q.send(context.Background(), "debounced", p)
}

func (q *CommitQueue) send(ctx context.Context, mode string, p *pendingCommit) error {
	start := time.Now()
	err := q.notify.OnUpdate(ctx, p.state, p.changed)
	q.metrics.ObserveCommit(mode, time.Since(start), err)
	if err != nil {
		q.logger.Error("widget commit failed", "widget", p.state.ID, "mode", mode, "error", err)
		return err
	}
	q.logger.Info("widget committed", "widget", p.state.ID, "report", p.state.Type, "mode", mode)
	return nil
}
