package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/maneesh/filebroker/internal/metrics"
	"github.com/maneesh/filebroker/internal/models"
)

// Recorder writes side-effect audit entries. Failures never reach the caller.
type Recorder interface {
	Record(ctx context.Context, ownerID, fileID string, action models.Action, metadata map[string]any)
}

// DispatcherOptions configures a Dispatcher.
type DispatcherOptions struct {
	// Async writes in a background goroutine instead of inline.
	Async bool
	// Timeout bounds each write.
	Timeout time.Duration
}

// Dispatcher records side-effect entries without blocking the audited
// operation. Writes are detached from request cancellation, bounded by a
// timeout and drained by Close.
type Dispatcher struct {
	ledger  *Ledger
	opts    DispatcherOptions
	logger  *slog.Logger
	mu      sync.RWMutex
	closed  bool
	pending sync.WaitGroup
}

var _ Recorder = (*Dispatcher)(nil)

// NewDispatcher creates a dispatcher writing through ledger.
func NewDispatcher(ledger *Ledger, opts DispatcherOptions, logger *slog.Logger) *Dispatcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	return &Dispatcher{
		ledger: ledger,
		opts:   opts,
		logger: logger.With("component", "audit_dispatcher"),
	}
}

// Record writes an entry. After Close it writes inline.
func (d *Dispatcher) Record(ctx context.Context, ownerID, fileID string, action models.Action, metadata map[string]any) {
	ctx = context.WithoutCancel(ctx)

	d.mu.RLock()
	if !d.opts.Async || d.closed {
		d.mu.RUnlock()
		d.write(ctx, ownerID, fileID, action, metadata)
		return
	}
	d.pending.Add(1)
	d.mu.RUnlock()

	go func() {
		defer d.pending.Done()
		d.write(ctx, ownerID, fileID, action, metadata)
	}()
}

func (d *Dispatcher) write(ctx context.Context, ownerID, fileID string, action models.Action, metadata map[string]any) {
	ctx, cancel := context.WithTimeout(ctx, d.opts.Timeout)
	defer cancel()

	if _, err := d.ledger.Append(ctx, ownerID, fileID, action, metadata); err != nil {
		metrics.AuditFailed()
		d.logger.ErrorContext(ctx, "audit write failed",
			"file_id", fileID,
			"action", string(action),
			"error", err,
		)
		return
	}
	metrics.AuditWritten()
}

// Close stops background dispatch and waits for pending writes until ctx is done.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.pending.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
