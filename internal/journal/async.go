package journal

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/m3rciful/topup/core/logger"
)

// ErrQueueFull is returned when the async queue cannot accept more entries.
var ErrQueueFull = errors.New("journal: queue full")

// AsyncOptions controls the background writer.
type AsyncOptions struct {
	QueueSize    int
	WriteTimeout time.Duration
}

// Async moves Record calls off the caller's goroutine. Session timers call
// into the journal, so a slow database must not stall them.
type Async struct {
	next    Recorder
	opts    AsyncOptions
	entries chan Entry
	mu      sync.RWMutex
	closed  bool
	wg      sync.WaitGroup
	dropped atomic.Uint64
	errs    atomic.Uint64
}

// NewAsync starts a single writer in front of next.
func NewAsync(next Recorder, opts AsyncOptions) *Async {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 128
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	a := &Async{
		next:    next,
		opts:    opts,
		entries: make(chan Entry, opts.QueueSize),
	}
	a.wg.Add(1)
	go a.worker()
	return a
}

// Record enqueues e. It never blocks.
func (a *Async) Record(ctx context.Context, e Entry) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return ErrClosed
	}
	select {
	case a.entries <- e:
		return nil
	default:
		a.dropped.Add(1)
		logger.Warn(ctx, logger.CompJournal, "record.drop",
			slog.String("session_id", e.SessionID),
			slog.String("err", ErrQueueFull.Error()),
		)
		return ErrQueueFull
	}
}

// Recent reads through to the wrapped recorder. Queued entries are not visible yet.
func (a *Async) Recent(ctx context.Context, limit int) ([]Entry, error) {
	return a.next.Recent(ctx, limit)
}

func (a *Async) Ping(ctx context.Context) error { return a.next.Ping(ctx) }

// Dropped reports how many entries were rejected by a full queue.
func (a *Async) Dropped() uint64 { return a.dropped.Load() }

// Errors reports how many writes failed in the wrapped recorder.
func (a *Async) Errors() uint64 { return a.errs.Load() }

// Close stops accepting entries and waits until the queue is drained.
func (a *Async) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	close(a.entries)
	a.mu.Unlock()
	a.wg.Wait()
}

func (a *Async) worker() {
	defer a.wg.Done()
	for e := range a.entries {
		a.write(e)
	}
}

func (a *Async) write(e Entry) {
	ctx, cancel := context.WithTimeout(logger.WithSession(context.Background(), e.SessionID), a.opts.WriteTimeout)
	defer cancel()

	start := time.Now()
	if err := a.next.Record(ctx, e); err != nil {
		a.errs.Add(1)
		logger.Error(ctx, logger.CompJournal, "record.fail",
			slog.String("err", err.Error()),
			slog.Duration("took", logger.Took(start)),
		)
		return
	}
	logger.Debug(ctx, logger.CompJournal, "record.ok",
		slog.String("status", e.Status),
		slog.String("surface", e.Surface),
		slog.Duration("took", logger.Took(start)),
	)
}
