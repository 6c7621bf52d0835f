package history

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/hrygo/leodock/ai/metrics"
)

// fillFunc embeds and stores the vector of one conversation.
type fillFunc func(ctx context.Context, id int64) (filled bool, err error)

// ErrBackfillerClosed is returned by EnqueueWait once Close has been called.
var ErrBackfillerClosed = errors.New("backfiller closed")

// Backfiller runs embedding jobs on a fixed pool of workers fed by a bounded
// queue. Enqueue never blocks; EnqueueWait waits for room.
type Backfiller struct {
	ctx     context.Context
	cancel  context.CancelFunc
	jobs    chan int64
	fill    fillFunc
	group   errgroup.Group
	metrics *metrics.PrometheusExporter
	logger  *slog.Logger

	mu      sync.Mutex
	waiters []chan struct{}
	space   chan struct{}
	pending int
	closed  bool

	timeout time.Duration
}

// BackfillerOptions configures a Backfiller.
type BackfillerOptions struct {
	Logger     *slog.Logger
	Metrics    *metrics.PrometheusExporter
	Workers    int
	QueueSize  int
	JobTimeout time.Duration
}

func newBackfiller(fill fillFunc, opts BackfillerOptions) *Backfiller {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1
	}
	if opts.JobTimeout <= 0 {
		opts.JobTimeout = 30 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	b := &Backfiller{
		ctx:     ctx,
		cancel:  cancel,
		jobs:    make(chan int64, opts.QueueSize),
		fill:    fill,
		metrics: opts.Metrics,
		logger:  opts.Logger,
		timeout: opts.JobTimeout,
	}
	for i := 0; i < opts.Workers; i++ {
		b.group.Go(func() error {
			b.work()
			return nil
		})
	}
	return b
}

// Enqueue schedules id and reports whether it was accepted. A full queue or
// a closed backfiller rejects the job.
func (b *Backfiller) Enqueue(id int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return false
	}
	select {
	case b.jobs <- id:
		b.pending++
		b.metrics.SetBackfillQueueDepth(b.pending)
		return true
	default:
		b.metrics.RecordBackfill(metrics.OutcomeDropped)
		return false
	}
}

// EnqueueWait schedules id, waiting for queue room until ctx is done.
func (b *Backfiller) EnqueueWait(ctx context.Context, id int64) error {
	for {
		b.mu.Lock()
		if b.closed {
			b.mu.Unlock()
			return ErrBackfillerClosed
		}
		select {
		case b.jobs <- id:
			b.pending++
			b.metrics.SetBackfillQueueDepth(b.pending)
			b.mu.Unlock()
			return nil
		default:
		}
		// Registered under the lock held for the failed send, so no finish
		// can signal unseen.
		if b.space == nil {
			b.space = make(chan struct{})
		}
		space := b.space
		b.mu.Unlock()

		select {
		case <-space:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Pending returns the number of queued or running jobs.
func (b *Backfiller) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pending
}

// Wait blocks until every accepted job has finished or ctx is done.
func (b *Backfiller) Wait(ctx context.Context) error {
	b.mu.Lock()
	if b.pending == 0 {
		b.mu.Unlock()
		return nil
	}
	ch := make(chan struct{})
	b.waiters = append(b.waiters, ch)
	b.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops intake and drains the queue. If ctx expires first, running
// jobs are cancelled and the remaining queue is discarded. Close returns
// once every worker has exited.
func (b *Backfiller) Close(ctx context.Context) error {
	b.mu.Lock()
	if !b.closed {
		b.closed = true
		close(b.jobs)
		b.signalSpace()
	}
	b.mu.Unlock()

	done := make(chan struct{})
	go func() {
		_ = b.group.Wait()
		close(done)
	}()

	select {
	case <-done:
		b.cancel()
		return nil
	case <-ctx.Done():
		b.cancel()
		<-done
		return ctx.Err()
	}
}

func (b *Backfiller) work() {
	for id := range b.jobs {
		b.run(id)
		b.finish()
	}
}

func (b *Backfiller) run(id int64) {
	if b.ctx.Err() != nil {
		b.metrics.RecordBackfill(metrics.OutcomeDropped)
		return
	}

	ctx, cancel := context.WithTimeout(b.ctx, b.timeout)
	defer cancel()

	filled, err := b.fill(ctx, id)
	outcome := backfillOutcome(filled, err)
	b.metrics.RecordBackfill(outcome)
	if err != nil {
		b.logger.Warn("embedding backfill failed, record stays pending",
			"conversation_id", id,
			"outcome", outcome,
			"error", err,
		)
	}
}

func (b *Backfiller) finish() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.pending--
	b.metrics.SetBackfillQueueDepth(b.pending)
	b.signalSpace()
	if b.pending == 0 {
		for _, ch := range b.waiters {
			close(ch)
		}
		b.waiters = nil
	}
}

// signalSpace wakes EnqueueWait callers. The caller must hold b.mu.
func (b *Backfiller) signalSpace() {
	if b.space != nil {
		close(b.space)
		b.space = nil
	}
}
