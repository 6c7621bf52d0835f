package history

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/leodock/ai/embedding"
	"github.com/hrygo/leodock/ai/metrics"
)

func TestBackfiller_RunsJobs(t *testing.T) {
	var mu sync.Mutex
	seen := map[int64]bool{}
	b := newBackfiller(func(_ context.Context, id int64) (bool, error) {
		mu.Lock()
		defer mu.Unlock()
		seen[id] = true
		return true, nil
	}, BackfillerOptions{Workers: 3, QueueSize: 10})

	for id := int64(1); id <= 10; id++ {
		require.True(t, b.Enqueue(id))
	}
	require.NoError(t, b.Close(context.Background()))

	assert.Len(t, seen, 10)
	assert.Equal(t, 0, b.Pending())
	assert.False(t, b.Enqueue(11), "closed backfiller rejects work")
}

func TestBackfiller_QueueFull(t *testing.T) {
	release := make(chan struct{})
	b := newBackfiller(func(context.Context, int64) (bool, error) {
		<-release
		return true, nil
	}, BackfillerOptions{Workers: 1, QueueSize: 1})

	require.True(t, b.Enqueue(1))
	// The worker may or may not have picked up job 1 yet, so at most one
	// more job fits.
	accepted := 0
	for id := int64(2); id <= 4; id++ {
		if b.Enqueue(id) {
			accepted++
		}
	}
	assert.LessOrEqual(t, accepted, 1)

	close(release)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, b.Wait(ctx))
	require.NoError(t, b.Close(ctx))
}

func TestBackfiller_CloseCancelsOnDeadline(t *testing.T) {
	var cancelled atomic.Bool
	b := newBackfiller(func(ctx context.Context, _ int64) (bool, error) {
		<-ctx.Done()
		cancelled.Store(true)
		return false, ctx.Err()
	}, BackfillerOptions{Workers: 1, QueueSize: 4, JobTimeout: time.Minute})

	require.True(t, b.Enqueue(1))
	require.True(t, b.Enqueue(2))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := b.Close(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, cancelled.Load())
	assert.Equal(t, 0, b.Pending())
}

func TestBackfiller_WaitHonorsContext(t *testing.T) {
	release := make(chan struct{})
	b := newBackfiller(func(context.Context, int64) (bool, error) {
		<-release
		return true, nil
	}, BackfillerOptions{Workers: 1, QueueSize: 1})
	defer func() {
		close(release)
		_ = b.Close(context.Background())
	}()

	require.True(t, b.Enqueue(1))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, b.Wait(ctx), context.DeadlineExceeded)
}

func TestBackfillOutcome(t *testing.T) {
	assert.Equal(t, metrics.OutcomeOK, backfillOutcome(true, nil))
	assert.Equal(t, metrics.OutcomeSkipped, backfillOutcome(false, nil))
	assert.Equal(t, metrics.OutcomeUnavailable, backfillOutcome(false, embedding.ErrEmbeddingUnavailable))
	assert.Equal(t, metrics.OutcomeMalformed, backfillOutcome(false, embedding.ErrMalformedEmbedding))
	assert.Equal(t, metrics.OutcomeError, backfillOutcome(false, context.Canceled))
}

func TestBackfiller_EnqueueWait(t *testing.T) {
	release := make(chan struct{})
	var done atomic.Int32
	b := newBackfiller(func(context.Context, int64) (bool, error) {
		<-release
		done.Add(1)
		return true, nil
	}, BackfillerOptions{Workers: 1, QueueSize: 1})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// One job running, one buffered; the rest wait for room.
	errs := make(chan error, 1)
	go func() {
		for id := int64(1); id <= 5; id++ {
			if err := b.EnqueueWait(ctx, id); err != nil {
				errs <- err
				return
			}
		}
		errs <- nil
	}()
	close(release)
	require.NoError(t, <-errs)
	require.NoError(t, b.Wait(ctx))
	assert.EqualValues(t, 5, done.Load())

	require.NoError(t, b.Close(ctx))
	assert.ErrorIs(t, b.EnqueueWait(ctx, 6), ErrBackfillerClosed)
}

func TestBackfiller_EnqueueWaitHonorsContext(t *testing.T) {
	release := make(chan struct{})
	b := newBackfiller(func(context.Context, int64) (bool, error) {
		<-release
		return true, nil
	}, BackfillerOptions{Workers: 1, QueueSize: 1})
	defer func() {
		close(release)
		_ = b.Close(context.Background())
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	var err error
	for id := int64(1); id <= 3 && err == nil; id++ {
		err = b.EnqueueWait(ctx, id)
	}
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
