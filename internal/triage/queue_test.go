package triage_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-triage/internal/triage"
	apperrors "github.com/spec-kit/ticket-triage/pkg/util"
)

func fastRetry(max int) func(context.Context) triage.RetryPolicy {
	return func(context.Context) triage.RetryPolicy {
		return triage.RetryPolicy{MaxAttempts: max, BaseDelay: 2 * time.Millisecond}
	}
}

func waitSignal(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for queue")
	}
}

func TestQueueRunsJobToCompletion(t *testing.T) {
	broker := triage.NewMemoryBroker(16)
	done := make(chan struct{})

	var got triage.Job
	queue := triage.NewQueue(triage.QueueOptions{
		Broker: broker,
		Handler: func(ctx context.Context, job triage.Job) error {
			got = job
			close(done)
			return nil
		},
		Retry:   fastRetry(3),
		Workers: 2,
		Logger:  zap.NewNop(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	queue.Start(ctx)

	handle, err := queue.Enqueue(ctx, "ticket-1", "trace-1")
	require.NoError(t, err)
	require.Equal(t, "ticket-1", handle.TicketID)
	require.Equal(t, "trace-1", handle.TraceID)

	waitSignal(t, done)
	require.Equal(t, "ticket-1", got.TicketID)
	require.Equal(t, 0, got.Attempt)

	cancel()
	require.NoError(t, broker.Close())
	queue.Wait()

	completed := queue.RecentCompleted()
	require.Len(t, completed, 1)
	require.Equal(t, "ticket-1", completed[0].Job.TicketID)
	require.Empty(t, queue.RecentFailed())
}

func TestQueueRetriesUntilSuccess(t *testing.T) {
	broker := triage.NewMemoryBroker(16)
	done := make(chan struct{})

	var mu sync.Mutex
	var attempts []int
	queue := triage.NewQueue(triage.QueueOptions{
		Broker: broker,
		Handler: func(ctx context.Context, job triage.Job) error {
			mu.Lock()
			attempts = append(attempts, job.Attempt)
			count := len(attempts)
			mu.Unlock()
			if count < 3 {
				return apperrors.NewClassificationError("transient", errors.New("boom"))
			}
			close(done)
			return nil
		},
		Retry:   fastRetry(3),
		Workers: 1,
		Logger:  zap.NewNop(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	queue.Start(ctx)

	_, err := queue.Enqueue(ctx, "ticket-1", "trace-1")
	require.NoError(t, err)

	waitSignal(t, done)
	cancel()
	require.NoError(t, broker.Close())
	queue.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []int{0, 1, 2}, attempts)
	require.Len(t, queue.RecentCompleted(), 1)
	require.Empty(t, queue.RecentFailed())
}

func TestQueueExhaustsRetriesThenFails(t *testing.T) {
	broker := triage.NewMemoryBroker(16)
	failed := make(chan struct{})

	var handlerCalls, failureCalls atomic.Int32
	var failedJob triage.Job
	queue := triage.NewQueue(triage.QueueOptions{
		Broker: broker,
		Handler: func(ctx context.Context, job triage.Job) error {
			handlerCalls.Add(1)
			return apperrors.NewClassificationTimeout(errors.New("deadline"))
		},
		OnFailure: func(ctx context.Context, job triage.Job, err error) {
			failedJob = job
			if failureCalls.Add(1) == 1 {
				close(failed)
			}
		},
		Retry:   fastRetry(3),
		Workers: 1,
		Logger:  zap.NewNop(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	queue.Start(ctx)

	_, err := queue.Enqueue(ctx, "ticket-1", "trace-1")
	require.NoError(t, err)

	waitSignal(t, failed)
	cancel()
	require.NoError(t, broker.Close())
	queue.Wait()

	require.Equal(t, int32(3), handlerCalls.Load())
	require.Equal(t, int32(1), failureCalls.Load())
	require.Equal(t, 2, failedJob.Attempt)
	require.Len(t, queue.RecentFailed(), 1)
	require.Empty(t, queue.RecentCompleted())
}

func TestQueueDoesNotRetryNonRetryableErrors(t *testing.T) {
	broker := triage.NewMemoryBroker(16)
	failed := make(chan struct{})

	var handlerCalls atomic.Int32
	queue := triage.NewQueue(triage.QueueOptions{
		Broker: broker,
		Handler: func(ctx context.Context, job triage.Job) error {
			handlerCalls.Add(1)
			return apperrors.NewInvalidTransition("closed", "triaged")
		},
		OnFailure: func(ctx context.Context, job triage.Job, err error) {
			close(failed)
		},
		Retry:   fastRetry(3),
		Workers: 1,
		Logger:  zap.NewNop(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	queue.Start(ctx)

	_, err := queue.Enqueue(ctx, "ticket-1", "trace-1")
	require.NoError(t, err)

	waitSignal(t, failed)
	cancel()
	require.NoError(t, broker.Close())
	queue.Wait()

	require.Equal(t, int32(1), handlerCalls.Load())
}

func TestQueueSingleFlightPerTicket(t *testing.T) {
	broker := triage.NewMemoryBroker(16)

	var wg sync.WaitGroup
	wg.Add(4)
	var active, maxActive atomic.Int32
	queue := triage.NewQueue(triage.QueueOptions{
		Broker: broker,
		Handler: func(ctx context.Context, job triage.Job) error {
			defer wg.Done()
			now := active.Add(1)
			for {
				peak := maxActive.Load()
				if now <= peak || maxActive.CompareAndSwap(peak, now) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			active.Add(-1)
			return nil
		},
		Retry:   fastRetry(1),
		Workers: 4,
		Logger:  zap.NewNop(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	queue.Start(ctx)

	for i := 0; i < 4; i++ {
		_, err := queue.Enqueue(ctx, "ticket-1", "trace")
		require.NoError(t, err)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	waitSignal(t, done)

	cancel()
	require.NoError(t, broker.Close())
	queue.Wait()

	require.Equal(t, int32(1), maxActive.Load(), "jobs for the same ticket must not overlap")
}

func TestQueueEnqueueAfterBrokerClose(t *testing.T) {
	broker := triage.NewMemoryBroker(4)
	require.NoError(t, broker.Close())

	queue := triage.NewQueue(triage.QueueOptions{
		Broker:  broker,
		Handler: func(ctx context.Context, job triage.Job) error { return nil },
		Logger:  zap.NewNop(),
	})

	_, err := queue.Enqueue(context.Background(), "ticket-1", "trace-1")
	require.Error(t, err)
	require.Equal(t, apperrors.CodeQueueUnavailable, apperrors.CodeOf(err))
}
