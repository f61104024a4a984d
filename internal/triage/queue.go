package triage

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-triage/internal/observability"
	apperrors "github.com/spec-kit/ticket-triage/pkg/util"
)

// Retained history sizes, matching the production queue's removal policy.
const (
	completedHistorySize = 10
	failedHistorySize    = 5
)

// Handler processes one job attempt.
type Handler func(ctx context.Context, job Job) error

// FailureHandler runs exactly once when a job fails permanently, either by
// exhausting its retries or by hitting a non-retryable error.
type FailureHandler func(ctx context.Context, job Job, err error)

// JobHandle is returned to enqueue callers for observability.
type JobHandle struct {
	TicketID string
	TraceID  string
}

// JobRecord is a bounded-history entry for a finished job.
type JobRecord struct {
	Job        Job
	Err        string
	FinishedAt time.Time
}

// Queue executes triage jobs on a bounded worker pool with per-job retry
// and backoff, and per-ticket mutual exclusion.
type Queue struct {
	broker    Broker
	handler   Handler
	onFailure FailureHandler
	retryFor  func(ctx context.Context) RetryPolicy
	workers   int
	logger    *zap.Logger
	metrics   *observability.Metrics

	inflight *keyedMutex

	mu        sync.Mutex
	completed []JobRecord
	failed    []JobRecord

	wg sync.WaitGroup
}

// QueueOptions configures a Queue.
type QueueOptions struct {
	Broker    Broker
	Handler   Handler
	OnFailure FailureHandler
	// Retry supplies the retry policy for a failing job. It is consulted
	// fresh on every failure so operator changes to the retry budget take
	// effect without a restart. Nil means DefaultRetryPolicy.
	Retry   func(ctx context.Context) RetryPolicy
	Workers int
	Logger  *zap.Logger
	Metrics *observability.Metrics
}

// NewQueue builds a queue; call Start to begin processing.
func NewQueue(opts QueueOptions) *Queue {
	workers := opts.Workers
	if workers <= 0 {
		workers = 5
	}
	retryFor := opts.Retry
	if retryFor == nil {
		retryFor = func(context.Context) RetryPolicy { return DefaultRetryPolicy() }
	}
	return &Queue{
		broker:    opts.Broker,
		handler:   opts.Handler,
		onFailure: opts.OnFailure,
		retryFor:  retryFor,
		workers:   workers,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
		inflight:  newKeyedMutex(),
	}
}

// Enqueue accepts a new triage job for the ticket.
func (q *Queue) Enqueue(ctx context.Context, ticketID, traceID string) (*JobHandle, error) {
	job := Job{TicketID: ticketID, TraceID: traceID}
	if err := q.broker.Enqueue(ctx, job); err != nil {
		return nil, apperrors.NewQueueUnavailable(err)
	}
	q.logger.Info("queued triage job",
		zap.String("ticket_id", ticketID),
		zap.String("trace_id", traceID),
	)
	return &JobHandle{TicketID: ticketID, TraceID: traceID}, nil
}

// Start launches the worker pool. Workers exit when ctx is canceled or the
// broker closes.
func (q *Queue) Start(ctx context.Context) {
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, i)
	}
}

// Wait blocks until every worker has exited.
func (q *Queue) Wait() {
	q.wg.Wait()
}

// RecentCompleted returns the bounded history of successful jobs.
func (q *Queue) RecentCompleted() []JobRecord {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]JobRecord(nil), q.completed...)
}

// RecentFailed returns the bounded history of permanently failed jobs.
func (q *Queue) RecentFailed() []JobRecord {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]JobRecord(nil), q.failed...)
}

func (q *Queue) worker(ctx context.Context, id int) {
	defer q.wg.Done()
	for {
		job, err := q.broker.Dequeue(ctx)
		if err != nil {
			if ctx.Err() == nil && err != ErrBrokerClosed {
				q.logger.Error("dequeue failed", zap.Int("worker", id), zap.Error(err))
			}
			return
		}
		q.process(ctx, job)
	}
}

// process runs one attempt under the ticket's single-flight lock. Jobs for
// different tickets proceed independently; a second job for the same ticket
// waits here until the first finishes.
func (q *Queue) process(ctx context.Context, job Job) {
	q.inflight.Lock(job.TicketID)
	defer q.inflight.Unlock(job.TicketID)

	err := q.handler(ctx, job)
	if err == nil {
		q.metrics.JobCompleted()
		q.record(&q.completed, job, nil, completedHistorySize)
		return
	}

	retry := q.retryFor(ctx)
	if retry.MaxAttempts <= 0 {
		retry = DefaultRetryPolicy()
	}
	if apperrors.IsRetryable(err) && retry.ShouldRetry(job.Attempt) {
		next := job
		next.Attempt++
		delay := retry.Delay(job.Attempt)
		q.metrics.JobRetried()
		q.logger.Warn("triage attempt failed, scheduling retry",
			zap.String("ticket_id", job.TicketID),
			zap.String("trace_id", job.TraceID),
			zap.Int("attempt", job.Attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		reErr := q.broker.EnqueueDelayed(ctx, next, delay)
		if reErr == nil {
			return
		}
		// The retry could not be scheduled; fall through to permanent
		// failure so the job is not silently dropped.
		q.logger.Error("failed to schedule retry", zap.Error(reErr))
	}

	q.metrics.JobFailed()
	q.logger.Error("triage job failed permanently",
		zap.String("ticket_id", job.TicketID),
		zap.String("trace_id", job.TraceID),
		zap.Int("attempts", job.Attempt+1),
		zap.Error(err),
	)
	q.record(&q.failed, job, err, failedHistorySize)
	if q.onFailure != nil {
		q.onFailure(ctx, job, err)
	}
}

func (q *Queue) record(list *[]JobRecord, job Job, err error, max int) {
	record := JobRecord{Job: job, FinishedAt: time.Now()}
	if err != nil {
		record.Err = err.Error()
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	*list = append(*list, record)
	if len(*list) > max {
		*list = (*list)[len(*list)-max:]
	}
}
