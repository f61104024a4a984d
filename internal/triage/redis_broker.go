package triage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	readyKey   = "triage:ready"
	delayedKey = "triage:delayed"

	dequeueBlock = 2 * time.Second
	moverPeriod  = time.Second
)

// redisBroker backs the queue with a Redis list for ready jobs and a sorted
// set for delayed retries, scored by their due time. A mover goroutine
// promotes due jobs onto the ready list.
type redisBroker struct {
	client *redis.Client
	logger *zap.Logger

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewRedisBroker builds a Redis-backed broker and starts its delayed-job
// mover.
func NewRedisBroker(client *redis.Client, logger *zap.Logger) Broker {
	b := &redisBroker{
		client: client,
		logger: logger,
		stop:   make(chan struct{}),
	}
	b.wg.Add(1)
	go b.moveDueJobs()
	return b
}

func (b *redisBroker) Enqueue(ctx context.Context, job Job) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return b.client.LPush(ctx, readyKey, payload).Err()
}

func (b *redisBroker) EnqueueDelayed(ctx context.Context, job Job, delay time.Duration) error {
	if delay <= 0 {
		return b.Enqueue(ctx, job)
	}
	payload, err := json.Marshal(job)
	if err != nil {
		return err
	}
	due := time.Now().Add(delay).UnixMilli()
	return b.client.ZAdd(ctx, delayedKey, redis.Z{
		Score:  float64(due),
		Member: payload,
	}).Err()
}

func (b *redisBroker) Dequeue(ctx context.Context) (Job, error) {
	for {
		select {
		case <-b.stop:
			return Job{}, ErrBrokerClosed
		case <-ctx.Done():
			return Job{}, ctx.Err()
		default:
		}

		res, err := b.client.BRPop(ctx, dequeueBlock, readyKey).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return Job{}, ctx.Err()
			}
			return Job{}, fmt.Errorf("dequeue: %w", err)
		}
		// BRPop returns [key, value].
		if len(res) != 2 {
			continue
		}
		var job Job
		if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
			b.logger.Error("discarding malformed job payload", zap.Error(err))
			continue
		}
		return job, nil
	}
}

func (b *redisBroker) Close() error {
	b.stopOnce.Do(func() {
		close(b.stop)
	})
	b.wg.Wait()
	return nil
}

// moveDueJobs promotes delayed jobs whose due time has passed.
func (b *redisBroker) moveDueJobs() {
	defer b.wg.Done()
	ticker := time.NewTicker(moverPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-b.stop:
			return
		case <-ticker.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), moverPeriod)
		now := strconv.FormatInt(time.Now().UnixMilli(), 10)
		due, err := b.client.ZRangeByScore(ctx, delayedKey, &redis.ZRangeBy{
			Min: "-inf",
			Max: now,
		}).Result()
		if err != nil {
			cancel()
			b.logger.Warn("delayed job scan failed", zap.Error(err))
			continue
		}
		for _, payload := range due {
			if removed, err := b.client.ZRem(ctx, delayedKey, payload).Result(); err != nil || removed == 0 {
				// Another instance claimed it first.
				continue
			}
			if err := b.client.LPush(ctx, readyKey, payload).Err(); err != nil {
				b.logger.Error("failed to promote delayed job", zap.Error(err))
			}
		}
		cancel()
	}
}
