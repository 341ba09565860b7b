package redisqueue

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"product_reviews/internal/adapters/observability"
	"product_reviews/internal/domain"
)

// Queue is a durable at-least-once task channel on a Redis stream with a
// consumer group. Delivery is fan-out-one: each entry goes to exactly one
// active consumer. Entries survive a broker restart (subject to the server's
// persistence config) and a consumer crash before ack leaves the entry in the
// group's pending list, where the reclaim sweep picks it up for redelivery.
type Queue struct {
	c        *redis.Client
	stream   string
	group    string
	consumer string
	block    time.Duration
	reclaim  time.Duration
}

type Options struct {
	Stream   string
	Group    string
	Consumer string
	// Block is how long one read waits for a delivery before re-polling.
	Block time.Duration
	// Reclaim is the min idle time before a delivery abandoned by a dead
	// consumer is claimed back and redelivered.
	Reclaim time.Duration
}

func New(addr, pass string, db int, o Options) *Queue {
	if o.Block <= 0 {
		o.Block = 5 * time.Second
	}
	if o.Reclaim <= 0 {
		o.Reclaim = time.Minute
	}
	return &Queue{
		c:        redis.NewClient(&redis.Options{Addr: addr, Password: pass, DB: db}),
		stream:   o.Stream,
		group:    o.Group,
		consumer: o.Consumer,
		block:    o.Block,
		reclaim:  o.Reclaim,
	}
}

func (q *Queue) Ping(ctx context.Context) error { return q.c.Ping(ctx).Err() }

// Enqueue durably appends one task before returning. Failures map to
// ErrQueueUnavailable so the producer's caller fails loudly.
func (q *Queue) Enqueue(ctx context.Context, reviewID string) error {
	err := q.c.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream,
		Values: map[string]any{"review_id": reviewID, "attempts": 1},
	}).Err()
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrQueueUnavailable, err)
	}
	observability.ObserveQueue("enqueue")
	return nil
}

// Consume blocks delivering tasks one at a time (prefetch = 1) until ctx is
// done. Read errors are logged and retried in place; the consumer never gives
// up on broker connectivity loss.
func (q *Queue) Consume(ctx context.Context, h domain.TaskHandler) error {
	if err := q.ensureGroup(ctx); err != nil {
		return err
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		msg, ok, err := q.next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Warn().Err(err).Msg("queue read failed, retrying in 5 seconds")
			if !sleepCtx(ctx, 5*time.Second) {
				return ctx.Err()
			}
			continue
		}
		if !ok {
			continue
		}
		observability.ObserveQueue("deliver")
		q.dispatch(ctx, h, msg)
	}
}

func (q *Queue) ensureGroup(ctx context.Context) error {
	err := q.c.XGroupCreateMkStream(ctx, q.stream, q.group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group: %w", err)
	}
	return nil
}

// next prefers reclaiming a stalled pending entry over reading a fresh one,
// so crash-before-ack deliveries are not starved behind new traffic.
func (q *Queue) next(ctx context.Context) (redis.XMessage, bool, error) {
	claimed, _, err := q.c.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   q.stream,
		Group:    q.group,
		Consumer: q.consumer,
		MinIdle:  q.reclaim,
		Start:    "0-0",
		Count:    1,
	}).Result()
	if err != nil && err != redis.Nil {
		return redis.XMessage{}, false, err
	}
	if len(claimed) > 0 {
		observability.ObserveQueue("reclaim")
		return claimed[0], true, nil
	}

	res, err := q.c.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    q.group,
		Consumer: q.consumer,
		Streams:  []string{q.stream, ">"},
		Count:    1,
		Block:    q.block,
	}).Result()
	if err == redis.Nil {
		return redis.XMessage{}, false, nil // block timeout, poll again
	}
	if err != nil {
		return redis.XMessage{}, false, err
	}
	if len(res) == 0 || len(res[0].Messages) == 0 {
		return redis.XMessage{}, false, nil
	}
	return res[0].Messages[0], true, nil
}

func (q *Queue) dispatch(ctx context.Context, h domain.TaskHandler, msg redis.XMessage) {
	t, err := parseTask(msg)
	if err != nil {
		// A malformed entry can never succeed; dropping beats retrying forever.
		log.Error().Err(err).Str("entry", msg.ID).Msg("malformed task, dropping")
		q.ack(ctx, msg.ID)
		observability.ObserveQueue("drop")
		return
	}
	if err := h(ctx, t); err != nil {
		log.Warn().Err(err).Str("review_id", t.ReviewID).Int("attempts", t.Attempts).Msg("task failed, requeueing")
		q.nack(ctx, t, msg.ID)
		return
	}
	q.ack(ctx, msg.ID)
}

// ack permanently removes the entry: out of the pending list, then out of
// the stream itself.
func (q *Queue) ack(ctx context.Context, id string) {
	if q.remove(ctx, id) {
		observability.ObserveQueue("ack")
	}
}

func (q *Queue) remove(ctx context.Context, id string) bool {
	if err := q.c.XAck(ctx, q.stream, q.group, id).Err(); err != nil {
		log.Error().Err(err).Str("entry", id).Msg("ack failed")
		return false
	}
	_ = q.c.XDel(ctx, q.stream, id).Err()
	return true
}

// nack re-appends a copy with a bumped attempt count and retires the
// original, making the task immediately eligible for redelivery by any
// consumer. The retirement is not an ack: a requeued task counts as one
// nack event only.
func (q *Queue) nack(ctx context.Context, t domain.Task, id string) {
	err := q.c.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream,
		Values: map[string]any{"review_id": t.ReviewID, "attempts": t.Attempts + 1},
	}).Err()
	if err != nil {
		// Leave the original pending; the reclaim sweep will redeliver it.
		log.Error().Err(err).Str("review_id", t.ReviewID).Msg("requeue failed, leaving entry pending")
		return
	}
	if q.remove(ctx, id) {
		observability.ObserveQueue("nack")
	}
}

func parseTask(msg redis.XMessage) (domain.Task, error) {
	rid, _ := msg.Values["review_id"].(string)
	if rid == "" {
		return domain.Task{}, fmt.Errorf("entry %s has no review_id", msg.ID)
	}
	attempts := 1
	if s, ok := msg.Values["attempts"].(string); ok {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			attempts = n
		}
	}
	return domain.Task{ID: msg.ID, ReviewID: rid, Attempts: attempts}, nil
}

// sleepCtx waits for d or returns early if ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
