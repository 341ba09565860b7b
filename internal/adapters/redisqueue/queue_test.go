package redisqueue_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"

	"product_reviews/internal/adapters/observability"
	"product_reviews/internal/adapters/redisqueue"
	"product_reviews/internal/domain"
)

const (
	stream = "moderation:tasks"
	group  = "moderators"
)

func newQueue(t *testing.T, consumer string) (*redisqueue.Queue, *redis.Client) {
	t.Helper()
	m := miniredis.RunT(t)
	q := redisqueue.New(m.Addr(), "", 0, redisqueue.Options{
		Stream:   stream,
		Group:    group,
		Consumer: consumer,
		Block:    50 * time.Millisecond,
		Reclaim:  time.Minute,
	})
	c := redis.NewClient(&redis.Options{Addr: m.Addr()})
	t.Cleanup(func() { _ = c.Close() })
	return q, c
}

// consumeInto runs Consume in the background, forwarding each delivery to ch
// and answering with the scripted handler result.
func consumeInto(t *testing.T, q *redisqueue.Queue, ch chan<- domain.Task, results <-chan error) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		_ = q.Consume(ctx, func(ctx context.Context, task domain.Task) error {
			ch <- task
			return <-results
		})
	}()
	return cancel
}

func waitTask(t *testing.T, ch <-chan domain.Task) domain.Task {
	t.Helper()
	select {
	case task := <-ch:
		return task
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a delivery")
		return domain.Task{}
	}
}

func TestEnqueue_PersistsBeforeReturning(t *testing.T) {
	q, c := newQueue(t, "w1")
	ctx := context.Background()

	if err := q.Enqueue(ctx, "rev-1"); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	n, err := c.XLen(ctx, stream).Result()
	if err != nil || n != 1 {
		t.Fatalf("stream length = %d (%v), want 1", n, err)
	}
}

func TestConsume_DeliversThenAckRemoves(t *testing.T) {
	q, c := newQueue(t, "w1")
	ctx := context.Background()

	if err := q.Enqueue(ctx, "rev-1"); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	tasks := make(chan domain.Task, 1)
	results := make(chan error, 1)
	results <- nil
	cancel := consumeInto(t, q, tasks, results)
	defer cancel()

	task := waitTask(t, tasks)
	if task.ReviewID != "rev-1" || task.Attempts != 1 {
		t.Fatalf("task = %+v", task)
	}

	// acked entries are gone from both the stream and the pending list
	deadline := time.Now().Add(5 * time.Second)
	for {
		n, _ := c.XLen(ctx, stream).Result()
		if n == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("stream still has %d entries after ack", n)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestConsume_NackRedeliversWithBumpedAttempts(t *testing.T) {
	q, _ := newQueue(t, "w1")
	ctx := context.Background()

	if err := q.Enqueue(ctx, "rev-1"); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	tasks := make(chan domain.Task, 2)
	results := make(chan error, 2)
	results <- errors.New("classifier down") // first delivery fails
	results <- nil                           // redelivery succeeds
	cancel := consumeInto(t, q, tasks, results)
	defer cancel()

	first := waitTask(t, tasks)
	if first.Attempts != 1 {
		t.Fatalf("first delivery attempts = %d, want 1", first.Attempts)
	}
	second := waitTask(t, tasks)
	if second.ReviewID != "rev-1" {
		t.Fatalf("redelivered review = %s, want rev-1", second.ReviewID)
	}
	if second.Attempts != 2 {
		t.Fatalf("redelivery attempts = %d, want 2", second.Attempts)
	}
}

func TestConsume_MalformedEntryDropped(t *testing.T) {
	q, c := newQueue(t, "w1")
	ctx := context.Background()

	// an entry with no review_id can never succeed
	if err := c.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]any{"garbage": "42"},
	}).Err(); err != nil {
		t.Fatalf("xadd: %v", err)
	}
	if err := q.Enqueue(ctx, "rev-ok"); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	tasks := make(chan domain.Task, 2)
	results := make(chan error, 2)
	results <- nil
	cancel := consumeInto(t, q, tasks, results)
	defer cancel()

	// only the well-formed task reaches the handler
	task := waitTask(t, tasks)
	if task.ReviewID != "rev-ok" {
		t.Fatalf("delivered %q, want rev-ok", task.ReviewID)
	}
	select {
	case extra := <-tasks:
		t.Fatalf("unexpected extra delivery: %+v", extra)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestConsume_ReclaimsAbandonedDelivery(t *testing.T) {
	m := miniredis.RunT(t)
	c := redis.NewClient(&redis.Options{Addr: m.Addr()})
	t.Cleanup(func() { _ = c.Close() })
	ctx := context.Background()

	// a consumer that crashed after reading, before acking
	if err := c.XGroupCreateMkStream(ctx, stream, group, "0").Err(); err != nil {
		t.Fatalf("group: %v", err)
	}
	if err := c.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]any{"review_id": "rev-orphan", "attempts": 1},
	}).Err(); err != nil {
		t.Fatalf("xadd: %v", err)
	}
	if err := c.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group: group, Consumer: "dead", Streams: []string{stream, ">"}, Count: 1, Block: time.Millisecond,
	}).Err(); err != nil && err != redis.Nil {
		t.Fatalf("read as dead consumer: %v", err)
	}

	time.Sleep(20 * time.Millisecond)

	q := redisqueue.New(m.Addr(), "", 0, redisqueue.Options{
		Stream:   stream,
		Group:    group,
		Consumer: "w2",
		Block:    50 * time.Millisecond,
		Reclaim:  10 * time.Millisecond,
	})
	tasks := make(chan domain.Task, 1)
	results := make(chan error, 1)
	results <- nil
	cancel := consumeInto(t, q, tasks, results)
	defer cancel()

	task := waitTask(t, tasks)
	if task.ReviewID != "rev-orphan" {
		t.Fatalf("reclaimed %q, want rev-orphan", task.ReviewID)
	}
}

func TestQueueEvents_RequeueCountsNackOnly(t *testing.T) {
	q, _ := newQueue(t, "w1")
	ctx := context.Background()

	ackEvents := observability.QueueEvents.WithLabelValues("ack")
	nackEvents := observability.QueueEvents.WithLabelValues("nack")
	ackBefore := testutil.ToFloat64(ackEvents)
	nackBefore := testutil.ToFloat64(nackEvents)

	if err := q.Enqueue(ctx, "rev-1"); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	tasks := make(chan domain.Task, 2)
	results := make(chan error, 2)
	results <- errors.New("classifier down") // first delivery fails
	results <- nil                           // redelivery succeeds
	cancel := consumeInto(t, q, tasks, results)
	defer cancel()

	waitTask(t, tasks)
	waitTask(t, tasks)

	// the final ack lands after the handler returns
	deadline := time.Now().Add(5 * time.Second)
	for testutil.ToFloat64(ackEvents)-ackBefore < 1 {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for the ack event")
		}
		time.Sleep(10 * time.Millisecond)
	}

	// one failed delivery, one successful redelivery: exactly one nack and
	// one ack, never both for the same retirement
	if got := testutil.ToFloat64(ackEvents) - ackBefore; got != 1 {
		t.Fatalf("ack events = %v, want 1", got)
	}
	if got := testutil.ToFloat64(nackEvents) - nackBefore; got != 1 {
		t.Fatalf("nack events = %v, want 1", got)
	}
}
