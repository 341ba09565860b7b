package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"product_reviews/internal/adapters/observability"
	"product_reviews/internal/domain"
)

// Moderator is the consumer-side state machine. For each delivered task it
// re-reads the live review, classifies the current text, and persists the
// terminal status in one atomic write. A nil return acknowledges the task;
// an error requeues it for another delivery.
type Moderator struct {
	store domain.ReviewStore
	cls   domain.Classifier
	cache domain.Cache
	// maxDeliveries caps deliveries per task; 0 means unbounded, so a
	// transient failure is retried until the dependency recovers.
	maxDeliveries int
}

func NewModerator(store domain.ReviewStore, cls domain.Classifier, cache domain.Cache, maxDeliveries int) *Moderator {
	return &Moderator{store: store, cls: cls, cache: cache, maxDeliveries: maxDeliveries}
}

func (m *Moderator) Handle(ctx context.Context, t domain.Task) error {
	start := time.Now()

	if m.maxDeliveries > 0 && t.Attempts > m.maxDeliveries {
		log.Error().Str("review_id", t.ReviewID).Int("attempts", t.Attempts).
			Msg("delivery cap exceeded, dropping task")
		observability.ObserveModeration("dropped", time.Since(start))
		return nil
	}

	rv, err := m.store.GetReview(ctx, t.ReviewID)
	if errors.Is(err, domain.ErrNotFound) {
		// Deleted after enqueue: nothing to moderate.
		log.Warn().Str("review_id", t.ReviewID).Msg("review not found, dropping task")
		observability.ObserveModeration("dropped", time.Since(start))
		return nil
	}
	if err != nil {
		observability.ObserveModeration("requeued", time.Since(start))
		return fmt.Errorf("fetch review %s: %w", t.ReviewID, err)
	}

	verdict, err := m.cls.Classify(ctx, rv.Text)
	if err != nil {
		observability.ObserveModeration("requeued", time.Since(start))
		return fmt.Errorf("classify review %s: %w", t.ReviewID, err)
	}

	status, reason := verdict.Outcome()
	updated, err := m.store.SetReviewStatus(ctx, t.ReviewID, status, reason)
	if errors.Is(err, domain.ErrNotFound) {
		log.Warn().Str("review_id", t.ReviewID).Msg("review deleted mid-task, dropping")
		observability.ObserveModeration("dropped", time.Since(start))
		return nil
	}
	if err != nil {
		observability.ObserveModeration("requeued", time.Since(start))
		return fmt.Errorf("persist status for review %s: %w", t.ReviewID, err)
	}

	if m.cache != nil {
		_ = m.cache.Del(ctx, reviewsKey(updated.ProductID))
		_ = m.cache.Del(ctx, productKey(updated.ProductID))
	}

	log.Info().
		Str("review_id", t.ReviewID).
		Str("status", string(status)).
		Str("reason", strOrApproved(reason)).
		Msg("review moderated")
	observability.ObserveModeration(string(status), time.Since(start))
	return nil
}

func strOrApproved(p *string) string {
	if p == nil {
		return "approved"
	}
	return *p
}
