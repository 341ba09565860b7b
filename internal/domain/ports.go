package domain

import "context"

type Repository interface {
	// Products
	CreateProduct(ctx context.Context, p Product) error
	GetProduct(ctx context.Context, id string) (Product, error)
	ListProducts(ctx context.Context) ([]Product, error)
	UpdateProduct(ctx context.Context, p Product) error
	DeleteProduct(ctx context.Context, id string) error

	// Reviews
	CreateReview(ctx context.Context, r Review) error
	ListReviews(ctx context.Context, q ReviewsQuery) ([]Review, error)
	ResetReviewText(ctx context.Context, id, text string) (Review, error)
	DeleteReview(ctx context.Context, id string) error

	ReviewStore
}

// ReviewStore is the slice of the repository the moderation worker needs:
// fetch current state, then one atomic status write.
type ReviewStore interface {
	GetReview(ctx context.Context, id string) (Review, error)
	SetReviewStatus(ctx context.Context, id string, status ReviewStatus, reason *string) (Review, error)
}

// TaskHandler processes one delivered task. A nil return acknowledges the
// task (including deliberate drops); an error negatively acknowledges it and
// makes it immediately eligible for redelivery.
type TaskHandler func(ctx context.Context, t Task) error

type TaskQueue interface {
	// Enqueue durably persists one moderation task before returning.
	Enqueue(ctx context.Context, reviewID string) error
	// Consume blocks, delivering tasks to h one at a time until ctx is done.
	// Delivery is at-least-once; a task not acknowledged is redelivered.
	Consume(ctx context.Context, h TaskHandler) error
}

// Classifier decides whether a text is toxic or spam. It may be slow or
// transiently unavailable; it never mutates anything.
type Classifier interface {
	Classify(ctx context.Context, text string) (Verdict, error)
}

type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any, ttlSec int) error
	Del(ctx context.Context, key string) error
}

// ProductView is the read model for product endpoints: the product plus the
// slice of its reviews the caller is allowed to see.
type ProductView struct {
	Product
	Reviews []Review
}

type ReviewsQuery struct {
	ProductID     *string
	PublishedOnly bool
	Limit         int
}
