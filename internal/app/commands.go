package app

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"product_reviews/internal/domain"
)

type ProductInput struct {
	Name        string
	Description *string
	Price       float64
}

type ReviewInput struct {
	ProductID string
	Author    *string
	Text      string
}

// CommandService owns the write paths: product/review CRUD plus the producer
// side of the moderation pipeline.
type CommandService struct {
	repo  domain.Repository
	queue domain.TaskQueue
	cache domain.Cache
}

func NewCommandService(r domain.Repository, q domain.TaskQueue, c domain.Cache) *CommandService {
	return &CommandService{repo: r, queue: q, cache: c}
}

func (s *CommandService) CreateProduct(ctx context.Context, in ProductInput) (domain.Product, error) {
	p := domain.Product{
		ID:          uuid.NewString(),
		Name:        in.Name,
		Description: in.Description,
		Price:       in.Price,
	}
	if err := s.repo.CreateProduct(ctx, p); err != nil {
		return domain.Product{}, fmt.Errorf("create product: %w", err)
	}
	return s.repo.GetProduct(ctx, p.ID)
}

func (s *CommandService) UpdateProduct(ctx context.Context, id string, in ProductInput) (domain.Product, error) {
	p := domain.Product{ID: id, Name: in.Name, Description: in.Description, Price: in.Price}
	if err := s.repo.UpdateProduct(ctx, p); err != nil {
		return domain.Product{}, err
	}
	s.invalidateProduct(ctx, id)
	return s.repo.GetProduct(ctx, id)
}

func (s *CommandService) DeleteProduct(ctx context.Context, id string) error {
	if err := s.repo.DeleteProduct(ctx, id); err != nil {
		return err
	}
	// Reviews go with the product (FK cascade); drop both cache entries.
	s.invalidateProduct(ctx, id)
	return nil
}

// CreateReview persists a new review in pending and submits it for
// moderation. An enqueue failure propagates to the caller: the review stays
// pending with no scheduled moderation until the caller retries.
func (s *CommandService) CreateReview(ctx context.Context, in ReviewInput) (domain.Review, error) {
	if _, err := s.repo.GetProduct(ctx, in.ProductID); err != nil {
		return domain.Review{}, err
	}
	rv := domain.Review{
		ID:        uuid.NewString(),
		ProductID: in.ProductID,
		Author:    in.Author,
		Text:      in.Text,
		Status:    domain.StatusPending,
	}
	if err := s.repo.CreateReview(ctx, rv); err != nil {
		return domain.Review{}, fmt.Errorf("create review: %w", err)
	}
	if err := s.SubmitForModeration(ctx, rv.ID); err != nil {
		return domain.Review{}, err
	}
	s.invalidateProduct(ctx, in.ProductID)
	return s.repo.GetReview(ctx, rv.ID)
}

// UpdateReviewText replaces the text, re-enters pending with the previous
// rejection reason cleared, and submits a fresh moderation task.
func (s *CommandService) UpdateReviewText(ctx context.Context, id, text string) (domain.Review, error) {
	rv, err := s.repo.ResetReviewText(ctx, id, text)
	if err != nil {
		return domain.Review{}, err
	}
	if err := s.SubmitForModeration(ctx, id); err != nil {
		return domain.Review{}, err
	}
	s.invalidateProduct(ctx, rv.ProductID)
	return rv, nil
}

func (s *CommandService) DeleteReview(ctx context.Context, id string) error {
	rv, err := s.repo.GetReview(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteReview(ctx, id); err != nil {
		return err
	}
	s.invalidateProduct(ctx, rv.ProductID)
	return nil
}

// SubmitForModeration enqueues one task referencing the review. Called after
// the create/edit write has committed.
func (s *CommandService) SubmitForModeration(ctx context.Context, reviewID string) error {
	if err := s.queue.Enqueue(ctx, reviewID); err != nil {
		return fmt.Errorf("submit review %s for moderation: %w", reviewID, err)
	}
	return nil
}

func (s *CommandService) invalidateProduct(ctx context.Context, productID string) {
	if s.cache == nil {
		return
	}
	_ = s.cache.Del(ctx, productKey(productID))
	_ = s.cache.Del(ctx, reviewsKey(productID))
}
