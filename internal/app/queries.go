package app

import (
	"context"
	"fmt"
	"time"

	"product_reviews/internal/domain"
)

func productKey(id string) string        { return fmt.Sprintf("product:%s", id) }
func reviewsKey(productID string) string { return fmt.Sprintf("reviews:%s:published", productID) }

type QueryService struct {
	repo     domain.Repository
	cache    domain.Cache
	cacheTTL time.Duration
}

func NewQueryService(r domain.Repository, c domain.Cache, ttl time.Duration) *QueryService {
	return &QueryService{repo: r, cache: c, cacheTTL: ttl}
}

// GetProduct returns the product with its reviews. Only the published-only
// variant is cached; the include-unpublished view is a moderation tool and
// always reads through.
func (s *QueryService) GetProduct(ctx context.Context, id string, includeUnpublished bool) (domain.ProductView, error) {
	key := productKey(id)
	if !includeUnpublished {
		var pv domain.ProductView
		if ok, _ := s.cache.Get(ctx, key, &pv); ok {
			return pv, nil
		}
	}
	p, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return domain.ProductView{}, err
	}
	rs, err := s.repo.ListReviews(ctx, domain.ReviewsQuery{
		ProductID:     &id,
		PublishedOnly: !includeUnpublished,
	})
	if err != nil {
		return domain.ProductView{}, err
	}
	pv := domain.ProductView{Product: p, Reviews: rs}
	if !includeUnpublished {
		_ = s.cache.Set(ctx, key, pv, int(s.cacheTTL.Seconds()))
	}
	return pv, nil
}

func (s *QueryService) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

// ListReviews serves review listings. The per-product published-only page is
// the public hot path and the only variant worth caching.
func (s *QueryService) ListReviews(ctx context.Context, q domain.ReviewsQuery) ([]domain.Review, error) {
	cacheable := q.ProductID != nil && q.PublishedOnly && q.Limit == 0
	var key string
	if cacheable {
		key = reviewsKey(*q.ProductID)
		var out []domain.Review
		if ok, _ := s.cache.Get(ctx, key, &out); ok {
			return out, nil
		}
	}
	rs, err := s.repo.ListReviews(ctx, q)
	if err != nil {
		return nil, err
	}
	if cacheable {
		// copy to avoid aliasing the repo's backing array
		cp := make([]domain.Review, len(rs))
		copy(cp, rs)
		_ = s.cache.Set(ctx, key, cp, int(s.cacheTTL.Seconds()))
	}
	return rs, nil
}

func (s *QueryService) GetReview(ctx context.Context, id string) (domain.Review, error) {
	return s.repo.GetReview(ctx, id)
}
