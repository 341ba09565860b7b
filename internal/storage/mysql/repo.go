package mysql

import (
	"context"
	"database/sql"
	"strings"

	"product_reviews/internal/domain"
)

func valStr(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

type Repo struct{ db *sql.DB }

func New(db *sql.DB) *Repo { return &Repo{db: db} }

// ---- products ----

func (r *Repo) CreateProduct(ctx context.Context, p domain.Product) error {
	_, err := r.db.ExecContext(ctx, insertProductSQL, p.ID, p.Name, valStr(p.Description), p.Price)
	return err
}

func (r *Repo) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	row := r.db.QueryRowContext(ctx, getProductSQL, id)
	return scanProduct(row)
}

func (r *Repo) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := r.db.QueryContext(ctx, listProductsSQL)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *Repo) UpdateProduct(ctx context.Context, p domain.Product) error {
	res, err := r.db.ExecContext(ctx, updateProductSQL, p.Name, valStr(p.Description), p.Price, p.ID)
	if err != nil {
		return err
	}
	return mustExist(res, func() error {
		_, err := r.GetProduct(ctx, p.ID)
		return err
	})
}

func (r *Repo) DeleteProduct(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, deleteProductSQL, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ---- reviews ----

func (r *Repo) CreateReview(ctx context.Context, rv domain.Review) error {
	_, err := r.db.ExecContext(ctx, insertReviewSQL,
		rv.ID, rv.ProductID, valStr(rv.Author), rv.Text, string(rv.Status))
	return err
}

func (r *Repo) GetReview(ctx context.Context, id string) (domain.Review, error) {
	row := r.db.QueryRowContext(ctx, getReviewSQL, id)
	return scanReview(row)
}

func (r *Repo) SetReviewStatus(ctx context.Context, id string, status domain.ReviewStatus, reason *string) (domain.Review, error) {
	if _, err := r.db.ExecContext(ctx, setReviewStatusSQL, string(status), valStr(reason), id); err != nil {
		return domain.Review{}, err
	}
	// Re-read rather than trusting RowsAffected: MySQL reports 0 affected
	// rows for a value-identical rewrite, which a redelivered task can cause.
	return r.GetReview(ctx, id)
}

func (r *Repo) ResetReviewText(ctx context.Context, id, text string) (domain.Review, error) {
	if _, err := r.db.ExecContext(ctx, resetReviewTextSQL, text, id); err != nil {
		return domain.Review{}, err
	}
	return r.GetReview(ctx, id)
}

func (r *Repo) DeleteReview(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, deleteReviewSQL, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *Repo) ListReviews(ctx context.Context, q domain.ReviewsQuery) ([]domain.Review, error) {
	var (
		conds []string
		args  []any
	)
	if q.ProductID != nil {
		conds = append(conds, "product_id = ?")
		args = append(args, *q.ProductID)
	}
	if q.PublishedOnly {
		conds = append(conds, "status = 'published'")
	}
	sqlStr := listReviewsPrefix
	if len(conds) > 0 {
		sqlStr += "WHERE " + strings.Join(conds, " AND ") + "\n"
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}
	sqlStr += listReviewsSuffix
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Review
	for rows.Next() {
		rv, err := scanReview(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rv)
	}
	return out, rows.Err()
}

// ---- scanning ----

type scanner interface{ Scan(dest ...any) error }

func scanProduct(s scanner) (domain.Product, error) {
	var p domain.Product
	var desc sql.NullString
	if err := s.Scan(&p.ID, &p.Name, &desc, &p.Price, &p.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return domain.Product{}, domain.ErrNotFound
		}
		return domain.Product{}, err
	}
	if desc.Valid {
		d := desc.String
		p.Description = &d
	}
	return p, nil
}

func scanReview(s scanner) (domain.Review, error) {
	var rv domain.Review
	var author, reason sql.NullString
	var status string
	if err := s.Scan(&rv.ID, &rv.ProductID, &author, &rv.Text, &status, &reason, &rv.CreatedAt, &rv.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return domain.Review{}, domain.ErrNotFound
		}
		return domain.Review{}, err
	}
	rv.Status = domain.ReviewStatus(status)
	if author.Valid {
		a := author.String
		rv.Author = &a
	}
	if reason.Valid {
		m := reason.String
		rv.ModerationReason = &m
	}
	return rv, nil
}

// mustExist maps a zero-rows-affected UPDATE to ErrNotFound, tolerating the
// value-identical-rewrite case by re-checking existence.
func mustExist(res sql.Result, check func() error) error {
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	return check()
}
