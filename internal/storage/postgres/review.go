package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/loja-api/internal/domain/review"
)

const (
	reviewColumns = `r.id, r.product_id, r.user_id, COALESCE(u.name, ''), r.rating, r.comment,
		r.created_at, r.updated_at`
	reviewFrom = ` FROM reviews r LEFT JOIN users u ON u.id = r.user_id`

	getReviewSQL            = `SELECT ` + reviewColumns + reviewFrom + ` WHERE r.id = $1`
	listReviewsByProductSQL = `SELECT ` + reviewColumns + reviewFrom + ` WHERE r.product_id = $1 ORDER BY r.created_at DESC, r.id DESC`
	listReviewsByUserSQL    = `SELECT ` + reviewColumns + reviewFrom + ` WHERE r.user_id = $1 ORDER BY r.created_at DESC, r.id DESC`
	ratingCountsSQL         = `SELECT rating, COUNT(*) FROM reviews WHERE product_id = $1 GROUP BY rating`
	deleteReviewSQL         = `DELETE FROM reviews WHERE id = $1`

	createReviewSQL = `INSERT INTO reviews (product_id, user_id, rating, comment, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`

	updateReviewSQL = `UPDATE reviews SET rating = $2, comment = $3, updated_at = $4 WHERE id = $1`
)

const reviewUniqueConstraint = "reviews_product_user_key"

var _ review.Repository = (*ReviewRepository)(nil)

// ReviewRepository implements review.Repository backed by PostgreSQL.
type ReviewRepository struct {
	pool *pgxpool.Pool
}

// NewReviewRepository returns a ReviewRepository that uses the given pool.
func NewReviewRepository(pool *pgxpool.Pool) *ReviewRepository {
	return &ReviewRepository{pool: pool}
}

func (r *ReviewRepository) Create(ctx context.Context, rv *review.Review) error {
	err := r.pool.QueryRow(ctx, createReviewSQL,
		rv.ProductID, rv.UserID, rv.Rating, rv.Comment, rv.CreatedAt, rv.UpdatedAt,
	).Scan(&rv.ID)
	if err != nil {
		if isUniqueViolation(err, reviewUniqueConstraint) {
			return review.ErrDuplicate
		}
		return errors.Wrap(err, "insert review")
	}
	return nil
}

func (r *ReviewRepository) Get(ctx context.Context, id int64) (*review.Review, error) {
	rows, err := r.pool.Query(ctx, getReviewSQL, id)
	if err != nil {
		return nil, errors.Wrapf(err, "get review %d", id)
	}

	rv, err := pgx.CollectExactlyOneRow(rows, scanReview)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, review.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get review %d", id)
	}
	return &rv, nil
}

func (r *ReviewRepository) ListByProduct(ctx context.Context, productID int64) ([]review.Review, error) {
	return r.list(ctx, listReviewsByProductSQL, productID)
}

func (r *ReviewRepository) ListByUser(ctx context.Context, userID int64) ([]review.Review, error) {
	return r.list(ctx, listReviewsByUserSQL, userID)
}

func (r *ReviewRepository) list(ctx context.Context, sql string, id int64) ([]review.Review, error) {
	rows, err := r.pool.Query(ctx, sql, id)
	if err != nil {
		return nil, errors.Wrap(err, "list reviews")
	}

	list, err := pgx.CollectRows(rows, scanReview)
	if err != nil {
		return nil, errors.Wrap(err, "list reviews")
	}
	return list, nil
}

func (r *ReviewRepository) RatingCounts(ctx context.Context, productID int64) (map[int]int, error) {
	rows, err := r.pool.Query(ctx, ratingCountsSQL, productID)
	if err != nil {
		return nil, errors.Wrap(err, "rating counts")
	}
	defer rows.Close()

	counts := make(map[int]int)
	for rows.Next() {
		var rating, n int
		if err := rows.Scan(&rating, &n); err != nil {
			return nil, errors.Wrap(err, "scan rating count")
		}
		counts[rating] = n
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "rating counts")
	}
	return counts, nil
}

func (r *ReviewRepository) Update(ctx context.Context, rv *review.Review) error {
	tag, err := r.pool.Exec(ctx, updateReviewSQL, rv.ID, rv.Rating, rv.Comment, rv.UpdatedAt)
	if err != nil {
		return errors.Wrapf(err, "update review %d", rv.ID)
	}
	if tag.RowsAffected() == 0 {
		return review.ErrNotFound
	}
	return nil
}

func (r *ReviewRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, deleteReviewSQL, id)
	if err != nil {
		return errors.Wrapf(err, "delete review %d", id)
	}
	if tag.RowsAffected() == 0 {
		return review.ErrNotFound
	}
	return nil
}

func scanReview(row pgx.CollectableRow) (review.Review, error) {
	var rv review.Review
	err := row.Scan(&rv.ID, &rv.ProductID, &rv.UserID, &rv.UserName, &rv.Rating, &rv.Comment,
		&rv.CreatedAt, &rv.UpdatedAt)
	return rv, err
}
