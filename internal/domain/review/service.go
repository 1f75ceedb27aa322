package review

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/loja-api/internal/domain/product"
)

// Service manages reviews.
type Service struct {
	repo      Repository
	products  ProductChecker
	purchases PurchaseChecker
	now       func() time.Time
}

// NewService creates a review Service.
func NewService(repo Repository, products ProductChecker, purchases PurchaseChecker) *Service {
	return &Service{
		repo:      repo,
		products:  products,
		purchases: purchases,
		now:       time.Now,
	}
}

// Create records the review of productID by userID. The product must exist
// and the user must have received it.
func (s *Service) Create(ctx context.Context, userID, productID int64, rating int, comment string) (*Review, error) {
	comment, err := checkInput(rating, comment)
	if err != nil {
		return nil, err
	}

	exists, err := s.products.Exists(ctx, productID)
	if err != nil {
		return nil, errors.Wrap(err, "check product")
	}
	if !exists {
		return nil, &product.NotFoundError{ProductID: productID}
	}

	received, err := s.purchases.HasReceived(ctx, userID, productID)
	if err != nil {
		return nil, errors.Wrap(err, "check purchase")
	}
	if !received {
		return nil, ErrNotEligible
	}

	now := s.now()
	r := &Review{
		ProductID: productID,
		UserID:    userID,
		Rating:    rating,
		Comment:   comment,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Create(ctx, r); err != nil {
		if errors.Is(err, ErrDuplicate) {
			return nil, ErrDuplicate
		}
		return nil, errors.Wrap(err, "create review")
	}

	zctx.From(ctx).Info("Review created",
		zap.Int64("review_id", r.ID),
		zap.Int64("product_id", productID),
		zap.Int64("user_id", userID),
		zap.Int("rating", rating),
	)
	return r, nil
}

// ListByProduct returns the reviews of productID, newest first.
func (s *Service) ListByProduct(ctx context.Context, productID int64) ([]Review, error) {
	list, err := s.repo.ListByProduct(ctx, productID)
	if err != nil {
		return nil, errors.Wrap(err, "list product reviews")
	}
	return list, nil
}

// ListByUser returns the reviews written by userID, newest first.
func (s *Service) ListByUser(ctx context.Context, userID int64) ([]Review, error) {
	list, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "list user reviews")
	}
	return list, nil
}

// Stats aggregates the reviews of productID. The average is rounded to two
// places and zero when there are no reviews.
func (s *Service) Stats(ctx context.Context, productID int64) (Stats, error) {
	counts, err := s.repo.RatingCounts(ctx, productID)
	if err != nil {
		return Stats{}, errors.Wrap(err, "rating counts")
	}

	st := Stats{Average: decimal.Zero, Distribution: make(map[int]int, MaxRating)}
	sum := 0
	for rating := MinRating; rating <= MaxRating; rating++ {
		n := counts[rating]
		st.Distribution[rating] = n
		st.Count += n
		sum += rating * n
	}
	if st.Count > 0 {
		st.Average = decimal.NewFromInt(int64(sum)).
			DivRound(decimal.NewFromInt(int64(st.Count)), 2)
	}
	return st, nil
}

// Get returns review id.
func (s *Service) Get(ctx context.Context, id int64) (*Review, error) {
	return s.repo.Get(ctx, id)
}

// Update changes rating and comment of review id owned by userID. Nil
// arguments keep the stored value.
func (s *Service) Update(ctx context.Context, userID, id int64, rating *int, comment *string) (*Review, error) {
	r, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.UserID != userID {
		return nil, ErrForbidden
	}

	newRating, newComment := r.Rating, r.Comment
	if rating != nil {
		newRating = *rating
	}
	if comment != nil {
		newComment = *comment
	}
	if newComment, err = checkInput(newRating, newComment); err != nil {
		return nil, err
	}

	r.Rating = newRating
	r.Comment = newComment
	r.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, r); err != nil {
		return nil, errors.Wrap(err, "update review")
	}
	return r, nil
}

// Delete removes review id. Only its author or an administrator may.
func (s *Service) Delete(ctx context.Context, userID, id int64, admin bool) error {
	r, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if r.UserID != userID && !admin {
		return ErrForbidden
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return errors.Wrap(err, "delete review")
	}
	return nil
}

func checkInput(rating int, comment string) (string, error) {
	if rating < MinRating || rating > MaxRating {
		return "", &InputError{Field: "rating", Reason: "must be between 1 and 5"}
	}
	comment = strings.TrimSpace(comment)
	if utf8.RuneCountInString(comment) > MaxCommentLength {
		return "", &InputError{Field: "comment", Reason: "must have at most 1000 characters"}
	}
	return comment, nil
}
