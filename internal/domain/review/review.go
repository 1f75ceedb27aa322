// Package review gates product reviews on received purchases.
package review

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Rating bounds and comment length.
const (
	MinRating        = 1
	MaxRating        = 5
	MaxCommentLength = 1000
)

var (
	// ErrNotFound is returned when the review does not exist.
	ErrNotFound = errors.New("review not found")
	// ErrNotEligible is returned when the user never received the product.
	ErrNotEligible = errors.New("only customers who received the product can review it")
	// ErrDuplicate is returned when the user already reviewed the product.
	ErrDuplicate = errors.New("product already reviewed by this user")
	// ErrForbidden is returned when a user changes a review they do not own.
	ErrForbidden = errors.New("review belongs to another user")
)

// InputError reports an out-of-range rating or an oversized comment.
type InputError struct {
	Field  string
	Reason string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Review is a rating with an optional comment, one per product and user.
type Review struct {
	ID        int64
	ProductID int64
	UserID    int64
	UserName  string
	Rating    int
	Comment   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Stats aggregates the reviews of a product.
type Stats struct {
	Count   int
	Average decimal.Decimal
	// Distribution maps each rating from MinRating to MaxRating to its count.
	Distribution map[int]int
}

// Repository persists reviews.
type Repository interface {
	// Create returns ErrDuplicate when (ProductID, UserID) exists.
	Create(ctx context.Context, r *Review) error
	Get(ctx context.Context, id int64) (*Review, error)
	ListByProduct(ctx context.Context, productID int64) ([]Review, error)
	ListByUser(ctx context.Context, userID int64) ([]Review, error)
	// RatingCounts returns the number of reviews per rating.
	RatingCounts(ctx context.Context, productID int64) (map[int]int, error)
	Update(ctx context.Context, r *Review) error
	Delete(ctx context.Context, id int64) error
}

// PurchaseChecker answers whether a user received a product, that is, holds
// an order line for it in a shipped or delivered order.
type PurchaseChecker interface {
	HasReceived(ctx context.Context, userID, productID int64) (bool, error)
}

// ProductChecker answers whether a product exists.
type ProductChecker interface {
	Exists(ctx context.Context, productID int64) (bool, error)
}
