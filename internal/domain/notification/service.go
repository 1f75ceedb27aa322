package notification

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/loja-api/internal/domain/order"
)

// Service creates and manages notifications.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates a notification Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Notify validates and persists n.
func (s *Service) Notify(ctx context.Context, n *Notification) error {
	if n.Kind == "" {
		n.Kind = KindGeneral
	}
	if err := check(n); err != nil {
		return err
	}
	n.Read = false
	n.CreatedAt = s.now()

	if err := s.repo.Create(ctx, n); err != nil {
		return errors.Wrap(err, "create notification")
	}
	return nil
}

func check(n *Notification) error {
	n.Title = strings.TrimSpace(n.Title)
	n.Message = strings.TrimSpace(n.Message)
	switch {
	case n.UserID <= 0:
		return errors.Wrap(ErrInvalid, "user required")
	case n.Title == "" || utf8.RuneCountInString(n.Title) > MaxTitleLength:
		return errors.Wrapf(ErrInvalid, "title must have 1 to %d characters", MaxTitleLength)
	case n.Message == "":
		return errors.Wrap(ErrInvalid, "message required")
	case !n.Kind.Valid():
		return errors.Wrapf(ErrInvalid, "unknown kind %q", n.Kind)
	}
	return nil
}

// OrderPlaced tells userID that orderID was confirmed.
func (s *Service) OrderPlaced(ctx context.Context, userID int64, orderID uuid.UUID, total decimal.Decimal) error {
	return s.Notify(ctx, &Notification{
		UserID: userID,
		Title:  "Order confirmed",
		Message: fmt.Sprintf("Your order #%s was confirmed. Total: R$ %s. You will be notified when its status changes.",
			orderID, total.StringFixed(2)),
		Kind: KindOrder,
	})
}

// OrderStatusChanged tells userID that orderID moved between statuses.
func (s *Service) OrderStatusChanged(ctx context.Context, userID int64, orderID uuid.UUID, from, to order.Status) error {
	return s.Notify(ctx, &Notification{
		UserID:  userID,
		Title:   "Order status updated",
		Message: fmt.Sprintf("Your order #%s changed from %q to %q.", orderID, statusLabel(from), statusLabel(to)),
		Kind:    KindOrder,
	})
}

// CouponApplied tells userID that code now discounts their cart.
func (s *Service) CouponApplied(ctx context.Context, userID int64, code string, discount decimal.Decimal) error {
	return s.Notify(ctx, &Notification{
		UserID:  userID,
		Title:   "Coupon applied",
		Message: fmt.Sprintf("Coupon %q applied. You save R$ %s on this purchase.", code, discount.StringFixed(2)),
		Kind:    KindPromotion,
	})
}

func statusLabel(s order.Status) string {
	switch s {
	case order.StatusPending:
		return "awaiting processing"
	case order.StatusProcessing:
		return "being prepared"
	case order.StatusShipped:
		return "out for delivery"
	case order.StatusDelivered:
		return "delivered"
	case order.StatusCancelled:
		return "cancelled"
	default:
		return string(s)
	}
}

// List returns the notifications of userID, newest first.
func (s *Service) List(ctx context.Context, userID int64, unreadOnly bool) ([]Notification, error) {
	list, err := s.repo.List(ctx, userID, unreadOnly)
	if err != nil {
		return nil, errors.Wrap(err, "list notifications")
	}
	return list, nil
}

// Stats counts the notifications of userID.
func (s *Service) Stats(ctx context.Context, userID int64) (Stats, error) {
	st, err := s.repo.Stats(ctx, userID)
	if err != nil {
		return Stats{}, errors.Wrap(err, "notification stats")
	}
	return st, nil
}

// Get returns notification id of userID.
func (s *Service) Get(ctx context.Context, userID, id int64) (*Notification, error) {
	return s.repo.Get(ctx, userID, id)
}

// MarkRead marks notification id of userID as read.
func (s *Service) MarkRead(ctx context.Context, userID, id int64) error {
	n, err := s.repo.Get(ctx, userID, id)
	if err != nil {
		return err
	}
	if n.Read {
		return ErrAlreadyRead
	}
	return s.repo.MarkRead(ctx, userID, id)
}

// MarkAllRead marks every unread notification of userID as read and
// returns how many changed.
func (s *Service) MarkAllRead(ctx context.Context, userID int64) (int64, error) {
	n, err := s.repo.MarkAllRead(ctx, userID)
	if err != nil {
		return 0, errors.Wrap(err, "mark all read")
	}
	return n, nil
}

// Delete removes notification id of userID.
func (s *Service) Delete(ctx context.Context, userID, id int64) error {
	return s.repo.Delete(ctx, userID, id)
}

// ListAll returns notifications of every user matching f, newest first.
func (s *Service) ListAll(ctx context.Context, f Filter) ([]Notification, error) {
	list, err := s.repo.ListAll(ctx, f)
	if err != nil {
		return nil, errors.Wrap(err, "list all notifications")
	}
	return list, nil
}

// Update applies p to notification id regardless of its owner.
func (s *Service) Update(ctx context.Context, id int64, p Patch) (*Notification, error) {
	if p.Empty() {
		return nil, errors.Wrap(ErrInvalid, "no fields to update")
	}
	n, err := s.repo.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Title != nil {
		n.Title = *p.Title
	}
	if p.Message != nil {
		n.Message = *p.Message
	}
	if p.Kind != nil {
		n.Kind = *p.Kind
	}
	if p.Read != nil {
		n.Read = *p.Read
	}
	if err := check(n); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, n); err != nil {
		return nil, errors.Wrapf(err, "update notification %d", id)
	}
	return n, nil
}

// Remove deletes notification id regardless of its owner.
func (s *Service) Remove(ctx context.Context, id int64) error {
	return s.repo.Remove(ctx, id)
}
