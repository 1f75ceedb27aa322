// Package notification records user-facing messages.
package notification

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

// Kind classifies a notification.
type Kind string

// Notification kinds.
const (
	KindSystem    Kind = "system"
	KindPromotion Kind = "promotion"
	KindOrder     Kind = "order"
	KindGeneral   Kind = "general"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindSystem, KindPromotion, KindOrder, KindGeneral:
		return true
	default:
		return false
	}
}

// MaxTitleLength caps notification titles.
const MaxTitleLength = 100

var (
	// ErrNotFound is returned when the notification does not exist or
	// belongs to another user.
	ErrNotFound = errors.New("notification not found")
	// ErrAlreadyRead is returned when marking a read notification as read.
	ErrAlreadyRead = errors.New("notification already read")
	// ErrInvalid is returned for notifications missing required fields.
	ErrInvalid = errors.New("invalid notification")
)

// Notification is a message addressed to a single user.
type Notification struct {
	ID        int64
	UserID    int64
	Title     string
	Message   string
	Kind      Kind
	Read      bool
	CreatedAt time.Time
}

// Stats summarises the notifications of a user.
type Stats struct {
	Total  int
	Read   int
	Unread int
}

// Filter selects notifications across users. Zero fields match everything.
type Filter struct {
	UserID int64
	Read   *bool
}

// Patch holds the fields an administrator changes. Nil fields keep the
// stored value.
type Patch struct {
	Title   *string
	Message *string
	Kind    *Kind
	Read    *bool
}

// Empty reports whether p changes nothing.
func (p Patch) Empty() bool {
	return p.Title == nil && p.Message == nil && p.Kind == nil && p.Read == nil
}

// Repository persists notifications. Every owner-scoped method reports
// ErrNotFound for notifications of other users.
type Repository interface {
	Create(ctx context.Context, n *Notification) error
	Get(ctx context.Context, userID, id int64) (*Notification, error)
	List(ctx context.Context, userID int64, unreadOnly bool) ([]Notification, error)
	Stats(ctx context.Context, userID int64) (Stats, error)
	MarkRead(ctx context.Context, userID, id int64) error
	MarkAllRead(ctx context.Context, userID int64) (int64, error)
	Delete(ctx context.Context, userID, id int64) error

	// Unscoped access for administrators.
	Find(ctx context.Context, id int64) (*Notification, error)
	ListAll(ctx context.Context, f Filter) ([]Notification, error)
	Update(ctx context.Context, n *Notification) error
	Remove(ctx context.Context, id int64) error
}
