package notification

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/loja-api/internal/domain/order"
)

type memRepo struct {
	seq   int64
	items map[int64]*Notification
}

func newMemRepo() *memRepo {
	return &memRepo{items: make(map[int64]*Notification)}
}

func (m *memRepo) Create(_ context.Context, n *Notification) error {
	m.seq++
	n.ID = m.seq
	cp := *n
	m.items[n.ID] = &cp
	return nil
}

func (m *memRepo) Get(_ context.Context, userID, id int64) (*Notification, error) {
	n, ok := m.items[id]
	if !ok || n.UserID != userID {
		return nil, ErrNotFound
	}
	cp := *n
	return &cp, nil
}

func (m *memRepo) List(_ context.Context, userID int64, unreadOnly bool) ([]Notification, error) {
	var out []Notification
	for i := m.seq; i > 0; i-- {
		n, ok := m.items[i]
		if !ok || n.UserID != userID || (unreadOnly && n.Read) {
			continue
		}
		out = append(out, *n)
	}
	return out, nil
}

func (m *memRepo) Stats(_ context.Context, userID int64) (Stats, error) {
	var st Stats
	for _, n := range m.items {
		if n.UserID != userID {
			continue
		}
		st.Total++
		if n.Read {
			st.Read++
		} else {
			st.Unread++
		}
	}
	return st, nil
}

func (m *memRepo) MarkRead(_ context.Context, userID, id int64) error {
	n, ok := m.items[id]
	if !ok || n.UserID != userID {
		return ErrNotFound
	}
	n.Read = true
	return nil
}

func (m *memRepo) MarkAllRead(_ context.Context, userID int64) (int64, error) {
	var changed int64
	for _, n := range m.items {
		if n.UserID == userID && !n.Read {
			n.Read = true
			changed++
		}
	}
	return changed, nil
}

func (m *memRepo) Delete(_ context.Context, userID, id int64) error {
	n, ok := m.items[id]
	if !ok || n.UserID != userID {
		return ErrNotFound
	}
	delete(m.items, id)
	return nil
}

func (m *memRepo) Find(_ context.Context, id int64) (*Notification, error) {
	n, ok := m.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *n
	return &cp, nil
}

func (m *memRepo) ListAll(_ context.Context, f Filter) ([]Notification, error) {
	var out []Notification
	for i := m.seq; i > 0; i-- {
		n, ok := m.items[i]
		if !ok || (f.UserID != 0 && n.UserID != f.UserID) || (f.Read != nil && n.Read != *f.Read) {
			continue
		}
		out = append(out, *n)
	}
	return out, nil
}

func (m *memRepo) Update(_ context.Context, n *Notification) error {
	if _, ok := m.items[n.ID]; !ok {
		return ErrNotFound
	}
	cp := *n
	m.items[n.ID] = &cp
	return nil
}

func (m *memRepo) Remove(_ context.Context, id int64) error {
	if _, ok := m.items[id]; !ok {
		return ErrNotFound
	}
	delete(m.items, id)
	return nil
}

func newTestService() (*Service, *memRepo) {
	repo := newMemRepo()
	s := NewService(repo)
	s.now = func() time.Time { return time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC) }
	return s, repo
}

func TestNotify_Validation(t *testing.T) {
	tests := []struct {
		name string
		n    Notification
	}{
		{name: "missing user", n: Notification{Title: "t", Message: "m"}},
		{name: "blank title", n: Notification{UserID: 1, Title: "  ", Message: "m"}},
		{name: "long title", n: Notification{UserID: 1, Title: strings.Repeat("a", MaxTitleLength+1), Message: "m"}},
		{name: "missing message", n: Notification{UserID: 1, Title: "t"}},
		{name: "unknown kind", n: Notification{UserID: 1, Title: "t", Message: "m", Kind: "spam"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, repo := newTestService()
			err := s.Notify(context.Background(), &tt.n)
			require.ErrorIs(t, err, ErrInvalid)
			assert.Empty(t, repo.items)
		})
	}
}

func TestNotify_DefaultsKind(t *testing.T) {
	s, repo := newTestService()

	n := &Notification{UserID: 1, Title: " Hello ", Message: "World"}
	require.NoError(t, s.Notify(context.Background(), n))
	assert.Equal(t, KindGeneral, repo.items[n.ID].Kind)
	assert.Equal(t, "Hello", repo.items[n.ID].Title)
	assert.False(t, repo.items[n.ID].CreatedAt.IsZero())
}

func TestOrderHelpers(t *testing.T) {
	s, repo := newTestService()
	ctx := context.Background()
	orderID := uuid.MustParse("6f1c2a9e-6a8a-4c55-9b0e-0f1d2c3b4a59")

	require.NoError(t, s.OrderPlaced(ctx, 5, orderID, decimal.RequireFromString("33")))
	require.NoError(t, s.OrderStatusChanged(ctx, 5, orderID, order.StatusPending, order.StatusShipped))
	require.NoError(t, s.CouponApplied(ctx, 5, "SAVE10", decimal.RequireFromString("2")))

	list, err := s.List(ctx, 5, false)
	require.NoError(t, err)
	require.Len(t, list, 3)

	assert.Equal(t, KindPromotion, list[0].Kind)
	assert.Contains(t, list[0].Message, "R$ 2.00")

	assert.Equal(t, KindOrder, list[1].Kind)
	assert.Contains(t, list[1].Message, "out for delivery")

	assert.Equal(t, "Order confirmed", list[2].Title)
	assert.Contains(t, list[2].Message, orderID.String())
	assert.Contains(t, list[2].Message, "R$ 33.00")
	assert.Len(t, repo.items, 3)
}

func TestMarkRead(t *testing.T) {
	s, _ := newTestService()
	ctx := context.Background()

	n := &Notification{UserID: 1, Title: "t", Message: "m"}
	require.NoError(t, s.Notify(ctx, n))

	require.ErrorIs(t, s.MarkRead(ctx, 2, n.ID), ErrNotFound)
	require.NoError(t, s.MarkRead(ctx, 1, n.ID))
	require.ErrorIs(t, s.MarkRead(ctx, 1, n.ID), ErrAlreadyRead)

	st, err := s.Stats(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, Stats{Total: 1, Read: 1, Unread: 0}, st)
}

func TestMarkAllReadAndDelete(t *testing.T) {
	s, _ := newTestService()
	ctx := context.Background()

	for range 3 {
		require.NoError(t, s.Notify(ctx, &Notification{UserID: 1, Title: "t", Message: "m"}))
	}
	other := &Notification{UserID: 2, Title: "t", Message: "m"}
	require.NoError(t, s.Notify(ctx, other))

	changed, err := s.MarkAllRead(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(3), changed)

	unread, err := s.List(ctx, 1, true)
	require.NoError(t, err)
	assert.Empty(t, unread)

	require.ErrorIs(t, s.Delete(ctx, 1, other.ID), ErrNotFound)
	require.NoError(t, s.Delete(ctx, 2, other.ID))
	_, err = s.Get(ctx, 2, other.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestListAll(t *testing.T) {
	s, _ := newTestService()
	ctx := context.Background()

	for _, uid := range []int64{1, 2, 1} {
		require.NoError(t, s.Notify(ctx, &Notification{UserID: uid, Title: "t", Message: "m"}))
	}
	_, err := s.MarkAllRead(ctx, 2)
	require.NoError(t, err)

	all, err := s.ListAll(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, int64(3), all[0].ID)

	mine, err := s.ListAll(ctx, Filter{UserID: 1})
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	read := true
	onlyRead, err := s.ListAll(ctx, Filter{Read: &read})
	require.NoError(t, err)
	require.Len(t, onlyRead, 1)
	assert.Equal(t, int64(2), onlyRead[0].UserID)
}

func TestUpdate_AnyOwner(t *testing.T) {
	s, repo := newTestService()
	ctx := context.Background()

	n := &Notification{UserID: 5, Title: "Old", Message: "m"}
	require.NoError(t, s.Notify(ctx, n))

	title, kind, read := " New ", KindPromotion, true
	got, err := s.Update(ctx, n.ID, Patch{Title: &title, Kind: &kind, Read: &read})
	require.NoError(t, err)
	assert.Equal(t, "New", got.Title)
	assert.Equal(t, "m", got.Message)
	assert.Equal(t, KindPromotion, repo.items[n.ID].Kind)
	assert.True(t, repo.items[n.ID].Read)
	assert.Equal(t, int64(5), repo.items[n.ID].UserID)
}

func TestUpdate_Rejects(t *testing.T) {
	s, repo := newTestService()
	ctx := context.Background()

	n := &Notification{UserID: 5, Title: "Old", Message: "m"}
	require.NoError(t, s.Notify(ctx, n))

	_, err := s.Update(ctx, n.ID, Patch{})
	require.ErrorIs(t, err, ErrInvalid)

	blank := "  "
	_, err = s.Update(ctx, n.ID, Patch{Message: &blank})
	require.ErrorIs(t, err, ErrInvalid)
	assert.Equal(t, "m", repo.items[n.ID].Message)

	spam := Kind("spam")
	_, err = s.Update(ctx, n.ID, Patch{Kind: &spam})
	require.ErrorIs(t, err, ErrInvalid)

	title := "x"
	_, err = s.Update(ctx, 404, Patch{Title: &title})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRemove_AnyOwner(t *testing.T) {
	s, repo := newTestService()
	ctx := context.Background()

	n := &Notification{UserID: 5, Title: "t", Message: "m"}
	require.NoError(t, s.Notify(ctx, n))

	require.NoError(t, s.Remove(ctx, n.ID))
	assert.Empty(t, repo.items)
	require.ErrorIs(t, s.Remove(ctx, n.ID), ErrNotFound)
}
