package review

import (
	"context"
	"strings"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/loja-api/internal/domain/product"
)

type memRepo struct {
	seq   int64
	items map[int64]*Review
}

func newMemRepo() *memRepo {
	return &memRepo{items: make(map[int64]*Review)}
}

func (m *memRepo) Create(_ context.Context, r *Review) error {
	for _, existing := range m.items {
		if existing.ProductID == r.ProductID && existing.UserID == r.UserID {
			return errors.Wrap(ErrDuplicate, "unique violation")
		}
	}
	m.seq++
	r.ID = m.seq
	cp := *r
	m.items[r.ID] = &cp
	return nil
}

func (m *memRepo) Get(_ context.Context, id int64) (*Review, error) {
	r, ok := m.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *memRepo) ListByProduct(_ context.Context, productID int64) ([]Review, error) {
	var out []Review
	for _, r := range m.items {
		if r.ProductID == productID {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (m *memRepo) ListByUser(_ context.Context, userID int64) ([]Review, error) {
	var out []Review
	for _, r := range m.items {
		if r.UserID == userID {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (m *memRepo) RatingCounts(_ context.Context, productID int64) (map[int]int, error) {
	counts := make(map[int]int)
	for _, r := range m.items {
		if r.ProductID == productID {
			counts[r.Rating]++
		}
	}
	return counts, nil
}

func (m *memRepo) Update(_ context.Context, r *Review) error {
	cp := *r
	m.items[r.ID] = &cp
	return nil
}

func (m *memRepo) Delete(_ context.Context, id int64) error {
	delete(m.items, id)
	return nil
}

type stubProducts map[int64]bool

func (s stubProducts) Exists(_ context.Context, id int64) (bool, error) {
	return s[id], nil
}

// stubPurchases lists the (user, product) pairs with a received order.
type stubPurchases map[[2]int64]bool

func (s stubPurchases) HasReceived(_ context.Context, userID, productID int64) (bool, error) {
	return s[[2]int64{userID, productID}], nil
}

func newTestService() (*Service, *memRepo) {
	repo := newMemRepo()
	products := stubProducts{1: true, 2: true}
	purchases := stubPurchases{{10, 1}: true, {11, 1}: true, {12, 1}: true}
	return NewService(repo, products, purchases), repo
}

func TestCreate(t *testing.T) {
	s, repo := newTestService()

	r, err := s.Create(context.Background(), 10, 1, 5, "  Excelente  ")
	require.NoError(t, err)
	assert.Equal(t, int64(1), r.ID)
	assert.Equal(t, "Excelente", r.Comment)
	assert.Len(t, repo.items, 1)
}

func TestCreate_Gating(t *testing.T) {
	tests := []struct {
		name      string
		userID    int64
		productID int64
		rating    int
		comment   string
		check     func(t *testing.T, err error)
	}{
		{
			name: "unknown product", userID: 10, productID: 99, rating: 4,
			check: func(t *testing.T, err error) { require.ErrorIs(t, err, product.ErrNotFound) },
		},
		{
			name: "not received", userID: 10, productID: 2, rating: 4,
			check: func(t *testing.T, err error) { require.ErrorIs(t, err, ErrNotEligible) },
		},
		{
			name: "rating too low", userID: 10, productID: 1, rating: 0,
			check: func(t *testing.T, err error) {
				var inErr *InputError
				require.ErrorAs(t, err, &inErr)
				assert.Equal(t, "rating", inErr.Field)
			},
		},
		{
			name: "rating too high", userID: 10, productID: 1, rating: 6,
			check: func(t *testing.T, err error) {
				var inErr *InputError
				require.ErrorAs(t, err, &inErr)
			},
		},
		{
			name: "comment too long", userID: 10, productID: 1, rating: 3, comment: strings.Repeat("x", MaxCommentLength+1),
			check: func(t *testing.T, err error) {
				var inErr *InputError
				require.ErrorAs(t, err, &inErr)
				assert.Equal(t, "comment", inErr.Field)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, repo := newTestService()
			_, err := s.Create(context.Background(), tt.userID, tt.productID, tt.rating, tt.comment)
			tt.check(t, err)
			assert.Empty(t, repo.items)
		})
	}
}

func TestCreate_Duplicate(t *testing.T) {
	s, _ := newTestService()
	ctx := context.Background()

	_, err := s.Create(ctx, 10, 1, 5, "")
	require.NoError(t, err)

	_, err = s.Create(ctx, 10, 1, 3, "changed my mind")
	require.ErrorIs(t, err, ErrDuplicate)
}

func TestStats(t *testing.T) {
	s, _ := newTestService()
	ctx := context.Background()

	st, err := s.Stats(ctx, 1)
	require.NoError(t, err)
	assert.Zero(t, st.Count)
	assert.True(t, st.Average.IsZero())
	assert.Len(t, st.Distribution, MaxRating)

	for userID, rating := range map[int64]int{10: 5, 11: 4, 12: 4} {
		_, err := s.Create(ctx, userID, 1, rating, "")
		require.NoError(t, err)
	}

	st, err = s.Stats(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, st.Count)
	assert.Equal(t, "4.33", st.Average.StringFixed(2))
	assert.Equal(t, map[int]int{1: 0, 2: 0, 3: 0, 4: 2, 5: 1}, st.Distribution)
}

func TestGet(t *testing.T) {
	s, _ := newTestService()
	ctx := context.Background()

	r, err := s.Create(ctx, 10, 1, 4, "ok")
	require.NoError(t, err)

	got, err := s.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, got.Rating)
	assert.Equal(t, int64(10), got.UserID)

	_, err = s.Get(ctx, 404)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestUpdate(t *testing.T) {
	s, _ := newTestService()
	ctx := context.Background()

	r, err := s.Create(ctx, 10, 1, 5, "good")
	require.NoError(t, err)

	rating := 3
	updated, err := s.Update(ctx, 10, r.ID, &rating, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, updated.Rating)
	assert.Equal(t, "good", updated.Comment)

	_, err = s.Update(ctx, 11, r.ID, &rating, nil)
	require.ErrorIs(t, err, ErrForbidden)

	bad := 9
	_, err = s.Update(ctx, 10, r.ID, &bad, nil)
	var inErr *InputError
	require.ErrorAs(t, err, &inErr)

	_, err = s.Update(ctx, 10, 404, &rating, nil)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDelete(t *testing.T) {
	s, repo := newTestService()
	ctx := context.Background()

	r, err := s.Create(ctx, 10, 1, 5, "")
	require.NoError(t, err)

	require.ErrorIs(t, s.Delete(ctx, 11, r.ID, false), ErrForbidden)
	require.NoError(t, s.Delete(ctx, 11, r.ID, true))
	assert.Empty(t, repo.items)

	require.ErrorIs(t, s.Delete(ctx, 10, r.ID, false), ErrNotFound)
}
