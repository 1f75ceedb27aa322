package coupon

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

type mockCouponRepo struct {
	coupon    *Coupon
	err       error
	used      bool
	usageErr  error
	usageCall bool
	lastCode  string
}

func (m *mockCouponRepo) FindByCode(_ context.Context, code string) (*Coupon, error) {
	m.lastCode = code
	if m.err != nil {
		return nil, m.err
	}
	if m.coupon == nil {
		return nil, ErrNotFound
	}
	c := *m.coupon
	return &c, nil
}

func (m *mockCouponRepo) HasUsage(_ context.Context, _, _ int64) (bool, error) {
	m.usageCall = true
	return m.used, m.usageErr
}

func (m *mockCouponRepo) ListActive(_ context.Context, _ time.Time) ([]Coupon, error) {
	if m.coupon == nil {
		return nil, nil
	}
	return []Coupon{*m.coupon}, nil
}

type mockRedemptionStore struct {
	coupon       *Coupon
	lockErr      error
	insertErr    error
	incrementErr error

	inserted    bool
	incremented bool
	orderID     uuid.UUID
}

func (m *mockRedemptionStore) LockCoupon(_ context.Context, _ int64) (*Coupon, error) {
	if m.lockErr != nil {
		return nil, m.lockErr
	}
	c := *m.coupon
	return &c, nil
}

func (m *mockRedemptionStore) InsertUsage(_ context.Context, _, _ int64, orderID uuid.UUID, _ time.Time) error {
	if m.insertErr != nil {
		return m.insertErr
	}
	m.inserted = true
	m.orderID = orderID
	return nil
}

func (m *mockRedemptionStore) IncrementUsage(_ context.Context, _ int64) error {
	if m.incrementErr != nil {
		return m.incrementErr
	}
	m.incremented = true
	return nil
}

func newTestLedger(repo Repository) *Ledger {
	l := NewLedger(repo)
	l.now = func() time.Time { return fixedNow }
	return l
}

func validCoupon() *Coupon {
	return &Coupon{
		ID:        7,
		Code:      "SAVE10",
		Type:      TypePercentage,
		Value:     d("10"),
		ExpiresAt: fixedNow.Add(24 * time.Hour),
		MaxUses:   5,
		UsedCount: 1,
		Active:    true,
	}
}

func TestLedger_Validate(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(c *Coupon)
		missing    bool
		used       bool
		userID     int64
		wantValid  bool
		wantReason Reason
	}{
		{name: "valid coupon", userID: 1, wantValid: true},
		{name: "not found", missing: true, userID: 1, wantReason: ReasonNotFound},
		{name: "inactive", mutate: func(c *Coupon) { c.Active = false }, userID: 1, wantReason: ReasonInactive},
		{name: "expired", mutate: func(c *Coupon) { c.ExpiresAt = fixedNow.Add(-time.Second) }, userID: 1, wantReason: ReasonExpired},
		{name: "expires exactly now is still valid", mutate: func(c *Coupon) { c.ExpiresAt = fixedNow }, userID: 1, wantValid: true},
		{name: "exhausted", mutate: func(c *Coupon) { c.UsedCount = c.MaxUses }, userID: 1, wantReason: ReasonExhausted},
		{name: "already used by user", used: true, userID: 1, wantReason: ReasonAlreadyUsed},
		{name: "anonymous skips usage check", used: true, userID: 0, wantValid: true},
		{
			name: "inactive wins over expired",
			mutate: func(c *Coupon) {
				c.Active = false
				c.ExpiresAt = fixedNow.Add(-time.Hour)
			},
			userID:     1,
			wantReason: ReasonInactive,
		},
		{
			name: "expired wins over exhausted",
			mutate: func(c *Coupon) {
				c.ExpiresAt = fixedNow.Add(-time.Hour)
				c.UsedCount = c.MaxUses
			},
			userID:     1,
			wantReason: ReasonExpired,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mockCouponRepo{used: tt.used}
			if !tt.missing {
				repo.coupon = validCoupon()
				if tt.mutate != nil {
					tt.mutate(repo.coupon)
				}
			}

			v, err := newTestLedger(repo).Validate(context.Background(), " save10 ", tt.userID)
			require.NoError(t, err)
			assert.Equal(t, "SAVE10", repo.lastCode)
			assert.Equal(t, tt.wantValid, v.Valid)
			assert.Equal(t, tt.wantReason, v.Reason)
			if tt.wantValid {
				require.NotNil(t, v.Coupon)
				require.NoError(t, v.Err("save10"))
			} else {
				var invalid *InvalidError
				require.ErrorAs(t, v.Err("save10"), &invalid)
				assert.Equal(t, tt.wantReason, invalid.Reason)
				assert.Equal(t, "SAVE10", invalid.Code)
			}
		})
	}
}

func TestLedger_Validate_ShortCircuits(t *testing.T) {
	c := validCoupon()
	c.Active = false
	repo := &mockCouponRepo{coupon: c}

	_, err := newTestLedger(repo).Validate(context.Background(), "SAVE10", 1)
	require.NoError(t, err)
	assert.False(t, repo.usageCall, "usage lookup must not run after an earlier failure")
}

func TestLedger_Validate_RepoError(t *testing.T) {
	repo := &mockCouponRepo{err: errors.New("connection refused")}

	_, err := newTestLedger(repo).Validate(context.Background(), "SAVE10", 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lookup coupon")
}

func TestLedger_Apply(t *testing.T) {
	orderID := uuid.New()

	t.Run("records usage and increments", func(t *testing.T) {
		store := &mockRedemptionStore{coupon: validCoupon()}

		err := newTestLedger(&mockCouponRepo{}).Apply(context.Background(), store, 7, 1, orderID)
		require.NoError(t, err)
		assert.True(t, store.inserted)
		assert.True(t, store.incremented)
		assert.Equal(t, orderID, store.orderID)
	})

	t.Run("exhausted under lock", func(t *testing.T) {
		c := validCoupon()
		c.UsedCount = c.MaxUses
		store := &mockRedemptionStore{coupon: c}

		err := newTestLedger(&mockCouponRepo{}).Apply(context.Background(), store, 7, 1, orderID)
		require.ErrorIs(t, err, ErrExhausted)
		assert.False(t, store.inserted)
		assert.False(t, store.incremented)
	})

	t.Run("deactivated after validation", func(t *testing.T) {
		c := validCoupon()
		c.Active = false
		store := &mockRedemptionStore{coupon: c}

		err := newTestLedger(&mockCouponRepo{}).Apply(context.Background(), store, 7, 1, orderID)
		require.ErrorIs(t, err, ErrUnavailable)
	})

	t.Run("duplicate usage leaves counter alone", func(t *testing.T) {
		store := &mockRedemptionStore{coupon: validCoupon(), insertErr: errors.Wrap(ErrAlreadyUsed, "unique violation")}

		err := newTestLedger(&mockCouponRepo{}).Apply(context.Background(), store, 7, 1, orderID)
		require.ErrorIs(t, err, ErrAlreadyUsed)
		assert.False(t, store.incremented)
	})

	t.Run("lock failure", func(t *testing.T) {
		store := &mockRedemptionStore{lockErr: ErrNotFound}

		err := newTestLedger(&mockCouponRepo{}).Apply(context.Background(), store, 7, 1, orderID)
		require.ErrorIs(t, err, ErrNotFound)
	})
}

func TestLedger_ListActive(t *testing.T) {
	repo := &mockCouponRepo{coupon: validCoupon()}

	coupons, err := newTestLedger(repo).ListActive(context.Background())
	require.NoError(t, err)
	require.Len(t, coupons, 1)
	assert.Equal(t, "SAVE10", coupons[0].Code)
}
