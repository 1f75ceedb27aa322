package postgres

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/loja-api/internal/domain/coupon"
)

const (
	couponColumns = `id, code, description, type, value, expires_at, max_uses, used_count,
		active, created_at, updated_at`

	findCouponByCodeSQL = `SELECT ` + couponColumns + ` FROM coupons WHERE code = $1`
	getCouponSQL        = `SELECT ` + couponColumns + ` FROM coupons WHERE id = $1`
	lockCouponSQL       = `SELECT ` + couponColumns + ` FROM coupons WHERE id = $1 FOR UPDATE`
	hasUsageSQL         = `SELECT EXISTS (SELECT 1 FROM coupon_usages WHERE coupon_id = $1 AND user_id = $2)`
	deleteCouponSQL     = `DELETE FROM coupons WHERE id = $1`

	listActiveCouponsSQL = `SELECT ` + couponColumns + ` FROM coupons
		WHERE active AND expires_at >= $1 AND used_count < max_uses
		ORDER BY expires_at, id`

	listCouponsSQL = `SELECT ` + couponColumns + ` FROM coupons
		WHERE $1::boolean IS NULL OR active = $1
		ORDER BY created_at DESC, id DESC`

	createCouponSQL = `INSERT INTO coupons (code, description, type, value, expires_at, max_uses, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		RETURNING id`

	updateCouponSQL = `UPDATE coupons
		SET code = $2, description = $3, type = $4, value = $5, expires_at = $6,
			max_uses = $7, active = $8, updated_at = $9
		WHERE id = $1`

	upsertCouponSQL = `INSERT INTO coupons (code, description, type, value, expires_at, max_uses, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (code) DO UPDATE
		SET description = EXCLUDED.description, type = EXCLUDED.type, value = EXCLUDED.value,
			expires_at = EXCLUDED.expires_at, max_uses = GREATEST(EXCLUDED.max_uses, coupons.used_count),
			active = EXCLUDED.active, updated_at = now()`

	insertUsageSQL = `INSERT INTO coupon_usages (coupon_id, user_id, order_id, used_at)
		VALUES ($1, $2, $3, $4)`

	incrementUsageSQL = `UPDATE coupons SET used_count = used_count + 1, updated_at = now()
		WHERE id = $1 AND used_count < max_uses`
)

const couponUsageUniqueConstraint = "coupon_usages_coupon_user_key"

var (
	_ coupon.Repository      = (*CouponRepository)(nil)
	_ coupon.AdminRepository = (*CouponRepository)(nil)
	_ coupon.RedemptionStore = redemptionStore{}
)

// CouponRepository implements the coupon repositories backed by PostgreSQL.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// FindByCode looks up a coupon by its normalized code.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	return getCoupon(ctx, r.pool, findCouponByCodeSQL, code)
}

// GetByID returns coupon.ErrNotFound when no coupon has the given id.
func (r *CouponRepository) GetByID(ctx context.Context, id int64) (*coupon.Coupon, error) {
	return getCoupon(ctx, r.pool, getCouponSQL, id)
}

// HasUsage reports whether userID already redeemed couponID.
func (r *CouponRepository) HasUsage(ctx context.Context, couponID, userID int64) (bool, error) {
	var used bool
	if err := r.pool.QueryRow(ctx, hasUsageSQL, couponID, userID).Scan(&used); err != nil {
		return false, errors.Wrapf(err, "check usage of coupon %d", couponID)
	}
	return used, nil
}

// ListActive returns coupons redeemable at now.
func (r *CouponRepository) ListActive(ctx context.Context, now time.Time) ([]coupon.Coupon, error) {
	return listCoupons(ctx, r.pool, listActiveCouponsSQL, now)
}

// List returns every coupon, optionally filtered by the active flag.
func (r *CouponRepository) List(ctx context.Context, active *bool) ([]coupon.Coupon, error) {
	return listCoupons(ctx, r.pool, listCouponsSQL, active)
}

// Create inserts c and sets its id.
func (r *CouponRepository) Create(ctx context.Context, c *coupon.Coupon) error {
	err := r.pool.QueryRow(ctx, createCouponSQL,
		c.Code, c.Description, string(c.Type), c.Value, c.ExpiresAt, c.MaxUses, c.Active, c.CreatedAt,
	).Scan(&c.ID)
	if err != nil {
		if isUniqueViolation(err, "") {
			return coupon.ErrDuplicateCode
		}
		return errors.Wrapf(err, "create coupon %q", c.Code)
	}
	return nil
}

// Update overwrites the definition of c. The usage counter is left alone.
func (r *CouponRepository) Update(ctx context.Context, c *coupon.Coupon) error {
	tag, err := r.pool.Exec(ctx, updateCouponSQL,
		c.ID, c.Code, c.Description, string(c.Type), c.Value, c.ExpiresAt, c.MaxUses, c.Active, c.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, "") {
			return coupon.ErrDuplicateCode
		}
		return errors.Wrapf(err, "update coupon %d", c.ID)
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrNotFound
	}
	return nil
}

// Upsert inserts c or refreshes the definition of the coupon with the same
// code. The usage counter is preserved and max_uses never drops below it.
func (r *CouponRepository) Upsert(ctx context.Context, c *coupon.Coupon) error {
	_, err := r.pool.Exec(ctx, upsertCouponSQL,
		c.Code, c.Description, string(c.Type), c.Value, c.ExpiresAt, c.MaxUses, c.Active,
	)
	if err != nil {
		return errors.Wrapf(err, "upsert coupon %q", c.Code)
	}
	return nil
}

// Delete removes coupon id.
func (r *CouponRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, deleteCouponSQL, id)
	if err != nil {
		return errors.Wrapf(err, "delete coupon %d", id)
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrNotFound
	}
	return nil
}

// redemptionStore records coupon usage inside a transaction.
type redemptionStore struct {
	q querier
}

func (s redemptionStore) LockCoupon(ctx context.Context, id int64) (*coupon.Coupon, error) {
	return getCoupon(ctx, s.q, lockCouponSQL, id)
}

func (s redemptionStore) InsertUsage(ctx context.Context, couponID, userID int64, orderID uuid.UUID, at time.Time) error {
	order := uuid.NullUUID{UUID: orderID, Valid: orderID != uuid.Nil}
	if _, err := s.q.Exec(ctx, insertUsageSQL, couponID, userID, order, at); err != nil {
		if isUniqueViolation(err, couponUsageUniqueConstraint) {
			return coupon.ErrAlreadyUsed
		}
		return errors.Wrapf(err, "insert usage of coupon %d", couponID)
	}
	return nil
}

func (s redemptionStore) IncrementUsage(ctx context.Context, id int64) error {
	tag, err := s.q.Exec(ctx, incrementUsageSQL, id)
	if err != nil {
		return errors.Wrapf(err, "increment usage of coupon %d", id)
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrExhausted
	}
	return nil
}

func getCoupon(ctx context.Context, q querier, sql string, arg any) (*coupon.Coupon, error) {
	rows, err := q.Query(ctx, sql, arg)
	if err != nil {
		return nil, errors.Wrap(err, "get coupon")
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotFound
		}
		return nil, errors.Wrap(err, "get coupon")
	}
	return &c, nil
}

func listCoupons(ctx context.Context, q querier, sql string, args ...any) ([]coupon.Coupon, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list coupons")
	}

	coupons, err := pgx.CollectRows(rows, scanCoupon)
	if err != nil {
		return nil, errors.Wrap(err, "list coupons")
	}
	return coupons, nil
}

func scanCoupon(row pgx.CollectableRow) (coupon.Coupon, error) {
	var (
		c   coupon.Coupon
		typ string
	)
	err := row.Scan(
		&c.ID, &c.Code, &c.Description, &typ, &c.Value, &c.ExpiresAt, &c.MaxUses, &c.UsedCount,
		&c.Active, &c.CreatedAt, &c.UpdatedAt,
	)
	c.Type = coupon.Type(typ)
	return c, err
}
