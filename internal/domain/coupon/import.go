package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

// Upserter stores coupons keyed by code.
type Upserter interface {
	// Upsert inserts c or refreshes the definition of the coupon with the
	// same code, keeping its usage counter.
	Upsert(ctx context.Context, c *Coupon) error
}

// Importer loads coupon definitions in bulk. Unlike Admin.Create an existing
// code is refreshed rather than rejected.
type Importer struct {
	repo Upserter
	now  func() time.Time
}

// NewImporter creates an Importer backed by repo.
func NewImporter(repo Upserter) *Importer {
	return &Importer{repo: repo, now: time.Now}
}

// Import validates d and upserts it. Definitions that already expired are
// rejected with a *DefinitionError.
func (i *Importer) Import(ctx context.Context, d Definition) (*Coupon, error) {
	d.Code = NormalizeCode(d.Code)
	if d.MaxUses == 0 {
		d.MaxUses = 1
	}
	if err := validateDefinition(d); err != nil {
		return nil, err
	}
	now := i.now()
	if !d.ExpiresAt.After(now) {
		return nil, &DefinitionError{Field: "expires_at", Reason: "must be in the future"}
	}

	c := &Coupon{
		Code:        d.Code,
		Description: d.Description,
		Type:        d.Type,
		Value:       d.Value.Round(2),
		ExpiresAt:   d.ExpiresAt,
		MaxUses:     d.MaxUses,
		Active:      d.Active == nil || *d.Active,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := i.repo.Upsert(ctx, c); err != nil {
		return nil, errors.Wrap(err, "upsert coupon")
	}
	return c, nil
}
