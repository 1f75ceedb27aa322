package handler

import (
	"net/http"
	"strconv"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/loja-api/internal/domain/coupon"
)

func (h *Handler) ListActiveCoupons(w http.ResponseWriter, r *http.Request) {
	coupons, err := h.deps.Coupons.ListActive(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeCoupons(w, coupons, false)
}

// VerifyCoupon reports whether the caller could use a code, with a preview
// of the discount when a subtotal is given.
func (h *Handler) VerifyCoupon(w http.ResponseWriter, r *http.Request) {
	var (
		req struct {
			Code string `json:"codigo" validate:"required,min=3,max=50"`
		}
		subtotal *decimal.Decimal
	)
	if err := decodeBody(r, func(d *jx.Decoder, key string) error {
		switch key {
		case "codigo":
			v, err := d.Str()
			req.Code = v
			return err
		case "subtotal":
			if d.Next() == jx.Null {
				return d.Null()
			}
			v, err := decodeDecimal(d)
			subtotal = &v
			return err
		default:
			return d.Skip()
		}
	}); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.check(req); err != nil {
		writeError(w, r, err)
		return
	}
	if subtotal != nil && subtotal.IsNegative() {
		writeError(w, r, fieldError("subtotal", "gte=0"))
		return
	}

	v, err := h.deps.Coupons.Validate(r.Context(), req.Code, principal(r).UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("valid")
		e.Bool(v.Valid)
		strField(e, "code", coupon.NormalizeCode(req.Code))
		if !v.Valid {
			strField(e, "reason", string(v.Reason))
			strField(e, "message", v.Reason.Message())
			e.ObjEnd()
			return
		}
		field(e, "coupon", func(e *jx.Encoder) { encodeCoupon(e, v.Coupon, false) })
		if subtotal != nil {
			money(e, "discount", v.Coupon.Discount(*subtotal))
		}
		e.ObjEnd()
	})
}

func (h *Handler) AdminListCoupons(w http.ResponseWriter, r *http.Request) {
	var active *bool
	if s := r.URL.Query().Get("active"); s != "" {
		b, err := strconv.ParseBool(s)
		if err != nil {
			writeError(w, r, fieldError("active", "boolean"))
			return
		}
		active = &b
	}
	coupons, err := h.deps.CouponAdmin.List(r.Context(), active)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeCoupons(w, coupons, true)
}

func (h *Handler) AdminGetCoupon(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	c, err := h.deps.CouponAdmin.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeCoupon(e, c, true) })
}

func (h *Handler) AdminCreateCoupon(w http.ResponseWriter, r *http.Request) {
	def, err := decodeDefinition(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	c, err := h.deps.CouponAdmin.Create(r.Context(), def)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeCoupon(e, c, true) })
}

func (h *Handler) AdminUpdateCoupon(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	def, err := decodeDefinition(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	c, err := h.deps.CouponAdmin.Update(r.Context(), id, def)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeCoupon(e, c, true) })
}

func (h *Handler) AdminDeleteCoupon(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.deps.CouponAdmin.Delete(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	writeNoContent(w)
}

// decodeDefinition reads a coupon definition. Field rules are enforced by
// coupon.Admin.
func decodeDefinition(r *http.Request) (coupon.Definition, error) {
	var def coupon.Definition
	err := decodeBody(r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "codigo":
			def.Code, err = d.Str()
		case "descricao":
			var v *string
			v, err = decodeOptStr(d)
			if v != nil {
				def.Description = *v
			}
		case "tipo":
			var v string
			v, err = d.Str()
			def.Type = coupon.Type(v)
		case "valor":
			def.Value, err = decodeDecimal(d)
		case "data_expiracao":
			def.ExpiresAt, err = decodeTime(d)
		case "max_usos":
			def.MaxUses, err = d.Int()
		case "ativo":
			var v bool
			v, err = d.Bool()
			def.Active = &v
		default:
			return d.Skip()
		}
		return err
	})
	return def, err
}

func writeCoupons(w http.ResponseWriter, coupons []coupon.Coupon, admin bool) {
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for i := range coupons {
			encodeCoupon(e, &coupons[i], admin)
		}
		e.ArrEnd()
	})
}

// encodeCoupon writes c. Usage counters are only shown to administrators.
func encodeCoupon(e *jx.Encoder, c *coupon.Coupon, admin bool) {
	e.ObjStart()
	intField(e, "id", c.ID)
	strField(e, "code", c.Code)
	optStrField(e, "description", c.Description)
	strField(e, "type", string(c.Type))
	e.FieldStart("value")
	e.Str(c.Value.String())
	timeField(e, "expires_at", c.ExpiresAt)
	if admin {
		intField(e, "max_uses", int64(c.MaxUses))
		intField(e, "used_count", int64(c.UsedCount))
		e.FieldStart("active")
		e.Bool(c.Active)
		timeField(e, "created_at", c.CreatedAt)
		timeField(e, "updated_at", c.UpdatedAt)
	} else {
		intField(e, "remaining_uses", int64(max(c.MaxUses-c.UsedCount, 0)))
	}
	e.ObjEnd()
}
