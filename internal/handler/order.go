package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-faster/jx"

	"github.com/xenking/loja-api/internal/domain/order"
)

type addressRequest struct {
	PostalCode   string `json:"cep" validate:"required,cep"`
	Street       string `json:"street" validate:"required,min=5,max=255"`
	Number       string `json:"number" validate:"required,min=1,max=20"`
	Complement   string `json:"complement" validate:"max=100"`
	Neighborhood string `json:"neighborhood" validate:"required,min=2,max=100"`
	City         string `json:"city" validate:"required,min=2,max=100"`
	State        string `json:"state" validate:"required,len=2,alpha"`
}

type checkoutRequest struct {
	Address       addressRequest `json:"shipping_address"`
	PaymentMethod string         `json:"payment_method" validate:"required,oneof=credit_card debit_card pix boleto"`
	Coupon        string         `json:"coupon" validate:"omitempty,min=3,max=50"`
	Notes         string         `json:"observacoes" validate:"max=300"`
}

func (a *addressRequest) decode(d *jx.Decoder) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		var dst *string
		switch key {
		case "cep":
			dst = &a.PostalCode
		case "street":
			dst = &a.Street
		case "number":
			dst = &a.Number
		case "complement":
			dst = &a.Complement
		case "neighborhood":
			dst = &a.Neighborhood
		case "city":
			dst = &a.City
		case "state":
			dst = &a.State
		default:
			return d.Skip()
		}
		v, err := decodeOptStr(d)
		if v != nil {
			*dst = *v
		}
		return err
	})
}

// Checkout turns the caller's cart into an order.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := decodeBody(r, func(d *jx.Decoder, key string) error {
		var dst *string
		switch key {
		case "shipping_address":
			return req.Address.decode(d)
		case "payment_method":
			dst = &req.PaymentMethod
		case "coupon":
			dst = &req.Coupon
		case "observacoes":
			dst = &req.Notes
		default:
			return d.Skip()
		}
		v, err := decodeOptStr(d)
		if v != nil {
			*dst = *v
		}
		return err
	}); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.check(req); err != nil {
		writeError(w, r, err)
		return
	}

	res, err := h.deps.Orders.Checkout(r.Context(), principal(r).UserID, order.CheckoutData{
		Address: order.Address{
			PostalCode:   req.Address.PostalCode,
			Street:       req.Address.Street,
			Number:       req.Address.Number,
			Complement:   req.Address.Complement,
			Neighborhood: req.Address.Neighborhood,
			City:         req.Address.City,
			State:        req.Address.State,
		},
		PaymentMethod: order.PaymentMethod(req.PaymentMethod),
		CouponCode:    req.Coupon,
		Notes:         req.Notes,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		field(e, "order", func(e *jx.Encoder) { encodeOrder(e, res.Order) })
		if res.CouponReason != "" {
			field(e, "coupon_warning", func(e *jx.Encoder) {
				e.ObjStart()
				strField(e, "reason", string(res.CouponReason))
				strField(e, "message", res.CouponReason.Message())
				e.ObjEnd()
			})
		}
		e.ObjEnd()
	})
}

func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	f, err := orderFilter(r, false)
	if err != nil {
		writeError(w, r, err)
		return
	}
	orders, err := h.deps.Orders.ListForUser(r.Context(), principal(r).UserID, f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOrders(w, orders)
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	o, err := h.deps.Orders.Get(r.Context(), principal(r).UserID, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o) })
}

func (h *Handler) AdminListOrders(w http.ResponseWriter, r *http.Request) {
	f, err := orderFilter(r, true)
	if err != nil {
		writeError(w, r, err)
		return
	}
	orders, err := h.deps.Orders.ListAll(r.Context(), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOrders(w, orders)
}

func (h *Handler) AdminGetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	o, err := h.deps.Orders.GetAny(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o) })
}

// UpdateOrderStatus moves an order along its lifecycle.
func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req struct {
		Status     string  `json:"status" validate:"required"`
		AdminNotes *string `json:"observacoes_admin" validate:"omitempty,max=500"`
	}
	if err := decodeBody(r, func(d *jx.Decoder, key string) error {
		switch key {
		case "status":
			v, err := d.Str()
			req.Status = v
			return err
		case "observacoes_admin":
			v, err := decodeOptStr(d)
			req.AdminNotes = v
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
	to, err := order.ParseStatus(req.Status)
	if err != nil {
		writeError(w, r, err)
		return
	}

	o, err := h.deps.Orders.UpdateStatus(r.Context(), id, to, req.AdminNotes)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o) })
}

// orderFilter reads status, from and to. Dates are RFC 3339 timestamps or
// plain YYYY-MM-DD days; a plain "to" day includes the whole day.
func orderFilter(r *http.Request, admin bool) (order.Filter, error) {
	q := r.URL.Query()
	var f order.Filter
	if s := q.Get("status"); s != "" {
		st, err := order.ParseStatus(s)
		if err != nil {
			return f, fieldError("status", "oneof=pending processing shipped delivered cancelled")
		}
		f.Status = st
	}
	if s := q.Get("from"); s != "" {
		t, _, err := parseDay(s)
		if err != nil {
			return f, fieldError("from", "datetime")
		}
		f.From = t
	}
	if s := q.Get("to"); s != "" {
		t, day, err := parseDay(s)
		if err != nil {
			return f, fieldError("to", "datetime")
		}
		if day {
			t = t.Add(24*time.Hour - time.Nanosecond)
		}
		f.To = t
	}
	if admin {
		if s := q.Get("user_id"); s != "" {
			id, err := strconv.ParseInt(s, 10, 64)
			if err != nil || id <= 0 {
				return f, fieldError("user_id", "gt=0")
			}
			f.UserID = id
		}
	}
	return f, nil
}

func parseDay(s string) (time.Time, bool, error) {
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, true, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	return t, false, err
}

func writeOrders(w http.ResponseWriter, orders []order.Order) {
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for i := range orders {
			encodeOrder(e, &orders[i])
		}
		e.ArrEnd()
	})
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.ObjStart()
	strField(e, "id", o.ID.String())
	intField(e, "user_id", o.UserID)
	strField(e, "status", string(o.Status))
	e.FieldStart("items")
	e.ArrStart()
	for _, l := range o.Lines {
		e.ObjStart()
		intField(e, "product_id", l.ProductID)
		strField(e, "product_name", l.ProductName)
		intField(e, "quantity", int64(l.Quantity))
		money(e, "unit_price", l.UnitPrice)
		money(e, "subtotal", l.Subtotal().Round(2))
		e.ObjEnd()
	}
	e.ArrEnd()
	money(e, "subtotal", o.Subtotal)
	money(e, "discount", o.Discount)
	money(e, "shipping", o.Shipping)
	money(e, "total", o.Total)
	e.FieldStart("shipping_address")
	e.ObjStart()
	strField(e, "cep", o.Address.PostalCode)
	strField(e, "street", o.Address.Street)
	strField(e, "number", o.Address.Number)
	optStrField(e, "complement", o.Address.Complement)
	strField(e, "neighborhood", o.Address.Neighborhood)
	strField(e, "city", o.Address.City)
	strField(e, "state", o.Address.State)
	e.ObjEnd()
	strField(e, "payment_method", string(o.PaymentMethod))
	optStrField(e, "coupon_code", o.CouponCode)
	optStrField(e, "notes", o.Notes)
	optStrField(e, "admin_notes", o.AdminNotes)
	timeField(e, "created_at", o.CreatedAt)
	timeField(e, "updated_at", o.UpdatedAt)
	e.ObjEnd()
}
