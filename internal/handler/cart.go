package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/loja-api/internal/domain/cart"
)

type cartLineRequest struct {
	ProductID int64 `json:"produto_id" validate:"required,gt=0"`
	Quantity  int   `json:"quantidade" validate:"required,gt=0"`
}

func (h *Handler) ViewCart(w http.ResponseWriter, r *http.Request) {
	totals, err := h.deps.Carts.View(r.Context(), principal(r).UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.writeCart(w, http.StatusOK, totals)
}

func (h *Handler) AddToCart(w http.ResponseWriter, r *http.Request) {
	var req cartLineRequest
	if err := decodeBody(r, func(d *jx.Decoder, key string) error {
		switch key {
		case "produto_id":
			v, err := d.Int64()
			req.ProductID = v
			return err
		case "quantidade":
			v, err := d.Int()
			req.Quantity = v
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

	totals, err := h.deps.Carts.AddLine(r.Context(), principal(r).UserID, req.ProductID, req.Quantity)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.writeCart(w, http.StatusOK, totals)
}

func (h *Handler) SetCartQuantity(w http.ResponseWriter, r *http.Request) {
	productID, err := idParam(r, "productID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req struct {
		Quantity int `json:"quantidade" validate:"required,gt=0"`
	}
	if err := decodeBody(r, func(d *jx.Decoder, key string) error {
		if key != "quantidade" {
			return d.Skip()
		}
		v, err := d.Int()
		req.Quantity = v
		return err
	}); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.check(req); err != nil {
		writeError(w, r, err)
		return
	}

	totals, err := h.deps.Carts.SetQuantity(r.Context(), principal(r).UserID, productID, req.Quantity)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.writeCart(w, http.StatusOK, totals)
}

func (h *Handler) RemoveFromCart(w http.ResponseWriter, r *http.Request) {
	productID, err := idParam(r, "productID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	totals, err := h.deps.Carts.RemoveLine(r.Context(), principal(r).UserID, productID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.writeCart(w, http.StatusOK, totals)
}

func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.Carts.Clear(r.Context(), principal(r).UserID); err != nil {
		writeError(w, r, err)
		return
	}
	writeNoContent(w)
}

func (h *Handler) ApplyCoupon(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code string `json:"codigo" validate:"required,min=3,max=50"`
	}
	if err := decodeBody(r, func(d *jx.Decoder, key string) error {
		if key != "codigo" {
			return d.Skip()
		}
		v, err := d.Str()
		req.Code = v
		return err
	}); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.check(req); err != nil {
		writeError(w, r, err)
		return
	}

	totals, err := h.deps.Carts.ApplyCoupon(r.Context(), principal(r).UserID, req.Code)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.writeCart(w, http.StatusOK, totals)
}

func (h *Handler) RemoveCoupon(w http.ResponseWriter, r *http.Request) {
	totals, err := h.deps.Carts.RemoveCoupon(r.Context(), principal(r).UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.writeCart(w, http.StatusOK, totals)
}

func (h *Handler) writeCart(w http.ResponseWriter, status int, t cart.Totals) {
	writeJSON(w, status, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("items")
		e.ArrStart()
		for _, l := range t.Lines {
			e.ObjStart()
			intField(e, "product_id", l.ProductID)
			strField(e, "name", l.Name)
			money(e, "unit_price", l.UnitPrice)
			intField(e, "quantity", int64(l.Quantity))
			money(e, "subtotal", l.Subtotal().Round(2))
			optStrField(e, "image", h.imageURL(l.Image))
			e.ObjEnd()
		}
		e.ArrEnd()
		intField(e, "item_count", int64(t.ItemCount))
		money(e, "subtotal", t.Subtotal)
		money(e, "discount", t.Discount)
		money(e, "total", t.Total)
		e.FieldStart("coupon")
		if t.Coupon == nil {
			e.Null()
		} else {
			e.ObjStart()
			strField(e, "code", t.Coupon.Code)
			strField(e, "type", string(t.Coupon.Type))
			money(e, "value", t.Coupon.Value)
			money(e, "discount", t.Coupon.Discount)
			e.ObjEnd()
		}
		e.ObjEnd()
	})
}
