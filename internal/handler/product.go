package handler

import (
	"net/http"

	"github.com/go-faster/jx"
)

// SetProductStock overwrites the stock of a product.
func (h *Handler) SetProductStock(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var stock *int
	if err := decodeBody(r, func(d *jx.Decoder, key string) error {
		if key != "estoque" {
			return d.Skip()
		}
		v, err := decodeOptInt(d)
		stock = v
		return err
	}); err != nil {
		writeError(w, r, err)
		return
	}
	switch {
	case stock == nil:
		writeError(w, r, fieldError("estoque", "required"))
		return
	case *stock < 0:
		writeError(w, r, fieldError("estoque", "gte=0"))
		return
	}

	p, err := h.deps.Stock.SetStock(r.Context(), id, *stock)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		intField(e, "id", p.ID)
		strField(e, "name", p.Name)
		money(e, "price", p.Price)
		intField(e, "stock", int64(p.Stock))
		optStrField(e, "image", h.imageURL(p.Image))
		e.ObjEnd()
	})
}
