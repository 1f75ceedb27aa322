package handler

import (
	"net/http"
	"strconv"

	"github.com/go-faster/jx"

	"github.com/xenking/loja-api/internal/domain/review"
)

func (h *Handler) ListProductReviews(w http.ResponseWriter, r *http.Request) {
	productID, err := idParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	reviews, err := h.deps.Reviews.ListByProduct(r.Context(), productID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeReviews(w, reviews)
}

func (h *Handler) ProductReviewStats(w http.ResponseWriter, r *http.Request) {
	productID, err := idParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	stats, err := h.deps.Reviews.Stats(r.Context(), productID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		intField(e, "product_id", productID)
		intField(e, "count", int64(stats.Count))
		e.FieldStart("average")
		e.Str(stats.Average.StringFixed(2))
		e.FieldStart("distribution")
		e.ObjStart()
		for rating := review.MinRating; rating <= review.MaxRating; rating++ {
			intField(e, strconv.Itoa(rating), int64(stats.Distribution[rating]))
		}
		e.ObjEnd()
		e.ObjEnd()
	})
}

// CreateReview rates a product the caller has received.
func (h *Handler) CreateReview(w http.ResponseWriter, r *http.Request) {
	productID, err := idParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var (
		rating  *int
		comment string
	)
	if err := decodeBody(r, func(d *jx.Decoder, key string) error {
		switch key {
		case "nota":
			v, err := decodeOptInt(d)
			rating = v
			return err
		case "comentario":
			v, err := decodeOptStr(d)
			if v != nil {
				comment = *v
			}
			return err
		default:
			return d.Skip()
		}
	}); err != nil {
		writeError(w, r, err)
		return
	}
	if rating == nil {
		writeError(w, r, fieldError("nota", "required"))
		return
	}

	rv, err := h.deps.Reviews.Create(r.Context(), principal(r).UserID, productID, *rating, comment)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeReview(e, rv) })
}

func (h *Handler) ListMyReviews(w http.ResponseWriter, r *http.Request) {
	reviews, err := h.deps.Reviews.ListByUser(r.Context(), principal(r).UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeReviews(w, reviews)
}

func (h *Handler) GetReview(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	rv, err := h.deps.Reviews.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeReview(e, rv) })
}

func (h *Handler) UpdateReview(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var (
		rating  *int
		comment *string
	)
	if err := decodeBody(r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "nota":
			rating, err = decodeOptInt(d)
		case "comentario":
			comment, err = decodeOptStr(d)
		default:
			return d.Skip()
		}
		return err
	}); err != nil {
		writeError(w, r, err)
		return
	}

	rv, err := h.deps.Reviews.Update(r.Context(), principal(r).UserID, id, rating, comment)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeReview(e, rv) })
}

// DeleteReview removes a review of the caller. Administrators may remove
// any review.
func (h *Handler) DeleteReview(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	p := principal(r)
	if err := h.deps.Reviews.Delete(r.Context(), p.UserID, id, p.Admin()); err != nil {
		writeError(w, r, err)
		return
	}
	writeNoContent(w)
}

func writeReviews(w http.ResponseWriter, reviews []review.Review) {
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for i := range reviews {
			encodeReview(e, &reviews[i])
		}
		e.ArrEnd()
	})
}

func encodeReview(e *jx.Encoder, rv *review.Review) {
	e.ObjStart()
	intField(e, "id", rv.ID)
	intField(e, "product_id", rv.ProductID)
	intField(e, "user_id", rv.UserID)
	optStrField(e, "user_name", rv.UserName)
	intField(e, "rating", int64(rv.Rating))
	optStrField(e, "comment", rv.Comment)
	timeField(e, "created_at", rv.CreatedAt)
	timeField(e, "updated_at", rv.UpdatedAt)
	e.ObjEnd()
}
