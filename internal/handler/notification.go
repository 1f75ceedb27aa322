package handler

import (
	"net/http"
	"strconv"

	"github.com/go-faster/jx"

	"github.com/xenking/loja-api/internal/domain/notification"
)

func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	var unread bool
	if s := r.URL.Query().Get("unread"); s != "" {
		b, err := strconv.ParseBool(s)
		if err != nil {
			writeError(w, r, fieldError("unread", "boolean"))
			return
		}
		unread = b
	}
	list, err := h.deps.Notifications.List(r.Context(), principal(r).UserID, unread)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for i := range list {
			encodeNotification(e, &list[i])
		}
		e.ArrEnd()
	})
}

func (h *Handler) NotificationStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.deps.Notifications.Stats(r.Context(), principal(r).UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		intField(e, "total", int64(stats.Total))
		intField(e, "read", int64(stats.Read))
		intField(e, "unread", int64(stats.Unread))
		e.ObjEnd()
	})
}

func (h *Handler) GetNotification(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	n, err := h.deps.Notifications.Get(r.Context(), principal(r).UserID, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeNotification(e, n) })
}

func (h *Handler) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.deps.Notifications.MarkRead(r.Context(), principal(r).UserID, id); err != nil {
		writeError(w, r, err)
		return
	}
	writeNoContent(w)
}

func (h *Handler) MarkAllNotificationsRead(w http.ResponseWriter, r *http.Request) {
	n, err := h.deps.Notifications.MarkAllRead(r.Context(), principal(r).UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		intField(e, "updated", n)
		e.ObjEnd()
	})
}

func (h *Handler) DeleteNotification(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.deps.Notifications.Delete(r.Context(), principal(r).UserID, id); err != nil {
		writeError(w, r, err)
		return
	}
	writeNoContent(w)
}

type notificationRequest struct {
	UserID  int64  `json:"usuario_id" validate:"required,gt=0"`
	Title   string `json:"titulo" validate:"required,max=100"`
	Message string `json:"mensagem" validate:"required"`
	Kind    string `json:"tipo" validate:"omitempty,oneof=system promotion order general"`
}

type notificationPatchRequest struct {
	Title   *string `json:"titulo" validate:"omitempty,min=1,max=100"`
	Message *string `json:"mensagem" validate:"omitempty,min=1"`
	Kind    *string `json:"tipo" validate:"omitempty,oneof=system promotion order general"`
	Read    *bool   `json:"lida"`
}

// AdminListNotifications lists notifications of every user, optionally
// narrowed by ?user_id and ?read.
func (h *Handler) AdminListNotifications(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var f notification.Filter
	if s := q.Get("user_id"); s != "" {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil || id <= 0 {
			writeError(w, r, fieldError("user_id", "gt=0"))
			return
		}
		f.UserID = id
	}
	if s := q.Get("read"); s != "" {
		b, err := strconv.ParseBool(s)
		if err != nil {
			writeError(w, r, fieldError("read", "boolean"))
			return
		}
		f.Read = &b
	}
	list, err := h.deps.NotifyAdmin.ListAll(r.Context(), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for i := range list {
			encodeNotification(e, &list[i])
		}
		e.ArrEnd()
	})
}

func (h *Handler) AdminCreateNotification(w http.ResponseWriter, r *http.Request) {
	var req notificationRequest
	if err := decodeBody(r, func(d *jx.Decoder, key string) error {
		var dst *string
		switch key {
		case "usuario_id":
			v, err := d.Int64()
			req.UserID = v
			return err
		case "titulo":
			dst = &req.Title
		case "mensagem":
			dst = &req.Message
		case "tipo":
			dst = &req.Kind
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

	n := &notification.Notification{
		UserID:  req.UserID,
		Title:   req.Title,
		Message: req.Message,
		Kind:    notification.Kind(req.Kind),
	}
	if err := h.deps.NotifyAdmin.Notify(r.Context(), n); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeNotification(e, n) })
}

func (h *Handler) AdminUpdateNotification(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req notificationPatchRequest
	if err := decodeBody(r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "titulo":
			req.Title, err = decodeOptStr(d)
		case "mensagem":
			req.Message, err = decodeOptStr(d)
		case "tipo":
			req.Kind, err = decodeOptStr(d)
		case "lida":
			req.Read, err = decodeOptBool(d)
		default:
			return d.Skip()
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

	p := notification.Patch{Title: req.Title, Message: req.Message, Read: req.Read}
	if req.Kind != nil {
		k := notification.Kind(*req.Kind)
		p.Kind = &k
	}
	n, err := h.deps.NotifyAdmin.Update(r.Context(), id, p)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeNotification(e, n) })
}

func (h *Handler) AdminDeleteNotification(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.deps.NotifyAdmin.Remove(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	writeNoContent(w)
}

func encodeNotification(e *jx.Encoder, n *notification.Notification) {
	e.ObjStart()
	intField(e, "id", n.ID)
	intField(e, "user_id", n.UserID)
	strField(e, "title", n.Title)
	strField(e, "message", n.Message)
	strField(e, "kind", string(n.Kind))
	e.FieldStart("read")
	e.Bool(n.Read)
	timeField(e, "created_at", n.CreatedAt)
	e.ObjEnd()
}
