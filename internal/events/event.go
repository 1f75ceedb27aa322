// Package events relays order events from the outbox table to Kafka.
package events

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/loja-api/internal/domain/order"
)

// Record is an outbox row.
type Record struct {
	ID        int64
	EventID   uuid.UUID
	Type      string
	Key       string
	Payload   []byte
	CreatedAt time.Time
}

// NewRecord converts e into an outbox row keyed by order id, so that all
// events of an order land on the same partition.
func NewRecord(e order.Event) Record {
	return Record{
		EventID:   e.ID,
		Type:      string(e.Type),
		Key:       e.OrderID.String(),
		Payload:   Encode(e),
		CreatedAt: e.OccurredAt,
	}
}

// Encode renders e as the JSON message body.
func Encode(e order.Event) []byte {
	var enc jx.Encoder
	enc.ObjStart()
	enc.FieldStart("event_id")
	enc.Str(e.ID.String())
	enc.FieldStart("type")
	enc.Str(string(e.Type))
	enc.FieldStart("order_id")
	enc.Str(e.OrderID.String())
	enc.FieldStart("user_id")
	enc.Int64(e.UserID)
	enc.FieldStart("status")
	enc.Str(string(e.Status))
	if e.PreviousStatus != "" {
		enc.FieldStart("previous_status")
		enc.Str(string(e.PreviousStatus))
	}
	enc.FieldStart("total")
	enc.Str(e.Total.StringFixed(2))
	if e.CouponCode != "" {
		enc.FieldStart("coupon_code")
		enc.Str(e.CouponCode)
	}
	enc.FieldStart("occurred_at")
	enc.Str(e.OccurredAt.UTC().Format(time.RFC3339Nano))
	enc.ObjEnd()
	return enc.Bytes()
}

// Decode parses a message body produced by Encode.
func Decode(data []byte) (order.Event, error) {
	var e order.Event
	err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "user_id":
			v, err := d.Int64()
			e.UserID = v
			return err
		case "event_id", "type", "order_id", "status", "previous_status", "total", "coupon_code", "occurred_at":
			s, err := d.Str()
			if err != nil {
				return err
			}
			return setField(&e, key, s)
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return order.Event{}, errors.Wrap(err, "decode event")
	}
	return e, nil
}

func setField(e *order.Event, key, s string) error {
	var err error
	switch key {
	case "event_id":
		e.ID, err = uuid.Parse(s)
	case "type":
		e.Type = order.EventType(s)
	case "order_id":
		e.OrderID, err = uuid.Parse(s)
	case "status":
		e.Status = order.Status(s)
	case "previous_status":
		e.PreviousStatus = order.Status(s)
	case "total":
		e.Total, err = decimal.NewFromString(s)
	case "coupon_code":
		e.CouponCode = s
	case "occurred_at":
		e.OccurredAt, err = time.Parse(time.RFC3339Nano, s)
	}
	if err != nil {
		return errors.Wrap(err, key)
	}
	return nil
}
