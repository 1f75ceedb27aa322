package events

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/segmentio/kafka-go"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

// Store reads and acknowledges outbox rows.
type Store interface {
	// FetchPending returns up to limit unsent rows, oldest first.
	FetchPending(ctx context.Context, limit int) ([]Record, error)
	MarkSent(ctx context.Context, ids []int64, at time.Time) error
}

// Writer is the part of *kafka.Writer used by the relay.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewKafkaWriter returns a writer for topic on brokers.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		WriteTimeout:           10 * time.Second,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
}

// Publisher writes records to Kafka behind a circuit breaker, so that an
// unavailable broker is probed instead of hammered.
type Publisher struct {
	writer Writer
	cb     *gobreaker.CircuitBreaker[struct{}]
}

// NewPublisher creates a Publisher. The breaker opens after failures
// consecutive write errors and probes again after cooldown.
func NewPublisher(w Writer, failures uint32, cooldown time.Duration, lg *zap.Logger) *Publisher {
	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "kafka-outbox",
		MaxRequests: 1,
		Timeout:     cooldown,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			lg.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.Stringer("from", from),
				zap.Stringer("to", to),
			)
		},
	})
	return &Publisher{writer: w, cb: cb}
}

// Publish writes records in a single batch.
func (p *Publisher) Publish(ctx context.Context, records []Record) error {
	msgs := make([]kafka.Message, len(records))
	for i, r := range records {
		msgs[i] = kafka.Message{
			Key:   []byte(r.Key),
			Value: r.Payload,
			Time:  r.CreatedAt,
			Headers: []kafka.Header{
				{Key: "event_type", Value: []byte(r.Type)},
				{Key: "event_id", Value: []byte(r.EventID.String())},
			},
		}
	}
	_, err := p.cb.Execute(func() (struct{}, error) {
		return struct{}{}, p.writer.WriteMessages(ctx, msgs...)
	})
	if err != nil {
		return errors.Wrap(err, "write messages")
	}
	return nil
}

// Close closes the underlying writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

// Sink publishes a batch of records.
type Sink interface {
	Publish(ctx context.Context, records []Record) error
}

// PublishObserver is told about every publish attempt.
type PublishObserver interface {
	ObservePublish(n int, err error)
}

type nopObserver struct{}

func (nopObserver) ObservePublish(int, error) {}

// RelayOption configures a Relay.
type RelayOption func(*Relay)

// WithPublishObserver sets the observer of publish attempts.
func WithPublishObserver(o PublishObserver) RelayOption {
	return func(r *Relay) { r.observer = o }
}

// Relay moves outbox rows to a Sink. Delivery is at least once: rows are
// marked sent only after a successful publish.
type Relay struct {
	store    Store
	sink     Sink
	observer PublishObserver
	interval time.Duration
	batch    int
	now      func() time.Time
}

// NewRelay creates a Relay polling every interval for up to batch rows.
func NewRelay(store Store, sink Sink, interval time.Duration, batch int, opts ...RelayOption) *Relay {
	r := &Relay{
		store:    store,
		sink:     sink,
		observer: nopObserver{},
		interval: interval,
		batch:    batch,
		now:      time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Run polls until ctx is cancelled. Failures are logged and retried on the
// next tick.
func (r *Relay) Run(ctx context.Context) error {
	if r.interval <= 0 {
		return errors.Errorf("invalid poll interval %s", r.interval)
	}
	lg := zctx.From(ctx)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			for {
				n, err := r.Flush(ctx)
				if err != nil {
					if ctx.Err() == nil {
						lg.Warn("Outbox relay failed", zap.Error(err))
					}
					break
				}
				// A full batch means more rows are probably waiting.
				if n < r.batch {
					break
				}
			}
		}
	}
}

// Flush publishes one batch of pending rows and returns how many were sent.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	records, err := r.store.FetchPending(ctx, r.batch)
	if err != nil {
		return 0, errors.Wrap(err, "fetch pending")
	}
	if len(records) == 0 {
		return 0, nil
	}

	err = r.sink.Publish(ctx, records)
	r.observer.ObservePublish(len(records), err)
	if err != nil {
		return 0, errors.Wrap(err, "publish")
	}

	ids := make([]int64, len(records))
	for i, rec := range records {
		ids[i] = rec.ID
	}
	if err := r.store.MarkSent(ctx, ids, r.now()); err != nil {
		return 0, errors.Wrap(err, "mark sent")
	}

	zctx.From(ctx).Debug("Outbox events published", zap.Int("count", len(records)))
	return len(records), nil
}
