// Package kafka publishes committed booking events to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/avstrong/rentals/internal/booking"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type observer interface {
	ObservePublish(eventType string, err error)
}

type nopObserver struct{}

func (nopObserver) ObservePublish(string, error) {}

type Config struct {
	Brokers []string
	Topic   string
	// Observer is optional.
	Observer observer
}

type Publisher struct {
	writer   messageWriter
	observer observer
}

func NewWriter(brokers []string, topic string) *kafka.Writer {
	//nolint:exhaustruct
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
}

func New(conf Config) *Publisher {
	return newPublisher(NewWriter(conf.Brokers, conf.Topic), conf.Observer)
}

func newPublisher(w messageWriter, o observer) *Publisher {
	if o == nil {
		o = nopObserver{}
	}

	return &Publisher{writer: w, observer: o}
}

// Publish writes the event keyed by booking id so every event of a booking lands on one
// partition in order. The trace context travels in the message headers.
func (p *Publisher) Publish(ctx context.Context, event *booking.Event) (err error) {
	defer func() { p.observer.ObservePublish(string(event.Type), err) }()

	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", event.ID, err)
	}

	msg := kafka.Message{
		Key:   []byte(event.BookingID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(event.Type)},
			{Key: "event-id", Value: []byte(event.ID)},
		},
	}

	otel.GetTextMapPropagator().Inject(ctx, headerCarrier{headers: &msg.Headers})

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write event %s to kafka: %w", event.ID, err)
	}

	return nil
}

func (p *Publisher) Close() error {
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("close kafka writer: %w", err)
	}

	return nil
}

type headerCarrier struct {
	headers *[]kafka.Header
}

var _ propagation.TextMapCarrier = headerCarrier{}

func (c headerCarrier) Get(key string) string {
	for _, h := range *c.headers {
		if h.Key == key {
			return string(h.Value)
		}
	}

	return ""
}

func (c headerCarrier) Set(key, value string) {
	for i, h := range *c.headers {
		if h.Key == key {
			(*c.headers)[i].Value = []byte(value)

			return
		}
	}

	*c.headers = append(*c.headers, kafka.Header{Key: key, Value: []byte(value)})
}

func (c headerCarrier) Keys() []string {
	keys := make([]string, 0, len(*c.headers))
	for _, h := range *c.headers {
		keys = append(keys, h.Key)
	}

	return keys
}
