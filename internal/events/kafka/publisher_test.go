package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/avstrong/rentals/internal/booking"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}

	w.msgs = append(w.msgs, msgs...)

	return nil
}

func (w *fakeWriter) Close() error { return nil }

type countingObserver struct {
	ok, failed int
}

func (o *countingObserver) ObservePublish(_ string, err error) {
	if err != nil {
		o.failed++

		return
	}

	o.ok++
}

func event() *booking.Event {
	return &booking.Event{
		ID:         "ev-1",
		Type:       booking.EventBookingConfirmed,
		BookingID:  "b-1",
		EstimateID: "e-1",
		PropertyID: "P",
		From:       time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		To:         time.Date(2024, 6, 4, 0, 0, 0, 0, time.UTC),
		Total:      decimal.NewFromInt(300),
	}
}

func TestPublish(t *testing.T) {
	w := &fakeWriter{}
	o := &countingObserver{}
	p := newPublisher(w, o)

	if err := p.Publish(context.Background(), event()); err != nil {
		t.Fatalf("publish: %v", err)
	}

	if len(w.msgs) != 1 {
		t.Fatalf("wrote %d messages, want 1", len(w.msgs))
	}

	msg := w.msgs[0]
	if string(msg.Key) != "b-1" {
		t.Fatalf("key = %q, want booking id", msg.Key)
	}

	var got booking.Event
	if err := json.Unmarshal(msg.Value, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if got.Type != booking.EventBookingConfirmed || !got.Total.Equal(decimal.NewFromInt(300)) {
		t.Fatalf("payload = %+v", got)
	}

	if o.ok != 1 {
		t.Fatalf("observed ok = %d, want 1", o.ok)
	}
}

func TestPublishFailure(t *testing.T) {
	o := &countingObserver{}
	p := newPublisher(&fakeWriter{err: errors.New("leader not available")}, o)

	if err := p.Publish(context.Background(), event()); err == nil {
		t.Fatal("publish succeeded with failing writer")
	}

	if o.failed != 1 {
		t.Fatalf("observed failed = %d, want 1", o.failed)
	}
}

func TestHeaderCarrierRoundTripsTraceContext(t *testing.T) {
	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")

	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	}))

	var headers []kafka.Header

	prop := propagation.TraceContext{}
	prop.Inject(ctx, headerCarrier{headers: &headers})

	extracted := trace.SpanContextFromContext(prop.Extract(context.Background(), headerCarrier{headers: &headers}))

	if extracted.TraceID() != traceID {
		t.Fatalf("trace id = %s, want %s", extracted.TraceID(), traceID)
	}
}
