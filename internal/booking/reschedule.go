package booking

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/avstrong/rentals/internal/availability"
	"github.com/avstrong/rentals/internal/pricing"
)

func (in *RescheduleInput) validate(today time.Time) error {
	inputErr := newInputError()

	if strings.TrimSpace(in.BookingID) == "" {
		inputErr.addError("booking_id", "provide booking_id")
	}

	if in.From.IsZero() {
		inputErr.addError("from", "provide from")
	} else if availability.Day(in.From).Before(today) {
		inputErr.addError("from", "from must not be in the past")
	}

	if in.To.IsZero() {
		inputErr.addError("to", "provide to")
	}

	return inputErr.orNil()
}

// RescheduleBooking moves a paid booking to new dates. The overlap check ignores the booking
// itself, and the previous range is kept in the booking's history.
func (m *Manager) RescheduleBooking(ctx context.Context, input *RescheduleInput) (_ *Booking, err error) {
	ctx, span, finish := m.startOperation(ctx, "RescheduleBooking")
	defer finish(&err)

	if err := input.validate(availability.Day(m.now())); err != nil {
		return nil, err
	}

	r := availability.NewDateRange(input.From, input.To)

	span.SetAttributes(attribute.String("booking.id", input.BookingID), attribute.String("booking.range", r.String()))

	b, err := m.storage.GetBooking(ctx, input.BookingID)
	if err != nil {
		return nil, fmt.Errorf("get booking %s: %w", input.BookingID, err)
	}

	release, err := m.lockProperty(ctx, b.PropertyID)
	if err != nil {
		return nil, err
	}
	defer release()

	b, err = m.storage.GetBooking(ctx, input.BookingID)
	if err != nil {
		return nil, fmt.Errorf("get booking %s: %w", input.BookingID, err)
	}

	// The paid total is kept; pricing only validates the new dates against the package.
	if _, err := pricing.Calculate(b.Package, r.From, r.To, &b.Total); err != nil {
		return nil, fmt.Errorf("validate dates of booking %s: %w", b.ID, err)
	}

	if err := m.availability.Ensure(ctx, b.PropertyID, r, bounds(b.Package), b.ID); err != nil {
		return nil, fmt.Errorf("reschedule booking %s: %w", b.ID, err)
	}

	eventID, err := m.nextID(ctx)
	if err != nil {
		return nil, fmt.Errorf("build event: %w", err)
	}

	now := m.now().UTC()

	b.Reschedules = append(b.Reschedules, b.Interval().Range)
	b.From = r.From
	b.To = r.To
	b.UpdatedAt = now

	event := &Event{
		ID:         eventID,
		Type:       EventBookingRescheduled,
		BookingID:  b.ID,
		EstimateID: b.EstimateID,
		PropertyID: b.PropertyID,
		From:       b.From,
		To:         b.To,
		Total:      b.Total,
		CreatedAt:  now,
	}

	err = m.inTransaction(ctx, func(ctx context.Context) error {
		if err := m.storage.SaveBooking(ctx, b); err != nil {
			return fmt.Errorf("save booking %s: %w", b.ID, err)
		}

		if err := m.storage.SaveEvent(ctx, event); err != nil {
			return fmt.Errorf("save event %s: %w", event.ID, err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	// The booking is committed; publishing must not hold up other writers on the property.
	release()

	m.l.LogInfo("Booking %s on property %s rescheduled to %s", b.ID, b.PropertyID, r)

	m.publish(ctx, event)

	return b, nil
}
