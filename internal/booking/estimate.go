package booking

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	"github.com/avstrong/rentals/internal/availability"
	"github.com/avstrong/rentals/internal/catalog"
	"github.com/avstrong/rentals/internal/pricing"
)

func (in *QuoteInput) validate(today time.Time) error {
	inputErr := newInputError()

	if strings.TrimSpace(in.CustomerID) == "" {
		inputErr.addError("customer_id", "provide customer_id")
	}

	if strings.TrimSpace(in.PropertyID) == "" {
		inputErr.addError("property_id", "provide property_id")
	}

	if strings.TrimSpace(in.PackageRef) == "" {
		inputErr.addError("package_ref", "provide package_ref")
	}

	if in.From.IsZero() {
		inputErr.addError("from", "provide from")
	} else if availability.Day(in.From).Before(today) {
		inputErr.addError("from", "from must not be in the past")
	}

	if in.ExplicitTotal != nil && in.ExplicitTotal.IsNegative() {
		inputErr.addError("total", "total must not be negative")
	}

	return inputErr.orNil()
}

func (in *QuoteInput) prepareDates() {
	in.From = availability.Day(in.From)

	if !in.To.IsZero() {
		in.To = availability.Day(in.To)
	}
}

// reusableEstimate picks the unpaid estimate a quote updates: an exact date match first,
// otherwise the most recent one.
func reusableEstimate(unpaid []*Estimate, from, to time.Time) *Estimate {
	for _, e := range unpaid {
		if e.From.Equal(from) && e.To.Equal(to) {
			return e
		}
	}

	if len(unpaid) > 0 {
		return unpaid[0]
	}

	return nil
}

// Quote creates or updates the customer's unpaid estimate for a property. Repeated quotes for
// the same customer and property collapse into a single unpaid estimate.
//
//nolint:funlen,cyclop // linear reconciliation steps
func (m *Manager) Quote(ctx context.Context, input *QuoteInput) (_ *Estimate, err error) {
	ctx, span, finish := m.startOperation(ctx, "Quote")
	defer finish(&err)

	now := m.now().UTC()

	if err := input.validate(availability.Day(now)); err != nil {
		return nil, err
	}

	input.prepareDates()

	span.SetAttributes(
		attribute.String("customer.id", input.CustomerID),
		attribute.String("property.id", input.PropertyID),
		attribute.String("package.ref", input.PackageRef),
	)

	release, err := m.locker.Acquire(ctx, estimateLockKey(input.CustomerID, input.PropertyID))
	if err != nil {
		return nil, fmt.Errorf("acquire estimate lock: %w", err)
	}
	defer release()

	snapshot, err := m.catalog.Snapshot(ctx, input.PropertyID, true)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}

	unpaid, err := m.storage.FindUnpaidEstimates(ctx, input.CustomerID, input.PropertyID)
	if err != nil {
		return nil, fmt.Errorf("find unpaid estimates: %w", err)
	}

	estimate := reusableEstimate(unpaid, input.From, input.To)

	var d catalog.Descriptor

	if estimate != nil {
		var preserved bool

		d, preserved = catalog.ResolveForUpdate(snapshot.Descriptors, input.PackageRef, estimate.Package)
		if preserved {
			m.l.LogInfo("Package %q not in catalog of property %s, estimate %s keeps package %s",
				input.PackageRef, input.PropertyID, estimate.ID, estimate.ResolvedPackageID)
		}
	} else {
		d, err = snapshot.Resolve(input.PackageRef)
		if err != nil {
			return nil, err
		}
	}

	to := input.To
	if to.IsZero() && d.FixedDuration {
		to = input.From.AddDate(0, 0, max(1, d.MinNights))
	}

	quote, err := pricing.Calculate(d, input.From, to, input.ExplicitTotal)
	if err != nil {
		return nil, fmt.Errorf("price package %s: %w", d.ID, err)
	}

	avail, err := m.availability.Check(ctx, input.PropertyID, availability.NewDateRange(input.From, to), bounds(d), "")
	if err != nil {
		return nil, fmt.Errorf("check availability: %w", err)
	}

	if estimate == nil {
		id, err := m.nextID(ctx)
		if err != nil {
			return nil, fmt.Errorf("build estimate: %w", err)
		}

		//nolint:exhaustruct
		estimate = &Estimate{
			ID:            id,
			CustomerID:    input.CustomerID,
			PropertyID:    input.PropertyID,
			PaymentStatus: PaymentUnpaid,
			CreatedAt:     now,
		}
	}

	estimate.From = input.From
	estimate.To = to
	estimate.Package = d
	estimate.ResolvedPackageID = d.ID
	estimate.DisplayName = d.DisplayName
	estimate.Nights = quote.Nights
	estimate.Total = quote.Total
	estimate.ExplicitTotal = quote.Explicit
	estimate.Available = avail.Available
	estimate.Suggestions = avail.Suggestions
	estimate.Version++
	estimate.UpdatedAt = now

	err = m.inTransaction(ctx, func(ctx context.Context) error {
		if err := m.storage.SaveEstimate(ctx, estimate); err != nil {
			return fmt.Errorf("save estimate %s: %w", estimate.ID, err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.String("estimate.id", estimate.ID), attribute.Bool("estimate.available", estimate.Available))

	return estimate, nil
}

func (in *ConfirmInput) validate() error {
	inputErr := newInputError()

	if strings.TrimSpace(in.EstimateID) == "" {
		inputErr.addError("estimate_id", "provide estimate_id")
	}

	for _, guest := range in.Guests {
		if strings.TrimSpace(guest) == "" {
			inputErr.addError("guests", "guest name must not be empty")

			break
		}
	}

	return inputErr.orNil()
}

// settled reports whether the estimate already left the unpaid state. A paid estimate yields
// its booking so confirmation can be retried safely.
func (m *Manager) settled(ctx context.Context, estimate *Estimate) (*Booking, bool, error) {
	switch estimate.PaymentStatus {
	case PaymentUnpaid:
		return nil, false, nil
	case PaymentPaid:
		b, err := m.storage.GetBookingByEstimate(ctx, estimate.ID)
		if err != nil {
			return nil, true, fmt.Errorf("get booking of paid estimate %s: %w", estimate.ID, err)
		}

		return b, true, nil
	default:
		return nil, true, fmt.Errorf("confirm %s estimate %s: %w", estimate.PaymentStatus, estimate.ID, ErrInvalidTransition)
	}
}

// ConfirmPayment turns an unpaid estimate into a booking. The package is re-resolved and
// repriced against the current catalog, and the overlap re-check, booking write and estimate
// transition happen under the property lock so concurrent confirmations cannot double-book.
// On conflict the estimate stays unpaid.
//
//nolint:funlen,cyclop // linear reconciliation steps
func (m *Manager) ConfirmPayment(ctx context.Context, input *ConfirmInput) (_ *Booking, err error) {
	ctx, span, finish := m.startOperation(ctx, "ConfirmPayment")
	defer finish(&err)

	if err := input.validate(); err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.String("estimate.id", input.EstimateID))

	estimate, err := m.storage.GetEstimate(ctx, input.EstimateID)
	if err != nil {
		return nil, fmt.Errorf("get estimate %s: %w", input.EstimateID, err)
	}

	if b, done, err := m.settled(ctx, estimate); done {
		return b, err
	}

	release, err := m.lockProperty(ctx, estimate.PropertyID)
	if err != nil {
		return nil, err
	}
	defer release()

	// Another confirmation may have won the lock first.
	estimate, err = m.storage.GetEstimate(ctx, input.EstimateID)
	if err != nil {
		return nil, fmt.Errorf("get estimate %s: %w", input.EstimateID, err)
	}

	if b, done, err := m.settled(ctx, estimate); done {
		return b, err
	}

	snapshot, err := m.catalog.Snapshot(ctx, estimate.PropertyID, true)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}

	d, preserved := catalog.ResolveForUpdate(snapshot.Descriptors, estimate.ResolvedPackageID, estimate.Package)
	if preserved && snapshot.ExternalUnavailable && d.Origin == catalog.OriginExternal {
		return nil, fmt.Errorf("re-resolve external package %s: %w", d.ID, catalog.ErrCatalogUnavailable)
	}

	var explicit *decimal.Decimal
	if estimate.ExplicitTotal {
		explicit = &estimate.Total
	}

	quote, err := pricing.Calculate(d, estimate.From, estimate.To, explicit)
	if err != nil {
		return nil, fmt.Errorf("reprice package %s: %w", d.ID, err)
	}

	if err := m.availability.Ensure(ctx, estimate.PropertyID, estimate.Range(), bounds(d), ""); err != nil {
		return nil, fmt.Errorf("confirm estimate %s: %w", estimate.ID, err)
	}

	bookingID, err := m.nextID(ctx)
	if err != nil {
		return nil, fmt.Errorf("build booking: %w", err)
	}

	eventID, err := m.nextID(ctx)
	if err != nil {
		return nil, fmt.Errorf("build event: %w", err)
	}

	now := m.now().UTC()

	guests := make([]string, 0, len(input.Guests))
	for _, guest := range input.Guests {
		guests = append(guests, strings.TrimSpace(guest))
	}

	//nolint:exhaustruct
	b := &Booking{
		ID:          bookingID,
		EstimateID:  estimate.ID,
		CustomerID:  estimate.CustomerID,
		PropertyID:  estimate.PropertyID,
		From:        estimate.From,
		To:          estimate.To,
		PackageID:   d.ID,
		DisplayName: d.DisplayName,
		Package:     d,
		Total:       quote.Total,
		Guests:      guests,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	estimate.Package = d
	estimate.ResolvedPackageID = d.ID
	estimate.DisplayName = d.DisplayName
	estimate.Nights = quote.Nights
	estimate.Total = quote.Total
	estimate.PaymentStatus = PaymentPaid
	estimate.Available = true
	estimate.Suggestions = nil
	estimate.BookingID = b.ID
	estimate.Version++
	estimate.UpdatedAt = now

	event := &Event{
		ID:         eventID,
		Type:       EventBookingConfirmed,
		BookingID:  b.ID,
		EstimateID: estimate.ID,
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

		if err := m.storage.SaveEstimate(ctx, estimate); err != nil {
			return fmt.Errorf("save estimate %s: %w", estimate.ID, err)
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

	m.l.LogInfo("Estimate %s confirmed as booking %s on property %s for %s",
		estimate.ID, b.ID, b.PropertyID, estimate.Range())

	m.publish(ctx, event)

	return b, nil
}

// CancelEstimate moves an unpaid estimate to cancelled.
func (m *Manager) CancelEstimate(ctx context.Context, estimateID string) (_ *Estimate, err error) {
	ctx, span, finish := m.startOperation(ctx, "CancelEstimate")
	defer finish(&err)

	if strings.TrimSpace(estimateID) == "" {
		inputErr := newInputError()
		inputErr.addError("estimate_id", "provide estimate_id")

		return nil, inputErr
	}

	span.SetAttributes(attribute.String("estimate.id", estimateID))

	estimate, err := m.storage.GetEstimate(ctx, estimateID)
	if err != nil {
		return nil, fmt.Errorf("get estimate %s: %w", estimateID, err)
	}

	release, err := m.lockProperty(ctx, estimate.PropertyID)
	if err != nil {
		return nil, err
	}
	defer release()

	estimate, err = m.storage.GetEstimate(ctx, estimateID)
	if err != nil {
		return nil, fmt.Errorf("get estimate %s: %w", estimateID, err)
	}

	if estimate.PaymentStatus != PaymentUnpaid {
		return nil, fmt.Errorf("cancel %s estimate %s: %w", estimate.PaymentStatus, estimateID, ErrInvalidTransition)
	}

	estimate.PaymentStatus = PaymentCancelled
	estimate.Version++
	estimate.UpdatedAt = m.now().UTC()

	err = m.inTransaction(ctx, func(ctx context.Context) error {
		if err := m.storage.SaveEstimate(ctx, estimate); err != nil {
			return fmt.Errorf("save estimate %s: %w", estimate.ID, err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return estimate, nil
}
