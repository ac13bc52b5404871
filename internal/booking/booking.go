package booking

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/avstrong/rentals/internal/availability"
	"github.com/avstrong/rentals/internal/catalog"
	"github.com/avstrong/rentals/internal/entitlement"
	"github.com/avstrong/rentals/internal/logger"
)

var tracer = otel.Tracer("github.com/avstrong/rentals/internal/booking")

type idGenerator interface {
	GetID(ctx context.Context) (string, error)
}

type storageReader interface {
	GetEstimate(ctx context.Context, id string) (*Estimate, error)
	// FindUnpaidEstimates returns the customer's unpaid estimates for a property, most recent first.
	FindUnpaidEstimates(ctx context.Context, customerID, propertyID string) ([]*Estimate, error)
	GetBooking(ctx context.Context, id string) (*Booking, error)
	GetBookingByEstimate(ctx context.Context, estimateID string) (*Booking, error)
}

type storageWriter interface {
	BeginTransaction(ctx context.Context, level string) (context.Context, error)
	CommitTransaction(ctx context.Context) error
	RollbackTransaction(ctx context.Context) error
	SaveEstimate(ctx context.Context, estimate *Estimate) error
	SaveBooking(ctx context.Context, booking *Booking) error
	SaveEvent(ctx context.Context, event *Event) error
}

type storage interface {
	storageReader
	storageWriter
}

type catalogSource interface {
	Snapshot(ctx context.Context, propertyID string, fresh bool) (*catalog.Snapshot, error)
}

type tierLookup interface {
	Tier(ctx context.Context, customerID string) (entitlement.Tier, error)
}

type availabilityEngine interface {
	Check(ctx context.Context, propertyID string, r availability.DateRange, b availability.Bounds, excludeBookingID string) (*availability.Result, error)
	Ensure(ctx context.Context, propertyID string, r availability.DateRange, b availability.Bounds, excludeBookingID string) error
}

type locker interface {
	Acquire(ctx context.Context, key string) (func(), error)
}

type publisher interface {
	Publish(ctx context.Context, event *Event) error
}

type observer interface {
	ObserveOperation(op, result string, d time.Duration)
}

type nopObserver struct{}

func (nopObserver) ObserveOperation(string, string, time.Duration) {}

type Config struct {
	L            *logger.Logger
	Storage      storage
	Catalog      catalogSource
	Tiers        tierLookup
	Availability availabilityEngine
	Locker       locker
	IDGenerator  idGenerator
	// Publisher is optional; events are always stored with the booking change.
	Publisher publisher
	Observer  observer
	Now       func() time.Time
}

type Manager struct {
	l            *logger.Logger
	storage      storage
	catalog      catalogSource
	tiers        tierLookup
	availability availabilityEngine
	locker       locker
	idGenerator  idGenerator
	publisher    publisher
	observer     observer
	now          func() time.Time
}

func New(conf Config) *Manager {
	m := &Manager{
		l:            conf.L,
		storage:      conf.Storage,
		catalog:      conf.Catalog,
		tiers:        conf.Tiers,
		availability: conf.Availability,
		locker:       conf.Locker,
		idGenerator:  conf.IDGenerator,
		publisher:    conf.Publisher,
		observer:     conf.Observer,
		now:          conf.Now,
	}

	if m.l == nil {
		m.l = logger.Nop()
	}

	if m.observer == nil {
		m.observer = nopObserver{}
	}

	if m.now == nil {
		m.now = time.Now
	}

	return m
}

func propertyLockKey(propertyID string) string {
	return "property:" + propertyID
}

func estimateLockKey(customerID, propertyID string) string {
	return "estimate:" + customerID + ":" + propertyID
}

// lockProperty serializes booking writes on one property. The returned release may be called
// more than once, so callers can drop the lock early and still defer it.
func (m *Manager) lockProperty(ctx context.Context, propertyID string) (func(), error) {
	release, err := m.locker.Acquire(ctx, propertyLockKey(propertyID))
	if err != nil {
		return nil, fmt.Errorf("acquire property lock: %w", err)
	}

	var once sync.Once

	return func() { once.Do(release) }, nil
}

func bounds(d catalog.Descriptor) availability.Bounds {
	return availability.Bounds{MinNights: d.MinNights, MaxNights: d.MaxNights}
}

// startOperation opens a span and returns a finisher that records the outcome.
func (m *Manager) startOperation(ctx context.Context, op string) (context.Context, trace.Span, func(errp *error)) {
	ctx, span := tracer.Start(ctx, "booking."+op)
	start := m.now()

	return ctx, span, func(errp *error) {
		result := "ok"

		if errp != nil && *errp != nil {
			result = errorKind(*errp)

			span.RecordError(*errp)
			span.SetStatus(codes.Error, result)
		}

		m.observer.ObserveOperation(op, result, m.now().Sub(start))
		span.End()
	}
}

func (m *Manager) ListVisiblePackages(ctx context.Context, propertyID string, tier entitlement.Tier) (_ []catalog.Descriptor, err error) {
	ctx, span, finish := m.startOperation(ctx, "ListVisiblePackages")
	defer finish(&err)

	span.SetAttributes(attribute.String("property.id", propertyID), attribute.String("entitlement.tier", string(tier)))

	snapshot, err := m.catalog.Snapshot(ctx, propertyID, false)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}

	return entitlement.Visible(snapshot.Descriptors, tier), nil
}

func (m *Manager) ListPackagesForCustomer(ctx context.Context, propertyID, customerID string) ([]catalog.Descriptor, error) {
	tier, err := m.tiers.Tier(ctx, customerID)
	if err != nil {
		return nil, fmt.Errorf("get entitlement tier: %w", err)
	}

	return m.ListVisiblePackages(ctx, propertyID, tier)
}

func (m *Manager) ListVisibleAddons(ctx context.Context, propertyID string) (_ []catalog.Descriptor, err error) {
	ctx, span, finish := m.startOperation(ctx, "ListVisibleAddons")
	defer finish(&err)

	span.SetAttributes(attribute.String("property.id", propertyID))

	snapshot, err := m.catalog.Snapshot(ctx, propertyID, false)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}

	return entitlement.Addons(snapshot.Descriptors), nil
}

func (m *Manager) ResolvePackage(ctx context.Context, propertyID, ref string) (_ *catalog.Descriptor, err error) {
	ctx, span, finish := m.startOperation(ctx, "ResolvePackage")
	defer finish(&err)

	span.SetAttributes(attribute.String("property.id", propertyID), attribute.String("package.ref", ref))

	snapshot, err := m.catalog.Snapshot(ctx, propertyID, true)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}

	d, err := snapshot.Resolve(ref)
	if err != nil {
		return nil, err
	}

	return &d, nil
}

func (in *AvailabilityInput) validate() error {
	inputErr := newInputError()

	if strings.TrimSpace(in.PropertyID) == "" {
		inputErr.addError("property_id", "provide property_id")
	}

	if in.From.IsZero() {
		inputErr.addError("from", "provide from")
	}

	if in.To.IsZero() {
		inputErr.addError("to", "provide to")
	}

	return inputErr.orNil()
}

func (m *Manager) CheckAvailability(ctx context.Context, input *AvailabilityInput) (_ *availability.Result, err error) {
	ctx, span, finish := m.startOperation(ctx, "CheckAvailability")
	defer finish(&err)

	if err := input.validate(); err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.String("property.id", input.PropertyID))

	r := availability.NewDateRange(input.From, input.To)

	var b availability.Bounds

	if strings.TrimSpace(input.PackageRef) != "" {
		snapshot, err := m.catalog.Snapshot(ctx, input.PropertyID, false)
		if err != nil {
			return nil, fmt.Errorf("load catalog: %w", err)
		}

		d, err := snapshot.Resolve(input.PackageRef)
		if err != nil {
			return nil, err
		}

		b = bounds(d)
	}

	res, err := m.availability.Check(ctx, input.PropertyID, r, b, input.ExcludeBookingID)
	if err != nil {
		return nil, fmt.Errorf("check availability: %w", err)
	}

	return res, nil
}
