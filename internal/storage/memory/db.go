package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/avstrong/rentals/internal/availability"
	"github.com/avstrong/rentals/internal/booking"
	"github.com/avstrong/rentals/internal/catalog"
	"github.com/avstrong/rentals/internal/entitlement"
	"github.com/avstrong/rentals/internal/logger"
)

type Config struct {
	L *logger.Logger
}

// transaction stages writes until commit. Readers only ever see committed records.
type transaction struct {
	id                       string
	propertyModifications    map[string]*catalog.Property
	packageModifications     []*catalog.LocalPackage
	subscriptionModification []entitlement.Transaction
	estimateModifications    map[string]*booking.Estimate
	bookingModifications     map[string]*booking.Booking
	eventModifications       map[string]*booking.Event
}

type DB struct {
	mu            sync.Mutex
	l             *logger.Logger
	properties    map[string]*catalog.Property
	localPackages map[string][]*catalog.LocalPackage
	subscriptions map[string][]entitlement.Transaction
	estimates     map[string]*booking.Estimate
	bookings      map[string]*booking.Booking
	events        []*booking.Event
	transactions  map[string]*transaction
	nextTrxID     int64
}

func New(conf Config) *DB {
	l := conf.L
	if l == nil {
		l = logger.Nop()
	}

	//nolint:exhaustruct
	return &DB{
		l:             l,
		properties:    make(map[string]*catalog.Property),
		localPackages: make(map[string][]*catalog.LocalPackage),
		subscriptions: make(map[string][]entitlement.Transaction),
		estimates:     make(map[string]*booking.Estimate),
		bookings:      make(map[string]*booking.Booking),
		transactions:  make(map[string]*transaction),
	}
}

func (db *DB) BeginTransaction(ctx context.Context, _ string) (context.Context, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	trxID := fmt.Sprintf("trx-%d", db.nextTrxID)
	db.nextTrxID++

	//nolint:exhaustruct
	db.transactions[trxID] = &transaction{
		id:                    trxID,
		propertyModifications: make(map[string]*catalog.Property),
		estimateModifications: make(map[string]*booking.Estimate),
		bookingModifications:  make(map[string]*booking.Booking),
		eventModifications:    make(map[string]*booking.Event),
	}

	return contextWithTrx(ctx, trxID), nil
}

// transactionFromContext must be called with db.mu held.
func (db *DB) transactionFromContext(ctx context.Context) (*transaction, error) {
	trxID, ok := trxFromContext(ctx)
	if !ok {
		return nil, ErrTransactionIDNotFoundInCtx
	}

	trx, exists := db.transactions[trxID]
	if !exists {
		return nil, fmt.Errorf("transaction %s not found: %w", trxID, ErrTransactionNotFound)
	}

	return trx, nil
}

// checkEstimateVersion must be called with db.mu held. A saved estimate must carry the
// committed version plus one.
func (db *DB) checkEstimateVersion(estimate *booking.Estimate) error {
	current := 0
	if stored, ok := db.estimates[estimate.ID]; ok {
		current = stored.Version
	}

	if estimate.Version != current+1 {
		return fmt.Errorf("estimate %s has version %d, stored %d: %w",
			estimate.ID, estimate.Version, current, booking.ErrConcurrentUpdate)
	}

	return nil
}

func (db *DB) CommitTransaction(ctx context.Context) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	trx, err := db.transactionFromContext(ctx)
	if err != nil {
		return err
	}

	delete(db.transactions, trx.id)

	for _, estimate := range trx.estimateModifications {
		if err := db.checkEstimateVersion(estimate); err != nil {
			return err
		}
	}

	for id, property := range trx.propertyModifications {
		db.properties[id] = property
	}

	for _, p := range trx.packageModifications {
		db.putLocalPackage(p)
	}

	for _, tx := range trx.subscriptionModification {
		db.subscriptions[tx.CustomerID] = append(db.subscriptions[tx.CustomerID], tx)
	}

	for id, estimate := range trx.estimateModifications {
		db.estimates[id] = estimate
	}

	for id, b := range trx.bookingModifications {
		db.bookings[id] = b
	}

	events := make([]*booking.Event, 0, len(trx.eventModifications))
	for _, event := range trx.eventModifications {
		events = append(events, event)
	}

	slices.SortFunc(events, func(a, b *booking.Event) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), cmp.Compare(a.ID, b.ID))
	})

	db.events = append(db.events, events...)

	return nil
}

func (db *DB) RollbackTransaction(ctx context.Context) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	trx, err := db.transactionFromContext(ctx)
	if err != nil {
		return err
	}

	delete(db.transactions, trx.id)

	return nil
}

func (db *DB) putLocalPackage(p *catalog.LocalPackage) {
	packages := db.localPackages[p.PropertyID]

	for i, existing := range packages {
		if existing.ID == p.ID {
			packages[i] = p

			return
		}
	}

	db.localPackages[p.PropertyID] = append(packages, p)
}

func (db *DB) SaveProperty(ctx context.Context, property *catalog.Property) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	trx, err := db.transactionFromContext(ctx)
	if err != nil {
		return err
	}

	trx.propertyModifications[property.ID] = cloneProperty(property)

	return nil
}

func (db *DB) SaveLocalPackage(ctx context.Context, p *catalog.LocalPackage) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	trx, err := db.transactionFromContext(ctx)
	if err != nil {
		return err
	}

	trx.packageModifications = append(trx.packageModifications, cloneLocalPackage(p))

	return nil
}

func (db *DB) SaveSubscriptionTransaction(ctx context.Context, tx *entitlement.Transaction) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	trx, err := db.transactionFromContext(ctx)
	if err != nil {
		return err
	}

	trx.subscriptionModification = append(trx.subscriptionModification, *tx)

	return nil
}

func (db *DB) SaveEstimate(ctx context.Context, estimate *booking.Estimate) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	trx, err := db.transactionFromContext(ctx)
	if err != nil {
		return err
	}

	if err := db.checkEstimateVersion(estimate); err != nil {
		return err
	}

	trx.estimateModifications[estimate.ID] = cloneEstimate(estimate)

	return nil
}

func (db *DB) SaveBooking(ctx context.Context, b *booking.Booking) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	trx, err := db.transactionFromContext(ctx)
	if err != nil {
		return err
	}

	trx.bookingModifications[b.ID] = cloneBooking(b)

	return nil
}

func (db *DB) SaveEvent(ctx context.Context, event *booking.Event) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	trx, err := db.transactionFromContext(ctx)
	if err != nil {
		return err
	}

	if _, ok := trx.eventModifications[event.ID]; ok {
		return nil
	}

	e := *event
	trx.eventModifications[event.ID] = &e

	return nil
}

func (db *DB) GetProperty(_ context.Context, propertyID string) (*catalog.Property, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	property, ok := db.properties[propertyID]
	if !ok {
		return nil, fmt.Errorf("property %s: %w", propertyID, catalog.ErrPropertyNotFound)
	}

	return cloneProperty(property), nil
}

func (db *DB) ListLocalPackages(_ context.Context, propertyID string) ([]catalog.LocalPackage, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	packages := db.localPackages[propertyID]
	result := make([]catalog.LocalPackage, 0, len(packages))

	for _, p := range packages {
		result = append(result, *cloneLocalPackage(p))
	}

	return result, nil
}

func (db *DB) ListSubscriptionTransactions(_ context.Context, customerID string) ([]entitlement.Transaction, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	return slices.Clone(db.subscriptions[customerID]), nil
}

func (db *DB) GetEstimate(_ context.Context, id string) (*booking.Estimate, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	estimate, ok := db.estimates[id]
	if !ok {
		return nil, fmt.Errorf("estimate %s: %w", id, booking.ErrRecordNotFound)
	}

	return cloneEstimate(estimate), nil
}

func (db *DB) FindUnpaidEstimates(_ context.Context, customerID, propertyID string) ([]*booking.Estimate, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	var result []*booking.Estimate

	for _, estimate := range db.estimates {
		if estimate.CustomerID == customerID &&
			estimate.PropertyID == propertyID &&
			estimate.PaymentStatus == booking.PaymentUnpaid {
			result = append(result, cloneEstimate(estimate))
		}
	}

	slices.SortFunc(result, func(a, b *booking.Estimate) int {
		return cmp.Or(b.UpdatedAt.Compare(a.UpdatedAt), cmp.Compare(a.ID, b.ID))
	})

	return result, nil
}

func (db *DB) GetBooking(_ context.Context, id string) (*booking.Booking, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	b, ok := db.bookings[id]
	if !ok {
		return nil, fmt.Errorf("booking %s: %w", id, booking.ErrRecordNotFound)
	}

	return cloneBooking(b), nil
}

func (db *DB) GetBookingByEstimate(_ context.Context, estimateID string) (*booking.Booking, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, b := range db.bookings {
		if b.EstimateID == estimateID {
			return cloneBooking(b), nil
		}
	}

	return nil, fmt.Errorf("booking of estimate %s: %w", estimateID, booking.ErrRecordNotFound)
}

// ListIntervals returns the committed stays of a property ordered by start date.
func (db *DB) ListIntervals(_ context.Context, propertyID string) ([]availability.Interval, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	var result []availability.Interval

	for _, b := range db.bookings {
		if b.PropertyID == propertyID {
			result = append(result, b.Interval())
		}
	}

	slices.SortFunc(result, func(a, b availability.Interval) int {
		return cmp.Or(a.Range.From.Compare(b.Range.From), cmp.Compare(a.BookingID, b.BookingID))
	})

	return result, nil
}

// ListEvents returns committed events of a booking in commit order.
func (db *DB) ListEvents(_ context.Context, bookingID string) ([]booking.Event, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	var result []booking.Event

	for _, event := range db.events {
		if event.BookingID == bookingID {
			result = append(result, *event)
		}
	}

	return result, nil
}
