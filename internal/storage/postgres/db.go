// Package postgres is a JSONB document store on PostgreSQL with the same contract as the
// in-memory store.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/avstrong/rentals/internal/availability"
	"github.com/avstrong/rentals/internal/booking"
	"github.com/avstrong/rentals/internal/catalog"
	"github.com/avstrong/rentals/internal/entitlement"
	"github.com/avstrong/rentals/internal/logger"
)

type Config struct {
	L   *logger.Logger
	URL string
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type DB struct {
	l    *logger.Logger
	pool *pgxpool.Pool
}

func New(ctx context.Context, conf Config) (*DB, error) {
	pool, err := pgxpool.New(ctx, conf.URL)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()

		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	l := conf.L
	if l == nil {
		l = logger.Nop()
	}

	return &DB{l: l, pool: pool}, nil
}

func (db *DB) Pool() *pgxpool.Pool {
	return db.pool
}

func (db *DB) Close() {
	db.pool.Close()
}

// isoLevel maps "READ COMMITTED" style names onto pgx levels. Unknown names use the
// server default.
func isoLevel(level string) pgx.TxIsoLevel {
	switch l := pgx.TxIsoLevel(strings.ToLower(strings.TrimSpace(level))); l {
	case pgx.Serializable, pgx.RepeatableRead, pgx.ReadCommitted, pgx.ReadUncommitted:
		return l
	default:
		return ""
	}
}

func (db *DB) BeginTransaction(ctx context.Context, level string) (context.Context, error) {
	//nolint:exhaustruct
	tx, err := db.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: isoLevel(level)})
	if err != nil {
		return ctx, fmt.Errorf("begin postgres transaction: %w", err)
	}

	return withTx(ctx, tx), nil
}

func (db *DB) CommitTransaction(ctx context.Context) error {
	tx, ok := txFromContext(ctx)
	if !ok {
		return ErrTransactionNotFoundInCtx
	}

	if err := tx.Commit(ctx); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("commit: %w: %w", booking.ErrConcurrentUpdate, err)
		}

		return fmt.Errorf("commit: %w", err)
	}

	return nil
}

func (db *DB) RollbackTransaction(ctx context.Context) error {
	tx, ok := txFromContext(ctx)
	if !ok {
		return ErrTransactionNotFoundInCtx
	}

	// The request context may already be cancelled; the rollback still has to reach the server.
	if err := tx.Rollback(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("rollback: %w", err)
	}

	return nil
}

func (db *DB) reader(ctx context.Context) querier {
	if tx, ok := txFromContext(ctx); ok {
		return tx
	}

	return db.pool
}

func writer(ctx context.Context) (querier, error) {
	tx, ok := txFromContext(ctx)
	if !ok {
		return nil, ErrTransactionNotFoundInCtx
	}

	return tx, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError

	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func marshal(v any) (string, error) {
	doc, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal document: %w", err)
	}

	return string(doc), nil
}

// collect decodes every row's single JSONB column into T.
func collect[T any](rows pgx.Rows) ([]T, error) {
	defer rows.Close()

	var out []T

	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}

		var v T
		if err := json.Unmarshal(doc, &v); err != nil {
			return nil, fmt.Errorf("unmarshal document: %w", err)
		}

		out = append(out, v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return out, nil
}

func getOne[T any](ctx context.Context, q querier, notFound error, sql string, args ...any) (*T, error) {
	var doc []byte

	if err := q.QueryRow(ctx, sql, args...).Scan(&doc); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound
		}

		return nil, fmt.Errorf("query document: %w", err)
	}

	var v T
	if err := json.Unmarshal(doc, &v); err != nil {
		return nil, fmt.Errorf("unmarshal document: %w", err)
	}

	return &v, nil
}

func (db *DB) SaveProperty(ctx context.Context, property *catalog.Property) error {
	q, err := writer(ctx)
	if err != nil {
		return err
	}

	doc, err := marshal(property)
	if err != nil {
		return err
	}

	_, err = q.Exec(ctx, `INSERT INTO properties (id, doc) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET doc = EXCLUDED.doc`, property.ID, doc)
	if err != nil {
		return fmt.Errorf("upsert property %s: %w", property.ID, err)
	}

	return nil
}

func (db *DB) SaveLocalPackage(ctx context.Context, p *catalog.LocalPackage) error {
	q, err := writer(ctx)
	if err != nil {
		return err
	}

	doc, err := marshal(p)
	if err != nil {
		return err
	}

	_, err = q.Exec(ctx, `INSERT INTO local_packages (id, property_id, doc) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET property_id = EXCLUDED.property_id, doc = EXCLUDED.doc`,
		p.ID, p.PropertyID, doc)
	if err != nil {
		return fmt.Errorf("upsert local package %s: %w", p.ID, err)
	}

	return nil
}

func (db *DB) SaveSubscriptionTransaction(ctx context.Context, tx *entitlement.Transaction) error {
	q, err := writer(ctx)
	if err != nil {
		return err
	}

	doc, err := marshal(tx)
	if err != nil {
		return err
	}

	_, err = q.Exec(ctx, `INSERT INTO subscription_transactions (id, customer_id, doc) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET customer_id = EXCLUDED.customer_id, doc = EXCLUDED.doc`,
		tx.ID, tx.CustomerID, doc)
	if err != nil {
		return fmt.Errorf("upsert subscription transaction %s: %w", tx.ID, err)
	}

	return nil
}

// SaveEstimate writes version 1 as a new row and any later version only over its predecessor.
func (db *DB) SaveEstimate(ctx context.Context, estimate *booking.Estimate) error {
	q, err := writer(ctx)
	if err != nil {
		return err
	}

	doc, err := marshal(estimate)
	if err != nil {
		return err
	}

	var tag pgconn.CommandTag

	if estimate.Version == 1 {
		tag, err = q.Exec(ctx, `INSERT INTO estimates
			(id, customer_id, property_id, payment_status, version, updated_at, doc)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (id) DO NOTHING`,
			estimate.ID, estimate.CustomerID, estimate.PropertyID, string(estimate.PaymentStatus),
			estimate.Version, estimate.UpdatedAt, doc)
	} else {
		tag, err = q.Exec(ctx, `UPDATE estimates
			SET payment_status = $2, version = $3, updated_at = $4, doc = $5
			WHERE id = $1 AND version = $3 - 1`,
			estimate.ID, string(estimate.PaymentStatus), estimate.Version, estimate.UpdatedAt, doc)
	}

	if err != nil {
		return fmt.Errorf("save estimate %s: %w", estimate.ID, err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("estimate %s at version %d: %w", estimate.ID, estimate.Version, booking.ErrConcurrentUpdate)
	}

	return nil
}

func (db *DB) SaveBooking(ctx context.Context, b *booking.Booking) error {
	q, err := writer(ctx)
	if err != nil {
		return err
	}

	doc, err := marshal(b)
	if err != nil {
		return err
	}

	_, err = q.Exec(ctx, `INSERT INTO bookings (id, estimate_id, property_id, from_date, to_date, doc)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET from_date = EXCLUDED.from_date, to_date = EXCLUDED.to_date, doc = EXCLUDED.doc`,
		b.ID, b.EstimateID, b.PropertyID, b.From, b.To, doc)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("save booking %s: %w", b.ID, booking.ErrConcurrentUpdate)
		}

		return fmt.Errorf("save booking %s: %w", b.ID, err)
	}

	return nil
}

func (db *DB) SaveEvent(ctx context.Context, event *booking.Event) error {
	q, err := writer(ctx)
	if err != nil {
		return err
	}

	doc, err := marshal(event)
	if err != nil {
		return err
	}

	_, err = q.Exec(ctx, `INSERT INTO events (id, booking_id, doc) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO NOTHING`, event.ID, event.BookingID, doc)
	if err != nil {
		return fmt.Errorf("save event %s: %w", event.ID, err)
	}

	return nil
}

func (db *DB) GetProperty(ctx context.Context, propertyID string) (*catalog.Property, error) {
	return getOne[catalog.Property](ctx, db.reader(ctx),
		fmt.Errorf("property %s: %w", propertyID, catalog.ErrPropertyNotFound),
		`SELECT doc FROM properties WHERE id = $1`, propertyID)
}

func (db *DB) ListLocalPackages(ctx context.Context, propertyID string) ([]catalog.LocalPackage, error) {
	rows, err := db.reader(ctx).Query(ctx, `SELECT doc FROM local_packages WHERE property_id = $1 ORDER BY seq`, propertyID)
	if err != nil {
		return nil, fmt.Errorf("list local packages of %s: %w", propertyID, err)
	}

	packages, err := collect[catalog.LocalPackage](rows)
	if err != nil {
		return nil, fmt.Errorf("list local packages of %s: %w", propertyID, err)
	}

	return packages, nil
}

func (db *DB) ListSubscriptionTransactions(ctx context.Context, customerID string) ([]entitlement.Transaction, error) {
	rows, err := db.reader(ctx).Query(ctx, `SELECT doc FROM subscription_transactions WHERE customer_id = $1`, customerID)
	if err != nil {
		return nil, fmt.Errorf("list subscription transactions of %s: %w", customerID, err)
	}

	return collect[entitlement.Transaction](rows)
}

func (db *DB) GetEstimate(ctx context.Context, id string) (*booking.Estimate, error) {
	return getOne[booking.Estimate](ctx, db.reader(ctx),
		fmt.Errorf("estimate %s: %w", id, booking.ErrRecordNotFound),
		`SELECT doc FROM estimates WHERE id = $1`, id)
}

func (db *DB) FindUnpaidEstimates(ctx context.Context, customerID, propertyID string) ([]*booking.Estimate, error) {
	rows, err := db.reader(ctx).Query(ctx, `SELECT doc FROM estimates
		WHERE customer_id = $1 AND property_id = $2 AND payment_status = $3
		ORDER BY updated_at DESC, id`, customerID, propertyID, string(booking.PaymentUnpaid))
	if err != nil {
		return nil, fmt.Errorf("find unpaid estimates: %w", err)
	}

	estimates, err := collect[booking.Estimate](rows)
	if err != nil {
		return nil, fmt.Errorf("find unpaid estimates: %w", err)
	}

	out := make([]*booking.Estimate, len(estimates))
	for i := range estimates {
		out[i] = &estimates[i]
	}

	return out, nil
}

func (db *DB) GetBooking(ctx context.Context, id string) (*booking.Booking, error) {
	return getOne[booking.Booking](ctx, db.reader(ctx),
		fmt.Errorf("booking %s: %w", id, booking.ErrRecordNotFound),
		`SELECT doc FROM bookings WHERE id = $1`, id)
}

func (db *DB) GetBookingByEstimate(ctx context.Context, estimateID string) (*booking.Booking, error) {
	return getOne[booking.Booking](ctx, db.reader(ctx),
		fmt.Errorf("booking of estimate %s: %w", estimateID, booking.ErrRecordNotFound),
		`SELECT doc FROM bookings WHERE estimate_id = $1`, estimateID)
}

func (db *DB) ListIntervals(ctx context.Context, propertyID string) ([]availability.Interval, error) {
	rows, err := db.reader(ctx).Query(ctx, `SELECT doc FROM bookings WHERE property_id = $1 ORDER BY from_date, id`, propertyID)
	if err != nil {
		return nil, fmt.Errorf("list bookings of %s: %w", propertyID, err)
	}

	bookings, err := collect[booking.Booking](rows)
	if err != nil {
		return nil, fmt.Errorf("list bookings of %s: %w", propertyID, err)
	}

	out := make([]availability.Interval, 0, len(bookings))
	for i := range bookings {
		out = append(out, bookings[i].Interval())
	}

	return out, nil
}

func (db *DB) ListEvents(ctx context.Context, bookingID string) ([]booking.Event, error) {
	rows, err := db.reader(ctx).Query(ctx, `SELECT doc FROM events WHERE booking_id = $1 ORDER BY seq`, bookingID)
	if err != nil {
		return nil, fmt.Errorf("list events of %s: %w", bookingID, err)
	}

	return collect[booking.Event](rows)
}
