package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/avstrong/rentals/internal/booking"
	"github.com/avstrong/rentals/internal/catalog"
)

func day(s string) time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}

	return t
}

func save(t *testing.T, db *DB, fn func(ctx context.Context) error) error {
	t.Helper()

	ctx, err := db.BeginTransaction(context.Background(), "READ COMMITTED")
	if err != nil {
		t.Fatalf("begin: %v", err)
	}

	if err := fn(ctx); err != nil {
		if rbErr := db.RollbackTransaction(ctx); rbErr != nil {
			t.Fatalf("rollback: %v", rbErr)
		}

		return err
	}

	return db.CommitTransaction(ctx)
}

func TestWritesRequireTransaction(t *testing.T) {
	db := New(Config{})

	err := db.SaveEstimate(context.Background(), &booking.Estimate{ID: "e1", Version: 1})
	if !errors.Is(err, ErrTransactionIDNotFoundInCtx) {
		t.Fatalf("err = %v, want ErrTransactionIDNotFoundInCtx", err)
	}
}

func TestUncommittedWritesAreInvisible(t *testing.T) {
	db := New(Config{})
	ctx := context.Background()

	trxCtx, err := db.BeginTransaction(ctx, "")
	if err != nil {
		t.Fatalf("begin: %v", err)
	}

	if err := db.SaveEstimate(trxCtx, &booking.Estimate{ID: "e1", Version: 1}); err != nil {
		t.Fatalf("save: %v", err)
	}

	if _, err := db.GetEstimate(ctx, "e1"); !errors.Is(err, booking.ErrRecordNotFound) {
		t.Fatalf("read before commit err = %v, want ErrRecordNotFound", err)
	}

	if err := db.RollbackTransaction(trxCtx); err != nil {
		t.Fatalf("rollback: %v", err)
	}

	if _, err := db.GetEstimate(ctx, "e1"); !errors.Is(err, booking.ErrRecordNotFound) {
		t.Fatalf("read after rollback err = %v, want ErrRecordNotFound", err)
	}

	if err := db.CommitTransaction(trxCtx); !errors.Is(err, ErrTransactionNotFound) {
		t.Fatalf("commit after rollback err = %v, want ErrTransactionNotFound", err)
	}
}

func TestEstimateVersionCheck(t *testing.T) {
	db := New(Config{})

	e := &booking.Estimate{ID: "e1", PaymentStatus: booking.PaymentUnpaid, Version: 1}

	if err := save(t, db, func(ctx context.Context) error { return db.SaveEstimate(ctx, e) }); err != nil {
		t.Fatalf("first save: %v", err)
	}

	stale := &booking.Estimate{ID: "e1", PaymentStatus: booking.PaymentUnpaid, Version: 1}

	err := save(t, db, func(ctx context.Context) error { return db.SaveEstimate(ctx, stale) })
	if !errors.Is(err, booking.ErrConcurrentUpdate) {
		t.Fatalf("stale save err = %v, want ErrConcurrentUpdate", err)
	}

	next := &booking.Estimate{ID: "e1", PaymentStatus: booking.PaymentPaid, Version: 2}

	if err := save(t, db, func(ctx context.Context) error { return db.SaveEstimate(ctx, next) }); err != nil {
		t.Fatalf("next save: %v", err)
	}
}

func TestVersionCheckedAgainAtCommit(t *testing.T) {
	db := New(Config{})
	ctx := context.Background()

	first, _ := db.BeginTransaction(ctx, "")
	second, _ := db.BeginTransaction(ctx, "")

	if err := db.SaveEstimate(first, &booking.Estimate{ID: "e1", Version: 1}); err != nil {
		t.Fatalf("save in first: %v", err)
	}

	if err := db.SaveEstimate(second, &booking.Estimate{ID: "e1", Version: 1}); err != nil {
		t.Fatalf("save in second: %v", err)
	}

	if err := db.CommitTransaction(first); err != nil {
		t.Fatalf("commit first: %v", err)
	}

	if err := db.CommitTransaction(second); !errors.Is(err, booking.ErrConcurrentUpdate) {
		t.Fatalf("commit second err = %v, want ErrConcurrentUpdate", err)
	}
}

func TestFindUnpaidEstimatesMostRecentFirst(t *testing.T) {
	db := New(Config{})
	base := day("2024-05-20")

	estimates := []*booking.Estimate{
		{ID: "old", CustomerID: "c", PropertyID: "P", PaymentStatus: booking.PaymentUnpaid, Version: 1, UpdatedAt: base},
		{ID: "new", CustomerID: "c", PropertyID: "P", PaymentStatus: booking.PaymentUnpaid, Version: 1, UpdatedAt: base.Add(time.Hour)},
		{ID: "paid", CustomerID: "c", PropertyID: "P", PaymentStatus: booking.PaymentPaid, Version: 1, UpdatedAt: base.Add(2 * time.Hour)},
		{ID: "other", CustomerID: "x", PropertyID: "P", PaymentStatus: booking.PaymentUnpaid, Version: 1, UpdatedAt: base},
	}

	err := save(t, db, func(ctx context.Context) error {
		for _, e := range estimates {
			if err := db.SaveEstimate(ctx, e); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := db.FindUnpaidEstimates(context.Background(), "c", "P")
	if err != nil {
		t.Fatalf("find: %v", err)
	}

	if len(got) != 2 || got[0].ID != "new" || got[1].ID != "old" {
		t.Fatalf("unpaid = %+v, want [new old]", got)
	}
}

func TestRecordsAreCopied(t *testing.T) {
	db := New(Config{})

	b := &booking.Booking{
		ID:         "b1",
		EstimateID: "e1",
		PropertyID: "P",
		From:       day("2024-06-01"),
		To:         day("2024-06-04"),
		Guests:     []string{"Ann"},
		Total:      decimal.NewFromInt(300),
	}

	if err := save(t, db, func(ctx context.Context) error { return db.SaveBooking(ctx, b) }); err != nil {
		t.Fatalf("save: %v", err)
	}

	b.Guests[0] = "mutated"

	got, err := db.GetBookingByEstimate(context.Background(), "e1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	if got.Guests[0] != "Ann" {
		t.Fatalf("stored guest = %q, want Ann", got.Guests[0])
	}

	intervals, err := db.ListIntervals(context.Background(), "P")
	if err != nil {
		t.Fatalf("list intervals: %v", err)
	}

	if len(intervals) != 1 || intervals[0].BookingID != "b1" || intervals[0].Range.Nights() != 3 {
		t.Fatalf("intervals = %+v", intervals)
	}
}

func TestCatalogRecords(t *testing.T) {
	db := New(Config{})
	enabled := false

	err := save(t, db, func(ctx context.Context) error {
		if err := db.SaveProperty(ctx, &catalog.Property{
			ID:        "P",
			Overrides: []catalog.OverrideSetting{{PackageRef: "std", Enabled: &enabled}},
		}); err != nil {
			return err
		}

		if err := db.SaveLocalPackage(ctx, &catalog.LocalPackage{ID: "std", PropertyID: "P", Name: "Standard"}); err != nil {
			return err
		}

		return db.SaveLocalPackage(ctx, &catalog.LocalPackage{ID: "std", PropertyID: "P", Name: "Standard stay"})
	})
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	packages, err := db.ListLocalPackages(context.Background(), "P")
	if err != nil {
		t.Fatalf("list: %v", err)
	}

	if len(packages) != 1 || packages[0].Name != "Standard stay" {
		t.Fatalf("packages = %+v, want one replaced package", packages)
	}

	p, err := db.GetProperty(context.Background(), "P")
	if err != nil {
		t.Fatalf("get property: %v", err)
	}

	*p.Overrides[0].Enabled = true

	again, _ := db.GetProperty(context.Background(), "P")
	if *again.Overrides[0].Enabled {
		t.Fatal("override flag shared with caller")
	}

	if _, err := db.GetProperty(context.Background(), "missing"); !errors.Is(err, catalog.ErrPropertyNotFound) {
		t.Fatalf("missing property err = %v, want ErrPropertyNotFound", err)
	}
}
