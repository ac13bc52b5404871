package catalog

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func boolPtr(b bool) *bool {
	return &b
}

func TestPeriodNights(t *testing.T) {
	tests := []struct {
		period     Period
		count      int
		wantNights int
		wantHourly bool
	}{
		{PeriodHour, 3, 1, true},
		{PeriodDay, 2, 2, false},
		{PeriodWeek, 1, 7, false},
		{PeriodWeek, 2, 14, false},
		{PeriodMonth, 1, 30, false},
		{PeriodYear, 1, 365, false},
		{PeriodDay, 0, 1, false},
	}

	for _, tt := range tests {
		nights, hourly := PeriodNights(tt.period, tt.count)
		if nights != tt.wantNights || hourly != tt.wantHourly {
			t.Errorf("PeriodNights(%s, %d) = %d, %v; want %d, %v",
				tt.period, tt.count, nights, hourly, tt.wantNights, tt.wantHourly)
		}
	}
}

func TestAggregateNormalizesBothOrigins(t *testing.T) {
	local := []LocalPackage{
		{ID: "std", Name: "Standard", Category: CategoryStandard, BaseRate: decimal.NewFromInt(100), MinNights: 2, MaxNights: 5, Enabled: true},
		{ID: "clean", Name: "Cleaning", Category: CategoryAddon, BaseRate: decimal.NewFromInt(40), Enabled: true},
	}
	external := []ExternalProduct{
		{ID: "ext_weekly", Title: "Weekly", Price: decimal.NewFromInt(500), Period: PeriodWeek, PeriodCount: 1, Category: CategoryHosted, Enabled: true},
		{ID: "ext_hour", Title: "Sauna hour", Price: decimal.NewFromInt(20), Period: PeriodHour, PeriodCount: 1, Category: "", Enabled: true},
	}

	got := Aggregate(local, external)
	if len(got) != 4 {
		t.Fatalf("expected 4 descriptors, got %d", len(got))
	}

	std := got[0]
	if std.Origin != OriginLocal || std.Multiplier != 1 || std.FixedDuration {
		t.Errorf("unexpected local descriptor: %+v", std)
	}

	clean := got[1]
	if !clean.FixedDuration || clean.MinNights != 1 || clean.MaxNights != 1 {
		t.Errorf("addon should be fixed to one night: %+v", clean)
	}

	weekly := got[2]
	if weekly.Origin != OriginExternal || weekly.MinNights != 7 || weekly.MaxNights != 7 || weekly.ExternalProductID != "ext_weekly" {
		t.Errorf("unexpected weekly descriptor: %+v", weekly)
	}

	hour := got[3]
	if !hour.Hourly || !hour.FixedDuration || hour.DurationLabel() != "hourly" {
		t.Errorf("hourly product not tagged: %+v", hour)
	}

	if hour.Category != CategoryStandard {
		t.Errorf("unknown category should default to standard, got %q", hour.Category)
	}
}

func TestAggregateDropsExternalLinkedByLocal(t *testing.T) {
	local := []LocalPackage{{ID: "p1", Name: "Linked", ExternalProductID: "prod_1", Enabled: true}}
	external := []ExternalProduct{
		{ID: "prod_1", Title: "Provider copy", Enabled: true},
		{ID: "prod_2", Title: "Other", Enabled: true},
	}

	got := Aggregate(local, external)
	if len(got) != 2 {
		t.Fatalf("expected 2 descriptors, got %d", len(got))
	}

	if got[0].ID != "p1" || got[1].ID != "prod_2" {
		t.Fatalf("unexpected ids %q, %q", got[0].ID, got[1].ID)
	}
}

func TestApplyOverrides(t *testing.T) {
	descriptors := []Descriptor{
		{ID: "local_on", OriginalName: "A", DisplayName: "A", Origin: OriginLocal, Enabled: true},
		{ID: "local_off", OriginalName: "B", DisplayName: "B", Origin: OriginLocal, Enabled: true},
		{ID: "ext_default", OriginalName: "C", DisplayName: "C", Origin: OriginExternal, ExternalProductID: "ext_default", Enabled: true},
		{ID: "ext_opt_in", OriginalName: "D", DisplayName: "D", Origin: OriginExternal, ExternalProductID: "ext_opt_in", Enabled: true},
		{ID: "ext_source_off", OriginalName: "E", DisplayName: "E", Origin: OriginExternal, ExternalProductID: "ext_source_off", Enabled: false},
		{ID: "linked", OriginalName: "F", DisplayName: "F", Origin: OriginLocal, ExternalProductID: "prod_f", Enabled: true},
	}

	overrides := []OverrideSetting{
		{PackageRef: "local_off", Enabled: boolPtr(false)},
		{PackageRef: "ext_opt_in", CustomName: "  Weekly special ", Enabled: boolPtr(true)},
		{PackageRef: "ext_source_off", Enabled: boolPtr(true)},
		{PackageRef: "prod_f", CustomName: "By external id"},
		{PackageRef: "linked", CustomName: "By id"},
	}

	got := ApplyOverrides(descriptors, overrides)

	want := map[string]struct {
		enabled bool
		name    string
	}{
		"local_on":       {true, "A"},
		"local_off":      {false, "B"},
		"ext_default":    {false, "C"},
		"ext_opt_in":     {true, "Weekly special"},
		"ext_source_off": {false, "E"},
		"linked":         {true, "By id"},
	}

	for _, d := range got {
		w := want[d.ID]
		if d.Enabled != w.enabled || d.DisplayName != w.name {
			t.Errorf("%s: enabled=%v name=%q, want enabled=%v name=%q", d.ID, d.Enabled, d.DisplayName, w.enabled, w.name)
		}
	}

	if !descriptors[1].Enabled {
		t.Error("ApplyOverrides must not mutate its input")
	}
}

func TestResolvePriority(t *testing.T) {
	descriptors := []Descriptor{
		{ID: "legacy", OriginalName: "std", Enabled: true},
		{ID: "Std", OriginalName: "Mixed case", Enabled: true},
		{ID: "local_1", ExternalProductID: "std", OriginalName: "Linked", Enabled: true},
		{ID: "std", OriginalName: "Standard", Enabled: true},
		{ID: "off", OriginalName: "Disabled", Enabled: false},
	}

	tests := []struct {
		ref    string
		wantID string
	}{
		{"std", "std"},
		{"Std", "Std"},
		{"LOCAL_1", "local_1"},
		{"Standard", "std"},
		{"  std  ", "std"},
	}

	for _, tt := range tests {
		d, err := Resolve(descriptors, tt.ref)
		if err != nil {
			t.Fatalf("Resolve(%q): unexpected error: %v", tt.ref, err)
		}

		if d.ID != tt.wantID {
			t.Errorf("Resolve(%q) = %q, want %q", tt.ref, d.ID, tt.wantID)
		}
	}

	if _, err := Resolve(descriptors, "off"); !errors.Is(err, ErrPackageNotFound) {
		t.Errorf("disabled package resolved, err = %v", err)
	}

	if _, err := Resolve(descriptors, ""); !errors.Is(err, ErrPackageNotFound) {
		t.Errorf("empty ref resolved, err = %v", err)
	}
}

func TestResolveIsCaseInsensitiveForUniqueIDs(t *testing.T) {
	descriptors := []Descriptor{
		{ID: "std", Enabled: true},
		{ID: "ext_weekly", ExternalProductID: "ext_weekly", Enabled: true},
		{ID: "loc_2", ExternalProductID: "prod_ABC", Enabled: true},
	}

	for _, d := range descriptors {
		for _, ref := range []string{d.ID, strings.ToUpper(d.ID), strings.ToLower(d.ID)} {
			got, err := Resolve(descriptors, ref)
			if err != nil || got.ID != d.ID {
				t.Errorf("Resolve(%q) = %q, %v; want %q", ref, got.ID, err, d.ID)
			}
		}
	}

	got, err := Resolve(descriptors, "PROD_abc")
	if err != nil || got.ID != "loc_2" {
		t.Errorf("external id casing: got %q, %v", got.ID, err)
	}
}

// Preserving the previous package on a miss is deliberate: historical estimates must not break
// when a package is later deleted or disabled.
func TestResolveForUpdatePreservesPreviousOnMiss(t *testing.T) {
	previous := Descriptor{ID: "gone", DisplayName: "Retired package", BaseRate: decimal.NewFromInt(80)}
	descriptors := []Descriptor{{ID: "std", Enabled: true}}

	got, preserved := ResolveForUpdate(descriptors, "gone", previous)
	if !preserved || got.ID != "gone" || !got.BaseRate.Equal(previous.BaseRate) {
		t.Fatalf("got %+v preserved=%v, want previous package", got, preserved)
	}

	got, preserved = ResolveForUpdate(descriptors, "STD", previous)
	if preserved || got.ID != "std" {
		t.Fatalf("got %+v preserved=%v, want std", got, preserved)
	}
}

type fakeStorage struct {
	local    []LocalPackage
	property *Property
	err      error
}

func (f *fakeStorage) ListLocalPackages(_ context.Context, _ string) ([]LocalPackage, error) {
	return f.local, f.err
}

func (f *fakeStorage) GetProperty(_ context.Context, id string) (*Property, error) {
	if f.property == nil || f.property.ID != id {
		return nil, ErrPropertyNotFound
	}

	return f.property, nil
}

type fakeProducts struct {
	calls    atomic.Int32
	products []ExternalProduct
	err      error
}

func (f *fakeProducts) ListProducts(_ context.Context) ([]ExternalProduct, error) {
	f.calls.Add(1)

	return f.products, f.err
}

func scenarioStorage() *fakeStorage {
	return &fakeStorage{
		local: []LocalPackage{
			{ID: "std", PropertyID: "P", Name: "Standard", Category: CategoryStandard, Multiplier: 1, BaseRate: decimal.NewFromInt(100), MinNights: 2, MaxNights: 5, Enabled: true},
		},
		property: &Property{
			ID:        "P",
			Overrides: []OverrideSetting{{PackageRef: "ext_weekly", Enabled: boolPtr(true)}},
		},
	}
}

func TestManagerSnapshot(t *testing.T) {
	products := &fakeProducts{products: []ExternalProduct{
		{ID: "ext_weekly", Title: "Weekly", Price: decimal.NewFromInt(500), Period: PeriodWeek, PeriodCount: 1, Category: CategoryHosted, Enabled: true},
		{ID: "ext_other", Title: "Other", Price: decimal.NewFromInt(10), Period: PeriodDay, PeriodCount: 1, Category: CategoryStandard, Enabled: true},
	}}

	m := New(Config{Storage: scenarioStorage(), Products: products})

	snapshot, err := m.Snapshot(context.Background(), "P", true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if snapshot.ExternalUnavailable {
		t.Fatal("external catalog reported unavailable")
	}

	if len(snapshot.Descriptors) != 3 {
		t.Fatalf("expected 3 descriptors, got %d", len(snapshot.Descriptors))
	}

	weekly, err := snapshot.Resolve("ext_weekly")
	if err != nil || !weekly.Enabled {
		t.Fatalf("ext_weekly should be enabled via override: %+v, %v", weekly, err)
	}

	if _, err := snapshot.Resolve("ext_other"); !errors.Is(err, ErrPackageNotFound) {
		t.Fatalf("external product without opt-in must not resolve, err = %v", err)
	}
}

func TestManagerSnapshotDegradesWithoutExternalCatalog(t *testing.T) {
	products := &fakeProducts{err: errors.New("provider down")}
	m := New(Config{Storage: scenarioStorage(), Products: products})

	snapshot, err := m.Snapshot(context.Background(), "P", true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !snapshot.ExternalUnavailable || len(snapshot.Descriptors) != 1 {
		t.Fatalf("expected local-only snapshot, got %+v", snapshot)
	}

	if _, err := snapshot.Resolve("std"); err != nil {
		t.Fatalf("local package must still resolve: %v", err)
	}

	if _, err := snapshot.Resolve("ext_weekly"); !errors.Is(err, ErrCatalogUnavailable) {
		t.Fatalf("err = %v, want ErrCatalogUnavailable", err)
	}
}

func TestManagerSnapshotFailsOnMissingProperty(t *testing.T) {
	m := New(Config{Storage: scenarioStorage()})

	if _, err := m.Snapshot(context.Background(), "unknown", false); !errors.Is(err, ErrPropertyNotFound) {
		t.Fatalf("err = %v, want ErrPropertyNotFound", err)
	}
}

func TestManagerCachesExternalCatalogForListings(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	products := &fakeProducts{products: []ExternalProduct{{ID: "ext_weekly", Enabled: true}}}

	m := New(Config{
		Storage:  scenarioStorage(),
		Products: products,
		CacheTTL: 5 * time.Second,
		Now:      func() time.Time { return now },
	})

	ctx := context.Background()

	for range 3 {
		if _, err := m.Snapshot(ctx, "P", false); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if got := products.calls.Load(); got != 1 {
		t.Fatalf("expected one provider call for cached listings, got %d", got)
	}

	if _, err := m.Snapshot(ctx, "P", true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := products.calls.Load(); got != 2 {
		t.Fatalf("fresh snapshot must bypass cache, calls = %d", got)
	}

	now = now.Add(6 * time.Second)

	if _, err := m.Snapshot(ctx, "P", false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := products.calls.Load(); got != 3 {
		t.Fatalf("expired cache must refetch, calls = %d", got)
	}
}

type blockingProducts struct {
	calls    atomic.Int32
	started  chan struct{}
	release  chan struct{}
	products []ExternalProduct
}

func (b *blockingProducts) ListProducts(ctx context.Context) ([]ExternalProduct, error) {
	if b.calls.Add(1) == 1 {
		close(b.started)
	}

	select {
	case <-b.release:
		return b.products, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestSharedFetchSurvivesCancelledCaller(t *testing.T) {
	products := &blockingProducts{
		started:  make(chan struct{}),
		release:  make(chan struct{}),
		products: []ExternalProduct{{ID: "ext_weekly", Category: CategoryHosted, Period: PeriodWeek, PeriodCount: 1, Enabled: true}},
	}

	m := New(Config{Storage: scenarioStorage(), Products: products})

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	first := make(chan *Snapshot, 1)

	go func() {
		snapshot, _ := m.Snapshot(firstCtx, "P", true)
		first <- snapshot
	}()

	<-products.started

	second := make(chan *Snapshot, 1)

	go func() {
		snapshot, _ := m.Snapshot(context.Background(), "P", true)
		second <- snapshot
	}()

	// Let the second caller join the in-flight fetch.
	time.Sleep(50 * time.Millisecond)
	cancelFirst()

	select {
	case snapshot := <-first:
		if snapshot == nil || !snapshot.ExternalUnavailable {
			t.Fatalf("cancelled caller snapshot = %+v, want local-only", snapshot)
		}
	case <-time.After(time.Second):
		t.Fatal("cancelled caller still waiting for the shared fetch")
	}

	close(products.release)

	select {
	case snapshot := <-second:
		if snapshot == nil || snapshot.ExternalUnavailable {
			t.Fatalf("second caller snapshot = %+v, want external products", snapshot)
		}

		if _, err := snapshot.Resolve("ext_weekly"); err != nil {
			t.Fatalf("resolve ext_weekly: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("second caller did not get the shared fetch result")
	}

	if got := products.calls.Load(); got != 1 {
		t.Fatalf("provider calls = %d, want one shared fetch", got)
	}
}

func TestDurationLabel(t *testing.T) {
	tests := []struct {
		d    Descriptor
		want string
	}{
		{Descriptor{Hourly: true, MinNights: 1, MaxNights: 1}, "hourly"},
		{Descriptor{MinNights: 1, MaxNights: 1}, "1 night"},
		{Descriptor{MinNights: 7, MaxNights: 7}, "7 nights"},
		{Descriptor{MinNights: 2, MaxNights: 5}, "2-5 nights"},
		{Descriptor{MinNights: 2}, "2+ nights"},
		{Descriptor{}, "nightly"},
	}

	for _, tt := range tests {
		if got := tt.d.DurationLabel(); got != tt.want {
			t.Errorf("DurationLabel(%+v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}
