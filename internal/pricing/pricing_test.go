package pricing

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/avstrong/rentals/internal/catalog"
)

func date(year, month, d int) time.Time {
	return time.Date(year, time.Month(month), d, 0, 0, 0, 0, time.UTC)
}

func TestNights(t *testing.T) {
	tests := []struct {
		name     string
		from, to time.Time
		want     int
	}{
		{name: "three nights", from: date(2024, 6, 1), to: date(2024, 6, 4), want: 3},
		{name: "partial day rounds up", from: date(2024, 6, 1), to: date(2024, 6, 2).Add(2 * time.Hour), want: 2},
		{name: "few hours is one night", from: date(2024, 6, 1), to: date(2024, 6, 1).Add(3 * time.Hour), want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Nights(tt.from, tt.to)
			if err != nil || got != tt.want {
				t.Fatalf("Nights = %d, %v; want %d", got, err, tt.want)
			}
		})
	}

	for _, r := range [][2]time.Time{
		{date(2024, 6, 4), date(2024, 6, 1)},
		{date(2024, 6, 1), date(2024, 6, 1)},
		{{}, date(2024, 6, 1)},
	} {
		if _, err := Nights(r[0], r[1]); !errors.Is(err, ErrDateRangeInvalid) {
			t.Errorf("Nights(%v, %v) err = %v, want ErrDateRangeInvalid", r[0], r[1], err)
		}
	}
}

func TestCalculateNightly(t *testing.T) {
	std := catalog.Descriptor{ID: "std", BaseRate: decimal.NewFromInt(100), Multiplier: 1, MinNights: 2, MaxNights: 5}

	q, err := Calculate(std, date(2024, 6, 1), date(2024, 6, 4), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if q.Nights != 3 || !q.Total.Equal(decimal.NewFromInt(300)) || q.Explicit {
		t.Fatalf("got %+v, want 3 nights for 300", q)
	}
}

func TestCalculateMatchesFormula(t *testing.T) {
	rates := []string{"0", "1", "99.99", "100", "123.45"}
	multipliers := []float64{0.5, 1, 1.25, 2}

	for _, r := range rates {
		for _, m := range multipliers {
			for nights := 1; nights <= 10; nights++ {
				d := catalog.Descriptor{ID: "p", BaseRate: decimal.RequireFromString(r), Multiplier: m}
				from := date(2024, 1, 1)

				q, err := Calculate(d, from, from.AddDate(0, 0, nights), nil)
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}

				want := d.BaseRate.Mul(decimal.NewFromInt(int64(nights))).Mul(decimal.NewFromFloat(m)).Round(CurrencyPlaces)
				if !q.Total.Equal(want) {
					t.Fatalf("rate %s × %d × %v = %s, want %s", r, nights, m, q.Total, want)
				}
			}
		}
	}
}

func TestCalculateRoundsToCurrencyPrecision(t *testing.T) {
	d := catalog.Descriptor{ID: "p", BaseRate: decimal.RequireFromString("33.333"), Multiplier: 1.1}

	q, err := Calculate(d, date(2024, 1, 1), date(2024, 1, 2), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if q.Total.String() != "36.67" {
		t.Fatalf("total = %s, want 36.67", q.Total)
	}
}

func TestCalculateExplicitTotalIsVerbatim(t *testing.T) {
	std := catalog.Descriptor{ID: "std", BaseRate: decimal.NewFromInt(100), Multiplier: 1}
	explicit := decimal.RequireFromString("249.5")

	q, err := Calculate(std, date(2024, 6, 1), date(2024, 6, 4), &explicit)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !q.Explicit || !q.Total.Equal(explicit) || q.Nights != 3 {
		t.Fatalf("got %+v, want explicit 249.5", q)
	}
}

func TestCalculateFixedDuration(t *testing.T) {
	cleaning := catalog.Descriptor{ID: "clean", BaseRate: decimal.NewFromInt(40), Multiplier: 1, MinNights: 1, MaxNights: 1, FixedDuration: true}
	sauna := catalog.Descriptor{ID: "sauna", BaseRate: decimal.NewFromInt(20), Multiplier: 1.5, MinNights: 1, MaxNights: 1, FixedDuration: true, Hourly: true}
	twoNight := catalog.Descriptor{ID: "weekend", BaseRate: decimal.NewFromInt(50), Multiplier: 1, MinNights: 2, MaxNights: 2, FixedDuration: true}

	q, err := Calculate(cleaning, time.Time{}, time.Time{}, nil)
	if err != nil || !q.Total.Equal(decimal.NewFromInt(40)) || q.Nights != 1 {
		t.Fatalf("cleaning without dates: %+v, %v", q, err)
	}

	q, err = Calculate(sauna, date(2024, 6, 1).Add(10*time.Hour), date(2024, 6, 1).Add(11*time.Hour), nil)
	if err != nil || !q.Total.Equal(decimal.NewFromInt(30)) {
		t.Fatalf("sauna hour: %+v, %v", q, err)
	}

	q, err = Calculate(twoNight, date(2024, 6, 1), date(2024, 6, 3), nil)
	if err != nil || !q.Total.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("weekend: %+v, %v", q, err)
	}

	if _, err := Calculate(twoNight, date(2024, 6, 1), date(2024, 6, 5), nil); !errors.Is(err, ErrDateRangeInvalid) {
		t.Fatalf("weekend over four nights: err = %v, want ErrDateRangeInvalid", err)
	}
}

func TestCalculateRejectsInvertedRange(t *testing.T) {
	std := catalog.Descriptor{ID: "std", BaseRate: decimal.NewFromInt(100), Multiplier: 1}

	if _, err := Calculate(std, date(2024, 6, 4), date(2024, 6, 1), nil); !errors.Is(err, ErrDateRangeInvalid) {
		t.Fatalf("err = %v, want ErrDateRangeInvalid", err)
	}
}
