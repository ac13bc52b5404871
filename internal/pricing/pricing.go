package pricing

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/avstrong/rentals/internal/catalog"
)

const (
	day = 24 * time.Hour

	// CurrencyPlaces is the rounding precision of every computed total.
	CurrencyPlaces = 2
)

type Quote struct {
	Nights   int             `json:"nights"`
	Total    decimal.Decimal `json:"total"`
	Explicit bool            `json:"explicit"`
}

// Nights is the number of started days between from and to, at least one.
func Nights(from, to time.Time) (int, error) {
	if from.IsZero() || to.IsZero() || !to.After(from) {
		return 0, fmt.Errorf("range %s..%s: %w", from.Format(time.DateOnly), to.Format(time.DateOnly), ErrDateRangeInvalid)
	}

	diff := to.Sub(from)

	nights := int(diff / day)
	if diff%day != 0 {
		nights++
	}

	return max(1, nights), nil
}

func duration(d catalog.Descriptor, from, to time.Time) (int, error) {
	if !d.FixedDuration {
		return Nights(from, to)
	}

	fixed := max(1, d.MinNights)

	if from.IsZero() && to.IsZero() {
		return fixed, nil
	}

	span, err := Nights(from, to)
	if err != nil {
		return 0, err
	}

	if span != fixed {
		return 0, fmt.Errorf("package %s lasts exactly %d night(s), got %d: %w", d.ID, fixed, span, ErrDateRangeInvalid)
	}

	return fixed, nil
}

// Calculate prices a package for a date range as baseRate × nights × multiplier.
// Fixed-duration packages use their own length and only validate the dates when given.
// An explicit total is returned verbatim so manually adjusted quotes survive.
func Calculate(d catalog.Descriptor, from, to time.Time, explicit *decimal.Decimal) (Quote, error) {
	nights, err := duration(d, from, to)
	if err != nil {
		return Quote{}, err
	}

	if explicit != nil {
		return Quote{Nights: nights, Total: *explicit, Explicit: true}, nil
	}

	multiplier := d.Multiplier
	if multiplier <= 0 {
		multiplier = 1
	}

	total := d.BaseRate.
		Mul(decimal.NewFromInt(int64(nights))).
		Mul(decimal.NewFromFloat(multiplier)).
		Round(CurrencyPlaces)

	return Quote{Nights: nights, Total: total}, nil
}
