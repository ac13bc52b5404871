package catalog

import "strings"

const defaultMultiplier = 1.0

var nightsPerPeriod = map[Period]int{
	PeriodDay:   1,
	PeriodWeek:  7,
	PeriodMonth: 30,
	PeriodYear:  365,
}

// PeriodNights converts a billing period into nights. An hour always counts as one night.
func PeriodNights(period Period, count int) (nights int, hourly bool) {
	if count < 1 {
		count = 1
	}

	if period == PeriodHour {
		return 1, true
	}

	perUnit, ok := nightsPerPeriod[period]
	if !ok {
		perUnit = 1
	}

	return perUnit * count, false
}

func fromLocal(p LocalPackage) Descriptor {
	category := p.Category
	if !category.Valid() {
		category = CategoryStandard
	}

	multiplier := p.Multiplier
	if multiplier <= 0 {
		multiplier = defaultMultiplier
	}

	d := Descriptor{
		ID:                p.ID,
		OriginalName:      p.Name,
		DisplayName:       p.Name,
		Category:          category,
		Multiplier:        multiplier,
		BaseRate:          p.BaseRate,
		MinNights:         p.MinNights,
		MaxNights:         p.MaxNights,
		Features:          append([]string(nil), p.Features...),
		Enabled:           p.Enabled,
		ExternalProductID: strings.TrimSpace(p.ExternalProductID),
		Origin:            OriginLocal,
	}

	if category == CategoryAddon {
		d.FixedDuration = true

		if d.MinNights < 1 {
			d.MinNights = 1
		}

		d.MaxNights = d.MinNights
	}

	return d
}

func fromExternal(p ExternalProduct) Descriptor {
	category := p.Category
	if !category.Valid() {
		category = CategoryStandard
	}

	nights, hourly := PeriodNights(p.Period, p.PeriodCount)

	return Descriptor{
		ID:                p.ID,
		OriginalName:      p.Title,
		DisplayName:       p.Title,
		Category:          category,
		Multiplier:        defaultMultiplier,
		BaseRate:          p.Price,
		MinNights:         nights,
		MaxNights:         nights,
		Features:          append([]string(nil), p.Features...),
		Enabled:           p.Enabled,
		ExternalProductID: p.ID,
		Origin:            OriginExternal,
		FixedDuration:     hourly || category == CategoryAddon,
		Hourly:            hourly,
	}
}

// Aggregate normalizes local packages and external products into one descriptor list.
// An external product already linked by a local package is dropped; the local definition wins.
func Aggregate(local []LocalPackage, external []ExternalProduct) []Descriptor {
	out := make([]Descriptor, 0, len(local)+len(external))
	linked := make(map[string]struct{}, len(local))

	for _, p := range local {
		d := fromLocal(p)
		if d.ExternalProductID != "" {
			linked[d.ExternalProductID] = struct{}{}
		}

		out = append(out, d)
	}

	for _, p := range external {
		if _, ok := linked[p.ID]; ok {
			continue
		}

		out = append(out, fromExternal(p))
	}

	return out
}
