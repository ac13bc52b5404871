package memory

import (
	"slices"

	"github.com/avstrong/rentals/internal/booking"
	"github.com/avstrong/rentals/internal/catalog"
)

// Records are copied on the way in and out so callers never share memory with the store.

func cloneDescriptor(d catalog.Descriptor) catalog.Descriptor {
	d.Features = slices.Clone(d.Features)

	return d
}

func cloneProperty(p *catalog.Property) *catalog.Property {
	c := *p
	c.Overrides = make([]catalog.OverrideSetting, len(p.Overrides))

	for i, o := range p.Overrides {
		if o.Enabled != nil {
			enabled := *o.Enabled
			o.Enabled = &enabled
		}

		c.Overrides[i] = o
	}

	return &c
}

func cloneLocalPackage(p *catalog.LocalPackage) *catalog.LocalPackage {
	c := *p
	c.Features = slices.Clone(p.Features)

	return &c
}

func cloneEstimate(e *booking.Estimate) *booking.Estimate {
	c := *e
	c.Package = cloneDescriptor(e.Package)
	c.Suggestions = slices.Clone(e.Suggestions)

	return &c
}

func cloneBooking(b *booking.Booking) *booking.Booking {
	c := *b
	c.Package = cloneDescriptor(b.Package)
	c.Guests = slices.Clone(b.Guests)
	c.Reschedules = slices.Clone(b.Reschedules)

	return &c
}
