package catalog

import (
	"fmt"

	"github.com/shopspring/decimal"
)

type Origin string

const (
	OriginLocal    Origin = "local"
	OriginExternal Origin = "external"
)

type Category string

const (
	CategoryStandard Category = "standard"
	CategoryHosted   Category = "hosted"
	CategoryAddon    Category = "addon"
	CategorySpecial  Category = "special"
)

func (c Category) Valid() bool {
	switch c {
	case CategoryStandard, CategoryHosted, CategoryAddon, CategorySpecial:
		return true
	default:
		return false
	}
}

type Period string

const (
	PeriodHour  Period = "hour"
	PeriodDay   Period = "day"
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
	PeriodYear  Period = "year"
)

// Descriptor is the unified view of a sellable package regardless of where it is defined.
type Descriptor struct {
	ID                string          `json:"id"`
	OriginalName      string          `json:"original_name"`
	DisplayName       string          `json:"display_name"`
	Category          Category        `json:"category"`
	Multiplier        float64         `json:"multiplier"`
	BaseRate          decimal.Decimal `json:"base_rate"`
	MinNights         int             `json:"min_nights"`
	MaxNights         int             `json:"max_nights"`
	Features          []string        `json:"features"`
	Enabled           bool            `json:"enabled"`
	ExternalProductID string          `json:"external_product_id,omitempty"`
	Origin            Origin          `json:"origin"`
	// FixedDuration packages are priced on MinNights, not on the requested dates.
	FixedDuration bool `json:"fixed_duration"`
	Hourly        bool `json:"hourly"`
}

func (d Descriptor) DurationLabel() string {
	switch {
	case d.Hourly:
		return "hourly"
	case d.FixedDuration || (d.MinNights == d.MaxNights && d.MinNights > 0):
		return nightsLabel(d.MinNights)
	case d.MinNights > 0 && d.MaxNights > 0:
		return fmt.Sprintf("%d-%d nights", d.MinNights, d.MaxNights)
	case d.MinNights > 0:
		return fmt.Sprintf("%d+ nights", d.MinNights)
	default:
		return "nightly"
	}
}

func nightsLabel(n int) string {
	if n == 1 {
		return "1 night"
	}

	return fmt.Sprintf("%d nights", n)
}

// LocalPackage is a package defined by the property owner.
type LocalPackage struct {
	ID                string          `json:"id" yaml:"id"`
	PropertyID        string          `json:"property_id" yaml:"property_id"`
	Name              string          `json:"name" yaml:"name"`
	Category          Category        `json:"category" yaml:"category"`
	Multiplier        float64         `json:"multiplier" yaml:"multiplier"`
	BaseRate          decimal.Decimal `json:"base_rate" yaml:"-"`
	MinNights         int             `json:"min_nights" yaml:"min_nights"`
	MaxNights         int             `json:"max_nights" yaml:"max_nights"`
	Features          []string        `json:"features" yaml:"features"`
	Enabled           bool            `json:"enabled" yaml:"enabled"`
	ExternalProductID string          `json:"external_product_id,omitempty" yaml:"external_product_id"`
}

// ExternalProduct is an entry of the payment provider's product catalog.
type ExternalProduct struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Period      Period          `json:"period"`
	PeriodCount int             `json:"period_count"`
	Category    Category        `json:"category"`
	Enabled     bool            `json:"enabled"`
	Features    []string        `json:"features"`
}

// OverrideSetting customizes one package for one property.
// A nil Enabled means "use the origin default".
type OverrideSetting struct {
	PackageRef string `json:"package_ref" yaml:"package_ref"`
	CustomName string `json:"custom_name,omitempty" yaml:"custom_name"`
	Enabled    *bool  `json:"enabled,omitempty" yaml:"enabled"`
}

type Property struct {
	ID        string            `json:"id" yaml:"id"`
	Name      string            `json:"name" yaml:"name"`
	Overrides []OverrideSetting `json:"overrides" yaml:"overrides"`
}
