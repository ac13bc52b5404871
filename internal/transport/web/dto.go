package web

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/avstrong/rentals/internal/availability"
	"github.com/avstrong/rentals/internal/booking"
	"github.com/avstrong/rentals/internal/catalog"
)

type quoteRequest struct {
	CustomerID string           `json:"customer_id" validate:"required,max=128"`
	PropertyID string           `json:"property_id" validate:"required,max=128"`
	From       string           `json:"from"        validate:"required,datetime=2006-01-02"`
	To         string           `json:"to"          validate:"omitempty,datetime=2006-01-02"`
	PackageRef string           `json:"package_ref" validate:"required,max=128"`
	Total      *decimal.Decimal `json:"total"`
}

func (req *quoteRequest) input() (*booking.QuoteInput, error) {
	from, err := parseDate(req.From)
	if err != nil {
		return nil, err
	}

	to, err := parseDate(req.To)
	if err != nil {
		return nil, err
	}

	return &booking.QuoteInput{
		CustomerID:    req.CustomerID,
		PropertyID:    req.PropertyID,
		From:          from,
		To:            to,
		PackageRef:    req.PackageRef,
		ExplicitTotal: req.Total,
	}, nil
}

type confirmRequest struct {
	Guests []string `json:"guests" validate:"max=32,dive,max=200"`
}

type rescheduleRequest struct {
	From string `json:"from" validate:"required,datetime=2006-01-02"`
	To   string `json:"to"   validate:"required,datetime=2006-01-02"`
}

// packageView adds the human readable duration to a descriptor.
type packageView struct {
	catalog.Descriptor
	DurationLabel string `json:"duration_label"`
}

func newPackageView(d catalog.Descriptor) packageView {
	return packageView{Descriptor: d, DurationLabel: d.DurationLabel()}
}

func newPackageViews(descriptors []catalog.Descriptor) []packageView {
	out := make([]packageView, 0, len(descriptors))
	for _, d := range descriptors {
		out = append(out, newPackageView(d))
	}

	return out
}

type conflictView struct {
	Error       string                   `json:"error"`
	PropertyID  string                   `json:"property_id"`
	Requested   availability.DateRange   `json:"requested"`
	Conflicts   []availability.Interval  `json:"conflicts"`
	Suggestions []availability.DateRange `json:"suggestions"`
}

type errorView struct {
	Error string `json:"error"`
}

// parseDate reads a YYYY-MM-DD date as UTC midnight. An empty string is the zero time.
func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}

	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse %q: %w", s, ErrBadDate)
	}

	return t, nil
}

// validationFields renders validator errors in the same shape as booking.InputError fields.
func validationFields(err error) map[string][]string {
	fields := make(map[string][]string)

	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		fields["body"] = append(fields["body"], err.Error())

		return fields
	}

	for _, fe := range validationErrs {
		fields[fe.Field()] = append(fields[fe.Field()], "failed on "+fe.Tag())
	}

	return fields
}

// jsonName makes validator report fields under their JSON names.
func jsonName(fld reflect.StructField) string {
	name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
	if name == "-" {
		return ""
	}

	return name
}
