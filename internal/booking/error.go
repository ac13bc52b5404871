package booking

import (
	"errors"
	"fmt"

	"github.com/avstrong/rentals/internal/availability"
	"github.com/avstrong/rentals/internal/catalog"
	"github.com/avstrong/rentals/internal/pricing"
)

var (
	ErrNextID            = errors.New("get next id from generator")
	ErrRecordNotFound    = errors.New("record not found")
	ErrInvalidTransition = errors.New("invalid estimate transition")
	ErrConcurrentUpdate  = errors.New("record was modified concurrently")
)

type InputError struct {
	fields map[string][]string
}

func newInputError() *InputError {
	return &InputError{
		fields: make(map[string][]string),
	}
}

func IsInputError(err error) *InputError {
	if err == nil {
		return nil
	}

	var inputError *InputError

	if errors.As(err, &inputError) {
		return inputError
	}

	return nil
}

func (ie *InputError) fieldsCount() int {
	return len(ie.fields)
}

func (ie *InputError) addError(field, msg string) {
	ie.fields[field] = append(ie.fields[field], msg)
}

func (ie *InputError) orNil() error {
	if ie.fieldsCount() > 0 {
		return ie
	}

	return nil
}

func (ie *InputError) Error() string {
	return fmt.Sprintf("%+v", ie.fields)
}

func (ie *InputError) Fields() map[string][]string {
	return ie.fields
}

// errorKind classifies an operation error for metrics and span status.
func errorKind(err error) string {
	switch {
	case IsInputError(err) != nil:
		return "invalid_input"
	case availability.IsConflictError(err) != nil:
		return "conflict"
	case errors.Is(err, catalog.ErrPackageNotFound):
		return "package_not_found"
	case errors.Is(err, pricing.ErrDateRangeInvalid), errors.Is(err, availability.ErrInvalidRange):
		return "invalid_range"
	case errors.Is(err, catalog.ErrCatalogUnavailable):
		return "catalog_unavailable"
	case errors.Is(err, ErrRecordNotFound), errors.Is(err, catalog.ErrPropertyNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, ErrConcurrentUpdate):
		return "concurrent_update"
	default:
		return "error"
	}
}
