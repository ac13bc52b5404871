package availability

import (
	"errors"
	"fmt"
)

var ErrInvalidRange = errors.New("invalid date range")

type ConflictError struct {
	PropertyID  string
	Requested   DateRange
	Conflicts   []Interval
	Suggestions []DateRange
}

func IsConflictError(err error) *ConflictError {
	if err == nil {
		return nil
	}

	var conflictErr *ConflictError

	if errors.As(err, &conflictErr) {
		return conflictErr
	}

	return nil
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("property '%v' is unavailable on %v: overlaps %d booking(s)",
		e.PropertyID, e.Requested, len(e.Conflicts))
}
