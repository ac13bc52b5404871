package pricing

import "errors"

var ErrDateRangeInvalid = errors.New("date range invalid")
