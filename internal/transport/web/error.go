package web

import "errors"

var (
	ErrPanic     = errors.New("panic")
	ErrBadDate   = errors.New("date must be formatted as YYYY-MM-DD")
	ErrEmptyBody = errors.New("request body is empty")
)
