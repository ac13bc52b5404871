package catalog

import "errors"

var (
	ErrPackageNotFound    = errors.New("package not found")
	ErrCatalogUnavailable = errors.New("external catalog unavailable")
	ErrPropertyNotFound   = errors.New("property not found")
)
