package catalog

import (
	"fmt"
	"strings"
)

// Resolve finds the single enabled descriptor a reference points at.
// The reference may be a local id, an external product id or a legacy package name.
// Matching order: exact id, exact external product id, case-insensitive id or
// external product id, exact original name.
func Resolve(descriptors []Descriptor, ref string) (Descriptor, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return Descriptor{}, fmt.Errorf("empty package reference: %w", ErrPackageNotFound)
	}

	matchers := []func(d Descriptor) bool{
		func(d Descriptor) bool { return d.ID == ref },
		func(d Descriptor) bool { return d.ExternalProductID != "" && d.ExternalProductID == ref },
		func(d Descriptor) bool {
			return strings.EqualFold(d.ID, ref) ||
				(d.ExternalProductID != "" && strings.EqualFold(d.ExternalProductID, ref))
		},
		func(d Descriptor) bool { return d.OriginalName == ref },
	}

	for _, match := range matchers {
		for _, d := range descriptors {
			if d.Enabled && match(d) {
				return d, nil
			}
		}
	}

	return Descriptor{}, fmt.Errorf("package %q: %w", ref, ErrPackageNotFound)
}

// ResolveForUpdate behaves like Resolve but keeps the previously resolved package when the
// reference no longer matches anything. Existing estimates and bookings must survive
// packages that were deleted or disabled after they were quoted.
func ResolveForUpdate(descriptors []Descriptor, ref string, previous Descriptor) (_ Descriptor, preserved bool) {
	d, err := Resolve(descriptors, ref)
	if err != nil {
		return previous, true
	}

	return d, false
}
