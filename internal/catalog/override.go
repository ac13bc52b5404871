package catalog

import "strings"

// ApplyOverrides finalizes DisplayName and Enabled for every descriptor.
// Overrides are matched on ID first and ExternalProductID second.
// Without an explicit flag, local packages default to enabled and external ones to disabled.
func ApplyOverrides(descriptors []Descriptor, overrides []OverrideSetting) []Descriptor {
	byRef := make(map[string]OverrideSetting, len(overrides))
	for _, o := range overrides {
		ref := strings.TrimSpace(o.PackageRef)
		if ref == "" {
			continue
		}

		byRef[ref] = o
	}

	out := make([]Descriptor, len(descriptors))

	for i, d := range descriptors {
		o, ok := byRef[d.ID]
		if !ok && d.ExternalProductID != "" {
			o, ok = byRef[d.ExternalProductID]
		}

		enabledByOverride := d.Origin == OriginLocal

		if ok {
			if name := strings.TrimSpace(o.CustomName); name != "" {
				d.DisplayName = name
			}

			if o.Enabled != nil {
				enabledByOverride = *o.Enabled
			}
		}

		d.Enabled = d.Enabled && enabledByOverride
		out[i] = d
	}

	return out
}
