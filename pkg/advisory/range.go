package advisory

import (
	goversion "github.com/hashicorp/go-version"
)

// AppliesTo reports whether the advisory affects the given artifact version.
//
// The affected range is a comma-separated constraint expression such as
// ">= 1.0.0, < 1.3.2". When either the range or the version cannot be
// interpreted, the advisory is treated as applicable: a record we cannot
// rule out must not silently disappear from the report.
func (a Advisory) AppliesTo(version string) bool {
	if a.AffectedRange == "" || version == "" {
		return true
	}

	v, err := goversion.NewVersion(version)
	if err != nil {
		return true
	}

	constraints, err := goversion.NewConstraint(a.AffectedRange)
	if err != nil {
		return true
	}

	return constraints.Check(v)
}

// Applicable filters advisories down to those affecting the given version.
func Applicable(advisories []Advisory, version string) []Advisory {
	out := make([]Advisory, 0, len(advisories))
	for _, a := range advisories {
		if a.AppliesTo(version) {
			out = append(out, a)
		}
	}
	return out
}
