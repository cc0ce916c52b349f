package advisory

import (
	"encoding/json"
	"strings"

	"github.com/trustmesh/trustmesh/pkg/errors"
)

// Severity is a vulnerability severity normalized to a single scale.
// Feeds use different vocabularies (CVSS scores, "moderate" vs "medium",
// "important" vs "high"); all of them are mapped onto this enum.
type Severity int

const (
	SeverityUnknown Severity = iota
	SeverityLow
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

var severityNames = []string{
	"unknown",
	"low",
	"medium",
	"high",
	"critical",
}

// severityAliases maps vendor vocabulary onto the normalized scale.
var severityAliases = map[string]Severity{
	"moderate":   SeverityMedium,
	"important":  SeverityHigh,
	"negligible": SeverityLow,
	"minor":      SeverityLow,
	"major":      SeverityHigh,
	"none":       SeverityUnknown,
}

// ParseSeverity maps a severity string onto the normalized scale.
// Matching is case-insensitive and tolerates common vendor synonyms.
// Returns SeverityUnknown with an error for unrecognized values.
func ParseSeverity(s string) (Severity, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i, n := range severityNames {
		if name == n {
			return Severity(i), nil
		}
	}
	if sev, ok := severityAliases[name]; ok {
		return sev, nil
	}
	return SeverityUnknown, errors.New(errors.ErrCodeInvalidInput, "unknown severity %q", s)
}

// FromScore maps a CVSS base score onto the normalized scale.
// Uses the CVSS v3 qualitative rating boundaries.
func FromScore(score float64) Severity {
	switch {
	case score >= 9.0:
		return SeverityCritical
	case score >= 7.0:
		return SeverityHigh
	case score >= 4.0:
		return SeverityMedium
	case score > 0:
		return SeverityLow
	default:
		return SeverityUnknown
	}
}

// String returns the lowercase name of the severity.
func (s Severity) String() string {
	if s < 0 || int(s) >= len(severityNames) {
		return severityNames[SeverityUnknown]
	}
	return severityNames[s]
}

// MarshalJSON renders the severity as its string name.
func (s Severity) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON accepts a severity name, tolerating vendor synonyms.
func (s *Severity) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	sev, err := ParseSeverity(name)
	if err != nil {
		return err
	}
	*s = sev
	return nil
}

// Max returns the higher of two severities.
func Max(a, b Severity) Severity {
	if a > b {
		return a
	}
	return b
}
