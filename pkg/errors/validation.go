package errors

import (
	"strings"
	"unicode"
)

// ValidateCoordinateString performs cheap sanity checks on a raw package
// coordinate before it reaches the purl parser. It rejects input that could
// never be a valid package URL and input that could be used for injection.
//
// The validation rules are intentionally conservative:
//   - No empty strings
//   - Must start with the "pkg:" scheme
//   - No control characters or null bytes
//   - No whitespace
//   - Maximum length of 1024 characters
//
// Structural validation of the coordinate is done by the purl package.
func ValidateCoordinateString(raw string) error {
	if raw == "" {
		return New(ErrCodeMalformedCoordinate, "coordinate cannot be empty")
	}

	if len(raw) > 1024 {
		return New(ErrCodeMalformedCoordinate, "coordinate too long (max 1024 characters)")
	}

	if !strings.HasPrefix(raw, "pkg:") {
		return New(ErrCodeMalformedCoordinate, "coordinate must start with pkg: scheme")
	}

	for _, r := range raw {
		if unicode.IsControl(r) || unicode.IsSpace(r) {
			return New(ErrCodeMalformedCoordinate, "coordinate contains invalid characters")
		}
	}

	return nil
}

// ValidateURL validates an endpoint URL from configuration.
// It ensures the URL has a safe scheme (http or https).
func ValidateURL(url string) error {
	if url == "" {
		return New(ErrCodeInvalidConfig, "URL cannot be empty")
	}

	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return New(ErrCodeInvalidConfig, "URL must use http or https scheme")
	}

	return nil
}
