// Package purl parses and canonicalizes package URLs.
//
// A package URL (purl) identifies a software artifact across ecosystems:
//
//	pkg:type/namespace/name@version?qualifiers#subpath
//
// Examples:
//
//	pkg:npm/left-pad@1.3.0
//	pkg:npm/%40babel/core@7.20.0
//	pkg:maven/io.vertx/vertx-web@4.3.4.redhat-00007
//	pkg:rpm/redhat/openssl@1.1.1k-7.el8?arch=x86_64
//
// Coordinates are immutable once parsed. Canonicalization lowercases the
// type, percent-decodes path segments, and sorts qualifier keys, so two
// coordinates that differ only in encoding or qualifier order compare equal.
package purl

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/trustmesh/trustmesh/pkg/errors"
)

// Coordinate is the canonical identity of a software artifact.
// The zero value is not usable - use Parse to obtain a valid Coordinate.
type Coordinate struct {
	Type       string            `json:"type"`
	Namespace  string            `json:"namespace,omitempty"`
	Name       string            `json:"name"`
	Version    string            `json:"version,omitempty"`
	Qualifiers map[string]string `json:"qualifiers,omitempty"`
	Subpath    string            `json:"subpath,omitempty"`
}

// Parse parses a package URL string into a canonical Coordinate.
// Returns a MALFORMED_COORDINATE error if the input cannot be parsed.
func Parse(raw string) (Coordinate, error) {
	if err := errors.ValidateCoordinateString(raw); err != nil {
		return Coordinate{}, err
	}

	rest := strings.TrimPrefix(raw, "pkg:")
	rest = strings.TrimPrefix(rest, "/") // tolerate pkg://type/... forms

	var c Coordinate

	if i := strings.IndexByte(rest, '#'); i >= 0 {
		sub, err := decodeSegment(rest[i+1:])
		if err != nil {
			return Coordinate{}, err
		}
		c.Subpath = strings.Trim(sub, "/")
		rest = rest[:i]
	}

	if i := strings.IndexByte(rest, '?'); i >= 0 {
		quals, err := parseQualifiers(rest[i+1:])
		if err != nil {
			return Coordinate{}, err
		}
		c.Qualifiers = quals
		rest = rest[:i]
	}

	// Version is everything after the last @ that follows the type separator.
	if i := strings.LastIndexByte(rest, '@'); i > strings.IndexByte(rest, '/') {
		v, err := decodeSegment(rest[i+1:])
		if err != nil {
			return Coordinate{}, err
		}
		c.Version = v
		rest = rest[:i]
	}

	typ, path, ok := strings.Cut(rest, "/")
	if !ok || typ == "" || path == "" {
		return Coordinate{}, errors.New(errors.ErrCodeMalformedCoordinate,
			"coordinate must have a type and a name: %q", raw)
	}
	c.Type = strings.ToLower(typ)

	segments := strings.Split(strings.Trim(path, "/"), "/")
	for i, s := range segments {
		decoded, err := decodeSegment(s)
		if err != nil {
			return Coordinate{}, err
		}
		segments[i] = decoded
	}

	c.Name = segments[len(segments)-1]
	if c.Name == "" {
		return Coordinate{}, errors.New(errors.ErrCodeMalformedCoordinate,
			"coordinate has an empty name: %q", raw)
	}
	if len(segments) > 1 {
		c.Namespace = strings.Join(segments[:len(segments)-1], "/")
	}

	return c, nil
}

// String renders the coordinate in canonical purl form.
// Qualifier keys are emitted in sorted order so the output is deterministic.
func (c Coordinate) String() string {
	var b strings.Builder
	b.WriteString("pkg:")
	b.WriteString(c.Type)
	b.WriteByte('/')
	if c.Namespace != "" {
		for _, s := range strings.Split(c.Namespace, "/") {
			b.WriteString(escapeSegment(s))
			b.WriteByte('/')
		}
	}
	b.WriteString(escapeSegment(c.Name))
	if c.Version != "" {
		b.WriteByte('@')
		b.WriteString(escapeSegment(c.Version))
	}
	if len(c.Qualifiers) > 0 {
		keys := make([]string, 0, len(c.Qualifiers))
		for k := range c.Qualifiers {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sep := byte('?')
		for _, k := range keys {
			b.WriteByte(sep)
			sep = '&'
			b.WriteString(k)
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(c.Qualifiers[k]))
		}
	}
	if c.Subpath != "" {
		b.WriteByte('#')
		b.WriteString(c.Subpath)
	}
	return b.String()
}

// Equal reports whether two coordinates are structurally equal over their
// normalized fields.
func (c Coordinate) Equal(other Coordinate) bool {
	return c.String() == other.String()
}

// WithoutVersion returns a copy of the coordinate with the version cleared.
// This is the form used when querying a store for all known versions.
func (c Coordinate) WithoutVersion() Coordinate {
	c.Version = ""
	return c
}

func parseQualifiers(raw string) (map[string]string, error) {
	quals := make(map[string]string)
	for _, pair := range strings.Split(raw, "&") {
		if pair == "" {
			continue
		}
		k, v, ok := strings.Cut(pair, "=")
		if !ok || k == "" {
			return nil, errors.New(errors.ErrCodeMalformedCoordinate,
				"malformed qualifier %q", pair)
		}
		decoded, err := url.QueryUnescape(v)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeMalformedCoordinate, err,
				"malformed qualifier value %q", v)
		}
		quals[strings.ToLower(k)] = decoded
	}
	if len(quals) == 0 {
		return nil, nil
	}
	return quals, nil
}

func decodeSegment(s string) (string, error) {
	decoded, err := url.PathUnescape(s)
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeMalformedCoordinate, err,
			"malformed segment %q", s)
	}
	return decoded, nil
}

func escapeSegment(s string) string {
	// PathEscape leaves @ alone, which would be ambiguous with the version
	// separator, so escape it explicitly.
	return strings.ReplaceAll(url.PathEscape(s), "@", "%40")
}

// MustParse parses a purl string and panics on failure.
// Intended for tests and compile-time-constant coordinates only.
func MustParse(raw string) Coordinate {
	c, err := Parse(raw)
	if err != nil {
		panic(fmt.Sprintf("purl.MustParse(%q): %v", raw, err))
	}
	return c
}
