// Package advisory models vulnerability records and their reconciliation.
//
// Feeds report the same underlying vulnerability under different identifiers
// (a GHSA entry cross-referencing a CVE, an OSV record aliasing both). The
// Set type merges such records into one entry per vulnerability so that a
// vulnerability reported by several sources is never double-counted.
package advisory

import (
	"slices"
	"sort"
	"strings"
)

// Advisory is one normalized vulnerability record.
// Immutable once fetched; merging produces new values.
type Advisory struct {
	// ID is the identifier under which the source reported the record.
	ID string `json:"id"`
	// Aliases are cross-referenced identifiers for the same vulnerability
	// (CVE, GHSA, distro trackers). May include ID itself.
	Aliases []string `json:"aliases,omitempty"`
	// Severity on the normalized scale.
	Severity Severity `json:"severity"`
	// Summary is a short human-readable description.
	Summary string `json:"summary,omitempty"`
	// AffectedRange is a version constraint describing affected versions,
	// e.g. ">= 1.0.0, < 1.3.2". Empty means unknown (treated as affected).
	AffectedRange string `json:"affected_range,omitempty"`
	// FixedIn is the first version containing a fix, if known.
	FixedIn string `json:"fixed_in,omitempty"`
	// Sources names the feeds that reported this record.
	Sources []string `json:"sources"`
}

// CanonicalID returns the identifier used for dedup across sources.
// CVE identifiers win over everything else since nearly every feed
// cross-references them; otherwise the lexicographically smallest
// identifier among ID and aliases is used so the choice is stable
// regardless of which source was seen first.
func (a Advisory) CanonicalID() string {
	ids := append([]string{a.ID}, a.Aliases...)
	var candidates []string
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if strings.HasPrefix(strings.ToUpper(id), "CVE-") {
			return strings.ToUpper(id)
		}
		candidates = append(candidates, id)
	}
	if len(candidates) == 0 {
		return ""
	}
	sort.Strings(candidates)
	return candidates[0]
}

// identifiers returns all identifiers (ID plus aliases) in upper-cased form
// for alias-index lookups.
func (a Advisory) identifiers() []string {
	ids := make([]string, 0, len(a.Aliases)+1)
	for _, id := range append([]string{a.ID}, a.Aliases...) {
		id = strings.ToUpper(strings.TrimSpace(id))
		if id != "" && !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}
	return ids
}

// Set accumulates advisories with cross-source deduplication.
// Adding the same underlying vulnerability twice (by canonical ID or any
// shared alias) merges the records instead of storing a duplicate.
// Set is not safe for concurrent use.
type Set struct {
	byID    map[string]Advisory // canonical ID -> merged record
	aliases map[string]string   // upper-cased identifier -> canonical ID
}

// NewSet creates an empty advisory set.
func NewSet() *Set {
	return &Set{
		byID:    make(map[string]Advisory),
		aliases: make(map[string]string),
	}
}

// Add inserts an advisory, merging it with an existing entry when any of
// its identifiers are already known. Add is idempotent: inserting the same
// record twice leaves the set unchanged.
func (s *Set) Add(a Advisory) {
	canonical := a.CanonicalID()
	if canonical == "" {
		return
	}

	// A record's identifiers may point at several existing entries stored
	// under different canonical IDs (a GHSA-only entry and a CVE entry that
	// only this record cross-references). All of them describe the same
	// vulnerability, so every matched entry collapses into one.
	var keys []string
	for _, id := range a.identifiers() {
		if existing, ok := s.aliases[id]; ok && !slices.Contains(keys, existing) {
			keys = append(keys, existing)
		}
	}

	var merged Advisory
	found := false
	for _, k := range keys {
		existing, ok := s.byID[k]
		if !ok {
			continue
		}
		delete(s.byID, k)
		if !found {
			merged, found = existing, true
			continue
		}
		merged = merge(merged, existing)
	}

	record := a
	// Keep the record's own ID in the alias list so merging is idempotent
	// and later records can match on it.
	record.Aliases = unionStrings(a.Aliases, []string{a.ID})
	if found {
		merged = merge(merged, record)
	} else {
		merged = record
	}

	key := canonical
	if len(keys) > 0 {
		key = keys[0]
	}
	s.byID[key] = merged
	for _, id := range merged.identifiers() {
		s.aliases[id] = key
	}
}

// AddAll inserts every advisory in the slice.
func (s *Set) AddAll(advisories []Advisory) {
	for _, a := range advisories {
		s.Add(a)
	}
}

// Len returns the number of distinct vulnerabilities in the set.
func (s *Set) Len() int { return len(s.byID) }

// Highest returns the maximum severity across the set, or SeverityUnknown
// for an empty set.
func (s *Set) Highest() Severity {
	highest := SeverityUnknown
	for _, a := range s.byID {
		highest = Max(highest, a.Severity)
	}
	return highest
}

// All returns the merged advisories sorted by canonical ID.
func (s *Set) All() []Advisory {
	keys := make([]string, 0, len(s.byID))
	for k := range s.byID {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]Advisory, 0, len(keys))
	for _, k := range keys {
		out = append(out, s.byID[k])
	}
	return out
}

// merge combines two records for the same vulnerability: highest severity
// wins, aliases and sources are unioned, and free-text fields prefer the
// non-empty value.
func merge(a, b Advisory) Advisory {
	out := a
	out.Severity = Max(a.Severity, b.Severity)
	out.Aliases = unionStrings(a.Aliases, append([]string{b.ID}, b.Aliases...))
	out.Sources = unionStrings(a.Sources, b.Sources)
	if out.Summary == "" {
		out.Summary = b.Summary
	}
	if out.AffectedRange == "" {
		out.AffectedRange = b.AffectedRange
	}
	if out.FixedIn == "" {
		out.FixedIn = b.FixedIn
	}
	return out
}

func unionStrings(a, b []string) []string {
	out := slices.Clone(a)
	for _, s := range b {
		if s != "" && !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}
