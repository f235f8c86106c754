// Package identity holds the dual-identifier contract between catalog
// entries and canonical services: the legacy numeric id and the canonical
// reference that replaces it.
package identity

import "servicehub/pkg/models"

// MatchResult classifies one catalog entry against the canonical set.
type MatchResult string

const (
	// Matched: the canonical ref resolves to a live service.
	Matched MatchResult = "MATCHED"
	// Dangling: a canonical ref is present but resolves to nothing.
	Dangling MatchResult = "DANGLING"
	// LegacyOnly: no canonical ref, the legacy id resolves.
	LegacyOnly MatchResult = "LEGACY_ONLY"
	// Orphan: no canonical ref and no service has the legacy id.
	Orphan MatchResult = "ORPHAN"
	// Unidentified: neither identifier is present.
	Unidentified MatchResult = "UNIDENTIFIED"
)

// Resolves reports whether the entry is tied to a live service.
func (r MatchResult) Resolves() bool {
	return r == Matched || r == LegacyOnly
}

// Matches reports whether entry is a copy of service.
//
// Either identifier is enough while entries are mid-migration, but a
// canonical ref on the entry is authoritative: an entry whose ref names
// another service never matches through its legacy id.
func Matches(entry models.CatalogEntry, service models.CanonicalService) bool {
	if entry.HasCanonicalRef() && service.CanonicalRef != "" {
		return entry.CanonicalRef == service.CanonicalRef
	}
	return entry.HasLegacyID() && *entry.LegacyID == service.LegacyID
}
