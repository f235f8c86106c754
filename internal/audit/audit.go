// Package audit reports how far a catalog has moved to canonical refs and
// which entries no longer line up with the canonical service set.
package audit

import (
	"servicehub/internal/catalog"
	"servicehub/internal/identity"
	"servicehub/pkg/models"
)

type IssueKind string

const (
	KindDangling     IssueKind = "DANGLING"
	KindOrphan       IssueKind = "ORPHAN"
	KindUnidentified IssueKind = "UNIDENTIFIED"
	KindInconsistent IssueKind = "INCONSISTENT"
)

// AllKinds lists issue kinds in report order.
var AllKinds = []IssueKind{KindDangling, KindOrphan, KindUnidentified, KindInconsistent}

type Issue struct {
	Kind       IssueKind `json:"kind"`
	EntryName  string    `json:"entry_name"`
	CategoryID string    `json:"category_id"`
}

type Report struct {
	Language            string  `json:"language"`
	Total               int     `json:"total"`
	WithCanonicalRef    int     `json:"with_canonical_ref"`
	LegacyOnly          int     `json:"legacy_only"`
	ValidCanonicalRefs  int     `json:"valid_canonical_refs"`
	Issues              []Issue `json:"issues"`
	MigrationPercentage float64 `json:"migration_percentage"`
	ValidityPercentage  float64 `json:"validity_percentage"`
}

// Count returns the number of issues of kind.
func (r Report) Count(kind IssueKind) int {
	n := 0
	for _, is := range r.Issues {
		if is.Kind == kind {
			n++
		}
	}
	return n
}

// Clean reports a fully migrated catalog with no issues.
func (r Report) Clean() bool {
	return len(r.Issues) == 0 && r.WithCanonicalRef == r.Total
}

// Audit walks doc without modifying it.
//
// LegacyOnly counts entries carrying only a legacy id, whether or not it
// resolves; an unresolved one is also reported as ORPHAN.
func Audit(doc models.CatalogDocument, services []models.CanonicalService) Report {
	idx := identity.NewLanguageIndex(services, doc.Language)
	rep := Report{Language: doc.Language, Issues: []Issue{}}

	// ForEachEntry only mutates on Remove, which is never called here.
	catalog.ForEachEntry(&doc, func(h *catalog.EntryHandle) {
		e := h.Entry()
		rep.Total++
		if e.HasCanonicalRef() {
			rep.WithCanonicalRef++
		} else if e.HasLegacyID() {
			rep.LegacyOnly++
		}

		c := idx.Classify(*e)
		issue := Issue{EntryName: e.DisplayName, CategoryID: h.Category().ID}
		switch c.Result {
		case identity.Matched:
			rep.ValidCanonicalRefs++
			if c.Inconsistent() {
				issue.Kind = KindInconsistent
				rep.Issues = append(rep.Issues, issue)
			}
		case identity.Dangling:
			issue.Kind = KindDangling
			rep.Issues = append(rep.Issues, issue)
		case identity.Orphan:
			issue.Kind = KindOrphan
			rep.Issues = append(rep.Issues, issue)
		case identity.Unidentified:
			issue.Kind = KindUnidentified
			rep.Issues = append(rep.Issues, issue)
		}
	})

	rep.MigrationPercentage = percent(rep.WithCanonicalRef, rep.Total)
	rep.ValidityPercentage = percent(rep.ValidCanonicalRefs, rep.WithCanonicalRef)
	return rep
}

// percent is 100 on an empty denominator.
func percent(n, d int) float64 {
	if d == 0 {
		return 100
	}
	return float64(n) / float64(d) * 100
}
