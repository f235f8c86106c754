package reconcile

import (
	"servicehub/internal/catalog"
	"servicehub/internal/identity"
	"servicehub/pkg/models"
)

// FieldChange is one field of an entry rewritten from the canonical record.
type FieldChange struct {
	Field  string `json:"field"`
	Before string `json:"before"`
	After  string `json:"after"`
}

type EntryDiff struct {
	CategoryID string        `json:"category_id"`
	Position   int           `json:"position"`
	EntryName  string        `json:"entry_name"`
	Changes    []FieldChange `json:"changes"`
}

type CatalogDiff struct {
	Language string      `json:"language"`
	Entries  []EntryDiff `json:"entries"`
}

func (d CatalogDiff) Changed() bool { return len(d.Entries) > 0 }

// DiffEntry lists the fields of entry that differ from the service's
// current snapshot. A missing canonical ref is reported as a change so it
// gets backfilled; the legacy id is never touched. An empty derived price
// means the plan has no usable option and leaves the stored copy alone.
func DiffEntry(entry models.CatalogEntry, svc models.CanonicalService) []FieldChange {
	var changes []FieldChange
	add := func(field, before, after string) {
		if before != after {
			changes = append(changes, FieldChange{Field: field, Before: before, After: after})
		}
	}

	add("display_name", entry.DisplayName, svc.DisplayName)
	add("image_url", entry.ImageURL, svc.IconURL)
	if price := svc.PricingPlan.MinPrice(); price != "" {
		add("min_price", entry.MinPrice, price)
	}
	if !entry.HasCanonicalRef() && svc.CanonicalRef != "" {
		add("canonical_ref", "", svc.CanonicalRef)
	}
	return changes
}

func applyChanges(entry *models.CatalogEntry, changes []FieldChange) {
	for _, ch := range changes {
		switch ch.Field {
		case "display_name":
			entry.DisplayName = ch.After
		case "image_url":
			entry.ImageURL = ch.After
		case "min_price":
			entry.MinPrice = ch.After
		case "canonical_ref":
			entry.CanonicalRef = ch.After
		}
	}
}

// belongsTo decides whether entry inside doc is a copy of svc. Legacy ids
// only identify a service within its own language.
func belongsTo(doc *models.CatalogDocument, entry models.CatalogEntry, svc models.CanonicalService) bool {
	if !identity.Matches(entry, svc) {
		return false
	}
	if entry.HasCanonicalRef() {
		return true
	}
	return svc.Language == "" || doc.Language == svc.Language
}

// ApplyService rewrites every copy of svc in doc and returns what changed.
// Running it again with the same snapshot returns an empty diff.
func ApplyService(doc *models.CatalogDocument, svc models.CanonicalService) CatalogDiff {
	diff := CatalogDiff{Language: doc.Language}

	catalog.ForEachEntry(doc, func(h *catalog.EntryHandle) {
		entry := h.Entry()
		if !belongsTo(doc, *entry, svc) {
			return
		}
		changes := DiffEntry(*entry, svc)
		if len(changes) == 0 {
			return
		}
		applyChanges(entry, changes)
		diff.Entries = append(diff.Entries, EntryDiff{
			CategoryID: h.Category().ID,
			Position:   h.Position(),
			EntryName:  entry.DisplayName,
			Changes:    changes,
		})
	})
	return diff
}

// StaleEntry is a copy of a service that no longer exists.
type StaleEntry struct {
	Language   string `json:"language"`
	CategoryID string `json:"category_id"`
	EntryName  string `json:"entry_name"`
}

func findCopies(doc *models.CatalogDocument, svc models.CanonicalService) []StaleEntry {
	var out []StaleEntry
	catalog.ForEachEntry(doc, func(h *catalog.EntryHandle) {
		if belongsTo(doc, *h.Entry(), svc) {
			out = append(out, StaleEntry{
				Language:   doc.Language,
				CategoryID: h.Category().ID,
				EntryName:  h.Entry().DisplayName,
			})
		}
	})
	return out
}
