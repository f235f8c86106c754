// Package migrate rewrites catalog entries from the legacy id to the
// canonical ref and prunes entries no canonical service backs any more.
package migrate

import (
	"servicehub/internal/catalog"
	"servicehub/internal/identity"
	"servicehub/pkg/models"
)

type Action string

const (
	Keep   Action = "KEEP"
	Remove Action = "REMOVE"
)

// LedgerEntry explains what happened to one entry.
type LedgerEntry struct {
	Seq          int                  `json:"seq"`
	Action       Action               `json:"action"`
	Reason       identity.MatchResult `json:"reason"`
	CategoryID   string               `json:"category_id"`
	EntryName    string               `json:"entry_name"`
	Changed      bool                 `json:"changed"`
	Inconsistent bool                 `json:"inconsistent,omitempty"`
	Before       *models.CatalogEntry `json:"before,omitempty"`
	After        *models.CatalogEntry `json:"after,omitempty"`
}

type Result struct {
	Language string        `json:"language"`
	Kept     int           `json:"kept"`
	Removed  int           `json:"removed"`
	Changed  int           `json:"changed"`
	Ledger   []LedgerEntry `json:"change_ledger"`
}

// Modified reports whether the document needs to be written back.
func (r Result) Modified() bool { return r.Changed > 0 || r.Removed > 0 }

// MigrateCatalog returns a migrated copy of doc; doc itself is not touched.
//
// MATCHED and LEGACY_ONLY entries end up with a canonical ref and keep
// their legacy id. ORPHAN, UNIDENTIFIED and DANGLING entries are removed.
// A migrated document comes back unchanged from a second run.
func MigrateCatalog(doc models.CatalogDocument, services []models.CanonicalService) (models.CatalogDocument, Result) {
	out := doc.Clone()
	idx := identity.NewLanguageIndex(services, doc.Language)
	res := Result{Language: doc.Language, Ledger: []LedgerEntry{}}

	catalog.ForEachEntry(&out, func(h *catalog.EntryHandle) {
		entry := h.Entry()
		before := entry.Clone()
		c := idx.Classify(*entry)

		item := LedgerEntry{
			Seq:          len(res.Ledger) + 1,
			Reason:       c.Result,
			CategoryID:   h.Category().ID,
			EntryName:    entry.DisplayName,
			Inconsistent: c.Inconsistent(),
			Before:       &before,
		}

		switch c.Result {
		case identity.Matched, identity.LegacyOnly:
			if entry.CanonicalRef != c.Service.CanonicalRef {
				entry.CanonicalRef = c.Service.CanonicalRef
				item.Changed = true
				res.Changed++
			}
			after := entry.Clone()
			item.Action = Keep
			item.After = &after
			res.Kept++

		default: // Orphan, Unidentified, Dangling
			h.Remove()
			item.Action = Remove
			res.Removed++
		}
		res.Ledger = append(res.Ledger, item)
	})

	return out, res
}
