package catalog

import "servicehub/pkg/models"

// EntryHandle points at one entry during ForEachEntry. Changes made through
// Entry() land in the document; Remove() takes effect once the current
// category has been fully visited.
type EntryHandle struct {
	doc      *models.CatalogDocument
	category int
	index    int
	removed  bool
}

func (h *EntryHandle) Entry() *models.CatalogEntry {
	return &h.doc.Categories[h.category].Entries[h.index]
}

func (h *EntryHandle) Category() *models.Category {
	return &h.doc.Categories[h.category]
}

// Position is the entry's index inside its category before any removal.
func (h *EntryHandle) Position() int { return h.index }

func (h *EntryHandle) Remove() { h.removed = true }

func (h *EntryHandle) Removed() bool { return h.removed }

// ForEachEntry visits every entry of every category in document order.
// It returns the number of entries removed.
func ForEachEntry(doc *models.CatalogDocument, visit func(h *EntryHandle)) int {
	removed := 0
	for ci := range doc.Categories {
		entries := doc.Categories[ci].Entries
		drop := make([]bool, len(entries))
		dropped := 0

		for ei := range entries {
			h := &EntryHandle{doc: doc, category: ci, index: ei}
			visit(h)
			if h.removed {
				drop[ei] = true
				dropped++
			}
		}

		if dropped == 0 {
			continue
		}
		next := 0
		doc.Categories[ci].Entries = FilterEntries(entries, func(models.CatalogEntry) bool {
			keep := !drop[next]
			next++
			return keep
		})
		removed += dropped
	}
	return removed
}

// FilterEntries returns the entries for which keep is true, in their
// original relative order. keep is called once per entry, in order. The
// input slice is not modified.
func FilterEntries(entries []models.CatalogEntry, keep func(models.CatalogEntry) bool) []models.CatalogEntry {
	out := make([]models.CatalogEntry, 0, len(entries))
	for _, e := range entries {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}
