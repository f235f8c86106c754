package models

import (
	"encoding/json"
	"reflect"
	"time"
)

// CatalogDocument is the per-language read model: categories in display
// order, each embedding snapshots of canonical services.
type CatalogDocument struct {
	Language   string     `json:"language"`
	Categories []Category `json:"categories"`
	UpdatedAt  time.Time  `json:"updated_at,omitempty"`

	// Extra keeps undeclared top-level keys of the document.
	Extra Extra `json:"-"`
}

type Category struct {
	ID      string         `json:"id"`
	Name    string         `json:"name"`
	Entries []CatalogEntry `json:"entries"`
	Extra   Extra          `json:"-"`
}

// CatalogEntry is a denormalized copy of a CanonicalService.
// It must carry at least one of LegacyID / CanonicalRef.
type CatalogEntry struct {
	LegacyID     *int   `json:"legacy_id,omitempty"`
	CanonicalRef string `json:"canonical_ref,omitempty"`
	DisplayName  string `json:"display_name"`
	ImageURL     string `json:"image_url,omitempty"`
	MinPrice     string `json:"min_price,omitempty"`

	// display metadata, carried through untouched
	Rank         int             `json:"rank,omitempty"`
	Locked       bool            `json:"locked,omitempty"`
	VIP          bool            `json:"vip,omitempty"`
	Descriptions []string        `json:"descriptions,omitempty"`
	Meta         json.RawMessage `json:"meta,omitempty"`

	// Extra keeps keys the entry carries that are not declared above.
	Extra Extra `json:"-"`
}

func (e CatalogEntry) HasLegacyID() bool     { return e.LegacyID != nil }
func (e CatalogEntry) HasCanonicalRef() bool { return e.CanonicalRef != "" }

// Clone returns a deep copy so ledgers can keep before/after snapshots.
func (e CatalogEntry) Clone() CatalogEntry {
	out := e
	if e.LegacyID != nil {
		id := *e.LegacyID
		out.LegacyID = &id
	}
	if e.Descriptions != nil {
		out.Descriptions = append([]string(nil), e.Descriptions...)
	}
	if e.Meta != nil {
		out.Meta = append(json.RawMessage(nil), e.Meta...)
	}
	out.Extra = e.Extra.Clone()
	return out
}

// Clone deep-copies the document tree.
func (d CatalogDocument) Clone() CatalogDocument {
	out := d
	out.Extra = d.Extra.Clone()
	if d.Categories == nil {
		return out
	}
	out.Categories = make([]Category, len(d.Categories))
	for i, c := range d.Categories {
		cc := c
		cc.Extra = c.Extra.Clone()
		if c.Entries != nil {
			cc.Entries = make([]CatalogEntry, len(c.Entries))
			for j, e := range c.Entries {
				cc.Entries[j] = e.Clone()
			}
		}
		out.Categories[i] = cc
	}
	return out
}

// EntryCount is the number of entries across all categories.
func (d CatalogDocument) EntryCount() int {
	n := 0
	for _, c := range d.Categories {
		n += len(c.Entries)
	}
	return n
}

// The types below round-trip undeclared keys through Extra. The *Fields
// conversions drop the methods so json does not recurse.

type (
	documentFields CatalogDocument
	categoryFields Category
	entryFields    CatalogEntry
)

var (
	documentKeys = jsonKeys(reflect.TypeOf(documentFields{}))
	categoryKeys = jsonKeys(reflect.TypeOf(categoryFields{}))
	entryKeys    = jsonKeys(reflect.TypeOf(entryFields{}))
)

func (d CatalogDocument) MarshalJSON() ([]byte, error) {
	b, err := json.Marshal(documentFields(d))
	if err != nil {
		return nil, err
	}
	return MergeExtra(b, d.Extra)
}

func (d *CatalogDocument) UnmarshalJSON(data []byte) error {
	var f documentFields
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	extra, err := SplitExtra(data, documentKeys)
	if err != nil {
		return err
	}
	*d = CatalogDocument(f)
	d.Extra = extra
	return nil
}

func (c Category) MarshalJSON() ([]byte, error) {
	b, err := json.Marshal(categoryFields(c))
	if err != nil {
		return nil, err
	}
	return MergeExtra(b, c.Extra)
}

func (c *Category) UnmarshalJSON(data []byte) error {
	var f categoryFields
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	extra, err := SplitExtra(data, categoryKeys)
	if err != nil {
		return err
	}
	*c = Category(f)
	c.Extra = extra
	return nil
}

func (e CatalogEntry) MarshalJSON() ([]byte, error) {
	b, err := json.Marshal(entryFields(e))
	if err != nil {
		return nil, err
	}
	return MergeExtra(b, e.Extra)
}

func (e *CatalogEntry) UnmarshalJSON(data []byte) error {
	var f entryFields
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	extra, err := SplitExtra(data, entryKeys)
	if err != nil {
		return err
	}
	*e = CatalogEntry(f)
	e.Extra = extra
	return nil
}

// IntPtr is a small helper for optional legacy ids.
func IntPtr(v int) *int { return &v }
