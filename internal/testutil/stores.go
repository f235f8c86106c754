// Package testutil holds in-memory stand-ins for the sqlite stores so the
// engine can be tested without a database.
package testutil

import (
	"context"
	"errors"
	"sort"
	"sync"

	"servicehub/internal/events"
	"servicehub/pkg/database"
	"servicehub/pkg/models"
)

// ErrInjected is the cause wrapped into StoreError when Fail is set.
var ErrInjected = errors.New("injected failure")

// MemCatalogs keeps deep copies of catalog documents keyed by language.
type MemCatalogs struct {
	mu   sync.Mutex
	docs map[string]models.CatalogDocument

	// Fail makes every call return a store error.
	Fail bool
	// Replaces counts successful ReplaceDocument calls.
	Replaces int
}

func NewMemCatalogs(docs ...models.CatalogDocument) *MemCatalogs {
	m := &MemCatalogs{docs: make(map[string]models.CatalogDocument)}
	for _, d := range docs {
		m.docs[d.Language] = d.Clone()
	}
	return m
}

func (m *MemCatalogs) GetByLanguage(_ context.Context, language string) (*models.CatalogDocument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail {
		return nil, database.Unavailable("get catalog", ErrInjected)
	}
	d, ok := m.docs[language]
	if !ok {
		return nil, nil
	}
	c := d.Clone()
	return &c, nil
}

func (m *MemCatalogs) Languages(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail {
		return nil, database.Unavailable("list languages", ErrInjected)
	}
	out := make([]string, 0, len(m.docs))
	for lang := range m.docs {
		out = append(out, lang)
	}
	sort.Strings(out)
	return out, nil
}

func (m *MemCatalogs) FindDocumentsContainingIdentifier(_ context.Context, legacyID *int, canonicalRef string) ([]models.CatalogDocument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail {
		return nil, database.Unavailable("find catalogs", ErrInjected)
	}

	langs := make([]string, 0, len(m.docs))
	for lang := range m.docs {
		langs = append(langs, lang)
	}
	sort.Strings(langs)

	var out []models.CatalogDocument
	for _, lang := range langs {
		d := m.docs[lang]
		if containsIdentifier(d, legacyID, canonicalRef) {
			out = append(out, d.Clone())
		}
	}
	return out, nil
}

func containsIdentifier(d models.CatalogDocument, legacyID *int, ref string) bool {
	for _, c := range d.Categories {
		for _, e := range c.Entries {
			if legacyID != nil && e.LegacyID != nil && *e.LegacyID == *legacyID {
				return true
			}
			if ref != "" && e.CanonicalRef == ref {
				return true
			}
		}
	}
	return false
}

func (m *MemCatalogs) ReplaceDocument(_ context.Context, doc models.CatalogDocument) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail {
		return database.Unavailable("replace catalog", ErrInjected)
	}
	m.docs[doc.Language] = doc.Clone()
	m.Replaces++
	return nil
}

// Doc returns a copy of the stored document for assertions.
func (m *MemCatalogs) Doc(language string) models.CatalogDocument {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.docs[language].Clone()
}

func (m *MemCatalogs) ReplaceCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Replaces
}

// MemServices is a read-only canonical service set.
type MemServices struct {
	Services []models.CanonicalService
	Fail     bool
}

func (m *MemServices) FindAll(_ context.Context) ([]models.CanonicalService, error) {
	if m.Fail {
		return nil, database.Unavailable("find all services", ErrInjected)
	}
	return append([]models.CanonicalService(nil), m.Services...), nil
}

func (m *MemServices) FindByCanonicalRef(_ context.Context, ref string) (*models.CanonicalService, error) {
	if m.Fail {
		return nil, database.Unavailable("find service", ErrInjected)
	}
	for i := range m.Services {
		if m.Services[i].CanonicalRef == ref {
			s := m.Services[i]
			return &s, nil
		}
	}
	return nil, nil
}

// Recorder captures published events.
type Recorder struct {
	mu     sync.Mutex
	Events []events.CatalogEvent
}

func (r *Recorder) Publish(ev events.CatalogEvent) {
	r.mu.Lock()
	r.Events = append(r.Events, ev)
	r.mu.Unlock()
}

func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Events)
}
