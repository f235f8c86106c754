package identity

import "servicehub/pkg/models"

// Classification is the outcome of Index.Classify.
type Classification struct {
	Result MatchResult
	// Service is the resolved service for Matched and LegacyOnly.
	Service *models.CanonicalService
	// Conflict is set when the entry's legacy id resolves to a different
	// service than its canonical ref (a corrupt dual reference).
	Conflict *models.CanonicalService
}

// Inconsistent reports a corrupt dual reference.
func (c Classification) Inconsistent() bool { return c.Conflict != nil }

// Index resolves identifiers against a fixed set of canonical services.
type Index struct {
	byRef    map[string]*models.CanonicalService
	byLegacy map[int]*models.CanonicalService
}

// NewIndex builds lookups over services. When two services share a legacy
// id the first one in input order wins.
func NewIndex(services []models.CanonicalService) *Index {
	return NewLanguageIndex(services, "")
}

// NewLanguageIndex resolves canonical refs against every service but legacy
// ids only against services of language (or with no language), since
// legacy ids repeat across languages. An empty language scopes nothing.
func NewLanguageIndex(services []models.CanonicalService, language string) *Index {
	idx := &Index{
		byRef:    make(map[string]*models.CanonicalService, len(services)),
		byLegacy: make(map[int]*models.CanonicalService, len(services)),
	}
	for i := range services {
		s := &services[i]
		if s.CanonicalRef != "" {
			if _, ok := idx.byRef[s.CanonicalRef]; !ok {
				idx.byRef[s.CanonicalRef] = s
			}
		}
		if language != "" && s.Language != "" && s.Language != language {
			continue
		}
		if _, ok := idx.byLegacy[s.LegacyID]; !ok {
			idx.byLegacy[s.LegacyID] = s
		}
	}
	return idx
}

func (idx *Index) Len() int { return len(idx.byRef) }

func (idx *Index) ByRef(ref string) (*models.CanonicalService, bool) {
	s, ok := idx.byRef[ref]
	return s, ok
}

func (idx *Index) ByLegacyID(id int) (*models.CanonicalService, bool) {
	s, ok := idx.byLegacy[id]
	return s, ok
}

// Classify places entry into exactly one MatchResult.
func (idx *Index) Classify(entry models.CatalogEntry) Classification {
	switch {
	case entry.HasCanonicalRef():
		svc, ok := idx.byRef[entry.CanonicalRef]
		if !ok {
			return Classification{Result: Dangling}
		}
		c := Classification{Result: Matched, Service: svc}
		if entry.HasLegacyID() {
			if other, ok := idx.byLegacy[*entry.LegacyID]; ok && other.CanonicalRef != svc.CanonicalRef {
				c.Conflict = other
			}
		}
		return c

	case entry.HasLegacyID():
		svc, ok := idx.byLegacy[*entry.LegacyID]
		if !ok {
			return Classification{Result: Orphan}
		}
		return Classification{Result: LegacyOnly, Service: svc}

	default:
		return Classification{Result: Unidentified}
	}
}
