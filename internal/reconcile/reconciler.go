// Package reconcile propagates canonical service changes into the
// denormalized per-language catalogs.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"servicehub/internal/catalog"
	"servicehub/internal/events"
	"servicehub/internal/metrics"
	"servicehub/pkg/models"
)

type ChangeKind string

const (
	Created       ChangeKind = "created"
	Updated       ChangeKind = "updated"
	Deleted       ChangeKind = "deleted"
	StatusChanged ChangeKind = "statusChanged"
)

func ParseChangeKind(s string) (ChangeKind, error) {
	switch k := ChangeKind(s); k {
	case Created, Updated, Deleted, StatusChanged:
		return k, nil
	default:
		return "", fmt.Errorf("unknown change kind %q", s)
	}
}

// CatalogStore is the slice of the catalog store the reconciler uses.
type CatalogStore interface {
	FindDocumentsContainingIdentifier(ctx context.Context, legacyID *int, canonicalRef string) ([]models.CatalogDocument, error)
	GetByLanguage(ctx context.Context, language string) (*models.CatalogDocument, error)
	ReplaceDocument(ctx context.Context, doc models.CatalogDocument) error
}

type Result struct {
	CanonicalRef        string        `json:"canonical_ref"`
	Change              ChangeKind    `json:"change"`
	UpdatedCatalogCount int           `json:"updated_catalog_count"`
	PerCatalogDiffs     []CatalogDiff `json:"per_catalog_diffs"`
	Stale               []StaleEntry  `json:"stale,omitempty"`
}

type Reconciler struct {
	Catalogs CatalogStore
	Locks    *catalog.Locks
	Events   events.Publisher // optional
	Logger   *slog.Logger
}

func NewReconciler(catalogs CatalogStore, locks *catalog.Locks, logger *slog.Logger) *Reconciler {
	if locks == nil {
		locks = catalog.NewLocks()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		Catalogs: catalogs,
		Locks:    locks,
		Logger:   logger.With("component", "reconciler"),
	}
}

// SyncService pushes a post-change snapshot of svc into every catalog copy.
//
// Only Updated writes. Deleted reports the copies left behind; pruning
// them is the migrator's job. Created and StatusChanged are no-ops.
// Finding nothing is not an error; only store failures are returned.
func (r *Reconciler) SyncService(ctx context.Context, svc models.CanonicalService, change ChangeKind) (Result, error) {
	res := Result{CanonicalRef: svc.CanonicalRef, Change: change, PerCatalogDiffs: []CatalogDiff{}}
	log := r.Logger.With("canonical_ref", svc.CanonicalRef, "legacy_id", svc.LegacyID, "change", string(change))

	var err error
	switch change {
	case Updated:
		err = r.syncUpdated(ctx, svc, &res, log)
	case Deleted:
		err = r.collectStale(ctx, svc, &res, log)
	case Created:
		log.Debug("new service has no catalog copies yet")
	case StatusChanged:
		if !svc.Active {
			log.Info("service deactivated, catalog copies kept for review")
		}
	default:
		err = fmt.Errorf("unknown change kind %q", change)
	}

	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.SyncRuns.WithLabelValues(string(change), outcome).Inc()
	return res, err
}

func (r *Reconciler) syncUpdated(ctx context.Context, svc models.CanonicalService, res *Result, log *slog.Logger) error {
	docs, err := r.Catalogs.FindDocumentsContainingIdentifier(ctx, legacyID(svc), svc.CanonicalRef)
	if err != nil {
		return fmt.Errorf("sync %s: %w", svc.CanonicalRef, err)
	}

	for _, found := range docs {
		diff, err := r.syncDocument(ctx, found.Language, svc)
		if err != nil {
			return fmt.Errorf("sync %s into %s: %w", svc.CanonicalRef, found.Language, err)
		}
		if !diff.Changed() {
			continue
		}
		res.UpdatedCatalogCount++
		res.PerCatalogDiffs = append(res.PerCatalogDiffs, diff)
		metrics.CatalogsUpdated.WithLabelValues(diff.Language).Inc()
		log.Info("catalog updated", "language", diff.Language, "entries", len(diff.Entries))

		r.publish(events.CatalogEvent{
			Type:         events.TypeCatalogSynced,
			Language:     diff.Language,
			CanonicalRef: svc.CanonicalRef,
			Changed:      len(diff.Entries),
			At:           time.Now().UTC(),
		})
	}

	if res.UpdatedCatalogCount == 0 {
		log.Debug("catalogs already up to date", "candidates", len(docs))
	}
	return nil
}

// syncDocument re-reads the document under the language lock so the
// replace is computed from what is stored now.
func (r *Reconciler) syncDocument(ctx context.Context, language string, svc models.CanonicalService) (CatalogDiff, error) {
	unlock := r.Locks.Lock(language)
	defer unlock()

	doc, err := r.Catalogs.GetByLanguage(ctx, language)
	if err != nil {
		return CatalogDiff{}, err
	}
	if doc == nil {
		return CatalogDiff{Language: language}, nil
	}

	diff := ApplyService(doc, svc)
	if !diff.Changed() {
		return diff, nil
	}
	if err := r.Catalogs.ReplaceDocument(ctx, *doc); err != nil {
		return CatalogDiff{}, err
	}
	return diff, nil
}

func (r *Reconciler) collectStale(ctx context.Context, svc models.CanonicalService, res *Result, log *slog.Logger) error {
	docs, err := r.Catalogs.FindDocumentsContainingIdentifier(ctx, legacyID(svc), svc.CanonicalRef)
	if err != nil {
		return fmt.Errorf("find copies of %s: %w", svc.CanonicalRef, err)
	}

	for i := range docs {
		stale := findCopies(&docs[i], svc)
		if len(stale) == 0 {
			continue
		}
		res.Stale = append(res.Stale, stale...)
		r.publish(events.CatalogEvent{
			Type:         events.TypeCatalogStale,
			Language:     docs[i].Language,
			CanonicalRef: svc.CanonicalRef,
			Changed:      len(stale),
			At:           time.Now().UTC(),
		})
	}

	if len(res.Stale) > 0 {
		log.Warn("service deleted, catalog copies are now stale", "copies", len(res.Stale))
	}
	return nil
}

func legacyID(svc models.CanonicalService) *int {
	if svc.LegacyID <= 0 {
		return nil
	}
	id := svc.LegacyID
	return &id
}

func (r *Reconciler) publish(ev events.CatalogEvent) {
	if r.Events != nil {
		r.Events.Publish(ev)
	}
}
