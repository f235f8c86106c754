package audit

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"servicehub/internal/catalog"
	"servicehub/internal/metrics"
	"servicehub/pkg/models"
)

type CatalogStore interface {
	GetByLanguage(ctx context.Context, language string) (*models.CatalogDocument, error)
	Languages(ctx context.Context) ([]string, error)
}

type ServiceStore interface {
	FindAll(ctx context.Context) ([]models.CanonicalService, error)
}

// Summary folds per-language reports together.
type Summary struct {
	Languages           int               `json:"languages"`
	Total               int               `json:"total"`
	WithCanonicalRef    int               `json:"with_canonical_ref"`
	ValidCanonicalRefs  int               `json:"valid_canonical_refs"`
	Issues              map[IssueKind]int `json:"issues"`
	MigrationPercentage float64           `json:"migration_percentage"`
	ValidityPercentage  float64           `json:"validity_percentage"`
}

type Runner struct {
	Catalogs CatalogStore
	Services ServiceStore
	Logger   *slog.Logger
	Parallel int
}

func NewRunner(catalogs CatalogStore, services ServiceStore, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		Catalogs: catalogs,
		Services: services,
		Logger:   logger.With("component", "auditor"),
		Parallel: 4,
	}
}

func (r *Runner) AuditLanguage(ctx context.Context, language string) (Report, error) {
	services, err := r.Services.FindAll(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("audit %s: %w", language, err)
	}
	return r.audit(ctx, language, services)
}

// AuditAll audits every catalog concurrently. Reports come back in
// language order.
func (r *Runner) AuditAll(ctx context.Context) ([]Report, Summary, error) {
	langs, err := r.Catalogs.Languages(ctx)
	if err != nil {
		return nil, Summary{}, fmt.Errorf("audit all: %w", err)
	}
	services, err := r.Services.FindAll(ctx)
	if err != nil {
		return nil, Summary{}, fmt.Errorf("audit all: %w", err)
	}

	reports := make([]Report, len(langs))
	g, gctx := errgroup.WithContext(ctx)
	if r.Parallel > 0 {
		g.SetLimit(r.Parallel)
	}
	for i, lang := range langs {
		g.Go(func() error {
			rep, err := r.audit(gctx, lang, services)
			if err != nil {
				return err
			}
			reports[i] = rep
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, Summary{}, err
	}
	return reports, Summarize(reports), nil
}

func (r *Runner) audit(ctx context.Context, language string, services []models.CanonicalService) (Report, error) {
	doc, err := r.Catalogs.GetByLanguage(ctx, language)
	if err != nil {
		return Report{}, fmt.Errorf("audit %s: %w", language, err)
	}
	if doc == nil {
		return Report{}, fmt.Errorf("audit %s: %w", language, catalog.ErrNotFound)
	}

	rep := Audit(*doc, services)
	for _, kind := range AllKinds {
		metrics.AuditIssues.WithLabelValues(language, string(kind)).Set(float64(rep.Count(kind)))
	}
	metrics.MigrationPercentage.WithLabelValues(language).Set(rep.MigrationPercentage)

	r.Logger.Info("audit finished",
		"language", language,
		"total", rep.Total,
		"issues", len(rep.Issues),
		"migration_pct", rep.MigrationPercentage,
		"validity_pct", rep.ValidityPercentage,
	)
	return rep, nil
}

func Summarize(reports []Report) Summary {
	s := Summary{Languages: len(reports), Issues: make(map[IssueKind]int, len(AllKinds))}
	for _, kind := range AllKinds {
		s.Issues[kind] = 0
	}
	for _, rep := range reports {
		s.Total += rep.Total
		s.WithCanonicalRef += rep.WithCanonicalRef
		s.ValidCanonicalRefs += rep.ValidCanonicalRefs
		for _, is := range rep.Issues {
			s.Issues[is.Kind]++
		}
	}
	s.MigrationPercentage = percent(s.WithCanonicalRef, s.Total)
	s.ValidityPercentage = percent(s.ValidCanonicalRefs, s.WithCanonicalRef)
	return s
}
