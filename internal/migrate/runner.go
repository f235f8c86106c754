package migrate

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"servicehub/internal/catalog"
	"servicehub/internal/events"
	"servicehub/internal/metrics"
	"servicehub/pkg/models"
)

type CatalogStore interface {
	GetByLanguage(ctx context.Context, language string) (*models.CatalogDocument, error)
	Languages(ctx context.Context) ([]string, error)
	ReplaceDocument(ctx context.Context, doc models.CatalogDocument) error
}

type ServiceStore interface {
	FindAll(ctx context.Context) ([]models.CanonicalService, error)
}

// LedgerStore keeps migration runs so they can be explained later.
type LedgerStore interface {
	SaveRun(ctx context.Context, run Run) error
}

// Run is one migration pass over one language.
type Run struct {
	ID         string    `json:"id"`
	DryRun     bool      `json:"dry_run"`
	Persisted  bool      `json:"persisted"`
	Operator   string    `json:"operator,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Result
}

type operatorKey struct{}

// WithOperator attributes runs started under ctx to operator.
func WithOperator(ctx context.Context, operator string) context.Context {
	return context.WithValue(ctx, operatorKey{}, operator)
}

// OperatorFrom returns the operator set by WithOperator, or "".
func OperatorFrom(ctx context.Context) string {
	op, _ := ctx.Value(operatorKey{}).(string)
	return op
}

type Runner struct {
	Catalogs CatalogStore
	Services ServiceStore
	Ledger   LedgerStore // optional
	Locks    *catalog.Locks
	Events   events.Publisher // optional
	Logger   *slog.Logger

	// Parallel bounds MigrateAll's fan-out across languages.
	Parallel int
}

func NewRunner(catalogs CatalogStore, services ServiceStore, locks *catalog.Locks, logger *slog.Logger) *Runner {
	if locks == nil {
		locks = catalog.NewLocks()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		Catalogs: catalogs,
		Services: services,
		Locks:    locks,
		Logger:   logger.With("component", "migrator"),
		Parallel: 4,
	}
}

// MigrateLanguage migrates the catalog for language and persists it as one
// replace when anything changed. With dryRun nothing is written to the
// catalog; the run is still recorded.
func (r *Runner) MigrateLanguage(ctx context.Context, language string, dryRun bool) (*Run, error) {
	services, err := r.Services.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("migrate %s: %w", language, err)
	}
	return r.migrate(ctx, language, services, dryRun)
}

// MigrateAll runs MigrateLanguage for every catalog. Languages are
// independent and run concurrently; the first store failure cancels the
// rest.
func (r *Runner) MigrateAll(ctx context.Context, dryRun bool) ([]Run, error) {
	langs, err := r.Catalogs.Languages(ctx)
	if err != nil {
		return nil, fmt.Errorf("migrate all: %w", err)
	}
	services, err := r.Services.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("migrate all: %w", err)
	}

	runs := make([]Run, len(langs))
	g, gctx := errgroup.WithContext(ctx)
	if r.Parallel > 0 {
		g.SetLimit(r.Parallel)
	}
	for i, lang := range langs {
		g.Go(func() error {
			run, err := r.migrate(gctx, lang, services, dryRun)
			if err != nil {
				return err
			}
			runs[i] = *run
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return runs, nil
}

func (r *Runner) migrate(ctx context.Context, language string, services []models.CanonicalService, dryRun bool) (*Run, error) {
	unlock := r.Locks.Lock(language)
	defer unlock()

	run := &Run{ID: uuid.NewString(), DryRun: dryRun, Operator: OperatorFrom(ctx), StartedAt: time.Now().UTC()}
	log := r.Logger.With("language", language, "run_id", run.ID, "dry_run", dryRun, "operator", run.Operator)

	doc, err := r.Catalogs.GetByLanguage(ctx, language)
	if err != nil {
		return nil, fmt.Errorf("migrate %s: %w", language, err)
	}
	if doc == nil {
		return nil, fmt.Errorf("migrate %s: %w", language, catalog.ErrNotFound)
	}

	migrated, res := MigrateCatalog(*doc, services)
	run.Result = res

	if res.Modified() && !dryRun {
		if err := r.Catalogs.ReplaceDocument(ctx, migrated); err != nil {
			return nil, fmt.Errorf("migrate %s: %w", language, err)
		}
		run.Persisted = true
	}
	run.FinishedAt = time.Now().UTC()

	for _, item := range res.Ledger {
		if item.Action == Remove {
			log.Info("entry removed", "category", item.CategoryID, "entry", item.EntryName, "reason", string(item.Reason))
		}
		if !dryRun {
			metrics.MigratedEntries.WithLabelValues(language, string(item.Action), string(item.Reason)).Inc()
		}
	}
	log.Info("migration finished", "kept", res.Kept, "changed", res.Changed, "removed", res.Removed, "persisted", run.Persisted)

	if r.Ledger != nil {
		if err := r.Ledger.SaveRun(ctx, *run); err != nil {
			// the catalog is already written; report the run but surface the gap
			return run, fmt.Errorf("record migration run %s: %w", run.ID, err)
		}
	}

	if r.Events != nil {
		r.Events.Publish(events.CatalogEvent{
			Type:     events.TypeCatalogMigrated,
			Language: language,
			RunID:    run.ID,
			Changed:  res.Changed,
			Removed:  res.Removed,
			DryRun:   dryRun,
			At:       run.FinishedAt,
		})
	}
	return run, nil
}
