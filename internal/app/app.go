// Package app wires the stores and engine runners shared by the binaries.
package app

import (
	"database/sql"
	"log/slog"

	"servicehub/internal/audit"
	"servicehub/internal/catalog"
	"servicehub/internal/events"
	"servicehub/internal/migrate"
	"servicehub/internal/reconcile"
	"servicehub/internal/service"
	"servicehub/pkg/database"
)

type App struct {
	DB         *sql.DB
	Services   *service.Repo
	Catalogs   *catalog.Repo
	Ledger     *migrate.LedgerRepo
	Reconciler *reconcile.Reconciler
	Migrator   *migrate.Runner
	Auditor    *audit.Runner
}

// Open opens and migrates the database at path (the default location when
// empty) and builds the runners. publisher may be nil.
func Open(path string, logger *slog.Logger, publisher events.Publisher) (*App, error) {
	db, err := database.Open(database.ConfigFor(path))
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return New(db, logger, publisher), nil
}

func New(db *sql.DB, logger *slog.Logger, publisher events.Publisher) *App {
	a := &App{
		DB:       db,
		Services: service.NewRepo(db),
		Catalogs: catalog.NewRepo(db),
		Ledger:   migrate.NewLedgerRepo(db),
	}

	// one lock set so a sync and a migration never replace the same
	// language at once
	locks := catalog.NewLocks()

	a.Reconciler = reconcile.NewReconciler(a.Catalogs, locks, logger)
	a.Migrator = migrate.NewRunner(a.Catalogs, a.Services, locks, logger)
	a.Migrator.Ledger = a.Ledger
	a.Auditor = audit.NewRunner(a.Catalogs, a.Services, logger)

	if publisher != nil {
		a.Reconciler.Events = publisher
		a.Migrator.Events = publisher
	}
	return a
}

func (a *App) Close() error {
	return a.DB.Close()
}
