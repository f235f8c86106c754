// Package metrics exposes Prometheus counters for the reconciliation and
// migration engine. Registered on the default registry; the api-server
// serves them at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SyncRuns counts SyncService calls by change kind and outcome.
	SyncRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "servicehub_sync_runs_total",
		Help: "Reconciler runs by change kind and outcome",
	}, []string{"change", "outcome"})

	// CatalogsUpdated counts catalog documents persisted by the reconciler.
	CatalogsUpdated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "servicehub_sync_catalogs_updated_total",
		Help: "Catalog documents rewritten by the reconciler",
	}, []string{"language"})

	// MigratedEntries counts ledger rows by action and reason.
	MigratedEntries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "servicehub_migrate_entries_total",
		Help: "Entries processed by catalog migration, by action and reason",
	}, []string{"language", "action", "reason"})

	// AuditIssues holds the issue count of the last audit per language.
	AuditIssues = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "servicehub_audit_issues",
		Help: "Issues found by the last audit, by kind",
	}, []string{"language", "kind"})

	// MigrationPercentage holds the last audited migration percentage.
	MigrationPercentage = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "servicehub_audit_migration_percentage",
		Help: "Share of entries carrying a canonical ref at the last audit",
	}, []string{"language"})
)
