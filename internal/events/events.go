package events

import "time"

const (
	TypeCatalogSynced   = "catalog.synced"   // reconciler rewrote a catalog
	TypeCatalogStale    = "catalog.stale"    // a deleted service still has copies
	TypeCatalogMigrated = "catalog.migrated" // migration run finished
)

type CatalogEvent struct {
	Type         string    `json:"type"`
	Language     string    `json:"language"`
	CanonicalRef string    `json:"canonical_ref,omitempty"`
	RunID        string    `json:"run_id,omitempty"`
	Changed      int       `json:"changed,omitempty"`
	Removed      int       `json:"removed,omitempty"`
	DryRun       bool      `json:"dry_run,omitempty"`
	At           time.Time `json:"at"`
}

// Publisher is what the engine needs from a Hub.
type Publisher interface {
	Publish(ev CatalogEvent)
}
