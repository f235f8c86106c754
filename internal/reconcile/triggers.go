package reconcile

import (
	"context"

	"servicehub/pkg/models"
)

// Trigger surface for the service-management workflow. Each hook forwards
// the post-change snapshot to SyncService.

func (r *Reconciler) OnServiceCreated(ctx context.Context, svc models.CanonicalService) (Result, error) {
	return r.SyncService(ctx, svc, Created)
}

func (r *Reconciler) OnServiceUpdated(ctx context.Context, svc models.CanonicalService) (Result, error) {
	return r.SyncService(ctx, svc, Updated)
}

// OnServiceDeleted takes the snapshot read before the hard delete.
func (r *Reconciler) OnServiceDeleted(ctx context.Context, svc models.CanonicalService) (Result, error) {
	return r.SyncService(ctx, svc, Deleted)
}

func (r *Reconciler) OnServiceStatusChanged(ctx context.Context, svc models.CanonicalService) (Result, error) {
	return r.SyncService(ctx, svc, StatusChanged)
}
