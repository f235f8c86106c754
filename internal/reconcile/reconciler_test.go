package reconcile

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"servicehub/internal/events"
	"servicehub/internal/testutil"
	"servicehub/pkg/database"
	"servicehub/pkg/models"
)

func plan(prices ...string) models.PricingPlan {
	p := models.PricingPlan{Currency: "USD"}
	for i, price := range prices {
		p.Options = append(p.Options, models.PriceOption{DurationMonths: i + 1, Seats: 1, Price: price})
	}
	return p
}

func serviceA() models.CanonicalService {
	return models.CanonicalService{
		CanonicalRef: "A",
		LegacyID:     1,
		Language:     "en",
		DisplayName:  "Alpha VPN",
		IconURL:      "https://cdn/alpha.png",
		PricingPlan:  plan("9.99", "7.99", "12.00"),
		Active:       true,
	}
}

func enCatalog() models.CatalogDocument {
	return models.CatalogDocument{
		Language: "en",
		Categories: []models.Category{
			{ID: "vpn", Name: "VPN", Entries: []models.CatalogEntry{
				{LegacyID: models.IntPtr(7), CanonicalRef: "other", DisplayName: "Other", MinPrice: "1.00"},
				{
					LegacyID:     models.IntPtr(1),
					DisplayName:  "Alpha VPN",
					ImageURL:     "https://cdn/alpha.png",
					MinPrice:     "9.99",
					Rank:         3,
					VIP:          true,
					Descriptions: []string{"fast", "private"},
					Meta:         json.RawMessage(`{"badge":"hot"}`),
				},
				{LegacyID: models.IntPtr(8), DisplayName: "Last"},
			}},
		},
	}
}

func newReconciler(store CatalogStore) (*Reconciler, *testutil.Recorder) {
	rec := &testutil.Recorder{}
	r := NewReconciler(store, nil, nil)
	r.Events = rec
	return r, rec
}

func TestSyncServiceUpdatesPriceAndBackfillsRef(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewMemCatalogs(enCatalog())
	r, rec := newReconciler(store)

	res, err := r.SyncService(ctx, serviceA(), Updated)
	require.NoError(t, err)

	assert.Equal(t, 1, res.UpdatedCatalogCount)
	require.Len(t, res.PerCatalogDiffs, 1)
	diff := res.PerCatalogDiffs[0]
	assert.Equal(t, "en", diff.Language)
	require.Len(t, diff.Entries, 1)
	assert.Equal(t, "vpn", diff.Entries[0].CategoryID)
	assert.Equal(t, 1, diff.Entries[0].Position)
	assert.ElementsMatch(t, []FieldChange{
		{Field: "min_price", Before: "9.99", After: "7.99"},
		{Field: "canonical_ref", Before: "", After: "A"},
	}, diff.Entries[0].Changes)

	got := store.Doc("en").Categories[0].Entries[1]
	assert.Equal(t, "7.99", got.MinPrice)
	assert.Equal(t, "A", got.CanonicalRef)
	require.NotNil(t, got.LegacyID, "legacy id is kept")
	assert.Equal(t, 1, *got.LegacyID)
	assert.Equal(t, 1, store.ReplaceCount())
	assert.Equal(t, 1, rec.Len())
	assert.Equal(t, events.TypeCatalogSynced, rec.Events[0].Type)
}

func TestSyncServiceIsNoOpOnSecondRun(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewMemCatalogs(enCatalog())
	r, rec := newReconciler(store)

	_, err := r.SyncService(ctx, serviceA(), Updated)
	require.NoError(t, err)
	after := store.Doc("en")

	res, err := r.SyncService(ctx, serviceA(), Updated)
	require.NoError(t, err)

	assert.Zero(t, res.UpdatedCatalogCount)
	assert.Empty(t, res.PerCatalogDiffs)
	assert.Equal(t, 1, store.ReplaceCount(), "no write on unchanged data")
	assert.Equal(t, 1, rec.Len())
	assert.Equal(t, after, store.Doc("en"))
}

func TestSyncServicePreservesOrderAndPassThroughFields(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewMemCatalogs(enCatalog())
	r, _ := newReconciler(store)

	svc := serviceA()
	svc.DisplayName = "Alpha VPN Pro"
	_, err := r.SyncService(ctx, svc, Updated)
	require.NoError(t, err)

	entries := store.Doc("en").Categories[0].Entries
	require.Len(t, entries, 3)
	assert.Equal(t, "Other", entries[0].DisplayName)
	assert.Equal(t, "Alpha VPN Pro", entries[1].DisplayName)
	assert.Equal(t, "Last", entries[2].DisplayName)

	assert.Equal(t, 3, entries[1].Rank)
	assert.True(t, entries[1].VIP)
	assert.Equal(t, []string{"fast", "private"}, entries[1].Descriptions)
	assert.Equal(t, `{"badge":"hot"}`, string(entries[1].Meta))
	// untouched neighbours
	assert.Equal(t, enCatalog().Categories[0].Entries[0], entries[0])
}

func TestSyncServiceLegacyIDIsScopedToLanguage(t *testing.T) {
	ctx := context.Background()
	de := models.CatalogDocument{Language: "de", Categories: []models.Category{
		{ID: "vpn", Entries: []models.CatalogEntry{{LegacyID: models.IntPtr(1), DisplayName: "Anderer Dienst"}}},
	}}
	store := testutil.NewMemCatalogs(enCatalog(), de)
	r, _ := newReconciler(store)

	res, err := r.SyncService(ctx, serviceA(), Updated)
	require.NoError(t, err)

	assert.Equal(t, 1, res.UpdatedCatalogCount)
	assert.Equal(t, de, store.Doc("de"))
}

func TestSyncServiceFollowsCanonicalRefAcrossLanguages(t *testing.T) {
	ctx := context.Background()
	fr := models.CatalogDocument{Language: "fr", Categories: []models.Category{
		{ID: "vpn", Entries: []models.CatalogEntry{{CanonicalRef: "A", DisplayName: "Alpha", MinPrice: "9.99"}}},
	}}
	store := testutil.NewMemCatalogs(fr)
	r, _ := newReconciler(store)

	res, err := r.SyncService(ctx, serviceA(), Updated)
	require.NoError(t, err)

	assert.Equal(t, 1, res.UpdatedCatalogCount)
	assert.Equal(t, "7.99", store.Doc("fr").Categories[0].Entries[0].MinPrice)
}

func TestSyncServiceIgnoresCorruptDualReference(t *testing.T) {
	ctx := context.Background()
	doc := models.CatalogDocument{Language: "en", Categories: []models.Category{
		{ID: "vpn", Entries: []models.CatalogEntry{{CanonicalRef: "B", LegacyID: models.IntPtr(1), DisplayName: "Beta"}}},
	}}
	store := testutil.NewMemCatalogs(doc)
	r, _ := newReconciler(store)

	res, err := r.SyncService(ctx, serviceA(), Updated)
	require.NoError(t, err)

	assert.Zero(t, res.UpdatedCatalogCount)
	assert.Zero(t, store.ReplaceCount())
}

func TestSyncServiceNoMatchesIsSilent(t *testing.T) {
	store := testutil.NewMemCatalogs(enCatalog())
	r, _ := newReconciler(store)

	svc := serviceA()
	svc.CanonicalRef, svc.LegacyID = "nobody", 404
	res, err := r.SyncService(context.Background(), svc, Updated)

	require.NoError(t, err)
	assert.Zero(t, res.UpdatedCatalogCount)
	assert.NotNil(t, res.PerCatalogDiffs)
}

func TestSyncServiceEmptyPlanKeepsStoredPrice(t *testing.T) {
	store := testutil.NewMemCatalogs(enCatalog())
	r, _ := newReconciler(store)

	svc := serviceA()
	svc.PricingPlan = models.PricingPlan{}
	_, err := r.SyncService(context.Background(), svc, Updated)
	require.NoError(t, err)

	assert.Equal(t, "9.99", store.Doc("en").Categories[0].Entries[1].MinPrice)
}

func TestSyncServiceDeletedReportsStaleCopies(t *testing.T) {
	store := testutil.NewMemCatalogs(enCatalog())
	r, rec := newReconciler(store)

	res, err := r.SyncService(context.Background(), serviceA(), Deleted)
	require.NoError(t, err)

	assert.Zero(t, res.UpdatedCatalogCount)
	assert.Equal(t, []StaleEntry{{Language: "en", CategoryID: "vpn", EntryName: "Alpha VPN"}}, res.Stale)
	assert.Zero(t, store.ReplaceCount(), "deletion never prunes")
	assert.Equal(t, enCatalog(), store.Doc("en"))
	assert.Equal(t, 1, rec.Len())
}

func TestSyncServiceCreatedAndStatusChangedAreNoOps(t *testing.T) {
	store := testutil.NewMemCatalogs(enCatalog())
	r, rec := newReconciler(store)

	inactive := serviceA()
	inactive.Active = false
	inactive.DisplayName = "renamed but inactive"

	for _, change := range []ChangeKind{Created, StatusChanged} {
		res, err := r.SyncService(context.Background(), inactive, change)
		require.NoError(t, err)
		assert.Zero(t, res.UpdatedCatalogCount)
		assert.Empty(t, res.Stale)
	}
	assert.Zero(t, store.ReplaceCount())
	assert.Zero(t, rec.Len())
}

func TestSyncServiceStoreFailure(t *testing.T) {
	store := testutil.NewMemCatalogs(enCatalog())
	store.Fail = true
	r, _ := newReconciler(store)

	_, err := r.SyncService(context.Background(), serviceA(), Updated)
	require.Error(t, err)
	assert.ErrorIs(t, err, database.ErrStoreUnavailable)
}

func TestSyncServiceUnknownChange(t *testing.T) {
	r, _ := newReconciler(testutil.NewMemCatalogs())
	_, err := r.SyncService(context.Background(), serviceA(), ChangeKind("renamed"))
	require.Error(t, err)
}

func TestTriggersForward(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewMemCatalogs(enCatalog())
	r, _ := newReconciler(store)

	res, err := r.OnServiceUpdated(ctx, serviceA())
	require.NoError(t, err)
	assert.Equal(t, Updated, res.Change)

	res, err = r.OnServiceDeleted(ctx, serviceA())
	require.NoError(t, err)
	assert.Equal(t, Deleted, res.Change)
	assert.Len(t, res.Stale, 1)

	res, err = r.OnServiceCreated(ctx, serviceA())
	require.NoError(t, err)
	assert.Equal(t, Created, res.Change)

	res, err = r.OnServiceStatusChanged(ctx, serviceA())
	require.NoError(t, err)
	assert.Equal(t, StatusChanged, res.Change)
}

func TestParseChangeKind(t *testing.T) {
	k, err := ParseChangeKind("statusChanged")
	require.NoError(t, err)
	assert.Equal(t, StatusChanged, k)

	_, err = ParseChangeKind("moved")
	assert.Error(t, err)
}
