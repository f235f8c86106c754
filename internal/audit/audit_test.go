package audit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"servicehub/internal/catalog"
	"servicehub/internal/migrate"
	"servicehub/internal/testutil"
	"servicehub/pkg/database"
	"servicehub/pkg/models"
)

func services() []models.CanonicalService {
	return []models.CanonicalService{
		{CanonicalRef: "A", LegacyID: 1, Language: "en", DisplayName: "Alpha"},
		{CanonicalRef: "B", LegacyID: 3, Language: "en", DisplayName: "Beta"},
	}
}

func doc() models.CatalogDocument {
	return models.CatalogDocument{Language: "en", Categories: []models.Category{
		{ID: "vpn", Entries: []models.CatalogEntry{
			{LegacyID: models.IntPtr(1), CanonicalRef: "A", DisplayName: "Alpha"},
			{LegacyID: models.IntPtr(3), DisplayName: "Beta"},
			{LegacyID: models.IntPtr(2), DisplayName: "Gone"},
		}},
		{ID: "mail", Entries: []models.CatalogEntry{
			{CanonicalRef: "Z", DisplayName: "Zed"},
			{DisplayName: "Nameless"},
			{LegacyID: models.IntPtr(3), CanonicalRef: "A", DisplayName: "Crossed"},
		}},
	}}
}

func TestAuditTallies(t *testing.T) {
	d := doc()
	rep := Audit(d, services())

	assert.Equal(t, "en", rep.Language)
	assert.Equal(t, 6, rep.Total)
	assert.Equal(t, 3, rep.WithCanonicalRef)
	assert.Equal(t, 2, rep.LegacyOnly)
	assert.Equal(t, 2, rep.ValidCanonicalRefs)
	assert.InDelta(t, 50.0, rep.MigrationPercentage, 0.001)
	assert.InDelta(t, 66.666, rep.ValidityPercentage, 0.01)

	assert.Equal(t, []Issue{
		{Kind: KindOrphan, EntryName: "Gone", CategoryID: "vpn"},
		{Kind: KindDangling, EntryName: "Zed", CategoryID: "mail"},
		{Kind: KindUnidentified, EntryName: "Nameless", CategoryID: "mail"},
		{Kind: KindInconsistent, EntryName: "Crossed", CategoryID: "mail"},
	}, rep.Issues)
	assert.False(t, rep.Clean())

	// pure
	assert.Equal(t, doc(), d)
}

func TestAuditDanglingRef(t *testing.T) {
	d := models.CatalogDocument{Language: "en", Categories: []models.Category{
		{ID: "c", Entries: []models.CatalogEntry{{CanonicalRef: "Z", DisplayName: "z"}}},
	}}
	rep := Audit(d, services())
	assert.Equal(t, 1, rep.WithCanonicalRef)
	assert.Zero(t, rep.ValidCanonicalRefs)
	assert.Equal(t, 1, rep.Count(KindDangling))
	assert.Zero(t, rep.ValidityPercentage)
}

func TestAuditEmptyCatalogIsVacuouslyClean(t *testing.T) {
	rep := Audit(models.CatalogDocument{Language: "en"}, nil)
	assert.Zero(t, rep.Total)
	assert.Equal(t, 100.0, rep.MigrationPercentage)
	assert.Equal(t, 100.0, rep.ValidityPercentage)
	assert.Empty(t, rep.Issues)
	assert.True(t, rep.Clean())
}

func TestAuditAfterMigrationIsClean(t *testing.T) {
	migrated, _ := migrate.MigrateCatalog(doc(), services())
	rep := Audit(migrated, services())
	assert.Equal(t, 100.0, rep.MigrationPercentage)
	assert.Equal(t, 100.0, rep.ValidityPercentage)
	// migration keeps both identifiers, so a crossed pair is still reported
	assert.Equal(t, []Issue{{Kind: KindInconsistent, EntryName: "Crossed", CategoryID: "mail"}}, rep.Issues)
}

func TestRunnerAuditAll(t *testing.T) {
	de := models.CatalogDocument{Language: "de", Categories: []models.Category{
		{ID: "c", Entries: []models.CatalogEntry{{LegacyID: models.IntPtr(1), DisplayName: "ohne"}}},
	}}
	r := NewRunner(testutil.NewMemCatalogs(doc(), de), &testutil.MemServices{Services: services()}, nil)

	reports, sum, err := r.AuditAll(context.Background())
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.Equal(t, "de", reports[0].Language)
	// legacy id 1 belongs to an en service only
	assert.Equal(t, 1, reports[0].Count(KindOrphan))
	assert.Equal(t, "en", reports[1].Language)

	assert.Equal(t, 2, sum.Languages)
	assert.Equal(t, 7, sum.Total)
	assert.Equal(t, 2, sum.Issues[KindOrphan])
	assert.Equal(t, 1, sum.Issues[KindDangling])
	assert.Equal(t, 1, sum.Issues[KindInconsistent])
}

func TestRunnerAuditLanguageErrors(t *testing.T) {
	ctx := context.Background()

	r := NewRunner(testutil.NewMemCatalogs(), &testutil.MemServices{Services: services()}, nil)
	_, err := r.AuditLanguage(ctx, "fr")
	assert.ErrorIs(t, err, catalog.ErrNotFound)

	store := testutil.NewMemCatalogs(doc())
	store.Fail = true
	r = NewRunner(store, &testutil.MemServices{Services: services()}, nil)
	_, err = r.AuditLanguage(ctx, "en")
	assert.ErrorIs(t, err, database.ErrStoreUnavailable)

	_, _, err = r.AuditAll(ctx)
	assert.ErrorIs(t, err, database.ErrStoreUnavailable)
}
