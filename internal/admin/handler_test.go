package admin

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"servicehub/internal/audit"
	"servicehub/internal/auth"
	"servicehub/internal/catalog"
	"servicehub/internal/migrate"
	"servicehub/internal/reconcile"
	"servicehub/internal/testutil"
	"servicehub/pkg/database"
	"servicehub/pkg/models"
)

type fixture struct {
	router   *gin.Engine
	catalogs *testutil.MemCatalogs
	services *testutil.MemServices
	token    string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.Open(database.Config{Path: filepath.Join(t.TempDir(), "admin.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.Migrate(db))

	f := fixture{
		catalogs: testutil.NewMemCatalogs(models.CatalogDocument{
			Language: "en",
			Categories: []models.Category{{ID: "vpn", Entries: []models.CatalogEntry{
				{LegacyID: models.IntPtr(1), DisplayName: "Alpha", MinPrice: "9.99"},
				{LegacyID: models.IntPtr(2), DisplayName: "Gone"},
			}}},
		}),
		services: &testutil.MemServices{Services: []models.CanonicalService{{
			CanonicalRef: "A", LegacyID: 1, Language: "en", DisplayName: "Alpha",
			PricingPlan: models.PricingPlan{Options: []models.PriceOption{{DurationMonths: 1, Seats: 1, Price: "7.99"}}},
			Active:      true,
		}}},
	}

	locks := catalog.NewLocks()
	runner := migrate.NewRunner(f.catalogs, f.services, locks, nil)
	ledger := migrate.NewLedgerRepo(db)
	runner.Ledger = ledger

	tokens := auth.NewTokenService("secret", "servicehub", time.Hour)
	f.token, _, err = tokens.Sign("ops", auth.RoleAdmin)
	require.NoError(t, err)

	h := &Handler{
		Migrator: runner,
		Auditor:  audit.NewRunner(f.catalogs, f.services, nil),
		Ledger:   ledger,
		Services: f.services,
		Syncer:   reconcile.NewReconciler(f.catalogs, locks, nil),
	}
	f.router = gin.New()
	rg := f.router.Group("/admin", auth.AdminMiddleware(tokens))
	h.RegisterRoutes(rg)
	return f
}

func (f fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+f.token)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

type runResponse struct {
	Run migrate.Run `json:"run"`
}

func TestMigrateDryRunThenPersist(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/admin/catalogs/en/migrate?dry_run=true", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var dry runResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &dry))
	assert.True(t, dry.Run.DryRun)
	assert.Equal(t, 1, dry.Run.Removed)
	assert.Zero(t, f.catalogs.ReplaceCount())

	w = f.do(t, http.MethodPost, "/admin/catalogs/en/migrate", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var real runResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &real))
	assert.True(t, real.Run.Persisted)
	assert.Equal(t, 1, f.catalogs.ReplaceCount())

	w = f.do(t, http.MethodGet, "/admin/migrations/"+real.Run.ID, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var stored migrate.Run
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stored))
	require.Len(t, stored.Ledger, 2)
	assert.Equal(t, migrate.Remove, stored.Ledger[1].Action)
	assert.Equal(t, "ops", stored.Operator)

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/admin/migrations/nope", "").Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodPost, "/admin/catalogs/fr/migrate", "").Code)
}

func TestMigrationHistory(t *testing.T) {
	f := newFixture(t)

	var ids []string
	for _, path := range []string{"/admin/catalogs/en/migrate?dry_run=true", "/admin/catalogs/en/migrate"} {
		w := f.do(t, http.MethodPost, path, "")
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var resp runResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		ids = append(ids, resp.Run.ID)
	}

	var list struct {
		Runs []migrate.Run `json:"runs"`
	}
	w := f.do(t, http.MethodGet, "/admin/catalogs/en/migrations", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list.Runs, 2)
	var got []string
	for _, run := range list.Runs {
		got = append(got, run.ID)
		assert.Equal(t, "ops", run.Operator)
		assert.Empty(t, run.Ledger)
	}
	assert.ElementsMatch(t, ids, got)

	w = f.do(t, http.MethodGet, "/admin/catalogs/en/migrations?limit=1", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Len(t, list.Runs, 1)

	w = f.do(t, http.MethodGet, "/admin/catalogs/de/migrations", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"runs":[]}`, w.Body.String())

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/admin/catalogs/en/migrations?limit=x", "").Code)
}

func TestMigrateAllAndAudit(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/admin/catalogs/en/audit", "")
	require.Equal(t, http.StatusOK, w.Code)
	var rep audit.Report
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rep))
	assert.Equal(t, 2, rep.Total)
	assert.Equal(t, 1, rep.Count(audit.KindOrphan))

	w = f.do(t, http.MethodPost, "/admin/catalogs/migrate", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = f.do(t, http.MethodGet, "/admin/catalogs/audit", "")
	require.Equal(t, http.StatusOK, w.Code)
	var all struct {
		Reports []audit.Report `json:"reports"`
		Summary audit.Summary  `json:"summary"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &all))
	require.Len(t, all.Reports, 1)
	assert.True(t, all.Reports[0].Clean())
	assert.Equal(t, 100.0, all.Summary.MigrationPercentage)
}

func TestSync(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/admin/services/A/sync", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var res reconcile.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, 1, res.UpdatedCatalogCount)
	assert.Equal(t, "7.99", f.catalogs.Doc("en").Categories[0].Entries[0].MinPrice)

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/admin/services/A/sync", `{"change":"renamed"}`).Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodPost, "/admin/services/Q/sync", "").Code)
}

func TestStoreFailureIs503(t *testing.T) {
	f := newFixture(t)
	f.catalogs.Fail = true

	assert.Equal(t, http.StatusServiceUnavailable, f.do(t, http.MethodGet, "/admin/catalogs/en/audit", "").Code)
	assert.Equal(t, http.StatusServiceUnavailable, f.do(t, http.MethodPost, "/admin/catalogs/migrate", "").Code)
}

func TestRequiresToken(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodGet, "/admin/catalogs/audit", nil)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
