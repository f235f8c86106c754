package grpcserver

import (
	"context"
	"errors"
	"net"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"servicehub/internal/audit"
	"servicehub/internal/auth"
	"servicehub/internal/catalog"
	"servicehub/internal/migrate"
	"servicehub/internal/reconcile"
	"servicehub/internal/testutil"
	"servicehub/pkg/models"
)

type memLedger struct {
	runs     map[string]migrate.Run
	failSave bool
}

func (m *memLedger) SaveRun(_ context.Context, run migrate.Run) error {
	if m.failSave {
		return errors.New("ledger disk full")
	}
	m.runs[run.ID] = run
	return nil
}

func (m *memLedger) ListRuns(_ context.Context, language string, limit int) ([]migrate.Run, error) {
	var out []migrate.Run
	for _, run := range m.runs {
		if run.Language == language {
			run.Ledger = nil
			out = append(out, run)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memLedger) GetRun(_ context.Context, id string) (*migrate.Run, error) {
	run, ok := m.runs[id]
	if !ok {
		return nil, nil
	}
	return &run, nil
}

func startServer(t *testing.T, catalogs *testutil.MemCatalogs) (*Client, auth.TokenService, *memLedger) {
	t.Helper()
	services := &testutil.MemServices{Services: []models.CanonicalService{
		{CanonicalRef: "A", LegacyID: 1, Language: "en", DisplayName: "Alpha",
			PricingPlan: models.PricingPlan{Options: []models.PriceOption{{Price: "4.99"}}}},
	}}
	locks := catalog.NewLocks()
	ledger := &memLedger{runs: map[string]migrate.Run{}}
	runner := migrate.NewRunner(catalogs, services, locks, nil)
	runner.Ledger = ledger

	tokens := auth.NewTokenService("secret", "servicehub", time.Hour)
	lis := bufconn.Listen(1 << 20)
	gs := grpc.NewServer(grpc.UnaryInterceptor(AuthInterceptor(tokens)))
	RegisterCatalogAdminServer(gs, &Server{
		Migrator: runner,
		Auditor:  audit.NewRunner(catalogs, services, nil),
		Ledger:   ledger,
		Services: services,
		Syncer:   reconcile.NewReconciler(catalogs, locks, nil),
	})
	go func() { _ = gs.Serve(lis) }()
	t.Cleanup(gs.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return NewClient(conn), tokens, ledger
}

func enDoc() models.CatalogDocument {
	return models.CatalogDocument{Language: "en", Categories: []models.Category{
		{ID: "vpn", Entries: []models.CatalogEntry{
			{LegacyID: models.IntPtr(1), DisplayName: "Alpha"},
			{LegacyID: models.IntPtr(2), DisplayName: "Gone"},
		}},
	}}
}

func adminCreds(t *testing.T, tokens auth.TokenService) grpc.CallOption {
	t.Helper()
	tok, _, err := tokens.Sign("ops", auth.RoleAdmin)
	require.NoError(t, err)
	return grpc.PerRPCCredentials(BearerCredentials(tok))
}

func TestMigrateAuditAndLedger(t *testing.T) {
	ctx := context.Background()
	catalogs := testutil.NewMemCatalogs(enDoc())
	client, tokens, _ := startServer(t, catalogs)
	creds := adminCreds(t, tokens)

	audited, err := client.Audit(ctx, &AuditRequest{Language: "en"}, creds)
	require.NoError(t, err)
	require.Len(t, audited.Reports, 1)
	assert.Equal(t, 1, audited.Reports[0].Count(audit.KindOrphan))
	assert.Equal(t, 1, audited.Summary.Languages)

	migrated, err := client.Migrate(ctx, &MigrateRequest{Language: "en"}, creds)
	require.NoError(t, err)
	require.Len(t, migrated.Runs, 1)
	run := migrated.Runs[0]
	assert.Equal(t, 1, run.Removed)
	assert.True(t, run.Persisted)
	assert.Equal(t, "ops", run.Operator)
	assert.Empty(t, migrated.Warning)

	got, err := client.GetRun(ctx, &GetRunRequest{ID: run.ID}, creds)
	require.NoError(t, err)
	assert.Equal(t, run.ID, got.Run.ID)
	assert.Len(t, got.Run.Ledger, 2)

	all, err := client.Audit(ctx, &AuditRequest{}, creds)
	require.NoError(t, err)
	assert.True(t, all.Reports[0].Clean())

	_, err = client.GetRun(ctx, &GetRunRequest{ID: "nope"}, creds)
	assert.Equal(t, codes.NotFound, status.Code(err))

	_, err = client.Migrate(ctx, &MigrateRequest{Language: "fr"}, creds)
	assert.Equal(t, codes.NotFound, status.Code(err))

	history, err := client.ListRuns(ctx, &ListRunsRequest{Language: "en"}, creds)
	require.NoError(t, err)
	require.Len(t, history.Runs, 1)
	assert.Equal(t, run.ID, history.Runs[0].ID)
	assert.Equal(t, "ops", history.Runs[0].Operator)

	none, err := client.ListRuns(ctx, &ListRunsRequest{Language: "de"}, creds)
	require.NoError(t, err)
	assert.Empty(t, none.Runs)

	_, err = client.ListRuns(ctx, &ListRunsRequest{}, creds)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestMigrateReportsLedgerFailure(t *testing.T) {
	ctx := context.Background()
	catalogs := testutil.NewMemCatalogs(enDoc())
	client, tokens, ledger := startServer(t, catalogs)
	ledger.failSave = true

	resp, err := client.Migrate(ctx, &MigrateRequest{Language: "en"}, adminCreds(t, tokens))
	require.NoError(t, err)
	require.Len(t, resp.Runs, 1)
	assert.True(t, resp.Runs[0].Persisted)
	assert.Contains(t, resp.Warning, "ledger disk full")
	assert.Equal(t, 1, catalogs.ReplaceCount())
}

func TestSync(t *testing.T) {
	ctx := context.Background()
	catalogs := testutil.NewMemCatalogs(enDoc())
	client, tokens, _ := startServer(t, catalogs)
	creds := adminCreds(t, tokens)

	res, err := client.Sync(ctx, &SyncRequest{CanonicalRef: "A"}, creds)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Result.UpdatedCatalogCount)
	assert.Equal(t, "4.99", catalogs.Doc("en").Categories[0].Entries[0].MinPrice)

	_, err = client.Sync(ctx, &SyncRequest{CanonicalRef: "A", Change: "bogus"}, creds)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = client.Sync(ctx, &SyncRequest{}, creds)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestStoreFailureIsUnavailable(t *testing.T) {
	catalogs := testutil.NewMemCatalogs(enDoc())
	catalogs.Fail = true
	client, tokens, _ := startServer(t, catalogs)

	_, err := client.Audit(context.Background(), &AuditRequest{}, adminCreds(t, tokens))
	assert.Equal(t, codes.Unavailable, status.Code(err))
}

func TestAuthInterceptor(t *testing.T) {
	ctx := context.Background()
	client, tokens, _ := startServer(t, testutil.NewMemCatalogs(enDoc()))

	_, err := client.Audit(ctx, &AuditRequest{})
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	viewer, _, err := tokens.Sign("ops", "viewer")
	require.NoError(t, err)
	_, err = client.Audit(ctx, &AuditRequest{}, grpc.PerRPCCredentials(BearerCredentials(viewer)))
	assert.Equal(t, codes.PermissionDenied, status.Code(err))
}
