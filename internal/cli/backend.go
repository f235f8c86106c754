package cli

import (
	"context"
	"fmt"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"servicehub/internal/app"
	"servicehub/internal/audit"
	"servicehub/internal/auth"
	"servicehub/internal/grpcserver"
	"servicehub/internal/migrate"
	"servicehub/internal/reconcile"
	"servicehub/pkg/utils"
)

// engine is what the engine commands run against: the local database or a
// remote grpc-server.
// A non-empty warning from Migrate means the catalog was written but the
// run is missing from the ledger.
type engine interface {
	Migrate(ctx context.Context, language string, dryRun bool) (runs []migrate.Run, warning string, err error)
	Audit(ctx context.Context, language string) ([]audit.Report, audit.Summary, error)
	GetRun(ctx context.Context, id string) (*migrate.Run, error)
	ListRuns(ctx context.Context, language string, limit int) ([]migrate.Run, error)
	Sync(ctx context.Context, ref string, change reconcile.ChangeKind) (reconcile.Result, error)
	Close() error
}

func (o *RootOptions) openEngine(logOut io.Writer) (engine, error) {
	cfg, err := o.config()
	if err != nil {
		return nil, err
	}

	if o.GRPCAddr != "" {
		token := o.Token
		if token == "" {
			// mint a short-lived token from the shared secret
			ts := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer, cfg.Auth.JWTDuration)
			if token, _, err = ts.Sign(localOperator, auth.RoleAdmin); err != nil {
				return nil, err
			}
		}
		conn, err := grpc.NewClient(o.GRPCAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return nil, fmt.Errorf("dial %s: %w", o.GRPCAddr, err)
		}
		return &remoteEngine{conn: conn, client: grpcserver.NewClient(conn), creds: grpcserver.BearerCredentials(token)}, nil
	}

	a, err := app.Open(cfg.DBPath, utils.NewLogger(logOut, cfg.Log), nil)
	if err != nil {
		return nil, err
	}
	return &localEngine{app: a}, nil
}

type localEngine struct {
	app *app.App
}

// localOperator is recorded on runs started against the database directly.
const localOperator = "catalogctl"

func (l *localEngine) Migrate(ctx context.Context, language string, dryRun bool) ([]migrate.Run, string, error) {
	ctx = migrate.WithOperator(ctx, localOperator)
	if language == "" {
		runs, err := l.app.Migrator.MigrateAll(ctx, dryRun)
		return runs, "", err
	}
	run, err := l.app.Migrator.MigrateLanguage(ctx, language, dryRun)
	if err != nil && run == nil {
		return nil, "", err
	}
	if err != nil {
		return []migrate.Run{*run}, err.Error(), nil
	}
	return []migrate.Run{*run}, "", nil
}

func (l *localEngine) Audit(ctx context.Context, language string) ([]audit.Report, audit.Summary, error) {
	if language == "" {
		return l.app.Auditor.AuditAll(ctx)
	}
	rep, err := l.app.Auditor.AuditLanguage(ctx, language)
	if err != nil {
		return nil, audit.Summary{}, err
	}
	reports := []audit.Report{rep}
	return reports, audit.Summarize(reports), nil
}

func (l *localEngine) GetRun(ctx context.Context, id string) (*migrate.Run, error) {
	return l.app.Ledger.GetRun(ctx, id)
}

func (l *localEngine) ListRuns(ctx context.Context, language string, limit int) ([]migrate.Run, error) {
	return l.app.Ledger.ListRuns(ctx, language, limit)
}

func (l *localEngine) Sync(ctx context.Context, ref string, change reconcile.ChangeKind) (reconcile.Result, error) {
	svc, err := l.app.Services.FindByCanonicalRef(ctx, ref)
	if err != nil {
		return reconcile.Result{}, err
	}
	if svc == nil {
		return reconcile.Result{}, fmt.Errorf("service %s not found", ref)
	}
	return l.app.Reconciler.SyncService(ctx, *svc, change)
}

func (l *localEngine) Close() error { return l.app.Close() }

type remoteEngine struct {
	conn   *grpc.ClientConn
	client *grpcserver.Client
	creds  grpcserver.BearerCredentials
}

func (r *remoteEngine) call() grpc.CallOption { return grpc.PerRPCCredentials(r.creds) }

func (r *remoteEngine) Migrate(ctx context.Context, language string, dryRun bool) ([]migrate.Run, string, error) {
	resp, err := r.client.Migrate(ctx, &grpcserver.MigrateRequest{Language: language, DryRun: dryRun}, r.call())
	if err != nil {
		return nil, "", err
	}
	return resp.Runs, resp.Warning, nil
}

func (r *remoteEngine) Audit(ctx context.Context, language string) ([]audit.Report, audit.Summary, error) {
	resp, err := r.client.Audit(ctx, &grpcserver.AuditRequest{Language: language}, r.call())
	if err != nil {
		return nil, audit.Summary{}, err
	}
	return resp.Reports, resp.Summary, nil
}

func (r *remoteEngine) GetRun(ctx context.Context, id string) (*migrate.Run, error) {
	resp, err := r.client.GetRun(ctx, &grpcserver.GetRunRequest{ID: id}, r.call())
	if err != nil {
		return nil, err
	}
	return &resp.Run, nil
}

func (r *remoteEngine) ListRuns(ctx context.Context, language string, limit int) ([]migrate.Run, error) {
	resp, err := r.client.ListRuns(ctx, &grpcserver.ListRunsRequest{Language: language, Limit: limit}, r.call())
	if err != nil {
		return nil, err
	}
	return resp.Runs, nil
}

func (r *remoteEngine) Sync(ctx context.Context, ref string, change reconcile.ChangeKind) (reconcile.Result, error) {
	resp, err := r.client.Sync(ctx, &grpcserver.SyncRequest{CanonicalRef: ref, Change: string(change)}, r.call())
	if err != nil {
		return reconcile.Result{}, err
	}
	return resp.Result, nil
}

func (r *remoteEngine) Close() error { return r.conn.Close() }
