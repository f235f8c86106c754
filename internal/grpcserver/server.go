package grpcserver

import (
	"context"
	"errors"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"servicehub/internal/audit"
	"servicehub/internal/auth"
	"servicehub/internal/catalog"
	"servicehub/internal/migrate"
	"servicehub/internal/reconcile"
	"servicehub/pkg/database"
	"servicehub/pkg/models"
)

type Migrator interface {
	MigrateLanguage(ctx context.Context, language string, dryRun bool) (*migrate.Run, error)
	MigrateAll(ctx context.Context, dryRun bool) ([]migrate.Run, error)
}

type Auditor interface {
	AuditLanguage(ctx context.Context, language string) (audit.Report, error)
	AuditAll(ctx context.Context) ([]audit.Report, audit.Summary, error)
}

type Ledger interface {
	GetRun(ctx context.Context, id string) (*migrate.Run, error)
	ListRuns(ctx context.Context, language string, limit int) ([]migrate.Run, error)
}

type ServiceFinder interface {
	FindByCanonicalRef(ctx context.Context, ref string) (*models.CanonicalService, error)
}

type Syncer interface {
	SyncService(ctx context.Context, svc models.CanonicalService, change reconcile.ChangeKind) (reconcile.Result, error)
}

type Server struct {
	Migrator Migrator
	Auditor  Auditor
	Ledger   Ledger
	Services ServiceFinder
	Syncer   Syncer
}

func (s *Server) Migrate(ctx context.Context, req *MigrateRequest) (*MigrateResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request required")
	}
	lang := strings.TrimSpace(req.Language)
	if lang == "" {
		runs, err := s.Migrator.MigrateAll(ctx, req.DryRun)
		if err != nil {
			return nil, toStatus(err, "migration failed")
		}
		return &MigrateResponse{Runs: runs}, nil
	}

	run, err := s.Migrator.MigrateLanguage(ctx, lang, req.DryRun)
	if err != nil && run == nil {
		return nil, toStatus(err, "migration failed")
	}
	resp := &MigrateResponse{Runs: []migrate.Run{*run}}
	if err != nil {
		// catalog written, ledger not recorded
		resp.Warning = err.Error()
	}
	return resp, nil
}

func (s *Server) Audit(ctx context.Context, req *AuditRequest) (*AuditResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request required")
	}
	lang := strings.TrimSpace(req.Language)
	if lang == "" {
		reports, sum, err := s.Auditor.AuditAll(ctx)
		if err != nil {
			return nil, toStatus(err, "audit failed")
		}
		return &AuditResponse{Reports: reports, Summary: sum}, nil
	}

	rep, err := s.Auditor.AuditLanguage(ctx, lang)
	if err != nil {
		return nil, toStatus(err, "audit failed")
	}
	reports := []audit.Report{rep}
	return &AuditResponse{Reports: reports, Summary: audit.Summarize(reports)}, nil
}

func (s *Server) GetRun(ctx context.Context, req *GetRunRequest) (*GetRunResponse, error) {
	if req == nil || strings.TrimSpace(req.ID) == "" {
		return nil, status.Error(codes.InvalidArgument, "id required")
	}
	run, err := s.Ledger.GetRun(ctx, strings.TrimSpace(req.ID))
	if err != nil {
		return nil, toStatus(err, "get failed")
	}
	if run == nil {
		return nil, status.Error(codes.NotFound, "not found")
	}
	return &GetRunResponse{Run: *run}, nil
}

func (s *Server) ListRuns(ctx context.Context, req *ListRunsRequest) (*ListRunsResponse, error) {
	if req == nil || strings.TrimSpace(req.Language) == "" {
		return nil, status.Error(codes.InvalidArgument, "language required")
	}
	if req.Limit < 0 {
		return nil, status.Error(codes.InvalidArgument, "limit must not be negative")
	}
	runs, err := s.Ledger.ListRuns(ctx, strings.TrimSpace(req.Language), req.Limit)
	if err != nil {
		return nil, toStatus(err, "list failed")
	}
	if runs == nil {
		runs = []migrate.Run{}
	}
	return &ListRunsResponse{Runs: runs}, nil
}

func (s *Server) Sync(ctx context.Context, req *SyncRequest) (*SyncResponse, error) {
	if req == nil || strings.TrimSpace(req.CanonicalRef) == "" {
		return nil, status.Error(codes.InvalidArgument, "canonical_ref required")
	}
	change := reconcile.Updated
	if req.Change != "" {
		k, err := reconcile.ParseChangeKind(req.Change)
		if err != nil {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
		change = k
	}

	svc, err := s.Services.FindByCanonicalRef(ctx, strings.TrimSpace(req.CanonicalRef))
	if err != nil {
		return nil, toStatus(err, "get failed")
	}
	if svc == nil {
		return nil, status.Error(codes.NotFound, "not found")
	}

	res, err := s.Syncer.SyncService(ctx, *svc, change)
	if err != nil {
		return nil, toStatus(err, "sync failed")
	}
	return &SyncResponse{Result: res}, nil
}

func toStatus(err error, msg string) error {
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, database.ErrStoreUnavailable):
		return status.Error(codes.Unavailable, msg)
	default:
		return status.Error(codes.Internal, msg)
	}
}

// AuthInterceptor requires an admin bearer token in the "authorization"
// metadata on every call and attributes migration runs to its operator.
func AuthInterceptor(tokens auth.TokenService) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		md, _ := metadata.FromIncomingContext(ctx)
		var header string
		if v := md.Get("authorization"); len(v) > 0 {
			header = v[0]
		}
		raw, ok := auth.BearerToken(header)
		if !ok {
			return nil, status.Error(codes.Unauthenticated, "missing bearer token")
		}
		claims, err := tokens.RequireAdmin(raw)
		if err != nil {
			if errors.Is(err, auth.ErrForbidden) {
				return nil, status.Error(codes.PermissionDenied, err.Error())
			}
			return nil, status.Error(codes.Unauthenticated, "invalid token")
		}
		return handler(migrate.WithOperator(ctx, claims.Operator), req)
	}
}

// BearerCredentials attaches token to every call, also over insecure
// transport.
type BearerCredentials string

func (b BearerCredentials) GetRequestMetadata(context.Context, ...string) (map[string]string, error) {
	return map[string]string{"authorization": "Bearer " + string(b)}, nil
}

func (BearerCredentials) RequireTransportSecurity() bool { return false }
