package grpcserver

import (
	"context"

	"google.golang.org/grpc"

	"servicehub/internal/audit"
	"servicehub/internal/migrate"
	"servicehub/internal/reconcile"
)

const serviceName = "servicehub.v1.CatalogAdmin"

type MigrateRequest struct {
	Language string `json:"language"` // empty migrates every language
	DryRun   bool   `json:"dry_run"`
}

type MigrateResponse struct {
	Runs []migrate.Run `json:"runs"`
	// Warning is set when the catalog was written but the run could not be
	// recorded in the ledger.
	Warning string `json:"warning,omitempty"`
}

type AuditRequest struct {
	Language string `json:"language"` // empty audits every language
}

type AuditResponse struct {
	Reports []audit.Report `json:"reports"`
	Summary audit.Summary  `json:"summary"`
}

type GetRunRequest struct {
	ID string `json:"id"`
}

type GetRunResponse struct {
	Run migrate.Run `json:"run"`
}

type ListRunsRequest struct {
	Language string `json:"language"`
	Limit    int    `json:"limit"` // 0 means the store default
}

type ListRunsResponse struct {
	Runs []migrate.Run `json:"runs"`
}

type SyncRequest struct {
	CanonicalRef string `json:"canonical_ref"`
	Change       string `json:"change"`
}

type SyncResponse struct {
	Result reconcile.Result `json:"result"`
}

// CatalogAdminServer is implemented by *Server.
type CatalogAdminServer interface {
	Migrate(context.Context, *MigrateRequest) (*MigrateResponse, error)
	Audit(context.Context, *AuditRequest) (*AuditResponse, error)
	GetRun(context.Context, *GetRunRequest) (*GetRunResponse, error)
	ListRuns(context.Context, *ListRunsRequest) (*ListRunsResponse, error)
	Sync(context.Context, *SyncRequest) (*SyncResponse, error)
}

func RegisterCatalogAdminServer(s grpc.ServiceRegistrar, srv CatalogAdminServer) {
	s.RegisterService(&catalogAdminDesc, srv)
}

// unary builds a method handler in the shape protoc-gen-go-grpc emits.
func unary[Req any, Resp any](method string, call func(CatalogAdminServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(CatalogAdminServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/" + method}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(CatalogAdminServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

var catalogAdminDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*CatalogAdminServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Migrate", CatalogAdminServer.Migrate),
		unary("Audit", CatalogAdminServer.Audit),
		unary("GetRun", CatalogAdminServer.GetRun),
		unary("ListRuns", CatalogAdminServer.ListRuns),
		unary("Sync", CatalogAdminServer.Sync),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "servicehub/catalog_admin",
}

// Client calls CatalogAdmin over any connection; the JSON codec is
// selected per call.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := cc.Invoke(ctx, "/"+serviceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Migrate(ctx context.Context, in *MigrateRequest, opts ...grpc.CallOption) (*MigrateResponse, error) {
	return invoke[MigrateResponse](ctx, c.cc, "Migrate", in, opts)
}

func (c *Client) Audit(ctx context.Context, in *AuditRequest, opts ...grpc.CallOption) (*AuditResponse, error) {
	return invoke[AuditResponse](ctx, c.cc, "Audit", in, opts)
}

func (c *Client) GetRun(ctx context.Context, in *GetRunRequest, opts ...grpc.CallOption) (*GetRunResponse, error) {
	return invoke[GetRunResponse](ctx, c.cc, "GetRun", in, opts)
}

func (c *Client) ListRuns(ctx context.Context, in *ListRunsRequest, opts ...grpc.CallOption) (*ListRunsResponse, error) {
	return invoke[ListRunsResponse](ctx, c.cc, "ListRuns", in, opts)
}

func (c *Client) Sync(ctx context.Context, in *SyncRequest, opts ...grpc.CallOption) (*SyncResponse, error) {
	return invoke[SyncResponse](ctx, c.cc, "Sync", in, opts)
}
