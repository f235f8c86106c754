package main

import (
	"flag"
	"log"
	"net"
	"os"

	"google.golang.org/grpc"

	"servicehub/internal/app"
	"servicehub/internal/auth"
	"servicehub/internal/grpcserver"
	"servicehub/pkg/utils"
)

func main() {
	configPath := flag.String("config", os.Getenv("SERVICEHUB_CONFIG"), "path to YAML config")
	flag.Parse()

	cfg, err := utils.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}
	logger := utils.NewLogger(os.Stderr, cfg.Log)

	a, err := app.Open(cfg.DBPath, logger, nil)
	if err != nil {
		log.Fatalf("db open failed: %v", err)
	}
	defer a.Close()

	listener, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Fatalf("grpc listen failed: %v", err)
	}

	tokens := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer, cfg.Auth.JWTDuration)
	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(grpcserver.AuthInterceptor(tokens)))
	grpcserver.RegisterCatalogAdminServer(grpcServer, &grpcserver.Server{
		Migrator: a.Migrator,
		Auditor:  a.Auditor,
		Ledger:   a.Ledger,
		Services: a.Services,
		Syncer:   a.Reconciler,
	})

	logger.Info("gRPC server listening", "addr", cfg.GRPCAddr)
	if err := grpcServer.Serve(listener); err != nil {
		log.Fatalf("grpc server stopped: %v", err)
	}
}
