package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"servicehub/internal/admin"
	"servicehub/internal/app"
	"servicehub/internal/auth"
	"servicehub/internal/catalog"
	"servicehub/internal/events"
	"servicehub/internal/service"
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

	hub := events.NewHub()
	a, err := app.Open(cfg.DBPath, logger, hub)
	if err != nil {
		log.Fatalf("db open failed: %v", err)
	}
	defer a.Close()

	router := gin.New()
	router.Use(gin.Recovery())
	_ = router.SetTrustedProxies([]string{"127.0.0.1"})

	tcpSrv := events.NewServer(cfg.EventsAddr, hub, logger)
	router.GET("/ws", events.WSHandler(hub, logger))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/ready", func(c *gin.Context) {
		stats := hub.Stats()
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := a.DB.PingContext(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":      "not_ready",
				"db_error":    err.Error(),
				"tcp_clients": stats.TCPClients,
				"ws_clients":  stats.WSClients,
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":      "ready",
			"db":          "ok",
			"tcp_clients": stats.TCPClients,
			"ws_clients":  stats.WSClients,
		})
	})

	// read path
	catalog.NewHandler(a.Catalogs).RegisterRoutes(router.Group("/catalogs"))

	// service workflow; every mutation forwards to the reconciler
	service.NewHandler(a.Services, a.Reconciler, logger).RegisterRoutes(router.Group("/services"))

	// operator
	tokens := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer, cfg.Auth.JWTDuration)
	adminHandler := &admin.Handler{
		Migrator: a.Migrator,
		Auditor:  a.Auditor,
		Ledger:   a.Ledger,
		Services: a.Services,
		Syncer:   a.Reconciler,
	}
	adminHandler.RegisterRoutes(router.Group("/admin", auth.AdminMiddleware(tokens)))

	httpSrv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: router,
	}

	errCh := make(chan error, 2)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := tcpSrv.Run(); err != nil {
			errCh <- err
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Info("HTTP API server listening", "addr", cfg.HTTPAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-errCh:
		logger.Error("server error", "err", err)
	}

	logger.Info("shutting down servers")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown error", "err", err)
	}
	if err := tcpSrv.Close(); err != nil {
		logger.Error("tcp shutdown error", "err", err)
	}

	wg.Wait()
	logger.Info("servers stopped")
}
