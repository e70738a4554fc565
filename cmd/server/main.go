package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/sirosfoundation/go-port-registry/internal/allocator"
	"github.com/sirosfoundation/go-port-registry/internal/api"
	"github.com/sirosfoundation/go-port-registry/internal/probe"
	"github.com/sirosfoundation/go-port-registry/internal/storage"
	"github.com/sirosfoundation/go-port-registry/internal/storage/file"
	"github.com/sirosfoundation/go-port-registry/pkg/config"
	"github.com/sirosfoundation/go-port-registry/pkg/logging"
	"github.com/sirosfoundation/go-port-registry/pkg/middleware"
)

var configFile = flag.String("config", "", "Path to configuration file")

func main() {
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := logging.NewLogger(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting port registry",
		zap.String("address", cfg.Server.Address()),
		zap.String("state_path", cfg.Registry.StatePath),
		zap.Int("range_start", cfg.Registry.RangeStart),
		zap.Int("range_end", cfg.Registry.RangeEnd),
	)

	store := file.NewStore(cfg.Registry.StatePath)
	if err := store.Load(); err != nil {
		if errors.Is(err, storage.ErrCorrupt) {
			// Refusing to start beats silently resetting every
			// assignment on the machine.
			logger.Fatal("state file is corrupt, fix or move it before restarting", zap.Error(err))
		}
		logger.Fatal("failed to load state file", zap.Error(err))
	}

	alloc := allocator.New(
		store,
		probe.NewTCPProber(cfg.Registry.ProbeTimeout),
		allocator.Config{
			RangeStart:    cfg.Registry.RangeStart,
			RangeEnd:      cfg.Registry.RangeEnd,
			BootstrapPort: cfg.Server.Port,
		},
		clockwork.NewRealClock(),
		logger,
	)

	router := setupRouter(cfg, alloc, logger)

	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("registry listening", zap.String("address", cfg.Server.Address()))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server exited")
}

func setupRouter(cfg *config.Config, alloc *allocator.Allocator, logger *zap.Logger) *gin.Engine {
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(logger))
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	if cfg.RateLimit.Enabled {
		limiter := middleware.NewRateLimiter(cfg.RateLimit.RPM, cfg.RateLimit.BurstMultiplier)
		router.Use(middleware.RateLimit(limiter))
	}

	handler := api.NewHandler(alloc, cfg.Server.Port, logger)
	handler.RegisterRoutes(router)

	return router
}
