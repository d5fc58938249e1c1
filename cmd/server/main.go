package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"vectorstore-go/internal/api"
	"vectorstore-go/internal/config"
	"vectorstore-go/internal/vecdb"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "config.toml", "path to the TOML configuration file")
	flag.Parse()

	// Load configuration
	appConfig, err := config.LoadConfig(*configPath)
	if err != nil {
		slog.Error("Error loading config", "error", err)
		os.Exit(1)
	}

	// Configure logging level
	setupLogging(appConfig.Server.LogLevel)

	// Configure Gin mode based on log level
	setupGinMode(appConfig.Server.LogLevel)

	// Open the store manager
	stores, err := newManager(appConfig)
	if err != nil {
		slog.Error("Error initializing store manager", "error", err)
		os.Exit(1)
	}
	slog.Info("Serving stores", "root", appConfig.Database.RootDir, "defaults", appConfig.Database.StoreDefaults())

	// Initialize Gin router
	router := gin.New()
	router.Use(gin.Recovery())
	if gin.Mode() == gin.DebugMode {
		router.Use(gin.Logger())
	}

	// Set up API routes with configured URL suffixes
	setupRoutes(router, appConfig, api.NewHandler(stores))

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", appConfig.Server.Port),
		Handler: router,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := serve(ctx, server, stores); err != nil {
		slog.Error("Server stopped with error", "error", err)
		os.Exit(1)
	}
}

func newManager(cfg *config.AppConfig) (*vecdb.Manager, error) {
	defaults := cfg.Database.StoreDefaults()
	return vecdb.NewManager(vecdb.ManagerConfig{
		RootDir:    cfg.Database.RootDir,
		MetricType: defaults.MetricType,
		IndexType:  defaults.IndexType,
		HnswParams: defaults.HnswParams,
		WALFormat:  cfg.Database.WALFormat,
	})
}

// serve runs the server until ctx is cancelled, then drains requests and closes every store
func serve(ctx context.Context, server *http.Server, stores *vecdb.Manager) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server listening", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case serveErr = <-errCh:
	case <-ctx.Done():
		slog.Info("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		serveErr = server.Shutdown(shutdownCtx)
	}

	return errors.Join(serveErr, stores.Close())
}

func setupLogging(logLevel string) {
	var level slog.Level
	switch strings.ToLower(logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})
	slog.SetDefault(slog.New(handler))
}

func setupGinMode(logLevel string) {
	switch strings.ToLower(logLevel) {
	case "debug":
		gin.SetMode(gin.DebugMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}
}

func setupRoutes(router *gin.Engine, cfg *config.AppConfig, h *api.Handler) {
	api.SetupRoutes(router, cfg.Server, h)
	router.GET(cfg.Server.MetricsURLSuffix, gin.WrapH(promhttp.Handler()))
}
