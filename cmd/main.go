package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/jurisprep/authd/internal/api/http/middleware"
	"github.com/jurisprep/authd/internal/api/http/router"
	"github.com/jurisprep/authd/internal/config"
	"github.com/jurisprep/authd/internal/logger"
	"github.com/jurisprep/authd/internal/metrics"
	"github.com/jurisprep/authd/internal/notify"
	"github.com/jurisprep/authd/internal/provider"
	"github.com/jurisprep/authd/internal/repository/postgres"
	"github.com/jurisprep/authd/internal/service"
	"github.com/jurisprep/authd/internal/session"
	storage "github.com/jurisprep/authd/internal/storage/minio"
	"github.com/jurisprep/authd/internal/token"
)

var (
	buildVersion = "N/A" // set by ldflags
	buildDate    = "N/A" // set by ldflags
	buildCommit  = "N/A" // set by ldflags
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT, os.Interrupt)
	defer stop()

	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}
	logger := logger.New(cfg.LogLevel)

	db, err := postgres.NewConnection(ctx, cfg.Database.DSN)
	if err != nil {
		logger.Fatal("failed to initialize storage", "error", err)
	}
	defer db.Close()

	profileRepo := postgres.NewProfileRepository(db)
	tokenParser := token.NewParser(cfg.Provider.JWTSecret)

	minioClient, err := minio.New(cfg.Storage.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.Storage.AccessKey, cfg.Storage.SecretKey, ""),
		Secure: cfg.Storage.UseSSL,
	})
	if err != nil {
		logger.Fatal("failed to create minio client", "error", err)
	}
	storageClient, err := storage.NewClient(ctx, minioClient, cfg.Storage.Bucket)
	if err != nil {
		logger.Fatal("failed to initialize storage client", "error", err)
	}

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)
	notifications := notify.NewQueue()

	authProvider := provider.NewClient(provider.Config{
		BaseURL:     cfg.Provider.URL,
		AnonKey:     cfg.Provider.AnonKey,
		RedirectURL: cfg.Provider.RedirectURL,
		SessionFile: cfg.Provider.SessionFile,
	}, tokenParser, logger)
	defer authProvider.Close()

	manager := session.NewManager(authProvider, profileRepo, notifications, collector, logger)
	if err := manager.Start(ctx); err != nil {
		logger.Fatal("failed to start session manager", "error", err)
	}
	defer manager.Close()

	profileService := service.NewProfile(profileRepo, storageClient, logger)
	redirector := session.NewRedirector(session.RedirectPolicy{
		LoginPath:   cfg.Redirect.LoginPath,
		LandingPath: cfg.Redirect.LandingPath,
		Delay:       time.Duration(cfg.Redirect.DelayMS) * time.Millisecond,
	})
	loginLimiter := middleware.NewRateLimiter(cfg.RateLimit.LoginPerMinute, cfg.RateLimit.LoginBurst)
	defer loginLimiter.Stop()

	r := router.New(manager, profileService, redirector, notifications, loginLimiter, collector, metrics.Handler(registry), logger)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.HTTP.Port),
		Handler: r.Register(),
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Info("Starting server on", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to start server", "error", err)
		}
	}()

	logAppVersion()

	<-ctx.Done()
	logger.Info("received interruption signal, shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("error during server shutdown", "error", err, "address", server.Addr)
	}

	wg.Wait()
	logger.Info("shutdown complete")
}

func logAppVersion() {
	tmpl := `
Build version: %s
Build date: %s
Build commit: %s
`

	fmt.Printf(tmpl, buildVersion, buildDate, buildCommit)
}
