package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"spesa/internal/cache"
	"spesa/internal/cli"
	"spesa/internal/config"
	"spesa/internal/core"
	"spesa/internal/drive"
	apphttp "spesa/internal/http"
	applog "spesa/internal/log"
	"spesa/internal/mail"
	"spesa/internal/metrics"
	"spesa/internal/middleware/ratelimit"
	"spesa/internal/report"
	"spesa/internal/services"
	"spesa/internal/storage"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(applog.ComponentApp, os.Getenv("LOG_LEVEL"))
	cfg := cli.LoadAndValidateConfig(logger)

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	m := metrics.New()

	reportCache := cache.NewLRUCache[core.Report](cfg.ReportCacheSize, cfg.ReportCacheTTL)
	cacheManager := cache.NewManager()
	cacheManager.Register(reportCache)
	cacheManager.StartCleanup(time.Minute)

	agg := report.NewAggregator(repo,
		report.WithCache(reportCache),
		report.WithCacheObserver(m.ReportCache))

	dispatcher, err := mail.NewDispatcher(newSender(cfg, logger))
	if err != nil {
		logger.Error("Failed to load email templates", applog.FieldError, err)
		os.Exit(1)
	}

	creds, err := drive.NewFileStore(cfg.CredentialsDir)
	if err != nil {
		logger.Error("Failed to open credential store", applog.FieldError, err, "dir", cfg.CredentialsDir)
		os.Exit(1)
	}

	deps := apphttp.Deps{
		Users:      services.NewUserService(repo, creds, agg),
		Expenses:   services.NewExpenseService(repo, agg),
		Categories: services.NewCategoryService(repo, agg),
		Reports:    agg,
		Mailer:     dispatcher,
		DB:         repo,
		Metrics:    m,
		Logger:     logger,
		RateLimit: ratelimit.Config{
			RequestsPerSecond: cfg.RateLimitRPS,
			Burst:             cfg.RateLimitBurst,
		},
		SecureCookie: cfg.SecureCookie,
	}
	if mgr := newDriveManager(cfg, logger, creds, repo); mgr != nil {
		deps.Drive = mgr.WithRefreshObserver(m.TokenRefresh)
	}

	srv := apphttp.NewServer(":"+cfg.Port, deps)
	srv.MaxHeaderBytes = 1 << 16

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", applog.FieldError, err)
		}
		cacheManager.Stop()
	})

	logger.Info("Starting spesa server",
		"port", cfg.Port, "drive_enabled", deps.Drive != nil, "sendgrid", cfg.SendGridAPIKey != "")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", applog.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}

// newSender delivers through SendGrid when an API key is set and only logs
// messages otherwise.
func newSender(cfg *config.Config, logger *applog.Logger) mail.Sender {
	if cfg.SendGridAPIKey == "" {
		logger.Warn("SENDGRID_API_KEY not set, report emails will only be logged")
		return mail.NewLogSender()
	}
	return mail.NewSendGridSender(cfg.SendGridAPIKey, cfg.MailFrom, cfg.MailFromName, cfg.SendGridHost)
}

// newDriveManager returns nil when no OAuth client is configured, which
// disables the upload routes.
func newDriveManager(cfg *config.Config, logger *applog.Logger, creds *drive.FileStore, repo *storage.SQLiteRepository) *drive.Manager {
	if !cfg.DriveEnabled() {
		logger.Info("Google Drive disabled - no OAuth client configured")
		return nil
	}
	clientJSON, err := cfg.OAuthClientJSON()
	if err != nil {
		logger.Error("Failed to read OAuth client", applog.FieldError, err)
		os.Exit(1)
	}
	provider, err := drive.GoogleProviderFromJSON(clientJSON, cfg.OAuthRedirectURL)
	if err != nil {
		logger.Error("Failed to configure OAuth client", applog.FieldError, err)
		os.Exit(1)
	}
	return drive.NewManager(provider, drive.NewDriveUploader(), creds, repo, repo)
}
