package main

import (
	"context"
	"errors"
	"os"
	"time"

	"spesa/internal/amqp"
	"spesa/internal/cli"
	applog "spesa/internal/log"
	"spesa/internal/mail"
	"spesa/internal/report"
	"spesa/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(applog.ComponentWorker, os.Getenv("LOG_LEVEL"))
	logger.Info("Starting report-worker")

	cfg := cli.LoadAndValidateConfig(logger)
	if !cfg.AMQPEnabled() {
		logger.Error("AMQP_URL is required for the report worker")
		os.Exit(1)
	}

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	var sender mail.Sender = mail.NewLogSender()
	if cfg.SendGridAPIKey != "" {
		sender = mail.NewSendGridSender(cfg.SendGridAPIKey, cfg.MailFrom, cfg.MailFromName, cfg.SendGridHost)
	} else {
		logger.Warn("SENDGRID_API_KEY not set, report emails will only be logged")
	}
	dispatcher, err := mail.NewDispatcher(sender)
	if err != nil {
		logger.Error("Failed to load email templates", applog.FieldError, err)
		os.Exit(1)
	}

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", applog.FieldError, err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	// Reports are built fresh for every job; the worker never sees writes.
	reportWorker := worker.NewReportWorker(repo, report.NewAggregator(repo), dispatcher)
	scheduler := worker.NewScheduler(repo, amqpClient, cfg.ScheduleInterval)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := scheduler.Stop(ctx); err != nil {
			logger.Warn("Scheduler did not stop in time", applog.FieldError, err)
		}
	})

	if err := scheduler.Start(ctx); err != nil {
		logger.Error("Failed to start scheduler", applog.FieldError, err)
		os.Exit(1)
	}

	go func() {
		err := amqpClient.ConsumeReportEmails(ctx, reportWorker.HandleReportEmail)
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Message consumption failed", applog.FieldError, err)
			os.Exit(1)
		}
	}()

	cli.WaitForShutdown(ctx, done)
	logger.Info("Report worker stopped")
}
