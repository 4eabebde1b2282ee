package worker

import (
	"context"
	"errors"
	"fmt"

	"spesa/internal/amqp"
	"spesa/internal/core"
	applog "spesa/internal/log"
)

type UserReader interface {
	GetUser(ctx context.Context, id int64) (core.User, error)
}

type ReportBuilder interface {
	MonthlyReport(ctx context.Context, userID int64, p core.Period) (core.Report, error)
}

type ReportSender interface {
	SendReport(ctx context.Context, user core.User, r core.Report) error
}

// ReportWorker emails the report named by a queued job.
type ReportWorker struct {
	users   UserReader
	reports ReportBuilder
	mail    ReportSender
	logger  *applog.Logger
}

func NewReportWorker(users UserReader, reports ReportBuilder, mail ReportSender) *ReportWorker {
	return &ReportWorker{
		users:   users,
		reports: reports,
		mail:    mail,
		logger:  applog.Default(applog.ComponentWorker),
	}
}

// HandleReportEmail processes one job. Users without an address, and users
// deleted since the job was queued, are skipped without error.
func (w *ReportWorker) HandleReportEmail(ctx context.Context, msg *amqp.ReportEmailMessage) error {
	p, err := msg.Period()
	if err != nil {
		return err
	}
	log := w.logger.WithUser(msg.UserID).With(applog.FieldYear, p.Year, applog.FieldMonth, p.Month)

	user, err := w.users.GetUser(ctx, msg.UserID)
	if core.IsNotFound(err) {
		log.InfoContext(ctx, "Skipping report for deleted user")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}

	r, err := w.reports.MonthlyReport(ctx, user.ID, p)
	if err != nil {
		return fmt.Errorf("build report: %w", err)
	}

	err = w.mail.SendReport(ctx, user, r)
	var noRecipient *core.NoRecipientError
	if errors.As(err, &noRecipient) {
		log.InfoContext(ctx, "Skipping report for user without email")
		return nil
	}
	if err != nil {
		return err
	}
	log.InfoContext(ctx, "Report email delivered", applog.FieldOperation, applog.OpEmail)
	return nil
}
