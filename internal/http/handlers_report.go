package http

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"spesa/internal/core"
	"spesa/internal/drive"
	"spesa/internal/export"
	applog "spesa/internal/log"
	"spesa/internal/middleware/session"
)

// handleReport returns the monthly report with the years selector, the Drive
// authorization state and any pending flash messages.
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request, user core.User) {
	ctx := r.Context()
	p := parsePeriod(r.URL.Query(), s.now())

	rep, err := s.deps.Reports.MonthlyReport(ctx, user.ID, p)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	years, err := s.deps.Reports.AvailableYears(ctx, user.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	view := newReportView(rep)
	view.Years = years
	view.Drive = "disabled"
	if s.deps.Drive != nil {
		state, err := s.deps.Drive.Status(ctx, user.ID)
		if err != nil {
			applog.FromContext(ctx).WarnContext(ctx, "Drive status unavailable", applog.FieldError, err)
			state = drive.Unauthorized
		}
		view.Drive = state.String()
	}
	view.Flashes = session.PopFlashes(w, r)

	writeJSON(w, http.StatusOK, view)
}

// handleExportCSV streams the period's expenses, oldest first, as an attachment.
func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request, user core.User) {
	p := parsePeriod(r.URL.Query(), s.now())
	expenses, err := s.deps.Expenses.ListPeriod(r.Context(), user.ID, p)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := export.WriteCSV(&buf, expenses); err != nil {
		s.writeError(w, r, fmt.Errorf("encode csv: %w", err))
		return
	}

	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, export.FileName(p)))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// handleEmailReport mails the period's report to the user and redirects back
// to the report page with a flash describing the outcome.
func (s *Server) handleEmailReport(w http.ResponseWriter, r *http.Request, user core.User) {
	ctx := r.Context()
	p := parsePeriod(r.URL.Query(), s.now())
	logger := applog.FromContext(ctx)

	rep, err := s.deps.Reports.MonthlyReport(ctx, user.ID, p)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	err = s.deps.Mailer.SendReport(ctx, user, rep)
	s.deps.Metrics.Email(err)

	var noRecipient *core.NoRecipientError
	var delivery *core.DeliveryError
	switch {
	case err == nil:
		logger.InfoContext(ctx, "Report emailed", applog.FieldOperation, applog.OpEmail,
			applog.FieldYear, p.Year, applog.FieldMonth, p.Month)
		session.AddFlash(w, r, session.Success, "Report sent to "+user.Email)
	case errors.As(err, &noRecipient):
		session.AddFlash(w, r, session.Warning, "Add an email address to your account to receive reports")
	case errors.As(err, &delivery):
		logger.WarnContext(ctx, "Report email failed", applog.FieldOperation, applog.OpEmail, applog.FieldError, err)
		session.AddFlash(w, r, session.Warning, "The report could not be sent, please try again later")
	default:
		s.writeError(w, r, err)
		return
	}
	http.Redirect(w, r, reportURL(p), http.StatusSeeOther)
}
