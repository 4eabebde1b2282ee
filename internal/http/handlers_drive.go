package http

import (
	"errors"
	"net/http"

	"spesa/internal/core"
	applog "spesa/internal/log"
	"spesa/internal/middleware/session"
)

// handleUploadToDrive uploads the period's CSV. Without a usable credential
// the browser is sent to the provider's consent page instead, and the upload
// resumes on the callback.
func (s *Server) handleUploadToDrive(w http.ResponseWriter, r *http.Request, user core.User) {
	ctx := r.Context()
	p := parsePeriod(r.URL.Query(), s.now())

	if s.deps.Drive == nil {
		session.AddFlash(w, r, session.Warning, "Cloud upload is not configured")
		http.Redirect(w, r, reportURL(p), http.StatusSeeOther)
		return
	}

	err := s.upload(w, r, user, p)
	if !errors.Is(err, core.ErrAuthorizationRequired) {
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		http.Redirect(w, r, reportURL(p), http.StatusSeeOther)
		return
	}

	consentURL, err := s.deps.Drive.BeginAuthorization(ctx, user.ID, session.ID(ctx), p)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	applog.FromContext(ctx).InfoContext(ctx, "Redirecting to consent page", applog.FieldOperation, applog.OpAuthorize)
	http.Redirect(w, r, consentURL, http.StatusFound)
}

// handleOAuthCallback completes the consent flow for the browser session and
// runs the upload that started it.
func (s *Server) handleOAuthCallback(w http.ResponseWriter, r *http.Request, user core.User) {
	ctx := r.Context()
	if s.deps.Drive == nil {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not found"})
		return
	}

	q := r.URL.Query()
	pending, err := s.deps.Drive.CompleteAuthorization(ctx, user.ID, session.ID(ctx), q.Get("state"), q.Get("code"))
	var mismatch *core.StateMismatchError
	if errors.As(err, &mismatch) {
		applog.FromContext(ctx).WarnContext(ctx, "OAuth state mismatch", applog.FieldOperation, applog.OpAuthorize)
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid authorization state"})
		return
	}
	if err != nil && pending.SessionID == "" {
		// The pending record could not be read, so there is no period to return to.
		s.writeError(w, r, err)
		return
	}
	if err != nil {
		applog.FromContext(ctx).WarnContext(ctx, "OAuth code exchange failed", applog.FieldError, err)
		session.AddFlash(w, r, session.Warning, "Authorization with the storage provider failed")
		http.Redirect(w, r, reportURL(pending.Period), http.StatusSeeOther)
		return
	}

	if err := s.upload(w, r, user, pending.Period); err != nil && !errors.Is(err, core.ErrAuthorizationRequired) {
		s.writeError(w, r, err)
		return
	}
	http.Redirect(w, r, reportURL(pending.Period), http.StatusSeeOther)
}

// upload runs one upload and records its outcome as a flash. It returns
// ErrAuthorizationRequired untouched and any non-upload error for the caller.
func (s *Server) upload(w http.ResponseWriter, r *http.Request, user core.User, p core.Period) error {
	ctx := r.Context()
	res, err := s.deps.Drive.Upload(ctx, user.ID, p)
	if errors.Is(err, core.ErrAuthorizationRequired) {
		return err
	}
	s.deps.Metrics.Upload(err)

	var uploadErr *core.UploadError
	switch {
	case err == nil:
		applog.FromContext(ctx).InfoContext(ctx, "Report uploaded",
			applog.FieldOperation, applog.OpUpload, applog.FieldFileID, res.FileID, applog.FieldFileName, res.Name)
		session.AddFlash(w, r, session.Success, "Uploaded "+res.Name+" to Google Drive")
		return nil
	case errors.As(err, &uploadErr):
		applog.FromContext(ctx).WarnContext(ctx, "Upload failed", applog.FieldOperation, applog.OpUpload, applog.FieldError, err)
		session.AddFlash(w, r, session.Warning, "Upload to Google Drive failed, please try again later")
		return nil
	default:
		return err
	}
}

func (s *Server) handleDriveDisconnect(w http.ResponseWriter, r *http.Request, user core.User) {
	if s.deps.Drive == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err := s.deps.Drive.Disconnect(r.Context(), user.ID); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
