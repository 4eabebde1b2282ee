package http

import (
	"errors"
	"net/http"

	"spesa/internal/core"
	applog "spesa/internal/log"
)

const authRealm = `Basic realm="spesa", charset="UTF-8"`

// userHandler is a handler that runs on behalf of an authenticated user.
type userHandler func(w http.ResponseWriter, r *http.Request, user core.User)

// authenticated resolves the caller from HTTP Basic credentials and passes the
// user explicitly to next.
func (s *Server) authenticated(next userHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		username, password, ok := r.BasicAuth()
		if !ok {
			challenge(w)
			return
		}
		user, err := s.deps.Users.Authenticate(r.Context(), username, password)
		if errors.Is(err, core.ErrInvalidCredentials) {
			applog.FromContext(r.Context()).InfoContext(r.Context(), "Authentication failed",
				"username", username, applog.FieldClientIP, s.detector.ClientIP(r))
			challenge(w)
			return
		}
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		logger := applog.FromContext(r.Context()).WithUser(user.ID)
		r = r.WithContext(applog.NewContext(r.Context(), logger))
		next(w, r, user)
	}
}

func challenge(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", authRealm)
	writeJSON(w, http.StatusUnauthorized, errorBody{Error: "authentication required"})
}
