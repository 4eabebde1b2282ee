package http

import (
	"net/http"

	"spesa/internal/core"
	applog "spesa/internal/log"
	"spesa/internal/services"
)

// handleRegister creates a user together with the default categories. It is
// the only write route that does not require credentials.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	p := NewRequestBodyParser(w, r)
	if err := p.Parse(); err != nil {
		s.writeError(w, r, err)
		return
	}
	u, err := s.deps.Users.Register(r.Context(), services.RegisterInput{
		Username: p.Get("username"),
		Email:    p.Get("email"),
		Password: p.Get("password"),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	applog.FromContext(r.Context()).InfoContext(r.Context(), "User registered", applog.FieldUserID, u.ID)
	writeJSON(w, http.StatusCreated, newUserView(u))
}

func (s *Server) handleUpdateEmail(w http.ResponseWriter, r *http.Request, user core.User) {
	p := NewRequestBodyParser(w, r)
	if err := p.Parse(); err != nil {
		s.writeError(w, r, err)
		return
	}
	email := p.Get("email")
	if err := s.deps.Users.UpdateEmail(r.Context(), user.ID, email); err != nil {
		s.writeError(w, r, err)
		return
	}
	user.Email = email
	writeJSON(w, http.StatusOK, newUserView(user))
}

// handleDeleteAccount removes the user and everything they own.
func (s *Server) handleDeleteAccount(w http.ResponseWriter, r *http.Request, user core.User) {
	if err := s.deps.Users.Delete(r.Context(), user.ID); err != nil {
		s.writeError(w, r, err)
		return
	}
	applog.FromContext(r.Context()).InfoContext(r.Context(), "Account deleted")
	w.WriteHeader(http.StatusNoContent)
}
