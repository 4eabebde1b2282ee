package http

import (
	"net/http"

	"spesa/internal/core"
	applog "spesa/internal/log"
	"spesa/internal/services"
)

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request, user core.User) {
	cats, err := s.deps.Categories.List(r.Context(), user.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newCategoryViews(cats))
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request, user core.User) {
	p := NewRequestBodyParser(w, r)
	if err := p.Parse(); err != nil {
		s.writeError(w, r, err)
		return
	}
	c, err := s.deps.Categories.Create(r.Context(), user.ID, services.CategoryInput{Name: p.Get("name")})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	applog.FromContext(r.Context()).InfoContext(r.Context(), "Category created",
		applog.FieldCategoryID, c.ID, applog.FieldCategory, c.Name)
	writeJSON(w, http.StatusCreated, categoryView{ID: c.ID, Name: c.Name})
}

// handleDeleteCategory removes the category and every expense filed under it.
func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request, user core.User) {
	id, err := pathID(r, "category")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.deps.Categories.Delete(r.Context(), user.ID, id); err != nil {
		s.writeError(w, r, err)
		return
	}
	applog.FromContext(r.Context()).InfoContext(r.Context(), "Category deleted", applog.FieldCategoryID, id)
	w.WriteHeader(http.StatusNoContent)
}
