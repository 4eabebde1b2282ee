package http

import (
	"net/http"

	"spesa/internal/core"
	applog "spesa/internal/log"
	"spesa/internal/services"
)

// handleDashboard lists the user's expenses, newest first, together with
// their categories. A user left without categories gets the defaults back.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request, user core.User) {
	ctx := r.Context()
	cats, err := s.deps.Categories.List(ctx, user.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if len(cats) == 0 {
		if err := s.deps.Categories.EnsureDefaults(ctx, user.ID); err != nil {
			s.writeError(w, r, err)
			return
		}
		if cats, err = s.deps.Categories.List(ctx, user.ID); err != nil {
			s.writeError(w, r, err)
			return
		}
	}

	expenses, err := s.deps.Expenses.List(ctx, user.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, dashboardView{
		User:       newUserView(user),
		Expenses:   newExpenseViews(expenses),
		Categories: newCategoryViews(cats),
	})
}

func parseExpenseInput(w http.ResponseWriter, r *http.Request) (services.ExpenseInput, error) {
	p := NewRequestBodyParser(w, r)
	if err := p.Parse(); err != nil {
		return services.ExpenseInput{}, err
	}
	return services.ExpenseInput{
		CategoryID:  p.Get("category"),
		Amount:      p.Get("amount"),
		Description: p.Get("description"),
		Date:        p.Get("date"),
	}, nil
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request, user core.User) {
	in, err := parseExpenseInput(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	e, err := s.deps.Expenses.Create(r.Context(), user.ID, in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.deps.Metrics.ExpenseWrite("create")
	applog.FromContext(r.Context()).InfoContext(r.Context(), "Expense created",
		applog.NewFields().WithExpense(e.ID, core.FormatAmount(e.Amount), e.CategoryName).WithOperation("create").ToSlice()...)
	writeJSON(w, http.StatusCreated, newExpenseView(e))
}

func (s *Server) handleGetExpense(w http.ResponseWriter, r *http.Request, user core.User) {
	id, err := pathID(r, "expense")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	e, err := s.deps.Expenses.Get(r.Context(), user.ID, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newExpenseView(e))
}

func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request, user core.User) {
	id, err := pathID(r, "expense")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	in, err := parseExpenseInput(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	e, err := s.deps.Expenses.Update(r.Context(), user.ID, id, in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.deps.Metrics.ExpenseWrite("update")
	writeJSON(w, http.StatusOK, newExpenseView(e))
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request, user core.User) {
	id, err := pathID(r, "expense")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.deps.Expenses.Delete(r.Context(), user.ID, id); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.deps.Metrics.ExpenseWrite("delete")
	applog.FromContext(r.Context()).InfoContext(r.Context(), "Expense deleted", applog.FieldExpenseID, id)
	w.WriteHeader(http.StatusNoContent)
}
