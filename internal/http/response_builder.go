// Package http provides HTTP server and handler implementations.
//
// This file holds the JSON views returned by the handlers and the mapping
// from the error taxonomy to status codes.

package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"spesa/internal/core"
	applog "spesa/internal/log"
	"spesa/internal/middleware/session"
)

type errorBody struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

type userView struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

type categoryView struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type expenseView struct {
	ID          int64  `json:"id"`
	CategoryID  int64  `json:"category_id"`
	Category    string `json:"category"`
	Amount      string `json:"amount"`
	Description string `json:"description"`
	Date        string `json:"date"`
}

type periodView struct {
	Year  int    `json:"year"`
	Month int    `json:"month"`
	Label string `json:"label"`
}

type categoryTotalView struct {
	Name   string `json:"name"`
	Amount string `json:"amount"`
}

type reportView struct {
	Period     periodView          `json:"period"`
	Total      string              `json:"total"`
	ByCategory []categoryTotalView `json:"by_category"`
	Chart      core.ChartData      `json:"chart"`
	Years      []int               `json:"years"`
	Drive      string              `json:"drive"`
	Flashes    []session.Flash     `json:"flashes"`
}

type dashboardView struct {
	User       userView       `json:"user"`
	Expenses   []expenseView  `json:"expenses"`
	Categories []categoryView `json:"categories"`
}

func newUserView(u core.User) userView {
	return userView{ID: u.ID, Username: u.Username, Email: u.Email}
}

func newCategoryViews(cs []core.Category) []categoryView {
	out := make([]categoryView, 0, len(cs))
	for _, c := range cs {
		out = append(out, categoryView{ID: c.ID, Name: c.Name})
	}
	return out
}

func newExpenseView(e core.Expense) expenseView {
	return expenseView{
		ID:          e.ID,
		CategoryID:  e.CategoryID,
		Category:    e.CategoryName,
		Amount:      core.FormatAmount(e.Amount),
		Description: e.Description,
		Date:        e.Date.String(),
	}
}

func newExpenseViews(es []core.Expense) []expenseView {
	out := make([]expenseView, 0, len(es))
	for _, e := range es {
		out = append(out, newExpenseView(e))
	}
	return out
}

func newReportView(r core.Report) reportView {
	rows := make([]categoryTotalView, 0, len(r.ByCategory))
	for _, c := range r.ByCategory {
		rows = append(rows, categoryTotalView{Name: c.Name, Amount: core.FormatAmount(c.Amount)})
	}
	return reportView{
		Period:     periodView{Year: r.Period.Year, Month: r.Period.Month, Label: r.Period.Label()},
		Total:      core.FormatAmount(r.Total),
		ByCategory: rows,
		Chart:      r.Chart,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps err onto a status code. Unexpected errors are logged and
// reported with a generic message.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *core.ValidationError
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: ve.Message, Field: ve.Field})
	case core.IsNotFound(err):
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not found"})
	case errors.Is(err, errBadBody):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "malformed request body"})
	default:
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Request failed",
			applog.FieldMethod, r.Method, applog.FieldPath, r.URL.Path, applog.FieldError, err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal server error"})
	}
}

// reportURL is the report page for a period, the landing page of every
// email and upload redirect.
func reportURL(p core.Period) string {
	q := url.Values{}
	q.Set("year", strconv.Itoa(p.Year))
	q.Set("month", strconv.Itoa(p.Month))
	return "/report?" + q.Encode()
}
