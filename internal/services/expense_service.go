package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"spesa/internal/core"
	applog "spesa/internal/log"
	"spesa/internal/storage"
	"spesa/internal/validation"
)

// ReportInvalidator drops cached reports after a user's data changes.
type ReportInvalidator interface {
	Invalidate(userID int64)
}

// ExpenseInput is the raw expense form.
type ExpenseInput struct {
	CategoryID  string `json:"category" validate:"required,numeric"`
	Amount      string `json:"amount" validate:"required,amount"`
	Description string `json:"description" validate:"max=255"`
	Date        string `json:"date" validate:"omitempty,isodate"`
}

// lineEndings stores descriptions with LF line endings only.
var lineEndings = strings.NewReplacer("\r\n", "\n", "\r", "\n")

// ExpenseService validates and persists expenses for one user at a time.
type ExpenseService struct {
	storage   *storage.SQLiteRepository
	reports   ReportInvalidator
	validator *validation.Validator
	now       func() time.Time
	logger    *applog.Logger
}

func NewExpenseService(storage *storage.SQLiteRepository, reports ReportInvalidator) *ExpenseService {
	return &ExpenseService{
		storage:   storage,
		reports:   reports,
		validator: validation.Default(),
		now:       time.Now,
		logger:    applog.Default(applog.ComponentExpense),
	}
}

// WithClock overrides the time used for the default expense date.
func (s *ExpenseService) WithClock(now func() time.Time) *ExpenseService {
	s.now = now
	return s
}

func (s *ExpenseService) parse(userID int64, in ExpenseInput) (core.Expense, error) {
	if err := s.validator.Struct(in); err != nil {
		return core.Expense{}, err
	}
	categoryID, err := strconv.ParseInt(strings.TrimSpace(in.CategoryID), 10, 64)
	if err != nil || categoryID <= 0 {
		return core.Expense{}, core.NewValidationError("category", "select a valid choice")
	}
	amount, err := core.ParseAmount(in.Amount)
	if err != nil {
		return core.Expense{}, core.NewValidationError("amount", "enter a non-negative amount with at most two decimal places")
	}
	date := core.Today(s.now())
	if strings.TrimSpace(in.Date) != "" {
		if date, err = core.ParseDate(in.Date); err != nil {
			return core.Expense{}, core.NewValidationError("date", "enter a date as YYYY-MM-DD")
		}
	}
	return core.Expense{
		UserID:      userID,
		CategoryID:  categoryID,
		Amount:      amount,
		Description: lineEndings.Replace(strings.TrimSpace(in.Description)),
		Date:        date,
	}, nil
}

// Create records a new expense. The category must belong to userID.
func (s *ExpenseService) Create(ctx context.Context, userID int64, in ExpenseInput) (core.Expense, error) {
	e, err := s.parse(userID, in)
	if err != nil {
		return core.Expense{}, err
	}
	created, err := s.storage.CreateExpense(ctx, e)
	if err != nil {
		return core.Expense{}, mapExpenseError(err)
	}
	s.invalidate(userID)
	return s.storage.GetExpense(ctx, userID, created.ID)
}

// Update replaces an expense owned by userID.
func (s *ExpenseService) Update(ctx context.Context, userID, id int64, in ExpenseInput) (core.Expense, error) {
	if _, err := s.storage.GetExpense(ctx, userID, id); err != nil {
		return core.Expense{}, err
	}
	e, err := s.parse(userID, in)
	if err != nil {
		return core.Expense{}, err
	}
	e.ID = id
	if err := s.storage.UpdateExpense(ctx, e); err != nil {
		return core.Expense{}, mapExpenseError(err)
	}
	s.invalidate(userID)
	return s.storage.GetExpense(ctx, userID, id)
}

func (s *ExpenseService) Delete(ctx context.Context, userID, id int64) error {
	if err := s.storage.DeleteExpense(ctx, userID, id); err != nil {
		return err
	}
	s.invalidate(userID)
	s.logger.InfoContext(ctx, "Expense deleted", applog.FieldUserID, userID, applog.FieldExpenseID, id)
	return nil
}

func (s *ExpenseService) Get(ctx context.Context, userID, id int64) (core.Expense, error) {
	return s.storage.GetExpense(ctx, userID, id)
}

// List returns the user's expenses, newest first.
func (s *ExpenseService) List(ctx context.Context, userID int64) ([]core.Expense, error) {
	return s.storage.ListExpenses(ctx, userID)
}

// ListPeriod returns the period's expenses, oldest first.
func (s *ExpenseService) ListPeriod(ctx context.Context, userID int64, p core.Period) ([]core.Expense, error) {
	return s.storage.ListExpensesByPeriod(ctx, userID, p)
}

func (s *ExpenseService) invalidate(userID int64) {
	if s.reports != nil {
		s.reports.Invalidate(userID)
	}
}

func mapExpenseError(err error) error {
	if errors.Is(err, core.ErrCategoryOwnership) {
		return core.NewValidationError("category", "select a valid choice")
	}
	return fmt.Errorf("save expense: %w", err)
}
