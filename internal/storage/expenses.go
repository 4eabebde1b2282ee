package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"spesa/internal/core"
	applog "spesa/internal/log"
)

const expenseSelect = `SELECT e.id, e.user_id, e.category_id, c.name, e.amount_cents, e.description, e.date, e.created_at
	FROM expenses e JOIN categories c ON c.id = e.category_id`

func scanExpense(row interface{ Scan(...any) error }) (core.Expense, error) {
	var (
		e           core.Expense
		amountCents int64
		date        string
		createdAt   string
	)
	if err := row.Scan(&e.ID, &e.UserID, &e.CategoryID, &e.CategoryName, &amountCents, &e.Description, &date, &createdAt); err != nil {
		return core.Expense{}, err
	}
	d, err := core.ParseDate(date)
	if err != nil {
		return core.Expense{}, fmt.Errorf("expense %d has malformed date %q", e.ID, date)
	}
	e.Date = d
	e.Amount = core.FromCents(amountCents)
	e.CreatedAt = parseTimestamp(createdAt)
	return e, nil
}

// CreateExpense stores e after checking, inside the same transaction, that the
// category belongs to e.UserID. An expense failing core validation is rejected
// before touching the database.
func (r *SQLiteRepository) CreateExpense(ctx context.Context, e core.Expense) (core.Expense, error) {
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}
	createdAt := r.timestamp()
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		if err := checkCategoryOwner(ctx, tx, e.UserID, e.CategoryID); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO expenses (user_id, category_id, amount_cents, description, date, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
			e.UserID, e.CategoryID, core.ToCents(e.Amount), e.Description, e.Date.String(), createdAt)
		if err != nil {
			return fmt.Errorf("insert expense: %w", err)
		}
		e.ID, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return core.Expense{}, err
	}
	e.CreatedAt = parseTimestamp(createdAt)

	fields := applog.NewFields().
		WithUser(e.UserID).
		WithExpense(e.ID, core.FormatAmount(e.Amount), e.CategoryName).
		WithOperation(applog.OpCreate)
	r.logger.InfoContext(ctx, "Expense saved", fields.ToSlice()...)
	return e, nil
}

// UpdateExpense rewrites an expense owned by e.UserID.
func (r *SQLiteRepository) UpdateExpense(ctx context.Context, e core.Expense) error {
	if err := e.Validate(); err != nil {
		return err
	}
	return r.withTx(ctx, func(tx *sql.Tx) error {
		if err := checkCategoryOwner(ctx, tx, e.UserID, e.CategoryID); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE expenses SET category_id = ?, amount_cents = ?, description = ?, date = ? WHERE id = ? AND user_id = ?`,
			e.CategoryID, core.ToCents(e.Amount), e.Description, e.Date.String(), e.ID, e.UserID)
		if err != nil {
			return fmt.Errorf("update expense: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return &core.NotFoundError{Resource: "expense", ID: e.ID}
		}
		return nil
	})
}

// DeleteExpense removes an expense owned by userID.
func (r *SQLiteRepository) DeleteExpense(ctx context.Context, userID, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM expenses WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &core.NotFoundError{Resource: "expense", ID: id}
	}
	return nil
}

// GetExpense loads an expense owned by userID.
func (r *SQLiteRepository) GetExpense(ctx context.Context, userID, id int64) (core.Expense, error) {
	e, err := scanExpense(r.db.QueryRowContext(ctx, expenseSelect+` WHERE e.id = ? AND e.user_id = ?`, id, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Expense{}, &core.NotFoundError{Resource: "expense", ID: id}
	}
	if err != nil {
		return core.Expense{}, fmt.Errorf("get expense: %w", err)
	}
	return e, nil
}

// ListExpenses returns all of the user's expenses, newest first.
func (r *SQLiteRepository) ListExpenses(ctx context.Context, userID int64) ([]core.Expense, error) {
	return r.queryExpenses(ctx,
		expenseSelect+` WHERE e.user_id = ? ORDER BY e.date DESC, e.id DESC`, userID)
}

// ListExpensesByPeriod returns the user's expenses in the period, oldest first.
func (r *SQLiteRepository) ListExpensesByPeriod(ctx context.Context, userID int64, p core.Period) ([]core.Expense, error) {
	return r.queryExpenses(ctx,
		expenseSelect+` WHERE e.user_id = ? AND e.date >= ? AND e.date < ? ORDER BY e.date ASC, e.id ASC`,
		userID, p.Start().String(), p.End().String())
}

func (r *SQLiteRepository) queryExpenses(ctx context.Context, query string, args ...any) ([]core.Expense, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	defer rows.Close()

	expenses := []core.Expense{}
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		expenses = append(expenses, e)
	}
	return expenses, rows.Err()
}

// ExpenseYears returns the distinct years with expenses for the user, descending.
func (r *SQLiteRepository) ExpenseYears(ctx context.Context, userID int64) ([]int, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT CAST(substr(date, 1, 4) AS INTEGER) AS y FROM expenses WHERE user_id = ? ORDER BY y DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("expense years: %w", err)
	}
	defer rows.Close()

	years := []int{}
	for rows.Next() {
		var y int
		if err := rows.Scan(&y); err != nil {
			return nil, fmt.Errorf("scan year: %w", err)
		}
		years = append(years, y)
	}
	return years, rows.Err()
}
