package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"spesa/internal/core"
	applog "spesa/internal/log"
)

// CreateCategory adds a category for userID. A name already used by the same
// user yields core.ErrDuplicateCategory.
func (r *SQLiteRepository) CreateCategory(ctx context.Context, userID int64, name string) (core.Category, error) {
	c := core.Category{UserID: userID, Name: strings.TrimSpace(name)}
	if err := c.Validate(); err != nil {
		return core.Category{}, err
	}
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM categories WHERE user_id = ? AND name = ?`, userID, c.Name).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check category: %w", err)
		}
		if exists > 0 {
			return core.ErrDuplicateCategory
		}
		res, err := tx.ExecContext(ctx, `INSERT INTO categories (user_id, name) VALUES (?, ?)`, userID, c.Name)
		if err != nil {
			if isUniqueViolation(err) {
				return core.ErrDuplicateCategory
			}
			return fmt.Errorf("insert category: %w", err)
		}
		c.ID, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return core.Category{}, err
	}
	return c, nil
}

// ListCategories returns the user's categories ordered by name.
func (r *SQLiteRepository) ListCategories(ctx context.Context, userID int64) ([]core.Category, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, name FROM categories WHERE user_id = ? ORDER BY name, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	categories := []core.Category{}
	for rows.Next() {
		var c core.Category
		if err := rows.Scan(&c.ID, &c.UserID, &c.Name); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

// GetCategory loads a category owned by userID.
func (r *SQLiteRepository) GetCategory(ctx context.Context, userID, id int64) (core.Category, error) {
	var c core.Category
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, name FROM categories WHERE id = ? AND user_id = ?`, id, userID).
		Scan(&c.ID, &c.UserID, &c.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Category{}, &core.NotFoundError{Resource: "category", ID: id}
	}
	if err != nil {
		return core.Category{}, fmt.Errorf("get category: %w", err)
	}
	return c, nil
}

// DeleteCategory removes the category and its expenses in one transaction.
func (r *SQLiteRepository) DeleteCategory(ctx context.Context, userID, id int64) error {
	var removed int64
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		if err := checkCategoryOwner(ctx, tx, userID, id); err != nil {
			if errors.Is(err, core.ErrCategoryOwnership) {
				return &core.NotFoundError{Resource: "category", ID: id}
			}
			return err
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM expenses WHERE category_id = ? AND user_id = ?`, id, userID)
		if err != nil {
			return fmt.Errorf("delete category expenses: %w", err)
		}
		removed, _ = res.RowsAffected()
		if _, err := tx.ExecContext(ctx, `DELETE FROM categories WHERE id = ? AND user_id = ?`, id, userID); err != nil {
			return fmt.Errorf("delete category: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	r.logger.InfoContext(ctx, "Category deleted",
		applog.FieldUserID, userID, applog.FieldCategoryID, id, "expenses_removed", removed)
	return nil
}

// checkCategoryOwner fails with core.ErrCategoryOwnership when the category is
// missing or owned by someone else.
func checkCategoryOwner(ctx context.Context, tx *sql.Tx, userID, categoryID int64) error {
	var owner int64
	err := tx.QueryRowContext(ctx, `SELECT user_id FROM categories WHERE id = ?`, categoryID).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return core.ErrCategoryOwnership
	}
	if err != nil {
		return fmt.Errorf("load category owner: %w", err)
	}
	if owner != userID {
		return core.ErrCategoryOwnership
	}
	return nil
}

// EnsureDefaultCategories seeds the defaults when the user has no categories
// left. It reports whether anything was inserted.
func (r *SQLiteRepository) EnsureDefaultCategories(ctx context.Context, userID int64) (bool, error) {
	seeded := false
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		var n int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM categories WHERE user_id = ?`, userID).Scan(&n); err != nil {
			return fmt.Errorf("count categories: %w", err)
		}
		if n > 0 {
			return nil
		}
		for _, name := range core.DefaultCategories {
			if _, err := tx.ExecContext(ctx, `INSERT INTO categories (user_id, name) VALUES (?, ?)`, userID, name); err != nil {
				return fmt.Errorf("seed category %q: %w", name, err)
			}
		}
		seeded = true
		return nil
	})
	return seeded, err
}
