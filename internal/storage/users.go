package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"spesa/internal/core"
	applog "spesa/internal/log"
)

// CreateUser inserts the user and seeds the default categories in one transaction.
func (r *SQLiteRepository) CreateUser(ctx context.Context, username, email, passwordHash string) (core.User, error) {
	user := core.User{Username: username, Email: email, PasswordHash: passwordHash}
	createdAt := r.timestamp()

	err := r.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO users (username, email, password_hash, created_at) VALUES (?, ?, ?, ?)`,
			username, email, passwordHash, createdAt)
		if err != nil {
			if isUniqueViolation(err) {
				return core.ErrDuplicateUser
			}
			return fmt.Errorf("insert user: %w", err)
		}
		if user.ID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("user id: %w", err)
		}
		for _, name := range core.DefaultCategories {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO categories (user_id, name) VALUES (?, ?)`, user.ID, name); err != nil {
				return fmt.Errorf("seed category %q: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		return core.User{}, err
	}
	user.CreatedAt = parseTimestamp(createdAt)

	r.logger.InfoContext(ctx, "User created", applog.FieldUserID, user.ID, "username", username)
	return user, nil
}

const userColumns = `id, username, email, password_hash, created_at`

func scanUser(row interface{ Scan(...any) error }) (core.User, error) {
	var (
		u         core.User
		createdAt string
	)
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &createdAt); err != nil {
		return core.User{}, err
	}
	u.CreatedAt = parseTimestamp(createdAt)
	return u, nil
}

// GetUser loads a user by id.
func (r *SQLiteRepository) GetUser(ctx context.Context, id int64) (core.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return core.User{}, &core.NotFoundError{Resource: "user", ID: id}
	}
	if err != nil {
		return core.User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// GetUserByUsername loads a user by username.
func (r *SQLiteRepository) GetUserByUsername(ctx context.Context, username string) (core.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE username = ?`, username))
	if errors.Is(err, sql.ErrNoRows) {
		return core.User{}, &core.NotFoundError{Resource: "user"}
	}
	if err != nil {
		return core.User{}, fmt.Errorf("get user by username: %w", err)
	}
	return u, nil
}

// ListUsersWithEmail returns every user that has a destination address.
func (r *SQLiteRepository) ListUsersWithEmail(ctx context.Context) ([]core.User, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE TRIM(email) <> '' ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := []core.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// UpdateUserEmail sets the user's email address.
func (r *SQLiteRepository) UpdateUserEmail(ctx context.Context, id int64, email string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET email = ? WHERE id = ?`, email, id)
	if err != nil {
		return fmt.Errorf("update email: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &core.NotFoundError{Resource: "user", ID: id}
	}
	return nil
}

// DeleteUser removes the user and everything they own in one transaction.
func (r *SQLiteRepository) DeleteUser(ctx context.Context, id int64) error {
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		for _, stmt := range []string{
			`DELETE FROM oauth_states WHERE user_id = ?`,
			`DELETE FROM report_deliveries WHERE user_id = ?`,
			`DELETE FROM expenses WHERE user_id = ?`,
			`DELETE FROM categories WHERE user_id = ?`,
		} {
			if _, err := tx.ExecContext(ctx, stmt, id); err != nil {
				return fmt.Errorf("cascade delete: %w", err)
			}
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("delete user: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return &core.NotFoundError{Resource: "user", ID: id}
		}
		return nil
	})
	if err != nil {
		return err
	}
	r.logger.InfoContext(ctx, "User deleted", applog.FieldUserID, id)
	return nil
}

// MarkReportScheduled records that the period's report was queued for the
// user. It returns false when it had already been recorded.
func (r *SQLiteRepository) MarkReportScheduled(ctx context.Context, userID int64, p core.Period) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO report_deliveries (user_id, year, month, scheduled_at) VALUES (?, ?, ?, ?)`,
		userID, p.Year, p.Month, r.timestamp())
	if err != nil {
		return false, fmt.Errorf("mark report scheduled: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// UnmarkReportScheduled forgets a scheduling record so the period can be queued again.
func (r *SQLiteRepository) UnmarkReportScheduled(ctx context.Context, userID int64, p core.Period) error {
	if _, err := r.db.ExecContext(ctx,
		`DELETE FROM report_deliveries WHERE user_id = ? AND year = ? AND month = ?`, userID, p.Year, p.Month); err != nil {
		return fmt.Errorf("unmark report scheduled: %w", err)
	}
	return nil
}
