package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"spesa/internal/core"
	applog "spesa/internal/log"
)

// PendingAuthorizationTTL is how long an issued state token stays redeemable.
const PendingAuthorizationTTL = 15 * time.Minute

// pendingCutoff is the oldest created_at still considered pending.
func (r *SQLiteRepository) pendingCutoff() string {
	return r.now().Add(-PendingAuthorizationTTL).UTC().Format(timestampLayout)
}

// SavePendingAuthorization records the state issued to a session, replacing
// any earlier one for the same session.
func (r *SQLiteRepository) SavePendingAuthorization(ctx context.Context, p core.PendingAuthorization) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO oauth_states (session_id, user_id, state, year, month, created_at) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET user_id = excluded.user_id, state = excluded.state,
			year = excluded.year, month = excluded.month, created_at = excluded.created_at`,
		p.SessionID, p.UserID, p.State, p.Period.Year, p.Period.Month, r.timestamp())
	if err != nil {
		return fmt.Errorf("save pending authorization: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, `DELETE FROM oauth_states WHERE created_at < ?`, r.pendingCutoff()); err != nil {
		r.logger.WarnContext(ctx, "Failed to prune expired authorizations", applog.FieldError, err)
	}
	return nil
}

// TakePendingAuthorization removes and returns the session's pending record.
// ok is false when none exists or it is older than PendingAuthorizationTTL.
func (r *SQLiteRepository) TakePendingAuthorization(ctx context.Context, sessionID string) (p core.PendingAuthorization, ok bool, err error) {
	err = r.withTx(ctx, func(tx *sql.Tx) error {
		var createdAt string
		err := tx.QueryRowContext(ctx,
			`SELECT session_id, user_id, state, year, month, created_at FROM oauth_states WHERE session_id = ?`, sessionID).
			Scan(&p.SessionID, &p.UserID, &p.State, &p.Period.Year, &p.Period.Month, &createdAt)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("load pending authorization: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM oauth_states WHERE session_id = ?`, sessionID); err != nil {
			return fmt.Errorf("consume pending authorization: %w", err)
		}
		if createdAt < r.pendingCutoff() {
			p = core.PendingAuthorization{}
			return nil
		}
		ok = true
		return nil
	})
	if err != nil {
		return core.PendingAuthorization{}, false, err
	}
	return p, ok, nil
}

// HasPendingAuthorization reports whether any session of userID awaits a
// callback that has not expired.
func (r *SQLiteRepository) HasPendingAuthorization(ctx context.Context, userID int64) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM oauth_states WHERE user_id = ? AND created_at >= ?`, userID, r.pendingCutoff()).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("count pending authorizations: %w", err)
	}
	return n > 0, nil
}
