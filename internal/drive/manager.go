// Package drive manages per-user Google Drive authorization and uploads
// expense exports.
//
// A user moves through Unauthorized, AuthorizationPending (consent page
// issued), Authorized (usable token) and Expired (token past expiry). An
// expired credential is refreshed at most once at a time per user; if that is
// impossible the credential is dropped and the user is Unauthorized again.
package drive

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"spesa/internal/core"
	"spesa/internal/export"
	applog "spesa/internal/log"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

// State of a user's cloud authorization.
type State int

const (
	Unauthorized State = iota
	AuthorizationPending
	Authorized
	Expired
)

func (s State) String() string {
	switch s {
	case AuthorizationPending:
		return "authorization_pending"
	case Authorized:
		return "authorized"
	case Expired:
		return "expired"
	default:
		return "unauthorized"
	}
}

// PendingStore keeps the anti-forgery state issued per browser session.
type PendingStore interface {
	SavePendingAuthorization(ctx context.Context, p core.PendingAuthorization) error
	TakePendingAuthorization(ctx context.Context, sessionID string) (core.PendingAuthorization, bool, error)
	HasPendingAuthorization(ctx context.Context, userID int64) (bool, error)
}

// ExpenseLister supplies the rows to upload.
type ExpenseLister interface {
	ListExpensesByPeriod(ctx context.Context, userID int64, p core.Period) ([]core.Expense, error)
}

// refreshTimeout bounds a token refresh against the provider.
const refreshTimeout = 30 * time.Second

// Manager runs the authorization state machine and uploads exports.
type Manager struct {
	provider Provider
	uploader Uploader
	creds    CredentialStore
	pending  PendingStore
	expenses ExpenseLister
	now      func() time.Time
	logger   *applog.Logger

	onRefresh func(error)
	refreshes singleflight.Group
	locks     sync.Map // user id -> *sync.Mutex
}

func NewManager(provider Provider, uploader Uploader, creds CredentialStore, pending PendingStore, expenses ExpenseLister) *Manager {
	return &Manager{
		provider: provider,
		uploader: uploader,
		creds:    creds,
		pending:  pending,
		expenses: expenses,
		now:      time.Now,
		logger:   applog.Default(applog.ComponentDrive),
	}
}

// WithClock overrides the current time source.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// WithRefreshObserver is called after every refresh attempt against the provider.
func (m *Manager) WithRefreshObserver(fn func(error)) *Manager {
	m.onRefresh = fn
	return m
}

// Status reports the user's authorization state.
func (m *Manager) Status(ctx context.Context, userID int64) (State, error) {
	cred, ok, err := m.creds.Load(ctx, userID)
	if err != nil {
		return Unauthorized, err
	}
	if ok {
		if cred.Valid(m.now()) {
			return Authorized, nil
		}
		return Expired, nil
	}
	pending, err := m.pending.HasPendingAuthorization(ctx, userID)
	if err != nil {
		return Unauthorized, err
	}
	if pending {
		return AuthorizationPending, nil
	}
	return Unauthorized, nil
}

// BeginAuthorization issues a fresh state token bound to sessionID, remembers
// the period to upload afterwards and returns the consent page URL.
func (m *Manager) BeginAuthorization(ctx context.Context, userID int64, sessionID string, p core.Period) (string, error) {
	if sessionID == "" {
		return "", errors.New("begin authorization: missing session")
	}
	state, err := newState()
	if err != nil {
		return "", err
	}
	err = m.pending.SavePendingAuthorization(ctx, core.PendingAuthorization{
		SessionID: sessionID,
		UserID:    userID,
		State:     state,
		Period:    p,
	})
	if err != nil {
		return "", err
	}
	m.logger.InfoContext(ctx, "Authorization started",
		applog.FieldUserID, userID, applog.FieldOperation, applog.OpAuthorize)
	return m.provider.AuthCodeURL(state), nil
}

// CompleteAuthorization validates the callback state and stores the
// exchanged credential. The pending record is consumed whatever the outcome.
// A missing record, a different user or a mismatching state yields
// *core.StateMismatchError and nothing is stored.
func (m *Manager) CompleteAuthorization(ctx context.Context, userID int64, sessionID, state, code string) (core.PendingAuthorization, error) {
	p, ok, err := m.pending.TakePendingAuthorization(ctx, sessionID)
	if err != nil {
		return core.PendingAuthorization{}, err
	}
	if !ok || state == "" || p.UserID != userID ||
		subtle.ConstantTimeCompare([]byte(p.State), []byte(state)) != 1 {
		m.logger.WarnContext(ctx, "OAuth state mismatch", applog.FieldUserID, userID)
		return core.PendingAuthorization{}, &core.StateMismatchError{}
	}

	// Past this point the pending period is returned even on failure so the
	// caller can send the user back where they started.
	tok, err := m.provider.Exchange(ctx, code)
	if err != nil {
		return p, fmt.Errorf("exchange authorization code: %w", err)
	}
	if err := m.creds.Save(ctx, userID, CredentialFromToken(tok)); err != nil {
		return p, err
	}
	m.logger.InfoContext(ctx, "Authorization completed", applog.FieldUserID, userID)
	return p, nil
}

// Token returns a usable access token for the user, refreshing it if needed.
// It returns core.ErrAuthorizationRequired when the user must consent again.
func (m *Manager) Token(ctx context.Context, userID int64) (*oauth2.Token, error) {
	cred, ok, err := m.creds.Load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, core.ErrAuthorizationRequired
	}
	if cred.Valid(m.now()) {
		return cred.Token(), nil
	}

	// The shared refresh outlives any single caller. A caller that gives up
	// gets its own context error while the refresh carries on for the others.
	ch := m.refreshes.DoChan(strconv.FormatInt(userID, 10), func() (any, error) {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
		defer cancel()
		return m.refresh(rctx, userID)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*oauth2.Token), nil
	}
}

func (m *Manager) userLock(userID int64) *sync.Mutex {
	mu, _ := m.locks.LoadOrStore(userID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// refresh runs under the user's lock and re-reads the credential so a caller
// that waited behind another refresh reuses its result.
func (m *Manager) refresh(ctx context.Context, userID int64) (*oauth2.Token, error) {
	mu := m.userLock(userID)
	mu.Lock()
	defer mu.Unlock()

	cred, ok, err := m.creds.Load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, core.ErrAuthorizationRequired
	}
	if cred.Valid(m.now()) {
		return cred.Token(), nil
	}

	log := m.logger.WithUser(userID)
	if cred.RefreshToken == "" {
		log.InfoContext(ctx, "Credential expired without refresh token")
		return nil, m.forget(ctx, userID)
	}

	tok, err := m.provider.Refresh(ctx, cred.Token())
	if m.onRefresh != nil {
		m.onRefresh(err)
	}
	if err != nil {
		// A refresh cut short says nothing about the grant itself.
		if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			log.WarnContext(ctx, "Token refresh interrupted", applog.FieldError, err)
			return nil, fmt.Errorf("refresh token: %w", err)
		}
		log.WarnContext(ctx, "Token refresh failed", applog.FieldError, err)
		return nil, m.forget(ctx, userID)
	}

	next := CredentialFromToken(tok)
	if next.RefreshToken == "" {
		next.RefreshToken = cred.RefreshToken
	}
	if next.Scope == "" {
		next.Scope = cred.Scope
	}
	if err := m.creds.Save(ctx, userID, next); err != nil {
		return nil, err
	}
	log.InfoContext(ctx, "Token refreshed", applog.FieldOperation, applog.OpRefresh)
	return next.Token(), nil
}

func (m *Manager) forget(ctx context.Context, userID int64) error {
	if err := m.creds.Delete(ctx, userID); err != nil {
		return err
	}
	return core.ErrAuthorizationRequired
}

// Upload exports the period's expenses as CSV to the user's drive.
func (m *Manager) Upload(ctx context.Context, userID int64, p core.Period) (UploadResult, error) {
	if err := p.Validate(); err != nil {
		return UploadResult{}, err
	}
	tok, err := m.Token(ctx, userID)
	if err != nil {
		return UploadResult{}, err
	}

	expenses, err := m.expenses.ListExpensesByPeriod(ctx, userID, p)
	if err != nil {
		return UploadResult{}, fmt.Errorf("load expenses: %w", err)
	}
	content, err := export.EncodeCSV(expenses)
	if err != nil {
		return UploadResult{}, err
	}

	name := export.DriveFileName(p)
	res, err := m.uploader.Upload(ctx, tok, name, export.ContentType, content)
	if err != nil {
		m.logger.WarnContext(ctx, "Upload failed",
			applog.FieldUserID, userID, applog.FieldFileName, name, applog.FieldError, err)
		return UploadResult{}, &core.UploadError{Err: err}
	}
	m.logger.InfoContext(ctx, "Upload completed",
		applog.FieldUserID, userID, applog.FieldFileName, name, applog.FieldFileID, res.FileID)
	return res, nil
}

// Disconnect forgets the user's credential.
func (m *Manager) Disconnect(ctx context.Context, userID int64) error {
	return m.creds.Delete(ctx, userID)
}

func newState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
