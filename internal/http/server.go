// Package http wires routes, middleware and handlers for the expense tracker.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"spesa/internal/core"
	"spesa/internal/drive"
	applog "spesa/internal/log"
	"spesa/internal/metrics"
	"spesa/internal/middleware/ratelimit"
	"spesa/internal/middleware/security"
	"spesa/internal/middleware/session"
	"spesa/internal/middleware/trace"
	"spesa/internal/services"
)

// UserService registers, authenticates and removes users.
type UserService interface {
	Register(ctx context.Context, in services.RegisterInput) (core.User, error)
	Authenticate(ctx context.Context, username, password string) (core.User, error)
	UpdateEmail(ctx context.Context, userID int64, email string) error
	Delete(ctx context.Context, userID int64) error
}

// ExpenseService is the expense CRUD used by the handlers.
type ExpenseService interface {
	Create(ctx context.Context, userID int64, in services.ExpenseInput) (core.Expense, error)
	Update(ctx context.Context, userID, id int64, in services.ExpenseInput) (core.Expense, error)
	Delete(ctx context.Context, userID, id int64) error
	Get(ctx context.Context, userID, id int64) (core.Expense, error)
	List(ctx context.Context, userID int64) ([]core.Expense, error)
	ListPeriod(ctx context.Context, userID int64, p core.Period) ([]core.Expense, error)
}

// CategoryService is the category CRUD used by the handlers.
type CategoryService interface {
	Create(ctx context.Context, userID int64, in services.CategoryInput) (core.Category, error)
	Delete(ctx context.Context, userID, id int64) error
	List(ctx context.Context, userID int64) ([]core.Category, error)
	EnsureDefaults(ctx context.Context, userID int64) error
}

// Reports builds monthly reports.
type Reports interface {
	MonthlyReport(ctx context.Context, userID int64, p core.Period) (core.Report, error)
	AvailableYears(ctx context.Context, userID int64) ([]int, error)
}

// Mailer sends a report to its owner.
type Mailer interface {
	SendReport(ctx context.Context, user core.User, r core.Report) error
}

// Drive uploads exports and runs the authorization flow. A nil Drive disables
// the upload routes.
type Drive interface {
	Status(ctx context.Context, userID int64) (drive.State, error)
	Upload(ctx context.Context, userID int64, p core.Period) (drive.UploadResult, error)
	BeginAuthorization(ctx context.Context, userID int64, sessionID string, p core.Period) (string, error)
	CompleteAuthorization(ctx context.Context, userID int64, sessionID, state, code string) (core.PendingAuthorization, error)
	Disconnect(ctx context.Context, userID int64) error
}

// Pinger reports whether the database is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the components the server routes requests to.
type Deps struct {
	Users      UserService
	Expenses   ExpenseService
	Categories CategoryService
	Reports    Reports
	Mailer     Mailer
	Drive      Drive
	DB         Pinger
	Metrics    *metrics.Metrics
	Logger     *applog.Logger

	RateLimit    ratelimit.Config
	SecureCookie bool
	Now          func() time.Time
}

type Server struct {
	http.Server
	deps     Deps
	now      func() time.Time
	logger   *applog.Logger
	limiter  *ratelimit.Limiter
	detector *security.Detector

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = applog.Default(applog.ComponentHTTP)
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New()
	}

	s := &Server{
		deps:     deps,
		now:      deps.Now,
		logger:   deps.Logger.WithComponent(applog.ComponentHTTP),
		limiter:  ratelimit.NewLimiter(deps.RateLimit),
		detector: security.NewDetector(deps.Logger.WithComponent(applog.ComponentSecurity)),
	}
	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.middleware(s.routes()),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.Handle("GET /metrics", s.deps.Metrics.Handler())

	mux.HandleFunc("POST /register", s.handleRegister)

	mux.HandleFunc("GET /{$}", s.authenticated(s.handleDashboard))
	mux.HandleFunc("POST /expenses", s.authenticated(s.handleCreateExpense))
	mux.HandleFunc("GET /expenses/{id}", s.authenticated(s.handleGetExpense))
	mux.HandleFunc("POST /expenses/{id}", s.authenticated(s.handleUpdateExpense))
	mux.HandleFunc("POST /expenses/{id}/delete", s.authenticated(s.handleDeleteExpense))

	mux.HandleFunc("GET /categories", s.authenticated(s.handleListCategories))
	mux.HandleFunc("POST /categories", s.authenticated(s.handleCreateCategory))
	mux.HandleFunc("POST /categories/{id}/delete", s.authenticated(s.handleDeleteCategory))

	mux.HandleFunc("GET /report", s.authenticated(s.handleReport))
	mux.HandleFunc("GET /export-csv", s.authenticated(s.handleExportCSV))
	mux.HandleFunc("POST /email-report", s.authenticated(s.handleEmailReport))

	mux.HandleFunc("GET /upload-to-drive", s.authenticated(s.handleUploadToDrive))
	mux.HandleFunc("POST /upload-to-drive", s.authenticated(s.handleUploadToDrive))
	mux.HandleFunc("GET /oauth2callback", s.authenticated(s.handleOAuthCallback))
	mux.HandleFunc("POST /drive/disconnect", s.authenticated(s.handleDriveDisconnect))

	mux.HandleFunc("POST /account/email", s.authenticated(s.handleUpdateEmail))
	mux.HandleFunc("POST /account/delete", s.authenticated(s.handleDeleteAccount))

	return mux
}

// middleware builds trace -> security -> rate limit -> metrics -> session -> mux.
func (s *Server) middleware(next http.Handler) http.Handler {
	h := session.Middleware(s.deps.SecureCookie)(next)
	h = s.deps.Metrics.Middleware(h)
	h = s.limiter.Middleware(s.detector.ClientIP, s.rateLimited)(h)
	h = s.detector.Middleware(h)
	h = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(h)
	return trace.NewMiddleware(s.logger, s.detector.ClientIP).Middleware(h)
}

func (s *Server) rateLimited(w http.ResponseWriter, r *http.Request) {
	s.deps.Metrics.RateLimited()
	applog.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
		applog.FieldClientIP, s.detector.ClientIP(r), applog.FieldMethod, r.Method, applog.FieldPath, r.URL.Path)
	w.Header().Set("Retry-After", "1")
	writeJSON(w, http.StatusTooManyRequests, errorBody{Error: "rate limit exceeded, please try again later"})
}

// Shutdown stops background goroutines and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.DB != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.deps.DB.Ping(ctx); err != nil {
			s.logger.WarnContext(r.Context(), "Readiness check failed", applog.FieldError, err)
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
