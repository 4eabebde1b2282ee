package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"spesa/internal/core"
	applog "spesa/internal/log"
)

// ScheduleStore lists recipients and remembers which periods were queued.
type ScheduleStore interface {
	ListUsersWithEmail(ctx context.Context) ([]core.User, error)
	MarkReportScheduled(ctx context.Context, userID int64, p core.Period) (bool, error)
	UnmarkReportScheduled(ctx context.Context, userID int64, p core.Period) error
}

type Publisher interface {
	PublishReportEmail(ctx context.Context, userID int64, p core.Period) error
}

// Scheduler queues last month's report for every user with an email, once
// per period, polling on an interval.
type Scheduler struct {
	store     ScheduleStore
	publisher Publisher
	interval  time.Duration
	now       func() time.Time
	logger    *applog.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewScheduler(store ScheduleStore, publisher Publisher, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Scheduler{
		store:     store,
		publisher: publisher,
		interval:  interval,
		now:       time.Now,
		logger:    applog.Default(applog.ComponentWorker),
	}
}

// ScheduleMonthlyReports queues the period before now for every eligible user
// not yet queued and returns how many jobs were published.
func (s *Scheduler) ScheduleMonthlyReports(ctx context.Context, now time.Time) (int, error) {
	p := core.CurrentPeriod(now).Previous()
	users, err := s.store.ListUsersWithEmail(ctx)
	if err != nil {
		return 0, fmt.Errorf("list recipients: %w", err)
	}

	published := 0
	for _, u := range users {
		fresh, err := s.store.MarkReportScheduled(ctx, u.ID, p)
		if err != nil {
			return published, err
		}
		if !fresh {
			continue
		}
		if err := s.publisher.PublishReportEmail(ctx, u.ID, p); err != nil {
			s.logger.WarnContext(ctx, "Failed to queue report email",
				applog.FieldUserID, u.ID, applog.FieldError, err)
			if uerr := s.store.UnmarkReportScheduled(ctx, u.ID, p); uerr != nil {
				s.logger.ErrorContext(ctx, "Failed to reset schedule record",
					applog.FieldUserID, u.ID, applog.FieldError, uerr)
			}
			continue
		}
		published++
	}

	if published > 0 {
		s.logger.InfoContext(ctx, "Queued monthly reports",
			applog.FieldYear, p.Year, applog.FieldMonth, p.Month, "count", published)
	}
	return published, nil
}

// Start begins the polling loop. Returns an error if already running.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("scheduler is already running")
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})

	go s.runLoop(ctx)
	s.logger.InfoContext(ctx, "Report scheduler started", "interval", s.interval)
	return nil
}

// Stop signals the loop and waits for it, or for ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.stopCh)
	done := s.doneCh
	s.mu.Unlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) runLoop(ctx context.Context) {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.tick(ctx)
	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	if _, err := s.ScheduleMonthlyReports(ctx, s.now()); err != nil {
		s.logger.ErrorContext(ctx, "Scheduling monthly reports failed", applog.FieldError, err)
	}
}
