package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"spesa/internal/amqp"
	"spesa/internal/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubUsers map[int64]core.User

func (s stubUsers) GetUser(_ context.Context, id int64) (core.User, error) {
	u, ok := s[id]
	if !ok {
		return core.User{}, &core.NotFoundError{Resource: "user", ID: id}
	}
	return u, nil
}

type stubReports struct{}

func (stubReports) MonthlyReport(_ context.Context, userID int64, p core.Period) (core.Report, error) {
	return core.Report{UserID: userID, Period: p}, nil
}

type stubMail struct {
	sent []int64
	err  error
}

func (s *stubMail) SendReport(_ context.Context, u core.User, _ core.Report) error {
	if !u.HasEmail() {
		return &core.NoRecipientError{UserID: u.ID}
	}
	s.sent = append(s.sent, u.ID)
	return s.err
}

func TestHandleReportEmail(t *testing.T) {
	users := stubUsers{
		1: {ID: 1, Email: "a@example.com"},
		2: {ID: 2},
	}
	ctx := context.Background()

	t.Run("sends", func(t *testing.T) {
		mail := &stubMail{}
		w := NewReportWorker(users, stubReports{}, mail)
		require.NoError(t, w.HandleReportEmail(ctx, &amqp.ReportEmailMessage{UserID: 1, Year: 2024, Month: 2}))
		assert.Equal(t, []int64{1}, mail.sent)
	})

	t.Run("no recipient is acknowledged", func(t *testing.T) {
		mail := &stubMail{}
		w := NewReportWorker(users, stubReports{}, mail)
		assert.NoError(t, w.HandleReportEmail(ctx, &amqp.ReportEmailMessage{UserID: 2, Year: 2024, Month: 2}))
		assert.Empty(t, mail.sent)
	})

	t.Run("deleted user is skipped", func(t *testing.T) {
		w := NewReportWorker(users, stubReports{}, &stubMail{})
		assert.NoError(t, w.HandleReportEmail(ctx, &amqp.ReportEmailMessage{UserID: 9, Year: 2024, Month: 2}))
	})

	t.Run("delivery failure surfaces", func(t *testing.T) {
		mail := &stubMail{err: &core.DeliveryError{Err: errors.New("boom")}}
		w := NewReportWorker(users, stubReports{}, mail)
		err := w.HandleReportEmail(ctx, &amqp.ReportEmailMessage{UserID: 1, Year: 2024, Month: 2})
		var de *core.DeliveryError
		assert.True(t, errors.As(err, &de))
	})

	t.Run("invalid period", func(t *testing.T) {
		w := NewReportWorker(users, stubReports{}, &stubMail{})
		assert.ErrorIs(t, w.HandleReportEmail(ctx, &amqp.ReportEmailMessage{UserID: 1, Year: 2024, Month: 0}), core.ErrInvalidPeriod)
	})
}

type memorySchedule struct {
	mu     sync.Mutex
	users  []core.User
	marked map[[3]int64]bool
}

func (m *memorySchedule) ListUsersWithEmail(context.Context) ([]core.User, error) {
	return m.users, nil
}

func (m *memorySchedule) MarkReportScheduled(_ context.Context, userID int64, p core.Period) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.marked == nil {
		m.marked = map[[3]int64]bool{}
	}
	key := [3]int64{userID, int64(p.Year), int64(p.Month)}
	if m.marked[key] {
		return false, nil
	}
	m.marked[key] = true
	return true, nil
}

func (m *memorySchedule) UnmarkReportScheduled(_ context.Context, userID int64, p core.Period) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.marked, [3]int64{userID, int64(p.Year), int64(p.Month)})
	return nil
}

type recordingPublisher struct {
	mu      sync.Mutex
	jobs    []core.Period
	failFor int64
}

func (r *recordingPublisher) PublishReportEmail(_ context.Context, userID int64, p core.Period) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if userID == r.failFor {
		return errors.New("broker down")
	}
	r.jobs = append(r.jobs, p)
	return nil
}

func (r *recordingPublisher) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.jobs)
}

func TestScheduleMonthlyReports_OncePerPeriod(t *testing.T) {
	store := &memorySchedule{users: []core.User{{ID: 1, Email: "a@x"}, {ID: 2, Email: "b@x"}}}
	pub := &recordingPublisher{}
	s := NewScheduler(store, pub, time.Hour)
	now := time.Date(2024, 1, 5, 8, 0, 0, 0, time.UTC)

	n, err := s.ScheduleMonthlyReports(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, core.Period{Year: 2023, Month: 12}, pub.jobs[0])

	n, err = s.ScheduleMonthlyReports(context.Background(), now.Add(time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestScheduleMonthlyReports_PublishFailureIsRetriedNextTick(t *testing.T) {
	store := &memorySchedule{users: []core.User{{ID: 1, Email: "a@x"}}}
	pub := &recordingPublisher{failFor: 1}
	s := NewScheduler(store, pub, time.Hour)
	now := time.Date(2024, 3, 5, 8, 0, 0, 0, time.UTC)

	n, err := s.ScheduleMonthlyReports(context.Background(), now)
	require.NoError(t, err)
	assert.Zero(t, n)

	pub.failFor = 0
	n, err = s.ScheduleMonthlyReports(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestScheduler_StartStop(t *testing.T) {
	store := &memorySchedule{users: []core.User{{ID: 1, Email: "a@x"}}}
	pub := &recordingPublisher{}
	s := NewScheduler(store, pub, time.Hour)

	ctx := context.Background()
	require.NoError(t, s.Start(ctx))
	assert.Error(t, s.Start(ctx))
	assert.True(t, s.IsRunning())

	assert.Eventually(t, func() bool { return pub.count() == 1 }, time.Second, 10*time.Millisecond)

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	require.NoError(t, s.Stop(stopCtx))
	assert.False(t, s.IsRunning())
	require.NoError(t, s.Stop(stopCtx))
}
