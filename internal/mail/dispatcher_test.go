package mail

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"spesa/internal/core"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSender struct {
	sent []Message
	err  error
}

func (r *recordingSender) Send(_ context.Context, msg Message) error {
	r.sent = append(r.sent, msg)
	return r.err
}

func sampleReport() core.Report {
	return core.Report{
		Period: core.Period{Year: 2024, Month: 3},
		Total:  decimal.RequireFromString("15.50"),
		ByCategory: []core.CategoryAmount{
			{Name: "Food", Amount: decimal.RequireFromString("12.50")},
			{Name: "<Transport>", Amount: decimal.RequireFromString("3")},
		},
	}
}

func TestSendReport_NoRecipient(t *testing.T) {
	sender := &recordingSender{}
	d, err := NewDispatcher(sender)
	require.NoError(t, err)

	err = d.SendReport(context.Background(), core.User{ID: 4, Username: "alice", Email: "  "}, sampleReport())

	var nr *core.NoRecipientError
	require.True(t, errors.As(err, &nr))
	assert.Equal(t, int64(4), nr.UserID)
	assert.Empty(t, sender.sent, "nothing may be sent")
}

func TestSendReport_RendersBodies(t *testing.T) {
	sender := &recordingSender{}
	d, err := NewDispatcher(sender)
	require.NoError(t, err)

	err = d.SendReport(context.Background(), core.User{ID: 1, Username: "alice", Email: "a@example.com"}, sampleReport())
	require.NoError(t, err)
	require.Len(t, sender.sent, 1)

	msg := sender.sent[0]
	assert.Equal(t, "a@example.com", msg.To)
	assert.Equal(t, "Expense report for March 2024", msg.Subject)
	assert.Contains(t, msg.Text, "Total: 15.50")
	assert.Contains(t, msg.Text, "Food: 12.50")
	assert.Contains(t, msg.Text, "<Transport>: 3.00")
	assert.Contains(t, msg.HTML, "&lt;Transport&gt;")
}

func TestSendReport_EmptyReport(t *testing.T) {
	sender := &recordingSender{}
	d, err := NewDispatcher(sender)
	require.NoError(t, err)

	r := core.Report{Period: core.Period{Year: 2024, Month: 2}, Total: decimal.Zero, ByCategory: []core.CategoryAmount{}}
	require.NoError(t, d.SendReport(context.Background(), core.User{ID: 1, Email: "a@example.com"}, r))
	assert.Contains(t, sender.sent[0].Text, "No expenses recorded")
}

func TestSendReport_DeliveryError(t *testing.T) {
	boom := errors.New("smtp down")
	sender := &recordingSender{err: boom}
	d, err := NewDispatcher(sender)
	require.NoError(t, err)

	err = d.SendReport(context.Background(), core.User{ID: 1, Email: "a@example.com"}, sampleReport())

	var de *core.DeliveryError
	require.True(t, errors.As(err, &de))
	assert.ErrorIs(t, err, boom)
	assert.Len(t, sender.sent, 1, "no retry")
}

func TestSendGridSender(t *testing.T) {
	var payload map[string]any
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		assert.Equal(t, sendEndpoint, r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &payload)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	s := NewSendGridSender("key-123", "reports@spesa.local", "Spesa", srv.URL)
	err := s.Send(context.Background(), Message{To: "a@example.com", Subject: "Hi", Text: "t", HTML: "<p>h</p>"})
	require.NoError(t, err)
	assert.Equal(t, "Bearer key-123", auth)
	assert.Equal(t, "Hi", payload["subject"])
}

func TestSendGridSender_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"errors":[{"message":"bad key"}]}`))
	}))
	defer srv.Close()

	s := NewSendGridSender("bad", "reports@spesa.local", "Spesa", srv.URL)
	err := s.Send(context.Background(), Message{To: "a@example.com", Subject: "Hi", Text: "t", HTML: "h"})
	assert.ErrorContains(t, err, "401")
}

func TestLogSender(t *testing.T) {
	assert.NoError(t, NewLogSender().Send(context.Background(), Message{To: "a@example.com"}))
}
