package amqp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"spesa/internal/core"

	"github.com/rabbitmq/amqp091-go"
)

func TestExponentialBackoff(t *testing.T) {
	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{0, 1 * time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 16 * time.Second},
		{5, 30 * time.Second},
		{10, 30 * time.Second},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("attempt_%d", tt.attempt), func(t *testing.T) {
			if got := exponentialBackoff(tt.attempt); got != tt.expected {
				t.Errorf("exponentialBackoff(%d) = %v, want %v", tt.attempt, got, tt.expected)
			}
		})
	}
}

func TestIsConnectionError(t *testing.T) {
	tests := []struct {
		err      error
		expected bool
	}{
		{nil, false},
		{errors.New("dial tcp: connection refused"), true},
		{errors.New("unexpected EOF"), true},
		{errors.New("write: broken pipe"), true},
		{amqp091.ErrClosed, true},
		{errors.New("invalid input"), false},
	}
	for _, tt := range tests {
		if got := isConnectionError(tt.err); got != tt.expected {
			t.Errorf("isConnectionError(%v) = %v, want %v", tt.err, got, tt.expected)
		}
	}
}

func TestClient_CircuitBreaker(t *testing.T) {
	client := &Client{exchangeName: "test_exchange", queueName: "test_queue"}

	if client.isCircuitOpen() {
		t.Fatal("circuit breaker should be closed initially")
	}

	for i := 0; i < maxFailures; i++ {
		client.recordFailure()
	}
	if !client.isCircuitOpen() {
		t.Fatal("circuit breaker should open after max failures")
	}

	client.recordSuccess()
	if client.isCircuitOpen() || atomic.LoadInt64(&client.failureCount) != 0 {
		t.Fatal("success should close the circuit and reset failures")
	}

	atomic.StoreInt32(&client.state, StateOpen)
	client.lastFailure = time.Now().Add(-openTimeout - time.Second)
	if client.isCircuitOpen() {
		t.Fatal("circuit should go half-open after the timeout")
	}
	if atomic.LoadInt32(&client.state) != StateHalfOpen {
		t.Fatal("state should be half-open")
	}
}

func TestClient_PublishGuards(t *testing.T) {
	client := &Client{exchangeName: "test_exchange", queueName: "test_queue"}
	p := core.Period{Year: 2024, Month: 3}

	atomic.StoreInt32(&client.state, StateOpen)
	client.lastFailure = time.Now()
	err := client.PublishReportEmail(context.Background(), 1, p)
	if err == nil || !strings.Contains(err.Error(), "circuit breaker is open") {
		t.Fatalf("expected circuit breaker error, got %v", err)
	}

	client.recordSuccess()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := client.PublishReportEmail(ctx, 1, p); err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

type fakeAcknowledger struct {
	acked   int
	nacked  int
	requeue bool
}

func (f *fakeAcknowledger) Ack(uint64, bool) error {
	f.acked++
	return nil
}

func (f *fakeAcknowledger) Nack(_ uint64, _ bool, requeue bool) error {
	f.nacked++
	f.requeue = requeue
	return nil
}

func (f *fakeAcknowledger) Reject(uint64, bool) error { return nil }

func delivery(ack *fakeAcknowledger, body string) amqp091.Delivery {
	return amqp091.Delivery{Acknowledger: ack, DeliveryTag: 1, Body: []byte(body)}
}

func TestHandleDelivery(t *testing.T) {
	client := &Client{queueName: "report_emails"}
	ctx := context.Background()
	body := `{"user_id":3,"year":2024,"month":2,"timestamp":"2024-03-01T00:00:00Z"}`

	t.Run("success acks", func(t *testing.T) {
		ack := &fakeAcknowledger{}
		var got *ReportEmailMessage
		client.handleDelivery(ctx, delivery(ack, body), func(_ context.Context, m *ReportEmailMessage) error {
			got = m
			return nil
		})
		if ack.acked != 1 || ack.nacked != 0 {
			t.Fatalf("expected ack, got %+v", ack)
		}
		if got.UserID != 3 || got.Month != 2 {
			t.Fatalf("unexpected message %+v", got)
		}
	})

	t.Run("handler failure is not requeued", func(t *testing.T) {
		ack := &fakeAcknowledger{}
		client.handleDelivery(ctx, delivery(ack, body), func(context.Context, *ReportEmailMessage) error {
			return errors.New("delivery failed")
		})
		if ack.nacked != 1 || ack.requeue {
			t.Fatalf("expected nack without requeue, got %+v", ack)
		}
	})

	t.Run("malformed body is discarded", func(t *testing.T) {
		ack := &fakeAcknowledger{}
		called := false
		client.handleDelivery(ctx, delivery(ack, `{"user_id":3,"year":2024,"month":13}`), func(context.Context, *ReportEmailMessage) error {
			called = true
			return nil
		})
		if called || ack.nacked != 1 || ack.requeue {
			t.Fatalf("expected discard, got called=%v %+v", called, ack)
		}
	})
}

func TestReportEmailMessage_JSON(t *testing.T) {
	msg := NewReportEmailMessage(12, core.Period{Year: 2024, Month: 1})
	if msg.Timestamp.IsZero() {
		t.Fatal("timestamp should be set")
	}
	data, err := msg.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON() error = %v", err)
	}
	parsed, err := ReportEmailMessageFromJSON(data)
	if err != nil {
		t.Fatalf("ReportEmailMessageFromJSON() error = %v", err)
	}
	p, _ := parsed.Period()
	if parsed.UserID != 12 || p != (core.Period{Year: 2024, Month: 1}) {
		t.Fatalf("unexpected message %+v", parsed)
	}

	for _, bad := range []string{`{"user_id":"x"}`, `{"user_id":0,"year":2024,"month":1}`} {
		if _, err := ReportEmailMessageFromJSON([]byte(bad)); err == nil {
			t.Errorf("expected error for %s", bad)
		}
	}
}
