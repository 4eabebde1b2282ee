package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"spesa/internal/core"
)

// ReportEmailMessage asks a worker to email one user's monthly report.
type ReportEmailMessage struct {
	UserID    int64     `json:"user_id"`
	Year      int       `json:"year"`
	Month     int       `json:"month"`
	Timestamp time.Time `json:"timestamp"`
}

func NewReportEmailMessage(userID int64, p core.Period) *ReportEmailMessage {
	return &ReportEmailMessage{
		UserID:    userID,
		Year:      p.Year,
		Month:     p.Month,
		Timestamp: time.Now(),
	}
}

// Period returns the validated report period.
func (m *ReportEmailMessage) Period() (core.Period, error) {
	return core.NewPeriod(m.Year, m.Month)
}

// ToJSON converts the message to JSON bytes
func (m *ReportEmailMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ReportEmailMessageFromJSON decodes and sanity checks a message body.
func ReportEmailMessageFromJSON(data []byte) (*ReportEmailMessage, error) {
	var msg ReportEmailMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.UserID <= 0 {
		return nil, fmt.Errorf("invalid user id %d", msg.UserID)
	}
	if _, err := msg.Period(); err != nil {
		return nil, err
	}
	return &msg, nil
}
