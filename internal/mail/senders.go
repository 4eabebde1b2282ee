package mail

import (
	"context"
	"fmt"

	applog "spesa/internal/log"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
)

const sendEndpoint = "/v3/mail/send"

// SendGridSender delivers through the SendGrid v3 API.
type SendGridSender struct {
	apiKey string
	host   string
	from   *sgmail.Email
}

// NewSendGridSender creates a sender; an empty host means the public API.
func NewSendGridSender(apiKey, fromAddress, fromName, host string) *SendGridSender {
	return &SendGridSender{
		apiKey: apiKey,
		host:   host,
		from:   sgmail.NewEmail(fromName, fromAddress),
	}
}

func (s *SendGridSender) Send(ctx context.Context, msg Message) error {
	to := sgmail.NewEmail(msg.ToName, msg.To)
	email := sgmail.NewSingleEmail(s.from, msg.Subject, to, msg.Text, msg.HTML)

	// A fresh request per call: sendgrid.Client mutates its body on send.
	req := sendgrid.GetRequest(s.apiKey, sendEndpoint, s.host)
	req.Method = "POST"
	req.Body = sgmail.GetRequestBody(email)

	resp, err := sendgrid.MakeRequestWithContext(ctx, req)
	if err != nil {
		return fmt.Errorf("sendgrid request: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("sendgrid returned status %d: %s", resp.StatusCode, resp.Body)
	}
	return nil
}

// LogSender writes messages to the log instead of delivering them.
type LogSender struct {
	logger *applog.Logger
}

func NewLogSender() *LogSender {
	return &LogSender{logger: applog.Default(applog.ComponentMail)}
}

func (s *LogSender) Send(ctx context.Context, msg Message) error {
	s.logger.InfoContext(ctx, "Email not delivered (no mail provider configured)",
		applog.FieldRecipient, msg.To, "subject", msg.Subject, "body", msg.Text)
	return nil
}
