// Package mail renders and delivers monthly report emails.
package mail

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	htmltemplate "html/template"
	texttemplate "text/template"

	"spesa/internal/core"
	applog "spesa/internal/log"
)

//go:embed templates/*.tmpl
var templatesFS embed.FS

// Message is a rendered email ready for a Sender.
type Message struct {
	To      string
	ToName  string
	Subject string
	Text    string
	HTML    string
}

// Sender delivers one message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Dispatcher composes report emails and hands them to a Sender. It never retries.
type Dispatcher struct {
	sender Sender
	text   *texttemplate.Template
	html   *htmltemplate.Template
	logger *applog.Logger
}

type reportView struct {
	Username   string
	Period     string
	Total      string
	Categories []categoryView
}

type categoryView struct {
	Name   string
	Amount string
}

func NewDispatcher(sender Sender) (*Dispatcher, error) {
	text, err := texttemplate.ParseFS(templatesFS, "templates/report.txt.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse text template: %w", err)
	}
	html, err := htmltemplate.ParseFS(templatesFS, "templates/report.html.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse html template: %w", err)
	}
	return &Dispatcher{
		sender: sender,
		text:   text,
		html:   html,
		logger: applog.Default(applog.ComponentMail),
	}, nil
}

// Subject returns the subject line for a period.
func Subject(p core.Period) string {
	return "Expense report for " + p.Label()
}

// SendReport emails r to user. A user without an address yields
// *core.NoRecipientError before anything is rendered; a failed send yields
// *core.DeliveryError.
func (d *Dispatcher) SendReport(ctx context.Context, user core.User, r core.Report) error {
	if !user.HasEmail() {
		return &core.NoRecipientError{UserID: user.ID}
	}

	msg, err := d.render(user, r)
	if err != nil {
		return err
	}

	if err := d.sender.Send(ctx, msg); err != nil {
		d.logger.WarnContext(ctx, "Report email failed",
			applog.FieldUserID, user.ID, applog.FieldYear, r.Period.Year, applog.FieldMonth, r.Period.Month,
			applog.FieldError, err)
		return &core.DeliveryError{Err: err}
	}

	d.logger.InfoContext(ctx, "Report email sent",
		applog.FieldUserID, user.ID, applog.FieldYear, r.Period.Year, applog.FieldMonth, r.Period.Month)
	return nil
}

func (d *Dispatcher) render(user core.User, r core.Report) (Message, error) {
	view := reportView{
		Username:   user.Username,
		Period:     r.Period.Label(),
		Total:      core.FormatAmount(r.Total),
		Categories: make([]categoryView, len(r.ByCategory)),
	}
	for i, c := range r.ByCategory {
		view.Categories[i] = categoryView{Name: c.Name, Amount: core.FormatAmount(c.Amount)}
	}

	var text, html bytes.Buffer
	if err := d.text.Execute(&text, view); err != nil {
		return Message{}, fmt.Errorf("render text body: %w", err)
	}
	if err := d.html.Execute(&html, view); err != nil {
		return Message{}, fmt.Errorf("render html body: %w", err)
	}

	return Message{
		To:      user.Email,
		ToName:  user.Username,
		Subject: Subject(r.Period),
		Text:    text.String(),
		HTML:    html.String(),
	}, nil
}
