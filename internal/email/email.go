// Package email delivers out-of-band messages to people without an account, and the
// notification e-mails fanned out by the worker.
package email

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/Domenick1991/deskbooking/internal/domain"
	"github.com/mailersend/mailersend-go"
)

// Messenger sends e-mail and SMS to guests.
type Messenger interface {
	SendEmail(ctx context.Context, address, subject, body string) error
	SendSMS(ctx context.Context, phone, body string) error
}

type EmailSender interface {
	SendEmail(ctx context.Context, address, subject, body string) error
}

type SMSSender interface {
	SendSMS(ctx context.Context, phone, body string) error
}

var ErrMailerDisabled = errors.New("mailer disabled (missing mailersend key or from address)")

// MailerSend sends e-mail through the MailerSend API.
type MailerSend struct {
	client  *mailersend.Mailersend
	from    mailersend.From
	timeout time.Duration
	Enabled bool
}

func NewMailerSend(apiKey, fromName, fromEmail string) *MailerSend {
	m := &MailerSend{
		Enabled: apiKey != "" && fromEmail != "",
		from: mailersend.From{
			Name:  fromName,
			Email: fromEmail,
		},
		timeout: 10 * time.Second,
	}
	if m.Enabled {
		m.client = mailersend.NewMailersend(apiKey)
	}
	return m
}

func (m *MailerSend) SendEmail(ctx context.Context, address, subject, body string) error {
	if !m.Enabled {
		return ErrMailerDisabled
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	msg := m.client.Email.NewMessage()
	msg.SetFrom(m.from)
	msg.SetRecipients([]mailersend.Recipient{{Email: address}})
	msg.SetSubject(subject)
	msg.SetText(body)

	res, err := m.client.Email.Send(ctx, msg)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		raw, _ := io.ReadAll(res.Body)
		return fmt.Errorf("mailersend error: status=%d body=%s", res.StatusCode, strings.TrimSpace(string(raw)))
	}
	return nil
}

// LogSender writes messages to the log instead of sending them. It stands in for SMS and
// for e-mail when MailerSend is not configured.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{logger: logger}
}

func (s *LogSender) SendEmail(_ context.Context, address, subject, _ string) error {
	s.logger.Info("send email", "to", address, "subject", subject)
	return nil
}

func (s *LogSender) SendSMS(_ context.Context, phone, _ string) error {
	s.logger.Info("send sms", "to", phone)
	return nil
}

// Direct sends through the given senders synchronously. Failures come back as
// *domain.TransportError.
type Direct struct {
	email EmailSender
	sms   SMSSender
}

func NewDirect(email EmailSender, sms SMSSender) *Direct {
	return &Direct{email: email, sms: sms}
}

func (d *Direct) SendEmail(ctx context.Context, address, subject, body string) error {
	if err := d.email.SendEmail(ctx, address, subject, body); err != nil {
		return &domain.TransportError{Channel: "email", Err: err}
	}
	return nil
}

func (d *Direct) SendSMS(ctx context.Context, phone, body string) error {
	if err := d.sms.SendSMS(ctx, phone, body); err != nil {
		return &domain.TransportError{Channel: "sms", Err: err}
	}
	return nil
}

var (
	_ EmailSender = (*MailerSend)(nil)
	_ Messenger   = (*LogSender)(nil)
	_ Messenger   = (*Direct)(nil)
)
