// Package notify renders and delivers email. Resend is used when an API key
// is configured, SMTP otherwise.
package notify

import (
	"context"
	"errors"
	"net/mail"
)

// ErrNotConfigured is returned when no delivery provider is set up.
var ErrNotConfigured = errors.New("email delivery is not configured")

// Message is a rendered email.
type Message struct {
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
	ReplyTo string   `json:"reply_to,omitempty"`
}

type Sender interface {
	Send(ctx context.Context, m Message) error
}

// Config selects and configures a provider.
type Config struct {
	ResendAPIKey  string
	ResendBaseURL string
	FromAddress   string
	FromName      string
	SMTPHost      string
	SMTPPort      int
	SMTPUsername  string
	SMTPPassword  string
}

func (c Config) from() string {
	addr := c.FromAddress
	if addr == "" {
		addr = c.SMTPUsername
	}
	return (&mail.Address{Name: c.FromName, Address: addr}).String()
}

// NewSender picks Resend when an API key is set, then SMTP when
// credentials are set. Otherwise it returns ErrNotConfigured.
func NewSender(c Config) (Sender, error) {
	switch {
	case c.ResendAPIKey != "":
		base := c.ResendBaseURL
		if base == "" {
			base = defaultResendURL
		}
		return NewResendSender(base, c.ResendAPIKey, c.from()), nil
	case c.SMTPUsername != "" && c.SMTPPassword != "":
		return NewSMTPSender(c.SMTPHost, c.SMTPPort, c.SMTPUsername, c.SMTPPassword, c.from()), nil
	}
	return nil, ErrNotConfigured
}

// Disabled is a Sender that always fails with ErrNotConfigured.
type Disabled struct{}

func (Disabled) Send(context.Context, Message) error { return ErrNotConfigured }
