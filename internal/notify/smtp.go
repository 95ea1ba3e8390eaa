package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/wneessen/go-mail"
)

// SMTPSender delivers over SMTP with mandatory STARTTLS and PLAIN auth, e.g. a
// Gmail app password.
type SMTPSender struct {
	host     string
	port     int
	username string
	password string
	from     string
}

func NewSMTPSender(host string, port int, username, password, from string) *SMTPSender {
	return &SMTPSender{host: host, port: port, username: username, password: password, from: from}
}

func (s *SMTPSender) Send(ctx context.Context, m Message) error {
	msg, err := newMsg(s.from, m, time.Now())
	if err != nil {
		return err
	}
	c, err := mail.NewClient(s.host,
		mail.WithPort(s.port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(s.username),
		mail.WithPassword(s.password),
		mail.WithTLSPolicy(mail.TLSMandatory),
	)
	if err != nil {
		return fmt.Errorf("smtp: %w", err)
	}
	if err := c.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("smtp: sending to %s: %w", s.host, err)
	}
	return nil
}

// newMsg builds a base64 encoded HTML message. Addresses are parsed by
// go-mail, so header injection through a recipient fails here.
func newMsg(from string, m Message, now time.Time) (*mail.Msg, error) {
	if len(m.To) == 0 {
		return nil, fmt.Errorf("smtp: no recipients")
	}
	msg := mail.NewMsg(mail.WithEncoding(mail.EncodingB64), mail.WithCharset(mail.CharsetUTF8))
	if err := msg.From(from); err != nil {
		return nil, fmt.Errorf("smtp: invalid from address: %w", err)
	}
	if err := msg.To(m.To...); err != nil {
		return nil, fmt.Errorf("smtp: invalid recipient: %w", err)
	}
	if m.ReplyTo != "" {
		if err := msg.ReplyTo(m.ReplyTo); err != nil {
			return nil, fmt.Errorf("smtp: invalid reply-to: %w", err)
		}
	}
	msg.Subject(m.Subject)
	msg.SetDateWithValue(now)
	msg.SetBodyString(mail.TypeTextHTML, m.HTML)
	return msg, nil
}
