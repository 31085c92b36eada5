package mail

import (
	"fmt"

	gomail "gopkg.in/gomail.v2"

	"github.com/unidesk/english-proficiency-api/pkg/config"
)

// Message is a single outbound email.
type Message struct {
	To      []string
	Subject string
	HTML    string
}

// Mailer delivers messages over SMTP.
type Mailer struct {
	dialer *gomail.Dialer
	from   string
}

// NewMailer constructs an SMTP mailer from configuration.
func NewMailer(cfg config.MailConfig) *Mailer {
	return &Mailer{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
	}
}

// Send delivers one message, returning the transport error if any.
func (m *Mailer) Send(msg Message) error {
	if len(msg.To) == 0 {
		return fmt.Errorf("message has no recipients")
	}
	em := gomail.NewMessage()
	em.SetHeader("From", m.from)
	em.SetHeader("To", msg.To...)
	em.SetHeader("Subject", msg.Subject)
	em.SetBody("text/html", msg.HTML)
	if err := m.dialer.DialAndSend(em); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}
