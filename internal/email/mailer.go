// Package email sends buyer notifications over SMTP.
package email

import (
	"fmt"
	"net/smtp"
	"strings"

	"github.com/anbibu/bookstore/internal/config"
)

// Mailer delivers a plain-text message to a single recipient.
type Mailer interface {
	Send(to, subject, body string) error
}

type SMTPMailer struct {
	addr string
	from string
	auth smtp.Auth
}

func NewSMTPMailer(cfg *config.SMTPConfig) *SMTPMailer {
	return &SMTPMailer{
		addr: cfg.Host + ":" + cfg.Port,
		from: cfg.From,
		auth: smtp.PlainAuth("", cfg.From, cfg.Password, cfg.Host),
	}
}

func (m *SMTPMailer) Send(to, subject, body string) error {
	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", m.from)
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("\r\n")
	msg.WriteString(body)

	if err := smtp.SendMail(m.addr, m.auth, m.from, []string{to}, []byte(msg.String())); err != nil {
		return fmt.Errorf("send mail to %s: %w", to, err)
	}

	return nil
}
