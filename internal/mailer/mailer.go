package mailer

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/go-mail/mail/v2"
)

//go:embed "templates"
var templateFS embed.FS

// Mailer delivers a templated message to a single recipient.
type Mailer interface {
	Send(recipient, templateFile string, data any) error
}

const (
	sendAttempts = 3
	sendInterval = 500 * time.Millisecond
)

type SMTPMailer struct {
	dialer *mail.Dialer
	sender string
}

func NewSMTPMailer(host string, port int, username, password, sender string) *SMTPMailer {
	dialer := mail.NewDialer(host, port, username, password)
	dialer.Timeout = 5 * time.Second

	return &SMTPMailer{
		dialer: dialer,
		sender: sender,
	}
}

func (m *SMTPMailer) Send(recipient, templateFile string, data any) error {
	msg, err := m.compose(recipient, templateFile, data)
	if err != nil {
		return err
	}

	_, err = backoff.Retry(context.Background(), func() (struct{}, error) {
		return struct{}{}, m.dialer.DialAndSend(msg)
	}, backoff.WithBackOff(backoff.NewConstantBackOff(sendInterval)), backoff.WithMaxTries(sendAttempts))
	if err != nil {
		return fmt.Errorf("send %s to %s: %w", templateFile, recipient, err)
	}

	return nil
}

// compose renders the subject, plainBody and htmlBody blocks of templateFile.
func (m *SMTPMailer) compose(recipient, templateFile string, data any) (*mail.Message, error) {
	blocks, err := render(templateFile, data)
	if err != nil {
		return nil, err
	}

	msg := mail.NewMessage()
	msg.SetHeader("To", recipient)
	msg.SetHeader("From", m.sender)
	msg.SetHeader("Subject", blocks["subject"])
	msg.SetBody("text/plain", blocks["plainBody"])
	msg.AddAlternative("text/html", blocks["htmlBody"])

	return msg, nil
}

func render(templateFile string, data any) (map[string]string, error) {
	tmpl, err := template.New("email").ParseFS(templateFS, "templates/"+templateFile)
	if err != nil {
		return nil, fmt.Errorf("parse template %s: %w", templateFile, err)
	}

	blocks := make(map[string]string, 3)
	for _, name := range []string{"subject", "plainBody", "htmlBody"} {
		buf := new(bytes.Buffer)
		if err := tmpl.ExecuteTemplate(buf, name, data); err != nil {
			return nil, fmt.Errorf("render %s of %s: %w", name, templateFile, err)
		}
		blocks[name] = buf.String()
	}

	return blocks, nil
}
