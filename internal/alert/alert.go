package alert

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/metinatakli/seat-reservation/internal/domain"
	"github.com/metinatakli/seat-reservation/internal/mailer"
)

const integrityTemplate = "integrity_alert.tmpl"

// LogAlerter writes incidents to the error log.
type LogAlerter struct {
	logger *slog.Logger
}

func NewLogAlerter(logger *slog.Logger) *LogAlerter {
	return &LogAlerter{logger: logger}
}

func (a *LogAlerter) Alert(ctx context.Context, incident domain.Incident) {
	a.logger.ErrorContext(ctx, "OPERATOR ALERT: booking integrity incident",
		"token", incident.Token,
		"show_id", incident.ShowID,
		"intent_id", incident.IntentID,
		"seats", incident.Seats,
		"detected_at", incident.DetectedAt,
		"error", incident.Err)
}

// MailAlerter e-mails incidents to an operator address. Sending happens in
// the background so the alerting request is never held up by SMTP.
type MailAlerter struct {
	mailer    mailer.Mailer
	recipient string
	logger    *slog.Logger
	send      func(fn func())
}

func NewMailAlerter(m mailer.Mailer, recipient string, logger *slog.Logger) *MailAlerter {
	return &MailAlerter{
		mailer:    m,
		recipient: recipient,
		logger:    logger,
		send:      func(fn func()) { go fn() },
	}
}

type incidentMail struct {
	Token      string
	ShowID     int64
	Seats      string
	IntentID   string
	DetectedAt string
	Error      string
}

func (a *MailAlerter) Alert(ctx context.Context, incident domain.Incident) {
	labels := make([]string, len(incident.Seats))
	for i, s := range incident.Seats {
		labels[i] = s.String()
	}

	data := incidentMail{
		Token:      incident.Token,
		ShowID:     incident.ShowID,
		Seats:      strings.Join(labels, ", "),
		IntentID:   incident.IntentID,
		DetectedAt: incident.DetectedAt.Format(time.RFC3339),
	}
	if incident.Err != nil {
		data.Error = incident.Err.Error()
	}

	a.send(func() {
		defer func() {
			if err := recover(); err != nil {
				a.logger.Error("panic while sending alert mail", "error", err)
			}
		}()

		if err := a.mailer.Send(a.recipient, integrityTemplate, data); err != nil {
			a.logger.Error("failed to send alert mail", "token", incident.Token, "error", err)
		}
	})
}

// Multi fans an incident out to several alerters.
type Multi []domain.Alerter

func (m Multi) Alert(ctx context.Context, incident domain.Incident) {
	for _, a := range m {
		a.Alert(ctx, incident)
	}
}
