package transport

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/programisto-labs/edrm-mailer/internal/mailer/domain"
)

// Ensure Log implements domain.Sender
var _ domain.Sender = (*Log)(nil)

// Log is a fallback provider that logs mail instead of sending it.
// Useful for development environments without a relay.
type Log struct {
	log zerolog.Logger
}

func NewLog(log zerolog.Logger) *Log {
	return &Log{log: log}
}

func (l *Log) Send(_ context.Context, _ domain.Credentials, mail domain.OutboundMail) (string, error) {
	fakeID := uuid.New().String()
	l.log.Info().
		Str("from", mail.From).
		Str("to", mail.To).
		Str("subject", mail.Subject).
		Int("body_length", len(mail.Body)).
		Int("attachments", len(mail.Attachments)).
		Str("fake_message_id", fakeID).
		Msg("email logged (not sent)")
	return fmt.Sprintf("log-%s", fakeID), nil
}
