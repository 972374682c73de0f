package transport

import (
	"context"
	"fmt"

	"github.com/resend/resend-go/v2"
	"github.com/rs/zerolog"

	"github.com/programisto-labs/edrm-mailer/internal/config"
	"github.com/programisto-labs/edrm-mailer/internal/mailer/domain"
)

// Ensure Resend implements domain.Sender
var _ domain.Sender = (*Resend)(nil)

// Resend delivers mail through the Resend API. Authentication is the
// configured API key; per-call SMTP credentials do not apply here.
type Resend struct {
	client *resend.Client
	log    zerolog.Logger
}

func NewResend(cfg config.Config, log zerolog.Logger) *Resend {
	return &Resend{client: resend.NewClient(cfg.ResendAPIKey), log: log}
}

func (r *Resend) Send(ctx context.Context, _ domain.Credentials, mail domain.OutboundMail) (string, error) {
	params := &resend.SendEmailRequest{
		From:    mail.From,
		To:      []string{mail.To},
		Subject: mail.Subject,
		Html:    mail.Body,
	}
	for _, a := range mail.Attachments {
		att := &resend.Attachment{
			Filename:    a.Filename,
			ContentType: a.ContentType,
		}
		if a.Content != nil {
			att.Content = a.Content
		} else {
			// Remote-fetch descriptor: the API downloads the path itself.
			att.Path = a.URL
			if att.Filename == "" {
				att.Filename = filenameFromURL(a.URL)
			}
		}
		params.Attachments = append(params.Attachments, att)
	}

	sent, err := r.client.Emails.SendWithContext(ctx, params)
	if err != nil {
		return "", fmt.Errorf("resend send failed: %w", err)
	}
	return sent.Id, nil
}
