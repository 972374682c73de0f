package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/programisto-labs/edrm-mailer/internal/config"
	"github.com/programisto-labs/edrm-mailer/internal/mailer/domain"
	"github.com/programisto-labs/edrm-mailer/internal/metrics"
)

// Ensure Service implements domain.Service
var _ domain.Service = (*Service)(nil)

// staleStatusCaveat flags a delivered email whose audit record could not be
// reconciled; the send succeeded, the bookkeeping is stale.
const staleStatusCaveat = "email sent, but failed to update message status"

// Service is the dispatch coordinator: it resolves the template, renders the
// body, persists the audit record, resolves attachments, invokes the
// transport and reconciles the record with the delivery outcome.
type Service struct {
	templates domain.TemplateRepository
	messages  domain.MessageRepository
	sender    domain.Sender
	files     domain.FileStore
	cfg       config.Config
	log       zerolog.Logger
	now       func() time.Time
}

func New(templates domain.TemplateRepository, messages domain.MessageRepository, sender domain.Sender, files domain.FileStore, cfg config.Config) *Service {
	return &Service{
		templates: templates,
		messages:  messages,
		sender:    sender,
		files:     files,
		cfg:       cfg,
		log:       zerolog.Nop(),
		now:       time.Now,
	}
}

// SetLogger sets the logger for the service.
func (s *Service) SetLogger(log zerolog.Logger) { s.log = log }

// SendFromTemplate runs the full dispatch pipeline for one request.
//
// Validation and credential failures are returned as errors before any I/O.
// Everything past that point is captured into the result: template misses,
// persistence failures, and transport failures all come back as
// Success=false with a diagnostic, and a transport failure still leaves the
// persisted record behind (SentAt unset) so the attempt can be audited and
// resent.
func (s *Service) SendFromTemplate(ctx context.Context, req domain.DispatchRequest) (domain.DispatchResult, error) {
	if req.Template == "" {
		metrics.IncDispatchOutcome("send", "rejected")
		return domain.DispatchResult{}, domain.ValidationError{Field: "template"}
	}
	if req.To == "" {
		metrics.IncDispatchOutcome("send", "rejected")
		return domain.DispatchResult{}, domain.ValidationError{Field: "to"}
	}
	if req.Data == nil {
		metrics.IncDispatchOutcome("send", "rejected")
		return domain.DispatchResult{}, domain.ValidationError{Field: "data"}
	}

	creds, err := ResolveCredentials(s.cfg, req.EmailUser, req.EmailPassword)
	if err != nil {
		metrics.IncDispatchOutcome("send", "rejected")
		return domain.DispatchResult{}, err
	}

	tmpl, err := s.templates.Resolve(ctx, req.Template, req.EntityID)
	if err != nil {
		s.log.Error().Err(err).Str("template", req.Template).Msg("template resolution failed")
		metrics.IncDispatchOutcome("send", "rejected")
		return domain.DispatchResult{Success: false, Error: err.Error()}, nil
	}

	body := RenderBody(tmpl.Body, req.Data)
	subject := req.Subject
	if subject == "" {
		subject = tmpl.Subject
	}

	msg := &domain.Message{
		TemplateID: &tmpl.ID,
		EntityID:   req.EntityID,
		To:         req.To,
		From:       creds.User,
		Subject:    subject,
		Body:       body,
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		perr := domain.PersistenceError{Op: "create message", Err: err}
		s.log.Error().Err(err).Str("template", req.Template).Str("to", req.To).Msg("failed to persist mail message")
		metrics.IncDispatchOutcome("send", "persistence_failed")
		return domain.DispatchResult{Success: false, Error: perr.Error()}, nil
	}

	attachments := s.resolveAttachments(ctx, req)

	result := s.deliver(ctx, creds, msg, body, attachments)
	s.logOutcome("send", req.Template, msg, result)
	return result, nil
}

// Resend replays the delivery of an existing message. The stored to, from,
// subject and body are reused verbatim; the template is never re-resolved.
// No new record is created and each success overwrites SentAt.
func (s *Service) Resend(ctx context.Context, messageID uuid.UUID, emailUser, emailPassword string) (domain.DispatchResult, error) {
	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		var notFound domain.MessageNotFoundError
		if errors.As(err, &notFound) {
			metrics.IncDispatchOutcome("resend", "rejected")
			return domain.DispatchResult{}, err
		}
		metrics.IncDispatchOutcome("resend", "rejected")
		return domain.DispatchResult{}, domain.PersistenceError{Op: "load message", Err: err}
	}

	creds, err := ResolveCredentials(s.cfg, emailUser, emailPassword)
	if err != nil {
		metrics.IncDispatchOutcome("resend", "rejected")
		return domain.DispatchResult{}, err
	}

	body := msg.Body
	if body == "" && msg.TemplateID != nil {
		// Legacy records created before the body was always materialized.
		if tmpl, terr := s.templates.GetByID(ctx, *msg.TemplateID); terr == nil {
			body = tmpl.Body
		}
	}

	result := s.deliver(ctx, creds, &msg, body, nil)
	s.logOutcome("resend", "", &msg, result)
	return result, nil
}

// deliver invokes the transport and reconciles SentAt. A transport failure
// leaves the record pending; a reconcile failure after a successful send
// still reports success with the stale-status caveat.
func (s *Service) deliver(ctx context.Context, creds domain.Credentials, msg *domain.Message, body string, attachments []domain.Attachment) domain.DispatchResult {
	info, err := s.sender.Send(ctx, creds, domain.OutboundMail{
		From:        msg.From,
		To:          msg.To,
		Subject:     msg.Subject,
		Body:        body,
		Attachments: attachments,
	})
	if err != nil {
		return domain.DispatchResult{
			Success:       false,
			MailMessageID: msg.ID.String(),
			Error:         err.Error(),
		}
	}

	sentAt := s.now().UTC()
	if err := s.messages.MarkSent(ctx, msg.ID, sentAt); err != nil {
		s.log.Error().Err(err).Str("message_id", msg.ID.String()).Msg("failed to update mail message after sending")
		return domain.DispatchResult{
			Success:       true,
			MailMessageID: msg.ID.String(),
			Info:          info,
			Error:         staleStatusCaveat,
		}
	}
	msg.SentAt = &sentAt
	return domain.DispatchResult{
		Success:       true,
		MailMessageID: msg.ID.String(),
		Info:          info,
	}
}

func (s *Service) logOutcome(path, template string, msg *domain.Message, result domain.DispatchResult) {
	switch {
	case result.Success:
		metrics.IncDispatchOutcome(path, "sent")
		s.log.Info().
			Str("template", template).
			Str("to", msg.To).
			Str("message_id", result.MailMessageID).
			Msg("email sent successfully")
	default:
		metrics.IncDispatchOutcome(path, "transport_failed")
		s.log.Error().
			Str("template", template).
			Str("to", msg.To).
			Str("message_id", result.MailMessageID).
			Str("error", result.Error).
			Msg("failed to send email")
	}
}
