package transport

import (
	"context"

	"github.com/programisto-labs/edrm-mailer/internal/config"
	"github.com/programisto-labs/edrm-mailer/internal/logger"
	"github.com/programisto-labs/edrm-mailer/internal/mailer/domain"
	"github.com/programisto-labs/edrm-mailer/internal/metrics"
)

// Ensure Router implements domain.Sender
var _ domain.Sender = (*Router)(nil)

// Router picks the configured transport provider. The provider choice is
// collaborator configuration, not a per-call concern.
type Router struct {
	cfg    config.Config
	smtp   domain.Sender
	resend domain.Sender
	log    domain.Sender
}

func NewRouter(cfg config.Config) *Router {
	l := logger.New(cfg.AppEnv)
	return &Router{
		cfg:    cfg,
		smtp:   NewSMTP(cfg, l),
		resend: NewResend(cfg, l),
		log:    NewLog(l),
	}
}

func (r *Router) Send(ctx context.Context, creds domain.Credentials, mail domain.OutboundMail) (string, error) {
	provider := r.cfg.EmailProvider
	var (
		info string
		err  error
	)
	switch provider {
	case "resend":
		info, err = r.resend.Send(ctx, creds, mail)
	case "log":
		info, err = r.log.Send(ctx, creds, mail)
	default:
		provider = "smtp"
		info, err = r.smtp.Send(ctx, creds, mail)
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	metrics.IncTransportSend(provider, result)
	return info, err
}
