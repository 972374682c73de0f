package service

import (
	"context"

	"github.com/rs/zerolog"

	evdomain "github.com/programisto-labs/edrm-mailer/internal/events/domain"
	mdomain "github.com/programisto-labs/edrm-mailer/internal/mailer/domain"
)

// Dispatcher consumes the bus and invokes the dispatch coordinator for each
// request. Failures are logged and fully absorbed: there is no caller to
// report to on this path.
type Dispatcher struct {
	bus evdomain.Bus
	svc mdomain.Service
	log zerolog.Logger
}

func NewDispatcher(bus evdomain.Bus, svc mdomain.Service, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{bus: bus, svc: svc, log: log}
}

// Run consumes until the context is canceled or the bus is closed.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case req, ok := <-d.bus.Requests():
			if !ok {
				return
			}
			d.handle(ctx, req)
		}
	}
}

func (d *Dispatcher) handle(ctx context.Context, req mdomain.DispatchRequest) {
	result, err := d.svc.SendFromTemplate(ctx, req)
	switch {
	case err != nil:
		d.log.Error().Err(err).
			Str("template", req.Template).
			Str("to", req.To).
			Msg("event dispatch rejected")
	case !result.Success:
		d.log.Error().
			Str("template", req.Template).
			Str("to", req.To).
			Str("message_id", result.MailMessageID).
			Str("error", result.Error).
			Msg("event dispatch failed")
	default:
		d.log.Debug().
			Str("template", req.Template).
			Str("to", req.To).
			Str("message_id", result.MailMessageID).
			Msg("event dispatch succeeded")
	}
}
