package service

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	evdomain "github.com/programisto-labs/edrm-mailer/internal/events/domain"
	mdomain "github.com/programisto-labs/edrm-mailer/internal/mailer/domain"
)

// Ensure Bus implements domain.Bus
var _ evdomain.Bus = (*Bus)(nil)

// Bus is a buffered in-process channel of dispatch requests consumed by a
// single dispatcher task. Publish and Close share a lock so a late publisher
// (e.g. the Kafka source draining its last message during shutdown) can never
// send on the closed channel.
type Bus struct {
	ch  chan mdomain.DispatchRequest
	log zerolog.Logger

	mu     sync.RWMutex
	closed bool
}

func NewBus(buffer int, log zerolog.Logger) *Bus {
	if buffer <= 0 {
		buffer = 64
	}
	return &Bus{
		ch:  make(chan mdomain.DispatchRequest, buffer),
		log: log,
	}
}

func (b *Bus) Publish(_ context.Context, req mdomain.DispatchRequest) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		b.log.Warn().Str("template", req.Template).Msg("event bus closed, dropping request")
		return nil
	}
	select {
	case b.ch <- req:
	default:
		// Fire-and-forget: a full buffer drops the request rather than
		// blocking the emitter.
		b.log.Warn().Str("template", req.Template).Str("to", req.To).Msg("event bus full, dropping request")
	}
	return nil
}

func (b *Bus) Requests() <-chan mdomain.DispatchRequest {
	return b.ch
}

func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	close(b.ch)
}
