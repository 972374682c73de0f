package domain

import (
	"context"

	mdomain "github.com/programisto-labs/edrm-mailer/internal/mailer/domain"
)

// TypeSendEmail is the event type whose payload is a dispatch request.
const TypeSendEmail = "SEND_EMAIL"

// Bus carries dispatch requests from emitters to a single handler task.
// Publishing is fire-and-forget from the emitter's perspective.
type Bus interface {
	// Publish enqueues a request. It never blocks; when the buffer is full
	// the request is dropped and the drop is logged.
	Publish(ctx context.Context, req mdomain.DispatchRequest) error
	// Requests exposes the consuming side of the bus.
	Requests() <-chan mdomain.DispatchRequest
	// Close stops the bus; pending requests are still drained by the consumer.
	Close()
}
