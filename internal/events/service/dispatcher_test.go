package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mdomain "github.com/programisto-labs/edrm-mailer/internal/mailer/domain"
)

type fakeDispatchService struct {
	mu      sync.Mutex
	calls   []mdomain.DispatchRequest
	results map[string]mdomain.DispatchResult
	errs    map[string]error
	done    chan struct{}
}

func newFakeDispatchService(expected int) *fakeDispatchService {
	return &fakeDispatchService{
		results: map[string]mdomain.DispatchResult{},
		errs:    map[string]error{},
		done:    make(chan struct{}, expected),
	}
}

func (f *fakeDispatchService) SendFromTemplate(_ context.Context, req mdomain.DispatchRequest) (mdomain.DispatchResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()
	defer func() { f.done <- struct{}{} }()
	if err, ok := f.errs[req.Template]; ok {
		return mdomain.DispatchResult{}, err
	}
	if res, ok := f.results[req.Template]; ok {
		return res, nil
	}
	return mdomain.DispatchResult{Success: true, MailMessageID: uuid.NewString()}, nil
}

func (f *fakeDispatchService) Resend(context.Context, uuid.UUID, string, string) (mdomain.DispatchResult, error) {
	return mdomain.DispatchResult{}, nil
}

func (f *fakeDispatchService) wait(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-f.done:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for dispatches")
		}
	}
}

func TestDispatcher_ProcessesRequests(t *testing.T) {
	bus := NewBus(4, zerolog.Nop())
	svc := newFakeDispatchService(1)
	d := NewDispatcher(bus, svc, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	require.NoError(t, bus.Publish(ctx, mdomain.DispatchRequest{Template: "welcome", To: "a@b.c"}))
	svc.wait(t, 1)

	svc.mu.Lock()
	defer svc.mu.Unlock()
	require.Len(t, svc.calls, 1)
	assert.Equal(t, "welcome", svc.calls[0].Template)
}

func TestDispatcher_AbsorbsFailures(t *testing.T) {
	bus := NewBus(4, zerolog.Nop())
	svc := newFakeDispatchService(3)
	svc.errs["bad-request"] = errors.New("to is required but not provided")
	svc.results["bad-transport"] = mdomain.DispatchResult{Success: false, Error: "550 relay denied"}
	d := NewDispatcher(bus, svc, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	// A rejected request and a failed send must not stop the consumer.
	require.NoError(t, bus.Publish(ctx, mdomain.DispatchRequest{Template: "bad-request"}))
	require.NoError(t, bus.Publish(ctx, mdomain.DispatchRequest{Template: "bad-transport"}))
	require.NoError(t, bus.Publish(ctx, mdomain.DispatchRequest{Template: "welcome"}))
	svc.wait(t, 3)

	svc.mu.Lock()
	defer svc.mu.Unlock()
	assert.Len(t, svc.calls, 3)
}

func TestDispatcher_StopsOnClosedBus(t *testing.T) {
	bus := NewBus(1, zerolog.Nop())
	svc := newFakeDispatchService(0)
	d := NewDispatcher(bus, svc, zerolog.Nop())

	stopped := make(chan struct{})
	go func() {
		d.Run(context.Background())
		close(stopped)
	}()

	bus.Close()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher did not stop after bus close")
	}
}
