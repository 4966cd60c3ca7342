package provider

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// MockChatTransport is a test/dev implementation of ChatTransport. Connect
// emits a ready event after SimulatedDelay; sends succeed unless FailSend is
// set. Tests can drive arbitrary transport events through Emit.
type MockChatTransport struct {
	logger                *slog.Logger
	FailSend              bool
	UnregisteredAddresses map[string]bool
	SimulatedDelay        time.Duration

	mu     sync.Mutex
	events chan Event
	closed bool

	sentMu sync.Mutex
	sent   []SendRequest
}

// NewMockChatTransport creates a new MockChatTransport.
func NewMockChatTransport(logger *slog.Logger, failSend bool, delay time.Duration) *MockChatTransport {
	return &MockChatTransport{
		logger:         logger.With("transport", "mock"),
		FailSend:       failSend,
		SimulatedDelay: delay,
		events:         make(chan Event, 16),
	}
}

// Connect simulates pairing and signals readiness through the event stream.
func (t *MockChatTransport) Connect(ctx context.Context) error {
	t.logger.InfoContext(ctx, "MockChatTransport: Connect called")
	if t.SimulatedDelay > 0 {
		time.Sleep(t.SimulatedDelay)
	}
	t.Emit(Event{Kind: EventReady})
	return nil
}

// Disconnect tears the transport down and closes the event stream.
func (t *MockChatTransport) Disconnect(ctx context.Context) error {
	t.logger.InfoContext(ctx, "MockChatTransport: Disconnect called")
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.closed {
		t.closed = true
		close(t.events)
	}
	return nil
}

// SendMessage simulates one outbound send.
func (t *MockChatTransport) SendMessage(ctx context.Context, req SendRequest) error {
	if t.SimulatedDelay > 0 {
		time.Sleep(t.SimulatedDelay)
	}
	if t.FailSend {
		t.logger.WarnContext(ctx, "MockChatTransport: simulated send failure", "address", req.Address)
		return fmt.Errorf("mock transport simulated send failure for %s", req.Address)
	}
	t.sentMu.Lock()
	t.sent = append(t.sent, req)
	t.sentMu.Unlock()
	t.logger.InfoContext(ctx, "MockChatTransport: message sent (simulated)",
		"address", req.Address, "body_len", len(req.Body), "has_attachment", req.Attachment != nil)
	return nil
}

// IsAddressRegistered reports true unless the address was explicitly marked
// unregistered.
func (t *MockChatTransport) IsAddressRegistered(ctx context.Context, address string) (bool, error) {
	if t.UnregisteredAddresses[address] {
		return false, nil
	}
	return true, nil
}

// Events returns the transport event stream.
func (t *MockChatTransport) Events() <-chan Event {
	return t.events
}

// Emit pushes an event onto the stream; a no-op after Disconnect.
func (t *MockChatTransport) Emit(ev Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.events <- ev
}

// Sent returns a copy of every successfully sent request, in order.
func (t *MockChatTransport) Sent() []SendRequest {
	t.sentMu.Lock()
	defer t.sentMu.Unlock()
	out := make([]SendRequest, len(t.sent))
	copy(out, t.sent)
	return out
}
