package provider

import "context"

// EventKind identifies a transport lifecycle event.
type EventKind string

const (
	EventReady        EventKind = "ready"
	EventDisconnected EventKind = "disconnected"
	EventAuthFailure  EventKind = "auth_failure"
	EventQRCode       EventKind = "qr_code"
)

// Event is one asynchronous transport notification. QRData is set only for
// EventQRCode; Detail carries a human-readable reason when present.
type Event struct {
	Kind   EventKind
	QRData string
	Detail string
}

// SendRequest holds the data for one outbound message send.
type SendRequest struct {
	Address    string // canonical network address, e.g. "5567912345678@c.us"
	Body       string
	Attachment []byte // optional; nil when the message is text-only
}

// ChatTransport is the capability the core requires from the underlying
// chat-network protocol implementation. QR pairing, encryption, and the wire
// format all live behind this interface.
type ChatTransport interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	SendMessage(ctx context.Context, req SendRequest) error
	IsAddressRegistered(ctx context.Context, address string) (bool, error)
	// Events returns the stream of transport lifecycle events. The channel is
	// closed when the transport is torn down.
	Events() <-chan Event
}
