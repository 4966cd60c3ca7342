package app

import "github.com/zapflow/wagateway/internal/gateway_service/domain"

// EventSink receives fire-and-forget notifications about session state
// transitions and dispatch progress. Implementations must never block the
// caller and must swallow delivery failures; the core does not care whether
// anyone is listening.
type EventSink interface {
	SessionStateChanged(session domain.Session)
	QRCodeReceived(sessionID, qrData string)
	DispatchProgress(runID string, outcome domain.DispatchOutcome)
}

// NoopSink discards every event. Used when no broker is configured and in
// tests that don't assert on notifications.
type NoopSink struct{}

func (NoopSink) SessionStateChanged(domain.Session)              {}
func (NoopSink) QRCodeReceived(string, string)                   {}
func (NoopSink) DispatchProgress(string, domain.DispatchOutcome) {}
