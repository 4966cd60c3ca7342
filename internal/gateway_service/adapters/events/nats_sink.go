package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/zapflow/wagateway/internal/gateway_service/domain"
	"github.com/zapflow/wagateway/internal/platform/messagebroker"
)

const (
	SubjectSessionEvents    = "wagateway.sessions.events"
	SubjectSessionQRCodes   = "wagateway.sessions.qr"
	SubjectDispatchProgress = "wagateway.dispatch.progress"
)

// NatsSink publishes core events to NATS for UI and other listeners. Every
// publish is fire-and-forget: failures are logged and swallowed, and core
// NATS publishes never block on listeners.
type NatsSink struct {
	client *messagebroker.NatsClient
	logger *slog.Logger
}

// NewNatsSink creates a NatsSink over the shared NATS client.
func NewNatsSink(client *messagebroker.NatsClient, logger *slog.Logger) *NatsSink {
	return &NatsSink{
		client: client,
		logger: logger.With("component", "nats_sink"),
	}
}

// sessionEventPayload is the wire shape for session transition notifications.
type sessionEventPayload struct {
	SessionID        string     `json:"session_id"`
	DisplayName      string     `json:"display_name"`
	State            string     `json:"state"`
	ReconnectAttempt int        `json:"reconnect_attempt"`
	LastConnectedAt  *time.Time `json:"last_connected_at,omitempty"`
	At               time.Time  `json:"at"`
}

type qrCodePayload struct {
	SessionID string    `json:"session_id"`
	QRData    string    `json:"qr_data"`
	At        time.Time `json:"at"`
}

type dispatchProgressPayload struct {
	RunID   string                 `json:"run_id"`
	Outcome domain.DispatchOutcome `json:"outcome"`
	At      time.Time              `json:"at"`
}

func (s *NatsSink) SessionStateChanged(session domain.Session) {
	s.publish(SubjectSessionEvents, sessionEventPayload{
		SessionID:        session.ID,
		DisplayName:      session.DisplayName,
		State:            string(session.State),
		ReconnectAttempt: session.ReconnectAttempt,
		LastConnectedAt:  session.LastConnectedAt,
		At:               time.Now().UTC(),
	})
}

func (s *NatsSink) QRCodeReceived(sessionID, qrData string) {
	s.publish(SubjectSessionQRCodes, qrCodePayload{
		SessionID: sessionID,
		QRData:    qrData,
		At:        time.Now().UTC(),
	})
}

func (s *NatsSink) DispatchProgress(runID string, outcome domain.DispatchOutcome) {
	s.publish(SubjectDispatchProgress, dispatchProgressPayload{
		RunID:   runID,
		Outcome: outcome,
		At:      time.Now().UTC(),
	})
}

func (s *NatsSink) publish(subject string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Warn("Error marshaling event payload", "error", err, "subject", subject)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.client.Publish(ctx, subject, data); err != nil {
		s.logger.Warn("Error publishing event", "error", err, "subject", subject)
	}
}
