package app

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/zapflow/wagateway/internal/gateway_service/domain"
	"github.com/zapflow/wagateway/internal/gateway_service/provider"
)

// nameToken is the placeholder in message templates replaced with the
// contact's name (empty string when the contact has none).
const nameToken = "{name}"

// DispatchConfig holds validation defaults and pacing ranges for bulk sends.
type DispatchConfig struct {
	DefaultAreaCode string

	// Inter-send delay, drawn uniformly from [MinDelay, MaxDelay] after every
	// network attempt (never after contacts rejected before reaching the
	// network, never after the last contact).
	MinDelay time.Duration
	MaxDelay time.Duration

	// After every LongPauseEvery-th successful send an extra pause from
	// [LongPauseMin, LongPauseMax] is applied.
	LongPauseEvery int
	LongPauseMin   time.Duration
	LongPauseMax   time.Duration
}

// DispatchEngine drives the sequential, paced bulk-send pipeline. At most one
// run may be in flight per session; runs against different sessions may
// overlap freely.
type DispatchEngine struct {
	registry *SessionRegistry
	sink     EventSink
	logger   *slog.Logger
	cfg      DispatchConfig

	// randDelay is swapped out in tests to make pacing observable and fast.
	randDelay func(min, max time.Duration) time.Duration

	mu       sync.Mutex
	inFlight map[string]bool       // session id -> run in flight
	runs     map[string]*runHandle // run id -> handle
}

type runHandle struct {
	cancel context.CancelFunc

	mu  sync.Mutex
	run domain.DispatchRun
}

func (h *runHandle) snapshot() domain.DispatchRun {
	h.mu.Lock()
	defer h.mu.Unlock()
	run := h.run
	run.Outcomes = append([]domain.DispatchOutcome(nil), h.run.Outcomes...)
	return run
}

// NewDispatchEngine creates a DispatchEngine bound to the registry.
func NewDispatchEngine(registry *SessionRegistry, sink EventSink, logger *slog.Logger, cfg DispatchConfig) *DispatchEngine {
	return &DispatchEngine{
		registry: registry,
		sink:     sink,
		logger:   logger.With("component", "dispatch_engine"),
		cfg:      cfg,
		randDelay: func(min, max time.Duration) time.Duration {
			if max <= min {
				return min
			}
			return min + time.Duration(rand.Int63n(int64(max-min)))
		},
		inFlight: make(map[string]bool),
		runs:     make(map[string]*runHandle),
	}
}

// ValidateContact normalizes one raw destination and, when a connected session
// is available, probes the network for address registration. With no session
// connected the probe is skipped and the contact is provisionally valid.
func (e *DispatchEngine) ValidateContact(ctx context.Context, raw string) domain.ValidatedContact {
	vc := domain.NormalizePhone(raw, e.cfg.DefaultAreaCode)
	if !vc.IsValid {
		return vc
	}
	transport, ok := e.registry.ConnectedTransport()
	if !ok {
		return vc
	}
	e.probeRegistration(ctx, transport, &vc)
	return vc
}

func (e *DispatchEngine) probeRegistration(ctx context.Context, transport provider.ChatTransport, vc *domain.ValidatedContact) {
	registered, err := transport.IsAddressRegistered(ctx, vc.NetworkAddress)
	if err != nil {
		// Probe failure is not a verdict; the contact stays provisionally
		// valid and delivery will tell.
		e.logger.WarnContext(ctx, "Registration probe failed", "error", err, "address", vc.NetworkAddress)
		return
	}
	if !registered {
		vc.Reject(domain.ReasonNotRegistered)
	}
}

// DispatchBulk runs the bulk-send pipeline synchronously over the current
// session and returns the itemized report. Precondition failures
// (ErrNoActiveSession, ErrEmptyMessage, ErrEmptyContactList, ErrSessionBusy)
// abort before any network activity.
func (e *DispatchEngine) DispatchBulk(ctx context.Context, contacts []domain.Contact, template string, attachment []byte) (domain.DispatchRun, error) {
	handle, runCtx, sessionID, transport, err := e.begin(ctx, contacts, template, attachment)
	if err != nil {
		return domain.DispatchRun{}, err
	}
	defer handle.cancel()

	e.execute(runCtx, handle, sessionID, transport, contacts, template, attachment)
	return handle.snapshot(), nil
}

// StartDispatch begins a bulk run asynchronously and returns its run id. The
// run is observable through GetRun and cancellable through CancelRun.
func (e *DispatchEngine) StartDispatch(contacts []domain.Contact, template string, attachment []byte) (string, error) {
	handle, runCtx, sessionID, transport, err := e.begin(context.Background(), contacts, template, attachment)
	if err != nil {
		return "", err
	}
	runID := handle.run.ID

	go func() {
		defer handle.cancel()
		e.execute(runCtx, handle, sessionID, transport, contacts, template, attachment)
	}()
	return runID, nil
}

// GetRun returns a snapshot of a known run's report.
func (e *DispatchEngine) GetRun(runID string) (domain.DispatchRun, error) {
	e.mu.Lock()
	handle, ok := e.runs[runID]
	e.mu.Unlock()
	if !ok {
		return domain.DispatchRun{}, fmt.Errorf("run '%s': %w", runID, domain.ErrRunNotFound)
	}
	return handle.snapshot(), nil
}

// CancelRun requests cancellation of an in-flight run. The run stops between
// per-contact steps; already-produced outcomes are kept.
func (e *DispatchEngine) CancelRun(runID string) error {
	e.mu.Lock()
	handle, ok := e.runs[runID]
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("cancel run '%s': %w", runID, domain.ErrRunNotFound)
	}
	handle.cancel()
	return nil
}

// begin checks preconditions, claims the per-session in-flight slot, and
// registers the run. The handle carries a usable cancel func before it is
// published, so CancelRun can never observe a half-built run.
func (e *DispatchEngine) begin(parent context.Context, contacts []domain.Contact, template string, attachment []byte) (*runHandle, context.Context, string, provider.ChatTransport, error) {
	if strings.TrimSpace(template) == "" && len(attachment) == 0 {
		return nil, nil, "", nil, domain.ErrEmptyMessage
	}
	if len(contacts) == 0 {
		return nil, nil, "", nil, domain.ErrEmptyContactList
	}
	sessionID, transport, err := e.registry.CurrentTransport()
	if err != nil {
		return nil, nil, "", nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.inFlight[sessionID] {
		return nil, nil, "", nil, fmt.Errorf("session '%s': %w", sessionID, domain.ErrSessionBusy)
	}
	e.inFlight[sessionID] = true

	runCtx, cancel := context.WithCancel(parent)
	handle := &runHandle{
		cancel: cancel,
		run: domain.DispatchRun{
			ID:        uuid.NewString(),
			SessionID: sessionID,
			State:     domain.RunInFlight,
			Total:     len(contacts),
			StartedAt: time.Now().UTC(),
		},
	}
	e.runs[handle.run.ID] = handle
	return handle, runCtx, sessionID, transport, nil
}

// execute is the sequential per-contact loop. Sends are strictly ordered and
// paced; validation and transport failures are recorded as outcomes and never
// unwind the run.
func (e *DispatchEngine) execute(ctx context.Context, handle *runHandle, sessionID string, transport provider.ChatTransport, contacts []domain.Contact, template string, attachment []byte) {
	runID := handle.run.ID
	e.logger.Info("Dispatch run started", "run_id", runID, "session_id", sessionID, "contacts", len(contacts))

	defer func() {
		e.mu.Lock()
		delete(e.inFlight, sessionID)
		e.mu.Unlock()
	}()

	seen := make(map[string]bool, len(contacts))
	sentCount := 0
	cancelled := false

	for i, contact := range contacts {
		if ctx.Err() != nil {
			cancelled = true
			break
		}

		vc := domain.NormalizePhone(contact.RawPhone, e.cfg.DefaultAreaCode)
		if vc.IsValid {
			e.probeRegistration(ctx, transport, &vc)
		}
		if !vc.IsValid {
			e.record(handle, domain.DispatchOutcome{
				Contact:       contact,
				Validated:     vc,
				Status:        domain.DispatchRejected,
				RejectReasons: vc.RejectReasons,
			})
			continue // rejected before the network: no delay
		}

		if seen[vc.NetworkAddress] {
			vc.Reject(domain.ReasonDuplicateInBatch)
			e.record(handle, domain.DispatchOutcome{
				Contact:       contact,
				Validated:     vc,
				Status:        domain.DispatchRejected,
				RejectReasons: vc.RejectReasons,
			})
			continue
		}
		seen[vc.NetworkAddress] = true

		body := strings.ReplaceAll(template, nameToken, contact.Name)

		sendTimer := prometheus.NewTimer(sendDurationHist.WithLabelValues(sessionID))
		err := transport.SendMessage(ctx, provider.SendRequest{
			Address:    vc.NetworkAddress,
			Body:       body,
			Attachment: attachment,
		})
		sendTimer.ObserveDuration()

		if err != nil {
			e.logger.WarnContext(ctx, "Send failed", "run_id", runID, "address", vc.NetworkAddress, "error", err)
			e.record(handle, domain.DispatchOutcome{
				Contact:     contact,
				Validated:   vc,
				Status:      domain.DispatchFailed,
				ErrorDetail: err.Error(),
			})
		} else {
			sentCount++
			e.record(handle, domain.DispatchOutcome{
				Contact:   contact,
				Validated: vc,
				Status:    domain.DispatchSent,
			})
		}

		// Pacing applies only after a network attempt, and only when more
		// contacts remain.
		if i == len(contacts)-1 {
			continue
		}
		if !e.pause(ctx, e.randDelay(e.cfg.MinDelay, e.cfg.MaxDelay)) {
			cancelled = true
			break
		}
		if err == nil && e.cfg.LongPauseEvery > 0 && sentCount%e.cfg.LongPauseEvery == 0 {
			e.logger.Info("Extended pause", "run_id", runID, "sent_count", sentCount)
			if !e.pause(ctx, e.randDelay(e.cfg.LongPauseMin, e.cfg.LongPauseMax)) {
				cancelled = true
				break
			}
		}
	}

	now := time.Now().UTC()
	handle.mu.Lock()
	handle.run.Cancelled = cancelled
	if cancelled {
		handle.run.State = domain.RunCancelled
	} else {
		handle.run.State = domain.RunCompleted
	}
	handle.run.FinishedAt = &now
	duration := now.Sub(handle.run.StartedAt)
	successful, failed := handle.run.Successful, handle.run.Failed
	handle.mu.Unlock()

	result := "completed"
	if cancelled {
		result = "cancelled"
	}
	dispatchRunDurationHist.WithLabelValues(result).Observe(duration.Seconds())
	e.logger.Info("Dispatch run finished", "run_id", runID, "result", result,
		"successful", successful, "failed", failed, "duration", duration)
}

// record appends one outcome, updates the aggregates, and pushes progress to
// the sink.
func (e *DispatchEngine) record(handle *runHandle, outcome domain.DispatchOutcome) {
	handle.mu.Lock()
	handle.run.Outcomes = append(handle.run.Outcomes, outcome)
	switch outcome.Status {
	case domain.DispatchSent:
		handle.run.Successful++
	case domain.DispatchFailed:
		handle.run.Failed++
	case domain.DispatchRejected:
		handle.run.Rejected++
	}
	runID := handle.run.ID
	handle.mu.Unlock()

	dispatchOutcomesCounter.WithLabelValues(string(outcome.Status)).Inc()
	e.sink.DispatchProgress(runID, outcome)
}

// pause sleeps for d unless the run is cancelled first; reports false on
// cancellation.
func (e *DispatchEngine) pause(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
