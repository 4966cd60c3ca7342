package app

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/zapflow/wagateway/internal/gateway_service/domain"
	"github.com/zapflow/wagateway/internal/gateway_service/provider"
	"github.com/zapflow/wagateway/internal/gateway_service/repository"
)

// maxReconnectAttempts is the number of automatic reconnections tried after a
// drop; after that the session stays Disconnected until explicitly re-triggered.
const maxReconnectAttempts = 2

// RegistryConfig holds the reconnection backoff delays.
type RegistryConfig struct {
	ReconnectFirstDelay  time.Duration
	ReconnectSecondDelay time.Duration
}

// managedSession pairs the session snapshot with its transport and the
// concurrency handles the registry owns for it.
type managedSession struct {
	session        domain.Session
	transport      provider.ChatTransport
	loopCancel     context.CancelFunc
	reconnectTimer *time.Timer
	// emits carries transition snapshots to the session's emitter goroutine,
	// which does persistence and sink delivery off the registry mutex.
	emits chan domain.Session
	// gen is bumped on every state transition and on teardown; timer callbacks
	// capture the value at scheduling time and abort when it no longer matches,
	// so a stale timer can never mutate state after the fact.
	gen uint64
}

// SessionRegistry owns every registered chat-network session and the single
// "current" pointer. All session state mutations go through the registry's
// mutex; transport events are funneled in by one goroutine per session.
type SessionRegistry struct {
	mu        sync.Mutex
	sessions  map[string]*managedSession
	currentID string

	store  repository.SessionStore
	sink   EventSink
	logger *slog.Logger
	cfg    RegistryConfig
}

// NewSessionRegistry creates an empty registry. store and sink may not be nil;
// pass NoopSink when no broker is wired.
func NewSessionRegistry(store repository.SessionStore, sink EventSink, logger *slog.Logger, cfg RegistryConfig) *SessionRegistry {
	return &SessionRegistry{
		sessions: make(map[string]*managedSession),
		store:    store,
		sink:     sink,
		logger:   logger.With("component", "session_registry"),
		cfg:      cfg,
	}
}

// Register adds a session under the caller-chosen id and starts connecting its
// transport. Fails with ErrDuplicateSessionID when the id is taken.
func (r *SessionRegistry) Register(ctx context.Context, id, displayName string, transport provider.ChatTransport) (domain.Session, error) {
	r.mu.Lock()
	if _, exists := r.sessions[id]; exists {
		r.mu.Unlock()
		return domain.Session{}, fmt.Errorf("register session '%s': %w", id, domain.ErrDuplicateSessionID)
	}

	loopCtx, loopCancel := context.WithCancel(context.Background())
	ms := &managedSession{
		session:    *domain.NewSession(id, displayName),
		transport:  transport,
		loopCancel: loopCancel,
		emits:      make(chan domain.Session, 32),
	}
	r.sessions[id] = ms
	r.enqueueTransitionLocked(ms)
	snapshot := ms.session
	r.mu.Unlock()

	go r.emitLoop(ms.emits)
	go r.eventLoop(loopCtx, id, transport)
	go r.connectTransport(id, transport)

	return snapshot, nil
}

// SetCurrent designates the dispatch target session.
func (r *SessionRegistry) SetCurrent(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sessions[id]; !exists {
		return fmt.Errorf("set current session '%s': %w", id, domain.ErrUnknownSession)
	}
	r.currentID = id
	return nil
}

// Current returns a snapshot of the current session, if one is designated.
func (r *SessionRegistry) Current() (domain.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ms, ok := r.sessions[r.currentID]
	if !ok {
		return domain.Session{}, false
	}
	return ms.session, true
}

// Get returns a snapshot of the identified session.
func (r *SessionRegistry) Get(id string) (domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ms, ok := r.sessions[id]
	if !ok {
		return domain.Session{}, fmt.Errorf("get session '%s': %w", id, domain.ErrUnknownSession)
	}
	return ms.session, nil
}

// List returns snapshots of every registered session, ordered by id.
func (r *SessionRegistry) List() []domain.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Session, 0, len(r.sessions))
	for _, ms := range r.sessions {
		out = append(out, ms.session)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// AnyConnected reports whether at least one registered session is Connected.
func (r *SessionRegistry) AnyConnected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ms := range r.sessions {
		if ms.session.State == domain.SessionConnected {
			return true
		}
	}
	return false
}

// CurrentTransport returns the current session's id and transport when it is
// designated and Connected; otherwise ErrNoActiveSession.
func (r *SessionRegistry) CurrentTransport() (string, provider.ChatTransport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ms, ok := r.sessions[r.currentID]
	if !ok || ms.session.State != domain.SessionConnected {
		return "", nil, domain.ErrNoActiveSession
	}
	return r.currentID, ms.transport, nil
}

// ConnectedTransport returns a transport usable for registration probes: the
// current session's when it is connected, otherwise any connected session's.
func (r *SessionRegistry) ConnectedTransport() (provider.ChatTransport, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ms, ok := r.sessions[r.currentID]; ok && ms.session.State == domain.SessionConnected {
		return ms.transport, true
	}
	for _, ms := range r.sessions {
		if ms.session.State == domain.SessionConnected {
			return ms.transport, true
		}
	}
	return nil, false
}

// Remove tears the session down: pending timers are cancelled, the event loop
// stopped, the transport disconnected best-effort, and the persisted row
// deleted. Clears current when it pointed at this id.
func (r *SessionRegistry) Remove(ctx context.Context, id string) error {
	r.mu.Lock()
	ms, ok := r.sessions[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("remove session '%s': %w", id, domain.ErrUnknownSession)
	}
	ms.gen++
	if ms.reconnectTimer != nil {
		ms.reconnectTimer.Stop()
		ms.reconnectTimer = nil
	}
	ms.loopCancel()
	delete(r.sessions, id)
	if r.currentID == id {
		r.currentID = ""
	}
	transport := ms.transport
	r.mu.Unlock()

	// No transition can be enqueued once the session left the map, so the
	// emitter can drain and exit.
	close(ms.emits)

	if err := transport.Disconnect(ctx); err != nil {
		r.logger.WarnContext(ctx, "Error disconnecting transport during session removal", "error", err, "session_id", id)
	}
	if err := r.store.DeleteSession(ctx, id); err != nil {
		r.logger.WarnContext(ctx, "Error deleting persisted session", "error", err, "session_id", id)
	}
	return nil
}

// Shutdown tears down every session's timers, event loops, and transports
// without deleting persisted rows, so sessions are still listed after a
// restart. Used on service stop; explicit removal goes through Remove.
func (r *SessionRegistry) Shutdown(ctx context.Context) {
	r.mu.Lock()
	transports := make(map[string]provider.ChatTransport, len(r.sessions))
	emitChans := make([]chan domain.Session, 0, len(r.sessions))
	for id, ms := range r.sessions {
		ms.gen++
		if ms.reconnectTimer != nil {
			ms.reconnectTimer.Stop()
			ms.reconnectTimer = nil
		}
		ms.loopCancel()
		transports[id] = ms.transport
		emitChans = append(emitChans, ms.emits)
	}
	r.sessions = make(map[string]*managedSession)
	r.currentID = ""
	r.mu.Unlock()

	for _, emits := range emitChans {
		close(emits)
	}
	for id, transport := range transports {
		if err := transport.Disconnect(ctx); err != nil {
			r.logger.WarnContext(ctx, "Error disconnecting transport during shutdown", "error", err, "session_id", id)
		}
	}
}

// Reconnect is the explicit external re-trigger that moves a session out of
// the terminal Disconnected state: the attempt counter is reset and a fresh
// connect is started immediately.
func (r *SessionRegistry) Reconnect(id string) error {
	r.mu.Lock()
	ms, ok := r.sessions[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("reconnect session '%s': %w", id, domain.ErrUnknownSession)
	}
	ms.session.ReconnectAttempt = 0
	r.transitionLocked(ms, domain.SessionConnecting)
	transport := ms.transport
	r.mu.Unlock()

	go r.connectTransport(id, transport)
	return nil
}

// eventLoop funnels one session's transport events into the registry. It runs
// until the session is removed or the transport closes its stream; each
// session's loop is independent so a slow transport never stalls the others.
func (r *SessionRegistry) eventLoop(ctx context.Context, id string, transport provider.ChatTransport) {
	events := transport.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			r.handleTransportEvent(id, ev)
		}
	}
}

func (r *SessionRegistry) handleTransportEvent(id string, ev provider.Event) {
	r.mu.Lock()
	ms, ok := r.sessions[id]
	if !ok {
		r.mu.Unlock()
		return
	}

	switch ev.Kind {
	case provider.EventReady:
		now := time.Now().UTC()
		ms.session.LastConnectedAt = &now
		ms.session.ReconnectAttempt = 0
		if ms.reconnectTimer != nil {
			ms.reconnectTimer.Stop()
			ms.reconnectTimer = nil
		}
		r.transitionLocked(ms, domain.SessionConnected)
	case provider.EventDisconnected, provider.EventAuthFailure:
		r.transitionLocked(ms, domain.SessionDisconnected)
		r.scheduleReconnectLocked(id, ms)
	case provider.EventQRCode:
		r.sink.QRCodeReceived(id, ev.QRData)
	}
	r.mu.Unlock()
}

// connectTransport runs a transport connect attempt off the registry
// goroutine. A synchronous connect error counts as a failed attempt; success
// is only reached through the transport's ready event.
func (r *SessionRegistry) connectTransport(id string, transport provider.ChatTransport) {
	if err := transport.Connect(context.Background()); err != nil {
		r.logger.Warn("Transport connect failed", "error", err, "session_id", id)
		r.mu.Lock()
		if ms, ok := r.sessions[id]; ok && ms.session.State == domain.SessionConnecting {
			r.transitionLocked(ms, domain.SessionDisconnected)
			r.scheduleReconnectLocked(id, ms)
		}
		r.mu.Unlock()
	}
}

// scheduleReconnectLocked arms the backoff timer for the next automatic
// reconnection attempt, or leaves the session Disconnected for good once both
// attempts are spent.
func (r *SessionRegistry) scheduleReconnectLocked(id string, ms *managedSession) {
	if ms.session.ReconnectAttempt >= maxReconnectAttempts {
		r.logger.Info("Reconnect attempts exhausted; session stays disconnected until re-triggered",
			"session_id", id, "attempts", ms.session.ReconnectAttempt)
		return
	}
	attempt := ms.session.ReconnectAttempt + 1
	delay := r.cfg.ReconnectFirstDelay
	if attempt > 1 {
		delay = r.cfg.ReconnectSecondDelay
	}
	gen := ms.gen
	r.logger.Info("Scheduling reconnect attempt", "session_id", id, "attempt", attempt, "delay", delay)
	ms.reconnectTimer = time.AfterFunc(delay, func() {
		r.attemptReconnect(id, gen, attempt)
	})
}

func (r *SessionRegistry) attemptReconnect(id string, gen uint64, attempt int) {
	r.mu.Lock()
	ms, ok := r.sessions[id]
	if !ok || ms.gen != gen || ms.session.State != domain.SessionDisconnected {
		// Session removed, or state moved on since the timer was armed.
		r.mu.Unlock()
		return
	}
	ms.session.ReconnectAttempt = attempt
	ms.reconnectTimer = nil
	reconnectAttemptsCounter.WithLabelValues(fmt.Sprintf("%d", attempt)).Inc()
	r.transitionLocked(ms, domain.SessionConnecting)
	transport := ms.transport
	r.mu.Unlock()

	r.connectTransport(id, transport)
}

// transitionLocked applies a state change and hands its side effects to the
// session's emitter. This is the only place session state is updated.
func (r *SessionRegistry) transitionLocked(ms *managedSession, state domain.SessionState) {
	ms.session.State = state
	ms.gen++
	r.enqueueTransitionLocked(ms)
}

// enqueueTransitionLocked snapshots the session for its emitter goroutine.
// Persistence and sink delivery happen off the registry mutex, so one
// session's slow store write never stalls another session's event handling
// or registry reads. The store is a side-channel; on backlog overflow the
// update is dropped with a log, never blocked on.
func (r *SessionRegistry) enqueueTransitionLocked(ms *managedSession) {
	select {
	case ms.emits <- ms.session:
	default:
		r.logger.Warn("Session transition backlog full; dropping persistence update",
			"session_id", ms.session.ID, "state", ms.session.State)
	}
}

// emitLoop persists and publishes one session's transitions in the order they
// were applied, then exits when the session is torn down.
func (r *SessionRegistry) emitLoop(emits <-chan domain.Session) {
	for session := range emits {
		sessionTransitionsCounter.WithLabelValues(string(session.State)).Inc()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := r.store.UpsertSessionStatus(ctx, session.ID, session.DisplayName, session.State, session.LastConnectedAt); err != nil {
			r.logger.Warn("Error persisting session status", "error", err, "session_id", session.ID, "status", session.State)
		}
		cancel()

		// Sink implementations are required to be non-blocking.
		r.sink.SessionStateChanged(session)

		r.logger.Info("Session state transition", "session_id", session.ID, "state", session.State, "reconnect_attempt", session.ReconnectAttempt)
	}
}
