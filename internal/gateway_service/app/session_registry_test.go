package app

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zapflow/wagateway/internal/gateway_service/domain"
	"github.com/zapflow/wagateway/internal/gateway_service/provider"
)

// scriptedTransport is a transport whose connect outcome and events are fully
// driven by the test.
type scriptedTransport struct {
	mu           sync.Mutex
	connectErr   error
	connectCalls int
	events       chan provider.Event
}

func newScriptedTransport() *scriptedTransport {
	return &scriptedTransport{events: make(chan provider.Event, 16)}
}

func (t *scriptedTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connectCalls++
	return t.connectErr
}

func (t *scriptedTransport) Disconnect(ctx context.Context) error { return nil }

func (t *scriptedTransport) SendMessage(ctx context.Context, req provider.SendRequest) error {
	return nil
}

func (t *scriptedTransport) IsAddressRegistered(ctx context.Context, address string) (bool, error) {
	return true, nil
}

func (t *scriptedTransport) Events() <-chan provider.Event { return t.events }

func (t *scriptedTransport) emit(ev provider.Event) { t.events <- ev }

func (t *scriptedTransport) calls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connectCalls
}

func (t *scriptedTransport) setConnectErr(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connectErr = err
}

// fakeSessionStore records persistence calls; always succeeds.
type fakeSessionStore struct {
	mu      sync.Mutex
	upserts []domain.SessionState
	deletes []string
}

func (s *fakeSessionStore) UpsertSessionStatus(ctx context.Context, id, displayName string, state domain.SessionState, lastConnectedAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upserts = append(s.upserts, state)
	return nil
}

func (s *fakeSessionStore) ListSessions(ctx context.Context) ([]*domain.Session, error) {
	return nil, nil
}

func (s *fakeSessionStore) DeleteSession(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletes = append(s.deletes, id)
	return nil
}

func (s *fakeSessionStore) recorded() []domain.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.SessionState(nil), s.upserts...)
}

func (s *fakeSessionStore) deleted() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.deletes...)
}

func testRegistry(store *fakeSessionStore, first, second time.Duration) *SessionRegistry {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewSessionRegistry(store, NoopSink{}, logger, RegistryConfig{
		ReconnectFirstDelay:  first,
		ReconnectSecondDelay: second,
	})
}

func TestSessionRegistry_RegisterAndDuplicate(t *testing.T) {
	registry := testRegistry(&fakeSessionStore{}, time.Second, time.Second)
	transport := newScriptedTransport()

	session, err := registry.Register(context.Background(), "wa-1", "Main line", transport)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionConnecting, session.State)

	_, err = registry.Register(context.Background(), "wa-1", "Other", newScriptedTransport())
	assert.ErrorIs(t, err, domain.ErrDuplicateSessionID)
}

func TestSessionRegistry_ConnectedOnReady(t *testing.T) {
	store := &fakeSessionStore{}
	registry := testRegistry(store, time.Second, time.Second)
	transport := newScriptedTransport()

	_, err := registry.Register(context.Background(), "wa-1", "Main line", transport)
	require.NoError(t, err)

	transport.emit(provider.Event{Kind: provider.EventReady})

	require.Eventually(t, func() bool {
		s, err := registry.Get("wa-1")
		return err == nil && s.State == domain.SessionConnected
	}, time.Second, 5*time.Millisecond)

	s, err := registry.Get("wa-1")
	require.NoError(t, err)
	assert.Equal(t, 0, s.ReconnectAttempt)
	assert.NotNil(t, s.LastConnectedAt)
	assert.True(t, registry.AnyConnected())
	require.Eventually(t, func() bool {
		for _, state := range store.recorded() {
			if state == domain.SessionConnected {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)
}

func TestSessionRegistry_CurrentPointer(t *testing.T) {
	registry := testRegistry(&fakeSessionStore{}, time.Second, time.Second)

	_, ok := registry.Current()
	assert.False(t, ok)

	assert.ErrorIs(t, registry.SetCurrent("nope"), domain.ErrUnknownSession)

	_, err := registry.Register(context.Background(), "wa-1", "Main line", newScriptedTransport())
	require.NoError(t, err)
	require.NoError(t, registry.SetCurrent("wa-1"))

	current, ok := registry.Current()
	require.True(t, ok)
	assert.Equal(t, "wa-1", current.ID)
}

func TestSessionRegistry_ReconnectBackoff(t *testing.T) {
	const (
		firstDelay  = 80 * time.Millisecond
		secondDelay = 240 * time.Millisecond
	)
	registry := testRegistry(&fakeSessionStore{}, firstDelay, secondDelay)
	transport := newScriptedTransport()
	transport.setConnectErr(assert.AnError)

	_, err := registry.Register(context.Background(), "wa-1", "Main line", transport)
	require.NoError(t, err)

	// The initial connect fails immediately; attempt #1 must not fire before
	// the first backoff delay.
	require.Eventually(t, func() bool { return transport.calls() == 1 }, time.Second, time.Millisecond)
	time.Sleep(firstDelay / 2)
	assert.Equal(t, 1, transport.calls(), "reconnect attempt fired before backoff delay")

	// Attempt #1, then attempt #2 after the longer delay.
	require.Eventually(t, func() bool { return transport.calls() == 2 }, time.Second, time.Millisecond)
	time.Sleep(secondDelay / 3)
	assert.Equal(t, 2, transport.calls(), "second attempt fired before its backoff delay")
	require.Eventually(t, func() bool { return transport.calls() == 3 }, time.Second, time.Millisecond)

	// No third automatic attempt: the session stays Disconnected.
	time.Sleep(2 * secondDelay)
	assert.Equal(t, 3, transport.calls())
	s, err := registry.Get("wa-1")
	require.NoError(t, err)
	assert.Equal(t, domain.SessionDisconnected, s.State)
	assert.Equal(t, maxReconnectAttempts, s.ReconnectAttempt)
}

func TestSessionRegistry_AttemptCounterResetsOnConnect(t *testing.T) {
	registry := testRegistry(&fakeSessionStore{}, 20*time.Millisecond, 20*time.Millisecond)
	transport := newScriptedTransport()

	_, err := registry.Register(context.Background(), "wa-1", "Main line", transport)
	require.NoError(t, err)
	transport.emit(provider.Event{Kind: provider.EventReady})
	require.Eventually(t, func() bool {
		s, _ := registry.Get("wa-1")
		return s.State == domain.SessionConnected
	}, time.Second, time.Millisecond)

	// Drop the link; reconnect attempt #1 fires and succeeds.
	transport.emit(provider.Event{Kind: provider.EventDisconnected})
	require.Eventually(t, func() bool { return transport.calls() == 2 }, time.Second, time.Millisecond)
	transport.emit(provider.Event{Kind: provider.EventReady})

	require.Eventually(t, func() bool {
		s, _ := registry.Get("wa-1")
		return s.State == domain.SessionConnected && s.ReconnectAttempt == 0
	}, time.Second, time.Millisecond)
}

func TestSessionRegistry_ExplicitReconnectAfterExhaustion(t *testing.T) {
	registry := testRegistry(&fakeSessionStore{}, 10*time.Millisecond, 10*time.Millisecond)
	transport := newScriptedTransport()
	transport.setConnectErr(assert.AnError)

	_, err := registry.Register(context.Background(), "wa-1", "Main line", transport)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		s, _ := registry.Get("wa-1")
		return s.State == domain.SessionDisconnected && s.ReconnectAttempt == maxReconnectAttempts
	}, time.Second, time.Millisecond)

	transport.setConnectErr(nil)
	require.NoError(t, registry.Reconnect("wa-1"))
	transport.emit(provider.Event{Kind: provider.EventReady})

	require.Eventually(t, func() bool {
		s, _ := registry.Get("wa-1")
		return s.State == domain.SessionConnected && s.ReconnectAttempt == 0
	}, time.Second, time.Millisecond)
}

func TestSessionRegistry_RemoveCancelsPendingReconnect(t *testing.T) {
	store := &fakeSessionStore{}
	registry := testRegistry(store, 150*time.Millisecond, 150*time.Millisecond)
	transport := newScriptedTransport()
	transport.setConnectErr(assert.AnError)

	_, err := registry.Register(context.Background(), "wa-1", "Main line", transport)
	require.NoError(t, err)
	require.NoError(t, registry.SetCurrent("wa-1"))
	require.Eventually(t, func() bool { return transport.calls() == 1 }, time.Second, time.Millisecond)

	// Remove while the first backoff timer is armed; the stale timer must not
	// trigger another connect.
	require.NoError(t, registry.Remove(context.Background(), "wa-1"))
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, 1, transport.calls())

	_, ok := registry.Current()
	assert.False(t, ok, "current pointer should be cleared by removal")
	assert.Contains(t, store.deleted(), "wa-1")
	assert.ErrorIs(t, registry.Remove(context.Background(), "wa-1"), domain.ErrUnknownSession)
}

func TestSessionRegistry_AuthFailureDisconnects(t *testing.T) {
	registry := testRegistry(&fakeSessionStore{}, time.Hour, time.Hour)
	transport := newScriptedTransport()

	_, err := registry.Register(context.Background(), "wa-1", "Main line", transport)
	require.NoError(t, err)
	transport.emit(provider.Event{Kind: provider.EventAuthFailure, Detail: "pairing rejected"})

	require.Eventually(t, func() bool {
		s, _ := registry.Get("wa-1")
		return s.State == domain.SessionDisconnected
	}, time.Second, time.Millisecond)
	assert.False(t, registry.AnyConnected())
}

// slowSessionStore stalls every upsert for a fixed delay.
type slowSessionStore struct {
	fakeSessionStore
	delay time.Duration
}

func (s *slowSessionStore) UpsertSessionStatus(ctx context.Context, id, displayName string, state domain.SessionState, lastConnectedAt *time.Time) error {
	time.Sleep(s.delay)
	return s.fakeSessionStore.UpsertSessionStatus(ctx, id, displayName, state, lastConnectedAt)
}

func TestSessionRegistry_SlowPersistenceDoesNotBlockOtherSessions(t *testing.T) {
	store := &slowSessionStore{delay: 800 * time.Millisecond}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	registry := NewSessionRegistry(store, NoopSink{}, logger, RegistryConfig{
		ReconnectFirstDelay:  time.Hour,
		ReconnectSecondDelay: time.Hour,
	})

	transportA := newScriptedTransport()
	transportB := newScriptedTransport()
	_, err := registry.Register(context.Background(), "wa-a", "Line A", transportA)
	require.NoError(t, err)
	_, err = registry.Register(context.Background(), "wa-b", "Line B", transportB)
	require.NoError(t, err)

	start := time.Now()
	transportA.emit(provider.Event{Kind: provider.EventReady})
	transportB.emit(provider.Event{Kind: provider.EventReady})

	// Both sessions must reach Connected, and registry reads must answer,
	// while session A's store write is still in flight.
	require.Eventually(t, func() bool {
		a, errA := registry.Get("wa-a")
		b, errB := registry.Get("wa-b")
		return errA == nil && errB == nil &&
			a.State == domain.SessionConnected && b.State == domain.SessionConnected
	}, 500*time.Millisecond, 5*time.Millisecond)
	assert.Less(t, time.Since(start), 400*time.Millisecond,
		"state transitions waited on another session's persistence")

	// The writes themselves still land, in order, per session.
	require.Eventually(t, func() bool {
		connected := 0
		for _, state := range store.recorded() {
			if state == domain.SessionConnected {
				connected++
			}
		}
		return connected == 2
	}, 5*time.Second, 10*time.Millisecond)
}
