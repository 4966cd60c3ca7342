package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/zapflow/wagateway/internal/gateway_service/domain"
)

// Querier abstracts pgxpool.Pool / pgx.Tx so repositories can run against
// either, and against pgxmock in tests.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// SessionStore is the persistence side-channel for session state. It is
// written on every state transition; write failures are logged by callers and
// never block the state machine.
type SessionStore interface {
	UpsertSessionStatus(ctx context.Context, id, displayName string, state domain.SessionState, lastConnectedAt *time.Time) error
	ListSessions(ctx context.Context) ([]*domain.Session, error)
	DeleteSession(ctx context.Context, id string) error
}

// ConversationGroup is one (customerID, chatID) bucket of conversation rows,
// members ordered by CreatedAt ascending.
type ConversationGroup struct {
	CustomerID string
	ChatID     string
	Members    []*domain.Conversation
}

// ConversationStore is the accessor for conversation rows owned by the
// external persistence layer.
type ConversationStore interface {
	ListConversationsGroupedByCustomerAndChat(ctx context.Context) ([]ConversationGroup, error)
	// ReassignMessages points every message of the from-conversation at the
	// to-conversation and returns the number of rows affected. Zero rows is
	// not an error; concurrent writers may have moved them already.
	ReassignMessages(ctx context.Context, fromConversationID, toConversationID string) (int64, error)
	DeleteConversation(ctx context.Context, id string) error
}
