package postgres

import (
	"context"
	"log/slog"

	"github.com/zapflow/wagateway/internal/gateway_service/domain"
	"github.com/zapflow/wagateway/internal/gateway_service/repository"
)

// PgConversationStore reads and mutates conversation rows owned by the
// external persistence layer.
type PgConversationStore struct {
	db     repository.Querier
	logger *slog.Logger
}

func NewPgConversationStore(db repository.Querier, logger *slog.Logger) *PgConversationStore {
	return &PgConversationStore{db: db, logger: logger.With("repo", "conversation_pg")}
}

// ListConversationsGroupedByCustomerAndChat returns every conversation grouped
// by (customer_id, chat_id). Groups and their members come back in a stable
// order: groups by key, members by created_at ascending, so the earliest row
// is always Members[0].
func (r *PgConversationStore) ListConversationsGroupedByCustomerAndChat(ctx context.Context) ([]repository.ConversationGroup, error) {
	query := `
		SELECT id, customer_id, chat_id, status, created_at
		FROM conversations
		ORDER BY customer_id, chat_id, created_at, id
	`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error listing conversations", "error", err)
		return nil, err
	}
	defer rows.Close()

	var groups []repository.ConversationGroup
	for rows.Next() {
		c := &domain.Conversation{}
		if err := rows.Scan(&c.ID, &c.CustomerID, &c.ChatID, &c.Status, &c.CreatedAt); err != nil {
			r.logger.ErrorContext(ctx, "Error scanning conversation row", "error", err)
			return nil, err
		}
		n := len(groups)
		if n > 0 && groups[n-1].CustomerID == c.CustomerID && groups[n-1].ChatID == c.ChatID {
			groups[n-1].Members = append(groups[n-1].Members, c)
			continue
		}
		groups = append(groups, repository.ConversationGroup{
			CustomerID: c.CustomerID,
			ChatID:     c.ChatID,
			Members:    []*domain.Conversation{c},
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return groups, nil
}

func (r *PgConversationStore) ReassignMessages(ctx context.Context, fromConversationID, toConversationID string) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE messages SET conversation_id = $2 WHERE conversation_id = $1`,
		fromConversationID, toConversationID,
	)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error reassigning messages",
			"error", err, "from_conversation_id", fromConversationID, "to_conversation_id", toConversationID)
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *PgConversationStore) DeleteConversation(ctx context.Context, id string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM conversations WHERE id = $1`, id)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error deleting conversation", "error", err, "conversation_id", id)
		return err
	}
	return nil
}
