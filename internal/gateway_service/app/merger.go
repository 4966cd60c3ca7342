package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/zapflow/wagateway/internal/gateway_service/domain"
	"github.com/zapflow/wagateway/internal/gateway_service/repository"
)

// ConversationMerger folds duplicate conversation rows created by flaky
// reconnects. Duplicates are rows sharing (customerID, chatID); the earliest
// row survives, messages are reassigned to it, and the rest are deleted.
type ConversationMerger struct {
	store  repository.ConversationStore
	logger *slog.Logger
}

// NewConversationMerger creates a ConversationMerger over the store.
func NewConversationMerger(store repository.ConversationStore, logger *slog.Logger) *ConversationMerger {
	return &ConversationMerger{
		store:  store,
		logger: logger.With("component", "conversation_merger"),
	}
}

// FindAndMergeDuplicates runs one merge pass and reports how many groups were
// merged and how many were abandoned. A group whose message reassignment
// fails is left intact and processing continues with the next group; the pass
// as a whole only errors when the store listing itself fails. Running the
// pass twice with no intervening writes merges zero groups the second time.
func (m *ConversationMerger) FindAndMergeDuplicates(ctx context.Context) (domain.MergeReport, error) {
	groups, err := m.store.ListConversationsGroupedByCustomerAndChat(ctx)
	if err != nil {
		return domain.MergeReport{}, fmt.Errorf("failed to list conversation groups: %w", err)
	}

	var report domain.MergeReport
	for _, group := range groups {
		if len(group.Members) < 2 {
			continue
		}
		if err := m.mergeGroup(ctx, group); err != nil {
			m.logger.WarnContext(ctx, "Merge abandoned for group",
				"error", err, "customer_id", group.CustomerID, "chat_id", group.ChatID)
			report.FailedGroups++
			mergeFailedGroupsCounter.Inc()
			continue
		}
		report.MergedGroups++
		mergedGroupsCounter.Inc()
	}

	m.logger.InfoContext(ctx, "Merge pass finished",
		"merged_groups", report.MergedGroups, "failed_groups", report.FailedGroups)
	return report, nil
}

// mergeGroup folds one duplicate group into its earliest member. Reassigning
// zero messages is fine; a concurrent writer may already have moved them.
func (m *ConversationMerger) mergeGroup(ctx context.Context, group repository.ConversationGroup) error {
	survivor := group.Members[0]
	for _, c := range group.Members[1:] {
		if c.CreatedAt.Before(survivor.CreatedAt) {
			survivor = c
		}
	}

	for _, c := range group.Members {
		if c.ID == survivor.ID {
			continue
		}
		affected, err := m.store.ReassignMessages(ctx, c.ID, survivor.ID)
		if err != nil {
			return fmt.Errorf("reassigning messages from conversation '%s' to '%s': %w", c.ID, survivor.ID, err)
		}
		m.logger.DebugContext(ctx, "Messages reassigned",
			"from_conversation_id", c.ID, "to_conversation_id", survivor.ID, "affected", affected)

		if err := m.store.DeleteConversation(ctx, c.ID); err != nil {
			return fmt.Errorf("deleting merged conversation '%s': %w", c.ID, err)
		}
	}
	return nil
}
