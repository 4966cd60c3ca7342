package domain

import "time"

// Conversation references a conversation row in the external store. The core
// never owns these; it only reads them and issues reassign/delete commands
// through the ConversationStore.
type Conversation struct {
	ID         string    `json:"id"`
	CustomerID string    `json:"customer_id"`
	ChatID     string    `json:"chat_id"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
}

// MergeReport summarizes one duplicate-conversation merge pass.
type MergeReport struct {
	MergedGroups int `json:"merged_groups"`
	FailedGroups int `json:"failed_groups"`
}
