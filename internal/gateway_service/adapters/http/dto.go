package http

import (
	"github.com/zapflow/wagateway/internal/gateway_service/domain"
)

// RegisterSessionRequest DTO for POST /sessions
type RegisterSessionRequest struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

// SessionResponse DTO
type SessionResponse struct {
	Session domain.Session `json:"session"`
}

// ListSessionsResponse DTO
type ListSessionsResponse struct {
	Sessions []domain.Session `json:"sessions"`
}

// ContactDTO is one raw destination in a dispatch or validation request.
type ContactDTO struct {
	Name     string `json:"name,omitempty"`
	RawPhone string `json:"raw_phone"`
}

// DispatchRequest DTO for POST /dispatch
type DispatchRequest struct {
	Contacts []ContactDTO `json:"contacts"`
	Template string       `json:"template"`
	// Attachment is base64-encoded binary content; omitted for text-only sends.
	Attachment string `json:"attachment,omitempty"`
}

// DispatchStartedResponse DTO
type DispatchStartedResponse struct {
	RunID string `json:"run_id"`
}

// DispatchRunResponse DTO
type DispatchRunResponse struct {
	Run domain.DispatchRun `json:"run"`
}

// ValidateContactsRequest DTO for POST /contacts/validate
type ValidateContactsRequest struct {
	RawPhones []string `json:"raw_phones"`
}

// ValidateContactsResponse DTO
type ValidateContactsResponse struct {
	Results []domain.ValidatedContact `json:"results"`
}

// MergeResponse DTO for POST /maintenance/merge-conversations
type MergeResponse struct {
	MergedGroups int `json:"merged_groups"`
	FailedGroups int `json:"failed_groups"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error string `json:"error"`
}
