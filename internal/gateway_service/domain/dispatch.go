package domain

import "time"

// DispatchStatus is the per-contact outcome of a dispatch run.
type DispatchStatus string

const (
	DispatchSent     DispatchStatus = "SENT"
	DispatchRejected DispatchStatus = "REJECTED"
	DispatchFailed   DispatchStatus = "FAILED"
	// DispatchSkipped marks contacts deliberately left unprocessed (currently
	// only surfaced by callers filtering a cancelled run's remainder).
	DispatchSkipped DispatchStatus = "SKIPPED"
)

// DispatchOutcome records what happened to one contact in one run. Immutable
// once written.
type DispatchOutcome struct {
	Contact       Contact          `json:"contact"`
	Validated     ValidatedContact `json:"validated"`
	Status        DispatchStatus   `json:"status"`
	ErrorDetail   string           `json:"error_detail,omitempty"`
	RejectReasons []RejectReason   `json:"reject_reasons,omitempty"`
}

// RunState is the lifecycle state of a dispatch run.
type RunState string

const (
	RunInFlight  RunState = "IN_FLIGHT"
	RunCompleted RunState = "COMPLETED"
	RunCancelled RunState = "CANCELLED"
)

// DispatchRun is the itemized report of one bulk-send execution. Outcomes are
// ordered exactly as the input contact list.
type DispatchRun struct {
	ID         string            `json:"id"`
	SessionID  string            `json:"session_id"`
	State      RunState          `json:"state"`
	Outcomes   []DispatchOutcome `json:"outcomes"`
	Total      int               `json:"total"`
	Successful int               `json:"successful"`
	Failed     int               `json:"failed"`
	Rejected   int               `json:"rejected"`
	Cancelled  bool              `json:"cancelled"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt *time.Time        `json:"finished_at,omitempty"`
}
