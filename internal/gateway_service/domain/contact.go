package domain

// RejectReason is a machine-readable code explaining why a contact was
// rejected during validation or dispatch.
type RejectReason string

const (
	ReasonMissing          RejectReason = "missing"
	ReasonTooShort         RejectReason = "too_short"
	ReasonDisallowedPrefix RejectReason = "disallowed_prefix"
	ReasonNotRegistered    RejectReason = "not_registered"
	ReasonDuplicateInBatch RejectReason = "duplicate_in_batch"
)

// Contact is the raw caller-supplied destination.
type Contact struct {
	Name     string `json:"name,omitempty"`
	RawPhone string `json:"raw_phone"`
}

// ValidatedContact is the transient result of normalizing one Contact. It is
// derived fresh on every validation call and never persisted.
type ValidatedContact struct {
	RawPhone         string         `json:"raw_phone"`
	NormalizedDigits string         `json:"normalized_digits"`
	NetworkAddress   string         `json:"network_address"`
	IsValid          bool           `json:"is_valid"`
	RejectReasons    []RejectReason `json:"reject_reasons,omitempty"`
}

// Reject appends a reason and marks the contact invalid.
func (v *ValidatedContact) Reject(reason RejectReason) {
	v.IsValid = false
	v.RejectReasons = append(v.RejectReasons, reason)
}
