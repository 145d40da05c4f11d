package models

import (
	"fmt"
	"strings"
	"time"
)

// Status is the lifecycle state of a loan application.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusApproved   Status = "approved"
	StatusRejected   Status = "rejected"
	StatusCancelled  Status = "cancelled"
)

// IsTerminal reports whether the status permits no further transitions.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusApproved, StatusRejected, StatusCancelled:
		return true
	}
	return false
}

// IsClosing reports whether s is a valid target for a close operation.
func (s Status) IsClosing() bool {
	return s.IsTerminal()
}

// External form field numbers for the intake form. The numbering is
// site-specific; everything the services reason about goes through the
// typed accessors below.
const (
	FieldFirstName    = "33"
	FieldLastName     = "34"
	FieldEmail        = "35"
	FieldMobile       = "27"
	FieldBranch       = "21"
	FieldAmount       = "14"
	FieldProduct      = "16"
	FieldPersonalID   = "31"
	FieldVerification = "37"
)

// Details is the raw external-form entry, preserved verbatim for audit and
// detail display.
type Details map[string]interface{}

// String returns the value of a stringly-keyed field, or "" when absent or
// not a string-representable scalar.
func (d Details) String(key string) string {
	v, ok := d[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strings.TrimSuffix(strings.TrimSuffix(fmt.Sprintf("%f", t), "000000"), ".")
	case bool:
		return fmt.Sprintf("%t", t)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// PersonalID returns the personal identifier embedded in the entry.
func (d Details) PersonalID() string {
	return d.String(FieldPersonalID)
}

// Product returns the requested loan product, or fallback when absent.
func (d Details) Product(fallback string) string {
	if p := d.String(FieldProduct); p != "" {
		return p
	}
	return fallback
}

// Amount returns the requested amount, or fallback when absent.
func (d Details) Amount(fallback string) string {
	if a := d.String(FieldAmount); a != "" {
		return a
	}
	return fallback
}

// LoanApplication is a loan/credit request ingested from the external intake
// form or a direct webhook submission.
type LoanApplication struct {
	ID                 int64      `json:"id"`
	WPEntryID          string     `json:"wpEntryId"`
	FirstName          string     `json:"firstName"`
	LastName           string     `json:"lastName"`
	Email              string     `json:"email"`
	Mobile             string     `json:"mobile"`
	Branch             string     `json:"branch"`
	Status             Status     `json:"status"`
	AssignedToID       *int64     `json:"assignedToId"`
	AssignedToUsername string     `json:"assignedToUsername,omitempty"`
	VerificationStatus bool       `json:"verificationStatus"`
	Details            Details    `json:"details"`
	ClosedAt           *time.Time `json:"closedAt,omitempty"`
	ClosedByID         *int64     `json:"closedById,omitempty"`
	CancellationReason string     `json:"cancellationReason,omitempty"`
	CreatedAt          time.Time  `json:"createdAt"`
}

// SecureSearchResult is the privacy-reduced projection returned by the
// unauthenticated secure search. Never the full record.
type SecureSearchResult struct {
	ID           int64  `json:"id"`
	Product      string `json:"product"`
	Amount       string `json:"amount"`
	Branch       string `json:"branch"`
	Expert       string `json:"expert,omitempty"`
	AssignedToID *int64 `json:"assignedToId"`
	Status       Status `json:"status"`
}
