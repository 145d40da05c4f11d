package models

import "time"

// RequestStatus is the arbitration state of an assignment request.
type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestApproved RequestStatus = "approved"
	RequestRejected RequestStatus = "rejected"
)

// AssignmentRequest is an officer's claim on a loan awaiting manager/admin
// arbitration. At most one pending request exists per (loan, requester).
type AssignmentRequest struct {
	ID                  int64         `json:"id"`
	LoanID              int64         `json:"loanId"`
	RequestedByID       int64         `json:"requestedById"`
	RequestedByUsername string        `json:"requestedByUsername,omitempty"`
	Status              RequestStatus `json:"status"`
	HandledByID         *int64        `json:"handledById,omitempty"`
	HandledAt           *time.Time    `json:"handledAt,omitempty"`
	CreatedAt           time.Time     `json:"createdAt"`

	// Loan is the joined application, populated by pending-request listings.
	Loan *LoanApplication `json:"loan,omitempty"`
}
