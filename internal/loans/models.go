package loans

import (
	"time"

	"loan-triage/internal/models"
)

// Actor identifies the authenticated caller of a state-changing operation.
// The transport layer resolves it; services trust it.
type Actor struct {
	ID       int64
	Role     models.Role
	Branches string
}

// ListRequest is the listing query after boundary validation.
type ListRequest struct {
	Actor        Actor
	Page         int
	Limit        int
	Search       string
	DateFrom     *time.Time
	DateTo       *time.Time
	VerifiedOnly bool
}

// Pagination describes the returned page.
type Pagination struct {
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Total int64 `json:"total"`
	Pages int   `json:"pages"`
}

// ListResult distinguishes "no data" from "no branches configured yet".
type ListResult struct {
	Loans      []models.LoanApplication `json:"loans"`
	Pagination Pagination               `json:"pagination"`
	NoBranches bool                     `json:"noBranches,omitempty"`
}

// ReassignRequest changes branch and/or assignee. SetAssignee distinguishes
// "leave the assignee alone" from "clear it".
type ReassignRequest struct {
	Branch      *string
	SetAssignee bool
	OfficerID   *int64
}

// CloseRequest transitions an application to a terminal status.
type CloseRequest struct {
	Status             models.Status
	CancellationReason string
}

// SecureSearchRequest is the unauthenticated lookup by mobile plus the last
// four digits of the personal identifier.
type SecureSearchRequest struct {
	Mobile string
	IDLast4 string
}

// SecureSearchResponse returns at most one privacy-reduced match.
type SecureSearchResponse struct {
	Found bool                       `json:"found"`
	Loan  *models.SecureSearchResult `json:"loan,omitempty"`
}
