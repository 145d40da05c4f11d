// Package sync reconciles the external Gravity Forms intake with the local
// application store on a schedule.
package sync

import (
	"time"

	"loan-triage/internal/gravity"
	"loan-triage/internal/models"
)

const (
	fallbackFirstName = "Unknown"
	fallbackBranch    = "Main"
)

// MapEntry converts one raw form entry into an application record. Unknown
// fields ride along in the opaque details payload; only the mapped columns
// get dedicated storage.
func MapEntry(entry gravity.Entry) *models.LoanApplication {
	details := models.Details(entry)

	firstName := details.String(models.FieldFirstName)
	if firstName == "" {
		firstName = fallbackFirstName
	}
	branch := details.String(models.FieldBranch)
	if branch == "" {
		branch = fallbackBranch
	}

	createdAt := entry.DateCreated()
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	return &models.LoanApplication{
		WPEntryID:          entry.ID(),
		FirstName:          firstName,
		LastName:           details.String(models.FieldLastName),
		Email:              details.String(models.FieldEmail),
		Mobile:             details.String(models.FieldMobile),
		Branch:             branch,
		VerificationStatus: VerifiedByEntry(details),
		Details:            details,
		CreatedAt:          createdAt,
	}
}

// VerifiedByEntry is the batch-sync verification heuristic: the form's
// verification signal field carrying any non-empty value counts as verified.
// The on-demand refresh against the CreditInfo store is stricter.
func VerifiedByEntry(details models.Details) bool {
	return details.String(models.FieldVerification) != ""
}
