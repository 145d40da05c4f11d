// Package loans implements the application lifecycle: listing under the
// visibility rules, claim/assign/reassign, closing, and the unauthenticated
// secure search.
package loans

import (
	"context"
	"strings"
	"time"

	"loan-triage/internal/branch"
	apperrors "loan-triage/internal/common/errors"
	"loan-triage/internal/common/logger"
	"loan-triage/internal/common/metrics"
	"loan-triage/internal/models"
	"loan-triage/internal/store"
	"loan-triage/internal/visibility"
)

// searchLookupSize bounds how many mirror hits a listing resolves.
const searchLookupSize = 200

// Searcher resolves a free-text query to application ids, best match first.
// Satisfied by *search.Mirror.
type Searcher interface {
	Enabled() bool
	Lookup(ctx context.Context, query string, size int) ([]int64, error)
}

type Service struct {
	store    *store.Store
	searcher Searcher
	logger   logger.Logger
}

func NewService(st *store.Store, log logger.Logger) *Service {
	return &Service{
		store:  st,
		logger: log.WithFields(map[string]interface{}{"component": "loans"}),
	}
}

// SetSearcher attaches the full-text search mirror. Listing falls back to
// the SQL predicate when it is absent or failing.
func (s *Service) SetSearcher(sr Searcher) {
	s.searcher = sr
}

// List returns the applications visible to the actor, scoped by role and
// branch set and filtered by the optional search criteria.
func (s *Service) List(ctx context.Context, req ListRequest) (*ListResult, error) {
	if req.Page < 1 {
		req.Page = 1
	}
	if req.Limit < 1 {
		req.Limit = 20
	}

	scope := visibility.Scope{
		Role:     req.Actor.Role,
		Branches: branch.ParseSet(req.Actor.Branches),
		UserID:   req.Actor.ID,
	}
	filters := visibility.Filters{
		Search:       req.Search,
		DateFrom:     req.DateFrom,
		DateTo:       req.DateTo,
		VerifiedOnly: req.VerifiedOnly,
	}
	if req.Search != "" && s.searcher != nil && s.searcher.Enabled() {
		ids, err := s.searcher.Lookup(ctx, req.Search, searchLookupSize)
		if err != nil {
			s.logger.Warn("search mirror lookup failed, using SQL search", map[string]interface{}{
				"error": err.Error(),
			})
		} else {
			filters.MatchIDs = ids
		}
	}
	pred := visibility.Build(scope, filters, 1)

	if pred.NoBranches {
		return &ListResult{
			Loans:      []models.LoanApplication{},
			Pagination: Pagination{Page: 1, Limit: req.Limit},
			NoBranches: true,
		}, nil
	}

	apps, total, err := s.store.ListApplications(ctx, pred, req.Page, req.Limit)
	if err != nil {
		return nil, apperrors.NewInternal("list applications", err)
	}

	pages := int(total) / req.Limit
	if int(total)%req.Limit != 0 {
		pages++
	}
	return &ListResult{
		Loans: apps,
		Pagination: Pagination{
			Page:  req.Page,
			Limit: req.Limit,
			Total: total,
			Pages: pages,
		},
	}, nil
}

// Claim self-assigns an unassigned pending application to an officer whose
// branch set covers the application's branch.
func (s *Service) Claim(ctx context.Context, loanID, officerID int64) (*models.LoanApplication, error) {
	officer, err := s.store.GetUser(ctx, officerID)
	if err != nil {
		return nil, apperrors.NewInternal("load officer", err)
	}
	if officer == nil {
		return nil, apperrors.NewNotFound("user", officerID)
	}
	if !CanClaim(officer.Role) {
		metrics.ClaimsTotal.WithLabelValues("forbidden").Inc()
		return nil, apperrors.NewForbidden("only loan officers may claim applications")
	}

	loan, err := s.store.GetApplication(ctx, loanID)
	if err != nil {
		return nil, apperrors.NewInternal("load application", err)
	}
	if loan == nil {
		return nil, apperrors.NewNotFound("application", loanID)
	}
	if loan.AssignedToID != nil {
		metrics.ClaimsTotal.WithLabelValues("conflict").Inc()
		return nil, apperrors.NewConflict("application already assigned")
	}
	if loan.Status.IsTerminal() {
		metrics.ClaimsTotal.WithLabelValues("conflict").Inc()
		return nil, apperrors.NewConflict("application already closed")
	}

	if !branch.Matches(branch.ParseSet(officer.Branches), loan.Branch) {
		metrics.ClaimsTotal.WithLabelValues("forbidden").Inc()
		return nil, apperrors.NewForbidden("application belongs to another branch")
	}

	ok, err := s.store.ClaimApplication(ctx, loanID, officerID)
	if err != nil {
		return nil, apperrors.NewInternal("claim application", err)
	}
	if !ok {
		// Lost the conditional update to a concurrent claimer.
		metrics.ClaimsTotal.WithLabelValues("conflict").Inc()
		return nil, apperrors.NewConflict("application already assigned")
	}

	metrics.ClaimsTotal.WithLabelValues("success").Inc()
	s.logger.Info("application claimed", map[string]interface{}{
		"loanId":    loanID,
		"officerId": officerID,
	})
	return s.store.GetApplication(ctx, loanID)
}

// Assign is the manager/admin direct assignment: any pending unassigned
// application, no branch check.
func (s *Service) Assign(ctx context.Context, actor Actor, loanID, officerID int64) (*models.LoanApplication, error) {
	if !CanAssign(actor.Role) {
		return nil, apperrors.NewForbidden("only managers and admins may assign applications")
	}

	officer, err := s.store.GetUser(ctx, officerID)
	if err != nil {
		return nil, apperrors.NewInternal("load officer", err)
	}
	if officer == nil {
		return nil, apperrors.NewNotFound("user", officerID)
	}

	loan, err := s.store.GetApplication(ctx, loanID)
	if err != nil {
		return nil, apperrors.NewInternal("load application", err)
	}
	if loan == nil {
		return nil, apperrors.NewNotFound("application", loanID)
	}

	ok, err := s.store.AssignApplication(ctx, loanID, officerID)
	if err != nil {
		return nil, apperrors.NewInternal("assign application", err)
	}
	if !ok {
		return nil, apperrors.NewConflict("application already assigned or closed")
	}

	s.logger.Info("application assigned", map[string]interface{}{
		"loanId":    loanID,
		"officerId": officerID,
		"byUserId":  actor.ID,
	})
	return s.store.GetApplication(ctx, loanID)
}

// Reassign changes branch and/or assignee of an open application. Clearing
// the assignee resets the application to pending.
func (s *Service) Reassign(ctx context.Context, actor Actor, loanID int64, req ReassignRequest) (*models.LoanApplication, error) {
	if !CanReassign(actor.Role) {
		return nil, apperrors.NewForbidden("only admins may reassign applications")
	}
	if req.Branch == nil && !req.SetAssignee {
		return nil, apperrors.NewValidation("no changes requested")
	}
	if req.SetAssignee && req.OfficerID != nil {
		officer, err := s.store.GetUser(ctx, *req.OfficerID)
		if err != nil {
			return nil, apperrors.NewInternal("load officer", err)
		}
		if officer == nil {
			return nil, apperrors.NewNotFound("user", *req.OfficerID)
		}
	}

	loan, err := s.store.GetApplication(ctx, loanID)
	if err != nil {
		return nil, apperrors.NewInternal("load application", err)
	}
	if loan == nil {
		return nil, apperrors.NewNotFound("application", loanID)
	}
	if loan.Status.IsTerminal() {
		return nil, apperrors.NewConflict("application already closed")
	}

	ok, err := s.store.ReassignApplication(ctx, loanID, req.Branch, req.SetAssignee, req.OfficerID)
	if err != nil {
		return nil, apperrors.NewInternal("reassign application", err)
	}
	if !ok {
		return nil, apperrors.NewConflict("application already closed")
	}

	s.logger.Info("application reassigned", map[string]interface{}{
		"loanId":   loanID,
		"byUserId": actor.ID,
	})
	return s.store.GetApplication(ctx, loanID)
}

// Close transitions an open application to approved, rejected or cancelled.
func (s *Service) Close(ctx context.Context, actor Actor, loanID int64, req CloseRequest) (*models.LoanApplication, error) {
	if !req.Status.IsClosing() {
		return nil, apperrors.NewValidation("status must be approved, rejected or cancelled")
	}

	loan, err := s.store.GetApplication(ctx, loanID)
	if err != nil {
		return nil, apperrors.NewInternal("load application", err)
	}
	if loan == nil {
		return nil, apperrors.NewNotFound("application", loanID)
	}
	if loan.Status.IsTerminal() {
		return nil, apperrors.NewConflict("application already closed")
	}
	if !CanClose(actor, loan) {
		return nil, apperrors.NewForbidden("caller may not close this application")
	}

	reason := ""
	if req.Status == models.StatusCancelled {
		reason = req.CancellationReason
	}

	ok, err := s.store.CloseApplication(ctx, loanID, req.Status, actor.ID, reason, time.Now().UTC())
	if err != nil {
		return nil, apperrors.NewInternal("close application", err)
	}
	if !ok {
		return nil, apperrors.NewConflict("application already closed")
	}

	metrics.LoansClosed.WithLabelValues(string(req.Status)).Inc()
	s.logger.Info("application closed", map[string]interface{}{
		"loanId":   loanID,
		"status":   req.Status,
		"byUserId": actor.ID,
	})
	return s.store.GetApplication(ctx, loanID)
}

// SecureSearch looks up a single application by mobile fragment and the last
// four digits of the personal identifier, returning only the privacy-reduced
// projection. No auth context required.
func (s *Service) SecureSearch(ctx context.Context, req SecureSearchRequest) (*SecureSearchResponse, error) {
	if req.Mobile == "" || !isFourDigits(req.IDLast4) {
		return nil, apperrors.NewValidation("mobile and the last 4 digits of the personal id are required")
	}

	candidates, err := s.store.SearchApplicationsByMobile(ctx, req.Mobile)
	if err != nil {
		return nil, apperrors.NewInternal("secure search", err)
	}

	// Candidates come back newest first; the first suffix match wins even if
	// several match.
	for i := range candidates {
		loan := &candidates[i]
		personalID := loan.Details.PersonalID()
		if personalID == "" || !strings.HasSuffix(personalID, req.IDLast4) {
			continue
		}
		return &SecureSearchResponse{
			Found: true,
			Loan: &models.SecureSearchResult{
				ID:           loan.ID,
				Product:      loan.Details.Product("N/A"),
				Amount:       loan.Details.Amount("N/A"),
				Branch:       loan.Branch,
				Expert:       loan.AssignedToUsername,
				AssignedToID: loan.AssignedToID,
				Status:       loan.Status,
			},
		}, nil
	}
	return &SecureSearchResponse{Found: false}, nil
}

// Get loads one application.
func (s *Service) Get(ctx context.Context, loanID int64) (*models.LoanApplication, error) {
	loan, err := s.store.GetApplication(ctx, loanID)
	if err != nil {
		return nil, apperrors.NewInternal("load application", err)
	}
	if loan == nil {
		return nil, apperrors.NewNotFound("application", loanID)
	}
	return loan, nil
}

func isFourDigits(s string) bool {
	if len(s) != 4 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
