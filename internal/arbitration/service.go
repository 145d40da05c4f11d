// Package arbitration handles officer claim requests on out-of-branch
// applications and their manager/admin approval flow.
package arbitration

import (
	"context"
	"errors"
	"time"

	"loan-triage/internal/branch"
	apperrors "loan-triage/internal/common/errors"
	"loan-triage/internal/common/logger"
	"loan-triage/internal/common/metrics"
	"loan-triage/internal/loans"
	"loan-triage/internal/models"
	"loan-triage/internal/store"
)

// Notifier is told about newly filed requests so managers can be pinged.
// Delivery is best-effort; failures never block the request itself.
type Notifier interface {
	AssignmentRequested(ctx context.Context, req *models.AssignmentRequest, loan *models.LoanApplication)
}

type Service struct {
	store    *store.Store
	notifier Notifier
	logger   logger.Logger
}

// NewService builds the arbitration service. notifier may be nil.
func NewService(st *store.Store, notifier Notifier, log logger.Logger) *Service {
	return &Service{
		store:    st,
		notifier: notifier,
		logger:   log.WithFields(map[string]interface{}{"component": "arbitration"}),
	}
}

// Request files a pending claim request by an officer on an unassigned
// pending application. Duplicate pending requests from the same officer are
// rejected; the partial unique index makes this hold under races too.
func (s *Service) Request(ctx context.Context, officerID, loanID int64) (*models.AssignmentRequest, error) {
	officer, err := s.store.GetUser(ctx, officerID)
	if err != nil {
		return nil, apperrors.NewInternal("load officer", err)
	}
	if officer == nil {
		return nil, apperrors.NewNotFound("user", officerID)
	}
	if officer.Role != models.RoleOfficer {
		return nil, apperrors.NewForbidden("only officers may request assignments")
	}

	loan, err := s.store.GetApplication(ctx, loanID)
	if err != nil {
		return nil, apperrors.NewInternal("load application", err)
	}
	if loan == nil {
		return nil, apperrors.NewNotFound("application", loanID)
	}
	if loan.AssignedToID != nil || loan.Status != models.StatusPending {
		return nil, apperrors.NewConflict("application is no longer available")
	}

	req, err := s.store.CreateAssignmentRequest(ctx, loanID, officerID)
	if err != nil {
		if errors.Is(err, store.ErrDuplicatePendingRequest) {
			return nil, apperrors.NewConflict("a pending request for this application already exists")
		}
		return nil, apperrors.NewInternal("create assignment request", err)
	}

	if s.notifier != nil {
		s.notifier.AssignmentRequested(ctx, req, loan)
	}
	s.logger.Info("assignment requested", map[string]interface{}{
		"requestId": req.ID,
		"loanId":    loanID,
		"officerId": officerID,
	})
	return req, nil
}

// Approve resolves a pending request in the requester's favor: the loan is
// assigned, the request approved and every sibling pending request rejected,
// atomically. A loan claimed in the meantime makes the approval a conflict.
func (s *Service) Approve(ctx context.Context, actor loans.Actor, requestID int64) (*models.AssignmentRequest, error) {
	if !loans.CanArbitrate(actor.Role) {
		return nil, apperrors.NewForbidden("only managers and admins may arbitrate requests")
	}

	req, err := s.store.GetAssignmentRequest(ctx, requestID)
	if err != nil {
		return nil, apperrors.NewInternal("load assignment request", err)
	}
	if req == nil {
		return nil, apperrors.NewNotFound("assignment request", requestID)
	}
	if req.Status != models.RequestPending {
		return nil, apperrors.NewConflict("request already handled")
	}

	ok, err := s.store.ApproveAssignmentRequest(ctx, req.ID, req.LoanID, req.RequestedByID, actor.ID, time.Now().UTC())
	if err != nil {
		return nil, apperrors.NewInternal("approve assignment request", err)
	}
	if !ok {
		return nil, apperrors.NewConflict("application was claimed or the request already handled")
	}

	metrics.ArbitrationDecisions.WithLabelValues("approved").Inc()
	s.logger.Info("assignment request approved", map[string]interface{}{
		"requestId": requestID,
		"loanId":    req.LoanID,
		"byUserId":  actor.ID,
	})
	return s.store.GetAssignmentRequest(ctx, requestID)
}

// Reject resolves a pending request against the requester. The application
// and sibling requests are untouched.
func (s *Service) Reject(ctx context.Context, actor loans.Actor, requestID int64) (*models.AssignmentRequest, error) {
	if !loans.CanArbitrate(actor.Role) {
		return nil, apperrors.NewForbidden("only managers and admins may arbitrate requests")
	}

	req, err := s.store.GetAssignmentRequest(ctx, requestID)
	if err != nil {
		return nil, apperrors.NewInternal("load assignment request", err)
	}
	if req == nil {
		return nil, apperrors.NewNotFound("assignment request", requestID)
	}
	if req.Status != models.RequestPending {
		return nil, apperrors.NewConflict("request already handled")
	}

	ok, err := s.store.RejectAssignmentRequest(ctx, requestID, actor.ID, time.Now().UTC())
	if err != nil {
		return nil, apperrors.NewInternal("reject assignment request", err)
	}
	if !ok {
		return nil, apperrors.NewConflict("request already handled")
	}

	metrics.ArbitrationDecisions.WithLabelValues("rejected").Inc()
	s.logger.Info("assignment request rejected", map[string]interface{}{
		"requestId": requestID,
		"byUserId":  actor.ID,
	})
	return s.store.GetAssignmentRequest(ctx, requestID)
}

// ListPending returns open requests visible to the actor: admins see all,
// managers only requests on loans in their branch set. Read-only viewers may
// look but never decide.
func (s *Service) ListPending(ctx context.Context, actor loans.Actor) ([]models.AssignmentRequest, error) {
	var scoped []string
	switch actor.Role {
	case models.RoleAdmin, models.RoleAdminEditor:
		// unrestricted
	case models.RoleManager, models.RoleManagerViewer:
		set := branch.ParseSet(actor.Branches)
		if branch.HasWildcard(set) {
			break
		}
		if len(set) == 0 {
			return []models.AssignmentRequest{}, nil
		}
		scoped = set
	default:
		return nil, apperrors.NewForbidden("only managers and admins may view assignment requests")
	}

	reqs, err := s.store.ListPendingRequests(ctx, scoped)
	if err != nil {
		return nil, apperrors.NewInternal("list pending requests", err)
	}
	if reqs == nil {
		reqs = []models.AssignmentRequest{}
	}
	return reqs, nil
}
