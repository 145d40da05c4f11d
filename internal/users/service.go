// Package users is the staff account management surface: listing, role and
// branch grants, removal.
package users

import (
	"context"

	apperrors "loan-triage/internal/common/errors"
	"loan-triage/internal/common/logger"
	"loan-triage/internal/models"
	"loan-triage/internal/store"
)

// UpsertRequest grants or updates one account. Username may carry a domain
// suffix; it is stored clean.
type UpsertRequest struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	Branches string `json:"branches"`
}

type Service struct {
	store  *store.Store
	logger logger.Logger
}

func NewService(st *store.Store, log logger.Logger) *Service {
	return &Service{
		store:  st,
		logger: log.WithFields(map[string]interface{}{"component": "users"}),
	}
}

func canManageUsers(role models.Role) bool {
	return role == models.RoleAdmin || role == models.RoleAdminEditor
}

// List returns all accounts. Any staff role may look; the management screen
// itself is gated client-side by role.
func (s *Service) List(ctx context.Context) ([]models.User, error) {
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, apperrors.NewInternal("list users", err)
	}
	if users == nil {
		users = []models.User{}
	}
	return users, nil
}

// Upsert creates or updates an account keyed by clean username.
func (s *Service) Upsert(ctx context.Context, actorRole models.Role, req UpsertRequest) (*models.User, error) {
	if !canManageUsers(actorRole) {
		return nil, apperrors.NewForbidden("only admins may manage users")
	}

	username := models.CleanUsername(req.Username)
	if username == "" {
		return nil, apperrors.NewValidation("username is required")
	}
	role := models.Role(req.Role)
	if !models.ValidRole(role) {
		return nil, apperrors.NewValidation("unknown role")
	}

	user, err := s.store.UpsertUser(ctx, username, role, req.Branches)
	if err != nil {
		return nil, apperrors.NewInternal("upsert user", err)
	}
	s.logger.Info("user upserted", map[string]interface{}{
		"username": username,
		"role":     string(role),
	})
	return user, nil
}

// Delete removes an account. The actor cannot remove themselves, which keeps
// at least one working admin around.
func (s *Service) Delete(ctx context.Context, actorID int64, actorRole models.Role, userID int64) error {
	if !canManageUsers(actorRole) {
		return apperrors.NewForbidden("only admins may manage users")
	}
	if actorID == userID {
		return apperrors.NewValidation("cannot delete your own account")
	}

	ok, err := s.store.DeleteUser(ctx, userID)
	if err != nil {
		return apperrors.NewInternal("delete user", err)
	}
	if !ok {
		return apperrors.NewNotFound("user", userID)
	}
	s.logger.Info("user deleted", map[string]interface{}{"userId": userID, "byUserId": actorID})
	return nil
}

// Get loads one account.
func (s *Service) Get(ctx context.Context, userID int64) (*models.User, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, apperrors.NewInternal("load user", err)
	}
	if user == nil {
		return nil, apperrors.NewNotFound("user", userID)
	}
	return user, nil
}
