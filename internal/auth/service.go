// Package auth implements staff login: directory (LDAP) authentication with
// automatic first-login registration, plus local password accounts for the
// built-in admin.
package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"

	apperrors "loan-triage/internal/common/errors"
	"loan-triage/internal/common/logger"
	"loan-triage/internal/models"
	"loan-triage/internal/store"
)

// AutoRegisterRole is what a directory user gets on first login. No branches
// until a manager grants some, so the new account sees nothing yet.
const AutoRegisterRole = models.RoleOfficer

type Service struct {
	store     *store.Store
	directory Directory
	logger    logger.Logger
}

func NewService(st *store.Store, directory Directory, log logger.Logger) *Service {
	return &Service{
		store:     st,
		directory: directory,
		logger:    log.WithFields(map[string]interface{}{"component": "auth"}),
	}
}

// HashPassword hashes a local-account password.
func HashPassword(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

func passwordMatches(hash, password string) bool {
	if hash == "" || password == "" {
		return false
	}
	candidate := HashPassword(password)
	return subtle.ConstantTimeCompare([]byte(hash), []byte(candidate)) == 1
}

// Login authenticates the credentials, trying the local password first and
// the directory second. A directory user unknown to the store is registered
// on the spot as an officer with an empty branch set.
func (s *Service) Login(ctx context.Context, username, password string) (*models.User, error) {
	if username == "" || password == "" {
		return nil, apperrors.NewValidation("username and password are required")
	}
	clean := models.CleanUsername(username)

	user, err := s.store.GetUserByUsername(ctx, clean)
	if err != nil {
		return nil, apperrors.NewInternal("load user", err)
	}

	if user != nil && passwordMatches(user.PasswordHash, password) {
		s.logger.Info("local login", map[string]interface{}{"username": clean})
		return user, nil
	}

	settings, err := s.store.GetSettings(ctx)
	if err != nil {
		return nil, apperrors.NewInternal("load settings", err)
	}
	if !settings.DirectoryConfigured() {
		return nil, apperrors.NewForbidden("invalid credentials")
	}

	if err := s.directory.Authenticate(ctx, settings, clean, password); err != nil {
		s.logger.Warn("directory login failed", map[string]interface{}{
			"username": clean,
			"error":    err.Error(),
		})
		return nil, apperrors.NewForbidden("invalid credentials")
	}

	if user == nil {
		user, err = s.store.CreateUser(ctx, clean, AutoRegisterRole, "")
		if err != nil {
			return nil, apperrors.NewInternal("auto-register user", err)
		}
		s.logger.Info("auto-registered directory user", map[string]interface{}{
			"username": clean,
			"userId":   user.ID,
		})
	}
	return user, nil
}

// ChangePassword sets a new local password. Users change their own; admins
// change anyone's.
func (s *Service) ChangePassword(ctx context.Context, actorID int64, actorRole models.Role, userID int64, newPassword string) error {
	if len(newPassword) < 6 {
		return apperrors.NewValidation("password must be at least 6 characters")
	}
	if actorID != userID && actorRole != models.RoleAdmin {
		return apperrors.NewForbidden("only admins may change another user's password")
	}

	ok, err := s.store.SetUserPassword(ctx, userID, HashPassword(newPassword))
	if err != nil {
		return apperrors.NewInternal("set password", err)
	}
	if !ok {
		return apperrors.NewNotFound("user", userID)
	}
	s.logger.Info("password changed", map[string]interface{}{"userId": userID, "byUserId": actorID})
	return nil
}

// VerifyInDirectory checks whether a username still exists upstream, for the
// user-management screen.
func (s *Service) VerifyInDirectory(ctx context.Context, username string) (bool, error) {
	settings, err := s.store.GetSettings(ctx)
	if err != nil {
		return false, apperrors.NewInternal("load settings", err)
	}
	if !settings.DirectoryConfigured() {
		return false, apperrors.NewUpstreamUnavailable("directory", nil)
	}

	exists, err := s.directory.Exists(ctx, settings, models.CleanUsername(username))
	if err != nil {
		return false, apperrors.NewUpstreamUnavailable("directory", err)
	}
	return exists, nil
}

// TestConnection validates directory parameters before they are saved.
func (s *Service) TestConnection(ctx context.Context, settings *models.Settings) error {
	if !settings.DirectoryConfigured() {
		return apperrors.NewValidation("directory server is not set")
	}
	if err := s.directory.TestConnection(ctx, settings); err != nil {
		return apperrors.NewUpstreamUnavailable("directory", err)
	}
	return nil
}
