// Package settings manages the process-wide configuration singleton:
// directory connection parameters, the sync interval and branding.
package settings

import (
	"context"
	"time"

	apperrors "loan-triage/internal/common/errors"
	"loan-triage/internal/common/logger"
	"loan-triage/internal/models"
	"loan-triage/internal/store"
)

// Rescheduler is told when the sync interval changes. Satisfied by
// *sync.Scheduler.
type Rescheduler interface {
	Reschedule(intervalMinutes int)
}

// Public is the unauthenticated subset served to the login page.
type Public struct {
	LogoURL    string `json:"logoUrl"`
	FaviconURL string `json:"faviconUrl"`
}

// SyncStatus reports the reconciler's operational state.
type SyncStatus struct {
	Configured   bool       `json:"configured"`
	IntervalMin  int        `json:"intervalMinutes"`
	TotalEntries int64      `json:"totalEntries"`
	LastSyncTime *time.Time `json:"lastSyncTime,omitempty"`
}

type Service struct {
	store      *store.Store
	scheduler  Rescheduler
	syncActive bool
	logger     logger.Logger
}

// NewService builds the settings service. scheduler may be nil when batch
// sync is not configured; syncActive feeds the status endpoint.
func NewService(st *store.Store, scheduler Rescheduler, syncActive bool, log logger.Logger) *Service {
	return &Service{
		store:      st,
		scheduler:  scheduler,
		syncActive: syncActive,
		logger:     log.WithFields(map[string]interface{}{"component": "settings"}),
	}
}

func canEditSettings(role models.Role) bool {
	return role == models.RoleAdmin || role == models.RoleAdminEditor
}

// Get returns the settings with the bind password masked. The stored secret
// never leaves the service.
func (s *Service) Get(ctx context.Context, actorRole models.Role) (*models.Settings, error) {
	if !canEditSettings(actorRole) {
		return nil, apperrors.NewForbidden("only admins may read settings")
	}
	st, err := s.loadOrDefault(ctx)
	if err != nil {
		return nil, err
	}
	masked := *st
	if masked.ADBindPassword != "" {
		masked.ADBindPassword = models.MaskedPassword
	}
	return &masked, nil
}

// Update writes the directory/sync settings. An incoming masked password
// keeps the stored secret; the sync interval is clamped and the scheduler
// retimed when it changed.
func (s *Service) Update(ctx context.Context, actorRole models.Role, incoming *models.Settings) (*models.Settings, error) {
	if !canEditSettings(actorRole) {
		return nil, apperrors.NewForbidden("only admins may change settings")
	}

	current, err := s.loadOrDefault(ctx)
	if err != nil {
		return nil, err
	}

	next := *incoming
	next.ID = models.SettingsID
	next.SyncInterval = models.ClampSyncInterval(next.SyncInterval)
	if next.ADBindPassword == models.MaskedPassword {
		next.ADBindPassword = current.ADBindPassword
	}
	// Branding and the sync stamp have dedicated writers.
	next.LogoURL = current.LogoURL
	next.FaviconURL = current.FaviconURL
	next.LastSyncTime = current.LastSyncTime

	if err := s.store.SaveSettings(ctx, &next); err != nil {
		return nil, apperrors.NewInternal("save settings", err)
	}

	if s.scheduler != nil && next.SyncInterval != current.SyncInterval {
		s.scheduler.Reschedule(next.SyncInterval)
		s.logger.Info("sync interval changed", map[string]interface{}{
			"intervalMinutes": next.SyncInterval,
		})
	}
	return s.Get(ctx, actorRole)
}

// SetBranding updates the logo/favicon URLs.
func (s *Service) SetBranding(ctx context.Context, actorRole models.Role, logoURL, faviconURL string) error {
	if !canEditSettings(actorRole) {
		return apperrors.NewForbidden("only admins may change branding")
	}
	if err := s.store.SetBrandingURLs(ctx, logoURL, faviconURL); err != nil {
		return apperrors.NewInternal("set branding", err)
	}
	return nil
}

// GetPublic serves the unauthenticated branding subset.
func (s *Service) GetPublic(ctx context.Context) (*Public, error) {
	st, err := s.loadOrDefault(ctx)
	if err != nil {
		return nil, err
	}
	return &Public{LogoURL: st.LogoURL, FaviconURL: st.FaviconURL}, nil
}

// GetSyncStatus reports whether batch sync runs, how often and when it last
// finished.
func (s *Service) GetSyncStatus(ctx context.Context) (*SyncStatus, error) {
	st, err := s.loadOrDefault(ctx)
	if err != nil {
		return nil, err
	}
	total, err := s.store.CountApplications(ctx)
	if err != nil {
		return nil, apperrors.NewInternal("count applications", err)
	}
	return &SyncStatus{
		Configured:   s.syncActive,
		IntervalMin:  models.ClampSyncInterval(st.SyncInterval),
		TotalEntries: total,
		LastSyncTime: st.LastSyncTime,
	}, nil
}

func (s *Service) loadOrDefault(ctx context.Context) (*models.Settings, error) {
	st, err := s.store.GetSettings(ctx)
	if err != nil {
		return nil, apperrors.NewInternal("load settings", err)
	}
	if st == nil {
		return &models.Settings{ID: models.SettingsID, SyncInterval: models.DefaultSyncInterval}, nil
	}
	return st, nil
}
