package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"loan-triage/internal/models"
)

const settingsColumns = `id, ad_server, ad_port, ad_base_dn, ad_domain, ad_bind_user,
	ad_bind_password, ad_group_filter, sync_interval, logo_url, favicon_url, last_sync_time`

func scanSettings(row rowScanner) (*models.Settings, error) {
	var st models.Settings
	err := row.Scan(
		&st.ID, &st.ADServer, &st.ADPort, &st.ADBaseDN, &st.ADDomain, &st.ADBindUser,
		&st.ADBindPassword, &st.ADGroupFilter, &st.SyncInterval, &st.LogoURL, &st.FaviconURL,
		&st.LastSyncTime,
	)
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// GetSettings returns the singleton settings row, or nil before bootstrap.
func (s *Store) GetSettings(ctx context.Context) (*models.Settings, error) {
	query := fmt.Sprintf("SELECT %s FROM settings WHERE id = $1", settingsColumns)
	st, err := scanSettings(s.db.QueryRowContext(ctx, query, models.SettingsID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get settings: %w", err)
	}
	return st, nil
}

// EnsureSettings seeds the singleton row with defaults when missing. Existing
// values are never overwritten.
func (s *Store) EnsureSettings(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (id, sync_interval) VALUES ($1, $2)
		ON CONFLICT (id) DO NOTHING`,
		models.SettingsID, models.DefaultSyncInterval,
	)
	if err != nil {
		return fmt.Errorf("ensure settings: %w", err)
	}
	return nil
}

// SaveSettings writes the directory/sync portion of the singleton. Branding
// URLs and last-sync time are owned by their own writers.
func (s *Store) SaveSettings(ctx context.Context, st *models.Settings) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (
			id, ad_server, ad_port, ad_base_dn, ad_domain,
			ad_bind_user, ad_bind_password, ad_group_filter, sync_interval
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			ad_server = EXCLUDED.ad_server,
			ad_port = EXCLUDED.ad_port,
			ad_base_dn = EXCLUDED.ad_base_dn,
			ad_domain = EXCLUDED.ad_domain,
			ad_bind_user = EXCLUDED.ad_bind_user,
			ad_bind_password = EXCLUDED.ad_bind_password,
			ad_group_filter = EXCLUDED.ad_group_filter,
			sync_interval = EXCLUDED.sync_interval`,
		models.SettingsID, st.ADServer, st.ADPort, st.ADBaseDN, st.ADDomain,
		st.ADBindUser, st.ADBindPassword, st.ADGroupFilter, st.SyncInterval,
	)
	if err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

// SetBrandingURLs updates the logo/favicon asset URLs.
func (s *Store) SetBrandingURLs(ctx context.Context, logoURL, faviconURL string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE settings SET logo_url = $1, favicon_url = $2 WHERE id = $3`,
		logoURL, faviconURL, models.SettingsID,
	)
	if err != nil {
		return fmt.Errorf("set branding urls: %w", err)
	}
	return nil
}

// SetLastSyncTime stamps the operational last-sync marker.
func (s *Store) SetLastSyncTime(ctx context.Context, t time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE settings SET last_sync_time = $1 WHERE id = $2`,
		t, models.SettingsID,
	)
	if err != nil {
		return fmt.Errorf("set last sync time: %w", err)
	}
	return nil
}
