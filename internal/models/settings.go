package models

import "time"

// SettingsID is the fixed id of the singleton settings row.
const SettingsID = 1

const (
	DefaultSyncInterval = 5
	MinSyncInterval     = 1
	MaxSyncInterval     = 60
)

// MaskedPassword is what reads return in place of the stored bind password.
// Writes carrying this exact value keep the stored secret unchanged.
const MaskedPassword = "********"

// Settings is the process-wide configuration singleton: directory-auth
// connection parameters, the sync interval and branding asset URLs.
type Settings struct {
	ID             int64      `json:"id"`
	ADServer       string     `json:"adServer"`
	ADPort         int        `json:"adPort"`
	ADBaseDN       string     `json:"adBaseDN"`
	ADDomain       string     `json:"adDomain"`
	ADBindUser     string     `json:"adBindUser"`
	ADBindPassword string     `json:"adBindPassword"`
	ADGroupFilter  string     `json:"adGroupFilter"`
	SyncInterval   int        `json:"syncInterval"`
	LogoURL        string     `json:"logoUrl"`
	FaviconURL     string     `json:"faviconUrl"`
	LastSyncTime   *time.Time `json:"lastSyncTime,omitempty"`
}

// DirectoryConfigured reports whether directory authentication can be
// attempted at all.
func (s *Settings) DirectoryConfigured() bool {
	return s != nil && s.ADServer != ""
}

// ClampSyncInterval forces the interval into the valid 1-60 minute range,
// substituting the default for zero/invalid values.
func ClampSyncInterval(minutes int) int {
	if minutes == 0 {
		return DefaultSyncInterval
	}
	if minutes < MinSyncInterval {
		return MinSyncInterval
	}
	if minutes > MaxSyncInterval {
		return MaxSyncInterval
	}
	return minutes
}
