package config

import "fmt"

// Config is the main application configuration struct. Runtime-mutable
// parameters (directory connection, sync interval, branding) live in the
// settings row instead, so they can be changed without a restart.
type Config struct {
	App           AppConfig          `mapstructure:"app"`
	Database      DatabaseConfig     `mapstructure:"database"`
	Gravity       GravityConfig      `mapstructure:"gravity"`
	WordPress     WordPressConfig    `mapstructure:"wordpress"`
	Notifications NotificationConfig `mapstructure:"notifications"`
	Logging       LoggingConfig      `mapstructure:"logging"`
}

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
	MetricsAddr string `mapstructure:"metrics_addr"`
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string.
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Enabled reports whether a Redis cache is configured at all.
func (r RedisConfig) Enabled() bool {
	return r.Address != ""
}

type ElasticsearchConfig struct {
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	Index     string   `mapstructure:"index"`
}

// Enabled reports whether the optional search mirror is configured.
func (e ElasticsearchConfig) Enabled() bool {
	return len(e.Addresses) > 0
}

// GravityConfig holds the external form source credentials. All three of
// APIURL, ConsumerKey and ConsumerSecret must be set for sync to run; the
// reconciler degrades to a no-op otherwise.
type GravityConfig struct {
	APIURL         string `mapstructure:"api_url"`
	ConsumerKey    string `mapstructure:"consumer_key"`
	ConsumerSecret string `mapstructure:"consumer_secret"`
	FormID         string `mapstructure:"form_id"`
	PageSize       int    `mapstructure:"page_size"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

func (g GravityConfig) Configured() bool {
	return g.APIURL != "" && g.ConsumerKey != "" && g.ConsumerSecret != ""
}

// WordPressConfig holds the credentials for the CreditInfo verification
// lookup (WordPress REST custom post types).
type WordPressConfig struct {
	APIURL         string `mapstructure:"api_url"`
	User           string `mapstructure:"user"`
	AppPassword    string `mapstructure:"app_password"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

func (w WordPressConfig) Configured() bool {
	return w.APIURL != "" && w.User != "" && w.AppPassword != ""
}

type NotificationConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	AWSRegion     string `mapstructure:"aws_region"`
	SenderEmail   string `mapstructure:"sender_email"`
	ManagersEmail string `mapstructure:"managers_email"`
	SNSTopicARN   string `mapstructure:"sns_topic_arn"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}
