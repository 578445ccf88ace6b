package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/mrlokans/shelfscan/internal/scheduler"
)

type (
	Config struct {
		HTTP
		Backend
		Database
		Credentials
		Identity
		Sync
		Metadata
		Covers
		Log
		Global
	}

	HTTP struct {
		Port int32
		Host string
	}
	Backend struct {
		BaseURL   string
		Provider  string // identity provider segment of /auth/<provider>/mobile
		Timeout   time.Duration
		UserAgent string
	}
	Database struct {
		Path string
	}
	Credentials struct {
		Key        string // base64-encoded 32 byte key, takes precedence
		Passphrase string // derives the key with argon2id
		KeyFile    string // generated on first use when Key and Passphrase are empty
	}
	Identity struct {
		TokenFile string // where the identity assertion is read from for silent sign-in
	}
	Sync struct {
		Workers        int
		ResyncEnabled  bool
		ResyncSchedule string   // Cron format: "*/15 * * * *" = every 15 minutes
		AutoTags       []string // applied to every book added by a scan
		HistoryDays    int      // scan history older than this is pruned on start, 0 keeps everything
	}
	Metadata struct {
		GoogleBooksURL string
		OpenLibraryURL string
		RatePerSecond  float64
		Enabled        bool
	}
	Covers struct {
		Enabled bool
		Dir     string // defaults to a covers directory next to the database
	}
	Log struct {
		Level  string
		Format string // text or json
	}
	Global struct {
		ShutdownTimeoutInSeconds int
	}
)

// Address returns the host:port the companion API listens on.
func (h HTTP) Address() string {
	return fmt.Sprintf("%s:%d", h.Host, h.Port)
}

func NewConfig() *Config {
	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("port", 8189)
	v.SetDefault("host", "127.0.0.1")
	v.SetDefault("shutdown_timeout_in_seconds", 5)
	v.SetDefault("database_path", DefaultDatabasePath)

	v.SetDefault("backend_url", DefaultBackendURL)
	v.SetDefault("identity_provider", DefaultIdentityProvider)
	v.SetDefault("backend_timeout", "30s")
	v.SetDefault("user_agent", "shelfscan")

	v.SetDefault("credential_key", "")
	v.SetDefault("credential_passphrase", "")
	v.SetDefault("credential_key_file", "")
	v.SetDefault("identity_token_file", "")

	v.SetDefault("sync_workers", 4)
	v.SetDefault("resync_enabled", true)
	v.SetDefault("resync_schedule", DefaultResyncSchedule)
	v.SetDefault("auto_tags", "")
	v.SetDefault("history_retention_days", 90)

	v.SetDefault("metadata_enabled", true)
	v.SetDefault("google_books_url", "https://www.googleapis.com/books/v1")
	v.SetDefault("openlibrary_url", "https://openlibrary.org")
	v.SetDefault("metadata_rate_per_second", 1.0)

	v.SetDefault("covers_enabled", true)
	v.SetDefault("covers_dir", "")

	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")

	return &Config{
		HTTP: HTTP{
			Port: v.GetInt32("PORT"),
			Host: v.GetString("HOST"),
		},
		Backend: Backend{
			BaseURL:   strings.TrimRight(v.GetString("BACKEND_URL"), "/"),
			Provider:  v.GetString("IDENTITY_PROVIDER"),
			Timeout:   v.GetDuration("BACKEND_TIMEOUT"),
			UserAgent: v.GetString("USER_AGENT"),
		},
		Database: Database{
			Path: v.GetString("DATABASE_PATH"),
		},
		Credentials: Credentials{
			Key:        v.GetString("CREDENTIAL_KEY"),
			Passphrase: v.GetString("CREDENTIAL_PASSPHRASE"),
			KeyFile:    v.GetString("CREDENTIAL_KEY_FILE"),
		},
		Identity: Identity{
			TokenFile: v.GetString("IDENTITY_TOKEN_FILE"),
		},
		Sync: Sync{
			Workers:        v.GetInt("SYNC_WORKERS"),
			ResyncEnabled:  v.GetBool("RESYNC_ENABLED"),
			ResyncSchedule: v.GetString("RESYNC_SCHEDULE"),
			AutoTags:       splitList(v.GetString("AUTO_TAGS")),
			HistoryDays:    v.GetInt("HISTORY_RETENTION_DAYS"),
		},
		Metadata: Metadata{
			Enabled:        v.GetBool("METADATA_ENABLED"),
			GoogleBooksURL: v.GetString("GOOGLE_BOOKS_URL"),
			OpenLibraryURL: v.GetString("OPENLIBRARY_URL"),
			RatePerSecond:  v.GetFloat64("METADATA_RATE_PER_SECOND"),
		},
		Covers: Covers{
			Enabled: v.GetBool("COVERS_ENABLED"),
			Dir:     v.GetString("COVERS_DIR"),
		},
		Log: Log{
			Level:  v.GetString("LOG_LEVEL"),
			Format: v.GetString("LOG_FORMAT"),
		},
		Global: Global{
			ShutdownTimeoutInSeconds: v.GetInt("SHUTDOWN_TIMEOUT_IN_SECONDS"),
		},
	}
}

// Validate reports settings the process cannot start with.
func (c *Config) Validate() error {
	if c.Backend.BaseURL == "" {
		return fmt.Errorf("BACKEND_URL is required")
	}
	if c.Backend.Provider == "" {
		return fmt.Errorf("IDENTITY_PROVIDER is required")
	}
	if c.Sync.Workers < 1 {
		return fmt.Errorf("SYNC_WORKERS must be at least 1, got %d", c.Sync.Workers)
	}
	if c.Sync.HistoryDays < 0 {
		return fmt.Errorf("HISTORY_RETENTION_DAYS cannot be negative, got %d", c.Sync.HistoryDays)
	}
	if c.Sync.ResyncEnabled {
		if err := scheduler.ValidateCronSchedule(c.Sync.ResyncSchedule); err != nil {
			return fmt.Errorf("invalid RESYNC_SCHEDULE %q: %w", c.Sync.ResyncSchedule, err)
		}
	}
	return nil
}

// CoversDir returns where thumbnails are cached.
func (c *Config) CoversDir() string {
	if c.Covers.Dir != "" {
		return c.Covers.Dir
	}
	return filepath.Join(filepath.Dir(c.Database.Path), "covers")
}

// ShutdownTimeout converts the configured seconds to a duration.
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Global.ShutdownTimeoutInSeconds) * time.Second
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
