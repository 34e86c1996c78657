package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds the core runtime configuration for the service.
// Values are primarily sourced from environment variables, with
// sensible defaults where appropriate. See .env.example.
type Config struct {
	AdminUser     string
	AdminPassword string

	DatabaseURL string

	ListenAddr string

	// RetentionDays is the maximum retention (in days) for raw detection
	// events. Per-key settings will be clamped to this value.
	RetentionDays int

	// DashboardCacheTTL is how long interactive dashboard results stay
	// cached. Kept short so the dashboard tracks fresh ingests.
	DashboardCacheTTL time.Duration

	// ExportCacheTTL is how long export snapshots stay cached. Much longer
	// than the dashboard TTL: repeated export clicks for the same range
	// should produce one consistent snapshot.
	ExportCacheTTL time.Duration

	// RollupWindowDays is how many trailing days the rollup refresher
	// rebuilds on each run. Days older than the window are considered
	// settled and are not touched again.
	RollupWindowDays int

	// InternalAPIKey, when set, is ensured as an active ingest key owned by
	// the bootstrap admin. Used by co-deployed detection pipelines.
	InternalAPIKey string
}

// Load reads configuration from environment variables and applies defaults.
func Load() *Config {
	cfg := &Config{
		AdminUser:         getenv("APP_ADMIN_USER", "admin"),
		AdminPassword:     getenv("APP_ADMIN_PASSWORD", "changeme"),
		DatabaseURL:       os.Getenv("APP_DATABASE_URL"),
		ListenAddr:        getenv("APP_LISTEN_ADDR", ":8080"),
		RetentionDays:     90,
		DashboardCacheTTL: 10 * time.Second,
		ExportCacheTTL:    30 * time.Minute,
		RollupWindowDays:  7,
		InternalAPIKey:    getenv("APP_INTERNAL_API_KEY", ""),
	}

	if v := os.Getenv("APP_RETENTION_DAYS"); v != "" {
		if days, err := strconv.Atoi(v); err == nil && days > 0 {
			cfg.RetentionDays = days
		}
	}
	if v := os.Getenv("APP_ROLLUP_WINDOW_DAYS"); v != "" {
		if days, err := strconv.Atoi(v); err == nil && days > 0 {
			cfg.RollupWindowDays = days
		}
	}
	if d := getenvDuration("APP_DASHBOARD_CACHE_TTL"); d > 0 {
		cfg.DashboardCacheTTL = d
	}
	if d := getenvDuration("APP_EXPORT_CACHE_TTL"); d > 0 {
		cfg.ExportCacheTTL = d
	}

	return cfg
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// getenvDuration parses a Go duration ("10s", "30m"); bare numbers are
// taken as seconds.
func getenvDuration(key string) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil && n > 0 {
		return time.Duration(n) * time.Second
	}
	return 0
}
