// Package config provides configuration loading and validation for the
// refinery server, worker and CLI.
//
// Values are resolved in three layers: built-in defaults, an optional JSON
// file, then environment variables (after .env and .env.local are loaded).
// Later layers win.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Duration is a time.Duration that reads "90s"-style strings from JSON.
type Duration time.Duration

// UnmarshalJSON accepts either a duration string or integer nanoseconds.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}
	var n int64
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("invalid duration %s", string(b))
	}
	*d = Duration(n)
	return nil
}

// MarshalJSON writes the duration as a string.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Timeouts bound each external collaborator call.
type Timeouts struct {
	Metadata Duration `json:"metadata"`
	Transfer Duration `json:"transfer"`
	Segment  Duration `json:"segment"`
	Analysis Duration `json:"analysis"`
	Action   Duration `json:"action"`
}

// Config represents the full application configuration.
type Config struct {
	// Server
	Port      int    `json:"port,omitempty"`
	LogLevel  string `json:"log_level,omitempty"`
	LogFormat string `json:"log_format,omitempty"`

	// Backends
	DatabaseURL string `json:"database_url,omitempty"` // PostgreSQL; empty selects the in-memory store
	RedisURL    string `json:"redis_url,omitempty"`    // asynq queue and delivery leases
	NATSURL     string `json:"nats_url,omitempty"`     // event fan-out; optional

	// Collaborators
	GeminiAPIKey    string `json:"gemini_api_key,omitempty"`
	YouTubeAPIKey   string `json:"youtube_api_key,omitempty"`
	GCSBucket       string `json:"gcs_bucket,omitempty"`
	LocalStorageDir string `json:"local_storage_dir,omitempty"`
	YtDlpPath       string `json:"ytdlp_path,omitempty"`
	UseBrowser      bool   `json:"use_browser,omitempty"` // headless fallback for page metadata
	GitHubToken     string `json:"github_token,omitempty"`
	GitHubRepo      string `json:"github_repo,omitempty"` // owner/name for issue creation
	WebhookURL      string `json:"webhook_url,omitempty"` // default completion webhook

	// Pipeline
	MinDurationSeconds int      `json:"min_duration_seconds,omitempty"`
	MaxDurationSeconds int      `json:"max_duration_seconds,omitempty"`
	MaxRetries         int      `json:"max_retries,omitempty"`
	WorkerConcurrency  int      `json:"worker_concurrency,omitempty"`
	QueueName          string   `json:"queue_name,omitempty"`
	LeaseTTL           Duration `json:"lease_ttl,omitempty"`
	Timeouts           Timeouts `json:"timeouts"`

	// Push endpoint
	PushAuthRequired bool `json:"push_auth_required,omitempty"`
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		Port:               8080,
		LogLevel:           "info",
		LogFormat:          "text",
		LocalStorageDir:    "data/assets",
		YtDlpPath:          "yt-dlp",
		MinDurationSeconds: 30,
		MaxDurationSeconds: 10800,
		MaxRetries:         3,
		WorkerConcurrency:  4,
		QueueName:          "refinery",
		LeaseTTL:           Duration(30 * time.Minute),
		Timeouts: Timeouts{
			Metadata: Duration(15 * time.Second),
			Transfer: Duration(15 * time.Minute),
			Segment:  Duration(2 * time.Minute),
			Analysis: Duration(5 * time.Minute),
			Action:   Duration(2 * time.Minute),
		},
	}
}

// Load resolves the configuration from defaults, the optional JSON file at
// path, and the environment, then validates it.
func Load(path string) (*Config, error) {
	loadEnvFiles()

	cfg := Defaults()
	if path != "" {
		if err := cfg.overlayFile(path); err != nil {
			return nil, err
		}
	}
	cfg.overlayEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// overlayFile decodes a JSON file onto c; absent keys keep their values.
func (c *Config) overlayFile(path string) error {
	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := json.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config JSON: %w", err)
	}
	return nil
}

func (c *Config) overlayEnv() {
	c.Port = getEnvInt("PORT", c.Port)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnv("LOG_FORMAT", c.LogFormat)

	c.DatabaseURL = getEnv("DATABASE_URL", c.DatabaseURL)
	c.RedisURL = getEnv("REDIS_URL", c.RedisURL)
	c.NATSURL = getEnv("NATS_URL", c.NATSURL)

	c.GeminiAPIKey = getEnv("GEMINI_API_KEY", c.GeminiAPIKey)
	c.YouTubeAPIKey = getEnv("YOUTUBE_API_KEY", c.YouTubeAPIKey)
	c.GCSBucket = getEnv("GCS_BUCKET", c.GCSBucket)
	c.LocalStorageDir = getEnv("LOCAL_STORAGE_DIR", c.LocalStorageDir)
	c.YtDlpPath = getEnv("YTDLP_PATH", c.YtDlpPath)
	c.UseBrowser = getEnvBool("USE_BROWSER", c.UseBrowser)
	c.GitHubToken = getEnv("GITHUB_TOKEN", c.GitHubToken)
	c.GitHubRepo = getEnv("GITHUB_REPO", c.GitHubRepo)
	c.WebhookURL = getEnv("WEBHOOK_URL", c.WebhookURL)

	c.MinDurationSeconds = getEnvInt("MIN_DURATION_SECONDS", c.MinDurationSeconds)
	c.MaxDurationSeconds = getEnvInt("MAX_DURATION_SECONDS", c.MaxDurationSeconds)
	c.MaxRetries = getEnvInt("MAX_RETRIES", c.MaxRetries)
	c.WorkerConcurrency = getEnvInt("WORKER_CONCURRENCY", c.WorkerConcurrency)
	c.QueueName = getEnv("QUEUE_NAME", c.QueueName)
	c.LeaseTTL = Duration(getEnvDuration("LEASE_TTL", c.LeaseTTL.Std()))

	c.Timeouts.Metadata = Duration(getEnvDuration("METADATA_TIMEOUT", c.Timeouts.Metadata.Std()))
	c.Timeouts.Transfer = Duration(getEnvDuration("TRANSFER_TIMEOUT", c.Timeouts.Transfer.Std()))
	c.Timeouts.Segment = Duration(getEnvDuration("SEGMENT_TIMEOUT", c.Timeouts.Segment.Std()))
	c.Timeouts.Analysis = Duration(getEnvDuration("ANALYSIS_TIMEOUT", c.Timeouts.Analysis.Std()))
	c.Timeouts.Action = Duration(getEnvDuration("ACTION_TIMEOUT", c.Timeouts.Action.Std()))

	c.PushAuthRequired = getEnvBool("PUSH_AUTH_REQUIRED", c.PushAuthRequired)
}

// Validate checks that the configuration has valid values.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config error: port must be between 1 and 65535, got %d", c.Port)
	}
	if c.MinDurationSeconds < 0 {
		return fmt.Errorf("config error: min_duration_seconds must be non-negative")
	}
	if c.MaxDurationSeconds <= c.MinDurationSeconds {
		return fmt.Errorf("config error: max_duration_seconds (%d) must exceed min_duration_seconds (%d)",
			c.MaxDurationSeconds, c.MinDurationSeconds)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("config error: max_retries must be non-negative")
	}
	if c.WorkerConcurrency < 1 {
		return fmt.Errorf("config error: worker_concurrency must be at least 1")
	}
	if c.GitHubRepo != "" && strings.Count(c.GitHubRepo, "/") != 1 {
		return fmt.Errorf("config error: github_repo must look like owner/name, got %q", c.GitHubRepo)
	}
	for name, d := range map[string]Duration{
		"metadata": c.Timeouts.Metadata,
		"transfer": c.Timeouts.Transfer,
		"segment":  c.Timeouts.Segment,
		"analysis": c.Timeouts.Analysis,
		"action":   c.Timeouts.Action,
	} {
		if d <= 0 {
			return fmt.Errorf("config error: %s timeout must be positive", name)
		}
	}
	return nil
}

// loadEnvFiles loads .env and .env.local from the working directory or its
// parent. Missing files are ignored.
func loadEnvFiles() {
	_ = godotenv.Load()
	if err := godotenv.Load(".env.local"); err == nil {
		return
	}

	cwd, err := os.Getwd()
	if err != nil {
		return
	}
	parent := filepath.Dir(cwd)
	if parent == "" || parent == cwd {
		return
	}
	_ = godotenv.Load(filepath.Join(parent, ".env.local"))
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
