package common

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string           `toml:"environment"` // "development" or "production"
	Server      ServerConfig     `toml:"server"`
	Logging     LoggingConfig    `toml:"logging"`
	Storage     StorageConfig    `toml:"storage"`
	Scheduler   SchedulerConfig  `toml:"scheduler"`
	Session     SessionConfig    `toml:"session"`
	Browser     BrowserConfig    `toml:"browser"`
	OCR         OCRConfig        `toml:"ocr"`
	Screenshots ScreenshotConfig `toml:"screenshots"`
	Portals     []PortalConfig   `toml:"portals"` // One entry per vendor portal (routed by company)
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Format string   `toml:"format"` // "json" or "text"
	Output []string `toml:"output"` // "stdout", "file"
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
	IntakePrefix   string `toml:"intake_prefix"`    // Key prefix for the upstream intake collection
}

// SchedulerConfig contains dispatcher tunables. Duration fields are strings
// ("5m", "60s") parsed via the accessor methods.
type SchedulerConfig struct {
	MaxParallel        int    `toml:"max_parallel"`         // Max jobs in flight (default 3)
	JobTimeout         string `toml:"job_timeout"`          // Hard per-job deadline (default "5m")
	RetryBackoff       string `toml:"retry_backoff"`        // Delay before a pre-submission retry (default "60s")
	MaxAttempts        int    `toml:"max_attempts"`         // Attempts per job before terminal failure (default 3)
	PollInterval       string `toml:"poll_interval"`        // Queue poll cadence (default "1s")
	StuckSweepSchedule string `toml:"stuck_sweep_schedule"` // Cron schedule for the stuck-job sweeper
	StuckMaxAge        string `toml:"stuck_max_age"`        // Age after which a processing job is considered stuck
}

// SessionConfig contains master session and recovery tunables
type SessionConfig struct {
	StaleHorizon  string `toml:"stale_horizon"`  // Freshness horizon for the master session (default "2m")
	CheckTimeout  string `toml:"check_timeout"`  // Deadline for a single login probe (default "15s")
	CheckSchedule string `toml:"check_schedule"` // Cron schedule for the background freshness probe
	SoftMax       int    `toml:"soft_max"`       // Soft recovery budget (default 3)
	HardMax       int    `toml:"hard_max"`       // Hard recovery budget (default 2)
	NuclearMax    int    `toml:"nuclear_max"`    // Nuclear recovery budget (default 1)
	HistorySize   int    `toml:"history_size"`   // Bounded recovery history ring (default 32)
}

// BrowserConfig mirrors the Chrome launch flags used for both the master
// session and per-job clones
type BrowserConfig struct {
	Headless      bool   `toml:"headless"`
	DisableGPU    bool   `toml:"disable_gpu"`
	NoSandbox     bool   `toml:"no_sandbox"`
	UserAgent     string `toml:"user_agent"`
	LaunchTimeout string `toml:"launch_timeout"`  // Startup responsiveness deadline (default "30s")
	CloneSkipSize int64  `toml:"clone_skip_size"` // Files above this size are skipped during profile clone (bytes)
}

type OCRConfig struct {
	APIKey    string `toml:"api_key"`    // Gemini API key for CAPTCHA recognition
	Model     string `toml:"model"`      // Vision model (default "gemini-2.5-flash")
	RateLimit string `toml:"rate_limit"` // Minimum interval between OCR calls
}

type ScreenshotConfig struct {
	Backend string `toml:"backend"` // "filesystem" or "gcs"
	Dir     string `toml:"dir"`     // Filesystem backend directory
	Bucket  string `toml:"bucket"`  // GCS backend bucket
}

// PortalConfig holds per-portal credentials and entry points. Immutable after
// process start.
type PortalConfig struct {
	Company           string `toml:"company" validate:"required"` // Discriminator routed from intake documents
	EntryURL          string `toml:"entry_url" validate:"required,url"`
	DashboardURL      string `toml:"dashboard_url" validate:"required,url"`
	Username          string `toml:"username" validate:"required"`
	Password          string `toml:"password" validate:"required"`
	MasterProfilePath string `toml:"master_profile_path" validate:"required"`
	CloneRoot         string `toml:"clone_root" validate:"required"`
	LoginTimeout      string `toml:"login_timeout"`
}

// NewDefaultConfig creates a configuration with default values.
// Technical parameters are hardcoded here for production stability.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8080,
			Host: "localhost",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: []string{"stdout", "file"},
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path:         "./data",
				IntakePrefix: "intake:",
			},
		},
		Scheduler: SchedulerConfig{
			MaxParallel:        3,
			JobTimeout:         "5m",
			RetryBackoff:       "60s",
			MaxAttempts:        3,
			PollInterval:       "1s",
			StuckSweepSchedule: "0 */5 * * * *", // Every 5 minutes (cron format with seconds)
			StuckMaxAge:        "10m",
		},
		Session: SessionConfig{
			StaleHorizon:  "2m",
			CheckTimeout:  "15s",
			CheckSchedule: "0 * * * * *", // Every minute (cron format with seconds)
			SoftMax:       3,
			HardMax:       2,
			NuclearMax:    1,
			HistorySize:   32,
		},
		Browser: BrowserConfig{
			Headless:      true,
			DisableGPU:    true,
			NoSandbox:     true,
			UserAgent:     "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36",
			LaunchTimeout: "30s",
			CloneSkipSize: 25 * 1024 * 1024,
		},
		OCR: OCRConfig{
			Model:     "gemini-2.5-flash",
			RateLimit: "4s",
		},
		Screenshots: ScreenshotConfig{
			Backend: "filesystem",
			Dir:     "./data/screenshots",
		},
	}
}

// LoadFromFiles loads configuration with layered precedence:
// defaults -> file1 -> file2 -> ... -> environment variables.
// Later files override earlier ones.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to the config
func applyEnvOverrides(config *Config) {
	if v := os.Getenv("RAYAL_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			config.Server.Port = port
		}
	}
	if v := os.Getenv("RAYAL_HOST"); v != "" {
		config.Server.Host = v
	}
	if v := os.Getenv("RAYAL_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
	if v := os.Getenv("RAYAL_DATA_PATH"); v != "" {
		config.Storage.Badger.Path = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		config.OCR.APIKey = v
	}
}

// ApplyFlagOverrides applies command-line flag overrides (highest priority)
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port != 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// Validate checks structural constraints on the loaded configuration
func (c *Config) Validate() error {
	v := validator.New()
	for i := range c.Portals {
		if err := v.Struct(&c.Portals[i]); err != nil {
			return fmt.Errorf("portal %q configuration invalid: %w", c.Portals[i].Company, err)
		}
	}
	if c.Scheduler.MaxParallel <= 0 {
		return fmt.Errorf("scheduler.max_parallel must be positive, got %d", c.Scheduler.MaxParallel)
	}
	if c.Scheduler.MaxAttempts <= 0 {
		return fmt.Errorf("scheduler.max_attempts must be positive, got %d", c.Scheduler.MaxAttempts)
	}
	return nil
}

// IsProduction returns true when running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// PortalByCompany returns the portal configuration for a company discriminator
func (c *Config) PortalByCompany(company string) (*PortalConfig, bool) {
	for i := range c.Portals {
		if c.Portals[i].Company == company {
			return &c.Portals[i], true
		}
	}
	return nil, false
}

func parseDuration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

// JobTimeoutDuration returns the parsed per-job deadline
func (c *SchedulerConfig) JobTimeoutDuration() time.Duration {
	return parseDuration(c.JobTimeout, 5*time.Minute)
}

// RetryBackoffDuration returns the parsed retry backoff
func (c *SchedulerConfig) RetryBackoffDuration() time.Duration {
	return parseDuration(c.RetryBackoff, 60*time.Second)
}

// PollIntervalDuration returns the parsed queue poll cadence
func (c *SchedulerConfig) PollIntervalDuration() time.Duration {
	return parseDuration(c.PollInterval, time.Second)
}

// StuckMaxAgeDuration returns the parsed stuck-job age threshold
func (c *SchedulerConfig) StuckMaxAgeDuration() time.Duration {
	return parseDuration(c.StuckMaxAge, 10*time.Minute)
}

// StaleHorizonDuration returns the parsed master freshness horizon
func (c *SessionConfig) StaleHorizonDuration() time.Duration {
	return parseDuration(c.StaleHorizon, 2*time.Minute)
}

// CheckTimeoutDuration returns the parsed login probe deadline
func (c *SessionConfig) CheckTimeoutDuration() time.Duration {
	return parseDuration(c.CheckTimeout, 15*time.Second)
}

// LaunchTimeoutDuration returns the parsed browser startup deadline
func (c *BrowserConfig) LaunchTimeoutDuration() time.Duration {
	return parseDuration(c.LaunchTimeout, 30*time.Second)
}

// LoginTimeoutDuration returns the parsed portal login deadline
func (c *PortalConfig) LoginTimeoutDuration() time.Duration {
	return parseDuration(c.LoginTimeout, 45*time.Second)
}

// RateLimitDuration returns the minimum interval between OCR calls
func (c *OCRConfig) RateLimitDuration() time.Duration {
	return parseDuration(c.RateLimit, 4*time.Second)
}
