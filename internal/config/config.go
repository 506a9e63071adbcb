// Package config loads the portfolio server's settings from the environment.
//
// A .env file in the working directory is read first when present; real
// environment variables always win over it.
//
// Environment Variables:
//
// Application Settings:
//   - PORT: HTTP port (default: 8080)
//   - GIN_MODE: debug or release (default: debug)
//   - LOG_LEVEL: debug, info, warn or error (default: info)
//   - LOG_FORMAT: console or json (default: console)
//   - DATABASE_PATH: SQLite file (default: ./portfolio.db)
//   - CONTENT_PATH: YAML file overriding the embedded site content
//
// Contact Form:
//   - CONTACT_BACKEND: script, smtp or none (default: none)
//   - CONTACT_SCRIPT_URL: endpoint receiving the JSON form post
//   - SMTP_HOST, SMTP_PORT, SMTP_USER, SMTP_PASS, TO_EMAIL
//
// Admin:
//   - ADMIN_USERNAME (default: admin)
//   - ADMIN_PASSWORD or ADMIN_PASSWORD_HASH (bcrypt)
//
// Rate Limiting:
//   - RATE_LIMIT_BACKEND: local, redis or off (default: local)
//   - RATE_LIMIT_PER_MINUTE (default: 5)
//   - RATE_LIMIT_BURST (default: 3)
//   - REDIS_ADDRESS, REDIS_PASSWORD, REDIS_DB
//
// Visitors:
//   - VISITOR_HASH_SALT: salt for hashed client IPs, shared by every replica
//     (required in release mode, random per process otherwise)
//   - TRACK_VISITORS (default: true)
//   - VISITOR_RETENTION (default: 8760h)
//   - CLEANUP_SCHEDULE: cron spec (default: @daily)
//
// Pipeline Diagram:
//   - PIPELINE_LAYOUT: square or circle
//   - PIPELINE_STEP, PIPELINE_PAUSE, PIPELINE_PULSE: durations
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/denisenanni/portfolio/internal/pipeline"
)

const minSaltLength = 16

// Config holds every setting of the server.
type Config struct {
	// Application settings
	Port         string
	GinMode      string
	LogLevel     string
	LogFormat    string
	DatabasePath string
	ContentPath  string

	// Contact form delivery
	ContactBackend   string
	ContactScriptURL string
	SMTPHost         string
	SMTPPort         string
	SMTPUser         string
	SMTPPass         string
	ToEmail          string

	// Admin access
	AdminUsername     string
	AdminPassword     string
	AdminPasswordHash string

	// Contact form throttling
	RateLimitBackend   string
	RateLimitPerMinute int
	RateLimitBurst     int
	RedisAddress       string
	RedisPassword      string
	RedisDB            int

	// Visitor tracking
	VisitorHashSalt  string
	TrackVisitors    bool
	VisitorRetention time.Duration
	CleanupSchedule  string

	// Pipeline diagram
	PipelineLayout string
	Timing         pipeline.Timing
}

// Load reads the configuration. A missing .env file is not an error.
func Load() *Config {
	_ = godotenv.Load()

	timing := pipeline.DefaultTiming()
	timing.StepDelay = getDurationEnv("PIPELINE_STEP", timing.StepDelay)
	timing.Pause = getDurationEnv("PIPELINE_PAUSE", timing.Pause)
	timing.PulsePeriod = getDurationEnv("PIPELINE_PULSE", timing.PulsePeriod)

	return &Config{
		Port:         getEnv("PORT", "8080"),
		GinMode:      getEnv("GIN_MODE", "debug"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		LogFormat:    getEnv("LOG_FORMAT", "console"),
		DatabasePath: getEnv("DATABASE_PATH", "./portfolio.db"),
		ContentPath:  getEnv("CONTENT_PATH", ""),

		ContactBackend:   getEnv("CONTACT_BACKEND", "none"),
		ContactScriptURL: getEnv("CONTACT_SCRIPT_URL", ""),
		SMTPHost:         getEnv("SMTP_HOST", "smtp.gmail.com"),
		SMTPPort:         getEnv("SMTP_PORT", "587"),
		SMTPUser:         getEnv("SMTP_USER", ""),
		SMTPPass:         getEnv("SMTP_PASS", ""),
		ToEmail:          getEnv("TO_EMAIL", ""),

		AdminUsername:     getEnv("ADMIN_USERNAME", "admin"),
		AdminPassword:     getEnv("ADMIN_PASSWORD", ""),
		AdminPasswordHash: getEnv("ADMIN_PASSWORD_HASH", ""),

		RateLimitBackend:   getEnv("RATE_LIMIT_BACKEND", "local"),
		RateLimitPerMinute: getIntEnv("RATE_LIMIT_PER_MINUTE", 5),
		RateLimitBurst:     getIntEnv("RATE_LIMIT_BURST", 3),
		RedisAddress:       getEnv("REDIS_ADDRESS", "localhost:6379"),
		RedisPassword:      getEnv("REDIS_PASSWORD", ""),
		RedisDB:            getIntEnv("REDIS_DB", 0),

		VisitorHashSalt:  getEnv("VISITOR_HASH_SALT", ""),
		TrackVisitors:    getBoolEnv("TRACK_VISITORS", true),
		VisitorRetention: getDurationEnv("VISITOR_RETENTION", 365*24*time.Hour),
		CleanupSchedule:  getEnv("CLEANUP_SCHEDULE", "@daily"),

		PipelineLayout: getEnv("PIPELINE_LAYOUT", ""),
		Timing:         timing,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// AdminEnabled reports whether admin credentials were configured.
func (c *Config) AdminEnabled() bool {
	return c.AdminPassword != "" || c.AdminPasswordHash != ""
}

// Release reports whether gin runs in release mode.
func (c *Config) Release() bool {
	return c.GinMode == "release"
}

// Validate checks the configuration and returns every problem found.
func (c *Config) Validate() error {
	var errs []error

	if port, err := strconv.Atoi(c.Port); err != nil || port < 1 || port > 65535 {
		errs = append(errs, fmt.Errorf("invalid PORT %q", c.Port))
	}
	switch c.GinMode {
	case "debug", "release", "test":
	default:
		errs = append(errs, fmt.Errorf("invalid GIN_MODE %q", c.GinMode))
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("invalid LOG_LEVEL %q", c.LogLevel))
	}
	switch c.LogFormat {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("invalid LOG_FORMAT %q", c.LogFormat))
	}
	if c.DatabasePath == "" {
		errs = append(errs, errors.New("DATABASE_PATH is required"))
	}

	switch c.ContactBackend {
	case "none":
	case "script":
		if c.ContactScriptURL == "" {
			errs = append(errs, errors.New("CONTACT_SCRIPT_URL is required for the script backend"))
		}
	case "smtp":
		if c.SMTPUser == "" || c.SMTPPass == "" {
			errs = append(errs, errors.New("SMTP_USER and SMTP_PASS are required for the smtp backend"))
		}
		if c.ToEmail == "" {
			errs = append(errs, errors.New("TO_EMAIL is required for the smtp backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid CONTACT_BACKEND %q", c.ContactBackend))
	}

	if c.Release() && !c.AdminEnabled() {
		errs = append(errs, errors.New("ADMIN_PASSWORD or ADMIN_PASSWORD_HASH is required in release mode"))
	}

	switch c.RateLimitBackend {
	case "off":
	case "local", "redis":
		if c.RateLimitPerMinute <= 0 {
			errs = append(errs, errors.New("RATE_LIMIT_PER_MINUTE must be positive"))
		}
		if c.RateLimitBurst <= 0 {
			errs = append(errs, errors.New("RATE_LIMIT_BURST must be positive"))
		}
		if c.RateLimitBackend == "redis" && c.RedisAddress == "" {
			errs = append(errs, errors.New("REDIS_ADDRESS is required for the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid RATE_LIMIT_BACKEND %q", c.RateLimitBackend))
	}
	if c.RedisDB < 0 || c.RedisDB > 15 {
		errs = append(errs, fmt.Errorf("REDIS_DB must be between 0 and 15, got %d", c.RedisDB))
	}

	switch {
	case c.VisitorHashSalt == "" && c.Release():
		errs = append(errs, errors.New("VISITOR_HASH_SALT is required in release mode"))
	case c.VisitorHashSalt != "" && len(c.VisitorHashSalt) < minSaltLength:
		errs = append(errs, fmt.Errorf("VISITOR_HASH_SALT must be at least %d characters", minSaltLength))
	}
	if c.VisitorRetention <= 0 {
		errs = append(errs, errors.New("VISITOR_RETENTION must be positive"))
	}
	if _, err := cron.ParseStandard(c.CleanupSchedule); err != nil {
		errs = append(errs, fmt.Errorf("invalid CLEANUP_SCHEDULE %q: %w", c.CleanupSchedule, err))
	}

	if c.PipelineLayout != "" {
		if _, err := pipeline.LayoutByName(c.PipelineLayout, pipeline.DefaultViewBox); err != nil {
			errs = append(errs, err)
		}
	}
	if err := c.Timing.Validate(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}
