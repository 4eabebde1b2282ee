package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// HTTP Server
	Port         string
	SecureCookie bool

	// Database
	SQLiteDBPath string

	// Logging
	LogLevel string

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Google Drive
	GoogleOAuthClientFile string
	GoogleOAuthClientJSON string
	OAuthRedirectURL      string
	CredentialsDir        string

	// Mail
	SendGridAPIKey string
	SendGridHost   string
	MailFrom       string
	MailFromName   string

	// Rate limiting
	RateLimitRPS   float64
	RateLimitBurst int

	// Reports
	ReportCacheTTL   time.Duration
	ReportCacheSize  int
	ScheduleInterval time.Duration
}

func Load() *Config {
	return &Config{
		Port:         getEnv("PORT", "8081"),
		SecureCookie: getEnvBool("SECURE_COOKIE", false),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/spesa.db"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "spesa"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "report_emails"),

		GoogleOAuthClientFile: getEnv("GOOGLE_OAUTH_CLIENT_FILE", ""),
		GoogleOAuthClientJSON: getEnv("GOOGLE_OAUTH_CLIENT_JSON", ""),
		OAuthRedirectURL:      getEnv("OAUTH_REDIRECT_URL", "http://localhost:8081/oauth2callback"),
		CredentialsDir:        getEnv("CREDENTIALS_DIR", "./data/credentials"),

		SendGridAPIKey: getEnv("SENDGRID_API_KEY", ""),
		SendGridHost:   getEnv("SENDGRID_HOST", "https://api.sendgrid.com"),
		MailFrom:       getEnv("MAIL_FROM", "reports@spesa.local"),
		MailFromName:   getEnv("MAIL_FROM_NAME", "Spesa"),

		RateLimitRPS:   getEnvFloat("RATE_LIMIT_RPS", 5),
		RateLimitBurst: getEnvInt("RATE_LIMIT_BURST", 10),

		ReportCacheTTL:   getEnvDuration("REPORT_CACHE_TTL", 5*time.Minute),
		ReportCacheSize:  getEnvInt("REPORT_CACHE_SIZE", 200),
		ScheduleInterval: getEnvDuration("SCHEDULE_INTERVAL", time.Hour),
	}
}

// DriveEnabled reports whether OAuth client credentials are configured.
func (c *Config) DriveEnabled() bool {
	return c.GoogleOAuthClientFile != "" || c.GoogleOAuthClientJSON != ""
}

// AMQPEnabled reports whether report jobs go through a broker.
func (c *Config) AMQPEnabled() bool {
	return c.AMQPURL != ""
}

// OAuthClientJSON returns the client secret document from the inline value
// or the configured file.
func (c *Config) OAuthClientJSON() ([]byte, error) {
	if c.GoogleOAuthClientJSON != "" {
		return []byte(c.GoogleOAuthClientJSON), nil
	}
	if c.GoogleOAuthClientFile == "" {
		return nil, fmt.Errorf("no OAuth client configured")
	}
	b, err := os.ReadFile(c.GoogleOAuthClientFile)
	if err != nil {
		return nil, fmt.Errorf("read OAuth client file: %w", err)
	}
	return b, nil
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.SQLiteDBPath == "" {
		errors = append(errors, "SQLite database path cannot be empty")
	} else if err := ensureDir(filepath.Dir(c.SQLiteDBPath)); err != nil {
		errors = append(errors, fmt.Sprintf("cannot create SQLite database directory: %v", err))
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be one of debug, info, warn, error", c.LogLevel))
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.DriveEnabled() {
		if c.GoogleOAuthClientFile != "" {
			if _, err := os.Stat(c.GoogleOAuthClientFile); os.IsNotExist(err) {
				errors = append(errors, fmt.Sprintf("Google OAuth client file does not exist: %s", c.GoogleOAuthClientFile))
			}
		}
		if u, err := url.Parse(c.OAuthRedirectURL); err != nil || u.Scheme == "" || u.Host == "" {
			errors = append(errors, fmt.Sprintf("invalid OAuth redirect URL '%s'", c.OAuthRedirectURL))
		}
		if c.CredentialsDir == "" {
			errors = append(errors, "credentials directory cannot be empty when Drive is enabled")
		}
	}

	if c.MailFrom == "" || !strings.Contains(c.MailFrom, "@") {
		errors = append(errors, fmt.Sprintf("invalid sender address '%s'", c.MailFrom))
	}

	if c.RateLimitRPS <= 0 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %v: must be positive", c.RateLimitRPS))
	}
	if c.RateLimitBurst < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit burst %d: must be at least 1", c.RateLimitBurst))
	}

	if c.ReportCacheSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid report cache size %d: must be at least 1", c.ReportCacheSize))
	}
	if c.ReportCacheTTL < time.Second {
		errors = append(errors, fmt.Sprintf("invalid report cache TTL %v: must be at least 1 second", c.ReportCacheTTL))
	}

	if c.ScheduleInterval < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid schedule interval %v: must be at least 1 minute", c.ScheduleInterval))
	} else if c.ScheduleInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid schedule interval %v: must be at most 24 hours", c.ScheduleInterval))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

func ensureDir(dir string) error {
	if dir == "." || dir == "" {
		return nil
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return os.MkdirAll(dir, 0o755)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
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
