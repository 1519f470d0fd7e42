package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/currency"
)

const (
	ReportBackendMemory = "memory"
	ReportBackendSheets = "sheets"
)

type Config struct {
	// REST API
	APIBaseURL  string
	APIToken    string
	HTTPTimeout time.Duration
	Currency    string

	// Query cache
	CacheStaleTime  time.Duration
	CacheGCTime     time.Duration
	CacheMaxEntries int
	// CacheDBPath enables the SQLite-persisted cache when set.
	CacheDBPath string

	// AMQP invalidation bus, disabled when AMQPURL is empty
	AMQPURL      string
	AMQPExchange string

	// Ledger
	EditWindow         time.Duration
	ClientSideReversal bool

	// Report export
	ReportBackend       string
	GoogleSpreadsheetID string
	ReportSheetName     string

	LogLevel string
}

func Load() *Config {
	return &Config{
		APIBaseURL:  getEnv("API_BASE_URL", "http://localhost:8000/api/"),
		APIToken:    getEnv("API_TOKEN", ""),
		HTTPTimeout: getEnvDuration("HTTP_TIMEOUT", 15*time.Second),
		Currency:    getEnv("CURRENCY", "USD"),

		CacheStaleTime:  getEnvDuration("CACHE_STALE_TIME", 5*time.Minute),
		CacheGCTime:     getEnvDuration("CACHE_GC_TIME", 10*time.Minute),
		CacheMaxEntries: getEnvInt("CACHE_MAX_ENTRIES", 256),
		CacheDBPath:     getEnv("CACHE_DB_PATH", ""),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "fintrack.invalidations"),

		EditWindow:         getEnvDuration("EDIT_WINDOW", time.Hour),
		ClientSideReversal: getEnvBool("CLIENT_SIDE_REVERSAL", false),

		ReportBackend:       getEnv("REPORT_BACKEND", ReportBackendMemory),
		GoogleSpreadsheetID: getEnv("GOOGLE_SPREADSHEET_ID", ""),
		ReportSheetName:     getEnv("REPORT_SHEET_NAME", "Reports"),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if c.APIBaseURL == "" {
		errors = append(errors, "API base URL cannot be empty")
	} else if u, err := url.Parse(c.APIBaseURL); err != nil {
		errors = append(errors, fmt.Sprintf("invalid API base URL '%s': %v", c.APIBaseURL, err))
	} else if u.Scheme != "http" && u.Scheme != "https" {
		errors = append(errors, fmt.Sprintf("invalid API base URL scheme '%s': must be 'http' or 'https'", u.Scheme))
	}

	if c.HTTPTimeout < time.Second {
		errors = append(errors, fmt.Sprintf("invalid HTTP timeout %v: must be at least 1 second", c.HTTPTimeout))
	}

	if _, err := currency.ParseISO(c.Currency); err != nil {
		errors = append(errors, fmt.Sprintf("invalid currency '%s': %v", c.Currency, err))
	}

	if c.CacheStaleTime < 0 {
		errors = append(errors, fmt.Sprintf("invalid cache stale time %v: must not be negative", c.CacheStaleTime))
	}
	if c.CacheGCTime < c.CacheStaleTime {
		errors = append(errors, fmt.Sprintf("invalid cache gc time %v: must be at least the stale time %v", c.CacheGCTime, c.CacheStaleTime))
	}
	if c.CacheMaxEntries < 1 {
		errors = append(errors, fmt.Sprintf("invalid cache max entries %d: must be at least 1", c.CacheMaxEntries))
	} else if c.CacheMaxEntries > 100000 {
		errors = append(errors, fmt.Sprintf("invalid cache max entries %d: must be at most 100000", c.CacheMaxEntries))
	}

	// Check if the cache directory exists or can be created
	if c.CacheDBPath != "" {
		dir := filepath.Dir(c.CacheDBPath)
		if dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0755); err != nil {
					errors = append(errors, fmt.Sprintf("cannot create cache database directory '%s': %v", dir, err))
				}
			}
		}
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
	}

	if c.EditWindow < 0 {
		errors = append(errors, fmt.Sprintf("invalid edit window %v: must not be negative", c.EditWindow))
	}

	switch c.ReportBackend {
	case ReportBackendMemory:
	case ReportBackendSheets:
		if c.GoogleSpreadsheetID == "" {
			errors = append(errors, "Google Spreadsheet ID is required when using sheets report backend")
		}
		if c.ReportSheetName == "" {
			errors = append(errors, "report sheet name is required when using sheets report backend")
		}
	default:
		errors = append(errors, fmt.Sprintf("invalid report backend '%s': must be one of [%s %s]", c.ReportBackend, ReportBackendMemory, ReportBackendSheets))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
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

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
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
