// Package config centralizes how framegrab reads environment variables and
// exposes them as strongly typed Go values.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

const (
	// ErrCodeMissing means a required identifier is empty or still a placeholder.
	ErrCodeMissing = "config_missing"
	// ErrCodeInvalid means a value could not be parsed or is out of range.
	ErrCodeInvalid = "config_invalid"
	// ErrCodeCredentials means no service account credentials were supplied.
	ErrCodeCredentials = "credentials_missing"
)

const (
	StoreDrive     = "drive"
	StoreS3        = "s3"
	LedgerSheets   = "sheets"
	LedgerPostgres = "postgres"

	placeholderSuffix = "_PLACEHOLDER"
)

// Config is built once at startup and handed to every component that needs
// it. Nothing reads the environment after Load returns.
type Config struct {
	ServiceAccountFile string `env:"SERVICE_ACCOUNT_FILE"`
	ServiceAccountJSON string `env:"SERVICE_ACCOUNT_JSON"`

	StartFolderID     string  `env:"START_FOLDER_ID" envDefault:"START_FOLDER_ID_PLACEHOLDER"`
	ThumbnailFolderID string  `env:"THUMBNAIL_FOLDER_ID" envDefault:"THUMBNAIL_FOLDER_ID_PLACEHOLDER"`
	SpreadsheetID     string  `env:"SPREADSHEET_ID" envDefault:"SPREADSHEET_ID_PLACEHOLDER"`
	SheetName         string  `env:"SHEET_NAME" envDefault:"Sheet1"`
	CaptureSeconds    float64 `env:"CAPTURE_TIMESTAMP_SECONDS" envDefault:"2"`

	Store  string `env:"FRAMEGRAB_STORE" envDefault:"drive"`
	Ledger string `env:"FRAMEGRAB_LEDGER" envDefault:"sheets"`

	TempDir     string `env:"FRAMEGRAB_TEMP_DIR"`
	FFmpegPath  string `env:"FRAMEGRAB_FFMPEG" envDefault:"ffmpeg"`
	FFprobePath string `env:"FRAMEGRAB_FFPROBE" envDefault:"ffprobe"`

	LogLevel  string `env:"FRAMEGRAB_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"FRAMEGRAB_LOG_FORMAT" envDefault:"console"`

	AppendAttempts int           `env:"FRAMEGRAB_APPEND_ATTEMPTS" envDefault:"5"`
	AppendBackoff  time.Duration `env:"FRAMEGRAB_APPEND_BACKOFF" envDefault:"2s"`

	MetricsFile string `env:"FRAMEGRAB_METRICS_FILE"`

	S3Endpoint  string        `env:"S3_ENDPOINT" envDefault:"localhost:9000"`
	S3AccessKey string        `env:"S3_ACCESS_KEY"`
	S3SecretKey string        `env:"S3_SECRET_KEY"`
	S3Region    string        `env:"S3_REGION" envDefault:"us-east-1"`
	S3Bucket    string        `env:"S3_BUCKET"`
	S3UseSSL    bool          `env:"S3_USE_SSL" envDefault:"false"`
	S3LinkTTL   time.Duration `env:"S3_LINK_TTL" envDefault:"168h"`

	DatabaseURL string `env:"DATABASE_URL"`
}

// Error is a configuration failure. It is always fatal to the run.
type Error struct {
	Code string
	Key  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Key != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Key, e.Err)
	case e.Key != "":
		return fmt.Sprintf("%s: %s", e.Code, e.Key)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	default:
		return e.Code
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Code extracts the error code, or "" when err is not a *Error.
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Load reads configuration from environment variables falling back to
// defaults, then validates it.
func Load() (*Config, error) {
	cfg, err := Parse()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse reads the environment without validating, so callers can apply
// command line overrides before calling Validate.
func Parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, &Error{Code: ErrCodeInvalid, Err: fmt.Errorf("parse env config: %w", err)}
	}
	cfg.Normalize()
	return cfg, nil
}

// Normalize trims values and fills derived defaults.
func (c *Config) Normalize() {
	c.StartFolderID = strings.TrimSpace(c.StartFolderID)
	c.ThumbnailFolderID = strings.TrimSpace(c.ThumbnailFolderID)
	c.SpreadsheetID = strings.TrimSpace(c.SpreadsheetID)
	c.SheetName = strings.TrimSpace(c.SheetName)
	if c.SheetName == "" {
		c.SheetName = "Sheet1"
	}
	c.Store = strings.ToLower(strings.TrimSpace(c.Store))
	c.Ledger = strings.ToLower(strings.TrimSpace(c.Ledger))
	c.ServiceAccountJSON = strings.TrimSpace(c.ServiceAccountJSON)
	c.ServiceAccountFile = strings.TrimSpace(c.ServiceAccountFile)
	c.S3Bucket = strings.TrimSpace(c.S3Bucket)
	c.S3Endpoint = strings.TrimSpace(c.S3Endpoint)
	if c.TempDir == "" {
		c.TempDir = os.TempDir()
	}
}

// Validate checks the required identifiers and backend settings. It never
// touches the network.
func (c *Config) Validate() error {
	required := []struct {
		key, val string
	}{
		{"START_FOLDER_ID", c.StartFolderID},
		{"THUMBNAIL_FOLDER_ID", c.ThumbnailFolderID},
		{"SPREADSHEET_ID", c.SpreadsheetID},
	}
	for _, r := range required {
		if isPlaceholder(r.val) {
			return &Error{Code: ErrCodeMissing, Key: r.key}
		}
	}
	if c.CaptureSeconds < 0 {
		return &Error{Code: ErrCodeInvalid, Key: "CAPTURE_TIMESTAMP_SECONDS", Err: fmt.Errorf("must not be negative, got %v", c.CaptureSeconds)}
	}
	if c.AppendAttempts < 1 {
		return &Error{Code: ErrCodeInvalid, Key: "FRAMEGRAB_APPEND_ATTEMPTS", Err: fmt.Errorf("must be at least 1, got %d", c.AppendAttempts)}
	}
	if c.AppendBackoff < 0 {
		return &Error{Code: ErrCodeInvalid, Key: "FRAMEGRAB_APPEND_BACKOFF", Err: fmt.Errorf("must not be negative, got %s", c.AppendBackoff)}
	}

	switch c.Store {
	case StoreDrive:
	case StoreS3:
		if c.S3Bucket == "" {
			return &Error{Code: ErrCodeMissing, Key: "S3_BUCKET"}
		}
	default:
		return &Error{Code: ErrCodeInvalid, Key: "FRAMEGRAB_STORE", Err: fmt.Errorf("must be %q or %q, got %q", StoreDrive, StoreS3, c.Store)}
	}
	switch c.Ledger {
	case LedgerSheets:
	case LedgerPostgres:
		if strings.TrimSpace(c.DatabaseURL) == "" {
			return &Error{Code: ErrCodeMissing, Key: "DATABASE_URL"}
		}
	default:
		return &Error{Code: ErrCodeInvalid, Key: "FRAMEGRAB_LEDGER", Err: fmt.Errorf("must be %q or %q, got %q", LedgerSheets, LedgerPostgres, c.Ledger)}
	}

	if c.NeedsGoogleCredentials() && c.ServiceAccountJSON == "" && c.ServiceAccountFile == "" {
		return &Error{Code: ErrCodeCredentials, Err: errors.New("set SERVICE_ACCOUNT_JSON or SERVICE_ACCOUNT_FILE")}
	}
	return nil
}

// NeedsGoogleCredentials reports whether any configured backend talks to
// Google APIs.
func (c *Config) NeedsGoogleCredentials() bool {
	return c.Store == StoreDrive || c.Ledger == LedgerSheets
}

// CredentialsJSON returns the service account key. Inline JSON wins over the
// file path when both are set.
func (c *Config) CredentialsJSON() ([]byte, error) {
	if c.ServiceAccountJSON != "" {
		return []byte(c.ServiceAccountJSON), nil
	}
	if c.ServiceAccountFile == "" {
		return nil, &Error{Code: ErrCodeCredentials, Err: errors.New("set SERVICE_ACCOUNT_JSON or SERVICE_ACCOUNT_FILE")}
	}
	b, err := os.ReadFile(c.ServiceAccountFile)
	if err != nil {
		return nil, &Error{Code: ErrCodeCredentials, Key: "SERVICE_ACCOUNT_FILE", Err: err}
	}
	return b, nil
}

func isPlaceholder(v string) bool {
	return v == "" || strings.HasSuffix(v, placeholderSuffix)
}
