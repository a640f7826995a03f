package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/rescp17/preservicaUploader/pkg/archive"
	"github.com/rescp17/preservicaUploader/pkg/staging"
	"github.com/rescp17/preservicaUploader/pkg/transfer"
)

const mb = 1024 * 1024

// Config is the process-wide configuration, read once at startup.
type Config struct {
	Username string `env:"PRESERVICA_USERNAME" validate:"required"`
	Password string `env:"PRESERVICA_PASSWORD" validate:"required"`
	Server   string `env:"PRESERVICA_SERVER" validate:"required"`
	Tenant   string `env:"PRESERVICA_TENANT"`

	SecurityTag string `env:"PRESERVICA_SECURITY_TAG,default=open" validate:"required"`

	Bucket        string `env:"PRESERVICA_BUCKET"`
	ThresholdMB   int64  `env:"PRESERVICA_S3_THRESHOLD,default=100" validate:"gte=1"`
	Concurrency   int    `env:"PRESERVICA_CONCURRENCY,default=4" validate:"gte=1,lte=64"`
	MaxAttempts   int    `env:"PRESERVICA_MAX_ATTEMPTS,default=3" validate:"gte=1,lte=10"`
	PartSizeMB    int64  `env:"PRESERVICA_PART_SIZE_MB,default=8" validate:"gte=5,lte=5120"`
	IncludeHidden bool   `env:"PRESERVICA_INCLUDE_HIDDEN,default=false"`

	StagingBackend   string `env:"PRESERVICA_STAGING_BACKEND,default=s3" validate:"oneof=s3 minio"`
	StagingRegion    string `env:"PRESERVICA_STAGING_REGION"`
	StagingEndpoint  string `env:"PRESERVICA_STAGING_ENDPOINT"`
	StagingAccessKey string `env:"PRESERVICA_STAGING_ACCESS_KEY"`
	StagingSecretKey string `env:"PRESERVICA_STAGING_SECRET_KEY"`
	StagingPathStyle bool   `env:"PRESERVICA_STAGING_PATH_STYLE,default=false"`

	HTTPTimeout time.Duration `env:"PRESERVICA_HTTP_TIMEOUT,default=30m" validate:"gt=0"`
	LogLevel    string        `env:"LOG_LEVEL,default=info" validate:"oneof=debug info warn error"`
}

// Load reads an optional .env file, then the environment, and validates the
// result. Variables already set in the environment win over .env entries.
func Load(files ...string) (*Config, error) {
	if err := godotenv.Load(files...); err != nil {
		slog.Debug("no .env file loaded", "error", err)
	}
	return FromEnviron()
}

// FromEnviron builds a Config from the current process environment only.
func FromEnviron() (*Config, error) {
	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return nil, &transfer.ConfigurationError{Field: "environment", Err: err}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var validate = validator.New()

// Validate checks field constraints and returns a *transfer.ConfigurationError
// naming the first offending variable.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return &transfer.ConfigurationError{
				Field: envName(fe.StructField()),
				Err:   fmt.Errorf("failed %q constraint (value %v)", fe.Tag(), redact(fe)),
			}
		}
		return &transfer.ConfigurationError{Field: "config", Err: err}
	}
	return nil
}

// RequireBucket reports a configuration error when large files would need the
// staging bucket but none is configured.
func (c *Config) RequireBucket() error {
	if strings.TrimSpace(c.Bucket) == "" {
		return &transfer.ConfigurationError{Field: "PRESERVICA_BUCKET", Err: errors.New("staging bucket is not set")}
	}
	return nil
}

// BaseURL returns the archive server as an https URL.
func (c *Config) BaseURL() string {
	s := strings.TrimRight(c.Server, "/")
	if strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") {
		return s
	}
	return "https://" + s
}

// ThresholdBytes is the staged-pathway threshold in bytes.
func (c *Config) ThresholdBytes() int64 {
	return c.ThresholdMB * mb
}

// SlogLevel maps LOG_LEVEL onto a slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// TransferConfig derives the engine configuration.
func (c *Config) TransferConfig() *transfer.TransferConfig {
	tc := transfer.DefaultTransferConfig()
	tc.ThresholdBytes = c.ThresholdBytes()
	tc.PartSize = c.PartSizeMB * mb
	tc.MaxConcurrency = c.Concurrency
	tc.RetryPolicy.MaxAttempts = c.MaxAttempts
	tc.Bucket = c.Bucket
	tc.IncludeHidden = c.IncludeHidden
	return tc
}

// Credentials returns the archive login.
func (c *Config) Credentials() archive.Credentials {
	return archive.Credentials{Username: c.Username, Password: c.Password, Tenant: c.Tenant}
}

// StagingConfig returns the staging store settings. Staged objects are
// recorded as created by the archive user.
func (c *Config) StagingConfig() staging.Config {
	return staging.Config{
		Backend:   c.StagingBackend,
		Bucket:    c.Bucket,
		Region:    c.StagingRegion,
		Endpoint:  c.StagingEndpoint,
		AccessKey: c.StagingAccessKey,
		SecretKey: c.StagingSecretKey,
		PathStyle: c.StagingPathStyle,
		CreatedBy: c.Username,
	}
}

func envName(field string) string {
	f, ok := fieldEnv[field]
	if !ok {
		return field
	}
	return f
}

var fieldEnv = map[string]string{
	"Username":       "PRESERVICA_USERNAME",
	"Password":       "PRESERVICA_PASSWORD",
	"Server":         "PRESERVICA_SERVER",
	"SecurityTag":    "PRESERVICA_SECURITY_TAG",
	"ThresholdMB":    "PRESERVICA_S3_THRESHOLD",
	"Concurrency":    "PRESERVICA_CONCURRENCY",
	"MaxAttempts":    "PRESERVICA_MAX_ATTEMPTS",
	"PartSizeMB":     "PRESERVICA_PART_SIZE_MB",
	"StagingBackend": "PRESERVICA_STAGING_BACKEND",
	"HTTPTimeout":    "PRESERVICA_HTTP_TIMEOUT",
	"LogLevel":       "LOG_LEVEL",
}

func redact(fe validator.FieldError) any {
	if fe.StructField() == "Password" {
		return "<redacted>"
	}
	return fe.Value()
}
