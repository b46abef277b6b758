// Package config loads the client configuration from YAML with READSHIFT_*
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"readshift/internal/util"
	"readshift/pkg/domain"
	"readshift/pkg/kv"
)

const (
	DefaultAPIBaseURL        = "http://localhost:8000"
	DefaultExtractDelay      = "1s"
	DefaultOutboxMaxAttempts = 5
	DefaultServeAddr         = "127.0.0.1:8080"
)

// StorageConfig selects where tokens and highlight backups live.
type StorageConfig struct {
	Backend       string `yaml:"backend"`
	Path          string `yaml:"path"`
	Passphrase    string `yaml:"passphrase"`
	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`
	RedisPrefix   string `yaml:"redisPrefix"`
	S3Endpoint    string `yaml:"s3Endpoint"`
	S3AccessKey   string `yaml:"s3AccessKey"`
	S3SecretKey   string `yaml:"s3SecretKey"`
	S3Bucket      string `yaml:"s3Bucket"`
	S3Prefix      string `yaml:"s3Prefix"`
	S3UseSSL      bool   `yaml:"s3UseSSL"`
}

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	APIBaseURL        string        `yaml:"apiBaseURL"`
	LogLevel          string        `yaml:"logLevel"`
	LogFile           string        `yaml:"logFile"`
	RequestTimeout    string        `yaml:"requestTimeout"`
	HighlightColor    string        `yaml:"highlightColor"`
	ExtractDelay      string        `yaml:"extractDelay"`
	OutboxMaxAttempts int           `yaml:"outboxMaxAttempts"`
	ServeAddr         string        `yaml:"serveAddr"`
	Storage           StorageConfig `yaml:"storage"`
}

// DefaultDir is the per-user directory for the store and log file.
func DefaultDir() string {
	if dir, err := os.UserConfigDir(); err == nil && dir != "" {
		return filepath.Join(dir, "readshift")
	}
	return ".readshift"
}

// DefaultPath is the config file read when no path is given.
func DefaultPath() string {
	return filepath.Join(DefaultDir(), "config.yaml")
}

// Defaults returns the configuration used when no file exists.
func Defaults() FileConfig {
	dir := DefaultDir()
	return FileConfig{
		APIBaseURL:        DefaultAPIBaseURL,
		LogLevel:          "info",
		LogFile:           filepath.Join(dir, "readshift.log"),
		HighlightColor:    domain.ColorYellow,
		ExtractDelay:      DefaultExtractDelay,
		OutboxMaxAttempts: DefaultOutboxMaxAttempts,
		ServeAddr:         DefaultServeAddr,
		Storage: StorageConfig{
			Backend: kv.BackendFile,
			Path:    filepath.Join(dir, "store.json"),
		},
	}
}

// Load reads config from path (defaults to DefaultPath). A missing file is
// not an error: defaults plus environment overrides are used.
func Load(path string) (FileConfig, error) {
	cfg := Defaults()
	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return cfg, fmt.Errorf("read config: %w", err)
	}
	applyEnv(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *FileConfig) {
	if v := os.Getenv("READSHIFT_API_BASE_URL"); v != "" {
		cfg.APIBaseURL = strings.TrimSpace(v)
	}
	if v := os.Getenv("READSHIFT_LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.TrimSpace(v)
	}
	if v := os.Getenv("READSHIFT_LOG_FILE"); v != "" {
		cfg.LogFile = strings.TrimSpace(v)
	}
	if v := os.Getenv("READSHIFT_REQUEST_TIMEOUT"); v != "" {
		cfg.RequestTimeout = strings.TrimSpace(v)
	}
	if v := os.Getenv("READSHIFT_HIGHLIGHT_COLOR"); v != "" {
		cfg.HighlightColor = strings.ToLower(strings.TrimSpace(v))
	}
	if v := os.Getenv("READSHIFT_EXTRACT_DELAY"); v != "" {
		cfg.ExtractDelay = strings.TrimSpace(v)
	}
	if v := os.Getenv("READSHIFT_OUTBOX_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			cfg.OutboxMaxAttempts = n
		}
	}
	if v := os.Getenv("READSHIFT_SERVE_ADDR"); v != "" {
		cfg.ServeAddr = strings.TrimSpace(v)
	}
	if v := os.Getenv("READSHIFT_STORAGE_BACKEND"); v != "" {
		cfg.Storage.Backend = strings.TrimSpace(v)
	}
	if v := os.Getenv("READSHIFT_STORAGE_PATH"); v != "" {
		cfg.Storage.Path = strings.TrimSpace(v)
	}
	if v := os.Getenv("READSHIFT_STORAGE_PASSPHRASE"); v != "" {
		cfg.Storage.Passphrase = v
	}
	if v := os.Getenv("READSHIFT_REDIS_ADDR"); v != "" {
		cfg.Storage.RedisAddr = strings.TrimSpace(v)
	}
	if v := os.Getenv("READSHIFT_REDIS_PASSWORD"); v != "" {
		cfg.Storage.RedisPassword = v
	}
	if v := os.Getenv("READSHIFT_REDIS_PREFIX"); v != "" {
		cfg.Storage.RedisPrefix = strings.TrimSpace(v)
	}
	if v := os.Getenv("READSHIFT_S3_ENDPOINT"); v != "" {
		cfg.Storage.S3Endpoint = strings.TrimSpace(v)
	}
	if v := os.Getenv("READSHIFT_S3_ACCESS_KEY"); v != "" {
		cfg.Storage.S3AccessKey = v
	}
	if v := os.Getenv("READSHIFT_S3_SECRET_KEY"); v != "" {
		cfg.Storage.S3SecretKey = v
	}
	if v := os.Getenv("READSHIFT_S3_BUCKET"); v != "" {
		cfg.Storage.S3Bucket = strings.TrimSpace(v)
	}
	if v := os.Getenv("READSHIFT_S3_PREFIX"); v != "" {
		cfg.Storage.S3Prefix = strings.TrimSpace(v)
	}
	if v := os.Getenv("READSHIFT_S3_USE_SSL"); v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			cfg.Storage.S3UseSSL = b
		}
	}
}

func validateConfig(cfg FileConfig) error {
	if strings.TrimSpace(cfg.APIBaseURL) == "" {
		return errors.New("config: apiBaseURL is required")
	}
	if !strings.HasPrefix(cfg.APIBaseURL, "http://") && !strings.HasPrefix(cfg.APIBaseURL, "https://") {
		return fmt.Errorf("config: apiBaseURL must be an http(s) URL, got %q", cfg.APIBaseURL)
	}
	if _, err := parseDuration("requestTimeout", cfg.RequestTimeout); err != nil {
		return err
	}
	if _, err := parseDuration("extractDelay", cfg.ExtractDelay); err != nil {
		return err
	}
	if !domain.ValidColor(cfg.HighlightColor) {
		return fmt.Errorf("config: highlightColor must be one of %s", strings.Join(domain.Colors, ", "))
	}
	if cfg.OutboxMaxAttempts < 1 {
		return errors.New("config: outboxMaxAttempts must be >= 1")
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Storage.Backend)) {
	case "", kv.BackendFile:
		if strings.TrimSpace(cfg.Storage.Path) == "" {
			return errors.New("config: storage.path is required for the file backend")
		}
	case kv.BackendMemory:
	case kv.BackendRedis:
		if strings.TrimSpace(cfg.Storage.RedisAddr) == "" {
			return errors.New("config: storage.redisAddr is required for the redis backend")
		}
	case kv.BackendS3:
		if strings.TrimSpace(cfg.Storage.S3Endpoint) == "" || strings.TrimSpace(cfg.Storage.S3Bucket) == "" {
			return errors.New("config: storage.s3Endpoint and storage.s3Bucket are required for the s3 backend")
		}
	default:
		return fmt.Errorf("config: unknown storage.backend %q", cfg.Storage.Backend)
	}
	return nil
}

func parseDuration(name, value string) (time.Duration, error) {
	if strings.TrimSpace(value) == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("config: invalid %s duration: %w", name, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("config: %s must not be negative", name)
	}
	return d, nil
}

// Timeout is the per-request HTTP timeout. Unset means requests are only
// bounded by the command's context.
func (c FileConfig) Timeout() time.Duration {
	d, _ := parseDuration("requestTimeout", c.RequestTimeout)
	return d
}

// ExtractWait is the pause between extraction and the chapter reload.
func (c FileConfig) ExtractWait() time.Duration {
	d, _ := parseDuration("extractDelay", c.ExtractDelay)
	return d
}

// KV converts the storage section for kv.Open.
func (c FileConfig) KV() kv.Config {
	s := c.Storage
	return kv.Config{
		Backend:       s.Backend,
		Path:          s.Path,
		Passphrase:    s.Passphrase,
		RedisAddr:     s.RedisAddr,
		RedisPassword: s.RedisPassword,
		RedisPrefix:   s.RedisPrefix,
		Object: kv.ObjectConfig{
			Endpoint:  s.S3Endpoint,
			AccessKey: s.S3AccessKey,
			SecretKey: s.S3SecretKey,
			Bucket:    s.S3Bucket,
			Prefix:    s.S3Prefix,
			UseSSL:    s.S3UseSSL,
		},
	}
}

// LogOptions builds logger options; verbose mirrors records to stderr.
func (c FileConfig) LogOptions(verbose bool) util.LogOptions {
	return util.LogOptions{
		Level:  c.LogLevel,
		File:   c.LogFile,
		Stderr: verbose,
	}
}
