// Package config loads shelfscan settings from an optional YAML file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Ledger    LedgerConfig    `yaml:"ledger"`
	Blob      BlobConfig      `yaml:"blob"`
	Inference InferenceConfig `yaml:"inference"`
	Store     StoreConfig     `yaml:"store"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Client    ClientConfig    `yaml:"client"`
	Log       LogConfig       `yaml:"log"`
	// Cameras maps a camera index to the side label recorded on media entries.
	Cameras map[int]string `yaml:"cameras"`
}

type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	PingInterval time.Duration `yaml:"ping_interval"`
	SnapshotSize int           `yaml:"snapshot_size"`
	// PublicURL is used to build upload URLs for the local blob backend.
	PublicURL string `yaml:"public_url"`
}

type LedgerConfig struct {
	TTL     time.Duration `yaml:"ttl"`
	Ceiling int           `yaml:"ceiling"`
}

type BlobConfig struct {
	Backend string      `yaml:"backend"` // minio, local, http
	Minio   MinioConfig `yaml:"minio"`
	// LocalDir is the root directory of the local backend
	LocalDir string `yaml:"local_dir"`
	// HTTPBaseURL is the prefix keys are appended to for the http backend
	HTTPBaseURL   string        `yaml:"http_base_url"`
	PresignExpiry time.Duration `yaml:"presign_expiry"`
}

type MinioConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	UseSSL    bool   `yaml:"use_ssl"`
}

type InferenceConfig struct {
	Provider         string        `yaml:"provider"` // gemini, openai, ollama
	Model            string        `yaml:"model"`
	Temperature      float64       `yaml:"temperature"`
	Timeout          time.Duration `yaml:"timeout"`
	InstructionsFile string        `yaml:"instructions_file"`
	SchemaFile       string        `yaml:"schema_file"`
}

type StoreConfig struct {
	Backend string `yaml:"backend"` // sqlite, memory
	Path    string `yaml:"path"`
}

type PipelineConfig struct {
	// SerializePerIdentifier runs invocations for the same identifier one at
	// a time. Off by default: concurrent runs are last-writer-wins.
	SerializePerIdentifier bool   `yaml:"serialize_per_identifier"`
	DefaultContentType     string `yaml:"default_content_type"`
}

type ClientConfig struct {
	URL            string        `yaml:"url"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads path (if it exists), applies defaults and environment overrides
// and validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
			// a missing file means defaults + environment
		default:
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	cfg.applyDefaults()
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8888"
	}
	if c.Server.PingInterval == 0 {
		c.Server.PingInterval = 30 * time.Second
	}
	if c.Server.SnapshotSize == 0 {
		c.Server.SnapshotSize = 50
	}
	if c.Ledger.TTL == 0 {
		c.Ledger.TTL = 15 * time.Minute
	}
	if c.Ledger.Ceiling == 0 {
		c.Ledger.Ceiling = 50
	}
	if c.Blob.Backend == "" {
		c.Blob.Backend = "local"
	}
	if c.Blob.LocalDir == "" {
		c.Blob.LocalDir = "uploads"
	}
	if c.Blob.PresignExpiry == 0 {
		c.Blob.PresignExpiry = 15 * time.Minute
	}
	if c.Blob.Minio.Region == "" {
		c.Blob.Minio.Region = "us-east-1"
	}
	if c.Inference.Provider == "" {
		c.Inference.Provider = "gemini"
	}
	if c.Inference.Temperature == 0 {
		c.Inference.Temperature = 0.1
	}
	if c.Inference.Timeout == 0 {
		c.Inference.Timeout = 2 * time.Minute
	}
	if c.Store.Backend == "" {
		c.Store.Backend = "sqlite"
	}
	if c.Store.Path == "" {
		c.Store.Path = "shelfscan.db"
	}
	if c.Pipeline.DefaultContentType == "" {
		c.Pipeline.DefaultContentType = "image/jpeg"
	}
	if c.Client.URL == "" {
		c.Client.URL = "ws://localhost:8888/ws"
	}
	if c.Client.RequestTimeout == 0 {
		c.Client.RequestTimeout = 5 * time.Minute
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if len(c.Cameras) == 0 {
		c.Cameras = map[int]string{1: "front", 2: "back"}
	}
}

func (c *Config) applyEnv() {
	setString(&c.Server.Addr, "SHELFSCAN_ADDR")
	setString(&c.Server.PublicURL, "SHELFSCAN_PUBLIC_URL")
	setString(&c.Log.Level, "SHELFSCAN_LOG_LEVEL")
	setString(&c.Log.Format, "SHELFSCAN_LOG_FORMAT")
	setString(&c.Store.Backend, "SHELFSCAN_STORE")
	setString(&c.Store.Path, "SHELFSCAN_STORE_PATH")
	setString(&c.Blob.Backend, "SHELFSCAN_BLOB_BACKEND")
	setString(&c.Blob.LocalDir, "SHELFSCAN_UPLOAD_DIR")
	setString(&c.Blob.HTTPBaseURL, "SHELFSCAN_BLOB_URL")
	setString(&c.Blob.Minio.Endpoint, "MINIO_ENDPOINT")
	setString(&c.Blob.Minio.AccessKey, "MINIO_ACCESS_KEY")
	setString(&c.Blob.Minio.SecretKey, "MINIO_SECRET_KEY")
	setString(&c.Blob.Minio.Bucket, "MINIO_BUCKET")
	setString(&c.Blob.Minio.Region, "MINIO_REGION")
	if v := os.Getenv("MINIO_USE_SSL"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Blob.Minio.UseSSL = b
		}
	}
	setString(&c.Inference.Provider, "INFERENCE_PROVIDER")
	setString(&c.Client.URL, "SHELFSCAN_URL")

	// Model env vars follow the provider the same way the cataloging
	// service picks its defaults.
	if c.Inference.Model == "" {
		switch c.Inference.Provider {
		case "gemini":
			c.Inference.Model = envOr("GEMINI_MODEL", "gemini-2.0-flash")
		case "openai":
			c.Inference.Model = envOr("OPENAI_MODEL", "gpt-4o")
		case "ollama":
			c.Inference.Model = envOr("OLLAMA_MODEL", "mistral-small3.2:24b")
		}
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch c.Blob.Backend {
	case "local", "minio", "http":
	default:
		return fmt.Errorf("unsupported blob backend: %s", c.Blob.Backend)
	}
	if c.Blob.Backend == "minio" && (c.Blob.Minio.Endpoint == "" || c.Blob.Minio.Bucket == "") {
		return fmt.Errorf("minio backend requires endpoint and bucket")
	}
	if c.Blob.Backend == "http" && c.Blob.HTTPBaseURL == "" {
		return fmt.Errorf("http blob backend requires http_base_url")
	}
	switch c.Inference.Provider {
	case "gemini", "openai", "ollama":
	default:
		return fmt.Errorf("unsupported inference provider: %s", c.Inference.Provider)
	}
	switch c.Store.Backend {
	case "sqlite", "memory":
	default:
		return fmt.Errorf("unsupported store backend: %s", c.Store.Backend)
	}
	if c.Ledger.Ceiling < 0 || c.Server.SnapshotSize < 0 {
		return fmt.Errorf("ledger ceiling and snapshot size must not be negative")
	}
	for idx, side := range c.Cameras {
		if strings.TrimSpace(side) == "" {
			return fmt.Errorf("camera %d has an empty side label", idx)
		}
	}
	return nil
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
