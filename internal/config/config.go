package config

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"gopkg.in/yaml.v3"

	internal_errors "github.com/bricks-cloud/bricksmeter/internal/errors"
)

const DefaultIngestPath = "/api/v1/usage/events"

// Config holds every client setting. Defaults live in DefaultConfig; a
// variable only overrides a field when it is set.
type Config struct {
	BackendUrl               string  `koanf:"backend_url" yaml:"backend_url" env:"BRICKSMETER_BACKEND_URL"`
	ApiKey                   string  `koanf:"api_key" yaml:"api_key" env:"BRICKSMETER_API_KEY"`
	TenantId                 string  `koanf:"tenant_id" yaml:"tenant_id" env:"BRICKSMETER_TENANT_ID"`
	IngestPath               string  `koanf:"ingest_path" yaml:"ingest_path" env:"BRICKSMETER_INGEST_PATH"`
	BatchSize                int     `koanf:"batch_size" yaml:"batch_size" env:"BRICKSMETER_BATCH_SIZE"`
	FlushIntervalInSecs      float64 `koanf:"flush_interval" yaml:"flush_interval" env:"BRICKSMETER_FLUSH_INTERVAL"`
	MaxQueueSize             int     `koanf:"max_queue_size" yaml:"max_queue_size" env:"BRICKSMETER_MAX_QUEUE_SIZE"`
	RetryAttempts            int     `koanf:"retry_attempts" yaml:"retry_attempts" env:"BRICKSMETER_RETRY_ATTEMPTS"`
	TimeoutInMs              int     `koanf:"timeout_ms" yaml:"timeout_ms" env:"BRICKSMETER_TIMEOUT_MS"`
	RetryBaseDelayInMs       int     `koanf:"retry_base_delay_ms" yaml:"retry_base_delay_ms" env:"BRICKSMETER_RETRY_BASE_DELAY_MS"`
	RetryMaxDelayInMs        int     `koanf:"retry_max_delay_ms" yaml:"retry_max_delay_ms" env:"BRICKSMETER_RETRY_MAX_DELAY_MS"`
	MaxConcurrentSends       int     `koanf:"max_concurrent_sends" yaml:"max_concurrent_sends" env:"BRICKSMETER_MAX_CONCURRENT_SENDS"`
	AsyncMode                bool    `koanf:"async_mode" yaml:"async_mode" env:"BRICKSMETER_ASYNC_MODE"`
	CompressPayload          bool    `koanf:"compress_payload" yaml:"compress_payload" env:"BRICKSMETER_COMPRESS_PAYLOAD"`
	DisableMetadataProbe     bool    `koanf:"disable_metadata_probe" yaml:"disable_metadata_probe" env:"BRICKSMETER_DISABLE_METADATA_PROBE"`
	MetadataProbeTimeoutInMs int     `koanf:"metadata_probe_timeout_ms" yaml:"metadata_probe_timeout_ms" env:"BRICKSMETER_METADATA_PROBE_TIMEOUT_MS"`
	LogMode                  string  `koanf:"log_mode" yaml:"log_mode" env:"BRICKSMETER_LOG_MODE"`
	TelemetryProvider        string  `koanf:"telemetry_provider" yaml:"telemetry_provider" env:"BRICKSMETER_TELEMETRY_PROVIDER"`
	StatsAddress             string  `koanf:"stats_address" yaml:"stats_address" env:"BRICKSMETER_STATS_ADDRESS"`
	PrometheusPort           string  `koanf:"prometheus_port" yaml:"prometheus_port" env:"BRICKSMETER_PROMETHEUS_PORT"`
	OpenTelemetryEnabled     bool    `koanf:"otel_enabled" yaml:"otel_enabled" env:"BRICKSMETER_OTEL_ENABLED"`
	OpenTelemetryEndpoint    string  `koanf:"otel_endpoint" yaml:"otel_endpoint" env:"BRICKSMETER_OTEL_ENDPOINT"`
}

func DefaultConfig() *Config {
	return &Config{
		IngestPath:               DefaultIngestPath,
		BatchSize:                100,
		FlushIntervalInSecs:      5,
		MaxQueueSize:             10000,
		RetryAttempts:            3,
		TimeoutInMs:              5000,
		RetryBaseDelayInMs:       500,
		RetryMaxDelayInMs:        30000,
		MaxConcurrentSends:       4,
		AsyncMode:                true,
		MetadataProbeTimeoutInMs: 1000,
		LogMode:                  "dev",
		StatsAddress:             "127.0.0.1:8125",
		PrometheusPort:           "9464",
		OpenTelemetryEndpoint:    "localhost:4318",
	}
}

// ParseEnvVariables builds a config from defaults and BRICKSMETER_* variables.
func ParseEnvVariables() (*Config, error) {
	return Load("")
}

// Load applies, in order: defaults, the optional config file at path (.json,
// .yaml or .yml) and environment variables.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if len(path) != 0 {
		err := loadFile(path, cfg)
		if err != nil {
			return nil, err
		}
	}

	err := env.Parse(cfg)
	if err != nil {
		return nil, fmt.Errorf("error parsing environment variables: %w", err)
	}

	return cfg, nil
}

// LoadDotEnv exports variables from .env style files without overriding ones
// already present in the environment.
func LoadDotEnv(paths ...string) error {
	err := godotenv.Load(paths...)
	if err != nil {
		return fmt.Errorf("error loading env file: %w", err)
	}

	return nil
}

func loadFile(path string, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		bs, err := readFile(path)
		if err != nil {
			return err
		}

		err = yaml.Unmarshal(bs, cfg)
		if err != nil {
			return fmt.Errorf("error parsing yaml config %s: %w", path, err)
		}

		return nil
	case ".json":
		k := koanf.New(".")
		err := k.Load(file.Provider(path), json.Parser())
		if err != nil {
			return fmt.Errorf("error loading json config %s: %w", path, err)
		}

		err = k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"})
		if err != nil {
			return fmt.Errorf("error parsing json config %s: %w", path, err)
		}

		return nil
	}

	return internal_errors.NewConfigurationError(fmt.Sprintf("has unsupported extension %q", filepath.Ext(path)), "config file")
}

func readFile(path string) ([]byte, error) {
	bs, err := file.Provider(path).ReadBytes()
	if err != nil {
		return nil, fmt.Errorf("error reading config %s: %w", path, err)
	}

	return bs, nil
}

// Validate reports every invalid field in a single ConfigurationError.
func (c *Config) Validate() error {
	if c == nil {
		return internal_errors.NewConfigurationError("config is empty")
	}

	missing := []string{}
	if len(strings.TrimSpace(c.BackendUrl)) == 0 {
		missing = append(missing, "backend url")
	}

	if len(strings.TrimSpace(c.TenantId)) == 0 {
		missing = append(missing, "tenant id")
	}

	if len(missing) != 0 {
		return internal_errors.NewConfigurationError("are required", missing...)
	}

	u, err := url.Parse(c.BackendUrl)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || len(u.Host) == 0 {
		return internal_errors.NewConfigurationError("must be an absolute http(s) url", "backend url")
	}

	invalid := []string{}
	if c.BatchSize <= 0 {
		invalid = append(invalid, "batch size")
	}

	if c.FlushIntervalInSecs <= 0 {
		invalid = append(invalid, "flush interval")
	}

	if c.MaxQueueSize <= 0 {
		invalid = append(invalid, "max queue size")
	}

	if c.RetryAttempts <= 0 {
		invalid = append(invalid, "retry attempts")
	}

	if c.TimeoutInMs <= 0 {
		invalid = append(invalid, "timeout")
	}

	if c.MaxConcurrentSends <= 0 {
		invalid = append(invalid, "max concurrent sends")
	}

	if len(invalid) != 0 {
		return internal_errors.NewConfigurationError("must be greater than zero", invalid...)
	}

	if c.RetryBaseDelayInMs < 0 {
		return internal_errors.NewConfigurationError("can not be negative", "retry base delay")
	}

	if c.RetryMaxDelayInMs < c.RetryBaseDelayInMs {
		return internal_errors.NewConfigurationError("can not be lower than retry base delay", "retry max delay")
	}

	if c.BatchSize > c.MaxQueueSize {
		return internal_errors.NewConfigurationError("can not exceed max queue size", "batch size")
	}

	return nil
}

func (c *Config) FlushInterval() time.Duration {
	return time.Duration(c.FlushIntervalInSecs * float64(time.Second))
}

func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutInMs) * time.Millisecond
}

func (c *Config) RetryBaseDelay() time.Duration {
	return time.Duration(c.RetryBaseDelayInMs) * time.Millisecond
}

func (c *Config) RetryMaxDelay() time.Duration {
	return time.Duration(c.RetryMaxDelayInMs) * time.Millisecond
}

func (c *Config) MetadataProbeTimeout() time.Duration {
	return time.Duration(c.MetadataProbeTimeoutInMs) * time.Millisecond
}

// IngestUrl joins the backend url and the ingest path.
func (c *Config) IngestUrl() string {
	path := c.IngestPath
	if len(path) == 0 {
		path = DefaultIngestPath
	}

	return strings.TrimRight(c.BackendUrl, "/") + "/" + strings.TrimLeft(path, "/")
}
