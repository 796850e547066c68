package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the agent configuration. Values are resolved in order: defaults,
// YAML file, environment, command line flags.
type Config struct {
	Datadog DatadogConfig `yaml:"datadog"`
	Source  SourceConfig  `yaml:"source"`

	MetricsAddr string `yaml:"metricsAddr"`
}

type DatadogConfig struct {
	URL            string `yaml:"url"`
	Port           int    `yaml:"port"`
	APIKey         string `yaml:"apiKey"`
	Source         string `yaml:"source"`
	Tags           string `yaml:"tags"`
	Hostname       string `yaml:"hostname"`
	Service        string `yaml:"service"`
	MaxBatchLength int    `yaml:"maxBatchLength"`
	PayloadMode    string `yaml:"payloadMode"`
	SchemasEnable  bool   `yaml:"schemasEnable"`
	// RequestTimeout bounds one delivery attempt. Zero means no deadline.
	RequestTimeout time.Duration `yaml:"requestTimeout"`
}

type SourceConfig struct {
	LogRootPath     string        `yaml:"logRootPath"`
	ScanInterval    time.Duration `yaml:"scanInterval"`
	Workers         int           `yaml:"workers"`
	FileQueueSize   int           `yaml:"fileQueueSize"`
	FileIdleTimeout time.Duration `yaml:"fileIdleTimeout"`
	NodeName        string        `yaml:"nodeName"`
	PollBatchSize   int           `yaml:"pollBatchSize"`
	PollInterval    time.Duration `yaml:"pollInterval"`
}

func Default() Config {
	return Config{
		Datadog: DatadogConfig{
			URL:            "http-intake.logs.datadoghq.com",
			Port:           443,
			Source:         "kafka-connect",
			MaxBatchLength: 50,
			PayloadMode:    "structured",
		},
		Source: SourceConfig{
			LogRootPath:   "/var/log/pods",
			ScanInterval:  30 * time.Second,
			Workers:       4,
			FileQueueSize: 50,
			NodeName:      "unknown",
			PollBatchSize: 500,
			PollInterval:  5 * time.Second,
		},
		MetricsAddr: ":9102",
	}
}

// Load reads the YAML file at path on top of the defaults. An empty path
// returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from environment variables that are set.
func (c *Config) ApplyEnv() {
	c.Datadog.URL = getEnv("DD_URL", c.Datadog.URL)
	c.Datadog.Port = getEnvAsInt("DD_PORT", c.Datadog.Port)
	c.Datadog.APIKey = getEnv("DD_API_KEY", c.Datadog.APIKey)
	c.Datadog.Source = getEnv("DD_SOURCE", c.Datadog.Source)
	c.Datadog.Tags = getEnv("DD_TAGS", c.Datadog.Tags)
	c.Datadog.Hostname = getEnv("DD_HOSTNAME", c.Datadog.Hostname)
	c.Datadog.Service = getEnv("DD_SERVICE", c.Datadog.Service)
	c.Datadog.MaxBatchLength = getEnvAsInt("DD_MAX_BATCH_LENGTH", c.Datadog.MaxBatchLength)
	c.Datadog.PayloadMode = getEnv("DD_PAYLOAD_MODE", c.Datadog.PayloadMode)
	c.Datadog.SchemasEnable = getEnvAsBool("DD_SCHEMAS_ENABLE", c.Datadog.SchemasEnable)
	c.Datadog.RequestTimeout = getEnvAsDuration("DD_REQUEST_TIMEOUT", c.Datadog.RequestTimeout)

	c.Source.LogRootPath = getEnv("LOG_PATH", c.Source.LogRootPath)
	c.Source.ScanInterval = getEnvAsDuration("SCAN_INTERVAL", c.Source.ScanInterval)
	c.Source.Workers = getEnvAsInt("WORKERS", c.Source.Workers)
	c.Source.FileQueueSize = getEnvAsInt("QUEUE_SIZE", c.Source.FileQueueSize)
	c.Source.FileIdleTimeout = getEnvAsDuration("FILE_IDLE_TIMEOUT", c.Source.FileIdleTimeout)
	c.Source.NodeName = getEnv("NODE_NAME", c.Source.NodeName)
	c.Source.PollBatchSize = getEnvAsInt("POLL_BATCH_SIZE", c.Source.PollBatchSize)
	c.Source.PollInterval = getEnvAsDuration("POLL_INTERVAL", c.Source.PollInterval)

	c.MetricsAddr = getEnv("METRICS_ADDR", c.MetricsAddr)
}

func (c Config) Validate() error {
	var errs []error

	if c.Datadog.APIKey == "" {
		errs = append(errs, errors.New("datadog.apiKey is required"))
	}
	if c.Datadog.URL == "" {
		errs = append(errs, errors.New("datadog.url is required"))
	}
	if c.Datadog.Port < 1 || c.Datadog.Port > 65535 {
		errs = append(errs, fmt.Errorf("datadog.port %d out of range", c.Datadog.Port))
	}
	if c.Datadog.MaxBatchLength < 1 {
		errs = append(errs, fmt.Errorf("datadog.maxBatchLength must be positive, got %d", c.Datadog.MaxBatchLength))
	}
	switch c.Datadog.PayloadMode {
	case "structured", "raw":
	default:
		errs = append(errs, fmt.Errorf("datadog.payloadMode %q must be structured or raw", c.Datadog.PayloadMode))
	}
	if c.Source.Workers < 1 {
		errs = append(errs, fmt.Errorf("source.workers must be positive, got %d", c.Source.Workers))
	}
	if c.Source.PollBatchSize < 1 {
		errs = append(errs, fmt.Errorf("source.pollBatchSize must be positive, got %d", c.Source.PollBatchSize))
	}
	if c.Source.PollInterval <= 0 || c.Source.ScanInterval <= 0 {
		errs = append(errs, errors.New("source.pollInterval and source.scanInterval must be positive"))
	}

	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if result, err := strconv.Atoi(value); err == nil {
			return result
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if result, err := strconv.ParseBool(value); err == nil {
			return result
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if result, err := time.ParseDuration(value); err == nil {
			return result
		}
	}
	return defaultValue
}
