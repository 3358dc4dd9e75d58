package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/quire/pkg/observability"
	"github.com/platinummonkey/quire/pkg/output"
)

// DefaultFile is read from the working directory when no file is named
const DefaultFile = "quire.yaml"

// Sink types
const (
	SinkFilesystem = "fs"
	SinkS3         = "s3"
)

// Config holds all application configuration
type Config struct {
	// Project
	Name    string `yaml:"name"`
	Input   string `yaml:"input"`
	Version string `yaml:"-"`

	Output OutputConfig `yaml:"output"`

	// Plugins are loaded in order after the built-in plugins
	Plugins       []string          `yaml:"plugins"`
	Concurrency   int               `yaml:"concurrency"`
	HostedBaseURL string            `yaml:"hostedBaseUrl"`
	Options       map[string]string `yaml:"options"`

	Watch         WatchConfig         `yaml:"watch"`
	Server        ServerConfig        `yaml:"server"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// OutputConfig selects where rendered pages go
type OutputConfig struct {
	Type string   `yaml:"type"` // fs or s3
	Dir  string   `yaml:"dir"`
	S3   S3Config `yaml:"s3"`
}

// S3Config holds the S3 sink settings
type S3Config struct {
	Endpoint     string `yaml:"endpoint"`
	Region       string `yaml:"region"`
	Bucket       string `yaml:"bucket"`
	Prefix       string `yaml:"prefix"`
	AccessKey    string `yaml:"accessKey"`
	SecretKey    string `yaml:"secretKey"`
	UsePathStyle bool   `yaml:"usePathStyle"`
}

// WatchConfig holds watch mode settings
type WatchConfig struct {
	Debounce time.Duration `yaml:"debounce"`
}

// ServerConfig holds preview server settings
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel    string `yaml:"logLevel"`
	LogFormat   string `yaml:"logFormat"`
	MetricsFile string `yaml:"metricsFile"`

	OTelEnabled        bool   `yaml:"otelEnabled"`
	OTelEndpoint       string `yaml:"otelEndpoint"`
	OTelServiceName    string `yaml:"otelServiceName"`
	OTelServiceVersion string `yaml:"otelServiceVersion"`
	OTelInsecure       bool   `yaml:"otelInsecure"`
}

// Default returns the configuration used before any file, environment
// variable, or flag is applied
func Default() *Config {
	return &Config{
		Input:       "docs",
		Concurrency: 1,
		Output: OutputConfig{
			Type: SinkFilesystem,
			Dir:  "site",
			S3: S3Config{
				Region: "us-east-1",
			},
		},
		Options: map[string]string{},
		Watch: WatchConfig{
			Debounce: 200 * time.Millisecond,
		},
		Server: ServerConfig{
			Addr:            "127.0.0.1:8000",
			ShutdownTimeout: 10 * time.Second,
		},
		Observability: ObservabilityConfig{
			LogLevel:        "info",
			LogFormat:       string(observability.FormatText),
			OTelEndpoint:    "localhost:4317",
			OTelServiceName: "quire",
			OTelInsecure:    true,
		},
	}
}

// Load builds the configuration from defaults, then the YAML file at path,
// then QUIRE_* environment variables. An empty path reads DefaultFile when
// it exists. The result is not validated; callers apply flags first.
func Load(path string) (*Config, error) {
	cfg := Default()

	file := path
	if file == "" {
		if _, err := os.Stat(DefaultFile); err == nil {
			file = DefaultFile
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to stat %s: %w", DefaultFile, err)
		}
	}

	if file != "" {
		if err := cfg.loadFile(file); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if c.Options == nil {
		c.Options = map[string]string{}
	}

	return nil
}

// applyEnv overrides fields from QUIRE_* environment variables
func (c *Config) applyEnv() {
	c.Name = getEnv("QUIRE_NAME", c.Name)
	c.Input = getEnv("QUIRE_INPUT", c.Input)
	c.Output.Type = getEnv("QUIRE_OUTPUT_TYPE", c.Output.Type)
	c.Output.Dir = getEnv("QUIRE_OUTPUT", c.Output.Dir)

	if plugins := getEnv("QUIRE_PLUGINS", ""); plugins != "" {
		c.Plugins = splitList(plugins)
	}
	c.Concurrency = getEnvInt("QUIRE_CONCURRENCY", c.Concurrency)
	c.HostedBaseURL = getEnv("QUIRE_HOSTED_BASE_URL", c.HostedBaseURL)

	c.Output.S3.Endpoint = getEnv("QUIRE_S3_ENDPOINT", c.Output.S3.Endpoint)
	c.Output.S3.Region = getEnv("QUIRE_S3_REGION", c.Output.S3.Region)
	c.Output.S3.Bucket = getEnv("QUIRE_S3_BUCKET", c.Output.S3.Bucket)
	c.Output.S3.Prefix = getEnv("QUIRE_S3_PREFIX", c.Output.S3.Prefix)
	c.Output.S3.AccessKey = getEnv("QUIRE_S3_ACCESS_KEY", c.Output.S3.AccessKey)
	c.Output.S3.SecretKey = getEnv("QUIRE_S3_SECRET_KEY", c.Output.S3.SecretKey)
	c.Output.S3.UsePathStyle = getEnvBool("QUIRE_S3_USE_PATH_STYLE", c.Output.S3.UsePathStyle)

	c.Watch.Debounce = getEnvDuration("QUIRE_WATCH_DEBOUNCE", c.Watch.Debounce)
	c.Server.Addr = getEnv("QUIRE_SERVER_ADDR", c.Server.Addr)
	c.Server.ShutdownTimeout = getEnvDuration("QUIRE_SHUTDOWN_TIMEOUT", c.Server.ShutdownTimeout)

	o := &c.Observability
	o.LogLevel = getEnv("QUIRE_LOG_LEVEL", o.LogLevel)
	o.LogFormat = getEnv("QUIRE_LOG_FORMAT", o.LogFormat)
	o.MetricsFile = getEnv("QUIRE_METRICS_FILE", o.MetricsFile)
	o.OTelEnabled = getEnvBool("QUIRE_OTEL_ENABLED", o.OTelEnabled)
	o.OTelEndpoint = getEnv("QUIRE_OTEL_ENDPOINT", o.OTelEndpoint)
	o.OTelServiceName = getEnv("QUIRE_OTEL_SERVICE_NAME", o.OTelServiceName)
	o.OTelServiceVersion = getEnv("QUIRE_OTEL_SERVICE_VERSION", o.OTelServiceVersion)
	o.OTelInsecure = getEnvBool("QUIRE_OTEL_INSECURE", o.OTelInsecure)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Input == "" {
		return fmt.Errorf("input directory is required")
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be positive, got %d", c.Concurrency)
	}

	switch c.Output.Type {
	case SinkFilesystem:
		if c.Output.Dir == "" {
			return fmt.Errorf("output directory is required for fs output")
		}
	case SinkS3:
		if c.Output.S3.Bucket == "" {
			return fmt.Errorf("S3 bucket is required for s3 output")
		}
	default:
		return fmt.Errorf("invalid output type: %s (must be fs or s3)", c.Output.Type)
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// HostOptions returns the options exposed to plugins. HostedBaseURL is
// published as the hostedBaseUrl option.
func (c *Config) HostOptions() map[string]string {
	opts := make(map[string]string, len(c.Options)+1)
	for k, v := range c.Options {
		opts[k] = v
	}
	if c.HostedBaseURL != "" {
		opts["hostedBaseUrl"] = c.HostedBaseURL
	}
	return opts
}

// SinkConfig converts the S3 settings for output.NewS3Sink
func (s S3Config) SinkConfig() output.S3Config {
	return output.S3Config{
		Endpoint:     s.Endpoint,
		Region:       s.Region,
		Bucket:       s.Bucket,
		Prefix:       s.Prefix,
		AccessKey:    s.AccessKey,
		SecretKey:    s.SecretKey,
		UsePathStyle: s.UsePathStyle,
	}
}

// OTel converts the tracing settings for observability.InitOTel
func (o ObservabilityConfig) OTel() observability.OTelConfig {
	return observability.OTelConfig{
		Enabled:        o.OTelEnabled,
		Endpoint:       o.OTelEndpoint,
		ServiceName:    o.OTelServiceName,
		ServiceVersion: o.OTelServiceVersion,
		Insecure:       o.OTelInsecure,
	}
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
