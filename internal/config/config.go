package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/SyedDaiam9101/cropdoc/internal/coordinator"
	"github.com/SyedDaiam9101/cropdoc/internal/fusion"
)

// EnvPrefix prefixes every environment variable the service reads.
const EnvPrefix = "CROPDOC"

// Config holds all configuration for the service
type Config struct {
	// Server configuration
	Port        int `mapstructure:"port"`
	MetricsPort int `mapstructure:"metrics_port"`

	// Model bundle
	ImageModel string `mapstructure:"image_model"`
	TextModel  string `mapstructure:"text_model"`
	Manifest   string `mapstructure:"manifest"`
	ORTLibrary string `mapstructure:"ort_library"`

	// Shared result store; empty disables it
	Redis    string        `mapstructure:"redis"`
	RedisTTL time.Duration `mapstructure:"redis_ttl"`

	// OpenTelemetry configuration
	OTELEnabled  bool   `mapstructure:"otel_enabled"`
	OTELEndpoint string `mapstructure:"otel_endpoint"`

	// Feature flags
	UseMockInference bool `mapstructure:"use_mock_inference"`

	Fusion fusion.Config `mapstructure:"fusion"`
	Cache  CacheConfig   `mapstructure:"cache"`

	RequestTimeout time.Duration            `mapstructure:"request_timeout"`
	ReloadPolicy   coordinator.ReloadPolicy `mapstructure:"reload_policy"`
}

// CacheConfig sizes the in-process result cache.
type CacheConfig struct {
	Capacity       int           `mapstructure:"capacity"`
	TTL            time.Duration `mapstructure:"ttl"`
	FailureBackoff time.Duration `mapstructure:"failure_backoff"`
}

// Coordinator assembles the coordinator settings spread over the cache section and the
// top-level scheduling keys.
func (c *Config) Coordinator() coordinator.Config {
	return coordinator.Config{
		Capacity:       c.Cache.Capacity,
		TTL:            c.Cache.TTL,
		FailureBackoff: c.Cache.FailureBackoff,
		RequestTimeout: c.RequestTimeout,
		ReloadPolicy:   c.ReloadPolicy,
	}
}

// New returns a viper instance with defaults and environment bindings applied but no
// config file read. Callers layer a file and flag overrides on top, then call Decode.
func New() *viper.Viper {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Also read the OTEL standard env var
	v.BindEnv("otel_endpoint", EnvPrefix+"_OTEL_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT")
	if os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != "" {
		v.SetDefault("otel_enabled", true)
	}
	v.BindEnv("use_mock_inference", EnvPrefix+"_USE_MOCK_INFERENCE", EnvPrefix+"_USE_MOCK")
	return v
}

func setDefaults(v *viper.Viper) {
	fd := fusion.DefaultConfig()
	cd := coordinator.DefaultConfig()

	v.SetDefault("port", 50051)
	v.SetDefault("metrics_port", 9100)
	v.SetDefault("image_model", "models/leaf_image.onnx")
	v.SetDefault("text_model", "models/symptom_text.onnx")
	v.SetDefault("manifest", "models/manifest.yaml")
	v.SetDefault("ort_library", "")
	v.SetDefault("redis", "")
	v.SetDefault("redis_ttl", time.Hour)
	v.SetDefault("otel_enabled", false)
	v.SetDefault("otel_endpoint", "")
	v.SetDefault("use_mock_inference", false)

	v.SetDefault("fusion.image_weight", fd.ImageWeight)
	v.SetDefault("fusion.text_weight", fd.TextWeight)
	v.SetDefault("fusion.threshold", fd.Threshold)

	v.SetDefault("cache.capacity", cd.Capacity)
	v.SetDefault("cache.ttl", cd.TTL)
	v.SetDefault("cache.failure_backoff", cd.FailureBackoff)
	v.SetDefault("request_timeout", cd.RequestTimeout)
	v.SetDefault("reload_policy", string(cd.ReloadPolicy))
}

// ReadFile reads configPath into v. An empty path searches the usual locations and
// tolerates a missing file.
func ReadFile(v *viper.Viper, configPath string) error {
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("error reading config file %s: %w", configPath, err)
		}
		return nil
	}

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/cropdoc/")
	v.AddConfigPath("$HOME/.cropdoc")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}
	return nil
}

// Decode unmarshals v into a Config.
func Decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// LoadWithConfigFile loads configuration from a specific config file, or searches the
// default locations when configPath is empty.
// Priority (highest to lowest): env vars > config file > defaults
func LoadWithConfigFile(configPath string) (*Config, error) {
	v := New()
	if err := ReadFile(v, configPath); err != nil {
		return nil, err
	}
	return Decode(v)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.MetricsPort <= 0 || c.MetricsPort > 65535 {
		return fmt.Errorf("invalid metrics port: %d", c.MetricsPort)
	}
	if c.Port == c.MetricsPort {
		return fmt.Errorf("port and metrics_port must be different")
	}
	if !c.UseMockInference && c.ImageModel == "" && c.TextModel == "" {
		return fmt.Errorf("at least one of image_model and text_model is required when not using mock inference")
	}
	if c.Redis != "" && c.RedisTTL <= 0 {
		return fmt.Errorf("invalid redis ttl: %s", c.RedisTTL)
	}
	if err := c.Fusion.Validate(); err != nil {
		return fmt.Errorf("fusion: %w", err)
	}
	if err := c.Coordinator().Validate(); err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	return nil
}
