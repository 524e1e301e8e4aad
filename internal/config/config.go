package config

import (
	"log/slog"
	"os"
	"strconv"
	"sync"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

// =============================================================================
// WoW Capture Controller - Configuration with Environment Overrides
// =============================================================================

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Capture CaptureConfig `yaml:"capture"`
	Stream  StreamConfig  `yaml:"stream"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

type ServerConfig struct {
	Env             string `yaml:"env"`
	ReadTimeoutSec  int    `yaml:"read_timeout_sec"`
	WriteTimeoutSec int    `yaml:"write_timeout_sec"`
	ShutdownTimeout int    `yaml:"shutdown_timeout_sec"`
}

// CaptureConfig controls injection and ring polling behavior.
type CaptureConfig struct {
	DLLPath        string `yaml:"dll_path"`
	PollIntervalMs int    `yaml:"poll_interval_ms"`
	MappingPrefix  string `yaml:"mapping_prefix"`
	AttachTimeout  int    `yaml:"attach_timeout_sec"`
}

// StreamConfig controls the local fan-out surfaces a consumer connects to.
type StreamConfig struct {
	HTTPAddr         string `yaml:"http_addr"`
	GRPCAddr         string `yaml:"grpc_addr"`
	SubscriberBuffer int    `yaml:"subscriber_buffer"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "text"
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// =============================================================================
// Singleton Pattern with Environment Overrides
// =============================================================================

var (
	instance *Config
	once     sync.Once
)

// Get returns the singleton config instance, loading config.yaml and an
// optional .env file the first time it's called.
func Get() *Config {
	once.Do(func() {
		_ = godotenv.Load(getEnv("WOWCAP_ENV_FILE", ".env"))

		cfg, err := LoadConfig(getEnv("WOWCAP_CONFIG_PATH", "config.yaml"))
		if err != nil {
			slog.Warn("config: failed to load config file, using defaults", "error", err)
		}
		if cfg == nil {
			cfg = &Config{}
		}
		cfg.applyEnvOverrides()
		instance = cfg
	})
	return instance
}

// LoadConfig loads config from a YAML file.
func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnvOverrides applies WOWCAP_<SECTION>_<FIELD> overrides.
func (c *Config) applyEnvOverrides() {
	c.Server.Env = getEnv("WOWCAP_SERVER_ENV", c.Server.Env)
	if v := getEnvInt("WOWCAP_SERVER_READ_TIMEOUT_SEC", 0); v > 0 {
		c.Server.ReadTimeoutSec = v
	}
	if v := getEnvInt("WOWCAP_SERVER_WRITE_TIMEOUT_SEC", 0); v > 0 {
		c.Server.WriteTimeoutSec = v
	}
	if v := getEnvInt("WOWCAP_SERVER_SHUTDOWN_TIMEOUT_SEC", 0); v > 0 {
		c.Server.ShutdownTimeout = v
	}

	c.Capture.DLLPath = getEnv("WOWCAP_CAPTURE_DLL_PATH", c.Capture.DLLPath)
	if v := getEnvInt("WOWCAP_CAPTURE_POLL_INTERVAL_MS", 0); v > 0 {
		c.Capture.PollIntervalMs = v
	}
	c.Capture.MappingPrefix = getEnv("WOWCAP_CAPTURE_MAPPING_PREFIX", c.Capture.MappingPrefix)
	if v := getEnvInt("WOWCAP_CAPTURE_ATTACH_TIMEOUT_SEC", 0); v > 0 {
		c.Capture.AttachTimeout = v
	}

	c.Stream.HTTPAddr = getEnv("WOWCAP_STREAM_HTTP_ADDR", c.Stream.HTTPAddr)
	c.Stream.GRPCAddr = getEnv("WOWCAP_STREAM_GRPC_ADDR", c.Stream.GRPCAddr)
	if v := getEnvInt("WOWCAP_STREAM_SUBSCRIBER_BUFFER", 0); v > 0 {
		c.Stream.SubscriberBuffer = v
	}

	c.Logging.Level = getEnv("WOWCAP_LOGGING_LEVEL", c.Logging.Level)
	c.Logging.Format = getEnv("WOWCAP_LOGGING_FORMAT", c.Logging.Format)

	c.Metrics.Enabled = getEnvBool("WOWCAP_METRICS_ENABLED", c.Metrics.Enabled)
	c.Metrics.Addr = getEnv("WOWCAP_METRICS_ADDR", c.Metrics.Addr)

	c.applyDefaults()
}

// applyDefaults sets sensible defaults for zero-valued config fields.
func (c *Config) applyDefaults() {
	if c.Server.Env == "" {
		c.Server.Env = "development"
	}
	if c.Server.ReadTimeoutSec == 0 {
		c.Server.ReadTimeoutSec = 15
	}
	if c.Server.WriteTimeoutSec == 0 {
		c.Server.WriteTimeoutSec = 15
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10
	}

	if c.Capture.DLLPath == "" {
		c.Capture.DLLPath = "agent.dll"
	}
	if c.Capture.PollIntervalMs == 0 {
		c.Capture.PollIntervalMs = 15
	}
	if c.Capture.MappingPrefix == "" {
		c.Capture.MappingPrefix = "WowCapture"
	}
	if c.Capture.AttachTimeout == 0 {
		c.Capture.AttachTimeout = 10
	}

	if c.Stream.HTTPAddr == "" {
		c.Stream.HTTPAddr = ":8787"
	}
	if c.Stream.GRPCAddr == "" {
		c.Stream.GRPCAddr = ":8788"
	}
	if c.Stream.SubscriberBuffer == 0 {
		c.Stream.SubscriberBuffer = 256
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}

	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9187"
	}
}

// =============================================================================
// Helper Functions
// =============================================================================

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		return val == "true" || val == "1"
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

// =============================================================================
// Convenience Methods
// =============================================================================

func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "development"
}
