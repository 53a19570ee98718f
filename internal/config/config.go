package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v2"
)

// Config is the static device configuration: known network credentials,
// broker endpoint, topic names and the active publish strategy. Values come
// from an optional YAML file and may be overridden by environment variables.
type Config struct {
	LogLevel string         `yaml:"log_level"`
	Strategy string         `yaml:"strategy"`
	Network  NetworkConfig  `yaml:"network"`
	Broker   BrokerConfig   `yaml:"broker"`
	Topics   TopicsConfig   `yaml:"topics"`
	Forward  ForwardConfig  `yaml:"forward"`
	Recorder RecorderConfig `yaml:"recorder"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

type NetworkConfig struct {
	SSID     string `yaml:"ssid"`
	Password string `yaml:"password"`
}

type BrokerConfig struct {
	Host     string    `yaml:"host"`
	Port     int       `yaml:"port"`
	User     string    `yaml:"user"`
	Password string    `yaml:"password"`
	ClientID string    `yaml:"client_id"`
	TLS      TLSConfig `yaml:"tls"`
}

// TLSConfig controls the optional encrypted transport to the broker.
// InsecureSkipVerify defaults to true: the station has historically trusted
// any broker certificate. Set it to false (and point CAFile at the broker's
// CA bundle) to enable verification.
type TLSConfig struct {
	Enabled            bool   `yaml:"enabled"`
	CAFile             string `yaml:"ca_file"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
}

type TopicsConfig struct {
	Telemetry string `yaml:"telemetry"`
	Bulk      string `yaml:"bulk"`
}

// ForwardConfig enables mirroring of each measurement to an HTTP API.
// Disabled when URL is empty.
type ForwardConfig struct {
	URL       string `yaml:"url"`
	TimeoutMs int    `yaml:"timeout_ms"`
}

// RecorderConfig enables the local InfluxDB mirror. Disabled when URL is
// empty.
type RecorderConfig struct {
	URL    string `yaml:"url"`
	Token  string `yaml:"token"`
	Org    string `yaml:"org"`
	Bucket string `yaml:"bucket"`
}

// MetricsConfig enables the /metrics and /healthz listener. Disabled when
// Addr is empty.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

func defaults() Config {
	return Config{
		LogLevel: "info",
		Strategy: "frequent-small",
		Broker: BrokerConfig{
			Host:     "localhost",
			Port:     1883,
			ClientID: "pico",
			TLS: TLSConfig{
				InsecureSkipVerify: true,
			},
		},
		Topics: TopicsConfig{
			Telemetry: "weather/data",
			Bulk:      "weather/data/bulk",
		},
		Forward: ForwardConfig{
			TimeoutMs: 3000,
		},
	}
}

// Load builds the configuration from defaults, the optional YAML file at
// path, and environment overrides, in that order.
func Load(path string) (Config, error) {
	cfg := defaults()

	if path != "" {
		content, err := os.ReadFile(filepath.Clean(path))
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(content, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Broker.Host == "" {
		return fmt.Errorf("broker host is required")
	}
	if c.Broker.Port <= 0 || c.Broker.Port > 65535 {
		return fmt.Errorf("invalid broker port %d", c.Broker.Port)
	}
	if c.Topics.Telemetry == "" || c.Topics.Bulk == "" {
		return fmt.Errorf("telemetry and bulk topics are required")
	}
	switch c.Strategy {
	case "frequent-small", "infrequent-small", "infrequent-large-batched":
	default:
		return fmt.Errorf("unknown strategy %q", c.Strategy)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.LogLevel = getenv("LOG_LEVEL", cfg.LogLevel)
	cfg.Strategy = getenv("PUBLISH_STRATEGY", cfg.Strategy)

	cfg.Network.SSID = getenv("WIFI_SSID", cfg.Network.SSID)
	cfg.Network.Password = getenv("WIFI_PASSWORD", cfg.Network.Password)

	cfg.Broker.Host = getenv("BROKER_ADDRESS", cfg.Broker.Host)
	cfg.Broker.Port = getenvInt("BROKER_PORT", cfg.Broker.Port)
	cfg.Broker.User = getenv("BROKER_USERNAME", cfg.Broker.User)
	cfg.Broker.Password = getenv("BROKER_PASSWORD", cfg.Broker.Password)
	cfg.Broker.ClientID = getenv("BROKER_CLIENT_ID", cfg.Broker.ClientID)

	cfg.Topics.Telemetry = getenv("MQTT_TOPIC", cfg.Topics.Telemetry)
	cfg.Topics.Bulk = getenv("MQTT_TOPIC_BULK", cfg.Topics.Bulk)

	cfg.Forward.URL = getenv("API_URL", cfg.Forward.URL)

	cfg.Recorder.URL = getenv("INFLUX_URL", cfg.Recorder.URL)
	cfg.Recorder.Token = getenv("INFLUX_TOKEN", cfg.Recorder.Token)
	cfg.Recorder.Org = getenv("INFLUX_ORG", cfg.Recorder.Org)
	cfg.Recorder.Bucket = getenv("INFLUX_BUCKET", cfg.Recorder.Bucket)

	cfg.Metrics.Addr = getenv("METRICS_ADDR", cfg.Metrics.Addr)
}

func getenv(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func getenvInt(k string, d int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return d
}
