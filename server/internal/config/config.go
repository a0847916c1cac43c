package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jalsense/jalsense/server/internal/rules"
)

// Default values for the server configuration.
const (
	DefaultGRPCPort          = 50051
	DefaultHTTPPort          = 8080
	DefaultLogLevel          = "info"
	DefaultBroadcastInterval = 5 * time.Second
	DefaultRateLimit         = 2.0
	DefaultBurst             = 5
	DefaultQueueSize         = 256
	DefaultKafkaGroupID      = "jalsense-server"
)

// Config holds the server-side configuration parsed from the `server:` section
// of config.yaml. The `agent:` key in the same file is ignored.
type Config struct {
	Server ServerConfig `yaml:"server"`
}

// ServerConfig holds all server-side settings.
type ServerConfig struct {
	// GRPCPort is the port the gRPC receiver listens on (default 50051).
	GRPCPort int `yaml:"grpc_port"`

	// HTTPPort is the port the REST API and WebSocket hub listen on (default 8080).
	HTTPPort int `yaml:"http_port"`

	// LogLevel is one of debug | info | warn | error.
	LogLevel string `yaml:"log_level"`

	// Nodes is the provisioned node catalog. Telemetry for any other id is rejected.
	Nodes []NodeConfig `yaml:"nodes"`

	Kafka     KafkaConfig     `yaml:"kafka"`
	Alerts    AlertsConfig    `yaml:"alerts"`
	Broadcast BroadcastConfig `yaml:"broadcast"`
}

// NodeConfig provisions one monitored asset.
type NodeConfig struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Type     string `yaml:"type"` // pump | tank | tap | valve
	Location string `yaml:"location"`
}

// Category returns the parsed node category. Load has already validated it.
func (n NodeConfig) Category() rules.Category {
	c, _ := rules.ParseCategory(n.Type)
	return c
}

// KafkaConfig configures the optional telemetry topic consumer.
type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
	GroupID string   `yaml:"group_id"`

	// DeadLetterTopic receives messages that were rejected as undecodable or
	// for an unknown node. Empty disables dead-lettering; rejects are logged
	// and committed either way.
	DeadLetterTopic string `yaml:"dead_letter_topic"`
}

// AlertsConfig holds webhook delivery targets and the delivery rate limit.
type AlertsConfig struct {
	Webhooks []WebhookConfig `yaml:"webhooks"`

	// RateLimit is the sustained number of webhook deliveries per second.
	RateLimit float64 `yaml:"rate_limit"`
	Burst     int     `yaml:"burst"`

	// QueueSize bounds the number of alerts waiting for delivery. Alerts
	// arriving while the queue is full are dropped from delivery (they stay
	// in the ledger).
	QueueSize int `yaml:"queue_size"`
}

// WebhookConfig defines one webhook delivery target.
type WebhookConfig struct {
	// Type is one of: teams | slack | http.
	Type string `yaml:"type"`

	// URLEnv is the name of the environment variable that holds the webhook URL.
	URLEnv string `yaml:"url_env"`

	// MinSeverity drops alerts below this severity for this target
	// (low | medium | high, default low).
	MinSeverity string `yaml:"min_severity"`
}

// URL returns the webhook URL resolved from the environment.
func (w WebhookConfig) URL() string {
	if w.URLEnv == "" {
		return ""
	}
	return os.Getenv(w.URLEnv)
}

// Threshold returns the parsed MinSeverity, low when unset.
func (w WebhookConfig) Threshold() rules.Severity {
	var s rules.Severity
	if w.MinSeverity != "" {
		_ = s.UnmarshalText([]byte(w.MinSeverity))
	}
	return s
}

// BroadcastConfig controls the WebSocket snapshot push.
type BroadcastConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// Level returns the slog level for LogLevel.
func (s ServerConfig) Level() slog.Level {
	switch strings.ToLower(s.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// DemoNodes is the catalog used when the config provisions no nodes.
func DemoNodes() []NodeConfig {
	return []NodeConfig{
		{ID: "pump-1", Name: "Main Borewell Pump", Type: "pump", Location: "Headworks"},
		{ID: "tank-1", Name: "Overhead Tank", Type: "tank", Location: "Village Centre"},
		{ID: "tap-1", Name: "Public Tap - Zone 1", Type: "tap", Location: "Street 1"},
		{ID: "valve-1", Name: "Distribution Valve", Type: "valve", Location: "Zone 1 Main"},
	}
}

// Load reads and parses the config file at path, returning the server configuration.
// Missing fields are filled with sensible defaults before validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("server config: read %q: %w", path, err)
	}
	return Parse(data)
}

// Parse is Load without the file read.
func Parse(data []byte) (*Config, error) {
	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("server config: parse yaml: %w", err)
	}
	// yaml replaces slices wholesale, so the demo catalog can only be
	// applied once we know the file left it empty.
	if len(cfg.Server.Nodes) == 0 {
		cfg.Server.Nodes = DemoNodes()
	}
	if cfg.Server.Kafka.GroupID == "" {
		cfg.Server.Kafka.GroupID = DefaultKafkaGroupID
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("server config: %w", err)
	}

	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			GRPCPort: DefaultGRPCPort,
			HTTPPort: DefaultHTTPPort,
			LogLevel: DefaultLogLevel,
			Alerts: AlertsConfig{
				RateLimit: DefaultRateLimit,
				Burst:     DefaultBurst,
				QueueSize: DefaultQueueSize,
			},
			Broadcast: BroadcastConfig{
				Interval: DefaultBroadcastInterval,
			},
		},
	}
}

// validate checks structural constraints on the parsed configuration.
func validate(cfg *Config) error {
	s := cfg.Server
	if s.GRPCPort <= 0 || s.GRPCPort > 65535 {
		return fmt.Errorf("server.grpc_port %d is out of range [1, 65535]", s.GRPCPort)
	}
	if s.HTTPPort <= 0 || s.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port %d is out of range [1, 65535]", s.HTTPPort)
	}
	switch strings.ToLower(s.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("server.log_level %q unknown: want debug|info|warn|error", s.LogLevel)
	}

	seen := make(map[string]bool, len(s.Nodes))
	for i, n := range s.Nodes {
		if n.ID == "" {
			return fmt.Errorf("server.nodes[%d]: id is required", i)
		}
		if seen[n.ID] {
			return fmt.Errorf("server.nodes[%d]: duplicate id %q", i, n.ID)
		}
		seen[n.ID] = true
		if _, err := rules.ParseCategory(n.Type); err != nil {
			return fmt.Errorf("server.nodes[%d] (%s): %w", i, n.ID, err)
		}
	}

	if s.Kafka.Enabled {
		if len(s.Kafka.Brokers) == 0 {
			return fmt.Errorf("server.kafka.brokers is required when kafka is enabled")
		}
		if s.Kafka.Topic == "" {
			return fmt.Errorf("server.kafka.topic is required when kafka is enabled")
		}
	}

	if s.Alerts.RateLimit <= 0 {
		return fmt.Errorf("server.alerts.rate_limit must be positive")
	}
	if s.Alerts.Burst < 1 {
		return fmt.Errorf("server.alerts.burst must be at least 1")
	}
	if s.Alerts.QueueSize < 1 {
		return fmt.Errorf("server.alerts.queue_size must be at least 1")
	}
	for i, wh := range s.Alerts.Webhooks {
		switch wh.Type {
		case "slack", "teams", "http":
		default:
			return fmt.Errorf("server.alerts.webhooks[%d]: type %q unknown: want slack|teams|http", i, wh.Type)
		}
		if wh.URLEnv == "" {
			return fmt.Errorf("server.alerts.webhooks[%d]: url_env is required", i)
		}
		if wh.MinSeverity != "" {
			var sev rules.Severity
			if err := sev.UnmarshalText([]byte(wh.MinSeverity)); err != nil {
				return fmt.Errorf("server.alerts.webhooks[%d]: %w", i, err)
			}
		}
	}

	if s.Broadcast.Interval <= 0 {
		return fmt.Errorf("server.broadcast.interval must be positive")
	}
	return nil
}
