package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultScrapeInterval = 10 * time.Second
	DefaultBufferSize     = 1000
	DefaultResyncEvery    = 10
	DefaultLogLevel       = "info"
)

// Config is the agent-side configuration. The `server:` section of a shared
// config.yaml is ignored.
type Config struct {
	Agent AgentConfig `yaml:"agent"`
}

// AgentConfig holds all agent-side settings.
type AgentConfig struct {
	// ServerEndpoint is the gRPC address of jalsense-server (host:port).
	ServerEndpoint string `yaml:"server_endpoint"`

	// ScrapeInterval controls how often each device gateway is polled.
	ScrapeInterval time.Duration `yaml:"scrape_interval"`

	// BufferSize is the maximum number of readings held in memory when
	// the server is unreachable.
	BufferSize int `yaml:"buffer_size"`

	// ResyncEvery ships the full reading every N scrape cycles; in between,
	// only keys whose value changed are sent. 1 ships everything every cycle.
	ResyncEvery int `yaml:"resync_every"`

	// LogLevel is one of debug | info | warn | error.
	LogLevel string `yaml:"log_level"`

	// ServerTLS secures the gRPC connection to the server. Plaintext when unset.
	ServerTLS ServerTLSConfig `yaml:"server_tls"`

	// Sources is the list of device gateways to poll.
	Sources []Source `yaml:"sources"`
}

// ServerTLSConfig configures transport security for the agent→server link.
type ServerTLSConfig struct {
	Enabled bool `yaml:"enabled"`

	// CAFile verifies the server certificate; the system pool is used when empty.
	CAFile string `yaml:"ca_file"`

	// CertFile and KeyFile present a client certificate (mutual TLS).
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// Level returns the slog level for LogLevel.
func (a AgentConfig) Level() slog.Level {
	switch strings.ToLower(a.LogLevel) {
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

// Source describes one device gateway that reports for a single node.
type Source struct {
	// ID is a unique, human-readable identifier for this source.
	ID string `yaml:"id"`

	// Type is the gateway format: prometheus | json.
	Type string `yaml:"type"`

	// Endpoint is the full URL the reading is fetched from.
	Endpoint string `yaml:"endpoint"`

	// NodeID is the provisioned server-side node this source reports for.
	NodeID string `yaml:"node_id"`

	// Metrics maps gateway names to engine metric keys
	// (e.g. pump_power_kw: powerConsumption). When empty every numeric value
	// is forwarded under its own name; when set, unmapped names are dropped.
	Metrics map[string]string `yaml:"metrics"`

	// Auth configures how the agent authenticates to this source.
	Auth AuthConfig `yaml:"auth"`

	// TLS holds optional TLS dial options.
	TLS TLSConfig `yaml:"tls"`
}

// AuthConfig specifies the authentication mode for a source.
type AuthConfig struct {
	// Mode is one of: mtls | apikey | bearer | basic | none.
	Mode string `yaml:"mode"`

	// mTLS fields, used when Mode == "mtls".
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
	CAFile   string `yaml:"ca_file"`

	// API key fields, used when Mode == "apikey".
	// Header is the HTTP header name to send the key in.
	Header string `yaml:"header"`
	// KeyEnv is the name of the environment variable that holds the key value.
	KeyEnv string `yaml:"key_env"`

	// TokenEnv holds the bearer token when Mode == "bearer".
	TokenEnv string `yaml:"token_env"`

	// Basic auth fields, used when Mode == "basic".
	Username    string `yaml:"username"`
	PasswordEnv string `yaml:"password_env"`
}

// Key returns the API key value resolved from the environment.
// Returns empty string if KeyEnv is unset or the variable is not found.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// Token returns the bearer token value resolved from the environment.
func (a AuthConfig) Token() string {
	if a.TokenEnv == "" {
		return ""
	}
	return os.Getenv(a.TokenEnv)
}

// Password returns the basic-auth password resolved from the environment.
func (a AuthConfig) Password() string {
	if a.PasswordEnv == "" {
		return ""
	}
	return os.Getenv(a.PasswordEnv)
}

// TLSConfig holds per-source TLS dial options.
type TLSConfig struct {
	// InsecureSkipVerify disables TLS certificate verification.
	// Only use this for field gateways with self-signed certificates.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`
}

// Load reads and parses the YAML config file at path.
// Missing optional fields are filled with sensible defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Agent: AgentConfig{
			ScrapeInterval: DefaultScrapeInterval,
			BufferSize:     DefaultBufferSize,
			ResyncEvery:    DefaultResyncEvery,
			LogLevel:       DefaultLogLevel,
		},
	}
}

// validate checks required fields and structural constraints.
func validate(cfg *Config) error {
	a := cfg.Agent
	if a.ServerEndpoint == "" {
		return fmt.Errorf("agent.server_endpoint is required")
	}
	if a.ScrapeInterval <= 0 {
		return fmt.Errorf("agent.scrape_interval must be positive")
	}
	if a.BufferSize <= 0 {
		return fmt.Errorf("agent.buffer_size must be positive")
	}
	if a.ResyncEvery <= 0 {
		return fmt.Errorf("agent.resync_every must be positive")
	}
	if (a.ServerTLS.CertFile == "") != (a.ServerTLS.KeyFile == "") {
		return fmt.Errorf("agent.server_tls: cert_file and key_file must be set together")
	}
	seen := make(map[string]bool, len(a.Sources))
	for i, src := range a.Sources {
		if src.ID == "" {
			return fmt.Errorf("sources[%d]: id is required", i)
		}
		if seen[src.ID] {
			return fmt.Errorf("sources[%d]: duplicate id %q", i, src.ID)
		}
		seen[src.ID] = true
		if src.Endpoint == "" {
			return fmt.Errorf("sources[%d] %q: endpoint is required", i, src.ID)
		}
		if src.NodeID == "" {
			return fmt.Errorf("sources[%d] %q: node_id is required", i, src.ID)
		}
		switch src.Type {
		case "prometheus", "json":
		default:
			return fmt.Errorf("sources[%d] %q: unknown type %q: want prometheus|json", i, src.ID, src.Type)
		}
		switch src.Auth.Mode {
		case "mtls", "apikey", "bearer", "basic", "none", "":
		default:
			return fmt.Errorf("sources[%d] %q: unknown auth mode %q", i, src.ID, src.Auth.Mode)
		}
		if src.Auth.Mode == "apikey" && src.Auth.Header == "" {
			return fmt.Errorf("sources[%d] %q: auth.header is required for apikey mode", i, src.ID)
		}
		if src.Auth.Mode == "mtls" && (src.Auth.CertFile == "" || src.Auth.KeyFile == "") {
			return fmt.Errorf("sources[%d] %q: auth.cert_file and auth.key_file are required for mtls mode", i, src.ID)
		}
	}
	return nil
}
