package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values for the server configuration.
const (
	DefaultHTTPPort       = 8080
	DefaultGRPCPort       = 50051
	DefaultLogLevel       = "info"
	DefaultSampleInterval = time.Second
	DefaultWriteTimeout   = 10 * time.Second
	DefaultMaxMessageSize = 4096
	DefaultRequestTopic   = "/app/chat"
	DefaultReplyTopic     = "/topic/replies"
)

// Config holds the server-side configuration parsed from the `server:` section
// of config.yaml.
type Config struct {
	Server ServerConfig `yaml:"server"`
}

// ServerConfig holds all server-side settings.
type ServerConfig struct {
	// HTTPPort is the port the WebSocket endpoints and REST API listen on.
	HTTPPort int `yaml:"http_port"`

	// GRPCPort is the port of the gRPC health service. Zero disables it.
	GRPCPort int `yaml:"grpc_port"`

	// LogLevel is one of: debug | info | warn | error.
	LogLevel string `yaml:"log_level"`

	Metrics   MetricsConfig   `yaml:"metrics"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Broker    BrokerConfig    `yaml:"broker"`
	Eliza     ElizaConfig     `yaml:"eliza"`
}

// MetricsConfig controls the observer broadcast.
type MetricsConfig struct {
	// SampleInterval is the period between snapshots. Default: 1s.
	SampleInterval time.Duration `yaml:"sample_interval"`
}

// WebSocketConfig holds per-connection transport limits.
type WebSocketConfig struct {
	// WriteTimeout is the deadline for a single frame write.
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// MaxMessageSize is the largest inbound frame accepted, in bytes.
	MaxMessageSize int64 `yaml:"max_message_size"`

	// AllowedOrigins lists accepted Origin header values. Empty allows all;
	// apply CORS at the reverse proxy in that case.
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// BrokerConfig names the topics used by the broker endpoint.
type BrokerConfig struct {
	RequestTopic string `yaml:"request_topic"`
	ReplyTopic   string `yaml:"reply_topic"`
}

// ElizaConfig selects the responder script.
type ElizaConfig struct {
	// Script is the path of a YAML script. Empty uses the built-in script.
	Script string `yaml:"script"`
}

// Level returns the slog level for LogLevel.
func (s ServerConfig) Level() slog.Level {
	switch strings.ToLower(s.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Load reads and parses the config file at path, returning the server configuration.
// Missing fields are filled with sensible defaults before validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("server config: read %q: %w", path, err)
	}

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("server config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("server config: %w", err)
	}

	return cfg, nil
}

// Defaults returns a Config pre-populated with default values.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort: DefaultHTTPPort,
			GRPCPort: DefaultGRPCPort,
			LogLevel: DefaultLogLevel,
			Metrics: MetricsConfig{
				SampleInterval: DefaultSampleInterval,
			},
			WebSocket: WebSocketConfig{
				WriteTimeout:   DefaultWriteTimeout,
				MaxMessageSize: DefaultMaxMessageSize,
			},
			Broker: BrokerConfig{
				RequestTopic: DefaultRequestTopic,
				ReplyTopic:   DefaultReplyTopic,
			},
		},
	}
}

// validate checks structural constraints on the parsed configuration.
func validate(cfg *Config) error {
	s := cfg.Server
	if s.HTTPPort <= 0 || s.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port %d is out of range [1, 65535]", s.HTTPPort)
	}
	if s.GRPCPort < 0 || s.GRPCPort > 65535 {
		return fmt.Errorf("server.grpc_port %d is out of range [0, 65535]", s.GRPCPort)
	}
	if s.GRPCPort != 0 && s.GRPCPort == s.HTTPPort {
		return fmt.Errorf("server.grpc_port and server.http_port must differ")
	}
	switch strings.ToLower(s.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("server.log_level %q unknown: want debug|info|warn|error", s.LogLevel)
	}
	if s.Metrics.SampleInterval <= 0 {
		return fmt.Errorf("server.metrics.sample_interval must be positive")
	}
	if s.WebSocket.WriteTimeout <= 0 {
		return fmt.Errorf("server.websocket.write_timeout must be positive")
	}
	if s.WebSocket.MaxMessageSize <= 0 {
		return fmt.Errorf("server.websocket.max_message_size must be positive")
	}
	if s.Broker.RequestTopic == "" || s.Broker.ReplyTopic == "" {
		return fmt.Errorf("server.broker topics must not be empty")
	}
	if s.Broker.RequestTopic == s.Broker.ReplyTopic {
		return fmt.Errorf("server.broker.request_topic and reply_topic must differ")
	}
	return nil
}
