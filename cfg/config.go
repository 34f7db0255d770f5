package cfg

import (
	"flag"
	"fmt"
	"hash/fnv"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/denisbrodbeck/machineid"
	"github.com/rs/zerolog/log"
)

// SessionConfiguration controls how the client reaches the cache cluster
type SessionConfiguration struct {
	Address          string `toml:"address"`
	Scope            string `toml:"scope"`
	Format           string `toml:"format"`    // Serializer name: "json", "msgpack" or "cbor"
	ClientID         uint64 `toml:"client_id"` // 0 = derive from machine id
	RequestTimeoutMS int    `toml:"request_timeout_ms"`
	ReadyTimeoutMS   int    `toml:"ready_timeout_ms"` // Budget for opening the event stream
}

// GRPCClientConfiguration controls gRPC client behavior
type GRPCClientConfiguration struct {
	KeepaliveTimeSeconds    int `toml:"keepalive_time_seconds"`    // Keepalive ping interval
	KeepaliveTimeoutSeconds int `toml:"keepalive_timeout_seconds"` // Keepalive ping timeout
	MaxMessageMB            int `toml:"max_message_mb"`            // Send/receive message size cap
	CompressionLevel        int `toml:"compression_level"`         // 0 disables zstd, 1-4 fastest..best
}

// EventsConfiguration controls map event delivery
type EventsConfiguration struct {
	DispatchBuffer int `toml:"dispatch_buffer"` // Queued deliveries before the receive loop blocks
}

// SinkConfiguration describes one relay destination
type SinkConfiguration struct {
	Name      string   `toml:"name"`
	Type      string   `toml:"type"` // "nats" or "kafka"
	NatsURL   string   `toml:"nats_url"`
	Brokers   []string `toml:"brokers"`
	BatchSize int      `toml:"batch_size"`
}

// RelayConfiguration controls forwarding of map events to brokers
type RelayConfiguration struct {
	Enabled       bool                `toml:"enabled"`
	TopicPrefix   string              `toml:"topic_prefix"`
	KeyPatterns   []string            `toml:"key_patterns"`   // Glob patterns on the rendered key, empty = all
	CachePatterns []string            `toml:"cache_patterns"` // Glob patterns on the cache name, empty = all
	QueueSize     int                 `toml:"queue_size"`
	MaxRetries    int                 `toml:"max_retries"`
	Sinks         []SinkConfiguration `toml:"sinks"`
}

// LoggingConfiguration controls logging behavior
type LoggingConfiguration struct {
	Verbose bool   `toml:"verbose"`
	Format  string `toml:"format"` // "console" or "json"
}

// PrometheusConfiguration for metrics
type PrometheusConfiguration struct {
	Enabled bool `toml:"enabled"`
}

// AdminConfiguration for the status/metrics HTTP endpoint
type AdminConfiguration struct {
	Enabled     bool   `toml:"enabled"`
	BindAddress string `toml:"bind_address"`
	Port        int    `toml:"port"`
	Secret      string `toml:"secret"` // Empty disables authentication
}

// Configuration is the main configuration structure
type Configuration struct {
	Session    SessionConfiguration    `toml:"session"`
	GRPCClient GRPCClientConfiguration `toml:"grpc_client"`
	Events     EventsConfiguration     `toml:"events"`
	Relay      RelayConfiguration      `toml:"relay"`
	Logging    LoggingConfiguration    `toml:"logging"`
	Prometheus PrometheusConfiguration `toml:"prometheus"`
	Admin      AdminConfiguration      `toml:"admin"`
}

// Command line flags
var (
	ConfigPathFlag = flag.String("config", "cachewatch.toml", "Path to configuration file")
	AddressFlag    = flag.String("address", "", "Cache cluster gRPC address (overrides config)")
	ScopeFlag      = flag.String("scope", "", "Session scope (overrides config)")
	FormatFlag     = flag.String("format", "", "Serialization format (overrides config)")
)

// Default returns a configuration populated with defaults
func Default() *Configuration {
	return &Configuration{
		Session: SessionConfiguration{
			Address:          "localhost:1408",
			Format:           "json",
			RequestTimeoutMS: 30000,
			ReadyTimeoutMS:   30000,
		},

		GRPCClient: GRPCClientConfiguration{
			KeepaliveTimeSeconds:    10, // Send keepalive ping every 10s
			KeepaliveTimeoutSeconds: 3,  // Timeout keepalive after 3s
			MaxMessageMB:            100,
			CompressionLevel:        0,
		},

		Events: EventsConfiguration{
			DispatchBuffer: 1024,
		},

		Relay: RelayConfiguration{
			Enabled:     false,
			TopicPrefix: "cache.events",
			QueueSize:   4096,
			MaxRetries:  100,
		},

		Logging: LoggingConfiguration{
			Verbose: false,
			Format:  "console",
		},

		Prometheus: PrometheusConfiguration{
			Enabled: true,
		},

		Admin: AdminConfiguration{
			Enabled:     false,
			BindAddress: "127.0.0.1",
			Port:        9108,
		},
	}
}

// Default configuration
var Config = Default()

// Load loads configuration from file and applies CLI overrides
func Load(configPath string) error {
	// Load from file if it exists
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			log.Info().Str("path", configPath).Msg("Loading configuration")
			if _, err := toml.DecodeFile(configPath, Config); err != nil {
				return fmt.Errorf("failed to decode config: %w", err)
			}
		} else {
			log.Warn().Str("path", configPath).Msg("Config file not found, using defaults")
		}
	}

	// Apply CLI overrides
	if *AddressFlag != "" {
		Config.Session.Address = *AddressFlag
	}
	if *ScopeFlag != "" {
		Config.Session.Scope = *ScopeFlag
	}
	if *FormatFlag != "" {
		Config.Session.Format = *FormatFlag
	}

	// Auto-generate client ID if not set
	if Config.Session.ClientID == 0 {
		var err error
		Config.Session.ClientID, err = generateClientID()
		if err != nil {
			return fmt.Errorf("failed to generate client ID: %w", err)
		}
		log.Info().Uint64("client_id", Config.Session.ClientID).Msg("Auto-generated client ID")
	}

	return nil
}

// generateClientID creates a stable client ID based on machine ID
func generateClientID() (uint64, error) {
	id, err := machineid.ProtectedID("cachewatch")
	if err != nil {
		return 0, err
	}

	h := fnv.New64a()
	h.Write([]byte(id))
	return h.Sum64(), nil
}

// ClientID returns the configured client ID, deriving it from the machine ID
// when none was configured. Falls back to 1 when the machine ID is unavailable.
func ClientID() uint64 {
	if Config.Session.ClientID != 0 {
		return Config.Session.ClientID
	}
	id, err := generateClientID()
	if err != nil {
		log.Debug().Err(err).Msg("Machine ID unavailable, using client ID 1")
		return 1
	}
	return id
}

var validFormats = map[string]bool{"json": true, "msgpack": true, "cbor": true}

// IsAdminAuthEnabled returns true if the admin endpoints require a secret
func IsAdminAuthEnabled() bool {
	return Config.Admin.Secret != ""
}

// Validate checks configuration for errors
func Validate() error {
	if Config.Session.Address == "" {
		return fmt.Errorf("session address is required")
	}

	if !validFormats[Config.Session.Format] {
		return fmt.Errorf("invalid session format: %s", Config.Session.Format)
	}

	if Config.Session.RequestTimeoutMS < 0 {
		return fmt.Errorf("request timeout must be >= 0")
	}

	if Config.Session.ReadyTimeoutMS < 0 {
		return fmt.Errorf("ready timeout must be >= 0")
	}

	// Validate gRPC client configuration
	if Config.GRPCClient.KeepaliveTimeSeconds < 1 {
		return fmt.Errorf("gRPC keepalive time must be >= 1 second")
	}

	if Config.GRPCClient.KeepaliveTimeoutSeconds < 1 {
		return fmt.Errorf("gRPC keepalive timeout must be >= 1 second")
	}

	if Config.GRPCClient.MaxMessageMB < 1 {
		return fmt.Errorf("gRPC max message size must be >= 1 MB")
	}

	if Config.GRPCClient.CompressionLevel < 0 || Config.GRPCClient.CompressionLevel > 4 {
		return fmt.Errorf("gRPC compression level must be between 0 and 4")
	}

	if Config.Events.DispatchBuffer < 1 {
		return fmt.Errorf("events dispatch buffer must be >= 1")
	}

	if Config.Relay.Enabled {
		if len(Config.Relay.Sinks) == 0 {
			return fmt.Errorf("relay enabled but no sinks configured")
		}
		for i, sink := range Config.Relay.Sinks {
			if sink.Type == "" {
				return fmt.Errorf("relay sink %d: type is required", i)
			}
		}
	}

	if Config.Admin.Enabled && (Config.Admin.Port < 1 || Config.Admin.Port > 65535) {
		return fmt.Errorf("invalid admin port: %d", Config.Admin.Port)
	}

	return nil
}
