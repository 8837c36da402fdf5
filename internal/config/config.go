package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel       string `yaml:"log_level"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
	PrometheusBind string `yaml:"prometheus_bind"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type BusConfig struct {
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type NodeConfig struct {
	ID                string `yaml:"id"`
	Role              string `yaml:"role"`
	HeartbeatInterval int    `yaml:"heartbeat_interval_ms"`
	HeartbeatTimeout  int    `yaml:"heartbeat_timeout_ms"`
}

type EventStoreConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"`
	RetentionDays int    `yaml:"retention_days"`
	MaxStreams    int    `yaml:"max_streams"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

// SourceConfig selects the upstream text producer.
type SourceConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Mode        string  `yaml:"mode"` // mock, ollama, exec
	Endpoint    string  `yaml:"endpoint"`
	Command     string  `yaml:"command"`
	Model       string  `yaml:"model"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
}

// EncoderConfig controls the token buffer and the frequency-encoding scheme.
// ToneDurationMS of zero means "variant default" (100ms audible, 5ms
// ultrasonic).
type EncoderConfig struct {
	Scheme          string `yaml:"scheme"` // dtmf, fsk, ultrasonic
	ToneDurationMS  int    `yaml:"tone_duration_ms"`
	BufferThreshold int    `yaml:"buffer_threshold"`
}

type PlaybackConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Mode       string `yaml:"mode"` // wav, mock
	OutputDir  string `yaml:"output_dir"`
	SampleRate int    `yaml:"sample_rate"`
}

type Config struct {
	RuntimeName string           `yaml:"runtime_name"`
	Environment string           `yaml:"environment"`
	HTTP        HTTPConfig       `yaml:"http"`
	Telemetry   TelemetryConfig  `yaml:"telemetry"`
	Bus         BusConfig        `yaml:"bus"`
	Node        NodeConfig       `yaml:"node"`
	EventStore  EventStoreConfig `yaml:"event_store"`
	Source      SourceConfig     `yaml:"source"`
	Encoder     EncoderConfig    `yaml:"encoder"`
	Playback    PlaybackConfig   `yaml:"playback"`
}

func Default() Config {
	return Config{
		RuntimeName: "tonewire-runtime",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "0.0.0.0",
			Port: 8080,
		},
		Telemetry: TelemetryConfig{
			LogLevel:       "info",
			OTLPEndpoint:   "",
			OTLPInsecure:   true,
			PrometheusBind: ":9091",
		},
		Bus: BusConfig{
			Embedded:       true,
			Port:           4222,
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		Node: NodeConfig{
			ID:                "tonewire-node-1",
			Role:              "runtime",
			HeartbeatInterval: 2000,
			HeartbeatTimeout:  6000,
		},
		EventStore: EventStoreConfig{
			Path:          "./data/tonewire-events.db",
			RetentionMode: "session",
			RetentionDays: 30,
			MaxStreams:    10000,
		},
		Source: SourceConfig{
			Enabled:     true,
			Mode:        "mock",
			Endpoint:    "http://localhost:11434",
			Model:       "llama3.2:latest",
			MaxTokens:   256,
			Temperature: 0.7,
		},
		Encoder: EncoderConfig{
			Scheme:          "dtmf",
			ToneDurationMS:  0,
			BufferThreshold: 1,
		},
		Playback: PlaybackConfig{
			Enabled:    true,
			Mode:       "wav",
			OutputDir:  "./data/audio",
			SampleRate: 44100,
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.RuntimeName, "TONEWIRE_RUNTIME_NAME")
	overrideString(&cfg.Environment, "TONEWIRE_RUNTIME_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "TONEWIRE_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "TONEWIRE_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "TONEWIRE_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "TONEWIRE_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "TONEWIRE_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Telemetry.PrometheusBind, "TONEWIRE_TELEMETRY_PROMETHEUS_BIND")
	overrideBool(&cfg.Bus.Embedded, "TONEWIRE_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "TONEWIRE_BUS_PORT")
	overrideStringSlice(&cfg.Bus.Servers, "TONEWIRE_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "TONEWIRE_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "TONEWIRE_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "TONEWIRE_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "TONEWIRE_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "TONEWIRE_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.Node.ID, "TONEWIRE_NODE_ID")
	overrideString(&cfg.Node.Role, "TONEWIRE_NODE_ROLE")
	overrideInt(&cfg.Node.HeartbeatInterval, "TONEWIRE_NODE_HEARTBEAT_INTERVAL_MS")
	overrideInt(&cfg.Node.HeartbeatTimeout, "TONEWIRE_NODE_HEARTBEAT_TIMEOUT_MS")
	overrideString(&cfg.EventStore.Path, "TONEWIRE_EVENT_STORE_PATH")
	overrideString(&cfg.EventStore.RetentionMode, "TONEWIRE_EVENT_STORE_RETENTION_MODE")
	overrideInt(&cfg.EventStore.RetentionDays, "TONEWIRE_EVENT_STORE_RETENTION_DAYS")
	overrideInt(&cfg.EventStore.MaxStreams, "TONEWIRE_EVENT_STORE_MAX_STREAMS")
	overrideBool(&cfg.EventStore.VacuumOnStart, "TONEWIRE_EVENT_STORE_VACUUM_ON_START")
	overrideBool(&cfg.Source.Enabled, "TONEWIRE_SOURCE_ENABLED")
	overrideString(&cfg.Source.Mode, "TONEWIRE_SOURCE_MODE")
	overrideString(&cfg.Source.Endpoint, "TONEWIRE_SOURCE_ENDPOINT")
	overrideString(&cfg.Source.Command, "TONEWIRE_SOURCE_COMMAND")
	overrideString(&cfg.Source.Model, "TONEWIRE_SOURCE_MODEL")
	overrideInt(&cfg.Source.MaxTokens, "TONEWIRE_SOURCE_MAX_TOKENS")
	overrideFloat(&cfg.Source.Temperature, "TONEWIRE_SOURCE_TEMPERATURE")
	overrideString(&cfg.Encoder.Scheme, "TONEWIRE_ENCODER_SCHEME")
	overrideInt(&cfg.Encoder.ToneDurationMS, "TONEWIRE_ENCODER_TONE_DURATION_MS")
	overrideInt(&cfg.Encoder.BufferThreshold, "TONEWIRE_ENCODER_BUFFER_THRESHOLD")
	overrideBool(&cfg.Playback.Enabled, "TONEWIRE_PLAYBACK_ENABLED")
	overrideString(&cfg.Playback.Mode, "TONEWIRE_PLAYBACK_MODE")
	overrideString(&cfg.Playback.OutputDir, "TONEWIRE_PLAYBACK_OUTPUT_DIR")
	overrideInt(&cfg.Playback.SampleRate, "TONEWIRE_PLAYBACK_SAMPLE_RATE")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			*target = parsed
		}
	}
}

func validate(cfg Config) error {
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.Bus.Embedded {
		if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
			return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
		}
	} else {
		if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	if cfg.Node.ID == "" {
		return errors.New("node.id must not be empty")
	}
	if cfg.Node.HeartbeatInterval <= 0 {
		return errors.New("node.heartbeat_interval_ms must be positive")
	}
	if cfg.Node.HeartbeatTimeout <= cfg.Node.HeartbeatInterval {
		return errors.New("node.heartbeat_timeout_ms must be greater than heartbeat interval")
	}
	if cfg.EventStore.Path == "" {
		return errors.New("event_store.path must not be empty")
	}
	switch cfg.EventStore.RetentionMode {
	case "ephemeral", "session", "persistent":
		// ok
	default:
		return errors.New("event_store.retention_mode must be one of ephemeral|session|persistent")
	}
	if cfg.EventStore.RetentionDays < 0 {
		return errors.New("event_store.retention_days must be >= 0")
	}
	if cfg.Telemetry.PrometheusBind == "" {
		return errors.New("telemetry.prometheus_bind must not be empty")
	}
	if cfg.Source.Enabled {
		switch cfg.Source.Mode {
		case "mock", "ollama", "exec":
		default:
			return errors.New("source.mode must be one of mock|ollama|exec")
		}
		if cfg.Source.Mode == "ollama" && cfg.Source.Endpoint == "" {
			return errors.New("source.endpoint must be set when mode=ollama")
		}
		if cfg.Source.Mode == "exec" && cfg.Source.Command == "" {
			return errors.New("source.command must be set when mode=exec")
		}
		if cfg.Source.MaxTokens < 0 {
			return errors.New("source.max_tokens must be >= 0")
		}
	}
	switch cfg.Encoder.Scheme {
	case "dtmf", "fsk", "ultrasonic":
	default:
		return errors.New("encoder.scheme must be one of dtmf|fsk|ultrasonic")
	}
	if cfg.Encoder.ToneDurationMS < 0 {
		return errors.New("encoder.tone_duration_ms must be positive (0 selects the scheme default)")
	}
	if cfg.Encoder.BufferThreshold < 1 {
		return errors.New("encoder.buffer_threshold must be at least 1")
	}
	if cfg.Playback.Enabled {
		switch cfg.Playback.Mode {
		case "wav", "mock":
		default:
			return errors.New("playback.mode must be one of wav|mock")
		}
		if cfg.Playback.Mode == "wav" && cfg.Playback.OutputDir == "" {
			return errors.New("playback.output_dir must be set when mode=wav")
		}
		if cfg.Playback.SampleRate <= 0 {
			return errors.New("playback.sample_rate must be positive")
		}
	}
	return nil
}
