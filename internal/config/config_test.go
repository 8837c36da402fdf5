package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Bus.Servers[0] != "nats://localhost:4222" {
		t.Fatalf("expected default server, got %v", cfg.Bus.Servers)
	}
	if cfg.Encoder.Scheme != "dtmf" {
		t.Fatalf("expected dtmf default scheme, got %q", cfg.Encoder.Scheme)
	}
	if cfg.Encoder.BufferThreshold != 1 {
		t.Fatalf("expected default threshold 1, got %d", cfg.Encoder.BufferThreshold)
	}
	if cfg.Playback.SampleRate != 44100 {
		t.Fatalf("expected default sample rate 44100, got %d", cfg.Playback.SampleRate)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tonewire.yaml")
	data := []byte(`
encoder:
  scheme: ultrasonic
  tone_duration_ms: 5
  buffer_threshold: 8
playback:
  mode: mock
source:
  mode: mock
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Encoder.Scheme != "ultrasonic" {
		t.Fatalf("expected ultrasonic scheme, got %q", cfg.Encoder.Scheme)
	}
	if cfg.Encoder.ToneDurationMS != 5 {
		t.Fatalf("expected 5ms duration, got %d", cfg.Encoder.ToneDurationMS)
	}
	if cfg.Encoder.BufferThreshold != 8 {
		t.Fatalf("expected threshold 8, got %d", cfg.Encoder.BufferThreshold)
	}
	if cfg.Playback.Mode != "mock" {
		t.Fatalf("expected mock playback, got %q", cfg.Playback.Mode)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("TONEWIRE_BUS_SERVERS", "nats://one:4222, nats://two:4222")
	t.Setenv("TONEWIRE_BUS_USERNAME", "alice")
	t.Setenv("TONEWIRE_BUS_CONNECT_TIMEOUT_MS", "5000")
	t.Setenv("TONEWIRE_NODE_ID", "test-node")
	t.Setenv("TONEWIRE_ENCODER_SCHEME", "fsk")
	t.Setenv("TONEWIRE_ENCODER_TONE_DURATION_MS", "50")
	t.Setenv("TONEWIRE_ENCODER_BUFFER_THRESHOLD", "3")
	t.Setenv("TONEWIRE_PLAYBACK_SAMPLE_RATE", "22050")
	t.Setenv("TONEWIRE_SOURCE_MODE", "ollama")
	t.Setenv("TONEWIRE_SOURCE_ENDPOINT", "http://llm:11434")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(cfg.Bus.Servers) != 2 {
		t.Fatalf("expected 2 servers, got %v", cfg.Bus.Servers)
	}
	if cfg.Bus.Username != "alice" {
		t.Fatalf("expected username override")
	}
	if cfg.Bus.ConnectTimeout != 5000 {
		t.Fatalf("expected timeout 5000, got %d", cfg.Bus.ConnectTimeout)
	}
	if cfg.Node.ID != "test-node" {
		t.Fatalf("expected node id override")
	}
	if cfg.Encoder.Scheme != "fsk" || cfg.Encoder.ToneDurationMS != 50 || cfg.Encoder.BufferThreshold != 3 {
		t.Fatalf("expected encoder overrides, got %+v", cfg.Encoder)
	}
	if cfg.Playback.SampleRate != 22050 {
		t.Fatalf("expected sample rate override, got %d", cfg.Playback.SampleRate)
	}
	if cfg.Source.Mode != "ollama" || cfg.Source.Endpoint != "http://llm:11434" {
		t.Fatalf("expected source overrides, got %+v", cfg.Source)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad scheme", func(c *Config) { c.Encoder.Scheme = "morse" }},
		{"zero threshold", func(c *Config) { c.Encoder.BufferThreshold = 0 }},
		{"negative duration", func(c *Config) { c.Encoder.ToneDurationMS = -10 }},
		{"bad playback mode", func(c *Config) { c.Playback.Mode = "speaker" }},
		{"zero sample rate", func(c *Config) { c.Playback.SampleRate = 0 }},
		{"bad source mode", func(c *Config) { c.Source.Mode = "telnet" }},
		{"bad retention", func(c *Config) { c.EventStore.RetentionMode = "forever" }},
	}
	for _, tc := range cases {
		cfg := Default()
		tc.mutate(&cfg)
		if err := validate(cfg); err == nil {
			t.Fatalf("%s: expected validation error", tc.name)
		}
	}
}
