package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "storage:\n  mode: memory\n"))
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}

	if cfg.Pipeline.BeatInterval != 60*time.Second {
		t.Errorf("BeatInterval = %v, want 60s", cfg.Pipeline.BeatInterval)
	}
	if cfg.Pipeline.Workers != 1 {
		t.Errorf("Workers = %d, want 1", cfg.Pipeline.Workers)
	}
	if cfg.Pipeline.Topics.Alerts != "hyperwatch.alerts" {
		t.Errorf("Alerts topic = %q", cfg.Pipeline.Topics.Alerts)
	}
	if !cfg.EventStore.AutologEnabled() {
		t.Error("autolog should default to true")
	}
	if cfg.EventStore.LogBulkAmount != 100 || cfg.EventStore.LogBulkDelay != 3*time.Second {
		t.Errorf("log bulk = %d/%v", cfg.EventStore.LogBulkAmount, cfg.EventStore.LogBulkDelay)
	}
	if got := len(cfg.EventStore.Types); got != len(cfg.EventStore.Checks)+len(cfg.EventStore.Logs)+len(cfg.EventStore.Comments) {
		t.Errorf("Types should be the union of checks, logs and comments, got %d entries", got)
	}
	if cfg.Transport.Kind != TransportKafka {
		t.Errorf("Transport = %q, want kafka", cfg.Transport.Kind)
	}
}

func TestLoad_ExplicitValues(t *testing.T) {
	body := `
storage:
  mode: storage
transport:
  kind: mqtt
pipeline:
  beat_interval: 5s
  workers: 4
  topics:
    alerts: custom.alerts
eventstore:
  autolog: false
  checks: [check]
`
	cfg, err := Load(writeConfig(t, body))
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}

	if !cfg.Storage.UseStorage() {
		t.Error("expected storage mode")
	}
	if cfg.Transport.Kind != TransportMQTT {
		t.Errorf("Transport = %q, want mqtt", cfg.Transport.Kind)
	}
	if cfg.Pipeline.BeatInterval != 5*time.Second || cfg.Pipeline.Workers != 4 {
		t.Errorf("pipeline = %+v", cfg.Pipeline)
	}
	if cfg.Pipeline.Topics.Alerts != "custom.alerts" {
		t.Errorf("Alerts topic = %q", cfg.Pipeline.Topics.Alerts)
	}
	if cfg.Pipeline.Topics.Entities != "hyperwatch.entities" {
		t.Errorf("Entities topic = %q", cfg.Pipeline.Topics.Entities)
	}
	if cfg.EventStore.AutologEnabled() {
		t.Error("autolog should be disabled")
	}
	if len(cfg.EventStore.Checks) != 1 {
		t.Errorf("Checks = %v", cfg.EventStore.Checks)
	}
}

func TestLoad_Errors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
	if _, err := Load(writeConfig(t, "storage: [")); err == nil {
		t.Error("expected error for invalid yaml")
	}
	if _, err := Load(writeConfig(t, "storage:\n  mode: disk\n")); err == nil {
		t.Error("expected error for invalid storage mode")
	}
	if _, err := Load(writeConfig(t, "transport:\n  kind: amqp\n")); err == nil {
		t.Error("expected error for invalid transport")
	}
}
