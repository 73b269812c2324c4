package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"cloudpico-sensorbridge/internal/sensor"
)

var envKeys = []string{
	"APP_ENV", "LOG_LEVEL", "HTTP_ADDR",
	"MQTT_BROKER", "MQTT_PORT", "MQTT_CLIENT_ID", "MQTT_TOPIC_PREFIX", "MQTT_PAYLOAD_FORMAT",
	"GATEWAY_ID", "BLE_ADAPTER", "MAX_BEACONS", "BEACON_LIFETIME", "LIFETIME_TICK", "ANNOUNCE_DELAY", "CAPABILITIES",
	"EVENT_LOG_VERBOSE", "CREATE_LOG_VERBOSE", "INTAKE_QUEUE", "PUBLISH_QUEUE",
	"SQLITE_PATH", "DB_DSN", "DB_MAX_OPEN_CONNS", "SQLITE_LOG_QUERIES", "POLICY_FILE",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func TestLoadFromEnv_Defaults(t *testing.T) {
	clearEnv(t)

	got, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v, want nil", err)
	}

	if got.AppEnv != "dev" {
		t.Errorf("AppEnv = %q, want %q", got.AppEnv, "dev")
	}
	if got.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel = %v, want %v", got.LogLevel, slog.LevelInfo)
	}
	if got.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q, want %q", got.HTTPAddr, ":8080")
	}
	if got.MQTTPort != 1883 {
		t.Errorf("MQTTPort = %d, want 1883", got.MQTTPort)
	}
	if got.MQTTTopicPrefix != "beacons" {
		t.Errorf("MQTTTopicPrefix = %q, want beacons", got.MQTTTopicPrefix)
	}
	if got.PayloadFormat != "json" {
		t.Errorf("PayloadFormat = %q, want json", got.PayloadFormat)
	}
	if got.GatewayID == "" {
		t.Error("GatewayID is empty, want generated id")
	}
	if got.MaxBeacons != 16 {
		t.Errorf("MaxBeacons = %d, want 16", got.MaxBeacons)
	}
	if got.BeaconLifetime != 15*time.Minute {
		t.Errorf("BeaconLifetime = %v, want 15m", got.BeaconLifetime)
	}
	if got.AnnounceDelay != 10*time.Second {
		t.Errorf("AnnounceDelay = %v, want 10s", got.AnnounceDelay)
	}
	if got.Capabilities != sensor.AllCapabilities {
		t.Errorf("Capabilities = %v, want all", got.Capabilities)
	}
	if got.IntakeQueue != 256 || got.PublishQueue != 256 {
		t.Errorf("queues = %d/%d, want 256/256", got.IntakeQueue, got.PublishQueue)
	}
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("MQTT_TOPIC_PREFIX", "/site-a/")
	t.Setenv("MQTT_PAYLOAD_FORMAT", "CBOR")
	t.Setenv("GATEWAY_ID", "gw-1")
	t.Setenv("MAX_BEACONS", "4")
	t.Setenv("BEACON_LIFETIME", "30s")
	t.Setenv("CAPABILITIES", "temperature,battery")
	t.Setenv("EVENT_LOG_VERBOSE", "true")

	got, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v, want nil", err)
	}
	if got.MQTTTopicPrefix != "site-a" {
		t.Errorf("MQTTTopicPrefix = %q, want site-a", got.MQTTTopicPrefix)
	}
	if got.PayloadFormat != "cbor" {
		t.Errorf("PayloadFormat = %q, want cbor", got.PayloadFormat)
	}
	if got.GatewayID != "gw-1" {
		t.Errorf("GatewayID = %q, want gw-1", got.GatewayID)
	}
	if got.MaxBeacons != 4 {
		t.Errorf("MaxBeacons = %d, want 4", got.MaxBeacons)
	}
	if got.BeaconLifetime != 30*time.Second {
		t.Errorf("BeaconLifetime = %v, want 30s", got.BeaconLifetime)
	}
	want := sensor.NewCapabilities(sensor.FamilyTemperature, sensor.FamilyBattery)
	if got.Capabilities != want {
		t.Errorf("Capabilities = %v, want %v", got.Capabilities, want)
	}
	if !got.EventLogVerbose {
		t.Error("EventLogVerbose = false, want true")
	}
}

func TestLoadFromEnv_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{name: "app env", key: "APP_ENV", value: "staging"},
		{name: "log level", key: "LOG_LEVEL", value: "verbose"},
		{name: "mqtt port", key: "MQTT_PORT", value: "abc"},
		{name: "mqtt port range", key: "MQTT_PORT", value: "70000"},
		{name: "payload format", key: "MQTT_PAYLOAD_FORMAT", value: "xml"},
		{name: "max beacons zero", key: "MAX_BEACONS", value: "0"},
		{name: "lifetime", key: "BEACON_LIFETIME", value: "soon"},
		{name: "negative lifetime", key: "BEACON_LIFETIME", value: "-1s"},
		{name: "tick longer than lifetime", key: "LIFETIME_TICK", value: "1h"},
		{name: "announce delay longer than lifetime", key: "ANNOUNCE_DELAY", value: "1h"},
		{name: "announce delay", key: "ANNOUNCE_DELAY", value: "later"},
		{name: "capability", key: "CAPABILITIES", value: "humidity"},
		{name: "verbose flag", key: "EVENT_LOG_VERBOSE", value: "sometimes"},
		{name: "intake queue", key: "INTAKE_QUEUE", value: "0"},
		{name: "missing policy file", key: "POLICY_FILE", value: "/nonexistent/policy.yaml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)

			if _, err := LoadFromEnv(); err == nil {
				t.Fatalf("LoadFromEnv() error = nil, want non-nil")
			}
		})
	}
}

func TestLoadFromEnv_PolicyOverridesCapabilities(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "policy.yaml")
	doc := "capabilities: [fill_level]\nblocked:\n  - aa:bb:cc:dd:ee:ff\n"
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("write policy: %v", err)
	}
	t.Setenv("POLICY_FILE", path)
	t.Setenv("CAPABILITIES", "temperature")

	got, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v, want nil", err)
	}
	if got.Capabilities != sensor.NewCapabilities(sensor.FamilyFillLevel) {
		t.Errorf("Capabilities = %v, want fill_level", got.Capabilities)
	}
	if len(got.Policy.Blocked) != 1 || got.Policy.Blocked[0] != "AA:BB:CC:DD:EE:FF" {
		t.Errorf("Policy.Blocked = %v", got.Policy.Blocked)
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{" error ", slog.LevelError},
	}
	for _, tt := range tests {
		got, err := parseLogLevel(tt.in)
		if err != nil {
			t.Fatalf("parseLogLevel(%q) error = %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
