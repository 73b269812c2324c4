package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"cloudpico-sensorbridge/internal/sensor"
)

type Config struct {
	AppEnv   string
	LogLevel slog.Level
	HTTPAddr string

	MQTTBroker      string
	MQTTPort        int
	MQTTClientID    string
	MQTTTopicPrefix string
	// PayloadFormat is "json" or "cbor".
	PayloadFormat string

	GatewayID  string
	BLEAdapter string

	MaxBeacons     int
	BeaconLifetime time.Duration
	LifetimeTick   time.Duration
	// AnnounceDelay holds a new beacon back from upstream so a scan
	// response can name it first.
	AnnounceDelay time.Duration
	Capabilities  sensor.Capabilities

	EventLogVerbose  bool
	CreateLogVerbose bool

	IntakeQueue  int
	PublishQueue int

	SQLitePath         string
	SQLiteDSN          string
	SQLiteMaxOpenConns int
	SQLiteLogQueries   bool

	PolicyFile string
	Policy     Policy
}

func LoadFromEnv() (Config, error) {
	appEnv := strings.TrimSpace(os.Getenv("APP_ENV"))
	if appEnv == "" {
		appEnv = "dev"
	}
	switch appEnv {
	case "dev", "prod":
	default:
		return Config{}, fmt.Errorf("invalid APP_ENV %q (allowed: dev, prod)", appEnv)
	}

	logLevelStr := strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	if logLevelStr == "" {
		logLevelStr = "info"
	}
	level, err := parseLogLevel(logLevelStr)
	if err != nil {
		return Config{}, err
	}

	mqttPortStr := envString("MQTT_PORT", "1883")
	mqttPort, err := strconv.Atoi(mqttPortStr)
	if err != nil {
		return Config{}, fmt.Errorf("invalid MQTT_PORT %q: %w", mqttPortStr, err)
	}
	if mqttPort <= 0 || mqttPort > 65535 {
		return Config{}, fmt.Errorf("MQTT_PORT out of range: %d", mqttPort)
	}

	payloadFormat := strings.ToLower(envString("MQTT_PAYLOAD_FORMAT", "json"))
	switch payloadFormat {
	case "json", "cbor":
	default:
		return Config{}, fmt.Errorf("invalid MQTT_PAYLOAD_FORMAT %q (allowed: json, cbor)", payloadFormat)
	}

	gatewayID := envString("GATEWAY_ID", "")
	if gatewayID == "" {
		gatewayID = uuid.NewString()
	}

	maxBeacons, err := envInt("MAX_BEACONS", 16)
	if err != nil {
		return Config{}, err
	}
	if maxBeacons <= 0 {
		return Config{}, fmt.Errorf("MAX_BEACONS must be positive, got %d", maxBeacons)
	}

	lifetime, err := envDuration("BEACON_LIFETIME", 15*time.Minute)
	if err != nil {
		return Config{}, err
	}
	tick, err := envDuration("LIFETIME_TICK", time.Second)
	if err != nil {
		return Config{}, err
	}
	if tick > lifetime {
		return Config{}, fmt.Errorf("LIFETIME_TICK %v exceeds BEACON_LIFETIME %v", tick, lifetime)
	}

	announceDelay, err := envDuration("ANNOUNCE_DELAY", 10*time.Second)
	if err != nil {
		return Config{}, err
	}
	if announceDelay >= lifetime {
		return Config{}, fmt.Errorf("ANNOUNCE_DELAY %v must be shorter than BEACON_LIFETIME %v", announceDelay, lifetime)
	}

	capsStr := envString("CAPABILITIES", "all")
	caps, err := sensor.ParseCapabilities(capsStr)
	if err != nil {
		return Config{}, fmt.Errorf("invalid CAPABILITIES %q: %w", capsStr, err)
	}

	eventVerbose, err := envBool("EVENT_LOG_VERBOSE", false)
	if err != nil {
		return Config{}, err
	}
	createVerbose, err := envBool("CREATE_LOG_VERBOSE", false)
	if err != nil {
		return Config{}, err
	}

	intakeQueue, err := envInt("INTAKE_QUEUE", 256)
	if err != nil {
		return Config{}, err
	}
	publishQueue, err := envInt("PUBLISH_QUEUE", 256)
	if err != nil {
		return Config{}, err
	}
	if intakeQueue <= 0 || publishQueue <= 0 {
		return Config{}, fmt.Errorf("INTAKE_QUEUE and PUBLISH_QUEUE must be positive, got %d/%d", intakeQueue, publishQueue)
	}

	maxOpenConns, err := envInt("DB_MAX_OPEN_CONNS", 1)
	if err != nil {
		return Config{}, err
	}
	logQueries, err := envBool("SQLITE_LOG_QUERIES", false)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppEnv:             appEnv,
		LogLevel:           level,
		HTTPAddr:           envString("HTTP_ADDR", ":8080"),
		MQTTBroker:         envString("MQTT_BROKER", "localhost"),
		MQTTPort:           mqttPort,
		MQTTClientID:       envString("MQTT_CLIENT_ID", "cloudpico-sensorbridge"),
		MQTTTopicPrefix:    strings.Trim(envString("MQTT_TOPIC_PREFIX", "beacons"), "/"),
		PayloadFormat:      payloadFormat,
		GatewayID:          gatewayID,
		BLEAdapter:         envString("BLE_ADAPTER", "hci0"),
		MaxBeacons:         maxBeacons,
		BeaconLifetime:     lifetime,
		LifetimeTick:       tick,
		AnnounceDelay:      announceDelay,
		Capabilities:       caps,
		EventLogVerbose:    eventVerbose,
		CreateLogVerbose:   createVerbose,
		IntakeQueue:        intakeQueue,
		PublishQueue:       publishQueue,
		SQLitePath:         envString("SQLITE_PATH", "../dev/sqlite/sensorbridge.db"),
		SQLiteDSN:          envString("DB_DSN", ""),
		SQLiteMaxOpenConns: maxOpenConns,
		SQLiteLogQueries:   logQueries,
		PolicyFile:         envString("POLICY_FILE", ""),
	}

	if cfg.PolicyFile != "" {
		policy, err := LoadPolicy(cfg.PolicyFile)
		if err != nil {
			return Config{}, err
		}
		cfg.Policy = policy
		if policy.Capabilities != 0 {
			cfg.Capabilities = policy.Capabilities
		}
	}

	return cfg, nil
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q (allowed: debug, info, warn, error)", s)
	}
}

func envString(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envInt(key string, def int) (int, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	return n, nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %v", key, d)
	}
	return d, nil
}

func envBool(key string, def bool) (bool, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	return b, nil
}
