package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	AppEnv   string
	LogLevel slog.Level
	HTTPAddr string

	BLEAdapter  string
	Address     string // empty: scan for the first PawPrint
	ScanTimeout time.Duration
	AutoConnect bool
	EventBuffer int
	FrameQueue  int

	MQTTEnabled     bool
	MQTTBroker      string
	MQTTPort        int
	MQTTClientID    string
	MQTTTopicPrefix string
	MQTTDataRate    float64
	DeviceID        string
}

func LoadFromEnv() (Config, error) {
	appEnv := envOr("APP_ENV", "dev")
	switch appEnv {
	case "dev", "prod":
	default:
		return Config{}, fmt.Errorf("invalid APP_ENV %q (allowed: dev, prod)", appEnv)
	}

	level, err := parseLogLevel(envOr("LOG_LEVEL", "info"))
	if err != nil {
		return Config{}, err
	}

	scanTimeoutStr := envOr("SCAN_TIMEOUT", "15s")
	scanTimeout, err := time.ParseDuration(scanTimeoutStr)
	if err != nil {
		return Config{}, fmt.Errorf("invalid SCAN_TIMEOUT %q: %w", scanTimeoutStr, err)
	}
	if scanTimeout <= 0 {
		return Config{}, fmt.Errorf("SCAN_TIMEOUT must be positive, got %v", scanTimeout)
	}

	autoConnect, err := parseBool("AUTO_CONNECT", envOr("AUTO_CONNECT", "true"))
	if err != nil {
		return Config{}, err
	}
	eventBuffer, err := parsePositiveInt("EVENT_BUFFER", envOr("EVENT_BUFFER", "64"))
	if err != nil {
		return Config{}, err
	}
	frameQueue, err := parsePositiveInt("FRAME_QUEUE", envOr("FRAME_QUEUE", "64"))
	if err != nil {
		return Config{}, err
	}

	mqttEnabled, err := parseBool("MQTT_ENABLED", envOr("MQTT_ENABLED", "true"))
	if err != nil {
		return Config{}, err
	}
	mqttPortStr := envOr("MQTT_PORT", "1883")
	mqttPort, err := strconv.Atoi(mqttPortStr)
	if err != nil {
		return Config{}, fmt.Errorf("invalid MQTT_PORT %q: %w", mqttPortStr, err)
	}
	if mqttPort <= 0 || mqttPort > 65535 {
		return Config{}, fmt.Errorf("MQTT_PORT out of range: %d", mqttPort)
	}

	dataRateStr := envOr("MQTT_DATA_RATE", "10")
	dataRate, err := strconv.ParseFloat(dataRateStr, 64)
	if err != nil {
		return Config{}, fmt.Errorf("invalid MQTT_DATA_RATE %q: %w", dataRateStr, err)
	}
	if dataRate <= 0 {
		return Config{}, fmt.Errorf("MQTT_DATA_RATE must be positive, got %v", dataRate)
	}

	topicPrefix := strings.Trim(envOr("MQTT_TOPIC_PREFIX", "pawprint"), "/")
	if topicPrefix == "" {
		return Config{}, fmt.Errorf("MQTT_TOPIC_PREFIX must not be empty")
	}

	return Config{
		AppEnv:          appEnv,
		LogLevel:        level,
		HTTPAddr:        envOr("HTTP_ADDR", ":8080"),
		BLEAdapter:      envOr("BLE_ADAPTER", "hci0"),
		Address:         strings.ToUpper(strings.TrimSpace(os.Getenv("PAWPRINT_ADDRESS"))),
		ScanTimeout:     scanTimeout,
		AutoConnect:     autoConnect,
		EventBuffer:     eventBuffer,
		FrameQueue:      frameQueue,
		MQTTEnabled:     mqttEnabled,
		MQTTBroker:      envOr("MQTT_BROKER", "localhost"),
		MQTTPort:        mqttPort,
		MQTTClientID:    envOr("MQTT_CLIENT_ID", "pawprint-gateway"),
		MQTTTopicPrefix: topicPrefix,
		MQTTDataRate:    dataRate,
		DeviceID:        envOr("DEVICE_ID", "pawprint"),
	}, nil
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func parseBool(key, s string) (bool, error) {
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	return b, nil
}

func parsePositiveInt(key, s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %d", key, n)
	}
	return n, nil
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
