package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"pawprint-gateway/internal/config"
)

func TestNewLogger_DevUsesTint(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, config.Config{LogLevel: slog.LevelInfo}, "dev", "pawprintd")

	logger.Debug("hidden")
	logger.Info("connected", "address", "AA:BB")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("debug record written at info level: %q", out)
	}
	if !strings.Contains(out, "connected") || !strings.Contains(out, "address=AA:BB") {
		t.Errorf("unexpected output %q", out)
	}
	if strings.Contains(out, "\x1b[") {
		t.Errorf("colour escapes written to a non-terminal: %q", out)
	}
}

func TestNewLogger_ReleaseUsesJSON(t *testing.T) {
	var buf bytes.Buffer
	cfg := config.Config{AppEnv: "prod", LogLevel: slog.LevelWarn, DeviceID: "left-paw"}
	logger := newLogger(&buf, cfg, "1.2.0", "pawprintd")

	logger.Info("hidden")
	logger.Warn("link lost", "address", "AA:BB")

	var rec map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &rec); err != nil {
		t.Fatalf("output is not a single JSON record: %v (%q)", err, buf.String())
	}
	for k, want := range map[string]string{
		"msg":       "link lost",
		"app":       "pawprintd",
		"version":   "1.2.0",
		"env":       "prod",
		"device_id": "left-paw",
		"address":   "AA:BB",
	} {
		if rec[k] != want {
			t.Errorf("%s = %v, want %q", k, rec[k], want)
		}
	}
}
