package audit

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestLoggerDisabledEmitsNothing(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	auditLogger := NewLogger(logger, false)
	auditLogger.LogSystemStart("1.0.0")
	auditLogger.LogProcessStart("web", 1234)

	if buf.Len() != 0 {
		t.Errorf("expected no output when disabled, got: %s", buf.String())
	}
}

func TestLoggerSystemStart(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	auditLogger := NewLogger(logger, true)
	auditLogger.LogSystemStart("1.0.0")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log output: %v", err)
	}
	if entry["event_type"] != string(EventSystemStart) {
		t.Errorf("expected event_type=%s, got %v", EventSystemStart, entry["event_type"])
	}
	if entry["status"] != string(StatusSuccess) {
		t.Errorf("expected status=%s, got %v", StatusSuccess, entry["status"])
	}
	eventJSON := entry["event_json"].(string)
	if !strings.Contains(eventJSON, "1.0.0") {
		t.Errorf("expected event_json to contain version, got %s", eventJSON)
	}
}

func TestLoggerSystemShutdown(t *testing.T) {
	tests := []struct {
		name      string
		graceful  bool
		wantLevel string
		wantStat  Status
	}{
		{"graceful", true, "INFO", StatusSuccess},
		{"ungraceful", false, "ERROR", StatusError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

			auditLogger := NewLogger(logger, true)
			auditLogger.LogSystemShutdown(tt.graceful)

			var entry map[string]interface{}
			if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
				t.Fatalf("failed to parse log output: %v", err)
			}
			if entry["level"].(string) != tt.wantLevel {
				t.Errorf("expected level=%s, got %v", tt.wantLevel, entry["level"])
			}
			if entry["status"] != string(tt.wantStat) {
				t.Errorf("expected status=%s, got %v", tt.wantStat, entry["status"])
			}
		})
	}
}

func TestLoggerProcessLifecycleEvents(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	auditLogger := NewLogger(logger, true)

	auditLogger.LogProcessStart("php-fpm", 1234)

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log output: %v", err)
	}
	if entry["event_type"] != string(EventProcessStart) {
		t.Errorf("expected event_type=%s, got %v", EventProcessStart, entry["event_type"])
	}
	if entry["resource"] != "php-fpm" {
		t.Errorf("expected resource=php-fpm, got %v", entry["resource"])
	}
}

func TestLoggerProcessCrashLogsAtError(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	auditLogger := NewLogger(logger, true)

	auditLogger.LogProcessCrash("horizon", 9999, 137)

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log output: %v", err)
	}
	if entry["level"].(string) != "ERROR" {
		t.Errorf("expected level=ERROR, got %v", entry["level"])
	}
	eventJSON := entry["event_json"].(string)
	if !strings.Contains(eventJSON, `"exit_code":137`) {
		t.Errorf("expected event_json to contain exit_code 137, got %s", eventJSON)
	}
}

func TestLoggerRecoveryActionOutcome(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	auditLogger := NewLogger(logger, true)

	auditLogger.LogRecoveryAction("web", "default_restart", "restart", true, "restarted after 1 failed probe")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log output: %v", err)
	}
	if entry["event_type"] != string(EventRecoveryAction) {
		t.Errorf("expected event_type=%s, got %v", EventRecoveryAction, entry["event_type"])
	}
	if entry["status"] != string(StatusSuccess) {
		t.Errorf("expected status=%s, got %v", StatusSuccess, entry["status"])
	}
}

func TestLoggerConfigLoad(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	auditLogger := NewLogger(logger, true)

	auditLogger.LogConfigLoad("/etc/guardian/guardian.toml", 5)

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log output: %v", err)
	}
	eventJSON := entry["event_json"].(string)
	if !strings.Contains(eventJSON, `"process_count":5`) {
		t.Errorf("expected event_json to contain process_count 5, got %s", eventJSON)
	}
}

func TestLoggerTimestampAutoSet(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	auditLogger := NewLogger(logger, true)

	before := time.Now()
	auditLogger.LogSystemStart("1.0.0")
	after := time.Now()

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log output: %v", err)
	}
	var event Event
	if err := json.Unmarshal([]byte(entry["event_json"].(string)), &event); err != nil {
		t.Fatalf("failed to parse event json: %v", err)
	}
	if event.Timestamp.Before(before) || event.Timestamp.After(after) {
		t.Errorf("timestamp %v not between %v and %v", event.Timestamp, before, after)
	}
}
