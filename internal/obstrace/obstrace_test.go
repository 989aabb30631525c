package obstrace

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace/noop"
)

func TestTracerConfigDefault(t *testing.T) {
	cfg := TracerConfig{}

	if cfg.Enabled {
		t.Error("Default Enabled should be false")
	}
	if cfg.SampleRate != 0 {
		t.Errorf("Default SampleRate should be 0, got %f", cfg.SampleRate)
	}
}

func TestNewProviderDisabled(t *testing.T) {
	cfg := TracerConfig{Enabled: false}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	provider, err := NewProvider(context.Background(), cfg, logger)
	if err != nil {
		t.Fatalf("NewProvider failed: %v", err)
	}
	if provider.Enabled() {
		t.Error("Provider should not be enabled when config.Enabled is false")
	}
	if err := provider.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown failed: %v", err)
	}
}

func TestNewProviderUnsupportedExporter(t *testing.T) {
	cfg := TracerConfig{Enabled: true, Exporter: "unsupported", ServiceName: "guardian"}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	if _, err := NewProvider(context.Background(), cfg, logger); err == nil {
		t.Error("Expected error for unsupported exporter")
	}
}

func TestNewProviderStdout(t *testing.T) {
	cfg := TracerConfig{Enabled: true, Exporter: "stdout", ServiceName: "guardian", SampleRate: 1.0}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	provider, err := NewProvider(context.Background(), cfg, logger)
	if err != nil {
		t.Fatalf("NewProvider failed: %v", err)
	}
	defer func() { _ = provider.Shutdown(context.Background()) }()

	if !provider.Enabled() {
		t.Error("Provider should be enabled with stdout exporter")
	}
}

func TestProviderTracerDisabled(t *testing.T) {
	provider := &Provider{tp: nil, logger: slog.Default()}

	tracer := provider.Tracer("test")
	if tracer == nil {
		t.Fatal("Tracer should not be nil even when disabled")
	}
	ctx, span := tracer.Start(context.Background(), "test-span")
	if ctx == nil || span == nil {
		t.Error("Noop tracer should return valid context and span")
	}
	span.End()
}

func TestProviderTracerEnabled(t *testing.T) {
	cfg := TracerConfig{Enabled: true, Exporter: "stdout", ServiceName: "guardian", SampleRate: 1.0}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	provider, err := NewProvider(context.Background(), cfg, logger)
	if err != nil {
		t.Fatalf("NewProvider failed: %v", err)
	}
	defer func() { _ = provider.Shutdown(context.Background()) }()

	tracer := provider.Tracer("driver")
	ctx, span := tracer.Start(context.Background(), "test-operation")
	if ctx == nil || span == nil {
		t.Error("Start should return valid context and span")
	}
	span.End()
}

func TestSamplerRates(t *testing.T) {
	tests := []struct {
		name       string
		sampleRate float64
	}{
		{"always_sample", 1.0},
		{"never_sample", 0.0},
		{"ratio_sample", 0.5},
		{"above_one", 1.5},
		{"below_zero", -0.5},
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := TracerConfig{Enabled: true, Exporter: "stdout", ServiceName: "guardian", SampleRate: tt.sampleRate}
			provider, err := NewProvider(context.Background(), cfg, logger)
			if err != nil {
				t.Fatalf("NewProvider failed: %v", err)
			}
			defer func() { _ = provider.Shutdown(context.Background()) }()

			if !provider.Enabled() {
				t.Error("Provider should be enabled")
			}
		})
	}
}

func TestStartSupervisorTickSpan(t *testing.T) {
	ctx, span := StartSupervisorTickSpan(context.Background(), attribute.Int("process.count", 5))
	if ctx == nil || span == nil {
		t.Fatal("expected non-nil context and span")
	}
	span.End()
}

func TestStartDriverSpan(t *testing.T) {
	ctx, span := StartDriverSpan(context.Background(), "php-fpm", "start",
		attribute.String("process.status", "running"))
	if ctx == nil || span == nil {
		t.Fatal("expected non-nil context and span")
	}
	span.End()
}

func TestStartRecoverySpan(t *testing.T) {
	ctx, span := StartRecoverySpan(context.Background(), "nginx", "default_restart",
		attribute.Int("restart.attempt", 1))
	if ctx == nil || span == nil {
		t.Fatal("expected non-nil context and span")
	}
	span.End()
}

func TestStartHealthCheckSpan(t *testing.T) {
	ctx, span := StartHealthCheckSpan(context.Background(), "api",
		attribute.String("health_check.endpoint", "http://localhost:8080/health"))
	if ctx == nil || span == nil {
		t.Fatal("expected non-nil context and span")
	}
	span.End()
}

func TestRecordErrorNilSpan(t *testing.T) {
	RecordError(nil, errors.New("test error"), "test description")
}

func TestRecordErrorNilError(t *testing.T) {
	tracer := noop.NewTracerProvider().Tracer("test")
	_, span := tracer.Start(context.Background(), "test")
	defer span.End()
	RecordError(span, nil, "test description")
}

func TestRecordError(t *testing.T) {
	tracer := noop.NewTracerProvider().Tracer("test")
	_, span := tracer.Start(context.Background(), "test")
	defer span.End()
	RecordError(span, errors.New("test error"), "test description")
}

func TestRecordSuccessNilSpan(t *testing.T) {
	RecordSuccess(nil)
}

func TestRecordSuccess(t *testing.T) {
	tracer := noop.NewTracerProvider().Tracer("test")
	_, span := tracer.Start(context.Background(), "test")
	defer span.End()
	RecordSuccess(span)
}

func TestAddEventNilSpan(t *testing.T) {
	AddEvent(nil, "test event", attribute.String("key", "value"))
}

func TestAddEvent(t *testing.T) {
	tracer := noop.NewTracerProvider().Tracer("test")
	_, span := tracer.Start(context.Background(), "test")
	defer span.End()
	AddEvent(span, "process_started",
		attribute.String("process.name", "nginx"),
		attribute.Int("process.pid", 12345))
}

func TestSetAttributesNilSpan(t *testing.T) {
	SetAttributes(nil, attribute.String("key", "value"))
}

func TestSetAttributes(t *testing.T) {
	tracer := noop.NewTracerProvider().Tracer("test")
	_, span := tracer.Start(context.Background(), "test")
	defer span.End()
	SetAttributes(span, attribute.String("custom.key1", "value1"), attribute.Int("custom.key2", 42))
}

func TestNewProviderOTLPGrpcInsecure(t *testing.T) {
	cfg := TracerConfig{
		Enabled: true, Exporter: "otlp-grpc", Endpoint: "localhost:4317",
		ServiceName: "guardian", SampleRate: 1.0, UseTLS: false,
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	provider, err := NewProvider(context.Background(), cfg, logger)
	if err != nil {
		t.Fatalf("NewProvider failed: %v", err)
	}
	defer func() { _ = provider.Shutdown(context.Background()) }()

	if !provider.Enabled() {
		t.Error("Provider should be enabled with otlp-grpc exporter")
	}
}

func TestProviderShutdownWithContext(t *testing.T) {
	cfg := TracerConfig{Enabled: true, Exporter: "stdout", ServiceName: "guardian", SampleRate: 1.0}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	provider, err := NewProvider(context.Background(), cfg, logger)
	if err != nil {
		t.Fatalf("NewProvider failed: %v", err)
	}

	tracer := provider.Tracer("test")
	_, span := tracer.Start(context.Background(), "test-span")
	span.End()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := provider.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown failed: %v", err)
	}
}

func TestProviderEnabledWhenDisabled(t *testing.T) {
	provider := &Provider{tp: nil, logger: slog.Default()}
	if provider.Enabled() {
		t.Error("Provider should not be enabled when tp is nil")
	}
}

func TestCreateStdoutExporter(t *testing.T) {
	exporter, err := createStdoutExporter()
	if err != nil {
		t.Fatalf("createStdoutExporter failed: %v", err)
	}
	if exporter == nil {
		t.Error("Expected non-nil exporter")
	}
}
