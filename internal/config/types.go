package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Config is the complete, immutable-after-load Guardian configuration.
type Config struct {
	Processes     map[string]*ProcessSpec `toml:"processes"`
	Recovery      RecoveryConfig          `toml:"recovery"`
	Logging       LoggingConfig           `toml:"logging"`
	Memory        MemoryConfig            `toml:"memory"`
	Notifications NotificationsConfig     `toml:"notifications"`
	Macos         MacosConfig             `toml:"macos"`
	Advanced      AdvancedConfig          `toml:"advanced"`
	Tracing       TracingConfig           `toml:"tracing"`
	Metrics       MetricsConfig           `toml:"metrics"`
}

// TracingConfig configures the OpenTelemetry trace provider.
type TracingConfig struct {
	Enabled     bool    `toml:"enabled"`
	Exporter    string  `toml:"exporter"` // otlp-grpc | stdout
	Endpoint    string  `toml:"endpoint"`
	SampleRate  float64 `toml:"sample_rate"`
	ServiceName string  `toml:"service_name"`
	UseTLS      bool    `toml:"use_tls"`
}

// MetricsConfig configures the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Port    int    `toml:"port"`
	Path    string `toml:"path"`
}

// AdvancedConfig holds tick and shutdown timing shared by the supervisor loop.
type AdvancedConfig struct {
	SupervisorInterval  int `toml:"supervisor_interval"`
	ShutdownGracePeriod int `toml:"shutdown_grace_period"`
}

// LoggingConfig configures the Logger collaborator.
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // text | json
}

// MemoryConfig groups the memory-related collaborators.
type MemoryConfig struct {
	Compression CompressionConfig `toml:"compression"`
}

// CompressionConfig configures the external corpus-compression collaborator.
type CompressionConfig struct {
	Enabled bool     `toml:"enabled"`
	Command string   `toml:"command"`
	Args    []string `toml:"args"`
}

// NotificationsConfig configures the SMTP notifier collaborator.
type NotificationsConfig struct {
	Enabled    bool     `toml:"enabled"`
	SMTPHost   string   `toml:"smtp_host"`
	SMTPPort   int      `toml:"smtp_port"`
	SMTPUser   string   `toml:"smtp_user"`
	SMTPPass   string   `toml:"smtp_password"`
	From       string   `toml:"from"`
	To         []string `toml:"to"`
}

// MacosConfig configures the sleep-prevention collaborator.
type MacosConfig struct {
	PreventSleep bool `toml:"prevent_sleep"`
}

// RecoveryConfig holds the restart-window gate and the scenario list.
type RecoveryConfig struct {
	MaxRestarts    int                `toml:"max_restarts"`
	RestartWindow  int                `toml:"restart_window"`
	InitialBackoff int                `toml:"initial_backoff"`
	MaxBackoff     int                `toml:"max_backoff"`
	GiveUpAction   string             `toml:"give_up_action"` // notify | shutdown_all | keep_trying
	Scenarios      []*RecoveryScenario `toml:"scenarios"`
}

// ProcessSpec is the immutable-after-load definition of one managed process.
type ProcessSpec struct {
	Name         string            `toml:"-"`
	Command      string            `toml:"command"`
	Args         []string          `toml:"args"`
	WorkingDir   string            `toml:"working_dir"`
	Env          map[string]string `toml:"env"`
	DependsOn    []string          `toml:"depends_on"`
	AutoRestart  bool              `toml:"auto_restart"`
	RestartDelay int               `toml:"restart_delay"`
	Health       *HealthSpec       `toml:"health"`
	Ready        *rawReadySpec     `toml:"ready"`

	ReadySpec ReadySpec `toml:"-"`
}

// HealthSpec is the per-process set of enabled health probes (§4.5).
type HealthSpec struct {
	LogFile            string  `toml:"log_file"`
	LogActivityTimeout int     `toml:"log_activity_timeout"`
	LogPattern         string  `toml:"log_pattern"`
	ConfigFile         string  `toml:"config_file"`
	ValidateJSON       bool    `toml:"validate_json"`
	AutoBackup         bool    `toml:"auto_backup"`
	MaxMemoryMB        float64 `toml:"max_memory_mb"`
	MaxCPUPercent      float64 `toml:"max_cpu_percent"`
	CheckInterval      int     `toml:"check_interval"`
	HTTPEndpoint       string  `toml:"http_endpoint"`
	HTTPTimeout        int     `toml:"http_timeout"`
}

// ReadyKind is the closed tagged union of readiness-gate variants (Design
// Note 9): the config's `kind` string is parsed once here, not re-matched
// every time wait_for_ready runs.
type ReadyKind int

const (
	ReadyUnset ReadyKind = iota
	ReadyTime
	ReadyLogPattern
	ReadyTCPPort
)

// rawReadySpec mirrors the TOML shape of [processes.<name>.ready] before it
// is compiled into ReadySpec.
type rawReadySpec struct {
	Kind    string `toml:"kind"`
	Secs    int    `toml:"secs"`
	Regex   string `toml:"regex"`
	Timeout int    `toml:"timeout"`
	Port    int    `toml:"port"`
}

// ReadySpec is the compiled readiness gate for a process.
type ReadySpec struct {
	Kind    ReadyKind
	Secs    time.Duration
	Regex   string
	Timeout time.Duration
	Port    int
}

func compileReadySpec(raw *rawReadySpec) (ReadySpec, error) {
	if raw == nil {
		return ReadySpec{Kind: ReadyTime, Secs: 0}, nil
	}
	switch raw.Kind {
	case "time":
		return ReadySpec{Kind: ReadyTime, Secs: time.Duration(raw.Secs) * time.Second}, nil
	case "log_pattern":
		if raw.Regex == "" {
			return ReadySpec{}, fmt.Errorf("ready.kind=log_pattern requires regex")
		}
		return ReadySpec{Kind: ReadyLogPattern, Regex: raw.Regex, Timeout: time.Duration(raw.Timeout) * time.Second}, nil
	case "tcp_port":
		if raw.Port == 0 {
			return ReadySpec{}, fmt.Errorf("ready.kind=tcp_port requires port")
		}
		return ReadySpec{Kind: ReadyTCPPort, Port: raw.Port, Timeout: time.Duration(raw.Timeout) * time.Second}, nil
	default:
		return ReadySpec{}, fmt.Errorf("unknown ready.kind %q", raw.Kind)
	}
}

// TriggerKind is the closed tagged union of recognized recovery triggers.
type TriggerKind int

const (
	TriggerUnknown TriggerKind = iota
	TriggerConfigValidationFailed
	TriggerExitCode
	TriggerLogActivityTimeout
	TriggerMemoryAbove
	TriggerRestartCountAbove // reserved, handled by the restart-window gate, never matches
	TriggerLogPattern
)

// ActionKind is the closed tagged union of recovery actions.
type ActionKind int

const (
	ActionUnknown ActionKind = iota
	ActionRestart
	ActionRestartWithDependencies
	ActionGracefulRestart
	ActionExponentialBackoff
	ActionRestoreBackup
	ActionLogWarning
	ActionNotify
	ActionGiveUp
)

// RecoveryScenario is a configured (trigger -> action) rule. Trigger and
// Action strings are compiled once, at load time, into TriggerKind/ActionKind
// plus any extracted argument (e.g. the log_pattern regex).
type RecoveryScenario struct {
	Name        string `toml:"name"`
	Trigger     string `toml:"trigger"`
	Action      string `toml:"action"`
	BackupPath  string `toml:"backup_path"`
	GracePeriod int    `toml:"grace_period"`
	MaxBackoff  int    `toml:"max_backoff"`
	Notify      string `toml:"notify"`

	CompiledTrigger   TriggerKind `toml:"-"`
	TriggerArg        string      `toml:"-"`
	CompiledAction    ActionKind  `toml:"-"`
}

func compileTrigger(trigger string) (TriggerKind, string) {
	switch {
	case trigger == "config_validation_failed":
		return TriggerConfigValidationFailed, ""
	case strings.HasPrefix(trigger, "exit_code"):
		return TriggerExitCode, ""
	case trigger == "log_activity_timeout":
		return TriggerLogActivityTimeout, ""
	case strings.HasPrefix(trigger, "memory >"):
		return TriggerMemoryAbove, strings.TrimSpace(strings.TrimPrefix(trigger, "memory >"))
	case strings.HasPrefix(trigger, "restart_count >"):
		return TriggerRestartCountAbove, strings.TrimSpace(strings.TrimPrefix(trigger, "restart_count >"))
	case strings.HasPrefix(trigger, "log_pattern"):
		return TriggerLogPattern, extractQuoted(trigger)
	default:
		return TriggerUnknown, ""
	}
}

// extractQuoted pulls the single-quoted substring out of a trigger string,
// e.g. log_pattern('ERROR|FATAL') -> ERROR|FATAL.
func extractQuoted(s string) string {
	first := strings.IndexByte(s, '\'')
	if first < 0 {
		return ""
	}
	last := strings.IndexByte(s[first+1:], '\'')
	if last < 0 {
		return ""
	}
	return s[first+1 : first+1+last]
}

func compileAction(action string) (ActionKind, error) {
	switch action {
	case "restart":
		return ActionRestart, nil
	case "restart_with_dependencies":
		return ActionRestartWithDependencies, nil
	case "graceful_restart":
		return ActionGracefulRestart, nil
	case "exponential_backoff":
		return ActionExponentialBackoff, nil
	case "restore_backup":
		return ActionRestoreBackup, nil
	case "log_warning":
		return ActionLogWarning, nil
	case "notify":
		return ActionNotify, nil
	case "give_up":
		return ActionGiveUp, nil
	default:
		return ActionUnknown, fmt.Errorf("unknown recovery action %q", action)
	}
}

// ParseMemoryThresholdMB extracts a "NNN" (megabytes) argument compiled from
// a `memory > NNN` trigger.
func ParseMemoryThresholdMB(arg string) (float64, error) {
	arg = strings.TrimSpace(arg)
	v, err := strconv.ParseFloat(arg, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid memory threshold %q: %w", arg, err)
	}
	return v, nil
}
