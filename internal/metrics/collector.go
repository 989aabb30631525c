// Package metrics exposes Prometheus instrumentation for Guardian's
// process registry, health checker, and recovery engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ProcessUp = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "guardian_process_up",
			Help: "Process status (1=running, 0=stopped)",
		},
		[]string{"name"},
	)

	ProcessRestarts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guardian_process_restarts_total",
			Help: "Total number of process restarts",
		},
		[]string{"name", "action"},
	)

	ProcessStartTime = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "guardian_process_start_time_seconds",
			Help: "Unix timestamp when process last started",
		},
		[]string{"name"},
	)

	ProcessLastExitCode = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "guardian_process_last_exit_code",
			Help: "Last exit code observed for a process",
		},
		[]string{"name"},
	)

	HealthLevelStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "guardian_health_level_status",
			Help: "Per-level health probe status (1=passed, 0=failed)",
		},
		[]string{"name", "level"},
	)

	HealthCheckDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "guardian_health_check_duration_seconds",
			Help:    "Duration of a full five-level health evaluation",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
		},
		[]string{"name"},
	)

	HealthVerdict = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "guardian_health_verdict",
			Help: "Aggregated health verdict (1=healthy, 0.5=degraded, 0=unhealthy, -1=unknown)",
		},
		[]string{"name"},
	)

	RecoveryActionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guardian_recovery_actions_total",
			Help: "Total recovery actions executed, by scenario and outcome",
		},
		[]string{"process", "scenario", "action", "outcome"},
	)

	BackoffDelaySeconds = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "guardian_backoff_delay_seconds",
			Help: "Current exponential backoff delay for a process",
		},
		[]string{"name"},
	)

	SupervisorTickDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "guardian_supervisor_tick_duration_seconds",
			Help:    "Duration of one supervisor loop tick",
			Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 10},
		},
	)

	ShutdownDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "guardian_shutdown_duration_seconds",
			Help:    "Duration of graceful shutdown",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 180, 300},
		},
	)

	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "guardian_build_info",
			Help: "Guardian build information",
		},
		[]string{"version", "go_version"},
	)
)

// RecordProcessStart marks a process as up and records its start time.
func RecordProcessStart(name string, startUnix float64) {
	ProcessUp.WithLabelValues(name).Set(1)
	ProcessStartTime.WithLabelValues(name).Set(startUnix)
}

// RecordProcessStop marks a process as down and records its exit code.
func RecordProcessStop(name string, exitCode int) {
	ProcessUp.WithLabelValues(name).Set(0)
	ProcessLastExitCode.WithLabelValues(name).Set(float64(exitCode))
}

// RecordRestart increments the restart counter for the given action.
func RecordRestart(name, action string) {
	ProcessRestarts.WithLabelValues(name, action).Inc()
}

// RecordHealthLevel records the pass/fail outcome of a single probe level.
func RecordHealthLevel(name string, level int, passed bool) {
	v := 0.0
	if passed {
		v = 1.0
	}
	HealthLevelStatus.WithLabelValues(name, levelLabel(level)).Set(v)
}

func levelLabel(level int) string {
	switch level {
	case 1:
		return "1_process_alive"
	case 2:
		return "2_log_activity"
	case 3:
		return "3_config_validation"
	case 4:
		return "4_resource_usage"
	case 5:
		return "5_http_endpoint"
	default:
		return "unknown"
	}
}

// RecordVerdict records the aggregated verdict as a scalar for dashboards.
func RecordVerdict(name string, v float64) {
	HealthVerdict.WithLabelValues(name).Set(v)
}

// RecordRecoveryAction records one executed recovery action.
func RecordRecoveryAction(process, scenario, action, outcome string) {
	RecoveryActionsTotal.WithLabelValues(process, scenario, action, outcome).Inc()
}

// RecordBackoffDelay records the current backoff delay for a process.
func RecordBackoffDelay(name string, seconds float64) {
	BackoffDelaySeconds.WithLabelValues(name).Set(seconds)
}

// RecordShutdownDuration records the total graceful-shutdown duration.
func RecordShutdownDuration(seconds float64) {
	ShutdownDuration.Observe(seconds)
}

// SetBuildInfo publishes build metadata as a constant gauge.
func SetBuildInfo(version, goVersion string) {
	BuildInfo.WithLabelValues(version, goVersion).Set(1)
}
