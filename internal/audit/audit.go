package audit

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// EventType represents the category of audit event
type EventType string

const (
	// Process Events
	EventProcessStart   EventType = "process.start"
	EventProcessStop    EventType = "process.stop"
	EventProcessRestart EventType = "process.restart"
	EventProcessCrash   EventType = "process.crash"

	// Health Events
	EventHealthCheckFailed EventType = "health.check_failed"

	// Recovery Events
	EventRecoveryAction EventType = "recovery.action"

	// Configuration Events
	EventConfigLoad EventType = "config.load"

	// System Events
	EventSystemStart    EventType = "system.start"
	EventSystemShutdown EventType = "system.shutdown"
	EventSystemError    EventType = "system.error"
)

// Status represents the outcome of an audited action
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
	StatusError   Status = "error"
)

// Actor represents who/what performed the action
type Actor struct {
	Type string `json:"type"` // "system", "supervisor", "recovery"
	ID   string `json:"id"`
}

// Resource represents what was affected by the action
type Resource struct {
	Type string `json:"type"` // "process", "config", "system"
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Event represents a single audit log entry
type Event struct {
	ID        string                 `json:"id"`
	Timestamp time.Time              `json:"timestamp"`
	EventType EventType              `json:"event_type"`
	Actor     Actor                  `json:"actor"`
	Action    string                 `json:"action"`
	Resource  Resource               `json:"resource"`
	Status    Status                 `json:"status"`
	Message   string                 `json:"message"`
	Context   map[string]interface{} `json:"context,omitempty"`
}

// Logger provides structured audit logging
type Logger struct {
	logger  *slog.Logger
	enabled bool
}

// NewLogger creates a new audit logger
func NewLogger(log *slog.Logger, enabled bool) *Logger {
	return &Logger{
		logger:  log.With("subsystem", "audit"),
		enabled: enabled,
	}
}

// Log logs an audit event
func (l *Logger) Log(event Event) {
	if !l.enabled {
		return
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}

	eventJSON, _ := json.Marshal(event)

	switch event.Status {
	case StatusFailure, StatusError:
		l.logger.Error("audit_event",
			"event_type", event.EventType,
			"actor", event.Actor.ID,
			"action", event.Action,
			"resource", event.Resource.ID,
			"status", event.Status,
			"message", event.Message,
			"event_json", string(eventJSON),
		)
	default:
		l.logger.Info("audit_event",
			"event_type", event.EventType,
			"actor", event.Actor.ID,
			"action", event.Action,
			"resource", event.Resource.ID,
			"status", event.Status,
			"message", event.Message,
			"event_json", string(eventJSON),
		)
	}
}

// LogProcessStart logs a process start.
func (l *Logger) LogProcessStart(processName string, pid int) {
	l.Log(Event{
		EventType: EventProcessStart,
		Actor:     Actor{Type: "system", ID: "driver"},
		Action:    "start",
		Resource:  Resource{Type: "process", ID: processName, Name: processName},
		Status:    StatusSuccess,
		Message:   "process started",
		Context:   map[string]interface{}{"pid": pid},
	})
}

// LogProcessStop logs a process stop.
func (l *Logger) LogProcessStop(processName string, pid int, exitCode int) {
	l.Log(Event{
		EventType: EventProcessStop,
		Actor:     Actor{Type: "system", ID: "driver"},
		Action:    "stop",
		Resource:  Resource{Type: "process", ID: processName, Name: processName},
		Status:    StatusSuccess,
		Message:   "process stopped",
		Context:   map[string]interface{}{"pid": pid, "exit_code": exitCode},
	})
}

// LogProcessCrash logs an unexpected process exit.
func (l *Logger) LogProcessCrash(processName string, pid int, exitCode int) {
	l.Log(Event{
		EventType: EventProcessCrash,
		Actor:     Actor{Type: "system", ID: "driver"},
		Action:    "crash",
		Resource:  Resource{Type: "process", ID: processName, Name: processName},
		Status:    StatusError,
		Message:   "process crashed",
		Context:   map[string]interface{}{"pid": pid, "exit_code": exitCode},
	})
}

// LogProcessRestart logs a process restart.
func (l *Logger) LogProcessRestart(processName string, restartCount int, reason string) {
	l.Log(Event{
		EventType: EventProcessRestart,
		Actor:     Actor{Type: "recovery", ID: "engine"},
		Action:    "restart",
		Resource:  Resource{Type: "process", ID: processName, Name: processName},
		Status:    StatusSuccess,
		Message:   "process restarted",
		Context:   map[string]interface{}{"restart_count": restartCount, "reason": reason},
	})
}

// LogHealthCheckFailed logs a tick's failed health verdict for a process.
func (l *Logger) LogHealthCheckFailed(processName, status, message string) {
	l.Log(Event{
		EventType: EventHealthCheckFailed,
		Actor:     Actor{Type: "supervisor", ID: "health"},
		Action:    "check",
		Resource:  Resource{Type: "process", ID: processName, Name: processName},
		Status:    StatusFailure,
		Message:   message,
		Context:   map[string]interface{}{"verdict": status},
	})
}

// LogRecoveryAction logs one executed recovery action.
func (l *Logger) LogRecoveryAction(processName, scenario, action string, success bool, details string) {
	status := StatusSuccess
	if !success {
		status = StatusFailure
	}
	l.Log(Event{
		EventType: EventRecoveryAction,
		Actor:     Actor{Type: "recovery", ID: "engine"},
		Action:    action,
		Resource:  Resource{Type: "process", ID: processName, Name: processName},
		Status:    status,
		Message:   details,
		Context:   map[string]interface{}{"scenario": scenario},
	})
}

// LogConfigLoad logs configuration load.
func (l *Logger) LogConfigLoad(configFile string, processCount int) {
	l.Log(Event{
		EventType: EventConfigLoad,
		Actor:     Actor{Type: "system", ID: "config"},
		Action:    "load",
		Resource:  Resource{Type: "config", ID: configFile},
		Status:    StatusSuccess,
		Message:   "configuration loaded",
		Context:   map[string]interface{}{"process_count": processCount},
	})
}

// LogSystemStart logs Guardian startup.
func (l *Logger) LogSystemStart(version string) {
	l.Log(Event{
		EventType: EventSystemStart,
		Actor:     Actor{Type: "system", ID: "guardian"},
		Action:    "start",
		Resource:  Resource{Type: "system", ID: "guardian"},
		Status:    StatusSuccess,
		Message:   "guardian started",
		Context:   map[string]interface{}{"version": version},
	})
}

// LogSystemShutdown logs Guardian shutdown.
func (l *Logger) LogSystemShutdown(graceful bool) {
	status := StatusSuccess
	if !graceful {
		status = StatusError
	}
	l.Log(Event{
		EventType: EventSystemShutdown,
		Actor:     Actor{Type: "system", ID: "guardian"},
		Action:    "shutdown",
		Resource:  Resource{Type: "system", ID: "guardian"},
		Status:    status,
		Message:   "guardian shutdown",
		Context:   map[string]interface{}{"graceful": graceful},
	})
}

// LogSystemError logs a system-level error outside any single process.
func (l *Logger) LogSystemError(component string, errorMsg string) {
	l.Log(Event{
		EventType: EventSystemError,
		Actor:     Actor{Type: "system", ID: component},
		Action:    "error",
		Resource:  Resource{Type: "system", ID: component},
		Status:    StatusError,
		Message:   errorMsg,
	})
}
