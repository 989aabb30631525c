// Package recovery matches a health verdict against a process's configured
// scenarios and executes the resulting action: restart, graceful restart,
// exponential backoff, backup restore, notification, or give-up.
package recovery

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gophpeek/guardian/internal/audit"
	"github.com/gophpeek/guardian/internal/backup"
	"github.com/gophpeek/guardian/internal/config"
	"github.com/gophpeek/guardian/internal/guardianerr"
	"github.com/gophpeek/guardian/internal/health"
	"github.com/gophpeek/guardian/internal/metrics"
	"github.com/gophpeek/guardian/internal/obstrace"
)

// Action is the decision produced by Evaluate.
type Action struct {
	Kind       config.ActionKind
	ScenarioName string
	GracePeriod  time.Duration
	MaxBackoff   time.Duration
	BackupPath   string
	NotifyMsg    string
}

// BackoffState is the per-process exponential-backoff counter.
type BackoffState struct {
	CurrentDelay time.Duration
	AttemptCount int
	LastAttempt  time.Time
}

// Event is one entry of the rolling recovery-event history. ID is a fresh
// UUID generated for this entry; it is not passed to the audit logger or the
// trace span.
type Event struct {
	ID        string
	Timestamp time.Time
	Process   string
	Scenario  string
	Action    string
	Success   bool
	Details   string
}

const eventRingSize = 100

// Stats tracks aggregate and per-scenario recovery counters plus a rolling
// event history.
type Stats struct {
	mu              sync.Mutex
	TotalRecoveries int
	Successful      int
	Failed          int
	byScenario      map[string]int
	events          []Event
}

func newStats() *Stats {
	return &Stats{byScenario: make(map[string]int)}
}

func (s *Stats) recordAttempt(scenario string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.TotalRecoveries++
	s.byScenario[scenario]++
}

func (s *Stats) recordOutcome(process, scenario, action string, success bool, details string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if success {
		s.Successful++
	} else {
		s.Failed++
	}
	s.events = append(s.events, Event{
		ID: uuid.NewString(), Timestamp: time.Now(), Process: process, Scenario: scenario,
		Action: action, Success: success, Details: details,
	})
	if len(s.events) > eventRingSize {
		s.events = s.events[len(s.events)-eventRingSize:]
	}
}

// Events returns a copy of the rolling event history.
func (s *Stats) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

// ByScenario returns a copy of the per-scenario counters.
func (s *Stats) ByScenario() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int, len(s.byScenario))
	for k, v := range s.byScenario {
		out[k] = v
	}
	return out
}

// Starter is the subset of the process driver the engine needs to execute
// actions, kept narrow to avoid an import cycle with internal/driver.
type Starter interface {
	Restart(ctx context.Context, name string, grace time.Duration) error
	Start(ctx context.Context, name string) error
	StartAll(ctx context.Context, order []string, specs map[string]*config.ProcessSpec) error
	StopAll(ctx context.Context, order []string, grace time.Duration)
}

// Notifier delivers a human-facing recovery message; see internal/notify.
type Notifier interface {
	Notify(ctx context.Context, subject, message, severity string) error
}

// Engine matches verdicts against configured scenarios and executes actions.
type Engine struct {
	cfg    config.RecoveryConfig
	driver Starter
	notify Notifier
	audit  *audit.Logger
	stats  *Stats

	mu      sync.Mutex
	backoff map[string]*BackoffState
}

// New builds an Engine bound to cfg.
func New(cfg config.RecoveryConfig, driver Starter, notify Notifier, auditLogger *audit.Logger) *Engine {
	return &Engine{
		cfg:     cfg,
		driver:  driver,
		notify:  notify,
		audit:   auditLogger,
		stats:   newStats(),
		backoff: make(map[string]*BackoffState),
	}
}

// Stats exposes the engine's aggregate and per-scenario counters.
func (e *Engine) Stats() *Stats { return e.stats }

// Evaluate picks the action for a verdict given the process's current
// restart_count, enforcing the restart-window gate before the normal
// scenario matcher runs.
func (e *Engine) Evaluate(verdict health.Verdict, restartCount int) Action {
	if e.cfg.MaxRestarts > 0 && restartCount >= e.cfg.MaxRestarts {
		return e.giveUpAction()
	}

	for _, scenario := range e.cfg.Scenarios {
		if matches(scenario.CompiledTrigger, scenario.TriggerArg, verdict) {
			action := actionFromScenario(scenario)
			e.stats.recordAttempt(action.ScenarioName)
			return action
		}
	}

	action := Action{Kind: config.ActionRestart, ScenarioName: "default_restart"}
	e.stats.recordAttempt(action.ScenarioName)
	return action
}

func (e *Engine) giveUpAction() Action {
	switch e.cfg.GiveUpAction {
	case "notify":
		return Action{Kind: config.ActionNotify, ScenarioName: "restart_window_exceeded", NotifyMsg: "restart window exceeded"}
	case "shutdown_all":
		return Action{Kind: config.ActionGiveUp, ScenarioName: "restart_window_exceeded"}
	default:
		return Action{Kind: config.ActionRestart, ScenarioName: "restart_window_exceeded"}
	}
}

func matches(kind config.TriggerKind, arg string, verdict health.Verdict) bool {
	switch kind {
	case config.TriggerConfigValidationFailed:
		return anyFailedLevel(verdict, 3)
	case config.TriggerExitCode:
		return anyFailedLevel(verdict, 1)
	case config.TriggerLogActivityTimeout:
		return anyFailedLevelContains(verdict, 2, "stale")
	case config.TriggerMemoryAbove:
		return anyFailedLevelContains(verdict, 4, "Memory")
	case config.TriggerLogPattern:
		if arg == "" {
			return false
		}
		return strings.Contains(verdict.Message, arg) || regexMatchesAnyMessage(arg, verdict)
	default:
		return false
	}
}

func anyFailedLevel(verdict health.Verdict, level int) bool {
	for _, r := range verdict.LevelResults {
		if r.Level == level && !r.Passed {
			return true
		}
	}
	return false
}

func anyFailedLevelContains(verdict health.Verdict, level int, substr string) bool {
	for _, r := range verdict.LevelResults {
		if r.Level == level && !r.Passed && strings.Contains(r.Message, substr) {
			return true
		}
	}
	return false
}

func regexMatchesAnyMessage(pattern string, verdict health.Verdict) bool {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return false
	}
	if re.MatchString(verdict.Message) {
		return true
	}
	for _, r := range verdict.LevelResults {
		if re.MatchString(r.Message) {
			return true
		}
	}
	return false
}

func actionFromScenario(s *config.RecoveryScenario) Action {
	return Action{
		Kind:         s.CompiledAction,
		ScenarioName: s.Name,
		GracePeriod:  time.Duration(s.GracePeriod) * time.Second,
		MaxBackoff:   time.Duration(s.MaxBackoff) * time.Second,
		BackupPath:   s.BackupPath,
		NotifyMsg:    s.Notify,
	}
}

// Execute runs action against processName, updating backoff state and stats.
func (e *Engine) Execute(ctx context.Context, processName string, action Action, order []string, specs map[string]*config.ProcessSpec) error {
	_, span := obstrace.StartRecoverySpan(ctx, processName, action.ScenarioName)
	defer span.End()

	var err error
	var details string

	switch action.Kind {
	case config.ActionRestart:
		err = e.driver.Restart(ctx, processName, defaultGrace(action.GracePeriod))
		details = "restarted"

	case config.ActionRestartWithDependencies:
		e.driver.StopAll(ctx, reverse(order), defaultGrace(action.GracePeriod))
		err = e.driver.StartAll(ctx, order, specs)
		details = "restarted with dependencies"

	case config.ActionGracefulRestart:
		err = e.driver.Restart(ctx, processName, action.GracePeriod)
		details = "graceful restart"

	case config.ActionExponentialBackoff:
		delay := e.applyBackoff(processName, action.MaxBackoff)
		time.Sleep(delay)
		err = e.driver.Restart(ctx, processName, defaultGrace(action.GracePeriod))
		details = fmt.Sprintf("exponential backoff %s then restart", delay)

	case config.ActionRestoreBackup:
		restoreDetail := "restored backup"
		if restoreErr := backup.RestoreLatest(action.BackupPath); restoreErr != nil {
			if defaultErr := backup.RestoreDefault(action.BackupPath); defaultErr != nil {
				restoreDetail = fmt.Sprintf("%s: no backup or default template for %s", guardianerr.ErrBackupMissing, action.BackupPath)
			} else {
				restoreDetail = "restored default template (no backup generation found)"
			}
		}
		err = e.driver.Restart(ctx, processName, defaultGrace(action.GracePeriod))
		details = restoreDetail + " then restarted"

	case config.ActionLogWarning:
		details = "logged warning, no action taken"

	case config.ActionNotify:
		if e.notify != nil {
			err = e.notify.Notify(ctx, "Guardian recovery", action.NotifyMsg, "warning")
		}
		details = action.NotifyMsg

	case config.ActionGiveUp:
		details = "giving up, max restarts exceeded"

	default:
		err = fmt.Errorf("unknown recovery action for scenario %s", action.ScenarioName)
	}

	success := err == nil && action.Kind != config.ActionNotify && action.Kind != config.ActionGiveUp
	if action.Kind == config.ActionLogWarning {
		// neutral: neither successful nor failed
	} else {
		e.stats.recordOutcome(processName, action.ScenarioName, actionName(action.Kind), success, details)
	}

	e.audit.LogRecoveryAction(processName, action.ScenarioName, actionName(action.Kind), success, details)

	outcome := "success"
	if !success {
		outcome = "failure"
	}
	metrics.RecordRecoveryAction(processName, action.ScenarioName, actionName(action.Kind), outcome)
	metrics.RecordBackoffDelay(processName, e.BackoffDelay(processName).Seconds())

	if err != nil {
		obstrace.RecordError(span, err, details)
		return fmt.Errorf("%w: %w", guardianerr.ErrRecoveryActionFailed, err)
	}
	obstrace.RecordSuccess(span)
	return nil
}

func defaultGrace(g time.Duration) time.Duration {
	if g <= 0 {
		return 30 * time.Second
	}
	return g
}

func reverse(order []string) []string {
	n := len(order)
	out := make([]string, n)
	for i, name := range order {
		out[n-1-i] = name
	}
	return out
}

// applyBackoff doubles the process's current delay (seeding at
// initial_backoff on first use) and returns the delay to sleep. Clamped at
// maxOverride if set, else the engine's global max_backoff.
func (e *Engine) applyBackoff(processName string, maxOverride time.Duration) time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()

	ceiling := maxOverride
	if ceiling <= 0 {
		ceiling = time.Duration(e.cfg.MaxBackoff) * time.Second
	}

	st, ok := e.backoff[processName]
	if !ok {
		st = &BackoffState{CurrentDelay: time.Duration(e.cfg.InitialBackoff) * time.Second}
		e.backoff[processName] = st
	}
	// Each application doubles the delay, including the first.
	st.CurrentDelay *= 2
	if st.CurrentDelay > ceiling {
		st.CurrentDelay = ceiling
	}
	st.AttemptCount++
	st.LastAttempt = time.Now()

	return st.CurrentDelay
}

// ClearBackoff resets a process's backoff state; called when it next
// reports Healthy.
func (e *Engine) ClearBackoff(processName string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.backoff, processName)
}

// BackoffDelay returns the delay most recently applied for a process (zero
// when it has no backoff state), for diagnostics and tests.
func (e *Engine) BackoffDelay(processName string) time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	if st, ok := e.backoff[processName]; ok {
		return st.CurrentDelay
	}
	return 0
}

func actionName(k config.ActionKind) string {
	switch k {
	case config.ActionRestart:
		return "restart"
	case config.ActionRestartWithDependencies:
		return "restart_with_dependencies"
	case config.ActionGracefulRestart:
		return "graceful_restart"
	case config.ActionExponentialBackoff:
		return "exponential_backoff"
	case config.ActionRestoreBackup:
		return "restore_backup"
	case config.ActionLogWarning:
		return "log_warning"
	case config.ActionNotify:
		return "notify"
	case config.ActionGiveUp:
		return "give_up"
	default:
		return "unknown"
	}
}
