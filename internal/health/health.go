// Package health runs the five independent probes against a managed
// process and aggregates them into a single verdict.
package health

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v4/process"

	"github.com/gophpeek/guardian/internal/backup"
	"github.com/gophpeek/guardian/internal/config"
	"github.com/gophpeek/guardian/internal/metrics"
	"github.com/gophpeek/guardian/internal/obstrace"
)

// StatusKind is the closed set of aggregate verdict outcomes.
type StatusKind int

const (
	StatusUnknown StatusKind = iota
	StatusHealthy
	StatusDegraded
	StatusUnhealthy
)

func (s StatusKind) String() string {
	switch s {
	case StatusHealthy:
		return "healthy"
	case StatusDegraded:
		return "degraded"
	case StatusUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

// LevelResult is the outcome of one probe.
type LevelResult struct {
	Level   int
	Name    string
	Passed  bool
	Message string
}

// Verdict is one process's aggregated health outcome for one tick.
type Verdict struct {
	ProcessName   string
	Status        StatusKind
	Message       string
	LevelResults  []LevelResult
	CheckedAt     time.Time
	CorrelationID string
}

type resourceSample struct {
	memMB   float64
	cpuPct  float64
	sampled time.Time
}

type logPatternState struct {
	seeded     bool
	lastSize   int64
	errorCount int
	lastError  string
}

// State is the per-process, checker-owned history that makes L2/L4/L5
// stateful across ticks.
type State struct {
	mu                   sync.Mutex
	resourceHistory      []resourceSample
	logState             logPatternState
	httpConsecutiveFails int
}

// Checker runs the five probes and owns per-process State.
type Checker struct {
	mu     sync.Mutex
	states map[string]*State
}

// New creates an empty Checker.
func New() *Checker {
	return &Checker{states: make(map[string]*State)}
}

func (c *Checker) stateFor(name string) *State {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.states[name]
	if !ok {
		s = &State{}
		c.states[name] = s
	}
	return s
}

// Reset drops all per-process state, used on Guardian restart.
func (c *Checker) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.states = make(map[string]*State)
}

// Evaluate runs every probe enabled in spec.Health against the named
// process and aggregates the result.
func (c *Checker) Evaluate(ctx context.Context, name string, pid int, hasPid bool, spec *config.HealthSpec) Verdict {
	_, span := obstrace.StartHealthCheckSpan(ctx, name)
	defer span.End()

	start := time.Now()
	st := c.stateFor(name)
	var results []LevelResult

	if spec == nil {
		return aggregate(name, results)
	}

	results = append(results, probeProcessAlive(pid, hasPid))

	if spec.LogFile != "" {
		results = append(results, st.probeLogActivity(spec))
	}

	if spec.ConfigFile != "" {
		results = append(results, probeConfigValidation(spec))
	}

	if spec.MaxMemoryMB > 0 || spec.MaxCPUPercent > 0 {
		results = append(results, st.probeResourceUsage(pid, hasPid, spec))
	}

	if spec.HTTPEndpoint != "" {
		results = append(results, st.probeHTTPEndpoint(spec))
	}

	verdict := aggregate(name, results)
	verdict.CorrelationID = uuid.NewString()

	metrics.HealthCheckDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	for _, r := range results {
		metrics.RecordHealthLevel(name, r.Level, r.Passed)
	}
	metrics.RecordVerdict(name, verdictScore(verdict.Status))

	return verdict
}

func verdictScore(s StatusKind) float64 {
	switch s {
	case StatusHealthy:
		return 1
	case StatusDegraded:
		return 0.5
	case StatusUnhealthy:
		return 0
	default:
		return -1
	}
}

// probeProcessAlive is L1.
func probeProcessAlive(pid int, hasPid bool) LevelResult {
	if !hasPid {
		return LevelResult{Level: 1, Name: "process_alive", Passed: false, Message: "no PID"}
	}
	exists, err := process.PidExists(int32(pid))
	if err != nil || !exists {
		return LevelResult{Level: 1, Name: "process_alive", Passed: false, Message: fmt.Sprintf("pid %d not found", pid)}
	}
	return LevelResult{Level: 1, Name: "process_alive", Passed: true, Message: fmt.Sprintf("pid %d alive", pid)}
}

// probeLogActivity is L2: activity timeout + pattern scanning.
func (s *State) probeLogActivity(spec *config.HealthSpec) LevelResult {
	info, err := os.Stat(spec.LogFile)
	if err != nil {
		return LevelResult{Level: 2, Name: "log_activity", Passed: true, Message: "log file absent, nothing to judge"}
	}

	timeout := time.Duration(spec.LogActivityTimeout) * time.Second
	elapsed := time.Since(info.ModTime())
	active := timeout <= 0 || elapsed < timeout

	var newErrors bool
	var errMsg string

	s.mu.Lock()
	if spec.LogPattern != "" {
		newErrors, errMsg = s.scanLogPattern(spec)
	}
	s.mu.Unlock()

	passed := active && !newErrors

	var msg string
	switch {
	case !active:
		msg = fmt.Sprintf("stale: no log activity for %.0fs (timeout %.0fs)", elapsed.Seconds(), timeout.Seconds())
	case newErrors:
		msg = errMsg
	default:
		msg = "fresh"
	}

	return LevelResult{Level: 2, Name: "log_activity", Passed: passed, Message: msg}
}

// scanLogPattern matches only the bytes appended since the last
// observation, starting at the previous size adjusted forward to a UTF-8
// character boundary. The whole file is read on every call; only the
// appended part is scanned.
func (s *State) scanLogPattern(spec *config.HealthSpec) (bool, string) {
	re, err := regexp.Compile(spec.LogPattern)
	if err != nil {
		return false, ""
	}

	data, err := os.ReadFile(spec.LogFile)
	if err != nil {
		return false, ""
	}
	currentSize := int64(len(data))

	if !s.logState.seeded {
		s.logState.seeded = true
		s.logState.lastSize = currentSize
		return false, ""
	}

	if currentSize <= s.logState.lastSize {
		s.logState.lastSize = currentSize
		return false, ""
	}

	start := advanceToUTF8Boundary(data, s.logState.lastSize)
	chunk := data[start:]
	s.logState.lastSize = currentSize

	found := false
	scanner := bufio.NewScanner(bytes.NewReader(chunk))
	for scanner.Scan() {
		line := scanner.Text()
		if re.MatchString(line) {
			s.logState.errorCount++
			s.logState.lastError = line
			found = true
		}
	}

	if !found {
		return false, ""
	}
	return true, fmt.Sprintf("%d errors found, latest: %s", s.logState.errorCount, s.logState.lastError)
}

func advanceToUTF8Boundary(data []byte, offset int64) int64 {
	n := int64(len(data))
	if offset >= n {
		return n
	}
	for offset < n && data[offset]&0xC0 == 0x80 {
		offset++
	}
	return offset
}

// probeConfigValidation is L3.
func probeConfigValidation(spec *config.HealthSpec) LevelResult {
	data, err := os.ReadFile(spec.ConfigFile)
	if err != nil {
		return LevelResult{Level: 3, Name: "config_validation", Passed: true, Message: "config file absent"}
	}
	if !spec.ValidateJSON {
		return LevelResult{Level: 3, Name: "config_validation", Passed: true, Message: "validation disabled"}
	}

	var js interface{}
	if err := json.Unmarshal(data, &js); err != nil {
		if spec.AutoBackup {
			_ = backup.RestoreLatest(spec.ConfigFile)
		}
		return LevelResult{
			Level: 3, Name: "config_validation", Passed: false,
			Message: fmt.Sprintf("invalid JSON: %v (rollback attempted)", err),
		}
	}

	if spec.AutoBackup {
		_ = backup.Create(spec.ConfigFile)
	}
	return LevelResult{Level: 3, Name: "config_validation", Passed: true, Message: "valid JSON"}
}

// probeResourceUsage is L4.
func (s *State) probeResourceUsage(pid int, hasPid bool, spec *config.HealthSpec) LevelResult {
	if !hasPid {
		return LevelResult{Level: 4, Name: "resource_usage", Passed: true, Message: "no pid to sample"}
	}

	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		return LevelResult{Level: 4, Name: "resource_usage", Passed: true, Message: "process not sampleable"}
	}

	memMB := 0.0
	if memInfo, merr := proc.MemoryInfo(); merr == nil && memInfo != nil {
		memMB = float64(memInfo.RSS) / (1024 * 1024)
	}
	cpuPct := 0.0
	if cpu, cerr := proc.CPUPercent(); cerr == nil {
		cpuPct = cpu
	}

	s.mu.Lock()
	s.resourceHistory = append(s.resourceHistory, resourceSample{memMB: memMB, cpuPct: cpuPct, sampled: time.Now()})
	if len(s.resourceHistory) > 60 {
		s.resourceHistory = s.resourceHistory[len(s.resourceHistory)-60:]
	}
	history := append([]resourceSample(nil), s.resourceHistory...)
	s.mu.Unlock()

	checkInterval := spec.CheckInterval
	if checkInterval <= 0 {
		checkInterval = 1
	}
	window := time.Duration(3*checkInterval) * time.Second

	memSustained := isSustained(history, window, func(r resourceSample) (float64, bool) {
		return r.memMB, spec.MaxMemoryMB > 0 && r.memMB > spec.MaxMemoryMB
	})
	cpuSustained := isSustained(history, window, func(r resourceSample) (float64, bool) {
		return r.cpuPct, spec.MaxCPUPercent > 0 && r.cpuPct > spec.MaxCPUPercent
	})

	critical := (spec.MaxMemoryMB > 0 && memMB > 2*spec.MaxMemoryMB) || cpuPct > 99.0

	passed := !memSustained && !cpuSustained && !critical

	var tags []string
	if memSustained {
		tags = append(tags, "sustained memory")
	}
	if cpuSustained {
		tags = append(tags, "sustained cpu")
	}
	if critical {
		tags = append(tags, "critical")
	}
	tagStr := ""
	if len(tags) > 0 {
		tagStr = " [" + strings.Join(tags, ", ") + "]"
	}

	msg := fmt.Sprintf("Memory %.1f/%.1fMB, CPU %.1f/%.1f%%%s", memMB, spec.MaxMemoryMB, cpuPct, spec.MaxCPUPercent, tagStr)
	return LevelResult{Level: 4, Name: "resource_usage", Passed: passed, Message: msg}
}

func isSustained(history []resourceSample, window time.Duration, exceeds func(resourceSample) (float64, bool)) bool {
	cutoff := time.Now().Add(-window)
	count := 0
	allExceed := true
	for _, r := range history {
		if r.sampled.Before(cutoff) {
			continue
		}
		count++
		if _, over := exceeds(r); !over {
			allExceed = false
		}
	}
	return count >= 2 && allExceed
}

// probeHTTPEndpoint is L5.
func (s *State) probeHTTPEndpoint(spec *config.HealthSpec) LevelResult {
	hostport := strings.TrimPrefix(spec.HTTPEndpoint, "https://")
	hostport = strings.TrimPrefix(hostport, "http://")
	if idx := strings.IndexByte(hostport, '/'); idx >= 0 {
		hostport = hostport[:idx]
	}

	timeout := time.Duration(spec.HTTPTimeout) * time.Second
	if timeout <= 0 {
		timeout = 2 * time.Second
	}

	var lastErr error
	ok := false
	for attempt := 0; attempt < 2; attempt++ {
		conn, err := net.DialTimeout("tcp", hostport, timeout)
		if err == nil {
			_ = conn.Close()
			ok = true
			break
		}
		lastErr = err
		if attempt == 0 {
			time.Sleep(500 * time.Millisecond)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if ok {
		s.httpConsecutiveFails = 0
		return LevelResult{Level: 5, Name: "http_endpoint", Passed: true, Message: fmt.Sprintf("%s reachable", hostport)}
	}

	s.httpConsecutiveFails++
	return LevelResult{
		Level: 5, Name: "http_endpoint", Passed: false,
		Message: fmt.Sprintf("%s unreachable (%d consecutive failures): %v", hostport, s.httpConsecutiveFails, lastErr),
	}
}

// aggregate implements the verdict-aggregation rules of the checker.
func aggregate(name string, results []LevelResult) Verdict {
	now := time.Now()
	if len(results) == 0 {
		return Verdict{ProcessName: name, Status: StatusUnknown, LevelResults: results, CheckedAt: now}
	}

	var failures []LevelResult
	for _, r := range results {
		if !r.Passed {
			failures = append(failures, r)
		}
	}

	if len(failures) == 0 {
		return Verdict{ProcessName: name, Status: StatusHealthy, LevelResults: results, CheckedAt: now}
	}

	for _, f := range failures {
		if f.Level == 1 {
			return Verdict{ProcessName: name, Status: StatusUnhealthy, Message: f.Message, LevelResults: results, CheckedAt: now}
		}
	}

	if len(failures) == 1 {
		return Verdict{ProcessName: name, Status: StatusDegraded, Message: failures[0].Message, LevelResults: results, CheckedAt: now}
	}

	msgs := make([]string, len(failures))
	for i, f := range failures {
		msgs[i] = f.Message
	}
	return Verdict{ProcessName: name, Status: StatusUnhealthy, Message: strings.Join(msgs, "; "), LevelResults: results, CheckedAt: now}
}
