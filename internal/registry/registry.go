// Package registry owns the mutable per-process records that every other
// Guardian component reads and transitions. It never decides policy; it
// atomically transitions state and exposes read-snapshots.
package registry

import (
	"fmt"
	"sync"
	"time"

	"github.com/gophpeek/guardian/internal/config"
)

// State is the per-process lifecycle state.
type State string

const (
	Stopped  State = "stopped"
	Starting State = "starting"
	Running  State = "running"
	Stopping State = "stopping"
	Failed   State = "failed"
)

// Record is the mutable record Guardian maintains for one managed process.
// All mutation goes through the exclusive lock embedded here so that
// concurrent probes and recovery actions observe a consistent snapshot.
type Record struct {
	mu sync.Mutex

	Spec             *config.ProcessSpec
	state            State
	pid              int
	hasPid           bool
	startedAt        time.Time
	restartCount     int
	lastExitCode     int
	hasLastExitCode  bool
	restartTimestamps []time.Time
}

// Snapshot is an immutable read view of a Record at one instant.
type Snapshot struct {
	Name             string
	Spec             *config.ProcessSpec
	State            State
	PID              int
	HasPID           bool
	StartedAt        time.Time
	RestartCount     int
	LastExitCode     int
	HasLastExitCode  bool
	RestartTimestamps []time.Time
}

// Registry holds the map name -> Record for every configured process.
type Registry struct {
	mu      sync.RWMutex
	records map[string]*Record
}

// New builds a Registry with one Stopped Record per ProcessSpec.
func New(specs map[string]*config.ProcessSpec) *Registry {
	records := make(map[string]*Record, len(specs))
	for name, spec := range specs {
		records[name] = &Record{Spec: spec, state: Stopped}
	}
	return &Registry{records: records}
}

func (r *Registry) get(name string) (*Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[name]
	if !ok {
		return nil, fmt.Errorf("unknown process %q", name)
	}
	return rec, nil
}

// Names returns every registered process name.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.records))
	for name := range r.records {
		names = append(names, name)
	}
	return names
}

// Snapshot returns a consistent point-in-time copy of one process's record.
func (r *Registry) Snapshot(name string) (Snapshot, error) {
	rec, err := r.get(name)
	if err != nil {
		return Snapshot{}, err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.snapshotLocked(name), nil
}

func (rec *Record) snapshotLocked(name string) Snapshot {
	timestamps := make([]time.Time, len(rec.restartTimestamps))
	copy(timestamps, rec.restartTimestamps)
	return Snapshot{
		Name:              name,
		Spec:              rec.Spec,
		State:             rec.state,
		PID:               rec.pid,
		HasPID:            rec.hasPid,
		StartedAt:         rec.startedAt,
		RestartCount:      rec.restartCount,
		LastExitCode:      rec.lastExitCode,
		HasLastExitCode:   rec.hasLastExitCode,
		RestartTimestamps: timestamps,
	}
}

// SnapshotAll returns a snapshot of every record.
func (r *Registry) SnapshotAll() []Snapshot {
	r.mu.RLock()
	names := make([]string, 0, len(r.records))
	recs := make([]*Record, 0, len(r.records))
	for name, rec := range r.records {
		names = append(names, name)
		recs = append(recs, rec)
	}
	r.mu.RUnlock()

	out := make([]Snapshot, len(recs))
	for i, rec := range recs {
		rec.mu.Lock()
		out[i] = rec.snapshotLocked(names[i])
		rec.mu.Unlock()
	}
	return out
}

// Mutate runs fn while holding the named record's exclusive lock, enforcing
// the invariant: Running implies a pid is set; Stopped/Failed implies no pid.
func (r *Registry) Mutate(name string, fn func(rec *Record)) error {
	rec, err := r.get(name)
	if err != nil {
		return err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	fn(rec)
	return rec.checkInvariants()
}

func (rec *Record) checkInvariants() error {
	if rec.state == Running && !rec.hasPid {
		return fmt.Errorf("invariant violated: process in Running state without a pid")
	}
	if (rec.state == Stopped || rec.state == Failed) && rec.hasPid {
		return fmt.Errorf("invariant violated: process in %s state with a pid set", rec.state)
	}
	if rec.restartCount != len(rec.restartTimestamps) {
		return fmt.Errorf("invariant violated: restart_count=%d but %d timestamps recorded", rec.restartCount, len(rec.restartTimestamps))
	}
	return nil
}

// SetState transitions the record to a new state.
func (rec *Record) SetState(s State) { rec.state = s }

// State returns the current state.
func (rec *Record) State() State { return rec.state }

// SetPID records the child's pid and marks it present.
func (rec *Record) SetPID(pid int) {
	rec.pid = pid
	rec.hasPid = true
}

// ClearPID clears the pid.
func (rec *Record) ClearPID() {
	rec.pid = 0
	rec.hasPid = false
}

// PID returns the current pid and whether one is set.
func (rec *Record) PID() (int, bool) { return rec.pid, rec.hasPid }

// SetStartedAt records the process start time.
func (rec *Record) SetStartedAt(t time.Time) { rec.startedAt = t }

// RecordRestart appends a restart timestamp and increments restart_count.
func (rec *Record) RecordRestart(t time.Time) {
	rec.restartTimestamps = append(rec.restartTimestamps, t)
	rec.restartCount = len(rec.restartTimestamps)
}

// RestartCount returns the number of restarts observed so far.
func (rec *Record) RestartCount() int { return rec.restartCount }

// SetLastExitCode records the last observed exit code.
func (rec *Record) SetLastExitCode(code int) {
	rec.lastExitCode = code
	rec.hasLastExitCode = true
}
