package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/gophpeek/guardian/internal/depgraph"
	"github.com/gophpeek/guardian/internal/guardianerr"
)

// Load reads the TOML configuration at path (defaulting to guardian.toml),
// expands ~/ paths, applies environment overrides, compiles the trigger and
// ready-spec DSLs, sets defaults, and validates the result.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("GUARDIAN_CONFIG")
	}
	if path == "" {
		path = "guardian.toml"
	}

	cfg := &Config{Processes: make(map[string]*ProcessSpec)}

	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to stat config %s: %w", path, err)
	}

	if cfg.Processes == nil {
		cfg.Processes = make(map[string]*ProcessSpec)
	}
	for name, p := range cfg.Processes {
		p.Name = name
	}

	applyEnvOverrides(cfg)
	expandTildes(cfg)

	if err := compile(cfg); err != nil {
		return nil, err
	}

	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w: %w", guardianerr.ErrConfigInvalid, err)
	}

	return cfg, nil
}

// compile parses every ready-spec and recovery trigger/action string into
// its tagged-union form once, at load time.
func compile(cfg *Config) error {
	for name, p := range cfg.Processes {
		ready, err := compileReadySpec(p.Ready)
		if err != nil {
			return fmt.Errorf("process %q: %w", name, err)
		}
		p.ReadySpec = ready
	}

	for _, s := range cfg.Recovery.Scenarios {
		kind, arg := compileTrigger(s.Trigger)
		s.CompiledTrigger = kind
		s.TriggerArg = arg

		action, err := compileAction(s.Action)
		if err != nil {
			return fmt.Errorf("scenario %q: %w", s.Name, err)
		}
		s.CompiledAction = action
	}

	return nil
}

// SetDefaults fills zero-valued knobs with their documented defaults.
func (c *Config) SetDefaults() {
	if c.Recovery.MaxRestarts == 0 {
		c.Recovery.MaxRestarts = 5
	}
	if c.Recovery.RestartWindow == 0 {
		c.Recovery.RestartWindow = 300
	}
	if c.Recovery.InitialBackoff == 0 {
		c.Recovery.InitialBackoff = 1
	}
	if c.Recovery.MaxBackoff == 0 {
		c.Recovery.MaxBackoff = 60
	}
	if c.Recovery.GiveUpAction == "" {
		c.Recovery.GiveUpAction = "keep_trying"
	}

	if c.Advanced.SupervisorInterval == 0 {
		c.Advanced.SupervisorInterval = 5
	}
	if c.Advanced.ShutdownGracePeriod == 0 {
		c.Advanced.ShutdownGracePeriod = 60
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}

	if c.Memory.Compression.Command == "" {
		c.Memory.Compression.Command = "zstd"
	}

	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = "guardian"
	}
	if c.Tracing.Exporter == "" {
		c.Tracing.Exporter = "stdout"
	}
	if c.Tracing.SampleRate == 0 {
		c.Tracing.SampleRate = 1.0
	}

	if c.Metrics.Port == 0 {
		c.Metrics.Port = 9090
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}

	for _, p := range c.Processes {
		if p.RestartDelay == 0 {
			p.RestartDelay = 1
		}
		if p.Health != nil && p.Health.CheckInterval == 0 {
			p.Health.CheckInterval = c.Advanced.SupervisorInterval
		}
	}
}

// applyEnvOverrides applies GUARDIAN_<SECTION>_<KEY> overrides, following the
// pattern PHPEEK_PM_* used by the process this repo evolved from.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("GUARDIAN_RECOVERY_MAX_RESTARTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Recovery.MaxRestarts = n
		}
	}
	if v := os.Getenv("GUARDIAN_RECOVERY_MAX_BACKOFF"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Recovery.MaxBackoff = n
		}
	}
	if v := os.Getenv("GUARDIAN_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("GUARDIAN_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("GUARDIAN_ADVANCED_SUPERVISOR_INTERVAL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Advanced.SupervisorInterval = n
		}
	}

	for name, p := range cfg.Processes {
		prefix := "GUARDIAN_PROCESS_" + strings.ToUpper(strings.ReplaceAll(name, "-", "_")) + "_"
		if v := os.Getenv(prefix + "AUTO_RESTART"); v != "" {
			p.AutoRestart = v == "true"
		}
		if v := os.Getenv(prefix + "RESTART_DELAY"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				p.RestartDelay = n
			}
		}
	}
}

// expandTildes expands a leading ~/ in every configured filesystem path
// against the invoking user's home directory.
func expandTildes(cfg *Config) {
	for _, p := range cfg.Processes {
		p.WorkingDir = expandTilde(p.WorkingDir)
		if p.Health != nil {
			p.Health.LogFile = expandTilde(p.Health.LogFile)
			p.Health.ConfigFile = expandTilde(p.Health.ConfigFile)
		}
	}
	for _, s := range cfg.Recovery.Scenarios {
		s.BackupPath = expandTilde(s.BackupPath)
	}
}

func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home := os.Getenv("HOME")
	if home == "" && runtime.GOOS == "windows" {
		home = os.Getenv("USERPROFILE")
	}
	if home == "" {
		return path
	}
	return home + path[1:]
}

// Validate checks structural invariants that must hold before the
// supervisor loop ever runs.
func (c *Config) Validate() error {
	if len(c.Processes) == 0 {
		return fmt.Errorf("no processes defined")
	}

	dependsOn := make(map[string][]string, len(c.Processes))
	for name, p := range c.Processes {
		if p.Command == "" {
			return fmt.Errorf("process %q has no command", name)
		}
		if p.RestartDelay < 0 {
			return fmt.Errorf("process %q has negative restart_delay", name)
		}
		for _, dep := range p.DependsOn {
			if _, ok := c.Processes[dep]; !ok {
				return fmt.Errorf("process %q depends on unknown process %q", name, dep)
			}
		}
		dependsOn[name] = p.DependsOn
	}

	if err := depgraph.New(dependsOn).Validate(); err != nil {
		return err
	}

	switch c.Recovery.GiveUpAction {
	case "", "notify", "shutdown_all", "keep_trying":
	default:
		return fmt.Errorf("invalid give_up_action %q", c.Recovery.GiveUpAction)
	}

	if c.Logging.Format != "" && c.Logging.Format != "json" && c.Logging.Format != "text" {
		return fmt.Errorf("invalid logging format %q", c.Logging.Format)
	}

	return nil
}

// StartOrder returns the topological start order of the configured
// processes; its reverse is the stop order.
func (c *Config) StartOrder() ([]string, error) {
	dependsOn := make(map[string][]string, len(c.Processes))
	for name, p := range c.Processes {
		dependsOn[name] = p.DependsOn
	}
	return depgraph.New(dependsOn).TopologicalSort()
}
