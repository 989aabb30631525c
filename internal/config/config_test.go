package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "guardian.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
[processes.web]
command = "/usr/bin/web"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Recovery.MaxRestarts != 5 {
		t.Errorf("expected default max_restarts=5, got %d", cfg.Recovery.MaxRestarts)
	}
	if cfg.Advanced.SupervisorInterval != 5 {
		t.Errorf("expected default supervisor_interval=5, got %d", cfg.Advanced.SupervisorInterval)
	}
	if cfg.Processes["web"].Name != "web" {
		t.Errorf("expected process name to be populated from map key")
	}
}

func TestLoadRejectsCyclicDependency(t *testing.T) {
	path := writeConfig(t, `
[processes.a]
command = "/bin/a"
depends_on = ["b"]

[processes.b]
command = "/bin/b"
depends_on = ["a"]
`)
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected cyclic dependency error")
	}
	if !strings.Contains(err.Error(), "Cyclic dependency") {
		t.Errorf("expected error to contain %q, got %q", "Cyclic dependency", err.Error())
	}
}

func TestLoadOrdersDependenciesFirst(t *testing.T) {
	path := writeConfig(t, `
[processes.openclaw]
command = "/bin/openclaw"

[processes.oc-memory]
command = "/bin/oc-memory"
depends_on = ["openclaw"]
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	order, err := cfg.StartOrder()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	pos := map[string]int{}
	for i, n := range order {
		pos[n] = i
	}
	if pos["openclaw"] >= pos["oc-memory"] {
		t.Fatalf("expected openclaw before oc-memory, got %v", order)
	}
}

func TestCompileReadySpecVariants(t *testing.T) {
	cases := []struct {
		raw  *rawReadySpec
		kind ReadyKind
	}{
		{nil, ReadyTime},
		{&rawReadySpec{Kind: "time", Secs: 3}, ReadyTime},
		{&rawReadySpec{Kind: "log_pattern", Regex: "ready"}, ReadyLogPattern},
		{&rawReadySpec{Kind: "tcp_port", Port: 8080}, ReadyTCPPort},
	}
	for _, c := range cases {
		got, err := compileReadySpec(c.raw)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.Kind != c.kind {
			t.Errorf("expected kind %v, got %v", c.kind, got.Kind)
		}
	}
}

func TestCompileTriggerVariants(t *testing.T) {
	cases := []struct {
		trigger string
		kind    TriggerKind
		arg     string
	}{
		{"config_validation_failed", TriggerConfigValidationFailed, ""},
		{"exit_code != 0", TriggerExitCode, ""},
		{"log_activity_timeout", TriggerLogActivityTimeout, ""},
		{"memory > 512", TriggerMemoryAbove, "512"},
		{"restart_count > 3", TriggerRestartCountAbove, "3"},
		{"log_pattern('ERROR|FATAL')", TriggerLogPattern, "ERROR|FATAL"},
		{"unrecognized", TriggerUnknown, ""},
	}
	for _, c := range cases {
		kind, arg := compileTrigger(c.trigger)
		if kind != c.kind {
			t.Errorf("trigger %q: expected kind %v, got %v", c.trigger, c.kind, kind)
		}
		if arg != c.arg {
			t.Errorf("trigger %q: expected arg %q, got %q", c.trigger, c.arg, arg)
		}
	}
}

func TestExpandTildeAgainstHome(t *testing.T) {
	t.Setenv("HOME", "/home/guardian")
	if got := expandTilde("~/logs/app.log"); got != "/home/guardian/logs/app.log" {
		t.Errorf("unexpected expansion: %s", got)
	}
	if got := expandTilde("/already/absolute"); got != "/already/absolute" {
		t.Errorf("expected no change for absolute path, got %s", got)
	}
}
