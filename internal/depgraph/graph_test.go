package depgraph

import (
	"strings"
	"testing"
)

func TestValidateAcceptsAcyclicGraph(t *testing.T) {
	g := New(map[string][]string{
		"openclaw":   {},
		"oc-memory":  {"openclaw"},
		"supervisor": {"oc-memory", "openclaw"},
	})
	if err := g.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestValidateRejectsCycle(t *testing.T) {
	g := New(map[string][]string{
		"a": {"b"},
		"b": {"a"},
	})
	err := g.Validate()
	if err == nil {
		t.Fatal("expected cyclic dependency error")
	}
	if !strings.Contains(err.Error(), "Cyclic dependency") {
		t.Errorf("expected error to contain %q, got %q", "Cyclic dependency", err.Error())
	}
}

func TestValidateRejectsUnknownDependency(t *testing.T) {
	g := New(map[string][]string{
		"a": {"missing"},
	})
	if err := g.Validate(); err == nil {
		t.Fatal("expected unknown dependency error")
	}
}

func TestValidateRejectsSelfDependency(t *testing.T) {
	g := New(map[string][]string{
		"a": {"a"},
	})
	if err := g.Validate(); err == nil {
		t.Fatal("expected self dependency error")
	}
}

func TestTopologicalSortOrdersDependenciesFirst(t *testing.T) {
	g := New(map[string][]string{
		"openclaw":  {},
		"oc-memory": {"openclaw"},
	})
	order, err := g.TopologicalSort()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	pos := make(map[string]int, len(order))
	for i, name := range order {
		pos[name] = i
	}
	if pos["openclaw"] >= pos["oc-memory"] {
		t.Fatalf("expected openclaw before oc-memory, got order %v", order)
	}
}

func TestTopologicalSortWithNoDependenciesReturnsEveryName(t *testing.T) {
	g := New(map[string][]string{
		"a": {}, "b": {}, "c": {},
	})
	order, err := g.TopologicalSort()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(order) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(order))
	}
	seen := map[string]bool{}
	for _, n := range order {
		if seen[n] {
			t.Fatalf("duplicate entry %s in order", n)
		}
		seen[n] = true
	}
}

func TestTopologicalSortDeepChain(t *testing.T) {
	g := New(map[string][]string{
		"a": {"b"},
		"b": {"c"},
		"c": {"d"},
		"d": {},
	})
	order, err := g.TopologicalSort()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	pos := make(map[string]int, len(order))
	for i, name := range order {
		pos[name] = i
	}
	for _, pair := range [][2]string{{"d", "c"}, {"c", "b"}, {"b", "a"}} {
		if pos[pair[0]] >= pos[pair[1]] {
			t.Fatalf("expected %s before %s, got order %v", pair[0], pair[1], order)
		}
	}
}

func TestStopOrderReversesStartOrder(t *testing.T) {
	start := []string{"a", "b", "c"}
	stop := StopOrder(start)
	want := []string{"c", "b", "a"}
	for i := range want {
		if stop[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, stop)
		}
	}
}
