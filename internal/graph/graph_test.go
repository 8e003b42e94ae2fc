package graph

import (
	"testing"

	"github.com/lbt-build/lbt/internal/model"
)

func newTestModel(t *testing.T, edges map[string][]string) *model.Model {
	t.Helper()
	m := model.New()
	for name := range edges {
		if _, err := m.NewTarget(name, model.StaticLibrary, t.TempDir()); err != nil {
			t.Fatal(err)
		}
	}
	for name, deps := range edges {
		target, _ := m.Target(name)
		target.AddDeps(deps...)
	}
	return m
}

func TestTopologicalOrderRespectsEdges(t *testing.T) {
	// c depends on b depends on a: a must precede b must precede c.
	m := newTestModel(t, map[string][]string{
		"a": nil,
		"b": {"a"},
		"c": {"b"},
	})
	g, err := New(m)
	if err != nil {
		t.Fatal(err)
	}

	order, err := g.TopologicalOrder()
	if err != nil {
		t.Fatal(err)
	}

	pos := make(map[string]int, len(order))
	for i, name := range order {
		pos[name] = i
	}
	if pos["a"] > pos["b"] || pos["b"] > pos["c"] {
		t.Fatalf("topological order violated: %v", order)
	}
}

func TestTopologicalOrderTiesBreakByInsertionOrder(t *testing.T) {
	m := model.New()
	// insertion order: z, y, x -- none depend on each other.
	for _, name := range []string{"z", "y", "x"} {
		if _, err := m.NewTarget(name, model.StaticLibrary, t.TempDir()); err != nil {
			t.Fatal(err)
		}
	}
	g, err := New(m)
	if err != nil {
		t.Fatal(err)
	}
	order, err := g.TopologicalOrder()
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"z", "y", "x"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("TopologicalOrder() = %v, want %v", order, want)
		}
	}
}

func TestDetectCycle(t *testing.T) {
	m := newTestModel(t, map[string][]string{
		"a": {"b"},
		"b": {"c"},
		"c": {"a"},
	})
	g, err := New(m)
	if err != nil {
		t.Fatal(err)
	}

	cycle, found := g.DetectCycle()
	if !found {
		t.Fatal("expected a cycle to be detected")
	}
	if len(cycle) < 2 || cycle[0] != cycle[len(cycle)-1] {
		t.Fatalf("expected cycle path to close on itself, got %v", cycle)
	}

	if _, err := g.TopologicalOrder(); err == nil {
		t.Fatal("expected TopologicalOrder to fail on a cyclic graph")
	}
}

func TestExternalLibsAreNotGraphEdges(t *testing.T) {
	m := model.New()
	target, err := m.NewTarget("app", model.Executable, t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	target.AddLinks("pthread", "m")

	g, err := New(m)
	if err != nil {
		t.Fatal(err)
	}
	node, ok := g.Node("app")
	if !ok {
		t.Fatal("expected node for app")
	}
	if len(node.Edges) != 0 {
		t.Fatalf("expected no graph edges for unresolved link names, got %v", node.Edges)
	}
	if len(node.ExternalLibs) != 2 {
		t.Fatalf("expected 2 external libs, got %v", node.ExternalLibs)
	}
}

func TestSelfDependencyIgnored(t *testing.T) {
	m := model.New()
	target, err := m.NewTarget("app", model.Executable, t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	target.AddDeps("app")

	g, err := New(m)
	if err != nil {
		t.Fatal(err)
	}
	node, _ := g.Node("app")
	if len(node.Edges) != 0 {
		t.Fatalf("expected self-dependency to be ignored, got edges %v", node.Edges)
	}
	if _, found := g.DetectCycle(); found {
		t.Fatal("self-dependency should not be reported as a cycle")
	}
}
