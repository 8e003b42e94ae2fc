package driver

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/lbt-build/lbt/internal/graph"
	"github.com/lbt-build/lbt/internal/model"
)

func touchFile(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestFindRootWalksUpwardToMarker(t *testing.T) {
	root := t.TempDir()
	touchFile(t, filepath.Join(root, ProjectMarker))

	nested := filepath.Join(root, "src", "sub")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}

	found, err := FindRoot(nested)
	if err != nil {
		t.Fatal(err)
	}
	wantAbs, _ := filepath.Abs(root)
	if found != wantAbs {
		t.Fatalf("FindRoot() = %q, want %q", found, wantAbs)
	}
}

func TestFindRootErrorsWhenNoMarkerExists(t *testing.T) {
	dir := t.TempDir()
	if _, err := FindRoot(dir); err == nil {
		t.Fatal("expected an error when no project marker is found up to the filesystem root")
	}
}

func TestCleanRemovesBuildAndCacheDirs(t *testing.T) {
	root := t.TempDir()
	touchFile(t, filepath.Join(root, "build", "debug", "bin", "app"))
	touchFile(t, filepath.Join(root, ".lbt", "cache.json"))

	if err := Clean(root); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(root, "build")); !os.IsNotExist(err) {
		t.Fatalf("expected build/ to be removed, stat err = %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, ".lbt")); !os.IsNotExist(err) {
		t.Fatalf("expected .lbt/ to be removed, stat err = %v", err)
	}
}

func TestMergeDefinesLocalOverridesGlobal(t *testing.T) {
	global := map[string]string{"A": "1", "B": "2"}
	local := map[string]string{"B": "3", "C": "4"}
	got := mergeDefines(global, local)

	want := map[string]string{"A": "1", "B": "3", "C": "4"}
	if len(got) != len(want) {
		t.Fatalf("mergeDefines() = %v, want %v", got, want)
	}
	for k, v := range want {
		if got[k] != v {
			t.Fatalf("mergeDefines()[%q] = %q, want %q", k, got[k], v)
		}
	}
}

func TestResolveTargetGathersEffectiveSettings(t *testing.T) {
	libDir := t.TempDir()
	appDir := t.TempDir()
	touchFile(t, filepath.Join(appDir, "main.cpp"))

	m := model.New()
	if err := m.SetLanguages("c11", "c++17"); err != nil {
		t.Fatal(err)
	}
	lib, err := m.NewTarget("lib", model.StaticLibrary, libDir)
	if err != nil {
		t.Fatal(err)
	}
	lib.AddExportedIncludeDir("include")

	app, err := m.NewTarget("app", model.Executable, appDir)
	if err != nil {
		t.Fatal(err)
	}
	app.AddSources("main.cpp")
	app.AddDeps("lib")
	app.AddDefines(map[string]string{"LOCAL": "1"})
	if err := m.AddDefines(map[string]string{"GLOBAL": "1"}); err != nil {
		t.Fatal(err)
	}

	g, err := graph.New(m)
	if err != nil {
		t.Fatal(err)
	}

	resolved, err := resolveTarget(m, g, app, Options{Configuration: model.Release})
	if err != nil {
		t.Fatal(err)
	}

	if resolved.Name != "app" || resolved.Kind != model.Executable {
		t.Fatalf("unexpected resolved target: %+v", resolved)
	}
	if len(resolved.Sources) != 1 {
		t.Fatalf("expected 1 resolved source, got %v", resolved.Sources)
	}
	if resolved.Defines["GLOBAL"] != "1" || resolved.Defines["LOCAL"] != "1" {
		t.Fatalf("expected merged defines, got %v", resolved.Defines)
	}
	if len(resolved.Deps) != 1 || resolved.Deps[0] != "lib" {
		t.Fatalf("expected graph-derived dep [lib], got %v", resolved.Deps)
	}

	wantExported := filepath.Clean(filepath.Join(libDir, "include"))
	found := false
	for _, d := range resolved.IncludeDirs {
		if d == wantExported {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected dependency's exported include dir in %v", resolved.IncludeDirs)
	}
}
