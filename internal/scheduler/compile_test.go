package scheduler

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/lbt-build/lbt/internal/cache"
	"github.com/lbt-build/lbt/internal/model"
)

func writeSrc(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestCompileSchedulerRunCompilesAllSources(t *testing.T) {
	dir := t.TempDir()
	writeSrc(t, filepath.Join(dir, "a.cpp"), "int a;")
	writeSrc(t, filepath.Join(dir, "b.cpp"), "int b;")

	store := openTestCache(t, dir)
	cs := &CompileScheduler{
		Toolchain:   &fakeToolchain{id: "fake"},
		ToolchainID: "fake",
		Cache:       store,
		OutputRoot:  filepath.Join(dir, "build", "obj"),
		ObjExt:      "o",
	}
	target := newResolvedTarget("app", dir, []string{
		filepath.Join(dir, "a.cpp"),
		filepath.Join(dir, "b.cpp"),
	}, model.Executable)

	var result Result
	var err error
	withFixedParallelism(2, func() {
		result, err = cs.Run(context.Background(), target)
	})
	if err != nil {
		t.Fatal(err)
	}
	if result.Skipped || result.TaskCount != 2 || result.FailedCount != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}

	objA := model.ObjectPath(cs.OutputRoot, dir, filepath.Join(dir, "a.cpp"), "o")
	if _, err := os.Stat(objA); err != nil {
		t.Fatalf("expected object file %s to exist: %v", objA, err)
	}
}

func TestCompileSchedulerRunSkipsUpToDateSources(t *testing.T) {
	dir := t.TempDir()
	writeSrc(t, filepath.Join(dir, "a.cpp"), "int a;")

	store := openTestCache(t, dir)
	cs := &CompileScheduler{
		Toolchain:   &fakeToolchain{id: "fake"},
		ToolchainID: "fake",
		Cache:       store,
		OutputRoot:  filepath.Join(dir, "build", "obj"),
		ObjExt:      "o",
	}
	target := newResolvedTarget("app", dir, []string{filepath.Join(dir, "a.cpp")}, model.Executable)

	if _, err := cs.Run(context.Background(), target); err != nil {
		t.Fatal(err)
	}

	result, err := cs.Run(context.Background(), target)
	if err != nil {
		t.Fatal(err)
	}
	if !result.Skipped {
		t.Fatalf("expected second run to be fully skipped, got %+v", result)
	}
}

func TestCompileSchedulerRunReportsFailures(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "broken.cpp")
	writeSrc(t, src, "this does not compile")

	store := openTestCache(t, dir)
	cs := &CompileScheduler{
		Toolchain:   &fakeToolchain{id: "fake", failSources: map[string]bool{src: true}},
		ToolchainID: "fake",
		Cache:       store,
		OutputRoot:  filepath.Join(dir, "build", "obj"),
		ObjExt:      "o",
	}
	target := newResolvedTarget("app", dir, []string{src}, model.Executable)

	result, err := cs.Run(context.Background(), target)
	if err != nil {
		t.Fatal(err)
	}
	if result.FailedCount != 1 {
		t.Fatalf("expected 1 failed task, got %+v", result)
	}
}

func TestCompileSchedulerPlanIgnoresNonCSources(t *testing.T) {
	dir := t.TempDir()
	writeSrc(t, filepath.Join(dir, "a.cpp"), "")
	writeSrc(t, filepath.Join(dir, "readme.txt"), "")
	writeSrc(t, filepath.Join(dir, "a.h"), "")

	store := openTestCache(t, dir)
	cs := &CompileScheduler{
		Toolchain:   &fakeToolchain{id: "fake"},
		ToolchainID: "fake",
		Cache:       store,
		OutputRoot:  filepath.Join(dir, "build", "obj"),
		ObjExt:      "o",
	}
	target := newResolvedTarget("app", dir, []string{
		filepath.Join(dir, "a.cpp"),
		filepath.Join(dir, "readme.txt"),
		filepath.Join(dir, "a.h"),
	}, model.Executable)

	tasks, err := cs.plan(target)
	if err != nil {
		t.Fatal(err)
	}
	if len(tasks) != 1 {
		t.Fatalf("plan() = %d tasks, want 1 (only the .cpp source)", len(tasks))
	}
}

func openTestCache(t *testing.T, root string) *cache.Store {
	t.Helper()
	s, err := cache.Open(root)
	if err != nil {
		t.Fatal(err)
	}
	return s
}
