package scheduler

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/lbt-build/lbt/internal/model"
)

func TestLinkSchedulerRunProducesArtifact(t *testing.T) {
	dir := t.TempDir()
	obj := filepath.Join(dir, "a.o")
	writeSrc(t, obj, "")

	ls := &LinkScheduler{Toolchain: &fakeToolchain{id: "fake"}}
	target := newResolvedTarget("app", dir, []string{filepath.Join(dir, "a.cpp")}, model.Executable)
	output := filepath.Join(dir, "build", "bin", "app")

	result, err := ls.Run(target, []string{obj}, nil, output)
	if err != nil {
		t.Fatal(err)
	}
	if result.TaskCount != 1 || result.FailedCount != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if _, err := os.Stat(output); err != nil {
		t.Fatalf("expected linked artifact at %s: %v", output, err)
	}
}

func TestLinkSchedulerRunDropsMissingObjects(t *testing.T) {
	dir := t.TempDir()
	present := filepath.Join(dir, "present.o")
	writeSrc(t, present, "")
	missing := filepath.Join(dir, "missing.o")

	ls := &LinkScheduler{Toolchain: &fakeToolchain{id: "fake"}}
	target := newResolvedTarget("app", dir, nil, model.Executable)
	output := filepath.Join(dir, "app")

	if _, err := ls.Run(target, []string{present, missing}, nil, output); err != nil {
		t.Fatal(err)
	}
}

func TestLinkSchedulerRunStaticDepBecomesObject(t *testing.T) {
	dir := t.TempDir()
	libOut := filepath.Join(dir, "libs", "libfoo.a")
	writeSrc(t, libOut, "")

	ls := &LinkScheduler{Toolchain: &fakeToolchain{id: "fake"}}
	target := newResolvedTarget("app", dir, nil, model.Executable)
	output := filepath.Join(dir, "app")

	deps := []LinkArtifact{{Name: "foo", Kind: model.StaticLibrary, OutputPath: libOut}}
	if _, err := ls.Run(target, nil, deps, output); err != nil {
		t.Fatal(err)
	}
}

func TestLinkSchedulerRunMSVCSharedDepUsesImportLib(t *testing.T) {
	dir := t.TempDir()
	implib := filepath.Join(dir, "libs", "foo.lib")
	writeSrc(t, implib, "")

	ls := &LinkScheduler{Toolchain: &fakeToolchain{id: "fake"}, IsMSVC: true}
	target := newResolvedTarget("app", dir, nil, model.Executable)
	output := filepath.Join(dir, "app.exe")

	deps := []LinkArtifact{{Name: "foo", Kind: model.SharedLibrary, OutputPath: filepath.Join(dir, "libs", "foo.dll"), ImportLib: implib}}
	if _, err := ls.Run(target, nil, deps, output); err != nil {
		t.Fatal(err)
	}
}

func TestLinkSchedulerRunNonMSVCSharedDepUsesLinkerFlag(t *testing.T) {
	dir := t.TempDir()
	ls := &LinkScheduler{Toolchain: &fakeToolchain{id: "fake"}}
	target := newResolvedTarget("app", dir, nil, model.Executable)
	output := filepath.Join(dir, "app")

	deps := []LinkArtifact{{Name: "foo", Kind: model.SharedLibrary, OutputPath: filepath.Join(dir, "libs", "libfoo.so")}}
	if _, err := ls.Run(target, nil, deps, output); err != nil {
		t.Fatal(err)
	}
}

func TestLinkSchedulerRunInterfaceOnlyDepContributesNothing(t *testing.T) {
	dir := t.TempDir()
	ls := &LinkScheduler{Toolchain: &fakeToolchain{id: "fake"}}
	target := newResolvedTarget("app", dir, nil, model.Executable)
	output := filepath.Join(dir, "app")

	deps := []LinkArtifact{{Name: "header_lib", Kind: model.InterfaceOnly, OutputPath: filepath.Join(dir, "nope")}}
	if _, err := ls.Run(target, nil, deps, output); err != nil {
		t.Fatal(err)
	}
}

func TestTargetHasCxxDetectsAnyCxxSource(t *testing.T) {
	if targetHasCxx([]string{"a.c", "b.c"}) {
		t.Fatal("expected false for all-C sources")
	}
	if !targetHasCxx([]string{"a.c", "b.cpp"}) {
		t.Fatal("expected true when any source is C++")
	}
}
