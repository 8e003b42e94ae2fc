package scripthost

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lbt-build/lbt/internal/model"
)

func TestEvaluateReaderAppliesProjectAndTarget(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "src"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "src", "main.cpp"), nil, 0o644); err != nil {
		t.Fatal(err)
	}

	doc := `
[project]
name = "myapp"
version = "1.0.0"
c_standard = "c11"
cxx_standard = "c++20"
defines = { GLOBAL = "1" }

[[target]]
name = "app"
kind = "executable"
base_dir = "."
sources = ["src/main.cpp"]
include_dirs = ["src"]
cflags = ["-Wall"]
sys_links = ["pthread"]
`
	h := &Host{}
	m := model.New()
	if err := h.evaluateReader(strings.NewReader(doc), root, m); err != nil {
		t.Fatal(err)
	}

	if m.Settings().CStandard != "c11" || m.Settings().CxxStandard != "c++20" {
		t.Fatalf("unexpected settings: %+v", m.Settings())
	}

	target, ok := m.Target("app")
	if !ok {
		t.Fatal("expected target \"app\" to be created")
	}
	if target.Kind() != model.Executable {
		t.Fatalf("target kind = %v, want Executable", target.Kind())
	}
	sources := target.ResolveSources()
	if len(sources) != 1 {
		t.Fatalf("expected 1 resolved source, got %v", sources)
	}
	syslinks := target.SysLinks()
	if len(syslinks) != 1 || syslinks[0] != "pthread" {
		t.Fatalf("expected sys_links [pthread], got %v", syslinks)
	}
}

func TestEvaluateReaderSkipsTargetWhenConditionFalse(t *testing.T) {
	root := t.TempDir()
	doc := `
[project]
name = "myapp"

[[target]]
name = "windows_only"
kind = "executable"
when = "target_os == \"plan9_never_exists\""
sources = []
`
	h := &Host{}
	m := model.New()
	if err := h.evaluateReader(strings.NewReader(doc), root, m); err != nil {
		t.Fatal(err)
	}
	if _, ok := m.Target("windows_only"); ok {
		t.Fatal("expected target with a false \"when\" condition to be skipped")
	}
}

func TestEvaluateReaderAppliesTargetWhenConditionTrue(t *testing.T) {
	root := t.TempDir()
	doc := `
[project]
name = "myapp"

[[target]]
name = "always"
kind = "executable"
when = "1 == 1"
sources = []
`
	h := &Host{}
	m := model.New()
	if err := h.evaluateReader(strings.NewReader(doc), root, m); err != nil {
		t.Fatal(err)
	}
	if _, ok := m.Target("always"); !ok {
		t.Fatal("expected target with a true \"when\" condition to be created")
	}
}

func TestEvaluateReaderInterpolatesArchExpression(t *testing.T) {
	root := t.TempDir()
	doc := `
[project]
name = "myapp"
arch = "{{ target_arch }}"
`
	h := &Host{}
	m := model.New()
	if err := h.evaluateReader(strings.NewReader(doc), root, m); err != nil {
		t.Fatal(err)
	}
	if m.Settings().Arch == "" {
		t.Fatal("expected interpolated arch setting to be non-empty")
	}
}

func TestEvaluateReaderRejectsUnknownKind(t *testing.T) {
	root := t.TempDir()
	doc := `
[project]
name = "myapp"

[[target]]
name = "bad"
kind = "bogus_kind"
sources = []
`
	h := &Host{}
	m := model.New()
	if err := h.evaluateReader(strings.NewReader(doc), root, m); err == nil {
		t.Fatal("expected an error for an unknown target kind")
	}
}

func TestEvaluateOpensDefaultProjectFile(t *testing.T) {
	root := t.TempDir()
	doc := "[project]\nname = \"myapp\"\n"
	if err := os.WriteFile(filepath.Join(root, "lbt.toml"), []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	h := &Host{}
	m := model.New()
	if err := h.Evaluate(root, m); err != nil {
		t.Fatal(err)
	}
	if m.Settings().Project != "myapp" {
		t.Fatalf("Settings().Project = %q, want myapp", m.Settings().Project)
	}
}
