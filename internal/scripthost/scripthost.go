// Package scripthost is a minimal reference implementation of
// driver.ScriptHost: it parses an lbt.toml project file and calls the Build
// Model's callback surface to populate it. A real scripting host -- one
// that embeds a general-purpose language and evaluates an actual build
// script file -- is out of scope for this core; this package exists so the
// rest of the repository (and its own tests) has something concrete to
// drive model.Model through.
//
// The TOML-plus-{{ expr }}-interpolation shape follows builder.Config/
// ConfigEnv: conditional table keys and string interpolation are both
// evaluated with github.com/expr-lang/expr against an environment
// exposing target_os/target_arch/environ.
package scripthost

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"runtime"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/pelletier/go-toml/v2"

	"github.com/lbt-build/lbt/internal/model"
)

// Env is the expression environment exposed to {{ ... }} interpolations
// and target "when" conditions.
type Env struct {
	TargetOS   string            `expr:"target_os"`
	TargetArch string            `expr:"target_arch"`
	Environ    map[string]string `expr:"environ"`
}

// NewEnv builds an Env from the current host process.
func NewEnv() Env {
	environ := make(map[string]string)
	for _, e := range os.Environ() {
		if i := strings.IndexByte(e, '='); i >= 0 {
			environ[e[:i]] = e[i+1:]
		}
	}
	return Env{TargetOS: runtime.GOOS, TargetArch: runtime.GOARCH, Environ: environ}
}

type projectSection struct {
	Name                 string            `toml:"name"`
	Version              string            `toml:"version"`
	CStandard            string            `toml:"c_standard"`
	CxxStandard          string            `toml:"cxx_standard"`
	Arch                 string            `toml:"arch"`
	Platform             string            `toml:"platform"`
	ToolchainPreference  string            `toml:"toolchain"`
	Configuration        string            `toml:"configuration"`
	Defines              map[string]string `toml:"defines"`
}

type targetSection struct {
	Name                 string            `toml:"name"`
	Kind                 string            `toml:"kind"`
	BaseDir              string            `toml:"base_dir"`
	When                 string            `toml:"when"`
	Sources              []string          `toml:"sources"`
	IncludeDirs          []string          `toml:"include_dirs"`
	ExportedIncludeDirs  []string          `toml:"exported_include_dirs"`
	Defines              map[string]string `toml:"defines"`
	Cflags               []string          `toml:"cflags"`
	Ldflags              []string          `toml:"ldflags"`
	Deps                 []string          `toml:"deps"`
	Links                []string          `toml:"links"`
	SysLinks             []string          `toml:"sys_links"`
	LibDirs              []string          `toml:"lib_dirs"`
	Pch                  string            `toml:"pch"`
}

type document struct {
	Project projectSection  `toml:"project"`
	Targets []targetSection `toml:"target"`
}

// Host is the reference driver.ScriptHost implementation.
type Host struct {
	// ProjectFile overrides the filename looked up relative to root;
	// defaults to "lbt.toml" to match driver.ProjectMarker.
	ProjectFile string
}

// Evaluate implements driver.ScriptHost.
func (h *Host) Evaluate(root string, m *model.Model) error {
	name := h.ProjectFile
	if name == "" {
		name = "lbt.toml"
	}

	f, err := os.Open(root + string(os.PathSeparator) + name)
	if err != nil {
		return fmt.Errorf("scripthost: %w", err)
	}
	defer f.Close()

	return h.evaluateReader(f, root, m)
}

func (h *Host) evaluateReader(r io.Reader, root string, m *model.Model) error {
	var doc document
	dec := toml.NewDecoder(r)
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("scripthost: parse lbt.toml: %w", err)
	}

	env := NewEnv()

	if err := applyProject(doc.Project, m, env); err != nil {
		return err
	}

	for _, ts := range doc.Targets {
		if ts.When != "" {
			matched, err := evalBool(ts.When, env)
			if err != nil {
				return fmt.Errorf("scripthost: target %q: %w", ts.Name, err)
			}
			if !matched {
				continue
			}
		}
		if err := applyTarget(ts, root, m, env); err != nil {
			return err
		}
	}

	return nil
}

func applyProject(p projectSection, m *model.Model, env Env) error {
	if p.Name != "" {
		if err := m.SetProject(p.Name); err != nil {
			return err
		}
	}
	if p.Version != "" {
		if err := m.SetVersion(p.Version); err != nil {
			return err
		}
	}
	if p.CStandard != "" || p.CxxStandard != "" {
		if err := m.SetLanguages(p.CStandard, p.CxxStandard); err != nil {
			return err
		}
	}
	if p.Arch != "" {
		arch, err := interpolate(p.Arch, env)
		if err != nil {
			return err
		}
		if err := m.SetArch(arch); err != nil {
			return err
		}
	}
	if p.Platform != "" {
		platform, err := interpolate(p.Platform, env)
		if err != nil {
			return err
		}
		if err := m.SetPlatform(platform); err != nil {
			return err
		}
	}
	if p.ToolchainPreference != "" {
		if err := m.SetToolchainPreference(p.ToolchainPreference); err != nil {
			return err
		}
	}
	if p.Configuration != "" {
		if err := m.SetConfiguration(p.Configuration); err != nil {
			return err
		}
	}
	if len(p.Defines) > 0 {
		if err := m.AddDefines(p.Defines); err != nil {
			return err
		}
	}
	return nil
}

func applyTarget(ts targetSection, root string, m *model.Model, env Env) error {
	kind, err := model.ParseKind(ts.Kind)
	if err != nil {
		return fmt.Errorf("scripthost: target %q: %w", ts.Name, err)
	}

	baseDir := ts.BaseDir
	if baseDir == "" {
		baseDir = "."
	}
	baseDir, err = interpolate(baseDir, env)
	if err != nil {
		return err
	}
	baseDir = root + string(os.PathSeparator) + baseDir

	t, err := m.NewTarget(ts.Name, kind, baseDir)
	if err != nil {
		return err
	}

	t.AddSources(ts.Sources...)
	t.AddIncludeDir(model.Private, ts.IncludeDirs...)
	t.AddExportedIncludeDir(ts.ExportedIncludeDirs...)
	if len(ts.Defines) > 0 {
		t.AddDefines(ts.Defines)
	}
	t.AddCompilerFlags(ts.Cflags...)
	t.AddLinkerFlags(ts.Ldflags...)
	t.AddDeps(ts.Deps...)
	t.AddLinks(ts.Links...)
	t.AddSysLinks(ts.SysLinks...)
	for _, dir := range ts.LibDirs {
		t.AddLinkDir(dir)
	}
	if ts.Pch != "" {
		t.SetPrecompiledHeader(ts.Pch)
	}

	return nil
}

var exprPattern = regexp.MustCompile(`\{\{(.+?)\}\}`)

// interpolate evaluates every {{ expr }} span in s against env, the same
// way a TOML config value with embedded expressions gets resolved.
func interpolate(s string, env Env) (string, error) {
	matches := exprPattern.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return s, nil
	}

	var b strings.Builder
	last := 0
	for _, idx := range matches {
		b.WriteString(s[last:idx[0]])
		expression := strings.TrimSpace(s[idx[2]:idx[3]])
		result, err := evalExpr(expression, env)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, "%v", result)
		last = idx[1]
	}
	b.WriteString(s[last:])
	return b.String(), nil
}

func evalExpr(expression string, env Env) (any, error) {
	program, err := expr.Compile(expression, expr.Env(env))
	if err != nil {
		return nil, fmt.Errorf("scripthost: compile %q: %w", expression, err)
	}
	result, err := expr.Run(program, env)
	if err != nil {
		return nil, fmt.Errorf("scripthost: run %q: %w", expression, err)
	}
	return result, nil
}

func evalBool(expression string, env Env) (bool, error) {
	result, err := evalExpr(expression, env)
	if err != nil {
		return false, err
	}
	matched, ok := result.(bool)
	return ok && matched, nil
}
