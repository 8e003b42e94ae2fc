// Package model holds the in-memory build model: the named target set and
// global settings assembled by an external scripting host's callbacks,
// frozen before the dependency graph is built.
//
// The Model replaces a process-wide mutable TOML config global with an
// explicit value threaded through the script host's bound
// closures, per SPEC_FULL.md §4.2's re-architecture note: the host is the
// only writer, and Freeze makes every later read a read of immutable data.
package model

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/lbt-build/lbt/internal/errs"
)

// Kind identifies what a Target produces.
type Kind int

const (
	Executable Kind = iota
	StaticLibrary
	SharedLibrary
	InterfaceOnly
)

func (k Kind) String() string {
	switch k {
	case Executable:
		return "executable"
	case StaticLibrary:
		return "static-library"
	case SharedLibrary:
		return "shared-library"
	case InterfaceOnly:
		return "interface"
	default:
		return "unknown"
	}
}

func ParseKind(s string) (Kind, error) {
	switch s {
	case "executable", "exe", "bin":
		return Executable, nil
	case "static", "static-library", "static_library", "staticlib", "lib":
		return StaticLibrary, nil
	case "shared", "shared-library", "shared_library", "sharedlib", "dll", "dylib", "so":
		return SharedLibrary, nil
	case "interface", "header-only", "interface_only", "interface-only":
		return InterfaceOnly, nil
	default:
		return 0, &errs.ConfigError{Msg: fmt.Sprintf("unknown target kind %q", s)}
	}
}

// Visibility controls whether an include directory is exported to
// dependents of the target that declares it.
type Visibility int

const (
	Private Visibility = iota
	Public
)

// Configuration selects optimization level and debug-info emission.
type Configuration int

const (
	Debug Configuration = iota
	Release
	RelWithDebInfo
	MinSizeRel
)

func (c Configuration) String() string {
	switch c {
	case Debug:
		return "debug"
	case Release:
		return "release"
	case RelWithDebInfo:
		return "relwithdebinfo"
	case MinSizeRel:
		return "minsizerel"
	default:
		return "unknown"
	}
}

func ParseConfiguration(s string) (Configuration, error) {
	switch s {
	case "debug", "":
		return Debug, nil
	case "release":
		return Release, nil
	case "relwithdebinfo":
		return RelWithDebInfo, nil
	case "minsizerel":
		return MinSizeRel, nil
	default:
		return 0, &errs.ConfigError{Msg: fmt.Sprintf("unknown build configuration %q", s)}
	}
}

// includeDir is one entry added via AddIncludeDir/AddExportedIncludeDir.
type includeDir struct {
	Path       string
	Visibility Visibility
	Exported   bool // exported dirs are always public, even on Interface targets
}

// Target is a single named build unit.
type Target struct {
	name    string
	kind    Kind
	baseDir string

	sourcePatterns []string
	includeDirs    []includeDir
	defines        map[string]string
	cflags         []string
	ldflags        []string
	deps           []string
	links          []string
	sysLinks       []string
	libDirs        []string
	pch            string

	kindFrozen bool // kind becomes immutable after first read by the graph
}

func newTarget(name string, kind Kind, baseDir string) *Target {
	return &Target{
		name:    name,
		kind:    kind,
		baseDir: baseDir,
		defines: make(map[string]string),
	}
}

func (t *Target) Name() string    { return t.name }
func (t *Target) BaseDir() string { return t.baseDir }

// Kind returns the target's kind and freezes it: subsequent calls to
// SetKind return a ConfigError: kind is immutable once the graph has read
// it.
func (t *Target) Kind() Kind {
	t.kindFrozen = true
	return t.kind
}

func (t *Target) SetKind(k Kind) error {
	if t.kindFrozen {
		return &errs.ConfigError{Msg: fmt.Sprintf("target %q: kind is frozen after first read", t.name)}
	}
	t.kind = k
	return nil
}

func (t *Target) AddSources(patterns ...string) { t.sourcePatterns = append(t.sourcePatterns, patterns...) }

func (t *Target) AddIncludeDir(vis Visibility, paths ...string) {
	for _, p := range paths {
		t.includeDirs = append(t.includeDirs, includeDir{Path: p, Visibility: vis})
	}
}

func (t *Target) AddExportedIncludeDir(paths ...string) {
	for _, p := range paths {
		t.includeDirs = append(t.includeDirs, includeDir{Path: p, Visibility: Public, Exported: true})
	}
}

func (t *Target) AddDefines(defines map[string]string) {
	for k, v := range defines {
		t.defines[k] = v
	}
}

func (t *Target) AddDefine(key, value string) { t.defines[key] = value }

func (t *Target) AddDeps(names ...string)     { t.deps = append(t.deps, names...) }
func (t *Target) AddLinks(libs ...string)     { t.links = append(t.links, libs...) }
func (t *Target) AddSysLinks(libs ...string)  { t.sysLinks = append(t.sysLinks, libs...) }
func (t *Target) AddLinkDir(dirs ...string)   { t.libDirs = append(t.libDirs, dirs...) }
func (t *Target) AddCompilerFlags(f ...string) { t.cflags = append(t.cflags, f...) }
func (t *Target) AddLinkerFlags(f ...string)   { t.ldflags = append(t.ldflags, f...) }
func (t *Target) SetPrecompiledHeader(path string) { t.pch = path }

func (t *Target) Deps() []string     { return append([]string(nil), t.deps...) }
func (t *Target) Links() []string    { return append([]string(nil), t.links...) }
func (t *Target) SysLinks() []string { return append([]string(nil), t.sysLinks...) }
func (t *Target) LibDirs() []string  { return append([]string(nil), t.libDirs...) }
func (t *Target) Cflags() []string   { return append([]string(nil), t.cflags...) }
func (t *Target) Ldflags() []string  { return append([]string(nil), t.ldflags...) }
func (t *Target) Defines() map[string]string {
	out := make(map[string]string, len(t.defines))
	for k, v := range t.defines {
		out[k] = v
	}
	return out
}
func (t *Target) PrecompiledHeader() string { return t.pch }

// ownIncludeDirs returns this target's own include dirs (private+public),
// resolved to absolute paths.
func (t *Target) ownIncludeDirs() []string {
	out := make([]string, 0, len(t.includeDirs))
	for _, d := range t.includeDirs {
		out = append(out, absolutize(t.baseDir, d.Path))
	}
	return out
}

// publicIncludeDirs returns dirs visible to dependents: Public visibility or
// exported, resolved to absolute paths. Interface targets expose only
// exported dirs, matching SPEC_FULL.md §4.2.
func (t *Target) publicIncludeDirs() []string {
	var out []string
	for _, d := range t.includeDirs {
		if t.kind == InterfaceOnly {
			if d.Exported {
				out = append(out, absolutize(t.baseDir, d.Path))
			}
			continue
		}
		if d.Exported || d.Visibility == Public {
			out = append(out, absolutize(t.baseDir, d.Path))
		}
	}
	return out
}

func absolutize(base, path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Clean(filepath.Join(base, path))
}

// ResolveSources expands AddSources' glob patterns against the target's
// base directory using doublestar, honoring "!"-prefixed exclusions.
// Resolution failures (a malformed pattern) yield zero files, never an
// error, per SPEC_FULL.md §4.2.
func (t *Target) ResolveSources() []string {
	fsys := os.DirFS(t.baseDir)

	included := make(map[string]struct{})
	for _, pat := range t.sourcePatterns {
		exclude := false
		p := pat
		if len(p) > 0 && p[0] == '!' {
			exclude = true
			p = p[1:]
		}

		if filepath.IsAbs(p) {
			if exclude {
				delete(included, filepath.Clean(p))
			} else {
				included[filepath.Clean(p)] = struct{}{}
			}
			continue
		}

		matches, err := doublestar.Glob(fsys, p, doublestar.WithFilesOnly())
		if err != nil {
			continue // resolution failure -> zero files, not an error
		}
		for _, m := range matches {
			abs := filepath.Clean(filepath.Join(t.baseDir, m))
			if exclude {
				delete(included, abs)
			} else {
				included[abs] = struct{}{}
			}
		}
	}

	out := make([]string, 0, len(included))
	for p := range included {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// GlobalSettings holds the process-wide settings a script host sets once.
type GlobalSettings struct {
	Project             string
	Version             string
	CStandard           string
	CxxStandard         string
	Arch                string
	Platform            string
	ToolchainPreference string
	Configuration       Configuration
	Defines             map[string]string
}

// Model is the mutable registry populated by script-host callbacks, then
// frozen before the dependency graph reads it.
type Model struct {
	mu       sync.Mutex
	frozen   bool
	settings GlobalSettings
	targets  map[string]*Target
	order    []string // insertion order, for stable topological tie-breaking
}

func New() *Model {
	return &Model{
		settings: GlobalSettings{Defines: make(map[string]string)},
		targets:  make(map[string]*Target),
	}
}

func (m *Model) checkMutable(op string) error {
	if m.frozen {
		return &errs.ConfigError{Msg: fmt.Sprintf("cannot %s: model is frozen", op)}
	}
	return nil
}

func (m *Model) SetProject(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkMutable("SetProject"); err != nil {
		return err
	}
	m.settings.Project = name
	return nil
}

func (m *Model) SetVersion(v string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkMutable("SetVersion"); err != nil {
		return err
	}
	m.settings.Version = v
	return nil
}

// SetLanguages accepts either a loose string like "c++17"/"c11" or the
// pair of standards directly; unrecognized strings yield a ConfigError per
// SPEC_FULL.md §4.2.
func (m *Model) SetLanguages(cStd, cxxStd string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkMutable("SetLanguages"); err != nil {
		return err
	}
	m.settings.CStandard = cStd
	m.settings.CxxStandard = cxxStd
	return nil
}

func (m *Model) AddDefines(defines map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkMutable("AddDefines"); err != nil {
		return err
	}
	for k, v := range defines {
		m.settings.Defines[k] = v
	}
	return nil
}

func (m *Model) SetArch(arch string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkMutable("SetArch"); err != nil {
		return err
	}
	m.settings.Arch = arch
	return nil
}

func (m *Model) SetPlatform(plat string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkMutable("SetPlatform"); err != nil {
		return err
	}
	m.settings.Platform = plat
	return nil
}

func (m *Model) SetToolchainPreference(pref string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkMutable("SetToolchainPreference"); err != nil {
		return err
	}
	m.settings.ToolchainPreference = pref
	return nil
}

func (m *Model) SetConfiguration(cfg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkMutable("SetConfiguration"); err != nil {
		return err
	}
	c, err := ParseConfiguration(cfg)
	if err != nil {
		return err
	}
	m.settings.Configuration = c
	return nil
}

func (m *Model) Settings() GlobalSettings { return m.settings }

// NewTarget creates and registers a target. Duplicate names are rejected
// with a ConfigError: target names are globally unique within one model.
func (m *Model) NewTarget(name string, kind Kind, baseDir string) (*Target, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkMutable("NewTarget"); err != nil {
		return nil, err
	}
	if _, exists := m.targets[name]; exists {
		return nil, &errs.ConfigError{Msg: fmt.Sprintf("duplicate target name %q", name)}
	}
	baseDir, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, &errs.IoError{Path: baseDir, Err: err}
	}
	t := newTarget(name, kind, baseDir)
	m.targets[name] = t
	m.order = append(m.order, name)
	return t, nil
}

func (m *Model) Target(name string) (*Target, bool) {
	t, ok := m.targets[name]
	return t, ok
}

// Targets returns every target in insertion order.
func (m *Model) Targets() []*Target {
	out := make([]*Target, 0, len(m.order))
	for _, name := range m.order {
		out = append(out, m.targets[name])
	}
	return out
}

// TargetNames returns target names in insertion order, for stable
// topological-order tie-breaking.
func (m *Model) TargetNames() []string {
	return append([]string(nil), m.order...)
}

// Freeze makes the model read-only. Called by the Driver after script
// evaluation, before the dependency graph is constructed.
func (m *Model) Freeze() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frozen = true
}

// EffectiveIncludeDirs computes the derived query from SPEC_FULL.md §4.2:
// the target's own include dirs, unioned with the public+exported include
// dirs of every target in its transitive dependency closure.
func (m *Model) EffectiveIncludeDirs(name string) ([]string, error) {
	t, ok := m.targets[name]
	if !ok {
		return nil, &errs.ConfigError{Msg: fmt.Sprintf("unknown target %q", name)}
	}

	seen := map[string]struct{}{}
	var out []string
	for _, d := range t.ownIncludeDirs() {
		if _, dup := seen[d]; !dup {
			seen[d] = struct{}{}
			out = append(out, d)
		}
	}

	visited := map[string]bool{name: true}
	var walk func(cur *Target)
	walk = func(cur *Target) {
		for _, depName := range cur.deps {
			if visited[depName] {
				continue
			}
			visited[depName] = true
			dep, ok := m.targets[depName]
			if !ok {
				continue // external library name, not a graph node
			}
			for _, d := range dep.publicIncludeDirs() {
				if _, dup := seen[d]; !dup {
					seen[d] = struct{}{}
					out = append(out, d)
				}
			}
			walk(dep)
		}
	}
	walk(t)

	return out, nil
}
