// Package driver coordinates the full build sequence from spec.md §4.8:
// locate the project root, invoke the scripting host to populate the Build
// Model, construct the Dependency Graph, detect and initialize a
// toolchain, then iterate targets in topological order running Compile
// then Link. It also implements "clean" and "run".
package driver

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/lbt-build/lbt/internal/cache"
	"github.com/lbt-build/lbt/internal/errs"
	"github.com/lbt-build/lbt/internal/graph"
	"github.com/lbt-build/lbt/internal/model"
	"github.com/lbt-build/lbt/internal/msg"
	"github.com/lbt-build/lbt/internal/scheduler"
	"github.com/lbt-build/lbt/internal/toolchain"
)

// ErrCannotRunArtifact is returned by RunArtifact when the named target
// doesn't produce an executable.
var ErrCannotRunArtifact = errors.New("driver: target does not produce a runnable artifact")

// ScriptHost is the narrow interface the Driver needs from whatever
// external scripting system evaluates the project's build script: given a
// root directory, populate m via its callback surface. The scripting host
// itself -- parsing build.cs, embedding a C#-like runtime -- is out of
// scope for this core; see internal/scripthost for a minimal reference
// implementation used by this repository's own tests.
type ScriptHost interface {
	Evaluate(root string, m *model.Model) error
}

// ProjectMarker is the filename the Driver walks upward from CWD looking
// for, per spec.md §6. The reference script host uses "lbt.toml"; a real
// build.cs-evaluating host would set this to "build.cs" instead.
var ProjectMarker = "lbt.toml"

// Options configures one Driver invocation.
type Options struct {
	Configuration       model.Configuration
	ToolchainPreference toolchain.ID
	MSVCVcvarsPath      string
	MSVCArch            string
}

// Driver owns the cache and toolchain for one invocation.
type Driver struct {
	Host ScriptHost
}

// FindRoot walks upward from dir looking for ProjectMarker, per spec.md §6.
func FindRoot(dir string) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", &errs.IoError{Path: dir, Err: err}
	}
	for {
		marker := filepath.Join(dir, ProjectMarker)
		if _, err := os.Stat(marker); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", &errs.IoError{Path: dir, Err: fmt.Errorf("no %s found", ProjectMarker)}
		}
		dir = parent
	}
}

// BuildResult is what a completed Build leaves behind: the resolved model
// and the artifact each target produced, keyed by target name. RunArtifact
// and callers that need to chain a run after a build use this to locate
// the right executable without re-walking the graph.
type BuildResult struct {
	Model     *model.Model
	Artifacts map[string]scheduler.LinkArtifact
}

// Build runs the full build sequence for the project rooted at root.
func (d *Driver) Build(ctx context.Context, root string, opts Options) (*BuildResult, error) {
	m := model.New()
	if err := d.Host.Evaluate(root, m); err != nil {
		return nil, err
	}
	m.Freeze()

	g, err := graph.New(m)
	if err != nil {
		return nil, err
	}
	if cyclePath, hasCycle := g.DetectCycle(); hasCycle {
		return nil, &errs.CycleError{Path: cyclePath}
	}

	order, err := g.TopologicalOrder()
	if err != nil {
		return nil, err
	}

	tc, info, err := toolchain.Detect(opts.ToolchainPreference)
	if err != nil {
		return nil, err
	}
	msg.Info("using %s toolchain (%s)", info.ID, info.CCPath)

	if msvc, ok := tc.(*toolchain.MSVCToolchain); ok && opts.MSVCVcvarsPath != "" {
		msvc.VcvarsPath = opts.MSVCVcvarsPath
		msvc.Arch = opts.MSVCArch
	}

	env, err := tc.InitEnvironment(info)
	if err != nil {
		msg.Warn("toolchain environment initialization failed: %v", err)
	}

	artifacts, err := d.buildTargets(ctx, root, m, g, order, tc, info, env, opts)
	if err != nil {
		return nil, err
	}
	return &BuildResult{Model: m, Artifacts: artifacts}, nil
}

func (d *Driver) buildTargets(
	ctx context.Context, root string, m *model.Model, g *graph.Graph, order []string,
	tc toolchain.Toolchain, info toolchain.Info, env map[string]string, opts Options,
) (map[string]scheduler.LinkArtifact, error) {
	store, err := cache.Open(root)
	if err != nil {
		msg.Warn("cache unreadable, rebuilding from scratch: %v", err)
		store, _ = cache.Open(filepath.Join(root, ".lbt-recreated"))
	}

	goos := HostGOOS()
	objExt := objExtFor(goos)
	outRoot := outputRoot(root, opts.Configuration)
	objOutRoot := objRoot(root, opts.Configuration)

	artifacts := make(map[string]scheduler.LinkArtifact, len(order))

	for _, name := range order {
		t, _ := m.Target(name)
		resolved, err := resolveTarget(m, g, t, opts)
		if err != nil {
			return nil, err
		}

		cs := &scheduler.CompileScheduler{
			Toolchain:   tc,
			ToolchainID: string(info.ID),
			Env:         env,
			Cache:       store,
			OutputRoot:  objOutRoot,
			ObjExt:      objExt,
		}

		if _, err := cs.Run(ctx, resolved); err != nil {
			return nil, fmt.Errorf("compiling %s: %w", name, err)
		}
		if err := store.Save(); err != nil {
			msg.Warn("failed to persist cache: %v", err)
		}

		if t.Kind() == model.InterfaceOnly {
			continue // header-only targets produce no link artifact
		}

		artifactName := ArtifactName(name, t.Kind(), opts.Configuration, goos)
		outputPath := filepath.Join(outRoot, artifactName)

		var objects []string
		for _, src := range resolved.Sources {
			if k := model.ClassifySource(src); k == model.SourceC || k == model.SourceCxx {
				objects = append(objects, model.ObjectPath(objOutRoot, resolved.BaseDir, src, objExt))
			}
		}

		var deps []scheduler.LinkArtifact
		for _, depName := range resolved.Deps {
			if art, ok := artifacts[depName]; ok {
				deps = append(deps, art)
			}
		}

		ls := &scheduler.LinkScheduler{Toolchain: tc, Env: env, IsMSVC: info.ID == toolchain.MSVC}
		if _, err := ls.Run(resolved, objects, deps, outputPath); err != nil {
			return nil, fmt.Errorf("linking %s: %w", name, err)
		}

		artifacts[name] = scheduler.LinkArtifact{
			Name:       name,
			Kind:       t.Kind(),
			OutputPath: outputPath,
			ImportLib:  ImportLibName(name, t.Kind(), opts.Configuration, goos),
		}
	}

	return artifacts, nil
}

// resolveTarget gathers everything the schedulers need about one target:
// its sources, effective include dirs (including transitive exports from
// dependencies), and flags.
func resolveTarget(m *model.Model, g *graph.Graph, t *model.Target, opts Options) (*scheduler.ResolvedTarget, error) {
	includeDirs, err := m.EffectiveIncludeDirs(t.Name())
	if err != nil {
		return nil, err
	}

	node, _ := g.Node(t.Name())

	settings := m.Settings()

	return &scheduler.ResolvedTarget{
		Name:          t.Name(),
		Kind:          t.Kind(),
		BaseDir:       t.BaseDir(),
		Sources:       t.ResolveSources(),
		IncludeDirs:   includeDirs,
		Defines:       mergeDefines(settings.Defines, t.Defines()),
		Cflags:        t.Cflags(),
		Ldflags:       t.Ldflags(),
		Deps:          node.Edges,
		ExternalLibs:  node.ExternalLibs,
		SysLinks:      t.SysLinks(),
		LibDirs:       t.LibDirs(),
		Configuration: opts.Configuration,
		CStandard:     settings.CStandard,
		CxxStandard:   settings.CxxStandard,
	}, nil
}

func mergeDefines(global, local map[string]string) map[string]string {
	out := make(map[string]string, len(global)+len(local))
	for k, v := range global {
		out[k] = v
	}
	for k, v := range local {
		out[k] = v
	}
	return out
}

// RunArtifact builds the project then execs the named target's artifact,
// streaming stdio through to the caller and forwarding args, per
// spec.md §6. It fails with ErrCannotRunArtifact if the target isn't an
// Executable -- library targets are refused rather than silently ignored.
// An empty targetName picks the first Executable target in declaration
// order, for the common single-binary project.
func (d *Driver) RunArtifact(ctx context.Context, root string, opts Options, targetName string, args []string) error {
	result, err := d.Build(ctx, root, opts)
	if err != nil {
		return err
	}

	if targetName == "" {
		for _, name := range result.Model.TargetNames() {
			if art, ok := result.Artifacts[name]; ok && art.Kind == model.Executable {
				targetName = name
				break
			}
		}
		if targetName == "" {
			return fmt.Errorf("%w: no executable target in project", ErrCannotRunArtifact)
		}
	}

	art, ok := result.Artifacts[targetName]
	if !ok {
		return fmt.Errorf("%w: %s", ErrCannotRunArtifact, targetName)
	}
	if art.Kind != model.Executable {
		return fmt.Errorf("%w: %s", ErrCannotRunArtifact, targetName)
	}

	cmd := exec.CommandContext(ctx, art.OutputPath, args...)
	cmd.Dir = filepath.Dir(art.OutputPath)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

// Clean removes <root>/build and the cache store, per spec.md §6.
func Clean(root string) error {
	if err := os.RemoveAll(filepath.Join(root, "build")); err != nil {
		return &errs.IoError{Path: filepath.Join(root, "build"), Err: err}
	}
	if err := os.RemoveAll(filepath.Join(root, ".lbt")); err != nil {
		return &errs.IoError{Path: filepath.Join(root, ".lbt"), Err: err}
	}
	return nil
}
