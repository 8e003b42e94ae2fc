package scheduler

import (
	"bytes"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/lbt-build/lbt/internal/errs"
	"github.com/lbt-build/lbt/internal/model"
	"github.com/lbt-build/lbt/internal/msg"
	"github.com/lbt-build/lbt/internal/toolchain"
)

// LinkArtifact describes another target's output, as seen by the Link
// Scheduler while resolving a dependency edge.
type LinkArtifact struct {
	Name       string
	Kind       model.Kind
	OutputPath string // artifact path, e.g. <outroot>/libfoo.a
	ImportLib  string // MSVC import library path, for SharedLibrary kind
}

// LinkScheduler runs one target's serial link (or archive) phase, per
// SPEC_FULL.md §4.7.
type LinkScheduler struct {
	Toolchain toolchain.Toolchain
	Env       map[string]string
	IsMSVC    bool
}

// Run assembles the target's object files and dependency artifacts, then
// invokes the toolchain's link (or archive) command.
func (ls *LinkScheduler) Run(target *ResolvedTarget, objects []string, deps []LinkArtifact, outputPath string) (Result, error) {
	var linkObjects []string
	for _, o := range objects {
		if _, err := os.Stat(o); err == nil {
			linkObjects = append(linkObjects, o)
		}
	}

	var libraries, libraryDirs []string

	for _, dep := range deps {
		libraryDirs = append(libraryDirs, filepath.Dir(dep.OutputPath))

		switch dep.Kind {
		case model.StaticLibrary:
			linkObjects = append(linkObjects, dep.OutputPath)
		case model.SharedLibrary:
			if ls.IsMSVC && dep.ImportLib != "" {
				linkObjects = append(linkObjects, dep.ImportLib)
			} else {
				libraries = append(libraries, dep.Name)
			}
		case model.InterfaceOnly:
			// interface-only deps contribute no link-time artifact
		}
	}

	libraries = append(libraries, target.ExternalLibs...)
	libraries = append(libraries, target.SysLinks...)
	libraryDirs = append(libraryDirs, target.LibDirs...)

	isCxx := targetHasCxx(target.Sources)

	opts := toolchain.LinkOptions{
		Objects:       linkObjects,
		Output:        outputPath,
		Kind:          target.Kind,
		Configuration: target.Configuration,
		IsCxx:         isCxx,
		Libraries:     libraries,
		LibraryDirs:   libraryDirs,
		ExtraFlags:    target.Ldflags,
	}

	exe, argv := ls.Toolchain.EmitLinkCommand(opts)

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return Result{}, &errs.LinkError{Target: target.Name, Err: err}
	}

	cmd := exec.Command(exe, argv...)
	cmd.Dir = target.BaseDir
	cmd.Env = mergedEnv(ls.Env)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	msg.Info("%s: linking %s", target.Name, filepath.Base(outputPath))

	if err := cmd.Run(); err != nil {
		return Result{FailedCount: 1}, &errs.LinkError{
			Target: target.Name, Argv: append([]string{exe}, argv...),
			Stderr: stderr.String(), Err: err,
		}
	}

	if _, err := os.Stat(outputPath); err != nil {
		return Result{FailedCount: 1}, &errs.LinkError{Target: target.Name, Err: err}
	}

	if info, err := os.Stat(outputPath); err == nil {
		msg.Info("%s: %s (%d bytes)", target.Name, outputPath, info.Size())
	}

	return Result{TaskCount: 1}, nil
}

func targetHasCxx(sources []string) bool {
	for _, s := range sources {
		if model.ClassifySource(s) == model.SourceCxx {
			return true
		}
	}
	return false
}
