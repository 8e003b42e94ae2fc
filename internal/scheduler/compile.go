// Package scheduler drives parallel compile tasks and serial link/archive
// invocations against a Toolchain, per SPEC_FULL.md §4.6-4.7.
//
// Compilation fans out across a golang.org/x/sync/errgroup bounded by
// SetLimit, following gen.QobsBuilder.executeBuild's runJobs shape, with
// each worker's outcome funneled into a single collector loop so the
// ordering guarantee from spec.md §5(c) -- cache writebacks happen-before
// the next target's needs_rebuild queries -- is structural: the collector
// is cache.Store's only writer, and Run doesn't return until it has
// drained.
package scheduler

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lbt-build/lbt/internal/cache"
	"github.com/lbt-build/lbt/internal/errs"
	"github.com/lbt-build/lbt/internal/model"
	"github.com/lbt-build/lbt/internal/msg"
	"github.com/lbt-build/lbt/internal/toolchain"
)

// ResolvedTarget is everything the schedulers need about one target,
// already resolved by the Driver: its sources, effective include dirs, and
// flags.
type ResolvedTarget struct {
	Name          string
	Kind          model.Kind
	BaseDir       string
	Sources       []string
	IncludeDirs   []string
	Defines       map[string]string
	Cflags        []string
	Ldflags       []string
	Deps          []string // target names this target depends on
	ExternalLibs  []string
	SysLinks      []string
	LibDirs       []string
	Configuration model.Configuration
	CStandard     string
	CxxStandard   string
}

// Result is what Compile/Link report back to the Driver.
type Result struct {
	Skipped    bool
	TaskCount  int
	FailedCount int
}

type compileTask struct {
	sourceFile model.SourceFile
	depFile    string
	isCxx      bool
	opts       toolchain.CompileOptions
	argsString string
	baseDir    string
}

type compileOutcome struct {
	task    compileTask
	success bool
	stdout  []byte
	stderr  []byte
	err     error
}

// MaxParallelism is the default worker-pool size: CPU count, overridable
// for tests.
var MaxParallelism = runtime.NumCPU

// CompileScheduler runs one target's compile phase.
type CompileScheduler struct {
	Toolchain toolchain.Toolchain
	ToolchainID string
	Env       map[string]string
	Cache     *cache.Store
	OutputRoot string // <root>/build/<config>/obj
	ObjExt    string // "o" or "obj"
}

// Run executes spec.md §4.6's eight-step algorithm for one target.
func (cs *CompileScheduler) Run(ctx context.Context, target *ResolvedTarget) (Result, error) {
	tasks, err := cs.plan(target)
	if err != nil {
		return Result{}, err
	}

	if len(tasks) == 0 {
		msg.Info("%s: up to date", target.Name)
		return Result{Skipped: true}, nil
	}

	return cs.execute(ctx, target.Name, tasks)
}

func (cs *CompileScheduler) plan(target *ResolvedTarget) ([]compileTask, error) {
	var tasks []compileTask

	for _, src := range target.Sources {
		sf := model.NewSourceFile(target.Name, src, cs.OutputRoot, target.BaseDir, cs.ObjExt)
		if sf.Kind != model.SourceC && sf.Kind != model.SourceCxx {
			continue
		}
		isCxx := sf.Kind == model.SourceCxx

		depFile := sf.ObjectPath + ".d"

		opts := toolchain.CompileOptions{
			Source:        sf.Path,
			OutputObject:  sf.ObjectPath,
			IsCxx:         isCxx,
			Configuration: target.Configuration,
			CStandard:     target.CStandard,
			CxxStandard:   target.CxxStandard,
			IncludeDirs:   target.IncludeDirs,
			Defines:       target.Defines,
			ExtraFlags:    target.Cflags,
			GenerateDeps:  true,
			DepFilePath:   depFile,
		}

		exe, argv := cs.Toolchain.EmitCompileCommand(opts)
		argsString := exe + " " + strings.Join(argv, " ")

		needs, err := cs.Cache.NeedsRebuild(sf.Path, sf.ObjectPath, argsString, cs.ToolchainID)
		if err != nil {
			return nil, err
		}
		if !needs {
			continue
		}

		tasks = append(tasks, compileTask{
			sourceFile: sf,
			depFile:    depFile,
			isCxx:      isCxx,
			opts:       opts,
			argsString: argsString,
			baseDir:    target.BaseDir,
		})
	}

	return tasks, nil
}

// execute fans tasks out across a bounded errgroup, per spec.md §4.6 step
// 5, and drains a single collector that is the only writer into cs.Cache.
// The bounded-fan-out shape mirrors gen.QobsBuilder.runJobs
// (errgroup.Group.SetLimit); the outcome channel it feeds is sized 2P so
// a burst of fast compiles never blocks a worker waiting on the
// collector.
func (cs *CompileScheduler) execute(ctx context.Context, targetName string, tasks []compileTask) (Result, error) {
	msg.Info("%s: compiling %d source file(s)", targetName, len(tasks))

	workers := MaxParallelism()
	if workers < 1 {
		workers = 1
	}

	total := len(tasks)
	resultCh := make(chan compileOutcome, 2*workers)

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(workers)

	for _, t := range tasks {
		t := t
		eg.Go(func() error {
			resultCh <- cs.runOne(egCtx, t)
			return nil
		})
	}
	go func() {
		eg.Wait() // errors are carried per-task in compileOutcome, not returned here
		close(resultCh)
	}()

	// collector: the only writer into cs.Cache.
	progress := msg.NewTaskProgressBar(int64(total))
	failed := 0
	completedAt := time.Now().Unix()

	for outcome := range resultCh {
		progress.Advance(outcome.task.sourceFile.Path)

		if !outcome.success {
			failed++
			msg.Error("%s", outcome.err)
			continue
		}

		headers, err := cs.Toolchain.ParseHeaderDeps(outcome.stdout, outcome.task.depFile)
		if err != nil {
			msg.Warn("failed to parse header dependencies for %s: %v", outcome.task.sourceFile.Path, err)
			headers = nil
		}
		if err := cs.Cache.RecordCompilation(
			outcome.task.sourceFile.Path, outcome.task.sourceFile.ObjectPath, outcome.task.argsString,
			cs.ToolchainID, headers, completedAt,
		); err != nil {
			msg.Warn("failed to record compilation for %s: %v", outcome.task.sourceFile.Path, err)
		}
	}

	if err := ctx.Err(); err != nil {
		return Result{TaskCount: total, FailedCount: failed}, err
	}

	return Result{TaskCount: total, FailedCount: failed}, nil
}

func (cs *CompileScheduler) runOne(ctx context.Context, t compileTask) compileOutcome {
	if err := os.MkdirAll(filepath.Dir(t.sourceFile.ObjectPath), 0o755); err != nil {
		return compileOutcome{task: t, err: &errs.CompileError{Source: t.sourceFile.Path, Err: err}}
	}

	exe, argv := cs.Toolchain.EmitCompileCommand(t.opts)

	cmd := exec.CommandContext(ctx, exe, argv...)
	cmd.Dir = t.baseDir
	cmd.Env = mergedEnv(cs.Env)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		if _, statErr := os.Stat(t.sourceFile.ObjectPath); statErr != nil {
			err = fmt.Errorf("object file was not produced: %s", t.sourceFile.ObjectPath)
		}
	}

	if err != nil {
		return compileOutcome{
			task: t, success: false, stdout: stdout.Bytes(), stderr: stderr.Bytes(),
			err: &errs.CompileError{
				Source: t.sourceFile.Path, Argv: append([]string{exe}, argv...),
				Stdout: stdout.String(), Stderr: stderr.String(), Err: err,
			},
		}
	}

	return compileOutcome{task: t, success: true, stdout: stdout.Bytes(), stderr: stderr.Bytes()}
}

func mergedEnv(overlay map[string]string) []string {
	if len(overlay) == 0 {
		return os.Environ()
	}
	base := os.Environ()
	out := make([]string, 0, len(base)+len(overlay))
	skip := make(map[string]bool, len(overlay))
	for k := range overlay {
		skip[k+"="] = true
	}
	for _, kv := range base {
		drop := false
		for prefix := range skip {
			if strings.HasPrefix(kv, prefix) {
				drop = true
				break
			}
		}
		if !drop {
			out = append(out, kv)
		}
	}
	for k, v := range overlay {
		out = append(out, k+"="+v)
	}
	return out
}
