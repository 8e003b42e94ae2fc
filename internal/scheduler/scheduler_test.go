package scheduler

import (
	"github.com/lbt-build/lbt/internal/model"
	"github.com/lbt-build/lbt/internal/toolchain"
)

// fakeToolchain emits shell commands instead of real compiler/linker
// invocations, so scheduler tests can exercise the full fan-out/collector
// machinery without depending on gcc/clang/cl.exe being installed.
type fakeToolchain struct {
	id          toolchain.ID
	headerDeps  []string
	failSources map[string]bool
}

func (f *fakeToolchain) Identify() toolchain.ID { return f.id }

func (f *fakeToolchain) EmitCompileCommand(opts toolchain.CompileOptions) (string, []string) {
	if f.failSources[opts.Source] {
		return "sh", []string{"-c", "exit 1"}
	}
	return "sh", []string{"-c", "touch \"" + opts.OutputObject + "\""}
}

func (f *fakeToolchain) EmitLinkCommand(opts toolchain.LinkOptions) (string, []string) {
	return "sh", []string{"-c", "touch \"" + opts.Output + "\""}
}

func (f *fakeToolchain) ParseHeaderDeps([]byte, string) ([]string, error) {
	return f.headerDeps, nil
}

func (f *fakeToolchain) InitEnvironment(toolchain.Info) (map[string]string, error) {
	return nil, nil
}

var _ toolchain.Toolchain = (*fakeToolchain)(nil)

func newResolvedTarget(name, baseDir string, sources []string, kind model.Kind) *ResolvedTarget {
	return &ResolvedTarget{
		Name:          name,
		Kind:          kind,
		BaseDir:       baseDir,
		Sources:       sources,
		Configuration: model.Debug,
	}
}

func withFixedParallelism(n int, fn func()) {
	orig := MaxParallelism
	MaxParallelism = func() int { return n }
	defer func() { MaxParallelism = orig }()
	fn()
}
