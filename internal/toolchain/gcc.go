package toolchain

import (
	"fmt"
	"sort"

	"github.com/lbt-build/lbt/internal/model"
)

// gccLikeToolchain implements both the GCC and Clang families: their
// command-line shape is identical for the flags this core emits, so one
// struct parameterized by ID serves both -- builder.findCompiler already
// treats "gcc"/"g++"/"clang"/"clang++" as interchangeable candidates for
// the same role.
type gccLikeToolchain struct {
	id ID
}

func (g *gccLikeToolchain) Identify() ID { return g.id }

func (g *gccLikeToolchain) InitEnvironment(Info) (map[string]string, error) {
	return nil, nil // GCC/Clang need no environment capture step
}

func standardFlag(isCxx bool, cStd, cxxStd string) string {
	if isCxx {
		if cxxStd == "" {
			cxxStd = "c++17"
		}
		return "-std=" + cxxStd
	}
	if cStd == "" {
		cStd = "c11"
	}
	return "-std=" + cStd
}

func configFlags(cfg model.Configuration) []string {
	switch cfg {
	case model.Release:
		return []string{"-O2", "-DNDEBUG"}
	case model.RelWithDebInfo:
		return []string{"-O2", "-g", "-DNDEBUG"}
	case model.MinSizeRel:
		return []string{"-Os", "-DNDEBUG"}
	default: // Debug
		return []string{"-O0", "-g", "-D_DEBUG"}
	}
}

func (g *gccLikeToolchain) EmitCompileCommand(opts CompileOptions) (string, []string) {
	exe := "gcc"
	if g.id == Clang {
		exe = "clang"
	}
	if opts.IsCxx {
		if g.id == Clang {
			exe = "clang++"
		} else {
			exe = "g++"
		}
	}

	argv := []string{"-c", opts.Source, "-o", opts.OutputObject}
	argv = append(argv, standardFlag(opts.IsCxx, opts.CStandard, opts.CxxStandard))
	argv = append(argv, configFlags(opts.Configuration)...)
	argv = append(argv, "-finput-charset=UTF-8")

	for _, dir := range opts.IncludeDirs {
		argv = append(argv, "-I"+dir)
	}

	defineKeys := make([]string, 0, len(opts.Defines))
	for k := range opts.Defines {
		defineKeys = append(defineKeys, k)
	}
	sort.Strings(defineKeys)
	for _, k := range defineKeys {
		v := opts.Defines[k]
		if v != "" {
			argv = append(argv, fmt.Sprintf("-D%s=%s", k, v))
		} else {
			argv = append(argv, "-D"+k)
		}
	}

	argv = append(argv, opts.ExtraFlags...)

	if opts.GenerateDeps {
		argv = append(argv, "-MMD", "-MF"+opts.DepFilePath)
	}

	return exe, argv
}

func (g *gccLikeToolchain) EmitLinkCommand(opts LinkOptions) (string, []string) {
	exe := "gcc"
	if g.id == Clang {
		exe = "clang"
	}
	if opts.IsCxx {
		if g.id == Clang {
			exe = "clang++"
		} else {
			exe = "g++"
		}
	}

	if opts.Kind == model.StaticLibrary {
		argv := append([]string{"rcs", opts.Output}, opts.Objects...)
		return "ar", argv
	}

	argv := append([]string(nil), opts.Objects...)
	argv = append(argv, configFlags(opts.Configuration)...)
	if opts.Kind == model.SharedLibrary {
		argv = append(argv, "-shared", "-fPIC")
	}
	for _, dir := range opts.LibraryDirs {
		argv = append(argv, "-L"+dir)
	}
	for _, lib := range opts.Libraries {
		argv = append(argv, "-l"+lib)
	}
	argv = append(argv, opts.ExtraFlags...)
	argv = append(argv, "-o", opts.Output)

	return exe, argv
}
