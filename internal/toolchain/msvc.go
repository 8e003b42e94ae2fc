package toolchain

import (
	"bufio"
	"fmt"
	"os/exec"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/lbt-build/lbt/internal/errs"
	"github.com/lbt-build/lbt/internal/model"
)

type vcvarsKey struct {
	path string
	arch string
}

// envCache memoizes InitEnvironment's captured environment overlay per
// (vcvars-path, arch) for the process lifetime, per SPEC_FULL.md §4.4 --
// grounded in the same process-lifetime-LRU pattern
// Keyhole-Koro-InsightifyCore uses to front a slow backing resource.
var envCache, _ = lru.New[vcvarsKey, map[string]string](8)

// msvcVarsToCapture lists the environment variables the core passes to
// spawned child processes verbatim, per spec.md §6.
var msvcVarsToCapture = []string{
	"PATH", "INCLUDE", "LIB", "LIBPATH", "WindowsSdkDir", "VCToolsInstallDir",
}

type MSVCToolchain struct {
	// VcvarsPath, if set, is the path to vcvarsall.bat (or similar) used
	// by InitEnvironment; left empty, InitEnvironment is a no-op.
	VcvarsPath string
	Arch       string
}

func (m *MSVCToolchain) Identify() ID { return MSVC }

// InitEnvironment runs "cmd.exe /c "<vcvars>" <arch> && set" and captures
// the resulting KEY=VALUE lines into an overlay map, caching it by
// (vcvars-path, arch) so repeated builds in one process don't re-spawn the
// batch script.
func (m *MSVCToolchain) InitEnvironment(info Info) (map[string]string, error) {
	if m.VcvarsPath == "" {
		return nil, nil
	}

	key := vcvarsKey{path: m.VcvarsPath, arch: m.Arch}
	if cached, ok := envCache.Get(key); ok {
		return cached, nil
	}

	cmd := exec.Command("cmd.exe", "/c", fmt.Sprintf("%q %s && set", m.VcvarsPath, m.Arch))
	out, err := cmd.Output()
	if err != nil {
		return nil, &errs.ToolchainError{Msg: "failed to initialize MSVC environment", Err: err}
	}

	overlay := make(map[string]string)
	wanted := make(map[string]bool, len(msvcVarsToCapture))
	for _, v := range msvcVarsToCapture {
		wanted[v] = true
	}

	scanner := bufio.NewScanner(strings.NewReader(string(out)))
	for scanner.Scan() {
		line := scanner.Text()
		eq := strings.IndexByte(line, '=')
		if eq <= 0 {
			continue
		}
		name, val := line[:eq], line[eq+1:]
		if wanted[name] {
			overlay[name] = val
		}
	}

	envCache.Add(key, overlay)
	return overlay, nil
}

func msvcStandardFlag(isCxx bool, cStd, cxxStd string) string {
	if isCxx {
		if cxxStd == "" {
			cxxStd = "c++17"
		}
		return "/std:" + cxxStd
	}
	if cStd == "" {
		return "" // MSVC's natural default for C
	}
	return "/std:" + cStd
}

func msvcConfigFlags(cfg model.Configuration) []string {
	switch cfg {
	case model.Release:
		return []string{"/O2", "/DNDEBUG"}
	case model.RelWithDebInfo:
		return []string{"/O2", "/Zi", "/DNDEBUG"}
	case model.MinSizeRel:
		return []string{"/O1", "/DNDEBUG"}
	default: // Debug
		return []string{"/Od", "/Zi", "/D_DEBUG"}
	}
}

func (m *MSVCToolchain) EmitCompileCommand(opts CompileOptions) (string, []string) {
	argv := []string{"/c", opts.Source, "/Fo" + opts.OutputObject, "/utf-8", "/nologo"}

	if std := msvcStandardFlag(opts.IsCxx, opts.CStandard, opts.CxxStandard); std != "" {
		argv = append(argv, std)
	}
	argv = append(argv, msvcConfigFlags(opts.Configuration)...)

	for _, dir := range opts.IncludeDirs {
		argv = append(argv, "/I"+dir)
	}

	defineKeys := make([]string, 0, len(opts.Defines))
	for k := range opts.Defines {
		defineKeys = append(defineKeys, k)
	}
	sort.Strings(defineKeys)
	for _, k := range defineKeys {
		v := opts.Defines[k]
		if v != "" {
			argv = append(argv, fmt.Sprintf("/D%s=%s", k, v))
		} else {
			argv = append(argv, "/D"+k)
		}
	}

	argv = append(argv, opts.ExtraFlags...)

	if opts.GenerateDeps {
		// MSVC has no dep-file flag; header dependencies come out of
		// stdout via /showIncludes, forced to English so the parser in
		// depscan.go can rely on the literal marker text.
		argv = append(argv, "/showIncludes", "/English-")
	}

	return "cl.exe", argv
}

func (m *MSVCToolchain) EmitLinkCommand(opts LinkOptions) (string, []string) {
	if opts.Kind == model.StaticLibrary {
		argv := append([]string{"/OUT:" + opts.Output, "/nologo"}, opts.Objects...)
		return "lib.exe", argv
	}

	argv := append([]string(nil), opts.Objects...)
	argv = append(argv, "/OUT:"+opts.Output, "/nologo")
	if opts.Kind == model.SharedLibrary {
		argv = append(argv, "/DLL")
	}
	if opts.Configuration == model.Debug || opts.Configuration == model.RelWithDebInfo {
		argv = append(argv, "/DEBUG")
	}
	for _, dir := range opts.LibraryDirs {
		argv = append(argv, "/LIBPATH:"+dir)
	}
	for _, lib := range opts.Libraries {
		if !strings.HasSuffix(lib, ".lib") {
			lib += ".lib"
		}
		argv = append(argv, lib)
	}
	argv = append(argv, opts.ExtraFlags...)

	return "link.exe", argv
}
