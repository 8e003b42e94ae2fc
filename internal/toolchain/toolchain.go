// Package toolchain abstracts over GCC-like, Clang-like, and MSVC-like
// compiler families behind one interface, per SPEC_FULL.md §4.4. It emits
// concrete compile/link/archive invocations and parses header dependencies
// out of either a GCC-style .d file or MSVC's /showIncludes stdout stream.
//
// Vendor-specific install-location discovery (registry scanning, vswhere,
// Xcode SDK probing) is explicitly out of scope; Detect only probes
// exec.LookPath for well-known executable names, per spec.md §1.
package toolchain

import (
	"os/exec"
	"runtime"

	"github.com/lbt-build/lbt/internal/errs"
	"github.com/lbt-build/lbt/internal/model"
)

// ID identifies a toolchain family.
type ID string

const (
	GCC   ID = "gcc"
	Clang ID = "clang"
	MSVC  ID = "msvc"
)

// Info is what Detect reports about an installed toolchain: executable
// paths and an optional environment-variable overlay applied to every
// spawned child process (populated lazily by InitEnvironment for MSVC).
type Info struct {
	ID          ID
	Version     string
	CCPath      string
	CXXPath     string
	LinkerPath  string
	ArchiverPath string
}

// CompileOptions is the input to EmitCompileCommand.
type CompileOptions struct {
	Source         string
	OutputObject   string
	IsCxx          bool
	Configuration  model.Configuration
	CStandard      string
	CxxStandard    string
	IncludeDirs    []string
	Defines        map[string]string
	ExtraFlags     []string
	GenerateDeps   bool
	DepFilePath    string
}

// LinkOptions is the input to EmitLinkCommand.
type LinkOptions struct {
	Objects       []string
	Output        string
	Kind          model.Kind
	Configuration model.Configuration
	IsCxx         bool
	Libraries     []string
	LibraryDirs   []string
	ExtraFlags    []string
}

// Toolchain is the vendor-agnostic contract every compiler family
// implements.
type Toolchain interface {
	Identify() ID
	EmitCompileCommand(opts CompileOptions) (exe string, argv []string)
	EmitLinkCommand(opts LinkOptions) (exe string, argv []string)
	// ParseHeaderDeps extracts header paths from either a .d file's
	// content (GCC/Clang) or captured compiler stdout (MSVC). depFilePath
	// is unused by the MSVC variant.
	ParseHeaderDeps(stdout []byte, depFilePath string) ([]string, error)
	// InitEnvironment returns an environment-variable overlay to apply to
	// spawned compiler/linker processes, or nil if none is needed.
	InitEnvironment(info Info) (map[string]string, error)
}

// preferenceOrder is the platform-specific detection order from
// SPEC_FULL.md §4.4: MSVC before Clang on Windows, Clang before GCC
// elsewhere.
func preferenceOrder() []ID {
	if runtime.GOOS == "windows" {
		return []ID{MSVC, Clang, GCC}
	}
	return []ID{Clang, GCC, MSVC}
}

// Detect probes exec.LookPath for each family's compiler in
// preferenceOrder, honoring an explicit preference first if given. It
// returns the first family whose compiler executable is found.
func Detect(preference ID) (Toolchain, Info, error) {
	order := preferenceOrder()
	if preference != "" {
		reordered := []ID{preference}
		for _, id := range order {
			if id != preference {
				reordered = append(reordered, id)
			}
		}
		order = reordered
	}

	for _, id := range order {
		tc := New(id)
		if info, ok := probe(id); ok {
			return tc, info, nil
		}
	}

	return nil, Info{}, &errs.ToolchainError{Msg: "no C/C++ compiler found on PATH"}
}

func probe(id ID) (Info, bool) {
	switch id {
	case GCC:
		cc, ccErr := exec.LookPath("gcc")
		cxx, cxxErr := exec.LookPath("g++")
		if ccErr != nil && cxxErr != nil {
			return Info{}, false
		}
		ar, _ := exec.LookPath("ar")
		return Info{ID: GCC, CCPath: cc, CXXPath: cxx, LinkerPath: cxx, ArchiverPath: ar}, true
	case Clang:
		cc, ccErr := exec.LookPath("clang")
		cxx, cxxErr := exec.LookPath("clang++")
		if ccErr != nil && cxxErr != nil {
			return Info{}, false
		}
		ar, _ := exec.LookPath("ar")
		return Info{ID: Clang, CCPath: cc, CXXPath: cxx, LinkerPath: cxx, ArchiverPath: ar}, true
	case MSVC:
		cl, err := exec.LookPath("cl.exe")
		if err != nil {
			return Info{}, false
		}
		link, _ := exec.LookPath("link.exe")
		lib, _ := exec.LookPath("lib.exe")
		return Info{ID: MSVC, CCPath: cl, CXXPath: cl, LinkerPath: link, ArchiverPath: lib}, true
	default:
		return Info{}, false
	}
}

// New constructs the Toolchain implementation for id, independent of
// whether it was actually detected on this machine (useful for tests that
// supply a fake exec.LookPath-free environment).
func New(id ID) Toolchain {
	switch id {
	case GCC:
		return &gccLikeToolchain{id: GCC}
	case Clang:
		return &gccLikeToolchain{id: Clang}
	case MSVC:
		return &MSVCToolchain{}
	default:
		panic("toolchain.New: unknown id " + string(id))
	}
}
