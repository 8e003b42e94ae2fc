package driver

import (
	"path/filepath"
	"runtime"

	"github.com/lbt-build/lbt/internal/model"
)

// ArtifactName computes the platform- and configuration-specific output
// filename for a target, per SPEC_FULL.md §6. The "_d" suffix is appended
// only in Debug configuration.
func ArtifactName(name string, kind model.Kind, cfg model.Configuration, goos string) string {
	suffix := ""
	if cfg == model.Debug {
		suffix = "_d"
	}

	switch kind {
	case model.Executable:
		if goos == "windows" {
			return name + suffix + ".exe"
		}
		return name + suffix
	case model.StaticLibrary:
		if goos == "windows" {
			return name + suffix + ".lib"
		}
		return "lib" + name + suffix + ".a"
	case model.SharedLibrary:
		switch goos {
		case "windows":
			return name + suffix + ".dll"
		case "darwin":
			return "lib" + name + suffix + ".dylib"
		default:
			return "lib" + name + suffix + ".so"
		}
	default:
		return name + suffix
	}
}

// ImportLibName computes the MSVC import-library name that accompanies a
// shared-library artifact on Windows; it is empty on every other platform
// and kind.
func ImportLibName(name string, kind model.Kind, cfg model.Configuration, goos string) string {
	if kind != model.SharedLibrary || goos != "windows" {
		return ""
	}
	suffix := ""
	if cfg == model.Debug {
		suffix = "_d"
	}
	return name + suffix + ".lib"
}

// HostGOOS is a thin indirection over runtime.GOOS so tests can exercise
// every platform's naming rules without actually running on each OS.
func HostGOOS() string { return runtime.GOOS }

func objExtFor(goos string) string {
	if goos == "windows" {
		return "obj"
	}
	return "o"
}

func outputRoot(projectRoot string, cfg model.Configuration) string {
	return filepath.Join(projectRoot, "build", cfg.String())
}

func objRoot(projectRoot string, cfg model.Configuration) string {
	return filepath.Join(outputRoot(projectRoot, cfg), "obj")
}
