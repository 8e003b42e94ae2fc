package model

import "path/filepath"

// SourceKind classifies a source file by its extension.
type SourceKind int

const (
	SourceOther SourceKind = iota
	SourceC
	SourceCxx
	SourceHeader
)

var cExts = map[string]bool{".c": true}
var cxxExts = map[string]bool{".cc": true, ".cpp": true, ".cxx": true, ".c++": true, ".cppm": true, ".ixx": true}
var headerExts = map[string]bool{".h": true, ".hpp": true, ".hh": true, ".hxx": true, ".inl": true}

// ClassifySource derives a SourceKind from path's extension.
func ClassifySource(path string) SourceKind {
	ext := filepath.Ext(path)
	switch {
	case cExts[ext]:
		return SourceC
	case cxxExts[ext]:
		return SourceCxx
	case headerExts[ext]:
		return SourceHeader
	default:
		return SourceOther
	}
}

// IsHeaderPath reports whether path looks like a header by extension,
// used by header-dependency parsing to filter non-header entries out of
// compiler-emitted dependency lists.
func IsHeaderPath(path string) bool {
	return headerExts[filepath.Ext(path)]
}

// SourceFile is the per-translation-unit record from SPEC_FULL.md §3: an
// absolute source path, its derived kind, the target that owns it, and the
// object-file path under the unified output root that preserves the
// source's directory structure relative to the target's base directory.
type SourceFile struct {
	Path         string
	Kind         SourceKind
	OwningTarget string
	ObjectPath   string
}

// NewSourceFile classifies path and resolves its object-file location,
// producing the per-translation-unit record a target's compile plan is
// built from.
func NewSourceFile(owningTarget, path, outputRoot, baseDir, objSuffix string) SourceFile {
	return SourceFile{
		Path:         path,
		Kind:         ClassifySource(path),
		OwningTarget: owningTarget,
		ObjectPath:   ObjectPath(outputRoot, baseDir, path, objSuffix),
	}
}

// ObjSuffix is the platform object-file extension ("o" on POSIX toolchains,
// "obj" on MSVC); callers pick it from the active toolchain.
func ObjectPath(outputRoot, baseDir, srcPath, objSuffix string) string {
	rel, err := filepath.Rel(baseDir, srcPath)
	if err != nil || len(rel) >= 2 && rel[:2] == ".." {
		rel = filepath.Base(srcPath)
	}
	stem := rel[:len(rel)-len(filepath.Ext(rel))]
	return filepath.Join(outputRoot, stem+"."+objSuffix)
}
