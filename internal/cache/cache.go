// Package cache implements the persistent incremental-build store from
// SPEC_FULL.md §4.5: a single JSON document at <root>/.lbt/cache.json
// behind a single-writer/multiple-reader mutex, tracking FileMeta,
// CompileUnit, and HeaderDep records.
//
// Storage is a flat file rather than a SQL database: the storage contract
// is kept backend-agnostic, and gen.QobsBuilder's incremental-build
// generator persists exactly this way -- one JSON document via
// encoding/json, loaded once and rewritten whole on save. This package
// generalizes that single per-target BuildState map into three entity
// tables (FileMeta, CompileUnit, HeaderDep) addressable independently of
// which target they belong to.
package cache

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/lbt-build/lbt/internal/errs"
	"github.com/lbt-build/lbt/internal/fingerprint"
)

// FileMeta caches a file's content hash alongside the mtime/size it was
// computed against, so unchanged files don't need rehashing.
type FileMeta struct {
	Path    string `json:"path"`
	Hash    string `json:"hash"`
	ModTime int64  `json:"mtime"`
	Size    int64  `json:"size"`
}

// HeaderDep is one header a source file was observed to include.
type HeaderDep struct {
	SourcePath   string `json:"source_path"`
	HeaderPath   string `json:"header_path"`
	IsSystem     bool   `json:"is_system"`
}

// CompileUnit is the cache record for one object file.
type CompileUnit struct {
	ObjectPath  string `json:"object_path"`
	SourcePath  string `json:"source_path"`
	SourceHash  string `json:"source_hash"`
	ArgsHash    string `json:"args_hash"`
	DepsHash    string `json:"deps_hash"`
	ToolchainID string `json:"toolchain_id"`
	CompiledAt  int64  `json:"compiled_at"`
}

// document is the on-disk shape of cache.json.
type document struct {
	Files map[string]FileMeta      `json:"files"`
	Units map[string]CompileUnit   `json:"units"`
	Deps  map[string][]HeaderDep   `json:"deps"`
}

// systemHeaderRoots is the configurable prefix list used to classify a
// header as a system header (excluded from the deps-hash) vs. a project
// header. Callers may extend this via AddSystemRoot for toolchain-specific
// overlays (e.g. MSVC's captured INCLUDE directories).
var defaultSystemRoots = []string{
	"/usr/include",
	"/usr/local/include",
	"/Library/Developer",
	"/Applications/Xcode.app",
}

// Store is the persistent incremental-build cache.
type Store struct {
	mu   sync.RWMutex
	path string

	files map[string]FileMeta
	units map[string]CompileUnit
	deps  map[string][]HeaderDep

	systemRoots []string
	hot         *lru.Cache[hotKey, string] // (path, mtime, size) -> content hash, process lifetime
}

// hotKey identifies a file's content at a specific mtime/size, so a hash
// computed before a file changes on disk can never be served back out
// under the file's new stat -- stale entries simply miss instead of
// silently matching.
type hotKey struct {
	path    string
	modTime int64
	size    int64
}

// Open loads the cache at <root>/.lbt/cache.json, creating an empty store
// if it doesn't exist yet. A corrupted store is logged by the caller and
// recreated empty -- Open itself returns a CacheError so the Driver can
// decide whether to warn-and-recreate or abort.
func Open(root string) (*Store, error) {
	path := filepath.Join(root, ".lbt", "cache.json")
	s := newStore(path)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, &errs.CacheError{Msg: "read " + path, Err: err}
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &errs.CacheError{Msg: "parse " + path, Err: err}
	}

	if doc.Files != nil {
		s.files = doc.Files
	}
	if doc.Units != nil {
		s.units = doc.Units
	}
	if doc.Deps != nil {
		s.deps = doc.Deps
	}

	return s, nil
}

func newStore(path string) *Store {
	hot, _ := lru.New[hotKey, string](2048)
	return &Store{
		path:        path,
		files:       make(map[string]FileMeta),
		units:       make(map[string]CompileUnit),
		deps:        make(map[string][]HeaderDep),
		systemRoots: append([]string(nil), defaultSystemRoots...),
		hot:         hot,
	}
}

// AddSystemRoot registers an additional path prefix treated as a system
// header location (not hashed into deps-hash, not required to survive
// header-change invalidation as strictly as project headers).
func (s *Store) AddSystemRoot(prefix string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.systemRoots = append(s.systemRoots, prefix)
}

func (s *Store) isSystemHeader(path string) bool {
	for _, root := range s.systemRoots {
		if len(path) >= len(root) && path[:len(root)] == root {
			return true
		}
	}
	return false
}

// GetOrUpdateFileMeta returns path's cached FileMeta if its mtime/size
// still match disk, recomputing and persisting the content hash otherwise.
func (s *Store) GetOrUpdateFileMeta(path string) (FileMeta, error) {
	stat, err := os.Stat(path)
	if err != nil {
		return FileMeta{}, &errs.IoError{Path: path, Err: err}
	}

	s.mu.RLock()
	existing, ok := s.files[path]
	s.mu.RUnlock()

	if ok && existing.ModTime == stat.ModTime().UnixNano() && existing.Size == stat.Size() {
		return existing, nil
	}

	key := hotKey{path: path, modTime: stat.ModTime().UnixNano(), size: stat.Size()}

	if hash, ok := s.hot.Get(key); ok {
		meta := FileMeta{Path: path, Hash: hash, ModTime: key.modTime, Size: key.size}
		s.mu.Lock()
		s.files[path] = meta
		s.mu.Unlock()
		return meta, nil
	}

	hash, err := fingerprint.HashFile(path)
	if err != nil {
		return FileMeta{}, err
	}
	s.hot.Add(key, hash)

	meta := FileMeta{Path: path, Hash: hash, ModTime: key.modTime, Size: key.size}
	s.mu.Lock()
	s.files[path] = meta
	s.mu.Unlock()
	return meta, nil
}

// NeedsRebuild implements the soundness contract from SPEC_FULL.md §4.5:
// true if the object is missing, there's no prior CompileUnit, the
// toolchain/args/source hash differ, a recorded project header is missing,
// or the recomputed deps-hash diverges from what was recorded.
func (s *Store) NeedsRebuild(source, object, argsString, toolchainID string) (bool, error) {
	if _, err := os.Stat(object); err != nil {
		return true, nil
	}

	s.mu.RLock()
	unit, ok := s.units[object]
	s.mu.RUnlock()
	if !ok {
		return true, nil
	}

	if unit.ToolchainID != toolchainID {
		return true, nil
	}
	if unit.ArgsHash != fingerprint.HashString(argsString) {
		return true, nil
	}

	srcMeta, err := s.GetOrUpdateFileMeta(source)
	if err != nil {
		return true, nil // source vanished
	}
	if unit.SourceHash != srcMeta.Hash {
		return true, nil
	}

	s.mu.RLock()
	headerDeps := append([]HeaderDep(nil), s.deps[source]...)
	s.mu.RUnlock()

	var nonSystemHashes []string
	for _, dep := range headerDeps {
		if dep.IsSystem {
			continue
		}
		meta, err := s.GetOrUpdateFileMeta(dep.HeaderPath)
		if err != nil {
			return true, nil // missing project header -> rebuild
		}
		nonSystemHashes = append(nonSystemHashes, meta.Hash)
	}
	sort.Strings(nonSystemHashes)

	if fingerprint.HashSorted(nonSystemHashes) != unit.DepsHash {
		return true, nil
	}

	return false, nil
}

// RecordCompilation replaces source's HeaderDep set and upserts its
// CompileUnit after a successful compile, per SPEC_FULL.md §4.5.
func (s *Store) RecordCompilation(source, object, argsString, toolchainID string, headerPaths []string, compiledAt int64) error {
	srcMeta, err := s.GetOrUpdateFileMeta(source)
	if err != nil {
		return err
	}

	newDeps := make([]HeaderDep, 0, len(headerPaths))
	var nonSystemHashes []string
	for _, h := range headerPaths {
		isSystem := s.isSystemHeader(h)
		newDeps = append(newDeps, HeaderDep{SourcePath: source, HeaderPath: h, IsSystem: isSystem})
		if !isSystem {
			meta, err := s.GetOrUpdateFileMeta(h)
			if err != nil {
				continue
			}
			nonSystemHashes = append(nonSystemHashes, meta.Hash)
		}
	}
	sort.Strings(nonSystemHashes)

	unit := CompileUnit{
		ObjectPath:  object,
		SourcePath:  source,
		SourceHash:  srcMeta.Hash,
		ArgsHash:    fingerprint.HashString(argsString),
		DepsHash:    fingerprint.HashSorted(nonSystemHashes),
		ToolchainID: toolchainID,
		CompiledAt:  compiledAt,
	}

	s.mu.Lock()
	s.deps[source] = newDeps
	s.units[object] = unit
	s.mu.Unlock()

	return nil
}

// Clear truncates every cache table, forcing a full rebuild on the next
// invocation.
func (s *Store) Clear() error {
	s.mu.Lock()
	s.files = make(map[string]FileMeta)
	s.units = make(map[string]CompileUnit)
	s.deps = make(map[string][]HeaderDep)
	s.mu.Unlock()
	return s.Save()
}

// Save persists the store to disk, writing to a uniquely-named staging
// file first and renaming it into place so a crash mid-write never leaves
// cache.json truncated or half-written.
func (s *Store) Save() error {
	s.mu.RLock()
	doc := document{Files: s.files, Units: s.units, Deps: s.deps}
	s.mu.RUnlock()

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return &errs.CacheError{Msg: "marshal", Err: err}
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return &errs.CacheError{Msg: "mkdir", Err: err}
	}

	staging := s.path + "." + uuid.NewString() + ".tmp"
	if err := os.WriteFile(staging, data, 0o644); err != nil {
		return &errs.CacheError{Msg: "write " + staging, Err: err}
	}
	if err := os.Rename(staging, s.path); err != nil {
		os.Remove(staging)
		return &errs.CacheError{Msg: "rename into place", Err: err}
	}
	return nil
}

// Path returns the on-disk location of this store.
func (s *Store) Path() string { return s.path }
