// Package errs defines the typed error taxonomy used across lbt's core:
// malformed input, I/O failures, toolchain problems, compile/link failures,
// and cache corruption. Each type wraps an underlying cause and is safe to
// use with errors.As.
package errs

import (
	"fmt"
	"io"
	"strings"

	"github.com/lbt-build/lbt/internal/msg"
)

// ConfigError signals malformed script/model input: duplicate target names,
// unknown kind/language/arch/platform/toolchain strings, or a dependency
// cycle.
type ConfigError struct {
	Msg string
	Err error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("config: %s: %v", e.Msg, e.Err)
	}
	return fmt.Sprintf("config: %s", e.Msg)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// CycleError is a ConfigError carrying the target names that form a
// dependency cycle, in the order they appear on the DFS recursion stack.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle detected: %v", e.Path)
}

// IoError signals a missing build script, unreadable source, or unwritable
// output path.
type IoError struct {
	Path string
	Err  error
}

func (e *IoError) Error() string {
	return fmt.Sprintf("io: %s: %v", e.Path, e.Err)
}

func (e *IoError) Unwrap() error { return e.Err }

// ToolchainError signals that no compiler could be detected, or that
// environment initialization failed.
type ToolchainError struct {
	Msg string
	Err error
}

func (e *ToolchainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("toolchain: %s: %v", e.Msg, e.Err)
	}
	return fmt.Sprintf("toolchain: %s", e.Msg)
}

func (e *ToolchainError) Unwrap() error { return e.Err }

// CompileError reports a single failed compile unit, carrying the command
// line and captured output streams.
type CompileError struct {
	Source  string
	Argv    []string
	Stdout  string
	Stderr  string
	Err     error
}

func (e *CompileError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "compile failed: %s: %v\n", e.Source, e.Err)
	if len(e.Argv) > 0 {
		fmt.Fprintf(&b, "  command: %s\n", strings.Join(e.Argv, " "))
	}
	if e.Stderr != "" {
		io.WriteString(&msg.IndentWriter{Indent: "  ", W: &b}, e.Stderr)
	}
	return b.String()
}

func (e *CompileError) Unwrap() error { return e.Err }

// LinkError reports a failed link or archive invocation.
type LinkError struct {
	Target string
	Argv   []string
	Stderr string
	Err    error
}

func (e *LinkError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "link failed: %s: %v\n", e.Target, e.Err)
	if len(e.Argv) > 0 {
		fmt.Fprintf(&b, "  command: %s\n", strings.Join(e.Argv, " "))
	}
	if e.Stderr != "" {
		io.WriteString(&msg.IndentWriter{Indent: "  ", W: &b}, e.Stderr)
	}
	return b.String()
}

func (e *LinkError) Unwrap() error { return e.Err }

// CacheError signals that the persistent incremental-build store could not
// be read or was corrupted.
type CacheError struct {
	Msg string
	Err error
}

func (e *CacheError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("cache: %s: %v", e.Msg, e.Err)
	}
	return fmt.Sprintf("cache: %s", e.Msg)
}

func (e *CacheError) Unwrap() error { return e.Err }
