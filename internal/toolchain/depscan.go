package toolchain

import (
	"bufio"
	"bytes"
	"os"
	"strings"

	"github.com/lbt-build/lbt/internal/errs"
	"github.com/lbt-build/lbt/internal/model"
)

// ParseHeaderDeps reads the .d file at depFilePath, joins
// backslash-continued lines, drops the "target:" token, splits on
// whitespace, and filters to header-looking paths. Deduplicated,
// first-seen order preserved, per SPEC_FULL.md §4.4.
func (g *gccLikeToolchain) ParseHeaderDeps(_ []byte, depFilePath string) ([]string, error) {
	data, err := os.ReadFile(depFilePath)
	if err != nil {
		return nil, &errs.IoError{Path: depFilePath, Err: err}
	}

	joined := strings.ReplaceAll(string(data), "\\\r\n", " ")
	joined = strings.ReplaceAll(joined, "\\\n", " ")

	colon := strings.IndexByte(joined, ':')
	if colon >= 0 {
		joined = joined[colon+1:]
	}

	fields := strings.Fields(joined)

	seen := make(map[string]struct{}, len(fields))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" || !model.IsHeaderPath(f) {
			continue
		}
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out, nil
}

const msvcIncludeMarker = "Note: including file:"

// ParseHeaderDeps scans stdout line-by-line for MSVC's
// "Note: including file:" marker and extracts the trimmed trailing path.
// depFilePath is unused; MSVC emits dependencies to stdout, not a sidecar
// file.
func (m *MSVCToolchain) ParseHeaderDeps(stdout []byte, _ string) ([]string, error) {
	seen := make(map[string]struct{})
	var out []string

	scanner := bufio.NewScanner(bytes.NewReader(stdout))
	for scanner.Scan() {
		line := scanner.Text()
		idx := strings.Index(line, msvcIncludeMarker)
		if idx < 0 {
			continue
		}
		path := strings.TrimSpace(line[idx+len(msvcIncludeMarker):])
		if path == "" {
			continue
		}
		if _, dup := seen[path]; dup {
			continue
		}
		seen[path] = struct{}{}
		out = append(out, path)
	}
	return out, scanner.Err()
}

// FilterNonIncludeLines strips MSVC's /showIncludes noise out of stdout so
// it isn't echoed to the user twice (once as raw compiler output, once via
// the parsed header list in verbose logging).
func FilterNonIncludeLines(stdout []byte) []byte {
	var out bytes.Buffer
	scanner := bufio.NewScanner(bytes.NewReader(stdout))
	for scanner.Scan() {
		line := scanner.Text()
		if strings.Contains(line, msvcIncludeMarker) {
			continue
		}
		out.WriteString(line)
		out.WriteByte('\n')
	}
	return out.Bytes()
}
