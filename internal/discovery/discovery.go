// Package discovery walks the project source tree and resolves, for every
// compilable source file, the set of project headers it transitively
// includes.
//
// Include resolution is a lightweight textual scan for #include directives,
// not a full preprocessor pass: conditional compilation and macro-generated
// includes are not understood. That is sufficient for staleness decisions,
// which only need a superset-accurate input set, and keeps the scan cheap.
package discovery

import (
	"bufio"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	cberrors "git.home.luguber.info/inful/cbuild/internal/errors"
)

// SourceExt is the recognized source file extension.
const SourceExt = ".c"

// SourceUnit is one compilable file together with the inputs that affect
// its object: its own path and every project header it transitively
// includes. Units are rebuilt on every scan and never persisted.
type SourceUnit struct {
	// Path is the absolute path to the source file.
	Path string
	// Rel is the path relative to the source root; object paths mirror it.
	Rel string
	// Headers holds absolute paths of transitively included project
	// headers, sorted for determinism.
	Headers []string
	// ModTime is the source file's modification time at scan time.
	ModTime time.Time
}

// Scanner discovers source units under a source root.
type Scanner struct {
	sourceDir   string
	includeDirs []string
}

// NewScanner creates a scanner for the given source root. Quoted and angle
// includes are resolved against the including file's own directory first,
// then the given include directories, in order. Includes that resolve to
// nothing (system headers) are ignored.
func NewScanner(sourceDir string, includeDirs ...string) *Scanner {
	return &Scanner{sourceDir: sourceDir, includeDirs: includeDirs}
}

var includeRe = regexp.MustCompile(`^\s*#\s*include\s+["<]([^">]+)[">]`)

// Scan walks the source root and returns the lexicographically ordered
// units. Unreadable files are reported per path and aggregated; the
// remaining files are still scanned. A missing source root aborts
// immediately.
func (s *Scanner) Scan() ([]SourceUnit, error) {
	if info, err := os.Stat(s.sourceDir); err != nil || !info.IsDir() {
		return nil, cberrors.MissingDirectory("source", s.sourceDir)
	}

	var units []SourceUnit
	var scanErrs []error

	walkErr := filepath.WalkDir(s.sourceDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			scanErrs = append(scanErrs, cberrors.UnreadableSource(path, err))
			return nil
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), SourceExt) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			scanErrs = append(scanErrs, cberrors.UnreadableSource(path, err))
			return nil
		}

		headers, err := s.transitiveHeaders(path)
		if err != nil {
			scanErrs = append(scanErrs, err)
			return nil
		}

		rel, err := filepath.Rel(s.sourceDir, path)
		if err != nil {
			return err
		}

		units = append(units, SourceUnit{
			Path:    path,
			Rel:     rel,
			Headers: headers,
			ModTime: info.ModTime(),
		})
		return nil
	})
	if walkErr != nil {
		return nil, cberrors.DiscoveryFailed(walkErr)
	}
	if len(scanErrs) > 0 {
		return units, cberrors.DiscoveryFailed(errors.Join(scanErrs...))
	}

	// WalkDir visits in lexical order already; sorting keeps the contract
	// independent of the traversal implementation.
	sort.Slice(units, func(i, j int) bool { return units[i].Rel < units[j].Rel })
	return units, nil
}

// transitiveHeaders computes the transitive include closure of one file.
func (s *Scanner) transitiveHeaders(path string) ([]string, error) {
	seen := make(map[string]bool)
	queue := []string{path}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		directives, err := scanIncludes(current)
		if err != nil {
			return nil, cberrors.UnreadableSource(current, err)
		}

		for _, name := range directives {
			resolved := s.resolve(filepath.Dir(current), name)
			if resolved == "" || seen[resolved] {
				continue
			}
			seen[resolved] = true
			queue = append(queue, resolved)
		}
	}

	headers := make([]string, 0, len(seen))
	for h := range seen {
		headers = append(headers, h)
	}
	sort.Strings(headers)
	return headers, nil
}

// resolve maps an include name to an existing file, or "" if it is not a
// project header.
func (s *Scanner) resolve(fromDir, name string) string {
	candidates := make([]string, 0, len(s.includeDirs)+1)
	candidates = append(candidates, filepath.Join(fromDir, name))
	for _, dir := range s.includeDirs {
		candidates = append(candidates, filepath.Join(dir, name))
	}
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && !info.IsDir() {
			abs, err := filepath.Abs(c)
			if err == nil {
				return abs
			}
		}
	}
	return ""
}

// scanIncludes returns the include names mentioned by one file.
func scanIncludes(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var names []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if m := includeRe.FindStringSubmatch(scanner.Text()); m != nil {
			names = append(names, m[1])
		}
	}
	return names, scanner.Err()
}
