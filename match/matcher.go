// Package match resolves user path patterns into remote files.
//
// Three pattern shapes are supported:
//
//	/exports/daily.csv     exact path
//	/exports/*.csv         wildcards within one directory
//	/exports/**/*.csv      recursive below /exports
//
// Only the first "**" is treated as recursive. Whatever follows it, further
// "**" included, is matched as an ordinary pattern.
package match

import (
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/yarkm13/ftpextract/remote"
)

// Kind is the shape of a pattern.
type Kind int

const (
	Exact Kind = iota
	Wildcard
	Recursive
)

func (k Kind) String() string {
	switch k {
	case Wildcard:
		return "wildcard"
	case Recursive:
		return "recursive"
	default:
		return "exact"
	}
}

// KindOf classifies pattern.
func KindOf(pattern string) Kind {
	switch {
	case strings.Contains(pattern, "**"):
		return Recursive
	case strings.ContainsAny(pattern, "*?"):
		return Wildcard
	default:
		return Exact
	}
}

// Matcher evaluates patterns against a connected client.
type Matcher struct {
	client remote.Client
	log    *zap.Logger
}

// New returns a Matcher querying client. A nil logger discards output.
func New(client remote.Client, log *zap.Logger) *Matcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Matcher{client: client, log: log}
}

// MatchPattern returns the files selected by one pattern. Failures are logged
// and yield no files.
func (m *Matcher) MatchPattern(pattern string) []remote.RemoteFile {
	kind := KindOf(pattern)
	m.log.Info("matching pattern", zap.String("pattern", pattern), zap.Stringer("kind", kind))

	switch kind {
	case Recursive:
		return m.matchRecursive(pattern)
	case Wildcard:
		return m.matchWildcard(pattern)
	default:
		return m.matchExact(pattern)
	}
}

// MatchPatterns applies every pattern in order and returns the union, keeping
// the first occurrence of each path.
func (m *Matcher) MatchPatterns(patterns []string) []remote.RemoteFile {
	var out []remote.RemoteFile
	seen := make(map[string]struct{})

	for _, pattern := range patterns {
		for _, f := range m.MatchPattern(pattern) {
			if _, ok := seen[f.Path]; ok {
				continue
			}
			seen[f.Path] = struct{}{}
			out = append(out, f)
		}
	}

	m.log.Info("found unique files", zap.Int("files", len(out)), zap.Int("patterns", len(patterns)))
	return out
}

// FilterByModificationTime keeps the files modified strictly after since.
func FilterByModificationTime(files []remote.RemoteFile, since time.Time) []remote.RemoteFile {
	var out []remote.RemoteFile
	for _, f := range files {
		if f.ModifiedAt.After(since) {
			out = append(out, f)
		}
	}
	return out
}

func (m *Matcher) matchExact(p string) []remote.RemoteFile {
	ok, err := m.client.FileExists(p)
	if err != nil {
		m.log.Warn("could not check file", zap.String("path", p), zap.Error(err))
		return nil
	}
	if !ok {
		m.log.Info("no file at path", zap.String("path", p))
		return nil
	}

	info, err := m.client.GetFileInfo(p)
	if err != nil {
		m.log.Warn("could not get file info", zap.String("path", p), zap.Error(err))
		return nil
	}
	if info.IsDir {
		m.log.Info("path is a directory, skipping", zap.String("path", p))
		return nil
	}

	m.log.Info("found exact match", zap.String("path", p))
	return []remote.RemoteFile{info}
}

// anchor returns dir, or the client's root when the pattern had no directory
// part. An explicit leading "/" always means the server root.
func (m *Matcher) anchor(dir string, absolute bool) string {
	if dir != "" {
		return dir
	}
	if absolute {
		return "/"
	}
	return m.client.Root()
}

func (m *Matcher) matchWildcard(pattern string) []remote.RemoteFile {
	dir, glob := "", pattern
	if i := strings.LastIndex(pattern, "/"); i >= 0 {
		dir, glob = pattern[:i], pattern[i+1:]
	}
	dir = m.anchor(dir, strings.HasPrefix(pattern, "/"))

	files, err := m.client.ListFiles(dir, false)
	if err != nil {
		m.log.Warn("could not list files", zap.String("path", dir), zap.Error(err))
		return nil
	}

	var out []remote.RemoteFile
	for _, f := range files {
		if Glob(glob, f.Name) {
			out = append(out, f)
		}
	}
	m.log.Info("found files matching pattern", zap.String("pattern", pattern), zap.Int("files", len(out)))
	return out
}

// splitRecursive cuts pattern at its first "**".
func splitRecursive(pattern string) (base, rest string) {
	i := strings.Index(pattern, "**")
	base = strings.TrimRight(pattern[:i], "/")
	rest = strings.TrimLeft(pattern[i+2:], "/")
	return base, rest
}

func (m *Matcher) matchRecursive(pattern string) []remote.RemoteFile {
	base, rest := splitRecursive(pattern)
	base = m.anchor(base, strings.HasPrefix(pattern, "/"))

	files, err := m.client.ListFiles(base, true)
	if err != nil {
		m.log.Warn("could not list files", zap.String("path", base), zap.Error(err))
		return nil
	}

	var out []remote.RemoteFile
	switch {
	case rest == "":
		out = files
	case !strings.Contains(rest, "/"):
		for _, f := range files {
			if Glob(rest, path.Base(f.Path)) {
				out = append(out, f)
			}
		}
	default:
		prefixes := []string{base}
		if !path.IsAbs(base) {
			prefixes = append(prefixes, path.Join(m.client.Root(), base))
		}
		for _, f := range files {
			if PathMatches(relative(f.Path, prefixes), rest) {
				out = append(out, f)
			}
		}
	}

	m.log.Info("found files matching pattern", zap.String("pattern", pattern), zap.Int("files", len(out)))
	return out
}

// relative strips the first matching prefix from p.
func relative(p string, prefixes []string) string {
	for _, prefix := range prefixes {
		switch {
		case prefix == "/":
			return strings.TrimPrefix(p, "/")
		case p == prefix:
			return ""
		case strings.HasPrefix(p, prefix+"/"):
			return p[len(prefix)+1:]
		}
	}
	return p
}
