package match

import (
	"path"
	"strings"
)

// Glob reports whether name matches the shell pattern. Matching is case
// sensitive. "[!...]" negates a class, a "[" without a closing "]" and a
// backslash are literal characters.
func Glob(pattern, name string) bool {
	ok, err := path.Match(translate(pattern), name)
	return err == nil && ok
}

// translate rewrites a shell pattern into path.Match syntax.
func translate(pattern string) string {
	var b strings.Builder
	for i := 0; i < len(pattern); i++ {
		c := pattern[i]
		switch c {
		case '\\':
			b.WriteString(`\\`)
		case '[':
			end := classEnd(pattern, i)
			if end < 0 {
				b.WriteString(`\[`)
				continue
			}
			writeClass(&b, pattern[i+1:end])
			i = end
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// classEnd returns the index of the "]" closing the class opened at start,
// or -1. A "]" right after "[" or "[!" belongs to the class.
func classEnd(pattern string, start int) int {
	j := start + 1
	if j < len(pattern) && pattern[j] == '!' {
		j++
	}
	if j < len(pattern) && pattern[j] == ']' {
		j++
	}
	k := strings.IndexByte(pattern[j:], ']')
	if k < 0 {
		return -1
	}
	return j + k
}

func writeClass(b *strings.Builder, body string) {
	b.WriteByte('[')
	if strings.HasPrefix(body, "!") {
		b.WriteByte('^')
		body = body[1:]
	} else if strings.HasPrefix(body, "^") {
		b.WriteString(`\^`)
		body = body[1:]
	}
	for i := 0; i < len(body); i++ {
		switch c := body[i]; {
		case c == '\\' || c == ']':
			b.WriteByte('\\')
			b.WriteByte(c)
		case c == '-' && (i == 0 || i == len(body)-1):
			// a leading or trailing dash is literal
			b.WriteString(`\-`)
		default:
			b.WriteByte(c)
		}
	}
	b.WriteByte(']')
}

// PathMatches compares a relative path with a pattern segment by segment.
// Every pattern segment must glob-match the path segment at the same
// position. Trailing pattern segments left over after the path ends must be
// a bare "*".
func PathMatches(rel, pattern string) bool {
	return matchSegments(segments(rel), segments(pattern))
}

func matchSegments(p, pattern []string) bool {
	if len(pattern) == 0 {
		return len(p) == 0
	}
	if len(p) == 0 {
		for _, s := range pattern {
			if s != "*" {
				return false
			}
		}
		return true
	}
	if !Glob(pattern[0], p[0]) {
		return false
	}
	return matchSegments(p[1:], pattern[1:])
}

func segments(p string) []string {
	parts := strings.Split(p, "/")
	out := parts[:0]
	for _, s := range parts {
		if s != "" && s != "." {
			out = append(out, s)
		}
	}
	return out
}
