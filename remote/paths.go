package remote

import (
	"path"
	"strings"
)

// pathSpace translates between the logical paths callers use and the
// physical paths the SFTP session understands.
//
// With a base path the base becomes the logical root: "/" is the base itself
// and returned paths are relative to it. Without one, logical and physical
// paths coincide and relative paths resolve against the login directory.
type pathSpace struct {
	root     string // absolute physical directory
	chrooted bool
}

func newPathSpace(root string, chrooted bool) pathSpace {
	root = path.Clean("/" + strings.TrimPrefix(root, "/"))
	return pathSpace{root: root, chrooted: chrooted}
}

// physical maps a logical path to the path sent to the server.
func (s pathSpace) physical(logical string) string {
	if !s.chrooted {
		if logical == "" {
			return s.root
		}
		if path.IsAbs(logical) {
			return path.Clean(logical)
		}
		return path.Join(s.root, logical)
	}

	p := path.Clean("/" + logical)
	if s.root == "/" {
		return p
	}
	// already physical
	if p == s.root || strings.HasPrefix(p, s.root+"/") {
		return p
	}
	return path.Join(s.root, p)
}

// logical maps a physical path reported by the server back to the caller's
// coordinate space.
func (s pathSpace) logical(physical string) string {
	if !s.chrooted || s.root == "/" {
		return physical
	}
	switch {
	case physical == s.root:
		return "/"
	case strings.HasPrefix(physical, s.root+"/"):
		return physical[len(s.root):]
	}
	return physical
}

// top is the logical directory unanchored patterns resolve against.
func (s pathSpace) top() string {
	if s.chrooted {
		return "/"
	}
	return s.root
}
