package filesystem

import (
	"strings"
)

// components splits an absolute path into its non-empty segments.
// "." and ".." are ordinary names here.
func components(path string) ([]string, bool) {
	if !strings.HasPrefix(path, "/") {
		return nil, false
	}
	return strings.FieldsFunc(path, func(r rune) bool { return r == '/' }), true
}

// isRootPath reports whether path names the root
func isRootPath(path string) bool {
	return strings.HasPrefix(path, "/") && strings.Trim(path, "/") == ""
}

// resolve walks from the root matching each segment by exact name
func (s *Store) resolve(path string) (Ref, error) {
	parts, ok := components(path)
	if !ok {
		return NoRef, ErrNotFound
	}
	cur := s.root
	for _, part := range parts {
		if !s.nodes[cur].isDir() {
			return NoRef, ErrNotFound
		}
		next, found := s.child(cur, part)
		if !found {
			return NoRef, ErrNotFound
		}
		cur = next
	}
	return cur, nil
}

// splitPath separates the parent directory path from the last segment,
// following dirname/basename: trailing slashes are ignored and a path
// without a parent segment has "/" as its parent.
func splitPath(path string) (dir, name string) {
	trimmed := strings.TrimRight(path, "/")
	if trimmed == "" {
		return "/", "/"
	}
	i := strings.LastIndexByte(trimmed, '/')
	if i < 0 {
		return ".", trimmed
	}
	name = trimmed[i+1:]
	dir = strings.TrimRight(trimmed[:i], "/")
	if dir == "" {
		dir = "/"
	}
	return dir, name
}

// validName checks a new entry name against the name bound
func (s *Store) validName(name string) error {
	switch {
	case name == "" || name == "/" || strings.ContainsAny(name, "/\x00"):
		return ErrInvalid
	case len(name) > s.limits.MaxNameLen:
		return ErrNameTooLong
	}
	return nil
}

// childPath appends name to dir without cleaning, since ".." is a plain name
func childPath(dir, name string) string {
	if dir == "/" {
		return "/" + name
	}
	return dir + "/" + name
}
