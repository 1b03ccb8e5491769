package filesystem

import (
	"syscall"
	"time"
)

// Kind tells files and directories apart
type Kind uint8

const (
	FileKind Kind = iota
	DirKind
)

func (k Kind) String() string {
	switch k {
	case FileKind:
		return "file"
	case DirKind:
		return "dir"
	default:
		return "unknown"
	}
}

// typeBits returns the S_IFMT bits reported alongside the permission bits
func (k Kind) typeBits() uint32 {
	if k == DirKind {
		return syscall.S_IFDIR
	}
	return syscall.S_IFREG
}

// Default permission bits stamped on creation
const (
	DefaultDirMode  uint32 = 0o755
	DefaultFileMode uint32 = 0o644
)

// Ref addresses a slot of the node arena
type Ref int32

// NoRef is the parent of the root and of scrubbed slots
const NoRef Ref = -1

// node is a single arena slot. Parent and children are arena indices so a
// removed node can never leave a dangling reference behind.
type node struct {
	name     string
	kind     Kind
	parent   Ref
	children []Ref // insertion order; directories only

	uid  uint32
	gid  uint32
	mode uint32 // permission bits only

	atime time.Time
	mtime time.Time
	ctime time.Time

	size    int64
	content []byte // len(content) == size; files only
	live    bool
}

func (n *node) isDir() bool {
	return n.kind == DirKind
}

// scrub resets every field so a freed slot carries no stale data
func (n *node) scrub() {
	clear(n.content)
	*n = node{parent: NoRef}
}
