package filesystem

import (
	"os"
	"time"

	"github.com/brettbedarf/snapfs/config"
)

// Limits bounds the size of a tree
type Limits struct {
	MaxNodes    int // node pool capacity, root included
	MaxChildren int // entries per directory
	MaxNameLen  int // bytes per entry name
	MaxFileSize int // bytes per file
}

func LimitsFromConfig(cfg *config.Config) Limits {
	return Limits{
		MaxNodes:    cfg.MaxNodes,
		MaxChildren: cfg.MaxChildren,
		MaxNameLen:  cfg.MaxNameLen,
		MaxFileSize: cfg.MaxFileSize,
	}
}

func DefaultLimits() Limits {
	return Limits{
		MaxNodes:    config.DefaultMaxNodes,
		MaxChildren: config.DefaultMaxChildren,
		MaxNameLen:  config.DefaultMaxNameLen,
		MaxFileSize: config.DefaultMaxFileSize,
	}
}

// Option customizes a Store
type Option func(*Store)

// WithClock replaces the timestamp source
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithOwner stamps new nodes with a fixed owner instead of the process identity
func WithOwner(uid, gid uint32) Option {
	return func(s *Store) {
		s.owner = func() (uint32, uint32) { return uid, gid }
	}
}

// Store is the node arena. Slots are recycled through a free list so the
// next allocation index is independent of the live count. Store is not safe
// for concurrent use; FileSystem serializes access.
type Store struct {
	limits Limits
	nodes  []node
	free   []Ref // vacated slots, reused LIFO
	live   int
	root   Ref

	// bulk skips child linking and the child bound while a snapshot
	// is decoded into a staging store
	bulk bool

	now   func() time.Time
	owner func() (uid, gid uint32)
	opts  []Option
}

// NewStore returns an arena holding a single root directory
func NewStore(limits Limits, opts ...Option) *Store {
	s := newEmptyStore(limits, opts...)
	root, err := s.allocate("/", DirKind, NoRef)
	if err != nil {
		// only possible with MaxNodes < 1, which config validation rejects
		panic(err)
	}
	s.root = root
	return s
}

func newEmptyStore(limits Limits, opts ...Option) *Store {
	s := &Store{
		limits: limits,
		root:   NoRef,
		now:    time.Now,
		owner:  processOwner,
		opts:   opts,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func processOwner() (uint32, uint32) {
	return uint32(os.Getuid()), uint32(os.Getgid())
}

func (s *Store) Limits() Limits {
	return s.limits
}

// Live returns the number of live nodes, root included
func (s *Store) Live() int {
	return s.live
}

func (s *Store) stamp() time.Time {
	return s.now().Round(0).UTC()
}

// allocate claims a slot, initializes it and links it under parent.
// The child bound is checked before any slot is consumed.
func (s *Store) allocate(name string, kind Kind, parent Ref) (Ref, error) {
	if s.live >= s.limits.MaxNodes {
		return NoRef, ErrNoSpace
	}
	if parent != NoRef && !s.bulk && len(s.nodes[parent].children) >= s.limits.MaxChildren {
		return NoRef, ErrNoSpace
	}

	var ref Ref
	if n := len(s.free); n > 0 {
		ref = s.free[n-1]
		s.free = s.free[:n-1]
	} else {
		s.nodes = append(s.nodes, node{parent: NoRef})
		ref = Ref(len(s.nodes) - 1)
	}

	uid, gid := s.owner()
	now := s.stamp()
	mode := DefaultFileMode
	if kind == DirKind {
		mode = DefaultDirMode
	}
	s.nodes[ref] = node{
		name:   name,
		kind:   kind,
		parent: parent,
		uid:    uid,
		gid:    gid,
		mode:   mode,
		atime:  now,
		mtime:  now,
		ctime:  now,
		live:   true,
	}
	s.live++

	if parent != NoRef && !s.bulk {
		p := &s.nodes[parent]
		p.children = append(p.children, ref)
	}
	return ref, nil
}

// release scrubs a slot and returns it to the free list.
// The caller must already have unlinked it from its parent.
func (s *Store) release(ref Ref) {
	s.nodes[ref].scrub()
	s.free = append(s.free, ref)
	s.live--
}

// detach unlinks ref from its parent, preserving sibling order, and
// releases the slot
func (s *Store) detach(ref Ref) error {
	parent := s.nodes[ref].parent
	if parent == NoRef {
		return ErrIO
	}
	p := &s.nodes[parent]
	for i, child := range p.children {
		if child == ref {
			p.children = append(p.children[:i], p.children[i+1:]...)
			s.release(ref)
			return nil
		}
	}
	return ErrIO
}

// child finds a live child of dir by exact name
func (s *Store) child(dir Ref, name string) (Ref, bool) {
	for _, c := range s.nodes[dir].children {
		if s.nodes[c].name == name {
			return c, true
		}
	}
	return NoRef, false
}

// adopt replaces the contents of s with those of other, keeping the
// identity of s so outstanding pointers to it stay valid
func (s *Store) adopt(other *Store) {
	s.nodes = other.nodes
	s.free = other.free
	s.live = other.live
	s.root = other.root
	s.bulk = false
}
