package filesystem

import "time"

// Attr is the metadata reported for a node
type Attr struct {
	Kind  Kind
	Mode  uint32 // S_IFDIR or S_IFREG ORed with the permission bits
	Nlink uint32
	Uid   uint32
	Gid   uint32
	Size  int64
	Atime time.Time
	Mtime time.Time
	Ctime time.Time
}

func (a Attr) IsDir() bool {
	return a.Kind == DirKind
}

// DirEntry is one child of a listed directory
type DirEntry struct {
	Name string
	Kind Kind
}

func (s *Store) attr(ref Ref) Attr {
	n := &s.nodes[ref]
	a := Attr{
		Kind:  n.kind,
		Mode:  n.kind.typeBits() | n.mode,
		Nlink: 1,
		Uid:   n.uid,
		Gid:   n.gid,
		Size:  n.size,
		Atime: n.atime,
		Mtime: n.mtime,
		Ctime: n.ctime,
	}
	if n.isDir() {
		a.Nlink = 2
		for _, c := range n.children {
			if s.nodes[c].isDir() {
				a.Nlink++
			}
		}
	}
	return a
}
