package filesystem

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"
)

// HeaderSize is the byte length of the snapshot header
const HeaderSize = 16

// snapshotHeader frames the payload. Reserved keeps the payload size aligned.
type snapshotHeader struct {
	NodeCount   uint32
	Reserved    uint32
	PayloadSize uint64
}

// recordFields follows the fixed-width name field of every node record
type recordFields struct {
	Kind       uint8
	ChildCount uint32
	Uid        uint32
	Gid        uint32
	Mode       uint32
	Atime      int64 // unix nanoseconds
	Mtime      int64
	Ctime      int64
	Size       int64
}

var byteOrder = binary.LittleEndian

// RecordSize is the byte length of a node record without file content
func RecordSize(limits Limits) int {
	return limits.MaxNameLen + binary.Size(recordFields{})
}

// MaxPayloadSize is the largest payload a tree within limits can produce
func MaxPayloadSize(limits Limits) uint64 {
	perNode := uint64(RecordSize(limits)) + uint64(limits.MaxFileSize)
	return uint64(limits.MaxNodes) * perNode
}

// encode writes the subtree at ref in depth-first preorder
func (s *Store) encode(buf *bytes.Buffer, ref Ref) {
	n := &s.nodes[ref]

	name := make([]byte, s.limits.MaxNameLen)
	copy(name, n.name)
	buf.Write(name)

	rec := recordFields{
		Kind:       uint8(n.kind),
		ChildCount: uint32(len(n.children)),
		Uid:        n.uid,
		Gid:        n.gid,
		Mode:       n.mode,
		Atime:      n.atime.UnixNano(),
		Mtime:      n.mtime.UnixNano(),
		Ctime:      n.ctime.UnixNano(),
		Size:       n.size,
	}
	// writes to a bytes.Buffer cannot fail
	_ = binary.Write(buf, byteOrder, &rec)
	if n.kind == FileKind {
		buf.Write(n.content)
	}
	for _, c := range n.children {
		s.encode(buf, c)
	}
}

// save serializes the whole tree: header first, then the preorder payload
func (s *Store) save(w io.Writer) error {
	var payload bytes.Buffer
	payload.Grow(s.live * RecordSize(s.limits))
	s.encode(&payload, s.root)

	hdr := snapshotHeader{
		NodeCount:   uint32(s.live),
		PayloadSize: uint64(payload.Len()),
	}
	if err := binary.Write(w, byteOrder, &hdr); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	if _, err := payload.WriteTo(w); err != nil {
		return fmt.Errorf("writing payload: %w", err)
	}
	return nil
}

func corrupt(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrCorruptSnapshot, fmt.Sprintf(format, args...))
}

// decodeSnapshot reads a full snapshot into a fresh staging store. The
// receiver only supplies limits and options; it is never modified.
func (s *Store) decodeSnapshot(r io.Reader) (*Store, error) {
	var hdr snapshotHeader
	if err := binary.Read(r, byteOrder, &hdr); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, corrupt("stream shorter than header")
		}
		return nil, fmt.Errorf("reading header: %w", err)
	}
	if hdr.PayloadSize > MaxPayloadSize(s.limits) {
		return nil, corrupt("payload of %d bytes exceeds maximum %d", hdr.PayloadSize, MaxPayloadSize(s.limits))
	}
	if hdr.NodeCount == 0 || int64(hdr.NodeCount) > int64(s.limits.MaxNodes) {
		return nil, corrupt("node count %d outside 1..%d", hdr.NodeCount, s.limits.MaxNodes)
	}

	payload := make([]byte, hdr.PayloadSize)
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, corrupt("payload truncated")
		}
		return nil, fmt.Errorf("reading payload: %w", err)
	}
	var extra [1]byte
	if n, _ := io.ReadFull(r, extra[:]); n > 0 {
		return nil, corrupt("trailing bytes after payload")
	}

	staging := newEmptyStore(s.limits, s.opts...)
	staging.bulk = true
	rd := bytes.NewReader(payload)
	root, err := staging.decodeNode(rd, NoRef)
	if err != nil {
		return nil, err
	}
	if rd.Len() > 0 {
		return nil, corrupt("%d bytes left after the tree", rd.Len())
	}
	if staging.live != int(hdr.NodeCount) {
		return nil, corrupt("header declares %d nodes, payload holds %d", hdr.NodeCount, staging.live)
	}
	if !staging.nodes[root].isDir() {
		return nil, corrupt("root is not a directory")
	}
	staging.root = root
	staging.bulk = false
	return staging, nil
}

// decodeNode allocates one record and then exactly ChildCount subtrees
func (s *Store) decodeNode(rd *bytes.Reader, parent Ref) (Ref, error) {
	nameField := make([]byte, s.limits.MaxNameLen)
	if _, err := io.ReadFull(rd, nameField); err != nil {
		return NoRef, corrupt("record name truncated")
	}
	if i := bytes.IndexByte(nameField, 0); i >= 0 {
		nameField = nameField[:i]
	}
	name := string(nameField)

	var rec recordFields
	if err := binary.Read(rd, byteOrder, &rec); err != nil {
		return NoRef, corrupt("record %q truncated", name)
	}

	kind := Kind(rec.Kind)
	switch {
	case kind != FileKind && kind != DirKind:
		return NoRef, corrupt("record %q has unknown kind %d", name, rec.Kind)
	case name == "":
		return NoRef, corrupt("record with empty name")
	case parent != NoRef && s.validName(name) != nil:
		return NoRef, corrupt("record %q has an invalid name", name)
	case int64(rec.ChildCount) > int64(s.limits.MaxChildren):
		return NoRef, corrupt("record %q declares %d children", name, rec.ChildCount)
	case kind == FileKind && rec.ChildCount > 0:
		return NoRef, corrupt("file %q declares children", name)
	case rec.Size < 0 || rec.Size > int64(s.limits.MaxFileSize):
		return NoRef, corrupt("record %q has size %d", name, rec.Size)
	case kind == DirKind && rec.Size != 0:
		return NoRef, corrupt("directory %q has size %d", name, rec.Size)
	}

	ref, err := s.allocate(name, kind, parent)
	if err != nil {
		return NoRef, corrupt("record %q: %v", name, err)
	}
	n := &s.nodes[ref]
	n.uid = rec.Uid
	n.gid = rec.Gid
	n.mode = rec.Mode
	n.atime = time.Unix(0, rec.Atime).UTC()
	n.mtime = time.Unix(0, rec.Mtime).UTC()
	n.ctime = time.Unix(0, rec.Ctime).UTC()
	n.size = rec.Size
	if kind == FileKind {
		n.content = make([]byte, rec.Size)
		if _, err := io.ReadFull(rd, n.content); err != nil {
			return NoRef, corrupt("content of %q truncated", name)
		}
	}

	for range rec.ChildCount {
		child, err := s.decodeNode(rd, ref)
		if err != nil {
			return NoRef, err
		}
		childName := s.nodes[child].name
		if _, dup := s.child(ref, childName); dup {
			return NoRef, corrupt("duplicate entry %q in %q", childName, name)
		}
		// s.nodes may have grown; index again
		s.nodes[ref].children = append(s.nodes[ref].children, child)
	}
	return ref, nil
}
