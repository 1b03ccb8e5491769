package filesystem

// getAttr reports the metadata of the node at path
func (s *Store) getAttr(path string) (Attr, error) {
	ref, err := s.resolve(path)
	if err != nil {
		return Attr{}, err
	}
	return s.attr(ref), nil
}

// create adds a node of the given kind at path
func (s *Store) create(path string, kind Kind) (Ref, error) {
	if isRootPath(path) {
		return NoRef, ErrExist
	}
	dir, name := splitPath(path)
	parent, err := s.resolve(dir)
	if err != nil {
		return NoRef, err
	}
	if !s.nodes[parent].isDir() {
		return NoRef, ErrNotDir
	}
	if err := s.validName(name); err != nil {
		return NoRef, err
	}
	if _, exists := s.child(parent, name); exists {
		return NoRef, ErrExist
	}
	ref, err := s.allocate(name, kind, parent)
	if err != nil {
		return NoRef, err
	}
	s.touchParent(parent)
	return ref, nil
}

// touchParent records a change to a directory's entry list
func (s *Store) touchParent(parent Ref) {
	now := s.stamp()
	s.nodes[parent].mtime = now
	s.nodes[parent].ctime = now
}

func (s *Store) mkdir(path string) error {
	_, err := s.create(path, DirKind)
	return err
}

// list returns the children of the directory at path in insertion order.
// A path naming a file does not resolve to a listable directory, so it
// reports ErrNotFound. "." and ".." are left to the kernel bridge.
func (s *Store) list(path string) ([]DirEntry, error) {
	ref, err := s.resolve(path)
	if err != nil {
		return nil, err
	}
	n := &s.nodes[ref]
	if !n.isDir() {
		return nil, ErrNotFound
	}
	entries := make([]DirEntry, 0, len(n.children))
	for _, c := range n.children {
		entries = append(entries, DirEntry{Name: s.nodes[c].name, Kind: s.nodes[c].kind})
	}
	n.atime = s.stamp()
	return entries, nil
}

func (s *Store) rmdir(path string) error {
	if isRootPath(path) {
		return ErrRootProtected
	}
	ref, err := s.resolve(path)
	if err != nil {
		return err
	}
	n := &s.nodes[ref]
	if !n.isDir() {
		return ErrNotDir
	}
	if len(n.children) > 0 {
		return ErrNotEmpty
	}
	parent := n.parent
	if err := s.detach(ref); err != nil {
		return err
	}
	s.touchParent(parent)
	return nil
}
