package filesystem

import "strings"

// createFile adds an empty file at path. The requested mode is accepted
// for interface compatibility; new files always get DefaultFileMode.
func (s *Store) createFile(path string, _ uint32) error {
	if !strings.HasPrefix(path, "/") {
		return ErrInvalid
	}
	_, err := s.create(path, FileKind)
	return err
}

func (s *Store) resolveFile(path string) (*node, error) {
	ref, err := s.resolve(path)
	if err != nil {
		return nil, err
	}
	n := &s.nodes[ref]
	if n.isDir() {
		return nil, ErrIsDir
	}
	return n, nil
}

// read copies up to length bytes starting at offset. Reading at or past
// the end yields no bytes and no error.
func (s *Store) read(path string, length int, offset int64) ([]byte, error) {
	if length < 0 || offset < 0 {
		return nil, ErrInvalid
	}
	n, err := s.resolveFile(path)
	if err != nil {
		return nil, err
	}
	if offset >= n.size {
		return []byte{}, nil
	}
	end := offset + min(int64(length), n.size-offset)
	out := make([]byte, end-offset)
	copy(out, n.content[offset:end])
	n.atime = s.stamp()
	return out, nil
}

// write stores data at offset, clipping at the file size bound and zero
// filling any gap past the old end. It returns the number of bytes stored.
func (s *Store) write(path string, data []byte, offset int64) (int, error) {
	if offset < 0 {
		return 0, ErrInvalid
	}
	n, err := s.resolveFile(path)
	if err != nil {
		return 0, err
	}
	limit := int64(s.limits.MaxFileSize)
	if offset >= limit {
		return 0, ErrFileTooLarge
	}
	count := min(int64(len(data)), limit-offset)
	end := offset + count
	if grow := end - int64(len(n.content)); grow > 0 {
		n.content = append(n.content, make([]byte, grow)...)
	}
	copy(n.content[offset:end], data[:count])
	n.size = int64(len(n.content))

	now := s.stamp()
	n.mtime = now
	n.ctime = now
	return int(count), nil
}

func (s *Store) truncate(path string, size int64) error {
	n, err := s.resolveFile(path)
	if err != nil {
		return err
	}
	switch {
	case size < 0:
		return ErrInvalid
	case size > int64(s.limits.MaxFileSize):
		return ErrFileTooLarge
	}
	if size < n.size {
		clear(n.content[size:])
		n.content = n.content[:size]
	} else if size > n.size {
		n.content = append(n.content, make([]byte, size-n.size)...)
	}
	n.size = size

	now := s.stamp()
	n.mtime = now
	n.ctime = now
	return nil
}

func (s *Store) unlink(path string) error {
	if isRootPath(path) {
		return ErrRootProtected
	}
	ref, err := s.resolve(path)
	if err != nil {
		return err
	}
	if s.nodes[ref].isDir() {
		return ErrIsDir
	}
	parent := s.nodes[ref].parent
	if err := s.detach(ref); err != nil {
		return err
	}
	s.touchParent(parent)
	return nil
}
