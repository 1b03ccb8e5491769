package filesystem

import (
	"io"
	"sync"

	"github.com/brettbedarf/snapfs/config"
	"github.com/brettbedarf/snapfs/internal/util"
)

// FileSystem serializes access to a single node arena. Every operation,
// reads included since they refresh access times, takes the same lock.
type FileSystem struct {
	mu    sync.Mutex
	store *Store
}

// Stats reports pool usage
type Stats struct {
	Nodes int // live nodes, root included
	Limits
}

func NewFS(cfg *config.Config, opts ...Option) *FileSystem {
	return NewFSWithLimits(LimitsFromConfig(cfg), opts...)
}

func NewFSWithLimits(limits Limits, opts ...Option) *FileSystem {
	return &FileSystem{store: NewStore(limits, opts...)}
}

func (fs *FileSystem) GetAttr(p string) (Attr, error) {
	logger := util.GetLogger("FS.GetAttr")
	logger.Trace().Str("path", p).Msg("GetAttr called")

	fs.mu.Lock()
	defer fs.mu.Unlock()
	a, err := fs.store.getAttr(p)
	if err != nil {
		logger.Debug().Err(err).Str("path", p).Msg("No node found")
		return Attr{}, opErr(OpGetattr, p, err)
	}
	return a, nil
}

func (fs *FileSystem) Mkdir(p string) error {
	logger := util.GetLogger("FS.Mkdir")
	logger.Trace().Str("path", p).Msg("Mkdir called")

	fs.mu.Lock()
	defer fs.mu.Unlock()
	if err := fs.store.mkdir(p); err != nil {
		logger.Debug().Err(err).Str("path", p).Msg("Failed to create directory")
		return opErr(OpMkdir, p, err)
	}
	return nil
}

// List returns the entries of a directory in creation order
func (fs *FileSystem) List(p string) ([]DirEntry, error) {
	logger := util.GetLogger("FS.List")
	logger.Trace().Str("path", p).Msg("List called")

	fs.mu.Lock()
	defer fs.mu.Unlock()
	entries, err := fs.store.list(p)
	if err != nil {
		logger.Debug().Err(err).Str("path", p).Msg("Failed to list directory")
		return nil, opErr(OpReadDir, p, err)
	}
	return entries, nil
}

func (fs *FileSystem) Rmdir(p string) error {
	logger := util.GetLogger("FS.Rmdir")
	logger.Trace().Str("path", p).Msg("Rmdir called")

	fs.mu.Lock()
	defer fs.mu.Unlock()
	if err := fs.store.rmdir(p); err != nil {
		logger.Debug().Err(err).Str("path", p).Msg("Failed to remove directory")
		return opErr(OpRmdir, p, err)
	}
	return nil
}

// Create adds an empty regular file. mode is ignored, see DefaultFileMode.
func (fs *FileSystem) Create(p string, mode uint32) error {
	logger := util.GetLogger("FS.Create")
	logger.Trace().Str("path", p).Uint32("mode", mode).Msg("Create called")

	fs.mu.Lock()
	defer fs.mu.Unlock()
	if err := fs.store.createFile(p, mode); err != nil {
		logger.Debug().Err(err).Str("path", p).Msg("Failed to create file")
		return opErr(OpCreate, p, err)
	}
	return nil
}

func (fs *FileSystem) Read(p string, length int, offset int64) ([]byte, error) {
	logger := util.GetLogger("FS.Read")
	logger.Trace().Str("path", p).Int("length", length).Int64("offset", offset).Msg("Read called")

	fs.mu.Lock()
	defer fs.mu.Unlock()
	data, err := fs.store.read(p, length, offset)
	if err != nil {
		logger.Debug().Err(err).Str("path", p).Msg("Failed to read")
		return nil, opErr(OpRead, p, err)
	}
	return data, nil
}

func (fs *FileSystem) Write(p string, data []byte, offset int64) (int, error) {
	logger := util.GetLogger("FS.Write")
	logger.Trace().Str("path", p).Int("length", len(data)).Int64("offset", offset).Msg("Write called")

	fs.mu.Lock()
	defer fs.mu.Unlock()
	n, err := fs.store.write(p, data, offset)
	if err != nil {
		logger.Debug().Err(err).Str("path", p).Msg("Failed to write")
		return 0, opErr(OpWrite, p, err)
	}
	if n < len(data) {
		logger.Debug().Str("path", p).Int("requested", len(data)).Int("written", n).Msg("Short write at file size bound")
	}
	return n, nil
}

func (fs *FileSystem) Truncate(p string, size int64) error {
	logger := util.GetLogger("FS.Truncate")
	logger.Trace().Str("path", p).Int64("size", size).Msg("Truncate called")

	fs.mu.Lock()
	defer fs.mu.Unlock()
	if err := fs.store.truncate(p, size); err != nil {
		logger.Debug().Err(err).Str("path", p).Msg("Failed to truncate")
		return opErr(OpTruncate, p, err)
	}
	return nil
}

func (fs *FileSystem) Unlink(p string) error {
	logger := util.GetLogger("FS.Unlink")
	logger.Trace().Str("path", p).Msg("Unlink called")

	fs.mu.Lock()
	defer fs.mu.Unlock()
	if err := fs.store.unlink(p); err != nil {
		logger.Debug().Err(err).Str("path", p).Msg("Failed to unlink")
		return opErr(OpUnlink, p, err)
	}
	return nil
}

// Save writes a snapshot of the whole tree to w
func (fs *FileSystem) Save(w io.Writer) error {
	logger := util.GetLogger("FS.Save")

	fs.mu.Lock()
	defer fs.mu.Unlock()
	if err := fs.store.save(w); err != nil {
		logger.Error().Err(err).Msg("Failed to save snapshot")
		return opErr(OpSave, "", err)
	}
	logger.Info().Int("nodes", fs.store.live).Msg("Saved snapshot")
	return nil
}

// Load replaces the tree with the snapshot read from r. The snapshot is
// decoded into a separate arena first, so on any error the current tree
// is left exactly as it was.
func (fs *FileSystem) Load(r io.Reader) error {
	logger := util.GetLogger("FS.Load")

	fs.mu.Lock()
	defer fs.mu.Unlock()
	staged, err := fs.store.decodeSnapshot(r)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to load snapshot")
		return opErr(OpLoad, "", err)
	}
	fs.store.adopt(staged)
	logger.Info().Int("nodes", fs.store.live).Msg("Loaded snapshot")
	return nil
}

func (fs *FileSystem) Stats() Stats {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return Stats{Nodes: fs.store.live, Limits: fs.store.limits}
}

// WalkFunc is called for every node in preorder. Returning an error stops the walk.
type WalkFunc func(p string, a Attr) error

// Walk visits the tree in the same order snapshots are written. fn must not
// call back into fs.
func (fs *FileSystem) Walk(fn WalkFunc) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.store.walk(fs.store.root, "/", fn)
}

func (s *Store) walk(ref Ref, p string, fn WalkFunc) error {
	if err := fn(p, s.attr(ref)); err != nil {
		return err
	}
	for _, c := range s.nodes[ref].children {
		if err := s.walk(c, childPath(p, s.nodes[c].name), fn); err != nil {
			return err
		}
	}
	return nil
}
