package fuse

import (
	"syscall"
	"time"

	"github.com/brettbedarf/snapfs"
	"github.com/brettbedarf/snapfs/config"
	"github.com/brettbedarf/snapfs/filesystem"
	"github.com/brettbedarf/snapfs/internal/util"
	"github.com/hanwen/go-fuse/v2/fuse"
)

const blockSize = 4096

// FuseRaw implements the low-level FUSE wire protocol.
// It serves as protocol adapter between the kernel and the core filesystem,
// translating node ids to paths and core errors to errnos.
// See https://www.man7.org/linux//man-pages/man4/fuse.4.html
type FuseRaw struct {
	fuse.RawFileSystem
	fs           snapfs.Operator
	ids          *Registry
	attrTimeout  time.Duration
	entryTimeout time.Duration
	server       *fuse.Server
}

func NewFuseRaw(fs snapfs.Operator, cfg *config.Config) *FuseRaw {
	return &FuseRaw{
		RawFileSystem: fuse.NewDefaultRawFileSystem(),
		fs:            fs,
		ids:           NewRegistry(),
		attrTimeout:   seconds(cfg.AttrTimeout),
		entryTimeout:  seconds(cfg.EntryTimeout),
	}
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func (r *FuseRaw) Init(s *fuse.Server) {
	logger := util.GetLogger("Fuse.Init")
	logger.Debug().Msg("FUSE initialized")
	r.server = s
}

func (r *FuseRaw) OnUnmount() {
	logger := util.GetLogger("Fuse.OnUnmount")
	logger.Info().Msg("FUSE unmounted")
}

func (r *FuseRaw) String() string {
	return "FuseRaw"
}

// Registry exposes the node id table
func (r *FuseRaw) Registry() *Registry {
	return r.ids
}

func status(err error) fuse.Status {
	return fuse.ToStatus(filesystem.Errno(err))
}

// childPath joins a directory path and an entry name without cleaning
func childPath(dir, name string) string {
	if dir == "/" {
		return "/" + name
	}
	return dir + "/" + name
}

func (r *FuseRaw) childOf(parent uint64, name string) (string, bool) {
	dir, ok := r.ids.Path(parent)
	if !ok {
		return "", false
	}
	return childPath(dir, name), true
}

func (r *FuseRaw) fillAttr(out *fuse.Attr, ino uint64, a filesystem.Attr) {
	*out = fuse.Attr{
		Ino:     ino,
		Size:    uint64(a.Size),
		Blocks:  (uint64(a.Size) + 511) / 512,
		Mode:    a.Mode,
		Nlink:   a.Nlink,
		Owner:   fuse.Owner{Uid: a.Uid, Gid: a.Gid},
		Blksize: blockSize,
	}
	out.SetTimes(&a.Atime, &a.Mtime, &a.Ctime)
}

// entry registers path with the kernel and describes it in out
func (r *FuseRaw) entry(path string, out *fuse.EntryOut) fuse.Status {
	a, err := r.fs.GetAttr(path)
	if err != nil {
		return status(err)
	}
	id := r.ids.Ref(path)
	out.NodeId = id
	out.Generation = 1
	r.fillAttr(&out.Attr, id, a)
	out.SetEntryTimeout(r.entryTimeout)
	out.SetAttrTimeout(r.attrTimeout)
	return fuse.OK
}

// Lookup is called by the kernel when the VFS wants to know
// about a file inside a directory.
func (r *FuseRaw) Lookup(cancel <-chan struct{}, header *fuse.InHeader, name string, out *fuse.EntryOut) fuse.Status {
	logger := util.GetLogger("Fuse.Lookup")
	logger.Debug().Uint64("parent", header.NodeId).Str("name", name).Msg("Lookup called")

	p, ok := r.childOf(header.NodeId, name)
	if !ok {
		return fuse.ENOENT
	}
	return r.entry(p, out)
}

// Forget is called when the kernel discards entries from its
// dentry cache. No I/O happens here.
func (r *FuseRaw) Forget(nodeID, nlookup uint64) {
	r.ids.Forget(nodeID, nlookup)
}

func (r *FuseRaw) GetAttr(cancel <-chan struct{}, input *fuse.GetAttrIn, out *fuse.AttrOut) fuse.Status {
	logger := util.GetLogger("Fuse.GetAttr")
	logger.Debug().Uint64("node", input.NodeId).Msg("GetAttr called")

	p, ok := r.ids.Path(input.NodeId)
	if !ok {
		return fuse.ENOENT
	}
	a, err := r.fs.GetAttr(p)
	if err != nil {
		return status(err)
	}
	r.fillAttr(&out.Attr, input.NodeId, a)
	out.SetTimeout(r.attrTimeout)
	return fuse.OK
}

// SetAttr applies size changes. Ownership, mode and time changes are
// accepted without effect.
func (r *FuseRaw) SetAttr(cancel <-chan struct{}, input *fuse.SetAttrIn, out *fuse.AttrOut) fuse.Status {
	logger := util.GetLogger("Fuse.SetAttr")
	logger.Debug().Uint64("node", input.NodeId).Uint32("valid", input.Valid).Msg("SetAttr called")

	p, ok := r.ids.Path(input.NodeId)
	if !ok {
		return fuse.ENOENT
	}
	if size, ok := input.GetSize(); ok {
		if err := r.fs.Truncate(p, int64(size)); err != nil {
			return status(err)
		}
	}
	a, err := r.fs.GetAttr(p)
	if err != nil {
		return status(err)
	}
	r.fillAttr(&out.Attr, input.NodeId, a)
	out.SetTimeout(r.attrTimeout)
	return fuse.OK
}

func (r *FuseRaw) Mkdir(cancel <-chan struct{}, input *fuse.MkdirIn, name string, out *fuse.EntryOut) fuse.Status {
	logger := util.GetLogger("Fuse.Mkdir")
	logger.Debug().Uint64("parent", input.NodeId).Str("name", name).Msg("Mkdir called")

	p, ok := r.childOf(input.NodeId, name)
	if !ok {
		return fuse.ENOENT
	}
	if err := r.fs.Mkdir(p); err != nil {
		return status(err)
	}
	return r.entry(p, out)
}

// Mknod only supports regular files
func (r *FuseRaw) Mknod(cancel <-chan struct{}, input *fuse.MknodIn, name string, out *fuse.EntryOut) fuse.Status {
	logger := util.GetLogger("Fuse.Mknod")
	logger.Debug().Uint64("parent", input.NodeId).Str("name", name).Uint32("mode", input.Mode).Msg("Mknod called")

	if input.Mode&syscall.S_IFMT != syscall.S_IFREG {
		return fuse.EPERM
	}
	p, ok := r.childOf(input.NodeId, name)
	if !ok {
		return fuse.ENOENT
	}
	if err := r.fs.Create(p, input.Mode); err != nil {
		return status(err)
	}
	return r.entry(p, out)
}

func (r *FuseRaw) Create(cancel <-chan struct{}, input *fuse.CreateIn, name string, out *fuse.CreateOut) fuse.Status {
	logger := util.GetLogger("Fuse.Create")
	logger.Debug().Uint64("parent", input.NodeId).Str("name", name).Uint32("mode", input.Mode).Msg("Create called")

	p, ok := r.childOf(input.NodeId, name)
	if !ok {
		return fuse.ENOENT
	}
	if err := r.fs.Create(p, input.Mode); err != nil {
		return status(err)
	}
	return r.entry(p, &out.EntryOut)
}

func (r *FuseRaw) Unlink(cancel <-chan struct{}, header *fuse.InHeader, name string) fuse.Status {
	logger := util.GetLogger("Fuse.Unlink")
	logger.Debug().Uint64("parent", header.NodeId).Str("name", name).Msg("Unlink called")

	p, ok := r.childOf(header.NodeId, name)
	if !ok {
		return fuse.ENOENT
	}
	if err := r.fs.Unlink(p); err != nil {
		return status(err)
	}
	r.ids.Remove(p)
	return fuse.OK
}

func (r *FuseRaw) Rmdir(cancel <-chan struct{}, header *fuse.InHeader, name string) fuse.Status {
	logger := util.GetLogger("Fuse.Rmdir")
	logger.Debug().Uint64("parent", header.NodeId).Str("name", name).Msg("Rmdir called")

	p, ok := r.childOf(header.NodeId, name)
	if !ok {
		return fuse.ENOENT
	}
	if err := r.fs.Rmdir(p); err != nil {
		return status(err)
	}
	r.ids.Remove(p)
	return fuse.OK
}

// Open checks the node is a file. No per-open state is kept, reads and
// writes address the node by id.
func (r *FuseRaw) Open(cancel <-chan struct{}, input *fuse.OpenIn, out *fuse.OpenOut) fuse.Status {
	logger := util.GetLogger("Fuse.Open")
	logger.Debug().Uint64("node", input.NodeId).Uint32("flags", input.Flags).Msg("Open called")

	p, ok := r.ids.Path(input.NodeId)
	if !ok {
		return fuse.ENOENT
	}
	a, err := r.fs.GetAttr(p)
	if err != nil {
		return status(err)
	}
	if a.IsDir() {
		return fuse.EISDIR
	}
	if input.Flags&syscall.O_TRUNC != 0 {
		if err := r.fs.Truncate(p, 0); err != nil {
			return status(err)
		}
	}
	return fuse.OK
}

func (r *FuseRaw) Read(cancel <-chan struct{}, input *fuse.ReadIn, buf []byte) (fuse.ReadResult, fuse.Status) {
	logger := util.GetLogger("Fuse.Read")
	logger.Debug().Uint64("node", input.NodeId).Uint64("offset", input.Offset).Uint32("size", input.Size).Msg("Read called")

	p, ok := r.ids.Path(input.NodeId)
	if !ok {
		return nil, fuse.ENOENT
	}
	data, err := r.fs.Read(p, int(input.Size), int64(input.Offset))
	if err != nil {
		return nil, status(err)
	}
	return fuse.ReadResultData(data), fuse.OK
}

func (r *FuseRaw) Write(cancel <-chan struct{}, input *fuse.WriteIn, data []byte) (uint32, fuse.Status) {
	logger := util.GetLogger("Fuse.Write")
	logger.Debug().Uint64("node", input.NodeId).Uint64("offset", input.Offset).Int("size", len(data)).Msg("Write called")

	p, ok := r.ids.Path(input.NodeId)
	if !ok {
		return 0, fuse.ENOENT
	}
	n, err := r.fs.Write(p, data, int64(input.Offset))
	if err != nil {
		return 0, status(err)
	}
	return uint32(n), fuse.OK
}

func (r *FuseRaw) Flush(cancel <-chan struct{}, input *fuse.FlushIn) fuse.Status {
	return fuse.OK
}

func (r *FuseRaw) Fsync(cancel <-chan struct{}, input *fuse.FsyncIn) fuse.Status {
	return fuse.OK
}

func (r *FuseRaw) Release(cancel <-chan struct{}, input *fuse.ReleaseIn) {}

func (r *FuseRaw) OpenDir(cancel <-chan struct{}, input *fuse.OpenIn, out *fuse.OpenOut) fuse.Status {
	logger := util.GetLogger("Fuse.OpenDir")
	logger.Debug().Uint64("node", input.NodeId).Msg("OpenDir called")

	p, ok := r.ids.Path(input.NodeId)
	if !ok {
		return fuse.ENOENT
	}
	a, err := r.fs.GetAttr(p)
	if err != nil {
		return status(err)
	}
	if !a.IsDir() {
		return fuse.ENOTDIR
	}
	return fuse.OK
}

func (r *FuseRaw) ReleaseDir(input *fuse.ReleaseIn) {}

func (r *FuseRaw) FsyncDir(cancel <-chan struct{}, input *fuse.FsyncIn) fuse.Status {
	return fuse.OK
}

// dirEntries lists a directory with "." and ".." in front
func (r *FuseRaw) dirEntries(nodeID uint64) (string, []fuse.DirEntry, fuse.Status) {
	p, ok := r.ids.Path(nodeID)
	if !ok {
		return "", nil, fuse.ENOENT
	}
	list, err := r.fs.List(p)
	if err != nil {
		return "", nil, status(err)
	}
	// the parent's id may never have been assigned; only the root is its own parent
	parentIno := uint64(fuse.FUSE_UNKNOWN_INO)
	if nodeID == fuse.FUSE_ROOT_ID {
		parentIno = fuse.FUSE_ROOT_ID
	}
	entries := make([]fuse.DirEntry, 0, len(list)+2)
	entries = append(entries,
		fuse.DirEntry{Name: ".", Mode: syscall.S_IFDIR, Ino: nodeID},
		fuse.DirEntry{Name: "..", Mode: syscall.S_IFDIR, Ino: parentIno},
	)
	for _, e := range list {
		mode := uint32(syscall.S_IFREG)
		if e.Kind == filesystem.DirKind {
			mode = syscall.S_IFDIR
		}
		// ids are only assigned on lookup
		entries = append(entries, fuse.DirEntry{Name: e.Name, Mode: mode, Ino: fuse.FUSE_UNKNOWN_INO})
	}
	for i := range entries {
		entries[i].Off = uint64(i + 1)
	}
	return p, entries, fuse.OK
}

// ReadDir streams entries starting at input.Offset. Each entry's offset is
// its position plus one, so the kernel resumes where the buffer filled up.
func (r *FuseRaw) ReadDir(cancel <-chan struct{}, input *fuse.ReadIn, out *fuse.DirEntryList) fuse.Status {
	logger := util.GetLogger("Fuse.ReadDir")
	logger.Debug().Uint64("node", input.NodeId).Uint64("offset", input.Offset).Msg("ReadDir called")

	_, entries, st := r.dirEntries(input.NodeId)
	if !st.Ok() {
		return st
	}
	for _, e := range entries[min(input.Offset, uint64(len(entries))):] {
		if !out.AddDirEntry(e) {
			break
		}
	}
	return fuse.OK
}

// ReadDirPlus is ReadDir with a lookup for every entry but "." and ".."
func (r *FuseRaw) ReadDirPlus(cancel <-chan struct{}, input *fuse.ReadIn, out *fuse.DirEntryList) fuse.Status {
	logger := util.GetLogger("Fuse.ReadDirPlus")
	logger.Debug().Uint64("node", input.NodeId).Uint64("offset", input.Offset).Msg("ReadDirPlus called")

	dir, entries, st := r.dirEntries(input.NodeId)
	if !st.Ok() {
		return st
	}
	for _, e := range entries[min(input.Offset, uint64(len(entries))):] {
		entryOut := out.AddDirLookupEntry(e)
		if entryOut == nil {
			break
		}
		if e.Name == "." || e.Name == ".." {
			continue
		}
		if st := r.entry(childPath(dir, e.Name), entryOut); !st.Ok() {
			logger.Debug().Str("name", e.Name).Str("status", st.String()).Msg("Entry vanished during listing")
		}
	}
	return fuse.OK
}

// StatFs reports the node pool as the inode table and node pool times the
// file size bound as the block space
func (r *FuseRaw) StatFs(cancel <-chan struct{}, input *fuse.InHeader, out *fuse.StatfsOut) fuse.Status {
	stats := r.fs.Stats()
	total := uint64(stats.MaxNodes) * uint64(stats.MaxFileSize) / blockSize
	free := uint64(stats.MaxNodes - stats.Nodes)
	*out = fuse.StatfsOut{
		Blocks:  total,
		Bfree:   total * free / uint64(max(stats.MaxNodes, 1)),
		Files:   uint64(stats.MaxNodes),
		Ffree:   free,
		Bsize:   blockSize,
		Frsize:  blockSize,
		NameLen: uint32(stats.MaxNameLen),
	}
	out.Bavail = out.Bfree
	return fuse.OK
}
