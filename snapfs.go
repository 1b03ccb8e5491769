// Package snapfs is a bounded in-memory filesystem that persists as a single
// binary snapshot and is served to the kernel over FUSE.
package snapfs

import (
	"github.com/brettbedarf/snapfs/config"
	"github.com/brettbedarf/snapfs/filesystem"
)

// Operator is what the kernel bridge needs from the core. Paths are
// absolute; errors carry the filesystem sentinels (see [filesystem.Errno]).
type Operator interface {
	GetAttr(path string) (filesystem.Attr, error)
	Mkdir(path string) error
	List(path string) ([]filesystem.DirEntry, error)
	Rmdir(path string) error
	Create(path string, mode uint32) error
	Read(path string, length int, offset int64) ([]byte, error)
	Write(path string, data []byte, offset int64) (int, error)
	Truncate(path string, size int64) error
	Unlink(path string) error
	Stats() filesystem.Stats
}

var _ Operator = (*filesystem.FileSystem)(nil)

// New creates an empty filesystem sized by cfg.
func New(cfg *config.Config) *filesystem.FileSystem {
	return filesystem.NewFS(cfg)
}
