// Package snapshot decides where snapshot bytes live. The byte format
// itself belongs to the filesystem package.
package snapshot

import (
	"errors"
	"fmt"
	"io"

	"github.com/brettbedarf/snapfs/config"
)

// ErrNoSnapshot is returned by Read when nothing has been saved yet
var ErrNoSnapshot = errors.New("no snapshot")

// Saver writes a full snapshot
type Saver interface {
	Save(w io.Writer) error
}

// Loader replaces its state from a full snapshot
type Loader interface {
	Load(r io.Reader) error
}

// Store persists snapshots
type Store interface {
	// Write stores the snapshot produced by src, replacing or adding to
	// what is kept
	Write(src Saver) error
	// Read feeds the most recent snapshot to dst
	Read(dst Loader) error
	// Location describes where snapshots are kept, for logs
	Location() string
	Close() error
}

// New opens the store selected by cfg.SnapshotBackend at the resolved
// snapshot path
func New(cfg *config.Config) (Store, error) {
	path, err := cfg.ResolveSnapshotPath()
	if err != nil {
		return nil, err
	}
	switch cfg.SnapshotBackend {
	case config.FileBackend, "":
		return NewFileStore(path), nil
	case config.BoltBackend:
		return OpenBoltStore(path, cfg.BoltKeep)
	default:
		return nil, fmt.Errorf("unknown snapshot backend %q", cfg.SnapshotBackend)
	}
}
