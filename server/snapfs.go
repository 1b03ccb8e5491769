package server

import (
	"errors"

	"github.com/brettbedarf/snapfs/config"
	"github.com/brettbedarf/snapfs/filesystem"
	sfuse "github.com/brettbedarf/snapfs/fuse"
	"github.com/brettbedarf/snapfs/internal/util"
	"github.com/brettbedarf/snapfs/snapshot"
	"github.com/google/uuid"
	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/rs/zerolog"
)

// SnapFs owns the in-memory filesystem, the snapshot store it persists to,
// and the FUSE server exposing it
type SnapFs struct {
	*filesystem.FileSystem
	cfg     *config.Config
	store   snapshot.Store
	session string
	logger  zerolog.Logger
	server  *fuse.Server
}

// New creates a SnapFs with an empty tree sized by cfg.
func New(cfg *config.Config, store snapshot.Store) *SnapFs {
	session := uuid.NewString()
	return &SnapFs{
		FileSystem: filesystem.NewFS(cfg),
		cfg:        cfg,
		store:      store,
		session:    session,
		logger:     util.GetLogger("SnapFs").With().Str("session", session).Logger(),
	}
}

// Session identifies this mount in logs
func (fs *SnapFs) Session() string {
	return fs.session
}

// Restore loads the most recent snapshot. A missing snapshot leaves the
// fresh tree in place and is not an error. Any other failure also leaves
// the current tree untouched and is returned for the caller to report.
func (fs *SnapFs) Restore() error {
	err := fs.store.Read(fs.FileSystem)
	switch {
	case errors.Is(err, snapshot.ErrNoSnapshot):
		fs.logger.Info().Str("location", fs.store.Location()).Msg("No snapshot found, starting empty")
		return nil
	case err != nil:
		fs.logger.Error().Err(err).Str("location", fs.store.Location()).Msg("Failed to restore snapshot, starting empty")
		return err
	}
	fs.logger.Info().Str("location", fs.store.Location()).Int("nodes", fs.Stats().Nodes).Msg("Snapshot restored")
	return nil
}

// Persist writes the current tree to the snapshot store
func (fs *SnapFs) Persist() error {
	if err := fs.store.Write(fs.FileSystem); err != nil {
		fs.logger.Error().Err(err).Str("location", fs.store.Location()).Msg("Failed to persist snapshot")
		return err
	}
	fs.logger.Info().Str("location", fs.store.Location()).Int("nodes", fs.Stats().Nodes).Msg("Snapshot persisted")
	return nil
}

// Serve restores the last snapshot, then mounts and serves the filesystem
// at the given mountPoint. It returns once the mount is ready.
func (fs *SnapFs) Serve(mountPoint string) error {
	// a failed restore is logged and the empty tree is served
	_ = fs.Restore()

	raw := sfuse.NewFuseRaw(fs.FileSystem, fs.cfg)
	opts := fs.cfg.MountOptions
	fuseLogger := util.NewLogLogger(fs.logger.With().Str("component", "FuseServer").Logger(), util.DebugLevel)
	srv, err := fuse.NewServer(raw, mountPoint, &fuse.MountOptions{
		Name:   opts.Name,
		FsName: opts.FsName,
		Debug:  opts.Debug || fs.cfg.LogLvl == util.TraceLevel,
		Logger: fuseLogger,
	})
	if err != nil {
		return err
	}
	fs.server = srv
	fs.logger.Debug().Str("mountpoint", mountPoint).Msg("FUSE server created")

	go srv.Serve()
	return srv.WaitMount()
}

func (fs *SnapFs) ServeAsync(mountPoint string) <-chan error {
	done := make(chan error, 1)

	go func() {
		done <- fs.Serve(mountPoint)
		close(done)
	}()

	return done
}

// Wait blocks until the filesystem is unmounted, from here or externally
func (fs *SnapFs) Wait() {
	if fs.server != nil {
		fs.server.Wait()
	}
}

// Unmount unmounts the filesystem and persists the tree. The snapshot is
// written even when unmounting fails.
func (fs *SnapFs) Unmount() error {
	var unmountErr error
	if fs.server != nil {
		unmountErr = fs.server.Unmount()
		if unmountErr != nil {
			fs.logger.Error().Err(unmountErr).Msg("Failed to unmount")
		}
	}
	return errors.Join(unmountErr, fs.Persist())
}

// Close releases the snapshot store
func (fs *SnapFs) Close() error {
	return fs.store.Close()
}
