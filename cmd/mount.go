package main

import (
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/brettbedarf/snapfs/config"
	"github.com/brettbedarf/snapfs/internal/util"
	"github.com/brettbedarf/snapfs/server"
	"github.com/brettbedarf/snapfs/snapshot"
	"github.com/spf13/cobra"
)

type mountOptions struct {
	filedisk string
	backend  string
	umount   bool
	debug    bool
}

// override returns the config values set through mount flags
func (o *mountOptions) override(cmd *cobra.Command) *config.ConfigOverride {
	var override config.ConfigOverride
	if cmd.Flags().Changed("filedisk") {
		override.SnapshotPath = util.Pointer(o.filedisk)
	}
	if cmd.Flags().Changed("backend") {
		override.SnapshotBackend = util.Pointer(o.backend)
	}
	if cmd.Flags().Changed("debug") {
		override.Debug = util.Pointer(o.debug)
	}
	return &override
}

func newMountCmd(root *rootOptions) *cobra.Command {
	opts := &mountOptions{}
	cmd := &cobra.Command{
		Use:   "mount <mountpoint>",
		Short: "Mount the filesystem and serve it until interrupted",
		Long: `Mount restores the latest snapshot (starting empty if there is none or it
cannot be decoded), serves the tree at <mountpoint> and writes a snapshot when
the filesystem is unmounted, either by SIGINT/SIGTERM or externally.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig(cmd, opts.override(cmd))
			if err != nil {
				return err
			}
			return runMount(cfg, args[0], opts.umount)
		},
	}
	cmd.Flags().StringVar(&opts.filedisk, "filedisk", config.DefaultSnapshotPath,
		"Snapshot location, relative paths resolve against the working directory")
	cmd.Flags().StringVar(&opts.backend, "backend", config.DefaultSnapshotBackend, "Snapshot backend: file or bolt")
	cmd.Flags().BoolVarP(&opts.umount, "umount", "u", false,
		"Unmount the mountpoint first if needed. Useful for debuggers that don't exit properly.")
	cmd.Flags().BoolVar(&opts.debug, "debug", false, "Log every FUSE request and reply")
	return cmd
}

func runMount(cfg *config.Config, mnt string, umount bool) error {
	logger := util.GetLogger("main")

	// Try unmount if requested
	if umount {
		// we ignore error here if not already mounted
		exec.Command("fusermount", "-u", mnt).Run() // nolint:errcheck
	}

	store, err := snapshot.New(cfg)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to open snapshot store")
		return err
	}
	fs := server.New(cfg, store)
	defer func() {
		if err := fs.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close snapshot store")
		}
	}()
	logger.Info().
		Str("mnt", mnt).
		Str("snapshot", store.Location()).
		Str("session", fs.Session()).
		Msg("SnapFS server initializing")

	if err := fs.Serve(mnt); err != nil {
		logger.Error().Err(err).Msg("Failed to mount filesystem")
		return err
	}
	logger.Info().Str("mountpoint", mnt).Msg("Filesystem mounted successfully")

	// Setup signal handling for graceful shutdown
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(signalChan)

	unmounted := make(chan struct{})
	go func() {
		fs.Wait()
		close(unmounted)
	}()

	select {
	case sig := <-signalChan:
		logger.Info().Str("signal", sig.String()).Msg("Received signal, unmounting filesystem")
		if err := fs.Unmount(); err != nil {
			logger.Error().Err(err).Msg("Failed to unmount filesystem")
			return err
		}
	case <-unmounted:
		// unmounted from outside, e.g. fusermount -u
		if err := fs.Persist(); err != nil {
			return err
		}
	}
	logger.Info().Msg("Filesystem unmounted successfully")
	return nil
}
