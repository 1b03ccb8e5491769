package main

import (
	"fmt"
	"io"
	"io/fs"
	"strings"
	"text/tabwriter"

	"github.com/brettbedarf/snapfs/config"
	"github.com/brettbedarf/snapfs/filesystem"
	"github.com/brettbedarf/snapfs/internal/util"
	"github.com/brettbedarf/snapfs/snapshot"
	"github.com/spf13/cobra"
)

func newInspectCmd(root *rootOptions) *cobra.Command {
	var backend string
	cmd := &cobra.Command{
		Use:   "inspect <snapshot>",
		Short: "Print the tree stored in a snapshot without mounting it",
		Long: `Inspect decodes the newest snapshot at <snapshot> using the configured
capacity limits and prints every node in the order it is stored.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			override := &config.ConfigOverride{SnapshotPath: util.Pointer(args[0])}
			if cmd.Flags().Changed("backend") {
				override.SnapshotBackend = util.Pointer(backend)
			}
			cfg, err := root.loadConfig(cmd, override)
			if err != nil {
				return err
			}
			return runInspect(cmd.OutOrStdout(), cfg)
		},
	}
	cmd.Flags().StringVar(&backend, "backend", config.DefaultSnapshotBackend, "Snapshot backend: file or bolt")
	return cmd
}

func runInspect(out io.Writer, cfg *config.Config) error {
	store, err := snapshot.New(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	tree := filesystem.NewFS(cfg)
	if err := store.Read(tree); err != nil {
		return err
	}

	if bolt, ok := store.(*snapshot.BoltStore); ok {
		infos, err := bolt.List()
		if err != nil {
			return err
		}
		for _, info := range infos {
			fmt.Fprintf(out, "# snapshot %d: %d bytes\n", info.Seq, info.Size)
		}
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "MODE\tSIZE\tMODIFIED\tPATH")
	err = tree.Walk(func(p string, a filesystem.Attr) error {
		_, err := fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n",
			modeString(a), a.Size, a.Mtime.Local().Format("2006-01-02 15:04:05"), p)
		return err
	})
	if err != nil {
		return err
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	stats := tree.Stats()
	_, err = fmt.Fprintf(out, "%d/%d nodes\n", stats.Nodes, stats.MaxNodes)
	return err
}

// modeString renders the permission bits the way ls does
func modeString(a filesystem.Attr) string {
	var b strings.Builder
	if a.IsDir() {
		b.WriteByte('d')
	} else {
		b.WriteByte('-')
	}
	b.WriteString(fs.FileMode(a.Mode & 0o777).String()[1:])
	return b.String()
}
