package main

import (
	"fmt"
	"os"

	"github.com/brettbedarf/snapfs/config"
	"github.com/brettbedarf/snapfs/internal/util"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
	envFile    string
	verbose    int
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "snapfs",
		Short: "Bounded in-memory filesystem persisted as a binary snapshot",
		Long: `snapfs mounts a small in-memory filesystem over FUSE. The whole tree is
restored from a snapshot when mounting and written back when unmounting.

Configuration is layered, lowest precedence first: built-in defaults, the
--config file (YAML or JSON), SNAPFS_* environment variables (optionally
seeded from --env-file), and command line flags.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Path to a YAML or JSON config file")
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", "", "Path to a .env file with SNAPFS_* variables")
	cmd.PersistentFlags().IntVarP(&opts.verbose, "verbose", "v", config.InfoVerbose,
		"Log verbosity level between 1 (error) and 5 (trace)")

	cmd.AddCommand(newMountCmd(opts), newInspectCmd(opts), newVersionCmd())
	return cmd
}

// loadConfig layers defaults, config file, environment and flags, then
// initializes logging at the resulting level
func (o *rootOptions) loadConfig(cmd *cobra.Command, flags *config.ConfigOverride) (*config.Config, error) {
	cfg := config.NewDefaultConfig()
	if o.configPath != "" {
		override, err := config.LoadConfigOverrideFile(o.configPath)
		if err != nil {
			return nil, err
		}
		cfg.Merge(override)
	}

	var envFiles []string
	if o.envFile != "" {
		envFiles = append(envFiles, o.envFile)
	} else if _, err := os.Stat(".env"); err == nil {
		envFiles = append(envFiles, ".env")
	}
	envOverride, err := config.LoadEnvOverride(envFiles...)
	if err != nil {
		return nil, err
	}
	cfg.Merge(envOverride)

	if flags == nil {
		flags = &config.ConfigOverride{}
	}
	if cmd.Flags().Changed("verbose") {
		flags.LogLvl = util.Pointer(o.verbose)
	}
	cfg.Merge(flags)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	util.InitializeLoggerTo(cmd.ErrOrStderr(), cfg.LogLvl)
	return cfg, nil
}
