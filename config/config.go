package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/brettbedarf/snapfs/internal/util"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Verbosity levels accepted by ConfigOverride.LogLvl, matching the CLI -v flag.
const (
	ErrorVerbose = iota + 1
	WarnVerbose
	InfoVerbose
	DebugVerbose
	TraceVerbose
)

// Snapshot backends
const (
	FileBackend = "file"
	BoltBackend = "bolt"
)

// Default configuration constants. See [Config] for field descriptions.
const (
	DefaultFsName = "snapfs"
	DefaultName   = "snapfs"
	DefaultLogLvl = util.InfoLevel

	DefaultMaxNodes    = 256
	DefaultMaxChildren = 64
	DefaultMaxNameLen  = 32
	DefaultMaxFileSize = 4096

	DefaultSnapshotPath    = "persistence_file.snapfs"
	DefaultSnapshotBackend = FileBackend
	DefaultBoltKeep        = 5

	// DefaultAttrTimeout is the attribute cache timeout in seconds
	DefaultAttrTimeout = 1.0

	// DefaultEntryTimeout is the directory entry cache timeout in seconds
	DefaultEntryTimeout = 1.0
)

// EnvPrefix prefixes every environment variable read by [LoadEnvOverride].
const EnvPrefix = "SNAPFS_"

// Config contains runtime configuration values for the snapshot filesystem.
type Config struct {
	MountOptions
	LogLvl util.LogLevel

	MaxNodes    int // Node pool capacity, root included (Default 256)
	MaxChildren int // Entries per directory (Default 64)
	MaxNameLen  int // Bytes per entry name (Default 32)
	MaxFileSize int // Bytes per file (Default 4096)

	SnapshotPath    string // Snapshot location, relative paths resolve against the working dir
	SnapshotBackend string // "file" or "bolt" (Default "file")
	BoltKeep        int    // Snapshots retained by the bolt backend (Default 5)

	AttrTimeout  float64 // Attribute cache timeout in seconds (Default 1.0)
	EntryTimeout float64 // Directory entry cache timeout in seconds (Default 1.0)
}

// ConfigOverride uses pointer fields to distinguish between unset and zero values
// when loading partial configuration. See [Config] for field descriptions.
type ConfigOverride struct {
	FsName *string `yaml:"fs_name,omitempty" json:"fs_name,omitempty"`
	Name   *string `yaml:"name,omitempty" json:"name,omitempty"`
	Debug  *bool   `yaml:"debug,omitempty" json:"debug,omitempty"`
	// LogLvl is a verbosity between 1 (error) and 5 (trace)
	LogLvl *int `yaml:"log_lvl,omitempty" json:"log_lvl,omitempty"`

	MaxNodes    *int `yaml:"max_nodes,omitempty" json:"max_nodes,omitempty"`
	MaxChildren *int `yaml:"max_children,omitempty" json:"max_children,omitempty"`
	MaxNameLen  *int `yaml:"max_name_len,omitempty" json:"max_name_len,omitempty"`
	MaxFileSize *int `yaml:"max_file_size,omitempty" json:"max_file_size,omitempty"`

	SnapshotPath    *string `yaml:"snapshot_path,omitempty" json:"snapshot_path,omitempty"`
	SnapshotBackend *string `yaml:"snapshot_backend,omitempty" json:"snapshot_backend,omitempty"`
	BoltKeep        *int    `yaml:"bolt_keep,omitempty" json:"bolt_keep,omitempty"`

	AttrTimeout  *float64 `yaml:"attr_timeout,omitempty" json:"attr_timeout,omitempty"`
	EntryTimeout *float64 `yaml:"entry_timeout,omitempty" json:"entry_timeout,omitempty"`
}

// NewDefaultConfig creates a new Config with all default values.
func NewDefaultConfig() *Config {
	return &Config{
		MountOptions: MountOptions{
			FsName: DefaultFsName,
			Name:   DefaultName,
		},
		LogLvl:          DefaultLogLvl,
		MaxNodes:        DefaultMaxNodes,
		MaxChildren:     DefaultMaxChildren,
		MaxNameLen:      DefaultMaxNameLen,
		MaxFileSize:     DefaultMaxFileSize,
		SnapshotPath:    DefaultSnapshotPath,
		SnapshotBackend: DefaultSnapshotBackend,
		BoltKeep:        DefaultBoltKeep,
		AttrTimeout:     DefaultAttrTimeout,
		EntryTimeout:    DefaultEntryTimeout,
	}
}

// NewConfig returns the defaults with override applied on top. A nil
// override yields the defaults.
func NewConfig(override *ConfigOverride) *Config {
	cfg := NewDefaultConfig()
	if override != nil {
		cfg.Merge(override)
	}
	return cfg
}

// Merge applies non-nil values from override onto this Config.
// This allows partial configuration updates while preserving existing values.
func (c *Config) Merge(override *ConfigOverride) {
	if override.FsName != nil {
		c.FsName = *override.FsName
	}
	if override.Name != nil {
		c.Name = *override.Name
	}
	if override.Debug != nil {
		c.Debug = *override.Debug
	}
	if override.LogLvl != nil {
		c.LogLvl = util.LevelFromVerbosity(*override.LogLvl)
	}
	if override.MaxNodes != nil {
		c.MaxNodes = *override.MaxNodes
	}
	if override.MaxChildren != nil {
		c.MaxChildren = *override.MaxChildren
	}
	if override.MaxNameLen != nil {
		c.MaxNameLen = *override.MaxNameLen
	}
	if override.MaxFileSize != nil {
		c.MaxFileSize = *override.MaxFileSize
	}
	if override.SnapshotPath != nil {
		c.SnapshotPath = *override.SnapshotPath
	}
	if override.SnapshotBackend != nil {
		c.SnapshotBackend = *override.SnapshotBackend
	}
	if override.BoltKeep != nil {
		c.BoltKeep = *override.BoltKeep
	}
	if override.AttrTimeout != nil {
		c.AttrTimeout = *override.AttrTimeout
	}
	if override.EntryTimeout != nil {
		c.EntryTimeout = *override.EntryTimeout
	}
}

// Validate reports the first configuration value that cannot work.
func (c *Config) Validate() error {
	var errs []error
	if c.MaxNodes < 1 {
		errs = append(errs, fmt.Errorf("max_nodes must be at least 1, got %d", c.MaxNodes))
	}
	if c.MaxChildren < 1 {
		errs = append(errs, fmt.Errorf("max_children must be at least 1, got %d", c.MaxChildren))
	}
	if c.MaxNameLen < 1 {
		errs = append(errs, fmt.Errorf("max_name_len must be at least 1, got %d", c.MaxNameLen))
	}
	if c.MaxFileSize < 0 {
		errs = append(errs, fmt.Errorf("max_file_size must not be negative, got %d", c.MaxFileSize))
	}
	switch c.SnapshotBackend {
	case FileBackend:
	case BoltBackend:
		if c.BoltKeep < 1 {
			errs = append(errs, fmt.Errorf("bolt_keep must be at least 1, got %d", c.BoltKeep))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown snapshot backend %q", c.SnapshotBackend))
	}
	if c.SnapshotPath == "" {
		errs = append(errs, errors.New("snapshot_path must not be empty"))
	}
	return errors.Join(errs...)
}

// ResolveSnapshotPath returns SnapshotPath as an absolute path, joining relative
// paths onto the process working directory so a daemonized mount still finds it.
func (c *Config) ResolveSnapshotPath() (string, error) {
	if filepath.IsAbs(c.SnapshotPath) {
		return c.SnapshotPath, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get working directory: %w", err)
	}
	return filepath.Join(cwd, c.SnapshotPath), nil
}

// LoadConfigOverrideFile loads configuration overrides from a file without merging.
// Supports both YAML (.yaml, .yml) and JSON (.json) formats.
func LoadConfigOverrideFile(path string) (*ConfigOverride, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var override ConfigOverride

	// Determine format by file extension
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &override); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config file: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &override); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config file: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown config file extension: %s", path)
	}

	return &override, nil
}

// NewConfigFromFile creates a new Config by merging file overrides with defaults.
// This is a convenience function that combines NewDefaultConfig, LoadConfigOverrideFile, and Merge.
func NewConfigFromFile(path string) (*Config, error) {
	cfg := NewDefaultConfig()
	override, err := LoadConfigOverrideFile(path)
	if err != nil {
		return nil, err
	}
	cfg.Merge(override)
	return cfg, nil
}

// LoadEnvOverride reads SNAPFS_* variables from the environment. When
// envFiles are given they are loaded first with godotenv; variables already
// present in the environment win over the files.
func LoadEnvOverride(envFiles ...string) (*ConfigOverride, error) {
	if len(envFiles) > 0 {
		if err := godotenv.Load(envFiles...); err != nil {
			return nil, fmt.Errorf("failed to load env file: %w", err)
		}
	}

	var (
		override ConfigOverride
		errs     []error
	)
	str := func(key string) *string {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			return &v
		}
		return nil
	}
	num := func(key string) *int {
		v := str(key)
		if v == nil {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(*v))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
			return nil
		}
		return &n
	}
	flag := func(key string) *bool {
		v := str(key)
		if v == nil {
			return nil
		}
		b, err := strconv.ParseBool(strings.TrimSpace(*v))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
			return nil
		}
		return &b
	}
	float := func(key string) *float64 {
		v := str(key)
		if v == nil {
			return nil
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(*v), 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
			return nil
		}
		return &f
	}

	override.FsName = str("FS_NAME")
	override.Name = str("NAME")
	override.Debug = flag("DEBUG")
	override.LogLvl = num("LOG_LVL")
	override.MaxNodes = num("MAX_NODES")
	override.MaxChildren = num("MAX_CHILDREN")
	override.MaxNameLen = num("MAX_NAME_LEN")
	override.MaxFileSize = num("MAX_FILE_SIZE")
	override.SnapshotPath = str("SNAPSHOT_PATH")
	override.SnapshotBackend = str("SNAPSHOT_BACKEND")
	override.BoltKeep = num("BOLT_KEEP")
	override.AttrTimeout = float("ATTR_TIMEOUT")
	override.EntryTimeout = float("ENTRY_TIMEOUT")

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return &override, nil
}
