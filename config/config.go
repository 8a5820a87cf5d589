// Package config loads the daemon's TOML configuration, the counterpart
// of the teacher's cmd/quantumfsd/config.go QuantumFsConfig, but decoded
// with github.com/BurntSushi/toml instead of the flag package so a
// single file can describe several mounts at once.
package config

import (
	"fmt"

	"code.cloudfoundry.org/bytefmt"
	"github.com/BurntSushi/toml"
)

// Mount describes one FUSE mount point and the object-store / overlay
// backends it is wired to.
type Mount struct {
	MountPath string `toml:"mount_path"`

	// ObjectStoreKind is "mem" or "cql"; OverlayKind is "mem" or "bolt".
	ObjectStoreKind string `toml:"object_store"`
	OverlayKind     string `toml:"overlay"`
	OverlayPath     string `toml:"overlay_path"`

	CqlHosts    []string `toml:"cql_hosts"`
	CqlKeyspace string   `toml:"cql_keyspace"`
	CqlTable    string   `toml:"cql_table"`

	JournalPath string `toml:"journal_path"`

	// CacheTimeSeconds/Nsecs bound how long the kernel is allowed to
	// cache attribute and entry responses, mirroring the teacher's
	// cacheTimeSeconds/cacheTimeNsecs flags.
	CacheTimeSeconds uint64 `toml:"cache_time_seconds"`
	CacheTimeNsecs   uint32 `toml:"cache_time_nsecs"`

	AllowOther bool `toml:"allow_other"`

	// RemoveRetryBudget is parsed and defaulted to 3, but the remove
	// path does not read it: the "try again" loop on a remove that raced
	// a concurrent load always uses the inodes package's compiled-in
	// budget of 3, whatever this field says.
	RemoveRetryBudget int `toml:"remove_retry_budget"`

	// CacheSizeString is a human string like "8G" or "512M", parsed with
	// bytefmt the way the teacher's cacheSizeString flag is.
	CacheSizeString string `toml:"cache_size"`
}

// Config is the top-level daemon configuration: one or more mounts plus
// the shared qlog ring buffer capacity.
type Config struct {
	Mounts []Mount `toml:"mount"`

	// LogCapacity is the number of entries qlog.New retains.
	LogCapacity int `toml:"log_capacity"`
}

const (
	defaultCacheTimeSeconds  = 1
	defaultCacheTimeNsecs    = 0
	defaultRemoveRetryBudget = 3
	defaultCacheSize         = "8G"
	defaultLogCapacity       = 10000
)

// applyDefaults fills in zero-valued fields the way the teacher's
// init() flag defaults do, since a TOML decode leaves an omitted field
// at its Go zero value rather than a named default.
func (c *Config) applyDefaults() {
	if c.LogCapacity == 0 {
		c.LogCapacity = defaultLogCapacity
	}
	for i := range c.Mounts {
		m := &c.Mounts[i]
		if m.CacheTimeSeconds == 0 {
			m.CacheTimeSeconds = defaultCacheTimeSeconds
		}
		if m.RemoveRetryBudget == 0 {
			m.RemoveRetryBudget = defaultRemoveRetryBudget
		}
		if m.CacheSizeString == "" {
			m.CacheSizeString = defaultCacheSize
		}
		if m.ObjectStoreKind == "" {
			m.ObjectStoreKind = "mem"
		}
		if m.OverlayKind == "" {
			m.OverlayKind = "mem"
		}
	}
}

// Load decodes the TOML file at path and validates it, the counterpart
// of the teacher's processArgs.
func Load(path string) (*Config, error) {
	var c Config
	if _, err := toml.DecodeFile(path, &c); err != nil {
		return nil, fmt.Errorf("decoding config %s: %w", path, err)
	}
	c.applyDefaults()
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) validate() error {
	if len(c.Mounts) == 0 {
		return fmt.Errorf("config: no [[mount]] entries")
	}
	for i, m := range c.Mounts {
		if m.MountPath == "" {
			return fmt.Errorf("config: mount[%d]: mount_path is required", i)
		}
		if _, err := bytefmt.ToBytes(m.CacheSizeString); err != nil {
			return fmt.Errorf("config: mount[%d]: bad cache_size %q: %w", i, m.CacheSizeString, err)
		}
		switch m.ObjectStoreKind {
		case "mem", "cql":
		default:
			return fmt.Errorf("config: mount[%d]: unknown object_store %q", i, m.ObjectStoreKind)
		}
		switch m.OverlayKind {
		case "mem", "bolt":
		default:
			return fmt.Errorf("config: mount[%d]: unknown overlay %q", i, m.OverlayKind)
		}
		if m.OverlayKind == "bolt" && m.OverlayPath == "" {
			return fmt.Errorf("config: mount[%d]: overlay_path is required for overlay = \"bolt\"", i)
		}
		if m.ObjectStoreKind == "cql" && (len(m.CqlHosts) == 0 || m.CqlKeyspace == "" || m.CqlTable == "") {
			return fmt.Errorf("config: mount[%d]: cql_hosts, cql_keyspace and cql_table are required for object_store = \"cql\"", i)
		}
	}
	return nil
}

// CacheSize parses CacheSizeString, already validated by Load.
func (m Mount) CacheSize() uint64 {
	size, _ := bytefmt.ToBytes(m.CacheSizeString)
	return size
}
