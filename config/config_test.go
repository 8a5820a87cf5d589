package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "eden.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	req := require.New(t)

	path := writeConfig(t, `
[[mount]]
mount_path = "/mnt/eden"
`)
	cfg, err := Load(path)
	req.NoError(err)
	req.Len(cfg.Mounts, 1)

	m := cfg.Mounts[0]
	req.Equal("/mnt/eden", m.MountPath)
	req.Equal("mem", m.ObjectStoreKind)
	req.Equal("mem", m.OverlayKind)
	req.EqualValues(defaultCacheTimeSeconds, m.CacheTimeSeconds)
	req.Equal(defaultRemoveRetryBudget, m.RemoveRetryBudget)
	req.Equal(uint64(8*1024*1024*1024), m.CacheSize())
}

func TestLoadRejectsMissingMountPath(t *testing.T) {
	path := writeConfig(t, `
[[mount]]
object_store = "mem"
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsBoltOverlayWithoutPath(t *testing.T) {
	path := writeConfig(t, `
[[mount]]
mount_path = "/mnt/eden"
overlay = "bolt"
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsCqlObjectStoreWithoutHosts(t *testing.T) {
	path := writeConfig(t, `
[[mount]]
mount_path = "/mnt/eden"
object_store = "cql"
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadAcceptsFullySpecifiedMount(t *testing.T) {
	req := require.New(t)
	path := writeConfig(t, `
log_capacity = 2048

[[mount]]
mount_path = "/mnt/eden"
object_store = "cql"
cql_hosts = ["db1", "db2"]
cql_keyspace = "eden"
cql_table = "objects"
overlay = "bolt"
overlay_path = "/var/lib/eden/overlay.db"
cache_size = "512M"
`)
	cfg, err := Load(path)
	req.NoError(err)
	req.Equal(2048, cfg.LogCapacity)

	m := cfg.Mounts[0]
	req.Equal("cql", m.ObjectStoreKind)
	req.Equal([]string{"db1", "db2"}, m.CqlHosts)
	req.Equal(uint64(512*1024*1024), m.CacheSize())
}
