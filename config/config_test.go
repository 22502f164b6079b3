package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const defaultConfig = `
large_repo_id:		1
small_repo_id:		2
sync_map_version:	v1
prefix_map:
default_action:
  kind: prepend_prefix
  prefix: small/
`

func loadOrFail(t *testing.T, cfgString string) *Config {
	t.Helper()
	cfg, err := Unmarshal([]byte(cfgString))
	require.NoError(t, err)
	return cfg
}

func TestValidConfig(t *testing.T) {
	cfg := loadOrFail(t, defaultConfig)
	assert.Equal(t, 1, cfg.LargeRepoID)
	assert.Equal(t, 2, cfg.SmallRepoID)
	assert.Equal(t, "v1", cfg.SyncMapVersion)
	assert.Empty(t, cfg.PrefixMap)
	require.NotNil(t, cfg.ParsedMover)
}

func TestEmptyConfigFillsDefaults(t *testing.T) {
	cfg := loadOrFail(t, "")
	assert.Equal(t, DefaultSyncMapVersion, cfg.SyncMapVersion)
	require.NotNil(t, cfg.ParsedMover)
}

func TestPrefixMapChange(t *testing.T) {
	const cfgString = `
prefix_map:
- path: large/widgets
  action: change
  new_prefix: widgets
`
	cfg := loadOrFail(t, cfgString)
	require.Len(t, cfg.PrefixMap, 1)
	assert.Equal(t, "large/widgets", cfg.PrefixMap[0].Path)
	assert.Equal(t, "change", cfg.PrefixMap[0].Action)
}

func TestPrefixMapUnknownActionFails(t *testing.T) {
	const cfgString = `
prefix_map:
- path: large/widgets
  action: teleport
`
	_, err := Unmarshal([]byte(cfgString))
	require.Error(t, err)
}

func TestPrefixMapNonPrefixFreeFails(t *testing.T) {
	const cfgString = `
prefix_map:
- path: large/widgets
  action: remove_prefix
- path: large/widgets/sub
  action: do_not_sync
`
	_, err := Unmarshal([]byte(cfgString))
	require.Error(t, err)
}

func TestDefaultActionUnknownKindFails(t *testing.T) {
	const cfgString = `
default_action:
  kind: teleport
`
	_, err := Unmarshal([]byte(cfgString))
	require.Error(t, err)
}

func TestDSNsLoadedFromEnvironment(t *testing.T) {
	t.Setenv(envWritePrimaryDSN, "user:pass@tcp(write)/db")
	t.Setenv(envReadPrimaryDSN, "user:pass@tcp(read)/db")
	t.Setenv(envReadReplicaDSN, "user:pass@tcp(replica)/db")

	cfg := loadOrFail(t, defaultConfig)
	assert.Equal(t, "user:pass@tcp(write)/db", cfg.DB.WritePrimaryDSN)
	assert.Equal(t, "user:pass@tcp(read)/db", cfg.DB.ReadPrimaryDSN)
	assert.Equal(t, "user:pass@tcp(replica)/db", cfg.DB.ReadReplicaDSN)
}

func TestDSNsAbsentFromEnvironmentAreEmpty(t *testing.T) {
	os.Unsetenv(envWritePrimaryDSN)
	os.Unsetenv(envReadPrimaryDSN)
	os.Unsetenv(envReadReplicaDSN)

	cfg := loadOrFail(t, defaultConfig)
	assert.Empty(t, cfg.DB.WritePrimaryDSN)
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/scmcored.yaml"
	require.NoError(t, os.WriteFile(path, []byte(defaultConfig), 0o644))

	cfg, err := LoadConfigFile(path)
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.LargeRepoID)
}

func TestLoadConfigFileMissingFails(t *testing.T) {
	_, err := LoadConfigFile(t.TempDir() + "/does-not-exist.yaml")
	require.Error(t, err)
}
