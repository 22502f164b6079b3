// Package config loads the scmcored server configuration: which repos are
// paired, how paths move between them, and where the SQL roles connect to.
// It follows the teacher's config package almost exactly — a Config struct
// with defaults pre-filled before yaml.Unmarshal, and a validate() pass
// that compiles the prefix map eagerly — generalized from gitp4transfer's
// branch-mapping/typemap config into a Mover + SQL-DSN config (spec.md §4.1,
// §6, SPEC_FULL.md §0).
package config

import (
	"fmt"
	"os"

	yaml "gopkg.in/yaml.v2"

	"github.com/rivermark/scmcore/pathmover"
	"github.com/rivermark/scmcore/scmtypes"
)

const DefaultSyncMapVersion = "v1"

// PrefixMapEntry is one entry of the YAML prefix_map: a path and the
// action applied when it is the longest matching prefix (spec.md §4.1).
type PrefixMapEntry struct {
	Path      string `yaml:"path"`
	Action    string `yaml:"action"`     // "change", "remove_prefix", "do_not_sync"
	NewPrefix string `yaml:"new_prefix"` // only meaningful when action == "change"
}

// DefaultAction is the YAML form of pathmover.DefaultAction.
type DefaultAction struct {
	Kind   string `yaml:"kind"` // "prepend_prefix", "preserve", "do_not_sync"
	Prefix string `yaml:"prefix"`
}

// DBConfig names the three SQL roles described in spec.md §5/§6. The DSNs
// are deliberately left out of checked-in YAML: they are filled in from
// environment variables at load time (SPEC_FULL.md §0 "env var overrides
// ... used for connection strings ... since those must not live in
// checked-in YAML").
type DBConfig struct {
	WritePrimaryDSN string `yaml:"-"`
	ReadPrimaryDSN  string `yaml:"-"`
	ReadReplicaDSN  string `yaml:"-"`
}

const (
	envWritePrimaryDSN = "SCMCORED_WRITE_PRIMARY_DSN"
	envReadPrimaryDSN  = "SCMCORED_READ_PRIMARY_DSN"
	envReadReplicaDSN  = "SCMCORED_READ_REPLICA_DSN"
)

// Config is the scmcored server configuration.
type Config struct {
	LargeRepoID    int              `yaml:"large_repo_id"`
	SmallRepoID    int              `yaml:"small_repo_id"`
	SyncMapVersion string           `yaml:"sync_map_version"`
	PrefixMap      []PrefixMapEntry `yaml:"prefix_map"`
	Default        DefaultAction    `yaml:"default_action"`
	ParsedMover    *pathmover.Mover `yaml:"-"`
	DB             DBConfig         `yaml:"-"`
}

// Unmarshal parses YAML bytes into a Config, filling in defaults, then
// validates and compiles the prefix map, then overlays DSNs from the
// environment (gitp4transfer/config.Unmarshal's shape, generalized).
func Unmarshal(content []byte) (*Config, error) {
	cfg := &Config{
		SyncMapVersion: DefaultSyncMapVersion,
		Default:        DefaultAction{Kind: "prepend_prefix"},
	}
	if err := yaml.Unmarshal(content, cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %v. make sure to use 'single quotes' around strings with special characters (like match patterns)", err.Error())
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.loadDSNsFromEnv()
	return cfg, nil
}

// LoadConfigFile loads and parses a YAML config file.
func LoadConfigFile(filename string) (*Config, error) {
	content, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to load %v: %v", filename, err.Error())
	}
	cfg, err := LoadConfigString(content)
	if err != nil {
		return nil, fmt.Errorf("failed to load %v: %v", filename, err.Error())
	}
	return cfg, nil
}

// LoadConfigString loads and parses a YAML config string.
func LoadConfigString(content []byte) (*Config, error) {
	return Unmarshal(content)
}

func (c *Config) validate() error {
	def, err := parseDefaultAction(c.Default)
	if err != nil {
		return err
	}

	entries := make([]pathmover.PrefixMapEntry, 0, len(c.PrefixMap))
	for _, e := range c.PrefixMap {
		action, err := parsePrefixAction(e)
		if err != nil {
			return err
		}
		entries = append(entries, pathmover.PrefixMapEntry{
			Key:    scmtypes.NewPath(e.Path),
			Action: action,
		})
	}

	// Construction-time validation: an invalid (non-prefix-free) map is
	// rejected at config-load time, the same moment gitp4transfer's
	// config rejects an unparsable branch-mapping regex.
	mover, err := pathmover.NewMover(entries, def)
	if err != nil {
		return fmt.Errorf("invalid prefix_map: %w", err)
	}
	c.ParsedMover = mover
	return nil
}

func parsePrefixAction(e PrefixMapEntry) (pathmover.PrefixActionSpec, error) {
	switch e.Action {
	case "change":
		return pathmover.PrefixActionSpec{Kind: pathmover.ActionChange, NewPrefix: scmtypes.NewPath(e.NewPrefix)}, nil
	case "remove_prefix":
		return pathmover.PrefixActionSpec{Kind: pathmover.ActionRemovePrefix}, nil
	case "do_not_sync":
		return pathmover.PrefixActionSpec{Kind: pathmover.ActionDoNotSync}, nil
	default:
		return pathmover.PrefixActionSpec{}, fmt.Errorf("prefix_map: unknown action %q for path %q", e.Action, e.Path)
	}
}

func parseDefaultAction(d DefaultAction) (pathmover.DefaultAction, error) {
	switch d.Kind {
	case "", "prepend_prefix":
		return pathmover.DefaultAction{Kind: pathmover.DefaultPrependPrefix, Prefix: scmtypes.NewPath(d.Prefix)}, nil
	case "preserve":
		return pathmover.DefaultAction{Kind: pathmover.DefaultPreserve}, nil
	case "do_not_sync":
		return pathmover.DefaultAction{Kind: pathmover.DefaultDoNotSync}, nil
	default:
		return pathmover.DefaultAction{}, fmt.Errorf("default_action: unknown kind %q", d.Kind)
	}
}

// loadDSNsFromEnv overlays DB connection strings from the environment.
// A DSN absent from the environment is left empty; cmd/scmcored decides
// whether that is fatal for the role in question (a read-only debug
// invocation may run with no write-primary DSN at all).
func (c *Config) loadDSNsFromEnv() {
	c.DB.WritePrimaryDSN = os.Getenv(envWritePrimaryDSN)
	c.DB.ReadPrimaryDSN = os.Getenv(envReadPrimaryDSN)
	c.DB.ReadReplicaDSN = os.Getenv(envReadReplicaDSN)
}
