// Package config loads the local repository's TOML configuration: one
// `[remote.NAME]` section per configured remote, giving its URL and
// optional default branch list. This is distinct from the remote's own
// `/config` key-file (spec.md §6), which pkg/remote.Client parses with
// an INI reader; this file lives in the local repo and is parsed with
// BurntSushi/toml, the same library the teacher's Cargo.toml/pyproject
// manifest parsers use.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// RemoteConfig is one `[remote.NAME]` section.
type RemoteConfig struct {
	URL      string   `toml:"url"`
	Branches []string `toml:"branches"`
}

// Config is the parsed local repo configuration.
type Config struct {
	Remote map[string]RemoteConfig `toml:"remote"`
}

// Load reads and parses path. A missing file is not an error: it
// returns an empty Config so a repo can be used with purely
// command-line-specified remotes.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{Remote: map[string]RemoteConfig{}}, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if cfg.Remote == nil {
		cfg.Remote = map[string]RemoteConfig{}
	}
	return &cfg, nil
}

// Lookup returns the named remote's configuration, or ok=false if it is
// not configured.
func (c *Config) Lookup(name string) (RemoteConfig, bool) {
	rc, ok := c.Remote[name]
	return rc, ok
}
