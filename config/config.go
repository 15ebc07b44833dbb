// Package config provides TOML-backed configuration for the streams
// engine, in the same load-from-bytes-then-validate shape as the
// teacher's own config package.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

const (
	defaultBaseBranch = "base"
	defaultLogLevel   = "NOTICE"
)

// Engine carries the settings that select what a User instance does:
// where it keeps durable state, whether it runs lean, and which topic
// names the root branch.
type Engine struct {
	// DataDir is where the bbolt transport database and identity seed
	// file live.
	DataDir string

	// Lean evicts a message's predecessor spongos snapshot once the
	// message's own snapshot is stored, unless the predecessor is the
	// stream announcement, trading replay convenience for memory.
	Lean bool

	// BaseBranch is the topic name used for the stream's root branch.
	BaseBranch string
}

// Logging mirrors the teacher's own Logging section: where log output
// goes, at what level, or whether it is disabled outright.
type Logging struct {
	Disable bool
	File    string
	Level   string
}

// Config is the top level TOML document.
type Config struct {
	Engine  Engine
	Logging Logging
}

func (c *Config) validate() error {
	if c.Engine.DataDir == "" {
		return fmt.Errorf("config: Engine.DataDir is not set")
	}
	if c.Engine.BaseBranch == "" {
		c.Engine.BaseBranch = defaultBaseBranch
	}
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	switch c.Logging.Level {
	case "ERROR", "WARNING", "NOTICE", "INFO", "DEBUG":
	default:
		return fmt.Errorf("config: invalid Logging.Level: '%v'", c.Logging.Level)
	}
	return nil
}

// Load parses a TOML document from raw bytes and validates it.
func Load(b []byte) (*Config, error) {
	cfg := new(Config)
	md, err := toml.Decode(string(b), cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := md.Undecoded(); len(undecoded) != 0 {
		return nil, fmt.Errorf("config: unknown keys in config: %v", undecoded)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile reads and parses a TOML document from the file at path.
func LoadFile(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Load(b)
}
