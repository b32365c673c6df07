// Package config loads the optional vcdmerge configuration file.
//
// The file is either TOML (vcdmerge.toml) or YAML (vcdmerge.yaml,
// vcdmerge.yml). Keys that are not set keep their defaults; unknown keys are
// rejected so typos do not go unnoticed. Command-line flags are applied on
// top of the loaded values by the caller.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// FileNames lists the file names Find looks for, in order of preference.
var FileNames = []string{"vcdmerge.toml", "vcdmerge.yaml", "vcdmerge.yml"}

// ErrInvalid is returned for files that parse but hold unusable values.
var ErrInvalid = errors.New("invalid configuration")

// Config is the whole configuration file.
type Config struct {
	Merge  Merge  `toml:"merge" yaml:"merge"`
	Output Output `toml:"output" yaml:"output"`
	UI     UI     `toml:"ui" yaml:"ui"`

	// Path is the file the configuration was loaded from, empty for
	// defaults.
	Path string `toml:"-" yaml:"-"`
}

// Merge tunes how inputs are read and merged.
type Merge struct {
	Reorder    bool   `toml:"reorder" yaml:"reorder"`
	Prefetch   int    `toml:"prefetch" yaml:"prefetch"`
	Jobs       int    `toml:"jobs" yaml:"jobs"`
	Timescale  string `toml:"timescale" yaml:"timescale"`
	Label      string `toml:"label" yaml:"label"`
	BufferSize int    `toml:"buffer_size" yaml:"buffer_size"`
}

// Output controls the header metadata and side files of a merge.
type Output struct {
	Date    string `toml:"date" yaml:"date"`
	Version string `toml:"version" yaml:"version"`
	IDMap   string `toml:"idmap" yaml:"idmap"`
}

// UI selects the progress display.
type UI struct {
	Mode string `toml:"mode" yaml:"mode"`
}

// Default returns the configuration used when no file is found.
func Default() Config {
	return Config{
		Merge: Merge{
			Prefetch:   4,
			Timescale:  "gcd",
			Label:      "input{index}",
			BufferSize: 64 << 10,
		},
		UI: UI{Mode: "auto"},
	}
}

// Find walks up from startDir looking for a configuration file. It reports
// false when none exists up to the filesystem root.
func Find(startDir string) (string, bool, error) {
	if startDir == "" {
		startDir = "."
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve start directory: %w", err)
	}
	for {
		for _, name := range FileNames {
			candidate := filepath.Join(dir, name)
			if _, err := os.Stat(candidate); err == nil {
				return candidate, true, nil
			} else if !errors.Is(err, os.ErrNotExist) {
				return "", false, fmt.Errorf("failed to stat %q: %w", candidate, err)
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false, nil
}

// Load reads the file at path on top of Default.
func Load(path string) (Config, error) {
	cfg := Default()
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		meta, err := toml.DecodeFile(path, &cfg)
		if err != nil {
			return Config{}, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return Config{}, fmt.Errorf("%s: %w: unknown key %q", path, ErrInvalid, undecoded[0].String())
		}
	case ".yaml", ".yml":
		f, err := os.Open(path)
		if err != nil {
			return Config{}, err
		}
		defer f.Close()
		dec := yaml.NewDecoder(f)
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return Config{}, fmt.Errorf("%s: failed to parse YAML: %w", path, err)
		}
	default:
		return Config{}, fmt.Errorf("%s: unsupported configuration format %q", path, ext)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	cfg.Path = path
	return cfg, nil
}

// Discover loads the file found by Find from startDir, or returns Default.
func Discover(startDir string) (Config, error) {
	path, ok, err := Find(startDir)
	if err != nil {
		return Config{}, err
	}
	if !ok {
		return Default(), nil
	}
	return Load(path)
}

// Validate checks value ranges and enumerations.
func (c Config) Validate() error {
	switch c.Merge.Timescale {
	case "", "gcd", "strict":
	default:
		return fmt.Errorf("%w: merge.timescale must be gcd or strict, got %q", ErrInvalid, c.Merge.Timescale)
	}
	switch c.UI.Mode {
	case "", "auto", "on", "off":
	default:
		return fmt.Errorf("%w: ui.mode must be auto, on or off, got %q", ErrInvalid, c.UI.Mode)
	}
	if c.Merge.Prefetch < 0 {
		return fmt.Errorf("%w: merge.prefetch must not be negative", ErrInvalid)
	}
	if c.Merge.Jobs < 0 {
		return fmt.Errorf("%w: merge.jobs must not be negative", ErrInvalid)
	}
	if c.Merge.BufferSize < 0 {
		return fmt.Errorf("%w: merge.buffer_size must not be negative", ErrInvalid)
	}
	return nil
}
