package project

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"runtime"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/odvcencio/sourcedigger/pkg/ctags"
	"github.com/odvcencio/sourcedigger/pkg/extract"
	"github.com/odvcencio/sourcedigger/pkg/object"
)

// Defaults applied by Config.Normalize.
const (
	DefaultTagOrder         = string(extract.OrderTime)
	DefaultCacheSize        = 4096
	DefaultGeneratorTimeout = 30 * time.Minute
)

// Config is the project registration stored in config.toml.
type Config struct {
	Name         string          `toml:"name"`
	Origin       string          `toml:"origin,omitempty"`
	SourceViewer string          `toml:"source_viewer,omitempty"`
	Index        IndexConfig     `toml:"index"`
	Generator    GeneratorConfig `toml:"generator"`
}

// IndexConfig controls tag selection and file filtering.
type IndexConfig struct {
	Repo        string   `toml:"repo"`
	TagPattern  string   `toml:"tag_pattern,omitempty"`
	FilePattern string   `toml:"file_pattern,omitempty"`
	FileGlobs   []string `toml:"file_globs,omitempty"`
	Sort        string   `toml:"sort"`
	Workers     int      `toml:"workers,omitempty"` // 0 means GOMAXPROCS
	CacheSize   int      `toml:"cache_size"`        // tag files cached by the diff engine
}

// GeneratorConfig selects the symbol-table generator.
type GeneratorConfig struct {
	Kind    string   `toml:"kind"`
	Command string   `toml:"command,omitempty"`
	Args    []string `toml:"args,omitempty"`
	Timeout Duration `toml:"timeout"`
}

// Duration is a time.Duration written as a Go duration string.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

// Normalize fills unset fields with defaults.
func (c *Config) Normalize() {
	if c.Index.Sort == "" {
		c.Index.Sort = DefaultTagOrder
	}
	if c.Index.CacheSize == 0 {
		c.Index.CacheSize = DefaultCacheSize
	}
	if c.Generator.Kind == "" {
		c.Generator.Kind = ctags.KindExec
	}
}

// Validate reports the first problem with c.
func (c *Config) Validate() error {
	if err := ValidateName(c.Name); err != nil {
		return err
	}
	if c.Index.Repo == "" {
		return errors.New("config: index.repo is required")
	}
	if _, err := c.TagRegexp(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if _, err := c.Filter(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if _, err := extract.ParseOrder(c.Index.Sort); err != nil {
		return fmt.Errorf("config: index.sort: %w", err)
	}
	if c.Index.Workers < 0 {
		return fmt.Errorf("config: index.workers must not be negative, got %d", c.Index.Workers)
	}
	if c.Index.CacheSize < 0 {
		return fmt.Errorf("config: index.cache_size must not be negative, got %d", c.Index.CacheSize)
	}
	if _, err := ctags.New(c.GeneratorConfig()); err != nil {
		return fmt.Errorf("config: generator: %w", err)
	}
	if c.Generator.Timeout.Duration < 0 {
		return errors.New("config: generator.timeout must not be negative")
	}
	return nil
}

// ValidateName rejects names that are not a single path element.
func ValidateName(name string) error {
	switch {
	case name == "":
		return errors.New("project name is required")
	case name == "." || name == "..":
		return fmt.Errorf("invalid project name %q", name)
	case strings.ContainsAny(name, `/\`) || !fs.ValidPath(name):
		return fmt.Errorf("project name %q must be a single path element", name)
	}
	return nil
}

// TagRegexp compiles the tag pattern; nil when unset.
func (c *Config) TagRegexp() (*regexp.Regexp, error) {
	if c.Index.TagPattern == "" {
		return nil, nil
	}
	re, err := regexp.Compile(c.Index.TagPattern)
	if err != nil {
		return nil, fmt.Errorf("tag pattern: %w", err)
	}
	return re, nil
}

// Filter compiles the file pattern and globs.
func (c *Config) Filter() (*extract.Filter, error) {
	return extract.NewFilter(c.Index.FilePattern, c.Index.FileGlobs)
}

// Order returns the tag order.
func (c *Config) Order() extract.Order {
	o, err := extract.ParseOrder(c.Index.Sort)
	if err != nil {
		return extract.OrderTime
	}
	return o
}

// Workers returns the worker count, resolving 0 to GOMAXPROCS.
func (c *Config) Workers() int {
	if c.Index.Workers > 0 {
		return c.Index.Workers
	}
	return runtime.GOMAXPROCS(0)
}

// GeneratorConfig converts the generator section.
func (c *Config) GeneratorConfig() ctags.Config {
	return ctags.Config{
		Kind:    c.Generator.Kind,
		Command: c.Generator.Command,
		Args:    c.Generator.Args,
		Timeout: c.Generator.Timeout.Duration,
	}
}

// LoadConfig reads and validates a config file. Missing settings take
// their defaults.
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	return &cfg, nil
}

// SaveConfig writes cfg to path atomically.
func SaveConfig(path string, cfg *Config) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := object.WriteFileAtomic(path, buf.Bytes()); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	return nil
}
