package project

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

var (
	// ErrNotFound is returned when a project has no config.toml.
	ErrNotFound = errors.New("project not found")

	// ErrExists is returned by Create when the project is already registered.
	ErrExists = errors.New("project already exists")
)

// Project is a registered project in a database directory.
type Project struct {
	Layout
	Config *Config
}

// Open loads the project name from db.
func Open(db, name string) (*Project, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	l := Layout{Root: filepath.Join(db, name)}
	cfg, err := LoadConfig(l.ConfigPath())
	if err != nil {
		return nil, err
	}
	if cfg.Name != name {
		return nil, fmt.Errorf("open %s: config names project %q", l.Root, cfg.Name)
	}
	return &Project{Layout: l, Config: cfg}, nil
}

// Create registers a new project under db. The config is normalized and
// validated before anything is written.
func Create(db string, cfg *Config) (*Project, error) {
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	l := Layout{Root: filepath.Join(db, cfg.Name)}
	if _, err := os.Stat(l.ConfigPath()); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrExists, cfg.Name)
	}
	for _, dir := range []string{l.ObjectsPath(), l.TagsPath(), l.DiffsPath()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create project %s: %w", cfg.Name, err)
		}
	}
	if err := SaveConfig(l.ConfigPath(), cfg); err != nil {
		return nil, err
	}
	return &Project{Layout: l, Config: cfg}, nil
}

// List returns the names of the projects registered under db, sorted.
func List(db string) ([]string, error) {
	entries, err := os.ReadDir(db)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(db, e.Name(), ConfigFile)); err == nil {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Meta loads the project's index metadata.
func (p *Project) Meta() (*IndexMeta, error) {
	return LoadIndexMeta(p.IndexPath())
}
