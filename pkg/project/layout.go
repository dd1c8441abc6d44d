// Package project describes a project's directory in the index database and
// the configuration and metadata files kept there.
package project

import (
	"path/filepath"
	"strings"

	"github.com/odvcencio/sourcedigger/pkg/object"
)

// Names inside a project directory.
const (
	ConfigFile       = "config.toml"
	IndexFile        = "index.toml"
	ObjectsDir       = "objects"
	TagsDir          = "tags"
	DiffsDir         = "diffs"
	CombinedTagsFile = "ctags"
	AutocompleteFile = "autocomplete_db"
)

// Layout locates the files of one project rooted at Root.
type Layout struct {
	Root string
}

func (l Layout) ConfigPath() string       { return filepath.Join(l.Root, ConfigFile) }
func (l Layout) IndexPath() string        { return filepath.Join(l.Root, IndexFile) }
func (l Layout) ObjectsPath() string      { return filepath.Join(l.Root, ObjectsDir) }
func (l Layout) TagsPath() string         { return filepath.Join(l.Root, TagsDir) }
func (l Layout) DiffsPath() string        { return filepath.Join(l.Root, DiffsDir) }
func (l Layout) CombinedTagsPath() string { return filepath.Join(l.Root, CombinedTagsFile) }
func (l Layout) AutocompletePath() string { return filepath.Join(l.Root, AutocompleteFile) }

// Objects returns the raw object store.
func (l Layout) Objects() *object.Store { return object.NewStore(l.ObjectsPath()) }

// Tags returns the per-object tag file store. It shares keys with Objects.
func (l Layout) Tags() *object.Store { return object.NewStore(l.TagsPath()) }

// ObjectRef is how generators and the combined tag table name an object:
// its path relative to Root, with forward slashes.
func ObjectRef(id object.ID) string { return ObjectsDir + "/" + string(id) }

// DiffPath returns the diff file for the transition into tag.
func (l Layout) DiffPath(tag string) string {
	return filepath.Join(l.DiffsPath(), SanitizeTag(tag))
}

// SanitizeTag maps a tag name to a diff file name: path separators become
// '-'.
func SanitizeTag(tag string) string {
	return strings.NewReplacer("/", "-", `\`, "-").Replace(tag)
}
