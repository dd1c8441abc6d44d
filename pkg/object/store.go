package object

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Store is a flat content-addressed directory: <dir>/<hex id>. It backs both
// the raw object store and the per-object tag files, which share keys.
type Store struct {
	dir string
}

// NewStore creates a Store rooted at dir. The directory is created lazily on
// first write.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the store directory.
func (s *Store) Dir() string { return s.dir }

// Path returns the filesystem path for id. Callers must have validated id.
func (s *Store) Path(id ID) string {
	return filepath.Join(s.dir, string(id))
}

// Has reports whether the store contains id.
func (s *Store) Has(id ID) bool {
	return Exists(s.Path(id))
}

// Write stores data under id unless it is already present and reports
// whether this call created the file. Existence check and write are not
// atomic together; two writers racing on the same id rename identical bytes
// onto the same path, which is harmless.
func (s *Store) Write(id ID, data []byte) (bool, error) {
	if err := id.Validate(); err != nil {
		return false, fmt.Errorf("object write: %w", err)
	}

	// Fast path: already exists.
	if s.Has(id) {
		return false, nil
	}

	if err := WriteFileAtomic(s.Path(id), data); err != nil {
		return false, fmt.Errorf("object write %s: %w", id.Short(), err)
	}
	return true, nil
}

// Create opens an atomic writer for id. The entry becomes visible on Commit.
func (s *Store) Create(id ID) (*AtomicFile, error) {
	if err := id.Validate(); err != nil {
		return nil, fmt.Errorf("object create: %w", err)
	}
	return CreateAtomic(s.Path(id))
}

// Read returns the content stored under id.
func (s *Store) Read(id ID) ([]byte, error) {
	if err := id.Validate(); err != nil {
		return nil, fmt.Errorf("object read: %w", err)
	}
	data, err := os.ReadFile(s.Path(id))
	if err != nil {
		return nil, fmt.Errorf("object read %s: %w", id.Short(), err)
	}
	return data, nil
}

// List returns every committed id in the store, sorted. Temp files and
// anything that is not a valid id are ignored. A missing directory yields an
// empty list.
func (s *Store) List() ([]ID, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("object list: %w", err)
	}
	ids := make([]ID, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		id := ID(name)
		if id.Validate() != nil {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}
