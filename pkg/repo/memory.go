package repo

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/odvcencio/sourcedigger/pkg/object"
)

// Memory is an in-memory Source. Tag commits are synthetic; file ids are
// real git blob ids of the contents.
type Memory struct {
	mu     sync.RWMutex
	tags   []Tag
	trees  map[string][]FileEntry // by tag name
	broken map[string]bool
	blobs  map[object.ID][]byte
}

// NewMemory returns an empty source.
func NewMemory() *Memory {
	return &Memory{
		trees:  make(map[string][]FileEntry),
		broken: make(map[string]bool),
		blobs:  make(map[object.ID][]byte),
	}
}

// AddTag records a tag whose tree holds files (path to content). Walk visits
// the paths in sorted order.
func (m *Memory) AddTag(name string, at time.Time, files map[string]string) Tag {
	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	m.mu.Lock()
	defer m.mu.Unlock()
	entries := make([]FileEntry, 0, len(paths))
	for _, p := range paths {
		data := []byte(files[p])
		id := object.HashBlob(data, false)
		m.blobs[id] = data
		entries = append(entries, FileEntry{Path: p, ID: id})
	}
	tag := Tag{Name: name, Commit: string(object.HashBlob([]byte("commit "+name), false)), Time: at.UTC()}
	m.tags = append(m.tags, tag)
	m.trees[name] = entries
	return tag
}

// AddBrokenTag records a tag that is listed but whose tree cannot be read.
func (m *Memory) AddBrokenTag(name string, at time.Time) Tag {
	m.mu.Lock()
	defer m.mu.Unlock()
	tag := Tag{Name: name, Time: at.UTC()}
	m.tags = append(m.tags, tag)
	m.broken[name] = true
	return tag
}

// Tags returns the tags in insertion order.
func (m *Memory) Tags(ctx context.Context) ([]Tag, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Tag(nil), m.tags...), nil
}

// Walk visits the tag's files in path order.
func (m *Memory) Walk(ctx context.Context, tag Tag, fn WalkFunc) error {
	m.mu.RLock()
	entries, ok := m.trees[tag.Name]
	broken := m.broken[tag.Name]
	m.mu.RUnlock()
	if broken {
		return fmt.Errorf("%w: %s has no tree", ErrUnresolvable, tag.Name)
	}
	if !ok {
		return fmt.Errorf("%w: %w: %s", ErrUnresolvable, ErrTagNotFound, tag.Name)
	}
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	return nil
}

// OpenBlobs returns a reader over the recorded contents.
func (m *Memory) OpenBlobs(ctx context.Context) (BlobReader, error) {
	return memoryBlobs{m}, nil
}

// PutBlob stores data under id without checking that id matches. Tests use
// it to plant corrupt objects.
func (m *Memory) PutBlob(id object.ID, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[id] = data
}

type memoryBlobs struct{ m *Memory }

func (b memoryBlobs) ReadBlob(id object.ID) ([]byte, error) {
	b.m.mu.RLock()
	defer b.m.mu.RUnlock()
	data, ok := b.m.blobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBlobNotFound, id)
	}
	return append([]byte(nil), data...), nil
}

func (memoryBlobs) Close() error { return nil }
