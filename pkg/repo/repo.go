// Package repo reads tagged revisions out of a version-controlled tree.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/odvcencio/sourcedigger/pkg/object"
)

var (
	// ErrUnresolvable is returned when a tag cannot be peeled to a commit or
	// its tree cannot be listed.
	ErrUnresolvable = errors.New("revision cannot be resolved")

	// ErrTagNotFound is returned when a tag name is not known to the source.
	ErrTagNotFound = errors.New("tag not found")

	// ErrBlobNotFound is returned when a blob id is absent from the source.
	ErrBlobNotFound = errors.New("blob not found")
)

// Tag is a tag ref peeled through any annotation objects to its commit.
type Tag struct {
	Name   string    // ref name below refs/tags/, e.g. "v6.1" or "release/1.0"
	Commit string    // peeled commit id
	Time   time.Time // committer time of Commit
}

// FileEntry is one blob reachable from a tagged tree.
type FileEntry struct {
	Path string // repo-relative, forward slashes
	ID   object.ID
}

// WalkFunc is called for each blob in pre-order. Returning an error stops
// the walk and is returned from Walk.
type WalkFunc func(FileEntry) error

// BlobReader reads blob contents by id. Implementations are not safe for
// concurrent use; open one per worker.
type BlobReader interface {
	ReadBlob(id object.ID) ([]byte, error)
	Close() error
}

// Source is the view of a repository the indexer needs.
type Source interface {
	// Tags returns every tag that peels to a commit, in no particular order.
	Tags(ctx context.Context) ([]Tag, error)

	// Walk visits the blobs of tag's tree in pre-order. It returns an error
	// wrapping ErrUnresolvable when the tag's tree cannot be read.
	Walk(ctx context.Context, tag Tag, fn WalkFunc) error

	// OpenBlobs starts a blob reader.
	OpenBlobs(ctx context.Context) (BlobReader, error)
}
