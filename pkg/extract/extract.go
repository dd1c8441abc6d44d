package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/odvcencio/sourcedigger/pkg/logging"
	"github.com/odvcencio/sourcedigger/pkg/metrics"
	"github.com/odvcencio/sourcedigger/pkg/object"
	"github.com/odvcencio/sourcedigger/pkg/progress"
	"github.com/odvcencio/sourcedigger/pkg/repo"
)

// Options configures an Extractor. Zero values are usable.
type Options struct {
	Filter   *Filter
	Workers  int // defaults to GOMAXPROCS
	Logger   *slog.Logger
	Progress progress.Reporter
	Metrics  *metrics.Metrics
}

// Extractor walks tagged trees and fills an object store.
type Extractor struct {
	src      repo.Source
	store    *object.Store
	filter   *Filter
	workers  int
	logger   *slog.Logger
	progress progress.Reporter
	metrics  *metrics.Metrics

	written atomic.Int64
	present atomic.Int64
}

// New returns an extractor copying from src into store.
func New(src repo.Source, store *object.Store, opts Options) *Extractor {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Extractor{
		src:      src,
		store:    store,
		filter:   opts.Filter,
		workers:  workers,
		logger:   logging.OrDiscard(opts.Logger),
		progress: progress.OrNop(opts.Progress),
		metrics:  opts.Metrics,
	}
}

// Walk visits the blobs of tag's tree that pass the filter.
func (e *Extractor) Walk(ctx context.Context, tag repo.Tag, fn repo.WalkFunc) error {
	return e.src.Walk(ctx, tag, func(fe repo.FileEntry) error {
		if !e.filter.Match(fe.Path) {
			return nil
		}
		return fn(fe)
	})
}

// Collection is the result of walking a tag sequence.
type Collection struct {
	Tags    []repo.Tag  // tags that were walked, in input order
	Skipped []repo.Tag  // unresolvable tags
	IDs     []object.ID // distinct object ids, sorted
	Files   int         // file entries seen across all tags
}

// Collect walks every tag and gathers the distinct object ids. Tags whose
// tree cannot be read are logged and skipped; any other error ends the walk.
func (e *Extractor) Collect(ctx context.Context, tags []repo.Tag) (*Collection, error) {
	c := &Collection{}
	seen := make(map[object.ID]struct{})

	e.progress.Start("Scanning tags", len(tags))
	defer e.progress.Finish()
	for _, tag := range tags {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		err := e.Walk(ctx, tag, func(fe repo.FileEntry) error {
			c.Files++
			seen[fe.ID] = struct{}{}
			return nil
		})
		e.progress.Add(1)
		if errors.Is(err, repo.ErrUnresolvable) {
			e.logger.Warn("skipping unresolvable tag", "tag", tag.Name, "error", err)
			e.metrics.TagSkipped()
			c.Skipped = append(c.Skipped, tag)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("collect %s: %w", tag.Name, err)
		}
		c.Tags = append(c.Tags, tag)
	}

	c.IDs = make([]object.ID, 0, len(seen))
	for id := range seen {
		c.IDs = append(c.IDs, id)
	}
	sort.Slice(c.IDs, func(i, j int) bool { return c.IDs[i] < c.IDs[j] })

	e.logger.Info("collected objects",
		"tags", len(c.Tags), "skipped", len(c.Skipped),
		"objects", len(c.IDs), "duplicates", c.Files-len(c.IDs))
	return c, nil
}

// WriteObjects stores every id not already present and returns the ids this
// call created, sorted. Each worker owns one blob reader. Blob contents are
// verified against their id before they are stored.
func (e *Extractor) WriteObjects(ctx context.Context, ids []object.ID) ([]object.ID, error) {
	var (
		mu      sync.Mutex
		created []object.ID
	)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.progress.Start("Writing objects", len(ids))
	defer e.progress.Finish()

	g, ctx := errgroup.WithContext(ctx)
	jobs := make(chan object.ID)
	g.Go(func() error {
		defer close(jobs)
		for _, id := range ids {
			select {
			case jobs <- id:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})

	workers := min(e.workers, len(ids))
	for range workers {
		g.Go(func() error {
			blobs, err := e.src.OpenBlobs(ctx)
			if err != nil {
				return err
			}
			defer blobs.Close()

			for id := range jobs {
				if err := ctx.Err(); err != nil {
					return err
				}
				ok, err := e.writeObject(blobs, id)
				if err != nil {
					return err
				}
				if ok {
					mu.Lock()
					created = append(created, id)
					mu.Unlock()
				}
				e.progress.Add(1)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("write objects: %w", err)
	}

	sort.Slice(created, func(i, j int) bool { return created[i] < created[j] })
	e.logger.Info("wrote objects", "new", len(created), "present", len(ids)-len(created))
	return created, nil
}

func (e *Extractor) writeObject(blobs repo.BlobReader, id object.ID) (bool, error) {
	if e.store.Has(id) {
		e.present.Add(1)
		e.metrics.ObjectWritten(false)
		return false, nil
	}
	data, err := blobs.ReadBlob(id)
	if err != nil {
		return false, err
	}
	if err := object.Verify(id, data); err != nil {
		return false, err
	}
	ok, err := e.store.Write(id, data)
	if err != nil {
		return false, err
	}
	if ok {
		e.written.Add(1)
	} else {
		e.present.Add(1)
	}
	e.metrics.ObjectWritten(ok)
	return ok, nil
}

// Stats reports the objects written and found present since New.
func (e *Extractor) Stats() (written, present int64) {
	return e.written.Load(), e.present.Load()
}
