package symdiff

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/odvcencio/sourcedigger/pkg/logging"
	"github.com/odvcencio/sourcedigger/pkg/metrics"
	"github.com/odvcencio/sourcedigger/pkg/object"
	"github.com/odvcencio/sourcedigger/pkg/progress"
	"github.com/odvcencio/sourcedigger/pkg/project"
	"github.com/odvcencio/sourcedigger/pkg/repo"
	"github.com/odvcencio/sourcedigger/pkg/tagfile"
)

// DefaultCacheSize is the number of per-object tag files kept in memory.
const DefaultCacheSize = 4096

// ErrNameCollision is returned by Run when two tags map to the same diff
// file name.
var ErrNameCollision = errors.New("symdiff: tags share a diff file name")

// DropCollisions keeps the first of every group of tags whose diff file
// names coincide (rel/1 and rel-1 both write diffs/rel-1). The later tags
// are returned as dropped, in order.
func DropCollisions(tags []repo.Tag) (kept, dropped []repo.Tag) {
	seen := make(map[string]bool, len(tags))
	kept = make([]repo.Tag, 0, len(tags))
	for _, tag := range tags {
		name := project.SanitizeTag(tag.Name)
		if seen[name] {
			dropped = append(dropped, tag)
			continue
		}
		seen[name] = true
		kept = append(kept, tag)
	}
	return kept, dropped
}

// Walker visits the file entries of a tag. *extract.Extractor implements it
// with the project's file filter applied.
type Walker interface {
	Walk(ctx context.Context, tag repo.Tag, fn repo.WalkFunc) error
}

// Options configures an Engine. Zero values are usable.
type Options struct {
	CacheSize int
	Logger    *slog.Logger
	Progress  progress.Reporter
	Metrics   *metrics.Metrics
}

// Engine writes diffs/<tag> for every transition of a tag sequence.
type Engine struct {
	layout   project.Layout
	walker   Walker
	tags     *object.Store
	cache    *lru.Cache[object.ID, []tagfile.Symbol]
	logger   *slog.Logger
	progress progress.Reporter
	metrics  *metrics.Metrics

	files   atomic.Int64
	diffs   atomic.Int64
	records atomic.Int64
	skipped atomic.Int64
}

// New returns an engine reading tag files from layout.
func New(layout project.Layout, walker Walker, opts Options) (*Engine, error) {
	size := opts.CacheSize
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[object.ID, []tagfile.Symbol](size)
	if err != nil {
		return nil, fmt.Errorf("symdiff: %w", err)
	}
	return &Engine{
		layout:   layout,
		walker:   walker,
		tags:     layout.Tags(),
		cache:    cache,
		logger:   logging.OrDiscard(opts.Logger),
		progress: progress.OrNop(opts.Progress),
		metrics:  opts.Metrics,
	}, nil
}

// Stats counts the work done by Run calls so far.
type Stats struct {
	Files   int64 // file entries loaded
	Diffs   int64 // diff files written
	Records int64 // records in written diff files
	Skipped int64 // transitions whose diff file already existed
}

func (e *Engine) Stats() Stats {
	return Stats{
		Files:   e.files.Load(),
		Diffs:   e.diffs.Load(),
		Records: e.records.Load(),
		Skipped: e.skipped.Load(),
	}
}

// ToCompute returns the tags that must be walked to produce every missing
// diff: each tag without a diff file, and each tag whose successor has none
// (it supplies the successor's previous version). Order is preserved.
func (e *Engine) ToCompute(tags []repo.Tag) []repo.Tag {
	missing := make([]bool, len(tags)+1)
	for i, tag := range tags {
		missing[i] = !object.Exists(e.layout.DiffPath(tag.Name))
	}
	var out []repo.Tag
	for i, tag := range tags {
		if missing[i] || missing[i+1] {
			out = append(out, tag)
		}
	}
	return out
}

// Run diffs each tag against its predecessor in tags. Transitions whose diff
// file exists are not recomputed, but their tag is still loaded so the next
// transition compares against the right version. The first tag is compared
// against an empty version.
func (e *Engine) Run(ctx context.Context, tags []repo.Tag) error {
	if _, dropped := DropCollisions(tags); len(dropped) > 0 {
		return fmt.Errorf("%w: %s", ErrNameCollision, dropped[0].Name)
	}
	todo := e.ToCompute(tags)
	if len(todo) == 0 {
		e.logger.Info("all comparisons present", "tags", len(tags))
		return nil
	}

	e.progress.Start("Comparing tags", len(todo))
	defer e.progress.Finish()

	w := NewWindow()
	for _, tag := range todo {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.load(ctx, w, tag); err != nil {
			return err
		}
		if err := e.persist(w, tag); err != nil {
			return err
		}
		w.Slide()
		e.progress.Add(1)
	}

	s := e.Stats()
	e.logger.Info("created comparisons", "diffs", s.Diffs, "records", s.Records, "files", s.Files, "skipped", s.Skipped)
	return nil
}

func (e *Engine) load(ctx context.Context, w *Window, tag repo.Tag) error {
	err := e.walker.Walk(ctx, tag, func(fe repo.FileEntry) error {
		syms, err := e.symbols(fe.ID)
		if err != nil {
			return err
		}
		for _, s := range syms {
			w.Load(SymbolID{Name: s.Name, Type: s.Type}, Occurrence{File: fe.Path, Line: s.Line, Extra: s.Extra})
		}
		e.files.Add(1)
		return nil
	})
	if err != nil {
		return fmt.Errorf("load %s: %w", tag.Name, err)
	}
	prev, next := w.Sizes()
	e.logger.Debug("loaded tag", "tag", tag.Name, "symbols", next, "previous", prev)
	return nil
}

// symbols returns the parsed tag file of id. An object without a tag file
// has no symbols.
func (e *Engine) symbols(id object.ID) ([]tagfile.Symbol, error) {
	if syms, ok := e.cache.Get(id); ok {
		return syms, nil
	}
	data, err := e.tags.Read(id)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var syms []tagfile.Symbol
	err = tagfile.ReadSymbols(bytes.NewReader(data), func(s tagfile.Symbol) error {
		syms = append(syms, s)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("tag file %s: %w", id.Short(), err)
	}
	e.cache.Add(id, syms)
	return syms, nil
}

func (e *Engine) persist(w *Window, tag repo.Tag) error {
	path := e.layout.DiffPath(tag.Name)
	if object.Exists(path) {
		e.skipped.Add(1)
		e.logger.Debug("comparison exists", "tag", tag.Name)
		return nil
	}

	records, common := w.Diff()
	if common > 0 {
		e.logger.Debug("symbols present in both versions not compared", "tag", tag.Name, "count", common)
	}
	var added, removed int
	for _, r := range records {
		if r.Action == Add {
			added++
		} else {
			removed++
		}
	}

	var buf bytes.Buffer
	if err := WriteRecords(&buf, records); err != nil {
		return err
	}
	if err := object.WriteFileAtomic(path, buf.Bytes()); err != nil {
		return fmt.Errorf("write diff %s: %w", tag.Name, err)
	}
	e.diffs.Add(1)
	e.records.Add(int64(len(records)))
	e.metrics.DiffWritten(added, removed)
	e.logger.Debug("wrote comparison", "tag", tag.Name, "added", added, "removed", removed)
	return nil
}
