// Package organize runs the symbol-table generator over stored objects and
// splits its output into one tag file per object.
package organize

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/odvcencio/sourcedigger/pkg/ctags"
	"github.com/odvcencio/sourcedigger/pkg/logging"
	"github.com/odvcencio/sourcedigger/pkg/metrics"
	"github.com/odvcencio/sourcedigger/pkg/object"
	"github.com/odvcencio/sourcedigger/pkg/progress"
	"github.com/odvcencio/sourcedigger/pkg/project"
	"github.com/odvcencio/sourcedigger/pkg/tagfile"
)

// Options configures an Organizer. Zero values are usable.
type Options struct {
	Workers  int // defaults to GOMAXPROCS
	Logger   *slog.Logger
	Progress progress.Reporter
	Metrics  *metrics.Metrics
}

// Organizer turns stored objects into per-object tag files.
type Organizer struct {
	layout   project.Layout
	objects  *object.Store
	tags     *object.Store
	gen      ctags.Generator
	workers  int
	logger   *slog.Logger
	progress progress.Reporter
	metrics  *metrics.Metrics

	symbols atomic.Int64
	files   atomic.Int64
	skipped atomic.Int64
}

// New returns an organizer for the project at layout.
func New(layout project.Layout, gen ctags.Generator, opts Options) *Organizer {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Organizer{
		layout:   layout,
		objects:  layout.Objects(),
		tags:     layout.Tags(),
		gen:      gen,
		workers:  workers,
		logger:   logging.OrDiscard(opts.Logger),
		progress: progress.OrNop(opts.Progress),
		metrics:  opts.Metrics,
	}
}

// Stats reports symbols written, tag files written and objects skipped
// because their tag file already existed.
type Stats struct {
	Symbols int64
	Files   int64
	Skipped int64
}

func (o *Organizer) Stats() Stats {
	return Stats{Symbols: o.symbols.Load(), Files: o.files.Load(), Skipped: o.skipped.Load()}
}

// Run generates a tag table for ids, appends it to the project's combined
// tag file and writes tags/<id> for every id. Objects with no known symbols
// get an empty tag file, so a later run can tell them apart from objects
// that were never organized. A generator failure leaves the combined file
// untouched. When the table ends at a malformed line no empty tag files are
// written: objects whose entries may have followed it stay pending.
func (o *Organizer) Run(ctx context.Context, ids []object.ID) error {
	if len(ids) == 0 {
		return nil
	}
	batch, err := o.generate(ctx, ids)
	if err != nil {
		return err
	}
	defer os.Remove(batch)

	if err := o.appendCombined(batch); err != nil {
		return err
	}

	f, err := os.Open(batch)
	if err != nil {
		return fmt.Errorf("organize: %w", err)
	}
	defer f.Close()
	complete, err := o.split(ctx, f)
	if err != nil {
		return err
	}
	if !complete {
		o.logger.Warn("tag table truncated; objects without a tag file stay pending",
			"pending", len(o.Pending(ids)))
		return nil
	}
	return o.markEmpty(ids)
}

// generate runs the generator into a temporary file next to the combined
// file and returns its path.
func (o *Organizer) generate(ctx context.Context, ids []object.ID) (string, error) {
	if err := os.MkdirAll(o.layout.Root, 0o755); err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}
	tmp, err := os.CreateTemp(o.layout.Root, ".ctags-*")
	if err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}
	paths := make([]string, len(ids))
	for i, id := range ids {
		paths[i] = project.ObjectRef(id)
	}

	o.logger.Info("generating tag table", "objects", len(ids))
	bw := bufio.NewWriterSize(tmp, 256*1024)
	err = o.gen.Generate(ctx, o.layout.Root, paths, bw)
	if err == nil {
		err = bw.Flush()
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("generate tag table: %w", err)
	}
	return tmp.Name(), nil
}

func (o *Organizer) appendCombined(batch string) error {
	src, err := os.Open(batch)
	if err != nil {
		return fmt.Errorf("append tag table: %w", err)
	}
	defer src.Close()
	dst, err := os.OpenFile(o.layout.CombinedTagsPath(), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("append tag table: %w", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return fmt.Errorf("append tag table: %w", err)
	}
	if err := dst.Close(); err != nil {
		return fmt.Errorf("append tag table: %w", err)
	}
	return nil
}

// SplitCombined re-splits the whole combined tag file. Only objects without
// a tag file are written.
func (o *Organizer) SplitCombined(ctx context.Context) error {
	f, err := os.Open(o.layout.CombinedTagsPath())
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("split: %w", err)
	}
	defer f.Close()
	_, err = o.split(ctx, f)
	return err
}

type group struct {
	id      object.ID
	entries []tagfile.Entry
}

// Split reads a tag table whose file names are objects/<id> and writes
// tags/<id> for each object that does not have one yet. Entries are grouped
// by consecutive file name; an object seen again later in the same stream
// is not rewritten. Unknown-type entries are dropped.
func (o *Organizer) Split(ctx context.Context, r io.Reader) error {
	_, err := o.split(ctx, r)
	return err
}

// split is Split, also reporting whether the whole table was read.
func (o *Organizer) split(ctx context.Context, r io.Reader) (bool, error) {
	p := tagfile.NewParser(r, o.layout.Root)
	defer p.Close()

	o.progress.Start("Organizing symbols", -1)
	defer o.progress.Finish()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.workers)

	seen := make(map[string]bool)
	var cur *group
	flush := func() {
		if cur == nil {
			return
		}
		grp := cur
		cur = nil
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if err := o.writeTagFile(grp); err != nil {
				return err
			}
			o.progress.Add(1)
			return nil
		})
	}

	var lastFile string
	for e, ok := p.Next(); ok; e, ok = p.Next() {
		if e.Type == tagfile.Unknown {
			continue
		}
		if e.File != lastFile {
			flush()
			lastFile = e.File
			cur = o.startGroup(e.File, seen)
		}
		if cur != nil {
			cur.entries = append(cur.entries, e)
		}
		if gctx.Err() != nil {
			break
		}
	}
	flush()

	if err := g.Wait(); err != nil {
		return false, fmt.Errorf("split tag table: %w", err)
	}
	if err := p.Err(); err != nil {
		return false, fmt.Errorf("split tag table: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	line, truncated := p.Truncated()
	if truncated {
		o.logger.Warn("malformed tag table line; ignoring the rest", "line", line)
	}
	s := o.Stats()
	o.logger.Info("organized symbols", "symbols", s.Symbols, "objects", s.Files, "skipped", s.Skipped)
	return !truncated, nil
}

// startGroup returns a new group for file, or nil when the file's entries
// are to be skipped.
func (o *Organizer) startGroup(file string, seen map[string]bool) *group {
	id := object.ID(path.Base(file))
	if err := id.Validate(); err != nil {
		o.logger.Warn("tag table names a file outside the object store", "file", file)
		return nil
	}
	if seen[file] {
		return nil
	}
	seen[file] = true
	if o.tags.Has(id) {
		o.skipped.Add(1)
		return nil
	}
	return &group{id: id}
}

func (o *Organizer) writeTagFile(grp *group) error {
	data, err := o.objects.Read(grp.id)
	if err != nil {
		return err
	}
	src := splitSource(data)

	var buf bytes.Buffer
	counts := make(map[string]int, 3)
	for _, e := range grp.entries {
		sym := tagfile.Symbol{
			Name:  e.Name,
			Type:  e.Type,
			Line:  e.Line,
			Extra: extraText(e.Type, e.Name, src, e.Line),
		}
		if err := tagfile.WriteSymbol(&buf, sym); err != nil {
			return err
		}
		counts[e.Type.String()]++
	}
	if _, err := o.tags.Write(grp.id, buf.Bytes()); err != nil {
		return err
	}
	o.symbols.Add(int64(len(grp.entries)))
	o.files.Add(1)
	o.metrics.TagFileWritten(counts)
	return nil
}

// markEmpty gives every id still lacking a tag file an empty one.
func (o *Organizer) markEmpty(ids []object.ID) error {
	for _, id := range ids {
		if o.tags.Has(id) {
			continue
		}
		if _, err := o.tags.Write(id, nil); err != nil {
			return fmt.Errorf("organize: %w", err)
		}
		o.files.Add(1)
	}
	return nil
}

// Pending returns the ids that have an object but no tag file, such as
// objects stored by an interrupted run.
func (o *Organizer) Pending(ids []object.ID) []object.ID {
	var out []object.ID
	for _, id := range ids {
		if o.objects.Has(id) && !o.tags.Has(id) {
			out = append(out, id)
		}
	}
	return out
}
