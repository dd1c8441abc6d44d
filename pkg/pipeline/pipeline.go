// Package pipeline runs a full indexing pass over one project: tag
// selection, object extraction, symbol organization, the autocomplete list
// and the version diffs.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/odvcencio/sourcedigger/pkg/autocomplete"
	"github.com/odvcencio/sourcedigger/pkg/ctags"
	"github.com/odvcencio/sourcedigger/pkg/extract"
	"github.com/odvcencio/sourcedigger/pkg/logging"
	"github.com/odvcencio/sourcedigger/pkg/metrics"
	"github.com/odvcencio/sourcedigger/pkg/object"
	"github.com/odvcencio/sourcedigger/pkg/organize"
	"github.com/odvcencio/sourcedigger/pkg/progress"
	"github.com/odvcencio/sourcedigger/pkg/project"
	"github.com/odvcencio/sourcedigger/pkg/repo"
	"github.com/odvcencio/sourcedigger/pkg/symdiff"
)

// Options overrides the collaborators Run would otherwise build from the
// project config. Zero values are usable.
type Options struct {
	Source    repo.Source     // defaults to the git repository in index.repo
	Generator ctags.Generator // defaults to the configured generator
	Workers   int             // overrides index.workers when positive
	Logger    *slog.Logger
	Progress  progress.Reporter
	Metrics   *metrics.Metrics
	Now       func() time.Time
}

// Result summarizes a run.
type Result struct {
	RunID    string
	Tags     []repo.Tag // indexed tags, in processing order
	Skipped  []repo.Tag // selected but unresolvable
	Collided []repo.Tag // dropped: diff file name taken by an earlier tag
	Objects  int        // distinct objects referenced by Tags
	Created  int        // objects stored by this run
	Symbols  int64      // symbols written to new tag files
	Names    int        // entries in autocomplete_db
	Diffs    int64      // diff files written
	Existing int64      // diff files already present
}

// SelectTags lists src's tags and applies the project's pattern and order.
// A tag whose diff file name is taken by an earlier selected tag is returned
// in collided instead.
func SelectTags(ctx context.Context, src repo.Source, cfg *project.Config) (tags, collided []repo.Tag, err error) {
	pattern, err := cfg.TagRegexp()
	if err != nil {
		return nil, nil, err
	}
	all, err := src.Tags(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("list tags: %w", err)
	}
	tags, collided = symdiff.DropCollisions(extract.SelectTags(all, pattern, cfg.Order()))
	return tags, collided, nil
}

// OpenSource opens the repository named by the project config.
func OpenSource(ctx context.Context, cfg *project.Config, logger *slog.Logger) (repo.Source, error) {
	g, err := repo.OpenGit(ctx, cfg.Index.Repo, logger)
	if err != nil {
		return nil, err
	}
	return g, nil
}

// Run indexes p. Every stage skips work whose output already exists, so an
// interrupted run is resumed by running again.
func Run(ctx context.Context, p *project.Project, opts Options) (*Result, error) {
	res := &Result{RunID: uuid.NewString()}
	cfg := p.Config
	logger := logging.OrDiscard(opts.Logger).With("run", res.RunID, "project", cfg.Name)
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	workers := cfg.Workers()
	if opts.Workers > 0 {
		workers = opts.Workers
	}

	src := opts.Source
	if src == nil {
		var err error
		if src, err = OpenSource(ctx, cfg, logger); err != nil {
			return nil, err
		}
	}
	gen := opts.Generator
	if gen == nil {
		var err error
		if gen, err = ctags.New(cfg.GeneratorConfig()); err != nil {
			return nil, err
		}
	}
	filter, err := cfg.Filter()
	if err != nil {
		return nil, err
	}

	st := stages{logger: logger, metrics: opts.Metrics}
	logger.Info("indexing started", "workers", workers)

	var selected []repo.Tag
	err = st.run("select", func() error {
		var err error
		selected, res.Collided, err = SelectTags(ctx, src, cfg)
		return err
	})
	if err != nil {
		return nil, err
	}
	for _, tag := range res.Collided {
		logger.Warn("tag skipped: diff file name already taken", "tag", tag.Name, "file", project.SanitizeTag(tag.Name))
	}
	logger.Info("selected tags", "count", len(selected))

	ex := extract.New(src, p.Objects(), extract.Options{
		Filter:   filter,
		Workers:  workers,
		Logger:   logger,
		Progress: opts.Progress,
		Metrics:  opts.Metrics,
	})
	var coll *extract.Collection
	err = st.run("collect", func() error {
		var err error
		coll, err = ex.Collect(ctx, selected)
		return err
	})
	if err != nil {
		return nil, err
	}
	res.Tags, res.Skipped, res.Objects = coll.Tags, coll.Skipped, len(coll.IDs)

	err = st.run("extract", func() error {
		created, err := ex.WriteObjects(ctx, coll.IDs)
		res.Created = len(created)
		return err
	})
	if err != nil {
		return nil, err
	}

	org := organize.New(p.Layout, gen, organize.Options{
		Workers:  workers,
		Logger:   logger,
		Progress: opts.Progress,
		Metrics:  opts.Metrics,
	})
	var pending []object.ID
	err = st.run("organize", func() error {
		pending = org.Pending(coll.IDs)
		if len(pending) > res.Created {
			logger.Info("organizing objects left by an earlier run", "count", len(pending)-res.Created)
		}
		return org.Run(ctx, pending)
	})
	if err != nil {
		return nil, err
	}
	res.Symbols = org.Stats().Symbols

	err = st.run("autocomplete", func() error {
		if len(pending) == 0 && object.Exists(p.AutocompletePath()) {
			logger.Debug("autocomplete list up to date")
			return nil
		}
		n, err := autocomplete.Build(ctx, p.Layout, workers)
		res.Names = n
		if err == nil {
			logger.Info("wrote autocomplete list", "names", n)
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	engine, err := symdiff.New(p.Layout, ex, symdiff.Options{
		CacheSize: cfg.Index.CacheSize,
		Logger:    logger,
		Progress:  opts.Progress,
		Metrics:   opts.Metrics,
	})
	if err != nil {
		return nil, err
	}
	err = st.run("diff", func() error {
		return engine.Run(ctx, coll.Tags)
	})
	if err != nil {
		return nil, err
	}
	ds := engine.Stats()
	res.Diffs, res.Existing = ds.Diffs, ds.Skipped

	if err := writeMeta(p, res, now()); err != nil {
		return nil, err
	}
	logger.Info("indexing finished",
		"tags", len(res.Tags), "objects", res.Objects, "created", res.Created,
		"symbols", res.Symbols, "diffs", res.Diffs)
	return res, nil
}

func writeMeta(p *project.Project, res *Result, at time.Time) error {
	meta, err := p.Meta()
	if err != nil {
		return err
	}
	meta.Symbols += res.Symbols
	meta.Tags = len(res.Tags)
	meta.Objects = res.Objects
	meta.Diffs = len(res.Tags)
	meta.RunID = res.RunID
	meta.UpdatedAt = at.UTC()
	meta.InitialVer, meta.LatestVer = "", ""
	if n := len(res.Tags); n > 0 {
		meta.InitialVer = res.Tags[0].Name
		meta.LatestVer = res.Tags[n-1].Name
	}
	return project.SaveIndexMeta(p.IndexPath(), meta)
}

// stages times each pipeline stage.
type stages struct {
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func (s stages) run(name string, fn func() error) error {
	start := time.Now()
	err := fn()
	elapsed := time.Since(start)
	s.metrics.ObserveStage(name, elapsed.Seconds())
	if err != nil {
		s.logger.Error("stage failed", "stage", name, "elapsed", elapsed, "error", err)
		return fmt.Errorf("%s: %w", name, err)
	}
	s.logger.Debug("stage done", "stage", name, "elapsed", elapsed)
	return nil
}
