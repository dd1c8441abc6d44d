package pipeline

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odvcencio/sourcedigger/pkg/ctags"
	"github.com/odvcencio/sourcedigger/pkg/metrics"
	"github.com/odvcencio/sourcedigger/pkg/project"
	"github.com/odvcencio/sourcedigger/pkg/repo"
)

var (
	funcLine   = regexp.MustCompile(`^int (\w+)\(`)
	defineLine = regexp.MustCompile(`^#define (\w+)`)
)

// lineGenerator tags "int name(" as functions and "#define NAME" as defines,
// addressing them by line number.
type lineGenerator struct {
	calls [][]string
}

func (g *lineGenerator) Generate(ctx context.Context, dir string, paths []string, w io.Writer) error {
	g.calls = append(g.calls, paths)
	for _, p := range paths {
		f, err := os.Open(filepath.Join(dir, p))
		if err != nil {
			return err
		}
		sc := bufio.NewScanner(f)
		for n := 1; sc.Scan(); n++ {
			if m := funcLine.FindStringSubmatch(sc.Text()); m != nil {
				fmt.Fprintf(w, "%s\t%s\t%d;\"\tf\n", m[1], p, n)
			}
			if m := defineLine.FindStringSubmatch(sc.Text()); m != nil {
				fmt.Fprintf(w, "%s\t%s\t%d;\"\td\n", m[1], p, n)
			}
		}
		f.Close()
	}
	return nil
}

const (
	alphaC = "int alpha(void) {\n}\n"
	betaC  = "int beta(int x) {\n}\n#define LIMIT 4\n"
)

type fixture struct {
	src  *repo.Memory
	proj *project.Project
	gen  *lineGenerator
	base time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	base := time.Date(2021, 6, 1, 0, 0, 0, 0, time.UTC)
	src := repo.NewMemory()
	src.AddTag("v1.0", base, map[string]string{"a.c": alphaC, "README": "docs\n"})
	src.AddTag("v1.1", base.Add(time.Hour), map[string]string{"a.c": alphaC, "b.c": betaC})
	src.AddBrokenTag("v1.5", base.Add(90*time.Minute))
	src.AddTag("v2.0", base.Add(2*time.Hour), map[string]string{"b.c": betaC})
	src.AddTag("nightly", base.Add(3*time.Hour), map[string]string{"a.c": "int gamma(void);\n"})

	p, err := project.Create(t.TempDir(), &project.Config{
		Name: "demo",
		Index: project.IndexConfig{
			Repo:        "unused",
			TagPattern:  `^v\d+\.\d+$`,
			FilePattern: `\.[ch]$`,
		},
	})
	require.NoError(t, err)
	return &fixture{src: src, proj: p, gen: &lineGenerator{}, base: base}
}

func (f *fixture) run(t *testing.T) *Result {
	t.Helper()
	res, err := Run(context.Background(), f.proj, Options{
		Source:    f.src,
		Generator: f.gen,
		Workers:   2,
		Metrics:   metrics.New("demo"),
		Now:       func() time.Time { return f.base.Add(24 * time.Hour) },
	})
	require.NoError(t, err)
	return res
}

func (f *fixture) read(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func tagNames(tags []repo.Tag) []string {
	out := make([]string, len(tags))
	for i, tg := range tags {
		out[i] = tg.Name
	}
	return out
}

func TestRun(t *testing.T) {
	f := newFixture(t)
	res := f.run(t)

	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, []string{"v1.0", "v1.1", "v2.0"}, tagNames(res.Tags))
	assert.Equal(t, []string{"v1.5"}, tagNames(res.Skipped))
	assert.Equal(t, 2, res.Objects, "README is filtered and a.c is shared")
	assert.Equal(t, 2, res.Created)
	assert.EqualValues(t, 3, res.Symbols)
	assert.Equal(t, 3, res.Names)
	assert.EqualValues(t, 3, res.Diffs)

	assert.Equal(t, "a\talpha\tFunction\ta.c\t1\tint {name}(void)\n", f.read(t, f.proj.DiffPath("v1.0")))
	assert.Equal(t, "a\tbeta\tFunction\tb.c\t1\tint {name}(int x)\na\tLIMIT\tDefine\tb.c\t3\t\n",
		f.read(t, f.proj.DiffPath("v1.1")))
	assert.Equal(t, "r\talpha\tFunction\ta.c\t1\tint {name}(void)\n", f.read(t, f.proj.DiffPath("v2.0")))
	assert.Equal(t, "alpha\nbeta\nLIMIT\n", f.read(t, f.proj.AutocompletePath()))

	meta, err := f.proj.Meta()
	require.NoError(t, err)
	assert.Equal(t, "v1.0", meta.InitialVer)
	assert.Equal(t, "v2.0", meta.LatestVer)
	assert.Equal(t, 3, meta.Tags)
	assert.Equal(t, 2, meta.Objects)
	assert.EqualValues(t, 3, meta.Symbols)
	assert.Equal(t, res.RunID, meta.RunID)
	assert.True(t, meta.UpdatedAt.Equal(f.base.Add(24*time.Hour)))
}

func TestRunIsIncremental(t *testing.T) {
	f := newFixture(t)
	f.run(t)
	first := f.read(t, f.proj.DiffPath("v1.1"))
	require.Len(t, f.gen.calls, 1)

	again := f.run(t)
	assert.Zero(t, again.Created)
	assert.Zero(t, again.Diffs)
	assert.Len(t, f.gen.calls, 1, "nothing new to organize")
	assert.Equal(t, first, f.read(t, f.proj.DiffPath("v1.1")))

	f.src.AddTag("v2.1", f.base.Add(4*time.Hour), map[string]string{
		"b.c": betaC,
		"c.c": "int delta(char *s) {\n}\n",
	})
	next := f.run(t)
	assert.Equal(t, 1, next.Created)
	assert.EqualValues(t, 1, next.Diffs)
	require.Len(t, f.gen.calls, 2)
	assert.Len(t, f.gen.calls[1], 1)
	assert.Equal(t, "a\tdelta\tFunction\tc.c\t1\tint {name}(char *s)\n", f.read(t, f.proj.DiffPath("v2.1")))
	assert.Equal(t, "alpha\nbeta\ndelta\nLIMIT\n", f.read(t, f.proj.AutocompletePath()))

	meta, err := f.proj.Meta()
	require.NoError(t, err)
	assert.Equal(t, "v2.1", meta.LatestVer)
	assert.EqualValues(t, 4, meta.Symbols)
}

func TestRunResumesInterruptedOrganize(t *testing.T) {
	f := newFixture(t)
	f.run(t)

	ids, err := f.proj.Tags().List()
	require.NoError(t, err)
	require.NotEmpty(t, ids)
	require.NoError(t, os.Remove(f.proj.Tags().Path(ids[0])))

	res := f.run(t)
	assert.Zero(t, res.Created)
	require.Len(t, f.gen.calls, 2)
	assert.Len(t, f.gen.calls[1], 1)
	assert.True(t, f.proj.Tags().Has(ids[0]))
}

func TestRunGeneratorFailure(t *testing.T) {
	f := newFixture(t)
	gen := ctags.GeneratorFunc(func(context.Context, string, []string, io.Writer) error {
		return fmt.Errorf("no ctags here")
	})
	_, err := Run(context.Background(), f.proj, Options{Source: f.src, Generator: gen})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "organize")
	assert.NoFileExists(t, f.proj.DiffPath("v1.0"))
	assert.NoFileExists(t, f.proj.IndexPath())
}

func TestSelectTags(t *testing.T) {
	f := newFixture(t)
	tags, collided, err := SelectTags(context.Background(), f.src, f.proj.Config)
	require.NoError(t, err)
	assert.Equal(t, []string{"v1.0", "v1.1", "v1.5", "v2.0"}, tagNames(tags))
	assert.Empty(t, collided)
}

func TestRunDropsTagsSharingADiffFile(t *testing.T) {
	f := newFixture(t)
	f.proj.Config.Index.TagPattern = `^rel[/-]\d+$`
	f.src.AddTag("rel/1", f.base.Add(5*time.Hour), map[string]string{"a.c": alphaC})
	f.src.AddTag("rel-1", f.base.Add(6*time.Hour), map[string]string{"b.c": betaC})

	tags, collided, err := SelectTags(context.Background(), f.src, f.proj.Config)
	require.NoError(t, err)
	assert.Equal(t, []string{"rel/1"}, tagNames(tags))
	assert.Equal(t, []string{"rel-1"}, tagNames(collided))

	res := f.run(t)
	assert.Equal(t, []string{"rel/1"}, tagNames(res.Tags))
	assert.Equal(t, []string{"rel-1"}, tagNames(res.Collided))
	assert.EqualValues(t, 1, res.Diffs)
	assert.Equal(t, "a\talpha\tFunction\ta.c\t1\tint {name}(void)\n", f.read(t, f.proj.DiffPath("rel-1")))
}
