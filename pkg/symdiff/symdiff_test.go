package symdiff

import (
	"context"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odvcencio/sourcedigger/pkg/object"
	"github.com/odvcencio/sourcedigger/pkg/project"
	"github.com/odvcencio/sourcedigger/pkg/repo"
	"github.com/odvcencio/sourcedigger/pkg/tagfile"
)

func fn(name string) SymbolID { return SymbolID{Name: name, Type: tagfile.Function} }

func TestSymbolIDCompare(t *testing.T) {
	ids := []SymbolID{
		fn("foo10"), fn("Foo2"), {Name: "foo2", Type: tagfile.Define}, fn("bar"), fn("foo2"),
	}
	table := Table{}
	for _, id := range ids {
		table.Add(id, Occurrence{})
	}
	assert.Equal(t, []SymbolID{
		fn("bar"), fn("Foo2"), fn("foo2"), {Name: "foo2", Type: tagfile.Define}, fn("foo10"),
	}, table.IDs())
}

func TestRecordFormat(t *testing.T) {
	r := Record{
		Action:     Add,
		ID:         fn("Hello"),
		Occurrence: Occurrence{File: "src/hello.c", Line: 12, Extra: "int {name}(void)"},
	}
	line := r.Format()
	assert.Equal(t, "a\tHello\tFunction\tsrc/hello.c\t12\tint {name}(void)", line)

	back, err := ParseRecord(line)
	require.NoError(t, err)
	assert.Equal(t, r, back)

	for _, bad := range []string{"a\tHello", "x\tHello\tFunction\tf\t1\t", "r\tHello\tFunction\tf\tone\t"} {
		_, err := ParseRecord(bad)
		assert.Error(t, err, bad)
	}
}

func TestDiff(t *testing.T) {
	prev := Table{}
	prev.Add(fn("kept"), Occurrence{File: "a.c", Line: 1})
	prev.Add(fn("gone"), Occurrence{File: "a.c", Line: 5})
	prev.Add(fn("gone"), Occurrence{File: "b.c", Line: 9})
	prev.Add(SymbolID{Name: "MAX", Type: tagfile.Define}, Occurrence{File: "a.h", Line: 2})

	next := Table{}
	next.Add(fn("kept"), Occurrence{File: "a.c", Line: 40, Extra: "changed"})
	next.Add(fn("new"), Occurrence{File: "c.c", Line: 3})
	next.Add(SymbolID{Name: "MAX", Type: tagfile.Variable}, Occurrence{File: "a.h", Line: 2})

	records, common := Diff(prev, next)
	assert.Equal(t, 1, common)
	assert.Equal(t, []Record{
		{Action: Remove, ID: fn("gone"), Occurrence: Occurrence{File: "a.c", Line: 5}},
		{Action: Remove, ID: fn("gone"), Occurrence: Occurrence{File: "b.c", Line: 9}},
		{Action: Remove, ID: SymbolID{Name: "MAX", Type: tagfile.Define}, Occurrence: Occurrence{File: "a.h", Line: 2}},
		{Action: Add, ID: SymbolID{Name: "MAX", Type: tagfile.Variable}, Occurrence: Occurrence{File: "a.h", Line: 2}},
		{Action: Add, ID: fn("new"), Occurrence: Occurrence{File: "c.c", Line: 3}},
	}, records)
}

func TestDiffIsSymmetricDifference(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	randomTable := func() Table {
		tbl := Table{}
		for i := 0; i < 200; i++ {
			id := SymbolID{Name: "s" + strconv.Itoa(rng.Intn(150)), Type: tagfile.SymbolType(1 + rng.Intn(3))}
			tbl.Add(id, Occurrence{File: "f.c", Line: i})
		}
		return tbl
	}
	for round := 0; round < 20; round++ {
		a, b := randomTable(), randomTable()
		records, common := Diff(a, b)

		want := map[SymbolID]Action{}
		shared := 0
		for id := range a {
			if _, ok := b[id]; ok {
				shared++
			} else {
				want[id] = Remove
			}
		}
		for id := range b {
			if _, ok := a[id]; !ok {
				want[id] = Add
			}
		}
		assert.Equal(t, shared, common)

		got := map[SymbolID]Action{}
		perID := map[SymbolID]int{}
		for _, r := range records {
			got[r.ID] = r.Action
			perID[r.ID]++
		}
		assert.Equal(t, want, got)
		for id, n := range perID {
			if want[id] == Add {
				assert.Len(t, b[id], n)
			} else {
				assert.Len(t, a[id], n)
			}
		}
	}
}

func TestWindowSlide(t *testing.T) {
	w := NewWindow()
	w.Load(fn("a"), Occurrence{File: "x.c", Line: 1})
	recs, _ := w.Diff()
	assert.Len(t, recs, 1)
	w.Slide()
	prev, next := w.Sizes()
	assert.Equal(t, 1, prev)
	assert.Equal(t, 0, next)

	recs, _ = w.Diff()
	require.Len(t, recs, 1)
	assert.Equal(t, Remove, recs[0].Action)
}

// history builds three versions:
//
//	v1: a.c {Hello, FOO}
//	v2: a.c unchanged, b.c {World}
//	v3: a.c {Hello}, b.c unchanged
type history struct {
	src    *repo.Memory
	tags   []repo.Tag
	layout project.Layout
}

func newHistory(t *testing.T) *history {
	t.Helper()
	h := &history{src: repo.NewMemory(), layout: project.Layout{Root: t.TempDir()}}
	base := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	a1 := "int Hello() {}\n#define FOO 1\n"
	a2 := "int Hello() {}\n"
	b1 := "int World() {}\n"
	h.tags = []repo.Tag{
		h.src.AddTag("v1", base, map[string]string{"a.c": a1}),
		h.src.AddTag("v2", base.Add(time.Hour), map[string]string{"a.c": a1, "b.c": b1}),
		h.src.AddTag("v3", base.Add(2*time.Hour), map[string]string{"a.c": a2, "b.c": b1}),
	}
	h.writeTags(t, a1, "Hello\tFunction\t1\tint {name}()\nFOO\tDefine\t2\t\n")
	h.writeTags(t, a2, "Hello\tFunction\t1\tint {name}()\n")
	h.writeTags(t, b1, "World\tFunction\t1\tint {name}()\n")
	return h
}

func (h *history) writeTags(t *testing.T, content, table string) {
	t.Helper()
	_, err := h.layout.Tags().Write(object.HashBlob([]byte(content), false), []byte(table))
	require.NoError(t, err)
}

func (h *history) diff(t *testing.T, tag string) string {
	t.Helper()
	data, err := os.ReadFile(h.layout.DiffPath(tag))
	require.NoError(t, err)
	return string(data)
}

func (h *history) engine(t *testing.T) *Engine {
	t.Helper()
	e, err := New(h.layout, h.src, Options{CacheSize: 2})
	require.NoError(t, err)
	return e
}

var wantDiffs = map[string]string{
	"v1": "a\tFOO\tDefine\ta.c\t2\t\na\tHello\tFunction\ta.c\t1\tint {name}()\n",
	"v2": "a\tWorld\tFunction\tb.c\t1\tint {name}()\n",
	"v3": "r\tFOO\tDefine\ta.c\t2\t\n",
}

func TestEngineRun(t *testing.T) {
	h := newHistory(t)
	e := h.engine(t)
	require.NoError(t, e.Run(context.Background(), h.tags))

	for tag, want := range wantDiffs {
		assert.Equal(t, want, h.diff(t, tag), tag)
	}
	s := e.Stats()
	assert.EqualValues(t, 3, s.Diffs)
	assert.EqualValues(t, 4, s.Records)
	assert.EqualValues(t, 5, s.Files)
	assert.Zero(t, s.Skipped)
}

func TestEngineResumes(t *testing.T) {
	h := newHistory(t)
	require.NoError(t, h.engine(t).Run(context.Background(), h.tags))

	// A stale v2 diff must survive untouched while v3 is recomputed against
	// the real v2 contents.
	stale := "a\tStale\tFunction\tz.c\t1\t\n"
	require.NoError(t, os.WriteFile(h.layout.DiffPath("v2"), []byte(stale), 0o644))
	old := time.Now().Add(-time.Hour).Truncate(time.Second)
	require.NoError(t, os.Chtimes(h.layout.DiffPath("v2"), old, old))
	require.NoError(t, os.Remove(h.layout.DiffPath("v3")))

	e := h.engine(t)
	assert.Equal(t, []repo.Tag{h.tags[1], h.tags[2]}, e.ToCompute(h.tags))
	require.NoError(t, e.Run(context.Background(), h.tags))

	assert.Equal(t, stale, h.diff(t, "v2"))
	info, err := os.Stat(h.layout.DiffPath("v2"))
	require.NoError(t, err)
	assert.True(t, info.ModTime().Equal(old))
	assert.Equal(t, wantDiffs["v3"], h.diff(t, "v3"))
	assert.EqualValues(t, 1, e.Stats().Skipped)
	assert.EqualValues(t, 1, e.Stats().Diffs)
}

func TestEngineNothingToCompute(t *testing.T) {
	h := newHistory(t)
	require.NoError(t, h.engine(t).Run(context.Background(), h.tags))

	e := h.engine(t)
	assert.Empty(t, e.ToCompute(h.tags))
	require.NoError(t, e.Run(context.Background(), h.tags))
	assert.Zero(t, e.Stats().Files)
}

func TestEngineByteIdenticalReruns(t *testing.T) {
	first := newHistory(t)
	require.NoError(t, first.engine(t).Run(context.Background(), first.tags))
	second := newHistory(t)
	require.NoError(t, second.engine(t).Run(context.Background(), second.tags))

	for _, tag := range []string{"v1", "v2", "v3"} {
		assert.Equal(t, first.diff(t, tag), second.diff(t, tag))
	}
}

func TestEngineMissingTagFile(t *testing.T) {
	h := newHistory(t)
	tag := h.src.AddTag("v4", time.Now(), map[string]string{"c.c": "never organized\n"})
	require.NoError(t, h.engine(t).Run(context.Background(), append(h.tags, tag)))
	assert.Equal(t, strings.Join([]string{
		"r\tHello\tFunction\ta.c\t1\tint {name}()",
		"r\tWorld\tFunction\tb.c\t1\tint {name}()",
	}, "\n")+"\n", h.diff(t, "v4"))
}

func TestEngineSlashedTagName(t *testing.T) {
	h := newHistory(t)
	tag := h.src.AddTag("release/1.0", time.Now(), nil)
	require.NoError(t, h.engine(t).Run(context.Background(), []repo.Tag{tag}))
	assert.FileExists(t, h.layout.DiffPath("release/1.0"))
	assert.Equal(t, "", h.diff(t, "release/1.0"))
}

func TestDropCollisions(t *testing.T) {
	tags := []repo.Tag{{Name: "rel/1"}, {Name: "rel-2"}, {Name: "rel-1"}, {Name: `rel\2`}, {Name: "rel-3"}}
	kept, dropped := DropCollisions(tags)
	assert.Equal(t, []repo.Tag{{Name: "rel/1"}, {Name: "rel-2"}, {Name: "rel-3"}}, kept)
	assert.Equal(t, []repo.Tag{{Name: "rel-1"}, {Name: `rel\2`}}, dropped)

	kept, dropped = DropCollisions(nil)
	assert.Empty(t, kept)
	assert.Empty(t, dropped)
}

func TestEngineRejectsNameCollision(t *testing.T) {
	h := newHistory(t)
	base := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	tags := []repo.Tag{
		h.src.AddTag("rel/1", base, map[string]string{"b.c": "int World() {}\n"}),
		h.src.AddTag("rel-1", base.Add(time.Hour), nil),
	}
	e := h.engine(t)
	err := e.Run(context.Background(), tags)
	require.ErrorIs(t, err, ErrNameCollision)
	assert.ErrorContains(t, err, "rel-1")
	assert.NoFileExists(t, h.layout.DiffPath("rel-1"))
	assert.Zero(t, e.Stats().Diffs)
}

func TestEngineWalkError(t *testing.T) {
	h := newHistory(t)
	broken := h.src.AddBrokenTag("v9", time.Now())
	err := h.engine(t).Run(context.Background(), append(h.tags, broken))
	assert.ErrorIs(t, err, repo.ErrUnresolvable)
	assert.FileExists(t, h.layout.DiffPath("v3"))
	assert.NoFileExists(t, h.layout.DiffPath("v9"))
}

func TestReadRecords(t *testing.T) {
	recs, err := ReadRecords(strings.NewReader(wantDiffs["v1"] + "\n"))
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "FOO", recs[0].ID.Name)
	assert.Equal(t, tagfile.Define, recs[0].ID.Type)
	assert.Equal(t, "int {name}()", recs[1].Extra)

	_, err = ReadRecords(strings.NewReader("garbage\n"))
	assert.Error(t, err)
}
