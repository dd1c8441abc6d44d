package bundle

import (
	"archive/tar"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odvcencio/sourcedigger/pkg/object"
	"github.com/odvcencio/sourcedigger/pkg/project"
)

func sampleProject(t *testing.T) project.Layout {
	t.Helper()
	l := project.Layout{Root: filepath.Join(t.TempDir(), "demo")}
	id := object.HashBlob([]byte("int main;\n"), false)
	write := func(p, content string) {
		require.NoError(t, object.WriteFileAtomic(p, []byte(content)))
	}
	write(l.ConfigPath(), "name = \"demo\"\n")
	write(l.AutocompletePath(), "main\n")
	write(l.Objects().Path(id), "int main;\n")
	write(l.Tags().Path(id), "main\tVariable\t1\t \n")
	write(l.DiffPath("v1.0"), "a\tmain\tVariable\tmain.c\t1\t \n")
	write(filepath.Join(l.TagsPath(), ".tmp-123"), "partial")
	return l
}

func TestExportListExtract(t *testing.T) {
	l := sampleProject(t)
	var buf bytes.Buffer
	sum, err := Export(context.Background(), l, &buf)
	require.NoError(t, err)
	assert.Equal(t, 4, sum.Files)

	entries, err := List(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	id := object.HashBlob([]byte("int main;\n"), false)
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name
	}
	assert.Equal(t, []string{
		"demo/config.toml",
		"demo/autocomplete_db",
		"demo/tags/" + string(id),
		"demo/diffs/v1.0",
	}, names, "objects and temp files are not shipped")

	db := t.TempDir()
	n, err := Extract(bytes.NewReader(buf.Bytes()), db)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	got, err := os.ReadFile(filepath.Join(db, "demo", "diffs", "v1.0"))
	require.NoError(t, err)
	assert.Equal(t, "a\tmain\tVariable\tmain.c\t1\t \n", string(got))

	p, err := project.List(db)
	require.NoError(t, err)
	assert.Equal(t, []string{"demo"}, p)
}

func TestExportFile(t *testing.T) {
	l := sampleProject(t)
	dest := filepath.Join(t.TempDir(), "out", "demo.tar.zst")
	sum, err := ExportFile(context.Background(), l, dest)
	require.NoError(t, err)
	assert.Positive(t, sum.Bytes)

	f, err := os.Open(dest)
	require.NoError(t, err)
	defer f.Close()
	entries, err := List(f)
	require.NoError(t, err)
	assert.Len(t, entries, sum.Files)
}

func TestExportRequiresConfig(t *testing.T) {
	_, err := Export(context.Background(), project.Layout{Root: t.TempDir()}, &bytes.Buffer{})
	assert.ErrorIs(t, err, project.ErrNotFound)
}

func TestExtractRejectsEscapes(t *testing.T) {
	var buf bytes.Buffer
	enc, err := zstd.NewWriter(&buf)
	require.NoError(t, err)
	tw := tar.NewWriter(enc)
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "../evil", Mode: 0o644, Size: 1, Typeflag: tar.TypeReg}))
	_, err = tw.Write([]byte("x"))
	require.NoError(t, err)
	require.NoError(t, tw.Close())
	require.NoError(t, enc.Close())

	db := t.TempDir()
	_, err = Extract(&buf, filepath.Join(db, "inner"))
	assert.Error(t, err)
	assert.NoFileExists(t, filepath.Join(db, "evil"))
}
