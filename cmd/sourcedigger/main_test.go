package main

import (
	"bytes"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odvcencio/sourcedigger/pkg/project"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "sourcedigger "+version+"\n", out)
}

func TestInitAndProjects(t *testing.T) {
	db := t.TempDir()
	out, err := execute(t, "--db", db, "init", "demo",
		"--repo", t.TempDir(),
		"--tag-pattern", `^v(\d+)`,
		"--file-glob", "**.c", "--file-glob", "**.h",
		"--sort", "natural",
		"--generator", "treesitter",
		"--timeout", "5m")
	require.NoError(t, err)
	assert.Contains(t, out, "Registered demo")

	p, err := project.Open(db, "demo")
	require.NoError(t, err)
	assert.Equal(t, []string{"**.c", "**.h"}, p.Config.Index.FileGlobs)
	assert.Equal(t, "natural", p.Config.Index.Sort)
	assert.Equal(t, "treesitter", p.Config.Generator.Kind)
	assert.Equal(t, 5*time.Minute, p.Config.Generator.Timeout.Duration)
	assert.True(t, filepath.IsAbs(p.Config.Index.Repo))

	_, err = execute(t, "--db", db, "init", "demo", "--repo", t.TempDir())
	assert.ErrorIs(t, err, project.ErrExists)

	out, err = execute(t, "--db", db, "projects")
	require.NoError(t, err)
	assert.Equal(t, "demo\tnot indexed\n", out)
}

func TestInitDefaults(t *testing.T) {
	db := t.TempDir()
	_, err := execute(t, "--db", db, "init", "plain", "--repo", t.TempDir())
	require.NoError(t, err)
	p, err := project.Open(db, "plain")
	require.NoError(t, err)
	assert.Equal(t, project.DefaultGeneratorTimeout, p.Config.Generator.Timeout.Duration)
	assert.Equal(t, "ctags", p.Config.Generator.Kind)
}

func TestInitRejectsBadInput(t *testing.T) {
	db := t.TempDir()
	_, err := execute(t, "--db", db, "init", "x")
	assert.ErrorContains(t, err, "--repo")

	_, err = execute(t, "--db", db, "init", "x", "--repo", ".", "--tag-pattern", "(")
	assert.Error(t, err)

	_, err = execute(t, "--db", db, "init", "x", "--repo", ".", "--generator", "etags")
	assert.Error(t, err)
}

func TestDatabaseFromEnvironment(t *testing.T) {
	db := t.TempDir()
	t.Setenv("SOURCEDIGGER_DB", db)
	_, err := execute(t, "init", "envproj", "--repo", t.TempDir())
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(db, "envproj", project.ConfigFile))
}

func TestOpenUnknownProject(t *testing.T) {
	_, err := execute(t, "--db", t.TempDir(), "index", "ghost")
	assert.ErrorIs(t, err, project.ErrNotFound)
}

func git(t *testing.T, dir string, at time.Time, args ...string) {
	t.Helper()
	cmd := exec.Command("git", append([]string{"-C", dir}, args...)...)
	date := at.UTC().Format(time.RFC3339)
	cmd.Env = append(os.Environ(),
		"GIT_CONFIG_GLOBAL=/dev/null",
		"GIT_CONFIG_NOSYSTEM=1",
		"GIT_AUTHOR_NAME=t", "GIT_AUTHOR_EMAIL=t@example.com",
		"GIT_COMMITTER_NAME=t", "GIT_COMMITTER_EMAIL=t@example.com",
		"GIT_AUTHOR_DATE="+date, "GIT_COMMITTER_DATE="+date,
	)
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "git %v: %s", args, out)
}

func TestIndexTagsExportImport(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	src := t.TempDir()
	base := time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)
	git(t, src, base, "init", "-q")
	write := func(name, content string) {
		require.NoError(t, os.WriteFile(filepath.Join(src, name), []byte(content), 0o644))
	}
	write("main.c", "int main(void) {\n\treturn 0;\n}\n")
	write("NOTES", "not indexed\n")
	git(t, src, base, "add", "-A")
	git(t, src, base, "commit", "-q", "-m", "one")
	git(t, src, base, "tag", "v1.0")

	write("util.c", "#define LIMIT 8\nstatic int helper(int n) {\n\treturn n;\n}\n")
	git(t, src, base.Add(time.Hour), "add", "-A")
	git(t, src, base.Add(time.Hour), "commit", "-q", "-m", "two")
	git(t, src, base.Add(time.Hour), "tag", "v1.1")

	db := t.TempDir()
	_, err := execute(t, "--db", db, "init", "demo", "--repo", src,
		"--file-pattern", `\.c$`, "--generator", "treesitter")
	require.NoError(t, err)

	out, err := execute(t, "--db", db, "tags", "demo")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "v1.0\t"))
	assert.True(t, strings.HasPrefix(lines[1], "v1.1\t"))

	metricsFile := filepath.Join(t.TempDir(), "sourcedigger.prom")
	out, err = execute(t, "--db", db, "--quiet", "--workers", "2", "--metrics-file", metricsFile, "index", "demo")
	require.NoError(t, err)
	assert.Contains(t, out, "Indexed 2 tags (0 skipped)")
	assert.Contains(t, out, "objects: 2 (2 new)")

	p, err := project.Open(db, "demo")
	require.NoError(t, err)
	diff, err := os.ReadFile(p.DiffPath("v1.1"))
	require.NoError(t, err)
	assert.Equal(t,
		"a\thelper\tFunction\tutil.c\t2\tint {name}(int n)\na\tLIMIT\tDefine\tutil.c\t1\t\n",
		string(diff))
	names, err := os.ReadFile(p.AutocompletePath())
	require.NoError(t, err)
	assert.Equal(t, "helper\nLIMIT\nmain\n", string(names))

	prom, err := os.ReadFile(metricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(prom), "sourcedigger_diffs_written_total")

	out, err = execute(t, "--db", db, "projects")
	require.NoError(t, err)
	assert.Equal(t, "demo\tv1.0..v1.1\t2 tags\n", out)

	ids, err := p.Tags().List()
	require.NoError(t, err)
	require.Len(t, ids, 2)
	lost, err := p.Tags().Read(ids[0])
	require.NoError(t, err)
	require.NoError(t, os.Remove(p.Tags().Path(ids[0])))
	out, err = execute(t, "--db", db, "--quiet", "resplit", "demo")
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote 1 tag files")
	assert.Contains(t, out, "1 already present")
	restored, err := p.Tags().Read(ids[0])
	require.NoError(t, err)
	assert.Equal(t, lost, restored)

	bundlePath := filepath.Join(t.TempDir(), "demo.tar.zst")
	out, err = execute(t, "--db", db, "export", "demo", "-o", bundlePath, "--list")
	require.NoError(t, err)
	assert.Contains(t, out, "demo/diffs/v1.1")

	other := t.TempDir()
	_, err = execute(t, "--db", other, "import", bundlePath)
	require.NoError(t, err)
	imported, err := os.ReadFile(filepath.Join(other, "demo", project.DiffsDir, "v1.1"))
	require.NoError(t, err)
	assert.Equal(t, diff, imported)
}
