package repo

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/odvcencio/sourcedigger/pkg/object"
)

// Git reads a git repository (bare or not) through the git binary.
type Git struct {
	Dir    string
	Bin    string       // git executable; "git" when empty
	Logger *slog.Logger // nil discards
}

// OpenGit checks that dir is a git repository.
func OpenGit(ctx context.Context, dir string, logger *slog.Logger) (*Git, error) {
	g := &Git{Dir: dir, Logger: logger}
	if _, err := g.capture(ctx, "rev-parse", "--git-dir"); err != nil {
		return nil, fmt.Errorf("open git repository %s: %w", dir, err)
	}
	return g, nil
}

func (g *Git) bin() string {
	if g.Bin == "" {
		return "git"
	}
	return g.Bin
}

func (g *Git) logger() *slog.Logger {
	if g.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return g.Logger
}

func (g *Git) command(ctx context.Context, args ...string) *exec.Cmd {
	return exec.CommandContext(ctx, g.bin(), append([]string{"-C", g.Dir}, args...)...)
}

func (g *Git) capture(ctx context.Context, args ...string) ([]byte, error) {
	cmd := g.command(ctx, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return nil, fmt.Errorf("git %s: %s", strings.Join(args, " "), msg)
	}
	return stdout.Bytes(), nil
}

const tagFormat = "%(refname)%00%(objecttype)%00%(objectname)%00%(committerdate:unix)" +
	"%00%(*objecttype)%00%(*objectname)%00%(*committerdate:unix)"

// Tags lists refs/tags/*. Lightweight tags and tags annotated once are peeled
// from the for-each-ref output; anything deeper is peeled with git log. Tags
// that do not lead to a commit are logged and left out.
func (g *Git) Tags(ctx context.Context) ([]Tag, error) {
	out, err := g.capture(ctx, "for-each-ref", "--format="+tagFormat, "refs/tags")
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}

	var tags []Tag
	for _, line := range strings.Split(string(out), "\n") {
		if line == "" {
			continue
		}
		f := strings.Split(line, "\x00")
		if len(f) != 7 {
			return nil, fmt.Errorf("list tags: unexpected for-each-ref record %q", line)
		}
		name := strings.TrimPrefix(f[0], "refs/tags/")

		var tag Tag
		switch {
		case f[1] == "commit":
			tag = Tag{Name: name, Commit: f[2]}
			tag.Time, err = parseUnix(f[3])
		case f[1] == "tag" && f[4] == "commit":
			tag = Tag{Name: name, Commit: f[5]}
			tag.Time, err = parseUnix(f[6])
		case f[1] == "tag":
			tag, err = g.peel(ctx, name)
		default:
			err = fmt.Errorf("%w: tag points at a %s", ErrUnresolvable, f[1])
		}
		if err != nil {
			g.logger().Warn("skipping tag", "tag", name, "error", err)
			continue
		}
		tags = append(tags, tag)
	}
	return tags, nil
}

func (g *Git) peel(ctx context.Context, name string) (Tag, error) {
	out, err := g.capture(ctx, "log", "-1", "--format=%H%x00%ct", "refs/tags/"+name+"^{commit}", "--")
	if err != nil {
		return Tag{}, fmt.Errorf("%w: %v", ErrUnresolvable, err)
	}
	hash, ts, ok := strings.Cut(strings.TrimSpace(string(out)), "\x00")
	if !ok {
		return Tag{}, fmt.Errorf("%w: peel %s: unexpected output %q", ErrUnresolvable, name, out)
	}
	t, err := parseUnix(ts)
	if err != nil {
		return Tag{}, err
	}
	return Tag{Name: name, Commit: hash, Time: t}, nil
}

func parseUnix(s string) (time.Time, error) {
	sec, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse commit time %q: %w", s, err)
	}
	return time.Unix(sec, 0).UTC(), nil
}

// Walk streams `git ls-tree -r` for the tag's commit. Output order is git's
// tree order, which is a pre-order walk. Submodule and symlink entries are
// skipped.
func (g *Git) Walk(ctx context.Context, tag Tag, fn WalkFunc) error {
	rev := tag.Commit
	if rev == "" {
		rev = "refs/tags/" + tag.Name
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cmd := g.command(ctx, "ls-tree", "-r", "-z", "--full-tree", rev)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("walk %s: %w", tag.Name, err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("walk %s: %w", tag.Name, err)
	}

	var walkErr error
	br := bufio.NewReaderSize(stdout, 64*1024)
	for {
		rec, rerr := br.ReadString(0)
		rec = strings.TrimSuffix(rec, "\x00")
		if rec != "" {
			entry, skip, perr := parseTreeRecord(rec)
			if perr != nil {
				walkErr = fmt.Errorf("walk %s: %w", tag.Name, perr)
				break
			}
			if !skip {
				if ferr := fn(entry); ferr != nil {
					walkErr = ferr
					break
				}
			}
		}
		if rerr != nil {
			if !errors.Is(rerr, io.EOF) {
				walkErr = fmt.Errorf("walk %s: %w", tag.Name, rerr)
			}
			break
		}
	}
	if walkErr != nil {
		cancel()
		cmd.Wait()
		return walkErr
	}
	if err := cmd.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: ls-tree %s: %s", ErrUnresolvable, tag.Name, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// parseTreeRecord decodes "<mode> <type> <id>\t<path>".
func parseTreeRecord(rec string) (FileEntry, bool, error) {
	meta, path, ok := strings.Cut(rec, "\t")
	if !ok {
		return FileEntry{}, false, fmt.Errorf("malformed ls-tree record %q", rec)
	}
	fields := strings.Fields(meta)
	if len(fields) != 3 {
		return FileEntry{}, false, fmt.Errorf("malformed ls-tree record %q", rec)
	}
	if fields[1] != "blob" || fields[0] == "120000" {
		return FileEntry{}, true, nil
	}
	return FileEntry{Path: path, ID: object.ID(fields[2])}, false, nil
}

// OpenBlobs starts a `git cat-file --batch` process.
func (g *Git) OpenBlobs(ctx context.Context) (BlobReader, error) {
	ctx, cancel := context.WithCancel(ctx)
	cmd := g.command(ctx, "cat-file", "--batch")
	in, err := cmd.StdinPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("cat-file: %w", err)
	}
	out, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("cat-file: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("cat-file: %w", err)
	}
	return &catFile{cmd: cmd, in: in, out: bufio.NewReaderSize(out, 64*1024), cancel: cancel}, nil
}

type catFile struct {
	cmd    *exec.Cmd
	in     io.WriteCloser
	out    *bufio.Reader
	cancel context.CancelFunc
}

func (c *catFile) ReadBlob(id object.ID) ([]byte, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}
	if _, err := io.WriteString(c.in, string(id)+"\n"); err != nil {
		return nil, fmt.Errorf("cat-file %s: %w", id.Short(), err)
	}
	header, err := c.out.ReadString('\n')
	if err != nil {
		return nil, fmt.Errorf("cat-file %s: read header: %w", id.Short(), err)
	}
	fields := strings.Fields(header)
	if len(fields) == 2 && fields[1] == "missing" {
		return nil, fmt.Errorf("%w: %s", ErrBlobNotFound, id)
	}
	if len(fields) != 3 {
		return nil, fmt.Errorf("cat-file %s: malformed header %q", id.Short(), header)
	}
	size, err := strconv.Atoi(fields[2])
	if err != nil {
		return nil, fmt.Errorf("cat-file %s: size: %w", id.Short(), err)
	}
	buf := make([]byte, size+1)
	if _, err := io.ReadFull(c.out, buf); err != nil {
		return nil, fmt.Errorf("cat-file %s: read body: %w", id.Short(), err)
	}
	if fields[1] != "blob" {
		return nil, fmt.Errorf("cat-file %s: object is a %s, not a blob", id.Short(), fields[1])
	}
	return buf[:size], nil
}

func (c *catFile) Close() error {
	c.in.Close()
	err := c.cmd.Wait()
	c.cancel()
	if err != nil {
		return fmt.Errorf("cat-file: %w", err)
	}
	return nil
}
