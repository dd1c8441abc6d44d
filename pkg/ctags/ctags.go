// Package ctags produces tag tables for batches of source files.
package ctags

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"
)

// Generator writes a tag table covering paths, which are relative to dir.
// Entries name files exactly as given in paths.
type Generator interface {
	Generate(ctx context.Context, dir string, paths []string, w io.Writer) error
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, dir string, paths []string, w io.Writer) error

func (f GeneratorFunc) Generate(ctx context.Context, dir string, paths []string, w io.Writer) error {
	return f(ctx, dir, paths, w)
}

// Kinds of generator accepted by New.
const (
	KindExec       = "ctags"
	KindTreeSitter = "treesitter"
)

// DefaultArgs is the ctags invocation: relative file names, C rules for
// every input, unsorted output on stdout, file list on stdin.
var DefaultArgs = []string{"--tag-relative=yes", "--language-force=C", "--sort=no", "-f", "-", "-L", "-"}

// Config selects and configures a generator.
type Config struct {
	Kind    string
	Command string        // ctags binary; "ctags" when empty
	Args    []string      // extra arguments placed before DefaultArgs
	Timeout time.Duration // 0 disables the deadline
}

// New builds the generator described by cfg.
func New(cfg Config) (Generator, error) {
	switch cfg.Kind {
	case "", KindExec:
		return &Exec{Command: cfg.Command, Args: cfg.Args, Timeout: cfg.Timeout}, nil
	case KindTreeSitter:
		return &TreeSitter{Timeout: cfg.Timeout}, nil
	}
	return nil, fmt.Errorf("unknown generator kind %q (want %s or %s)", cfg.Kind, KindExec, KindTreeSitter)
}

// Exec runs an external ctags binary.
type Exec struct {
	Command string
	Args    []string
	Timeout time.Duration
}

func (e *Exec) command() string {
	if e.Command == "" {
		return "ctags"
	}
	return e.Command
}

// Generate feeds paths to ctags on stdin and streams its output to w. A
// non-zero exit is an error carrying the tail of stderr.
func (e *Exec) Generate(ctx context.Context, dir string, paths []string, w io.Writer) error {
	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	args := append(append([]string(nil), e.Args...), DefaultArgs...)
	cmd := exec.CommandContext(ctx, e.command(), args...)
	cmd.Dir = dir
	cmd.Stdin = strings.NewReader(strings.Join(paths, "\n") + "\n")
	cmd.Stdout = w
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	cmd.WaitDelay = 5 * time.Second

	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("ctags: timed out after %s: %w", e.Timeout, ctx.Err())
		}
		if ctx.Err() != nil {
			return fmt.Errorf("ctags: %w", ctx.Err())
		}
		return fmt.Errorf("ctags %s: %w: %s", e.command(), err, tail(stderr.String(), 512))
	}
	return nil
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) > n {
		return "..." + s[len(s)-n:]
	}
	return s
}
