// Package bundle packs a project's query-time index files into a single
// zstd-compressed tar archive, for shipping to the hosts that serve it.
package bundle

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/odvcencio/sourcedigger/pkg/object"
	"github.com/odvcencio/sourcedigger/pkg/project"
)

// Entry describes one file in a bundle.
type Entry struct {
	Name string // slash-separated, rooted at the project name
	Size int64
}

// Summary reports what Export wrote.
type Summary struct {
	Files int
	Bytes int64
}

// files returns the bundle members of layout relative to its root, in
// archive order. Optional top-level files are included when present.
func files(layout project.Layout) ([]string, error) {
	if !object.Exists(layout.ConfigPath()) {
		return nil, fmt.Errorf("bundle %s: %w", layout.Root, project.ErrNotFound)
	}
	out := []string{project.ConfigFile}
	for _, name := range []string{project.IndexFile, project.AutocompleteFile} {
		if object.Exists(filepath.Join(layout.Root, name)) {
			out = append(out, name)
		}
	}
	for _, dir := range []string{project.TagsDir, project.DiffsDir} {
		entries, err := os.ReadDir(filepath.Join(layout.Root, dir))
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("bundle: %w", err)
		}
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
				continue
			}
			names = append(names, e.Name())
		}
		sort.Strings(names)
		for _, n := range names {
			out = append(out, dir+"/"+n)
		}
	}
	return out, nil
}

// Export writes the bundle for layout to w. Member names are prefixed with
// the project directory name.
func Export(ctx context.Context, layout project.Layout, w io.Writer) (Summary, error) {
	var sum Summary
	members, err := files(layout)
	if err != nil {
		return sum, err
	}
	enc, err := zstd.NewWriter(w)
	if err != nil {
		return sum, fmt.Errorf("bundle: %w", err)
	}
	tw := tar.NewWriter(enc)
	prefix := filepath.Base(layout.Root)

	for _, m := range members {
		if err := ctx.Err(); err != nil {
			enc.Close()
			return sum, err
		}
		n, err := addFile(tw, filepath.Join(layout.Root, filepath.FromSlash(m)), path.Join(prefix, m))
		if err != nil {
			enc.Close()
			return sum, err
		}
		sum.Files++
		sum.Bytes += n
	}
	if err := tw.Close(); err != nil {
		enc.Close()
		return sum, fmt.Errorf("bundle: %w", err)
	}
	if err := enc.Close(); err != nil {
		return sum, fmt.Errorf("bundle: %w", err)
	}
	return sum, nil
}

func addFile(tw *tar.Writer, src, name string) (int64, error) {
	f, err := os.Open(src)
	if err != nil {
		return 0, fmt.Errorf("bundle: %w", err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("bundle: %w", err)
	}
	hdr := &tar.Header{
		Name:    name,
		Mode:    0o644,
		Size:    info.Size(),
		ModTime: info.ModTime(),
		Format:  tar.FormatPAX,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return 0, fmt.Errorf("bundle %s: %w", name, err)
	}
	n, err := io.Copy(tw, f)
	if err != nil {
		return n, fmt.Errorf("bundle %s: %w", name, err)
	}
	return n, nil
}

// ExportFile writes the bundle to dest atomically.
func ExportFile(ctx context.Context, layout project.Layout, dest string) (Summary, error) {
	f, err := object.CreateAtomic(dest)
	if err != nil {
		return Summary{}, err
	}
	defer f.Abort()
	sum, err := Export(ctx, layout, f)
	if err != nil {
		return sum, err
	}
	return sum, f.Commit()
}

// List returns the members of a bundle.
func List(r io.Reader) ([]Entry, error) {
	var out []Entry
	err := walk(r, func(hdr *tar.Header, _ io.Reader) error {
		out = append(out, Entry{Name: hdr.Name, Size: hdr.Size})
		return nil
	})
	return out, err
}

// Extract unpacks a bundle under db, recreating the project directory.
// Members that would land outside db are rejected.
func Extract(r io.Reader, db string) (int, error) {
	n := 0
	err := walk(r, func(hdr *tar.Header, body io.Reader) error {
		clean := path.Clean(hdr.Name)
		if path.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, "../") {
			return fmt.Errorf("bundle member %q escapes the database", hdr.Name)
		}
		dest := filepath.Join(db, filepath.FromSlash(clean))
		f, err := object.CreateAtomic(dest)
		if err != nil {
			return err
		}
		defer f.Abort()
		if _, err := io.Copy(f, body); err != nil {
			return fmt.Errorf("extract %s: %w", hdr.Name, err)
		}
		if err := f.Commit(); err != nil {
			return err
		}
		n++
		return nil
	})
	return n, err
}

func walk(r io.Reader, fn func(*tar.Header, io.Reader) error) error {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return fmt.Errorf("bundle: %w", err)
	}
	defer dec.Close()
	tr := tar.NewReader(dec)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("bundle: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		if err := fn(hdr, tr); err != nil {
			return err
		}
	}
}
