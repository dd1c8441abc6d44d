// Package autocomplete builds the project's symbol-name list read by the
// query-time completion service.
package autocomplete

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"runtime"
	"slices"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/odvcencio/sourcedigger/pkg/natsort"
	"github.com/odvcencio/sourcedigger/pkg/object"
	"github.com/odvcencio/sourcedigger/pkg/project"
	"github.com/odvcencio/sourcedigger/pkg/tagfile"
)

// Names collects the distinct symbol names of every tag file in the
// project, in natural order.
func Names(ctx context.Context, layout project.Layout, workers int) ([]string, error) {
	store := layout.Tags()
	ids, err := store.List()
	if err != nil {
		return nil, err
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	var (
		mu  sync.Mutex
		set = make(map[string]struct{})
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, id := range ids {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			local, err := readNames(store, id)
			if err != nil {
				return err
			}
			mu.Lock()
			for _, n := range local {
				set[n] = struct{}{}
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("autocomplete: %w", err)
	}

	names := make([]string, 0, len(set))
	for n := range set {
		names = append(names, n)
	}
	slices.SortFunc(names, func(a, b string) int {
		if c := natsort.Compare(a, b); c != 0 {
			return c
		}
		return strings.Compare(a, b)
	})
	return names, nil
}

func readNames(store *object.Store, id object.ID) ([]string, error) {
	data, err := store.Read(id)
	if err != nil {
		return nil, err
	}
	var names []string
	err = tagfile.ReadSymbols(bytes.NewReader(data), func(s tagfile.Symbol) error {
		names = append(names, s.Name)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("tag file %s: %w", id.Short(), err)
	}
	return names, nil
}

// Write emits one name per line.
func Write(w io.Writer, names []string) error {
	bw := bufio.NewWriter(w)
	for _, n := range names {
		bw.WriteString(n)
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

// Build regenerates autocomplete_db and returns the number of names in it.
// The file is replaced atomically.
func Build(ctx context.Context, layout project.Layout, workers int) (int, error) {
	names, err := Names(ctx, layout, workers)
	if err != nil {
		return 0, err
	}
	f, err := object.CreateAtomic(layout.AutocompletePath())
	if err != nil {
		return 0, fmt.Errorf("autocomplete: %w", err)
	}
	defer f.Abort()
	if err := Write(f, names); err != nil {
		return 0, fmt.Errorf("autocomplete: %w", err)
	}
	if err := f.Commit(); err != nil {
		return 0, fmt.Errorf("autocomplete: %w", err)
	}
	return len(names), nil
}
