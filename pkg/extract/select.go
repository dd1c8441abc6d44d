// Package extract discovers the tagged revisions of a repository and copies
// the file contents they reference into the object store, once per distinct
// content.
package extract

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/odvcencio/sourcedigger/pkg/natsort"
	"github.com/odvcencio/sourcedigger/pkg/repo"
)

// Order is how selected tags are sequenced.
type Order string

const (
	// OrderTime sorts by peeled commit time, ties by natural name order.
	OrderTime Order = "time"
	// OrderNatural sorts names case-insensitively with numbers by value.
	OrderNatural Order = "natural"
)

// ParseOrder accepts "time" and "natural". The empty string is time.
func ParseOrder(s string) (Order, error) {
	switch Order(strings.ToLower(s)) {
	case "", OrderTime:
		return OrderTime, nil
	case OrderNatural:
		return OrderNatural, nil
	}
	return "", fmt.Errorf("unknown tag order %q (want time or natural)", s)
}

// SelectTags orders tags and, when pattern is non-nil, keeps only the first
// tag per distinct value of pattern's first capture group (or of the whole
// match if the pattern has no groups). Tags that do not match, or whose
// first group does not participate in the match, are dropped. The input is
// not modified.
func SelectTags(tags []repo.Tag, pattern *regexp.Regexp, order Order) []repo.Tag {
	sorted := append([]repo.Tag(nil), tags...)
	sortTags(sorted, order)
	if pattern == nil {
		return sorted
	}

	seen := make(map[string]struct{})
	out := sorted[:0]
	for _, tag := range sorted {
		key, ok := dedupKey(pattern, tag.Name)
		if !ok {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, tag)
	}
	return out
}

func dedupKey(pattern *regexp.Regexp, name string) (string, bool) {
	loc := pattern.FindStringSubmatchIndex(name)
	if loc == nil {
		return "", false
	}
	if pattern.NumSubexp() == 0 {
		return name[loc[0]:loc[1]], true
	}
	if loc[2] < 0 {
		return "", false
	}
	return name[loc[2]:loc[3]], true
}

func sortTags(tags []repo.Tag, order Order) {
	byName := func(a, b repo.Tag) int {
		if c := natsort.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return strings.Compare(a.Name, b.Name)
	}
	if order == OrderNatural {
		sort.SliceStable(tags, func(i, j int) bool { return byName(tags[i], tags[j]) < 0 })
		return
	}
	sort.SliceStable(tags, func(i, j int) bool {
		if !tags[i].Time.Equal(tags[j].Time) {
			return tags[i].Time.Before(tags[j].Time)
		}
		return byName(tags[i], tags[j]) < 0
	})
}
