// Package natsort orders strings case-insensitively with embedded numbers
// compared by value, so "v2.10" sorts after "v2.9".
package natsort

import (
	"strings"

	"github.com/maruel/natural"
)

// Compare returns -1, 0 or 1. Strings equal ignoring case compare equal;
// callers that need a total order break the tie themselves.
func Compare(a, b string) int {
	la, lb := strings.ToLower(a), strings.ToLower(b)
	switch {
	case la == lb:
		return 0
	case natural.Less(la, lb):
		return -1
	case natural.Less(lb, la):
		return 1
	}
	// Distinct strings the natural order considers equal, e.g. "v01"/"v1".
	return strings.Compare(la, lb)
}
