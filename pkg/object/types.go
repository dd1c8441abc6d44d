package object

import (
	"errors"
	"fmt"
)

// ID is the lowercase hex content hash of a blob. For git sources it is the
// git blob id, so identical contents in any number of revisions share one ID.
type ID string

// ErrInvalidID is returned for IDs that are not lowercase hex of a known
// digest length.
var ErrInvalidID = errors.New("invalid object id")

// ErrHashMismatch is returned when content does not hash to its ID.
var ErrHashMismatch = errors.New("object content does not match id")

// Validate reports whether id is a 40 (SHA-1) or 64 (SHA-256) character
// lowercase hex string. Only validated IDs are ever turned into paths.
func (id ID) Validate() error {
	if len(id) != 40 && len(id) != 64 {
		return fmt.Errorf("%w: %q", ErrInvalidID, string(id))
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return fmt.Errorf("%w: %q", ErrInvalidID, string(id))
		}
	}
	return nil
}

// Short returns the first 12 characters of the id for log output.
func (id ID) Short() string {
	if len(id) <= 12 {
		return string(id)
	}
	return string(id[:12])
}

func (id ID) String() string { return string(id) }
