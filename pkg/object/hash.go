package object

import (
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
)

// HashBlob computes the git blob id of data: the digest of the envelope
// "blob <len>\0<content>". SHA-1 ids are 40 hex characters, SHA-256 ids
// (git's sha256 object format) are 64.
func HashBlob(data []byte, sha256Format bool) ID {
	var h hash.Hash
	if sha256Format {
		h = sha256.New()
	} else {
		h = sha1.New()
	}
	fmt.Fprintf(h, "blob %d\x00", len(data))
	h.Write(data)
	return ID(hex.EncodeToString(h.Sum(nil)))
}

// Verify checks that data hashes to id, choosing the digest by id length.
func Verify(id ID, data []byte) error {
	if err := id.Validate(); err != nil {
		return err
	}
	got := HashBlob(data, len(id) == 64)
	if got != id {
		return fmt.Errorf("%w: want %s, got %s", ErrHashMismatch, id, got)
	}
	return nil
}
