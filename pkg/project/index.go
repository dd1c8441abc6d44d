package project

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/odvcencio/sourcedigger/pkg/object"
)

// IndexMeta is the summary written to index.toml after each run.
type IndexMeta struct {
	InitialVer string    `toml:"initial_ver"`
	LatestVer  string    `toml:"latest_ver"`
	Tags       int       `toml:"tags"`
	Objects    int       `toml:"objects"`
	Symbols    int64     `toml:"symbols"`
	Diffs      int       `toml:"diffs"`
	RunID      string    `toml:"run_id,omitempty"`
	UpdatedAt  time.Time `toml:"updated_at"`
}

// LoadIndexMeta reads index.toml. A project that was never indexed has no
// file; that returns a zero IndexMeta and no error.
func LoadIndexMeta(path string) (*IndexMeta, error) {
	var meta IndexMeta
	if _, err := toml.DecodeFile(path, &meta); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &IndexMeta{}, nil
		}
		return nil, fmt.Errorf("load index metadata %s: %w", path, err)
	}
	return &meta, nil
}

// SaveIndexMeta writes meta atomically.
func SaveIndexMeta(path string, meta *IndexMeta) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(meta); err != nil {
		return fmt.Errorf("encode index metadata: %w", err)
	}
	if err := object.WriteFileAtomic(path, buf.Bytes()); err != nil {
		return fmt.Errorf("save index metadata: %w", err)
	}
	return nil
}
