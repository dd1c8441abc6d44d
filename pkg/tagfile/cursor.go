package tagfile

import (
	"bufio"
	"bytes"
	"io"
	"os"
	"path/filepath"
)

// cursor is a forward-only line reader over the source file currently being
// resolved. Generators emit a file's entries in source order, so successive
// lookups normally continue where the previous one matched and the whole
// file is read once.
type cursor struct {
	path string
	f    *os.File // nil when the file could not be opened
	r    *bufio.Reader
	line int // number of lines consumed so far
}

func openCursor(path string) *cursor {
	c := &cursor{path: path}
	f, err := os.Open(path)
	if err != nil {
		return c
	}
	c.f = f
	c.r = bufio.NewReaderSize(f, 64*1024)
	return c
}

// find returns the 1-indexed line whose bytes equal text, or 0. The search
// starts at the cursor. If it runs off the end of the file, the cursor is
// rewound once and the lines before the starting point are searched too, so
// out-of-order lookups still resolve (at the cost of a second pass).
func (c *cursor) find(text []byte) int {
	if c.f == nil {
		return 0
	}
	start := c.line
	if n := c.scan(text, -1); n > 0 {
		return n
	}
	if start == 0 || c.f == nil || !c.rewind() {
		return 0
	}
	return c.scan(text, start)
}

// scan reads forward until a matching line, EOF, or limit lines consumed
// (limit < 0 means no limit).
func (c *cursor) scan(text []byte, limit int) int {
	for limit < 0 || c.line < limit {
		raw, err := c.r.ReadBytes('\n')
		if len(raw) > 0 {
			c.line++
			raw = bytes.TrimSuffix(raw, []byte("\n"))
			if bytes.Equal(raw, text) || bytes.Equal(bytes.TrimSuffix(raw, []byte("\r")), text) {
				return c.line
			}
		}
		if err != nil {
			if err != io.EOF {
				c.close()
			}
			return 0
		}
	}
	return 0
}

func (c *cursor) rewind() bool {
	if _, err := c.f.Seek(0, io.SeekStart); err != nil {
		c.close()
		return false
	}
	c.r.Reset(c.f)
	c.line = 0
	return true
}

func (c *cursor) close() error {
	if c.f == nil {
		return nil
	}
	err := c.f.Close()
	c.f = nil
	c.r = nil
	return err
}

func joinBase(base, file string) string {
	if filepath.IsAbs(file) {
		return file
	}
	return filepath.Join(base, filepath.FromSlash(file))
}
