// Package tagfile decodes the tag-table format produced by ctags-compatible
// symbol generators and the per-object symbol files derived from it.
//
// A tag-table line looks like
//
//	Hello<TAB>example.c<TAB>/^int Hello() {$/;"<TAB>f
//
// where the third field is an address expression: either a literal-line
// pattern or a line number.
package tagfile

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// HeaderMarker starts pseudo-tag lines (!_TAG_FILE_FORMAT and friends).
const HeaderMarker = '!'

// Entry is one decoded tag-table line.
type Entry struct {
	Name       string
	File       string
	Expression string
	Line       int // 1-indexed; 0 when the address could not be resolved
	Type       SymbolType
	Extra      []string // metadata fields after the kind
}

// Parser yields entries from a tag-table stream. It is single-pass: to read
// the stream again, construct a new Parser.
type Parser struct {
	src     *bufio.Reader
	baseDir string
	cur     *cursor
	err     error
	done    bool
	lineNo  int
	bad     int
}

// NewParser returns a parser reading r. When baseDir is non-empty, pattern
// addresses are resolved by scanning baseDir joined with each entry's file.
func NewParser(r io.Reader, baseDir string) *Parser {
	return &Parser{
		src:     bufio.NewReaderSize(r, 64*1024),
		baseDir: baseDir,
	}
}

// Next returns the next entry. It returns false at end of input, after a
// malformed line, or after a read error (see Err).
func (p *Parser) Next() (Entry, bool) {
	if p.done {
		return Entry{}, false
	}
	for {
		line, err := p.src.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			p.stop(fmt.Errorf("tagfile read: %w", err))
			return Entry{}, false
		}
		if line == "" && err != nil {
			p.stop(nil)
			return Entry{}, false
		}
		p.lineNo++
		line = strings.TrimSuffix(strings.TrimSuffix(line, "\n"), "\r")
		if len(line) > 0 && line[0] == HeaderMarker {
			if err != nil {
				p.stop(nil)
				return Entry{}, false
			}
			continue
		}

		e, ok := p.decode(line)
		if !ok {
			p.bad = p.lineNo
			p.stop(nil)
			return Entry{}, false
		}
		if err != nil {
			// Last line without a trailing newline.
			p.done = true
		}
		return e, true
	}
}

// Err returns the read error that ended the stream, if any. Malformed
// lines end the stream without an error.
func (p *Parser) Err() error { return p.err }

// Truncated reports whether the stream ended at a malformed line, and which
// (1-indexed) line that was. Input after it was never read.
func (p *Parser) Truncated() (line int, ok bool) { return p.bad, p.bad > 0 }

// Close releases the cached source file, if any.
func (p *Parser) Close() error {
	if p.cur != nil {
		err := p.cur.close()
		p.cur = nil
		return err
	}
	return nil
}

func (p *Parser) stop(err error) {
	p.done = true
	p.err = err
	p.Close()
}

func (p *Parser) decode(line string) (Entry, bool) {
	fields := strings.SplitN(line, "\t", 3)
	if len(fields) < 3 {
		return Entry{}, false
	}
	addr, meta, ok := strings.Cut(fields[2], `;"`)
	if !ok {
		return Entry{}, false
	}

	extra := strings.Split(strings.Trim(meta, "\t"), "\t")
	e := Entry{
		Name:       fields[0],
		File:       fields[1],
		Expression: addr,
		Type:       kindType(extra[0]),
	}
	if len(extra) > 1 {
		e.Extra = extra[1:]
	}

	switch {
	case isLinePattern(addr):
		if p.baseDir != "" {
			e.Line = p.lookup(e.File, unescapePattern(addr[2:len(addr)-2]))
		}
	case isNumeric(addr):
		if n, err := strconv.Atoi(addr); err == nil {
			e.Line = n
		}
	}
	return e, true
}

func (p *Parser) lookup(file, text string) int {
	path := joinBase(p.baseDir, file)
	if p.cur == nil || p.cur.path != path {
		if p.cur != nil {
			p.cur.close()
		}
		p.cur = openCursor(path)
	}
	return p.cur.find([]byte(text))
}

func isLinePattern(addr string) bool {
	return len(addr) >= 4 && strings.HasPrefix(addr, "/^") && strings.HasSuffix(addr, "$/")
}

func isNumeric(addr string) bool {
	if addr == "" {
		return false
	}
	for i := 0; i < len(addr); i++ {
		if addr[i] < '0' || addr[i] > '9' {
			return false
		}
	}
	return true
}

// unescapePattern undoes ctags' escaping of '/' and '\' inside patterns.
func unescapePattern(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) && (s[i+1] == '/' || s[i+1] == '\\') {
			i++
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
