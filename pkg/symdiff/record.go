// Package symdiff replays a tag sequence over per-object tag files and
// records, for each version transition, which symbols appeared and which
// disappeared.
package symdiff

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/odvcencio/sourcedigger/pkg/natsort"
	"github.com/odvcencio/sourcedigger/pkg/tagfile"
)

// SymbolID identifies a symbol across versions.
type SymbolID struct {
	Name string
	Type tagfile.SymbolType
}

// Compare orders ids by name (case-insensitive, natural), then type, then
// exact name.
func (a SymbolID) Compare(b SymbolID) int {
	if c := natsort.Compare(a.Name, b.Name); c != 0 {
		return c
	}
	if a.Type != b.Type {
		if a.Type < b.Type {
			return -1
		}
		return 1
	}
	return strings.Compare(a.Name, b.Name)
}

// Occurrence is where one instance of a symbol was found in a version.
type Occurrence struct {
	File  string
	Line  int
	Extra string
}

// Table maps each symbol of a version to its occurrences, in load order.
type Table map[SymbolID][]Occurrence

// Add appends one occurrence of id.
func (t Table) Add(id SymbolID, occ Occurrence) {
	t[id] = append(t[id], occ)
}

// IDs returns the table's symbol ids in Compare order.
func (t Table) IDs() []SymbolID {
	ids := make([]SymbolID, 0, len(t))
	for id := range t {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].Compare(ids[j]) < 0 })
	return ids
}

// Action is the change a diff record describes.
type Action byte

const (
	Add    Action = 'a'
	Remove Action = 'r'
)

func (a Action) String() string {
	switch a {
	case Add:
		return "add"
	case Remove:
		return "remove"
	}
	return "unknown"
}

// Record is one line of a diff file:
//
//	action<TAB>name<TAB>Type<TAB>file<TAB>line<TAB>extra
type Record struct {
	Action Action
	ID     SymbolID
	Occurrence
}

// Format renders r without the trailing newline.
func (r Record) Format() string {
	return string(r.Action) + "\t" + r.ID.Name + "\t" + r.ID.Type.String() + "\t" +
		r.File + "\t" + strconv.Itoa(r.Line) + "\t" + r.Extra
}

// ParseRecord decodes one diff line.
func ParseRecord(line string) (Record, error) {
	parts := strings.SplitN(line, "\t", 6)
	if len(parts) != 6 {
		return Record{}, fmt.Errorf("parse diff record: want 6 fields, got %d in %q", len(parts), line)
	}
	if len(parts[0]) != 1 || (Action(parts[0][0]) != Add && Action(parts[0][0]) != Remove) {
		return Record{}, fmt.Errorf("parse diff record: unknown action %q", parts[0])
	}
	n, err := strconv.Atoi(parts[4])
	if err != nil {
		return Record{}, fmt.Errorf("parse diff record %q: line: %w", parts[1], err)
	}
	return Record{
		Action:     Action(parts[0][0]),
		ID:         SymbolID{Name: parts[1], Type: tagfile.ParseSymbolType(parts[2])},
		Occurrence: Occurrence{File: parts[3], Line: n, Extra: parts[5]},
	}, nil
}

// WriteRecords writes one line per record.
func WriteRecords(w io.Writer, records []Record) error {
	bw := bufio.NewWriter(w)
	for _, r := range records {
		bw.WriteString(r.Format())
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

// ReadRecords decodes a diff file.
func ReadRecords(r io.Reader) ([]Record, error) {
	var out []Record
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		if sc.Text() == "" {
			continue
		}
		rec, err := ParseRecord(sc.Text())
		if err != nil {
			return out, err
		}
		out = append(out, rec)
	}
	if err := sc.Err(); err != nil {
		return out, fmt.Errorf("read diff records: %w", err)
	}
	return out, nil
}
