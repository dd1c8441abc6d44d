package tagfile

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// SymbolType classifies a tag-table entry.
type SymbolType uint8

const (
	Unknown SymbolType = iota
	Function
	Define
	Variable
)

func (t SymbolType) String() string {
	switch t {
	case Function:
		return "Function"
	case Define:
		return "Define"
	case Variable:
		return "Variable"
	}
	return "Unknown"
}

// Code returns the single-letter ctags kind for t.
func (t SymbolType) Code() string {
	switch t {
	case Function:
		return "f"
	case Define:
		return "d"
	case Variable:
		return "v"
	}
	return "?"
}

// ParseSymbolType is the inverse of String. Unrecognized names map to
// Unknown.
func ParseSymbolType(s string) SymbolType {
	switch s {
	case "Function":
		return Function
	case "Define":
		return Define
	case "Variable":
		return Variable
	}
	return Unknown
}

// kindType decodes the kind field of a tag-table line. Besides the single
// letter kinds it accepts the long names and "kind:" prefix that
// universal-ctags emits with extended fields enabled.
func kindType(kind string) SymbolType {
	kind = strings.TrimPrefix(kind, "kind:")
	switch kind {
	case "f", "function":
		return Function
	case "d", "macro", "define":
		return Define
	case "v", "variable":
		return Variable
	}
	return Unknown
}

// Symbol is one line of a per-object tag file:
//
//	name<TAB>Type<TAB>line<TAB>extra
//
// Line is 0 when the generator's address could not be resolved.
type Symbol struct {
	Name  string
	Type  SymbolType
	Line  int
	Extra string
}

// Format renders s without the trailing newline.
func (s Symbol) Format() string {
	return s.Name + "\t" + s.Type.String() + "\t" + strconv.Itoa(s.Line) + "\t" + s.Extra
}

// WriteSymbol writes s followed by a newline.
func WriteSymbol(w io.Writer, s Symbol) error {
	_, err := io.WriteString(w, s.Format()+"\n")
	return err
}

// ParseSymbol decodes one per-object tag file line. The extra column is
// optional so that files written by older indexers still load.
func ParseSymbol(line string) (Symbol, error) {
	parts := strings.SplitN(line, "\t", 4)
	if len(parts) < 3 {
		return Symbol{}, fmt.Errorf("parse symbol: want at least 3 fields, got %d in %q", len(parts), line)
	}
	n, err := strconv.Atoi(parts[2])
	if err != nil {
		return Symbol{}, fmt.Errorf("parse symbol %q: line: %w", parts[0], err)
	}
	s := Symbol{
		Name: parts[0],
		Type: ParseSymbolType(parts[1]),
		Line: n,
	}
	if len(parts) == 4 {
		s.Extra = parts[3]
	}
	return s, nil
}

// ReadSymbols decodes every line of a per-object tag file, calling fn for
// each. Blank lines are ignored; a malformed line is an error.
func ReadSymbols(r io.Reader, fn func(Symbol) error) error {
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		if len(line) > 0 {
			line = strings.TrimSuffix(line, "\n")
			if line != "" {
				sym, perr := ParseSymbol(line)
				if perr != nil {
					return perr
				}
				if ferr := fn(sym); ferr != nil {
					return ferr
				}
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read symbols: %w", err)
		}
	}
}
