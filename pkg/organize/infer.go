package organize

import (
	"regexp"
	"strings"

	"github.com/odvcencio/sourcedigger/pkg/tagfile"
)

// Scan limits for the enrichment heuristics.
const (
	returnTypeLines = 10
	bodyLines       = 20
)

// Sentinels for text the heuristics could not recover.
const (
	unknownReturn    = "unknown_t"
	defaultReturn    = "int"
	unresolvedArgs   = "(???)"
	truncatedArgs    = ", ???)"
	truncatedValue   = " ???"
	unresolvedValue  = "= ???"
	functionTemplate = " {name}"
)

var (
	runsOfBlanks   = regexp.MustCompile(`[ \t]+`)
	blankAfterOpen = regexp.MustCompile(`\([ \t]`)
	blankBeforeEnd = regexp.MustCompile(`[ \t]\)`)

	aggregateType = regexp.MustCompile(`\b(const )?(struct|enum|union) ([a-zA-Z$_][a-zA-Z0-9$_]*)\b[ \t]*(\**)`)
	signedType    = regexp.MustCompile(`\b(const )?(signed|unsigned) ([a-zA-Z$_][a-zA-Z0-9$_]*)\b[ \t]*(\**)`)
	plainType     = regexp.MustCompile(`\b(const )?()([a-zA-Z$_][a-zA-Z0-9$_]*)\b[ \t]*(\**)`)
)

// source is an object's text split into lines.
type source []string

func splitSource(data []byte) source {
	text := strings.ToValidUTF8(string(data), "\uFFFD")
	text = strings.TrimSuffix(text, "\n")
	if text == "" {
		return nil
	}
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}

// window returns up to n lines starting at 1-indexed line.
func (s source) window(line, n int) []string {
	start := line - 1
	if start < 0 || start >= len(s) {
		return nil
	}
	return s[start:min(start+n, len(s))]
}

// extraText returns the fourth column of a per-object tag file line.
func extraText(typ tagfile.SymbolType, name string, src source, line int) string {
	switch typ {
	case tagfile.Function:
		return returnType(name, src, line) + functionTemplate + arguments(src, line)
	case tagfile.Variable:
		return initializer(src, line)
	}
	return ""
}

func fixWhitespace(s string) string {
	s = runsOfBlanks.ReplaceAllString(s, " ")
	s = blankAfterOpen.ReplaceAllString(s, "(")
	return blankBeforeEnd.ReplaceAllString(s, ")")
}

// arguments collects the parenthesized parameter list starting on line,
// following it across at most bodyLines lines. Line breaks are dropped.
func arguments(src source, line int) string {
	if line <= 0 {
		return unresolvedArgs
	}
	var b strings.Builder
	depth := 0
	done := false
	for _, l := range src.window(line, bodyLines) {
		for i := 0; i < len(l); i++ {
			c := l[i]
			if c == '(' {
				depth++
			} else if c == ')' {
				depth--
				if depth == 0 {
					b.WriteByte(c)
					done = true
					break
				}
			}
			if depth != 0 {
				b.WriteByte(c)
			}
		}
		if done {
			break
		}
	}
	if !done {
		b.WriteString(truncatedArgs)
	}
	return fixWhitespace(b.String())
}

// initializer collects the text from '=' to the terminating ';', within
// bodyLines lines. A declaration without an initializer yields " ".
func initializer(src source, line int) string {
	if line <= 0 {
		return unresolvedValue
	}
	var b strings.Builder
	depth := 0
	done := false
	for _, l := range src.window(line, bodyLines) {
		for i := 0; i < len(l); i++ {
			c := l[i]
			if c == '=' {
				depth = 1
			} else if c == ';' {
				depth--
				if depth <= 0 {
					done = true
					break
				}
			}
			if depth != 0 {
				b.WriteByte(c)
			}
		}
		if done {
			break
		}
	}
	if !done {
		b.WriteString(truncatedValue)
	}
	return " " + fixWhitespace(strings.TrimSpace(b.String()))
}

// returnType guesses a function's return type from the text before
// "name(" on its line, walking back up to returnTypeLines lines when the
// type sits on lines of its own.
func returnType(name string, src source, line int) string {
	if line <= 0 {
		return defaultReturn
	}
	if line > len(src) {
		return unknownReturn
	}
	first := max(line-returnTypeLines, 0)
	lines := src[first:line]

	sig := regexp.MustCompile(`(.*)[ \t]*` + regexp.QuoteMeta(name) + `[ \t]*\(`)
	m := sig.FindStringSubmatch(lines[len(lines)-1])
	if m == nil {
		return unknownReturn
	}

	var rs retval
	if t, ok := rs.feed(strings.TrimSpace(m[1])); ok {
		return t
	}
	for i := len(lines) - 2; i >= 0; i-- {
		l := lines[i]
		if end := strings.LastIndexByte(l, '}'); end >= 0 {
			if t, ok := rs.feed(l[end:]); ok {
				return t
			}
			break
		}
		if t, ok := rs.feed(l); ok {
			return t
		}
	}
	return defaultReturn
}

type retval struct {
	isConst  bool
	typeName string
	ptrLevel int
}

func (r *retval) String() string {
	var b strings.Builder
	if r.isConst {
		b.WriteString("const ")
	}
	if r.typeName != "" {
		b.WriteString(r.typeName)
	} else {
		b.WriteString(defaultReturn)
	}
	b.WriteString(strings.Repeat("*", r.ptrLevel))
	return b.String()
}

// feed tries one line. Preprocessor and comment lines end the search with
// whatever has been found so far.
func (r *retval) feed(line string) (string, bool) {
	trimmed := strings.TrimSpace(line)
	if strings.HasPrefix(trimmed, "#") || strings.HasPrefix(trimmed, "/") || strings.Contains(trimmed, "*/") {
		return r.String(), true
	}
	line = strings.ReplaceAll(line, "static", "")
	line = strings.ReplaceAll(line, "inline", "")
	for _, re := range []*regexp.Regexp{aggregateType, signedType, plainType} {
		if r.match(re, line) {
			return r.String(), true
		}
	}
	return "", false
}

func (r *retval) match(re *regexp.Regexp, line string) bool {
	m := re.FindStringSubmatch(line)
	if m == nil {
		return false
	}
	r.isConst = m[1] != ""
	if m[2] == "" {
		r.typeName = m[3]
	} else {
		r.typeName = m[2] + " " + m[3]
	}
	r.ptrLevel = len(m[4])
	return true
}
