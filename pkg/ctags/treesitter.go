package ctags

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	gotreesitter "github.com/odvcencio/gotreesitter"
	"github.com/odvcencio/gotreesitter/grammars"
	classify "github.com/odvcencio/gts-suite/pkg/lang/treesitter"
)

var nameIdentifierTypes = classify.NameIdentifierTypes

// cFilename makes grammar detection pick C for every input, matching the
// forced language of the exec generator.
const cFilename = "source.c"

// TreeSitter generates tag tables in process with the tree-sitter C
// grammar. It emits function definitions, macros and file-scope variable
// definitions with numeric line addresses.
type TreeSitter struct {
	Timeout time.Duration
}

func (ts *TreeSitter) Generate(ctx context.Context, dir string, paths []string, w io.Writer) error {
	if ts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, ts.Timeout)
		defer cancel()
	}
	bw := bufio.NewWriterSize(w, 64*1024)
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("treesitter: %w", err)
		}
		src, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(p)))
		if err != nil {
			return fmt.Errorf("treesitter: %w", err)
		}
		tags, err := Scan(src)
		if err != nil {
			return fmt.Errorf("treesitter %s: %w", p, err)
		}
		for _, t := range tags {
			bw.WriteString(t.Name + "\t" + p + "\t" + strconv.Itoa(t.Line) + ";\"\t" + t.Kind + "\n")
		}
	}
	return bw.Flush()
}

// Tag is one symbol found by Scan.
type Tag struct {
	Name string
	Line int    // 1-indexed
	Kind string // f, d or v
}

// Scan returns the tags of one C source in source order.
func Scan(src []byte) ([]Tag, error) {
	if len(src) == 0 {
		return nil, nil
	}
	bt, err := grammars.ParseFile(cFilename, src)
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	defer bt.Release()

	var tags []Tag
	scanScope(bt, bt.RootNode(), &tags)
	return tags, nil
}

// declaratorTypes are the C declarator nodes that can stand between a
// declaration and the identifier it declares.
var declaratorTypes = []string{
	"identifier", "pointer_declarator", "function_declarator",
	"array_declarator", "parenthesized_declarator", "init_declarator",
}

// scanScope visits file-scope items, descending into conditional
// compilation blocks but not into function bodies.
func scanScope(bt *gotreesitter.BoundTree, node *gotreesitter.Node, out *[]Tag) {
	for i := 0; i < node.NamedChildCount(); i++ {
		child := node.NamedChild(i)
		if child == nil {
			continue
		}
		switch bt.NodeType(child) {
		case "function_definition":
			if id := declaredName(bt, childOfType(bt, child, declaratorTypes...)); id != nil {
				*out = append(*out, tagFor(bt, id, "f"))
			}
		case "preproc_def", "preproc_function_def":
			if id := childOfType(bt, child, "identifier"); id != nil {
				*out = append(*out, tagFor(bt, id, "d"))
			}
		case "declaration":
			scanDeclaration(bt, child, out)
		case "preproc_if", "preproc_ifdef", "preproc_else", "preproc_elif", "preproc_elifdef":
			scanScope(bt, child, out)
		}
	}
}

// scanDeclaration tags each variable a file-scope declaration defines.
// Extern declarations and prototypes define nothing.
func scanDeclaration(bt *gotreesitter.BoundTree, node *gotreesitter.Node, out *[]Tag) {
	var decls []*gotreesitter.Node
	for i := 0; i < node.NamedChildCount(); i++ {
		child := node.NamedChild(i)
		if child == nil {
			continue
		}
		t := bt.NodeType(child)
		if t == "storage_class_specifier" && bt.NodeText(child) == "extern" {
			return
		}
		for _, want := range declaratorTypes {
			if t == want {
				decls = append(decls, child)
				break
			}
		}
	}
	for _, d := range decls {
		if isPrototype(bt, d) {
			continue
		}
		if id := declaredName(bt, d); id != nil {
			*out = append(*out, tagFor(bt, id, "v"))
		}
	}
}

// declaredName follows the declarator chain down to its identifier. Array
// sizes, initializers and parameter lists come after the inner declarator,
// so the first declarator child is always the one to follow.
func declaredName(bt *gotreesitter.BoundTree, node *gotreesitter.Node) *gotreesitter.Node {
	for n := node; n != nil; n = childOfType(bt, n, declaratorTypes...) {
		t := bt.NodeType(n)
		if t == "identifier" || (nameIdentifierTypes[t] && t != "type_identifier") {
			return n
		}
	}
	return nil
}

// isPrototype reports whether a declarator declares a function rather than
// a variable: any pointer declarators wrap a function declarator applied
// directly to a name, as in "char *name(void)". Function pointers such as
// "int (*fp)(int)" are variables.
func isPrototype(bt *gotreesitter.BoundTree, node *gotreesitter.Node) bool {
	n := node
	for n != nil && bt.NodeType(n) == "pointer_declarator" {
		n = childOfType(bt, n, declaratorTypes...)
	}
	if n == nil || bt.NodeType(n) != "function_declarator" {
		return false
	}
	inner := childOfType(bt, n, declaratorTypes...)
	return inner != nil && bt.NodeType(inner) == "identifier"
}

func childOfType(bt *gotreesitter.BoundTree, node *gotreesitter.Node, types ...string) *gotreesitter.Node {
	if node == nil {
		return nil
	}
	for i := 0; i < node.NamedChildCount(); i++ {
		child := node.NamedChild(i)
		if child == nil {
			continue
		}
		t := bt.NodeType(child)
		for _, want := range types {
			if t == want {
				return child
			}
		}
	}
	return nil
}

func tagFor(bt *gotreesitter.BoundTree, id *gotreesitter.Node, kind string) Tag {
	return Tag{Name: bt.NodeText(id), Line: int(id.StartPoint().Row) + 1, Kind: kind}
}
