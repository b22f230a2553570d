package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/upplang/upp/internal/diagnostics"
	"github.com/upplang/upp/internal/sourcetree"
)

// astNode is the JSON-friendly shape `upp --ast FILE --json` prints; leaf
// nodes carry Text, interior nodes carry Children, mirroring the
// sourcetree.Node distinction used throughout internal/clang.
type astNode struct {
	Type     string    `json:"type"`
	Start    int       `json:"start"`
	End      int       `json:"end"`
	Text     string    `json:"text,omitempty"`
	Children []astNode `json:"children,omitempty"`
}

func buildASTNode(n *sourcetree.Node) astNode {
	out := astNode{Type: n.Type, Start: n.StartIndex(), End: n.EndIndex()}
	children := n.Children()
	if len(children) == 0 {
		out.Text = n.Text()
		return out
	}
	out.Children = make([]astNode, len(children))
	for i, c := range children {
		out.Children[i] = buildASTNode(c)
	}
	return out
}

func dumpASTText(n *sourcetree.Node, depth int, b *strings.Builder) {
	fmt.Fprintf(b, "%s%s [%d,%d)", strings.Repeat("  ", depth), n.Type, n.StartIndex(), n.EndIndex())
	children := n.Children()
	if len(children) == 0 {
		fmt.Fprintf(b, " %q\n", n.Text())
		return
	}
	b.WriteString("\n")
	for _, c := range children {
		dumpASTText(c, depth+1, b)
	}
}

// runAST implements `upp --ast FILE [--json]`: transforms path, then prints
// the resulting AST (and, with --json, the accumulated diagnostics
// alongside it as one machine-readable document).
func runAST(path string, asJSON bool) error {
	eng, err := newEngine(path)
	if err != nil {
		return err
	}

	_, reg, err := eng.run(path)
	if err != nil {
		return err
	}
	if reg.MainTree == nil || reg.MainTree.Root() == nil {
		return fmt.Errorf("upp: %s: no AST produced", path)
	}

	if !asJSON {
		var b strings.Builder
		dumpASTText(reg.MainTree.Root(), 0, &b)
		fmt.Print(b.String())
		return printDiagnosticsText(eng)
	}

	doc := struct {
		AST         astNode              `json:"ast"`
		Diagnostics []diagnostics.Report `json:"diagnostics"`
	}{
		AST:         buildASTNode(reg.MainTree.Root()),
		Diagnostics: eng.bag.Reports(),
	}
	enc := json.NewEncoder(stdoutWriter())
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("upp: encoding AST: %w", err)
	}
	if eng.bag.HasFatal() {
		return fmt.Errorf("upp: %s: fatal diagnostics reported", path)
	}
	return nil
}
