package macroapi

import "github.com/upplang/upp/internal/sourcetree"

// sexpParser is a minimal test double implementing sourcetree.Parser. It
// understands a tiny s-expression syntax — "(type child child...)" for an
// interior node, a bare token for an "identifier" leaf — purely so
// macroapi's helpers and pattern matcher can be exercised against real,
// byte-accurate offsets without depending on a real grammar.
type sexpParser struct{}

func (sexpParser) ParseFull(language, text string) (sourcetree.RawTree, error) {
	return sexpRaw(text), nil
}

func (sexpParser) ParseFragment(language, text string) (sourcetree.RawTree, int, int, error) {
	return sexpRaw(text), 0, len(text), nil
}

type sexpTok struct {
	text       string
	start, end int
}

func sexpTokenize(text string) []sexpTok {
	var toks []sexpTok
	i, n := 0, len(text)
	for i < n {
		c := text[i]
		if c == ' ' || c == '\t' || c == '\n' || c == '\r' {
			i++
			continue
		}
		if c == '(' || c == ')' {
			toks = append(toks, sexpTok{text: string(c), start: i, end: i + 1})
			i++
			continue
		}
		start := i
		for i < n {
			c := text[i]
			if c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '(' || c == ')' {
				break
			}
			i++
		}
		toks = append(toks, sexpTok{text: text[start:i], start: start, end: i})
	}
	return toks
}

func sexpRaw(text string) sourcetree.RawTree {
	toks := sexpTokenize(text)
	if len(toks) == 0 {
		return sourcetree.RawTree{Nodes: []sourcetree.RawNode{{Type: "ERROR", Start: 0, End: 0, Parent: -1}}, Root: 0}
	}
	var nodes []sourcetree.RawNode
	pos := 0

	var parse func(parent int) int
	parse = func(parent int) int {
		t := toks[pos]
		if t.text == "(" {
			openStart := t.start
			pos++
			typeName := toks[pos].text
			pos++
			idx := len(nodes)
			nodes = append(nodes, sourcetree.RawNode{Type: typeName, Parent: parent})
			var children []int
			for toks[pos].text != ")" {
				children = append(children, parse(idx))
			}
			closeEnd := toks[pos].end
			pos++
			nodes[idx].Children = children
			nodes[idx].Start = openStart
			nodes[idx].End = closeEnd
			return idx
		}
		idx := len(nodes)
		nodes = append(nodes, sourcetree.RawNode{Type: "identifier", Start: t.start, End: t.end, Parent: parent})
		pos++
		return idx
	}

	root := parse(-1)
	return sourcetree.RawTree{Nodes: nodes, Root: root}
}
