package registry

import "strings"

// lexMode tracks what a byte-by-byte scan is currently inside, so directive
// recognition never fires from within a comment or string literal (spec.md
// §4.D: "one scan that honors comments and string literals").
type lexMode int

const (
	modeCode lexMode = iota
	modeLineComment
	modeBlockComment
	modeString
	modeChar
)

// scanAt walks src maintaining comment/string state and calls onAt whenever
// it meets '@' in code mode. onAt writes its own replacement directly to out
// and returns how many source bytes it consumed (including the leading '@')
// and whether it handled the occurrence; if handled is false nothing must
// have been written, and the '@' is copied through unchanged.
func scanAt(src string, onAt func(i int, out *strings.Builder) (consumed int, handled bool)) string {
	var out strings.Builder
	i := 0
	n := len(src)
	md := modeCode
	var quote byte

	for i < n {
		c := src[i]
		switch md {
		case modeLineComment:
			out.WriteByte(c)
			if c == '\n' {
				md = modeCode
			}
			i++
			continue
		case modeBlockComment:
			if c == '*' && i+1 < n && src[i+1] == '/' {
				out.WriteByte(c)
				out.WriteByte('/')
				i += 2
				md = modeCode
				continue
			}
			out.WriteByte(c)
			i++
			continue
		case modeString, modeChar:
			if c == '\\' && i+1 < n {
				out.WriteByte(c)
				out.WriteByte(src[i+1])
				i += 2
				continue
			}
			out.WriteByte(c)
			if c == quote {
				md = modeCode
			}
			i++
			continue
		}

		// modeCode
		switch {
		case c == '/' && i+1 < n && src[i+1] == '/':
			md = modeLineComment
			out.WriteByte(c)
			i++
		case c == '/' && i+1 < n && src[i+1] == '*':
			md = modeBlockComment
			out.WriteByte(c)
			i++
		case c == '"':
			md, quote = modeString, '"'
			out.WriteByte(c)
			i++
		case c == '\'':
			md, quote = modeChar, '\''
			out.WriteByte(c)
			i++
		case c == '@':
			consumed, handled := onAt(i, &out)
			if handled {
				i += consumed
				continue
			}
			out.WriteByte(c)
			i++
		default:
			out.WriteByte(c)
			i++
		}
	}
	return out.String()
}

// braceBody scans from i (pointing at an opening '{') and returns the index
// just past the matching closing '}', honoring nested braces, comments, and
// string literals. ok is false if the braces never balance.
func braceBody(src string, i int) (end int, ok bool) {
	n := len(src)
	if i >= n || src[i] != '{' {
		return i, false
	}
	depth := 0
	md := modeCode
	var quote byte
	for ; i < n; i++ {
		c := src[i]
		switch md {
		case modeLineComment:
			if c == '\n' {
				md = modeCode
			}
			continue
		case modeBlockComment:
			if c == '*' && i+1 < n && src[i+1] == '/' {
				i++
				md = modeCode
			}
			continue
		case modeString, modeChar:
			if c == '\\' {
				i++
				continue
			}
			if c == quote {
				md = modeCode
			}
			continue
		}
		switch {
		case c == '/' && i+1 < n && src[i+1] == '/':
			md = modeLineComment
		case c == '/' && i+1 < n && src[i+1] == '*':
			md = modeBlockComment
		case c == '"':
			md, quote = modeString, '"'
		case c == '\'':
			md, quote = modeChar, '\''
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return i + 1, true
			}
		}
	}
	return i, false
}

// blank replaces every non-newline byte of s with a space, preserving
// length and line structure (spec.md §4.D.1: "blank the region with
// whitespace of the same length (preserves line/column of following
// code)").
func blank(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			b.WriteByte('\n')
		} else {
			b.WriteByte(' ')
		}
	}
	return b.String()
}

// identAt returns the identifier (letters, digits, underscore) starting at i.
func identAt(src string, i int) string {
	start := i
	for i < len(src) {
		c := src[i]
		if c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') {
			i++
			continue
		}
		break
	}
	return src[start:i]
}

func skipSpace(src string, i int) int {
	for i < len(src) {
		c := src[i]
		if c == ' ' || c == '\t' || c == '\n' || c == '\r' {
			i++
			continue
		}
		break
	}
	return i
}

// splitTopLevelArgs splits a raw argument-list string on commas at paren/
// brace/bracket depth 0 (spec.md §6: "args are raw strings delimited by
// commas at brace/paren depth 0"). Empty (whitespace-only) input yields no
// arguments.
func splitTopLevelArgs(s string) []string {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return nil
	}
	var args []string
	depth := 0
	start := 0
	md := modeCode
	var quote byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch md {
		case modeString, modeChar:
			if c == '\\' {
				i++
				continue
			}
			if c == quote {
				md = modeCode
			}
			continue
		}
		switch c {
		case '"':
			md, quote = modeString, '"'
		case '\'':
			md, quote = modeChar, '\''
		case '(', '{', '[':
			depth++
		case ')', '}', ']':
			depth--
		case ',':
			if depth == 0 {
				args = append(args, strings.TrimSpace(s[start:i]))
				start = i + 1
			}
		}
	}
	args = append(args, strings.TrimSpace(s[start:]))
	return args
}
