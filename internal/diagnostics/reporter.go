package diagnostics

import (
	"fmt"
	"io"
	"strings"

	"charm.land/lipgloss/v2"
	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
)

// Reporter renders diagnostics to a writer, with span-highlighted colored
// output when the writer is backed by a terminal and plain text otherwise.
type Reporter struct {
	w      io.Writer
	color  bool
	kind   lipgloss.Style
	fatal  lipgloss.Style
	warn   lipgloss.Style
	locate lipgloss.Style
}

// NewReporter builds a Reporter. fd, when >= 0, is probed with isatty to
// decide whether to colorize; pass -1 to force plain text (cmd/upp passes -1
// when stderr is not a terminal).
func NewReporter(w io.Writer, fd int) *Reporter {
	color := fd >= 0 && isatty.IsTerminal(uintptr(fd))
	return &Reporter{
		w:      w,
		color:  color,
		kind:   lipgloss.NewStyle().Bold(true),
		fatal:  lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
		warn:   lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		locate: lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
	}
}

// Report writes one diagnostic as a source-annotated message.
func (r *Reporter) Report(d *Diagnostic) {
	loc := fmt.Sprintf("%s:%d:%d", d.File, d.Line, d.Col)
	label := "warning"
	style := r.warn
	if d.Fatal {
		label = "error"
		style = r.fatal
	}

	if !r.color {
		fmt.Fprintf(r.w, "%s: %s: %s: %s\n", loc, label, d.Kind, d.Message)
		return
	}

	fmt.Fprintf(r.w, "%s %s: %s: %s\n",
		r.locate.Render(loc),
		style.Render(label),
		r.kind.Render(d.Kind.String()),
		d.Message,
	)
}

// ReportAll writes every diagnostic in bag in order, then a one-line summary.
func (r *Reporter) ReportAll(bag *Bag) {
	for _, d := range bag.Items() {
		r.Report(d)
	}
	items := bag.Items()
	if len(items) == 0 {
		return
	}
	var fatalN, warnN int
	for _, d := range items {
		if d.Fatal {
			fatalN++
		} else {
			warnN++
		}
	}
	fmt.Fprintf(r.w, "%s diagnostics (%s error%s, %s warning%s)\n",
		humanize.Comma(int64(len(items))),
		humanize.Comma(int64(fatalN)), plural(fatalN),
		humanize.Comma(int64(warnN)), plural(warnN),
	)
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}

// Annotate returns source line number line (1-based), with a caret line
// pointing at column col.
func Annotate(src string, line, col int) string {
	lines := strings.Split(src, "\n")
	if line < 1 || line > len(lines) {
		return ""
	}
	text := lines[line-1]
	caretPos := col - 1
	if caretPos < 0 {
		caretPos = 0
	}
	if caretPos > len(text) {
		caretPos = len(text)
	}
	return text + "\n" + strings.Repeat(" ", caretPos) + "^"
}
