package diagnostics

// Report is a MarshalJSON-friendly view of a Diagnostic (Kind rendered as
// its name, Cause flattened to a string), for `upp --ast FILE --json` and
// other machine-readable consumers (SPEC_FULL.md "Supplemented features").
type Report struct {
	Kind    string `json:"kind"`
	File    string `json:"file"`
	Line    int    `json:"line"`
	Col     int    `json:"col"`
	Span    Span   `json:"span"`
	Message string `json:"message"`
	Fatal   bool   `json:"fatal"`
	Cause   string `json:"cause,omitempty"`
}

// Reports converts every diagnostic in b to its Report form, in emission
// order.
func (b *Bag) Reports() []Report {
	items := b.Items()
	out := make([]Report, len(items))
	for i, d := range items {
		r := Report{
			Kind:    d.Kind.String(),
			File:    d.File,
			Line:    d.Line,
			Col:     d.Col,
			Span:    d.Span,
			Message: d.Message,
			Fatal:   d.Fatal,
		}
		if d.Cause != nil {
			r.Cause = d.Cause.Error()
		}
		out[i] = r
	}
	return out
}
