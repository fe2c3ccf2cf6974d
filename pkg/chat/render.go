package chat

import (
	"fmt"
	"io"
	"strings"

	"github.com/jmuk/pagecrew/pkg/crew"
	"github.com/sergi/go-diff/diffmatchpatch"
)

// renderer prints what the crew does as it happens.
type renderer struct {
	w io.Writer
	// midLine is true when streamed text has not ended with a newline.
	midLine bool
}

var _ crew.Observer = (*renderer)(nil)

func newRenderer(w io.Writer) *renderer {
	return &renderer{w: w}
}

func (r *renderer) endLine() {
	if r.midLine {
		fmt.Fprintln(r.w)
		r.midLine = false
	}
}

func (r *renderer) TurnStarted(agent string, depth int) {
	r.endLine()
	fmt.Fprintf(r.w, "%s[%s]\n", strings.Repeat("  ", depth), agent)
}

func (r *renderer) Text(agent, delta string) {
	if delta == "" {
		return
	}
	fmt.Fprint(r.w, delta)
	r.midLine = !strings.HasSuffix(delta, "\n")
}

func (r *renderer) TurnFinished(agent string) {
	r.endLine()
}

func (r *renderer) ArtifactUpdated(agent, filename, previous, contents string) {
	r.endLine()
	if previous == "" {
		fmt.Fprintf(r.w, "%s created %s (%d bytes)\n", agent, filename, len(contents))
	} else {
		fmt.Fprintf(r.w, "%s updated %s (%d bytes)\n", agent, filename, len(contents))
	}
	fmt.Fprint(r.w, lineDiff(previous, contents))
}

func (r *renderer) Delegated(from, to string) {
	r.endLine()
	fmt.Fprintf(r.w, "%s -> %s\n", from, to)
}

// lineDiff returns the changed lines between a and b, prefixed with "+ "
// or "- ".
func lineDiff(a, b string) string {
	dmp := diffmatchpatch.New()
	ca, cb, lines := dmp.DiffLinesToChars(a, b)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(ca, cb, false), lines)
	var sb strings.Builder
	for _, d := range diffs {
		var prefix string
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			prefix = "+ "
		case diffmatchpatch.DiffDelete:
			prefix = "- "
		default:
			continue
		}
		for _, line := range strings.Split(strings.TrimSuffix(d.Text, "\n"), "\n") {
			sb.WriteString(prefix)
			sb.WriteString(line)
			sb.WriteString("\n")
		}
	}
	return sb.String()
}
