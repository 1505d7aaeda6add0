// Package output renders engine results for the CLI, with colors when
// stdout is a terminal and plain text otherwise.
package output

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	"github.com/jayusctrojan/empire-search/internal/search"
)

// snippetLength caps the content preview per result line.
const snippetLength = 120

// Writer provides formatted output for the CLI.
type Writer struct {
	out    io.Writer
	styles Styles
}

// New creates a Writer, enabling color only when out is a terminal.
func New(out io.Writer) *Writer {
	styles := NoColorStyles()
	if f, ok := out.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		styles = DefaultStyles()
	}
	return &Writer{out: out, styles: styles}
}

// NewStyled creates a Writer with explicit styles, for tests and for
// callers that force color on or off.
func NewStyled(out io.Writer, styles Styles) *Writer {
	return &Writer{out: out, styles: styles}
}

// Success prints a success message.
// Write errors are intentionally ignored for console output.
func (w *Writer) Success(msg string) {
	_, _ = fmt.Fprintln(w.out, w.styles.Success.Render("✓ "+msg))
}

// Successf prints a formatted success message.
func (w *Writer) Successf(format string, args ...any) {
	w.Success(fmt.Sprintf(format, args...))
}

// Warning prints a warning message.
func (w *Writer) Warning(msg string) {
	_, _ = fmt.Fprintln(w.out, w.styles.Warning.Render("! "+msg))
}

// Error prints an error message.
func (w *Writer) Error(msg string) {
	_, _ = fmt.Fprintln(w.out, w.styles.Error.Render("✗ "+msg))
}

// Errorf prints a formatted error message.
func (w *Writer) Errorf(format string, args ...any) {
	w.Error(fmt.Sprintf(format, args...))
}

// Newline prints an empty line.
func (w *Writer) Newline() {
	_, _ = fmt.Fprintln(w.out)
}

// SearchResponse renders a full search response: header line, ranked
// results, cache annotation, and any near-miss suggestion.
func (w *Writer) SearchResponse(resp *search.Response) {
	header := fmt.Sprintf("%d results", len(resp.Results))
	if resp.UsedCache {
		header += fmt.Sprintf(" (cached, %s)", resp.CacheTier)
	}
	_, _ = fmt.Fprintln(w.out, w.styles.Header.Render(header))

	if resp.CacheNote != "" {
		_, _ = fmt.Fprintln(w.out, w.styles.Note.Render(resp.CacheNote))
	}
	w.Newline()

	for _, r := range resp.Results {
		w.result(r)
	}

	if len(resp.Suggestion) > 0 {
		w.Newline()
		_, _ = fmt.Fprintln(w.out, w.styles.Dim.Render(
			fmt.Sprintf("related cached answer (%d results):", len(resp.Suggestion))))
		for _, r := range resp.Suggestion {
			w.result(r)
		}
	}
}

func (w *Writer) result(r *search.FusedResult) {
	rank := w.styles.Rank.Render(fmt.Sprintf("%2d.", r.FinalRank))
	title := w.styles.Title.Render(r.UnitID)
	score := w.styles.Score.Render(fmt.Sprintf("score=%.5f", r.FusedScore))
	_, _ = fmt.Fprintf(w.out, "%s %s  %s\n", rank, title, score)

	if snippet := makeSnippet(r.Content); snippet != "" {
		_, _ = fmt.Fprintf(w.out, "    %s\n", snippet)
	}
	if methods := contributingMethods(r); methods != "" {
		_, _ = fmt.Fprintf(w.out, "    %s\n", w.styles.Dim.Render("via "+methods))
	}
}

// ExpandResult renders expanded context units grouped by parent.
func (w *Writer) ExpandResult(result *search.ExpandResult) {
	header := fmt.Sprintf("%d units, %d tokens", len(result.Units), result.TokensUsed)
	if result.Truncated {
		header += " (truncated by budget)"
	}
	_, _ = fmt.Fprintln(w.out, w.styles.Header.Render(header))
	w.Newline()

	var lastParent string
	for _, u := range result.Units {
		if u.ParentID != lastParent {
			label := u.ParentID
			if u.Hierarchy.ParentLabel != "" {
				label += " (" + u.Hierarchy.ParentLabel + ")"
			}
			_, _ = fmt.Fprintln(w.out, w.styles.Title.Render(label))
			lastParent = u.ParentID
		}
		_, _ = fmt.Fprintf(w.out, "  %s %s\n",
			w.styles.Dim.Render(fmt.Sprintf("[%d]", u.SequenceIndex)),
			strings.TrimSpace(u.Text))
		if len(u.Entities) > 0 {
			_, _ = fmt.Fprintf(w.out, "      %s\n",
				w.styles.Dim.Render("entities: "+strings.Join(u.Entities, ", ")))
		}
	}
}

// CacheMetrics renders cache counters one per line.
func (w *Writer) CacheMetrics(lookups, exact, near, suggestions, misses, writes uint64) {
	_, _ = fmt.Fprintln(w.out, w.styles.Header.Render("semantic cache"))
	rows := []struct {
		label string
		value uint64
	}{
		{"lookups", lookups},
		{"exact hits", exact},
		{"near hits", near},
		{"suggestions", suggestions},
		{"misses", misses},
		{"writes", writes},
	}
	for _, row := range rows {
		_, _ = fmt.Fprintf(w.out, "  %-12s %d\n", row.label, row.value)
	}
}

func makeSnippet(content string) string {
	content = strings.Join(strings.Fields(content), " ")
	if len(content) <= snippetLength {
		return content
	}
	return content[:snippetLength] + "…"
}

// contributingMethods lists the methods that ranked the result, with
// their per-method ranks.
func contributingMethods(r *search.FusedResult) string {
	var parts []string
	for _, m := range search.Methods() {
		if rank := r.MethodRanks[m.Index()]; rank > 0 {
			parts = append(parts, fmt.Sprintf("%s#%d", m, rank))
		}
	}
	return strings.Join(parts, " ")
}
