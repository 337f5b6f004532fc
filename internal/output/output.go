// Package output formats human-readable CLI output.
package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/mattn/go-isatty"
)

const (
	ansiBold  = "\x1b[1m"
	ansiDim   = "\x1b[2m"
	ansiReset = "\x1b[0m"
)

// Writer prints status lines, search hits and tables.
type Writer struct {
	out      io.Writer
	useColor bool
}

// New creates a Writer. Styling is enabled only when out is a terminal.
func New(out io.Writer) *Writer {
	w := &Writer{out: out}
	if f, ok := out.(*os.File); ok {
		w.useColor = isatty.IsTerminal(f.Fd())
	}
	return w
}

// Status prints msg behind icon, or indented when icon is empty.
// Write errors are ignored for console output.
func (w *Writer) Status(icon, msg string) {
	if icon != "" {
		_, _ = fmt.Fprintf(w.out, "%s %s\n", icon, msg)
		return
	}
	_, _ = fmt.Fprintf(w.out, "   %s\n", msg)
}

// Statusf is Status with formatting.
func (w *Writer) Statusf(icon, format string, args ...any) {
	w.Status(icon, fmt.Sprintf(format, args...))
}

// Success prints a success line.
func (w *Writer) Success(msg string) {
	w.Status("✅", msg)
}

// Successf is Success with formatting.
func (w *Writer) Successf(format string, args ...any) {
	w.Success(fmt.Sprintf(format, args...))
}

// Warning prints a warning line.
func (w *Writer) Warning(msg string) {
	w.Status("⚠️ ", msg)
}

// Error prints an error line.
func (w *Writer) Error(msg string) {
	w.Status("❌", msg)
}

// Newline prints an empty line.
func (w *Writer) Newline() {
	_, _ = fmt.Fprintln(w.out)
}

// Hit is one search result as printed by the CLI.
type Hit struct {
	Index   string
	ID      string
	Title   string
	URL     string
	Snippet string
}

// Hit prints a numbered search result: the title line, then the URL and the
// snippet indented below it.
func (w *Writer) Hit(rank int, h Hit) {
	title := h.Title
	if title == "" {
		title = h.ID
	}
	_, _ = fmt.Fprintf(w.out, "%d. %s %s\n", rank, w.bold(title), w.dim("["+h.Index+"]"))
	if h.URL != "" {
		_, _ = fmt.Fprintf(w.out, "   %s\n", h.URL)
	}
	if s := strings.TrimSpace(h.Snippet); s != "" {
		_, _ = fmt.Fprintf(w.out, "   %s\n", strings.ReplaceAll(s, "\n", " "))
	}
}

// Table prints rows in aligned columns under header.
func (w *Writer) Table(header []string, rows [][]string) {
	tw := tabwriter.NewWriter(w.out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, w.bold(strings.Join(header, "\t")))
	for _, row := range rows {
		_, _ = fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	_ = tw.Flush()
}

func (w *Writer) bold(s string) string {
	if !w.useColor {
		return s
	}
	return ansiBold + s + ansiReset
}

func (w *Writer) dim(s string) string {
	if !w.useColor {
		return s
	}
	return ansiDim + s + ansiReset
}
