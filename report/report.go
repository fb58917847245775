package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"

	"github.com/isdmx/codejudge/diff"
	"github.com/isdmx/codejudge/grading"
	"github.com/isdmx/codejudge/judge"
	"github.com/isdmx/codejudge/pipeline"
)

// Display texts.
const (
	TooLongText     = "Output is too long to show"
	LineMissingText = "Line missing"
)

// maxColumnWidth caps the name and expected-value columns.
const maxColumnWidth = 40

// Options tune the text report.
type Options struct {
	// NoColor disables ANSI colors.
	NoColor bool
}

type palette struct {
	success *color.Color
	failure *color.Color
	message *color.Color
	muted   *color.Color
	heading *color.Color
	actual  *color.Color
	// timing goes from fast to close to the limit.
	timing [4]*color.Color
}

func newPalette(noColor bool) palette {
	c := func(attrs ...color.Attribute) *color.Color {
		col := color.New(attrs...)
		if noColor {
			col.DisableColor()
		} else {
			col.EnableColor()
		}
		return col
	}

	return palette{
		success: c(color.FgGreen),
		failure: c(color.FgRed),
		message: c(color.FgRed, color.Bold),
		muted:   c(color.FgHiBlack, color.Bold),
		heading: c(color.FgHiBlue),
		actual:  c(color.FgHiRed, color.Bold),
		timing: [4]*color.Color{
			c(color.FgHiBlack),
			c(color.FgWhite),
			c(color.FgYellow),
			c(color.FgRed),
		},
	}
}

// errWriter keeps the first write error and skips writes after it.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}
	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}

// Write renders r as text: one line per test, the failure details below it
// and a summary line at the end.
func Write(w io.Writer, r judge.Report, opts Options) error {
	p := newPalette(opts.NoColor)
	ew := &errWriter{w: w}

	renderOpts := r.Render
	if renderOpts.MaxDisplayLines == 0 {
		renderOpts = diff.DefaultRenderOptions()
	}

	nameWidth := 0
	for _, res := range r.Results {
		nameWidth = max(nameWidth, runewidth.StringWidth(displayName(res)))
	}
	nameWidth = min(nameWidth, maxColumnWidth)

	for _, res := range r.Results {
		writeResult(ew, p, res, nameWidth, r.TimeLimit, renderOpts)
	}

	passed := r.Count(grading.StatusSuccess)
	summary := p.success
	if passed != len(r.Results) {
		summary = p.failure
	}
	ew.printf("\n%s\n", summary.Sprintf("%d of %d tests passed", passed, len(r.Results)))

	return ew.err
}

func displayName(res pipeline.Result) string {
	if res.Test.Name != "" {
		return res.Test.Name
	}
	return fmt.Sprintf("#%d", res.Test.ID+1)
}

func writeResult(ew *errWriter, p palette, res pipeline.Result, nameWidth int, limit time.Duration, opts diff.RenderOptions) {
	name := pad(displayName(res), nameWidth)

	switch res.Status {
	case grading.StatusSuccess, grading.StatusWrongAnswer:
		status := p.success.Sprint("✔ Success      ")
		if res.Status == grading.StatusWrongAnswer {
			status = p.failure.Sprint("✖ Wrong answer ")
		}
		elapsed := timingColor(p, res.ElapsedSeconds, limit).Sprintf("%.3f s", res.ElapsedSeconds)
		ew.printf("%s  %s %s\n", name, status, elapsed)

		if res.Status == grading.StatusWrongAnswer {
			writeDiff(ew, p, diff.Render(res.Expected, res.Actual, res.Chunks, opts))
		}

	case grading.StatusRuntimeError:
		ew.printf("%s  %s\n", name, p.failure.Sprint("✖ Runtime error"))
		ew.printf("    %s\n", p.message.Sprint(res.Message))
		if diagnostic := strings.TrimRight(res.Diagnostic, " \t\r\n"); diagnostic != "" {
			ew.printf("\n")
			for _, line := range diff.SplitLines(diagnostic) {
				ew.printf("    %s\n", p.failure.Sprint(line))
			}
		}

	case grading.StatusTimeout:
		ew.printf("%s  %s\n", name, p.failure.Sprint("✖ Timeout"))
	}
}

// timingColor picks a color by how much of the time limit was used.
func timingColor(p palette, elapsed float64, limit time.Duration) *color.Color {
	if limit <= 0 {
		return p.timing[0]
	}
	ratio := min(elapsed/limit.Seconds(), 0.999)
	return p.timing[int(ratio*float64(len(p.timing)))]
}

func writeDiff(ew *errWriter, p palette, rendering diff.Rendering) {
	if rendering.TooLong {
		ew.printf("    %s\n", p.muted.Sprint(TooLongText))
		return
	}

	width := runewidth.StringWidth("Value")
	for _, row := range rendering.Rows {
		if row.Expected != nil {
			width = max(width, runewidth.StringWidth(row.Expected.Text))
		}
	}
	width = min(width, maxColumnWidth)

	const numWidth = 4
	ew.printf("    %s   %s\n",
		p.heading.Sprint(pad("Expected", numWidth+1+width)),
		p.heading.Sprint("Actual"))
	ew.printf("    %s %s   %s %s\n",
		p.heading.Sprint(pad("#", numWidth)), p.heading.Sprint(pad("Value", width)),
		p.heading.Sprint(pad("#", numWidth)), p.heading.Sprint("Value"))

	blank := strings.Repeat(" ", numWidth+1+width)
	for _, row := range rendering.Rows {
		switch row.Kind {
		case diff.RowHidden:
			ew.printf("    %s\n", p.muted.Sprintf("(…) %d lines hidden", row.Hidden))

		case diff.RowUnchanged:
			ew.printf("    %s %s   %s %s\n",
				p.muted.Sprintf("%*d", numWidth, row.Expected.Number), pad(row.Expected.Text, width),
				p.muted.Sprintf("%*d", numWidth, row.Actual.Number), row.Actual.Text)

		case diff.RowChanged:
			switch {
			case row.Expected == nil:
				ew.printf("    %s %s %s %s\n", blank, p.actual.Sprint("+"),
					p.muted.Sprintf("%*d", numWidth, row.Actual.Number), p.actual.Sprint(row.Actual.Text))
			case row.Actual == nil:
				ew.printf("    %s %s %s %s\n",
					p.muted.Sprintf("%*d", numWidth, row.Expected.Number), pad(row.Expected.Text, width),
					p.actual.Sprint("-"), p.failure.Sprint(LineMissingText))
			default:
				ew.printf("    %s %s %s %s %s\n",
					p.muted.Sprintf("%*d", numWidth, row.Expected.Number), pad(row.Expected.Text, width),
					p.actual.Sprint(">"),
					p.muted.Sprintf("%*d", numWidth, row.Actual.Number), p.actual.Sprint(row.Actual.Text))
			}
		}
	}
}

// pad truncates or right-pads s to exactly width terminal cells.
func pad(s string, width int) string {
	if runewidth.StringWidth(s) > width {
		s = runewidth.Truncate(s, width, "…")
	}
	return runewidth.FillRight(s, width)
}
