package diff

// RenderOptions controls how chunks are turned into display rows.
type RenderOptions struct {
	// MaxDisplayLines is the longest sequence that is still rendered.
	MaxDisplayLines int
	// UnchangedRunThreshold is the longest unchanged run shown in full.
	UnchangedRunThreshold int
	// ContextLines is the number of lines kept next to a neighbouring change.
	ContextLines int
}

// DefaultRenderOptions returns the standard display limits.
func DefaultRenderOptions() RenderOptions {
	return RenderOptions{
		MaxDisplayLines:       500,
		UnchangedRunThreshold: 5,
		ContextLines:          2,
	}
}

// RowKind identifies what a display row shows.
type RowKind int

const (
	RowUnchanged RowKind = iota
	RowChanged
	RowHidden
)

// Line is one numbered line of output. Numbers start at 1 and are counted
// separately for the expected and the actual side.
type Line struct {
	Number int    `json:"number"`
	Text   string `json:"text"`
}

// Row is one line of a side-by-side rendering. In changed rows a nil side
// means the line is missing on that side. Hidden rows only carry a count.
type Row struct {
	Kind     RowKind `json:"kind"`
	Expected *Line   `json:"expected,omitempty"`
	Actual   *Line   `json:"actual,omitempty"`
	Hidden   int     `json:"hidden,omitempty"`
}

// Rendering is the display form of a comparison.
type Rendering struct {
	// TooLong is set when either side exceeds MaxDisplayLines; Rows is empty then.
	TooLong bool  `json:"too_long"`
	Rows    []Row `json:"rows,omitempty"`
}

// Cursor holds the next line number on each side.
type Cursor struct {
	Expected int
	Actual   int
}

// Render lays out chunks computed from expected and actual.
func Render(expected, actual []string, chunks []Chunk, opts RenderOptions) Rendering {
	if len(expected) > opts.MaxDisplayLines || len(actual) > opts.MaxDisplayLines {
		return Rendering{TooLong: true}
	}

	var (
		rows []Row
		at   = Cursor{Expected: 1, Actual: 1}
	)
	for i, chunk := range chunks {
		var chunkRows []Row
		if chunk.Kind == Changed {
			chunkRows, at = renderChanged(chunk, at)
		} else {
			chunkRows, at = RenderUnchanged(chunk.Lines, i == 0, i == len(chunks)-1, at, opts)
		}
		rows = append(rows, chunkRows...)
	}

	return Rendering{Rows: rows}
}

func renderChanged(chunk Chunk, at Cursor) ([]Row, Cursor) {
	n := max(len(chunk.Expected), len(chunk.Actual))
	rows := make([]Row, 0, n)
	for k := 0; k < n; k++ {
		row := Row{Kind: RowChanged}
		if k < len(chunk.Expected) {
			row.Expected = &Line{Number: at.Expected, Text: chunk.Expected[k]}
			at.Expected++
		}
		if k < len(chunk.Actual) {
			row.Actual = &Line{Number: at.Actual, Text: chunk.Actual[k]}
			at.Actual++
		}
		rows = append(rows, row)
	}
	return rows, at
}

// unchangedLayouts says which edges of a long unchanged run stay visible.
// The leading lines are kept when something precedes the run and the trailing
// lines when something follows it.
var unchangedLayouts = map[[2]bool]struct{ head, tail bool }{
	{false, false}: {head: true, tail: true},
	{true, false}:  {head: false, tail: true},
	{false, true}:  {head: true, tail: false},
	{true, true}:   {head: false, tail: false},
}

// RenderUnchanged renders one unchanged run starting at the given line
// numbers. Runs longer than the threshold are collapsed to their context
// lines and a single hidden-lines row; hidden lines still advance the counters.
func RenderUnchanged(lines []string, isFirst, isLast bool, at Cursor, opts RenderOptions) ([]Row, Cursor) {
	head, tail := len(lines), 0
	if len(lines) > opts.UnchangedRunThreshold {
		layout := unchangedLayouts[[2]bool{isFirst, isLast}]
		head, tail = 0, 0
		if layout.head {
			head = opts.ContextLines
		}
		if layout.tail {
			tail = opts.ContextLines
		}
		if head+tail >= len(lines) {
			head, tail = len(lines), 0
		}
	}

	hidden := len(lines) - head - tail
	rows := make([]Row, 0, head+tail+1)
	emit := func(text string) {
		rows = append(rows, Row{
			Kind:     RowUnchanged,
			Expected: &Line{Number: at.Expected, Text: text},
			Actual:   &Line{Number: at.Actual, Text: text},
		})
		at.Expected++
		at.Actual++
	}

	for _, text := range lines[:head] {
		emit(text)
	}
	if hidden > 0 {
		rows = append(rows, Row{Kind: RowHidden, Hidden: hidden})
		at.Expected += hidden
		at.Actual += hidden
	}
	for _, text := range lines[len(lines)-tail:] {
		emit(text)
	}

	return rows, at
}
