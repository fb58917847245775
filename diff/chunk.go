package diff

import (
	"fmt"
	"strings"
)

// ChunkKind tells whether a chunk holds matching or differing lines.
type ChunkKind int

const (
	Unchanged ChunkKind = iota
	Changed
)

func (k ChunkKind) String() string {
	if k == Changed {
		return "changed"
	}
	return "unchanged"
}

// MarshalText encodes the kind by name.
func (k ChunkKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Chunk is a maximal run of lines that either match on both sides or differ.
// Unchanged chunks carry Lines; changed chunks carry Expected and Actual, either
// of which may be empty.
type Chunk struct {
	Kind     ChunkKind `json:"kind"`
	Lines    []string  `json:"lines,omitempty"`
	Expected []string  `json:"expected,omitempty"`
	Actual   []string  `json:"actual,omitempty"`
}

// ExpectedLines returns the chunk's contribution to the expected sequence.
func (c Chunk) ExpectedLines() []string {
	if c.Kind == Unchanged {
		return c.Lines
	}
	return c.Expected
}

// ActualLines returns the chunk's contribution to the actual sequence.
func (c Chunk) ActualLines() []string {
	if c.Kind == Unchanged {
		return c.Lines
	}
	return c.Actual
}

// Mode selects the comparison strategy.
type Mode string

const (
	ModePositional Mode = "positional"
	ModeAlignment  Mode = "alignment"
)

// ParseMode validates a configured mode name. An empty name selects positional.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModePositional:
		return ModePositional, nil
	case ModeAlignment:
		return ModeAlignment, nil
	default:
		return "", fmt.Errorf("invalid diff mode: %s, must be 'positional' or 'alignment'", s)
	}
}

// Compute runs the comparison selected by mode.
func Compute(mode Mode, expected, actual []string) []Chunk {
	if mode == ModeAlignment {
		return Align(expected, actual)
	}
	return Positional(expected, actual)
}

// SplitLines splits text into lines, accepting \n, \r\n and \r as terminators.
func SplitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	return strings.Split(text, "\n")
}

// Positional compares lines index by index. When one side is longer, its tail
// lands on its own side of a trailing changed chunk.
func Positional(expected, actual []string) []Chunk {
	var b builder

	n := min(len(expected), len(actual))
	for i := 0; i < n; i++ {
		if expected[i] == actual[i] {
			b.unchanged(expected[i])
			continue
		}
		b.changed(expected[i:i+1], actual[i:i+1])
	}
	b.changed(expected[n:], actual[n:])

	return b.chunks
}

// Align keeps a longest common subsequence of both sequences unchanged and
// reports the lines between its members as changed. A removal directly
// followed by an insertion forms a single changed chunk.
func Align(expected, actual []string) []Chunk {
	var b builder
	newLCS(expected, actual, &b).run()
	return b.chunks
}

// builder accumulates chunks, extending the last one while the kind repeats.
// Slices are always copied so chunks never alias the caller's input.
type builder struct {
	chunks []Chunk
}

func (b *builder) last(kind ChunkKind) *Chunk {
	if len(b.chunks) == 0 || b.chunks[len(b.chunks)-1].Kind != kind {
		b.chunks = append(b.chunks, Chunk{Kind: kind})
	}
	return &b.chunks[len(b.chunks)-1]
}

func (b *builder) unchanged(lines ...string) {
	if len(lines) == 0 {
		return
	}
	c := b.last(Unchanged)
	c.Lines = append(c.Lines, lines...)
}

func (b *builder) changed(expected, actual []string) {
	if len(expected) == 0 && len(actual) == 0 {
		return
	}
	c := b.last(Changed)
	c.Expected = append(c.Expected, expected...)
	c.Actual = append(c.Actual, actual...)
}
