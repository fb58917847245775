package grading

import (
	"strings"
	"unicode"

	"github.com/isdmx/codejudge/diff"
	"github.com/isdmx/codejudge/sandbox"
)

// Status is the final verdict of one test.
type Status string

const (
	StatusSuccess      Status = "success"
	StatusWrongAnswer  Status = "wrong-answer"
	StatusRuntimeError Status = "runtime-error"
	StatusTimeout      Status = "timeout"
)

// ExecutionResult is the classified result of one test. Chunks are set for
// wrong answers, Message and Diagnostic for runtime errors.
type ExecutionResult struct {
	Status         Status       `json:"status"`
	ElapsedSeconds float64      `json:"elapsed_sec,omitempty"`
	Chunks         []diff.Chunk `json:"chunks,omitempty"`
	Message        string       `json:"message,omitempty"`
	Diagnostic     string       `json:"diagnostic,omitempty"`

	// Expected and Actual hold the normalized line sequences the chunks were
	// computed from, for rendering.
	Expected []string `json:"-"`
	Actual   []string `json:"-"`
}

// Passed reports whether the test succeeded.
func (r ExecutionResult) Passed() bool {
	return r.Status == StatusSuccess
}

// Classifier maps raw outcomes to results using one diff mode.
type Classifier struct {
	mode diff.Mode
}

// NewClassifier creates a Classifier comparing outputs in mode.
func NewClassifier(mode diff.Mode) *Classifier {
	return &Classifier{mode: mode}
}

// Classify maps outcome to a result. actual is the captured output text and
// is only consulted for successful runs with an expected output.
func (c *Classifier) Classify(outcome sandbox.RawOutcome, actual string, expected *string) ExecutionResult {
	switch outcome.Kind {
	case sandbox.OutcomeTimedOut:
		return ExecutionResult{Status: StatusTimeout}
	case sandbox.OutcomeRuntimeFault:
		return ExecutionResult{
			Status:     StatusRuntimeError,
			Message:    outcome.Message,
			Diagnostic: outcome.Diagnostic,
		}
	}

	elapsed := outcome.Elapsed.Seconds()
	if expected == nil {
		return ExecutionResult{Status: StatusSuccess, ElapsedSeconds: elapsed}
	}

	want := Normalize(*expected)
	got := Normalize(actual)
	if want == got {
		return ExecutionResult{Status: StatusSuccess, ElapsedSeconds: elapsed}
	}

	wantLines := diff.SplitLines(want)
	gotLines := diff.SplitLines(got)
	return ExecutionResult{
		Status:         StatusWrongAnswer,
		ElapsedSeconds: elapsed,
		Chunks:         diff.Compute(c.mode, wantLines, gotLines),
		Expected:       wantLines,
		Actual:         gotLines,
	}
}

// Normalize unifies line endings to \n and strips trailing whitespace from
// the text. Unicode spaces and the byte order mark count as whitespace.
func Normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	return strings.TrimRightFunc(text, isTrailingSpace)
}

func isTrailingSpace(r rune) bool {
	return unicode.IsSpace(r) || r == '\uFEFF'
}
