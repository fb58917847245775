// Package diff compares expected and actual program output line by line.
//
// Two strategies are available. Positional comparison pairs lines with the
// same index. Alignment comparison matches common runs first, so an inserted
// or removed line does not cascade into a long mismatch. Both produce the same
// chunk model: an ordered list of unchanged and changed runs that covers both
// sequences from left to right without gaps.
//
// Render turns chunks into display rows: changed runs are paired side by side
// and long unchanged runs are collapsed around a hidden-lines marker.
//
// Usage:
//
//	chunks := diff.Compute(diff.ModeAlignment, diff.SplitLines(want), diff.SplitLines(got))
//	rendering := diff.Render(expected, actual, chunks, diff.DefaultRenderOptions())
package diff
