// Package report renders judge reports as terminal text.
//
// Every test gets one line with its status and running time. Wrong answers
// are followed by a side-by-side comparison of expected and actual output,
// runtime errors by the exit message and the program's error stream.
package report
