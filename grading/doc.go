// Package grading turns raw sandbox outcomes into final test results.
//
// A Classifier compares the captured output of a successful run against the
// expected output after normalizing line endings and trailing whitespace.
// Mismatches become wrong answers carrying the diff chunks; runtime faults
// and timeouts are passed through without any comparison.
package grading
