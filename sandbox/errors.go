package sandbox

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrSessionNotReady is returned when an operation runs before Start or after Stop.
	ErrSessionNotReady = errors.New("sandbox session not ready")
	// ErrCodeNotBound is returned when a program is executed before code was bound.
	ErrCodeNotBound = errors.New("no code bound to sandbox session")
)

// UnknownLanguageError reports a language hint or file extension that no
// configured language claims.
type UnknownLanguageError struct {
	Language string
}

func (e *UnknownLanguageError) Error() string {
	return fmt.Sprintf("unknown language or extension: %q", e.Language)
}

// CompilationError carries the compiler output of a failed build.
type CompilationError struct {
	Language string
	Output   string
}

func (e *CompilationError) Error() string {
	msg := fmt.Sprintf("%s compilation failed", e.Language)
	if out := strings.TrimSpace(e.Output); out != "" {
		msg += ":\n" + out
	}
	return msg
}
