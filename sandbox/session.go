package sandbox

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// State is the lifecycle position of a Session.
type State int

const (
	StateNotStarted State = iota
	StateReady
	StateLanguageBound
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not-started"
	case StateReady:
		return "ready"
	case StateLanguageBound:
		return "language-bound"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Instance layout, relative to the driver's work directory.
const (
	inputDir  = "inputs"
	outputDir = "outputs"
)

// Code is a program to bind to a session. Language may name a language or an
// extension; when empty the extension of Filename decides.
type Code struct {
	Source   []byte
	Filename string
	Language string
}

// InputHandle identifies a staged input. Every staged input gets its own
// slot, so staging may run while an earlier input is executing.
type InputHandle struct {
	Slot int64
	Path string
}

// OutcomeKind classifies a single execution.
type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeRuntimeFault
	OutcomeTimedOut
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeRuntimeFault:
		return "runtime-fault"
	case OutcomeTimedOut:
		return "timed-out"
	default:
		return fmt.Sprintf("OutcomeKind(%d)", int(k))
	}
}

// RawOutcome is the unclassified result of one execution. OutputRef and
// Elapsed are set on success, Message and Diagnostic on a runtime fault.
type RawOutcome struct {
	Kind       OutcomeKind
	OutputRef  string
	Elapsed    time.Duration
	Message    string
	Diagnostic string
}

// Session drives one sandbox instance through its lifecycle. Staging and
// execution may be called from different goroutines as long as each of them
// is called in order; lifecycle methods must not overlap with them.
type Session struct {
	driver    Driver
	languages *Languages
	logger    *zap.Logger
	fs        FileSystem

	mu    sync.Mutex
	state State
	lang  *Language

	slots atomic.Int64
}

// SessionOption defines a functional option for Session
type SessionOption func(*Session)

// WithSessionLogger sets the logger for Session
func WithSessionLogger(logger *zap.Logger) SessionOption {
	return func(s *Session) {
		s.logger = logger
	}
}

// WithSessionFileSystem sets the FileSystem used for host-side files
func WithSessionFileSystem(fs FileSystem) SessionOption {
	return func(s *Session) {
		s.fs = fs
	}
}

// NewSession creates a session over driver. No instance exists until Start.
func NewSession(driver Driver, languages *Languages, opts ...SessionOption) *Session {
	s := &Session{
		driver:    driver,
		languages: languages,
		logger:    zap.NewNop(),
		fs:        &RealFileSystem{},
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// State reports the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start creates the backing instance. Starting a running session is a no-op.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateReady || s.state == StateLanguageBound {
		return nil
	}

	if err := s.driver.CreateInstance(ctx); err != nil {
		return fmt.Errorf("failed to create sandbox instance: %w", err)
	}

	s.state = StateReady
	s.lang = nil
	s.logger.Debug("sandbox session started")

	return nil
}

// BindCode copies the program into the instance and, for compiled languages,
// builds it. Binding again replaces the previous program.
func (s *Session) BindCode(ctx context.Context, code Code) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireStarted("bind code"); err != nil {
		return err
	}

	lang, err := s.languages.Resolve(code.Language, code.Filename)
	if err != nil {
		return err
	}

	s.state = StateReady
	s.lang = nil

	if err := s.driver.CopyIn(ctx, code.Source, lang.SourceFile); err != nil {
		return fmt.Errorf("failed to copy source into sandbox: %w", err)
	}

	if lang.Kind == Compiled {
		start := time.Now()
		res, err := s.driver.Compile(ctx, lang.CompileCommand)
		if err != nil {
			return fmt.Errorf("failed to run compiler: %w", err)
		}
		if !res.OK {
			s.logger.Info("compilation failed", zap.String("language", lang.Name))
			return &CompilationError{Language: lang.Name, Output: res.Output}
		}
		s.logger.Debug("compiled program",
			zap.String("language", lang.Name),
			zap.Duration("duration", time.Since(start)))
	}

	s.state = StateLanguageBound
	s.lang = &lang
	s.logger.Debug("code bound", zap.String("language", lang.Name), zap.String("kind", lang.Kind.String()))

	return nil
}

// BindCodeFile reads a program from the host and binds it. The language
// comes from hint or, when hint is empty, from the file extension.
func (s *Session) BindCodeFile(ctx context.Context, file, hint string) error {
	source, err := s.fs.ReadFile(file)
	if err != nil {
		return fmt.Errorf("failed to read code file: %w", err)
	}
	return s.BindCode(ctx, Code{Source: source, Filename: filepath.Base(file), Language: hint})
}

// StageInput copies payload into a fresh input slot.
func (s *Session) StageInput(ctx context.Context, payload []byte) (InputHandle, error) {
	if err := s.checkStarted("stage input"); err != nil {
		return InputHandle{}, err
	}

	slot := s.slots.Add(1)
	handle := InputHandle{
		Slot: slot,
		Path: path.Join(inputDir, fmt.Sprintf("%d.in", slot)),
	}

	if err := s.driver.CopyIn(ctx, payload, handle.Path); err != nil {
		return InputHandle{}, fmt.Errorf("failed to stage input: %w", err)
	}

	return handle, nil
}

// StageInputFile reads an input file from the host and stages it.
func (s *Session) StageInputFile(ctx context.Context, file string) (InputHandle, error) {
	payload, err := s.fs.ReadFile(file)
	if err != nil {
		return InputHandle{}, fmt.Errorf("failed to read input file: %w", err)
	}
	return s.StageInput(ctx, payload)
}

// Execute runs the bound program on a staged input under limit. Program
// failures and timeouts are outcomes; only driver failures are errors.
func (s *Session) Execute(ctx context.Context, input InputHandle, limit time.Duration) (RawOutcome, error) {
	lang, err := s.boundLanguage()
	if err != nil {
		return RawOutcome{}, err
	}

	outputRef := path.Join(outputDir, fmt.Sprintf("%d.out", input.Slot))
	res, err := s.driver.RunWithTimeout(ctx, RunSpec{
		Command:    lang.RunCommand,
		StdinPath:  input.Path,
		StdoutPath: outputRef,
	}, limit)
	if err != nil {
		return RawOutcome{}, fmt.Errorf("failed to run program: %w", err)
	}

	switch {
	case res.TimedOut:
		return RawOutcome{Kind: OutcomeTimedOut, Elapsed: res.Elapsed}, nil
	case res.ExitCode != 0:
		return RawOutcome{
			Kind:       OutcomeRuntimeFault,
			Elapsed:    res.Elapsed,
			Message:    fmt.Sprintf("Process exited with error code %d", res.ExitCode),
			Diagnostic: res.Stderr,
		}, nil
	default:
		return RawOutcome{Kind: OutcomeSuccess, OutputRef: outputRef, Elapsed: res.Elapsed}, nil
	}
}

// RetrieveOutputText returns a captured output decoded as UTF-8. Invalid
// byte sequences are replaced.
func (s *Session) RetrieveOutputText(ctx context.Context, ref string) (string, error) {
	if err := s.checkStarted("retrieve output"); err != nil {
		return "", err
	}

	data, err := s.driver.CopyOut(ctx, ref)
	if err != nil {
		return "", fmt.Errorf("failed to retrieve output %s: %w", ref, err)
	}

	return strings.ToValidUTF8(string(data), "\uFFFD"), nil
}

// PersistOutput copies a captured output to destination on the host,
// creating parent directories as needed.
func (s *Session) PersistOutput(ctx context.Context, ref, destination string) error {
	if err := s.checkStarted("persist output"); err != nil {
		return err
	}

	data, err := s.driver.CopyOut(ctx, ref)
	if err != nil {
		return fmt.Errorf("failed to retrieve output %s: %w", ref, err)
	}

	if err := s.fs.MkdirAll(filepath.Dir(destination), DirPermission); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if err := s.fs.WriteFile(destination, data, FilePermission); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}

	return nil
}

// Stop destroys the backing instance. Stopping a session that is not
// running is a no-op.
func (s *Session) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateNotStarted || s.state == StateStopped {
		return nil
	}

	err := s.driver.DestroyInstance(ctx)
	s.state = StateStopped
	s.lang = nil
	if err != nil {
		return fmt.Errorf("failed to destroy sandbox instance: %w", err)
	}

	s.logger.Debug("sandbox session stopped")
	return nil
}

func (s *Session) requireStarted(op string) error {
	if s.state != StateReady && s.state != StateLanguageBound {
		return fmt.Errorf("%s in state %s: %w", op, s.state, ErrSessionNotReady)
	}
	return nil
}

func (s *Session) checkStarted(op string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requireStarted(op)
}

func (s *Session) boundLanguage() (Language, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireStarted("execute"); err != nil {
		return Language{}, err
	}
	if s.state != StateLanguageBound || s.lang == nil {
		return Language{}, ErrCodeNotBound
	}
	return *s.lang, nil
}
