package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/isdmx/codejudge/grading"
	"github.com/isdmx/codejudge/sandbox"
)

// Session is the part of a sandbox session the pipeline drives.
type Session interface {
	StageInput(ctx context.Context, payload []byte) (sandbox.InputHandle, error)
	StageInputFile(ctx context.Context, file string) (sandbox.InputHandle, error)
	Execute(ctx context.Context, input sandbox.InputHandle, limit time.Duration) (sandbox.RawOutcome, error)
	RetrieveOutputText(ctx context.Context, ref string) (string, error)
	PersistOutput(ctx context.Context, ref, destination string) error
}

// TestCase is one input with an optional expected output. Input and
// Expected take precedence over InputPath and ExpectedPath.
type TestCase struct {
	ID           int
	Name         string
	Input        []byte
	InputPath    string
	Expected     *string
	ExpectedPath string
}

// HasExpected reports whether the test compares against an expected output.
func (tc TestCase) HasExpected() bool {
	return tc.Expected != nil || tc.ExpectedPath != ""
}

// Result is the final result of one test case.
type Result struct {
	Test TestCase
	grading.ExecutionResult
	// OutputPath is where the output was persisted, if anywhere.
	OutputPath string
}

// Options tune a pipeline run.
type Options struct {
	// TimeLimit bounds every execution.
	TimeLimit time.Duration
	// OutputDir, when set, receives every successful output as the test name
	// with an .out extension.
	OutputDir string
	Observer  Observer
	// FileSystem reads expected output files. Defaults to the host.
	FileSystem sandbox.FileSystem
}

// ErrNoTimeLimit is returned when Options.TimeLimit is not positive.
var ErrNoTimeLimit = errors.New("time limit must be positive")

// Pipeline runs test cases against a session whose code is already bound.
type Pipeline struct {
	session    Session
	classifier *grading.Classifier
	logger     *zap.Logger
	opts       Options
}

// New creates a Pipeline.
func New(session Session, classifier *grading.Classifier, logger *zap.Logger, opts Options) *Pipeline {
	if opts.FileSystem == nil {
		opts.FileSystem = sandbox.RealFileSystem{}
	}

	return &Pipeline{
		session:    session,
		classifier: classifier,
		logger:     logger,
		opts:       opts,
	}
}

// testState is the per-test completion state shared by the drivers.
type testState struct {
	staged   *future[sandbox.InputHandle]
	executed *future[sandbox.RawOutcome]
}

// Run drives tests through the session and returns one result per test, in
// the order given. A failure of the session itself aborts the run; program
// failures and wrong answers are results.
func (p *Pipeline) Run(ctx context.Context, tests []TestCase) ([]Result, error) {
	if p.opts.TimeLimit <= 0 {
		return nil, ErrNoTimeLimit
	}
	if len(tests) == 0 {
		return nil, nil
	}

	states := make([]testState, len(tests))
	for i := range states {
		states[i] = testState{
			staged:   newFuture[sandbox.InputHandle](),
			executed: newFuture[sandbox.RawOutcome](),
		}
	}

	results := make([]Result, len(tests))
	events := startNotifier(p.opts.Observer, 3*len(tests))

	start := time.Now()
	p.logger.Debug("pipeline started", zap.Int("tests", len(tests)), zap.Duration("time_limit", p.opts.TimeLimit))

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return p.stageAll(gctx, tests, states, events)
	})

	g.Go(func() error {
		return p.executeAll(gctx, tests, states, events)
	})

	for i := range tests {
		g.Go(func() error {
			outcome, err := states[i].executed.wait(gctx)
			if err != nil {
				return err
			}

			res, err := p.finalize(gctx, tests[i], outcome)
			if err != nil {
				return fmt.Errorf("test %s: %w", tests[i].Name, err)
			}

			results[i] = res
			events.notify(p.event(PhaseFinalized, i, tests))
			return nil
		})
	}

	err := g.Wait()
	events.close()
	if err != nil {
		p.logger.Error("pipeline aborted", zap.Error(err))
		return nil, err
	}

	p.logger.Debug("pipeline finished", zap.Int("tests", len(tests)), zap.Duration("duration", time.Since(start)))
	return results, nil
}

// stageAll copies the inputs into the sandbox in ordinal order.
func (p *Pipeline) stageAll(ctx context.Context, tests []TestCase, states []testState, events *notifier) error {
	for i, tc := range tests {
		var (
			handle sandbox.InputHandle
			err    error
		)
		if tc.Input != nil || tc.InputPath == "" {
			handle, err = p.session.StageInput(ctx, tc.Input)
		} else {
			handle, err = p.session.StageInputFile(ctx, tc.InputPath)
		}
		if err != nil {
			return fmt.Errorf("test %s: %w", tc.Name, err)
		}

		events.notify(p.event(PhaseStaged, i, tests))
		states[i].staged.resolve(handle)
	}

	return nil
}

// executeAll runs the staged inputs in ordinal order, one at a time.
func (p *Pipeline) executeAll(ctx context.Context, tests []TestCase, states []testState, events *notifier) error {
	for i, tc := range tests {
		handle, err := states[i].staged.wait(ctx)
		if err != nil {
			return err
		}

		outcome, err := p.session.Execute(ctx, handle, p.opts.TimeLimit)
		if err != nil {
			return fmt.Errorf("test %s: %w", tc.Name, err)
		}

		p.logger.Debug("test executed",
			zap.String("test", tc.Name),
			zap.Stringer("outcome", outcome.Kind),
			zap.Duration("elapsed", outcome.Elapsed))

		events.notify(p.event(PhaseExecuted, i, tests))
		states[i].executed.resolve(outcome)
	}

	return nil
}

// finalize persists the output when an output directory is configured and
// classifies the outcome against the expected output, if any.
func (p *Pipeline) finalize(ctx context.Context, tc TestCase, outcome sandbox.RawOutcome) (Result, error) {
	res := Result{Test: tc}

	if outcome.Kind == sandbox.OutcomeSuccess && p.opts.OutputDir != "" {
		dest := filepath.Join(p.opts.OutputDir, outputName(tc.Name, tc.ID))
		if err := p.session.PersistOutput(ctx, outcome.OutputRef, dest); err != nil {
			return Result{}, err
		}
		res.OutputPath = dest
	}

	if outcome.Kind != sandbox.OutcomeSuccess || !tc.HasExpected() {
		res.ExecutionResult = p.classifier.Classify(outcome, "", nil)
		return res, nil
	}

	expected, err := p.expected(tc)
	if err != nil {
		return Result{}, err
	}

	actual, err := p.session.RetrieveOutputText(ctx, outcome.OutputRef)
	if err != nil {
		return Result{}, err
	}

	res.ExecutionResult = p.classifier.Classify(outcome, actual, &expected)
	return res, nil
}

func (p *Pipeline) expected(tc TestCase) (string, error) {
	if tc.Expected != nil {
		return *tc.Expected, nil
	}

	data, err := p.opts.FileSystem.ReadFile(tc.ExpectedPath)
	if err != nil {
		return "", fmt.Errorf("failed to read expected output: %w", err)
	}
	return string(data), nil
}

func (p *Pipeline) event(phase Phase, i int, tests []TestCase) Event {
	return Event{Phase: phase, Index: i, Name: tests[i].Name, Total: len(tests)}
}

// outputName replaces the extension of a test name with .out. Unnamed tests
// are numbered.
func outputName(name string, id int) string {
	if name == "" {
		return fmt.Sprintf("%d.out", id)
	}
	return strings.TrimSuffix(name, filepath.Ext(name)) + ".out"
}
