package judge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/isdmx/codejudge/config"
	"github.com/isdmx/codejudge/diff"
	"github.com/isdmx/codejudge/grading"
	"github.com/isdmx/codejudge/pipeline"
	"github.com/isdmx/codejudge/sandbox"
)

// stopTimeout bounds sandbox teardown, which runs even after the request
// context is cancelled.
const stopTimeout = 30 * time.Second

// Request describes one judging run. Either Code or CodePath must be set;
// zero TimeLimit and empty DiffMode fall back to the configured defaults.
type Request struct {
	Code     []byte
	CodePath string
	// Language is a language name or extension. When empty the extension of
	// CodePath decides.
	Language string
	Tests    []pipeline.TestCase

	TimeLimit time.Duration
	DiffMode  string
	// Render overrides the configured display limits field by field; zero
	// fields keep the configured value.
	Render diff.RenderOptions
	// OutputDir, when set, receives the output of every successful test.
	OutputDir string
	Observer  pipeline.Observer
}

// Report is the ordered outcome of a run.
type Report struct {
	Language  string
	Results   []pipeline.Result
	TimeLimit time.Duration
	Render    diff.RenderOptions
	Duration  time.Duration
}

// Passed reports whether every test succeeded.
func (r Report) Passed() bool {
	for _, res := range r.Results {
		if !res.Passed() {
			return false
		}
	}
	return true
}

// Count returns the number of results with status.
func (r Report) Count(status grading.Status) int {
	n := 0
	for _, res := range r.Results {
		if res.Status == status {
			n++
		}
	}
	return n
}

// Judge runs programs against test suites, one fresh sandbox per run.
type Judge struct {
	cfg       *config.Config
	logger    *zap.Logger
	factory   sandbox.DriverFactory
	languages *sandbox.Languages
	diffMode  diff.Mode
}

// New creates a Judge using the configured defaults.
func New(cfg *config.Config, logger *zap.Logger, factory sandbox.DriverFactory, languages *sandbox.Languages) (*Judge, error) {
	mode, err := diff.ParseMode(cfg.Testing.DiffMode)
	if err != nil {
		return nil, err
	}

	return &Judge{
		cfg:       cfg,
		logger:    logger,
		factory:   factory,
		languages: languages,
		diffMode:  mode,
	}, nil
}

// Languages lists the languages programs may be written in.
func (j *Judge) Languages() []string {
	return j.languages.Names()
}

// Run binds the program to a new sandbox session and runs every test
// through it. The session is stopped exactly once on every path, and a
// teardown failure is joined onto the returned error.
func (j *Judge) Run(ctx context.Context, req Request) (report Report, err error) {
	if len(req.Code) == 0 && req.CodePath == "" {
		return Report{}, errors.New("code is required")
	}
	if len(req.Tests) == 0 {
		return Report{}, errors.New("at least one test is required")
	}

	limit := req.TimeLimit
	if limit == 0 {
		limit = j.cfg.TimeLimit()
	}
	if limit < 0 {
		return Report{}, fmt.Errorf("time limit must be positive, got %s", limit)
	}

	mode := j.diffMode
	if req.DiffMode != "" {
		if mode, err = diff.ParseMode(req.DiffMode); err != nil {
			return Report{}, err
		}
	}

	render, err := j.renderOptions(req.Render)
	if err != nil {
		return Report{}, err
	}

	lang, err := j.languages.Resolve(req.Language, req.CodePath)
	if err != nil {
		return Report{}, err
	}

	driver, err := j.factory()
	if err != nil {
		return Report{}, fmt.Errorf("failed to create sandbox driver: %w", err)
	}
	if closer, ok := driver.(io.Closer); ok {
		defer func() {
			if closeErr := closer.Close(); closeErr != nil {
				j.logger.Warn("failed to close sandbox driver", zap.Error(closeErr))
			}
		}()
	}

	logger := j.logger.With(zap.String("language", lang.Name), zap.Int("tests", len(req.Tests)))
	session := sandbox.NewSession(driver, j.languages, sandbox.WithSessionLogger(logger))

	defer func() {
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), stopTimeout)
		defer cancel()
		if stopErr := session.Stop(stopCtx); stopErr != nil {
			err = errors.Join(err, stopErr)
		}
	}()

	start := time.Now()
	if err := session.Start(ctx); err != nil {
		return Report{}, err
	}

	if req.CodePath != "" && len(req.Code) == 0 {
		err = session.BindCodeFile(ctx, req.CodePath, lang.Name)
	} else {
		err = session.BindCode(ctx, sandbox.Code{Source: req.Code, Language: lang.Name})
	}
	if err != nil {
		return Report{}, err
	}

	p := pipeline.New(session, grading.NewClassifier(mode), logger, pipeline.Options{
		TimeLimit: limit,
		OutputDir: req.OutputDir,
		Observer:  req.Observer,
	})

	results, err := p.Run(ctx, req.Tests)
	if err != nil {
		return Report{}, err
	}

	report = Report{
		Language:  lang.Name,
		Results:   results,
		TimeLimit: limit,
		Render:    render,
		Duration:  time.Since(start),
	}

	logger.Info("run finished",
		zap.Int("passed", report.Count(grading.StatusSuccess)),
		zap.Duration("duration", report.Duration))

	return report, nil
}

func (j *Judge) renderOptions(override diff.RenderOptions) (diff.RenderOptions, error) {
	if override.MaxDisplayLines < 0 || override.UnchangedRunThreshold < 0 || override.ContextLines < 0 {
		return diff.RenderOptions{}, fmt.Errorf("render limits must not be negative, got %+v", override)
	}

	opts := diff.RenderOptions{
		MaxDisplayLines:       j.cfg.Testing.MaxDisplayLines,
		UnchangedRunThreshold: j.cfg.Testing.UnchangedRunThreshold,
		ContextLines:          j.cfg.Testing.ContextLines,
	}
	if override.MaxDisplayLines > 0 {
		opts.MaxDisplayLines = override.MaxDisplayLines
	}
	if override.UnchangedRunThreshold > 0 {
		opts.UnchangedRunThreshold = override.UnchangedRunThreshold
	}
	if override.ContextLines > 0 {
		opts.ContextLines = override.ContextLines
	}
	return opts, nil
}
