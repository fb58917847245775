package judge

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/isdmx/codejudge/config"
	"github.com/isdmx/codejudge/diff"
	"github.com/isdmx/codejudge/grading"
	"github.com/isdmx/codejudge/pipeline"
	"github.com/isdmx/codejudge/sandbox"
)

const addThree = "read x\necho $((x+3))\n"

// countingDriver wraps a real driver and records teardown.
type countingDriver struct {
	sandbox.Driver
	destroyed atomic.Int32
	closed    atomic.Bool
}

func (c *countingDriver) DestroyInstance(ctx context.Context) error {
	c.destroyed.Add(1)
	return c.Driver.DestroyInstance(ctx)
}

func (c *countingDriver) Close() error {
	c.closed.Store(true)
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		Testing: config.TestingConfig{
			TimeLimitSec:          2,
			DiffMode:              "positional",
			MaxDisplayLines:       500,
			UnchangedRunThreshold: 5,
			ContextLines:          2,
		},
	}
}

func shellLanguages(t *testing.T) *sandbox.Languages {
	t.Helper()
	langs, err := sandbox.NewLanguages(
		sandbox.Language{
			Name:       "shell",
			Kind:       sandbox.Interpreted,
			Extensions: []string{".sh"},
			SourceFile: "main.sh",
			RunCommand: []string{"sh", "main.sh"},
		},
		sandbox.Language{
			Name:           "checked-shell",
			Kind:           sandbox.Compiled,
			Extensions:     []string{".csh"},
			SourceFile:     "main.sh",
			CompileCommand: []string{"sh", "-n", "main.sh"},
			RunCommand:     []string{"sh", "main.sh"},
		},
	)
	require.NoError(t, err)
	return langs
}

type harness struct {
	judge   *Judge
	drivers []*countingDriver
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}

	h := &harness{}
	logger := zaptest.NewLogger(t)
	factory := func() (sandbox.Driver, error) {
		d := &countingDriver{Driver: sandbox.NewLocalDriver(logger)}
		h.drivers = append(h.drivers, d)
		return d, nil
	}

	j, err := New(testConfig(), logger, factory, shellLanguages(t))
	require.NoError(t, err)
	h.judge = j
	return h
}

func (h *harness) requireStoppedOnce(t *testing.T) {
	t.Helper()
	require.Len(t, h.drivers, 1)
	assert.Equal(t, int32(1), h.drivers[0].destroyed.Load())
	assert.True(t, h.drivers[0].closed.Load())
}

func ptr(s string) *string {
	return &s
}

func TestJudgeRun(t *testing.T) {
	ctx := context.Background()

	t.Run("SuccessAndWrongAnswer", func(t *testing.T) {
		h := newHarness(t)

		report, err := h.judge.Run(ctx, Request{
			Code:     []byte(addThree),
			Language: "shell",
			Tests: []pipeline.TestCase{
				{ID: 0, Name: "right", Input: []byte("5\n"), Expected: ptr("8")},
				{ID: 1, Name: "wrong", Input: []byte("5\n"), Expected: ptr("9")},
			},
		})
		require.NoError(t, err)
		require.Len(t, report.Results, 2)

		assert.Equal(t, "shell", report.Language)
		assert.Equal(t, grading.StatusSuccess, report.Results[0].Status)
		assert.Positive(t, report.Results[0].ElapsedSeconds)

		wrong := report.Results[1]
		assert.Equal(t, grading.StatusWrongAnswer, wrong.Status)
		assert.Equal(t, []diff.Chunk{{Kind: diff.Changed, Expected: []string{"9"}, Actual: []string{"8"}}}, wrong.Chunks)

		assert.False(t, report.Passed())
		assert.Equal(t, 1, report.Count(grading.StatusWrongAnswer))
		assert.Equal(t, 500, report.Render.MaxDisplayLines)
		h.requireStoppedOnce(t)
	})

	t.Run("RuntimeError", func(t *testing.T) {
		h := newHarness(t)

		report, err := h.judge.Run(ctx, Request{
			Code:     []byte("echo boom >&2\nexit 3\n"),
			Language: "sh",
			Tests:    []pipeline.TestCase{{Name: "crash", Input: []byte("5\n"), Expected: ptr("8")}},
		})
		require.NoError(t, err)

		res := report.Results[0]
		assert.Equal(t, grading.StatusRuntimeError, res.Status)
		assert.Equal(t, "Process exited with error code 3", res.Message)
		assert.Equal(t, "boom\n", res.Diagnostic)
		h.requireStoppedOnce(t)
	})

	t.Run("Timeout", func(t *testing.T) {
		h := newHarness(t)

		report, err := h.judge.Run(ctx, Request{
			Code:      []byte("while :; do :; done\n"),
			Language:  "shell",
			TimeLimit: time.Second,
			Tests:     []pipeline.TestCase{{Name: "loop", Input: []byte("5\n"), Expected: ptr("8")}},
		})
		require.NoError(t, err)
		assert.Equal(t, grading.StatusTimeout, report.Results[0].Status)
		h.requireStoppedOnce(t)
	})

	t.Run("CompilationErrorStillStops", func(t *testing.T) {
		h := newHarness(t)

		_, err := h.judge.Run(ctx, Request{
			Code:     []byte("if then fi (\n"),
			Language: "checked-shell",
			Tests:    []pipeline.TestCase{{Name: "a", Input: []byte("5\n")}},
		})
		var compileErr *sandbox.CompilationError
		require.ErrorAs(t, err, &compileErr)
		assert.Equal(t, "checked-shell", compileErr.Language)
		assert.NotEmpty(t, compileErr.Output)
		h.requireStoppedOnce(t)
	})

	t.Run("CompiledLanguageRuns", func(t *testing.T) {
		h := newHarness(t)

		report, err := h.judge.Run(ctx, Request{
			Code:     []byte(addThree),
			Language: "checked-shell",
			Tests:    []pipeline.TestCase{{Name: "a", Input: []byte("1\n"), Expected: ptr("4")}},
		})
		require.NoError(t, err)
		assert.True(t, report.Passed())
		h.requireStoppedOnce(t)
	})

	t.Run("CodeFileAndOutputDir", func(t *testing.T) {
		h := newHarness(t)
		dir := t.TempDir()
		codePath := filepath.Join(dir, "solution.sh")
		require.NoError(t, os.WriteFile(codePath, []byte(addThree), 0o644))
		outDir := filepath.Join(dir, "out")

		report, err := h.judge.Run(ctx, Request{
			CodePath:  codePath,
			OutputDir: outDir,
			Tests: []pipeline.TestCase{
				{ID: 0, Name: "one.in", Input: []byte("1\n")},
				{ID: 1, Name: "two.in", Input: []byte("2\n")},
			},
		})
		require.NoError(t, err)
		assert.True(t, report.Passed())

		got, err := os.ReadFile(filepath.Join(outDir, "two.out"))
		require.NoError(t, err)
		assert.Equal(t, "5\n", string(got))
		assert.Equal(t, filepath.Join(outDir, "one.out"), report.Results[0].OutputPath)
		h.requireStoppedOnce(t)
	})

	t.Run("RenderOverride", func(t *testing.T) {
		h := newHarness(t)

		report, err := h.judge.Run(ctx, Request{
			Code:     []byte(addThree),
			Language: "shell",
			Render:   diff.RenderOptions{MaxDisplayLines: 10},
			Tests:    []pipeline.TestCase{{Name: "a", Input: []byte("1\n"), Expected: ptr("4")}},
		})
		require.NoError(t, err)
		assert.Equal(t, diff.RenderOptions{MaxDisplayLines: 10, UnchangedRunThreshold: 5, ContextLines: 2}, report.Render)
	})

	t.Run("DiffModeOverride", func(t *testing.T) {
		h := newHarness(t)

		report, err := h.judge.Run(ctx, Request{
			Code:     []byte("printf 'a\\nc\\n'\n"),
			Language: "shell",
			DiffMode: "alignment",
			Tests:    []pipeline.TestCase{{Name: "a", Expected: ptr("a\nb\nc")}},
		})
		require.NoError(t, err)
		assert.Equal(t, []diff.Chunk{
			{Kind: diff.Unchanged, Lines: []string{"a"}},
			{Kind: diff.Changed, Expected: []string{"b"}},
			{Kind: diff.Unchanged, Lines: []string{"c"}},
		}, report.Results[0].Chunks)
	})
}

func TestJudgeRunRejectsBadRequests(t *testing.T) {
	ctx := context.Background()
	tests := []pipeline.TestCase{{Name: "a"}}

	cases := []struct {
		name    string
		req     Request
		wantErr string
	}{
		{name: "NoCode", req: Request{Language: "shell", Tests: tests}, wantErr: "code is required"},
		{name: "NoTests", req: Request{Code: []byte("true"), Language: "shell"}, wantErr: "at least one test is required"},
		{name: "NegativeLimit", req: Request{Code: []byte("true"), Language: "shell", Tests: tests, TimeLimit: -time.Second}, wantErr: "time limit must be positive"},
		{name: "BadDiffMode", req: Request{Code: []byte("true"), Language: "shell", Tests: tests, DiffMode: "fuzzy"}, wantErr: "invalid diff mode"},
		{name: "NegativeRenderLimit", req: Request{Code: []byte("true"), Language: "shell", Tests: tests, Render: diff.RenderOptions{ContextLines: -1}}, wantErr: "render limits must not be negative"},
		{name: "UnknownLanguage", req: Request{Code: []byte("true"), Language: "cobol", Tests: tests}, wantErr: "unknown language"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			_, err := h.judge.Run(ctx, tc.req)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
			assert.Empty(t, h.drivers)
		})
	}

	t.Run("UnknownLanguageIsTyped", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.judge.Run(ctx, Request{Code: []byte("x"), CodePath: "main.rs", Tests: tests})
		var unknown *sandbox.UnknownLanguageError
		require.ErrorAs(t, err, &unknown)
		assert.Equal(t, ".rs", unknown.Language)
	})
}

func TestJudgeDriverFailures(t *testing.T) {
	ctx := context.Background()
	logger := zaptest.NewLogger(t)
	langs := shellLanguages(t)
	req := Request{Code: []byte("true"), Language: "shell", Tests: []pipeline.TestCase{{Name: "a"}}}

	t.Run("FactoryError", func(t *testing.T) {
		boom := errors.New("daemon unreachable")
		j, err := New(testConfig(), logger, func() (sandbox.Driver, error) { return nil, boom }, langs)
		require.NoError(t, err)

		_, err = j.Run(ctx, req)
		require.ErrorIs(t, err, boom)
	})

	t.Run("TeardownErrorIsJoined", func(t *testing.T) {
		if _, err := exec.LookPath("sh"); err != nil {
			t.Skip("sh not available")
		}
		teardown := errors.New("remove failed")
		driver := &failingTeardownDriver{Driver: sandbox.NewLocalDriver(logger), err: teardown}
		j, err := New(testConfig(), logger, func() (sandbox.Driver, error) { return driver, nil }, langs)
		require.NoError(t, err)

		_, err = j.Run(ctx, req)
		require.ErrorIs(t, err, teardown)
	})

	t.Run("StagingFailureAbortsAndStopsOnce", func(t *testing.T) {
		if _, err := exec.LookPath("sh"); err != nil {
			t.Skip("sh not available")
		}
		boom := errors.New("copy to sandbox failed")
		counting := &countingDriver{Driver: sandbox.NewLocalDriver(logger)}
		driver := &failingStageDriver{countingDriver: counting, err: boom}
		j, err := New(testConfig(), logger, func() (sandbox.Driver, error) { return driver, nil }, langs)
		require.NoError(t, err)

		report, err := j.Run(ctx, Request{
			Code:     []byte(addThree),
			Language: "shell",
			Tests: []pipeline.TestCase{
				{ID: 0, Name: "a", Input: []byte("1\n"), Expected: ptr("4")},
				{ID: 1, Name: "b", Input: []byte("2\n"), Expected: ptr("5")},
				{ID: 2, Name: "c", Input: []byte("3\n"), Expected: ptr("6")},
			},
		})
		require.ErrorIs(t, err, boom)
		assert.Empty(t, report.Results)
		assert.Equal(t, int32(2), driver.staged.Load())
		assert.Equal(t, int32(1), counting.destroyed.Load())
		assert.True(t, counting.closed.Load())
	})
}

// failingStageDriver fails the copy of the second staged input.
type failingStageDriver struct {
	*countingDriver
	staged atomic.Int32
	err    error
}

func (f *failingStageDriver) CopyIn(ctx context.Context, data []byte, remotePath string) error {
	if strings.HasPrefix(remotePath, "inputs/") && f.staged.Add(1) == 2 {
		return f.err
	}
	return f.countingDriver.CopyIn(ctx, data, remotePath)
}

type failingTeardownDriver struct {
	sandbox.Driver
	err error
}

func (f *failingTeardownDriver) DestroyInstance(ctx context.Context) error {
	_ = f.Driver.DestroyInstance(ctx)
	return f.err
}

func TestNewRejectsInvalidDiffMode(t *testing.T) {
	cfg := testConfig()
	cfg.Testing.DiffMode = "fuzzy"
	_, err := New(cfg, zaptest.NewLogger(t), nil, shellLanguages(t))
	require.Error(t, err)
}
