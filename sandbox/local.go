package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// LocalDriver runs programs directly on the host inside a temporary
// directory. It offers no isolation and is meant for development only.
type LocalDriver struct {
	logger    *zap.Logger
	cmdRunner CommandRunner
	fs        FileSystem
	root      string
}

// LocalDriverOption defines a functional option for LocalDriver
type LocalDriverOption func(*LocalDriver)

// WithLocalCommandRunner sets the CommandRunner for LocalDriver
func WithLocalCommandRunner(cmdRunner CommandRunner) LocalDriverOption {
	return func(l *LocalDriver) {
		l.cmdRunner = cmdRunner
	}
}

// WithLocalFileSystem sets the FileSystem for LocalDriver
func WithLocalFileSystem(fs FileSystem) LocalDriverOption {
	return func(l *LocalDriver) {
		l.fs = fs
	}
}

// NewLocalDriver creates a new LocalDriver with default implementations and optional interfaces
func NewLocalDriver(logger *zap.Logger, opts ...LocalDriverOption) *LocalDriver {
	driver := &LocalDriver{
		logger:    logger,
		cmdRunner: &RealCommandRunner{},
		fs:        &RealFileSystem{},
	}

	for _, opt := range opts {
		opt(driver)
	}

	return driver
}

// CreateInstance creates the temporary work directory.
func (l *LocalDriver) CreateInstance(_ context.Context) error {
	root, err := l.fs.MkdirTemp("", "codejudge-*")
	if err != nil {
		return fmt.Errorf("failed to create temp dir: %w", err)
	}

	for _, dir := range []string{inputDir, outputDir} {
		if err := l.fs.MkdirAll(filepath.Join(root, dir), DirPermission); err != nil {
			if rmErr := l.fs.RemoveAll(root); rmErr != nil {
				l.logger.Error("failed to remove temp directory", zap.String("path", root), zap.Error(rmErr))
			}
			return fmt.Errorf("failed to create %s dir: %w", dir, err)
		}
	}

	l.root = root
	l.logger.Warn("running programs on the host without isolation", zap.String("workdir", root))

	return nil
}

// CopyIn writes data below the work directory.
func (l *LocalDriver) CopyIn(_ context.Context, data []byte, remotePath string) error {
	target, err := l.resolve(remotePath)
	if err != nil {
		return err
	}

	if err := l.fs.MkdirAll(filepath.Dir(target), DirPermission); err != nil {
		return fmt.Errorf("failed to create parent directories: %w", err)
	}

	return l.fs.WriteFile(target, data, FilePermission)
}

// Compile runs the build command in the work directory.
func (l *LocalDriver) Compile(ctx context.Context, command []string) (CompileResult, error) {
	if l.root == "" {
		return CompileResult{}, errors.New("local instance not created")
	}

	stdout, stderr, exitCode, err := l.cmdRunner.RunCommand(ctx, l.root, nil, command)
	if err != nil {
		return CompileResult{}, fmt.Errorf("failed to execute compiler: %w", err)
	}

	return CompileResult{
		OK:     exitCode == 0,
		Output: strings.TrimSpace(stdout + stderr),
	}, nil
}

// RunWithTimeout runs the program with a deadline of limit. The process is
// killed when the deadline passes.
func (l *LocalDriver) RunWithTimeout(ctx context.Context, spec RunSpec, limit time.Duration) (RunResult, error) {
	stdinPath, err := l.resolve(spec.StdinPath)
	if err != nil {
		return RunResult{}, err
	}
	stdoutPath, err := l.resolve(spec.StdoutPath)
	if err != nil {
		return RunResult{}, err
	}

	stdin, err := l.fs.ReadFile(stdinPath)
	if err != nil {
		return RunResult{}, fmt.Errorf("failed to read staged input: %w", err)
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, limit)
	defer cancel()

	start := time.Now()
	stdout, stderr, exitCode, err := l.cmdRunner.RunCommand(ctxWithTimeout, l.root, bytes.NewReader(stdin), spec.Command)
	elapsed := time.Since(start)

	// If the context timed out, handle it explicitly
	if errors.Is(ctxWithTimeout.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return RunResult{TimedOut: true, Elapsed: elapsed}, nil
	}
	if err != nil {
		return RunResult{}, fmt.Errorf("failed to execute command: %w", err)
	}

	if err := l.fs.WriteFile(stdoutPath, []byte(stdout), FilePermission); err != nil {
		return RunResult{}, fmt.Errorf("failed to store program output: %w", err)
	}

	return RunResult{ExitCode: exitCode, Stderr: stderr, Elapsed: elapsed}, nil
}

// CopyOut reads a file below the work directory.
func (l *LocalDriver) CopyOut(_ context.Context, remotePath string) ([]byte, error) {
	target, err := l.resolve(remotePath)
	if err != nil {
		return nil, err
	}
	return l.fs.ReadFile(target)
}

// DestroyInstance removes the work directory.
func (l *LocalDriver) DestroyInstance(_ context.Context) error {
	if l.root == "" {
		return nil
	}

	root := l.root
	l.root = ""
	if err := l.fs.RemoveAll(root); err != nil {
		return fmt.Errorf("failed to remove temp dir: %w", err)
	}

	return nil
}

// resolve maps an instance path onto the host, refusing paths that escape
// the work directory.
func (l *LocalDriver) resolve(remotePath string) (string, error) {
	if l.root == "" {
		return "", errors.New("local instance not created")
	}

	clean := filepath.Clean(filepath.FromSlash(remotePath))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes sandbox: %s", remotePath)
	}

	return filepath.Join(l.root, clean), nil
}
