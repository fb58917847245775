package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"
)

// Driver is the capability set a sandbox backend has to offer. A driver backs
// exactly one isolated instance at a time. Paths are relative to the
// instance's work directory.
type Driver interface {
	CreateInstance(ctx context.Context) error
	CopyIn(ctx context.Context, data []byte, remotePath string) error
	Compile(ctx context.Context, command []string) (CompileResult, error)
	RunWithTimeout(ctx context.Context, spec RunSpec, limit time.Duration) (RunResult, error)
	CopyOut(ctx context.Context, remotePath string) ([]byte, error)
	DestroyInstance(ctx context.Context) error
}

// CompileResult reports a compiler invocation. A failed compilation is not a
// driver error.
type CompileResult struct {
	OK     bool
	Output string
}

// RunSpec describes one program run inside the instance.
type RunSpec struct {
	Command    []string
	StdinPath  string
	StdoutPath string
}

// RunResult reports one program run. Elapsed is measured by the sandbox.
type RunResult struct {
	ExitCode int
	Stderr   string
	Elapsed  time.Duration
	TimedOut bool
}

// CommandRunner defines an interface for executing system commands
type CommandRunner interface {
	RunCommand(ctx context.Context, dir string, stdin io.Reader, args []string) (stdout, stderr string, exitCode int, err error)
}

// RealCommandRunner implements CommandRunner using actual exec commands
type RealCommandRunner struct{}

// processWaitDelay bounds how long a killed process may keep its pipes open.
const processWaitDelay = time.Second

// RunCommand executes the given command in dir, feeding stdin when it is set.
func (RealCommandRunner) RunCommand(ctx context.Context, dir string, stdin io.Reader, args []string) (stdout, stderr string, exitCode int, err error) {
	if len(args) < 1 {
		return "", "", 0, fmt.Errorf("no command provided")
	}

	cmd := exec.CommandContext(ctx, args[0], args[1:]...) //nolint:gosec // commands come from the language registry
	cmd.Dir = dir
	cmd.Stdin = stdin
	cmd.WaitDelay = processWaitDelay

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	err = cmd.Run()

	exitCode = 0
	if err != nil {
		if exitError, ok := err.(*exec.ExitError); ok {
			exitCode = exitError.ExitCode()
		} else {
			return "", "", 0, err
		}
	}

	return stdoutBuf.String(), stderrBuf.String(), exitCode, nil
}

// FileSystem defines an interface for file system operations
type FileSystem interface {
	MkdirTemp(dir, pattern string) (string, error)
	MkdirAll(path string, perm os.FileMode) error
	WriteFile(filename string, data []byte, perm os.FileMode) error
	ReadFile(filename string) ([]byte, error)
	RemoveAll(path string) error
}

// RealFileSystem implements FileSystem using actual file system operations
type RealFileSystem struct{}

func (RealFileSystem) MkdirTemp(dir, pattern string) (string, error) {
	return os.MkdirTemp(dir, pattern)
}

func (RealFileSystem) MkdirAll(path string, perm os.FileMode) error {
	return os.MkdirAll(path, perm)
}

func (RealFileSystem) WriteFile(filename string, data []byte, perm os.FileMode) error {
	return os.WriteFile(filename, data, perm)
}

func (RealFileSystem) ReadFile(filename string) ([]byte, error) {
	return os.ReadFile(filename)
}

func (RealFileSystem) RemoveAll(path string) error {
	return os.RemoveAll(path)
}

// File permission constants
const (
	DirPermission  = 0o755
	FilePermission = 0o644
)
