package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/google/uuid"
	specs "github.com/opencontainers/image-spec/specs-go/v1"
	"go.uber.org/zap"
)

// dockerClient is the part of the Engine API the driver uses.
type dockerClient interface {
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *specs.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options types.ContainerStartOptions) error
	ContainerRemove(ctx context.Context, containerID string, options types.ContainerRemoveOptions) error
	CopyToContainer(ctx context.Context, containerID, dstPath string, content io.Reader, options types.CopyToContainerOptions) error
	CopyFromContainer(ctx context.Context, containerID, srcPath string) (io.ReadCloser, types.ContainerPathStat, error)
	ContainerExecCreate(ctx context.Context, container string, config types.ExecConfig) (types.IDResponse, error)
	ContainerExecAttach(ctx context.Context, execID string, config types.ExecStartCheck) (types.HijackedResponse, error)
	ContainerExecInspect(ctx context.Context, execID string) (types.ContainerExecInspect, error)
	Close() error
}

// DockerConfig holds the container settings of a DockerDriver.
type DockerConfig struct {
	// Host is the Engine API endpoint; empty means the environment default.
	Host           string
	Image          string
	WorkDir        string
	MemoryMB       int
	CPUs           float64
	NetworkEnabled bool
}

// Exit statuses of coreutils timeout when the limit is hit.
const (
	timeoutExitTerm = 124
	timeoutExitKill = 137
)

// execPollInterval is the wait between exec inspections while the process
// is still being reaped.
const execPollInterval = 10 * time.Millisecond

// runGrace is added to the limit for the exec round trip itself.
const runGrace = 5 * time.Second

// runScript runs "$@" with stdin and stdout redirected to files under a time
// limit, then prints the exit status and the start and end times in
// nanoseconds. Program stderr passes through.
const runScript = `in=$1; out=$2; limit=$3; shift 3
start=$(date +%s%N)
timeout -k 1 "$limit" "$@" < "$in" > "$out"
code=$?
end=$(date +%s%N)
echo "$code $start $end"`

// DockerDriver keeps one long-lived container per instance and talks to the
// Engine API directly. Podman works through its Docker-compatible socket.
type DockerDriver struct {
	logger      *zap.Logger
	config      DockerConfig
	cli         dockerClient
	containerID string
}

// DockerDriverOption defines a functional option for DockerDriver
type DockerDriverOption func(*DockerDriver)

func withDockerClient(cli dockerClient) DockerDriverOption {
	return func(d *DockerDriver) {
		d.cli = cli
	}
}

// NewDockerDriver creates a DockerDriver connected to the configured host.
func NewDockerDriver(logger *zap.Logger, cfg DockerConfig, opts ...DockerDriverOption) (*DockerDriver, error) {
	if cfg.WorkDir == "" {
		cfg.WorkDir = "/judge"
	}

	d := &DockerDriver{
		logger: logger,
		config: cfg,
	}

	for _, opt := range opts {
		opt(d)
	}

	if d.cli == nil {
		clientOpts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
		if cfg.Host != "" {
			clientOpts = append(clientOpts, client.WithHost(cfg.Host))
		}
		cli, err := client.NewClientWithOpts(clientOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create docker client: %w", err)
		}
		d.cli = cli
	}

	return d, nil
}

// CreateInstance creates and starts an idle container and prepares the work
// directory layout.
func (d *DockerDriver) CreateInstance(ctx context.Context) error {
	name := "codejudge-" + uuid.NewString()

	hostConfig := &container.HostConfig{
		Resources: container.Resources{
			Memory:   int64(d.config.MemoryMB) * 1024 * 1024,
			NanoCPUs: int64(d.config.CPUs * 1e9),
		},
	}
	if !d.config.NetworkEnabled {
		hostConfig.NetworkMode = "none"
	}

	resp, err := d.cli.ContainerCreate(ctx, &container.Config{
		Image:           d.config.Image,
		Cmd:             []string{"sleep", "infinity"},
		WorkingDir:      d.config.WorkDir,
		NetworkDisabled: !d.config.NetworkEnabled,
		Labels:          map[string]string{"app": "codejudge"},
	}, hostConfig, nil, nil, name)
	if err != nil {
		return fmt.Errorf("failed to create container: %w", err)
	}

	d.containerID = resp.ID

	if err := d.cli.ContainerStart(ctx, resp.ID, types.ContainerStartOptions{}); err != nil {
		d.removeContainer(resp.ID)
		return fmt.Errorf("failed to start container: %w", err)
	}

	_, stderr, exitCode, err := d.exec(ctx, []string{"mkdir", "-p", inputDir, outputDir})
	if err != nil || exitCode != 0 {
		d.removeContainer(resp.ID)
		if err == nil {
			err = fmt.Errorf("exit code %d: %s", exitCode, strings.TrimSpace(stderr))
		}
		return fmt.Errorf("failed to prepare work directory: %w", err)
	}

	d.logger.Debug("container started", zap.String("container", name), zap.String("image", d.config.Image))

	return nil
}

// CopyIn uploads data as a single-file archive.
func (d *DockerDriver) CopyIn(ctx context.Context, data []byte, remotePath string) error {
	if d.containerID == "" {
		return errors.New("container not created")
	}

	archive, err := archiveFile(path.Base(remotePath), data, FilePermission)
	if err != nil {
		return err
	}

	dir := path.Join(d.config.WorkDir, path.Dir(remotePath))
	if err := d.cli.CopyToContainer(ctx, d.containerID, dir, archive, types.CopyToContainerOptions{AllowOverwriteDirWithFile: true}); err != nil {
		return fmt.Errorf("copy to container: %w", err)
	}

	return nil
}

// Compile runs the build command in the work directory.
func (d *DockerDriver) Compile(ctx context.Context, command []string) (CompileResult, error) {
	stdout, stderr, exitCode, err := d.exec(ctx, command)
	if err != nil {
		return CompileResult{}, err
	}

	return CompileResult{
		OK:     exitCode == 0,
		Output: strings.TrimSpace(stdout + stderr),
	}, nil
}

// RunWithTimeout runs the program through runScript so that both the limit
// and the elapsed time are measured inside the container.
func (d *DockerDriver) RunWithTimeout(ctx context.Context, spec RunSpec, limit time.Duration) (RunResult, error) {
	ctx, cancel := context.WithTimeout(ctx, limit+runGrace)
	defer cancel()

	cmd := append([]string{
		"sh", "-c", runScript, "codejudge-run",
		spec.StdinPath, spec.StdoutPath, strconv.FormatFloat(limit.Seconds(), 'f', 3, 64),
	}, spec.Command...)

	stdout, stderr, _, err := d.exec(ctx, cmd)
	if err != nil {
		return RunResult{}, err
	}

	exitCode, elapsed, err := parseRunReport(stdout)
	if err != nil {
		return RunResult{}, err
	}

	if (exitCode == timeoutExitTerm || exitCode == timeoutExitKill) && elapsed >= limit {
		return RunResult{TimedOut: true, Elapsed: elapsed}, nil
	}

	return RunResult{ExitCode: exitCode, Stderr: stderr, Elapsed: elapsed}, nil
}

// CopyOut downloads a single file.
func (d *DockerDriver) CopyOut(ctx context.Context, remotePath string) ([]byte, error) {
	if d.containerID == "" {
		return nil, errors.New("container not created")
	}

	src := path.Join(d.config.WorkDir, remotePath)
	reader, _, err := d.cli.CopyFromContainer(ctx, d.containerID, src)
	if err != nil {
		return nil, fmt.Errorf("copy from container: %w", err)
	}
	defer reader.Close()

	return readArchivedFile(reader, src)
}

// DestroyInstance force-removes the container.
func (d *DockerDriver) DestroyInstance(ctx context.Context) error {
	if d.containerID == "" {
		return nil
	}

	id := d.containerID
	d.containerID = ""

	err := d.cli.ContainerRemove(ctx, id, types.ContainerRemoveOptions{Force: true, RemoveVolumes: true})
	if err != nil && !errdefs.IsNotFound(err) {
		return fmt.Errorf("failed to remove container: %w", err)
	}

	return nil
}

// Close releases the API client.
func (d *DockerDriver) Close() error {
	return d.cli.Close()
}

// exec runs cmd in the work directory and collects its demultiplexed output.
func (d *DockerDriver) exec(ctx context.Context, cmd []string) (stdout, stderr string, exitCode int, err error) {
	if d.containerID == "" {
		return "", "", 0, errors.New("container not created")
	}

	created, err := d.cli.ContainerExecCreate(ctx, d.containerID, types.ExecConfig{
		Cmd:          cmd,
		WorkingDir:   d.config.WorkDir,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return "", "", 0, fmt.Errorf("create exec: %w", err)
	}

	attach, err := d.cli.ContainerExecAttach(ctx, created.ID, types.ExecStartCheck{})
	if err != nil {
		return "", "", 0, fmt.Errorf("attach exec: %w", err)
	}
	defer attach.Close()

	// Closing the hijacked connection unblocks the stream copy on cancellation.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			attach.Close()
		case <-done:
		}
	}()

	var stdoutBuf, stderrBuf bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdoutBuf, &stderrBuf, attach.Reader); err != nil {
		if ctx.Err() != nil {
			return "", "", 0, fmt.Errorf("read exec output: %w", ctx.Err())
		}
		return "", "", 0, fmt.Errorf("read exec output: %w", err)
	}

	for {
		inspect, err := d.cli.ContainerExecInspect(ctx, created.ID)
		if err != nil {
			return "", "", 0, fmt.Errorf("inspect exec: %w", err)
		}
		if !inspect.Running {
			return stdoutBuf.String(), stderrBuf.String(), inspect.ExitCode, nil
		}

		select {
		case <-ctx.Done():
			return "", "", 0, fmt.Errorf("inspect exec: %w", ctx.Err())
		case <-time.After(execPollInterval):
		}
	}
}

func (d *DockerDriver) removeContainer(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), runGrace)
	defer cancel()

	if err := d.cli.ContainerRemove(ctx, id, types.ContainerRemoveOptions{Force: true}); err != nil {
		d.logger.Error("failed to remove container", zap.String("container", id), zap.Error(err))
	}
	d.containerID = ""
}

// parseRunReport reads the "code start end" line printed by runScript.
func parseRunReport(stdout string) (exitCode int, elapsed time.Duration, err error) {
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	fields := strings.Fields(lines[len(lines)-1])
	if len(fields) != 3 {
		return 0, 0, fmt.Errorf("malformed run report: %q", stdout)
	}

	exitCode, err = strconv.Atoi(fields[0])
	if err != nil {
		return 0, 0, fmt.Errorf("malformed exit code in run report: %w", err)
	}

	start, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed start time in run report: %w", err)
	}

	end, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed end time in run report: %w", err)
	}

	return exitCode, time.Duration(end - start), nil
}
