package sandbox

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/isdmx/codejudge/config"
)

// DriverFactory produces a fresh driver for every session.
type DriverFactory func() (Driver, error)

// NewDriverFactory selects the backend configured in cfg.
func NewDriverFactory(logger *zap.Logger, cfg *config.Config) (DriverFactory, error) {
	dockerConfig := DockerConfig{
		Image:          cfg.Sandbox.Image,
		WorkDir:        cfg.Sandbox.WorkDir,
		MemoryMB:       cfg.Sandbox.MemoryMB,
		CPUs:           cfg.Sandbox.CPUs,
		NetworkEnabled: cfg.Sandbox.NetworkEnabled,
	}

	switch cfg.Sandbox.Backend {
	case "docker":
		dockerConfig.Host = cfg.Sandbox.DockerHost
	case "podman":
		dockerConfig.Host = cfg.Sandbox.PodmanHost
	case "local":
		if !cfg.Sandbox.EnableLocalBackend {
			return nil, fmt.Errorf("local backend is disabled")
		}
		return func() (Driver, error) {
			return NewLocalDriver(logger), nil
		}, nil
	default:
		return nil, fmt.Errorf("unsupported backend: %s", cfg.Sandbox.Backend)
	}

	backendLogger := logger.With(zap.String("backend", cfg.Sandbox.Backend))
	return func() (Driver, error) {
		driver, err := NewDockerDriver(backendLogger, dockerConfig)
		if err != nil {
			return nil, err
		}
		return driver, nil
	}, nil
}
