package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig              `mapstructure:"server"`
	Sandbox   SandboxConfig             `mapstructure:"sandbox"`
	Testing   TestingConfig             `mapstructure:"testing"`
	Logging   LoggingConfig             `mapstructure:"logging"`
	Languages map[string]LanguageConfig `mapstructure:"languages"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Transport string `mapstructure:"transport"`
	HTTPPort  int    `mapstructure:"http_port"`
}

// SandboxConfig holds sandbox configuration
type SandboxConfig struct {
	Backend            string  `mapstructure:"backend"`
	Image              string  `mapstructure:"image"`
	DockerHost         string  `mapstructure:"docker_host"`
	PodmanHost         string  `mapstructure:"podman_host"`
	WorkDir            string  `mapstructure:"workdir"`
	MemoryMB           int     `mapstructure:"memory_mb"`
	CPUs               float64 `mapstructure:"cpus"`
	NetworkEnabled     bool    `mapstructure:"network_enabled"`
	EnableLocalBackend bool    `mapstructure:"enable_local_backend"`
}

// TestingConfig holds the defaults applied to every test run
type TestingConfig struct {
	TimeLimitSec          float64 `mapstructure:"time_limit_sec"`
	DiffMode              string  `mapstructure:"diff_mode"`
	MaxDisplayLines       int     `mapstructure:"max_display_lines"`
	UnchangedRunThreshold int     `mapstructure:"unchanged_run_threshold"`
	ContextLines          int     `mapstructure:"context_lines"`
}

// LoggingConfig holds logger configuration
type LoggingConfig struct {
	Mode        string   `mapstructure:"mode"`
	Level       string   `mapstructure:"level"`
	OutputPaths []string `mapstructure:"output_paths"`
}

// LanguageConfig describes how programs of one language are built and run.
// Commands run inside the sandbox work directory.
type LanguageConfig struct {
	Kind       string   `mapstructure:"kind"`
	Extensions []string `mapstructure:"extensions"`
	SourceFile string   `mapstructure:"source_file"`
	CompileCmd string   `mapstructure:"compile_cmd"`
	RunCmd     string   `mapstructure:"run_cmd"`
}

// New loads and validates the application configuration
func New() (*Config, error) {
	return Load("")
}

// Load reads configuration from file, or from config.yaml in the usual
// locations when file is empty. Environment variables prefixed with
// CODEJUDGE_ override file values.
func Load(file string) (*Config, error) {
	v := viper.New()
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix("CODEJUDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// If config file not found, continue with defaults
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation error: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.transport", "stdio")
	v.SetDefault("server.http_port", 8080)

	v.SetDefault("sandbox.backend", "docker")
	v.SetDefault("sandbox.image", "dominikkorsa/runner:1.0.0")
	v.SetDefault("sandbox.podman_host", "unix:///run/podman/podman.sock")
	v.SetDefault("sandbox.workdir", "/judge")
	v.SetDefault("sandbox.memory_mb", 512)
	v.SetDefault("sandbox.cpus", 1.0)
	v.SetDefault("sandbox.network_enabled", false)
	v.SetDefault("sandbox.enable_local_backend", false)

	v.SetDefault("testing.time_limit_sec", 2.0)
	v.SetDefault("testing.diff_mode", "positional")
	v.SetDefault("testing.max_display_lines", 500)
	v.SetDefault("testing.unchanged_run_threshold", 5)
	v.SetDefault("testing.context_lines", 2)

	v.SetDefault("logging.mode", "production")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.output_paths", []string{"stderr"})

	v.SetDefault("languages.cpp.kind", "compiled")
	v.SetDefault("languages.cpp.extensions", []string{".cpp", ".cc", ".cxx"})
	v.SetDefault("languages.cpp.source_file", "code.cpp")
	v.SetDefault("languages.cpp.compile_cmd", "g++ -std=c++17 -O2 -o code code.cpp")
	v.SetDefault("languages.cpp.run_cmd", "./code")

	v.SetDefault("languages.c.kind", "compiled")
	v.SetDefault("languages.c.extensions", []string{".c"})
	v.SetDefault("languages.c.source_file", "code.c")
	v.SetDefault("languages.c.compile_cmd", "gcc -std=c11 -O2 -o code code.c -lm")
	v.SetDefault("languages.c.run_cmd", "./code")

	v.SetDefault("languages.python.kind", "interpreted")
	v.SetDefault("languages.python.extensions", []string{".py"})
	v.SetDefault("languages.python.source_file", "code.py")
	v.SetDefault("languages.python.run_cmd", "python3 code.py")
}

// validate ensures the configuration is valid
//
//nolint:gocyclo // flat list of independent checks
func (c *Config) validate() error {
	if c.Server.Transport != "stdio" && c.Server.Transport != "http" {
		return fmt.Errorf("invalid server.transport: %s, must be 'stdio' or 'http'", c.Server.Transport)
	}

	if c.Server.Transport == "http" && (c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535) {
		return fmt.Errorf("server.http_port must be between 1 and 65535, got: %d", c.Server.HTTPPort)
	}

	supportedBackends := map[string]bool{
		"docker": true,
		"podman": true,
		"local":  c.Sandbox.EnableLocalBackend, // local only enabled if specifically allowed
	}

	if !supportedBackends[c.Sandbox.Backend] {
		return fmt.Errorf("unsupported sandbox.backend: %s", c.Sandbox.Backend)
	}

	if c.Sandbox.Backend != "local" && c.Sandbox.Image == "" {
		return fmt.Errorf("sandbox.image is required for the %s backend", c.Sandbox.Backend)
	}

	if c.Sandbox.MemoryMB <= 0 {
		return fmt.Errorf("sandbox.memory_mb must be positive, got: %d", c.Sandbox.MemoryMB)
	}

	if c.Sandbox.CPUs < 0 {
		return fmt.Errorf("sandbox.cpus must not be negative, got: %g", c.Sandbox.CPUs)
	}

	if c.Testing.TimeLimitSec <= 0 {
		return fmt.Errorf("testing.time_limit_sec must be positive, got: %g", c.Testing.TimeLimitSec)
	}

	if c.Testing.DiffMode != "positional" && c.Testing.DiffMode != "alignment" {
		return fmt.Errorf("invalid testing.diff_mode: %s, must be 'positional' or 'alignment'", c.Testing.DiffMode)
	}

	if c.Testing.MaxDisplayLines <= 0 {
		return fmt.Errorf("testing.max_display_lines must be positive, got: %d", c.Testing.MaxDisplayLines)
	}

	if c.Testing.UnchangedRunThreshold < 0 || c.Testing.ContextLines < 0 {
		return fmt.Errorf("testing.unchanged_run_threshold and testing.context_lines must not be negative")
	}

	if len(c.Languages) == 0 {
		return fmt.Errorf("at least one language must be configured")
	}

	for name, lang := range c.Languages {
		if err := lang.validate(); err != nil {
			return fmt.Errorf("languages.%s: %w", name, err)
		}
	}

	return nil
}

func (l LanguageConfig) validate() error {
	switch l.Kind {
	case "compiled":
		if l.CompileCmd == "" {
			return fmt.Errorf("compile_cmd is required for compiled languages")
		}
	case "interpreted":
	default:
		return fmt.Errorf("invalid kind: %s, must be 'compiled' or 'interpreted'", l.Kind)
	}

	if l.SourceFile == "" {
		return fmt.Errorf("source_file is required")
	}

	if l.RunCmd == "" {
		return fmt.Errorf("run_cmd is required")
	}

	return nil
}

// TimeLimit returns the default per-test time limit as a duration
func (c *Config) TimeLimit() time.Duration {
	return time.Duration(c.Testing.TimeLimitSec * float64(time.Second))
}
