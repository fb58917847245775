package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/isdmx/codejudge/config"
	"github.com/isdmx/codejudge/diff"
	"github.com/isdmx/codejudge/grading"
	"github.com/isdmx/codejudge/judge"
	"github.com/isdmx/codejudge/pipeline"
	"github.com/isdmx/codejudge/report"
)

// Runner runs judge requests.
type Runner interface {
	Run(ctx context.Context, req judge.Request) (judge.Report, error)
	Languages() []string
}

// MCPServer represents the MCP server
type MCPServer struct {
	config    *config.Config
	logger    *zap.Logger
	runner    Runner
	mcpServer *server.MCPServer
}

// New creates a new MCPServer
func New(cfg *config.Config, logger *zap.Logger, runner Runner) (*MCPServer, error) {
	s := &MCPServer{
		config: cfg,
		logger: logger,
		runner: runner,
	}

	logger.Info("configuration loaded",
		zap.String("server.transport", cfg.Server.Transport),
		zap.Int("server.http_port", cfg.Server.HTTPPort),
		zap.String("sandbox.backend", cfg.Sandbox.Backend),
		zap.String("sandbox.image", cfg.Sandbox.Image),
		zap.Int("sandbox.memory_mb", cfg.Sandbox.MemoryMB),
		zap.Float64("sandbox.cpus", cfg.Sandbox.CPUs),
		zap.Bool("sandbox.network_enabled", cfg.Sandbox.NetworkEnabled),
		zap.Float64("testing.time_limit_sec", cfg.Testing.TimeLimitSec),
		zap.String("testing.diff_mode", cfg.Testing.DiffMode),
		zap.Strings("languages", runner.Languages()),
	)

	s.mcpServer = server.NewMCPServer("codejudge", "Runs programs against test cases in a sandbox")

	s.registerRunTestsTool()
	s.registerListLanguagesTool()

	return s, nil
}

type runTestsArgs struct {
	Code            string         `json:"code"`
	Language        string         `json:"language"`
	Tests           []runTestsCase `json:"tests"`
	TimeLimitSec    float64        `json:"time_limit_sec"`
	DiffMode        string         `json:"diff_mode"`
	MaxDisplayLines int            `json:"max_display_lines"`
}

type runTestsCase struct {
	Name     string  `json:"name"`
	Input    string  `json:"input"`
	Expected *string `json:"expected"`
}

type runTestsResult struct {
	Language string            `json:"language"`
	Passed   bool              `json:"passed"`
	Results  []runTestsOutcome `json:"results"`
}

type runTestsOutcome struct {
	Name string `json:"name"`
	grading.ExecutionResult
}

func (s *MCPServer) registerRunTestsTool() {
	tool := mcp.NewTool("run_tests",
		mcp.WithDescription("Compile a program once and run it against every test case in an isolated sandbox. "+
			"Each test reports success, wrong-answer (with a line diff), runtime-error or timeout."),
		mcp.WithString("code",
			mcp.Required(),
			mcp.Description("Program source code"),
		),
		mcp.WithString("language",
			mcp.Required(),
			mcp.Description("Language name"),
			mcp.Enum(s.runner.Languages()...),
		),
		mcp.WithArray("tests",
			mcp.Required(),
			mcp.Description("Test cases, run in order"),
			mcp.Items(map[string]any{
				"type": "object",
				"properties": map[string]any{
					"name":     map[string]any{"type": "string", "description": "Test name"},
					"input":    map[string]any{"type": "string", "description": "Standard input"},
					"expected": map[string]any{"type": "string", "description": "Expected standard output; omit to only run"},
				},
				"required": []string{"input"},
			}),
		),
		mcp.WithNumber("time_limit_sec",
			mcp.Description("Wall-clock limit per test in seconds"),
		),
		mcp.WithString("diff_mode",
			mcp.Description("How outputs are compared line by line"),
			mcp.Enum("positional", "alignment"),
		),
		mcp.WithNumber("max_display_lines",
			mcp.Description("Longest output still shown as a line diff in the text report"),
		),
	)

	s.mcpServer.AddTool(tool, s.handleRunTests)
}

func (s *MCPServer) registerListLanguagesTool() {
	tool := mcp.NewTool("list_languages",
		mcp.WithDescription("List the languages programs may be written in"),
	)

	s.mcpServer.AddTool(tool, s.handleListLanguages)
}

// handleRunTests handles the run_tests tool
func (s *MCPServer) handleRunTests(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args runTestsArgs
	if err := request.BindArguments(&args); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}

	if strings.TrimSpace(args.Code) == "" {
		return nil, errors.New("code parameter is required")
	}
	if args.Language == "" {
		return nil, errors.New("language parameter is required")
	}
	if len(args.Tests) == 0 {
		return nil, errors.New("tests parameter must contain at least one test")
	}
	if args.TimeLimitSec < 0 {
		return nil, fmt.Errorf("time_limit_sec must be positive, got: %g", args.TimeLimitSec)
	}
	if args.MaxDisplayLines < 0 {
		return nil, fmt.Errorf("max_display_lines must be positive, got: %d", args.MaxDisplayLines)
	}

	logger := s.logger.With(zap.String("language", args.Language))

	req := judge.Request{
		Code:      []byte(args.Code),
		Language:  args.Language,
		Tests:     make([]pipeline.TestCase, len(args.Tests)),
		TimeLimit: time.Duration(args.TimeLimitSec * float64(time.Second)),
		DiffMode:  args.DiffMode,
		Render:    diff.RenderOptions{MaxDisplayLines: args.MaxDisplayLines},
		Observer:  pipeline.NewLogObserver(logger),
	}
	for i, tc := range args.Tests {
		name := tc.Name
		if name == "" {
			name = fmt.Sprintf("test-%d", i+1)
		}
		req.Tests[i] = pipeline.TestCase{
			ID:       i,
			Name:     name,
			Input:    []byte(tc.Input),
			Expected: tc.Expected,
		}
	}

	logger.Info("test run requested", zap.Int("tests", len(req.Tests)))

	rep, err := s.runner.Run(ctx, req)
	if err != nil {
		logger.Warn("test run failed", zap.Error(err))
		return &mcp.CallToolResult{
			Content: []mcp.Content{
				mcp.TextContent{
					Type: "text",
					Text: fmt.Sprintf("Run failed: %v", err),
				},
			},
			IsError: true,
		}, nil
	}

	result := runTestsResult{
		Language: rep.Language,
		Passed:   rep.Passed(),
		Results:  make([]runTestsOutcome, len(rep.Results)),
	}
	for i, res := range rep.Results {
		result.Results[i] = runTestsOutcome{Name: res.Test.Name, ExecutionResult: res.ExecutionResult}
	}

	resultJSON, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}

	var text bytes.Buffer
	if err := report.Write(&text, rep, report.Options{NoColor: true}); err != nil {
		return nil, fmt.Errorf("failed to render report: %w", err)
	}

	s.logger.Info("test run completed",
		zap.String("language", rep.Language),
		zap.Int("passed", rep.Count(grading.StatusSuccess)),
		zap.Int("tests", len(rep.Results)),
		zap.Duration("duration", rep.Duration))

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{
				Type: "text",
				Text: string(resultJSON),
			},
			mcp.TextContent{
				Type: "text",
				Text: text.String(),
			},
		},
	}, nil
}

func (s *MCPServer) handleListLanguages(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	languages, err := json.Marshal(s.runner.Languages())
	if err != nil {
		return nil, fmt.Errorf("failed to encode languages: %w", err)
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{
				Type: "text",
				Text: string(languages),
			},
		},
	}, nil
}

// ServeStdio starts the server on stdio
func (s *MCPServer) ServeStdio() error {
	s.logger.Info("starting MCP server on stdio")
	return server.ServeStdio(s.mcpServer)
}

// ServeHTTP starts the server on HTTP
func (s *MCPServer) ServeHTTP() error {
	port := s.config.Server.HTTPPort
	s.logger.Info("starting MCP server on HTTP", zap.Int("port", port))

	httpServer := server.NewStreamableHTTPServer(s.mcpServer)
	return httpServer.Start(fmt.Sprintf(":%d", port))
}

// GetMCPServer returns the underlying MCP server for fx
func (s *MCPServer) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}
