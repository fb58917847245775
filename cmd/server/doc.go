// Package main is the entry point for the codejudge MCP server.
//
// codejudge compiles a submitted program once inside an isolated sandbox
// (a Docker or Podman container, or a local directory in development) and
// runs it against a list of test cases, overlapping input transfer with
// execution while keeping a single program run in flight. Each test comes
// back as success, wrong answer with a line diff, runtime error or timeout.
//
// The application uses Uber's fx framework for dependency injection and
// lifecycle management, with zap for structured logging and viper for
// configuration.
package main
