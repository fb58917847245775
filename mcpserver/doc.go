// Package mcpserver provides the Model Context Protocol (MCP) server implementation.
//
// The server exposes two tools through the mark3labs/mcp-go library:
// run_tests, which compiles a program once and runs it against a list of
// test cases in a sandbox, and list_languages. run_tests answers with a JSON
// report (status, elapsed time, diff chunks and runtime diagnostics per test)
// followed by the same report rendered as plain text.
//
// The server supports both stdio and HTTP transports as configured by the
// application configuration.
//
// Usage:
//
//	server, err := mcpserver.New(config, logger, judge)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	err = server.ServeStdio() // or server.ServeHTTP()
package mcpserver
