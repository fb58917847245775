// Package logger provides structured logging capabilities.
//
// The logger package builds the application's zap logger from the logging
// configuration. Development mode writes colourised console output, production
// mode writes JSON with ISO-8601 timestamps. Logs default to stderr.
//
// Usage:
//
//	log, err := logger.New("production", "info")
//	if err != nil {
//	    panic(err)
//	}
//	defer log.Sync()
package logger
