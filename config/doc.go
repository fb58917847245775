// Package config provides application configuration management.
//
// The config package loads and validates the application's configuration
// from YAML files and CODEJUDGE_* environment variables. It covers server
// transport settings, the sandbox backend, default test-run limits, logging
// and the table of supported languages.
//
// Usage:
//
//	cfg, err := config.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("Time limit: %s\n", cfg.TimeLimit())
package config
