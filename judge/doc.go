// Package judge runs a program against a test suite in a fresh sandbox.
//
// Judge.Run creates a driver from the configured factory, starts a sandbox
// session, binds the program and hands the tests to a pipeline. The session
// is stopped exactly once however the run ends. Suites can be built in code
// or loaded from a YAML manifest with LoadSuite.
//
// Usage:
//
//	j, err := judge.New(cfg, logger, factory, languages)
//	suite, err := judge.LoadSuite("tests/suite.yaml")
//	report, err := j.Run(ctx, suite.Request(source))
//	if !report.Passed() {
//	    os.Exit(1)
//	}
package judge
