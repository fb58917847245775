// Package sandbox runs untrusted programs inside an isolated, reusable
// instance.
//
// A Session owns one instance for its whole lifetime: Start creates it,
// BindCode places (and for compiled languages builds) the program, every
// StageInput copies a test input into its own slot and Execute runs the
// program on a staged input under a wall-clock limit. Captured outputs are
// fetched with RetrieveOutputText or saved with PersistOutput, and Stop
// destroys the instance.
//
// Backends implement the Driver interface. DockerDriver talks to the Docker
// Engine API (or Podman's compatible socket) and keeps one idle container per
// instance; LocalDriver uses a temporary directory on the host and is meant
// for development only.
//
// Usage:
//
//	session := sandbox.NewSession(driver, languages, sandbox.WithSessionLogger(logger))
//	if err := session.Start(ctx); err != nil {
//	    return err
//	}
//	defer session.Stop(ctx)
//	err := session.BindCode(ctx, sandbox.Code{Source: src, Language: "cpp"})
//	input, err := session.StageInput(ctx, []byte("5\n"))
//	outcome, err := session.Execute(ctx, input, 2*time.Second)
package sandbox
