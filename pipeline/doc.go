// Package pipeline runs an ordered set of test cases through one sandbox
// session.
//
// Two drivers walk the tests in ordinal order. The stage driver copies inputs
// into the sandbox one after another without waiting for execution, while
// the execute driver runs a test only once it is staged and the previous
// execution has returned, so at most one execution is ever in flight. They
// communicate through one-shot futures owned by each test. Finalization
// (persisting outputs and classifying them against expected outputs) runs per
// test as soon as its execution completes, and results are placed by ordinal.
//
// Usage:
//
//	p := pipeline.New(session, grading.NewClassifier(diff.ModePositional), logger, pipeline.Options{
//	    TimeLimit: 2 * time.Second,
//	    Observer:  pipeline.NewLogObserver(logger),
//	})
//	results, err := p.Run(ctx, tests)
package pipeline
