package pipeline

import "context"

// future is a value that becomes available exactly once.
type future[T any] struct {
	done  chan struct{}
	value T
}

func newFuture[T any]() *future[T] {
	return &future[T]{done: make(chan struct{})}
}

// resolve publishes v. It must be called at most once.
func (f *future[T]) resolve(v T) {
	f.value = v
	close(f.done)
}

// wait blocks until the value is published or ctx is done.
func (f *future[T]) wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
