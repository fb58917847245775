package pipeline

import (
	"fmt"

	"go.uber.org/zap"
)

// Phase is a point in the life of a test that observers are told about.
type Phase int

const (
	PhaseStaged Phase = iota
	PhaseExecuted
	PhaseFinalized
)

func (p Phase) String() string {
	switch p {
	case PhaseStaged:
		return "staged"
	case PhaseExecuted:
		return "executed"
	case PhaseFinalized:
		return "finalized"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// Event reports that a test reached a phase.
type Event struct {
	Phase Phase
	Index int
	Name  string
	Total int
}

// Observer receives progress events. Observe is called from a single
// goroutine, in the order the events happened, and never blocks the run.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) Observe(e Event) {
	f(e)
}

// LogObserver reports progress to a zap logger.
type LogObserver struct {
	logger *zap.Logger
}

// NewLogObserver creates an Observer that logs every event at debug level
// and finalized tests at info level.
func NewLogObserver(logger *zap.Logger) *LogObserver {
	return &LogObserver{logger: logger}
}

func (o *LogObserver) Observe(e Event) {
	fields := []zap.Field{
		zap.String("test", e.Name),
		zap.Int("index", e.Index),
		zap.Int("total", e.Total),
	}

	if e.Phase == PhaseFinalized {
		o.logger.Info("test finished", fields...)
		return
	}
	o.logger.Debug("test "+e.Phase.String(), fields...)
}

// notifier forwards events to an observer from its own goroutine. The queue
// holds every event of a run, so sending never blocks.
type notifier struct {
	events chan Event
	done   chan struct{}
}

func startNotifier(observer Observer, capacity int) *notifier {
	n := &notifier{
		events: make(chan Event, capacity),
		done:   make(chan struct{}),
	}

	go func() {
		defer close(n.done)
		for e := range n.events {
			if observer != nil {
				observer.Observe(e)
			}
		}
	}()

	return n
}

func (n *notifier) notify(e Event) {
	select {
	case n.events <- e:
	default:
	}
}

// close stops accepting events and waits until the observer has seen all of
// the queued ones.
func (n *notifier) close() {
	close(n.events)
	<-n.done
}
