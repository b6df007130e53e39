package engine

import (
	"github.com/STPDevteam/awesome-server/pkg/events"
)

// Result is the terminal outcome of one run.
type Result struct {
	Success   bool
	Completed int
	Failed    int
	Summary   string
}

// Run is a handle to one in-flight execution. The caller consumes Events()
// until close; Wait() blocks until the run is finished and returns the
// terminal result.
type Run struct {
	stream *events.Stream
	done   chan struct{}
	result Result
}

func newRun() *Run {
	return &Run{
		stream: events.NewStream(),
		done:   make(chan struct{}),
	}
}

// Events returns the run's ordered event stream. The channel closes after
// the terminal event.
func (r *Run) Events() <-chan events.Event {
	return r.stream.Events()
}

// Wait blocks until the run finishes. The event stream must be consumed
// concurrently (or drained) or the run blocks on emission.
func (r *Run) Wait() Result {
	<-r.done
	return r.result
}

// finish records the result and closes the stream. Called exactly once by
// the producing goroutine.
func (r *Run) finish(result Result) {
	r.result = result
	r.stream.Close()
	close(r.done)
}
