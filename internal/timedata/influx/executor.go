package influx

import (
	"fmt"

	"golang.org/x/sync/errgroup"
)

// executor is the shared, bounded worker pool that runs flush tasks.
//
// It has a fixed worker count and a fixed-capacity task queue. Submission
// never blocks: when the queue is full the task is rejected and the caller
// falls back to its requeue path. This keeps backpressure local to the
// merge buffers instead of stalling producer goroutines.
type executor struct {
	tasks chan func()
	group errgroup.Group
}

// newExecutor starts a pool with the given worker count and queue capacity.
func newExecutor(workers, queueCapacity int) *executor {
	e := &executor{
		tasks: make(chan func(), queueCapacity),
	}
	for i := 0; i < workers; i++ {
		e.group.Go(func() error {
			for task := range e.tasks {
				task()
			}
			return nil
		})
	}
	return e
}

// trySubmit queues a task for execution. It returns false when the queue
// is full. Must not be called after shutdown.
func (e *executor) trySubmit(task func()) bool {
	select {
	case e.tasks <- task:
		return true
	default:
		return false
	}
}

// shutdown stops accepting tasks, drains the queue and waits for all
// workers to finish.
func (e *executor) shutdown() {
	close(e.tasks)
	_ = e.group.Wait()
}

// debugString reports the current queue utilisation.
func (e *executor) debugString() string {
	return fmt.Sprintf("queue=%d/%d", len(e.tasks), cap(e.tasks))
}
