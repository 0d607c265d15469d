// Package cleanup provides the run's guaranteed finalizer: a set of teardown
// tasks registered up front and executed exactly once on every exit path.
package cleanup

import (
	"errors"
	"fmt"
	"sync"

	"e2ectl/pkg/logging"
)

// task is one named teardown action.
type task struct {
	name string
	run  func() error
}

// Guard collects teardown tasks and runs them exactly once, last registered
// first. A task failure never stops the remaining tasks.
type Guard struct {
	mu    sync.Mutex
	once  sync.Once
	ran   bool
	tasks []task
}

// NewGuard returns an empty Guard.
func NewGuard() *Guard {
	return &Guard{}
}

// Register adds a teardown task. Tasks registered later run earlier, so
// resources registered in acquisition order are released in reverse.
// Registering after Run is ignored.
func (g *Guard) Register(name string, fn func() error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.ran {
		logging.Warn("Cleanup", "Ignoring task %q registered after cleanup ran", name)
		return
	}
	g.tasks = append(g.tasks, task{name: name, run: fn})
}

// Run executes every registered task in LIFO order. Each task runs even when
// earlier ones fail; failures are logged and joined into the returned error.
// Only the first call does anything.
func (g *Guard) Run() error {
	var err error
	g.once.Do(func() {
		g.mu.Lock()
		g.ran = true
		tasks := g.tasks
		g.tasks = nil
		g.mu.Unlock()

		var errs []error
		for i := len(tasks) - 1; i >= 0; i-- {
			t := tasks[i]
			logging.Info("Cleanup", "Running cleanup task: %s", t.name)
			if taskErr := runTask(t); taskErr != nil {
				logging.Error("Cleanup", taskErr, "Cleanup task %q failed", t.name)
				errs = append(errs, fmt.Errorf("%s: %w", t.name, taskErr))
			}
		}
		err = errors.Join(errs...)
	})
	return err
}

// runTask converts a panicking task into a plain error so one bad task can
// never take down the rest of the teardown.
func runTask(t task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return t.run()
}
