package mirror

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"
	"sync"
)

// ErrDispatcherClosed is returned by Dispatch after Close.
var ErrDispatcherClosed = errors.New("mirror: dispatcher closed")

// Dispatcher runs tasks one at a time, in submission order, on the
// context that owns the host's sessions. Dispatch must not wait for the
// task to run: tasks may dispatch further tasks.
type Dispatcher interface {
	Dispatch(task func()) error
}

// Executor is a Dispatcher backed by a single worker goroutine and an
// unbounded FIFO queue, so stream receivers never block on the host.
type Executor struct {
	logger  *slog.Logger
	handoff func(task func())

	mu     sync.Mutex
	queue  []func()
	closed bool
	wake   chan struct{}
	done   chan struct{}
}

// NewExecutor runs tasks on its own worker goroutine.
func NewExecutor(logger *slog.Logger) *Executor {
	return NewHandoffExecutor(logger, nil)
}

// NewHandoffExecutor feeds tasks, in order, to handoff instead of running
// them itself. Hosts with their own event loop use it to run tasks there;
// handoff must preserve the order it is called in.
func NewHandoffExecutor(logger *slog.Logger, handoff func(task func())) *Executor {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	e := &Executor{
		logger:  logger,
		handoff: handoff,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go e.run()
	return e
}

func (e *Executor) Dispatch(task func()) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrDispatcherClosed
	}
	e.queue = append(e.queue, task)
	e.mu.Unlock()
	e.signal()
	return nil
}

// Flush waits until every task dispatched before the call has run. With a
// handoff it only waits until they were handed off.
func (e *Executor) Flush() error {
	done := make(chan struct{})
	if err := e.Dispatch(func() { close(done) }); err != nil {
		return err
	}
	<-done
	return nil
}

// Close stops accepting tasks, runs what is already queued and waits for
// the worker to exit.
func (e *Executor) Close() {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	e.signal()
	<-e.done
}

func (e *Executor) signal() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

func (e *Executor) run() {
	defer close(e.done)
	for {
		e.mu.Lock()
		for len(e.queue) == 0 {
			if e.closed {
				e.mu.Unlock()
				return
			}
			e.mu.Unlock()
			<-e.wake
			e.mu.Lock()
		}
		batch := e.queue
		e.queue = nil
		e.mu.Unlock()

		for _, task := range batch {
			if e.handoff != nil {
				e.handoff(task)
				continue
			}
			RunTask(e.logger, task)
		}
	}
}

// RunTask runs task and logs instead of propagating a panic.
func RunTask(logger *slog.Logger, task func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("dispatched task panicked", "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
		}
	}()
	task()
}
