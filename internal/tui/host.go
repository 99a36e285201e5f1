// Package tui hosts mirrored terminals as tabs in a bubbletea program.
package tui

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/antonkrylov/termbridge/internal/mirror"
	"github.com/antonkrylov/termbridge/internal/pane"
)

type Options struct {
	RecordDir string
	// FlushInterval makes transcripts readable while mirroring runs.
	FlushInterval time.Duration
	ForwardInput  bool
	Logger        *slog.Logger

	// Input and Output default to the process's terminal.
	Input  io.Reader
	Output io.Writer
}

// Host owns the bubbletea program. Bridge tasks are handed to the program
// as messages, so every pane is touched only from its event loop. A task
// the loop never consumed, because it was stopping, runs on the executor
// worker once the loop is gone.
type Host struct {
	program  *tea.Program
	model    *model
	executor *mirror.Executor
	factory  *pane.Factory
	logger   *slog.Logger

	finished   chan struct{}
	finishOnce sync.Once
}

func New(ctx context.Context, opts Options) *Host {
	return newHost(ctx, opts)
}

func newHost(ctx context.Context, opts Options, extra ...tea.ProgramOption) *Host {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	m := newModel(opts.Logger, opts.ForwardInput)
	h := &Host{model: m, logger: opts.Logger, finished: make(chan struct{})}

	popts := []tea.ProgramOption{tea.WithAltScreen(), tea.WithContext(ctx)}
	if opts.Input != nil {
		popts = append(popts, tea.WithInput(opts.Input))
	}
	if opts.Output != nil {
		popts = append(popts, tea.WithOutput(opts.Output))
	}
	h.program = tea.NewProgram(m, append(popts, extra...)...)
	m.send = h.program.Send

	h.executor = mirror.NewHandoffExecutor(opts.Logger, h.handoff)
	h.factory = &pane.Factory{
		RecordDir:     opts.RecordDir,
		FlushInterval: opts.FlushInterval,
		OnCreate:      m.addPane,
		OnClose:       m.removePane,
		Logger:        opts.Logger,
	}
	return h
}

// handoff runs on the executor worker. It returns only once task has run,
// either inside Update or, after the event loop finished, right here.
// Waiting keeps a later task from overtaking one still in flight.
func (h *Host) handoff(task func()) {
	msg := newTaskMsg(task)
	select {
	case <-h.finished:
	default:
		h.program.Send(msg)
		select {
		case <-msg.done:
			return
		case <-h.finished:
		}
	}
	if msg.claim() {
		mirror.RunTask(h.logger, task)
		return
	}
	<-msg.done
}

func (h *Host) finish() { h.finishOnce.Do(func() { close(h.finished) }) }

func (h *Host) Dispatcher() mirror.Dispatcher { return h.executor }

func (h *Host) Sessions() mirror.SessionFactory { return h.factory }

// OnUserClose is called, on the event loop, when the user closes a tab.
// It must be set before Run.
func (h *Host) OnUserClose(fn func(alias string)) { h.model.onUserClose = fn }

// Run blocks until the user quits or ctx is done.
func (h *Host) Run() error {
	defer h.finish()
	_, err := h.program.Run()
	return err
}

// Quit asks the event loop to stop.
func (h *Host) Quit() { h.program.Quit() }

// Close drains pending bridge tasks and closes any pane still open, which
// finalizes their transcripts. Call it after Run returns and the bridge
// has shut down.
func (h *Host) Close() {
	h.finish()
	h.executor.Close()
	tabs := append([]*tab(nil), h.model.tabs...)
	for _, t := range tabs {
		if err := t.pane.Close(); err != nil {
			h.logger.Warn("close pane", "alias", t.pane.Alias(), "err", err)
		}
	}
}
