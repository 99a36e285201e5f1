package mirror

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/antonkrylov/termbridge/internal/supervisor"
)

// State is the lifecycle of one mirrored terminal.
type State int32

const (
	StateCreated State = iota
	StateStreaming
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateStreaming:
		return "streaming"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

type closeReason string

const (
	reasonExited       closeReason = "exited"
	reasonCompleted    closeReason = "stream completed"
	reasonStreamError  closeReason = "stream error"
	reasonListenFailed closeReason = "listen failed"
	reasonCreateFailed closeReason = "session create failed"
	reasonWriteFailed  closeReason = "write failed"
	reasonCancelled    closeReason = "cancelled"
	reasonShutdown     closeReason = "shutdown"
)

// link ties one remote terminal to its local session.
type link struct {
	alias    string
	terminal *supervisor.Terminal

	ctx    context.Context
	cancel context.CancelFunc

	state     atomic.Int32
	closeOnce sync.Once

	// Owned by the dispatcher.
	session Session
	input   io.Reader
	title   string
	closed  bool
}

func newLink(parent context.Context, t *supervisor.Terminal) *link {
	ctx, cancel := context.WithCancel(parent)
	l := &link{
		alias:    t.Alias,
		terminal: t,
		ctx:      ctx,
		cancel:   cancel,
	}
	l.state.Store(int32(StateCreated))
	return l
}

func (l *link) State() State { return State(l.state.Load()) }

// create runs on the dispatcher.
func (l *link) create(factory SessionFactory, forwardInput bool) error {
	if l.closed {
		return context.Canceled
	}
	spec := SessionSpec{Alias: l.alias, Title: l.terminal.Title, Workdir: l.terminal.Workdir()}
	s, err := factory.Create(spec)
	if err != nil {
		return err
	}
	l.session = s
	l.title = spec.Title
	if src, ok := s.(InputSource); ok && forwardInput {
		l.input = src.Input()
	}
	return nil
}

// setTitle runs on the dispatcher.
func (l *link) setTitle(logger *slog.Logger, title string) {
	if l.closed || l.session == nil {
		return
	}
	if title == l.title {
		return
	}
	logger.Debug("renaming terminal", "alias", l.alias, "from", l.title, "to", title)
	l.session.SetTitle(title)
	l.title = title
}

// writeData runs on the dispatcher.
func (l *link) writeData(logger *slog.Logger, p []byte) error {
	if l.closed || l.session == nil {
		return nil
	}
	if logger.Enabled(context.Background(), slog.LevelDebug) {
		logger.Debug("writing terminal data", "alias", l.alias, "title", l.title, "bytes", len(p), "preview", preview(p))
	}
	return l.session.WriteData(p)
}

// closeSession runs on the dispatcher and is the only place Session.Close
// is called.
func (l *link) closeSession(logger *slog.Logger, reason closeReason) {
	if l.closed {
		return
	}
	l.closed = true
	if l.session == nil {
		return
	}
	logger.Debug("closing terminal", "alias", l.alias, "title", l.title, "reason", string(reason))
	if err := l.session.Close(); err != nil {
		logger.Warn("close local session", "alias", l.alias, "err", err)
	}
}

const previewLimit = 64

func preview(p []byte) string {
	if len(p) > previewLimit {
		return strconv.Quote(string(p[:previewLimit])) + "..."
	}
	return strconv.Quote(string(p))
}
