package mirror

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/antonkrylov/termbridge/internal/supervisor"
)

// ErrAlreadyActivated is returned by every Activate after the first
// successful one.
var ErrAlreadyActivated = errors.New("mirror: bridge already activated")

type Config struct {
	Terminals TerminalService
	Sessions  SessionFactory

	// Dispatcher runs every session call. When nil the bridge owns an
	// Executor and closes it on Shutdown.
	Dispatcher Dispatcher

	// ForwardInput sends keystrokes from sessions implementing InputSource
	// to the remote terminal. Off by default: mirroring is remote to local.
	ForwardInput bool

	Logger *slog.Logger
}

// Bridge mirrors the supervisor's terminals into local sessions.
type Bridge struct {
	cfg        Config
	logger     *slog.Logger
	dispatcher Dispatcher
	executor   *Executor

	ctx    context.Context
	cancel context.CancelFunc

	activated atomic.Bool

	mu       sync.Mutex
	links    map[string]*link
	shutdown bool
	wg       sync.WaitGroup
}

func New(cfg Config) (*Bridge, error) {
	if cfg.Terminals == nil {
		return nil, fmt.Errorf("terminal service is required")
	}
	if cfg.Sessions == nil {
		return nil, fmt.Errorf("session factory is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	b := &Bridge{
		cfg:        cfg,
		logger:     cfg.Logger,
		dispatcher: cfg.Dispatcher,
		links:      make(map[string]*link),
	}
	if b.dispatcher == nil {
		b.executor = NewExecutor(cfg.Logger)
		b.dispatcher = b.executor
	}
	b.ctx, b.cancel = context.WithCancel(context.Background())
	return b, nil
}

// Activate discovers the supervisor's terminals and starts mirroring each
// of them. Discovery failures are returned unchanged in meaning (a
// *supervisor.ConnectionError for a dead channel) and leave the bridge
// ready for another attempt; there is no retry here.
func (b *Bridge) Activate(ctx context.Context) error {
	if !b.activated.CompareAndSwap(false, true) {
		return ErrAlreadyActivated
	}
	terminals, err := b.cfg.Terminals.List(ctx)
	if err != nil {
		b.activated.Store(false)
		return fmt.Errorf("discover terminals: %w", err)
	}
	b.logger.Info("mirroring supervisor terminals", "count", len(terminals))
	for _, t := range terminals {
		if t == nil || t.Alias == "" {
			b.logger.Warn("skipping terminal without alias")
			continue
		}
		l, ok := b.register(t)
		if !ok {
			continue
		}
		b.wg.Add(1)
		go b.run(l)
	}
	return nil
}

func (b *Bridge) register(t *supervisor.Terminal) (*link, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.shutdown {
		return nil, false
	}
	if prev, ok := b.links[t.Alias]; ok && prev.State() != StateClosed {
		b.logger.Warn("terminal already mirrored", "alias", t.Alias)
		return nil, false
	}
	l := newLink(b.ctx, t)
	b.links[t.Alias] = l
	return l, true
}

func (b *Bridge) run(l *link) {
	defer b.wg.Done()

	b.logger.Debug("creating shared terminal", "alias", l.alias, "title", l.terminal.Title)
	if err := b.createSession(l); err != nil {
		if l.ctx.Err() == nil {
			b.logger.Error("create local session", "alias", l.alias, "err", err)
		}
		b.close(l, reasonCreateFailed)
		return
	}

	sub, err := b.cfg.Terminals.Listen(l.ctx, l.alias)
	if err != nil {
		if l.ctx.Err() == nil {
			b.logger.Error("listen to terminal", "alias", l.alias, "err", err)
		}
		b.close(l, reasonListenFailed)
		return
	}
	defer sub.Close()

	if !l.state.CompareAndSwap(int32(StateCreated), int32(StateStreaming)) {
		return
	}
	if l.input != nil {
		go b.forwardInput(l)
	}
	b.receive(l, sub)
}

func (b *Bridge) createSession(l *link) error {
	res := make(chan error, 1)
	err := b.dispatcher.Dispatch(func() {
		res <- l.create(b.cfg.Sessions, b.cfg.ForwardInput)
	})
	if err != nil {
		return err
	}
	select {
	case err := <-res:
		return err
	case <-l.ctx.Done():
		return l.ctx.Err()
	}
}

func (b *Bridge) receive(l *link, sub Subscription) {
	for {
		ev, err := sub.Recv()
		if err != nil {
			switch {
			case errors.Is(err, supervisor.ErrSubscriptionClosed) || l.ctx.Err() != nil:
				b.close(l, reasonCancelled)
			case errors.Is(err, io.EOF):
				b.logger.Warn("terminal stream ended without exit code", "alias", l.alias)
				b.close(l, reasonCompleted)
			default:
				b.logger.Error("terminal stream failed", "alias", l.alias, "err", err)
				b.close(l, reasonStreamError)
			}
			return
		}
		if err := ev.Validate(); err != nil {
			b.logger.Warn("ignoring terminal event", "alias", l.alias, "err", err)
			continue
		}
		switch ev.Kind {
		case supervisor.EventTitle:
			title := ev.Title
			b.dispatch(l, func() { l.setTitle(b.logger, title) })
		case supervisor.EventData:
			data := ev.Data
			b.dispatch(l, func() {
				if err := l.writeData(b.logger, data); err != nil {
					b.logger.Error("write to local session", "alias", l.alias, "err", err)
					b.close(l, reasonWriteFailed)
					l.closeSession(b.logger, reasonWriteFailed)
				}
			})
		case supervisor.EventExit:
			b.logger.Info("terminal exited", "alias", l.alias, "exit_code", ev.ExitCode)
			b.close(l, reasonExited)
			return
		}
	}
}

func (b *Bridge) dispatch(l *link, task func()) {
	if err := b.dispatcher.Dispatch(task); err != nil {
		b.logger.Warn("dropping terminal event", "alias", l.alias, "err", err)
		l.cancel()
	}
}

// close moves l to StateClosed exactly once, releases its subscription and
// queues the session close behind everything already dispatched for it.
func (b *Bridge) close(l *link, reason closeReason) {
	l.closeOnce.Do(func() {
		l.state.Store(int32(StateClosed))
		l.cancel()
		switch reason {
		case reasonExited, reasonCancelled, reasonShutdown:
			b.logger.Debug("terminal mirror closed", "alias", l.alias, "reason", string(reason))
		default:
			b.logger.Warn("terminal mirror closed abnormally", "alias", l.alias, "reason", string(reason))
		}
		if err := b.dispatcher.Dispatch(func() { l.closeSession(b.logger, reason) }); err != nil {
			b.logger.Warn("local session left open", "alias", l.alias, "err", err)
		}
	})
}

func (b *Bridge) forwardInput(l *link) {
	buf := make([]byte, 4096)
	for {
		n, err := l.input.Read(buf)
		if n > 0 {
			if _, werr := b.cfg.Terminals.Write(l.ctx, l.alias, buf[:n]); werr != nil {
				if l.ctx.Err() == nil {
					b.logger.Warn("forward input", "alias", l.alias, "err", werr)
				}
				return
			}
		}
		if err != nil {
			return
		}
	}
}

// Cancel closes the mirror for alias, e.g. because the user closed the
// local pane. It reports whether alias was being mirrored.
func (b *Bridge) Cancel(alias string) bool {
	b.mu.Lock()
	l, ok := b.links[alias]
	b.mu.Unlock()
	if !ok {
		return false
	}
	b.close(l, reasonCancelled)
	return true
}

// State reports the lifecycle state of alias.
func (b *Bridge) State(alias string) (State, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	l, ok := b.links[alias]
	if !ok {
		return 0, false
	}
	return l.State(), true
}

// Aliases lists every alias the bridge has mirrored, sorted.
func (b *Bridge) Aliases() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.links))
	for alias := range b.links {
		out = append(out, alias)
	}
	sort.Strings(out)
	return out
}

// Shutdown closes every mirror and waits for their receivers to stop.
func (b *Bridge) Shutdown(ctx context.Context) error {
	b.mu.Lock()
	b.shutdown = true
	links := make([]*link, 0, len(b.links))
	for _, l := range b.links {
		links = append(links, l)
	}
	b.mu.Unlock()

	for _, l := range links {
		b.close(l, reasonShutdown)
	}
	b.cancel()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	if b.executor != nil {
		b.executor.Close()
	}
	return nil
}
