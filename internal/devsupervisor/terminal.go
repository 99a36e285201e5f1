package devsupervisor

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"

	"github.com/creack/pty"

	"github.com/antonkrylov/termbridge/internal/supervisor"
)

const (
	backlogLimit   = 64 * 1024
	listenerBuffer = 256
	readChunk      = 32 * 1024
)

type listener struct {
	frames   chan *supervisor.ListenTerminalResponse
	overflow bool
}

// terminal is one PTY-backed process. Output is kept in a bounded backlog
// so late listeners see recent history.
type terminal struct {
	alias          string
	command        []string
	initialWorkdir string
	pid            int64

	cmd    *exec.Cmd
	f      *os.File
	cancel context.CancelFunc

	mu        sync.Mutex
	title     string
	backlog   []byte
	listeners map[int]*listener
	nextID    int
	exited    bool
	exitCode  int32

	closeOnce sync.Once
	done      chan struct{}
}

func startTerminal(alias string, tc TerminalConfig) (*terminal, error) {
	procCtx, cancel := context.WithCancel(context.Background())
	build := func() *exec.Cmd {
		cmd := exec.CommandContext(procCtx, tc.Command[0], tc.Command[1:]...)
		cmd.Dir = tc.Workdir
		cmd.Env = append(os.Environ(), "TERM=xterm-256color")
		for k, v := range tc.Env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
		return cmd
	}
	ws := &pty.Winsize{Cols: 120, Rows: 30}

	cmd := build()
	f, err := startPTY(cmd, ws, true)
	if err != nil && strings.Contains(err.Error(), "Setctty set but Ctty not valid") {
		// Some platforms reject Setctty; a pty without a controlling
		// terminal is enough for interactive I/O.
		cmd = build()
		f, err = startPTY(cmd, ws, false)
	}
	if err != nil {
		cancel()
		return nil, err
	}

	title := tc.Title
	if title == "" {
		title = tc.Command[0]
	}
	t := &terminal{
		alias:          alias,
		command:        tc.Command,
		initialWorkdir: tc.Workdir,
		pid:            int64(cmd.Process.Pid),
		cmd:            cmd,
		f:              f,
		cancel:         cancel,
		title:          title,
		listeners:      make(map[int]*listener),
		done:           make(chan struct{}),
	}
	go t.pump()
	return t, nil
}

func startPTY(cmd *exec.Cmd, ws *pty.Winsize, setCTTY bool) (*os.File, error) {
	ptyFile, ttyFile, err := pty.Open()
	if err != nil {
		return nil, err
	}
	defer func() { _ = ttyFile.Close() }()

	if ws != nil {
		_ = pty.Setsize(ptyFile, ws)
	}

	cmd.Stdin = ttyFile
	cmd.Stdout = ttyFile
	cmd.Stderr = ttyFile

	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setsid = true
	cmd.SysProcAttr.Setctty = setCTTY
	if setCTTY {
		cmd.SysProcAttr.Ctty = int(ttyFile.Fd())
	} else {
		cmd.SysProcAttr.Ctty = 0
	}

	if err := cmd.Start(); err != nil {
		_ = ptyFile.Close()
		return nil, err
	}
	return ptyFile, nil
}

func (t *terminal) info() *supervisor.Terminal {
	t.mu.Lock()
	defer t.mu.Unlock()
	return &supervisor.Terminal{
		Alias:          t.alias,
		Command:        append([]string(nil), t.command...),
		Title:          t.title,
		Pid:            t.pid,
		InitialWorkdir: t.initialWorkdir,
		CurrentWorkdir: t.initialWorkdir,
	}
}

func (t *terminal) pump() {
	var scanner titleScanner
	buf := make([]byte, readChunk)
	for {
		n, err := t.f.Read(buf)
		if n > 0 {
			chunk := append([]byte(nil), buf[:n]...)
			titles := scanner.Scan(chunk)
			t.mu.Lock()
			t.appendBacklog(chunk)
			t.broadcast(&supervisor.ListenTerminalResponse{Kind: supervisor.EventData, Data: chunk})
			for _, title := range titles {
				t.title = title
				t.broadcast(&supervisor.ListenTerminalResponse{Kind: supervisor.EventTitle, Title: title})
			}
			t.mu.Unlock()
		}
		if err != nil {
			break
		}
	}

	code := int32(0)
	if err := t.cmd.Wait(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = int32(exitErr.ExitCode())
		} else {
			code = -1
		}
	}
	t.mu.Lock()
	t.exited = true
	t.exitCode = code
	t.broadcast(&supervisor.ListenTerminalResponse{Kind: supervisor.EventExit, ExitCode: code})
	for id, l := range t.listeners {
		close(l.frames)
		delete(t.listeners, id)
	}
	t.mu.Unlock()
	t.shutdown()
}

func (t *terminal) appendBacklog(p []byte) {
	t.backlog = append(t.backlog, p...)
	if over := len(t.backlog) - backlogLimit; over > 0 {
		t.backlog = append([]byte(nil), t.backlog[over:]...)
	}
}

// broadcast must be called with t.mu held. Listeners that fall behind are
// dropped rather than stalling the PTY.
func (t *terminal) broadcast(frame *supervisor.ListenTerminalResponse) {
	for id, l := range t.listeners {
		select {
		case l.frames <- frame:
		default:
			l.overflow = true
			close(l.frames)
			delete(t.listeners, id)
		}
	}
}

// subscribe returns the frames a new listener must see first and, unless
// the process already exited, a channel with everything after them.
func (t *terminal) subscribe() (initial []*supervisor.ListenTerminalResponse, l *listener, id int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	initial = append(initial, &supervisor.ListenTerminalResponse{Kind: supervisor.EventTitle, Title: t.title})
	if len(t.backlog) > 0 {
		initial = append(initial, &supervisor.ListenTerminalResponse{Kind: supervisor.EventData, Data: append([]byte(nil), t.backlog...)})
	}
	if t.exited {
		initial = append(initial, &supervisor.ListenTerminalResponse{Kind: supervisor.EventExit, ExitCode: t.exitCode})
		return initial, nil, 0
	}
	t.nextID++
	l = &listener{frames: make(chan *supervisor.ListenTerminalResponse, listenerBuffer)}
	t.listeners[t.nextID] = l
	return initial, l, t.nextID
}

func (t *terminal) unsubscribe(id int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if l, ok := t.listeners[id]; ok {
		close(l.frames)
		delete(t.listeners, id)
	}
}

func (t *terminal) exitStatus() (exited bool, code int32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.exited, t.exitCode
}

func (t *terminal) hasExited() bool {
	exited, _ := t.exitStatus()
	return exited
}

func (t *terminal) write(p []byte) (int, error) {
	return t.f.Write(p)
}

// kill stops the process; pump reports the exit to listeners.
func (t *terminal) kill() {
	t.cancel()
}

func (t *terminal) shutdown() {
	t.closeOnce.Do(func() {
		t.cancel()
		_ = t.f.Close()
		close(t.done)
	})
}
