package tui

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/antonkrylov/termbridge/internal/mirror"
)

func testHost(ctx context.Context) *Host {
	return newHost(ctx, Options{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Output: io.Discard,
	}, tea.WithInput(nil), tea.WithoutSignalHandler())
}

// sequence records task numbers in the order tasks ran.
type sequence struct {
	mu  sync.Mutex
	got []int
}

func (s *sequence) task(n int) func() {
	return func() {
		s.mu.Lock()
		s.got = append(s.got, n)
		s.mu.Unlock()
	}
}

func (s *sequence) check(t *testing.T, want int) {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.got) != want {
		t.Fatalf("ran %d of %d dispatched tasks", len(s.got), want)
	}
	for i, n := range s.got {
		if n != i {
			t.Fatalf("task %d ran at position %d", n, i)
		}
	}
}

func TestHostRunsEveryTaskAcrossShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := testHost(ctx)

	runErr := make(chan error, 1)
	go func() { runErr <- h.Run() }()

	var seq sequence
	stop := make(chan struct{})
	dispatched := make(chan int, 1)
	go func() {
		n := 0
		defer func() { dispatched <- n }()
		for {
			select {
			case <-stop:
				return
			default:
			}
			if err := h.Dispatcher().Dispatch(seq.task(n)); err != nil {
				return
			}
			n++
			time.Sleep(5 * time.Microsecond)
		}
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()
	select {
	case <-runErr:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after ctx was cancelled")
	}
	// keep dispatching once the event loop is gone
	time.Sleep(20 * time.Millisecond)
	close(stop)
	n := <-dispatched

	h.Close()
	seq.check(t, n)
}

func TestHostRunsTasksWhenLoopNeverConsumes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	h := testHost(ctx)

	var seq sequence
	for i := 0; i < 50; i++ {
		if err := h.Dispatcher().Dispatch(seq.task(i)); err != nil {
			t.Fatal(err)
		}
	}
	h.Close()
	seq.check(t, 50)

	if err := h.Dispatcher().Dispatch(func() {}); err != mirror.ErrDispatcherClosed {
		t.Fatalf("dispatch after close: %v", err)
	}
}

func TestTaskMsgRunsOnce(t *testing.T) {
	m, _ := testModel(false)
	runs := 0
	msg := newTaskMsg(func() { runs++ })
	m.Update(msg)
	m.Update(msg)
	if runs != 1 {
		t.Fatalf("runs=%d", runs)
	}
	select {
	case <-msg.done:
	default:
		t.Fatal("done not closed after Update ran the task")
	}
	if msg.claim() {
		t.Fatal("task claimable after it ran")
	}
}
