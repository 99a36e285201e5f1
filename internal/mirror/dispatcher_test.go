package mirror

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestExecutor_RunsTasksInOrder(t *testing.T) {
	e := NewExecutor(discardLogger())
	defer e.Close()

	var got []int
	for i := 0; i < 1000; i++ {
		i := i
		if err := e.Dispatch(func() { got = append(got, i) }); err != nil {
			t.Fatal(err)
		}
	}
	if err := e.Flush(); err != nil {
		t.Fatal(err)
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("task %d ran at position %d", v, i)
		}
	}
	if len(got) != 1000 {
		t.Fatalf("ran %d tasks", len(got))
	}
}

func TestExecutor_NeverRunsTasksConcurrently(t *testing.T) {
	e := NewExecutor(discardLogger())
	defer e.Close()

	var mu sync.Mutex
	running, maxRunning := 0, 0
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				_ = e.Dispatch(func() {
					mu.Lock()
					running++
					if running > maxRunning {
						maxRunning = running
					}
					mu.Unlock()
					mu.Lock()
					running--
					mu.Unlock()
				})
			}
		}()
	}
	wg.Wait()
	if err := e.Flush(); err != nil {
		t.Fatal(err)
	}
	if maxRunning != 1 {
		t.Fatalf("max concurrent tasks=%d", maxRunning)
	}
}

func TestExecutor_RecoversPanics(t *testing.T) {
	e := NewExecutor(discardLogger())
	defer e.Close()

	ran := false
	_ = e.Dispatch(func() { panic("boom") })
	_ = e.Dispatch(func() { ran = true })
	if err := e.Flush(); err != nil {
		t.Fatal(err)
	}
	if !ran {
		t.Fatal("executor stopped after a panicking task")
	}
}

func TestExecutor_CloseDrainsAndRejects(t *testing.T) {
	e := NewExecutor(discardLogger())
	count := 0
	for i := 0; i < 10; i++ {
		_ = e.Dispatch(func() { count++ })
	}
	e.Close()
	if count != 10 {
		t.Fatalf("count=%d, want queued tasks drained", count)
	}
	if err := e.Dispatch(func() {}); !errors.Is(err, ErrDispatcherClosed) {
		t.Fatalf("err=%v", err)
	}
}

func TestHandoffExecutor_PreservesOrder(t *testing.T) {
	loop := make(chan func(), 16)
	e := NewHandoffExecutor(discardLogger(), func(task func()) { loop <- task })

	var got []int
	for i := 0; i < 5; i++ {
		i := i
		_ = e.Dispatch(func() { got = append(got, i) })
	}
	for i := 0; i < 5; i++ {
		(<-loop)()
	}
	e.Close()
	for i, v := range got {
		if v != i {
			t.Fatalf("got %v", got)
		}
	}
}
