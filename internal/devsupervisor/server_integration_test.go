package devsupervisor_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/antonkrylov/termbridge/internal/devsupervisor"
	"github.com/antonkrylov/termbridge/internal/mirror"
	"github.com/antonkrylov/termbridge/internal/pane"
	"github.com/antonkrylov/termbridge/internal/supervisor"
)

// echoOnce waits for one line, sets a title, echoes it back and exits 3.
var echoOnce = devsupervisor.TerminalConfig{
	Title:   "echo",
	Command: []string{"/bin/sh", "-c", `read line; printf '\033]0;demo\007'; echo "got $line"; exit 3`},
}

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func startServer(t *testing.T, terminals ...devsupervisor.TerminalConfig) *supervisor.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("spawns processes on a pty")
	}
	if _, err := exec.LookPath("/bin/sh"); err != nil {
		t.Skip("/bin/sh not available")
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	srv, err := devsupervisor.New(devsupervisor.Config{
		ListenAddr: "127.0.0.1:0",
		Terminals:  terminals,
		Logger:     quietLogger(),
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := srv.Start(ctx); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(srv.Stop)

	dialCtx, dialCancel := context.WithTimeout(ctx, 5*time.Second)
	defer dialCancel()
	ch, err := supervisor.Dial(dialCtx, srv.Addr().String(), supervisor.DialInsecure)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = ch.Close() })
	return supervisor.NewClient(ch)
}

func TestServer_ListListenWrite(t *testing.T) {
	c := startServer(t, echoOnce)
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	terms, err := c.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(terms) != 1 || terms[0].Title != "echo" || terms[0].Pid == 0 {
		t.Fatalf("terms=%+v", terms)
	}
	alias := terms[0].Alias

	sub, err := c.Listen(ctx, alias)
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Close()
	if n, err := c.Write(ctx, alias, []byte("ping\n")); err != nil || n != 5 {
		t.Fatalf("write n=%d err=%v", n, err)
	}

	var out bytes.Buffer
	var titles []string
	exitCode := int32(-100)
	for {
		ev, err := sub.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		switch ev.Kind {
		case supervisor.EventData:
			out.Write(ev.Data)
		case supervisor.EventTitle:
			titles = append(titles, ev.Title)
		case supervisor.EventExit:
			exitCode = ev.ExitCode
		}
	}
	if !strings.Contains(out.String(), "got ping") {
		t.Fatalf("output=%q", out.String())
	}
	if len(titles) == 0 || titles[len(titles)-1] != "demo" {
		t.Fatalf("titles=%q", titles)
	}
	if exitCode != 3 {
		t.Fatalf("exit code=%d", exitCode)
	}
}

func TestServer_ListenUnknownAlias(t *testing.T) {
	c := startServer(t)
	sub, err := c.Listen(context.Background(), "missing")
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Close()
	_, err = sub.Recv()
	var se *supervisor.StreamError
	if !errors.As(err, &se) {
		t.Fatalf("err=%v", err)
	}
}

func TestMirror_EndToEnd(t *testing.T) {
	c := startServer(t, echoOnce)

	created := make(chan *pane.Pane, 1)
	b, err := mirror.New(mirror.Config{
		Terminals: mirror.ClientService(c),
		Sessions: &pane.Factory{
			OnCreate: func(p *pane.Pane) { created <- p },
			Logger:   quietLogger(),
		},
		Logger: quietLogger(),
	})
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = b.Shutdown(ctx)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := b.Activate(ctx); err != nil {
		t.Fatal(err)
	}

	var p *pane.Pane
	select {
	case p = <-created:
	case <-ctx.Done():
		t.Fatal("no pane created")
	}
	if p.Title() != "echo" {
		t.Fatalf("initial title=%q", p.Title())
	}
	deadline := time.Now().Add(5 * time.Second)
	for {
		st, _ := b.State(p.Alias())
		if st == mirror.StateStreaming {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("state=%v", st)
		}
		time.Sleep(10 * time.Millisecond)
	}
	if _, err := c.Write(ctx, p.Alias(), []byte("ping\n")); err != nil {
		t.Fatal(err)
	}

	out, err := io.ReadAll(p.Output())
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(out), "got ping") {
		t.Fatalf("pane output=%q", out)
	}
	<-p.Done()
	if p.Title() != "demo" {
		t.Fatalf("title=%q", p.Title())
	}
	if st, _ := b.State(p.Alias()); st != mirror.StateClosed {
		t.Fatalf("state=%v", st)
	}
}
