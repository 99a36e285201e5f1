package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/antonkrylov/termbridge/internal/mirror"
	"github.com/antonkrylov/termbridge/internal/pane"
)

func runHeadless(ctx context.Context, cmd *cobra.Command, root *rootOptions, svc mirror.TerminalService) error {
	s := root.settings
	logger := root.logger
	if s.ForwardInput {
		logger.Info("--forward-input has no effect in headless mode")
	}

	out := &prefixWriter{w: cmd.OutOrStdout()}
	var copies sync.WaitGroup
	factory := &pane.Factory{
		RecordDir:     s.RecordDir,
		FlushInterval: transcriptFlushInterval,
		Logger:        logger,
		OnCreate: func(p *pane.Pane) {
			copies.Add(1)
			go func() {
				defer copies.Done()
				out.copyPane(p)
			}()
		},
	}
	sessions, stopRelay, err := withRelay(root, factory)
	if err != nil {
		return err
	}
	defer stopRelay()

	b, err := mirror.New(mirror.Config{
		Terminals: svc,
		Sessions:  sessions,
		Logger:    logger,
	})
	if err != nil {
		return err
	}
	if err := b.Activate(ctx); err != nil {
		return err
	}
	if len(b.Aliases()) == 0 {
		fmt.Fprintln(cmd.ErrOrStderr(), "no terminals to mirror")
		return nil
	}
	waitClosed(ctx, b)

	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()
	if err := b.Shutdown(shutdownCtx); err != nil {
		logger.Warn("bridge shutdown", "err", err)
	}
	copies.Wait()
	return nil
}

// waitClosed returns once every mirror is closed or ctx is done.
func waitClosed(ctx context.Context, b *mirror.Bridge) {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		open := 0
		for _, alias := range b.Aliases() {
			if st, ok := b.State(alias); ok && st != mirror.StateClosed {
				open++
			}
		}
		if open == 0 {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// prefixWriter interleaves pane output line by line, tagging each line
// with the pane's current title.
type prefixWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (pw *prefixWriter) writeLine(label string, line []byte) {
	pw.mu.Lock()
	defer pw.mu.Unlock()
	fmt.Fprintf(pw.w, "[%s] %s\n", label, bytes.TrimRight(line, "\r"))
}

func (pw *prefixWriter) copyPane(p *pane.Pane) {
	pw.copyLines(p.Output(), func() string {
		if t := p.Title(); t != "" {
			return t
		}
		return p.Alias()
	})
}

func (pw *prefixWriter) copyLines(r io.Reader, label func() string) {
	var pending []byte
	buf := make([]byte, 32*1024)
	for {
		n, err := r.Read(buf)
		pending = append(pending, buf[:n]...)
		for {
			i := bytes.IndexByte(pending, '\n')
			if i < 0 {
				break
			}
			pw.writeLine(label(), pending[:i])
			pending = pending[i+1:]
		}
		if err != nil {
			if len(pending) > 0 {
				pw.writeLine(label(), pending)
			}
			if !errors.Is(err, io.EOF) {
				pw.writeLine(label(), []byte("[read error: "+err.Error()+"]"))
			}
			return
		}
	}
}
