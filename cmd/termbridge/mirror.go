package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/antonkrylov/termbridge/internal/config"
	"github.com/antonkrylov/termbridge/internal/logging"
	"github.com/antonkrylov/termbridge/internal/mirror"
	"github.com/antonkrylov/termbridge/internal/relay"
	"github.com/antonkrylov/termbridge/internal/supervisor"
	"github.com/antonkrylov/termbridge/internal/tui"
)

const (
	shutdownTimeout         = 5 * time.Second
	transcriptFlushInterval = time.Second
)

func newMirrorCmd(root *rootOptions) *cobra.Command {
	var headless bool
	cmd := &cobra.Command{
		Use:   "mirror",
		Short: "Mirror every supervisor terminal into a local pane",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			ch, err := root.dial(ctx)
			if err != nil {
				return err
			}
			defer ch.Close()
			root.logger.Debug("connected to supervisor", "addr", ch.Addr())
			svc := mirror.ClientService(supervisor.NewClient(ch))

			if headless || !term.IsTerminal(int(os.Stdout.Fd())) {
				return runHeadless(ctx, cmd, root, svc)
			}
			return runTUI(ctx, root, svc)
		},
	}
	cmd.Flags().StringVar(&root.overrides.RecordDir, "record-dir", "", "write a zstd transcript per terminal into this directory")
	cmd.Flags().StringVar(&root.overrides.NATSURL, "nats-url", "", "also publish terminal events to this NATS server")
	cmd.Flags().StringVar(&root.overrides.NATSSubject, "nats-subject", "", "subject prefix for published events (default "+relay.DefaultSubjectPrefix+")")
	cmd.Flags().BoolVar(&root.overrides.ForwardInput, "forward-input", false, "send keystrokes typed into a pane back to the supervisor terminal")
	cmd.Flags().BoolVar(&headless, "headless", false, "print terminal output to stdout instead of opening the TUI")
	return cmd
}

// withRelay decorates sessions with a NATS publisher when one is configured.
func withRelay(root *rootOptions, sessions mirror.SessionFactory) (mirror.SessionFactory, func(), error) {
	s := root.settings
	if s.NATSURL == "" {
		return sessions, func() {}, nil
	}
	nc, err := relay.Connect(s.NATSURL, s.NATSUser, s.NATSPassword)
	if err != nil {
		return nil, nil, err
	}
	root.logger.Info("relaying terminal events", "url", s.NATSURL, "subject", s.NATSSubject)
	f := &relay.Factory{
		Next:      sessions,
		Publisher: nc,
		Prefix:    s.NATSSubject,
		Logger:    root.logger,
	}
	return f, func() {
		if err := nc.Drain(); err != nil {
			root.logger.Warn("drain nats connection", "err", err)
		}
	}, nil
}

func runTUI(ctx context.Context, root *rootOptions, svc mirror.TerminalService) error {
	logger, closeLog, err := tuiLogger(root)
	if err != nil {
		return err
	}
	defer closeLog()

	s := root.settings
	host := tui.New(ctx, tui.Options{
		RecordDir:     s.RecordDir,
		FlushInterval: transcriptFlushInterval,
		ForwardInput:  s.ForwardInput,
		Logger:        logger,
	})
	sessions, stopRelay, err := withRelay(root, host.Sessions())
	if err != nil {
		return err
	}
	defer stopRelay()

	b, err := mirror.New(mirror.Config{
		Terminals:    svc,
		Sessions:     sessions,
		Dispatcher:   host.Dispatcher(),
		ForwardInput: s.ForwardInput,
		Logger:       logger,
	})
	if err != nil {
		return err
	}
	host.OnUserClose(func(alias string) { b.Cancel(alias) })

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	activated := make(chan error, 1)
	go func() {
		err := b.Activate(ctx)
		if err != nil {
			host.Quit()
		}
		activated <- err
	}()

	runErr := host.Run()
	cancel()

	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()
	if err := b.Shutdown(shutdownCtx); err != nil {
		logger.Warn("bridge shutdown", "err", err)
	}
	host.Close()

	if err := <-activated; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	if runErr != nil && !errors.Is(runErr, tea.ErrProgramKilled) {
		return runErr
	}
	return nil
}

// tuiLogger sends logs to a file while the TUI owns the terminal.
func tuiLogger(root *rootOptions) (*slog.Logger, func(), error) {
	path := filepath.Join(config.DefaultConfigDir(), "termbridge.log")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, fmt.Errorf("log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("open log: %w", err)
	}
	logger, _ := logging.New(f, root.logLevel, root.verbose)
	return logger, func() { _ = f.Close() }, nil
}
