package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/antonkrylov/termbridge/internal/devsupervisor"
	"github.com/antonkrylov/termbridge/internal/logging"
)

var (
	version   = "dev"
	commit    = ""
	buildTime = ""
)

// terminalFlags collects repeated -terminal values.
type terminalFlags []devsupervisor.TerminalConfig

func (t *terminalFlags) String() string {
	parts := make([]string, 0, len(*t))
	for _, tc := range *t {
		parts = append(parts, tc.Title+"="+strings.Join(tc.Command, " "))
	}
	return strings.Join(parts, ",")
}

func (t *terminalFlags) Set(v string) error {
	tc, err := parseTerminal(v)
	if err != nil {
		return err
	}
	*t = append(*t, tc)
	return nil
}

// parseTerminal accepts "command args" or "title=command args".
func parseTerminal(v string) (devsupervisor.TerminalConfig, error) {
	var tc devsupervisor.TerminalConfig
	title, cmd, ok := strings.Cut(v, "=")
	if !ok || strings.ContainsAny(title, " \t") {
		title, cmd = "", v
	}
	tc.Title = strings.TrimSpace(title)
	tc.Command = strings.Fields(cmd)
	if len(tc.Command) == 0 {
		return tc, fmt.Errorf("terminal %q: command is required", v)
	}
	if tc.Title == "" {
		tc.Title = tc.Command[0]
	}
	return tc, nil
}

func main() {
	var listen string
	var workdir string
	var shell string
	var terminals terminalFlags
	var logLevel string
	var verbose bool

	flag.Usage = func() {
		out := flag.CommandLine.Output()
		fmt.Fprintf(out, "termbridge-supervisor (%s)\n\n", version)
		fmt.Fprintf(out, "Serves local PTY terminals over the supervisor TerminalService for termbridge development.\n\n")
		fmt.Fprintf(out, "Usage:\n  %s [flags]\n\nFlags:\n", os.Args[0])
		flag.PrintDefaults()
	}

	flag.StringVar(&listen, "listen", "127.0.0.1:22999", "listen address for the TerminalService gRPC server")
	flag.Var(&terminals, "terminal", "terminal to open as [title=]command (repeatable)")
	flag.StringVar(&shell, "shell", os.Getenv("SHELL"), "shell opened when no -terminal is given")
	flag.StringVar(&workdir, "workdir", "", "working directory for opened terminals (default current directory)")
	flag.StringVar(&logLevel, "log-level", "info", "log level: debug|info|warn|error")
	flag.BoolVar(&verbose, "verbose", false, "enable verbose debug logging (same as -log-level=debug)")
	flag.Parse()

	logger, err := logging.New(os.Stderr, logLevel, verbose)
	if err != nil {
		log.Printf("%v; defaulting to info", err)
	}

	if len(terminals) == 0 {
		if shell == "" {
			shell = "/bin/sh"
		}
		terminals = append(terminals, devsupervisor.TerminalConfig{Title: shell, Command: []string{shell}})
	}
	if workdir == "" {
		workdir, _ = os.Getwd()
	}
	for i := range terminals {
		terminals[i].Workdir = workdir
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	srv, err := devsupervisor.New(devsupervisor.Config{
		ListenAddr: listen,
		Terminals:  terminals,
		Logger:     logger,
	})
	if err != nil {
		log.Fatal(err)
	}
	logger.Info("starting termbridge-supervisor", "version", version, "commit", commit, "build_time", buildTime)
	if err := srv.Start(ctx); err != nil {
		log.Fatal(err)
	}
	<-ctx.Done()
	srv.Stop()
}
