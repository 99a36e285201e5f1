package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/antonkrylov/termbridge/internal/config"
	"github.com/antonkrylov/termbridge/internal/logging"
	"github.com/antonkrylov/termbridge/internal/supervisor"
)

var (
	version   = "dev"
	commit    = ""
	buildTime = ""
)

type rootOptions struct {
	supervisorAddr string
	timeout        time.Duration
	configPath     string
	contextName    string
	logLevel       string
	verbose        bool

	overrides config.Overrides
	settings  *config.Settings
	logger    *slog.Logger
}

func (r *rootOptions) prepare() error {
	logger, err := logging.New(os.Stderr, r.logLevel, r.verbose)
	if err != nil {
		log.Printf("%v; defaulting to info", err)
	}
	r.logger = logger

	o := r.overrides
	o.SupervisorAddr = r.supervisorAddr
	o.Timeout = r.timeout
	settings, err := config.ResolveSettings(r.configPath, r.contextName, o)
	if err != nil {
		return err
	}
	r.settings = settings
	return nil
}

// dial connects to the supervisor within the configured timeout.
func (r *rootOptions) dial(ctx context.Context) (*supervisor.Channel, error) {
	mode := supervisor.DialInsecure
	if r.settings.TLS {
		mode = supervisor.DialTLS
	}
	dialCtx, cancel := context.WithTimeout(ctx, r.settings.Timeout)
	defer cancel()
	return supervisor.Dial(dialCtx, r.settings.SupervisorAddr, mode)
}

func main() {
	opts := &rootOptions{}
	rootCmd := &cobra.Command{
		Use:           "termbridge",
		Short:         "Mirror supervisor terminals into local panes",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", config.DefaultConfigPath(), "path to termbridge config file (default $HOME/.termbridge/config)")
	rootCmd.PersistentFlags().StringVar(&opts.contextName, "context", "", "context name within the config (overrides currentContext)")
	rootCmd.PersistentFlags().StringVar(&opts.supervisorAddr, "supervisor", "", "supervisor TerminalService endpoint (overrides config and $TERMBRIDGE_SUPERVISOR_ADDR)")
	rootCmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 0, "dial and unary call timeout; defaults to config or 15s")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "log level: debug|info|warn|error")
	rootCmd.PersistentFlags().BoolVar(&opts.verbose, "verbose", false, "enable verbose debug logging (same as --log-level=debug or "+logging.DebugEnv+"=1)")
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		if cmd.Name() == "version" {
			return nil
		}
		return opts.prepare()
	}

	rootCmd.AddCommand(newMirrorCmd(opts))
	rootCmd.AddCommand(newListCmd(opts))
	rootCmd.AddCommand(newWriteCmd(opts))
	rootCmd.AddCommand(newVersionCmd())

	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
