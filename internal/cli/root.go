// Package cli wires Cobra subcommands to the container; it holds no dispatch
// logic of its own.
package cli

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/srediag/plugin-mq/internal/logging"
	"github.com/srediag/plugin-mq/pkg/config"
	"github.com/srediag/plugin-mq/pkg/transport"
)

// dialerFactory builds the socket factory for start and send.
var dialerFactory = func() transport.Dialer { return transport.ZMQDialer() }

type rootFlags struct {
	configPath string
	verbose    bool
}

// NewRootCmd creates the root command and registers all subcommands.
func NewRootCmd() *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:   "mqdispatch",
		Short: "Message-queue listener container",
		// main renders fatal errors through the logger.
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	root.AddCommand(newStartCmd(flags))
	root.AddCommand(newSendCmd(flags))
	root.AddCommand(newConfigCmd(flags))
	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "Config file (toml, yaml or json)")
	root.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "Enable verbose logging (debug level)")

	return root
}

// load reads and verifies the config and applies its log level.
func (f *rootFlags) load() (*config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Verify(); err != nil {
		return nil, err
	}
	if f.verbose {
		logging.SetLevel(slog.LevelDebug)
	} else if lvl, err := logging.ParseLevel(cfg.LogLevel); err == nil {
		logging.SetLevel(lvl)
	}
	return cfg, nil
}
