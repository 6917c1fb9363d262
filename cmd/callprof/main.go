// Command callprof drives the call profiler outside of a host: it replays
// captured stacks through a config, validates configs, measures the
// overhead of the dispatch hook and inspects recorded output.
package main

import (
	"fmt"
	"os"

	"github.com/danpilch/callprof/pkg/debug"
	"github.com/danpilch/callprof/pkg/plugin"
	"github.com/danpilch/callprof/pkg/prompt"
	"github.com/danpilch/callprof/pkg/report"
	"github.com/danpilch/callprof/pkg/session"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	settingsPath string
	logLevel     string
	pprofAddr    string
	format       string
	prompts      bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	logger := logrus.New()
	logger.SetOutput(os.Stderr)

	var stopPprof func()
	cmd := &cobra.Command{
		Use:           "callprof",
		Short:         "Record and filter script call stacks",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.logLevel != "" {
				lvl, err := logrus.ParseLevel(opts.logLevel)
				if err != nil {
					return fmt.Errorf("invalid --log-level: %w", err)
				}
				logger.SetLevel(lvl)
			}
			if opts.pprofAddr != "" {
				stop, err := debug.StartPprofServer(opts.pprofAddr, logger)
				if err != nil {
					return err
				}
				stopPprof = stop
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if stopPprof != nil {
				stopPprof()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&opts.settingsPath, "settings", "callprof.yaml", "settings file")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level, overrides the settings file")
	cmd.PersistentFlags().StringVar(&opts.pprofAddr, "pprof", "", "serve pprof on this address")
	cmd.PersistentFlags().StringVarP(&opts.format, "format", "o", string(report.FormatTable), "summary format: table, json, tsv")
	cmd.PersistentFlags().BoolVar(&opts.prompts, "prompts", true, "show start/stop notices for configs that ask for them")

	cmd.AddCommand(
		newReplayCmd(opts, logger),
		newValidateCmd(opts, logger),
		newBenchCmd(opts, logger),
		newInspectCmd(opts),
		newFlamegraphCmd(),
		newVersionCmd(),
	)
	return cmd
}

// newPlugin builds the plugin the subcommands share. The --log-level flag
// wins over the settings file.
func (o *rootOptions) newPlugin(cmd *cobra.Command, logger *logrus.Logger, onClose func(session.Stats)) *plugin.Plugin {
	opts := plugin.Options{
		SettingsPath:   o.settingsPath,
		Logger:         logger,
		OnSessionClose: onClose,
	}
	if o.prompts {
		opts.Prompter = prompt.NewTerminal(cmd.ErrOrStderr())
	}
	p := plugin.New(opts)
	if o.logLevel != "" {
		if lvl, err := logrus.ParseLevel(o.logLevel); err == nil {
			logger.SetLevel(lvl)
		}
	}
	return p
}
