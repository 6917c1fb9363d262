package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/danpilch/callprof/pkg/benchmark"
	"github.com/danpilch/callprof/pkg/report"
	"github.com/danpilch/callprof/pkg/session"
	"github.com/danpilch/callprof/pkg/settings"
	"github.com/danpilch/callprof/pkg/version"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func openInput(cmd *cobra.Command, path string) (io.ReadCloser, error) {
	if path == "" || path == "-" {
		return io.NopCloser(cmd.InOrStdin()), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open input: %w", err)
	}
	return f, nil
}

// closedSessions collects stats of every session that ends.
type closedSessions struct {
	mu    sync.Mutex
	stats []session.Stats
}

func (c *closedSessions) add(st session.Stats) {
	c.mu.Lock()
	c.stats = append(c.stats, st)
	c.mu.Unlock()
}

func (c *closedSessions) all() []session.Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]session.Stats(nil), c.stats...)
}

func newReplayCmd(root *rootOptions, logger *logrus.Logger) *cobra.Command {
	var (
		config string
		input  string
		watch  bool
	)
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Feed stack lines through a profiling config",
		Long: `Reads one call per line, frames separated by ';' with the innermost
frame first, and dispatches each line through the profiler. Without
--config the settings' startupConfig is used, as on a host session start.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			closed := &closedSessions{}
			p := root.newPlugin(cmd, logger, closed.add)
			vm := &lineVM{}
			if err := p.Install(vm); err != nil {
				return err
			}
			if watch {
				ctx, cancel := context.WithCancel(cmd.Context())
				defer cancel()
				go func() {
					err := p.Settings().Watch(ctx, func(s settings.Settings) {
						if root.logLevel == "" {
							logger.SetLevel(s.Level())
						}
					})
					if err != nil {
						logger.WithField("error", err).Warn("Not watching settings")
					}
				}()
			}

			if config == "" {
				config = p.Settings().Get().StartupConfig
			}
			if config == "" {
				return fmt.Errorf("no config given and no startupConfig in %s", p.Settings().Path())
			}
			if err := p.Hook().RunConfig(config); err != nil {
				return err
			}

			in, err := openInput(cmd, input)
			if err != nil {
				_ = p.Hook().StopCurrentConfig()
				return err
			}
			defer in.Close()

			n, readErr := vm.replay(in)
			stopErr := p.Hook().StopCurrentConfig()
			logger.WithFields(logrus.Fields{
				"calls":            n,
				"capture_failures": p.Hook().CaptureFailures(),
			}).Debug("Replay finished")

			if err := report.NewFormatter(report.Format(root.format), cmd.OutOrStdout()).Render(closed.all()); err != nil {
				return err
			}
			if readErr != nil {
				return fmt.Errorf("cannot read input: %w", readErr)
			}
			return stopErr
		},
	}
	cmd.Flags().StringVarP(&config, "config", "c", "", "profiling config name")
	cmd.Flags().StringVarP(&input, "input", "i", "-", "stack lines to replay, - for stdin")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "reload settings while replaying; later runs use the new dirs")
	return cmd
}

func newValidateCmd(root *rootOptions, logger *logrus.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "validate NAME...",
		Short: "Check that profiling configs load",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := root.newPlugin(cmd, logger, nil)
			out := cmd.OutOrStdout()

			failed := 0
			for _, name := range args {
				cfg := p.LoadConfig(name)
				if cfg.FailedLoad {
					failed++
					fmt.Fprintf(out, "%s\tFAILED\t%v\n", name, cfg.Err)
					continue
				}
				fmt.Fprintf(out, "%s\tOK\tmode=%s include=%d exclude=%d maxCalls=%d maxSeconds=%d skipCalls=%d skipSeconds=%d output=%s\n",
					name, cfg.WriteMode, len(cfg.IncludeFilters), len(cfg.ExcludeFilters),
					cfg.MaxNumCalls, cfg.MaxNumSeconds, cfg.NumSkipCalls, cfg.NumSkipSeconds, cfg.OutFilename)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d configs failed to load", failed, len(args))
			}
			return nil
		},
	}
}

func newBenchCmd(root *rootOptions, logger *logrus.Logger) *cobra.Command {
	var (
		input string
		opts  = benchmark.DefaultOptions()
	)
	cmd := &cobra.Command{
		Use:   "bench NAME...",
		Short: "Measure the per-call cost of the dispatch hook",
		Long: `Runs each config against the stack lines from --input and reports
intercept latency percentiles. NoWrite configs measure the hook alone.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := openInput(cmd, input)
			if err != nil {
				return err
			}
			calls, err := readCalls(in)
			in.Close()
			if err != nil {
				return fmt.Errorf("cannot read input: %w", err)
			}
			if len(calls) == 0 {
				return fmt.Errorf("no calls in input")
			}

			p := root.newPlugin(cmd, logger, nil)
			vm := &lineVM{}
			if err := p.Install(vm); err != nil {
				return err
			}

			var results []benchmark.Result
			before := benchmark.MeasureOverhead()
			for _, name := range args {
				if err := p.Hook().RunConfig(name); err != nil {
					return err
				}
				results = append(results, benchmark.Run(p.Hook(), name, calls, opts))
				if err := p.Hook().StopCurrentConfig(); err != nil {
					logger.WithFields(logrus.Fields{"config": name, "error": err}).Warn("Benchmark session ended with an error")
				}
			}
			benchmark.RenderResults(cmd.OutOrStdout(), results, benchmark.MeasureOverhead().Sub(before))
			return nil
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "-", "stack lines to dispatch, - for stdin")
	cmd.Flags().IntVar(&opts.Iterations, "iterations", opts.Iterations, "timed calls per config")
	cmd.Flags().IntVar(&opts.Warmup, "warmup", opts.Warmup, "untimed calls per config")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version and build number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "callprof %s (build %d)\n", version.String(), version.BuildNumber())
		},
	}
}
