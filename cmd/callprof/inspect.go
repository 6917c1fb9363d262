package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/danpilch/callprof/pkg/flamegraph"
	"github.com/danpilch/callprof/pkg/inspect"
	"github.com/danpilch/callprof/pkg/record"
	"github.com/danpilch/callprof/pkg/report"
	"github.com/spf13/cobra"
)

func readOutput(path string) (record.Header, []record.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return record.Header{}, nil, fmt.Errorf("cannot open output: %w", err)
	}
	defer f.Close()
	hdr, recs, err := record.ReadAll(f)
	if err != nil {
		return record.Header{}, nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	return hdr, recs, nil
}

func newInspectCmd(root *rootOptions) *cobra.Command {
	var (
		baseline string
		buckets  int
		top      int
	)
	cmd := &cobra.Command{
		Use:   "inspect FILE",
		Short: "Summarize and check a recorded output file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hdr, recs, err := readOutput(args[0])
			if err != nil {
				return err
			}
			summary := inspect.Summarize(args[0], hdr, recs, buckets, top)
			results := inspect.Check(hdr, recs)

			out := cmd.OutOrStdout()
			if report.Format(root.format) == report.FormatJSON {
				if err := inspect.ReportJSON(out, summary, results); err != nil {
					return err
				}
			} else {
				inspect.Report(out, summary, results)
			}

			if baseline != "" {
				_, base, err := readOutput(baseline)
				if err != nil {
					return err
				}
				inspect.RenderComparison(out, baseline, inspect.Compare(base, recs))
			}

			if failed := inspect.Failed(results); failed > 0 {
				return fmt.Errorf("%d checks failed", failed)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&baseline, "baseline", "b", "", "compare function call shares with this earlier output")
	cmd.Flags().IntVar(&buckets, "buckets", 40, "width of the call rate sparkline")
	cmd.Flags().IntVar(&top, "top", 10, "number of busiest functions to list")
	return cmd
}

func newFlamegraphCmd() *cobra.Command {
	var (
		out    string
		folded bool
		opts   = flamegraph.DefaultSVGOptions()
	)
	cmd := &cobra.Command{
		Use:   "flamegraph FILE",
		Short: "Render a recorded output file as a flame graph",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hdr, recs, err := readOutput(args[0])
			if err != nil {
				return err
			}
			stacks := flamegraph.Fold(recs)

			w := cmd.OutOrStdout()
			if out != "" && out != "-" {
				f, err := os.Create(out)
				if err != nil {
					return fmt.Errorf("cannot create %s: %w", out, err)
				}
				defer f.Close()
				w = f
			}

			if folded {
				return flamegraph.WriteFolded(w, stacks)
			}
			if opts.Title == flamegraph.DefaultSVGOptions().Title {
				opts.Title = fmt.Sprintf("%s (%s)", hdr.Config, strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0])))
			}
			return flamegraph.WriteSVG(w, stacks, opts)
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "write to this file instead of stdout")
	cmd.Flags().BoolVar(&folded, "folded", false, "write folded stacks instead of SVG")
	cmd.Flags().StringVar(&opts.Title, "title", opts.Title, "graph title")
	cmd.Flags().IntVar(&opts.Width, "width", opts.Width, "image width in pixels")
	cmd.Flags().StringVar(&opts.ColorScheme, "colors", opts.ColorScheme, "color scheme: hot, cold, mem")
	return cmd
}
