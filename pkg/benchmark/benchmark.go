// Package benchmark measures how much the dispatch hook adds to every call.
package benchmark

import (
	"fmt"
	"io"
	"math"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/danpilch/callprof/pkg/hook"
)

// Options configures a benchmark run.
type Options struct {
	Iterations int
	Warmup     int
}

// DefaultOptions returns sensible benchmark defaults.
func DefaultOptions() Options {
	return Options{
		Iterations: 100000,
		Warmup:     1000,
	}
}

// Result holds intercept latencies for one config.
type Result struct {
	Config    string
	Calls     int
	Latencies []time.Duration
	P50       time.Duration
	P95       time.Duration
	P99       time.Duration
	Mean      time.Duration
	StdDev    time.Duration
}

// Overhead holds the allocations made while benchmarking.
type Overhead struct {
	AllocBytes uint64
	AllocCount uint64
	GCPauses   uint32
}

var (
	bmTitle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	bmHeader = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15")).Background(lipgloss.Color("62")).Padding(0, 1)
	bmDim    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

// Run feeds calls round-robin through h.Intercept and times each one. The
// caller is responsible for having a config running on h.
func Run(h *hook.Hook, config string, calls []hook.CallContext, opts Options) Result {
	if len(calls) == 0 || opts.Iterations <= 0 {
		return Result{Config: config}
	}

	for i := 0; i < opts.Warmup; i++ {
		h.Intercept(calls[i%len(calls)])
	}

	latencies := make([]time.Duration, opts.Iterations)
	for i := 0; i < opts.Iterations; i++ {
		c := calls[i%len(calls)]
		start := time.Now()
		h.Intercept(c)
		latencies[i] = time.Since(start)
	}

	mean, sd := meanStdDev(latencies)

	sort.Slice(latencies, func(i, j int) bool {
		return latencies[i] < latencies[j]
	})

	return Result{
		Config:    config,
		Calls:     opts.Iterations,
		Latencies: latencies,
		P50:       percentile(latencies, 0.50),
		P95:       percentile(latencies, 0.95),
		P99:       percentile(latencies, 0.99),
		Mean:      mean,
		StdDev:    sd,
	}
}

// MeasureOverhead returns the process's cumulative allocation counters.
// Diff two readings to get the cost of a run.
func MeasureOverhead() Overhead {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return Overhead{
		AllocBytes: m.TotalAlloc,
		AllocCount: m.Mallocs,
		GCPauses:   m.NumGC,
	}
}

// Sub returns the growth from an earlier reading.
func (o Overhead) Sub(before Overhead) Overhead {
	return Overhead{
		AllocBytes: o.AllocBytes - before.AllocBytes,
		AllocCount: o.AllocCount - before.AllocCount,
		GCPauses:   o.GCPauses - before.GCPauses,
	}
}

// RenderResults outputs styled benchmark results.
func RenderResults(w io.Writer, results []Result, overhead Overhead) {
	fmt.Fprintln(w, bmTitle.Render("Intercept Overhead"))
	fmt.Fprintln(w, bmDim.Render(strings.Repeat("═", 70)))
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  %s %s %s %s %s\n",
		bmHeader.Render("CONFIG             "),
		bmHeader.Render("P50        "),
		bmHeader.Render("P95        "),
		bmHeader.Render("P99        "),
		bmHeader.Render("MEAN ± STDDEV"))
	fmt.Fprintln(w, "  "+bmDim.Render(strings.Repeat("─", 70)))

	for _, r := range results {
		fmt.Fprintf(w, "  %-20s %-12v %-12v %-12v %v ± %v\n",
			r.Config, r.P50, r.P95, r.P99, r.Mean, r.StdDev)
	}

	var calls int
	for _, r := range results {
		calls += r.Calls
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, bmTitle.Render("Allocations"))
	fmt.Fprintln(w, bmDim.Render(strings.Repeat("─", 40)))
	fmt.Fprintf(w, "  Memory allocated: %s\n", lipgloss.NewStyle().Bold(true).Render(formatBytes(overhead.AllocBytes)))
	fmt.Fprintf(w, "  Allocations:      %s\n", lipgloss.NewStyle().Bold(true).Render(fmt.Sprintf("%d", overhead.AllocCount)))
	if calls > 0 {
		fmt.Fprintf(w, "  Per call:         %s\n", lipgloss.NewStyle().Bold(true).Render(
			fmt.Sprintf("%.1f allocs, %s", float64(overhead.AllocCount)/float64(calls), formatBytes(overhead.AllocBytes/uint64(calls)))))
	}
	fmt.Fprintf(w, "  GC pauses:        %s\n", lipgloss.NewStyle().Bold(true).Render(fmt.Sprintf("%d", overhead.GCPauses)))
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func meanStdDev(values []time.Duration) (time.Duration, time.Duration) {
	if len(values) == 0 {
		return 0, 0
	}
	var sum, sumSq float64
	for _, v := range values {
		f := float64(v)
		sum += f
		sumSq += f * f
	}
	n := float64(len(values))
	mean := sum / n
	variance := (sumSq / n) - (mean * mean)
	if variance < 0 {
		variance = 0
	}
	return time.Duration(mean), time.Duration(math.Sqrt(variance))
}

func formatBytes(b uint64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := uint64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}
