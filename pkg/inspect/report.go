package inspect

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	jsoniter "github.com/json-iterator/go"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("15")).Bold(true)
	passStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	failStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

// Report writes a summary and its check results as styled text.
func Report(w io.Writer, s Summary, results []Result) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, titleStyle.Render("Profiling Output "+s.Path))
	fmt.Fprintln(w, dimStyle.Render(strings.Repeat("═", 60)))

	fmt.Fprintf(w, "  %s %s\n", labelStyle.Render("Config:  "), s.Config)
	fmt.Fprintf(w, "  %s %s\n", labelStyle.Render("Started: "), s.Start.Format("2006-01-02 15:04:05.000"))
	fmt.Fprintf(w, "  %s %d (%d distinct stacks)\n", labelStyle.Render("Calls:   "), s.Calls, s.Distinct)
	fmt.Fprintf(w, "  %s %v\n", labelStyle.Render("Span:    "), s.Span)
	if len(s.Rate) > 0 {
		fmt.Fprintf(w, "  %s %s\n", labelStyle.Render("Rate:    "), Sparkline(s.Rate))
	}

	if len(s.Top) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, titleStyle.Render("Busiest Functions"))
		for _, f := range s.Top {
			pct := float64(f.Calls) / float64(s.Calls) * 100
			fmt.Fprintf(w, "  %8d %s %s\n", f.Calls, dimStyle.Render(fmt.Sprintf("%5.1f%%", pct)), f.Frame)
		}
	}

	if len(results) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, titleStyle.Render("Consistency Checks"))
		for _, r := range results {
			icon := passStyle.Render("PASS")
			if !r.Passed {
				icon = failStyle.Render("FAIL")
			}
			fmt.Fprintf(w, "  [%s] %-20s %s\n", icon, r.Check, dimStyle.Render(r.Details))
		}
		fmt.Fprintln(w)
		if failed := Failed(results); failed == 0 {
			fmt.Fprintf(w, "  %s\n", passStyle.Render(fmt.Sprintf("All %d checks passed.", len(results))))
		} else {
			fmt.Fprintf(w, "  %s\n", failStyle.Render(fmt.Sprintf("%d of %d checks failed.", failed, len(results))))
		}
	}
}

// ReportJSON writes a summary and its check results as JSON.
func ReportJSON(w io.Writer, s Summary, results []Result) error {
	out := struct {
		Summary Summary  `json:"summary"`
		Checks  []Result `json:"checks"`
	}{
		Summary: s,
		Checks:  results,
	}
	enc := jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
