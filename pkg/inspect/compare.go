package inspect

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/danpilch/callprof/pkg/record"
)

// Severity indicates how much a function's call share moved.
type Severity string

const (
	SeverityNone     Severity = "none"
	SeverityMinor    Severity = "minor"
	SeverityModerate Severity = "moderate"
	SeverityMajor    Severity = "major"
	SeverityRegress  Severity = "regression"
)

// Comparison is the drift of one innermost frame between two runs. Shares
// are percentages of each run's calls, so runs of different length compare.
type Comparison struct {
	Frame     string   `json:"frame"`
	BaseShare float64  `json:"base_share"`
	CurShare  float64  `json:"current_share"`
	DeltaPct  float64  `json:"delta_pct"`
	Severity  Severity `json:"severity"`
}

var (
	cmpHeader = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15")).Background(lipgloss.Color("62")).Padding(0, 1)
	cmpWarn   = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	cmpMinor  = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
)

func shares(recs []record.Record) map[string]float64 {
	out := make(map[string]float64)
	if len(recs) == 0 {
		return out
	}
	for _, r := range recs {
		if len(r.Stack) > 0 {
			out[r.Stack[0]]++
		}
	}
	for f, n := range out {
		out[f] = n / float64(len(recs)) * 100
	}
	return out
}

// Compare matches innermost frames of two runs and reports the relative
// change of their call share, largest change first.
func Compare(base, cur []record.Record) []Comparison {
	b, c := shares(base), shares(cur)
	frames := make(map[string]struct{}, len(b)+len(c))
	for f := range b {
		frames[f] = struct{}{}
	}
	for f := range c {
		frames[f] = struct{}{}
	}

	var out []Comparison
	for f := range frames {
		var delta float64
		switch {
		case b[f] != 0:
			delta = (c[f] - b[f]) / b[f] * 100
		case c[f] != 0:
			delta = 100
		}
		out = append(out, Comparison{
			Frame:     f,
			BaseShare: b[f],
			CurShare:  c[f],
			DeltaPct:  delta,
			Severity:  classifySeverity(delta),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		di, dj := math.Abs(out[i].DeltaPct), math.Abs(out[j].DeltaPct)
		if di != dj {
			return di > dj
		}
		return out[i].Frame < out[j].Frame
	})
	return out
}

func classifySeverity(deltaPct float64) Severity {
	abs := math.Abs(deltaPct)
	if abs < 5 {
		return SeverityNone
	}
	if abs < 15 {
		return SeverityMinor
	}
	if abs < 30 {
		return SeverityModerate
	}
	if deltaPct > 0 {
		return SeverityRegress
	}
	return SeverityMajor
}

// RenderComparison outputs a styled comparison table.
func RenderComparison(w io.Writer, basePath string, comparisons []Comparison) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, titleStyle.Render("Compared With "+basePath))
	fmt.Fprintln(w, dimStyle.Render(strings.Repeat("═", 80)))
	fmt.Fprintf(w, "  %s %s %s %s %s\n",
		cmpHeader.Render("FUNCTION                      "),
		cmpHeader.Render("BASE    "),
		cmpHeader.Render("CURRENT "),
		cmpHeader.Render("DELTA    "),
		cmpHeader.Render("SEVERITY  "))
	fmt.Fprintln(w, "  "+dimStyle.Render(strings.Repeat("─", 80)))

	shifted := 0
	for _, c := range comparisons {
		var sev string
		switch c.Severity {
		case SeverityRegress:
			sev = failStyle.Render("REGRESSION")
			shifted++
		case SeverityMajor:
			sev = failStyle.Render("MAJOR")
			shifted++
		case SeverityModerate:
			sev = cmpWarn.Render("moderate")
		case SeverityMinor:
			sev = cmpMinor.Render("minor")
		default:
			sev = passStyle.Render("none")
		}
		fmt.Fprintf(w, "  %-32s %-9.2f %-9.2f %-10s %s\n",
			c.Frame, c.BaseShare, c.CurShare, fmt.Sprintf("%+.1f%%", c.DeltaPct), sev)
	}

	fmt.Fprintln(w)
	if shifted > 0 {
		fmt.Fprintf(w, "  %s\n", failStyle.Render(fmt.Sprintf("%d functions shifted significantly.", shifted)))
	} else {
		fmt.Fprintf(w, "  %s\n", passStyle.Render("No significant shifts."))
	}
}
