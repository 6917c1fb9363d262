// Package report renders profiling session summaries.
package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/danpilch/callprof/pkg/session"
	jsoniter "github.com/json-iterator/go"
)

// Format represents the output format type.
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatTSV   Format = "tsv"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Formatter handles output formatting.
type Formatter struct {
	format Format
	writer io.Writer
}

// NewFormatter creates a new formatter.
func NewFormatter(format Format, writer io.Writer) *Formatter {
	return &Formatter{
		format: format,
		writer: writer,
	}
}

// Render outputs the sessions in the configured format.
func (f *Formatter) Render(sessions []session.Stats) error {
	switch f.format {
	case FormatJSON:
		return f.renderJSON(sessions)
	case FormatTSV:
		return f.renderTSV(sessions)
	default:
		return f.renderTable(sessions)
	}
}

type jsonSession struct {
	session.Stats
	State string `json:"state"`
	Error string `json:"error,omitempty"`
}

func (f *Formatter) renderJSON(sessions []session.Stats) error {
	out := struct {
		Sessions []jsonSession `json:"sessions"`
	}{Sessions: make([]jsonSession, 0, len(sessions))}
	for _, s := range sessions {
		js := jsonSession{Stats: s, State: s.State.String()}
		if s.Err != nil {
			js.Error = s.Err.Error()
		}
		out.Sessions = append(out.Sessions, js)
	}

	enc := json.NewEncoder(f.writer)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// renderTable outputs sessions as a styled table.
func (f *Formatter) renderTable(sessions []session.Stats) error {
	headerStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("15")).
		Background(lipgloss.Color("62")).
		Padding(0, 1)

	cellStyle := lipgloss.NewStyle().Padding(0, 1)
	okStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	errStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		MarginBottom(1)

	fmt.Fprintln(f.writer, titleStyle.Render("Profiling Sessions"))
	fmt.Fprintln(f.writer, strings.Repeat("═", 60))
	fmt.Fprintln(f.writer)

	rows := make([][]string, len(sessions))
	for i, s := range sessions {
		status := okStyle.Render(strings.ToUpper(s.State.String()))
		if s.Err != nil {
			status = errStyle.Render("ERROR")
		}
		rows[i] = []string{
			s.Config,
			s.Mode.String(),
			fmt.Sprintf("%d", s.Recorded),
			fmt.Sprintf("%d", s.Skipped),
			fmt.Sprintf("%d", s.Rejected),
			fmt.Sprintf("%d", s.Dropped),
			s.Elapsed.String(),
			s.Path,
			status,
		}
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("240"))).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Headers("CONFIG", "MODE", "RECORDED", "SKIPPED", "REJECTED", "DROPPED", "ELAPSED", "OUTPUT", "STATUS").
		Rows(rows...)

	fmt.Fprintln(f.writer, t)

	for _, s := range sessions {
		if s.Err != nil {
			fmt.Fprintf(f.writer, "%s %s: %v\n", errStyle.Render("error"), s.Config, s.Err)
		}
	}
	return nil
}

// renderTSV outputs sessions as tab-separated values.
func (f *Formatter) renderTSV(sessions []session.Stats) error {
	fmt.Fprintln(f.writer, "CONFIG\tMODE\tSTATE\tSEEN\tSKIPPED\tRECORDED\tREJECTED\tDROPPED\tELAPSED_NS\tOUTPUT\tERROR")

	for _, s := range sessions {
		errText := ""
		if s.Err != nil {
			errText = s.Err.Error()
		}
		fmt.Fprintf(f.writer, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%d\t%d\t%s\t%s\n",
			s.Config, s.Mode, s.State, s.Seen, s.Skipped, s.Recorded,
			s.Rejected, s.Dropped, int64(s.Elapsed), s.Path, errText)
	}

	return nil
}
