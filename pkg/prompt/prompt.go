// Package prompt shows profiler start and stop notices to the user.
package prompt

import (
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

var box = lipgloss.NewStyle().
	Border(lipgloss.RoundedBorder()).
	BorderForeground(lipgloss.Color("62")).
	Foreground(lipgloss.Color("15")).
	Padding(0, 1)

// Terminal renders each message as a bordered box.
type Terminal struct {
	mu sync.Mutex
	w  io.Writer
}

// NewTerminal creates a prompter writing to w.
func NewTerminal(w io.Writer) *Terminal {
	return &Terminal{w: w}
}

// Show writes msg. Messages from concurrent sessions never interleave.
func (t *Terminal) Show(msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintln(t.w, box.Render(msg))
}

// Func adapts a function to a prompter, for hosts with their own UI.
type Func func(msg string)

func (f Func) Show(msg string) { f(msg) }
