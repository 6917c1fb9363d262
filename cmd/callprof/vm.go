package main

import (
	"bufio"
	"io"
	"strings"

	"github.com/danpilch/callprof/pkg/hook"
)

// StackSeparator splits frames on an input line, innermost frame first.
const StackSeparator = ";"

var _ hook.Dispatcher = (*lineVM)(nil)

// lineVM stands in for a host VM: every input line is one dispatched call.
type lineVM struct {
	dispatch func(hook.CallContext)
}

func (v *lineVM) SetDispatchHook(fn func(hook.CallContext)) {
	v.dispatch = fn
}

// lineCall is a call read from input.
type lineCall []string

func (c lineCall) Stack() ([]string, error) { return c, nil }
func (c lineCall) Payload() []byte          { return nil }

// parseLine returns the frames of one input line; blank lines and lines
// starting with # yield nil.
func parseLine(line string) lineCall {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return nil
	}
	parts := strings.Split(line, StackSeparator)
	frames := make(lineCall, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			frames = append(frames, p)
		}
	}
	return frames
}

// readCalls reads all calls from r.
func readCalls(r io.Reader) ([]hook.CallContext, error) {
	var calls []hook.CallContext
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4<<20)
	for sc.Scan() {
		if c := parseLine(sc.Text()); c != nil {
			calls = append(calls, c)
		}
	}
	return calls, sc.Err()
}

// replay dispatches every line of r as it is read.
func (v *lineVM) replay(r io.Reader) (int, error) {
	n := 0
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4<<20)
	for sc.Scan() {
		c := parseLine(sc.Text())
		if c == nil {
			continue
		}
		n++
		if v.dispatch != nil {
			v.dispatch(c)
		}
	}
	return n, sc.Err()
}
