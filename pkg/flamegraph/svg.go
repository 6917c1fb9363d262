package flamegraph

import (
	"errors"
	"fmt"
	"html"
	"io"
	"sort"
	"strings"
)

// ErrNoCalls is returned when there is nothing to draw.
var ErrNoCalls = errors.New("no calls to draw")

// SVGOptions configures the flame graph SVG output.
type SVGOptions struct {
	Title       string
	Width       int
	ColorScheme string // "hot", "cold", "mem"
}

// DefaultSVGOptions returns sensible defaults.
func DefaultSVGOptions() SVGOptions {
	return SVGOptions{
		Title:       "Call Graph",
		Width:       1200,
		ColorScheme: "hot",
	}
}

type node struct {
	name     string
	calls    int
	children map[string]*node
}

func newNode(name string) *node {
	return &node{name: name, children: make(map[string]*node)}
}

func (n *node) depth() int {
	max := 0
	for _, c := range n.children {
		if d := c.depth() + 1; d > max {
			max = d
		}
	}
	return max
}

func buildTree(stacks map[string]int) *node {
	root := newNode("all")
	for stack, count := range stacks {
		n := root
		for _, name := range strings.Split(stack, FoldSeparator) {
			child, ok := n.children[name]
			if !ok {
				child = newNode(name)
				n.children[name] = child
			}
			child.calls += count
			n = child
		}
		root.calls += count
	}
	return root
}

type svgWriter struct {
	w      io.Writer
	total  int
	scheme string
	baseY  int
	err    error
}

const (
	frameHeight = 16
	fontSize    = 12
	margin      = 10
)

func (s *svgWriter) printf(format string, args ...any) {
	if s.err != nil {
		return
	}
	_, s.err = fmt.Fprintf(s.w, format, args...)
}

// WriteSVG renders folded stacks as an SVG flame graph. Wider frames were
// on the stack of more recorded calls.
func WriteSVG(w io.Writer, stacks map[string]int, opts SVGOptions) error {
	if opts.Width == 0 {
		opts.Width = DefaultSVGOptions().Width
	}
	root := buildTree(stacks)
	if root.calls == 0 {
		return ErrNoCalls
	}

	height := (root.depth()+2)*frameHeight + 60
	s := &svgWriter{w: w, total: root.calls, scheme: opts.ColorScheme, baseY: height - 20}

	s.printf(`<?xml version="1.0" standalone="no"?>
<!DOCTYPE svg PUBLIC "-//W3C//DTD SVG 1.1//EN" "http://www.w3.org/Graphics/SVG/1.1/DTD/svg1.1.dtd">
<svg version="1.1" width="%d" height="%d" xmlns="http://www.w3.org/2000/svg">
<style>
  .func:hover { stroke:black; stroke-width:0.5; cursor:pointer; }
  text { font-family: monospace; font-size: %dpx; }
</style>
<rect x="0" y="0" width="%d" height="%d" fill="white"/>
<text x="%d" y="20" text-anchor="middle" style="font-size:16px; font-weight:bold;">%s</text>
<text x="%d" y="35" text-anchor="middle" style="font-size:12px; fill:#666;">(%d calls)</text>
`,
		opts.Width, height, fontSize,
		opts.Width, height,
		opts.Width/2, html.EscapeString(opts.Title),
		opts.Width/2, root.calls)

	s.frame(root, margin, opts.Width-2*margin, 0)
	s.printf("</svg>\n")
	return s.err
}

func (s *svgWriter) frame(n *node, x, width, depth int) {
	if width < 1 || n.calls == 0 {
		return
	}
	y := s.baseY - depth*frameHeight
	r, g, b := frameColor(depth, s.scheme)

	s.printf(`<g class="func">
<rect x="%d" y="%d" width="%d" height="%d" fill="rgb(%d,%d,%d)" rx="1"/>
`, x, y-frameHeight, width, frameHeight-1, r, g, b)

	if label := fitLabel(n.name, width); label != "" {
		s.printf("<text x=\"%d\" y=\"%d\" fill=\"black\">%s</text>\n", x+2, y-4, html.EscapeString(label))
	}
	s.printf("<title>%s (%d calls, %.1f%%)</title>\n</g>\n",
		html.EscapeString(n.name), n.calls, float64(n.calls)/float64(s.total)*100)

	names := make([]string, 0, len(n.children))
	for name := range n.children {
		names = append(names, name)
	}
	sort.Strings(names)

	childX := x
	for _, name := range names {
		child := n.children[name]
		w := int(float64(width) * float64(child.calls) / float64(n.calls))
		if w < 1 {
			w = 1
		}
		s.frame(child, childX, w, depth+1)
		childX += w
	}
}

// fitLabel trims name to what fits in width pixels, roughly 7 per char.
func fitLabel(name string, width int) string {
	if width <= 40 {
		return ""
	}
	max := (width - 4) / 7
	if len(name) <= max {
		return name
	}
	if max > 3 {
		return name[:max-2] + ".."
	}
	return ""
}

func frameColor(depth int, scheme string) (int, int, int) {
	switch scheme {
	case "cold":
		return 30, 50 + (depth*30)%150, 150 + (depth*20)%100
	case "mem":
		return 30, 190 + (depth*15)%60, 30
	default:
		return 200 + (depth*15)%55, 50 + (depth*40)%150, 30
	}
}
