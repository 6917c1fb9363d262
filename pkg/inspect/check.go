// Package inspect checks recorded output files and summarizes what they
// contain.
package inspect

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/danpilch/callprof/pkg/record"
)

// Result holds the outcome of one consistency check.
type Result struct {
	Check   string `json:"check"`
	Passed  bool   `json:"passed"`
	Details string `json:"details"`
}

// Check validates an output file's header and records against what the
// recorder guarantees: a known format, sequence numbers starting at 1
// without gaps, offsets that never go backwards and no empty stacks.
func Check(hdr record.Header, recs []record.Record) []Result {
	var results []Result
	add := func(check string, passed bool, format string, args ...any) {
		results = append(results, Result{Check: check, Passed: passed, Details: fmt.Sprintf(format, args...)})
	}

	add("header format", hdr.Format == record.Format, "%q", hdr.Format)
	add("header version", hdr.Version > 0 && hdr.Version <= record.Version,
		"version %d, reader supports up to %d", hdr.Version, record.Version)
	add("has records", len(recs) > 0, "%d records", len(recs))

	seqOK, offOK, stackOK := true, true, true
	var seqDetail, offDetail, stackDetail string
	var prev time.Duration
	for i, r := range recs {
		if seqOK && r.Seq != uint64(i+1) {
			seqOK = false
			seqDetail = fmt.Sprintf("record %d has seq %d", i+1, r.Seq)
		}
		if offOK && (r.Offset < 0 || r.Offset < prev) {
			offOK = false
			offDetail = fmt.Sprintf("seq %d at %v after %v", r.Seq, r.Offset, prev)
		}
		if stackOK && len(r.Stack) == 0 {
			stackOK = false
			stackDetail = fmt.Sprintf("seq %d has no frames", r.Seq)
		}
		prev = r.Offset
	}
	if seqOK {
		seqDetail = fmt.Sprintf("1..%d", len(recs))
	}
	if offOK {
		offDetail = "non-decreasing"
	}
	if stackOK {
		stackDetail = "every record has frames"
	}
	add("sequence", seqOK, "%s", seqDetail)
	add("offsets", offOK, "%s", offDetail)
	add("stacks", stackOK, "%s", stackDetail)
	return results
}

// Failed returns how many results did not pass.
func Failed(results []Result) int {
	n := 0
	for _, r := range results {
		if !r.Passed {
			n++
		}
	}
	return n
}

// FrameCount is how often a function was the innermost frame.
type FrameCount struct {
	Frame string `json:"frame"`
	Calls int    `json:"calls"`
}

// Summary describes one output file.
type Summary struct {
	Path     string        `json:"path"`
	Config   string        `json:"config"`
	Start    time.Time     `json:"start"`
	Calls    int           `json:"calls"`
	Distinct int           `json:"distinct_stacks"`
	Span     time.Duration `json:"span_ns"`
	Rate     []float64     `json:"rate"`
	Top      []FrameCount  `json:"top"`
}

// Summarize counts calls, distinct stacks and the busiest innermost frames,
// and spreads the calls over buckets for a rate sparkline.
func Summarize(path string, hdr record.Header, recs []record.Record, buckets, top int) Summary {
	s := Summary{Path: path, Config: hdr.Config, Start: hdr.Start, Calls: len(recs)}
	if len(recs) == 0 {
		return s
	}
	s.Span = recs[len(recs)-1].Offset - recs[0].Offset

	stacks := make(map[string]struct{})
	frames := make(map[string]int)
	for _, r := range recs {
		stacks[stackKey(r.Stack)] = struct{}{}
		if len(r.Stack) > 0 {
			frames[r.Stack[0]]++
		}
	}
	s.Distinct = len(stacks)

	for f, n := range frames {
		s.Top = append(s.Top, FrameCount{Frame: f, Calls: n})
	}
	sort.Slice(s.Top, func(i, j int) bool {
		if s.Top[i].Calls != s.Top[j].Calls {
			return s.Top[i].Calls > s.Top[j].Calls
		}
		return s.Top[i].Frame < s.Top[j].Frame
	})
	if top > 0 && len(s.Top) > top {
		s.Top = s.Top[:top]
	}

	s.Rate = rate(recs, buckets)
	return s
}

// stackKey joins frames with NUL, which cannot appear in a frame name.
func stackKey(stack []string) string {
	return strings.Join(stack, "\x00")
}

// rate counts calls per equal slice of the recorded span.
func rate(recs []record.Record, buckets int) []float64 {
	if buckets < 1 || len(recs) == 0 {
		return nil
	}
	out := make([]float64, buckets)
	first := recs[0].Offset
	span := recs[len(recs)-1].Offset - first
	for _, r := range recs {
		i := 0
		if span > 0 {
			i = int(float64(r.Offset-first) / float64(span) * float64(buckets))
		}
		if i >= buckets {
			i = buckets - 1
		}
		out[i]++
	}
	return out
}
