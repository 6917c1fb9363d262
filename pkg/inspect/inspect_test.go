package inspect

import (
	"bytes"
	"testing"
	"time"

	"github.com/danpilch/callprof/pkg/record"
	"github.com/stretchr/testify/require"
)

func sample() (record.Header, []record.Record) {
	hdr := record.NewHeader("actors", time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	recs := []record.Record{
		{Seq: 1, Offset: 0, Stack: []string{"Actor::Move", "Main"}},
		{Seq: 2, Offset: time.Millisecond, Stack: []string{"Actor::Move", "Main"}},
		{Seq: 3, Offset: 2 * time.Millisecond, Stack: []string{"Actor::Attack", "Main"}},
		{Seq: 4, Offset: 10 * time.Millisecond, Stack: []string{"Actor::Move", "Tick"}},
	}
	return hdr, recs
}

func TestCheck_Valid(t *testing.T) {
	hdr, recs := sample()
	results := Check(hdr, recs)
	require.Zero(t, Failed(results), "%+v", results)
}

func TestCheck_Violations(t *testing.T) {
	hdr, recs := sample()
	hdr.Format = "other"
	recs[2].Seq = 7
	recs[3].Offset = 0
	recs[1].Stack = nil

	failed := map[string]bool{}
	for _, r := range Check(hdr, recs) {
		if !r.Passed {
			failed[r.Check] = true
		}
	}
	require.Equal(t, map[string]bool{
		"header format": true,
		"sequence":      true,
		"offsets":       true,
		"stacks":        true,
	}, failed)
}

func TestCheck_Empty(t *testing.T) {
	hdr, _ := sample()
	require.Equal(t, 1, Failed(Check(hdr, nil)))
}

func TestSummarize(t *testing.T) {
	hdr, recs := sample()
	s := Summarize("out/actors0.jsonl", hdr, recs, 5, 1)

	require.Equal(t, "actors", s.Config)
	require.Equal(t, 4, s.Calls)
	require.Equal(t, 3, s.Distinct)
	require.Equal(t, 10*time.Millisecond, s.Span)
	require.Equal(t, []FrameCount{{Frame: "Actor::Move", Calls: 3}}, s.Top)
	require.Equal(t, []float64{2, 1, 0, 0, 1}, s.Rate)
}

func TestSummarize_DistinctStacksByFrame(t *testing.T) {
	hdr, _ := sample()
	recs := []record.Record{
		{Seq: 1, Stack: []string{"a b"}},
		{Seq: 2, Stack: []string{"a", "b"}},
		{Seq: 3, Stack: []string{"a\nb"}},
		{Seq: 4, Stack: []string{"a", "b"}},
	}
	require.Equal(t, 3, Summarize("run.jsonl", hdr, recs, 0, 0).Distinct)
}

func TestSparkline(t *testing.T) {
	require.Empty(t, Sparkline(nil))
	require.Equal(t, "▁▁▁", Sparkline([]float64{3, 3, 3}))
	require.Equal(t, "▁█", Sparkline([]float64{0, 5}))
}

func TestReport(t *testing.T) {
	hdr, recs := sample()
	s := Summarize("run.jsonl", hdr, recs, 10, 5)

	var buf bytes.Buffer
	Report(&buf, s, Check(hdr, recs))
	require.Contains(t, buf.String(), "Actor::Attack")
	require.Contains(t, buf.String(), "checks passed")

	buf.Reset()
	require.NoError(t, ReportJSON(&buf, s, nil))
	require.Contains(t, buf.String(), `"distinct_stacks": 3`)
}

func TestCompare(t *testing.T) {
	_, base := sample()
	cur := []record.Record{
		{Seq: 1, Stack: []string{"Actor::Move"}},
		{Seq: 2, Stack: []string{"Actor::Cast"}},
	}

	got := map[string]Comparison{}
	for _, c := range Compare(base, cur) {
		got[c.Frame] = c
	}
	require.Len(t, got, 3)

	require.InDelta(t, 75.0, got["Actor::Move"].BaseShare, 1e-9)
	require.InDelta(t, 50.0, got["Actor::Move"].CurShare, 1e-9)
	require.Equal(t, SeverityMajor, got["Actor::Move"].Severity)
	require.Equal(t, SeverityRegress, got["Actor::Cast"].Severity)
	require.InDelta(t, -100.0, got["Actor::Attack"].DeltaPct, 1e-9)

	var buf bytes.Buffer
	RenderComparison(&buf, "base.jsonl", Compare(base, base))
	require.Contains(t, buf.String(), "No significant shifts.")
}
