package benchmark

import (
	"bytes"
	"testing"
	"time"

	"github.com/danpilch/callprof/pkg/hook"
	"github.com/danpilch/callprof/pkg/profconfig"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

type stackCall []string

func (s stackCall) Stack() ([]string, error) { return s, nil }
func (s stackCall) Payload() []byte          { return nil }

func TestRun(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "configs/dry.json", []byte(`{"writeMode": "NoWrite", "includeFilters": ["^Actor::"]}`), 0o644))
	h := hook.New(hook.Options{Loader: &profconfig.Loader{FS: fs, Dir: "configs"}, FS: fs})
	require.NoError(t, h.RunConfig("dry"))

	calls := []hook.CallContext{stackCall{"Actor::Move"}, stackCall{"Other::Foo"}}
	res := Run(h, "dry", calls, Options{Iterations: 200, Warmup: 10})

	require.Equal(t, 200, res.Calls)
	require.Len(t, res.Latencies, 200)
	require.LessOrEqual(t, res.P50, res.P95)
	require.LessOrEqual(t, res.P95, res.P99)

	st, ok := h.Stats()
	require.True(t, ok)
	require.Equal(t, uint64(105), st.Recorded)
	require.NoError(t, h.StopCurrentConfig())

	var buf bytes.Buffer
	RenderResults(&buf, []Result{res}, Overhead{AllocBytes: 2048, AllocCount: 10})
	require.Contains(t, buf.String(), "dry")
}

func TestRun_NoCalls(t *testing.T) {
	res := Run(hook.New(hook.Options{}), "empty", nil, DefaultOptions())
	require.Zero(t, res.Calls)
}

func TestPercentile(t *testing.T) {
	sorted := []time.Duration{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	require.Equal(t, time.Duration(5), percentile(sorted, 0.50))
	require.Equal(t, time.Duration(10), percentile(sorted, 0.99))
	require.Zero(t, percentile(nil, 0.5))
}

func TestFormatBytes(t *testing.T) {
	require.Equal(t, "512 B", formatBytes(512))
	require.Equal(t, "1.5 KB", formatBytes(1536))
	require.Equal(t, "2.0 MB", formatBytes(2<<20))
}

func TestOverheadSub(t *testing.T) {
	after := Overhead{AllocBytes: 300, AllocCount: 30, GCPauses: 3}
	require.Equal(t, Overhead{AllocBytes: 200, AllocCount: 20, GCPauses: 1}, after.Sub(Overhead{AllocBytes: 100, AllocCount: 10, GCPauses: 2}))
}
