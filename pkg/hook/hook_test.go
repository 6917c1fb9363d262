package hook

import (
	"bytes"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/danpilch/callprof/pkg/output"
	"github.com/danpilch/callprof/pkg/profconfig"
	"github.com/danpilch/callprof/pkg/record"
	"github.com/danpilch/callprof/pkg/session"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

type fakeVM struct {
	hook func(CallContext)
}

func (v *fakeVM) SetDispatchHook(fn func(CallContext)) { v.hook = fn }

func (v *fakeVM) call(c CallContext) {
	if v.hook != nil {
		v.hook(c)
	}
}

type stackCall []string

func (s stackCall) Stack() ([]string, error) { return s, nil }
func (s stackCall) Payload() []byte          { return nil }

type errCall struct{}

func (errCall) Stack() ([]string, error) { return nil, errors.New("frame gone") }
func (errCall) Payload() []byte          { return nil }

type panicCall struct{}

func (panicCall) Stack() ([]string, error) { panic("bad frame") }
func (panicCall) Payload() []byte          { return nil }

type recordingPrompter struct {
	mu   sync.Mutex
	msgs []string
}

func (p *recordingPrompter) Show(msg string) {
	p.mu.Lock()
	p.msgs = append(p.msgs, msg)
	p.mu.Unlock()
}

func (p *recordingPrompter) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.msgs)
}

type fixture struct {
	fs     afero.Fs
	hook   *Hook
	vm     *fakeVM
	prompt *recordingPrompter

	mu     sync.Mutex
	closed []session.Stats
}

func newFixture(t *testing.T, configs map[string]string) *fixture {
	t.Helper()
	f := &fixture{fs: afero.NewMemMapFs(), vm: &fakeVM{}, prompt: &recordingPrompter{}}
	for name, doc := range configs {
		require.NoError(t, afero.WriteFile(f.fs, "configs/"+name+".json", []byte(doc), 0o644))
	}
	f.hook = New(Options{
		Loader:    &profconfig.Loader{FS: f.fs, Dir: "configs"},
		FS:        f.fs,
		OutputDir: "out",
		Prompter:  f.prompt,
		OnSessionClose: func(st session.Stats) {
			f.mu.Lock()
			f.closed = append(f.closed, st)
			f.mu.Unlock()
		},
	})
	require.NoError(t, f.hook.Install(f.vm))
	return f
}

func (f *fixture) closedStats() []session.Stats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]session.Stats(nil), f.closed...)
}

func (f *fixture) read(t *testing.T, path string) []record.Record {
	t.Helper()
	data, err := afero.ReadFile(f.fs, path)
	require.NoError(t, err)
	_, recs, err := record.ReadAll(bytes.NewReader(data))
	require.NoError(t, err)
	return recs
}

func stacks(recs []record.Record) []string {
	var out []string
	for _, r := range recs {
		out = append(out, r.Stack[0])
	}
	return out
}

func TestInstall_Once(t *testing.T) {
	f := newFixture(t, nil)
	require.ErrorIs(t, f.hook.Install(&fakeVM{}), ErrAlreadyInstalled)
}

func TestIntercept_NoSession(t *testing.T) {
	f := newFixture(t, nil)
	f.vm.call(stackCall{"Actor::Move"})
	_, ok := f.hook.Stats()
	require.False(t, ok)
	require.NoError(t, f.hook.StopCurrentConfig())
}

func TestRunConfig_Scenario(t *testing.T) {
	f := newFixture(t, map[string]string{
		"actors": `{"includeFilters": ["^Actor::"], "excludeFilters": ["Debug$"], "maxNumCalls": 3}`,
	})
	require.NoError(t, f.hook.RunConfig("actors"))

	for _, name := range []string{"Actor::Move", "Actor::MoveDebug", "Actor::Attack", "Other::Foo", "Actor::Cast", "Actor::Late"} {
		f.vm.call(stackCall{name})
	}

	require.Eventually(t, func() bool { return len(f.closedStats()) == 1 }, 5*time.Second, time.Millisecond)
	_, active := f.hook.Stats()
	require.False(t, active, "a session that hit its limit is detached")

	require.Equal(t, []string{"Actor::Move", "Actor::Attack", "Actor::Cast"}, stacks(f.read(t, "out/actors0.jsonl")))
	require.Equal(t, 2, f.prompt.count())
}

func TestRunConfig_FailedConfigKeepsRunningSession(t *testing.T) {
	f := newFixture(t, map[string]string{
		"good": `{"writeMode": "WriteLive"}`,
		"bad":  `{"includeFilters": ["("]}`,
	})
	require.NoError(t, f.hook.RunConfig("good"))
	f.vm.call(stackCall{"A"})

	err := f.hook.RunConfig("bad")
	require.ErrorIs(t, err, ErrConfigLoadFailed)
	require.ErrorIs(t, f.hook.RunConfig("missing"), ErrConfigLoadFailed)

	f.vm.call(stackCall{"B"})
	st, ok := f.hook.Stats()
	require.True(t, ok)
	require.Equal(t, "good", st.Config)
	require.Equal(t, uint64(2), st.Recorded)

	require.NoError(t, f.hook.StopCurrentConfig())
	require.Equal(t, []string{"A", "B"}, stacks(f.read(t, "out/good0.jsonl")))
}

func TestRunConfig_ReplacesSession(t *testing.T) {
	f := newFixture(t, map[string]string{
		"a": `{"outFilename": "shared"}`,
		"b": `{"outFilename": "shared"}`,
	})
	require.NoError(t, f.hook.RunConfig("a"))
	require.NoError(t, f.hook.RunConfig("b"))

	closed := f.closedStats()
	require.Len(t, closed, 1)
	require.Equal(t, "a", closed[0].Config)
	require.Zero(t, closed[0].Recorded)
	require.Equal(t, session.Closed, closed[0].State)

	f.vm.call(stackCall{"X"})
	f.vm.call(stackCall{"Y"})
	require.NoError(t, f.hook.StopCurrentConfig())

	closed = f.closedStats()
	require.Len(t, closed, 2)
	require.Equal(t, "b", closed[1].Config)
	require.Equal(t, uint64(2), closed[1].Recorded)

	// Session a captured nothing, so b got the first free path.
	require.Equal(t, "out/shared0.jsonl", closed[1].Path)
	require.Equal(t, []string{"X", "Y"}, stacks(f.read(t, "out/shared0.jsonl")))
}

func TestRunConfig_SequentialRunsDoNotOverwrite(t *testing.T) {
	f := newFixture(t, map[string]string{"run": `{"maxFilepathSuffix": 1}`})

	for i := 0; i < 3; i++ {
		require.NoError(t, f.hook.RunConfig("run"))
		f.vm.call(stackCall{"call"})
		err := f.hook.StopCurrentConfig()
		if i < 2 {
			require.NoError(t, err)
		} else {
			require.ErrorIs(t, err, output.ErrFilepathExhausted)
		}
	}

	closed := f.closedStats()
	require.Len(t, closed, 3)
	require.Equal(t, "out/run0.jsonl", closed[0].Path)
	require.Equal(t, "out/run1.jsonl", closed[1].Path)
	require.ErrorIs(t, closed[2].Err, output.ErrFilepathExhausted)
}

func TestIntercept_CaptureFailuresAreSwallowed(t *testing.T) {
	f := newFixture(t, map[string]string{"all": `{"writeMode": 2}`})
	require.NoError(t, f.hook.RunConfig("all"))

	require.NotPanics(t, func() {
		f.vm.call(errCall{})
		f.vm.call(panicCall{})
	})
	f.vm.call(stackCall{"ok"})

	require.Equal(t, uint64(2), f.hook.CaptureFailures())
	st, ok := f.hook.Stats()
	require.True(t, ok)
	require.Equal(t, uint64(1), st.Recorded)
	require.NoError(t, f.hook.StopCurrentConfig())
}

func TestHook_ConcurrentRunAndDispatch(t *testing.T) {
	f := newFixture(t, map[string]string{
		"a": `{"writeMode": "WriteLive", "maxFilepathSuffix": 100}`,
		"b": `{"writeMode": "WriteAtEnd", "maxFilepathSuffix": 100}`,
	})

	stop := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					f.vm.call(stackCall{"Actor::Move"})
				}
			}
		}()
	}

	for i := 0; i < 20; i++ {
		name := "a"
		if i%2 == 1 {
			name = "b"
		}
		require.NoError(t, f.hook.RunConfig(name))
	}
	close(stop)
	wg.Wait()
	require.NoError(t, f.hook.StopCurrentConfig())

	closed := f.closedStats()
	require.Len(t, closed, 20)
	paths := map[string]bool{}
	for _, st := range closed {
		require.NoError(t, st.Err)
		if st.Path == "" {
			continue
		}
		require.False(t, paths[st.Path], "path %s reused", st.Path)
		paths[st.Path] = true
		require.Len(t, f.read(t, st.Path), int(st.Recorded)-int(st.Dropped))
	}
}

func TestRunConfig_WarnsWhenEveryPathIsTaken(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "configs/full.json", []byte(`{"maxFilepathSuffix": 1}`), 0o644))
	require.NoError(t, afero.WriteFile(fs, "configs/off.json", []byte(`{"maxFilepathSuffix": 1, "writeMode": "NoWrite"}`), 0o644))
	for _, p := range []string{"out/full0.jsonl", "out/full1.jsonl", "out/off0.jsonl", "out/off1.jsonl"} {
		require.NoError(t, afero.WriteFile(fs, p, []byte("taken"), 0o644))
	}

	logger, logs := logtest.NewNullLogger()
	h := New(Options{Loader: &profconfig.Loader{FS: fs, Dir: "configs"}, FS: fs, OutputDir: "out", Logger: logger})

	require.NoError(t, h.RunConfig("full"))
	require.NoError(t, h.StopCurrentConfig())

	var warned []string
	for _, e := range logs.AllEntries() {
		if e.Level == logrus.WarnLevel {
			warned = append(warned, e.Data["config"].(string))
			require.ErrorIs(t, e.Data["error"].(error), output.ErrFilepathExhausted)
		}
	}
	require.Equal(t, []string{"full"}, warned)

	logs.Reset()
	require.NoError(t, h.RunConfig("off"))
	require.NoError(t, h.StopCurrentConfig())
	for _, e := range logs.AllEntries() {
		require.NotEqual(t, logrus.WarnLevel, e.Level, "NoWrite configs never write")
	}
}

func TestRunConfig_QueueSizeReadPerRun(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "configs/live.json", []byte(`{"writeMode": "WriteLive"}`), 0o644))

	size := 0
	logger, logs := logtest.NewNullLogger()
	h := New(Options{
		Loader:    &profconfig.Loader{FS: fs, Dir: "configs"},
		FS:        fs,
		Logger:    logger,
		QueueSize: func() int { return size },
	})

	var got []any
	for _, n := range []int{0, 8, 64} {
		size = n
		logs.Reset()
		require.NoError(t, h.RunConfig("live"))
		require.NoError(t, h.StopCurrentConfig())
		for _, e := range logs.AllEntries() {
			if e.Message == "Started profiling config" {
				got = append(got, e.Data["queue_size"])
			}
		}
	}
	require.Equal(t, []any{output.DefaultQueueSize, 8, 64}, got)
}
