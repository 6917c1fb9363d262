package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/danpilch/callprof/pkg/record"
	"github.com/stretchr/testify/require"
)

func TestParseLine(t *testing.T) {
	require.Nil(t, parseLine(""))
	require.Nil(t, parseLine("   "))
	require.Nil(t, parseLine("# comment"))
	require.Equal(t, lineCall{"Actor::Move", "Quest::Tick"}, parseLine(" Actor::Move ; Quest::Tick ;"))
}

func TestReadCalls(t *testing.T) {
	calls, err := readCalls(strings.NewReader("A;B\n\n# skip\nC\n"))
	require.NoError(t, err)
	require.Len(t, calls, 2)

	stack, err := calls[0].Stack()
	require.NoError(t, err)
	require.Equal(t, []string{"A", "B"}, stack)
}

// setup writes a settings file and configs into a temp dir.
func setup(t *testing.T, configs map[string]string) (dir, settingsPath string) {
	t.Helper()
	dir = t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "configs"), 0o755))
	for name, doc := range configs {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "configs", name+".json"), []byte(doc), 0o644))
	}
	settingsPath = filepath.Join(dir, "callprof.yaml")
	doc := "configDir: " + filepath.Join(dir, "configs") + "\noutputDir: " + filepath.Join(dir, "out") + "\nlogLevel: error\n"
	require.NoError(t, os.WriteFile(settingsPath, []byte(doc), 0o644))
	return dir, settingsPath
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestReplayCmd(t *testing.T) {
	dir, settingsPath := setup(t, map[string]string{
		"actors": `{"includeFilters": ["^Actor::"], "showDebugMessageBox": false}`,
	})
	input := "Actor::Move;Main\nQuest::Start;Main\nActor::Attack;Main\n"

	out, err := run(t, input, "--settings", settingsPath, "--prompts=false", "-o", "tsv", "replay", "-c", "actors")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	fields := strings.Split(lines[1], "\t")
	require.Equal(t, "actors", fields[0])
	require.Equal(t, "closed", fields[2])
	require.Equal(t, "2", fields[5])
	require.Equal(t, "1", fields[6])

	data, err := os.ReadFile(filepath.Join(dir, "out", "actors0.jsonl"))
	require.NoError(t, err)
	hdr, recs, err := record.ReadAll(bytes.NewReader(data))
	require.NoError(t, err)
	require.Equal(t, "actors", hdr.Config)
	require.Len(t, recs, 2)
	require.Equal(t, []string{"Actor::Attack", "Main"}, recs[1].Stack)
}

func TestReplayCmd_NoConfig(t *testing.T) {
	_, settingsPath := setup(t, nil)
	_, err := run(t, "", "--settings", settingsPath, "replay")
	require.Error(t, err)
}

func TestValidateCmd(t *testing.T) {
	_, settingsPath := setup(t, map[string]string{
		"good": `{"maxNumCalls": 10}`,
		"bad":  `{"includeFilters": ["("]}`,
	})

	out, err := run(t, "", "--settings", settingsPath, "validate", "good")
	require.NoError(t, err)
	require.Contains(t, out, "good\tOK")

	out, err = run(t, "", "--settings", settingsPath, "validate", "good", "bad")
	require.Error(t, err)
	require.Contains(t, out, "bad\tFAILED")
}

func TestBenchCmd(t *testing.T) {
	_, settingsPath := setup(t, map[string]string{"nowrite": `{"writeMode": "NoWrite"}`})
	out, err := run(t, "A;B\nC\n", "--settings", settingsPath, "bench", "nowrite", "--iterations", "50", "--warmup", "5")
	require.NoError(t, err)
	require.Contains(t, out, "nowrite")
}

func TestVersionCmd(t *testing.T) {
	out, err := run(t, "", "version")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(out, "callprof 1.2.0 (build "))
}

func TestInspectAndFlamegraphCmds(t *testing.T) {
	dir, settingsPath := setup(t, map[string]string{"all": `{"showDebugMessageBox": false}`})
	input := "Actor::Move;Main\nActor::Move;Main\nQuest::Start;Main\n"
	_, err := run(t, input, "--settings", settingsPath, "replay", "-c", "all")
	require.NoError(t, err)
	path := filepath.Join(dir, "out", "all0.jsonl")

	out, err := run(t, "", "inspect", path, "--baseline", path)
	require.NoError(t, err)
	require.Contains(t, out, "All 6 checks passed.")
	require.Contains(t, out, "No significant shifts.")

	out, err = run(t, "", "flamegraph", path, "--folded")
	require.NoError(t, err)
	require.Equal(t, "Main;Actor::Move 2\nMain;Quest::Start 1\n", out)

	svg := filepath.Join(dir, "all.svg")
	_, err = run(t, "", "flamegraph", path, "--out", svg)
	require.NoError(t, err)
	data, err := os.ReadFile(svg)
	require.NoError(t, err)
	require.Contains(t, string(data), "all (all0)")
}
