package cmd

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/openpolitica/proyectos-ley/internal/config"
	"github.com/openpolitica/proyectos-ley/internal/era"
	"github.com/openpolitica/proyectos-ley/internal/worker"
)

type fakeApp struct {
	cfg     config.Config
	results []worker.EraResult
	mode    worker.Mode
	names   []string
	httpOn  string
	closed  bool
}

func (f *fakeApp) Logger() *zap.Logger { return zap.NewNop() }

func (f *fakeApp) Eras() []era.Era { return era.Table(era.DefaultSources()) }

func (f *fakeApp) DatabasePath(period era.Period) string {
	return filepath.Join(f.cfg.Output.Dir, period.DatabaseName())
}

func (f *fakeApp) RunEras(_ context.Context, mode worker.Mode, names []string) ([]worker.EraResult, error) {
	f.mode = mode
	f.names = names
	if _, err := era.Select(f.Eras(), names); err != nil {
		return nil, err
	}
	return f.results, nil
}

func (f *fakeApp) StartHTTP(addr string) { f.httpOn = addr }

func (f *fakeApp) Close() { f.closed = true }

func withFakeApp(t *testing.T, fake *fakeApp) {
	t.Helper()
	previous := newApp
	newApp = func(_ context.Context, cfg config.Config) (App, error) {
		fake.cfg = cfg
		return fake, nil
	}
	t.Cleanup(func() { newApp = previous })
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func period2021() era.Period { return era.Period{From: 2021, To: 2026} }

func TestRunCommand_PrintsSummary(t *testing.T) {
	fake := &fakeApp{results: []worker.EraResult{{
		Era: period2021(), Mode: worker.ModeRun, References: 3, Bills: 3, Output: "data/2021-2026.db",
	}}}
	withFakeApp(t, fake)

	out, err := execute(t, "run", "--era", "2021", "--output-dir", t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, worker.ModeRun, fake.mode)
	assert.Equal(t, []string{"2021"}, fake.names)
	assert.True(t, fake.closed)
	assert.Contains(t, out, "2021-2026")
	assert.Contains(t, out, "ok")
}

func TestRunCommand_CacheFlagOverridesConfig(t *testing.T) {
	fake := &fakeApp{}
	withFakeApp(t, fake)

	_, err := execute(t, "run", "--cache", "--output-dir", t.TempDir())
	require.NoError(t, err)
	assert.True(t, fake.cfg.Cache.OnRun)
}

func TestExtractCommand_PositionalEras(t *testing.T) {
	fake := &fakeApp{}
	withFakeApp(t, fake)

	_, err := execute(t, "extract", "--era", "1995", "2011-2016", "--output-dir", t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, worker.ModeExtract, fake.mode)
	assert.Equal(t, []string{"1995", "2011-2016"}, fake.names)
}

func TestLoadCommand_StrictFailsOnEraError(t *testing.T) {
	failed := worker.EraResult{Era: period2021(), Mode: worker.ModeLoad, Err: errors.New("cache missing"), Error: "cache missing"}
	fake := &fakeApp{results: []worker.EraResult{failed}}
	withFakeApp(t, fake)

	out, err := execute(t, "load", "--era", "2021", "--output-dir", t.TempDir())
	require.NoError(t, err, "failures only change the exit status under --strict")
	assert.Contains(t, out, "cache missing")

	_, err = execute(t, "load", "--era", "2021", "--strict", "--output-dir", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 1 eras failed")
}

func TestRunCommand_UnknownEra(t *testing.T) {
	withFakeApp(t, &fakeApp{})

	_, err := execute(t, "run", "--era", "1990", "--output-dir", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown era")
}

func TestRootCommand_RejectsBadAggregation(t *testing.T) {
	withFakeApp(t, &fakeApp{})

	_, err := execute(t, "run", "--aggregation", "sometimes", "--output-dir", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "aggregation")
}

func TestErasCommand_ListsTable(t *testing.T) {
	withFakeApp(t, &fakeApp{})

	out, err := execute(t, "eras", "--output-dir", t.TempDir())
	require.NoError(t, err)
	for _, e := range era.Table(era.DefaultSources()) {
		assert.Contains(t, out, e.CacheName())
	}
	assert.Contains(t, out, "single")
	assert.Contains(t, out, "html")
	assert.Contains(t, out, "rest")
}

func TestServeCommand_StopsOnCancel(t *testing.T) {
	fake := &fakeApp{}
	withFakeApp(t, fake)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	root := newRootCmd()
	root.SetArgs([]string{"serve", "--addr", "127.0.0.1:0", "--output-dir", t.TempDir()})
	require.NoError(t, root.ExecuteContext(ctx))
	assert.Equal(t, "127.0.0.1:0", fake.httpOn)
	assert.True(t, fake.closed)
}
