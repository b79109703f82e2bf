package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/flowline/pkg/flowline/config"
	"github.com/randalmurphal/flowline/pkg/flowline/engine"
)

const definition = `
pipelines:
  - name: ticks
    source:
      type: cron
      config: {schedule: "@every 1h", payload: tick}
    processors:
      - type: log
  - name: orders
    max_concurrency: 2
    processors:
      - type: text
        config: {op: upper}
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "flowline dev\n", out)
}

func TestValidate(t *testing.T) {
	path := writeFile(t, "pipelines.yaml", definition)
	out, err := execute(t, "validate", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "2 pipeline(s) ok")
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{name: "structural", content: "pipelines:\n  - processors: []\n", want: "name is required"},
		{name: "unknown type", content: "pipelines:\n  - name: a\n    processors: [{type: teleport}]\n", want: `unknown processor type "teleport"`},
		{name: "not yaml", content: "pipelines: [", want: "pipelines.yaml"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, "pipelines.yaml", tt.content)
			_, err := execute(t, "validate", "--config", path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidate_RequiresConfig(t *testing.T) {
	_, err := execute(t, "validate")
	assert.Error(t, err)
}

func TestRun_StopsOnCancel(t *testing.T) {
	path := writeFile(t, "pipelines.yaml", definition)
	settings := config.DefaultSettings()
	settings.MetricsAddr = ""
	settings.StateStore = filepath.Join(t.TempDir(), "state.db")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- run(ctx, path, settings, slog.New(slog.NewTextHandler(io.Discard, nil)))
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return after cancel")
	}
}

func TestRun_BadDefinition(t *testing.T) {
	path := writeFile(t, "pipelines.yaml", "pipelines: []\n")
	err := run(context.Background(), path, config.DefaultSettings(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.ErrorIs(t, err, config.ErrInvalidDefinition)
}

func TestMetricsServer(t *testing.T) {
	def, err := config.ParseDefinition([]byte(definition))
	require.NoError(t, err)
	eng := engine.New(engine.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	require.NoError(t, eng.Build(def))
	t.Cleanup(func() { _ = eng.Dispose(context.Background()) })

	srv := metricsServer(":0", eng)
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), `flow="orders"`)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
