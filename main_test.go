package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackvity/vfsim/internal/config"
)

func writeHostFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func testOptions() *config.Options {
	return &config.Options{
		Platform:  "unix",
		Case:      "auto",
		Sharing:   "auto",
		Format:    "yaml",
		LogFormat: "text",
	}
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunSeedScriptDump(t *testing.T) {
	dir := t.TempDir()
	o := testOptions()
	o.Seed = writeHostFile(t, dir, "seed.yaml", `
entries:
  - path: docs/readme.md
    content: hello
  - path: tmp
    dir: true
`)
	o.Script = writeHostFile(t, dir, "script.toml", `
[[steps]]
op = "append"
path = "/srv/docs/readme.md"
content = " world"

[[steps]]
op = "rename"
path = "/srv/docs/readme.md"
target = "/srv/README.md"

[[steps]]
op = "remove"
path = "/srv/tmp"
`)
	o.Root = "/srv"
	require.NoError(t, o.ValidateConfig())

	var out bytes.Buffer
	code := run(context.Background(), o, &out, discard())
	require.Equal(t, ExitCodeSuccess, code, out.String())
	assert.Contains(t, out.String(), "path: README.md")
	assert.Contains(t, out.String(), "content: hello world")
	assert.Contains(t, out.String(), "path: docs")
	assert.NotContains(t, out.String(), "path: tmp")
}

func TestRunStepFailure(t *testing.T) {
	dir := t.TempDir()
	o := testOptions()
	o.Script = writeHostFile(t, dir, "script.yaml", `
steps:
  - op: write
    path: /a.txt
    content: x
  - op: remove
    path: /missing/b.txt
`)
	var out bytes.Buffer
	code := run(context.Background(), o, &out, discard())
	assert.Equal(t, ExitCodeStepFailure, code)
	assert.Contains(t, out.String(), "FAILED: step 1 (remove /missing/b.txt)")
}

func TestRunWatchPrintsEvents(t *testing.T) {
	dir := t.TempDir()
	o := testOptions()
	o.Platform = "windows"
	o.Root = `C:\`
	o.WatchMode = true
	o.Watch = config.WatchConfig{Recursive: true}
	o.Script = writeHostFile(t, dir, "script.yaml", `
steps:
  - op: mkdir
    path: 'C:\logs'
  - op: write
    path: 'C:\logs\app.log'
    content: started
`)
	require.NoError(t, o.ValidateConfig())

	var out bytes.Buffer
	code := run(context.Background(), o, &out, discard())
	require.Equal(t, ExitCodeSuccess, code)
	assert.Contains(t, out.String(), "path: logs/app.log")
}

func TestRunConfigErrors(t *testing.T) {
	t.Run("BadWorkingDirectory", func(t *testing.T) {
		o := testOptions()
		o.Platform = "windows"
		o.WorkingDirectory = `C:\bad|dir`
		assert.Equal(t, ExitCodeConfigError, run(context.Background(), o, io.Discard, discard()))
	})

	t.Run("UnparsableSeed", func(t *testing.T) {
		o := testOptions()
		o.Seed = writeHostFile(t, t.TempDir(), "seed.yaml", "entries: [")
		assert.Equal(t, ExitCodeConfigError, run(context.Background(), o, io.Discard, discard()))
	})
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	o := testOptions()
	o.LogFormat = "json"
	o.Verbose = true
	newLogger(o, &buf).Debug("hello", "k", "v")
	assert.Contains(t, buf.String(), `"msg":"hello"`)

	buf.Reset()
	o.LogFormat = "text"
	o.Verbose = false
	newLogger(o, &buf).Debug("hidden")
	assert.Empty(t, buf.String())
}
