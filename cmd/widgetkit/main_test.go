package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spektr-org/widgetkit/engine"
	"github.com/spektr-org/widgetkit/widget"
)

func run(t *testing.T, cfg string, args ...string) (string, error) {
	t.Helper()
	a = &app{}
	outFormat = "json"
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetArgs(append([]string{"--config", cfg}, args...))
	err := root.Execute()
	return out.String(), err
}

func testConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "widgetkit.yaml")
	content := "store:\n  driver: file\n  dir: " + filepath.Join(dir, "widgets") + "\nlog:\n  level: error\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestNewEditShow(t *testing.T) {
	cfg := testConfig(t)

	out, err := run(t, cfg, "new", "tickets_report")
	require.NoError(t, err)
	var created widget.State
	require.NoError(t, json.Unmarshal([]byte(out), &created))

	_, err = run(t, cfg, "edit", created.ID, "assignees", `["u1"]`)
	require.NoError(t, err)
	_, err = run(t, cfg, "edit", created.ID, "summary", "crash", "--partial", "contains")
	require.NoError(t, err)

	out, err = run(t, cfg, "show", created.ID)
	require.NoError(t, err)
	var shown widget.State
	require.NoError(t, json.Unmarshal([]byte(out), &shown))
	assert.Equal(t, []any{"u1"}, shown.Query["assignee"])
	assert.Equal(t, map[string]any{"summary": map[string]any{engine.PartialContains: "crash"}},
		shown.Query[widget.KeyPartialMatch])

	_, err = run(t, cfg, "remove", created.ID, "assignees")
	require.NoError(t, err)
	out, err = run(t, cfg, "show", created.ID)
	require.NoError(t, err)
	shown = widget.State{}
	require.NoError(t, json.Unmarshal([]byte(out), &shown))
	assert.NotContains(t, shown.Query, "assignee")
}

func TestUnknownReportSuggests(t *testing.T) {
	_, err := run(t, testConfig(t), "new", "tickets_reprot")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "did you mean tickets_report")
}

func TestValidateFailsOnMissingRequiredGroup(t *testing.T) {
	cfg := testConfig(t)
	out, err := run(t, cfg, "new", "lead_time_by_stage_report")
	require.NoError(t, err)
	var created widget.State
	require.NoError(t, json.Unmarshal([]byte(out), &created))

	out, err = run(t, cfg, "validate", created.ID)

	assert.Error(t, err)
	assert.Contains(t, out, "is required")
}

func TestParseValue(t *testing.T) {
	assert.Equal(t, []any{"a", "b"}, parseValue(`["a","b"]`, false))
	assert.Equal(t, float64(5), parseValue("5", false))
	assert.Equal(t, "5", parseValue("5", true))
	assert.Equal(t, "free text", parseValue("free text", false))
}

func TestRenderYAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, render(&buf, widget.State{ID: "w-1", Type: "tickets_report"}, "yaml"))
	assert.Contains(t, buf.String(), "id: w-1")
	assert.Error(t, render(&buf, 1, "xml"))
}
