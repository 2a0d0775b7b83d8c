package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Flume/internal/cli"
	"github.com/shaiso/Flume/internal/mq"
	"github.com/shaiso/Flume/internal/runner"
)

const countSpec = `{
	"name": "count",
	"stages": [
		{"id": "read", "kind": "create", "fn": "range", "config": {"count": 3, "start": 5}},
		{"id": "split", "kind": "split", "fn": "count_to", "inputs": ["read"]},
		{"id": "items", "kind": "group_into_keyed_work_items", "inputs": ["split"]},
		{"id": "process", "kind": "process", "fn": "count_to", "config": {"per_call": 2}, "inputs": ["items"]}
	]
}`

func writeSpec(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "spec.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func execute(args ...string) error {
	cmd := newRootCmd()
	cmd.SetArgs(args)
	return cmd.Execute()
}

func TestValidateCmd(t *testing.T) {
	assert.NoError(t, execute("validate", writeSpec(t, countSpec)))

	bad := `{"stages": [{"id": "read", "kind": "create", "fn": "nope"}]}`
	err := execute("validate", writeSpec(t, bad))
	assert.ErrorIs(t, err, runner.ErrUnknownFunction)
}

func TestRunCmd(t *testing.T) {
	t.Setenv("STATE_BACKEND", "memory")
	t.Setenv("RABBITMQ_URL", "")
	t.Setenv("METRICS_ADDR", "")

	assert.NoError(t, execute("run", writeSpec(t, countSpec), "--json", "--parallelism", "2"))
}

func TestRunCmd_MissingFile(t *testing.T) {
	assert.Error(t, execute("run", filepath.Join(t.TempDir(), "missing.json")))
}

func TestPrintEvent(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	var stdout bytes.Buffer
	show := printEvent(cli.NewOutput(false, &stdout, io.Discard))

	require.NoError(t, show(context.Background(), mq.Event{
		Type: mq.MessageTypeStarted, Timestamp: ts, PipelineID: "p1", Name: "count", Stages: 4,
	}))
	require.NoError(t, show(context.Background(), mq.Event{
		Type: mq.MessageTypeFailed, Timestamp: ts, PipelineID: "p1", Kind: "exception", Error: "boom",
	}))

	out := stdout.String()
	assert.Contains(t, out, "count (4 stages)")
	assert.Contains(t, out, "pipeline.failed")
	assert.Contains(t, out, "boom")
	assert.Contains(t, out, "2026-03-01T12:00:00Z")
}
