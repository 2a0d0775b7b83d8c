package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeServer — минимальный API с одним pipeline, который завершается
// после нескольких опросов.
type fakeServer struct {
	mu        sync.Mutex
	submitted []byte
	polls     int
	stopped   bool
}

func (f *fakeServer) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/pipelines", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.submitted = body
		f.mu.Unlock()
		writeJSON(w, http.StatusCreated, map[string]any{"data": f.pipeline("RUNNING")})
	})

	mux.HandleFunc("GET /api/v1/pipelines", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"data":  []PipelineResponse{f.pipeline("DONE"), {ID: "p2", State: "FAILED", Error: "boom"}},
			"total": 2,
		})
	})

	mux.HandleFunc("GET /api/v1/pipelines/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "p1" {
			writeJSON(w, http.StatusNotFound, map[string]any{
				"error": map[string]string{"code": "NOT_FOUND", "message": "pipeline not found"},
			})
			return
		}

		f.mu.Lock()
		f.polls++
		state := "RUNNING"
		if f.polls >= 3 {
			state = "DONE"
		}
		f.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{"data": f.pipeline(state)})
	})

	mux.HandleFunc("POST /api/v1/pipelines/{id}/stop", func(w http.ResponseWriter, _ *http.Request) {
		f.mu.Lock()
		f.stopped = true
		f.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{"data": f.pipeline("CANCELLED")})
	})

	mux.HandleFunc("GET /api/v1/functions", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"data": map[string]any{"functions": []string{"root/range", "do/identity"}},
		})
	})

	return mux
}

func (f *fakeServer) snapshot() (submitted []byte, polls int, stopped bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submitted, f.polls, f.stopped
}

func (f *fakeServer) pipeline(state string) PipelineResponse {
	return PipelineResponse{ID: "p1", Name: "numbers", State: state, StartedAt: "2026-01-01T00:00:00Z", LanesCreated: 4}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func newTestClient(t *testing.T) (*Client, *fakeServer) {
	t.Helper()
	f := &fakeServer{}
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)
	return NewClient(srv.URL), f
}

// --- Client Tests ---

func TestClient_SubmitAndWait(t *testing.T) {
	client, f := newTestClient(t)

	p, err := client.SubmitPipeline(json.RawMessage(`{"stages":[]}`))
	require.NoError(t, err)
	assert.Equal(t, "p1", p.ID)
	assert.False(t, p.IsTerminal())
	submitted, _, _ := f.snapshot()
	assert.JSONEq(t, `{"stages":[]}`, string(submitted))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	final, err := client.WaitPipeline(ctx, p.ID, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, "DONE", final.State)
	_, polls, _ := f.snapshot()
	assert.Equal(t, 3, polls)
}

func TestClient_NotFound(t *testing.T) {
	client, _ := newTestClient(t)

	_, err := client.GetPipeline("missing")
	require.Error(t, err)
	assert.Equal(t, "NOT_FOUND: pipeline not found", err.Error())
}

func TestClient_ListAndFunctions(t *testing.T) {
	client, _ := newTestClient(t)

	pipelines, err := client.ListPipelines()
	require.NoError(t, err)
	require.Len(t, pipelines, 2)
	assert.Equal(t, "boom", pipelines[1].Error)

	names, err := client.ListFunctions()
	require.NoError(t, err)
	assert.Equal(t, []string{"root/range", "do/identity"}, names)
}

// --- Command Tests ---

func runCmd(t *testing.T, client *Client, jsonMode bool, args ...string) (string, string, error) {
	t.Helper()

	var stdout, stderr bytes.Buffer
	cmd := NewPipelineCmd(
		func() *Client { return client },
		func() *Output { return NewOutput(jsonMode, &stdout, &stderr) },
	)
	cmd.SetArgs(args)
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)

	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestPipelineCmd_SubmitWait(t *testing.T) {
	client, _ := newTestClient(t)

	path := filepath.Join(t.TempDir(), "spec.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"name":"numbers","stages":[]}`), 0o644))

	stdout, stderr, err := runCmd(t, client, false, "submit", path, "--wait", "--interval", "1ms")
	require.NoError(t, err)
	assert.Contains(t, stderr, "Pipeline submitted: p1")
	assert.Contains(t, stdout, "DONE")
	assert.True(t, strings.HasPrefix(stdout, "ID"))
}

func TestPipelineCmd_SubmitRejectsBadJSON(t *testing.T) {
	client, f := newTestClient(t)

	path := filepath.Join(t.TempDir(), "spec.json")
	require.NoError(t, os.WriteFile(path, []byte(`{`), 0o644))

	_, _, err := runCmd(t, client, false, "submit", path)
	assert.Error(t, err)
	submitted, _, _ := f.snapshot()
	assert.Nil(t, submitted)
}

func TestPipelineCmd_ListJSON(t *testing.T) {
	client, _ := newTestClient(t)

	stdout, _, err := runCmd(t, client, true, "list")
	require.NoError(t, err)

	var got []PipelineResponse
	require.NoError(t, json.Unmarshal([]byte(stdout), &got))
	assert.Len(t, got, 2)
}

func TestPipelineCmd_Stop(t *testing.T) {
	client, f := newTestClient(t)

	_, stderr, err := runCmd(t, client, false, "stop", "p1")
	require.NoError(t, err)
	_, _, stopped := f.snapshot()
	assert.True(t, stopped)
	assert.Contains(t, stderr, "CANCELLED")
}

// --- Output Tests ---

func TestOutput_Print(t *testing.T) {
	rows := [][]string{{"p1", "DONE"}, {"p2", "FAILED"}}
	data := []PipelineResponse{{ID: "p1", State: "DONE"}, {ID: "p2", State: "FAILED"}}

	var table bytes.Buffer
	require.NoError(t, NewOutput(false, &table, io.Discard).Print([]string{"ID", "STATE"}, rows, data))
	assert.Equal(t, "ID  STATE\np1  DONE\np2  FAILED\n", table.String())

	var js bytes.Buffer
	require.NoError(t, NewOutput(true, &js, io.Discard).Print([]string{"ID", "STATE"}, rows, data))
	var got []PipelineResponse
	require.NoError(t, json.Unmarshal(js.Bytes(), &got))
	assert.Equal(t, data, got)
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, io.ErrClosedPipe }

func TestOutput_PrintWriteError(t *testing.T) {
	for _, jsonMode := range []bool{false, true} {
		err := NewOutput(jsonMode, failingWriter{}, io.Discard).Print([]string{"ID"}, [][]string{{"p1"}}, "p1")
		assert.ErrorIs(t, err, io.ErrClosedPipe)
	}
}

func TestOutput_NoticeGoesToStderr(t *testing.T) {
	var stdout, stderr bytes.Buffer
	NewOutput(true, &stdout, &stderr).Notice("Pipeline stopped: %s (%s)", "p1", "CANCELLED")

	assert.Empty(t, stdout.String())
	assert.Equal(t, "Pipeline stopped: p1 (CANCELLED)\n", stderr.String())
}
