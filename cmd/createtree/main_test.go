package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"createtree/internal/client"
	"createtree/internal/domain"
)

func TestRenderTablePadsShortRows(t *testing.T) {
	out := renderTable([]string{"A", "B"}, [][]string{{"x"}, {"y", "z"}}, []columnAlignment{alignLeft, alignRight})
	assert.Contains(t, out, "A")
	assert.Contains(t, out, "z")
	assert.Equal(t, 6, strings.Count(out, "\n")+1, out)
	assert.Empty(t, renderTable(nil, nil, nil))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("  short ", 10))
	assert.Equal(t, "abcd…", truncate("abcdefgh", 5))
	assert.Equal(t, "자장가…", truncate("자장가 노래", 4))
}

func TestPrintJobs(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	done := domain.NewJob("job-1", domain.JobKindMusic, "", domain.GenerationParams{Title: "A Calm Lullaby"}, now.Add(-2*time.Hour))
	done.Status = domain.JobStatusCompleted
	done.Progress = 100
	done.Result = &domain.JobResult{URL: "http://localhost:8080/static/music/a.wav"}
	failed := domain.NewJob("job-2", domain.JobKindImage, "", domain.GenerationParams{Style: "ghibli"}, now.Add(-time.Minute))
	failed.Status = domain.JobStatusFailed
	failed.Error = "cancelled"

	var buf bytes.Buffer
	printJobs(&buf, []*domain.Job{done, failed}, now)
	out := buf.String()
	assert.Contains(t, out, "job-1")
	assert.Contains(t, out, "2 hours ago")
	assert.Contains(t, out, "music/a.wav")
	assert.Contains(t, out, "cancelled")
	assert.Contains(t, out, "100%")

	buf.Reset()
	printJobs(&buf, nil, now)
	assert.Equal(t, "No jobs found\n", buf.String())
}

func TestClientCommandsSkipConfig(t *testing.T) {
	root := newRootCommand()
	for _, path := range [][]string{{"music"}, {"transform"}, {"jobs", "status"}, {"jobs", "cancel"}} {
		cmd, _, err := root.Find(path)
		require.NoError(t, err)
		assert.True(t, shouldSkipConfig(cmd), strings.Join(path, " "))
	}
	for _, path := range [][]string{{"serve"}, {"migrate"}, {"jobs", "list"}, {"jobs", "sweep"}} {
		cmd, _, err := root.Find(path)
		require.NoError(t, err)
		assert.False(t, shouldSkipConfig(cmd), strings.Join(path, " "))
	}
}

func fakeAPI(t *testing.T, submitted *client.MusicRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v1/music/jobs":
			assert.NoError(t, json.NewDecoder(r.Body).Decode(submitted))
			w.WriteHeader(http.StatusAccepted)
			_, _ = w.Write([]byte(`{"jobId":"job-9"}`))
		case r.Method == http.MethodGet && r.URL.Path == "/v1/jobs/job-9":
			_ = json.NewEncoder(w).Encode(client.StatusResponse{
				JobID: "job-9", Kind: "music", Status: client.StatusCompleted, Progress: 100,
				AudioURL: "http://cdn/a.wav", Duration: 120, Title: "A Calm Lullaby",
			})
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":{"code":"not_found","message":"job not found"}}`))
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestMusicCommandSubmitsAndWaits(t *testing.T) {
	var submitted client.MusicRequest
	srv := fakeAPI(t, &submitted)

	out, err := runCLI(t, "music", "--server", srv.URL, "-d", "120", "--style", "lullaby", "--wait", "a", "calm", "lullaby")
	require.NoError(t, err)
	assert.Equal(t, "a calm lullaby", submitted.Prompt)
	assert.Equal(t, 120, submitted.Duration)
	assert.Equal(t, "lullaby", submitted.Style)
	assert.Contains(t, out, "job job-9 submitted")
	assert.Contains(t, out, "completed 100%")
	assert.Contains(t, out, "http://cdn/a.wav")
	assert.Contains(t, out, "2m0s")
}

func TestJobsStatusCommandReportsMissingJob(t *testing.T) {
	srv := fakeAPI(t, &client.MusicRequest{})
	_, err := runCLI(t, "jobs", "status", "--server", srv.URL, "nope")
	require.Error(t, err)
	assert.ErrorIs(t, err, client.ErrJobNotFound)
}

func TestTransformRequiresStyleOrPrompt(t *testing.T) {
	_, err := runCLI(t, "transform", "--server", "http://127.0.0.1:1", "photo.png")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--style or --prompt")
}

func TestLoadImageArg(t *testing.T) {
	var req client.ImageRequest
	require.NoError(t, loadImageArg("https://example.com/p.png", &req))
	assert.Equal(t, "https://example.com/p.png", req.ImageURL)
	assert.Empty(t, req.Image)

	path := filepath.Join(t.TempDir(), "p.png")
	require.NoError(t, os.WriteFile(path, []byte("\x89PNG\r\n\x1a\n"), 0o600))
	req = client.ImageRequest{}
	require.NoError(t, loadImageArg(path, &req))
	assert.Equal(t, "iVBORw0KGgo=", req.Image)

	assert.Error(t, loadImageArg(filepath.Join(t.TempDir(), "missing.png"), &req))
}
