package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fmueller/batchscribe/internal/config"
	"github.com/fmueller/batchscribe/internal/speech"
	"github.com/stretchr/testify/require"
)

// jobService is a minimal in-process stand-in for the remote batch API.
type jobService struct {
	mu          sync.Mutex
	server      *httptest.Server
	statusQueue []string
	uploads     int
	started     bool
	outputs     map[string][]byte
	outputOrder []string
}

func startJobService(t *testing.T, statusQueue []string) *jobService {
	t.Helper()

	svc := &jobService{
		statusQueue: statusQueue,
		outputs: map[string][]byte{
			"answers.json":   []byte(`{"answers":[{"id":"q1","response":"yes"}]}`),
			"transcript.txt": []byte("SPEAKER00: hello"),
		},
		outputOrder: []string{"answers.json", "transcript.txt"},
	}
	svc.server = httptest.NewServer(http.HandlerFunc(svc.handle))
	t.Cleanup(svc.server.Close)
	return svc
}

func (s *jobService) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/job/init":
		_ = json.NewEncoder(w).Encode(map[string]string{
			"job_id":              "job-9",
			"input_storage_path":  s.server.URL + "/in/job-9",
			"output_storage_path": s.server.URL + "/out/job-9",
		})

	case r.Method == http.MethodPut && strings.HasPrefix(r.URL.Path, "/in/job-9/"):
		s.uploads++
		w.WriteHeader(http.StatusOK)

	case r.Method == http.MethodPost && r.URL.Path == "/job":
		s.started = true
		w.WriteHeader(http.StatusAccepted)

	case r.Method == http.MethodGet && r.URL.Path == "/job/job-9/status":
		state := "Completed"
		if len(s.statusQueue) > 0 {
			state = s.statusQueue[0]
			s.statusQueue = s.statusQueue[1:]
		}
		resp := map[string]string{"job_state": state}
		if state == "Failed" {
			resp["error_message"] = "diarization crashed"
		}
		_ = json.NewEncoder(w).Encode(resp)

	case r.Method == http.MethodGet && r.URL.Path == "/out/job-9":
		entries := make([]map[string]string, 0, len(s.outputOrder))
		for _, name := range s.outputOrder {
			entries = append(entries, map[string]string{"name": name})
		}
		_ = json.NewEncoder(w).Encode(entries)

	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/out/job-9/"):
		name := strings.TrimPrefix(r.URL.Path, "/out/job-9/")
		content, ok := s.outputs[name]
		if !ok {
			http.Error(w, "no such artifact", http.StatusNotFound)
			return
		}
		_, _ = w.Write(content)

	default:
		http.Error(w, "unexpected request "+r.Method+" "+r.URL.Path, http.StatusNotFound)
	}
}

func newE2EApp(svc *jobService, audioPath, dest string, out *bytes.Buffer) *appState {
	return &appState{
		noProgress:   true,
		sourceSpec:   audioPath,
		dest:         dest,
		baseURL:      svc.server.URL,
		model:        "saaras:v2",
		diarize:      true,
		numSpeakers:  2,
		pollInterval: time.Millisecond,
		maxAttempts:  5,
		out:          out,
		sleepFn:      func(context.Context, time.Duration) error { return nil },
	}
}

func TestBatchWorkflowEndToEnd(t *testing.T) {
	t.Setenv(config.EnvAPIKey, "test-key")

	svc := startJobService(t, []string{"Accepted", "Running", "Completed"})

	audioPath := filepath.Join(t.TempDir(), "clip.wav")
	require.NoError(t, os.WriteFile(audioPath, []byte("pcm-bytes"), 0o644))

	dest := t.TempDir()
	out := new(bytes.Buffer)
	app := newE2EApp(svc, audioPath, dest, out)

	require.NoError(t, app.runBatch(context.Background()))

	require.Equal(t, 1, svc.uploads)
	require.True(t, svc.started)

	answers, err := os.ReadFile(filepath.Join(dest, "answers.json"))
	require.NoError(t, err)
	require.Equal(t, svc.outputs["answers.json"], answers)

	transcriptTxt, err := os.ReadFile(filepath.Join(dest, "transcript.txt"))
	require.NoError(t, err)
	require.Equal(t, svc.outputs["transcript.txt"], transcriptTxt)

	require.Contains(t, out.String(), filepath.Join(dest, "answers.json"))
	require.Contains(t, out.String(), filepath.Join(dest, "transcript.txt"))
}

func TestBatchWorkflowRemoteFailureSkipsDownloads(t *testing.T) {
	t.Setenv(config.EnvAPIKey, "test-key")

	svc := startJobService(t, []string{"Running", "Failed"})

	audioPath := filepath.Join(t.TempDir(), "clip.wav")
	require.NoError(t, os.WriteFile(audioPath, []byte("pcm-bytes"), 0o644))

	dest := t.TempDir()
	app := newE2EApp(svc, audioPath, dest, new(bytes.Buffer))

	err := app.runBatch(context.Background())

	var remoteErr *speech.RemoteJobError
	require.ErrorAs(t, err, &remoteErr)
	require.Equal(t, "diarization crashed", remoteErr.Message)

	files, readErr := os.ReadDir(dest)
	require.NoError(t, readErr)
	require.Empty(t, files, "no downloads may happen after a remote failure")
}

func TestBatchWorkflowTimesOutWhileJobStillRunning(t *testing.T) {
	t.Setenv(config.EnvAPIKey, "test-key")

	svc := startJobService(t, []string{"Running", "Running", "Running", "Running", "Running", "Running"})

	audioPath := filepath.Join(t.TempDir(), "clip.wav")
	require.NoError(t, os.WriteFile(audioPath, []byte("pcm-bytes"), 0o644))

	dest := t.TempDir()
	app := newE2EApp(svc, audioPath, dest, new(bytes.Buffer))
	app.maxAttempts = 3

	err := app.runBatch(context.Background())
	require.ErrorIs(t, err, speech.ErrPollTimeout)

	files, readErr := os.ReadDir(dest)
	require.NoError(t, readErr)
	require.Empty(t, files)
}
