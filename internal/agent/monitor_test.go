package agent

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sidekick-bot/sidekick/internal/job"
	"github.com/sidekick-bot/sidekick/internal/mention"
	"github.com/sidekick-bot/sidekick/internal/testutil"
)

// fakeAgent is an in-memory agent service. Each GetJob advances the remote
// job through the supplied state sequence.
type fakeAgent struct {
	mu        sync.Mutex
	states    []JobState
	idx       int
	logs      []string
	prURL     string
	cancelled bool
	server    *httptest.Server
}

func newFakeAgent(t *testing.T, states []JobState, logs []string, prURL string) *fakeAgent {
	t.Helper()
	f := &fakeAgent{states: states, logs: logs, prURL: prURL}
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/jobs", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "remote-1"})
	})
	mux.HandleFunc("/v1/jobs/remote-1", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		state := f.states[f.idx]
		if f.idx < len(f.states)-1 {
			f.idx++
		}
		f.mu.Unlock()

		remote := RemoteJob{ID: "remote-1", State: state}
		if state.Terminal() {
			remote.Logs = f.logs
			remote.PRUrl = f.prURL
			remote.Metrics = &Metrics{DurationMs: 1500, TokensUsed: 4200}
			if state == StateFailed {
				remote.Error = "compilation failed"
			}
		}
		_ = json.NewEncoder(w).Encode(remote)
	})
	mux.HandleFunc("/v1/jobs/remote-1/cancel", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.cancelled = true
		f.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]bool{"cancelled": true})
	})
	mux.HandleFunc("/v1/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeAgent) wasCancelled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancelled
}

func testJob() *job.Job {
	m := mention.Parse("@sidekick add user search --tests", "sidekick")
	cmd, _ := mention.Validate(m)
	return job.New("acme/widgets", 7, 123, "alice", m, cmd)
}

func fastMonitor(f *fakeAgent) *Monitor {
	m := NewMonitor(NewClient(f.server.URL, testutil.FakeAgentToken))
	m.SetPollInterval(5 * time.Millisecond)
	m.SetDeadline(time.Second)
	return m
}

func TestExecuteSucceeds(t *testing.T) {
	logs := []string{
		"cloning repository",
		"Modified: internal/search/index.go",
		"Created: internal/search/index_test.go",
	}
	f := newFakeAgent(t, []JobState{StateQueued, StateRunning, StateSucceeded}, logs, "https://github.com/acme/widgets/pull/99")

	res, err := fastMonitor(f).Execute(context.Background(), testJob(), "main")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !res.Success {
		t.Error("Success = false, want true")
	}
	wantFiles := []string{"internal/search/index.go", "internal/search/index_test.go"}
	if len(res.Files) != 2 || res.Files[0] != wantFiles[0] || res.Files[1] != wantFiles[1] {
		t.Errorf("Files = %v, want %v", res.Files, wantFiles)
	}
	if res.PullRequestURL != "https://github.com/acme/widgets/pull/99" {
		t.Errorf("PullRequestURL = %q", res.PullRequestURL)
	}
	if res.Details == nil || res.Details.BackgroundJobID != "remote-1" {
		t.Errorf("Details = %+v, want remote id recorded", res.Details)
	}
	if res.Details.TokenUsage != 4200 {
		t.Errorf("TokenUsage = %d, want 4200", res.Details.TokenUsage)
	}
}

func TestExecuteRemoteFailure(t *testing.T) {
	f := newFakeAgent(t, []JobState{StateRunning, StateFailed}, nil, "")

	res, err := fastMonitor(f).Execute(context.Background(), testJob(), "main")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if res.Success {
		t.Error("Success = true, want false for failed remote job")
	}
	if res.Summary != "compilation failed" {
		t.Errorf("Summary = %q, want remote error", res.Summary)
	}
}

func TestExecuteDeadline(t *testing.T) {
	// Remote job never leaves running, so the monitor must hit its deadline
	// and cancel the remote side.
	f := newFakeAgent(t, []JobState{StateRunning}, nil, "")
	m := fastMonitor(f)
	m.SetDeadline(50 * time.Millisecond)

	_, err := m.Execute(context.Background(), testJob(), "main")
	if !errors.Is(err, ErrMonitoringTimeout) {
		t.Fatalf("Execute() error = %v, want ErrMonitoringTimeout", err)
	}
	if !f.wasCancelled() {
		t.Error("remote job was not cancelled after deadline")
	}
}

func TestExecuteContextCancelled(t *testing.T) {
	f := newFakeAgent(t, []JobState{StateRunning}, nil, "")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := fastMonitor(f).Execute(ctx, testJob(), "main")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Execute() error = %v, want context.Canceled", err)
	}
}

func TestProbe(t *testing.T) {
	f := newFakeAgent(t, []JobState{StateRunning}, nil, "")
	client := NewClient(f.server.URL, testutil.FakeAgentToken)
	if !client.Probe(context.Background()) {
		t.Error("Probe() = false against a healthy service")
	}

	down := NewClient("http://127.0.0.1:1", testutil.FakeAgentToken)
	if down.Probe(context.Background()) {
		t.Error("Probe() = true against an unreachable service")
	}
}

func TestSynthesizeTask(t *testing.T) {
	j := testJob()
	task := synthesizeTask(j.Command)
	if !strings.HasPrefix(task, "add") {
		t.Errorf("task = %q, want command first", task)
	}
	if !strings.Contains(task, "user search") {
		t.Errorf("task = %q, want description included", task)
	}
}
