package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/sidekick-bot/sidekick/internal/access"
	"github.com/sidekick-bot/sidekick/internal/github"
	"github.com/sidekick-bot/sidekick/internal/job"
	"github.com/sidekick-bot/sidekick/internal/mention"
	"github.com/sidekick-bot/sidekick/internal/report"
	"github.com/sidekick-bot/sidekick/internal/router"
	"github.com/sidekick-bot/sidekick/internal/testutil"
)

// fakeGitHub records API calls made during job processing and answers them
// with minimal valid responses.
type fakeGitHub struct {
	mu        sync.Mutex
	comments  []string // comment bodies, in post order
	reactions []string
	updates   int
	orgMember bool
	server    *httptest.Server
}

func newFakeGitHub(t *testing.T) *fakeGitHub {
	t.Helper()
	f := &fakeGitHub{}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")

		switch {
		case strings.Contains(r.URL.Path, "/reactions"):
			var body struct {
				Content string `json:"content"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			f.reactions = append(f.reactions, body.Content)
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(github.Reaction{ID: 1, Content: body.Content})

		case strings.HasSuffix(r.URL.Path, "/comments") && r.Method == http.MethodPost:
			var body struct {
				Body string `json:"body"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			f.comments = append(f.comments, body.Body)
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(github.Comment{ID: int64(1000 + len(f.comments))})

		case strings.Contains(r.URL.Path, "/issues/comments/") && r.Method == http.MethodPatch:
			f.updates++
			_ = json.NewEncoder(w).Encode(github.Comment{ID: 1})

		case strings.Contains(r.URL.Path, "/orgs/"):
			if f.orgMember {
				w.WriteHeader(http.StatusNoContent)
			} else {
				w.WriteHeader(http.StatusNotFound)
			}

		default:
			_ = json.NewEncoder(w).Encode(map[string]any{})
		}
	}))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeGitHub) commentBodies() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.comments...)
}

func (f *fakeGitHub) reactionContents() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.reactions...)
}

// fakeBackend is a local execution backend with a canned outcome.
type fakeBackend struct {
	mu    sync.Mutex
	calls int
	res   *job.Result
	err   error
}

func (f *fakeBackend) Execute(ctx context.Context, j *job.Job) (*job.Result, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.res, f.err
}

func (f *fakeBackend) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type testHarness struct {
	gh       *fakeGitHub
	backend  *fakeBackend
	registry *job.Registry
	gateway  *Gateway
	server   *Server
}

func newHarness(t *testing.T, backend *fakeBackend, requireOrg bool) *testHarness {
	t.Helper()
	gh := newFakeGitHub(t)
	client := github.NewClientWithBaseURL(testutil.FakeGitHubToken, gh.server.URL)
	registry := job.NewRegistry(nil)

	gw := New(Options{
		BotName:       "sidekick",
		WebhookSecret: testutil.FakeWebhookSecret,
		Access:        access.NewController(nil, requireOrg, 10, client, nil),
		Router:        router.New(router.ModeLocalExecution, false),
		Local:         backend,
		Registry:      registry,
		Reporter:      report.New(client, nil),
	})

	return &testHarness{
		gh:       gh,
		backend:  backend,
		registry: registry,
		gateway:  gw,
		server:   NewServer(&ServerConfig{Host: "127.0.0.1", Port: 0}, gw),
	}
}

func issueCommentBody(t *testing.T, action, commentText string, commentID int64) []byte {
	t.Helper()
	body, err := json.Marshal(issueCommentEvent{
		Action: action,
		Issue: issuePayloadRef{
			Number: 7,
			Title:  "Login form crashes",
			User:   github.User{Login: "reporter"},
		},
		Comment: commentPayload{
			ID:   commentID,
			Body: commentText,
			User: github.User{Login: "alice"},
		},
		Repository: github.Repository{
			Name:          "widgets",
			FullName:      "acme/widgets",
			Owner:         github.User{Login: "acme"},
			DefaultBranch: "main",
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	return body
}

func postWebhook(t *testing.T, h *testHarness, event string, body []byte, signed bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/github", strings.NewReader(string(body)))
	req.Header.Set(HeaderEvent, event)
	if signed {
		req.Header.Set(HeaderSignature, sign(body, testutil.FakeWebhookSecret))
	} else {
		req.Header.Set(HeaderSignature, "sha256=0000")
	}
	w := httptest.NewRecorder()
	h.server.handleGithubWebhook(w, req)
	return w
}

func TestWebhookRejectsInvalidSignature(t *testing.T) {
	h := newHarness(t, &fakeBackend{}, false)
	body := issueCommentBody(t, "created", "@sidekick fix src/app.ts", 123)

	w := postWebhook(t, h, eventIssueComment, body, false)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
	if h.registry.Len() != 0 {
		t.Errorf("registry has %d jobs, want 0", h.registry.Len())
	}
}

func TestWebhookCreatesAndCompletesJob(t *testing.T) {
	backend := &fakeBackend{res: &job.Result{
		Success:       true,
		Summary:       "Fixed the login crash",
		Files:         []string{"src/app.ts"},
		ShouldComment: true,
	}}
	h := newHarness(t, backend, false)
	body := issueCommentBody(t, "created", "@sidekick fix src/app.ts the form crashes", 123)

	w := postWebhook(t, h, eventIssueComment, body, true)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	h.gateway.Wait()

	j, ok := h.registry.Get("acme/widgets-7-123")
	if !ok {
		t.Fatal("job not registered under composite id")
	}
	if j.Status != job.StatusCompleted {
		t.Errorf("status = %s, want %s", j.Status, job.StatusCompleted)
	}
	if j.StartedAt == nil || j.CompletedAt == nil {
		t.Error("lifecycle timestamps not set")
	}
	if backend.callCount() != 1 {
		t.Errorf("backend called %d times, want 1", backend.callCount())
	}

	reactions := h.gh.reactionContents()
	if len(reactions) != 2 || reactions[0] != github.ReactionThumbsUp || reactions[1] != github.ReactionRocket {
		t.Errorf("reactions = %v, want [+1 rocket]", reactions)
	}
	comments := h.gh.commentBodies()
	found := false
	for _, c := range comments {
		if strings.Contains(c, "Fixed the login crash") {
			found = true
		}
	}
	if !found {
		t.Errorf("result comment not posted, got %d comments", len(comments))
	}
}

func TestWebhookDeduplicatesRedelivery(t *testing.T) {
	backend := &fakeBackend{res: &job.Result{Success: true, Summary: "done"}}
	h := newHarness(t, backend, false)
	body := issueCommentBody(t, "created", "@sidekick analyze", 55)

	for i := 0; i < 2; i++ {
		if w := postWebhook(t, h, eventIssueComment, body, true); w.Code != http.StatusOK {
			t.Fatalf("delivery %d status = %d", i, w.Code)
		}
	}
	h.gateway.Wait()

	if h.registry.Len() != 1 {
		t.Errorf("registry has %d jobs, want 1", h.registry.Len())
	}
	if backend.callCount() != 1 {
		t.Errorf("backend called %d times, want 1", backend.callCount())
	}
}

func TestWebhookIgnoresNonCreatedAction(t *testing.T) {
	h := newHarness(t, &fakeBackend{}, false)
	body := issueCommentBody(t, "edited", "@sidekick fix src/app.ts", 9)

	postWebhook(t, h, eventIssueComment, body, true)
	h.gateway.Wait()
	if h.registry.Len() != 0 {
		t.Errorf("registry has %d jobs, want 0", h.registry.Len())
	}
}

func TestWebhookIgnoresOwnComments(t *testing.T) {
	h := newHarness(t, &fakeBackend{}, false)
	ev := issueCommentEvent{
		Action:  "created",
		Issue:   issuePayloadRef{Number: 7},
		Comment: commentPayload{ID: 8, Body: "@sidekick fix it", User: github.User{Login: "sidekick"}},
		Repository: github.Repository{
			Name: "widgets", FullName: "acme/widgets",
			Owner: github.User{Login: "acme"},
		},
	}
	body, _ := json.Marshal(ev)

	postWebhook(t, h, eventIssueComment, body, true)
	h.gateway.Wait()
	if h.registry.Len() != 0 {
		t.Errorf("registry has %d jobs, want 0", h.registry.Len())
	}
}

func TestWebhookUnknownCommandPostsUsage(t *testing.T) {
	h := newHarness(t, &fakeBackend{}, false)
	body := issueCommentBody(t, "created", "@sidekick deploy to production", 77)

	postWebhook(t, h, eventIssueComment, body, true)
	h.gateway.Wait()

	if h.registry.Len() != 0 {
		t.Errorf("registry has %d jobs, want 0", h.registry.Len())
	}
	comments := h.gh.commentBodies()
	if len(comments) != 1 || !strings.Contains(comments[0], "didn't recognize") {
		t.Errorf("comments = %v, want usage help", comments)
	}
}

func TestWebhookAccessDenied(t *testing.T) {
	h := newHarness(t, &fakeBackend{}, true) // org membership required, fake returns 404
	body := issueCommentBody(t, "created", "@sidekick fix src/app.ts", 42)

	postWebhook(t, h, eventIssueComment, body, true)
	h.gateway.Wait()

	if h.registry.Len() != 0 {
		t.Errorf("registry has %d jobs, want 0", h.registry.Len())
	}
	reactions := h.gh.reactionContents()
	if len(reactions) != 1 || reactions[0] != github.ReactionThumbsDn {
		t.Errorf("reactions = %v, want [-1]", reactions)
	}
	comments := h.gh.commentBodies()
	if len(comments) != 1 || !strings.Contains(comments[0], "organization members") {
		t.Errorf("comments = %v, want denial notice", comments)
	}
}

func TestWebhookExecutionFailure(t *testing.T) {
	backend := &fakeBackend{err: errors.New("engine exploded")}
	h := newHarness(t, backend, false)
	body := issueCommentBody(t, "created", "@sidekick refactor pkg/core", 200)

	postWebhook(t, h, eventIssueComment, body, true)
	h.gateway.Wait()

	j, ok := h.registry.Get("acme/widgets-7-200")
	if !ok {
		t.Fatal("job not registered")
	}
	if j.Status != job.StatusFailed {
		t.Errorf("status = %s, want %s", j.Status, job.StatusFailed)
	}
	if j.Error != "engine exploded" {
		t.Errorf("error = %q", j.Error)
	}
	reactions := h.gh.reactionContents()
	if len(reactions) != 2 || reactions[1] != github.ReactionConfused {
		t.Errorf("reactions = %v, want confused terminal reaction", reactions)
	}
}

func TestDispatchIssueOpened(t *testing.T) {
	backend := &fakeBackend{res: &job.Result{Success: true, Summary: "done"}}
	h := newHarness(t, backend, false)

	ev := issuesEvent{
		Action: "opened",
		Issue: issuePayloadRef{
			Number: 31,
			Body:   "@sidekick analyze why startup is slow",
			User:   github.User{Login: "alice"},
		},
		Repository: github.Repository{
			Name: "widgets", FullName: "acme/widgets",
			Owner: github.User{Login: "acme"}, DefaultBranch: "main",
		},
	}
	body, _ := json.Marshal(ev)

	postWebhook(t, h, eventIssues, body, true)
	h.gateway.Wait()

	j, ok := h.registry.Get("acme/widgets-31")
	if !ok {
		t.Fatal("issue-body job not registered without comment id")
	}
	if !j.IsIssue || j.IsPR {
		t.Error("issue-body job should be flagged as issue")
	}
	if j.CommentID != 0 {
		t.Errorf("CommentID = %d, want 0", j.CommentID)
	}
}

func TestDispatchReviewComment(t *testing.T) {
	backend := &fakeBackend{res: &job.Result{Success: true, Summary: "done"}}
	h := newHarness(t, backend, false)

	ev := reviewCommentEvent{
		Action:  "created",
		Comment: commentPayload{ID: 88, Body: "@sidekick review", User: github.User{Login: "bob"}},
		PullRequest: pullRequestRef{
			Number:  12,
			HTMLURL: "https://github.com/acme/widgets/pull/12",
		},
		Repository: github.Repository{
			Name: "widgets", FullName: "acme/widgets",
			Owner: github.User{Login: "acme"}, DefaultBranch: "main",
		},
	}
	body, _ := json.Marshal(ev)

	postWebhook(t, h, eventPRReviewComment, body, true)
	h.gateway.Wait()

	j, ok := h.registry.Get("acme/widgets-12-88")
	if !ok {
		t.Fatal("review-comment job not registered")
	}
	if !j.IsPRReview || !j.IsPR {
		t.Error("review-comment job should be flagged as PR review")
	}
	if j.PullRequestURL != "https://github.com/acme/widgets/pull/12" {
		t.Errorf("PullRequestURL = %q", j.PullRequestURL)
	}
}

func TestProcessFailsJobOnBadRepositoryName(t *testing.T) {
	h := newHarness(t, &fakeBackend{}, false)

	m := mention.Parse("@sidekick fix src/app.ts", "sidekick")
	cmd, ok := mention.Validate(m)
	if !ok {
		t.Fatal("command did not validate")
	}
	j := job.New("malformed", 7, 123, "alice", m, cmd)
	if err := h.registry.Add(j); err != nil {
		t.Fatalf("Add: %v", err)
	}

	h.gateway.wg.Add(1)
	h.gateway.process(j, "main")

	if j.Status != job.StatusFailed {
		t.Fatalf("Status = %s, want %s", j.Status, job.StatusFailed)
	}
	if j.CompletedAt == nil {
		t.Error("CompletedAt not set on failed job")
	}
	if j.Error == "" {
		t.Error("Error not recorded")
	}
	if h.backend.calls != 0 {
		t.Errorf("backend called %d times, want 0", h.backend.calls)
	}
}

func TestWebhookUnknownEventIgnored(t *testing.T) {
	h := newHarness(t, &fakeBackend{}, false)
	body := []byte(`{"action":"created"}`)

	w := postWebhook(t, h, "push", body, true)
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if h.registry.Len() != 0 {
		t.Errorf("registry has %d jobs, want 0", h.registry.Len())
	}
}
