package github

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sidekick-bot/sidekick/internal/testutil"
)

func TestNewClient(t *testing.T) {
	client := NewClient(testutil.FakeGitHubToken)
	if client == nil {
		t.Fatal("NewClient returned nil")
	}
	if client.token != testutil.FakeGitHubToken {
		t.Errorf("client.token = %s, want %s", client.token, testutil.FakeGitHubToken)
	}
	if client.baseURL != githubAPIURL {
		t.Errorf("client.baseURL = %s, want %s", client.baseURL, githubAPIURL)
	}
}

func TestNewClientWithBaseURL(t *testing.T) {
	customURL := "https://custom.api.example.com"
	client := NewClientWithBaseURL(testutil.FakeGitHubToken, customURL)
	if client.baseURL != customURL {
		t.Errorf("client.baseURL = %s, want %s", client.baseURL, customURL)
	}
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClientWithBaseURL(testutil.FakeGitHubToken, server.URL)
}

func TestAddComment(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if r.URL.Path != "/repos/acme/widgets/issues/7/comments" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer "+testutil.FakeGitHubToken {
			t.Errorf("Authorization = %q", auth)
		}
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["body"] != "hello" {
			t.Errorf("comment body = %q", body["body"])
		}
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(Comment{ID: 99, Body: "hello"})
	})

	comment, err := client.AddComment(context.Background(), "acme", "widgets", 7, "hello")
	if err != nil {
		t.Fatalf("AddComment() error = %v", err)
	}
	if comment.ID != 99 {
		t.Errorf("comment.ID = %d, want 99", comment.ID)
	}
}

func TestCreateCommentReaction(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/repos/acme/widgets/issues/comments/55/reactions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(Reaction{ID: 1, Content: ReactionRocket})
	})

	reaction, err := client.CreateCommentReaction(context.Background(), "acme", "widgets", 55, ReactionRocket)
	if err != nil {
		t.Fatalf("CreateCommentReaction() error = %v", err)
	}
	if reaction.Content != ReactionRocket {
		t.Errorf("Content = %q, want %q", reaction.Content, ReactionRocket)
	}
}

func TestIsOrgMember(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		want       bool
		wantErr    bool
	}{
		{"member", http.StatusNoContent, true, false},
		{"non-member", http.StatusNotFound, false, false},
		{"server error surfaces", http.StatusInternalServerError, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/orgs/acme/members/alice" {
					t.Errorf("path = %s", r.URL.Path)
				}
				w.WriteHeader(tt.statusCode)
			})

			got, err := client.IsOrgMember(context.Background(), "acme", "alice")
			if (err != nil) != tt.wantErr {
				t.Fatalf("IsOrgMember() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("IsOrgMember() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetRepository(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(Repository{
			FullName:      "acme/widgets",
			DefaultBranch: "main",
			CloneURL:      "https://github.com/acme/widgets.git",
		})
	})

	repo, err := client.GetRepository(context.Background(), "acme", "widgets")
	if err != nil {
		t.Fatalf("GetRepository() error = %v", err)
	}
	if repo.DefaultBranch != "main" {
		t.Errorf("DefaultBranch = %q, want main", repo.DefaultBranch)
	}
}

func TestPathExists(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "package.json") {
			_ = json.NewEncoder(w).Encode(ContentEntry{Name: "package.json"})
			return
		}
		w.WriteHeader(http.StatusNotFound)
	})

	ok, err := client.PathExists(context.Background(), "acme", "widgets", "package.json")
	if err != nil || !ok {
		t.Errorf("PathExists(package.json) = %v, %v; want true, nil", ok, err)
	}
	ok, err = client.PathExists(context.Background(), "acme", "widgets", "go.mod")
	if err != nil || ok {
		t.Errorf("PathExists(go.mod) = %v, %v; want false, nil", ok, err)
	}
}

func TestPathExistsKeepsPathSegments(t *testing.T) {
	var gotPath string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		_ = json.NewEncoder(w).Encode(ContentEntry{Name: "workflows"})
	})

	ok, err := client.PathExists(context.Background(), "acme", "widgets", ".github/workflows")
	if err != nil || !ok {
		t.Fatalf("PathExists(.github/workflows) = %v, %v; want true, nil", ok, err)
	}
	want := "/repos/acme/widgets/contents/.github/workflows"
	if gotPath != want {
		t.Errorf("request path = %q, want %q", gotPath, want)
	}
}

func TestAPIErrorFormat(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"message":"forbidden"}`))
	})

	_, err := client.GetIssue(context.Background(), "acme", "widgets", 1)
	if err == nil {
		t.Fatal("GetIssue() error = nil")
	}
	if !strings.Contains(err.Error(), "status 403") {
		t.Errorf("error = %v, want status code in message", err)
	}
}
