package executor

import (
	"context"
	"sort"

	"github.com/sidekick-bot/sidekick/internal/github"
)

// RepoContext describes the target repository, gathered through read-only
// API queries before cloning.
type RepoContext struct {
	DefaultBranch  string
	CloneURL       string
	Languages      []string
	PackageManager string
	Framework      string
	HasTests       bool
	HasCI          bool
}

// packageManagerProbes maps manifest files to the package manager they imply.
// Probed in order; the first hit wins.
var packageManagerProbes = []struct {
	path    string
	manager string
}{
	{"package.json", "npm"},
	{"go.mod", "go"},
	{"Cargo.toml", "cargo"},
	{"requirements.txt", "pip"},
	{"pyproject.toml", "pip"},
	{"Gemfile", "bundler"},
	{"pom.xml", "maven"},
}

// frameworkProbes maps marker files to frameworks.
var frameworkProbes = []struct {
	path      string
	framework string
}{
	{"next.config.js", "nextjs"},
	{"next.config.mjs", "nextjs"},
	{"nuxt.config.ts", "nuxt"},
	{"angular.json", "angular"},
	{"vite.config.ts", "vite"},
	{"manage.py", "django"},
}

// BuildRepoContext queries the hosting platform for repository metadata,
// detected languages, package manager, framework, and the presence of tests
// and CI configuration.
func (e *Executor) BuildRepoContext(ctx context.Context, owner, repo string) (*RepoContext, error) {
	repository, err := e.gh.GetRepository(ctx, owner, repo)
	if err != nil {
		return nil, err
	}

	rc := &RepoContext{
		DefaultBranch: repository.DefaultBranch,
		CloneURL:      repository.CloneURL,
	}
	if rc.DefaultBranch == "" {
		rc.DefaultBranch = "main"
	}

	if languages, err := e.gh.ListLanguages(ctx, owner, repo); err == nil {
		for lang := range languages {
			rc.Languages = append(rc.Languages, lang)
		}
		sort.Slice(rc.Languages, func(i, j int) bool {
			return languages[rc.Languages[i]] > languages[rc.Languages[j]]
		})
	}

	for _, probe := range packageManagerProbes {
		if exists, _ := e.gh.PathExists(ctx, owner, repo, probe.path); exists {
			rc.PackageManager = probe.manager
			break
		}
	}

	for _, probe := range frameworkProbes {
		if exists, _ := e.gh.PathExists(ctx, owner, repo, probe.path); exists {
			rc.Framework = probe.framework
			break
		}
	}

	for _, dir := range []string{"test", "tests", "spec", "__tests__"} {
		if exists, _ := e.gh.PathExists(ctx, owner, repo, dir); exists {
			rc.HasTests = true
			break
		}
	}

	if exists, _ := e.gh.PathExists(ctx, owner, repo, ".github/workflows"); exists {
		rc.HasCI = true
	}

	return rc, nil
}

// testCommand returns the test invocation for the detected package manager,
// or nil when none applies.
func (rc *RepoContext) testCommand() []string {
	switch rc.PackageManager {
	case "npm":
		return []string{"npm", "test", "--", "--passWithNoTests"}
	case "go":
		return []string{"go", "test", "./..."}
	case "cargo":
		return []string{"cargo", "test"}
	case "pip":
		return []string{"pytest"}
	case "bundler":
		return []string{"bundle", "exec", "rake", "test"}
	}
	return nil
}

// platformClient is the subset of the GitHub client the executor uses. It
// exists so tests can substitute an httptest-backed client.
type platformClient interface {
	GetRepository(ctx context.Context, owner, repo string) (*github.Repository, error)
	ListLanguages(ctx context.Context, owner, repo string) (map[string]int64, error)
	PathExists(ctx context.Context, owner, repo, path string) (bool, error)
	CreatePullRequest(ctx context.Context, owner, repo string, input *github.PullRequestInput) (*github.PullRequest, error)
}

var _ platformClient = (*github.Client)(nil)
