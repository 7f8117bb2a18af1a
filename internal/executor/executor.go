// Package executor runs jobs locally: it clones the repository, invokes the
// code-editing engine as a subprocess, and turns the changes into a pull
// request.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sidekick-bot/sidekick/internal/github"
	"github.com/sidekick-bot/sidekick/internal/job"
	"github.com/sidekick-bot/sidekick/internal/logging"
	"github.com/sidekick-bot/sidekick/internal/markers"
	"github.com/sidekick-bot/sidekick/internal/mention"
)

// Config holds local-executor settings.
type Config struct {
	// EngineCommand is the code-editing CLI to invoke (default "claude").
	EngineCommand string `yaml:"engine_command"`
	// ExtraArgs are appended to the engine invocation.
	ExtraArgs []string `yaml:"extra_args"`
	// WorkDir is the root under which per-job clone directories are created.
	// Empty means the system temp directory.
	WorkDir string `yaml:"work_dir"`
	// RunTests runs the repo's test command after the engine finishes.
	// Test failures are logged, never propagated.
	RunTests bool `yaml:"run_tests"`
	// GitUserName and GitUserEmail identify the bot in commits.
	GitUserName  string `yaml:"git_user_name"`
	GitUserEmail string `yaml:"git_user_email"`
}

// DefaultConfig returns executor defaults.
func DefaultConfig() *Config {
	return &Config{
		EngineCommand: "claude",
		GitUserName:   "sidekick-bot",
		GitUserEmail:  "bot@sidekick.dev",
	}
}

// Executor executes jobs in a local clone of the target repository.
type Executor struct {
	gh     platformClient
	config *Config
	token  string // GitHub token embedded in the push URL
	log    *slog.Logger
}

// New creates a local executor.
func New(gh platformClient, config *Config, token string) *Executor {
	if config == nil {
		config = DefaultConfig()
	}
	if config.EngineCommand == "" {
		config.EngineCommand = "claude"
	}
	return &Executor{
		gh:     gh,
		config: config,
		token:  token,
		log:    logging.WithComponent("executor"),
	}
}

// EngineAvailable reports whether the engine CLI is installed.
func (e *Executor) EngineAvailable() bool {
	_, err := exec.LookPath(e.config.EngineCommand)
	return err == nil
}

// Execute runs the job locally. It builds the repository context, clones
// into a unique temp directory, runs the engine, and opens a pull request
// when files changed.
func (e *Executor) Execute(ctx context.Context, j *job.Job) (*job.Result, error) {
	started := time.Now()
	owner, repo, err := splitRepo(j.Repository)
	if err != nil {
		return nil, err
	}

	log := e.log.With(slog.String("job_id", j.ID), slog.String("repo", j.Repository))

	rc, err := e.BuildRepoContext(ctx, owner, repo)
	if err != nil {
		return nil, fmt.Errorf("failed to build repository context: %w", err)
	}

	workDir, err := e.makeWorkDir(j.ID)
	if err != nil {
		return nil, err
	}
	defer func() {
		if rmErr := os.RemoveAll(workDir); rmErr != nil {
			log.Warn("failed to clean work directory", slog.Any("error", rmErr))
		}
	}()

	if err := e.clone(ctx, rc, owner, repo, workDir); err != nil {
		return nil, err
	}

	branch := workBranch(j.Command.Command)
	if err := e.git(ctx, workDir, "checkout", "-b", branch); err != nil {
		return nil, fmt.Errorf("failed to create work branch: %w", err)
	}

	output, err := e.runEngine(ctx, workDir, j, rc)
	if err != nil {
		return nil, err
	}

	files := markers.ParseChangedFiles(output)
	log.Info("engine finished", slog.Int("files_changed", len(files)))

	if e.config.RunTests {
		e.runTests(ctx, workDir, rc, log)
	}

	result := &job.Result{
		Success:       true,
		Summary:       summarize(j.Command, len(files)),
		Analysis:      analysisText(j.Command, output),
		Files:         files,
		ShouldComment: true,
		Details: &job.Details{
			ExecutionTimeMs: time.Since(started).Milliseconds(),
		},
	}

	if len(files) == 0 {
		return result, nil
	}

	pr, err := e.publish(ctx, j, rc, owner, repo, workDir, branch, files)
	if err != nil {
		return nil, err
	}
	result.PullRequestURL = pr.HTMLURL
	return result, nil
}

// makeWorkDir creates a unique temporary directory for the job's clone.
func (e *Executor) makeWorkDir(jobID string) (string, error) {
	root := e.config.WorkDir
	if root == "" {
		root = os.TempDir()
	}
	dir := filepath.Join(root, "sidekick-"+uuid.NewString())
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("failed to create work directory for %s: %w", jobID, err)
	}
	return dir, nil
}

// clone performs a shallow clone of the default branch.
func (e *Executor) clone(ctx context.Context, rc *RepoContext, owner, repo, workDir string) error {
	cloneURL := rc.CloneURL
	if cloneURL == "" {
		cloneURL = fmt.Sprintf("https://github.com/%s/%s.git", owner, repo)
	}
	if e.token != "" {
		cloneURL = strings.Replace(cloneURL, "https://", "https://x-access-token:"+e.token+"@", 1)
	}

	cmd := exec.CommandContext(ctx, "git", "clone", "--depth", "1", "--branch", rc.DefaultBranch, cloneURL, workDir)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("failed to clone repository: %w: %s", err, scrubToken(string(output), e.token))
	}

	if err := e.git(ctx, workDir, "config", "user.name", e.config.GitUserName); err != nil {
		return err
	}
	return e.git(ctx, workDir, "config", "user.email", e.config.GitUserEmail)
}

// runEngine invokes the code-editing CLI with fixed non-interactive flags
// and returns its combined output.
func (e *Executor) runEngine(ctx context.Context, workDir string, j *job.Job, rc *RepoContext) (string, error) {
	prompt := buildPrompt(j, rc)

	args := []string{
		"-p", prompt,
		"--output-format", "text",
		"--dangerously-skip-permissions",
	}
	args = append(args, e.config.ExtraArgs...)

	cmd := exec.CommandContext(ctx, e.config.EngineCommand, args...)
	cmd.Dir = workDir

	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("engine execution failed: %w: %s", err, truncate(string(output), 2000))
	}
	return string(output), nil
}

// runTests runs the repo's test command. Failures are logged and swallowed;
// a red test run is not a failed job.
func (e *Executor) runTests(ctx context.Context, workDir string, rc *RepoContext, log *slog.Logger) {
	testCmd := rc.testCommand()
	if testCmd == nil {
		return
	}

	cmd := exec.CommandContext(ctx, testCmd[0], testCmd[1:]...)
	cmd.Dir = workDir
	if output, err := cmd.CombinedOutput(); err != nil {
		log.Warn("test run failed (non-fatal)",
			slog.String("command", strings.Join(testCmd, " ")),
			slog.String("output", truncate(string(output), 1000)))
	} else {
		log.Info("test run passed")
	}
}

// publish stages, commits, pushes, and opens a pull request for the changes.
func (e *Executor) publish(ctx context.Context, j *job.Job, rc *RepoContext, owner, repo, workDir, branch string, files []string) (*github.PullRequest, error) {
	if err := e.git(ctx, workDir, "add", "-A"); err != nil {
		return nil, fmt.Errorf("failed to stage changes: %w", err)
	}

	message := commitMessage(j, files)
	if err := e.git(ctx, workDir, "commit", "-m", message); err != nil {
		return nil, fmt.Errorf("failed to commit changes: %w", err)
	}

	if err := e.git(ctx, workDir, "push", "-u", "origin", branch); err != nil {
		return nil, fmt.Errorf("failed to push branch: %w", err)
	}

	pr, err := e.gh.CreatePullRequest(ctx, owner, repo, &github.PullRequestInput{
		Title: prTitle(j),
		Body:  prBody(j, files),
		Head:  branch,
		Base:  rc.DefaultBranch,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create pull request: %w", err)
	}
	return pr, nil
}

// git runs a git subcommand in dir, scrubbing the token from error output.
func (e *Executor) git(ctx context.Context, dir string, args ...string) error {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("git %s failed: %w: %s", args[0], err, scrubToken(string(output), e.token))
	}
	return nil
}

// workBranch builds the deterministic branch name for a command.
func workBranch(cmd mention.Command) string {
	return fmt.Sprintf("sidekick/%s-%d", cmd, time.Now().Unix())
}

func splitRepo(fullName string) (owner, repo string, err error) {
	parts := strings.SplitN(fullName, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid repository name %q", fullName)
	}
	return parts[0], parts[1], nil
}

func scrubToken(s, token string) string {
	if token == "" {
		return s
	}
	return strings.ReplaceAll(s, token, "***")
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
