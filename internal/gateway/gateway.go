// Package gateway receives GitHub webhook deliveries, verifies them, and
// turns qualifying mentions into processing jobs.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/sidekick-bot/sidekick/internal/access"
	"github.com/sidekick-bot/sidekick/internal/github"
	"github.com/sidekick-bot/sidekick/internal/job"
	"github.com/sidekick-bot/sidekick/internal/logging"
	"github.com/sidekick-bot/sidekick/internal/mention"
	"github.com/sidekick-bot/sidekick/internal/report"
	"github.com/sidekick-bot/sidekick/internal/router"
	"github.com/sidekick-bot/sidekick/internal/telemetry"
)

// agentBackend executes a job on the background agent service.
type agentBackend interface {
	Execute(ctx context.Context, j *job.Job, baseBranch string) (*job.Result, error)
}

// localBackend executes a job with the local engine.
type localBackend interface {
	Execute(ctx context.Context, j *job.Job) (*job.Result, error)
}

// Options wires the gateway's collaborators.
type Options struct {
	BotName       string
	WebhookSecret string

	Access   *access.Controller
	Router   *router.Router
	Agent    agentBackend // nil when the agent service is unavailable
	Local    localBackend // nil when no local engine is installed
	Registry *job.Registry
	Reporter *report.Reporter
}

// Gateway dispatches webhook events and drives each job through its
// lifecycle. Every job is processed by a single goroutine that owns all
// mutations of the job record.
type Gateway struct {
	botName string
	secret  string

	access   *access.Controller
	router   *router.Router
	agent    agentBackend
	local    localBackend
	registry *job.Registry
	reporter *report.Reporter

	log *slog.Logger
	now func() time.Time

	wg sync.WaitGroup
}

// New creates a gateway from the given options.
func New(opts Options) *Gateway {
	return &Gateway{
		botName:  opts.BotName,
		secret:   opts.WebhookSecret,
		access:   opts.Access,
		router:   opts.Router,
		agent:    opts.Agent,
		local:    opts.Local,
		registry: opts.Registry,
		reporter: opts.Reporter,
		log:      logging.WithComponent("gateway"),
		now:      time.Now,
	}
}

// Wait blocks until all in-flight jobs have finished. Used during shutdown.
func (g *Gateway) Wait() {
	g.wg.Wait()
}

// trigger is the normalized form of a webhook event that may carry a mention.
type trigger struct {
	repo           github.Repository
	issueNumber    int
	commentID      int64 // 0 for issue-body mentions
	author         string
	text           string
	isPR           bool
	isIssue        bool
	isPRReview     bool
	pullRequestURL string
}

// dispatch routes a verified webhook payload by event kind. Unknown events
// and non-qualifying actions are ignored.
func (g *Gateway) dispatch(ctx context.Context, event string, body []byte) error {
	switch event {
	case eventIssueComment:
		var ev issueCommentEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			return fmt.Errorf("decoding %s payload: %w", event, err)
		}
		if ev.Action != "created" {
			return nil
		}
		g.handleMention(ctx, trigger{
			repo:           ev.Repository,
			issueNumber:    ev.Issue.Number,
			commentID:      ev.Comment.ID,
			author:         ev.Comment.User.Login,
			text:           ev.Comment.Body,
			isPR:           ev.Issue.PullRequest != nil,
			isIssue:        ev.Issue.PullRequest == nil,
			pullRequestURL: issuePRURL(ev.Issue),
		})

	case eventPRReviewComment:
		var ev reviewCommentEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			return fmt.Errorf("decoding %s payload: %w", event, err)
		}
		if ev.Action != "created" {
			return nil
		}
		g.handleMention(ctx, trigger{
			repo:           ev.Repository,
			issueNumber:    ev.PullRequest.Number,
			commentID:      ev.Comment.ID,
			author:         ev.Comment.User.Login,
			text:           ev.Comment.Body,
			isPR:           true,
			isPRReview:     true,
			pullRequestURL: ev.PullRequest.HTMLURL,
		})

	case eventIssues:
		var ev issuesEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			return fmt.Errorf("decoding %s payload: %w", event, err)
		}
		if ev.Action != "opened" {
			return nil
		}
		g.handleMention(ctx, trigger{
			repo:        ev.Repository,
			issueNumber: ev.Issue.Number,
			author:      ev.Issue.User.Login,
			text:        ev.Issue.Body,
			isIssue:     true,
		})
	}
	return nil
}

// handleMention runs the synchronous part of the pipeline: parse, validate,
// access check, job registration. Execution happens on a separate goroutine
// so the webhook response is not held up.
func (g *Gateway) handleMention(ctx context.Context, t trigger) {
	// The bot's own comments carry its name in the footer; skip anything it
	// authored to avoid trigger loops.
	if t.author == g.botName {
		return
	}

	m := mention.Parse(t.text, g.botName)
	if m == nil {
		return
	}

	owner, repo := t.repo.Owner.Login, t.repo.Name
	log := g.log.With(
		slog.String("repo", t.repo.FullName),
		slog.String("author", t.author),
	)

	cmd, ok := mention.Validate(m)
	if !ok {
		log.Info("unrecognized command, posting usage help",
			slog.String("command", m.Command))
		g.reporter.PostComment(ctx, owner, repo, t.issueNumber, mention.UsageHelp(g.botName))
		return
	}

	decision := g.access.Check(ctx, t.repo.FullName, t.author)
	if !decision.Allowed {
		telemetry.AccessDenied.WithLabelValues(decision.Reason).Inc()
		log.Info("access denied", slog.String("reason", decision.Reason))
		if decision.Reason == access.ReasonRateLimited {
			g.reporter.React(ctx, owner, repo, t.issueNumber, t.commentID, github.ReactionConfused)
			g.reporter.PostComment(ctx, owner, repo, t.issueNumber, report.RateLimitComment(g.access.RateLimit()))
		} else {
			g.reporter.React(ctx, owner, repo, t.issueNumber, t.commentID, github.ReactionThumbsDn)
			g.reporter.PostComment(ctx, owner, repo, t.issueNumber, report.DenialComment(decision.Reason))
		}
		return
	}

	j := job.New(t.repo.FullName, t.issueNumber, t.commentID, t.author, m, cmd)
	j.IsPR = t.isPR
	j.IsIssue = t.isIssue
	j.IsPRReview = t.isPRReview
	j.PullRequestURL = t.pullRequestURL

	if err := g.registry.Add(j); err != nil {
		// Duplicate delivery for the same trigger; the first one wins.
		log.Info("duplicate delivery ignored", slog.String("job_id", j.ID))
		return
	}
	telemetry.JobsCreated.Inc()
	log.Info("job created",
		slog.String("job_id", j.ID),
		slog.String("command", string(cmd.Command)))

	g.wg.Add(1)
	go g.process(j, t.repo.DefaultBranch)
}

// process drives a single job from queued to a terminal state. It is the
// only goroutine that mutates the job after registration.
func (g *Gateway) process(j *job.Job, baseBranch string) {
	defer g.wg.Done()

	ctx := logging.ContextWithJobID(context.Background(), j.ID)
	ctx = logging.ContextWithRepo(ctx, j.Repository)
	log := logging.WithContext(ctx)

	owner, repo, err := splitFullName(j.Repository)
	if err != nil {
		log.Error("bad repository name", slog.Any("error", err))
		g.fail(j, err)
		return
	}

	g.reporter.React(ctx, owner, repo, j.IssueNumber, j.CommentID, github.ReactionThumbsUp)
	g.reporter.NotifyStarted(ctx, j)
	statusID := g.reporter.PostStatus(ctx, owner, repo, j, "")

	if err := j.Transition(job.StatusProcessing); err != nil {
		log.Error("state transition rejected", slog.Any("error", err))
		g.fail(j, err)
		return
	}
	g.registry.Sync(j)

	res, execErr := g.execute(ctx, j, baseBranch)

	remoteID := ""
	if res != nil && res.Details != nil {
		remoteID = res.Details.BackgroundJobID
	}

	switch {
	case execErr != nil:
		j.Error = execErr.Error()
		j.Result = res
		_ = j.Transition(job.StatusFailed)
	case res != nil && !res.Success:
		j.Error = res.Summary
		j.Result = res
		_ = j.Transition(job.StatusFailed)
	default:
		j.Result = res
		if res != nil && res.PullRequestURL != "" {
			j.PullRequestURL = res.PullRequestURL
		}
		_ = j.Transition(job.StatusCompleted)
	}
	g.registry.Sync(j)

	telemetry.JobsFinished.WithLabelValues(string(j.Status)).Inc()
	telemetry.JobDuration.Observe(j.Elapsed().Seconds())

	if j.Status == job.StatusCompleted {
		log.Info("job completed", slog.Duration("elapsed", j.Elapsed()))
		g.reporter.React(ctx, owner, repo, j.IssueNumber, j.CommentID, github.ReactionRocket)
		g.reporter.PostResult(ctx, owner, repo, j)
	} else {
		log.Warn("job failed",
			slog.String("error", j.Error),
			slog.Duration("elapsed", j.Elapsed()))
		g.reporter.React(ctx, owner, repo, j.IssueNumber, j.CommentID, github.ReactionConfused)
		g.reporter.PostError(ctx, owner, repo, j)
	}
	g.reporter.UpdateStatus(ctx, owner, repo, j, statusID, remoteID)
	g.reporter.NotifyFinished(ctx, j)
}

// fail moves a job to Failed when processing dies before the backend runs.
// The registry prunes only terminal jobs, so the record must not stay queued.
func (g *Gateway) fail(j *job.Job, err error) {
	j.Error = err.Error()
	if terr := j.Transition(job.StatusFailed); terr != nil {
		g.log.Error("could not fail job", slog.String("job_id", j.ID), slog.Any("error", terr))
		return
	}
	g.registry.Sync(j)
	telemetry.JobsFinished.WithLabelValues(string(j.Status)).Inc()
}

// execute runs the job on the routed backend.
func (g *Gateway) execute(ctx context.Context, j *job.Job, baseBranch string) (*job.Result, error) {
	backend := g.router.Route(j.Command.Command)
	if backend == router.BackendAgent && g.agent != nil {
		return g.agent.Execute(ctx, j, baseBranch)
	}
	if g.local == nil {
		return nil, errors.New("no execution backend available")
	}
	return g.local.Execute(ctx, j)
}

func issuePRURL(issue issuePayloadRef) string {
	if issue.PullRequest == nil {
		return ""
	}
	return issue.PullRequest.HTMLURL
}

func splitFullName(fullName string) (owner, repo string, err error) {
	parts := strings.SplitN(fullName, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid repository name %q", fullName)
	}
	return parts[0], parts[1], nil
}
