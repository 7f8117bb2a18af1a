// Package report formats and posts job outcomes back to the hosting platform
// and the secondary notification channel. Every outbound call is best
// effort: failures are logged and discarded, never propagated, so a broken
// notification can never flip a job's own outcome.
package report

import (
	"context"
	"log/slog"
	"time"

	"github.com/sidekick-bot/sidekick/internal/github"
	"github.com/sidekick-bot/sidekick/internal/job"
	"github.com/sidekick-bot/sidekick/internal/logging"
	"github.com/sidekick-bot/sidekick/internal/slack"
)

// commentClient is the subset of the GitHub client the reporter uses.
type commentClient interface {
	AddComment(ctx context.Context, owner, repo string, number int, body string) (*github.Comment, error)
	UpdateComment(ctx context.Context, owner, repo string, commentID int64, body string) (*github.Comment, error)
	CreateCommentReaction(ctx context.Context, owner, repo string, commentID int64, content string) (*github.Reaction, error)
	CreateIssueReaction(ctx context.Context, owner, repo string, number int, content string) (*github.Reaction, error)
}

var _ commentClient = (*github.Client)(nil)

// Reporter posts status, result, and error comments. slack may be nil, in
// which case the secondary channel is skipped.
type Reporter struct {
	gh    commentClient
	slack *slack.Notifier
	log   *slog.Logger
}

// New creates a reporter.
func New(gh commentClient, slackNotifier *slack.Notifier) *Reporter {
	return &Reporter{
		gh:    gh,
		slack: slackNotifier,
		log:   logging.WithComponent("report"),
	}
}

// React applies a reaction to the triggering comment, or to the issue body
// when commentID is zero (issue-body mentions).
func (r *Reporter) React(ctx context.Context, owner, repo string, issueNumber int, commentID int64, content string) {
	var err error
	if commentID != 0 {
		_, err = r.gh.CreateCommentReaction(ctx, owner, repo, commentID, content)
	} else {
		_, err = r.gh.CreateIssueReaction(ctx, owner, repo, issueNumber, content)
	}
	if err != nil {
		r.log.Warn("failed to post reaction",
			slog.String("repo", owner+"/"+repo),
			slog.String("content", content),
			slog.Any("error", err))
	}
}

// PostStatus posts the initial status comment and returns its id for later
// updates, or 0 when posting failed.
func (r *Reporter) PostStatus(ctx context.Context, owner, repo string, j *job.Job, remoteID string) int64 {
	comment, err := r.gh.AddComment(ctx, owner, repo, j.IssueNumber, StatusComment(StatusStarted, j, remoteID))
	if err != nil {
		r.log.Warn("failed to post status comment", slog.String("job_id", j.ID), slog.Any("error", err))
		return 0
	}
	return comment.ID
}

// UpdateStatus rewrites the status comment with the job's final state.
func (r *Reporter) UpdateStatus(ctx context.Context, owner, repo string, j *job.Job, statusCommentID int64, remoteID string) {
	if statusCommentID == 0 {
		return
	}
	if _, err := r.gh.UpdateComment(ctx, owner, repo, statusCommentID, StatusComment(StatusCompleted, j, remoteID)); err != nil {
		r.log.Warn("failed to update status comment", slog.String("job_id", j.ID), slog.Any("error", err))
	}
}

// PostResult posts the result comment for a completed job.
func (r *Reporter) PostResult(ctx context.Context, owner, repo string, j *job.Job) {
	if j.Result == nil || !j.Result.ShouldComment {
		return
	}
	if _, err := r.gh.AddComment(ctx, owner, repo, j.IssueNumber, ResultComment(j.Result)); err != nil {
		r.log.Warn("failed to post result comment", slog.String("job_id", j.ID), slog.Any("error", err))
	}
}

// PostError posts the error comment for a failed job.
func (r *Reporter) PostError(ctx context.Context, owner, repo string, j *job.Job) {
	if _, err := r.gh.AddComment(ctx, owner, repo, j.IssueNumber, ErrorComment(j.Error, j.Elapsed())); err != nil {
		r.log.Warn("failed to post error comment", slog.String("job_id", j.ID), slog.Any("error", err))
	}
}

// PostComment posts an arbitrary comment (denials, usage help).
func (r *Reporter) PostComment(ctx context.Context, owner, repo string, number int, body string) {
	if _, err := r.gh.AddComment(ctx, owner, repo, number, body+footer); err != nil {
		r.log.Warn("failed to post comment", slog.String("repo", owner+"/"+repo), slog.Any("error", err))
	}
}

// NotifyStarted mirrors the job start to Slack and records the thread id on
// the job for threaded follow-ups.
func (r *Reporter) NotifyStarted(ctx context.Context, j *job.Job) {
	if r.slack == nil {
		return
	}
	ts, err := r.slack.JobStarted(ctx, j)
	if err != nil {
		r.log.Warn("failed to notify slack", slog.String("job_id", j.ID), slog.Any("error", err))
		return
	}
	j.NotificationThreadID = ts
}

// NotifyFinished mirrors the job's terminal state to the Slack thread.
func (r *Reporter) NotifyFinished(ctx context.Context, j *job.Job) {
	if r.slack == nil {
		return
	}

	// Give the notification its own brief deadline so a hung Slack call
	// cannot hold the job goroutine.
	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer cancel()

	var err error
	if j.Status == job.StatusCompleted {
		err = r.slack.JobCompleted(notifyCtx, j)
	} else {
		err = r.slack.JobFailed(notifyCtx, j)
	}
	if err != nil {
		r.log.Warn("failed to notify slack", slog.String("job_id", j.ID), slog.Any("error", err))
	}
}
