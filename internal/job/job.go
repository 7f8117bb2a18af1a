// Package job defines the processing-job model, its state machine, and
// bounded persisted storage for job records.
package job

import (
	"fmt"
	"time"

	"github.com/sidekick-bot/sidekick/internal/mention"
)

// Status is the lifecycle state of a processing job.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no further transition is possible from s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// rank orders statuses so transitions can be checked for monotonicity.
func (s Status) rank() int {
	switch s {
	case StatusQueued:
		return 0
	case StatusProcessing:
		return 1
	case StatusCompleted, StatusFailed:
		return 2
	}
	return -1
}

// Details carries execution metadata reported by a backend.
type Details struct {
	BackgroundJobID string `json:"background_job_id,omitempty"`
	ContainerID     string `json:"container_id,omitempty"`
	ExecutionTimeMs int64  `json:"execution_time_ms,omitempty"`
	TokenUsage      int64  `json:"token_usage,omitempty"`
}

// Result is the outcome produced once per job by the execution backend.
// It is immutable after creation.
type Result struct {
	Success        bool     `json:"success"`
	Summary        string   `json:"summary"`
	Analysis       string   `json:"analysis,omitempty"`
	Files          []string `json:"files,omitempty"`
	PullRequestURL string   `json:"pr_url,omitempty"`
	ShouldComment  bool     `json:"should_comment"`
	Details        *Details `json:"details,omitempty"`
}

// Job is the unit of work created per qualifying mention. The status field
// has a single concurrent writer: the goroutine that owns the job.
type Job struct {
	ID          string
	Repository  string // owner/name
	IssueNumber int
	CommentID   int64
	Author      string

	Mention *mention.Mention
	Command *mention.ParsedCommand

	Status      Status
	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time

	Result *Result
	Error  string

	IsPR       bool
	IsIssue    bool
	IsPRReview bool

	PullRequestURL       string
	NotificationThreadID string
}

// ComposeID builds the composite job id. Comment-triggered jobs use
// repo-issue-comment; issue-body mentions (commentID 0) use repo-issue, so
// ids never collide across distinct trigger points.
func ComposeID(repo string, issueNumber int, commentID int64) string {
	if commentID == 0 {
		return fmt.Sprintf("%s-%d", repo, issueNumber)
	}
	return fmt.Sprintf("%s-%d-%d", repo, issueNumber, commentID)
}

// New creates a queued job for a recognized mention.
func New(repo string, issueNumber int, commentID int64, author string, m *mention.Mention, cmd *mention.ParsedCommand) *Job {
	return &Job{
		ID:          ComposeID(repo, issueNumber, commentID),
		Repository:  repo,
		IssueNumber: issueNumber,
		CommentID:   commentID,
		Author:      author,
		Mention:     m,
		Command:     cmd,
		Status:      StatusQueued,
		CreatedAt:   time.Now(),
	}
}

// Transition moves the job to a new status, enforcing the monotonic state
// machine queued -> processing -> {completed, failed}. StartedAt is set on
// entry to processing; CompletedAt is set exactly once, on entry to a
// terminal state.
func (j *Job) Transition(to Status) error {
	if j.Status.Terminal() {
		return fmt.Errorf("job %s: cannot leave terminal status %s", j.ID, j.Status)
	}
	if to.rank() <= j.Status.rank() {
		return fmt.Errorf("job %s: backward transition %s -> %s", j.ID, j.Status, to)
	}

	now := time.Now()
	switch to {
	case StatusProcessing:
		j.StartedAt = &now
	case StatusCompleted, StatusFailed:
		j.CompletedAt = &now
	}
	j.Status = to
	return nil
}

// Elapsed returns the wall-clock time from job start (or creation, if the job
// never started) to completion, or to now for in-flight jobs.
func (j *Job) Elapsed() time.Duration {
	start := j.CreatedAt
	if j.StartedAt != nil {
		start = *j.StartedAt
	}
	if j.CompletedAt != nil {
		return j.CompletedAt.Sub(start)
	}
	return time.Since(start)
}
