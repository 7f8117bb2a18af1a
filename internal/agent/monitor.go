package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sidekick-bot/sidekick/internal/job"
	"github.com/sidekick-bot/sidekick/internal/logging"
	"github.com/sidekick-bot/sidekick/internal/markers"
	"github.com/sidekick-bot/sidekick/internal/mention"
)

const (
	// DefaultPollInterval is how often the monitor checks remote job state.
	DefaultPollInterval = 2 * time.Second
	// DefaultDeadline is the hard wall-clock limit for remote job monitoring.
	DefaultDeadline = 30 * time.Minute
)

// ErrMonitoringTimeout is returned when a remote job never reaches a
// terminal state within the deadline.
var ErrMonitoringTimeout = fmt.Errorf("remote job monitoring deadline exceeded")

// Monitor submits jobs to the agent service and polls them to completion.
type Monitor struct {
	client       *Client
	pollInterval time.Duration
	deadline     time.Duration
	log          *slog.Logger
}

// NewMonitor creates a monitor with the default poll interval and deadline.
func NewMonitor(client *Client) *Monitor {
	return &Monitor{
		client:       client,
		pollInterval: DefaultPollInterval,
		deadline:     DefaultDeadline,
		log:          logging.WithComponent("agent.monitor"),
	}
}

// SetDeadline overrides the monitoring deadline. Used by tests and by
// deployments with shorter remote-execution budgets.
func (m *Monitor) SetDeadline(d time.Duration) {
	m.deadline = d
}

// SetPollInterval overrides the polling interval.
func (m *Monitor) SetPollInterval(d time.Duration) {
	m.pollInterval = d
}

// Execute submits the job's work to the agent service and polls until a
// terminal state or the deadline. The returned result is immutable.
func (m *Monitor) Execute(ctx context.Context, j *job.Job, baseBranch string) (*job.Result, error) {
	req := &JobRequest{
		Repository: j.Repository,
		BaseBranch: baseBranch,
		Task:       synthesizeTask(j.Command),
		Limits: ResourceLimits{
			MaxDurationSeconds: int(m.deadline / time.Second),
		},
		Metadata: map[string]string{
			"correlation_id": uuid.NewString(),
			"repository":     j.Repository,
			"issue_number":   strconv.Itoa(j.IssueNumber),
			"comment_id":     strconv.FormatInt(j.CommentID, 10),
		},
	}

	remoteID, err := m.client.CreateJob(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to submit remote job: %w", err)
	}

	log := m.log.With(slog.String("job_id", j.ID), slog.String("remote_id", remoteID))
	log.Info("remote job submitted")

	remote, err := m.poll(ctx, remoteID, log)
	if err != nil {
		return nil, err
	}

	return m.buildResult(remoteID, remote), nil
}

// poll is a cancellable timed loop with an explicit deadline. It returns the
// remote job once it reaches a terminal state, or ErrMonitoringTimeout.
func (m *Monitor) poll(ctx context.Context, remoteID string, log *slog.Logger) (*RemoteJob, error) {
	deadline := time.NewTimer(m.deadline)
	defer deadline.Stop()
	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			log.Warn("monitoring deadline exceeded, cancelling remote job")
			if _, err := m.client.CancelJob(context.WithoutCancel(ctx), remoteID); err != nil {
				log.Warn("failed to cancel remote job", slog.Any("error", err))
			}
			return nil, ErrMonitoringTimeout
		case <-ticker.C:
			remote, err := m.client.GetJob(ctx, remoteID)
			if err != nil {
				log.Warn("remote job poll failed", slog.Any("error", err))
				continue
			}
			if remote == nil {
				return nil, fmt.Errorf("remote job %s disappeared", remoteID)
			}
			if remote.State.Terminal() {
				log.Info("remote job finished", slog.String("state", string(remote.State)))
				return remote, nil
			}
		}
	}
}

// buildResult converts a terminal remote job into a job result.
func (m *Monitor) buildResult(remoteID string, remote *RemoteJob) *job.Result {
	details := &job.Details{
		BackgroundJobID: remoteID,
		ContainerID:     remote.ContainerID,
	}
	if remote.Metrics != nil {
		details.ExecutionTimeMs = remote.Metrics.DurationMs
		details.TokenUsage = remote.Metrics.TokensUsed
	}

	files := markers.ParseChangedFiles(strings.Join(remote.Logs, "\n"))

	if remote.State != StateSucceeded {
		summary := remote.Error
		if summary == "" {
			summary = fmt.Sprintf("remote job ended in state %s", remote.State)
		}
		return &job.Result{
			Success:       false,
			Summary:       summary,
			Files:         files,
			ShouldComment: true,
			Details:       details,
		}
	}

	return &job.Result{
		Success:        true,
		Summary:        fmt.Sprintf("Remote execution finished, %d file(s) changed", len(files)),
		Files:          files,
		PullRequestURL: remote.PRUrl,
		ShouldComment:  true,
		Details:        details,
	}
}

// synthesizeTask builds the free-text task description sent to the agent
// service by concatenating command, target, and description.
func synthesizeTask(cmd *mention.ParsedCommand) string {
	parts := []string{string(cmd.Command)}
	if cmd.Target != "" {
		parts = append(parts, cmd.Target)
	}
	if cmd.Description != "" {
		parts = append(parts, cmd.Description)
	}
	return strings.Join(parts, " ")
}
