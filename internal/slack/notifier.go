package slack

import (
	"context"
	"fmt"
	"strings"

	"github.com/sidekick-bot/sidekick/internal/job"
)

// Notifier mirrors job status to a Slack channel, threading updates under
// the job's start message.
type Notifier struct {
	client  *Client
	channel string
}

// NewNotifier creates a notifier for the configured channel.
func NewNotifier(config *Config) *Notifier {
	return &Notifier{
		client:  NewClient(config.BotToken),
		channel: config.Channel,
	}
}

// NewNotifierWithClient creates a notifier with an explicit client (for testing).
func NewNotifierWithClient(client *Client, channel string) *Notifier {
	return &Notifier{client: client, channel: channel}
}

// JobStarted posts the start message and returns the thread id used for
// subsequent replies.
func (n *Notifier) JobStarted(ctx context.Context, j *job.Job) (string, error) {
	text := fmt.Sprintf("🚀 *Sidekick job started*\n`%s` — `%s` by @%s in %s#%d",
		j.ID, j.Command.Command, j.Author, j.Repository, j.IssueNumber)

	resp, err := n.client.PostMessage(ctx, &Message{Channel: n.channel, Text: text})
	if err != nil {
		return "", err
	}
	return resp.TS, nil
}

// JobCompleted posts the success reply in the job's thread.
func (n *Notifier) JobCompleted(ctx context.Context, j *job.Job) error {
	var b strings.Builder
	fmt.Fprintf(&b, "✅ *Job completed*\n`%s`", j.ID)
	if j.Result != nil {
		if j.Result.PullRequestURL != "" {
			fmt.Fprintf(&b, "\n<%s|Pull request ready for review>", j.Result.PullRequestURL)
		}
		if len(j.Result.Files) > 0 {
			fmt.Fprintf(&b, "\n%d file(s) changed", len(j.Result.Files))
		}
	}

	_, err := n.client.PostMessage(ctx, &Message{
		Channel:  n.channel,
		Text:     b.String(),
		ThreadTS: j.NotificationThreadID,
	})
	return err
}

// JobFailed posts the failure reply in the job's thread.
func (n *Notifier) JobFailed(ctx context.Context, j *job.Job) error {
	_, err := n.client.PostMessage(ctx, &Message{
		Channel:  n.channel,
		Text:     fmt.Sprintf("❌ *Job failed*\n`%s`\n```%s```", j.ID, j.Error),
		ThreadTS: j.NotificationThreadID,
	})
	return err
}
