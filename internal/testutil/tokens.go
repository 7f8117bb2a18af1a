// Package testutil provides testing utilities for the sidekick project.
package testutil

// Safe test tokens that won't trigger GitHub's push protection.
// These are intentionally simple and obviously fake to avoid secret scanning.
const (
	// FakeGitHubToken is a safe test token for GitHub API authentication.
	FakeGitHubToken = "test-github-token"

	// FakeSlackBotToken is a safe test token for Slack bot authentication.
	FakeSlackBotToken = "test-slack-bot-token"

	// FakeWebhookSecret is a safe test secret for webhook signatures.
	FakeWebhookSecret = "test-webhook-secret"

	// FakeAgentToken is a safe test token for the agent service.
	FakeAgentToken = "test-agent-token"
)
