package gateway

import "github.com/sidekick-bot/sidekick/internal/github"

// Webhook header names.
const (
	HeaderEvent     = "X-GitHub-Event"
	HeaderSignature = "X-Hub-Signature-256"
	HeaderTimestamp = "X-Signature-Timestamp"
)

// Event kinds dispatched by the gateway.
const (
	eventIssueComment    = "issue_comment"
	eventPRReviewComment = "pull_request_review_comment"
	eventIssues          = "issues"
)

// issuePayloadRef is the issue subset carried by webhook payloads. The
// pull_request field distinguishes comments on PRs from comments on issues.
type issuePayloadRef struct {
	Number      int         `json:"number"`
	Title       string      `json:"title"`
	Body        string      `json:"body"`
	User        github.User `json:"user"`
	PullRequest *struct {
		URL     string `json:"url"`
		HTMLURL string `json:"html_url"`
	} `json:"pull_request,omitempty"`
}

// commentPayload is the comment subset carried by webhook payloads.
type commentPayload struct {
	ID   int64       `json:"id"`
	Body string      `json:"body"`
	User github.User `json:"user"`
}

// pullRequestRef is the pull request subset carried by review-comment
// payloads.
type pullRequestRef struct {
	Number  int    `json:"number"`
	HTMLURL string `json:"html_url"`
}

// issueCommentEvent is the issue_comment webhook payload.
type issueCommentEvent struct {
	Action     string            `json:"action"`
	Issue      issuePayloadRef   `json:"issue"`
	Comment    commentPayload    `json:"comment"`
	Repository github.Repository `json:"repository"`
}

// reviewCommentEvent is the pull_request_review_comment webhook payload.
type reviewCommentEvent struct {
	Action      string            `json:"action"`
	Comment     commentPayload    `json:"comment"`
	PullRequest pullRequestRef    `json:"pull_request"`
	Repository  github.Repository `json:"repository"`
}

// issuesEvent is the issues webhook payload.
type issuesEvent struct {
	Action     string            `json:"action"`
	Issue      issuePayloadRef   `json:"issue"`
	Repository github.Repository `json:"repository"`
}
