// Package access gates inbound requests with repository allow-listing,
// optional org-membership checks, and per-author rate limiting.
package access

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"github.com/sidekick-bot/sidekick/internal/github"
	"github.com/sidekick-bot/sidekick/internal/logging"
)

// Denial reasons reported by Check.
const (
	ReasonRepoNotAllowed = "repository_not_allowed"
	ReasonNotOrgMember   = "not_org_member"
	ReasonRateLimited    = "rate_limited"
)

// DefaultRateLimit is the per-author hourly request limit when none is
// configured.
const DefaultRateLimit = 10

// Decision is the outcome of an access check.
type Decision struct {
	Allowed bool
	Reason  string
}

// membershipChecker is the subset of the GitHub client used for org checks.
type membershipChecker interface {
	IsOrgMember(ctx context.Context, org, user string) (bool, error)
}

var _ membershipChecker = (*github.Client)(nil)

// Controller evaluates the three access gates in order, short-circuiting on
// the first failure: allow-list, org membership, rate limit.
type Controller struct {
	allowedRepos []string
	requireOrg   bool
	rateLimit    int
	gh           membershipChecker
	counter      *Counter // nil disables rate limiting
	log          *slog.Logger
}

// NewController creates an access controller. counter may be nil, which
// disables rate limiting entirely.
func NewController(allowedRepos []string, requireOrg bool, rateLimit int, gh membershipChecker, counter *Counter) *Controller {
	if rateLimit <= 0 {
		rateLimit = DefaultRateLimit
	}
	return &Controller{
		allowedRepos: allowedRepos,
		requireOrg:   requireOrg,
		rateLimit:    rateLimit,
		gh:           gh,
		counter:      counter,
		log:          logging.WithComponent("access"),
	}
}

// RateLimit returns the per-author hourly limit in effect.
func (c *Controller) RateLimit() int {
	return c.rateLimit
}

// Check runs the gates for a request from author against the repository
// (full "owner/name" form).
func (c *Controller) Check(ctx context.Context, repo, author string) Decision {
	if !c.repoAllowed(repo) {
		return Decision{Reason: ReasonRepoNotAllowed}
	}

	if c.requireOrg {
		org := repo
		if idx := strings.Index(repo, "/"); idx >= 0 {
			org = repo[:idx]
		}
		member, err := c.gh.IsOrgMember(ctx, org, author)
		if err != nil {
			// A failed lookup is treated as "not a member".
			c.log.Warn("org membership lookup failed",
				slog.String("org", org),
				slog.String("author", author),
				slog.Any("error", err))
			member = false
		}
		if !member {
			return Decision{Reason: ReasonNotOrgMember}
		}
	}

	if c.counter != nil {
		count, err := c.counter.Increment(ctx, author)
		if err != nil {
			// Counter store unreachable: fail open. Availability over
			// strict enforcement.
			c.log.Warn("rate counter unavailable, allowing request",
				slog.String("author", author),
				slog.Any("error", err))
			return Decision{Allowed: true}
		}
		if count > int64(c.rateLimit) {
			return Decision{Reason: ReasonRateLimited}
		}
	}

	return Decision{Allowed: true}
}

// repoAllowed matches the repository against the allow-list. An empty list
// allows every repository (open by default). Patterns containing '*' are
// converted to regular expressions; others must match exactly.
func (c *Controller) repoAllowed(repo string) bool {
	if len(c.allowedRepos) == 0 {
		return true
	}

	for _, pattern := range c.allowedRepos {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}
		if !strings.Contains(pattern, "*") {
			if pattern == repo {
				return true
			}
			continue
		}
		re, err := patternToRegexp(pattern)
		if err != nil {
			c.log.Warn("invalid allow-list pattern", slog.String("pattern", pattern))
			continue
		}
		if re.MatchString(repo) {
			return true
		}
	}
	return false
}

// patternToRegexp converts a glob-style allow-list pattern to an anchored
// regular expression, with '*' as the only wildcard.
func patternToRegexp(pattern string) (*regexp.Regexp, error) {
	escaped := regexp.QuoteMeta(pattern)
	escaped = strings.ReplaceAll(escaped, `\*`, ".*")
	return regexp.Compile("^" + escaped + "$")
}
