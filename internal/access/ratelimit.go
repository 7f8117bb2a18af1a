package access

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// rateWindow is the expiry applied to per-author counters.
const rateWindow = time.Hour

// Counter is a per-author request counter backed by Redis. Increment-with-
// expiry runs as a single Lua script so concurrent access-control checks see
// atomic counts.
type Counter struct {
	client *redis.Client
	prefix string
}

// NewCounter creates a counter using the given Redis client.
func NewCounter(client *redis.Client) *Counter {
	return &Counter{client: client, prefix: "sidekick:rate:"}
}

// Increment bumps the author's counter and returns the post-increment count.
// The window expiry is set only when the key is created, so the window is
// anchored to the author's first request.
func (c *Counter) Increment(ctx context.Context, author string) (int64, error) {
	res, err := incrScript.Run(ctx, c.client, []string{c.prefix + author}, rateWindow.Milliseconds()).Result()
	if err != nil {
		return 0, err
	}
	count, _ := res.(int64)
	return count, nil
}

var incrScript = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
if count == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return count
`)
