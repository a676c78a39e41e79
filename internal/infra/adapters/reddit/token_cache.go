package reddit

import (
	"context"
	"sync"
	"time"
)

// tokenCache holds a single cached OAuth access token with a mandatory
// single-flight refresh: concurrent callers that find the token
// missing or within its safety window block on one in-flight refresh
// rather than issuing N redundant token requests.
//
// The wait/signal idiom (sync.Cond plus context.AfterFunc to make the
// wait cancellable) is adapted from the teacher's
// scheduler.poolState.waitForSignalLocked/signalWaiterLocked, which
// uses the same pattern to let callers block on one in-flight instance
// start instead of racing to start their own.
type tokenCache struct {
	mu      sync.Mutex
	cond    *sync.Cond
	token   string
	expiry  time.Time
	refresh bool // a refresh is currently in flight
	signal  int
	fetchFn func(ctx context.Context) (string, time.Duration, error)
}

// safetyWindow is subtracted from the token's reported TTL so a token
// is treated as expired slightly before the provider actually revokes
// it, avoiding a request that races the real expiry.
const safetyWindow = 30 * time.Second

func newTokenCache(fetch func(ctx context.Context) (string, time.Duration, error)) *tokenCache {
	c := &tokenCache{fetchFn: fetch}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// Get returns a valid access token, refreshing it if absent or past
// its safety window. Exactly one goroutine performs the HTTP refresh
// at a time; the rest wait on the condition variable and re-check.
func (c *tokenCache) Get(ctx context.Context) (string, error) {
	c.mu.Lock()
	for {
		if c.valid() {
			tok := c.token
			c.mu.Unlock()
			return tok, nil
		}
		if !c.refresh {
			c.refresh = true
			c.mu.Unlock()
			token, ttl, err := c.fetchFn(ctx)
			c.mu.Lock()
			c.refresh = false
			if err == nil {
				c.token = token
				c.expiry = time.Now().Add(ttl)
			}
			c.signal++
			c.cond.Broadcast()
			c.mu.Unlock()
			if err != nil {
				return "", err
			}
			return token, nil
		}

		if err := c.waitLocked(ctx); err != nil {
			c.mu.Unlock()
			return "", err
		}
	}
}

func (c *tokenCache) valid() bool {
	return c.token != "" && time.Now().Before(c.expiry.Add(-safetyWindow))
}

// waitLocked blocks until the in-flight refresh completes or ctx is
// canceled, whichever comes first. c.mu is held on entry and on
// return.
func (c *tokenCache) waitLocked(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	seq := c.signal
	stop := context.AfterFunc(ctx, func() {
		c.mu.Lock()
		c.signal++
		c.cond.Broadcast()
		c.mu.Unlock()
	})
	defer stop()
	for seq == c.signal && ctx.Err() == nil {
		c.cond.Wait()
	}
	return ctx.Err()
}
