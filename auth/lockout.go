package auth

import (
	"hash/fnv"
	"sync"
	"time"
)

const lockoutShardCount = 16

type lockoutEntry struct {
	consecutiveFailures uint32
	lockoutUntil        time.Time // zero value means "not locked out"
}

// lockoutShard guards a partition of the per-username counter map. increment
// and conditional-set-lockout happen as a single logical step under the
// shard's lock, satisfying the "single logical step" requirement without
// contending a single process-wide mutex.
type lockoutShard struct {
	mu      sync.Mutex
	entries map[string]*lockoutEntry
}

// loginAttemptCounters is the sharded concurrent map of per-username
// login-attempt counters.
type loginAttemptCounters struct {
	shards      [lockoutShardCount]*lockoutShard
	maxAttempts uint32
	duration    time.Duration
}

func newLoginAttemptCounters(maxAttempts uint32, duration time.Duration) *loginAttemptCounters {
	c := &loginAttemptCounters{maxAttempts: maxAttempts, duration: duration}
	for i := range c.shards {
		c.shards[i] = &lockoutShard{entries: make(map[string]*lockoutEntry)}
	}
	return c
}

func (c *loginAttemptCounters) shardFor(username string) *lockoutShard {
	h := fnv.New32a()
	h.Write([]byte(username))
	return c.shards[h.Sum32()%lockoutShardCount]
}

// isLocked reports whether username is currently locked out.
func (c *loginAttemptCounters) isLocked(username string, now time.Time) bool {
	shard := c.shardFor(username)
	shard.mu.Lock()
	defer shard.mu.Unlock()
	entry, ok := shard.entries[username]
	if !ok {
		return false
	}
	return !entry.lockoutUntil.IsZero() && now.Before(entry.lockoutUntil)
}

// recordFailure increments username's consecutive-failure count and, if it
// reaches maxAttempts, sets lockoutUntil = now + duration.
func (c *loginAttemptCounters) recordFailure(username string, now time.Time) {
	shard := c.shardFor(username)
	shard.mu.Lock()
	defer shard.mu.Unlock()
	entry, ok := shard.entries[username]
	if !ok {
		entry = &lockoutEntry{}
		shard.entries[username] = entry
	}
	entry.consecutiveFailures++
	if entry.consecutiveFailures >= c.maxAttempts {
		entry.lockoutUntil = now.Add(c.duration)
	}
}

// recordSuccess resets username's counter.
func (c *loginAttemptCounters) recordSuccess(username string) {
	shard := c.shardFor(username)
	shard.mu.Lock()
	defer shard.mu.Unlock()
	delete(shard.entries, username)
}
