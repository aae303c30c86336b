package cache

import (
	"context"
	"encoding/json"
	"time"

	"counseling-portal-be/internal/pkg/logger"

	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

const recordTTL = 7 * 24 * time.Hour

// CachedSessionRecord is the redacted snapshot persisted for optimistic
// restore. No tokens, just enough to pre-seed the UI while the authoritative
// check runs.
type CachedSessionRecord struct {
	IdentityId string    `json:"identity_id"`
	Email      string    `json:"email"`
	Role       string    `json:"role"`
	Expiry     time.Time `json:"expiry"`
}

// StalePast reports whether the record is unusable: a buffer window is
// subtracted from the expiry so a record about to expire counts as a miss and
// forces a fresh authoritative check instead of a doomed optimistic restore.
func (r *CachedSessionRecord) StalePast(buffer time.Duration, now time.Time) bool {
	return now.After(r.Expiry.Add(-buffer))
}

type ISessionCache interface {
	// Get returns the cached record or (nil, nil) on a miss. A corrupt record
	// is purged and reported as a miss, never as an error.
	Get(ctx context.Context) (*CachedSessionRecord, error)

	// Set replaces the whole record. No partial-field merges.
	Set(ctx context.Context, rec *CachedSessionRecord) error

	Delete(ctx context.Context) error
}

// sessionCache persists the record in redis so it survives process restarts.
// Without redis it degrades to an in-process store, which still gives the
// whole-record-replace semantics but not restart survival.
type sessionCache struct {
	rdb    *redis.Client
	local  *gocache.Cache
	key    string
	logger logger.ILogger
}

func NewSessionCache(rdb *redis.Client, namespace string, log logger.ILogger) ISessionCache {
	return &sessionCache{
		rdb:    rdb,
		local:  gocache.New(recordTTL, 10*time.Minute),
		key:    "portal:session:" + namespace,
		logger: log,
	}
}

func (c *sessionCache) Get(ctx context.Context) (*CachedSessionRecord, error) {
	raw, found, err := c.read(ctx)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}

	var rec CachedSessionRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		// Corrupt snapshot: purge and fall back to a cold authoritative check.
		c.logger.Warn("SessionCache", "Purging corrupt session record", map[string]interface{}{"error": err.Error()})
		_ = c.Delete(ctx)
		return nil, nil
	}
	return &rec, nil
}

func (c *sessionCache) Set(ctx context.Context, rec *CachedSessionRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	if c.rdb != nil {
		if err := c.rdb.Set(ctx, c.key, raw, recordTTL).Err(); err != nil {
			c.logger.Warn("SessionCache", "Redis write failed, using local store", map[string]interface{}{"error": err.Error()})
		} else {
			return nil
		}
	}
	c.local.Set(c.key, raw, gocache.DefaultExpiration)
	return nil
}

func (c *sessionCache) Delete(ctx context.Context) error {
	c.local.Delete(c.key)
	if c.rdb != nil {
		if err := c.rdb.Del(ctx, c.key).Err(); err != nil {
			c.logger.Warn("SessionCache", "Redis delete failed", map[string]interface{}{"error": err.Error()})
			return err
		}
	}
	return nil
}

func (c *sessionCache) read(ctx context.Context) ([]byte, bool, error) {
	if c.rdb != nil {
		raw, err := c.rdb.Get(ctx, c.key).Bytes()
		if err == nil {
			return raw, true, nil
		}
		if err != redis.Nil {
			c.logger.Warn("SessionCache", "Redis read failed, using local store", map[string]interface{}{"error": err.Error()})
		}
	}
	if x, found := c.local.Get(c.key); found {
		return x.([]byte), true, nil
	}
	return nil, false, nil
}
