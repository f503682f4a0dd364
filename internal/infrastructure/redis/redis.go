package redis

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/avolkov/afisha/internal/domain"
	"github.com/redis/go-redis/v9"
)

type Cache struct {
	Client *redis.Client
}

func New(addr, pass string, db int) *Cache {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr, Password: pass, DB: db,
	})
	return &Cache{Client: rdb}
}

// fullTTL bounds how long a "limit reached" marker can short-circuit
// submissions; moderation and cancellation clear it eagerly, the TTL covers
// everything else.
const fullTTL = time.Hour

func eventFullKey(eventID int64) string {
	return "event:full:" + strconv.FormatInt(eventID, 10)
}

func (c *Cache) GetEventFull(ctx context.Context, eventID int64) (bool, error) {
	val, err := c.Client.Get(ctx, eventFullKey(eventID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, domain.ErrCacheMiss
		}
		return false, err
	}
	return val == "1", nil
}

func (c *Cache) SetEventFull(ctx context.Context, eventID int64, full bool) error {
	if !full {
		return c.Client.Del(ctx, eventFullKey(eventID)).Err()
	}
	return c.Client.Set(ctx, eventFullKey(eventID), "1", fullTTL).Err()
}

// MarkSeen records a (uri, ip) sighting and reports whether it is the first
// one inside the window. Backs the unique view counter.
func (c *Cache) MarkSeen(ctx context.Context, uri, clientIP string, ttl time.Duration) (bool, error) {
	key := "seen:" + uri + ":" + clientIP
	first, err := c.Client.SetNX(ctx, key, "1", ttl).Result()
	if err != nil {
		return false, err
	}
	return first, nil
}

// AllowRequest: simple fixed window rate limit
func (c *Cache) AllowRequest(ctx context.Context, ip string, limit int, window time.Duration) (bool, error) {
	key := "ratelimit:" + ip
	count, err := c.Client.Incr(ctx, key).Result()
	if err != nil {
		return true, nil // fail open
	}
	if count == 1 {
		_ = c.Client.Expire(ctx, key, window).Err()
	}
	return count <= int64(limit), nil
}
