package redislock

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock only when it still holds our token, so an
// expired lock re-acquired by someone else is never released from here.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker takes short-lived per-key locks via SET NX with a TTL. Locks expire
// on their own, so a crashed holder never wedges the key.
type Locker struct {
	client *redis.Client
	prefix string
}

func New(client *redis.Client, prefix string) *Locker {
	return &Locker{client: client, prefix: prefix}
}

// Acquire attempts to take the lock once. It returns acquired=false without
// error when another holder has the key. The release func is safe to call
// after the TTL elapsed; it only deletes the key when the token still
// matches.
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(context.Context), bool, error) {
	token := uuid.NewString()
	full := l.prefix + key

	ok, err := l.client.SetNX(ctx, full, token, ttl).Result()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return func(context.Context) {}, false, nil
	}

	release := func(ctx context.Context) {
		releaseScript.Run(ctx, l.client, []string{full}, token)
	}
	return release, true, nil
}
