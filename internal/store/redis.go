package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/victornm/quizduel/internal/domain"
)

// popPairScript pops the two oldest queue entries only when at least two
// exist, so a concurrent pop can never split a pair.
var popPairScript = redis.NewScript(`
if redis.call('LLEN', KEYS[1]) < 2 then
	return {}
end
local a = redis.call('LPOP', KEYS[1])
local b = redis.call('LPOP', KEYS[1])
return {a, b}
`)

// removeEntryScript removes the queue entry whose conn_id matches ARGV[1].
var removeEntryScript = redis.NewScript(`
local items = redis.call('LRANGE', KEYS[1], 0, -1)
for i, v in ipairs(items) do
	local e = cjson.decode(v)
	if e['conn_id'] == ARGV[1] then
		redis.call('LREM', KEYS[1], 1, v)
		return 1
	end
end
return 0
`)

// Redis is a Store backed by a shared redis instance. Queue entries live in
// a list, oldest first; session snapshots live in plain keys.
type Redis struct {
	rc     redis.UniversalClient
	prefix string
}

func NewRedis(rc redis.UniversalClient, prefix string) *Redis {
	return &Redis{rc: rc, prefix: prefix}
}

func (r *Redis) queueKey() string {
	return fmt.Sprintf("%s:waiting_queue", r.prefix)
}

func (r *Redis) sessionKey(id string) string {
	return fmt.Sprintf("%s:session:%s", r.prefix, id)
}

func (r *Redis) PushQueue(ctx context.Context, e domain.QueueEntry) error {
	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("store: marshal queue entry: %w", err)
	}

	return r.rc.RPush(ctx, r.queueKey(), b).Err()
}

func (r *Redis) PopQueuePair(ctx context.Context) (domain.QueueEntry, domain.QueueEntry, bool, error) {
	var a, b domain.QueueEntry

	res, err := popPairScript.Run(ctx, r.rc, []string{r.queueKey()}).StringSlice()
	if err != nil {
		return a, b, false, fmt.Errorf("store: pop queue pair: %w", err)
	}

	if len(res) < 2 {
		return a, b, false, nil
	}

	if err := json.Unmarshal([]byte(res[0]), &a); err != nil {
		return a, b, false, fmt.Errorf("store: unmarshal queue entry: %w", err)
	}
	if err := json.Unmarshal([]byte(res[1]), &b); err != nil {
		return a, b, false, fmt.Errorf("store: unmarshal queue entry: %w", err)
	}

	return a, b, true, nil
}

func (r *Redis) RemoveQueue(ctx context.Context, connID string) (bool, error) {
	n, err := removeEntryScript.Run(ctx, r.rc, []string{r.queueKey()}, connID).Int()
	if err != nil {
		return false, fmt.Errorf("store: remove queue entry: %w", err)
	}

	return n > 0, nil
}

func (r *Redis) QueueLen(ctx context.Context) (int, error) {
	n, err := r.rc.LLen(ctx, r.queueKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("store: queue len: %w", err)
	}

	return int(n), nil
}

func (r *Redis) SaveSession(ctx context.Context, s domain.Session) error {
	b, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("store: marshal session: %w", err)
	}

	return r.rc.Set(ctx, r.sessionKey(s.SessionID), b, 0).Err()
}

func (r *Redis) GetSession(ctx context.Context, id string) (domain.Session, bool, error) {
	var s domain.Session

	b, err := r.rc.Get(ctx, r.sessionKey(id)).Bytes()
	if err == redis.Nil {
		return s, false, nil
	}
	if err != nil {
		return s, false, fmt.Errorf("store: get session: %w", err)
	}

	if err := json.Unmarshal(b, &s); err != nil {
		return s, false, fmt.Errorf("store: unmarshal session: %w", err)
	}

	return s, true, nil
}

func (r *Redis) DeleteSession(ctx context.Context, id string) error {
	return r.rc.Del(ctx, r.sessionKey(id)).Err()
}
