package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"
)

// RedisOptions configures RedisStore keys and expiry.
type RedisOptions struct {
	Prefix  string
	TTL     time.Duration
	LockTTL time.Duration
	// LockWait bounds how long Lock keeps trying before ErrBusy.
	LockWait time.Duration
}

// RedisStore keeps session state in Redis so several server instances can
// share one session.
type RedisStore struct {
	redis  *redis.Client
	logger zerolog.Logger
	prefix string
	ttl    time.Duration
	lock   time.Duration
	wait   time.Duration
}

var _ Store = (*RedisStore)(nil)

func NewRedisStore(client *redis.Client, opts RedisOptions, logger zerolog.Logger) *RedisStore {
	prefix := opts.Prefix
	if prefix == "" {
		prefix = "quiz"
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	lockTTL := opts.LockTTL
	if lockTTL <= 0 {
		lockTTL = 10 * time.Second
	}
	wait := opts.LockWait
	if wait <= 0 {
		wait = time.Second
	}
	return &RedisStore{
		redis:  client,
		logger: logger.With().Str("component", "session_store").Logger(),
		prefix: prefix,
		ttl:    ttl,
		lock:   lockTTL,
		wait:   wait,
	}
}

func (s *RedisStore) key(name string) string {
	return s.prefix + ":" + name
}

func (s *RedisStore) NextClientNumber(ctx context.Context) (int, error) {
	n, err := s.redis.Incr(ctx, s.key("client_seq")).Result()
	if err != nil {
		return 0, fmt.Errorf("next client number: %w", err)
	}
	return int(n), nil
}

func (s *RedisStore) AddClient(ctx context.Context, c Client) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal client: %w", err)
	}
	pipe := s.redis.TxPipeline()
	pipe.HSet(ctx, s.key("clients"), c.ID, data)
	pipe.Expire(ctx, s.key("clients"), s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("add client: %w", err)
	}
	return nil
}

func (s *RedisStore) GetClient(ctx context.Context, id string) (Client, error) {
	data, err := s.redis.HGet(ctx, s.key("clients"), id).Bytes()
	if err == redis.Nil {
		return Client{}, ErrClientNotFound
	}
	if err != nil {
		return Client{}, fmt.Errorf("get client: %w", err)
	}
	var c Client
	if err := json.Unmarshal(data, &c); err != nil {
		return Client{}, fmt.Errorf("unmarshal client: %w", err)
	}
	return c, nil
}

func (s *RedisStore) ListClients(ctx context.Context) ([]Client, error) {
	all, err := s.redis.HGetAll(ctx, s.key("clients")).Result()
	if err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}
	out := make([]Client, 0, len(all))
	for id, raw := range all {
		var c Client
		if err := json.Unmarshal([]byte(raw), &c); err != nil {
			s.logger.Warn().Err(err).Str("client_id", id).Msg("skip corrupted client")
			continue
		}
		out = append(out, c)
	}
	sortClients(out)
	return out, nil
}

func (s *RedisStore) SetClientStatus(ctx context.Context, id string, status ClientStatus) error {
	c, err := s.GetClient(ctx, id)
	if err != nil {
		return err
	}
	c.Status = status
	return s.AddClient(ctx, c)
}

func (s *RedisStore) SetAllClientStatus(ctx context.Context, status ClientStatus) error {
	clients, err := s.ListClients(ctx)
	if err != nil {
		return err
	}
	if len(clients) == 0 {
		return nil
	}
	pipe := s.redis.TxPipeline()
	for _, c := range clients {
		c.Status = status
		data, err := json.Marshal(c)
		if err != nil {
			return fmt.Errorf("marshal client: %w", err)
		}
		pipe.HSet(ctx, s.key("clients"), c.ID, data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("set client statuses: %w", err)
	}
	return nil
}

// rankScore packs score and time into one sortable number: higher score
// first, then less time.
func rankScore(sub Submission) float64 {
	return float64(sub.Score)*1e6 - float64(sub.TimeTaken)
}

func (s *RedisStore) SaveSubmission(ctx context.Context, sub Submission) (Submission, bool, error) {
	data, err := json.Marshal(sub)
	if err != nil {
		return Submission{}, false, fmt.Errorf("marshal submission: %w", err)
	}

	created, err := s.redis.HSetNX(ctx, s.key("results"), sub.ClientID, data).Result()
	if err != nil {
		return Submission{}, false, fmt.Errorf("save submission: %w", err)
	}
	if !created {
		existing, err := s.getSubmission(ctx, sub.ClientID)
		return existing, false, err
	}

	pipe := s.redis.TxPipeline()
	pipe.ZAdd(ctx, s.key("ranking"), redis.Z{Score: rankScore(sub), Member: sub.ClientID})
	pipe.Expire(ctx, s.key("results"), s.ttl)
	pipe.Expire(ctx, s.key("ranking"), s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return Submission{}, false, fmt.Errorf("rank submission: %w", err)
	}
	return sub, true, nil
}

func (s *RedisStore) getSubmission(ctx context.Context, clientID string) (Submission, error) {
	data, err := s.redis.HGet(ctx, s.key("results"), clientID).Bytes()
	if err != nil {
		return Submission{}, fmt.Errorf("get submission: %w", err)
	}
	var sub Submission
	if err := json.Unmarshal(data, &sub); err != nil {
		return Submission{}, fmt.Errorf("unmarshal submission: %w", err)
	}
	return sub, nil
}

func (s *RedisStore) ListSubmissions(ctx context.Context) ([]Submission, error) {
	ids, err := s.redis.ZRevRange(ctx, s.key("ranking"), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list ranking: %w", err)
	}
	if len(ids) == 0 {
		return []Submission{}, nil
	}
	raws, err := s.redis.HMGet(ctx, s.key("results"), ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}

	out := make([]Submission, 0, len(raws))
	for i, raw := range raws {
		str, ok := raw.(string)
		if !ok {
			continue
		}
		var sub Submission
		if err := json.Unmarshal([]byte(str), &sub); err != nil {
			s.logger.Warn().Err(err).Str("client_id", ids[i]).Msg("skip corrupted submission")
			continue
		}
		out = append(out, sub)
	}
	return out, nil
}

func (s *RedisStore) ClearSubmissions(ctx context.Context) error {
	pipe := s.redis.TxPipeline()
	pipe.Del(ctx, s.key("results"), s.key("ranking"))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("clear submissions: %w", err)
	}
	return nil
}

func (s *RedisStore) LoadSnapshot(ctx context.Context) (Snapshot, error) {
	data, err := s.redis.Get(ctx, s.key("state")).Bytes()
	if err == redis.Nil {
		return Snapshot{}, nil
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("get state: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("unmarshal state: %w", err)
	}
	return snap, nil
}

func (s *RedisStore) SaveSnapshot(ctx context.Context, snap Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	return s.redis.Set(ctx, s.key("state"), data, s.ttl).Err()
}

const unlockScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end`

// Lock takes the session lock, waiting up to LockWait. The lock expires on
// its own after LockTTL.
func (s *RedisStore) Lock(ctx context.Context) (func() error, error) {
	key := s.key("lock")
	value := uuid.New().String()

	backoff := retry.WithMaxDuration(s.wait, retry.NewConstant(25*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		acquired, err := s.redis.SetNX(ctx, key, value, s.lock).Result()
		if err != nil {
			return fmt.Errorf("acquire lock: %w", err)
		}
		if !acquired {
			return retry.RetryableError(ErrBusy)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	unlock := func() error {
		return s.redis.Eval(context.WithoutCancel(ctx), unlockScript, []string{key}, value).Err()
	}
	return unlock, nil
}
