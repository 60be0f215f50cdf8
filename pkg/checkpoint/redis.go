package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	apperrors "github.com/dialstudy/dialstudy/pkg/errors"
)

// RedisConfig configures the Redis checkpoint backend.
type RedisConfig struct {
	// Address is the Redis server address (e.g., "localhost:6379")
	Address string

	// Password for Redis authentication (optional)
	Password string

	// Database number to use (default: 0)
	Database int

	// Prefix is prepended to all checkpoint keys (e.g., "dialstudy:session:")
	Prefix string

	// TTL is the time-to-live for checkpoint keys (0 = no expiration)
	TTL time.Duration

	// Timeout for Redis operations
	Timeout time.Duration

	// PoolSize is the maximum number of connections
	PoolSize int
}

// DefaultRedisConfig returns sensible defaults.
func DefaultRedisConfig(address string) RedisConfig {
	return RedisConfig{
		Address:  address,
		Prefix:   "dialstudy:session:",
		TTL:      7 * 24 * time.Hour,
		Timeout:  5 * time.Second,
		PoolSize: 4,
	}
}

// RedisBackend stores checkpoints in Redis so several lab machines can
// report sessions to one place.
type RedisBackend struct {
	cfg    RedisConfig
	client *redis.Client
}

// NewRedisBackend creates a new Redis checkpoint backend.
func NewRedisBackend(cfg RedisConfig) (*RedisBackend, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.Database,
		PoolSize:     cfg.PoolSize,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, apperrors.Wrap(err, apperrors.CodeCheckpoint, "redis unreachable").
			WithContext("address", cfg.Address)
	}

	return &RedisBackend{
		cfg:    cfg,
		client: client,
	}, nil
}

func (b *RedisBackend) key(id string) string {
	return b.cfg.Prefix + id
}

// participantIndexKey maps a participant to their latest session.
func (b *RedisBackend) participantIndexKey(pid uint32) string {
	return b.cfg.Prefix + "index:participant:" + strconv.FormatUint(uint64(pid), 10)
}

func (b *RedisBackend) incompleteSetKey() string {
	return b.cfg.Prefix + "incomplete"
}

// Save persists a checkpoint to Redis.
func (b *RedisBackend) Save(ctx context.Context, cp *Checkpoint) error {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	data, err := json.Marshal(cp)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeCheckpoint, "cannot encode checkpoint")
	}

	pipe := b.client.TxPipeline()
	pipe.Set(ctx, b.key(cp.ID), data, b.cfg.TTL)
	pipe.Set(ctx, b.participantIndexKey(cp.Participant), cp.ID, b.cfg.TTL)

	if cp.Complete() {
		pipe.SRem(ctx, b.incompleteSetKey(), cp.ID)
	} else {
		pipe.SAdd(ctx, b.incompleteSetKey(), cp.ID)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return apperrors.Wrap(err, apperrors.CodeCheckpoint, "redis save failed").
			WithContext("session", cp.ID)
	}
	return nil
}

// Load retrieves a checkpoint from Redis.
func (b *RedisBackend) Load(ctx context.Context, id string) (*Checkpoint, error) {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	data, err := b.client.Get(ctx, b.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, apperrors.Wrap(err, apperrors.CodeCheckpoint, "redis load failed").
			WithContext("session", id)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeCheckpoint, "corrupt checkpoint").
			WithContext("session", id)
	}
	return &cp, nil
}

// Delete removes a checkpoint from Redis.
func (b *RedisBackend) Delete(ctx context.Context, id string) error {
	cp, err := b.Load(ctx, id)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	pipe := b.client.TxPipeline()
	pipe.Del(ctx, b.key(id))
	pipe.SRem(ctx, b.incompleteSetKey(), id)
	if cp != nil {
		pipe.Del(ctx, b.participantIndexKey(cp.Participant))
	}

	_, err = pipe.Exec(ctx)
	return err
}

// ListIncomplete returns all sessions that haven't completed. Stale set
// members are pruned as they are found.
func (b *RedisBackend) ListIncomplete(ctx context.Context) ([]*Checkpoint, error) {
	ids, err := b.client.SMembers(ctx, b.incompleteSetKey()).Result()
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeCheckpoint, "cannot list incomplete sessions")
	}

	var checkpoints []*Checkpoint
	for _, id := range ids {
		cp, err := b.Load(ctx, id)
		if err != nil || cp.Complete() {
			b.client.SRem(ctx, b.incompleteSetKey(), id)
			continue
		}
		checkpoints = append(checkpoints, cp)
	}

	sortByStart(checkpoints)
	return checkpoints, nil
}

// FindByParticipant returns the latest session of a participant.
func (b *RedisBackend) FindByParticipant(ctx context.Context, pid uint32) (*Checkpoint, error) {
	id, err := b.client.Get(ctx, b.participantIndexKey(pid)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, apperrors.Wrap(err, apperrors.CodeCheckpoint, "participant index lookup failed").
			WithContext("participant", pid)
	}
	return b.Load(ctx, id)
}

// Ping checks the Redis connection.
func (b *RedisBackend) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()
	return b.client.Ping(ctx).Err()
}

// Name returns "redis".
func (b *RedisBackend) Name() string {
	return "redis"
}

// Close closes the Redis connection.
func (b *RedisBackend) Close() error {
	return b.client.Close()
}

var _ Backend = (*RedisBackend)(nil)
