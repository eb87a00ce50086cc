package timer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisSnapshotKeyPrefix  = "studystreak:timer:"
	redisEventChannelPrefix = "studystreak:timer-events:"

	// DefaultSnapshotTTL は最後の更新からスナップショットを保持する期間。
	DefaultSnapshotTTL = 48 * time.Hour
)

// SnapshotKey はユーザーのスナップショットを保存するRedisキーを返す。
func SnapshotKey(userID string) string {
	return redisSnapshotKeyPrefix + userID
}

func eventChannel(userID string) string {
	return redisEventChannelPrefix + userID
}

// NewRedisClient はURL（redis://...）からRedisクライアントを生成し、疎通を確認する。
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	opts.DialTimeout = 3 * time.Second
	opts.ReadTimeout = 2 * time.Second
	opts.WriteTimeout = 2 * time.Second

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}

// RedisSnapshotStore はRedisにスナップショットを保存する。
type RedisSnapshotStore struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedisSnapshotStore はRedisSnapshotStoreを生成する。ttlが0以下ならDefaultSnapshotTTLを使う。
func NewRedisSnapshotStore(client redis.UniversalClient, ttl time.Duration) *RedisSnapshotStore {
	if ttl <= 0 {
		ttl = DefaultSnapshotTTL
	}
	return &RedisSnapshotStore{client: client, ttl: ttl}
}

var _ SnapshotStore = (*RedisSnapshotStore)(nil)

func (r *RedisSnapshotStore) Load(ctx context.Context, userID string) (*Snapshot, error) {
	data, err := r.client.Get(ctx, SnapshotKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load timer snapshot: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode timer snapshot: %w", err)
	}
	return &snap, nil
}

func (r *RedisSnapshotStore) Save(ctx context.Context, userID string, snap Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to encode timer snapshot: %w", err)
	}
	if err := r.client.Set(ctx, SnapshotKey(userID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save timer snapshot: %w", err)
	}
	return nil
}

func (r *RedisSnapshotStore) Delete(ctx context.Context, userID string) error {
	if err := r.client.Del(ctx, SnapshotKey(userID)).Err(); err != nil {
		return fmt.Errorf("failed to delete timer snapshot: %w", err)
	}
	return nil
}

// RedisBus はRedis Pub/Subでスナップショットをプロセス間に配信する。チャネルはユーザーごと。
type RedisBus struct {
	client redis.UniversalClient
}

// NewRedisBus はRedisBusを生成する。
func NewRedisBus(client redis.UniversalClient) *RedisBus {
	return &RedisBus{client: client}
}

var _ Bus = (*RedisBus)(nil)

func (b *RedisBus) Publish(ctx context.Context, userID string, snap Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to encode timer snapshot: %w", err)
	}
	if err := b.client.Publish(ctx, eventChannel(userID), data).Err(); err != nil {
		return fmt.Errorf("failed to publish timer snapshot: %w", err)
	}
	return nil
}

func (b *RedisBus) Subscribe(ctx context.Context, userID string) (<-chan Snapshot, func(), error) {
	pubsub := b.client.Subscribe(ctx, eventChannel(userID))
	// 購読の確立を待つ
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, nil, fmt.Errorf("failed to subscribe timer events: %w", err)
	}

	out := make(chan Snapshot, subscriberBuffer)
	done := make(chan struct{})
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			pubsub.Close()
		})
	}

	go func() {
		defer close(out)
		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				cancel()
				return
			case <-done:
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var snap Snapshot
				if err := json.Unmarshal([]byte(msg.Payload), &snap); err != nil {
					slog.Warn("discarding malformed timer event",
						slog.String("user_id", userID),
						slog.String("error", err.Error()),
					)
					continue
				}
				deliverLatest(out, snap)
			}
		}
	}()

	return out, cancel, nil
}
