package access

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/JonMunkholm/tablekit/internal/docstore"
)

// BootstrapFlag records, exactly once, which user became the first admin.
// Claim returns true only for the single caller that set the flag. Release
// gives the flag back if it is still held by userID, so a later user can
// claim it.
type BootstrapFlag interface {
	Claim(ctx context.Context, userID string) (bool, error)
	Release(ctx context.Context, userID string) error
}

// Defaults for the store-backed flag.
const (
	SystemCollection = "_system"
	BootstrapDocID   = "bootstrap"
)

// StoreFlag claims the flag by creating a fixed document. The store's
// exclusive create decides the single winner.
type StoreFlag struct {
	store      docstore.Store
	collection string
	id         string
	now        func() time.Time
}

// NewStoreFlag keeps the flag in the _system collection.
func NewStoreFlag(store docstore.Store) *StoreFlag {
	return &StoreFlag{store: store, collection: SystemCollection, id: BootstrapDocID, now: time.Now}
}

func (f *StoreFlag) Claim(ctx context.Context, userID string) (bool, error) {
	err := f.store.Create(ctx, f.collection, f.id, map[string]any{
		"adminId":   userID,
		"claimedAt": f.now().UTC(),
	})
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, docstore.ErrAlreadyExists):
		return false, nil
	}
	return false, fmt.Errorf("claim bootstrap flag: %w", err)
}

func (f *StoreFlag) Release(ctx context.Context, userID string) error {
	doc, err := f.store.Get(ctx, f.collection, f.id)
	if docstore.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("release bootstrap flag: %w", err)
	}
	if owner, _ := doc.Data["adminId"].(string); owner != userID {
		return nil
	}
	if err := f.store.Delete(ctx, f.collection, f.id); err != nil && !docstore.IsNotFound(err) {
		return fmt.Errorf("release bootstrap flag: %w", err)
	}
	return nil
}

// DefaultRedisBootstrapKey is the key RedisFlag sets.
const DefaultRedisBootstrapKey = "tablekit:bootstrap:admin"

// RedisFlag claims the flag with SET NX, for deployments that share one
// Redis across replicas.
type RedisFlag struct {
	client *redis.Client
	key    string
}

// RedisOptions configures NewRedisFlag.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Key      string
}

// NewRedisFlag connects and pings Redis.
func NewRedisFlag(ctx context.Context, opts RedisOptions) (*RedisFlag, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis %s: %w", opts.Addr, err)
	}

	key := opts.Key
	if key == "" {
		key = DefaultRedisBootstrapKey
	}
	slog.Info("bootstrap flag using redis", "addr", opts.Addr, "key", key)
	return &RedisFlag{client: client, key: key}, nil
}

func (f *RedisFlag) Claim(ctx context.Context, userID string) (bool, error) {
	ok, err := f.client.SetNX(ctx, f.key, userID, 0).Result()
	if err != nil {
		return false, fmt.Errorf("claim bootstrap flag: %w", err)
	}
	return ok, nil
}

// releaseScript deletes the key only while it still holds the caller's id.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

func (f *RedisFlag) Release(ctx context.Context, userID string) error {
	if err := releaseScript.Run(ctx, f.client, []string{f.key}, userID).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release bootstrap flag: %w", err)
	}
	return nil
}

// Close releases the Redis connection pool.
func (f *RedisFlag) Close() error {
	return f.client.Close()
}
