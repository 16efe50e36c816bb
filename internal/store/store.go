// Package store keeps the last merge result of each session.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/mwiater/concilium/internal/appconfig"
)

// ErrNotFound is returned by Get when the key holds nothing.
var ErrNotFound = errors.New("no stored result")

// Store is a string store with per-entry expiry.
type Store interface {
	Put(ctx context.Context, key, text string) error
	Get(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, key string) error
	Close() error
}

// KeyPrefix namespaces merge results in shared backends.
const KeyPrefix = "concilium:merge:"

// New builds the store selected by cfg.Store.
func New(cfg appconfig.Config) (Store, error) {
	ttl := cfg.StoreTTL()
	sc := cfg.Store
	switch sc.Type {
	case "", appconfig.StoreMemory:
		return NewMemory(ttl), nil
	case appconfig.StoreRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     sc.RedisAddr,
			Password: sc.RedisPassword,
			DB:       sc.RedisDB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("connect to redis at %s: %w", sc.RedisAddr, err)
		}
		return NewRedis(client, ttl), nil
	default:
		return nil, fmt.Errorf("unknown store type %q", sc.Type)
	}
}
