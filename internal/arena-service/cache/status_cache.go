package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// StatusCache guarda a resposta de status de evento por um TTL curto. O
// status efetivo é derivado do relógio, então a entrada expira sozinha; as
// transições persistidas continuam vindo do banco.
type StatusCache struct {
	R   *redis.Client
	TTL time.Duration
}

func New(r *redis.Client, ttl time.Duration) *StatusCache {
	return &StatusCache{R: r, TTL: ttl}
}

func keyStatus(eventID string) string { return "event:status:" + eventID }

func (c *StatusCache) Get(ctx context.Context, eventID string, dst any) (bool, error) {
	b, err := c.R.Get(ctx, keyStatus(eventID)).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, json.Unmarshal(b, dst)
}

func (c *StatusCache) Set(ctx context.Context, eventID string, v any) error {
	b, _ := json.Marshal(v)
	return c.R.Set(ctx, keyStatus(eventID), b, c.TTL).Err()
}

// Invalidate derruba a entrada após uma transição explícita.
func (c *StatusCache) Invalidate(ctx context.Context, eventID string) error {
	return c.R.Del(ctx, keyStatus(eventID)).Err()
}
