package cache

import (
	"context"
	"encoding/json"
	"sort"

	redis "github.com/redis/go-redis/v9"

	"kasirinaja/fulfillment/internal/domain"
)

// RedisOrderCache stores one hash per store, field = order id, value = JSON.
type RedisOrderCache struct {
	client *redis.Client
	prefix string
}

func NewRedisOrderCache(addr string, password string, db int) *RedisOrderCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisOrderCache{client: client, prefix: "orders:"}
}

// Client exposes the connection so the order locker can share it.
func (c *RedisOrderCache) Client() *redis.Client {
	return c.client
}

func (c *RedisOrderCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisOrderCache) Close() error {
	return c.client.Close()
}

func (c *RedisOrderCache) All(ctx context.Context, storeID string) ([]domain.Order, error) {
	values, err := c.client.HGetAll(ctx, c.prefix+storeID).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	orders := make([]domain.Order, 0, len(values))
	for _, raw := range values {
		var order domain.Order
		if err := json.Unmarshal([]byte(raw), &order); err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].ID < orders[j].ID })
	return orders, nil
}

func (c *RedisOrderCache) Upsert(ctx context.Context, order domain.Order) error {
	if order.ID == "" {
		return nil
	}
	payload, err := json.Marshal(order)
	if err != nil {
		return err
	}
	return c.client.HSet(ctx, c.prefix+order.StoreID, order.ID, payload).Err()
}
