// Package cache holds the terminal-side copy of orders that the offline
// merge reconciles against the store.
package cache

import (
	"context"
	"sort"
	"sync"

	"kasirinaja/fulfillment/internal/domain"
)

type OrderCache interface {
	All(ctx context.Context, storeID string) ([]domain.Order, error)
	Upsert(ctx context.Context, order domain.Order) error
}

type NoopOrderCache struct{}

func (NoopOrderCache) All(_ context.Context, _ string) ([]domain.Order, error) {
	return nil, nil
}

func (NoopOrderCache) Upsert(_ context.Context, _ domain.Order) error {
	return nil
}

// MemoryOrderCache keeps orders per store in process memory.
type MemoryOrderCache struct {
	mu     sync.RWMutex
	stores map[string]map[string]domain.Order
}

func NewMemoryOrderCache() *MemoryOrderCache {
	return &MemoryOrderCache{stores: map[string]map[string]domain.Order{}}
}

func (c *MemoryOrderCache) All(_ context.Context, storeID string) ([]domain.Order, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	orders := make([]domain.Order, 0, len(c.stores[storeID]))
	for _, order := range c.stores[storeID] {
		orders = append(orders, cloneOrder(order))
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].ID < orders[j].ID })
	return orders, nil
}

func (c *MemoryOrderCache) Upsert(_ context.Context, order domain.Order) error {
	if order.ID == "" {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	byID, ok := c.stores[order.StoreID]
	if !ok {
		byID = map[string]domain.Order{}
		c.stores[order.StoreID] = byID
	}
	byID[order.ID] = cloneOrder(order)
	return nil
}

func cloneOrder(order domain.Order) domain.Order {
	order.Items = append([]domain.OrderItem(nil), order.Items...)
	if order.Delivery != nil {
		delivery := *order.Delivery
		order.Delivery = &delivery
	}
	return order
}
