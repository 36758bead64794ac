package cache

import (
	"context"
	"testing"

	"kasirinaja/fulfillment/internal/domain"
)

func TestMemoryOrderCacheUpsertReplacesByID(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryOrderCache()

	_ = c.Upsert(ctx, domain.Order{ID: "o1", StoreID: "main", Status: domain.StatusPendingApproval})
	_ = c.Upsert(ctx, domain.Order{ID: "o1", StoreID: "main", Status: domain.StatusApproved})
	_ = c.Upsert(ctx, domain.Order{ID: "o2", StoreID: "other", Status: domain.StatusPendingApproval})

	orders, err := c.All(ctx, "main")
	if err != nil {
		t.Fatalf("all: %v", err)
	}
	if len(orders) != 1 || orders[0].Status != domain.StatusApproved {
		t.Fatalf("expected single approved order, got %+v", orders)
	}
}

func TestMemoryOrderCacheReturnsCopies(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryOrderCache()
	_ = c.Upsert(ctx, domain.Order{ID: "o1", StoreID: "main", Items: []domain.OrderItem{{ID: "i1", Quantity: 2}}})

	orders, _ := c.All(ctx, "main")
	orders[0].Items[0].Quantity = 99

	again, _ := c.All(ctx, "main")
	if again[0].Items[0].Quantity != 2 {
		t.Fatalf("cache leaked internal state, quantity %d", again[0].Items[0].Quantity)
	}
}
