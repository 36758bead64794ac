package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"kasirinaja/fulfillment/internal/domain"
	"kasirinaja/fulfillment/internal/store"
)

func newOrder(id string, itemID string) domain.Order {
	now := time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC)
	return domain.Order{
		ID:          id,
		StoreID:     "main-store",
		Status:      domain.StatusPendingApproval,
		IsDelivery:  true,
		Items:       []domain.OrderItem{{ID: itemID, ProductID: "SKU-MIE-01", Quantity: 3, UnitPrice: 3500, TotalPrice: 10500}},
		Subtotal:    10500,
		TotalAmount: 10500,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestFailedUnitRestoresEveryWrite(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()
	before, _ := s.ListStockMovements(ctx, "SKU-MIE-01", 0)

	boom := errors.New("abort")
	err := s.RunInTx(ctx, func(tx store.Tx) error {
		if err := tx.SetStock(ctx, "SKU-MIE-01", 117); err != nil {
			return err
		}
		if err := tx.AppendStockMovement(ctx, domain.StockMovement{ProductID: "SKU-MIE-01", Quantity: -3, Type: domain.MovementSale}); err != nil {
			return err
		}
		if _, err := tx.NextOrderNumber(ctx, time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)); err != nil {
			return err
		}
		if err := tx.CreateOrder(ctx, newOrder("ord-1", "item-1")); err != nil {
			return err
		}
		if _, err := tx.ApplyCustomerLedgerDelta(ctx, "CUST-001", domain.CustomerLedgerDelta{TotalSpent: 10500, Orders: 1}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected abort error, got %v", err)
	}

	product, _ := s.GetProduct(ctx, "SKU-MIE-01")
	if product.Stock != 120 {
		t.Fatalf("expected stock restored to 120, got %d", product.Stock)
	}
	after, _ := s.ListStockMovements(ctx, "SKU-MIE-01", 0)
	if len(after) != len(before) {
		t.Fatalf("expected %d movements after rollback, got %d", len(before), len(after))
	}
	if _, err := s.GetOrder(ctx, "ord-1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected rolled back order to be gone, got %v", err)
	}
	customer, _ := s.GetCustomer(ctx, "CUST-001")
	if customer.TotalSpent != 0 || customer.TotalOrders != 0 {
		t.Fatalf("expected customer ledger untouched, got %+v", customer)
	}

	var number string
	_ = s.RunInTx(ctx, func(tx store.Tx) error {
		var err error
		number, err = tx.NextOrderNumber(ctx, time.Date(2026, 3, 4, 15, 0, 0, 0, time.UTC))
		return err
	})
	if number != "ORD-20260304-0001" {
		t.Fatalf("expected sequence to restart after rollback, got %s", number)
	}
}

func TestUpdateOrderChecksExpectedStatus(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()
	order := newOrder("ord-2", "item-2")
	if err := s.RunInTx(ctx, func(tx store.Tx) error { return tx.CreateOrder(ctx, order) }); err != nil {
		t.Fatalf("create order: %v", err)
	}

	order.Status = domain.StatusApproved
	err := s.RunInTx(ctx, func(tx store.Tx) error {
		return tx.UpdateOrder(ctx, order, domain.StatusPacked)
	})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict for stale status, got %v", err)
	}

	err = s.RunInTx(ctx, func(tx store.Tx) error {
		return tx.UpdateOrder(ctx, order, domain.StatusPendingApproval)
	})
	if err != nil {
		t.Fatalf("expected matching status to update, got %v", err)
	}
	saved, _ := s.GetOrder(ctx, "ord-2")
	if saved.Status != domain.StatusApproved || len(saved.Items) != 1 {
		t.Fatalf("unexpected saved order %+v", saved)
	}
}

func TestReturnedQuantityCannotShrinkOrOverflow(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()
	if err := s.RunInTx(ctx, func(tx store.Tx) error { return tx.CreateOrder(ctx, newOrder("ord-3", "item-3")) }); err != nil {
		t.Fatalf("create order: %v", err)
	}

	if err := s.RunInTx(ctx, func(tx store.Tx) error { return tx.SetReturnedQuantity(ctx, "item-3", 2) }); err != nil {
		t.Fatalf("set returned quantity: %v", err)
	}
	for _, qty := range []int{1, 4} {
		err := s.RunInTx(ctx, func(tx store.Tx) error { return tx.SetReturnedQuantity(ctx, "item-3", qty) })
		if !errors.Is(err, store.ErrInvalidTransaction) {
			t.Fatalf("expected returned quantity %d to be rejected, got %v", qty, err)
		}
	}
}

func TestOneActiveShiftPerTerminal(t *testing.T) {
	s := New()
	ctx := context.Background()
	if _, err := s.CreateShift(ctx, domain.Shift{StoreID: "main-store", TerminalID: "t1", CashierName: "Ani"}); err != nil {
		t.Fatalf("first shift: %v", err)
	}
	if _, err := s.CreateShift(ctx, domain.Shift{StoreID: "main-store", TerminalID: "t1", CashierName: "Ani"}); !errors.Is(err, store.ErrInvalidTransaction) {
		t.Fatalf("expected duplicate active shift to be rejected, got %v", err)
	}
	if _, err := s.CreateShift(ctx, domain.Shift{StoreID: "main-store", TerminalID: "t2", CashierName: "Budi"}); err != nil {
		t.Fatalf("other terminal: %v", err)
	}
}

func TestCanceledContextSkipsUnit(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	err := s.RunInTx(ctx, func(tx store.Tx) error {
		called = true
		return nil
	})
	if !errors.Is(err, context.Canceled) || called {
		t.Fatalf("expected canceled context to short-circuit, err=%v called=%v", err, called)
	}
}

func TestListOrdersPagesNewestFirst(t *testing.T) {
	s := New()
	ctx := context.Background()
	at := time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC)
	err := s.RunInTx(ctx, func(tx store.Tx) error {
		for _, id := range []string{"ord-a", "ord-b", "ord-c", "ord-d", "ord-e"} {
			order := newOrder(id, "item-"+id)
			order.CreatedAt = at
			if err := tx.CreateOrder(ctx, order); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed orders: %v", err)
	}

	var got []string
	for offset := 0; offset < 6; offset += 2 {
		page, err := s.ListOrders(ctx, domain.OrderFilter{Limit: 2, Offset: offset})
		if err != nil {
			t.Fatalf("list offset %d: %v", offset, err)
		}
		for _, order := range page {
			got = append(got, order.ID)
		}
	}
	want := []string{"ord-e", "ord-d", "ord-c", "ord-b", "ord-a"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestListOrdersDefaultsToOnePage(t *testing.T) {
	s := New()
	ctx := context.Background()
	err := s.RunInTx(ctx, func(tx store.Tx) error {
		for i := 0; i <= store.DefaultOrderPage; i++ {
			id := fmt.Sprintf("ord-%04d", i)
			if err := tx.CreateOrder(ctx, newOrder(id, "item-"+id)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed orders: %v", err)
	}

	page, _ := s.ListOrders(ctx, domain.OrderFilter{})
	if len(page) != store.DefaultOrderPage {
		t.Fatalf("expected %d orders, got %d", store.DefaultOrderPage, len(page))
	}
	rest, _ := s.ListOrders(ctx, domain.OrderFilter{Offset: store.DefaultOrderPage})
	if len(rest) != 1 {
		t.Fatalf("expected 1 order on the second page, got %d", len(rest))
	}
}
