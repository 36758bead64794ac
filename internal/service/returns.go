package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"kasirinaja/fulfillment/internal/domain"
	"kasirinaja/fulfillment/internal/events"
	"kasirinaja/fulfillment/internal/settlement"
	"kasirinaja/fulfillment/internal/store"
	"kasirinaja/fulfillment/internal/xid"
)

// ReturnItems refunds part of a shipped or completed order. It creates a
// linked return order, raises returned_quantity on the original lines,
// restocks the units and books the refund on the shift, all in one unit.
func (s *Service) ReturnItems(ctx context.Context, req domain.ReturnItemsRequest) (domain.ReturnItemsResponse, error) {
	req.OrderID = strings.TrimSpace(req.OrderID)
	req.Reason = strings.TrimSpace(req.Reason)
	if req.OrderID == "" || req.Reason == "" || len(req.Items) == 0 {
		return domain.ReturnItemsResponse{}, store.ErrInvalidTransaction
	}

	requested := make(map[string]int, len(req.Items))
	lineOrder := make([]string, 0, len(req.Items))
	for _, line := range req.Items {
		itemID := strings.TrimSpace(line.OrderItemID)
		if itemID == "" || line.Quantity < 1 {
			return domain.ReturnItemsResponse{}, store.ErrInvalidTransaction
		}
		if _, seen := requested[itemID]; !seen {
			lineOrder = append(lineOrder, itemID)
		}
		requested[itemID] += line.Quantity
	}

	release, err := s.obtainOrderLock(ctx, req.OrderID)
	if err != nil {
		return domain.ReturnItemsResponse{}, err
	}
	defer release()

	original, err := s.repo.GetOrder(ctx, req.OrderID)
	if err != nil {
		return domain.ReturnItemsResponse{}, s.fail("return_items", req.OrderID, err)
	}
	if !original.Status.Returnable() {
		return domain.ReturnItemsResponse{}, s.fail("return_items", req.OrderID,
			&IllegalTransitionError{OrderID: original.ID, From: original.Status, To: domain.StatusReturned})
	}
	shiftID, err := s.resolveShift(ctx, req.ShiftID, "", original.StoreID, req.TerminalID)
	if err != nil {
		return domain.ReturnItemsResponse{}, s.fail("return_items", req.OrderID, err)
	}

	var returnOrder domain.Order
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		lastErr = s.repo.RunInTx(ctx, func(tx store.Tx) error {
			built, err := s.applyReturn(ctx, tx, req, requested, lineOrder, shiftID)
			returnOrder = built
			return err
		})
		if lastErr == nil || !errors.Is(lastErr, store.ErrConflict) {
			break
		}
	}
	if lastErr != nil {
		if errors.Is(lastErr, store.ErrConflict) {
			return domain.ReturnItemsResponse{}, &ConcurrentModificationError{OrderID: req.OrderID, Expected: original.Status}
		}
		return domain.ReturnItemsResponse{}, s.fail("return_items", req.OrderID, lastErr)
	}

	updated, err := s.repo.GetOrder(ctx, req.OrderID)
	if err != nil {
		return domain.ReturnItemsResponse{}, s.fail("return_items", req.OrderID, err)
	}

	s.cacheOrder(ctx, returnOrder)
	s.cacheOrder(ctx, *updated)
	s.logAudit(ctx, returnOrder.StoreID, "order_return", "order", returnOrder.ID,
		fmt.Sprintf("original=%s,refund=%d,reason=%s", updated.OrderNumber, returnOrder.TotalAmount, req.Reason))
	s.publish(ctx, events.EventOrderReturned, updated.ID, events.OrderReturnedPayload{
		OrderID:         returnOrder.ID,
		OriginalOrderID: updated.ID,
		RefundAmount:    returnOrder.TotalAmount,
		ShiftID:         shiftID,
	})

	return domain.ReturnItemsResponse{
		ReturnOrder:  returnOrder,
		Original:     *updated,
		RefundAmount: returnOrder.TotalAmount,
	}, nil
}

func (s *Service) applyReturn(ctx context.Context, tx store.Tx, req domain.ReturnItemsRequest, requested map[string]int, lineOrder []string, shiftID string) (domain.Order, error) {
	original, err := tx.GetOrderForUpdate(ctx, req.OrderID)
	if err != nil {
		return domain.Order{}, err
	}
	if !original.Status.Returnable() {
		return domain.Order{}, &IllegalTransitionError{OrderID: original.ID, From: original.Status, To: domain.StatusReturned}
	}

	// Validate every line before touching anything.
	refund := int64(0)
	items := make([]domain.OrderItem, 0, len(lineOrder))
	for _, itemID := range lineOrder {
		item, ok := original.Item(itemID)
		if !ok {
			return domain.Order{}, fmt.Errorf("%w: order item %s", store.ErrNotFound, itemID)
		}
		qty := requested[itemID]
		if qty > item.Returnable() {
			return domain.Order{}, &InvalidReturnQuantityError{
				OrderItemID: itemID,
				Requested:   qty,
				Remaining:   item.Returnable(),
			}
		}
		lineTotal := int64(qty) * item.UnitPrice
		refund += lineTotal
		items = append(items, domain.OrderItem{
			ID:          xid.New("item"),
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Quantity:    qty,
			UnitPrice:   item.UnitPrice,
			TotalPrice:  lineTotal,
		})
	}

	existing, err := tx.CountReturnOrders(ctx, original.ID)
	if err != nil {
		return domain.Order{}, err
	}
	now := s.now()
	returnOrder := domain.Order{
		ID:              xid.New("ret"),
		OrderNumber:     fmt.Sprintf("RET-%s-%d", original.OrderNumber, existing+1),
		StoreID:         original.StoreID,
		Status:          domain.StatusReturned,
		IsDelivery:      original.IsDelivery,
		CustomerID:      original.CustomerID,
		Items:           items,
		Subtotal:        refund,
		TotalAmount:     refund,
		PaidAmount:      refund,
		PaymentStatus:   domain.PaymentRefunded,
		ShiftID:         shiftID,
		OriginalOrderID: original.ID,
		ReturnReason:    req.Reason,
		CreatedBy:       actorName(ctx),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := tx.CreateOrder(ctx, returnOrder); err != nil {
		return domain.Order{}, err
	}

	for _, itemID := range lineOrder {
		item, _ := original.Item(itemID)
		qty := requested[itemID]
		if err := tx.SetReturnedQuantity(ctx, itemID, item.ReturnedQuantity+qty); err != nil {
			return domain.Order{}, err
		}
		if _, err := s.ledger.Adjust(ctx, tx, item.ProductID, qty, "return "+returnOrder.OrderNumber, domain.MovementReturn); err != nil {
			return domain.Order{}, err
		}
	}

	shift, err := tx.GetShiftForUpdate(ctx, shiftID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Order{}, ErrNoOpenShift
		}
		return domain.Order{}, err
	}
	acc, err := settlement.For(shift)
	if err != nil {
		if errors.Is(err, settlement.ErrShiftClosed) {
			return domain.Order{}, fmt.Errorf("%w: %v", ErrNoOpenShift, err)
		}
		return domain.Order{}, err
	}
	if err := acc.CreditReturn(refund); err != nil {
		return domain.Order{}, fmt.Errorf("%w: %v", store.ErrInvalidTransaction, err)
	}
	if err := tx.SaveShift(ctx, *shift); err != nil {
		return domain.Order{}, err
	}

	if original.CustomerID != "" && original.RevenueRecognized() {
		if _, err := tx.ApplyCustomerLedgerDelta(ctx, original.CustomerID, domain.CustomerLedgerDelta{TotalSpent: -refund}); err != nil {
			return domain.Order{}, err
		}
	}

	return returnOrder, nil
}
