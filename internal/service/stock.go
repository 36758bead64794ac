package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"kasirinaja/fulfillment/internal/domain"
	"kasirinaja/fulfillment/internal/store"
	"kasirinaja/fulfillment/internal/xid"
)

// StockLedger applies quantity deltas inside a caller's unit of work. The
// stock update and its movement record commit or roll back together.
type StockLedger struct {
	now func() time.Time
}

// Adjust applies delta to the product and appends the movement. Inbound
// movement types need a positive delta, outbound types a negative one.
func (l StockLedger) Adjust(ctx context.Context, tx store.Tx, productID string, delta int, reason string, movementType domain.MovementType) (int, error) {
	if delta == 0 || !movementType.Valid() {
		return 0, store.ErrInvalidTransaction
	}
	if movementType.Inbound() != (delta > 0) {
		return 0, fmt.Errorf("%w: %s movement cannot carry delta %d", store.ErrInvalidTransaction, movementType, delta)
	}

	product, err := tx.GetProductForUpdate(ctx, productID)
	if err != nil {
		return 0, err
	}

	next := product.Stock + delta
	if delta < 0 && next < 0 && !product.AllowNegativeStock {
		return 0, &InsufficientStockError{
			ProductID: productID,
			Available: product.Stock,
			Requested: -delta,
		}
	}

	if err := tx.SetStock(ctx, productID, next); err != nil {
		return 0, err
	}
	if err := tx.AppendStockMovement(ctx, domain.StockMovement{
		ID:          xid.New("mov"),
		ProductID:   productID,
		Quantity:    delta,
		Type:        movementType,
		Reference:   reason,
		StockBefore: product.Stock,
		StockAfter:  next,
		CreatedAt:   l.now(),
	}); err != nil {
		return 0, err
	}
	return next, nil
}

// AdjustStock books a manual purchase or adjustment. Sale and return
// movements only come from the order lifecycle.
func (s *Service) AdjustStock(ctx context.Context, req domain.StockAdjustmentRequest) (domain.Product, error) {
	if err := requireRole(ctx, domain.RoleSupervisor, domain.RoleAdmin); err != nil {
		return domain.Product{}, err
	}
	req.ProductID = strings.TrimSpace(req.ProductID)
	req.Reason = strings.TrimSpace(req.Reason)
	switch req.MovementType {
	case domain.MovementPurchase, domain.MovementAdjustmentIn, domain.MovementAdjustmentOut:
	default:
		return domain.Product{}, fmt.Errorf("%w: movement type %q is not a manual adjustment", store.ErrInvalidTransaction, req.MovementType)
	}
	if req.ProductID == "" || req.Reason == "" {
		return domain.Product{}, store.ErrInvalidTransaction
	}

	var newStock int
	err := s.repo.RunInTx(ctx, func(tx store.Tx) error {
		stock, err := s.ledger.Adjust(ctx, tx, req.ProductID, req.Delta, req.Reason, req.MovementType)
		newStock = stock
		return err
	})
	if err != nil {
		return domain.Product{}, s.fail("adjust_stock", req.ProductID, err)
	}

	product, err := s.repo.GetProduct(ctx, req.ProductID)
	if err != nil {
		return domain.Product{}, s.fail("adjust_stock", req.ProductID, err)
	}
	s.logAudit(ctx, s.defaultStoreID, "stock_adjust", "product", req.ProductID,
		fmt.Sprintf("type=%s,delta=%d,stock=%d,reason=%s", req.MovementType, req.Delta, newStock, req.Reason))
	return *product, nil
}

func (s *Service) ListStockMovements(ctx context.Context, productID string, limit int) ([]domain.StockMovement, error) {
	if strings.TrimSpace(productID) == "" {
		return nil, store.ErrInvalidTransaction
	}
	if limit < 0 {
		limit = 0
	}
	return s.repo.ListStockMovements(ctx, productID, limit)
}

// VerifyStockLedger checks that current stock equals the running sum of
// the product's movements.
func (s *Service) VerifyStockLedger(ctx context.Context, productID string) (domain.StockLedgerCheck, error) {
	product, err := s.repo.GetProduct(ctx, productID)
	if err != nil {
		return domain.StockLedgerCheck{}, err
	}
	movements, err := s.repo.ListStockMovements(ctx, productID, 0)
	if err != nil {
		return domain.StockLedgerCheck{}, err
	}

	sum := 0
	for _, m := range movements {
		sum += m.Quantity
	}
	check := domain.StockLedgerCheck{
		ProductID:     productID,
		CurrentStock:  product.Stock,
		LedgerSum:     sum,
		MovementCount: len(movements),
		Consistent:    sum == product.Stock,
	}
	if !check.Consistent {
		s.log.WithField("product_id", productID).
			WithField("stock", product.Stock).
			WithField("ledger_sum", sum).
			Warn("stock ledger out of balance")
	}
	return check, nil
}
