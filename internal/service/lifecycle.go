package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"kasirinaja/fulfillment/internal/domain"
	"kasirinaja/fulfillment/internal/events"
	"kasirinaja/fulfillment/internal/settlement"
	"kasirinaja/fulfillment/internal/store"
	"kasirinaja/fulfillment/internal/xid"
)

func (s *Service) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return *order, nil
}

// CreateOrder prices the lines and stores the order. Delivery orders start
// pending approval. In-store sales are completed on the spot: stock leaves
// and revenue is recognized in the same unit of work.
func (s *Service) CreateOrder(ctx context.Context, req domain.CreateOrderRequest) (domain.Order, error) {
	req.StoreID = defaultString(req.StoreID, s.defaultStoreID)
	req.CustomerID = strings.TrimSpace(req.CustomerID)
	if len(req.Items) == 0 || req.DiscountAmount < 0 || req.TaxAmount < 0 {
		return domain.Order{}, store.ErrInvalidTransaction
	}
	if req.IsDelivery && (req.Delivery == nil || strings.TrimSpace(req.Delivery.Address) == "" || req.Delivery.Fee < 0) {
		return domain.Order{}, fmt.Errorf("%w: delivery orders need an address", store.ErrInvalidTransaction)
	}

	now := s.now()
	order := domain.Order{
		ID:             defaultString(strings.TrimSpace(req.ID), xid.At("ord", now)),
		StoreID:        req.StoreID,
		IsDelivery:     req.IsDelivery,
		CustomerID:     req.CustomerID,
		DiscountAmount: req.DiscountAmount,
		TaxAmount:      req.TaxAmount,
		PaymentStatus:  domain.PaymentUnpaid,
		CreatedBy:      actorName(ctx),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if req.IsDelivery {
		delivery := *req.Delivery
		order.Delivery = &delivery
	}

	for _, line := range req.Items {
		if strings.TrimSpace(line.ProductID) == "" || line.Quantity < 1 {
			return domain.Order{}, store.ErrInvalidTransaction
		}
		product, err := s.repo.GetProduct(ctx, line.ProductID)
		if err != nil {
			return domain.Order{}, s.fail("create_order", order.ID, err)
		}
		if !product.Active {
			return domain.Order{}, fmt.Errorf("%w: product %s is inactive", store.ErrInvalidTransaction, product.ID)
		}
		unitPrice := product.Price
		if line.UnitPrice != nil {
			if *line.UnitPrice < 0 {
				return domain.Order{}, store.ErrInvalidTransaction
			}
			unitPrice = *line.UnitPrice
		}
		order.Items = append(order.Items, domain.OrderItem{
			ID:          xid.New("item"),
			ProductID:   product.ID,
			ProductName: product.Name,
			Quantity:    line.Quantity,
			UnitPrice:   unitPrice,
			TotalPrice:  unitPrice * int64(line.Quantity),
		})
	}
	order.Subtotal = order.ItemSubtotal()
	order.TotalAmount = order.Subtotal - order.DiscountAmount + order.TaxAmount
	if order.Delivery != nil {
		order.TotalAmount += order.Delivery.Fee
	}
	if order.TotalAmount < 0 {
		return domain.Order{}, fmt.Errorf("%w: discount exceeds order value", store.ErrInvalidTransaction)
	}

	if req.IsDelivery {
		order.Status = domain.StatusPendingApproval
	} else {
		order.Status = domain.StatusCompleted
		shiftID, err := s.resolveShift(ctx, req.ShiftID, "", req.StoreID, req.TerminalID)
		if err != nil {
			return domain.Order{}, err
		}
		order.ShiftID = shiftID
	}

	err := s.repo.RunInTx(ctx, func(tx store.Tx) error {
		number, err := tx.NextOrderNumber(ctx, now)
		if err != nil {
			return err
		}
		order.OrderNumber = number

		if !req.IsDelivery {
			// Walk the stamps the in-store sale passes through.
			for _, status := range []domain.OrderStatus{domain.StatusApproved, domain.StatusPacking, domain.StatusPacked} {
				order.Stamp(status, now)
			}
			if err := s.deductStock(ctx, tx, &order, now); err != nil {
				return err
			}
			if err := s.recognizeRevenue(ctx, tx, &order, req.Payment, order.ShiftID, now); err != nil {
				return err
			}
		}
		return tx.CreateOrder(ctx, order)
	})
	if err != nil {
		return domain.Order{}, s.fail("create_order", order.ID, err)
	}

	s.cacheOrder(ctx, order)
	s.logAudit(ctx, order.StoreID, "order_create", "order", order.ID,
		fmt.Sprintf("number=%s,status=%s,total=%d", order.OrderNumber, order.Status, order.TotalAmount))
	s.publish(ctx, events.EventOrderCreated, order.ID, events.OrderCreatedPayload{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		Status:      string(order.Status),
		TotalAmount: order.TotalAmount,
		CustomerID:  order.CustomerID,
	})
	return order, nil
}

// AdvanceOrder moves the order one step along the happy path. Asking for a
// status the order already reached returns it unchanged.
func (s *Service) AdvanceOrder(ctx context.Context, req domain.AdvanceOrderRequest) (domain.Order, error) {
	if strings.TrimSpace(req.OrderID) == "" || !req.TargetStatus.Valid() {
		return domain.Order{}, store.ErrInvalidTransaction
	}
	if req.TargetStatus == domain.StatusApproved {
		if err := requireRole(ctx, domain.RoleSupervisor, domain.RoleAdmin); err != nil {
			return domain.Order{}, err
		}
	}

	return s.transition(ctx, "advance_order", req.OrderID, req.TargetStatus, transitionHooks{
		check: func(current domain.Order) error {
			next, ok := current.Status.NextOnPath()
			if !ok || next != req.TargetStatus {
				return &IllegalTransitionError{OrderID: current.ID, From: current.Status, To: req.TargetStatus}
			}
			return nil
		},
		prepare: func(ctx context.Context, current domain.Order) (string, error) {
			if req.TargetStatus != domain.StatusCompleted {
				return "", nil
			}
			return s.resolveShift(ctx, req.ShiftID, current.ShiftID, current.StoreID, req.TerminalID)
		},
		apply: func(ctx context.Context, tx store.Tx, order *domain.Order, shiftID string, now time.Time) error {
			switch req.TargetStatus {
			case domain.StatusShipping:
				return s.deductStock(ctx, tx, order, now)
			case domain.StatusCompleted:
				payment := order.Payment
				if req.Payment != nil {
					payment = *req.Payment
				}
				return s.recognizeRevenue(ctx, tx, order, payment, shiftID, now)
			}
			return nil
		},
	})
}

// CancelOrder is allowed until the order ships. Cashiers need a manager
// override; stock has not moved yet, so there is nothing to reverse.
func (s *Service) CancelOrder(ctx context.Context, req domain.CancelOrderRequest) (domain.Order, error) {
	if strings.TrimSpace(req.OrderID) == "" {
		return domain.Order{}, store.ErrInvalidTransaction
	}
	if !req.ManagerApproved {
		if err := requireRole(ctx, domain.RoleSupervisor, domain.RoleAdmin); err != nil {
			return domain.Order{}, err
		}
	}

	return s.transition(ctx, "cancel_order", req.OrderID, domain.StatusCancelled, transitionHooks{
		check: func(current domain.Order) error {
			if !current.Status.Cancellable() {
				return &IllegalTransitionError{OrderID: current.ID, From: current.Status, To: domain.StatusCancelled}
			}
			return nil
		},
		apply: func(_ context.Context, _ store.Tx, order *domain.Order, _ string, _ time.Time) error {
			if reason := strings.TrimSpace(req.Reason); reason != "" {
				order.ReturnReason = reason
			}
			return nil
		},
	})
}

type transitionHooks struct {
	// check validates the move against the order as last read.
	check func(current domain.Order) error
	// prepare runs before the unit of work and returns the shift to credit.
	prepare func(ctx context.Context, current domain.Order) (string, error)
	// apply performs the side effects inside the unit of work.
	apply func(ctx context.Context, tx store.Tx, order *domain.Order, shiftID string, now time.Time) error
}

// transition runs one status change under the order lock. A conflict is
// retried once from a fresh read. A timed-out write is treated as an unknown
// outcome and resolved by re-reading the order.
func (s *Service) transition(ctx context.Context, op string, orderID string, target domain.OrderStatus, hooks transitionHooks) (domain.Order, error) {
	release, err := s.obtainOrderLock(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	defer release()

	logger := s.log.WithFields(logrus.Fields{"op": op, "order_id": orderID, "target": target})

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		current, err := s.repo.GetOrder(ctx, orderID)
		if err != nil {
			return domain.Order{}, s.fail(op, orderID, err)
		}
		if current.Reached(target) {
			return *current, nil
		}
		if err := hooks.check(*current); err != nil {
			return domain.Order{}, s.fail(op, orderID, err)
		}

		shiftID := ""
		if hooks.prepare != nil {
			shiftID, err = hooks.prepare(ctx, *current)
			if err != nil {
				return domain.Order{}, s.fail(op, orderID, err)
			}
		}

		from := current.Status
		var committed domain.Order
		now := s.now()
		err = s.repo.RunInTx(ctx, func(tx store.Tx) error {
			order, err := tx.GetOrderForUpdate(ctx, orderID)
			if err != nil {
				return err
			}
			if order.Status != from {
				return &ConcurrentModificationError{OrderID: orderID, Expected: from}
			}
			if err := hooks.apply(ctx, tx, order, shiftID, now); err != nil {
				return err
			}
			order.Status = target
			order.Stamp(target, now)
			order.UpdatedAt = now
			if err := tx.UpdateOrder(ctx, *order, from); err != nil {
				if errors.Is(err, store.ErrConflict) {
					return &ConcurrentModificationError{OrderID: orderID, Expected: from}
				}
				return err
			}
			committed = *order
			return nil
		})

		switch {
		case err == nil:
			s.afterTransition(ctx, committed, from)
			return committed, nil
		case isUnknownOutcome(err):
			logger.WithError(err).Warn("transition outcome unknown, re-reading order")
			return s.resolveUnknownOutcome(ctx, op, orderID, target, from, err)
		case errors.Is(err, store.ErrConflict):
			logger.WithField("attempt", attempt+1).Info("transition conflict, retrying from fresh read")
			lastErr = err
			continue
		default:
			return domain.Order{}, s.fail(op, orderID, err)
		}
	}

	var conflict *ConcurrentModificationError
	if errors.As(lastErr, &conflict) {
		return domain.Order{}, conflict
	}
	return domain.Order{}, &ConcurrentModificationError{OrderID: orderID}
}

func (s *Service) resolveUnknownOutcome(ctx context.Context, op string, orderID string, target domain.OrderStatus, from domain.OrderStatus, cause error) (domain.Order, error) {
	checkCtx, cancel := s.detached(ctx)
	defer cancel()

	order, err := s.repo.GetOrder(checkCtx, orderID)
	if err != nil {
		return domain.Order{}, s.fail(op, orderID, errors.Join(cause, err))
	}
	if order.Reached(target) {
		s.afterTransition(checkCtx, *order, from)
		return *order, nil
	}
	return domain.Order{}, s.fail(op, orderID, cause)
}

func (s *Service) afterTransition(ctx context.Context, order domain.Order, from domain.OrderStatus) {
	s.cacheOrder(ctx, order)
	s.logAudit(ctx, order.StoreID, "order_"+string(order.Status), "order", order.ID,
		fmt.Sprintf("number=%s,from=%s,to=%s", order.OrderNumber, from, order.Status))
	s.publish(ctx, events.EventOrderStatusChanged, order.ID, events.OrderStatusChangedPayload{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		From:        string(from),
		To:          string(order.Status),
		Actor:       actorName(ctx),
	})
}

// deductStock takes every line out of stock. Any failure aborts the whole
// unit, so no line stays deducted on its own.
func (s *Service) deductStock(ctx context.Context, tx store.Tx, order *domain.Order, now time.Time) error {
	if order.StockCommitted() {
		return nil
	}
	reference := "order " + order.OrderNumber
	for _, item := range order.Items {
		if _, err := s.ledger.Adjust(ctx, tx, item.ProductID, -item.Quantity, reference, domain.MovementSale); err != nil {
			return err
		}
	}
	order.Stamp(domain.StatusShipping, now)
	return nil
}

// recognizeRevenue marks the order paid and credits the shift and the
// customer ledger. It is skipped when the order already carries the paid flag.
func (s *Service) recognizeRevenue(ctx context.Context, tx store.Tx, order *domain.Order, payment domain.Payment, shiftID string, now time.Time) error {
	if order.RevenueRecognized() {
		return nil
	}
	if err := validatePayment(*order, payment, s.pointValue); err != nil {
		return err
	}

	shift, err := tx.GetShiftForUpdate(ctx, shiftID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNoOpenShift
		}
		return err
	}
	acc, err := settlement.For(shift)
	if err != nil {
		if errors.Is(err, settlement.ErrShiftClosed) {
			return fmt.Errorf("%w: %v", ErrNoOpenShift, err)
		}
		return err
	}
	if err := acc.CreditSale(payment); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidTransaction, err)
	}
	if err := tx.SaveShift(ctx, *shift); err != nil {
		return err
	}

	if order.CustomerID != "" {
		if payment.PointsUsed > 0 {
			customer, err := tx.GetCustomerForUpdate(ctx, order.CustomerID)
			if err != nil {
				return err
			}
			if customer.PointsBalance < payment.PointsUsed {
				return fmt.Errorf("%w: customer has %d points, %d requested", store.ErrInvalidTransaction, customer.PointsBalance, payment.PointsUsed)
			}
		}
		purchasedAt := now
		if _, err := tx.ApplyCustomerLedgerDelta(ctx, order.CustomerID, domain.CustomerLedgerDelta{
			TotalSpent:     netSpend(*order),
			Points:         s.pointsEarned(*order) - payment.PointsUsed,
			Debt:           payment.DebtAmount,
			Orders:         1,
			LastPurchaseAt: &purchasedAt,
		}); err != nil {
			return err
		}
	}

	order.Payment = payment
	order.ShiftID = shiftID
	order.PaidAmount = order.TotalAmount
	order.PaymentStatus = domain.PaymentPaid
	order.Stamp(domain.StatusCompleted, now)
	return nil
}

func validatePayment(order domain.Order, p domain.Payment, pointValue decimal.Decimal) error {
	for _, amount := range []int64{p.CashReceived, p.ChangeAmount, p.TransferAmount, p.CardAmount, p.DebtAmount, p.PointsUsed, p.PointsDiscount} {
		if amount < 0 {
			return fmt.Errorf("%w: payment amounts must not be negative", store.ErrInvalidTransaction)
		}
	}
	if order.CustomerID == "" && (p.DebtAmount > 0 || p.PointsUsed > 0) {
		return fmt.Errorf("%w: debt and points need a customer", store.ErrInvalidTransaction)
	}
	if p.PointsDiscount > 0 {
		if order.CustomerID == "" || p.PointsUsed == 0 {
			return fmt.Errorf("%w: points discount needs redeemed customer points", store.ErrInvalidTransaction)
		}
		limit := decimal.NewFromInt(p.PointsUsed).Mul(pointValue).Floor().IntPart()
		if p.PointsDiscount > limit {
			return fmt.Errorf("%w: points discount %d exceeds %d for %d points", store.ErrInvalidTransaction, p.PointsDiscount, limit, p.PointsUsed)
		}
	}
	if p.Covered() < order.TotalAmount {
		return fmt.Errorf("%w: payment %d does not cover total %d", store.ErrInvalidTransaction, p.Covered(), order.TotalAmount)
	}
	return nil
}

// netSpend is the total less units returned before completion. Returns made
// after completion lower total_spent themselves.
func netSpend(order domain.Order) int64 {
	spend := order.TotalAmount - order.RefundedAmount()
	if spend < 0 {
		return 0
	}
	return spend
}

// pointsEarned is floor((net spend - tax) / rate), never negative.
func (s *Service) pointsEarned(order domain.Order) int64 {
	base := netSpend(order) - order.TaxAmount
	if base <= 0 {
		return 0
	}
	return decimal.NewFromInt(base).Div(s.pointsRate).Floor().IntPart()
}

// resolveShift picks the shift to credit: the explicit id, then the one the
// order already carries, then the open shift of the terminal.
func (s *Service) resolveShift(ctx context.Context, explicit string, fromOrder string, storeID string, terminalID string) (string, error) {
	if id := strings.TrimSpace(explicit); id != "" {
		return id, nil
	}
	if fromOrder != "" {
		return fromOrder, nil
	}
	if strings.TrimSpace(terminalID) == "" {
		return "", ErrNoOpenShift
	}
	shift, err := s.repo.GetActiveShift(ctx, defaultString(storeID, s.defaultStoreID), terminalID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", ErrNoOpenShift
		}
		return "", err
	}
	return shift.ID, nil
}
