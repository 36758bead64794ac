package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"kasirinaja/fulfillment/internal/domain"
	"kasirinaja/fulfillment/internal/store"
	"kasirinaja/fulfillment/internal/xid"
)

type pgTx struct {
	tx *sql.Tx
}

func (t *pgTx) GetProductForUpdate(ctx context.Context, productID string) (*domain.Product, error) {
	return getProduct(ctx, t.tx, productID, true)
}

func (t *pgTx) SetStock(ctx context.Context, productID string, stock int) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE products SET stock = $2, updated_at = now() WHERE id = $1
	`, productID, stock)
	if err != nil {
		return err
	}
	return expectOneRow(res)
}

func (t *pgTx) AppendStockMovement(ctx context.Context, m domain.StockMovement) error {
	if m.ProductID == "" || m.Quantity == 0 || !m.Type.Valid() {
		return store.ErrInvalidTransaction
	}
	if m.ID == "" {
		m.ID = xid.New("mov")
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO stock_movements (id, product_id, quantity, type, reference, stock_before, stock_after, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, m.ID, m.ProductID, m.Quantity, m.Type, m.Reference, m.StockBefore, m.StockAfter, m.CreatedAt)
	return err
}

func (t *pgTx) GetOrderForUpdate(ctx context.Context, orderID string) (*domain.Order, error) {
	return getOrder(ctx, t.tx, orderID, true)
}

func (t *pgTx) CreateOrder(ctx context.Context, o domain.Order) error {
	if o.ID == "" || len(o.Items) == 0 {
		return store.ErrInvalidTransaction
	}
	var delivery any
	if o.Delivery != nil {
		encoded, err := nullJSON(o.Delivery)
		if err != nil {
			return err
		}
		delivery = encoded
	}

	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,
			$21,$22,$23,$24,$25,$26,$27,$28,$29,$30,$31,$32)
	`,
		o.ID, o.OrderNumber, o.StoreID, o.Status, o.IsDelivery, nullIfEmpty(o.CustomerID), delivery,
		o.Subtotal, o.DiscountAmount, o.TaxAmount, o.TotalAmount, o.PaidAmount, o.PaymentStatus,
		o.CashReceived, o.ChangeAmount, o.TransferAmount, o.CardAmount, o.DebtAmount, o.PointsUsed, o.PointsDiscount,
		nullIfEmpty(o.ShiftID), nullIfEmpty(o.OriginalOrderID), o.ReturnReason, o.CreatedBy, o.CreatedAt, o.UpdatedAt,
		nullTime(o.ApprovedAt), nullTime(o.PackingAt), nullTime(o.PackedAt), nullTime(o.ShippedAt), nullTime(o.CompletedAt), nullTime(o.CancelledAt),
	)
	if err != nil {
		return err
	}

	for i, item := range o.Items {
		_, err := t.tx.ExecContext(ctx, `
			INSERT INTO order_items (id, order_id, position, product_id, product_name, quantity, unit_price, total_price, returned_quantity)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		`, item.ID, o.ID, i, item.ProductID, item.ProductName, item.Quantity, item.UnitPrice, item.TotalPrice, item.ReturnedQuantity)
		if err != nil {
			return err
		}
	}
	return nil
}

// UpdateOrder is a conditional write on the previous status. Zero affected
// rows means someone else moved the order first.
func (t *pgTx) UpdateOrder(ctx context.Context, o domain.Order, expected domain.OrderStatus) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE orders
		SET status = $2, paid_amount = $3, payment_status = $4,
			cash_received = $5, change_amount = $6, transfer_amount = $7, card_amount = $8,
			debt_amount = $9, points_used = $10, points_discount = $11, shift_id = $12, updated_at = $13,
			approved_at = COALESCE(approved_at, $14), packing_at = COALESCE(packing_at, $15),
			packed_at = COALESCE(packed_at, $16), shipped_at = COALESCE(shipped_at, $17),
			completed_at = COALESCE(completed_at, $18), cancelled_at = COALESCE(cancelled_at, $19),
			return_reason = $21
		WHERE id = $1 AND status = $20
	`,
		o.ID, o.Status, o.PaidAmount, o.PaymentStatus,
		o.CashReceived, o.ChangeAmount, o.TransferAmount, o.CardAmount,
		o.DebtAmount, o.PointsUsed, o.PointsDiscount, nullIfEmpty(o.ShiftID), o.UpdatedAt,
		nullTime(o.ApprovedAt), nullTime(o.PackingAt), nullTime(o.PackedAt), nullTime(o.ShippedAt),
		nullTime(o.CompletedAt), nullTime(o.CancelledAt),
		expected, o.ReturnReason,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		var exists bool
		if err := t.tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, o.ID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return store.ErrNotFound
		}
		return store.ErrConflict
	}
	return nil
}

func (t *pgTx) SetReturnedQuantity(ctx context.Context, orderItemID string, returnedQuantity int) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE order_items
		SET returned_quantity = $2
		WHERE id = $1 AND returned_quantity <= $2 AND $2 <= quantity
	`, orderItemID, returnedQuantity)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrInvalidTransaction
	}
	return nil
}

func (t *pgTx) CountReturnOrders(ctx context.Context, originalOrderID string) (int, error) {
	var count int
	err := t.tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM orders WHERE original_order_id = $1
	`, originalOrderID).Scan(&count)
	return count, err
}

func (t *pgTx) NextOrderNumber(ctx context.Context, day time.Time) (string, error) {
	day = day.UTC()
	var next int
	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO order_sequences (day, last_no) VALUES ($1, 1)
		ON CONFLICT (day) DO UPDATE SET last_no = order_sequences.last_no + 1
		RETURNING last_no
	`, time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)).Scan(&next)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("ORD-%s-%04d", day.Format("20060102"), next), nil
}

func (t *pgTx) GetShiftForUpdate(ctx context.Context, shiftID string) (*domain.Shift, error) {
	return scanShift(t.tx.QueryRowContext(ctx, `SELECT `+shiftColumns+` FROM shifts WHERE id = $1 FOR UPDATE`, shiftID))
}

func (t *pgTx) SaveShift(ctx context.Context, sh domain.Shift) error {
	var details any
	if len(sh.ClosingCashDetails) > 0 {
		encoded, err := nullJSON(sh.ClosingCashDetails)
		if err != nil {
			return err
		}
		details = encoded
	}
	res, err := t.tx.ExecContext(ctx, `
		UPDATE shifts
		SET total_cash_sales = $2, total_transfer_sales = $3, total_card_sales = $4,
			total_debt_sales = $5, total_point_sales = $6, total_expenses = $7, total_returns = $8,
			status = $9, clock_out = $10, closing_cash_details = $11, closing_cash_total = $12,
			closing_bank_balance = $13, notes = $14, handover_to = $15
		WHERE id = $1
	`,
		sh.ID, sh.CashSales, sh.TransferSales, sh.CardSales,
		sh.DebtSales, sh.PointSales, sh.Expenses, sh.Returns,
		sh.Status, nullTime(sh.ClockOut), details, sh.ClosingCashTotal,
		sh.ClosingBankBalance, sh.Notes, sh.HandoverTo,
	)
	if err != nil {
		return err
	}
	return expectOneRow(res)
}

func (t *pgTx) CreateShiftExpense(ctx context.Context, e domain.ShiftExpense) error {
	if e.ShiftID == "" || e.Amount <= 0 {
		return store.ErrInvalidTransaction
	}
	if e.ID == "" {
		e.ID = xid.New("exp")
	}
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO shift_expenses (id, shift_id, amount, note, created_by, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, e.ID, e.ShiftID, e.Amount, e.Note, e.CreatedBy, e.CreatedAt)
	return err
}

func (t *pgTx) GetCustomerForUpdate(ctx context.Context, customerID string) (*domain.Customer, error) {
	return getCustomer(ctx, t.tx, customerID, true)
}

// ApplyCustomerLedgerDelta folds the delta into the stored balances with the
// same clamping rules as domain.Customer.Apply.
func (t *pgTx) ApplyCustomerLedgerDelta(ctx context.Context, customerID string, d domain.CustomerLedgerDelta) (*domain.Customer, error) {
	current, err := getCustomer(ctx, t.tx, customerID, true)
	if err != nil {
		return nil, err
	}
	next := current.Apply(d)
	_, err = t.tx.ExecContext(ctx, `
		UPDATE customers
		SET total_spent = $2, points_balance = $3, debt_balance = $4, total_orders = $5, last_purchase_at = $6
		WHERE id = $1
	`, customerID, next.TotalSpent, next.PointsBalance, next.DebtBalance, next.TotalOrders, nullTime(next.LastPurchaseAt))
	if err != nil {
		return nil, err
	}
	return &next, nil
}

func expectOneRow(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

var _ store.Tx = (*pgTx)(nil)
var _ store.Repository = (*Store)(nil)
