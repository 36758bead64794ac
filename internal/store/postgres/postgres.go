package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"kasirinaja/fulfillment/internal/domain"
	"kasirinaja/fulfillment/internal/store"
	"kasirinaja/fulfillment/internal/xid"
)

//go:embed schema.sql
var schemaSQL string

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate applies the embedded schema. Statements are idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schemaSQL)
	return err
}

// RunInTx executes fn inside a SERIALIZABLE transaction. Serialization
// failures surface as store.ErrConflict so callers can re-read and retry.
func (s *Store) RunInTx(ctx context.Context, fn func(tx store.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = sqlTx.Rollback() }()

	if err := fn(&pgTx{tx: sqlTx}); err != nil {
		return translateError(err)
	}
	if err := sqlTx.Commit(); err != nil {
		return translateError(err)
	}
	return nil
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, category, price, stock, allow_negative_stock, active
		FROM products
		WHERE active = true
		ORDER BY category, name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Category, &p.Price, &p.Stock, &p.AllowNegativeStock, &p.Active); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) GetProduct(ctx context.Context, productID string) (*domain.Product, error) {
	return getProduct(ctx, s.db, productID, false)
}

// CreateProduct inserts the product together with its opening movement.
func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	product.ID = strings.TrimSpace(product.ID)
	if product.ID == "" || strings.TrimSpace(product.Name) == "" || product.Price < 0 || product.Stock < 0 {
		return nil, store.ErrInvalidTransaction
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO products (id, name, category, price, stock, allow_negative_stock, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,now(),now())
	`, product.ID, product.Name, product.Category, product.Price, product.Stock, product.AllowNegativeStock, product.Active)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidTransaction
		}
		return nil, err
	}
	if product.Stock > 0 {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO stock_movements (id, product_id, quantity, type, reference, stock_before, stock_after, created_at)
			VALUES ($1,$2,$3,$4,'opening balance',0,$3,now())
		`, xid.New("mov"), product.ID, product.Stock, domain.MovementAdjustmentIn)
		if err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	created := product
	return &created, nil
}

func (s *Store) ListStockMovements(ctx context.Context, productID string, limit int) ([]domain.StockMovement, error) {
	if _, err := s.GetProduct(ctx, productID); err != nil {
		return nil, err
	}
	// LIMIT NULL reads the whole ledger.
	var bound any = limit
	if limit < 1 {
		bound = nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, product_id, quantity, type, reference, stock_before, stock_after, created_at
		FROM (
			SELECT * FROM stock_movements
			WHERE product_id = $1
			ORDER BY created_at DESC, id DESC
			LIMIT $2
		) recent
		ORDER BY created_at ASC, id ASC
	`, productID, bound)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	movements := make([]domain.StockMovement, 0, 32)
	for rows.Next() {
		var m domain.StockMovement
		if err := rows.Scan(&m.ID, &m.ProductID, &m.Quantity, &m.Type, &m.Reference, &m.StockBefore, &m.StockAfter, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.CreatedAt = m.CreatedAt.UTC()
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

func (s *Store) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	return getOrder(ctx, s.db, orderID, false)
}

func (s *Store) ListOrders(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	limit := filter.Limit
	if limit < 1 {
		limit = store.DefaultOrderPage
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE ($1 = '' OR store_id = $1)
			AND ($2 = '' OR customer_id = $2)
			AND ($3 = '' OR status = $3)
		ORDER BY created_at DESC, id DESC
		LIMIT $4 OFFSET $5
	`, filter.StoreID, filter.CustomerID, string(filter.Status), limit, max(filter.Offset, 0))
	if err != nil {
		return nil, err
	}

	orders := make([]domain.Order, 0, 64)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		orders = append(orders, *order)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	for i := range orders {
		items, err := listOrderItems(ctx, s.db, orders[i].ID)
		if err != nil {
			return nil, err
		}
		orders[i].Items = items
	}
	return orders, nil
}

func (s *Store) GetCustomer(ctx context.Context, customerID string) (*domain.Customer, error) {
	return getCustomer(ctx, s.db, customerID, false)
}

func (s *Store) CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	if strings.TrimSpace(customer.Name) == "" {
		return nil, store.ErrInvalidTransaction
	}
	if customer.ID == "" {
		customer.ID = xid.New("cust")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO customers (id, name, phone, debt_balance, points_balance, total_spent, total_orders, last_purchase_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, customer.ID, customer.Name, nullIfEmpty(customer.Phone), customer.DebtBalance, customer.PointsBalance,
		customer.TotalSpent, customer.TotalOrders, nullTime(customer.LastPurchaseAt))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidTransaction
		}
		return nil, err
	}
	created := customer
	return &created, nil
}

func (s *Store) CreateShift(ctx context.Context, shift domain.Shift) (*domain.Shift, error) {
	if strings.TrimSpace(shift.StoreID) == "" || strings.TrimSpace(shift.TerminalID) == "" || strings.TrimSpace(shift.CashierName) == "" {
		return nil, store.ErrInvalidTransaction
	}
	if shift.ID == "" {
		shift.ID = xid.New("shift")
	}
	if shift.ClockIn.IsZero() {
		shift.ClockIn = time.Now().UTC()
	}
	shift.Status = domain.ShiftStatusOpen
	shift.ClockOut = nil
	shift.ShiftTotals = domain.ShiftTotals{}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO shifts (id, store_id, terminal_id, cashier_name, opening_cash, opening_bank_balance, status, clock_in)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, shift.ID, shift.StoreID, shift.TerminalID, shift.CashierName, shift.OpeningCash, shift.OpeningBankBalance,
		shift.Status, shift.ClockIn)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidTransaction
		}
		return nil, err
	}
	saved := shift
	return &saved, nil
}

func (s *Store) GetShift(ctx context.Context, shiftID string) (*domain.Shift, error) {
	return scanShift(s.db.QueryRowContext(ctx, `SELECT `+shiftColumns+` FROM shifts WHERE id = $1`, shiftID))
}

func (s *Store) GetActiveShift(ctx context.Context, storeID string, terminalID string) (*domain.Shift, error) {
	return scanShift(s.db.QueryRowContext(ctx, `
		SELECT `+shiftColumns+`
		FROM shifts
		WHERE store_id = $1 AND terminal_id = $2 AND status = 'open'
		ORDER BY clock_in DESC
		LIMIT 1
	`, storeID, terminalID))
}

func (s *Store) ListShiftExpenses(ctx context.Context, shiftID string) ([]domain.ShiftExpense, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, shift_id, amount, note, created_by, created_at
		FROM shift_expenses
		WHERE shift_id = $1
		ORDER BY created_at ASC
	`, shiftID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	expenses := make([]domain.ShiftExpense, 0, 8)
	for rows.Next() {
		var e domain.ShiftExpense
		if err := rows.Scan(&e.ID, &e.ShiftID, &e.Amount, &e.Note, &e.CreatedBy, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.CreatedAt = e.CreatedAt.UTC()
		expenses = append(expenses, e)
	}
	return expenses, rows.Err()
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, store_id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, entry.ID, entry.StoreID, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, storeID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, store_id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE store_id = $1 AND created_at >= $2 AND created_at < $3
		ORDER BY created_at DESC
		LIMIT $4
	`, storeID, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.StoreID, &entry.ActorUsername, &entry.ActorRole, &entry.Action, &entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidTransaction
	}
	if user.Role == "" {
		user.Role = domain.RoleCashier
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (username, password, role, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,now())
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrInvalidTransaction
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM app_users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	return users, rows.Err()
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidTransaction
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE app_users
		SET password = $2, updated_at = now()
		WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

func getProduct(ctx context.Context, q querier, productID string, forUpdate bool) (*domain.Product, error) {
	query := `
		SELECT id, name, category, price, stock, allow_negative_stock, active
		FROM products
		WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	var p domain.Product
	err := q.QueryRowContext(ctx, query, productID).Scan(&p.ID, &p.Name, &p.Category, &p.Price, &p.Stock, &p.AllowNegativeStock, &p.Active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func getCustomer(ctx context.Context, q querier, customerID string, forUpdate bool) (*domain.Customer, error) {
	query := `
		SELECT id, name, phone, debt_balance, points_balance, total_spent, total_orders, last_purchase_at
		FROM customers
		WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	var c domain.Customer
	var phone sql.NullString
	var lastPurchase sql.NullTime
	err := q.QueryRowContext(ctx, query, customerID).Scan(&c.ID, &c.Name, &phone, &c.DebtBalance, &c.PointsBalance, &c.TotalSpent, &c.TotalOrders, &lastPurchase)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	c.Phone = phone.String
	c.LastPurchaseAt = timePtr(lastPurchase)
	return &c, nil
}

const orderColumns = `id, order_number, store_id, status, is_delivery, customer_id, delivery,
	subtotal, discount_amount, tax_amount, total_amount, paid_amount, payment_status,
	cash_received, change_amount, transfer_amount, card_amount, debt_amount, points_used, points_discount,
	shift_id, original_order_id, return_reason, created_by, created_at, updated_at,
	approved_at, packing_at, packed_at, shipped_at, completed_at, cancelled_at`

func getOrder(ctx context.Context, q querier, orderID string, forUpdate bool) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	order, err := scanOrder(q.QueryRowContext(ctx, query, orderID))
	if err != nil {
		return nil, err
	}
	items, err := listOrderItems(ctx, q, order.ID)
	if err != nil {
		return nil, err
	}
	order.Items = items
	return order, nil
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var o domain.Order
	var customerID, shiftID, originalID sql.NullString
	var delivery []byte
	var approvedAt, packingAt, packedAt, shippedAt, completedAt, cancelledAt sql.NullTime
	err := row.Scan(
		&o.ID, &o.OrderNumber, &o.StoreID, &o.Status, &o.IsDelivery, &customerID, &delivery,
		&o.Subtotal, &o.DiscountAmount, &o.TaxAmount, &o.TotalAmount, &o.PaidAmount, &o.PaymentStatus,
		&o.CashReceived, &o.ChangeAmount, &o.TransferAmount, &o.CardAmount, &o.DebtAmount, &o.PointsUsed, &o.PointsDiscount,
		&shiftID, &originalID, &o.ReturnReason, &o.CreatedBy, &o.CreatedAt, &o.UpdatedAt,
		&approvedAt, &packingAt, &packedAt, &shippedAt, &completedAt, &cancelledAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	o.CustomerID = customerID.String
	o.ShiftID = shiftID.String
	o.OriginalOrderID = originalID.String
	if len(delivery) > 0 {
		var info domain.DeliveryInfo
		if err := json.Unmarshal(delivery, &info); err != nil {
			return nil, fmt.Errorf("decode delivery for order %s: %w", o.ID, err)
		}
		o.Delivery = &info
	}
	o.CreatedAt = o.CreatedAt.UTC()
	o.UpdatedAt = o.UpdatedAt.UTC()
	o.ApprovedAt = timePtr(approvedAt)
	o.PackingAt = timePtr(packingAt)
	o.PackedAt = timePtr(packedAt)
	o.ShippedAt = timePtr(shippedAt)
	o.CompletedAt = timePtr(completedAt)
	o.CancelledAt = timePtr(cancelledAt)
	return &o, nil
}

func listOrderItems(ctx context.Context, q querier, orderID string) ([]domain.OrderItem, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, product_id, product_name, quantity, unit_price, total_price, returned_quantity
		FROM order_items
		WHERE order_id = $1
		ORDER BY position ASC
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.OrderItem, 0, 8)
	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(&item.ID, &item.ProductID, &item.ProductName, &item.Quantity, &item.UnitPrice, &item.TotalPrice, &item.ReturnedQuantity); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

const shiftColumns = `id, store_id, terminal_id, cashier_name, opening_cash, opening_bank_balance,
	total_cash_sales, total_transfer_sales, total_card_sales, total_debt_sales, total_point_sales,
	total_expenses, total_returns, status, clock_in, clock_out, closing_cash_details,
	closing_cash_total, closing_bank_balance, notes, handover_to`

func scanShift(row rowScanner) (*domain.Shift, error) {
	var sh domain.Shift
	var clockOut sql.NullTime
	var details []byte
	err := row.Scan(
		&sh.ID, &sh.StoreID, &sh.TerminalID, &sh.CashierName, &sh.OpeningCash, &sh.OpeningBankBalance,
		&sh.CashSales, &sh.TransferSales, &sh.CardSales, &sh.DebtSales, &sh.PointSales,
		&sh.Expenses, &sh.Returns, &sh.Status, &sh.ClockIn, &clockOut, &details,
		&sh.ClosingCashTotal, &sh.ClosingBankBalance, &sh.Notes, &sh.HandoverTo,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if len(details) > 0 {
		if err := json.Unmarshal(details, &sh.ClosingCashDetails); err != nil {
			return nil, fmt.Errorf("decode cash details for shift %s: %w", sh.ID, err)
		}
	}
	sh.ClockIn = sh.ClockIn.UTC()
	sh.ClockOut = timePtr(clockOut)
	return &sh, nil
}

func translateError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01":
			return fmt.Errorf("%w: %s", store.ErrConflict, pgErr.Message)
		case "23505", "23514":
			return fmt.Errorf("%w: %s", store.ErrInvalidTransaction, pgErr.Message)
		}
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullTime(val *time.Time) any {
	if val == nil {
		return nil
	}
	return *val
}

func nullJSON(val any) (any, error) {
	if val == nil {
		return nil, nil
	}
	payload, err := json.Marshal(val)
	if err != nil {
		return nil, err
	}
	return string(payload), nil
}

func timePtr(val sql.NullTime) *time.Time {
	if !val.Valid {
		return nil
	}
	at := val.Time.UTC()
	return &at
}
