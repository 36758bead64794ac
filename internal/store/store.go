package store

import (
	"context"
	"errors"
	"time"

	"kasirinaja/fulfillment/internal/domain"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrInvalidTransaction = errors.New("invalid transaction")
	// ErrConflict means a conditional write found the row in a different
	// state than expected, or the database aborted the tx on serialization.
	ErrConflict = errors.New("concurrent modification")
)

// DefaultOrderPage is the page ListOrders returns when the filter sets no limit.
const DefaultOrderPage = 200

// Repository is the read side plus the transactional entrypoint. Anything
// that mutates more than one row goes through RunInTx.
type Repository interface {
	RunInTx(ctx context.Context, fn func(tx Tx) error) error

	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProduct(ctx context.Context, productID string) (*domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	ListStockMovements(ctx context.Context, productID string, limit int) ([]domain.StockMovement, error)

	GetOrder(ctx context.Context, orderID string) (*domain.Order, error)
	// ListOrders returns one page, newest first, ordered by created_at then id.
	ListOrders(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error)

	GetCustomer(ctx context.Context, customerID string) (*domain.Customer, error)
	CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)

	CreateShift(ctx context.Context, shift domain.Shift) (*domain.Shift, error)
	GetShift(ctx context.Context, shiftID string) (*domain.Shift, error)
	GetActiveShift(ctx context.Context, storeID string, terminalID string) (*domain.Shift, error)
	ListShiftExpenses(ctx context.Context, shiftID string) ([]domain.ShiftExpense, error)

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, storeID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}

// Tx is one all-or-nothing unit of work. Reads ending in ForUpdate lock the
// row until the unit commits or rolls back.
type Tx interface {
	GetProductForUpdate(ctx context.Context, productID string) (*domain.Product, error)
	SetStock(ctx context.Context, productID string, stock int) error
	AppendStockMovement(ctx context.Context, movement domain.StockMovement) error

	GetOrderForUpdate(ctx context.Context, orderID string) (*domain.Order, error)
	CreateOrder(ctx context.Context, order domain.Order) error
	// UpdateOrder writes the order header only if its stored status still
	// equals expected; otherwise it returns ErrConflict.
	UpdateOrder(ctx context.Context, order domain.Order, expected domain.OrderStatus) error
	SetReturnedQuantity(ctx context.Context, orderItemID string, returnedQuantity int) error
	CountReturnOrders(ctx context.Context, originalOrderID string) (int, error)
	NextOrderNumber(ctx context.Context, day time.Time) (string, error)

	GetShiftForUpdate(ctx context.Context, shiftID string) (*domain.Shift, error)
	SaveShift(ctx context.Context, shift domain.Shift) error
	CreateShiftExpense(ctx context.Context, expense domain.ShiftExpense) error

	GetCustomerForUpdate(ctx context.Context, customerID string) (*domain.Customer, error)
	ApplyCustomerLedgerDelta(ctx context.Context, customerID string, delta domain.CustomerLedgerDelta) (*domain.Customer, error)
}
