package domain

import "time"

type Product struct {
	ID                 string `json:"id"`
	Name               string `json:"name"`
	Category           string `json:"category"`
	Price              int64  `json:"price"`
	Stock              int    `json:"stock"`
	AllowNegativeStock bool   `json:"allow_negative_stock"`
	Active             bool   `json:"active"`
}

type MovementType string

const (
	MovementSale          MovementType = "sale"
	MovementReturn        MovementType = "return"
	MovementPurchase      MovementType = "purchase"
	MovementAdjustmentIn  MovementType = "adjustment_in"
	MovementAdjustmentOut MovementType = "adjustment_out"
)

// Inbound reports whether movements of this type add stock.
func (m MovementType) Inbound() bool {
	return m == MovementReturn || m == MovementPurchase || m == MovementAdjustmentIn
}

func (m MovementType) Valid() bool {
	switch m {
	case MovementSale, MovementReturn, MovementPurchase, MovementAdjustmentIn, MovementAdjustmentOut:
		return true
	}
	return false
}

// StockMovement is append-only. StockBefore + Quantity == StockAfter.
type StockMovement struct {
	ID          string       `json:"id"`
	ProductID   string       `json:"product_id"`
	Quantity    int          `json:"quantity"`
	Type        MovementType `json:"type"`
	Reference   string       `json:"reference"`
	StockBefore int          `json:"stock_before"`
	StockAfter  int          `json:"stock_after"`
	CreatedAt   time.Time    `json:"created_at"`
}

type PaymentStatus string

const (
	PaymentUnpaid   PaymentStatus = "unpaid"
	PaymentPaid     PaymentStatus = "paid"
	PaymentRefunded PaymentStatus = "refunded"
)

type DeliveryInfo struct {
	Recipient string `json:"recipient"`
	Phone     string `json:"phone,omitempty"`
	Address   string `json:"address"`
	Fee       int64  `json:"fee"`
}

type OrderItem struct {
	ID               string `json:"id"`
	ProductID        string `json:"product_id"`
	ProductName      string `json:"product_name,omitempty"`
	Quantity         int    `json:"quantity"`
	UnitPrice        int64  `json:"unit_price"`
	TotalPrice       int64  `json:"total_price"`
	ReturnedQuantity int    `json:"returned_quantity"`
}

// Returnable is the quantity not yet refunded on this line.
func (i OrderItem) Returnable() int {
	return i.Quantity - i.ReturnedQuantity
}

type Payment struct {
	CashReceived   int64 `json:"cash_received"`
	ChangeAmount   int64 `json:"change_amount"`
	TransferAmount int64 `json:"transfer_amount"`
	CardAmount     int64 `json:"card_amount"`
	DebtAmount     int64 `json:"debt_amount"`
	PointsUsed     int64 `json:"points_used"`
	PointsDiscount int64 `json:"points_discount"`
}

// NetCash is the cash that stays in the drawer.
func (p Payment) NetCash() int64 {
	if p.CashReceived-p.ChangeAmount < 0 {
		return 0
	}
	return p.CashReceived - p.ChangeAmount
}

// Covered is the part of a total settled by this payment, debt included.
func (p Payment) Covered() int64 {
	return p.NetCash() + p.TransferAmount + p.CardAmount + p.DebtAmount + p.PointsDiscount
}

type Order struct {
	ID              string        `json:"id"`
	OrderNumber     string        `json:"order_number"`
	StoreID         string        `json:"store_id"`
	Status          OrderStatus   `json:"status"`
	IsDelivery      bool          `json:"is_delivery"`
	CustomerID      string        `json:"customer_id,omitempty"`
	Delivery        *DeliveryInfo `json:"delivery,omitempty"`
	Items           []OrderItem   `json:"items"`
	Subtotal        int64         `json:"subtotal"`
	DiscountAmount  int64         `json:"discount_amount"`
	TaxAmount       int64         `json:"tax_amount"`
	TotalAmount     int64         `json:"total_amount"`
	PaidAmount      int64         `json:"paid_amount"`
	PaymentStatus   PaymentStatus `json:"payment_status"`
	ShiftID         string        `json:"shift_id,omitempty"`
	OriginalOrderID string        `json:"original_order_id,omitempty"`
	ReturnReason    string        `json:"return_reason,omitempty"`
	CreatedBy       string        `json:"created_by,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
	ApprovedAt      *time.Time    `json:"approved_at,omitempty"`
	PackingAt       *time.Time    `json:"packing_at,omitempty"`
	PackedAt        *time.Time    `json:"packed_at,omitempty"`
	ShippedAt       *time.Time    `json:"shipped_at,omitempty"`
	CompletedAt     *time.Time    `json:"completed_at,omitempty"`
	CancelledAt     *time.Time    `json:"cancelled_at,omitempty"`
	Payment
}

// RevenueRecognized reports whether the completion side effects already ran.
func (o Order) RevenueRecognized() bool {
	return o.PaymentStatus == PaymentPaid && o.CompletedAt != nil
}

// RefundedAmount is the value of the units already returned from this order.
func (o Order) RefundedAmount() int64 {
	sum := int64(0)
	for _, item := range o.Items {
		sum += int64(item.ReturnedQuantity) * item.UnitPrice
	}
	return sum
}

// StockCommitted reports whether the shipping deduction already ran.
func (o Order) StockCommitted() bool {
	return o.ShippedAt != nil
}

func (o Order) ItemSubtotal() int64 {
	sum := int64(0)
	for _, item := range o.Items {
		sum += item.TotalPrice
	}
	return sum
}

func (o *Order) Item(itemID string) (*OrderItem, bool) {
	for i := range o.Items {
		if o.Items[i].ID == itemID {
			return &o.Items[i], true
		}
	}
	return nil, false
}

type OrderFilter struct {
	StoreID    string
	CustomerID string
	Status     OrderStatus
	Limit      int
	Offset     int
}

type Customer struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Phone          string     `json:"phone,omitempty"`
	DebtBalance    int64      `json:"debt_balance"`
	PointsBalance  int64      `json:"points_balance"`
	TotalSpent     int64      `json:"total_spent"`
	TotalOrders    int        `json:"total_orders"`
	LastPurchaseAt *time.Time `json:"last_purchase_at,omitempty"`
}

// CustomerLedgerDelta is applied additively. Balances are clamped at zero
// except points, which may go negative only when points_used exceeds earn.
type CustomerLedgerDelta struct {
	TotalSpent     int64      `json:"total_spent"`
	Points         int64      `json:"points"`
	Debt           int64      `json:"debt"`
	Orders         int        `json:"orders"`
	LastPurchaseAt *time.Time `json:"last_purchase_at,omitempty"`
}

// Apply returns the customer with the delta folded in.
func (c Customer) Apply(delta CustomerLedgerDelta) Customer {
	c.TotalSpent += delta.TotalSpent
	if c.TotalSpent < 0 {
		c.TotalSpent = 0
	}
	c.PointsBalance += delta.Points
	c.DebtBalance += delta.Debt
	if c.DebtBalance < 0 {
		c.DebtBalance = 0
	}
	c.TotalOrders += delta.Orders
	if delta.LastPurchaseAt != nil {
		at := *delta.LastPurchaseAt
		c.LastPurchaseAt = &at
	}
	return c
}

const (
	ShiftStatusOpen   = "open"
	ShiftStatusClosed = "closed"
)

type ShiftTotals struct {
	CashSales     int64 `json:"total_cash_sales"`
	TransferSales int64 `json:"total_transfer_sales"`
	CardSales     int64 `json:"total_card_sales"`
	DebtSales     int64 `json:"total_debt_sales"`
	PointSales    int64 `json:"total_point_sales"`
	Expenses      int64 `json:"total_expenses"`
	Returns       int64 `json:"total_returns"`
}

type CashDenomination struct {
	Value int64 `json:"value"`
	Count int   `json:"count"`
}

type Shift struct {
	ID                 string `json:"id"`
	StoreID            string `json:"store_id"`
	TerminalID         string `json:"terminal_id"`
	CashierName        string `json:"cashier_name"`
	OpeningCash        int64  `json:"opening_cash"`
	OpeningBankBalance int64  `json:"opening_bank_balance"`
	ShiftTotals
	Status             string             `json:"status"`
	ClockIn            time.Time          `json:"clock_in"`
	ClockOut           *time.Time         `json:"clock_out,omitempty"`
	ClosingCashDetails []CashDenomination `json:"closing_cash_details,omitempty"`
	ClosingCashTotal   int64              `json:"closing_cash_total"`
	ClosingBankBalance int64              `json:"closing_bank_balance"`
	Notes              string             `json:"notes,omitempty"`
	HandoverTo         string             `json:"handover_to,omitempty"`
}

func (s Shift) IsOpen() bool {
	return s.Status == ShiftStatusOpen && s.ClockOut == nil
}

type ShiftExpense struct {
	ID        string    `json:"id"`
	ShiftID   string    `json:"shift_id"`
	Amount    int64     `json:"amount"`
	Note      string    `json:"note"`
	CreatedBy string    `json:"created_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type AuditLog struct {
	ID            string    `json:"id"`
	StoreID       string    `json:"store_id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}

type Actor struct {
	Username string `json:"username"`
	Role     string `json:"role"`
}

const (
	RoleCashier    = "cashier"
	RoleSupervisor = "supervisor"
	RoleAdmin      = "admin"
)

type UserAccount struct {
	Username  string    `json:"username"`
	Password  string    `json:"-"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}
