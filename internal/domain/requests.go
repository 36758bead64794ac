package domain

import "time"

type OrderLineRequest struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int    `json:"quantity" validate:"gt=0"`
	UnitPrice *int64 `json:"unit_price,omitempty" validate:"omitempty,gte=0"`
}

type CreateOrderRequest struct {
	ID             string             `json:"id,omitempty"`
	StoreID        string             `json:"store_id"`
	TerminalID     string             `json:"terminal_id"`
	IsDelivery     bool               `json:"is_delivery"`
	CustomerID     string             `json:"customer_id,omitempty"`
	Delivery       *DeliveryInfo      `json:"delivery,omitempty"`
	Items          []OrderLineRequest `json:"items" validate:"required,min=1,dive"`
	DiscountAmount int64              `json:"discount_amount" validate:"gte=0"`
	TaxAmount      int64              `json:"tax_amount" validate:"gte=0"`
	// Payment and ShiftID apply only to immediate in-store sales.
	Payment Payment `json:"payment"`
	ShiftID string  `json:"shift_id,omitempty"`
}

type AdvanceOrderRequest struct {
	OrderID      string      `json:"-"`
	TargetStatus OrderStatus `json:"target_status" validate:"required"`
	// ShiftID and TerminalID locate the shift credited on completion.
	ShiftID    string   `json:"shift_id,omitempty"`
	TerminalID string   `json:"terminal_id,omitempty"`
	Payment    *Payment `json:"payment,omitempty"`
}

type CancelOrderRequest struct {
	OrderID string `json:"-"`
	Reason  string `json:"reason"`
	// ManagerApproved is set by the transport after a manager PIN check.
	ManagerApproved bool   `json:"-"`
	ManagerPIN      string `json:"manager_pin,omitempty"`
}

type ReturnLineRequest struct {
	OrderItemID string `json:"order_item_id" validate:"required"`
	Quantity    int    `json:"quantity" validate:"gt=0"`
}

type ReturnItemsRequest struct {
	OrderID    string              `json:"-"`
	Items      []ReturnLineRequest `json:"items" validate:"required,min=1,dive"`
	Reason     string              `json:"reason" validate:"required"`
	ShiftID    string              `json:"shift_id,omitempty"`
	TerminalID string              `json:"terminal_id,omitempty"`
}

type ReturnItemsResponse struct {
	ReturnOrder  Order `json:"return_order"`
	Original     Order `json:"original_order"`
	RefundAmount int64 `json:"refund_amount"`
}

type StockAdjustmentRequest struct {
	ProductID    string       `json:"-"`
	Delta        int          `json:"delta" validate:"ne=0"`
	Reason       string       `json:"reason" validate:"required"`
	MovementType MovementType `json:"movement_type" validate:"required"`
}

type StockLedgerCheck struct {
	ProductID     string `json:"product_id"`
	CurrentStock  int    `json:"current_stock"`
	LedgerSum     int    `json:"ledger_sum"`
	MovementCount int    `json:"movement_count"`
	Consistent    bool   `json:"consistent"`
}

type ShiftOpenRequest struct {
	StoreID            string `json:"store_id"`
	TerminalID         string `json:"terminal_id" validate:"required"`
	CashierName        string `json:"cashier_name" validate:"required"`
	OpeningCash        int64  `json:"opening_cash" validate:"gte=0"`
	OpeningBankBalance int64  `json:"opening_bank_balance" validate:"gte=0"`
}

type ShiftExpenseRequest struct {
	ShiftID string `json:"-"`
	Amount  int64  `json:"amount" validate:"gt=0"`
	Note    string `json:"note" validate:"required"`
}

type ShiftCloseRequest struct {
	ShiftID string `json:"-"`
	// ClosingCashDetails wins over ClosingCashTotal when present.
	ClosingCashDetails []CashDenomination `json:"closing_cash_details,omitempty" validate:"omitempty,dive"`
	ClosingCashTotal   int64              `json:"closing_cash_total" validate:"gte=0"`
	ClosingBankBalance int64              `json:"closing_bank_balance" validate:"gte=0"`
	Notes              string             `json:"notes,omitempty"`
	HandoverTo         string             `json:"handover_to,omitempty"`
}

type OfflineOrdersRequest struct {
	StoreID string  `json:"store_id"`
	Orders  []Order `json:"orders" validate:"required,min=1"`
}

type OfflineOrdersResponse struct {
	Accepted int      `json:"accepted"`
	Skipped  []string `json:"skipped,omitempty"`
}

type CustomerPaymentRequest struct {
	CustomerID string `json:"-"`
	Amount     int64  `json:"amount" validate:"gt=0"`
	Note       string `json:"note,omitempty"`
}

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type UserCreateRequest struct {
	Username string `json:"username" validate:"required,min=4"`
	Password string `json:"password" validate:"required,min=6"`
	Role     string `json:"role" validate:"required,oneof=cashier supervisor"`
}

type UserSummary struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}
