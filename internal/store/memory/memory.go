package memory

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"kasirinaja/fulfillment/internal/domain"
	"kasirinaja/fulfillment/internal/store"
	"kasirinaja/fulfillment/internal/xid"
)

type Store struct {
	mu               sync.RWMutex
	products         map[string]domain.Product
	movements        []domain.StockMovement
	orders           map[string]domain.Order
	orderByItemID    map[string]string
	orderSeqByDay    map[string]int
	customers        map[string]domain.Customer
	shiftsByID       map[string]domain.Shift
	activeShiftByKey map[string]string
	expenses         []domain.ShiftExpense
	auditLogs        []domain.AuditLog
	usersByUsername  map[string]domain.UserAccount
}

// seedUsers builds the dev/demo accounts. Passwords come from
// SEED_ADMIN_PASSWORD, SEED_SUPERVISOR_PASSWORD and SEED_CASHIER_PASSWORD
// when set.
func seedUsers() map[string]domain.UserAccount {
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		logrus.WithField("module", "memory-store").Warn("using default dev credentials; set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", envOr("SEED_ADMIN_PASSWORD", "admin123"), domain.RoleAdmin},
		{"supervisor", envOr("SEED_SUPERVISOR_PASSWORD", "supervisor123"), domain.RoleSupervisor},
		{"cashier", envOr("SEED_CASHIER_PASSWORD", "cashier123"), domain.RoleCashier},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.MinCost)
		if err != nil {
			logrus.WithField("module", "memory-store").WithError(err).Fatalf("hash seed password for %s", u.username)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func New() *Store {
	return &Store{
		products:         make(map[string]domain.Product),
		movements:        make([]domain.StockMovement, 0, 256),
		orders:           make(map[string]domain.Order),
		orderByItemID:    make(map[string]string),
		orderSeqByDay:    make(map[string]int),
		customers:        make(map[string]domain.Customer),
		shiftsByID:       make(map[string]domain.Shift),
		activeShiftByKey: make(map[string]string),
		expenses:         make([]domain.ShiftExpense, 0, 32),
		auditLogs:        make([]domain.AuditLog, 0, 128),
		usersByUsername:  make(map[string]domain.UserAccount),
	}
}

// NewSeeded returns a store with demo products, customers and users. Every
// product starts at 120 units, recorded as an opening adjustment_in movement.
func NewSeeded() *Store {
	s := New()
	products := []domain.Product{
		{ID: "SKU-MIE-01", Name: "Mie Goreng Instan", Category: "grocery", Price: 3500, Active: true},
		{ID: "SKU-TELUR-01", Name: "Telur 10 Butir", Category: "grocery", Price: 26500, Active: true},
		{ID: "SKU-SUSU-01", Name: "Susu UHT 1L", Category: "dairy", Price: 18900, Active: true},
		{ID: "SKU-ROTI-01", Name: "Roti Tawar", Category: "bakery", Price: 17800, Active: true},
		{ID: "SKU-KOPI-01", Name: "Kopi Sachet", Category: "beverage", Price: 2600, Active: true},
		{ID: "SKU-GULA-01", Name: "Gula 1kg", Category: "grocery", Price: 17400, Active: true},
		{ID: "SKU-TEH-01", Name: "Teh Celup", Category: "beverage", Price: 9800, Active: true},
		{ID: "SKU-AIR-01", Name: "Air Mineral 600ml", Category: "beverage", Price: 3900, Active: true},
		{ID: "SKU-BERAS-01", Name: "Beras 5kg", Category: "grocery", Price: 50000, Active: true},
		{ID: "SKU-MINYAK-01", Name: "Minyak Goreng 2L", Category: "grocery", Price: 10000, Active: true},
		{ID: "SKU-GAS-01", Name: "Isi Ulang Gas 3kg", Category: "household", Price: 22000, AllowNegativeStock: true, Active: true},
	}
	for _, p := range products {
		p.Stock = 120
		if _, err := s.CreateProduct(context.Background(), p); err != nil {
			logrus.WithField("module", "memory-store").WithError(err).Fatalf("seed product %s", p.ID)
		}
	}

	for _, c := range []domain.Customer{
		{ID: "CUST-001", Name: "Budi Santoso", Phone: "081200000001"},
		{ID: "CUST-002", Name: "Siti Rahayu", Phone: "081200000002"},
	} {
		s.customers[c.ID] = c
	}

	s.usersByUsername = seedUsers()
	return s
}

func (s *Store) RunInTx(ctx context.Context, fn func(tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{s: s}
	if err := fn(tx); err != nil {
		tx.rollback()
		return err
	}
	return nil
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Category == result[j].Category {
			return result[i].Name < result[j].Name
		}
		return result[i].Category < result[j].Category
	})
	return result, nil
}

func (s *Store) GetProduct(_ context.Context, productID string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[productID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

// CreateProduct inserts the product and records its starting stock as an
// opening movement so the movement ledger always sums to current stock.
func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	product.ID = strings.TrimSpace(product.ID)
	if product.ID == "" || strings.TrimSpace(product.Name) == "" || product.Price < 0 || product.Stock < 0 {
		return nil, store.ErrInvalidTransaction
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.products[product.ID]; exists {
		return nil, store.ErrInvalidTransaction
	}
	s.products[product.ID] = product
	if product.Stock > 0 {
		s.movements = append(s.movements, domain.StockMovement{
			ID:          xid.New("mov"),
			ProductID:   product.ID,
			Quantity:    product.Stock,
			Type:        domain.MovementAdjustmentIn,
			Reference:   "opening balance",
			StockBefore: 0,
			StockAfter:  product.Stock,
			CreatedAt:   time.Now().UTC(),
		})
	}
	created := product
	return &created, nil
}

func (s *Store) ListStockMovements(_ context.Context, productID string, limit int) ([]domain.StockMovement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.products[productID]; !ok {
		return nil, store.ErrNotFound
	}
	result := make([]domain.StockMovement, 0, 16)
	for _, m := range s.movements {
		if m.ProductID == productID {
			result = append(result, m)
		}
	}
	if limit > 0 && len(result) > limit {
		result = result[len(result)-limit:]
	}
	return result, nil
}

func (s *Store) GetOrder(_ context.Context, orderID string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, ok := s.orders[orderID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cloned := cloneOrder(order)
	return &cloned, nil
}

func (s *Store) ListOrders(_ context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Order, 0, len(s.orders))
	for _, order := range s.orders {
		if filter.StoreID != "" && order.StoreID != filter.StoreID {
			continue
		}
		if filter.CustomerID != "" && order.CustomerID != filter.CustomerID {
			continue
		}
		if filter.Status != "" && order.Status != filter.Status {
			continue
		}
		result = append(result, cloneOrder(order))
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})

	limit := filter.Limit
	if limit < 1 {
		limit = store.DefaultOrderPage
	}
	if filter.Offset >= len(result) {
		return []domain.Order{}, nil
	}
	result = result[max(filter.Offset, 0):]
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) GetCustomer(_ context.Context, customerID string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.customers[customerID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneCustomer(c), nil
}

func (s *Store) CreateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	if strings.TrimSpace(customer.Name) == "" {
		return nil, store.ErrInvalidTransaction
	}
	if customer.ID == "" {
		customer.ID = xid.New("cust")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.customers[customer.ID]; exists {
		return nil, store.ErrInvalidTransaction
	}
	s.customers[customer.ID] = customer
	return cloneCustomer(customer), nil
}

func (s *Store) CreateShift(_ context.Context, shift domain.Shift) (*domain.Shift, error) {
	if strings.TrimSpace(shift.StoreID) == "" || strings.TrimSpace(shift.TerminalID) == "" {
		return nil, store.ErrInvalidTransaction
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := shiftMapKey(shift.StoreID, shift.TerminalID)
	if _, exists := s.activeShiftByKey[key]; exists {
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

	s.shiftsByID[shift.ID] = shift
	s.activeShiftByKey[key] = shift.ID
	return cloneShift(shift), nil
}

func (s *Store) GetShift(_ context.Context, shiftID string) (*domain.Shift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	shift, ok := s.shiftsByID[shiftID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneShift(shift), nil
}

func (s *Store) GetActiveShift(_ context.Context, storeID string, terminalID string) (*domain.Shift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	shiftID, ok := s.activeShiftByKey[shiftMapKey(storeID, terminalID)]
	if !ok {
		return nil, store.ErrNotFound
	}
	shift, ok := s.shiftsByID[shiftID]
	if !ok || !shift.IsOpen() {
		return nil, store.ErrNotFound
	}
	return cloneShift(shift), nil
}

func (s *Store) ListShiftExpenses(_ context.Context, shiftID string) ([]domain.ShiftExpense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.ShiftExpense, 0, 8)
	for _, e := range s.expenses {
		if e.ShiftID == shiftID {
			result = append(result, e)
		}
	}
	return result, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, storeID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, 0, limit)
	for i := len(s.auditLogs) - 1; i >= 0; i-- {
		entry := s.auditLogs[i]
		if storeID != "" && entry.StoreID != storeID {
			continue
		}
		if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		result = append(result, entry)
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidTransaction
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.usersByUsername[user.Username]; exists {
		return store.ErrInvalidTransaction
	}
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, u := range s.usersByUsername {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))

	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.usersByUsername[username]
	if !ok {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

// memTx runs under the store's write lock and keeps an undo log so a failed
// unit leaves every map as it was.
type memTx struct {
	s    *Store
	undo []func()
}

func (t *memTx) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

func (t *memTx) GetProductForUpdate(_ context.Context, productID string) (*domain.Product, error) {
	p, ok := t.s.products[productID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func (t *memTx) SetStock(_ context.Context, productID string, stock int) error {
	p, ok := t.s.products[productID]
	if !ok {
		return store.ErrNotFound
	}
	previous := p
	p.Stock = stock
	t.s.products[productID] = p
	t.undo = append(t.undo, func() { t.s.products[productID] = previous })
	return nil
}

func (t *memTx) AppendStockMovement(_ context.Context, movement domain.StockMovement) error {
	if movement.ProductID == "" || movement.Quantity == 0 || !movement.Type.Valid() {
		return store.ErrInvalidTransaction
	}
	if movement.ID == "" {
		movement.ID = xid.New("mov")
	}
	n := len(t.s.movements)
	t.s.movements = append(t.s.movements, movement)
	t.undo = append(t.undo, func() { t.s.movements = t.s.movements[:n] })
	return nil
}

func (t *memTx) GetOrderForUpdate(_ context.Context, orderID string) (*domain.Order, error) {
	order, ok := t.s.orders[orderID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cloned := cloneOrder(order)
	return &cloned, nil
}

func (t *memTx) CreateOrder(_ context.Context, order domain.Order) error {
	if order.ID == "" || len(order.Items) == 0 {
		return store.ErrInvalidTransaction
	}
	if _, exists := t.s.orders[order.ID]; exists {
		return store.ErrInvalidTransaction
	}
	for _, item := range order.Items {
		if item.ID == "" {
			return store.ErrInvalidTransaction
		}
		if _, exists := t.s.orderByItemID[item.ID]; exists {
			return store.ErrInvalidTransaction
		}
	}

	t.s.orders[order.ID] = cloneOrder(order)
	for _, item := range order.Items {
		t.s.orderByItemID[item.ID] = order.ID
	}
	t.undo = append(t.undo, func() {
		delete(t.s.orders, order.ID)
		for _, item := range order.Items {
			delete(t.s.orderByItemID, item.ID)
		}
	})
	return nil
}

// UpdateOrder replaces header fields. Items are kept from the stored copy;
// returned quantities change only through SetReturnedQuantity.
func (t *memTx) UpdateOrder(_ context.Context, order domain.Order, expected domain.OrderStatus) error {
	current, ok := t.s.orders[order.ID]
	if !ok {
		return store.ErrNotFound
	}
	if current.Status != expected {
		return store.ErrConflict
	}
	next := cloneOrder(order)
	next.Items = cloneOrder(current).Items
	t.s.orders[order.ID] = next
	t.undo = append(t.undo, func() { t.s.orders[order.ID] = current })
	return nil
}

func (t *memTx) SetReturnedQuantity(_ context.Context, orderItemID string, returnedQuantity int) error {
	orderID, ok := t.s.orderByItemID[orderItemID]
	if !ok {
		return store.ErrNotFound
	}
	current := t.s.orders[orderID]
	next := cloneOrder(current)
	item, ok := next.Item(orderItemID)
	if !ok {
		return store.ErrNotFound
	}
	if returnedQuantity < item.ReturnedQuantity || returnedQuantity > item.Quantity {
		return store.ErrInvalidTransaction
	}
	item.ReturnedQuantity = returnedQuantity
	t.s.orders[orderID] = next
	t.undo = append(t.undo, func() { t.s.orders[orderID] = current })
	return nil
}

func (t *memTx) CountReturnOrders(_ context.Context, originalOrderID string) (int, error) {
	count := 0
	for _, order := range t.s.orders {
		if order.OriginalOrderID == originalOrderID {
			count++
		}
	}
	return count, nil
}

func (t *memTx) NextOrderNumber(_ context.Context, day time.Time) (string, error) {
	key := day.UTC().Format("20060102")
	previous := t.s.orderSeqByDay[key]
	t.s.orderSeqByDay[key] = previous + 1
	t.undo = append(t.undo, func() { t.s.orderSeqByDay[key] = previous })
	return fmt.Sprintf("ORD-%s-%04d", key, previous+1), nil
}

func (t *memTx) GetShiftForUpdate(_ context.Context, shiftID string) (*domain.Shift, error) {
	shift, ok := t.s.shiftsByID[shiftID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneShift(shift), nil
}

func (t *memTx) SaveShift(_ context.Context, shift domain.Shift) error {
	current, ok := t.s.shiftsByID[shift.ID]
	if !ok {
		return store.ErrNotFound
	}
	key := shiftMapKey(current.StoreID, current.TerminalID)
	activeID, wasActive := t.s.activeShiftByKey[key]

	t.s.shiftsByID[shift.ID] = *cloneShift(shift)
	if !shift.IsOpen() && wasActive && activeID == shift.ID {
		delete(t.s.activeShiftByKey, key)
	}
	t.undo = append(t.undo, func() {
		t.s.shiftsByID[shift.ID] = current
		if wasActive {
			t.s.activeShiftByKey[key] = activeID
		}
	})
	return nil
}

func (t *memTx) CreateShiftExpense(_ context.Context, expense domain.ShiftExpense) error {
	if expense.ShiftID == "" || expense.Amount <= 0 {
		return store.ErrInvalidTransaction
	}
	if expense.ID == "" {
		expense.ID = xid.New("exp")
	}
	n := len(t.s.expenses)
	t.s.expenses = append(t.s.expenses, expense)
	t.undo = append(t.undo, func() { t.s.expenses = t.s.expenses[:n] })
	return nil
}

func (t *memTx) GetCustomerForUpdate(_ context.Context, customerID string) (*domain.Customer, error) {
	c, ok := t.s.customers[customerID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneCustomer(c), nil
}

func (t *memTx) ApplyCustomerLedgerDelta(_ context.Context, customerID string, delta domain.CustomerLedgerDelta) (*domain.Customer, error) {
	current, ok := t.s.customers[customerID]
	if !ok {
		return nil, store.ErrNotFound
	}
	next := current.Apply(delta)
	t.s.customers[customerID] = next
	t.undo = append(t.undo, func() { t.s.customers[customerID] = current })
	return cloneCustomer(next), nil
}

func shiftMapKey(storeID string, terminalID string) string {
	return storeID + "::" + terminalID
}

func cloneOrder(order domain.Order) domain.Order {
	cloned := order
	cloned.Items = append([]domain.OrderItem(nil), order.Items...)
	if order.Delivery != nil {
		delivery := *order.Delivery
		cloned.Delivery = &delivery
	}
	cloned.ApprovedAt = cloneTime(order.ApprovedAt)
	cloned.PackingAt = cloneTime(order.PackingAt)
	cloned.PackedAt = cloneTime(order.PackedAt)
	cloned.ShippedAt = cloneTime(order.ShippedAt)
	cloned.CompletedAt = cloneTime(order.CompletedAt)
	cloned.CancelledAt = cloneTime(order.CancelledAt)
	return cloned
}

func cloneShift(shift domain.Shift) *domain.Shift {
	cloned := shift
	cloned.ClockOut = cloneTime(shift.ClockOut)
	cloned.ClosingCashDetails = append([]domain.CashDenomination(nil), shift.ClosingCashDetails...)
	return &cloned
}

func cloneCustomer(c domain.Customer) *domain.Customer {
	cloned := c
	cloned.LastPurchaseAt = cloneTime(c.LastPurchaseAt)
	return &cloned
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	copied := *t
	return &copied
}
