// Package settlement holds the shift money math: the running accumulator a
// shift carries while open, and the reconciliation computed at close.
package settlement

import (
	"errors"
	"fmt"

	"kasirinaja/fulfillment/internal/domain"
)

var (
	ErrNegativeAmount = errors.New("amount must not be negative")
	ErrShiftClosed    = errors.New("shift is closed")
)

// Accumulator mutates the totals of one open shift. Each counter has exactly
// one credit operation; only CreditReturn lowers cash sales, clamped at zero.
type Accumulator struct {
	shift *domain.Shift
}

// For wraps shift. The pointer is mutated in place so callers can persist it.
func For(shift *domain.Shift) (*Accumulator, error) {
	if shift == nil {
		return nil, fmt.Errorf("nil shift")
	}
	if !shift.IsOpen() {
		return nil, fmt.Errorf("%w: %s", ErrShiftClosed, shift.ID)
	}
	return &Accumulator{shift: shift}, nil
}

func (a *Accumulator) Totals() domain.ShiftTotals {
	return a.shift.ShiftTotals
}

func (a *Accumulator) CreditCashSale(amount int64) error {
	return credit(&a.shift.CashSales, amount)
}

func (a *Accumulator) CreditTransferSale(amount int64) error {
	return credit(&a.shift.TransferSales, amount)
}

func (a *Accumulator) CreditCardSale(amount int64) error {
	return credit(&a.shift.CardSales, amount)
}

func (a *Accumulator) CreditDebtSale(amount int64) error {
	return credit(&a.shift.DebtSales, amount)
}

func (a *Accumulator) CreditPointSale(amount int64) error {
	return credit(&a.shift.PointSales, amount)
}

func (a *Accumulator) CreditExpense(amount int64) error {
	return credit(&a.shift.Expenses, amount)
}

// CreditReturn books a refund. Refunds are paid from the drawer, so cash
// sales drop by the same amount but never below zero.
func (a *Accumulator) CreditReturn(amount int64) error {
	if err := credit(&a.shift.Returns, amount); err != nil {
		return err
	}
	a.shift.CashSales -= amount
	if a.shift.CashSales < 0 {
		a.shift.CashSales = 0
	}
	return nil
}

// CreditSale books every component of a completed order's payment. Either
// all counters move or none do.
func (a *Accumulator) CreditSale(p domain.Payment) error {
	next := a.shift.ShiftTotals
	components := []struct {
		counter *int64
		amount  int64
	}{
		{&next.CashSales, p.NetCash()},
		{&next.TransferSales, p.TransferAmount},
		{&next.CardSales, p.CardAmount},
		{&next.DebtSales, p.DebtAmount},
		{&next.PointSales, p.PointsDiscount},
	}
	for _, c := range components {
		if err := credit(c.counter, c.amount); err != nil {
			return err
		}
	}
	a.shift.ShiftTotals = next
	return nil
}

func credit(counter *int64, amount int64) error {
	if amount < 0 {
		return ErrNegativeAmount
	}
	*counter += amount
	return nil
}
