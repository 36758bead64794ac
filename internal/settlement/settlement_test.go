package settlement

import (
	"errors"
	"testing"
	"time"

	"kasirinaja/fulfillment/internal/domain"
)

func openShift() *domain.Shift {
	return &domain.Shift{
		ID:          "shift-1",
		Status:      domain.ShiftStatusOpen,
		OpeningCash: 500000,
		ClockIn:     time.Now().UTC(),
	}
}

func TestAccumulatorRejectsClosedShift(t *testing.T) {
	shift := openShift()
	closedAt := time.Now().UTC()
	shift.Status = domain.ShiftStatusClosed
	shift.ClockOut = &closedAt

	_, err := For(shift)
	if !errors.Is(err, ErrShiftClosed) {
		t.Fatalf("expected ErrShiftClosed, got %v", err)
	}
}

func TestCreditSaleBooksEveryComponent(t *testing.T) {
	shift := openShift()
	acc, err := For(shift)
	if err != nil {
		t.Fatalf("for: %v", err)
	}

	err = acc.CreditSale(domain.Payment{
		CashReceived:   60000,
		ChangeAmount:   5000,
		TransferAmount: 20000,
		CardAmount:     10000,
		DebtAmount:     7000,
		PointsDiscount: 3000,
	})
	if err != nil {
		t.Fatalf("credit sale: %v", err)
	}

	want := domain.ShiftTotals{CashSales: 55000, TransferSales: 20000, CardSales: 10000, DebtSales: 7000, PointSales: 3000}
	if shift.ShiftTotals != want {
		t.Fatalf("expected totals %+v, got %+v", want, shift.ShiftTotals)
	}
}

func TestCreditSaleClampsNegativeNetCash(t *testing.T) {
	shift := openShift()
	acc, _ := For(shift)

	if err := acc.CreditSale(domain.Payment{CashReceived: 1000, ChangeAmount: 4000, TransferAmount: 3000}); err != nil {
		t.Fatalf("credit sale: %v", err)
	}
	if shift.CashSales != 0 {
		t.Fatalf("expected cash sales 0, got %d", shift.CashSales)
	}
	if shift.TransferSales != 3000 {
		t.Fatalf("expected transfer 3000, got %d", shift.TransferSales)
	}
}

func TestCreditSaleRejectsNegativeComponentWithoutPartialApply(t *testing.T) {
	shift := openShift()
	acc, _ := For(shift)

	err := acc.CreditSale(domain.Payment{CashReceived: 10000, CardAmount: -1})
	if !errors.Is(err, ErrNegativeAmount) {
		t.Fatalf("expected ErrNegativeAmount, got %v", err)
	}
	if shift.CashSales != 0 {
		t.Fatalf("expected no counter to move, cash sales %d", shift.CashSales)
	}
}

func TestCreditReturnClampsCashAtZero(t *testing.T) {
	shift := openShift()
	acc, _ := For(shift)
	_ = acc.CreditCashSale(4000)

	if err := acc.CreditReturn(10000); err != nil {
		t.Fatalf("credit return: %v", err)
	}
	if shift.CashSales != 0 {
		t.Fatalf("expected cash sales clamped to 0, got %d", shift.CashSales)
	}
	if shift.Returns != 10000 {
		t.Fatalf("expected returns 10000, got %d", shift.Returns)
	}
}

func TestCountersNeverDecrease(t *testing.T) {
	shift := openShift()
	acc, _ := For(shift)

	for _, fn := range []func(int64) error{
		acc.CreditCashSale, acc.CreditTransferSale, acc.CreditCardSale,
		acc.CreditDebtSale, acc.CreditPointSale, acc.CreditExpense, acc.CreditReturn,
	} {
		if err := fn(-1); !errors.Is(err, ErrNegativeAmount) {
			t.Fatalf("expected negative credit to be rejected, got %v", err)
		}
	}
	if shift.ShiftTotals != (domain.ShiftTotals{}) {
		t.Fatalf("expected untouched totals, got %+v", shift.ShiftTotals)
	}
}

func TestCalculate(t *testing.T) {
	cases := []struct {
		name        string
		in          Input
		discrepancy int64
		cashDiff    int64
		bankDiff    int64
		outcome     Outcome
	}{
		{
			name: "balanced",
			in: Input{
				OpeningCash: 500000, OpeningBankBalance: 1000000,
				TotalCashSales: 250000, TotalTransferSales: 150000,
				ClosingCashTotal: 750000, ClosingBankBalance: 1150000,
			},
			outcome: OutcomeBalanced,
		},
		{
			name: "expenses are added back",
			in: Input{
				OpeningCash: 500000, TotalCashSales: 200000, TotalExpenses: 50000,
				ClosingCashTotal: 650000,
			},
			outcome: OutcomeBalanced,
		},
		{
			name: "surplus",
			in: Input{
				OpeningCash: 100000, TotalCashSales: 100000,
				ClosingCashTotal: 210000,
			},
			discrepancy: 10000,
			cashDiff:    10000,
			outcome:     OutcomeSurplus,
		},
		{
			name: "deficit in bank",
			in: Input{
				OpeningBankBalance: 300000, TotalTransferSales: 100000,
				ClosingBankBalance: 390000,
			},
			discrepancy: -10000,
			bankDiff:    -10000,
			outcome:     OutcomeDeficit,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := Calculate(tc.in)
			if r.Discrepancy != tc.discrepancy {
				t.Fatalf("expected discrepancy %d, got %d", tc.discrepancy, r.Discrepancy)
			}
			if r.CashDiscrepancy != tc.cashDiff {
				t.Fatalf("expected cash discrepancy %d, got %d", tc.cashDiff, r.CashDiscrepancy)
			}
			if r.BankDiscrepancy != tc.bankDiff {
				t.Fatalf("expected bank discrepancy %d, got %d", tc.bankDiff, r.BankDiscrepancy)
			}
			if r.Outcome != tc.outcome {
				t.Fatalf("expected outcome %s, got %s", tc.outcome, r.Outcome)
			}
		})
	}
}

func TestShiftBalanceLawWithoutReturnsOrExpenses(t *testing.T) {
	for _, in := range []Input{
		{OpeningCash: 100000, OpeningBankBalance: 50000, TotalCashSales: 75000, TotalTransferSales: 25000, ClosingCashTotal: 180000, ClosingBankBalance: 70000},
		{OpeningCash: 0, TotalCashSales: 10000, ClosingCashTotal: 0},
		{OpeningCash: 250000, OpeningBankBalance: 1, TotalTransferSales: 99, ClosingCashTotal: 250000, ClosingBankBalance: 100},
	} {
		r := Calculate(in)
		want := in.ClosingCashTotal + in.ClosingBankBalance - in.OpeningCash - in.OpeningBankBalance - in.TotalCashSales - in.TotalTransferSales
		if r.Discrepancy != want {
			t.Fatalf("expected discrepancy %d, got %d for %+v", want, r.Discrepancy, in)
		}
	}
}

func TestFromShiftIsReproducible(t *testing.T) {
	closedAt := time.Date(2026, 3, 1, 17, 0, 0, 0, time.UTC)
	shift := domain.Shift{
		ID:                 "shift-9",
		OpeningCash:        200000,
		OpeningBankBalance: 400000,
		ShiftTotals:        domain.ShiftTotals{CashSales: 300000, TransferSales: 120000, Expenses: 20000, Returns: 10000},
		Status:             domain.ShiftStatusClosed,
		ClockOut:           &closedAt,
		ClosingCashTotal:   470000,
		ClosingBankBalance: 520000,
	}

	first := FromShift(shift)
	second := FromShift(shift)
	if first.Discrepancy != second.Discrepancy || !first.DiscrepancyPercent.Equal(second.DiscrepancyPercent) {
		t.Fatalf("expected identical reports, got %+v and %+v", first, second)
	}
	if first.ShiftID != "shift-9" {
		t.Fatalf("expected shift id on report, got %q", first.ShiftID)
	}
	if first.ExpectedCash != 480000 {
		t.Fatalf("expected cash 480000, got %d", first.ExpectedCash)
	}
	if first.Discrepancy != -10000 || first.Outcome != OutcomeDeficit {
		t.Fatalf("expected deficit of 10000, got %d (%s)", first.Discrepancy, first.Outcome)
	}
	if first.DiscrepancyPercent.String() != "-0.98" {
		t.Fatalf("expected -0.98 percent, got %s", first.DiscrepancyPercent.String())
	}
}

func TestCountCash(t *testing.T) {
	total := CountCash([]domain.CashDenomination{{Value: 100000, Count: 3}, {Value: 2000, Count: 7}})
	if total != 314000 {
		t.Fatalf("expected 314000, got %d", total)
	}
}
