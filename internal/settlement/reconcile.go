package settlement

import (
	"github.com/shopspring/decimal"

	"kasirinaja/fulfillment/internal/domain"
)

type Outcome string

const (
	OutcomeBalanced Outcome = "balanced"
	OutcomeSurplus  Outcome = "surplus"
	OutcomeDeficit  Outcome = "deficit"
)

type Input struct {
	OpeningCash        int64 `json:"opening_cash"`
	OpeningBankBalance int64 `json:"opening_bank_balance"`
	TotalCashSales     int64 `json:"total_cash_sales"`
	TotalTransferSales int64 `json:"total_transfer_sales"`
	TotalExpenses      int64 `json:"total_expenses"`
	ClosingCashTotal   int64 `json:"closing_cash_total"`
	ClosingBankBalance int64 `json:"closing_bank_balance"`
}

type Report struct {
	ShiftID string `json:"shift_id,omitempty"`
	Input
	ExpectedCash    int64 `json:"expected_cash"`
	CashDiscrepancy int64 `json:"cash_discrepancy"`
	ExpectedBank    int64 `json:"expected_bank"`
	BankDiscrepancy int64 `json:"bank_discrepancy"`
	// Discrepancy is the combined figure used for settlement. Expenses are
	// counted back on the actual side since they left the same drawer.
	Discrepancy        int64           `json:"discrepancy"`
	DiscrepancyPercent decimal.Decimal `json:"discrepancy_percent"`
	Outcome            Outcome         `json:"outcome"`
}

// Calculate is pure: the same input always yields the same report.
func Calculate(in Input) Report {
	r := Report{Input: in}

	r.ExpectedCash = in.OpeningCash + in.TotalCashSales - in.TotalExpenses
	r.CashDiscrepancy = in.ClosingCashTotal - r.ExpectedCash

	r.ExpectedBank = in.OpeningBankBalance + in.TotalTransferSales
	r.BankDiscrepancy = in.ClosingBankBalance - r.ExpectedBank

	actual := in.ClosingCashTotal + in.ClosingBankBalance + in.TotalExpenses
	expected := in.OpeningCash + in.OpeningBankBalance + in.TotalCashSales + in.TotalTransferSales
	r.Discrepancy = actual - expected

	switch {
	case r.Discrepancy > 0:
		r.Outcome = OutcomeSurplus
	case r.Discrepancy < 0:
		r.Outcome = OutcomeDeficit
	default:
		r.Outcome = OutcomeBalanced
	}

	r.DiscrepancyPercent = decimal.Zero
	if expected != 0 {
		r.DiscrepancyPercent = decimal.NewFromInt(r.Discrepancy).
			Mul(decimal.NewFromInt(100)).
			Div(decimal.NewFromInt(expected)).
			Round(2)
	}
	return r
}

// FromShift rebuilds the report from the persisted shift record alone.
func FromShift(shift domain.Shift) Report {
	r := Calculate(InputFromShift(shift))
	r.ShiftID = shift.ID
	return r
}

func InputFromShift(shift domain.Shift) Input {
	return Input{
		OpeningCash:        shift.OpeningCash,
		OpeningBankBalance: shift.OpeningBankBalance,
		TotalCashSales:     shift.CashSales,
		TotalTransferSales: shift.TransferSales,
		TotalExpenses:      shift.Expenses,
		ClosingCashTotal:   shift.ClosingCashTotal,
		ClosingBankBalance: shift.ClosingBankBalance,
	}
}

// CountCash totals a denomination breakdown from the drawer count.
func CountCash(details []domain.CashDenomination) int64 {
	total := int64(0)
	for _, d := range details {
		total += d.Value * int64(d.Count)
	}
	return total
}
