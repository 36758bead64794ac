package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"kasirinaja/fulfillment/internal/domain"
	"kasirinaja/fulfillment/internal/events"
	"kasirinaja/fulfillment/internal/settlement"
	"kasirinaja/fulfillment/internal/store"
	"kasirinaja/fulfillment/internal/xid"
)

type ShiftResponse struct {
	Shift    domain.Shift          `json:"shift"`
	Expenses []domain.ShiftExpense `json:"expenses,omitempty"`
}

type ShiftCloseResponse struct {
	Shift  domain.Shift      `json:"shift"`
	Report settlement.Report `json:"report"`
}

func (s *Service) OpenShift(ctx context.Context, req domain.ShiftOpenRequest) (ShiftResponse, error) {
	req.StoreID = defaultString(req.StoreID, s.defaultStoreID)
	req.TerminalID = strings.TrimSpace(req.TerminalID)
	req.CashierName = strings.TrimSpace(req.CashierName)
	if req.TerminalID == "" || req.CashierName == "" || req.OpeningCash < 0 || req.OpeningBankBalance < 0 {
		return ShiftResponse{}, store.ErrInvalidTransaction
	}

	shift := domain.Shift{
		ID:                 xid.New("shift"),
		StoreID:            req.StoreID,
		TerminalID:         req.TerminalID,
		CashierName:        req.CashierName,
		OpeningCash:        req.OpeningCash,
		OpeningBankBalance: req.OpeningBankBalance,
		Status:             domain.ShiftStatusOpen,
		ClockIn:            s.now(),
	}
	saved, err := s.repo.CreateShift(ctx, shift)
	if err != nil {
		if errors.Is(err, store.ErrInvalidTransaction) {
			return ShiftResponse{}, fmt.Errorf("%w: shift already open on terminal %s", store.ErrInvalidTransaction, req.TerminalID)
		}
		return ShiftResponse{}, s.fail("open_shift", req.TerminalID, err)
	}

	s.logAudit(ctx, req.StoreID, "shift_open", "shift", saved.ID,
		fmt.Sprintf("cashier=%s,opening_cash=%d,opening_bank=%d", req.CashierName, req.OpeningCash, req.OpeningBankBalance))
	return ShiftResponse{Shift: *saved}, nil
}

func (s *Service) GetActiveShift(ctx context.Context, storeID string, terminalID string) (ShiftResponse, error) {
	storeID = defaultString(storeID, s.defaultStoreID)
	if strings.TrimSpace(terminalID) == "" {
		return ShiftResponse{}, store.ErrInvalidTransaction
	}

	shift, err := s.repo.GetActiveShift(ctx, storeID, terminalID)
	if err != nil {
		return ShiftResponse{}, err
	}
	expenses, err := s.repo.ListShiftExpenses(ctx, shift.ID)
	if err != nil {
		return ShiftResponse{}, s.fail("get_active_shift", shift.ID, err)
	}
	return ShiftResponse{Shift: *shift, Expenses: expenses}, nil
}

// RecordExpense pays money out of the drawer during an open shift.
func (s *Service) RecordExpense(ctx context.Context, req domain.ShiftExpenseRequest) (ShiftResponse, error) {
	req.Note = strings.TrimSpace(req.Note)
	if strings.TrimSpace(req.ShiftID) == "" || req.Amount <= 0 || req.Note == "" {
		return ShiftResponse{}, store.ErrInvalidTransaction
	}

	var saved domain.Shift
	err := s.repo.RunInTx(ctx, func(tx store.Tx) error {
		shift, err := tx.GetShiftForUpdate(ctx, req.ShiftID)
		if err != nil {
			return err
		}
		acc, err := settlement.For(shift)
		if err != nil {
			return fmt.Errorf("%w: %v", store.ErrInvalidTransaction, err)
		}
		if err := acc.CreditExpense(req.Amount); err != nil {
			return fmt.Errorf("%w: %v", store.ErrInvalidTransaction, err)
		}
		if err := tx.CreateShiftExpense(ctx, domain.ShiftExpense{
			ID:        xid.New("exp"),
			ShiftID:   shift.ID,
			Amount:    req.Amount,
			Note:      req.Note,
			CreatedBy: actorName(ctx),
			CreatedAt: s.now(),
		}); err != nil {
			return err
		}
		if err := tx.SaveShift(ctx, *shift); err != nil {
			return err
		}
		saved = *shift
		return nil
	})
	if err != nil {
		return ShiftResponse{}, s.fail("record_expense", req.ShiftID, err)
	}

	s.logAudit(ctx, saved.StoreID, "shift_expense", "shift", saved.ID, fmt.Sprintf("amount=%d,note=%s", req.Amount, req.Note))
	return ShiftResponse{Shift: saved}, nil
}

// CloseShift stores the physical count and freezes the shift. The returned
// report is the same one ShiftReconciliation rebuilds later from the record.
func (s *Service) CloseShift(ctx context.Context, req domain.ShiftCloseRequest) (ShiftCloseResponse, error) {
	if strings.TrimSpace(req.ShiftID) == "" || req.ClosingCashTotal < 0 || req.ClosingBankBalance < 0 {
		return ShiftCloseResponse{}, store.ErrInvalidTransaction
	}
	for _, d := range req.ClosingCashDetails {
		if d.Value <= 0 || d.Count < 0 {
			return ShiftCloseResponse{}, fmt.Errorf("%w: invalid cash denomination", store.ErrInvalidTransaction)
		}
	}

	var closed domain.Shift
	err := s.repo.RunInTx(ctx, func(tx store.Tx) error {
		shift, err := tx.GetShiftForUpdate(ctx, req.ShiftID)
		if err != nil {
			return err
		}
		if !shift.IsOpen() {
			return fmt.Errorf("%w: shift %s already closed", store.ErrInvalidTransaction, shift.ID)
		}

		now := s.now()
		shift.Status = domain.ShiftStatusClosed
		shift.ClockOut = &now
		shift.ClosingCashDetails = append([]domain.CashDenomination(nil), req.ClosingCashDetails...)
		shift.ClosingCashTotal = req.ClosingCashTotal
		if len(req.ClosingCashDetails) > 0 {
			shift.ClosingCashTotal = settlement.CountCash(req.ClosingCashDetails)
		}
		shift.ClosingBankBalance = req.ClosingBankBalance
		shift.Notes = strings.TrimSpace(req.Notes)
		shift.HandoverTo = strings.TrimSpace(req.HandoverTo)

		if err := tx.SaveShift(ctx, *shift); err != nil {
			return err
		}
		closed = *shift
		return nil
	})
	if err != nil {
		return ShiftCloseResponse{}, s.fail("close_shift", req.ShiftID, err)
	}

	report := settlement.FromShift(closed)
	s.logAudit(ctx, closed.StoreID, "shift_close", "shift", closed.ID,
		fmt.Sprintf("closing_cash=%d,closing_bank=%d,discrepancy=%d,outcome=%s", closed.ClosingCashTotal, closed.ClosingBankBalance, report.Discrepancy, report.Outcome))
	s.publish(ctx, events.EventShiftClosed, closed.ID, events.ShiftClosedPayload{
		ShiftID:     closed.ID,
		Discrepancy: report.Discrepancy,
		Outcome:     string(report.Outcome),
	})
	return ShiftCloseResponse{Shift: closed, Report: report}, nil
}

// ShiftReconciliation recomputes the close-out report from the stored shift.
func (s *Service) ShiftReconciliation(ctx context.Context, shiftID string) (settlement.Report, error) {
	shift, err := s.repo.GetShift(ctx, shiftID)
	if err != nil {
		return settlement.Report{}, err
	}
	if shift.IsOpen() {
		return settlement.Report{}, fmt.Errorf("%w: shift %s is still open", store.ErrInvalidTransaction, shift.ID)
	}
	return settlement.FromShift(*shift), nil
}
