package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"kasirinaja/fulfillment/internal/domain"
	"kasirinaja/fulfillment/internal/offline"
	"kasirinaja/fulfillment/internal/store"
)

type CustomerHistory struct {
	Customer domain.Customer            `json:"customer"`
	Orders   []domain.Order             `json:"orders"`
	Issues   []offline.DataQualityIssue `json:"data_quality_issues,omitempty"`
}

// ListOrders returns the store's orders merged with the local cache. A cache
// failure degrades to the store list.
func (s *Service) ListOrders(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	filter.StoreID = defaultString(filter.StoreID, s.defaultStoreID)

	remote, err := s.repo.ListOrders(ctx, filter)
	if err != nil {
		return nil, s.fail("list_orders", filter.StoreID, err)
	}

	cached, err := s.cache.All(ctx, filter.StoreID)
	if err != nil {
		s.log.WithField("store_id", filter.StoreID).WithError(err).Warn("order cache read failed, serving store list only")
		cached = nil
	}
	local := make([]domain.Order, 0, len(cached))
	for _, order := range cached {
		if filter.CustomerID != "" && order.CustomerID != filter.CustomerID {
			continue
		}
		if filter.Status != "" && order.Status != filter.Status {
			continue
		}
		local = append(local, order)
	}

	merged := offline.Merge(remote, local)
	if filter.Limit > 0 && len(merged) > filter.Limit {
		merged = merged[:filter.Limit]
	}
	return merged, nil
}

// PushOfflineOrders stores tentative orders written while the terminal was
// offline. They only live in the cache; a confirmed copy in the store that is
// newer than the tentative one is kept instead.
func (s *Service) PushOfflineOrders(ctx context.Context, req domain.OfflineOrdersRequest) (domain.OfflineOrdersResponse, error) {
	storeID := defaultString(req.StoreID, s.defaultStoreID)
	if len(req.Orders) == 0 {
		return domain.OfflineOrdersResponse{}, store.ErrInvalidTransaction
	}

	resp := domain.OfflineOrdersResponse{}
	for _, order := range req.Orders {
		order.ID = strings.TrimSpace(order.ID)
		if order.ID == "" || !order.Status.Valid() {
			resp.Skipped = append(resp.Skipped, order.ID)
			continue
		}
		order.StoreID = defaultString(order.StoreID, storeID)
		if order.CreatedAt.IsZero() {
			order.CreatedAt = s.now()
		}

		confirmed, err := s.repo.GetOrder(ctx, order.ID)
		switch {
		case err == nil:
			if !confirmed.UpdatedAt.Before(order.UpdatedAt) {
				s.cacheOrder(ctx, *confirmed)
				resp.Skipped = append(resp.Skipped, order.ID)
				continue
			}
		case errors.Is(err, store.ErrNotFound):
		default:
			return resp, s.fail("push_offline_orders", order.ID, err)
		}

		if err := s.cache.Upsert(ctx, order); err != nil {
			return resp, s.fail("push_offline_orders", order.ID, err)
		}
		resp.Accepted++
	}

	s.logAudit(ctx, storeID, "offline_sync", "order", storeID,
		fmt.Sprintf("accepted=%d,skipped=%d", resp.Accepted, len(resp.Skipped)))
	return resp, nil
}

// CustomerOrderHistory lists the customer's orders and flags a ledger that
// does not match them. The stored ledger stays authoritative; nothing is
// synthesized to fill the gap.
func (s *Service) CustomerOrderHistory(ctx context.Context, customerID string) (CustomerHistory, error) {
	customer, err := s.repo.GetCustomer(ctx, customerID)
	if err != nil {
		return CustomerHistory{}, err
	}

	remote, err := s.allOrders(ctx, domain.OrderFilter{CustomerID: customerID})
	if err != nil {
		return CustomerHistory{}, s.fail("customer_history", customerID, err)
	}
	// Non-return orders only; returns are linked records, not purchases.
	purchases := make([]domain.Order, 0, len(remote))
	for _, order := range remote {
		if order.OriginalOrderID == "" {
			purchases = append(purchases, order)
		}
	}

	merged, err := s.ListOrders(ctx, domain.OrderFilter{CustomerID: customerID})
	if err != nil {
		return CustomerHistory{}, err
	}

	issues := offline.CheckCustomerHistory(*customer, purchases)
	for _, issue := range issues {
		s.log.WithField("customer_id", customerID).
			WithField("kind", issue.Kind).
			WithField("ledger_total_orders", issue.Ledger).
			WithField("found_orders", issue.Found).
			Warn("customer history data quality issue")
	}
	return CustomerHistory{Customer: *customer, Orders: merged, Issues: issues}, nil
}

// allOrders pages through the store until a short page comes back.
func (s *Service) allOrders(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	filter.Limit = store.DefaultOrderPage
	var all []domain.Order
	for filter.Offset = 0; ; filter.Offset += filter.Limit {
		page, err := s.repo.ListOrders(ctx, filter)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < filter.Limit {
			return all, nil
		}
	}
}

// RecordCustomerPayment settles outstanding debt.
func (s *Service) RecordCustomerPayment(ctx context.Context, req domain.CustomerPaymentRequest) (domain.Customer, error) {
	if strings.TrimSpace(req.CustomerID) == "" || req.Amount <= 0 {
		return domain.Customer{}, store.ErrInvalidTransaction
	}

	var updated domain.Customer
	err := s.repo.RunInTx(ctx, func(tx store.Tx) error {
		customer, err := tx.GetCustomerForUpdate(ctx, req.CustomerID)
		if err != nil {
			return err
		}
		if req.Amount > customer.DebtBalance {
			return fmt.Errorf("%w: payment %d exceeds debt %d", store.ErrInvalidTransaction, req.Amount, customer.DebtBalance)
		}
		next, err := tx.ApplyCustomerLedgerDelta(ctx, req.CustomerID, domain.CustomerLedgerDelta{Debt: -req.Amount})
		if err != nil {
			return err
		}
		updated = *next
		return nil
	})
	if err != nil {
		return domain.Customer{}, s.fail("record_customer_payment", req.CustomerID, err)
	}

	s.logAudit(ctx, s.defaultStoreID, "customer_payment", "customer", req.CustomerID,
		fmt.Sprintf("amount=%d,debt=%d,note=%s", req.Amount, updated.DebtBalance, strings.TrimSpace(req.Note)))
	return updated, nil
}
