// Package offline reconciles orders held in a terminal's local cache with
// the authoritative list from the store.
package offline

import (
	"sort"

	"kasirinaja/fulfillment/internal/domain"
)

// Merge returns one order per id: remote orders first, then local orders
// overwriting any remote copy with the same id. The result is sorted by
// creation time, newest first, with id as the tie breaker. Neither input is
// modified.
func Merge(remote []domain.Order, local []domain.Order) []domain.Order {
	byID := make(map[string]domain.Order, len(remote)+len(local))
	for _, order := range remote {
		if order.ID == "" {
			continue
		}
		byID[order.ID] = order
	}
	for _, order := range local {
		if order.ID == "" {
			continue
		}
		byID[order.ID] = order
	}

	merged := make([]domain.Order, 0, len(byID))
	for _, order := range byID {
		merged = append(merged, order)
	}
	sort.Slice(merged, func(i, j int) bool {
		if merged[i].CreatedAt.Equal(merged[j].CreatedAt) {
			return merged[i].ID > merged[j].ID
		}
		return merged[i].CreatedAt.After(merged[j].CreatedAt)
	})
	return merged
}

type IssueKind string

const (
	// IssueHistoryMissing: the customer ledger shows activity but no orders were found.
	IssueHistoryMissing IssueKind = "history_missing"
	// IssueOrderCountMismatch: the ledger order count disagrees with completed orders found.
	IssueOrderCountMismatch IssueKind = "order_count_mismatch"
)

type DataQualityIssue struct {
	Kind       IssueKind `json:"kind"`
	CustomerID string    `json:"customer_id"`
	Ledger     int       `json:"ledger_total_orders"`
	Found      int       `json:"found_orders"`
	Message    string    `json:"message"`
}

// CheckCustomerHistory compares the stored ledger with the orders actually
// found. It reports, it never invents orders to close the gap.
func CheckCustomerHistory(customer domain.Customer, orders []domain.Order) []DataQualityIssue {
	completed := 0
	for _, order := range orders {
		if order.CustomerID != customer.ID {
			continue
		}
		if order.Status == domain.StatusCompleted {
			completed++
		}
	}

	hasActivity := customer.TotalOrders > 0 || customer.TotalSpent > 0 || customer.PointsBalance != 0 || customer.DebtBalance > 0
	switch {
	case len(orders) == 0 && hasActivity:
		return []DataQualityIssue{{
			Kind:       IssueHistoryMissing,
			CustomerID: customer.ID,
			Ledger:     customer.TotalOrders,
			Found:      0,
			Message:    "customer ledger has activity but no orders were found",
		}}
	case completed != customer.TotalOrders:
		return []DataQualityIssue{{
			Kind:       IssueOrderCountMismatch,
			CustomerID: customer.ID,
			Ledger:     customer.TotalOrders,
			Found:      completed,
			Message:    "ledger order count differs from completed orders found",
		}}
	}
	return nil
}
