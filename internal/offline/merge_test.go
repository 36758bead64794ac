package offline

import (
	"testing"
	"time"

	"kasirinaja/fulfillment/internal/domain"
)

func order(id string, status domain.OrderStatus, at time.Time) domain.Order {
	return domain.Order{ID: id, Status: status, CreatedAt: at}
}

func TestMergeLocalWinsAndSortsNewestFirst(t *testing.T) {
	base := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	remote := []domain.Order{
		order("A", domain.StatusCompleted, base),
		order("B", domain.StatusPendingApproval, base.Add(time.Minute)),
	}
	local := []domain.Order{
		order("B", domain.StatusApproved, base.Add(time.Minute)),
		order("C", domain.StatusPendingApproval, base.Add(2*time.Minute)),
	}

	merged := Merge(remote, local)
	if len(merged) != 3 {
		t.Fatalf("expected 3 orders, got %d", len(merged))
	}
	wantIDs := []string{"C", "B", "A"}
	for i, id := range wantIDs {
		if merged[i].ID != id {
			t.Fatalf("position %d: expected %s, got %s", i, id, merged[i].ID)
		}
	}
	if merged[1].Status != domain.StatusApproved {
		t.Fatalf("expected local copy of B to win, got status %s", merged[1].Status)
	}
}

func TestMergeDoesNotModifyInputs(t *testing.T) {
	base := time.Now().UTC()
	remote := []domain.Order{order("A", domain.StatusPendingApproval, base)}
	local := []domain.Order{order("A", domain.StatusApproved, base)}

	_ = Merge(remote, local)
	if remote[0].Status != domain.StatusPendingApproval || local[0].Status != domain.StatusApproved {
		t.Fatalf("inputs were modified")
	}
}

func TestMergeEmptyInputs(t *testing.T) {
	if got := Merge(nil, nil); len(got) != 0 {
		t.Fatalf("expected empty merge, got %d", len(got))
	}
	only := Merge(nil, []domain.Order{order("X", domain.StatusPendingApproval, time.Now())})
	if len(only) != 1 || only[0].ID != "X" {
		t.Fatalf("expected local-only order to survive, got %+v", only)
	}
}

func TestMergeIsDeterministicOnEqualTimestamps(t *testing.T) {
	at := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	remote := []domain.Order{order("A", domain.StatusCompleted, at), order("B", domain.StatusCompleted, at)}
	first := Merge(remote, nil)
	second := Merge(remote, nil)
	for i := range first {
		if first[i].ID != second[i].ID {
			t.Fatalf("merge order not deterministic: %s vs %s", first[i].ID, second[i].ID)
		}
	}
}

func TestCheckCustomerHistoryReportsMissingOrders(t *testing.T) {
	customer := domain.Customer{ID: "CUST-9", TotalOrders: 4, TotalSpent: 250000}
	issues := CheckCustomerHistory(customer, nil)
	if len(issues) != 1 || issues[0].Kind != IssueHistoryMissing {
		t.Fatalf("expected history_missing issue, got %+v", issues)
	}
	if issues[0].Ledger != 4 || issues[0].Found != 0 {
		t.Fatalf("unexpected counts %+v", issues[0])
	}
}

func TestCheckCustomerHistoryConsistent(t *testing.T) {
	customer := domain.Customer{ID: "CUST-1", TotalOrders: 1, TotalSpent: 10000}
	orders := []domain.Order{{ID: "o1", CustomerID: "CUST-1", Status: domain.StatusCompleted}}
	if issues := CheckCustomerHistory(customer, orders); len(issues) != 0 {
		t.Fatalf("expected no issues, got %+v", issues)
	}
	if issues := CheckCustomerHistory(domain.Customer{ID: "new"}, nil); len(issues) != 0 {
		t.Fatalf("expected no issues for a fresh customer, got %+v", issues)
	}
}

func TestCheckCustomerHistoryCountMismatch(t *testing.T) {
	customer := domain.Customer{ID: "CUST-1", TotalOrders: 3}
	orders := []domain.Order{{ID: "o1", CustomerID: "CUST-1", Status: domain.StatusCompleted}}
	issues := CheckCustomerHistory(customer, orders)
	if len(issues) != 1 || issues[0].Kind != IssueOrderCountMismatch || issues[0].Found != 1 {
		t.Fatalf("expected order_count_mismatch, got %+v", issues)
	}
}
