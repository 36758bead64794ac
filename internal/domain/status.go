package domain

import "time"

type OrderStatus string

const (
	StatusPendingApproval OrderStatus = "pending_approval"
	StatusApproved        OrderStatus = "approved"
	StatusPacking         OrderStatus = "packing"
	StatusPacked          OrderStatus = "packed"
	StatusShipping        OrderStatus = "shipping"
	StatusCompleted       OrderStatus = "completed"
	StatusCancelled       OrderStatus = "cancelled"
	StatusReturned        OrderStatus = "returned"
)

// happyPath lists the forward sequence; advance moves exactly one step along it.
var happyPath = []OrderStatus{
	StatusPendingApproval,
	StatusApproved,
	StatusPacking,
	StatusPacked,
	StatusShipping,
	StatusCompleted,
}

// validNext is the full transition table. Returned is absent on purpose:
// it is only ever the initial status of a linked return order.
var validNext = map[OrderStatus]map[OrderStatus]bool{
	StatusPendingApproval: {StatusApproved: true, StatusCancelled: true},
	StatusApproved:        {StatusPacking: true, StatusCancelled: true},
	StatusPacking:         {StatusPacked: true, StatusCancelled: true},
	StatusPacked:          {StatusShipping: true, StatusCancelled: true},
	StatusShipping:        {StatusCompleted: true},
	StatusCompleted:       {},
	StatusCancelled:       {},
	StatusReturned:        {},
}

func (s OrderStatus) Valid() bool {
	_, ok := validNext[s]
	return ok
}

func (s OrderStatus) Terminal() bool {
	return len(validNext[s]) == 0
}

func CanTransition(from, to OrderStatus) bool {
	next, ok := validNext[from]
	if !ok {
		return false
	}
	return next[to]
}

// Cancellable reports whether stock has not left yet.
func (s OrderStatus) Cancellable() bool {
	return CanTransition(s, StatusCancelled)
}

// Returnable reports whether goods have left and can come back through a return order.
func (s OrderStatus) Returnable() bool {
	return s == StatusShipping || s == StatusCompleted
}

// NextOnPath returns the single forward step from s, if any.
func (s OrderStatus) NextOnPath() (OrderStatus, bool) {
	for i, status := range happyPath {
		if status == s && i+1 < len(happyPath) {
			return happyPath[i+1], true
		}
	}
	return "", false
}

// TransitionStamp returns the timestamp slot recording entry into status.
func (o *Order) TransitionStamp(status OrderStatus) **time.Time {
	switch status {
	case StatusApproved:
		return &o.ApprovedAt
	case StatusPacking:
		return &o.PackingAt
	case StatusPacked:
		return &o.PackedAt
	case StatusShipping:
		return &o.ShippedAt
	case StatusCompleted:
		return &o.CompletedAt
	case StatusCancelled:
		return &o.CancelledAt
	}
	return nil
}

// Reached reports whether the order has at some point entered status.
func (o *Order) Reached(status OrderStatus) bool {
	if o.Status == status {
		return true
	}
	slot := o.TransitionStamp(status)
	return slot != nil && *slot != nil
}

// Stamp records entry into status. An existing stamp is never overwritten.
func (o *Order) Stamp(status OrderStatus, at time.Time) {
	slot := o.TransitionStamp(status)
	if slot == nil || *slot != nil {
		return
	}
	stamped := at
	*slot = &stamped
}
