package service

import (
	"context"
	"errors"
	"fmt"

	"kasirinaja/fulfillment/internal/domain"
	"kasirinaja/fulfillment/internal/store"
)

// ErrNoOpenShift is returned when a sale or refund has no open shift to credit.
var ErrNoOpenShift = fmt.Errorf("%w: no open shift", store.ErrInvalidTransaction)

// ErrForbidden is returned when the actor's role may not perform the command.
var ErrForbidden = errors.New("forbidden")

type IllegalTransitionError struct {
	OrderID string
	From    domain.OrderStatus
	To      domain.OrderStatus
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("order %s: illegal transition %s -> %s", e.OrderID, e.From, e.To)
}

func (e *IllegalTransitionError) Unwrap() error { return store.ErrInvalidTransaction }

type InsufficientStockError struct {
	ProductID string
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("product %s: insufficient stock (available %d, requested %d)", e.ProductID, e.Available, e.Requested)
}

func (e *InsufficientStockError) Unwrap() error { return store.ErrInsufficientStock }

type InvalidReturnQuantityError struct {
	OrderItemID string
	Requested   int
	Remaining   int
}

func (e *InvalidReturnQuantityError) Error() string {
	return fmt.Sprintf("order item %s: cannot return %d, %d remaining", e.OrderItemID, e.Requested, e.Remaining)
}

func (e *InvalidReturnQuantityError) Unwrap() error { return store.ErrInvalidTransaction }

type ConcurrentModificationError struct {
	OrderID  string
	Expected domain.OrderStatus
}

func (e *ConcurrentModificationError) Error() string {
	return fmt.Sprintf("order %s changed while in status %s", e.OrderID, e.Expected)
}

func (e *ConcurrentModificationError) Unwrap() error { return store.ErrConflict }

// PersistenceError hides the store failure from callers. The cause is
// reachable through Unwrap for logging.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string { return "could not complete action" }

func (e *PersistenceError) Unwrap() error { return e.Err }

// classify keeps domain errors as they are and turns everything else into a
// PersistenceError.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var (
		illegal  *IllegalTransitionError
		stock    *InsufficientStockError
		ret      *InvalidReturnQuantityError
		conflict *ConcurrentModificationError
		persist  *PersistenceError
	)
	switch {
	case errors.As(err, &illegal), errors.As(err, &stock), errors.As(err, &ret),
		errors.As(err, &conflict), errors.As(err, &persist):
		return err
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, store.ErrInvalidTransaction),
		errors.Is(err, store.ErrInsufficientStock),
		errors.Is(err, store.ErrConflict),
		errors.Is(err, ErrForbidden):
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}

// isUnknownOutcome reports whether the write may have landed anyway.
func isUnknownOutcome(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}
