// Package book holds the checkout view of the catalog: unit prices and
// the per-book stock ledger.
package book

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// Book represents a catalog item as seen by checkout. Only Price is read
// and only Stock is mutated; everything else belongs to the catalog.
type Book struct {
	ID     string
	Title  string
	Author string
	Price  decimal.Decimal
	Stock  int
}

// Ledger mutates a book's stock count. Reserve and Release are only
// meaningful inside a checkout transaction boundary: implementations must
// guarantee that a concurrent Reserve for the same book serializes against
// this one, and that stock never goes below zero.
type Ledger interface {
	// Reserve decrements the book's stock by qty. It fails with
	// *InsufficientStockError when the current persisted stock is lower
	// than qty, and with *InvalidQuantityError when qty < 1.
	Reserve(ctx context.Context, bookID string, qty int) error

	// Release is the compensating action for Reserve: it returns qty
	// units to the book's stock.
	Release(ctx context.Context, bookID string, qty int) error
}

// InsufficientStockError indicates a reservation exceeds available stock.
type InsufficientStockError struct {
	BookID string
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for book %s", e.BookID)
}

// InvalidQuantityError indicates a non-positive quantity was requested.
type InvalidQuantityError struct {
	BookID string
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for book %s", e.BookID)
}
