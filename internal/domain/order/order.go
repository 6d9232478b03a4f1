// Package order implements the checkout transaction: converting a cart
// into a persisted order while deducting stock, recording a loyalty
// discount, and advancing the order through its status lifecycle.
package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/okibook/bookstore/internal/domain/book"
)

// Sentinel errors for order operations.
var (
	// ErrEmptyCart is returned when checkout is attempted with no lines.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrNotFound is returned when a requested order does not exist.
	ErrNotFound = errors.New("order not found")
	// ErrStatusConflict is returned when a status update loses a race with
	// a concurrent modification of the same order.
	ErrStatusConflict = errors.New("order status changed concurrently")
)

// BookNotFoundError indicates a cart line references a book that does not
// exist in the catalog.
type BookNotFoundError struct {
	BookID string
}

func (e *BookNotFoundError) Error() string {
	return fmt.Sprintf("book %s not found", e.BookID)
}

// CartLine is a single (book, quantity) entry consumed by checkout.
// It is owned by the caller and discarded after the order is created.
type CartLine struct {
	BookID   string
	Quantity int
}

// OrderLine is a persisted line item. PriceAtPurchase is the unit price
// snapshotted at the moment of sale; it is never recomputed from the
// catalog afterwards.
type OrderLine struct {
	BookID          string
	Quantity        int
	PriceAtPurchase decimal.Decimal
}

// Subtotal returns quantity times the snapshotted unit price.
func (l OrderLine) Subtotal() decimal.Decimal {
	return l.PriceAtPurchase.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Order is a persisted customer order. Once created, only Status may
// change; TotalAmount, DiscountAmount and the lines are fixed.
type Order struct {
	ID              string
	UserID          string
	Status          Status
	TotalAmount     decimal.Decimal
	DiscountAmount  decimal.Decimal
	PaymentMethod   string
	ShippingAddress string
	CreatedAt       time.Time
	Lines           []OrderLine
}

// FinalPayable returns the amount due after the discount.
func (o *Order) FinalPayable() decimal.Decimal {
	return o.TotalAmount.Sub(o.DiscountAmount)
}

// Store is the persistence boundary for orders.
type Store interface {
	// Checkout runs fn inside a single transaction. All writes made
	// through the CheckoutTx are committed when fn returns nil and rolled
	// back when it returns an error, leaving the store in its
	// pre-checkout state.
	Checkout(ctx context.Context, fn func(tx CheckoutTx) error) error

	// GetByID returns an order with its lines, or ErrNotFound.
	GetByID(ctx context.Context, id string) (*Order, error)

	// ListByUser returns the user's orders, oldest first, with lines.
	ListByUser(ctx context.Context, userID string) ([]Order, error)

	// UpdateStatus moves an order from one status to another. It fails
	// with ErrStatusConflict when the order is no longer in the expected
	// from status.
	UpdateStatus(ctx context.Context, id string, from, to Status) error
}

// CheckoutTx exposes the operations available inside one checkout
// transaction. Reads observe, and writes act on, the current persisted
// state; concurrent checkouts touching the same books serialize at the
// transaction boundary.
type CheckoutTx interface {
	book.Ledger

	// FetchBooks reads and locks the referenced books, returning current
	// price and stock. Missing ids are simply absent from the result.
	FetchBooks(ctx context.Context, ids []string) ([]book.Book, error)

	// InsertOrder persists the order row and its lines, filling in
	// CreatedAt from the store.
	InsertOrder(ctx context.Context, o *Order) error

	// IncrementOrderCount adds one to the user's completed-order counter.
	IncrementOrderCount(ctx context.Context, userID string) error
}
