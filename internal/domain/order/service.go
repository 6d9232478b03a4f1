package order

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/okibook/bookstore/internal/domain/book"
	"github.com/okibook/bookstore/internal/domain/discount"
	"github.com/okibook/bookstore/internal/domain/user"
)

// CheckoutRequest holds the input for creating an order.
type CheckoutRequest struct {
	UserID          string
	Lines           []CartLine
	PaymentMethod   string
	ShippingAddress string
}

// Service encapsulates the checkout transaction and order lifecycle logic.
type Service struct {
	users     user.Repository
	discounts *discount.Engine
	store     Store
}

// NewService creates a Service with the required collaborators.
func NewService(users user.Repository, discounts *discount.Engine, store Store) *Service {
	return &Service{
		users:     users,
		discounts: discounts,
		store:     store,
	}
}

// Checkout converts a cart into a persisted order. Inside one transaction
// it snapshots book prices, computes the total, records the loyalty
// discount, inserts the order and its lines, deducts stock per line, and
// increments the user's completed-order counter. Any failure rolls the
// whole transaction back; no partial effects remain visible.
func (s *Service) Checkout(ctx context.Context, req CheckoutRequest) (*Order, error) {
	if len(req.Lines) == 0 {
		return nil, ErrEmptyCart
	}

	ids := make([]string, len(req.Lines))
	for i, line := range req.Lines {
		if line.Quantity < 1 {
			return nil, &book.InvalidQuantityError{BookID: line.BookID}
		}
		ids[i] = line.BookID
	}

	// Loyalty standing is read before this order's own increment, so the
	// discount reflects completed orders only.
	u, err := s.users.GetByID(ctx, req.UserID)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return nil, err
		}
		return nil, errors.Wrap(err, "get user")
	}

	var created *Order
	err = s.store.Checkout(ctx, func(tx CheckoutTx) error {
		fetched, err := tx.FetchBooks(ctx, ids)
		if err != nil {
			return errors.Wrap(err, "fetch books")
		}

		byID := make(map[string]book.Book, len(fetched))
		for _, b := range fetched {
			byID[b.ID] = b
		}

		// Snapshot prices and compute the declared total.
		lines := make([]OrderLine, len(req.Lines))
		total := decimal.Zero
		for i, line := range req.Lines {
			b, ok := byID[line.BookID]
			if !ok {
				return &BookNotFoundError{BookID: line.BookID}
			}
			lines[i] = OrderLine{
				BookID:          line.BookID,
				Quantity:        line.Quantity,
				PriceAtPurchase: b.Price,
			}
			total = total.Add(lines[i].Subtotal())
		}

		// The discount is recorded on the order; it does not change the
		// declared total.
		sel := s.discounts.Select(*u, total)

		o := &Order{
			ID:              uuid.New().String(),
			UserID:          req.UserID,
			Status:          StatusPending,
			TotalAmount:     total,
			DiscountAmount:  sel.Discount,
			PaymentMethod:   req.PaymentMethod,
			ShippingAddress: req.ShippingAddress,
			Lines:           lines,
		}
		if err := tx.InsertOrder(ctx, o); err != nil {
			return errors.Wrap(err, "insert order")
		}

		// Conditional decrement per line: a failed reservation aborts the
		// whole transaction instead of skipping the line.
		for _, line := range req.Lines {
			if err := tx.Reserve(ctx, line.BookID, line.Quantity); err != nil {
				return err
			}
		}

		if err := tx.IncrementOrderCount(ctx, req.UserID); err != nil {
			return errors.Wrap(err, "increment order count")
		}

		created = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	return created, nil
}

// GetOrder returns an order with its lines.
func (s *Service) GetOrder(ctx context.Context, id string) (*Order, error) {
	return s.store.GetByID(ctx, id)
}

// ListUserOrders returns all orders placed by the given user.
func (s *Service) ListUserOrders(ctx context.Context, userID string) ([]Order, error) {
	return s.store.ListByUser(ctx, userID)
}

// UpdateStatus advances an order to the given status. The raw status is
// parsed strictly and the transition must be a legal forward step from the
// order's current state.
func (s *Service) UpdateStatus(ctx context.Context, id, rawStatus string) (Status, error) {
	next, err := ParseStatus(rawStatus)
	if err != nil {
		return "", err
	}

	o, err := s.store.GetByID(ctx, id)
	if err != nil {
		return "", err
	}

	if !o.Status.CanTransitionTo(next) {
		return "", &InvalidTransitionError{From: o.Status, To: next}
	}

	if err := s.store.UpdateStatus(ctx, id, o.Status, next); err != nil {
		return "", err
	}

	return next, nil
}
