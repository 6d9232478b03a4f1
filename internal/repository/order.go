package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/okibook/bookstore/internal/domain/book"
	"github.com/okibook/bookstore/internal/domain/order"
)

const (
	fetchBooksForUpdateSQL = `SELECT id, title, author, price, stock
		FROM books WHERE id = ANY($1) ORDER BY id FOR UPDATE`

	insertOrderSQL = `INSERT INTO orders
		(id, user_id, status, total_amount, discount_amount, payment_method, shipping_address)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`

	insertOrderItemSQL = `INSERT INTO order_items (order_id, book_id, quantity, price_at_purchase)
		VALUES ($1, $2, $3, $4)`

	// Conditional decrement: zero rows affected means the current stock is
	// lower than the requested quantity.
	reserveStockSQL = `UPDATE books SET stock = stock - $2 WHERE id = $1 AND stock >= $2`

	releaseStockSQL = `UPDATE books SET stock = stock + $2 WHERE id = $1`

	incrementOrderCountSQL = `UPDATE users SET order_count = order_count + 1 WHERE id = $1`

	getOrderSQL = `SELECT id, user_id, status, total_amount, discount_amount,
		payment_method, shipping_address, created_at
		FROM orders WHERE id = $1`

	listOrdersByUserSQL = `SELECT id, user_id, status, total_amount, discount_amount,
		payment_method, shipping_address, created_at
		FROM orders WHERE user_id = $1 ORDER BY created_at, id`

	getOrderItemsSQL = `SELECT book_id, quantity, price_at_purchase
		FROM order_items WHERE order_id = $1 ORDER BY id`

	listOrderItemsSQL = `SELECT order_id, book_id, quantity, price_at_purchase
		FROM order_items WHERE order_id = ANY($1) ORDER BY id`

	updateOrderStatusSQL = `UPDATE orders SET status = $3 WHERE id = $1 AND status = $2`
)

var _ order.Store = (*OrderStore)(nil)

// OrderStore implements order.Store backed by PostgreSQL.
type OrderStore struct {
	pool *pgxpool.Pool
}

// NewOrderStore returns an OrderStore that uses the given pool.
func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

// Checkout runs fn inside a single database transaction. pgx.BeginFunc
// commits when fn returns nil and rolls back on error or panic, so every
// exit path releases the connection and discards partial writes.
func (s *OrderStore) Checkout(ctx context.Context, fn func(tx order.CheckoutTx) error) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(&checkoutTx{tx: tx})
	})
}

// GetByID returns an order with its lines, or order.ErrNotFound.
func (s *OrderStore) GetByID(ctx context.Context, id string) (*order.Order, error) {
	rows, err := s.pool.Query(ctx, getOrderSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}

	itemRows, err := s.pool.Query(ctx, getOrderItemsSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting items for order %q: %w", id, err)
	}
	o.Lines, err = pgx.CollectRows(itemRows, scanOrderLine)
	if err != nil {
		return nil, fmt.Errorf("getting items for order %q: %w", id, err)
	}

	return &o, nil
}

// ListByUser returns the user's orders, oldest first, with lines attached.
func (s *OrderStore) ListByUser(ctx context.Context, userID string) ([]order.Order, error) {
	rows, err := s.pool.Query(ctx, listOrdersByUserSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("listing orders for user %q: %w", userID, err)
	}

	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, fmt.Errorf("listing orders for user %q: %w", userID, err)
	}
	if len(orders) == 0 {
		return orders, nil
	}

	ids := make([]string, len(orders))
	index := make(map[string]int, len(orders))
	for i := range orders {
		ids[i] = orders[i].ID
		index[orders[i].ID] = i
	}

	itemRows, err := s.pool.Query(ctx, listOrderItemsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("listing items for user %q: %w", userID, err)
	}
	defer itemRows.Close()

	for itemRows.Next() {
		var (
			orderID string
			line    order.OrderLine
		)
		if err := itemRows.Scan(&orderID, &line.BookID, &line.Quantity, &line.PriceAtPurchase); err != nil {
			return nil, fmt.Errorf("scanning item for user %q: %w", userID, err)
		}
		i := index[orderID]
		orders[i].Lines = append(orders[i].Lines, line)
	}
	if err := itemRows.Err(); err != nil {
		return nil, fmt.Errorf("listing items for user %q: %w", userID, err)
	}

	return orders, nil
}

// UpdateStatus performs a compare-and-set status change. Zero rows affected
// means the order moved (or vanished) concurrently.
func (s *OrderStore) UpdateStatus(ctx context.Context, id string, from, to order.Status) error {
	tag, err := s.pool.Exec(ctx, updateOrderStatusSQL, id, string(from), string(to))
	if err != nil {
		return fmt.Errorf("updating status of order %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrStatusConflict
	}
	return nil
}

// checkoutTx implements order.CheckoutTx on an open pgx transaction.
type checkoutTx struct {
	tx pgx.Tx
}

// FetchBooks reads and row-locks the referenced books, so concurrent
// checkouts against the same books serialize on this transaction.
func (c *checkoutTx) FetchBooks(ctx context.Context, ids []string) ([]book.Book, error) {
	rows, err := c.tx.Query(ctx, fetchBooksForUpdateSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("fetching books: %w", err)
	}
	return pgx.CollectRows(rows, scanBook)
}

// InsertOrder persists the order row and its lines in request order.
func (c *checkoutTx) InsertOrder(ctx context.Context, o *order.Order) error {
	err := c.tx.QueryRow(ctx, insertOrderSQL,
		o.ID, o.UserID, string(o.Status), o.TotalAmount, o.DiscountAmount,
		o.PaymentMethod, o.ShippingAddress,
	).Scan(&o.CreatedAt)
	if err != nil {
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}

	for _, line := range o.Lines {
		_, err := c.tx.Exec(ctx, insertOrderItemSQL,
			o.ID, line.BookID, line.Quantity, line.PriceAtPurchase,
		)
		if err != nil {
			return fmt.Errorf("creating item %q of order %q: %w", line.BookID, o.ID, err)
		}
	}

	return nil
}

// Reserve atomically decrements stock, failing instead of clamping when the
// remaining stock is lower than qty.
func (c *checkoutTx) Reserve(ctx context.Context, bookID string, qty int) error {
	if qty < 1 {
		return &book.InvalidQuantityError{BookID: bookID}
	}

	tag, err := c.tx.Exec(ctx, reserveStockSQL, bookID, qty)
	if err != nil {
		return fmt.Errorf("reserving %d of book %q: %w", qty, bookID, err)
	}
	if tag.RowsAffected() == 0 {
		return &book.InsufficientStockError{BookID: bookID}
	}
	return nil
}

// Release returns qty units to the book's stock.
func (c *checkoutTx) Release(ctx context.Context, bookID string, qty int) error {
	if qty < 1 {
		return &book.InvalidQuantityError{BookID: bookID}
	}

	_, err := c.tx.Exec(ctx, releaseStockSQL, bookID, qty)
	if err != nil {
		return fmt.Errorf("releasing %d of book %q: %w", qty, bookID, err)
	}
	return nil
}

// IncrementOrderCount adds one to the user's completed-order counter.
func (c *checkoutTx) IncrementOrderCount(ctx context.Context, userID string) error {
	tag, err := c.tx.Exec(ctx, incrementOrderCountSQL, userID)
	if err != nil {
		return fmt.Errorf("incrementing order count of user %q: %w", userID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("incrementing order count of user %q: no such user", userID)
	}
	return nil
}

func scanBook(row pgx.CollectableRow) (book.Book, error) {
	var b book.Book
	err := row.Scan(&b.ID, &b.Title, &b.Author, &b.Price, &b.Stock)
	return b, err
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o      order.Order
		status string
	)
	err := row.Scan(
		&o.ID, &o.UserID, &status, &o.TotalAmount, &o.DiscountAmount,
		&o.PaymentMethod, &o.ShippingAddress, &o.CreatedAt,
	)
	if err != nil {
		return o, err
	}

	o.Status, err = order.ParseStatus(status)
	if err != nil {
		return o, fmt.Errorf("order %q: %w", o.ID, err)
	}
	return o, nil
}

func scanOrderLine(row pgx.CollectableRow) (order.OrderLine, error) {
	var line order.OrderLine
	err := row.Scan(&line.BookID, &line.Quantity, &line.PriceAtPurchase)
	return line, err
}
