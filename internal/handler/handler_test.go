package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okibook/bookstore/internal/domain/book"
	"github.com/okibook/bookstore/internal/domain/discount"
	"github.com/okibook/bookstore/internal/domain/order"
	"github.com/okibook/bookstore/internal/domain/user"
)

// --- In-memory store and repo fakes ---

type fakeUsers struct {
	byID map[string]*user.User
}

func (f *fakeUsers) GetByID(_ context.Context, id string) (*user.User, error) {
	u, ok := f.byID[id]
	if !ok {
		return nil, user.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

type fakeStore struct {
	books  map[string]book.Book
	counts map[string]int
	orders map[string]*order.Order
}

type fakeTx struct {
	store  *fakeStore
	books  map[string]book.Book
	counts map[string]int
	orders []*order.Order
}

func (s *fakeStore) Checkout(_ context.Context, fn func(tx order.CheckoutTx) error) error {
	tx := &fakeTx{
		store:  s,
		books:  make(map[string]book.Book, len(s.books)),
		counts: make(map[string]int, len(s.counts)),
	}
	for id, b := range s.books {
		tx.books[id] = b
	}
	for id, c := range s.counts {
		tx.counts[id] = c
	}

	if err := fn(tx); err != nil {
		return err
	}

	s.books = tx.books
	s.counts = tx.counts
	for _, o := range tx.orders {
		s.orders[o.ID] = o
	}
	return nil
}

func (tx *fakeTx) FetchBooks(_ context.Context, ids []string) ([]book.Book, error) {
	out := make([]book.Book, 0, len(ids))
	for _, id := range ids {
		if b, ok := tx.books[id]; ok {
			out = append(out, b)
		}
	}
	return out, nil
}

func (tx *fakeTx) Reserve(_ context.Context, bookID string, qty int) error {
	if qty < 1 {
		return &book.InvalidQuantityError{BookID: bookID}
	}
	b, ok := tx.books[bookID]
	if !ok || b.Stock < qty {
		return &book.InsufficientStockError{BookID: bookID}
	}
	b.Stock -= qty
	tx.books[bookID] = b
	return nil
}

func (tx *fakeTx) Release(_ context.Context, bookID string, qty int) error {
	b := tx.books[bookID]
	b.Stock += qty
	tx.books[bookID] = b
	return nil
}

func (tx *fakeTx) InsertOrder(_ context.Context, o *order.Order) error {
	o.CreatedAt = time.Date(2026, 2, 3, 10, 0, 0, 0, time.UTC)
	tx.orders = append(tx.orders, o)
	return nil
}

func (tx *fakeTx) IncrementOrderCount(_ context.Context, userID string) error {
	tx.counts[userID]++
	return nil
}

func (s *fakeStore) GetByID(_ context.Context, id string) (*order.Order, error) {
	o, ok := s.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (s *fakeStore) ListByUser(_ context.Context, userID string) ([]order.Order, error) {
	var out []order.Order
	for _, o := range s.orders {
		if o.UserID == userID {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (s *fakeStore) UpdateStatus(_ context.Context, id string, from, to order.Status) error {
	o, ok := s.orders[id]
	if !ok || o.Status != from {
		return order.ErrStatusConflict
	}
	o.Status = to
	return nil
}

// --- Response shapes ---

type orderResponse struct {
	ID             string              `json:"id"`
	UserID         string              `json:"user_id"`
	Status         string              `json:"status"`
	TotalAmount    string              `json:"total_amount"`
	DiscountAmount string              `json:"discount_amount"`
	FinalPayable   string              `json:"final_payable"`
	Items          []orderItemResponse `json:"items"`
}

type orderItemResponse struct {
	BookID          string `json:"book_id"`
	Quantity        int    `json:"quantity"`
	PriceAtPurchase string `json:"price_at_purchase"`
}

type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// --- Setup ---

func newTestServer(t *testing.T, store *fakeStore, users *fakeUsers) *httptest.Server {
	t.Helper()

	svc := order.NewService(users, discount.NewEngine(), store)
	mux := http.NewServeMux()
	NewHandler(svc).Register(mux)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func defaultFixtures() (*fakeStore, *fakeUsers) {
	store := &fakeStore{
		books: map[string]book.Book{
			"b1": {ID: "b1", Title: "Dune", Price: decimal.RequireFromString("12.99"), Stock: 10},
			"b2": {ID: "b2", Title: "Solaris", Price: decimal.RequireFromString("9.99"), Stock: 1},
		},
		counts: make(map[string]int),
		orders: make(map[string]*order.Order),
	}
	users := &fakeUsers{byID: map[string]*user.User{
		"u1": {ID: "u1", Role: user.RoleCustomer, OrderCount: 7},
	}}
	return store, users
}

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeAs[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

// --- Tests ---

func TestCreateOrder(t *testing.T) {
	store, users := defaultFixtures()
	srv := newTestServer(t, store, users)

	resp := postJSON(t, srv.URL+"/api/orders", `{
		"user_id": "u1",
		"items": [
			{"book_id": "b1", "quantity": 2},
			{"book_id": "b2", "quantity": 1}
		],
		"payment_method": "CARD",
		"shipping_address": "12 Shelf Lane"
	}`)

	require.Equal(t, http.StatusCreated, resp.StatusCode)

	got := decodeAs[orderResponse](t, resp)
	assert.NotEmpty(t, got.ID)
	assert.Equal(t, "u1", got.UserID)
	assert.Equal(t, "PENDING", got.Status)
	assert.Equal(t, "35.97", got.TotalAmount)
	assert.Equal(t, "3.60", got.DiscountAmount)
	assert.Equal(t, "32.37", got.FinalPayable)
	require.Len(t, got.Items, 2)
	assert.Equal(t, "12.99", got.Items[0].PriceAtPurchase)

	assert.Equal(t, 8, store.books["b1"].Stock)
	assert.Equal(t, 0, store.books["b2"].Stock)
	assert.Equal(t, 1, store.counts["u1"])
}

func TestCreateOrder_EmptyCart(t *testing.T) {
	store, users := defaultFixtures()
	srv := newTestServer(t, store, users)

	resp := postJSON(t, srv.URL+"/api/orders", `{"user_id": "u1", "items": []}`)

	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	got := decodeAs[errorResponse](t, resp)
	assert.Equal(t, http.StatusBadRequest, got.Code)
	assert.Contains(t, got.Message, "cart is empty")
}

func TestCreateOrder_MalformedBody(t *testing.T) {
	store, users := defaultFixtures()
	srv := newTestServer(t, store, users)

	resp := postJSON(t, srv.URL+"/api/orders", `{"user_id": `)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCreateOrder_UnknownBook(t *testing.T) {
	store, users := defaultFixtures()
	srv := newTestServer(t, store, users)

	resp := postJSON(t, srv.URL+"/api/orders",
		`{"user_id": "u1", "items": [{"book_id": "nope", "quantity": 1}]}`)

	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	got := decodeAs[errorResponse](t, resp)
	assert.Contains(t, got.Message, "not found")
}

func TestCreateOrder_InsufficientStock(t *testing.T) {
	store, users := defaultFixtures()
	srv := newTestServer(t, store, users)

	resp := postJSON(t, srv.URL+"/api/orders",
		`{"user_id": "u1", "items": [{"book_id": "b2", "quantity": 5}]}`)

	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	got := decodeAs[errorResponse](t, resp)
	assert.Contains(t, got.Message, "insufficient stock")

	// Rollback observable through the API surface.
	assert.Equal(t, 1, store.books["b2"].Stock)
	assert.Zero(t, store.counts["u1"])
}

func TestCreateOrder_UnknownUser(t *testing.T) {
	store, users := defaultFixtures()
	srv := newTestServer(t, store, users)

	resp := postJSON(t, srv.URL+"/api/orders",
		`{"user_id": "ghost", "items": [{"book_id": "b1", "quantity": 1}]}`)

	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetOrder(t *testing.T) {
	store, users := defaultFixtures()
	srv := newTestServer(t, store, users)

	created := decodeAs[orderResponse](t, postJSON(t, srv.URL+"/api/orders",
		`{"user_id": "u1", "items": [{"book_id": "b1", "quantity": 1}]}`))

	resp, err := http.Get(srv.URL + "/api/orders/" + created.ID)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decodeAs[orderResponse](t, resp)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, created.TotalAmount, got.TotalAmount)
	assert.Equal(t, created.Items, got.Items)
}

func TestGetOrder_NotFound(t *testing.T) {
	store, users := defaultFixtures()
	srv := newTestServer(t, store, users)

	resp, err := http.Get(srv.URL + "/api/orders/missing")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListUserOrders(t *testing.T) {
	store, users := defaultFixtures()
	srv := newTestServer(t, store, users)

	postJSON(t, srv.URL+"/api/orders",
		`{"user_id": "u1", "items": [{"book_id": "b1", "quantity": 1}]}`)
	postJSON(t, srv.URL+"/api/orders",
		`{"user_id": "u1", "items": [{"book_id": "b1", "quantity": 2}]}`)

	resp, err := http.Get(srv.URL + "/api/users/u1/orders")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decodeAs[[]orderResponse](t, resp)
	assert.Len(t, got, 2)
}

func TestUpdateOrderStatus(t *testing.T) {
	store, users := defaultFixtures()
	srv := newTestServer(t, store, users)

	created := decodeAs[orderResponse](t, postJSON(t, srv.URL+"/api/orders",
		`{"user_id": "u1", "items": [{"book_id": "b1", "quantity": 1}]}`))

	resp := postJSON(t, srv.URL+"/api/orders/"+created.ID+"/status", `{"status": "PROCESSING"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, order.StatusProcessing, store.orders[created.ID].Status)
}

func TestUpdateOrderStatus_Unknown(t *testing.T) {
	store, users := defaultFixtures()
	srv := newTestServer(t, store, users)

	created := decodeAs[orderResponse](t, postJSON(t, srv.URL+"/api/orders",
		`{"user_id": "u1", "items": [{"book_id": "b1", "quantity": 1}]}`))

	resp := postJSON(t, srv.URL+"/api/orders/"+created.ID+"/status", `{"status": "VAPORIZED"}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUpdateOrderStatus_InvalidTransition(t *testing.T) {
	store, users := defaultFixtures()
	srv := newTestServer(t, store, users)

	created := decodeAs[orderResponse](t, postJSON(t, srv.URL+"/api/orders",
		`{"user_id": "u1", "items": [{"book_id": "b1", "quantity": 1}]}`))

	resp := postJSON(t, srv.URL+"/api/orders/"+created.ID+"/status", `{"status": "DELIVERED"}`)
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	got := decodeAs[errorResponse](t, resp)
	assert.Contains(t, got.Message, "invalid status transition")
}
