// Package handler exposes the checkout API over HTTP with JSON bodies.
package handler

import (
	"net/http"

	"github.com/okibook/bookstore/internal/domain/order"
)

// Handler serves the order endpoints, delegating business logic to the
// order service.
type Handler struct {
	orders *order.Service
}

// NewHandler constructs a Handler around the order service.
func NewHandler(orders *order.Service) *Handler {
	return &Handler{orders: orders}
}

// Register adds the API routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/orders", h.createOrder)
	mux.HandleFunc("GET /api/orders/{id}", h.getOrder)
	mux.HandleFunc("POST /api/orders/{id}/status", h.updateOrderStatus)
	mux.HandleFunc("GET /api/users/{id}/orders", h.listUserOrders)
}
