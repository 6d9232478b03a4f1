package handler

import (
	"io"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/okibook/bookstore/internal/domain/book"
	"github.com/okibook/bookstore/internal/domain/order"
	"github.com/okibook/bookstore/internal/domain/user"
)

const maxBodyBytes = 1 << 20

type createOrderRequest struct {
	UserID          string
	Lines           []order.CartLine
	PaymentMethod   string
	ShippingAddress string
}

func decodeCreateOrder(data []byte) (createOrderRequest, error) {
	var req createOrderRequest
	d := jx.DecodeBytes(data)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "user_id":
			v, err := d.Str()
			req.UserID = v
			return err
		case "payment_method":
			v, err := d.Str()
			req.PaymentMethod = v
			return err
		case "shipping_address":
			v, err := d.Str()
			req.ShippingAddress = v
			return err
		case "items":
			return d.Arr(func(d *jx.Decoder) error {
				var line order.CartLine
				if err := d.Obj(func(d *jx.Decoder, key string) error {
					switch key {
					case "book_id":
						v, err := d.Str()
						line.BookID = v
						return err
					case "quantity":
						v, err := d.Int()
						line.Quantity = v
						return err
					default:
						return d.Skip()
					}
				}); err != nil {
					return err
				}
				req.Lines = append(req.Lines, line)
				return nil
			})
		default:
			return d.Skip()
		}
	})
	return req, err
}

func decodeStatusUpdate(data []byte) (string, error) {
	var status string
	d := jx.DecodeBytes(data)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		if key != "status" {
			return d.Skip()
		}
		v, err := d.Str()
		status = v
		return err
	})
	return status, err
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable request body")
		return nil, false
	}
	return data, true
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	data, ok := readBody(w, r)
	if !ok {
		return
	}

	req, err := decodeCreateOrder(data)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id required")
		return
	}

	o, err := h.orders.Checkout(r.Context(), order.CheckoutRequest{
		UserID:          req.UserID,
		Lines:           req.Lines,
		PaymentMethod:   req.PaymentMethod,
		ShippingAddress: req.ShippingAddress,
	})
	if err != nil {
		h.writeOrderError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeOrder(e, o) })
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.GetOrder(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeOrderError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o) })
}

func (h *Handler) listUserOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.ListUserOrders(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeOrderError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Arr(func(e *jx.Encoder) {
			for i := range orders {
				encodeOrder(e, &orders[i])
			}
		})
	})
}

func (h *Handler) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	data, ok := readBody(w, r)
	if !ok {
		return
	}

	raw, err := decodeStatusUpdate(data)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	id := r.PathValue("id")
	status, err := h.orders.UpdateStatus(r.Context(), id, raw)
	if err != nil {
		h.writeOrderError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("id", func(e *jx.Encoder) { e.Str(id) })
			e.Field("status", func(e *jx.Encoder) { e.Str(string(status)) })
		})
	})
}

// writeOrderError maps domain errors to HTTP responses. Unexpected errors
// are logged and reported as an opaque 500.
func (h *Handler) writeOrderError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		invalidQty    *book.InvalidQuantityError
		notFound      *order.BookNotFoundError
		noStock       *book.InsufficientStockError
		badTransition *order.InvalidTransitionError
	)

	switch {
	case errors.Is(err, order.ErrEmptyCart),
		errors.Is(err, order.ErrUnknownStatus):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &invalidQty):
		writeError(w, http.StatusUnprocessableEntity, invalidQty.Error())
	case errors.As(err, &notFound):
		writeError(w, http.StatusUnprocessableEntity, notFound.Error())
	case errors.As(err, &noStock):
		writeError(w, http.StatusUnprocessableEntity, noStock.Error())
	case errors.Is(err, order.ErrNotFound),
		errors.Is(err, user.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &badTransition):
		writeError(w, http.StatusConflict, badTransition.Error())
	case errors.Is(err, order.ErrStatusConflict):
		writeError(w, http.StatusConflict, err.Error())
	default:
		zctx.From(r.Context()).Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
