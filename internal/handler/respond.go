package handler

import (
	"net/http"
	"time"

	"github.com/go-faster/jx"

	"github.com/okibook/bookstore/internal/domain/order"
)

// writeJSON renders the encoded document with the given HTTP status.
func writeJSON(w http.ResponseWriter, status int, encode func(e *jx.Encoder)) {
	var e jx.Encoder
	encode(&e)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

// writeError renders the {code, message} error body.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("code", func(e *jx.Encoder) { e.Int(status) })
			e.Field("message", func(e *jx.Encoder) { e.Str(message) })
		})
	})
}

// encodeOrder renders an order with its lines. Money fields are rendered as
// fixed two-decimal strings to keep exact values on the wire.
func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(o.ID) })
		e.Field("user_id", func(e *jx.Encoder) { e.Str(o.UserID) })
		e.Field("status", func(e *jx.Encoder) { e.Str(string(o.Status)) })
		e.Field("total_amount", func(e *jx.Encoder) { e.Str(o.TotalAmount.StringFixed(2)) })
		e.Field("discount_amount", func(e *jx.Encoder) { e.Str(o.DiscountAmount.StringFixed(2)) })
		e.Field("final_payable", func(e *jx.Encoder) { e.Str(o.FinalPayable().StringFixed(2)) })
		e.Field("payment_method", func(e *jx.Encoder) { e.Str(o.PaymentMethod) })
		e.Field("shipping_address", func(e *jx.Encoder) { e.Str(o.ShippingAddress) })
		e.Field("created_at", func(e *jx.Encoder) { e.Str(o.CreatedAt.UTC().Format(time.RFC3339)) })
		e.Field("items", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, line := range o.Lines {
					encodeOrderLine(e, line)
				}
			})
		})
	})
}

func encodeOrderLine(e *jx.Encoder, line order.OrderLine) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("book_id", func(e *jx.Encoder) { e.Str(line.BookID) })
		e.Field("quantity", func(e *jx.Encoder) { e.Int(line.Quantity) })
		e.Field("price_at_purchase", func(e *jx.Encoder) { e.Str(line.PriceAtPurchase.StringFixed(2)) })
	})
}
