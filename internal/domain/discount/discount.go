// Package discount selects the most favorable loyalty discount for an
// order amount. Strategies are a closed set of kinds dispatched by switch
// rather than an open interface list, so new kinds extend the enum and the
// two switches below.
package discount

import (
	"github.com/shopspring/decimal"

	"github.com/okibook/bookstore/internal/domain/user"
)

var hundred = decimal.NewFromInt(100)

// Kind enumerates the built-in discount strategies.
type Kind int

const (
	// KindRegular gives regular customers (5 to 9 completed orders) 10% off.
	KindRegular Kind = iota
	// KindPremium gives premium customers (10+ completed orders) 15% off.
	KindPremium
)

// Strategy pairs a discount kind with the description reported on orders
// it wins.
type Strategy struct {
	Kind        Kind
	Description string
}

// applicable reports whether the strategy may be offered to u.
// Administrators are never eligible, regardless of order count.
func (s Strategy) applicable(u user.User) bool {
	if u.Role == user.RoleAdmin {
		return false
	}
	switch s.Kind {
	case KindRegular:
		return u.OrderCount >= 5 && u.OrderCount <= 9
	case KindPremium:
		return u.OrderCount >= 10
	default:
		return false
	}
}

func (s Strategy) percent() decimal.Decimal {
	switch s.Kind {
	case KindRegular:
		return decimal.NewFromInt(10)
	case KindPremium:
		return decimal.NewFromInt(15)
	default:
		return decimal.Zero
	}
}

// apply returns the discounted amount. The cut is rounded half-up to two
// decimal places before subtraction, so the recorded discount is always a
// representable money value.
func (s Strategy) apply(amount decimal.Decimal) decimal.Decimal {
	cut := amount.Mul(s.percent()).Div(hundred).Round(2)
	return amount.Sub(cut)
}

// Selection is the outcome of discount evaluation for one order.
type Selection struct {
	// Amount is the discounted payable amount.
	Amount decimal.Decimal
	// Discount is the original amount minus Amount; zero when no strategy
	// applied. Never negative and never larger than the original amount.
	Discount decimal.Decimal
	// Description names the winning strategy; empty when none applied.
	Description string
}

// Engine evaluates an ordered list of strategies.
type Engine struct {
	strategies []Strategy
}

// NewEngine returns an Engine with the built-in loyalty strategies in
// evaluation order.
func NewEngine() *Engine {
	return &Engine{
		strategies: []Strategy{
			{Kind: KindRegular, Description: "Regular customer: 10% off"},
			{Kind: KindPremium, Description: "Premium customer: 15% off"},
		},
	}
}

// Select evaluates strategies in list order and keeps the strictly lowest
// discounted amount seen so far; a later strategy producing the identical
// amount does not displace an earlier one. When no strategy is applicable
// the original amount is returned with a zero discount. Select never fails.
func (e *Engine) Select(u user.User, amount decimal.Decimal) Selection {
	best := amount
	desc := ""
	for _, s := range e.strategies {
		if !s.applicable(u) {
			continue
		}
		if candidate := s.apply(amount); candidate.LessThan(best) {
			best = candidate
			desc = s.Description
		}
	}

	return Selection{
		Amount:      best,
		Discount:    amount.Sub(best),
		Description: desc,
	}
}
