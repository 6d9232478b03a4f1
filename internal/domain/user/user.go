// Package user holds the loyalty view of a customer used for discount
// selection and the completed-order counter.
package user

import (
	"context"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned when a requested user does not exist.
var ErrNotFound = errors.New("user not found")

// Role classifies an account. Administrators are never eligible for
// loyalty discounts.
type Role string

const (
	RoleAdmin    Role = "ADMIN"
	RoleCustomer Role = "CUSTOMER"
)

// User is the loyalty view consumed by checkout. OrderCount is the number
// of successfully completed orders; it is incremented exactly once per
// created order and never decremented.
type User struct {
	ID         string
	Name       string
	Role       Role
	OrderCount int
}

// Repository provides read access to the identity store.
type Repository interface {
	GetByID(ctx context.Context, id string) (*User, error)
}
