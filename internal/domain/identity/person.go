// Package identity is the storefront's read-only view of the external user
// service. Accounts, passwords and role assignment live elsewhere.
package identity

import (
	"context"

	"github.com/example/tunestore/internal/apperr"
)

type Role string

const (
	RoleCustomer Role = "customer"
	RoleArtist   Role = "artist"
	RoleStaff    Role = "staff"
	RoleAdmin    Role = "admin"
)

// IsStaff reports whether the role may act on other customers' orders and tickets.
func (r Role) IsStaff() bool { return r == RoleStaff || r == RoleAdmin }

var ErrPersonNotFound = apperr.New(apperr.NotFound, "user not found")

type Person struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Role     Role   `json:"role"`
}

// Directory looks people up by id or username.
type Directory interface {
	ByID(ctx context.Context, id int64) (*Person, error)
	ByUsername(ctx context.Context, username string) (*Person, error)
}
