package user

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

var ErrUserNotFound = errors.New("user not found")

// User is the read-only contract with the platform's user service. The
// poll engine only needs display fields for analytics and export.
type User struct {
	ID        uuid.UUID `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

type Lookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]User, error)
}

// Requester is the authenticated identity supplied by the HTTP layer.
type Requester struct {
	ID   uuid.UUID
	Role string
}

func (r Requester) IsAdmin() bool { return r.Role == RoleAdmin }
