package user

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("user: not found")

// Directory is the synchronous user lookup consumed by invoice creation.
type Directory interface {
	GetContact(ctx context.Context, userID string) (email string, err error)
}
