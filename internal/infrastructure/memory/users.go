package memory

import (
	"context"
	"sync"

	domain "github.com/minicommerce/orderflow/internal/domain/user"
)

type UserDirectory struct {
	mu       sync.RWMutex
	contacts map[string]string // userID -> email
}

func NewUserDirectory(contacts map[string]string) *UserDirectory {
	m := make(map[string]string, len(contacts))
	for k, v := range contacts {
		m[k] = v
	}
	return &UserDirectory{contacts: m}
}

func (d *UserDirectory) GetContact(ctx context.Context, userID string) (string, error) {
	_ = ctx

	d.mu.RLock()
	defer d.mu.RUnlock()

	email, ok := d.contacts[userID]
	if !ok {
		return "", domain.ErrNotFound
	}
	return email, nil
}
