package order

import (
	"context"

	domain "github.com/minicommerce/orderflow/internal/domain/order"
)

// Service holds the pure read side of the order context.
type Service struct {
	repo domain.Repository
}

func NewService(repo domain.Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Order, error) {
	if id == "" {
		return nil, newValidation("order id is required")
	}
	return s.repo.Get(ctx, id)
}

// History returns the user's orders, newest first. No state transition.
func (s *Service) History(ctx context.Context, userID string) ([]*domain.Order, error) {
	if userID == "" {
		return nil, newValidation("user id is required")
	}
	return s.repo.ListByUser(ctx, userID)
}
