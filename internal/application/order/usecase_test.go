package order

import (
	"context"
	"fmt"
	"sync"
	"testing"

	domcatalog "github.com/minicommerce/orderflow/internal/domain/catalog"
	domain "github.com/minicommerce/orderflow/internal/domain/order"
	domoutbox "github.com/minicommerce/orderflow/internal/domain/outbox"
	domstock "github.com/minicommerce/orderflow/internal/domain/stock"
	"github.com/minicommerce/orderflow/internal/infrastructure/memory"

	"github.com/stretchr/testify/require"
)

type capturePublisher struct {
	mu     sync.Mutex
	events []domoutbox.Event
}

func (p *capturePublisher) Publish(ctx context.Context, e domoutbox.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *capturePublisher) published() []domoutbox.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domoutbox.Event(nil), p.events...)
}

type seqIDGen struct{ n int }

func (g *seqIDGen) NewID() string {
	g.n++
	return fmt.Sprintf("ord-%d", g.n)
}

func newCheckoutFixture(t *testing.T) (*CheckoutUseCase, *memory.OrderRepository, *capturePublisher) {
	t.Helper()
	ctx := context.Background()

	stockStore := memory.NewStockStore()
	require.NoError(t, stockStore.Set(ctx, "p-1", 10))
	require.NoError(t, stockStore.Set(ctx, "p-2", 3))

	catalog := memory.NewCatalog(stockStore,
		domcatalog.Product{ID: "p-1", Name: "Keyboard", Price: 500},
		domcatalog.Product{ID: "p-2", Name: "Mouse", Price: 250},
	)
	repo := memory.NewOrderRepository()
	publisher := &capturePublisher{}
	uc := NewCheckoutUseCase(repo, catalog, &seqIDGen{}, publisher, nil)
	return uc, repo, publisher
}

func TestCheckoutCreatesPendingOrder(t *testing.T) {
	uc, repo, publisher := newCheckoutFixture(t)
	ctx := context.Background()

	result, err := uc.Execute(ctx, CheckoutInput{
		IdempotencyKey: "idem-1",
		UserID:         "u-1",
		Items: []domcatalog.Request{
			{ProductID: "p-1", Quantity: 2},
			{ProductID: "p-2", Quantity: 1},
		},
	})
	require.NoError(t, err)
	require.Equal(t, domain.StatusPending, result.Status)
	require.Equal(t, int64(1250), result.TotalAmount)

	stored, err := repo.Get(ctx, result.OrderID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusPending, stored.Status)

	events := publisher.published()
	require.Len(t, events, 2)

	created, ok := events[0].(domain.OrderCreatedEvent)
	require.True(t, ok)
	require.Equal(t, result.OrderID, created.OrderID)
	require.Equal(t, int64(1250), created.TotalAmount)

	decrement, ok := events[1].(domstock.StockDecrementCommand)
	require.True(t, ok)
	require.Equal(t, result.OrderID, decrement.OrderID)
	require.Equal(t, result.OrderID, decrement.Key())
	require.Len(t, decrement.Items, 2)
}

func TestCheckoutIdempotentReplay(t *testing.T) {
	uc, _, publisher := newCheckoutFixture(t)
	ctx := context.Background()

	input := CheckoutInput{
		IdempotencyKey: "idem-1",
		UserID:         "u-1",
		Items:          []domcatalog.Request{{ProductID: "p-1", Quantity: 1}},
	}

	first, err := uc.Execute(ctx, input)
	require.NoError(t, err)

	second, err := uc.Execute(ctx, input)
	require.NoError(t, err)
	require.Equal(t, first.OrderID, second.OrderID)

	// The replay must not emit another created event or decrement command.
	require.Len(t, publisher.published(), 2)
}

func TestCheckoutSameKeyDifferentUsers(t *testing.T) {
	uc, _, _ := newCheckoutFixture(t)
	ctx := context.Background()

	a, err := uc.Execute(ctx, CheckoutInput{
		IdempotencyKey: "shared",
		UserID:         "u-1",
		Items:          []domcatalog.Request{{ProductID: "p-1", Quantity: 1}},
	})
	require.NoError(t, err)

	b, err := uc.Execute(ctx, CheckoutInput{
		IdempotencyKey: "shared",
		UserID:         "u-2",
		Items:          []domcatalog.Request{{ProductID: "p-1", Quantity: 1}},
	})
	require.NoError(t, err)
	require.NotEqual(t, a.OrderID, b.OrderID)
}

func TestCheckoutValidation(t *testing.T) {
	uc, _, publisher := newCheckoutFixture(t)
	ctx := context.Background()

	_, err := uc.Execute(ctx, CheckoutInput{UserID: "", Items: []domcatalog.Request{{ProductID: "p-1", Quantity: 1}}})
	require.ErrorIs(t, err, ErrValidation)

	_, err = uc.Execute(ctx, CheckoutInput{UserID: "u-1"})
	require.ErrorIs(t, err, ErrValidation)

	_, err = uc.Execute(ctx, CheckoutInput{
		UserID: "u-1",
		Items:  []domcatalog.Request{{ProductID: "ghost", Quantity: 1}},
	})
	require.ErrorIs(t, err, domcatalog.ErrNotFound)

	_, err = uc.Execute(ctx, CheckoutInput{
		UserID: "u-1",
		Items:  []domcatalog.Request{{ProductID: "p-2", Quantity: 4}},
	})
	require.ErrorIs(t, err, domcatalog.ErrInsufficientStock)

	require.Empty(t, publisher.published())
}
