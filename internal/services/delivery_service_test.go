package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elegance-boutique/api/internal/domain"
)

type stubDeliveryRepo struct {
	inserted   []domain.Delivery
	updated    []domain.Delivery
	byOrderFn  func(context.Context, string) (domain.Delivery, error)
	byNumberFn func(context.Context, string) (domain.Delivery, error)
	insertFn   func(context.Context, domain.Delivery) error
	updateFn   func(context.Context, domain.Delivery) error
}

func (s *stubDeliveryRepo) Insert(ctx context.Context, delivery domain.Delivery) error {
	s.inserted = append(s.inserted, delivery)
	if s.insertFn != nil {
		return s.insertFn(ctx, delivery)
	}
	return nil
}

func (s *stubDeliveryRepo) Update(ctx context.Context, delivery domain.Delivery) error {
	s.updated = append(s.updated, delivery)
	if s.updateFn != nil {
		return s.updateFn(ctx, delivery)
	}
	return nil
}

func (s *stubDeliveryRepo) FindByOrder(ctx context.Context, orderID string) (domain.Delivery, error) {
	if s.byOrderFn != nil {
		return s.byOrderFn(ctx, orderID)
	}
	return domain.Delivery{}, &repoErrStub{notFound: true}
}

func (s *stubDeliveryRepo) FindByTrackingNumber(ctx context.Context, trackingNumber string) (domain.Delivery, error) {
	if s.byNumberFn != nil {
		return s.byNumberFn(ctx, trackingNumber)
	}
	return domain.Delivery{}, &repoErrStub{notFound: true}
}

func testDeliveryClock() time.Time {
	return time.Date(2025, time.March, 14, 9, 30, 0, 0, time.UTC)
}

func newTestDeliveryService(t *testing.T, deps DeliveryServiceDeps) DeliveryService {
	t.Helper()
	if deps.Orders == nil {
		deps.Orders = &stubOrderRepo{}
	}
	if deps.Clock == nil {
		deps.Clock = testDeliveryClock
	}
	service, err := NewDeliveryService(deps)
	require.NoError(t, err)
	return service
}

func TestGenerateTrackingNumberFormat(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 250; i++ {
		number := GenerateTrackingNumber()
		require.Len(t, number, 15)
		assert.Equal(t, "TRK", number[:3])
		assert.Regexp(t, `^TRK[0-9A-F]{12}$`, number)
		assert.False(t, seen[number], "tracking numbers should not repeat: %s", number)
		seen[number] = true
	}
}

func TestProvisionCreatesPendingDelivery(t *testing.T) {
	repo := &stubDeliveryRepo{}
	service := newTestDeliveryService(t, DeliveryServiceDeps{
		Repository:       repo,
		IDGenerator:      func() string { return "dlv_TEST" },
		TrackingNumberFn: func() string { return "TRKAAAABBBBCCCC" },
		Carrier:          "Colissimo",
	})

	delivery, err := service.Provision(context.Background(), ProvisionDeliveryCommand{OrderID: "ord_1"})
	require.NoError(t, err)

	assert.Equal(t, "dlv_TEST", delivery.ID)
	assert.Equal(t, "ord_1", delivery.OrderID)
	assert.Equal(t, "Colissimo", delivery.Carrier)
	assert.Equal(t, domain.DeliveryStatusPending, delivery.Status)
	assert.Equal(t, "TRKAAAABBBBCCCC", delivery.TrackingNumber)
	assert.Equal(t, testDeliveryClock(), delivery.CreatedAt)
	require.Len(t, repo.inserted, 1)
}

func TestProvisionIsIdempotentPerOrder(t *testing.T) {
	existing := domain.Delivery{ID: "dlv_1", OrderID: "ord_1", TrackingNumber: "TRK111122223333"}
	repo := &stubDeliveryRepo{
		byOrderFn: func(context.Context, string) (domain.Delivery, error) { return existing, nil },
	}
	service := newTestDeliveryService(t, DeliveryServiceDeps{Repository: repo})

	delivery, err := service.Provision(context.Background(), ProvisionDeliveryCommand{OrderID: "ord_1"})
	require.NoError(t, err)
	assert.Equal(t, existing, delivery)
	assert.Empty(t, repo.inserted)
}

func TestProvisionRetriesOnTrackingCollision(t *testing.T) {
	numbers := []string{"TRK000000000001", "TRK000000000001", "TRK000000000002"}
	next := 0
	// TRK000000000001 already belongs to another order, so the first two
	// generated numbers hit the unique index.
	taken := map[string]bool{"TRK000000000001": true}
	repo := &stubDeliveryRepo{}
	repo.insertFn = func(_ context.Context, delivery domain.Delivery) error {
		if taken[delivery.TrackingNumber] {
			return &repoErrStub{conflict: true, msg: "duplicate tracking number"}
		}
		taken[delivery.TrackingNumber] = true
		return nil
	}
	service := newTestDeliveryService(t, DeliveryServiceDeps{
		Repository: repo,
		TrackingNumberFn: func() string {
			n := numbers[next]
			next++
			return n
		},
	})

	delivery, err := service.Provision(context.Background(), ProvisionDeliveryCommand{OrderID: "ord_1"})
	require.NoError(t, err)
	assert.Equal(t, "TRK000000000002", delivery.TrackingNumber)
	assert.Len(t, repo.inserted, 3)
}

func TestProvisionGivesUpAfterRepeatedCollisions(t *testing.T) {
	repo := &stubDeliveryRepo{
		insertFn: func(context.Context, domain.Delivery) error {
			return &repoErrStub{conflict: true, msg: "duplicate tracking number"}
		},
	}
	service := newTestDeliveryService(t, DeliveryServiceDeps{
		Repository:       repo,
		TrackingNumberFn: func() string { return "TRK000000000001" },
	})

	_, err := service.Provision(context.Background(), ProvisionDeliveryCommand{OrderID: "ord_1"})
	require.ErrorIs(t, err, ErrDeliveryUnavailable)
	assert.Len(t, repo.inserted, maxTrackingAttempts)
}

func TestProvisionRequiresOrderID(t *testing.T) {
	service := newTestDeliveryService(t, DeliveryServiceDeps{Repository: &stubDeliveryRepo{}})

	_, err := service.Provision(context.Background(), ProvisionDeliveryCommand{OrderID: "  "})
	require.ErrorIs(t, err, ErrDeliveryInvalidInput)
}

func TestMarkShippedAssignsFreshTrackingNumber(t *testing.T) {
	pending := domain.Delivery{
		ID:             "dlv_1",
		OrderID:        "ord_1",
		TrackingNumber: "TRK111122223333",
		Status:         domain.DeliveryStatusPending,
	}
	repo := &stubDeliveryRepo{
		byOrderFn: func(context.Context, string) (domain.Delivery, error) { return pending, nil },
	}
	service := newTestDeliveryService(t, DeliveryServiceDeps{
		Repository:       repo,
		TrackingNumberFn: func() string { return "TRKAAAABBBBCCCC" },
	})

	shipTime := time.Date(2025, time.March, 15, 14, 0, 0, 0, time.UTC)
	delivery, err := service.MarkShipped(context.Background(), "ord_1", shipTime)
	require.NoError(t, err)

	assert.Equal(t, domain.DeliveryStatusShipped, delivery.Status)
	assert.Equal(t, "TRKAAAABBBBCCCC", delivery.TrackingNumber)
	require.NotNil(t, delivery.ShippedAt)
	assert.Equal(t, shipTime, *delivery.ShippedAt)
	require.Len(t, repo.updated, 1)
}

func TestMarkShippedUnknownOrder(t *testing.T) {
	service := newTestDeliveryService(t, DeliveryServiceDeps{Repository: &stubDeliveryRepo{}})

	_, err := service.MarkShipped(context.Background(), "ord_missing", testDeliveryClock())
	require.ErrorIs(t, err, ErrDeliveryNotFound)
}

func TestMarkDeliveredStampsTimestamp(t *testing.T) {
	shippedAt := time.Date(2025, time.March, 15, 14, 0, 0, 0, time.UTC)
	shipped := domain.Delivery{
		ID:             "dlv_1",
		OrderID:        "ord_1",
		TrackingNumber: "TRKAAAABBBBCCCC",
		Status:         domain.DeliveryStatusShipped,
		ShippedAt:      &shippedAt,
	}
	repo := &stubDeliveryRepo{
		byOrderFn: func(context.Context, string) (domain.Delivery, error) { return shipped, nil },
	}
	service := newTestDeliveryService(t, DeliveryServiceDeps{Repository: repo})

	deliverTime := time.Date(2025, time.March, 18, 10, 0, 0, 0, time.UTC)
	delivery, err := service.MarkDelivered(context.Background(), "ord_1", deliverTime)
	require.NoError(t, err)

	assert.Equal(t, domain.DeliveryStatusDelivered, delivery.Status)
	require.NotNil(t, delivery.DeliveredAt)
	assert.Equal(t, deliverTime, *delivery.DeliveredAt)
	assert.Equal(t, "TRKAAAABBBBCCCC", delivery.TrackingNumber, "delivered keeps the shipped tracking number")
}

func TestTrackNormalizesNumberAndJoinsOrderStatus(t *testing.T) {
	delivery := domain.Delivery{
		ID:             "dlv_1",
		OrderID:        "ord_1",
		TrackingNumber: "TRKAAAABBBBCCCC",
		Status:         domain.DeliveryStatusShipped,
	}
	var lookedUp string
	repo := &stubDeliveryRepo{
		byNumberFn: func(_ context.Context, number string) (domain.Delivery, error) {
			lookedUp = number
			return delivery, nil
		},
	}
	orders := &stubOrderRepo{
		findFn: func(context.Context, string) (domain.Order, error) {
			return domain.Order{ID: "ord_1", Status: domain.OrderStatusShipped}, nil
		},
	}
	service := newTestDeliveryService(t, DeliveryServiceDeps{Repository: repo, Orders: orders})

	info, err := service.Track(context.Background(), "  trkaaaabbbbcccc ")
	require.NoError(t, err)

	assert.Equal(t, "TRKAAAABBBBCCCC", lookedUp)
	assert.Equal(t, "ord_1", info.OrderID)
	assert.Equal(t, domain.OrderStatusShipped, info.OrderStatus)
	assert.Equal(t, delivery, info.Delivery)
}

func TestTrackUnknownNumber(t *testing.T) {
	service := newTestDeliveryService(t, DeliveryServiceDeps{Repository: &stubDeliveryRepo{}})

	_, err := service.Track(context.Background(), "TRK000000000000")
	require.ErrorIs(t, err, ErrDeliveryNotFound)
}

func TestTrackRequiresNumber(t *testing.T) {
	service := newTestDeliveryService(t, DeliveryServiceDeps{Repository: &stubDeliveryRepo{}})

	_, err := service.Track(context.Background(), "   ")
	require.ErrorIs(t, err, ErrDeliveryInvalidInput)
}
