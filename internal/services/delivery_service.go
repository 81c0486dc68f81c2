package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	domain "github.com/elegance-boutique/api/internal/domain"
	"github.com/elegance-boutique/api/internal/repositories"
)

var (
	errDeliveryRepositoryRequired = errors.New("delivery service: repository is required")
	errDeliveryOrdersRequired     = errors.New("delivery service: order repository is required")
	errDeliveryClockRequired      = errors.New("delivery service: clock is required")
)

const (
	defaultCarrier      = "Transporteur"
	trackingPrefix      = "TRK"
	trackingSuffixLen   = 12
	maxTrackingAttempts = 5
)

// ErrDeliveryInvalidInput indicates the caller supplied invalid input.
var ErrDeliveryInvalidInput = errors.New("delivery service: invalid input")

// ErrDeliveryNotFound indicates no delivery matches the lookup.
var ErrDeliveryNotFound = errors.New("delivery service: not found")

// ErrDeliveryUnavailable indicates the delivery backend cannot fulfil the request.
var ErrDeliveryUnavailable = errors.New("delivery service: unavailable")

// DeliveryServiceDeps wires the repositories and utilities for shipment tracking.
type DeliveryServiceDeps struct {
	Repository       repositories.DeliveryRepository
	Orders           repositories.OrderRepository
	Clock            func() time.Time
	IDGenerator      func() string
	TrackingNumberFn func() string
	Carrier          string
	Logger           func(context.Context, string, map[string]any)
}

type deliveryService struct {
	repo        repositories.DeliveryRepository
	orders      repositories.OrderRepository
	now         func() time.Time
	newID       func() string
	newTracking func() string
	carrier     string
	logger      func(context.Context, string, map[string]any)
}

// NewDeliveryService constructs a DeliveryService enforcing dependency validation.
func NewDeliveryService(deps DeliveryServiceDeps) (DeliveryService, error) {
	if deps.Repository == nil {
		return nil, errDeliveryRepositoryRequired
	}
	if deps.Orders == nil {
		return nil, errDeliveryOrdersRequired
	}
	if deps.Clock == nil {
		return nil, errDeliveryClockRequired
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return "dlv_" + ulid.Make().String() }
	}

	trackingGen := deps.TrackingNumberFn
	if trackingGen == nil {
		trackingGen = GenerateTrackingNumber
	}

	carrier := strings.TrimSpace(deps.Carrier)
	if carrier == "" {
		carrier = defaultCarrier
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	service := &deliveryService{
		repo:        deps.Repository,
		orders:      deps.Orders,
		now:         func() time.Time { return deps.Clock().UTC() },
		newID:       idGen,
		newTracking: trackingGen,
		carrier:     carrier,
		logger:      logger,
	}
	return service, nil
}

// GenerateTrackingNumber produces a carrier reference of the form
// TRK + 12 uppercase hex characters.
func GenerateTrackingNumber() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return trackingPrefix + strings.ToUpper(raw[:trackingSuffixLen])
}

// Provision creates the pending delivery for a freshly paid order. Tracking
// numbers carry a unique index, so a collision surfaces as a conflict and the
// insert retries with a fresh number.
func (s *deliveryService) Provision(ctx context.Context, cmd ProvisionDeliveryCommand) (Delivery, error) {
	if s == nil || s.repo == nil {
		return Delivery{}, ErrDeliveryUnavailable
	}

	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Delivery{}, fmt.Errorf("%w: order id is required", ErrDeliveryInvalidInput)
	}

	if existing, err := s.repo.FindByOrder(ctx, orderID); err == nil {
		return existing, nil
	} else if !isRepoNotFound(err) {
		return Delivery{}, translateDeliveryRepoError(err)
	}

	now := s.now()
	delivery := Delivery{
		ID:        s.newID(),
		OrderID:   orderID,
		Carrier:   s.carrier,
		Status:    domain.DeliveryStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	var lastErr error
	for attempt := 0; attempt < maxTrackingAttempts; attempt++ {
		delivery.TrackingNumber = s.newTracking()
		if err := s.repo.Insert(ctx, delivery); err != nil {
			if isRepoConflict(err) {
				lastErr = err
				continue
			}
			return Delivery{}, translateDeliveryRepoError(err)
		}
		return delivery, nil
	}
	return Delivery{}, fmt.Errorf("%w: tracking number generation kept colliding: %v", ErrDeliveryUnavailable, lastErr)
}

// MarkShipped stamps a fresh tracking number and moves the delivery to
// shipped. The handover to the real carrier happens at ship time, so the
// provisional number assigned at payment is replaced.
func (s *deliveryService) MarkShipped(ctx context.Context, orderID string, now time.Time) (Delivery, error) {
	if s == nil || s.repo == nil {
		return Delivery{}, ErrDeliveryUnavailable
	}

	delivery, err := s.byOrder(ctx, orderID)
	if err != nil {
		return Delivery{}, err
	}

	shippedAt := now.UTC()
	delivery.Status = domain.DeliveryStatusShipped
	delivery.ShippedAt = &shippedAt
	delivery.UpdatedAt = shippedAt

	var lastErr error
	for attempt := 0; attempt < maxTrackingAttempts; attempt++ {
		delivery.TrackingNumber = s.newTracking()
		if err := s.repo.Update(ctx, delivery); err != nil {
			if isRepoConflict(err) {
				lastErr = err
				continue
			}
			return Delivery{}, translateDeliveryRepoError(err)
		}
		s.logger(ctx, "delivery.shipped", map[string]any{
			"orderID":        delivery.OrderID,
			"trackingNumber": delivery.TrackingNumber,
		})
		return delivery, nil
	}
	return Delivery{}, fmt.Errorf("%w: tracking number generation kept colliding: %v", ErrDeliveryUnavailable, lastErr)
}

func (s *deliveryService) MarkDelivered(ctx context.Context, orderID string, now time.Time) (Delivery, error) {
	if s == nil || s.repo == nil {
		return Delivery{}, ErrDeliveryUnavailable
	}

	delivery, err := s.byOrder(ctx, orderID)
	if err != nil {
		return Delivery{}, err
	}

	deliveredAt := now.UTC()
	delivery.Status = domain.DeliveryStatusDelivered
	delivery.DeliveredAt = &deliveredAt
	delivery.UpdatedAt = deliveredAt

	if err := s.repo.Update(ctx, delivery); err != nil {
		return Delivery{}, translateDeliveryRepoError(err)
	}
	return delivery, nil
}

// ByOrder returns the delivery attached to an order.
func (s *deliveryService) ByOrder(ctx context.Context, orderID string) (Delivery, error) {
	if s == nil || s.repo == nil {
		return Delivery{}, ErrDeliveryUnavailable
	}
	return s.byOrder(ctx, orderID)
}

// Track is the public lookup: no authentication, keyed only by the tracking
// number itself.
func (s *deliveryService) Track(ctx context.Context, trackingNumber string) (TrackingInfo, error) {
	if s == nil || s.repo == nil {
		return TrackingInfo{}, ErrDeliveryUnavailable
	}

	number := strings.ToUpper(strings.TrimSpace(trackingNumber))
	if number == "" {
		return TrackingInfo{}, fmt.Errorf("%w: tracking number is required", ErrDeliveryInvalidInput)
	}

	delivery, err := s.repo.FindByTrackingNumber(ctx, number)
	if err != nil {
		return TrackingInfo{}, translateDeliveryRepoError(err)
	}

	info := TrackingInfo{Delivery: delivery, OrderID: delivery.OrderID}
	order, err := s.orders.FindByID(ctx, delivery.OrderID)
	if err == nil {
		info.OrderStatus = order.Status
	} else if !isRepoNotFound(err) {
		return TrackingInfo{}, translateDeliveryRepoError(err)
	}
	return info, nil
}

func (s *deliveryService) byOrder(ctx context.Context, orderID string) (Delivery, error) {
	id := strings.TrimSpace(orderID)
	if id == "" {
		return Delivery{}, fmt.Errorf("%w: order id is required", ErrDeliveryInvalidInput)
	}

	delivery, err := s.repo.FindByOrder(ctx, id)
	if err != nil {
		return Delivery{}, translateDeliveryRepoError(err)
	}
	return delivery, nil
}

func translateDeliveryRepoError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrDeliveryNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrDeliveryInvalidInput, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrDeliveryUnavailable, err)
		}
	}
	return fmt.Errorf("%w: %v", ErrDeliveryUnavailable, err)
}
