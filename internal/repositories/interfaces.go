package repositories

import (
	"context"
	"time"

	domain "github.com/elegance-boutique/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Products() ProductRepository
	Carts() CartRepository
	Orders() OrderRepository
	Payments() PaymentRepository
	Deliveries() DeliveryRepository
	Invoices() InvoiceRepository
	Health() HealthRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork allows grouping repository operations in a transactional boundary when supported.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// ProductRepository persists catalogue products and owns every stock mutation.
type ProductRepository interface {
	Insert(ctx context.Context, product domain.Product) error
	Update(ctx context.Context, product domain.Product) error
	FindByID(ctx context.Context, productID string) (domain.Product, error)
	FindByIDs(ctx context.Context, productIDs []string) (map[string]domain.Product, error)
	List(ctx context.Context, filter ProductListFilter) ([]domain.Product, error)

	// ReserveStock decrements stock by qty only when at least qty units remain.
	// A conflict error reports insufficient stock; callers decide rollback.
	ReserveStock(ctx context.Context, productID string, qty int) error
	// ReleaseStock returns previously reserved units to the sellable pool.
	ReleaseStock(ctx context.Context, productID string, qty int) error
	// SetStock overwrites the absolute stock level (admin replenishment).
	SetStock(ctx context.Context, productID string, qty int, now time.Time) error
}

// ProductListFilter narrows catalogue listings.
type ProductListFilter struct {
	Category      string
	IncludeHidden bool
	Pagination    domain.Pagination
}

// CartRepository owns the persisted cart backing for identified users.
type CartRepository interface {
	GetCart(ctx context.Context, userID string) (domain.Cart, error)
	UpsertCart(ctx context.Context, cart domain.Cart) (domain.Cart, error)
	ReplaceItems(ctx context.Context, userID string, items []domain.CartItem, now time.Time) (domain.Cart, error)
	Clear(ctx context.Context, userID string) error
}

// OrderRepository persists order headers plus their snapshotted items.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	Update(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) ([]domain.Order, error)
}

// OrderListFilter narrows order listings for users and admins.
type OrderListFilter struct {
	UserID     string
	Status     []domain.OrderStatus
	DateRange  domain.RangeQuery[time.Time]
	Pagination domain.Pagination
}

// PaymentRepository stores charge attempts underneath an order.
type PaymentRepository interface {
	Insert(ctx context.Context, payment domain.Payment) error
	Update(ctx context.Context, payment domain.Payment) error
	ListByOrder(ctx context.Context, orderID string) ([]domain.Payment, error)
}

// DeliveryRepository stores shipment records. TrackingNumber carries a unique
// constraint; Insert surfaces collisions as conflict errors.
type DeliveryRepository interface {
	Insert(ctx context.Context, delivery domain.Delivery) error
	Update(ctx context.Context, delivery domain.Delivery) error
	FindByOrder(ctx context.Context, orderID string) (domain.Delivery, error)
	FindByTrackingNumber(ctx context.Context, trackingNumber string) (domain.Delivery, error)
}

// InvoiceRepository stores issued invoices and their lines.
type InvoiceRepository interface {
	Insert(ctx context.Context, invoice domain.Invoice) error
	FindByOrder(ctx context.Context, orderID string) (domain.Invoice, error)
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
