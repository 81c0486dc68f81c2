package services

import (
	"context"
	"time"

	domain "github.com/elegance-boutique/api/internal/domain"
	"github.com/elegance-boutique/api/internal/repositories"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination         = domain.Pagination
	SortOrder          = domain.SortOrder
	Product            = domain.Product
	Cart               = domain.Cart
	CartItem           = domain.CartItem
	CartView           = domain.CartView
	CartViewLine       = domain.CartViewLine
	Order              = domain.Order
	OrderItem          = domain.OrderItem
	OrderStatus        = domain.OrderStatus
	Payment            = domain.Payment
	PaymentStatus      = domain.PaymentStatus
	Delivery           = domain.Delivery
	DeliveryStatus     = domain.DeliveryStatus
	Invoice            = domain.Invoice
	InvoiceLine        = domain.InvoiceLine
	SystemHealthReport = domain.SystemHealthReport
)

// CatalogService manages the product catalogue for both storefront reads and admin writes.
type CatalogService interface {
	GetProduct(ctx context.Context, productID string) (Product, error)
	ListProducts(ctx context.Context, query ProductListQuery) ([]Product, error)
	CreateProduct(ctx context.Context, cmd CreateProductCommand) (Product, error)
	UpdateProduct(ctx context.Context, cmd UpdateProductCommand) (Product, error)
	SetStock(ctx context.Context, cmd SetStockCommand) (Product, error)
	DeactivateProduct(ctx context.Context, productID string) (Product, error)
}

// CartService reconciles the session-held cart with its persistent backing and
// serves priced cart views.
type CartService interface {
	AddItem(ctx context.Context, cmd AddCartItemCommand) (CartResult, error)
	RemoveItem(ctx context.Context, cmd RemoveCartItemCommand) (CartResult, error)
	SetItemQuantity(ctx context.Context, cmd SetCartQuantityCommand) (CartResult, error)
	View(ctx context.Context, state CartState) (CartView, error)
	Resolve(ctx context.Context, state CartState) (map[string]int, error)
	Clear(ctx context.Context, state CartState) (CartResult, error)
}

// OrderService owns the order lifecycle: snapshotting carts into orders,
// reserving stock, charging payment, and driving status transitions.
type OrderService interface {
	CreateOrder(ctx context.Context, cmd CreateOrderCommand) (Order, error)
	Validate(ctx context.Context, cmd ValidateOrderCommand) (Order, error)
	Charge(ctx context.Context, cmd ChargeOrderCommand) (Order, error)
	CheckoutAndPay(ctx context.Context, cmd CheckoutCommand) (Order, error)
	MarkShipped(ctx context.Context, cmd MarkShippedCommand) (Order, error)
	MarkDelivered(ctx context.Context, cmd MarkDeliveredCommand) (Order, error)
	Cancel(ctx context.Context, cmd CancelOrderCommand) (Order, error)
	Refund(ctx context.Context, cmd RefundOrderCommand) (Order, error)
	GetOrder(ctx context.Context, orderID string, opts OrderReadOptions) (Order, error)
	ListUserOrders(ctx context.Context, userID string, pager Pagination) ([]Order, error)
	ListOrders(ctx context.Context, filter OrderListFilter) ([]Order, error)
}

// DeliveryService provisions shipments, assigns tracking numbers, and serves
// public tracking lookups.
type DeliveryService interface {
	Provision(ctx context.Context, cmd ProvisionDeliveryCommand) (Delivery, error)
	MarkShipped(ctx context.Context, orderID string, now time.Time) (Delivery, error)
	MarkDelivered(ctx context.Context, orderID string, now time.Time) (Delivery, error)
	ByOrder(ctx context.Context, orderID string) (Delivery, error)
	Track(ctx context.Context, trackingNumber string) (TrackingInfo, error)
}

// SystemService aggregates utility endpoints such as health checks.
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}

// Command and DTO definitions ------------------------------------------------

type ProductListQuery struct {
	Category      string
	IncludeHidden bool
	Pagination
}

type CreateProductCommand struct {
	Name        string
	Description string
	Category    string
	PriceCents  int64
	StockQty    int
	ImageURL    string
}

type UpdateProductCommand struct {
	ProductID   string
	Name        *string
	Description *string
	Category    *string
	PriceCents  *int64
	ImageURL    *string
	Active      *bool
}

type SetStockCommand struct {
	ProductID string
	StockQty  int
}

// CartState carries the request-scoped cart inputs: the session copy of the
// cart and the identity of the caller, if any.
type CartState struct {
	UserID       string
	SessionItems map[string]int
}

// CartResult is the authoritative cart after a mutation. Items is what the
// caller should write back into the session; Persisted reports whether the
// durable backing also accepted the write.
type CartResult struct {
	Items     map[string]int
	Persisted bool
}

type AddCartItemCommand struct {
	State     CartState
	ProductID string
	Quantity  int
}

type RemoveCartItemCommand struct {
	State     CartState
	ProductID string
}

type SetCartQuantityCommand struct {
	State     CartState
	ProductID string
	Quantity  int
}

type OrderListFilter = repositories.OrderListFilter

type OrderReadOptions struct {
	IncludePayments bool
	IncludeDelivery bool
	IncludeInvoice  bool
}

type CreateOrderCommand struct {
	UserID string
	Items  map[string]int
}

type ValidateOrderCommand struct {
	OrderID string
	ActorID string
}

type ChargeOrderCommand struct {
	OrderID    string
	ActorID    string
	Provider   string
	CardNumber string
	CardHolder string
	ExpMonth   int
	ExpYear    int
	CVC        string
}

type CheckoutCommand struct {
	UserID     string
	Items      map[string]int
	Provider   string
	CardNumber string
	CardHolder string
	ExpMonth   int
	ExpYear    int
	CVC        string
}

type MarkShippedCommand struct {
	OrderID string
	ActorID string
}

type MarkDeliveredCommand struct {
	OrderID string
	ActorID string
}

type CancelOrderCommand struct {
	OrderID string
	ActorID string
	Reason  string
}

type RefundOrderCommand struct {
	OrderID string
	ActorID string
	Reason  string
}

type ProvisionDeliveryCommand struct {
	OrderID string
}

// TrackingInfo is the public view returned by tracking lookups.
type TrackingInfo struct {
	Delivery    Delivery
	OrderID     string
	OrderStatus OrderStatus
}
