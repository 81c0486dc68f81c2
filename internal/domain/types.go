package domain

import (
	"time"
)

// Pagination defines standard offset-based paging inputs for list operations.
type Pagination struct {
	Limit  int
	Offset int
}

// SortOrder indicates ascending or descending ordering for list queries.
type SortOrder string

const (
	// SortAsc sorts results in ascending order.
	SortAsc SortOrder = "asc"
	// SortDesc sorts results in descending order.
	SortDesc SortOrder = "desc"
)

// RangeQuery represents inclusive range filters for numeric or timestamp fields.
type RangeQuery[T comparable] struct {
	From *T
	To   *T
}

// Product is a catalogue entry. Prices are integer cents; StockQty is the
// current sellable quantity and is only ever mutated through reservation and
// release operations.
type Product struct {
	ID          string
	Name        string
	Description string
	Category    string
	PriceCents  int64
	StockQty    int
	ImageURL    string
	Active      bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Cart aggregates the persisted shopping cart state for a user. Quantities
// are keyed by product id; the session cookie carries the same shape.
type Cart struct {
	ID        string
	UserID    string
	Items     []CartItem
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CartItem is a single cart line referencing a catalogue product.
type CartItem struct {
	ProductID string
	Quantity  int
	AddedAt   time.Time
}

// CartView is a cart resolved against live catalogue data for display.
type CartView struct {
	Lines      []CartViewLine
	TotalCents int64
	ItemCount  int
}

// CartViewLine carries the display fields for one resolved cart line.
// Unavailable lines keep their quantity but price as zero so the renderer can
// flag them instead of dropping them silently.
type CartViewLine struct {
	ProductID      string
	Name           string
	UnitPriceCents int64
	Quantity       int
	LineTotalCents int64
	Unavailable    bool
}

// OrderStatus enumerates the order lifecycle states.
type OrderStatus string

const (
	// OrderStatusCreated is the initial state after checkout reserved stock.
	OrderStatusCreated OrderStatus = "CREATED"
	// OrderStatusValidated marks an order reviewed and cleared for payment.
	OrderStatusValidated OrderStatus = "VALIDATED"
	// OrderStatusPaid marks a successfully charged order.
	OrderStatusPaid OrderStatus = "PAID"
	// OrderStatusShipped marks an order handed to the carrier.
	OrderStatusShipped OrderStatus = "SHIPPED"
	// OrderStatusDelivered marks an order received by the customer.
	OrderStatusDelivered OrderStatus = "DELIVERED"
	// OrderStatusCancelled marks an order aborted before fulfilment completed.
	OrderStatusCancelled OrderStatus = "CANCELLED"
	// OrderStatusRefunded marks a paid order whose payment was returned.
	OrderStatusRefunded OrderStatus = "REFUNDED"
)

// Order is the immutable record of a checkout. Items snapshot the product
// name and unit price at creation time; later catalogue edits never change
// an existing order.
type Order struct {
	ID           string
	UserID       string
	Status       OrderStatus
	TotalCents   int64
	Items        []OrderItem
	CreatedAt    time.Time
	UpdatedAt    time.Time
	ValidatedAt  *time.Time
	PaidAt       *time.Time
	ShippedAt    *time.Time
	DeliveredAt  *time.Time
	CancelledAt  *time.Time
	RefundedAt   *time.Time
	CancelReason string

	// Populated on demand by read options.
	Payments []Payment
	Delivery *Delivery
	Invoice  *Invoice
}

// OrderItem is one snapshotted line of an order.
type OrderItem struct {
	ID             int64
	OrderID        string
	ProductID      string
	ProductName    string
	UnitPriceCents int64
	Quantity       int
}

// PaymentStatus enumerates normalised payment states.
type PaymentStatus string

const (
	// PaymentStatusSucceeded indicates the charge was captured.
	PaymentStatusSucceeded PaymentStatus = "succeeded"
	// PaymentStatusFailed indicates the charge was declined.
	PaymentStatusFailed PaymentStatus = "failed"
	// PaymentStatusRefunded indicates the captured amount was returned.
	PaymentStatusRefunded PaymentStatus = "refunded"
)

// Payment records one charge attempt against an order.
type Payment struct {
	ID             string
	OrderID        string
	Provider       string
	AmountCents    int64
	Status         PaymentStatus
	TransactionRef string
	FailureReason  string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	RefundedAt     *time.Time
}

// DeliveryStatus enumerates carrier-facing delivery states.
type DeliveryStatus string

const (
	// DeliveryStatusPending indicates the parcel has not left the warehouse.
	DeliveryStatusPending DeliveryStatus = "pending"
	// DeliveryStatusShipped indicates the parcel is with the carrier.
	DeliveryStatusShipped DeliveryStatus = "shipped"
	// DeliveryStatusDelivered indicates the parcel reached the customer.
	DeliveryStatusDelivered DeliveryStatus = "delivered"
)

// Delivery tracks the shipment of one order. TrackingNumber is unique across
// all deliveries and is the public lookup key.
type Delivery struct {
	ID             string
	OrderID        string
	TrackingNumber string
	Carrier        string
	Status         DeliveryStatus
	CreatedAt      time.Time
	UpdatedAt      time.Time
	ShippedAt      *time.Time
	DeliveredAt    *time.Time
}

// Invoice is issued once per successfully charged order.
type Invoice struct {
	ID         string
	OrderID    string
	Number     string
	TotalCents int64
	IssuedAt   time.Time
	Lines      []InvoiceLine
}

// InvoiceLine mirrors one order item on the issued invoice.
type InvoiceLine struct {
	ID             int64
	InvoiceID      string
	Description    string
	UnitPriceCents int64
	Quantity       int
	TotalCents     int64
}

// SystemHealthReport summarises dependency status for readiness probes.
type SystemHealthReport struct {
	Healthy    bool
	Components map[string]ComponentHealth
	CheckedAt  time.Time
}

// ComponentHealth captures the probe outcome for one dependency.
type ComponentHealth struct {
	Healthy bool
	Detail  string
}
