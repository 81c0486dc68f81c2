package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/elegance-boutique/api/internal/domain"
	"github.com/elegance-boutique/api/internal/payments"
	"github.com/elegance-boutique/api/internal/repositories"
)

var (
	errOrderRepositoryRequired = errors.New("order service: order repository is required")
	errOrderProductsRequired   = errors.New("order service: product repository is required")
	errOrderPaymentsRequired   = errors.New("order service: payment repository is required")
	errOrderInvoicesRequired   = errors.New("order service: invoice repository is required")
	errOrderDeliveriesRequired = errors.New("order service: delivery coordinator is required")
	errOrderGatewayRequired    = errors.New("order service: payment gateway is required")
	errOrderClockRequired      = errors.New("order service: clock is required")
)

const (
	defaultOrderPageSize = 50
	maxOrderPageSize     = 200
	defaultCurrency      = "EUR"
)

// ErrOrderInvalidInput indicates the caller supplied invalid input.
var ErrOrderInvalidInput = errors.New("order service: invalid input")

// ErrOrderNotFound indicates the requested order does not exist.
var ErrOrderNotFound = errors.New("order service: not found")

// ErrOrderConflict indicates the order could not be updated due to concurrent modifications.
var ErrOrderConflict = errors.New("order service: conflict")

// ErrOrderUnavailable indicates the order backend cannot fulfil the request.
var ErrOrderUnavailable = errors.New("order service: unavailable")

// ErrOrderEmptyCart indicates checkout was attempted with no items.
var ErrOrderEmptyCart = errors.New("order service: cart is empty")

// ErrOrderProductUnavailable indicates a cart line references a missing or hidden product.
var ErrOrderProductUnavailable = errors.New("order service: product unavailable")

// ErrOrderInsufficientStock indicates a cart line asked for more units than remain.
var ErrOrderInsufficientStock = errors.New("order service: insufficient stock")

// ErrOrderInvalidState indicates the requested transition is not allowed from the current status.
var ErrOrderInvalidState = errors.New("order service: invalid state transition")

// ErrOrderPaymentDeclined indicates the acquirer refused the charge.
var ErrOrderPaymentDeclined = errors.New("order service: payment declined")

// orderStateTransitions encodes the lifecycle graph. Absent entries are
// terminal states.
var orderStateTransitions = map[domain.OrderStatus][]domain.OrderStatus{
	domain.OrderStatusCreated:   {domain.OrderStatusValidated, domain.OrderStatusPaid, domain.OrderStatusCancelled},
	domain.OrderStatusValidated: {domain.OrderStatusPaid, domain.OrderStatusCancelled},
	domain.OrderStatusPaid:      {domain.OrderStatusShipped, domain.OrderStatusCancelled, domain.OrderStatusRefunded},
	domain.OrderStatusShipped:   {domain.OrderStatusDelivered, domain.OrderStatusRefunded},
	domain.OrderStatusDelivered: {domain.OrderStatusRefunded},
}

func canTransition(current, target domain.OrderStatus) bool {
	if current == target {
		return true
	}
	for _, next := range orderStateTransitions[current] {
		if next == target {
			return true
		}
	}
	return false
}

// paymentGateway is the slice of the payments manager the order flow needs.
type paymentGateway interface {
	Charge(ctx context.Context, provider string, req payments.ChargeRequest) (payments.Result, error)
	Refund(ctx context.Context, provider string, req payments.RefundRequest) (payments.Result, error)
}

// deliveryCoordinator provisions and advances shipments alongside order transitions.
type deliveryCoordinator interface {
	Provision(ctx context.Context, cmd ProvisionDeliveryCommand) (Delivery, error)
	MarkShipped(ctx context.Context, orderID string, now time.Time) (Delivery, error)
	MarkDelivered(ctx context.Context, orderID string, now time.Time) (Delivery, error)
	ByOrder(ctx context.Context, orderID string) (Delivery, error)
}

// OrderServiceDeps wires repositories, the payment gateway, and the delivery
// coordinator for order lifecycle operations.
type OrderServiceDeps struct {
	Orders      repositories.OrderRepository
	Products    repositories.ProductRepository
	Payments    repositories.PaymentRepository
	Invoices    repositories.InvoiceRepository
	Deliveries  deliveryCoordinator
	Gateway     paymentGateway
	UnitOfWork  repositories.UnitOfWork
	Clock       func() time.Time
	IDGenerator func() string
	Currency    string
	Logger      func(context.Context, string, map[string]any)
}

type orderService struct {
	orders     repositories.OrderRepository
	products   repositories.ProductRepository
	payments   repositories.PaymentRepository
	invoices   repositories.InvoiceRepository
	deliveries deliveryCoordinator
	gateway    paymentGateway
	unitOfWork repositories.UnitOfWork
	now        func() time.Time
	newID      func() string
	currency   string
	logger     func(context.Context, string, map[string]any)
}

// NewOrderService constructs an OrderService enforcing dependency validation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errOrderRepositoryRequired
	}
	if deps.Products == nil {
		return nil, errOrderProductsRequired
	}
	if deps.Payments == nil {
		return nil, errOrderPaymentsRequired
	}
	if deps.Invoices == nil {
		return nil, errOrderInvoicesRequired
	}
	if deps.Deliveries == nil {
		return nil, errOrderDeliveriesRequired
	}
	if deps.Gateway == nil {
		return nil, errOrderGatewayRequired
	}
	if deps.Clock == nil {
		return nil, errOrderClockRequired
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}

	currency := strings.ToUpper(strings.TrimSpace(deps.Currency))
	if currency == "" {
		currency = defaultCurrency
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	service := &orderService{
		orders:     deps.Orders,
		products:   deps.Products,
		payments:   deps.Payments,
		invoices:   deps.Invoices,
		deliveries: deps.Deliveries,
		gateway:    deps.Gateway,
		unitOfWork: deps.UnitOfWork,
		now:        func() time.Time { return deps.Clock().UTC() },
		newID:      idGen,
		currency:   currency,
		logger:     logger,
	}
	return service, nil
}

// CreateOrder snapshots the cart into an order after reserving stock for every
// line inside one transaction. Reservations walk product ids in ascending
// order so concurrent checkouts touching the same products cannot deadlock;
// any failed line rolls back every earlier decrement.
func (s *orderService) CreateOrder(ctx context.Context, cmd CreateOrderCommand) (Order, error) {
	if s == nil || s.orders == nil {
		return Order{}, ErrOrderUnavailable
	}

	uid := strings.TrimSpace(cmd.UserID)
	if uid == "" {
		return Order{}, fmt.Errorf("%w: user id is required", ErrOrderInvalidInput)
	}

	items := normaliseCartItems(cmd.Items)
	if len(items) == 0 {
		return Order{}, ErrOrderEmptyCart
	}

	ids := make([]string, 0, len(items))
	for id := range items {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	now := s.now()
	order := Order{
		ID:        "ord_" + s.newID(),
		UserID:    uid,
		Status:    domain.OrderStatusCreated,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := s.runInTx(ctx, func(txCtx context.Context) error {
		products, err := s.products.FindByIDs(txCtx, ids)
		if err != nil {
			return s.mapRepositoryError(err)
		}

		for _, id := range ids {
			product, ok := products[id]
			if !ok || !product.Active {
				return fmt.Errorf("%w: %s", ErrOrderProductUnavailable, id)
			}

			qty := items[id]
			if err := s.products.ReserveStock(txCtx, id, qty); err != nil {
				if isRepoConflict(err) {
					return fmt.Errorf("%w: %s", ErrOrderInsufficientStock, id)
				}
				if isRepoNotFound(err) {
					return fmt.Errorf("%w: %s", ErrOrderProductUnavailable, id)
				}
				return s.mapRepositoryError(err)
			}

			order.Items = append(order.Items, OrderItem{
				OrderID:        order.ID,
				ProductID:      id,
				ProductName:    product.Name,
				UnitPriceCents: product.PriceCents,
				Quantity:       qty,
			})
			order.TotalCents += product.PriceCents * int64(qty)
		}

		if err := s.orders.Insert(txCtx, domain.Order(order)); err != nil {
			return s.mapRepositoryError(err)
		}
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	s.logger(ctx, "order.created", map[string]any{
		"orderID":    order.ID,
		"userID":     uid,
		"totalCents": order.TotalCents,
		"lines":      len(order.Items),
	})
	return order, nil
}

// Validate clears a freshly created order for payment.
func (s *orderService) Validate(ctx context.Context, cmd ValidateOrderCommand) (Order, error) {
	if s == nil || s.orders == nil {
		return Order{}, ErrOrderUnavailable
	}

	order, err := s.loadOrder(ctx, cmd.OrderID)
	if err != nil {
		return Order{}, err
	}

	now := s.now()
	if _, err := applyStatusTransition(&order, domain.OrderStatusValidated, now); err != nil {
		return Order{}, err
	}
	if err := s.orders.Update(ctx, domain.Order(order)); err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	return order, nil
}

// Charge runs one payment attempt against the order. A repeated call on an
// already paid order returns it unchanged instead of double charging. On
// success the payment record, the invoice, the PAID transition, and the
// pending delivery all commit in one transaction.
func (s *orderService) Charge(ctx context.Context, cmd ChargeOrderCommand) (Order, error) {
	if s == nil || s.orders == nil {
		return Order{}, ErrOrderUnavailable
	}

	order, err := s.loadOrder(ctx, cmd.OrderID)
	if err != nil {
		return Order{}, err
	}

	if order.Status == domain.OrderStatusPaid {
		return s.attachRelated(ctx, order, OrderReadOptions{IncludePayments: true, IncludeDelivery: true, IncludeInvoice: true})
	}
	if !canTransition(order.Status, domain.OrderStatusPaid) {
		return Order{}, fmt.Errorf("%w: %s -> %s", ErrOrderInvalidState, order.Status, domain.OrderStatusPaid)
	}

	result, err := s.gateway.Charge(ctx, cmd.Provider, payments.ChargeRequest{
		OrderID:     order.ID,
		AmountCents: order.TotalCents,
		Currency:    s.currency,
		Card: payments.Card{
			Number:   cmd.CardNumber,
			Holder:   cmd.CardHolder,
			ExpMonth: cmd.ExpMonth,
			ExpYear:  cmd.ExpYear,
			CVC:      cmd.CVC,
		},
	})
	if err != nil {
		if errors.Is(err, payments.ErrInvalidCard) || errors.Is(err, payments.ErrUnsupportedProvider) {
			return Order{}, fmt.Errorf("%w: %v", ErrOrderInvalidInput, err)
		}
		return Order{}, fmt.Errorf("%w: %v", ErrOrderUnavailable, err)
	}

	now := s.now()
	payment := Payment{
		ID:             "pay_" + s.newID(),
		OrderID:        order.ID,
		Provider:       result.Provider,
		AmountCents:    order.TotalCents,
		Status:         domain.PaymentStatus(result.Status),
		TransactionRef: result.TransactionRef,
		FailureReason:  result.FailureReason,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if result.Status != payments.StatusSucceeded {
		// The failed attempt is still recorded so support can see declines.
		if err := s.payments.Insert(ctx, domain.Payment(payment)); err != nil {
			s.logger(ctx, "order.payment_record_failed", map[string]any{
				"orderID": order.ID,
				"error":   err.Error(),
			})
		}
		s.logger(ctx, "order.payment_declined", map[string]any{
			"orderID": order.ID,
			"reason":  result.FailureReason,
		})
		return Order{}, fmt.Errorf("%w: %s", ErrOrderPaymentDeclined, result.FailureReason)
	}

	invoice := s.buildInvoice(order, now)
	var delivery Delivery
	alreadyPaid := false
	err = s.runInTx(ctx, func(txCtx context.Context) error {
		fresh, err := s.loadOrder(txCtx, order.ID)
		if err != nil {
			return err
		}
		if fresh.Status == domain.OrderStatusPaid {
			order = fresh
			alreadyPaid = true
			return nil
		}
		if _, err := applyStatusTransition(&fresh, domain.OrderStatusPaid, now); err != nil {
			return err
		}
		if err := s.orders.Update(txCtx, domain.Order(fresh)); err != nil {
			return s.mapRepositoryError(err)
		}
		if err := s.payments.Insert(txCtx, domain.Payment(payment)); err != nil {
			return s.mapRepositoryError(err)
		}
		if err := s.invoices.Insert(txCtx, domain.Invoice(invoice)); err != nil {
			return s.mapRepositoryError(err)
		}
		provisioned, err := s.deliveries.Provision(txCtx, ProvisionDeliveryCommand{OrderID: order.ID})
		if err != nil {
			return err
		}
		delivery = provisioned
		order = fresh
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	if alreadyPaid {
		return s.attachRelated(ctx, order, OrderReadOptions{IncludePayments: true, IncludeDelivery: true, IncludeInvoice: true})
	}

	order.Payments = append(order.Payments, payment)
	order.Invoice = &invoice
	order.Delivery = &delivery

	s.logger(ctx, "order.paid", map[string]any{
		"orderID":        order.ID,
		"transactionRef": payment.TransactionRef,
		"amountCents":    payment.AmountCents,
	})
	return order, nil
}

// CheckoutAndPay composes CreateOrder and Charge into the single-step flow.
// When the charge is declined the created order survives in CREATED so the
// customer can retry payment; it is returned alongside the error.
func (s *orderService) CheckoutAndPay(ctx context.Context, cmd CheckoutCommand) (Order, error) {
	order, err := s.CreateOrder(ctx, CreateOrderCommand{UserID: cmd.UserID, Items: cmd.Items})
	if err != nil {
		return Order{}, err
	}

	paid, err := s.Charge(ctx, ChargeOrderCommand{
		OrderID:    order.ID,
		ActorID:    cmd.UserID,
		Provider:   cmd.Provider,
		CardNumber: cmd.CardNumber,
		CardHolder: cmd.CardHolder,
		ExpMonth:   cmd.ExpMonth,
		ExpYear:    cmd.ExpYear,
		CVC:        cmd.CVC,
	})
	if err != nil {
		return order, err
	}
	return paid, nil
}

// MarkShipped moves a paid order to SHIPPED and stamps a fresh tracking
// number on its delivery.
func (s *orderService) MarkShipped(ctx context.Context, cmd MarkShippedCommand) (Order, error) {
	if s == nil || s.orders == nil {
		return Order{}, ErrOrderUnavailable
	}

	order, err := s.loadOrder(ctx, cmd.OrderID)
	if err != nil {
		return Order{}, err
	}

	now := s.now()
	if order.Status != domain.OrderStatusShipped {
		if _, err := applyStatusTransition(&order, domain.OrderStatusShipped, now); err != nil {
			return Order{}, err
		}
	}

	var delivery Delivery
	err = s.runInTx(ctx, func(txCtx context.Context) error {
		if err := s.orders.Update(txCtx, domain.Order(order)); err != nil {
			return s.mapRepositoryError(err)
		}
		shipped, err := s.deliveries.MarkShipped(txCtx, order.ID, now)
		if err != nil {
			return err
		}
		delivery = shipped
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	order.Delivery = &delivery
	s.logger(ctx, "order.shipped", map[string]any{
		"orderID":        order.ID,
		"trackingNumber": delivery.TrackingNumber,
	})
	return order, nil
}

// MarkDelivered records customer receipt on both the order and its delivery.
func (s *orderService) MarkDelivered(ctx context.Context, cmd MarkDeliveredCommand) (Order, error) {
	if s == nil || s.orders == nil {
		return Order{}, ErrOrderUnavailable
	}

	order, err := s.loadOrder(ctx, cmd.OrderID)
	if err != nil {
		return Order{}, err
	}

	now := s.now()
	if order.Status != domain.OrderStatusDelivered {
		if _, err := applyStatusTransition(&order, domain.OrderStatusDelivered, now); err != nil {
			return Order{}, err
		}
	}

	var delivery Delivery
	err = s.runInTx(ctx, func(txCtx context.Context) error {
		if err := s.orders.Update(txCtx, domain.Order(order)); err != nil {
			return s.mapRepositoryError(err)
		}
		delivered, err := s.deliveries.MarkDelivered(txCtx, order.ID, now)
		if err != nil {
			return err
		}
		delivery = delivered
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	order.Delivery = &delivery
	return order, nil
}

// Cancel aborts an order before fulfilment completed. Reserved stock returns
// to the sellable pool; a captured payment is refunded through the acquirer
// first so the database never records a refund that did not happen.
func (s *orderService) Cancel(ctx context.Context, cmd CancelOrderCommand) (Order, error) {
	if s == nil || s.orders == nil {
		return Order{}, ErrOrderUnavailable
	}

	order, err := s.loadOrder(ctx, cmd.OrderID)
	if err != nil {
		return Order{}, err
	}
	if order.Status == domain.OrderStatusCancelled {
		return order, nil
	}
	if !canTransition(order.Status, domain.OrderStatusCancelled) {
		return Order{}, fmt.Errorf("%w: %s -> %s", ErrOrderInvalidState, order.Status, domain.OrderStatusCancelled)
	}

	var refunded *Payment
	if order.Status == domain.OrderStatusPaid {
		payment, err := s.refundCapturedPayment(ctx, order, cmd.Reason)
		if err != nil {
			return Order{}, err
		}
		refunded = payment
	}

	now := s.now()
	if _, err := applyStatusTransition(&order, domain.OrderStatusCancelled, now); err != nil {
		return Order{}, err
	}
	order.CancelReason = strings.TrimSpace(cmd.Reason)

	err = s.runInTx(ctx, func(txCtx context.Context) error {
		for _, item := range order.Items {
			if err := s.products.ReleaseStock(txCtx, item.ProductID, item.Quantity); err != nil && !isRepoNotFound(err) {
				return s.mapRepositoryError(err)
			}
		}
		if refunded != nil {
			if err := s.payments.Update(txCtx, domain.Payment(*refunded)); err != nil {
				return s.mapRepositoryError(err)
			}
		}
		if err := s.orders.Update(txCtx, domain.Order(order)); err != nil {
			return s.mapRepositoryError(err)
		}
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	s.logger(ctx, "order.cancelled", map[string]any{
		"orderID": order.ID,
		"reason":  order.CancelReason,
	})
	return order, nil
}

// Refund returns the captured amount without restocking: the goods either
// shipped already or come back through a separate returns flow.
func (s *orderService) Refund(ctx context.Context, cmd RefundOrderCommand) (Order, error) {
	if s == nil || s.orders == nil {
		return Order{}, ErrOrderUnavailable
	}

	order, err := s.loadOrder(ctx, cmd.OrderID)
	if err != nil {
		return Order{}, err
	}
	if order.Status == domain.OrderStatusRefunded {
		return order, nil
	}
	if !canTransition(order.Status, domain.OrderStatusRefunded) {
		return Order{}, fmt.Errorf("%w: %s -> %s", ErrOrderInvalidState, order.Status, domain.OrderStatusRefunded)
	}

	payment, err := s.refundCapturedPayment(ctx, order, cmd.Reason)
	if err != nil {
		return Order{}, err
	}

	now := s.now()
	if _, err := applyStatusTransition(&order, domain.OrderStatusRefunded, now); err != nil {
		return Order{}, err
	}

	err = s.runInTx(ctx, func(txCtx context.Context) error {
		if err := s.payments.Update(txCtx, domain.Payment(*payment)); err != nil {
			return s.mapRepositoryError(err)
		}
		if err := s.orders.Update(txCtx, domain.Order(order)); err != nil {
			return s.mapRepositoryError(err)
		}
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	s.logger(ctx, "order.refunded", map[string]any{
		"orderID":        order.ID,
		"transactionRef": payment.TransactionRef,
	})
	return order, nil
}

func (s *orderService) GetOrder(ctx context.Context, orderID string, opts OrderReadOptions) (Order, error) {
	if s == nil || s.orders == nil {
		return Order{}, ErrOrderUnavailable
	}

	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	return s.attachRelated(ctx, order, opts)
}

func (s *orderService) ListUserOrders(ctx context.Context, userID string, pager Pagination) ([]Order, error) {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrOrderInvalidInput)
	}
	return s.ListOrders(ctx, OrderListFilter{UserID: uid, Pagination: pager})
}

func (s *orderService) ListOrders(ctx context.Context, filter OrderListFilter) ([]Order, error) {
	if s == nil || s.orders == nil {
		return nil, ErrOrderUnavailable
	}

	if filter.Pagination.Limit <= 0 {
		filter.Pagination.Limit = defaultOrderPageSize
	}
	if filter.Pagination.Limit > maxOrderPageSize {
		filter.Pagination.Limit = maxOrderPageSize
	}
	if filter.Pagination.Offset < 0 {
		filter.Pagination.Offset = 0
	}

	orders, err := s.orders.List(ctx, filter)
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	return orders, nil
}

// refundCapturedPayment pushes the refund through the acquirer and returns the
// updated payment record, not yet persisted.
func (s *orderService) refundCapturedPayment(ctx context.Context, order Order, reason string) (*Payment, error) {
	records, err := s.payments.ListByOrder(ctx, order.ID)
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}

	captured := latestSucceededPayment(records)
	if captured == nil {
		return nil, fmt.Errorf("%w: no captured payment to refund", ErrOrderInvalidState)
	}

	result, err := s.gateway.Refund(ctx, captured.Provider, payments.RefundRequest{
		TransactionRef: captured.TransactionRef,
		AmountCents:    captured.AmountCents,
		Reason:         strings.TrimSpace(reason),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOrderUnavailable, err)
	}
	if result.Status != payments.StatusRefunded {
		return nil, fmt.Errorf("%w: refund was not accepted", ErrOrderUnavailable)
	}

	now := s.now()
	payment := Payment(*captured)
	payment.Status = domain.PaymentStatusRefunded
	payment.UpdatedAt = now
	payment.RefundedAt = &now
	return &payment, nil
}

func (s *orderService) buildInvoice(order Order, now time.Time) Invoice {
	invoice := Invoice{
		ID:         "inv_" + s.newID(),
		OrderID:    order.ID,
		Number:     invoiceNumber(order.ID, now),
		TotalCents: order.TotalCents,
		IssuedAt:   now,
	}
	for _, item := range order.Items {
		invoice.Lines = append(invoice.Lines, InvoiceLine{
			Description:    item.ProductName,
			UnitPriceCents: item.UnitPriceCents,
			Quantity:       item.Quantity,
			TotalCents:     item.UnitPriceCents * int64(item.Quantity),
		})
	}
	return invoice
}

// invoiceNumber derives a stable human-facing reference from the order id.
func invoiceNumber(orderID string, now time.Time) string {
	ref := strings.TrimPrefix(orderID, "ord_")
	if len(ref) > 8 {
		ref = ref[len(ref)-8:]
	}
	return fmt.Sprintf("INV-%d-%s", now.Year(), strings.ToUpper(ref))
}

func (s *orderService) loadOrder(ctx context.Context, orderID string) (Order, error) {
	id := strings.TrimSpace(orderID)
	if id == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, id)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	return order, nil
}

func (s *orderService) attachRelated(ctx context.Context, order Order, opts OrderReadOptions) (Order, error) {
	if opts.IncludePayments {
		records, err := s.payments.ListByOrder(ctx, order.ID)
		if err != nil {
			return Order{}, s.mapRepositoryError(err)
		}
		order.Payments = records
	}
	if opts.IncludeDelivery {
		delivery, err := s.deliveries.ByOrder(ctx, order.ID)
		if err != nil && !errors.Is(err, ErrDeliveryNotFound) {
			return Order{}, err
		}
		if err == nil {
			order.Delivery = &delivery
		}
	}
	if opts.IncludeInvoice {
		invoice, err := s.invoices.FindByOrder(ctx, order.ID)
		if err != nil && !isRepoNotFound(err) {
			return Order{}, s.mapRepositoryError(err)
		}
		if err == nil {
			order.Invoice = &invoice
		}
	}
	return order, nil
}

// applyStatusTransition mutates the order in place, returning the previous
// status. A same-status call is a no-op success so retried requests stay
// idempotent.
func applyStatusTransition(order *Order, target domain.OrderStatus, now time.Time) (domain.OrderStatus, error) {
	current := order.Status
	if current == target {
		return current, nil
	}
	if !canTransition(current, target) {
		return "", fmt.Errorf("%w: %s -> %s", ErrOrderInvalidState, current, target)
	}

	order.Status = target
	order.UpdatedAt = now
	updateOrderTimestamps(order, target, now)
	return current, nil
}

func updateOrderTimestamps(order *Order, status domain.OrderStatus, now time.Time) {
	switch status {
	case domain.OrderStatusValidated:
		order.ValidatedAt = &now
	case domain.OrderStatusPaid:
		order.PaidAt = &now
	case domain.OrderStatusShipped:
		order.ShippedAt = &now
	case domain.OrderStatusDelivered:
		order.DeliveredAt = &now
	case domain.OrderStatusCancelled:
		if order.CancelledAt == nil {
			order.CancelledAt = &now
		}
	case domain.OrderStatusRefunded:
		order.RefundedAt = &now
	}
}

func latestSucceededPayment(records []domain.Payment) *domain.Payment {
	for i := len(records) - 1; i >= 0; i-- {
		if records[i].Status == domain.PaymentStatusSucceeded {
			payment := records[i]
			return &payment
		}
	}
	return nil
}

func (s *orderService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrOrderUnavailable, err)
		}
	}
	return fmt.Errorf("%w: %v", ErrOrderUnavailable, err)
}

func (s *orderService) runInTx(ctx context.Context, fn func(context.Context) error) error {
	if s.unitOfWork == nil {
		return fn(ctx)
	}
	return s.unitOfWork.RunInTx(ctx, fn)
}

func isRepoConflict(err error) bool {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		return repoErr.IsConflict()
	}
	return false
}
