package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/elegance-boutique/api/internal/platform/httpx"
	"github.com/elegance-boutique/api/internal/platform/session"
	"github.com/elegance-boutique/api/internal/services"
)

const maxOrderCancelBodySize = 4 * 1024

// OrderHandlers serves a customer's own orders.
type OrderHandlers struct {
	orders services.OrderService
}

// NewOrderHandlers constructs the customer order endpoints.
func NewOrderHandlers(orders services.OrderService) *OrderHandlers {
	return &OrderHandlers{orders: orders}
}

// Routes wires the /orders endpoints onto the provided router.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Group(func(r chi.Router) {
		r.Use(RequireUser)
		r.Get("/", h.listOrders)
		r.Get("/{orderID}", h.getOrder)
		r.Post("/{orderID}/cancel", h.cancelOrder)
	})
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := h.requireIdentity(w, r)
	if !ok {
		return
	}

	orders, err := h.orders.ListUserOrders(ctx, userID, queryPagination(r))
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	payload := orderListResponse{Orders: make([]orderPayload, 0, len(orders))}
	for _, order := range orders {
		payload.Orders = append(payload.Orders, buildOrderPayload(order))
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := h.requireIdentity(w, r)
	if !ok {
		return
	}

	order, err := h.orders.GetOrder(ctx, chi.URLParam(r, "orderID"), services.OrderReadOptions{
		IncludePayments: true,
		IncludeDelivery: true,
		IncludeInvoice:  true,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	if order.UserID != userID {
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

// cancelOrder lets a customer abort their own order before it ships.
func (h *OrderHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := h.requireIdentity(w, r)
	if !ok {
		return
	}

	var payload cancelOrderRequest
	body, err := readLimitedBody(r, maxOrderCancelBodySize)
	if err != nil && !errors.Is(err, errEmptyBody) {
		writeBodyError(r, w, err)
		return
	}
	if len(body) > 0 {
		if err := decodeStrictJSON(body, &payload); err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
			return
		}
	}

	orderID := chi.URLParam(r, "orderID")
	existing, err := h.orders.GetOrder(ctx, orderID, services.OrderReadOptions{})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	if existing.UserID != userID {
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
		return
	}

	order, err := h.orders.Cancel(ctx, services.CancelOrderCommand{
		OrderID: orderID,
		ActorID: userID,
		Reason:  strings.TrimSpace(payload.Reason),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) requireIdentity(w http.ResponseWriter, r *http.Request) (string, bool) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service is unavailable", http.StatusServiceUnavailable))
		return "", false
	}
	sess, ok := session.FromContext(ctx)
	if !ok || strings.TrimSpace(sess.UserID()) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return "", false
	}
	return sess.UserID(), true
}

func writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrOrderEmptyCart):
		httpx.WriteError(ctx, w, httpx.NewError("empty_cart", "cart is empty", http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderInsufficientStock):
		httpx.WriteError(ctx, w, httpx.NewError("insufficient_stock", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrOrderProductUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("product_unavailable", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrOrderPaymentDeclined):
		httpx.WriteError(ctx, w, httpx.NewError("payment_declined", "payment was declined", http.StatusPaymentRequired))
	case errors.Is(err, services.ErrOrderInvalidState):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_state", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderConflict):
		httpx.WriteError(ctx, w, httpx.NewError("order_conflict", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrOrderUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("order_error", "failed to serve order request", http.StatusInternalServerError))
	}
}

func buildOrderPayload(order services.Order) orderPayload {
	payload := orderPayload{
		ID:           order.ID,
		UserID:       order.UserID,
		Status:       string(order.Status),
		TotalCents:   order.TotalCents,
		CancelReason: order.CancelReason,
		CreatedAt:    formatTime(order.CreatedAt),
		UpdatedAt:    formatTime(order.UpdatedAt),
		ValidatedAt:  formatTimePtr(order.ValidatedAt),
		PaidAt:       formatTimePtr(order.PaidAt),
		ShippedAt:    formatTimePtr(order.ShippedAt),
		DeliveredAt:  formatTimePtr(order.DeliveredAt),
		CancelledAt:  formatTimePtr(order.CancelledAt),
		RefundedAt:   formatTimePtr(order.RefundedAt),
	}
	payload.Items = make([]orderItemPayload, 0, len(order.Items))
	for _, item := range order.Items {
		payload.Items = append(payload.Items, orderItemPayload{
			ProductID:      item.ProductID,
			ProductName:    item.ProductName,
			UnitPriceCents: item.UnitPriceCents,
			Quantity:       item.Quantity,
		})
	}
	for _, payment := range order.Payments {
		payload.Payments = append(payload.Payments, paymentPayload{
			ID:             payment.ID,
			Provider:       payment.Provider,
			AmountCents:    payment.AmountCents,
			Status:         string(payment.Status),
			TransactionRef: payment.TransactionRef,
			FailureReason:  payment.FailureReason,
			CreatedAt:      formatTime(payment.CreatedAt),
			RefundedAt:     formatTimePtr(payment.RefundedAt),
		})
	}
	if order.Delivery != nil {
		payload.Delivery = &deliveryPayload{
			ID:             order.Delivery.ID,
			TrackingNumber: order.Delivery.TrackingNumber,
			Carrier:        order.Delivery.Carrier,
			Status:         string(order.Delivery.Status),
			ShippedAt:      formatTimePtr(order.Delivery.ShippedAt),
			DeliveredAt:    formatTimePtr(order.Delivery.DeliveredAt),
		}
	}
	if order.Invoice != nil {
		invoice := invoicePayload{
			ID:         order.Invoice.ID,
			Number:     order.Invoice.Number,
			TotalCents: order.Invoice.TotalCents,
			IssuedAt:   formatTime(order.Invoice.IssuedAt),
		}
		for _, line := range order.Invoice.Lines {
			invoice.Lines = append(invoice.Lines, invoiceLinePayload{
				Description:    line.Description,
				UnitPriceCents: line.UnitPriceCents,
				Quantity:       line.Quantity,
				TotalCents:     line.TotalCents,
			})
		}
		payload.Invoice = &invoice
	}
	return payload
}

type cancelOrderRequest struct {
	Reason string `json:"reason,omitempty"`
}

type orderResponse struct {
	Order orderPayload `json:"order"`
}

type orderListResponse struct {
	Orders []orderPayload `json:"orders"`
}

type orderPayload struct {
	ID           string             `json:"id"`
	UserID       string             `json:"user_id"`
	Status       string             `json:"status"`
	TotalCents   int64              `json:"total_cents"`
	Items        []orderItemPayload `json:"items"`
	Payments     []paymentPayload   `json:"payments,omitempty"`
	Delivery     *deliveryPayload   `json:"delivery,omitempty"`
	Invoice      *invoicePayload    `json:"invoice,omitempty"`
	CancelReason string             `json:"cancel_reason,omitempty"`
	CreatedAt    string             `json:"created_at,omitempty"`
	UpdatedAt    string             `json:"updated_at,omitempty"`
	ValidatedAt  string             `json:"validated_at,omitempty"`
	PaidAt       string             `json:"paid_at,omitempty"`
	ShippedAt    string             `json:"shipped_at,omitempty"`
	DeliveredAt  string             `json:"delivered_at,omitempty"`
	CancelledAt  string             `json:"cancelled_at,omitempty"`
	RefundedAt   string             `json:"refunded_at,omitempty"`
}

type orderItemPayload struct {
	ProductID      string `json:"product_id"`
	ProductName    string `json:"product_name"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	Quantity       int    `json:"quantity"`
}

type paymentPayload struct {
	ID             string `json:"id"`
	Provider       string `json:"provider"`
	AmountCents    int64  `json:"amount_cents"`
	Status         string `json:"status"`
	TransactionRef string `json:"transaction_ref,omitempty"`
	FailureReason  string `json:"failure_reason,omitempty"`
	CreatedAt      string `json:"created_at,omitempty"`
	RefundedAt     string `json:"refunded_at,omitempty"`
}

type deliveryPayload struct {
	ID             string `json:"id"`
	TrackingNumber string `json:"tracking_number"`
	Carrier        string `json:"carrier"`
	Status         string `json:"status"`
	ShippedAt      string `json:"shipped_at,omitempty"`
	DeliveredAt    string `json:"delivered_at,omitempty"`
}

type invoicePayload struct {
	ID         string               `json:"id"`
	Number     string               `json:"number"`
	TotalCents int64                `json:"total_cents"`
	IssuedAt   string               `json:"issued_at,omitempty"`
	Lines      []invoiceLinePayload `json:"lines,omitempty"`
}

type invoiceLinePayload struct {
	Description    string `json:"description"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	Quantity       int    `json:"quantity"`
	TotalCents     int64  `json:"total_cents"`
}
