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

const maxCheckoutRequestBody = 8 * 1024

// CheckoutHandlers converts the session cart into orders and submits card
// payments. Checkout is available in two shapes: a two-step flow (create the
// order, then pay it) and a combined endpoint that does both in one request.
type CheckoutHandlers struct {
	orders services.OrderService
	carts  services.CartService
}

// NewCheckoutHandlers constructs the checkout endpoints.
func NewCheckoutHandlers(orders services.OrderService, carts services.CartService) *CheckoutHandlers {
	return &CheckoutHandlers{orders: orders, carts: carts}
}

// Routes wires the /checkout endpoints onto the provided router.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Group(func(r chi.Router) {
		r.Use(RequireUser)
		r.Post("/orders", h.createOrder)
		r.Post("/orders/{orderID}/payment", h.submitPayment)
		r.Post("/", h.checkoutAndPay)
	})
}

// createOrder snapshots the resolved cart into a CREATED order and reserves
// stock. The cart is emptied and the amount owed is parked on the session
// until the payment request arrives.
func (h *CheckoutHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	state, sess, ok := h.requireCheckout(w, r)
	if !ok {
		return
	}

	items, err := h.carts.Resolve(ctx, state)
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}

	order, err := h.orders.CreateOrder(ctx, services.CreateOrderCommand{
		UserID: state.UserID,
		Items:  items,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	h.finishCreatedOrder(ctx, sess, state, order)
	writeJSONResponse(w, http.StatusCreated, orderResponse{Order: buildOrderPayload(order)})
}

// submitPayment charges a previously created order.
func (h *CheckoutHandlers) submitPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	state, sess, ok := h.requireCheckout(w, r)
	if !ok {
		return
	}

	body, err := readLimitedBody(r, maxCheckoutRequestBody)
	if err != nil {
		writeBodyError(r, w, err)
		return
	}
	var payload paymentRequest
	if err := decodeStrictJSON(body, &payload); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	orderID := chi.URLParam(r, "orderID")
	if !h.ownsOrder(ctx, w, orderID, state.UserID) {
		return
	}

	order, err := h.orders.Charge(ctx, services.ChargeOrderCommand{
		OrderID:    orderID,
		ActorID:    state.UserID,
		Provider:   strings.TrimSpace(payload.Provider),
		CardNumber: payload.Card.Number,
		CardHolder: payload.Card.Holder,
		ExpMonth:   payload.Card.ExpMonth,
		ExpYear:    payload.Card.ExpYear,
		CVC:        payload.Card.CVC,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	if sess != nil {
		sess.SetPendingPayment(nil)
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

// checkoutAndPay snapshots the cart and charges it in a single request. A
// declined card still leaves a CREATED order behind so the customer can retry
// through the two-step flow.
func (h *CheckoutHandlers) checkoutAndPay(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	state, sess, ok := h.requireCheckout(w, r)
	if !ok {
		return
	}

	body, err := readLimitedBody(r, maxCheckoutRequestBody)
	if err != nil {
		writeBodyError(r, w, err)
		return
	}
	var payload paymentRequest
	if err := decodeStrictJSON(body, &payload); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	items, err := h.carts.Resolve(ctx, state)
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}

	order, err := h.orders.CheckoutAndPay(ctx, services.CheckoutCommand{
		UserID:     state.UserID,
		Items:      items,
		Provider:   strings.TrimSpace(payload.Provider),
		CardNumber: payload.Card.Number,
		CardHolder: payload.Card.Holder,
		ExpMonth:   payload.Card.ExpMonth,
		ExpYear:    payload.Card.ExpYear,
		CVC:        payload.Card.CVC,
	})
	if err != nil {
		if errors.Is(err, services.ErrOrderPaymentDeclined) && order.ID != "" {
			h.finishCreatedOrder(ctx, sess, state, order)
			writeJSONResponse(w, http.StatusPaymentRequired, declinedCheckoutResponse{
				Error:   "payment_declined",
				Message: "payment was declined; the order is awaiting a new payment",
				Order:   buildOrderPayload(order),
			})
			return
		}
		writeOrderError(ctx, w, err)
		return
	}

	if sess != nil {
		sess.ClearCart()
		sess.SetPendingPayment(nil)
	}
	_, _ = h.carts.Clear(ctx, state)
	writeJSONResponse(w, http.StatusCreated, orderResponse{Order: buildOrderPayload(order)})
}

func (h *CheckoutHandlers) requireCheckout(w http.ResponseWriter, r *http.Request) (services.CartState, *session.Session, bool) {
	ctx := r.Context()
	if h.orders == nil || h.carts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout is unavailable", http.StatusServiceUnavailable))
		return services.CartState{}, nil, false
	}
	state, sess, ok := cartStateFromRequest(r)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("session_unavailable", "session is not initialised", http.StatusInternalServerError))
		return services.CartState{}, nil, false
	}
	return state, sess, true
}

// finishCreatedOrder empties both cart backings and parks the amount owed on
// the session for the follow-up payment request.
func (h *CheckoutHandlers) finishCreatedOrder(ctx context.Context, sess *session.Session, state services.CartState, order services.Order) {
	if sess != nil {
		sess.ClearCart()
		sess.SetPendingPayment(&session.PendingPayment{OrderID: order.ID, AmountCents: order.TotalCents})
	}
	_, _ = h.carts.Clear(ctx, state)
}

func (h *CheckoutHandlers) ownsOrder(ctx context.Context, w http.ResponseWriter, orderID, userID string) bool {
	order, err := h.orders.GetOrder(ctx, orderID, services.OrderReadOptions{})
	if err != nil {
		writeOrderError(ctx, w, err)
		return false
	}
	if order.UserID != userID {
		// Do not reveal whether the order exists.
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
		return false
	}
	return true
}

type paymentRequest struct {
	Provider string      `json:"provider,omitempty"`
	Card     cardPayload `json:"card"`
}

type cardPayload struct {
	Number   string `json:"number"`
	Holder   string `json:"holder"`
	ExpMonth int    `json:"exp_month"`
	ExpYear  int    `json:"exp_year"`
	CVC      string `json:"cvc"`
}

type declinedCheckoutResponse struct {
	Error   string       `json:"error"`
	Message string       `json:"message"`
	Order   orderPayload `json:"order"`
}
