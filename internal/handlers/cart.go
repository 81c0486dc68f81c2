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

const maxCartBodySize = 16 * 1024

// CartHandlers exposes the session-backed cart endpoints. Guests and
// authenticated users share the same surface; the service decides which
// backing store wins.
type CartHandlers struct {
	carts services.CartService
}

// NewCartHandlers constructs handlers invoking the cart service.
func NewCartHandlers(carts services.CartService) *CartHandlers {
	return &CartHandlers{carts: carts}
}

// Routes wires the /cart endpoints onto the provided router.
func (h *CartHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.viewCart)
	r.Post("/items", h.addItem)
	r.Put("/items/{productID}", h.setItemQuantity)
	r.Delete("/items/{productID}", h.removeItem)
	r.Delete("/", h.clearCart)
}

func (h *CartHandlers) viewCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	state, _, ok := h.requireCart(w, r)
	if !ok {
		return
	}

	view, err := h.carts.View(ctx, state)
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildCartViewPayload(view, true))
}

func (h *CartHandlers) addItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	state, sess, ok := h.requireCart(w, r)
	if !ok {
		return
	}

	body, err := readLimitedBody(r, maxCartBodySize)
	if err != nil {
		writeBodyError(r, w, err)
		return
	}

	var payload cartItemRequest
	if err := decodeStrictJSON(body, &payload); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	result, err := h.carts.AddItem(ctx, services.AddCartItemCommand{
		State:     state,
		ProductID: strings.TrimSpace(payload.ProductID),
		Quantity:  payload.Quantity,
	})
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}
	h.respondWithCart(ctx, w, sess, state, result)
}

func (h *CartHandlers) setItemQuantity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	state, sess, ok := h.requireCart(w, r)
	if !ok {
		return
	}

	body, err := readLimitedBody(r, maxCartBodySize)
	if err != nil {
		writeBodyError(r, w, err)
		return
	}

	var payload cartQuantityRequest
	if err := decodeStrictJSON(body, &payload); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	result, err := h.carts.SetItemQuantity(ctx, services.SetCartQuantityCommand{
		State:     state,
		ProductID: chi.URLParam(r, "productID"),
		Quantity:  payload.Quantity,
	})
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}
	h.respondWithCart(ctx, w, sess, state, result)
}

func (h *CartHandlers) removeItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	state, sess, ok := h.requireCart(w, r)
	if !ok {
		return
	}

	result, err := h.carts.RemoveItem(ctx, services.RemoveCartItemCommand{
		State:     state,
		ProductID: chi.URLParam(r, "productID"),
	})
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}
	h.respondWithCart(ctx, w, sess, state, result)
}

func (h *CartHandlers) clearCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	state, sess, ok := h.requireCart(w, r)
	if !ok {
		return
	}

	result, err := h.carts.Clear(ctx, state)
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}
	if sess != nil {
		sess.ClearCart()
	}
	view, err := h.carts.View(ctx, services.CartState{UserID: state.UserID, SessionItems: result.Items})
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildCartViewPayload(view, result.Persisted))
}

func (h *CartHandlers) requireCart(w http.ResponseWriter, r *http.Request) (services.CartState, *session.Session, bool) {
	ctx := r.Context()
	if h.carts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("cart_service_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
		return services.CartState{}, nil, false
	}
	state, sess, ok := cartStateFromRequest(r)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("session_unavailable", "session is not initialised", http.StatusInternalServerError))
		return services.CartState{}, nil, false
	}
	return state, sess, true
}

// respondWithCart writes the mutated cart back into the session so the
// session copy stays authoritative, then answers with the priced view.
func (h *CartHandlers) respondWithCart(ctx context.Context, w http.ResponseWriter, sess *session.Session, state services.CartState, result services.CartResult) {
	if sess != nil {
		sess.SetCart(result.Items)
	}
	view, err := h.carts.View(ctx, services.CartState{UserID: state.UserID, SessionItems: result.Items})
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildCartViewPayload(view, result.Persisted))
}

func writeCartError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrCartInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCartProductNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_unavailable", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrCartUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("cart_service_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("cart_error", "failed to serve cart request", http.StatusInternalServerError))
	}
}

func buildCartViewPayload(view services.CartView, persisted bool) cartViewResponse {
	payload := cartViewResponse{
		Lines:      make([]cartLinePayload, 0, len(view.Lines)),
		TotalCents: view.TotalCents,
		ItemCount:  view.ItemCount,
		Persisted:  persisted,
	}
	for _, line := range view.Lines {
		payload.Lines = append(payload.Lines, cartLinePayload{
			ProductID:      line.ProductID,
			Name:           line.Name,
			UnitPriceCents: line.UnitPriceCents,
			Quantity:       line.Quantity,
			LineTotalCents: line.LineTotalCents,
			Unavailable:    line.Unavailable,
		})
	}
	return payload
}

type cartItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type cartQuantityRequest struct {
	Quantity int `json:"quantity"`
}

type cartViewResponse struct {
	Lines      []cartLinePayload `json:"lines"`
	TotalCents int64             `json:"total_cents"`
	ItemCount  int               `json:"item_count"`
	Persisted  bool              `json:"persisted"`
}

type cartLinePayload struct {
	ProductID      string `json:"product_id"`
	Name           string `json:"name"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	Quantity       int    `json:"quantity"`
	LineTotalCents int64  `json:"line_total_cents"`
	Unavailable    bool   `json:"unavailable,omitempty"`
}
