package handlers

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/elegance-boutique/api/internal/platform/httpx"
	"github.com/elegance-boutique/api/internal/services"
)

// TrackingHandlers serves public delivery lookups by tracking number.
// No authentication: the tracking number itself is the capability, so the
// endpoint is rate limited per client to slow down number scanning.
type TrackingHandlers struct {
	deliveries services.DeliveryService
	limiter    rateLimiter
}

// TrackingOption customises the tracking endpoints.
type TrackingOption func(*TrackingHandlers)

// WithTrackingRateLimit caps lookups per client IP inside the window.
func WithTrackingRateLimit(limit int, window time.Duration) TrackingOption {
	return func(h *TrackingHandlers) {
		h.limiter = newFixedWindowLimiter(limit, window, nil)
	}
}

// NewTrackingHandlers constructs the tracking endpoints.
func NewTrackingHandlers(deliveries services.DeliveryService, opts ...TrackingOption) *TrackingHandlers {
	h := &TrackingHandlers{deliveries: deliveries}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes wires the /tracking endpoints onto the provided router.
func (h *TrackingHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/{trackingNumber}", h.track)
}

func (h *TrackingHandlers) track(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.deliveries == nil {
		httpx.WriteError(ctx, w, httpx.NewError("tracking_unavailable", "tracking is unavailable", http.StatusServiceUnavailable))
		return
	}
	if h.limiter != nil && !h.limiter.Allow(clientKey(r)) {
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many tracking lookups, slow down", http.StatusTooManyRequests))
		return
	}

	info, err := h.deliveries.Track(ctx, chi.URLParam(r, "trackingNumber"))
	if err != nil {
		writeTrackingError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, trackingResponse{
		TrackingNumber: info.Delivery.TrackingNumber,
		Carrier:        info.Delivery.Carrier,
		Status:         string(info.Delivery.Status),
		OrderID:        info.OrderID,
		OrderStatus:    string(info.OrderStatus),
		ShippedAt:      formatTimePtr(info.Delivery.ShippedAt),
		DeliveredAt:    formatTimePtr(info.Delivery.DeliveredAt),
	})
}

// clientKey buckets rate limit entries by client IP. RealIP middleware has
// already rewritten RemoteAddr when the request came through a proxy.
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeTrackingError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrDeliveryInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrDeliveryNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("tracking_not_found", "no delivery matches that tracking number", http.StatusNotFound))
	case errors.Is(err, services.ErrDeliveryUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("tracking_unavailable", "tracking is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("tracking_error", "failed to serve tracking request", http.StatusInternalServerError))
	}
}

type trackingResponse struct {
	TrackingNumber string `json:"tracking_number"`
	Carrier        string `json:"carrier"`
	Status         string `json:"status"`
	OrderID        string `json:"order_id,omitempty"`
	OrderStatus    string `json:"order_status,omitempty"`
	ShippedAt      string `json:"shipped_at,omitempty"`
	DeliveredAt    string `json:"delivered_at,omitempty"`
}
