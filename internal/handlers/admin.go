package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/elegance-boutique/api/internal/domain"
	"github.com/elegance-boutique/api/internal/platform/httpx"
	"github.com/elegance-boutique/api/internal/platform/session"
	"github.com/elegance-boutique/api/internal/services"
)

const maxAdminBodySize = 32 * 1024

// AdminHandlers exposes the back-office surface: catalogue management and
// order fulfilment transitions. Every route requires an admin session.
type AdminHandlers struct {
	catalog services.CatalogService
	orders  services.OrderService
}

// NewAdminHandlers constructs the admin endpoints.
func NewAdminHandlers(catalog services.CatalogService, orders services.OrderService) *AdminHandlers {
	return &AdminHandlers{catalog: catalog, orders: orders}
}

// Routes wires the /admin endpoints onto the provided router.
func (h *AdminHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Group(func(r chi.Router) {
		r.Use(RequireAdmin)

		r.Route("/products", func(r chi.Router) {
			r.Get("/", h.listProducts)
			r.Post("/", h.createProduct)
			r.Get("/{productID}", h.getProduct)
			r.Patch("/{productID}", h.updateProduct)
			r.Put("/{productID}/stock", h.setStock)
			r.Delete("/{productID}", h.deactivateProduct)
		})

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", h.listOrders)
			r.Get("/{orderID}", h.getOrder)
			r.Post("/{orderID}/validate", h.validateOrder)
			r.Post("/{orderID}/ship", h.shipOrder)
			r.Post("/{orderID}/deliver", h.deliverOrder)
			r.Post("/{orderID}/cancel", h.cancelOrder)
			r.Post("/{orderID}/refund", h.refundOrder)
		})
	})
}

// Catalogue management ---------------------------------------------------

func (h *AdminHandlers) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}

	products, err := h.catalog.ListProducts(ctx, services.ProductListQuery{
		Category:      strings.TrimSpace(r.URL.Query().Get("category")),
		IncludeHidden: true,
		Pagination:    queryPagination(r),
	})
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}

	payload := productListResponse{Products: make([]productPayload, 0, len(products))}
	for _, product := range products {
		payload.Products = append(payload.Products, buildProductPayload(product))
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

func (h *AdminHandlers) getProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}

	product, err := h.catalog.GetProduct(ctx, chi.URLParam(r, "productID"))
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, productResponse{Product: buildProductPayload(product)})
}

func (h *AdminHandlers) createProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxAdminBodySize)
	if err != nil {
		writeBodyError(r, w, err)
		return
	}
	var payload createProductRequest
	if err := decodeStrictJSON(body, &payload); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	product, err := h.catalog.CreateProduct(ctx, services.CreateProductCommand{
		Name:        payload.Name,
		Description: payload.Description,
		Category:    payload.Category,
		PriceCents:  payload.PriceCents,
		StockQty:    payload.StockQty,
		ImageURL:    payload.ImageURL,
	})
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, productResponse{Product: buildProductPayload(product)})
}

func (h *AdminHandlers) updateProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxAdminBodySize)
	if err != nil {
		writeBodyError(r, w, err)
		return
	}
	var payload updateProductRequest
	if err := decodeStrictJSON(body, &payload); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	cmd := services.UpdateProductCommand{ProductID: chi.URLParam(r, "productID")}
	if payload.Name != nil {
		cmd.Name = payload.Name
	}
	if len(payload.Description) > 0 {
		var description string
		if !isJSONNull(payload.Description) {
			if err := json.Unmarshal(payload.Description, &description); err != nil {
				httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "description must be a string", http.StatusBadRequest))
				return
			}
		}
		cmd.Description = &description
	}
	if payload.Category != nil {
		cmd.Category = payload.Category
	}
	if payload.PriceCents != nil {
		cmd.PriceCents = payload.PriceCents
	}
	if payload.ImageURL != nil {
		cmd.ImageURL = payload.ImageURL
	}
	if payload.Active != nil {
		cmd.Active = payload.Active
	}

	product, err := h.catalog.UpdateProduct(ctx, cmd)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, productResponse{Product: buildProductPayload(product)})
}

func (h *AdminHandlers) setStock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxAdminBodySize)
	if err != nil {
		writeBodyError(r, w, err)
		return
	}
	var payload setStockRequest
	if err := decodeStrictJSON(body, &payload); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	product, err := h.catalog.SetStock(ctx, services.SetStockCommand{
		ProductID: chi.URLParam(r, "productID"),
		StockQty:  payload.StockQty,
	})
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, productResponse{Product: buildProductPayload(product)})
}

// deactivateProduct hides a product from the storefront without deleting the
// row, so order snapshots keep a valid reference.
func (h *AdminHandlers) deactivateProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}

	product, err := h.catalog.DeactivateProduct(ctx, chi.URLParam(r, "productID"))
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, productResponse{Product: buildProductPayload(product)})
}

// Order fulfilment -------------------------------------------------------

func (h *AdminHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service is unavailable", http.StatusServiceUnavailable))
		return
	}

	filter := services.OrderListFilter{
		UserID:     strings.TrimSpace(r.URL.Query().Get("user_id")),
		Pagination: queryPagination(r),
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		for _, status := range strings.Split(raw, ",") {
			status = strings.ToUpper(strings.TrimSpace(status))
			if status != "" {
				filter.Status = append(filter.Status, domain.OrderStatus(status))
			}
		}
	}

	orders, err := h.orders.ListOrders(ctx, filter)
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

func (h *AdminHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service is unavailable", http.StatusServiceUnavailable))
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
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *AdminHandlers) validateOrder(w http.ResponseWriter, r *http.Request) {
	h.transitionOrder(w, r, func(orderID, actorID, _ string) (services.Order, error) {
		return h.orders.Validate(r.Context(), services.ValidateOrderCommand{OrderID: orderID, ActorID: actorID})
	}, false)
}

func (h *AdminHandlers) shipOrder(w http.ResponseWriter, r *http.Request) {
	h.transitionOrder(w, r, func(orderID, actorID, _ string) (services.Order, error) {
		return h.orders.MarkShipped(r.Context(), services.MarkShippedCommand{OrderID: orderID, ActorID: actorID})
	}, false)
}

func (h *AdminHandlers) deliverOrder(w http.ResponseWriter, r *http.Request) {
	h.transitionOrder(w, r, func(orderID, actorID, _ string) (services.Order, error) {
		return h.orders.MarkDelivered(r.Context(), services.MarkDeliveredCommand{OrderID: orderID, ActorID: actorID})
	}, false)
}

func (h *AdminHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
	h.transitionOrder(w, r, func(orderID, actorID, reason string) (services.Order, error) {
		return h.orders.Cancel(r.Context(), services.CancelOrderCommand{OrderID: orderID, ActorID: actorID, Reason: reason})
	}, true)
}

func (h *AdminHandlers) refundOrder(w http.ResponseWriter, r *http.Request) {
	h.transitionOrder(w, r, func(orderID, actorID, reason string) (services.Order, error) {
		return h.orders.Refund(r.Context(), services.RefundOrderCommand{OrderID: orderID, ActorID: actorID, Reason: reason})
	}, true)
}

func (h *AdminHandlers) transitionOrder(w http.ResponseWriter, r *http.Request, apply func(orderID, actorID, reason string) (services.Order, error), readReason bool) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service is unavailable", http.StatusServiceUnavailable))
		return
	}

	actorID := ""
	if sess, ok := session.FromContext(ctx); ok {
		actorID = sess.UserID()
	}

	reason := ""
	if readReason {
		body, err := readLimitedBody(r, maxAdminBodySize)
		if err != nil && !errors.Is(err, errEmptyBody) {
			writeBodyError(r, w, err)
			return
		}
		if len(body) > 0 {
			var payload transitionReasonRequest
			if err := decodeStrictJSON(body, &payload); err != nil {
				httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
				return
			}
			reason = strings.TrimSpace(payload.Reason)
		}
	}

	order, err := apply(chi.URLParam(r, "orderID"), actorID, reason)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

type createProductRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Category    string `json:"category,omitempty"`
	PriceCents  int64  `json:"price_cents"`
	StockQty    int    `json:"stock_qty"`
	ImageURL    string `json:"image_url,omitempty"`
}

type updateProductRequest struct {
	Name *string `json:"name,omitempty"`
	// Raw bytes so a literal null (clear the description) stays
	// distinguishable from an absent field.
	Description json.RawMessage `json:"description,omitempty"`
	Category    *string         `json:"category,omitempty"`
	PriceCents  *int64          `json:"price_cents,omitempty"`
	ImageURL    *string         `json:"image_url,omitempty"`
	Active      *bool           `json:"active,omitempty"`
}

type setStockRequest struct {
	StockQty int `json:"stock_qty"`
}

type transitionReasonRequest struct {
	Reason string `json:"reason,omitempty"`
}
