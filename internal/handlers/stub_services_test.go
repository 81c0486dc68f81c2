package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/elegance-boutique/api/internal/platform/session"
	"github.com/elegance-boutique/api/internal/services"
)

// Stub services shared by the handler tests. Each method delegates to an
// optional fn field so individual tests only wire what they exercise.

type stubCatalogService struct {
	getFn        func(context.Context, string) (services.Product, error)
	listFn       func(context.Context, services.ProductListQuery) ([]services.Product, error)
	createFn     func(context.Context, services.CreateProductCommand) (services.Product, error)
	updateFn     func(context.Context, services.UpdateProductCommand) (services.Product, error)
	setStockFn   func(context.Context, services.SetStockCommand) (services.Product, error)
	deactivateFn func(context.Context, string) (services.Product, error)
}

func (s *stubCatalogService) GetProduct(ctx context.Context, productID string) (services.Product, error) {
	if s.getFn != nil {
		return s.getFn(ctx, productID)
	}
	return services.Product{}, services.ErrCatalogNotFound
}

func (s *stubCatalogService) ListProducts(ctx context.Context, query services.ProductListQuery) ([]services.Product, error) {
	if s.listFn != nil {
		return s.listFn(ctx, query)
	}
	return nil, nil
}

func (s *stubCatalogService) CreateProduct(ctx context.Context, cmd services.CreateProductCommand) (services.Product, error) {
	if s.createFn != nil {
		return s.createFn(ctx, cmd)
	}
	return services.Product{}, nil
}

func (s *stubCatalogService) UpdateProduct(ctx context.Context, cmd services.UpdateProductCommand) (services.Product, error) {
	if s.updateFn != nil {
		return s.updateFn(ctx, cmd)
	}
	return services.Product{}, nil
}

func (s *stubCatalogService) SetStock(ctx context.Context, cmd services.SetStockCommand) (services.Product, error) {
	if s.setStockFn != nil {
		return s.setStockFn(ctx, cmd)
	}
	return services.Product{}, nil
}

func (s *stubCatalogService) DeactivateProduct(ctx context.Context, productID string) (services.Product, error) {
	if s.deactivateFn != nil {
		return s.deactivateFn(ctx, productID)
	}
	return services.Product{}, nil
}

type stubCartService struct {
	addFn     func(context.Context, services.AddCartItemCommand) (services.CartResult, error)
	removeFn  func(context.Context, services.RemoveCartItemCommand) (services.CartResult, error)
	setFn     func(context.Context, services.SetCartQuantityCommand) (services.CartResult, error)
	viewFn    func(context.Context, services.CartState) (services.CartView, error)
	resolveFn func(context.Context, services.CartState) (map[string]int, error)
	clearFn   func(context.Context, services.CartState) (services.CartResult, error)
}

func (s *stubCartService) AddItem(ctx context.Context, cmd services.AddCartItemCommand) (services.CartResult, error) {
	if s.addFn != nil {
		return s.addFn(ctx, cmd)
	}
	return services.CartResult{Items: map[string]int{}}, nil
}

func (s *stubCartService) RemoveItem(ctx context.Context, cmd services.RemoveCartItemCommand) (services.CartResult, error) {
	if s.removeFn != nil {
		return s.removeFn(ctx, cmd)
	}
	return services.CartResult{Items: map[string]int{}}, nil
}

func (s *stubCartService) SetItemQuantity(ctx context.Context, cmd services.SetCartQuantityCommand) (services.CartResult, error) {
	if s.setFn != nil {
		return s.setFn(ctx, cmd)
	}
	return services.CartResult{Items: map[string]int{}}, nil
}

func (s *stubCartService) View(ctx context.Context, state services.CartState) (services.CartView, error) {
	if s.viewFn != nil {
		return s.viewFn(ctx, state)
	}
	return services.CartView{Lines: []services.CartViewLine{}}, nil
}

func (s *stubCartService) Resolve(ctx context.Context, state services.CartState) (map[string]int, error) {
	if s.resolveFn != nil {
		return s.resolveFn(ctx, state)
	}
	return state.SessionItems, nil
}

func (s *stubCartService) Clear(ctx context.Context, state services.CartState) (services.CartResult, error) {
	if s.clearFn != nil {
		return s.clearFn(ctx, state)
	}
	return services.CartResult{Items: map[string]int{}}, nil
}

type stubOrderService struct {
	createFn    func(context.Context, services.CreateOrderCommand) (services.Order, error)
	validateFn  func(context.Context, services.ValidateOrderCommand) (services.Order, error)
	chargeFn    func(context.Context, services.ChargeOrderCommand) (services.Order, error)
	checkoutFn  func(context.Context, services.CheckoutCommand) (services.Order, error)
	shipFn      func(context.Context, services.MarkShippedCommand) (services.Order, error)
	deliverFn   func(context.Context, services.MarkDeliveredCommand) (services.Order, error)
	cancelFn    func(context.Context, services.CancelOrderCommand) (services.Order, error)
	refundFn    func(context.Context, services.RefundOrderCommand) (services.Order, error)
	getFn       func(context.Context, string, services.OrderReadOptions) (services.Order, error)
	listUserFn  func(context.Context, string, services.Pagination) ([]services.Order, error)
	listFn      func(context.Context, services.OrderListFilter) ([]services.Order, error)
}

func (s *stubOrderService) CreateOrder(ctx context.Context, cmd services.CreateOrderCommand) (services.Order, error) {
	if s.createFn != nil {
		return s.createFn(ctx, cmd)
	}
	return services.Order{}, nil
}

func (s *stubOrderService) Validate(ctx context.Context, cmd services.ValidateOrderCommand) (services.Order, error) {
	if s.validateFn != nil {
		return s.validateFn(ctx, cmd)
	}
	return services.Order{}, nil
}

func (s *stubOrderService) Charge(ctx context.Context, cmd services.ChargeOrderCommand) (services.Order, error) {
	if s.chargeFn != nil {
		return s.chargeFn(ctx, cmd)
	}
	return services.Order{}, nil
}

func (s *stubOrderService) CheckoutAndPay(ctx context.Context, cmd services.CheckoutCommand) (services.Order, error) {
	if s.checkoutFn != nil {
		return s.checkoutFn(ctx, cmd)
	}
	return services.Order{}, nil
}

func (s *stubOrderService) MarkShipped(ctx context.Context, cmd services.MarkShippedCommand) (services.Order, error) {
	if s.shipFn != nil {
		return s.shipFn(ctx, cmd)
	}
	return services.Order{}, nil
}

func (s *stubOrderService) MarkDelivered(ctx context.Context, cmd services.MarkDeliveredCommand) (services.Order, error) {
	if s.deliverFn != nil {
		return s.deliverFn(ctx, cmd)
	}
	return services.Order{}, nil
}

func (s *stubOrderService) Cancel(ctx context.Context, cmd services.CancelOrderCommand) (services.Order, error) {
	if s.cancelFn != nil {
		return s.cancelFn(ctx, cmd)
	}
	return services.Order{}, nil
}

func (s *stubOrderService) Refund(ctx context.Context, cmd services.RefundOrderCommand) (services.Order, error) {
	if s.refundFn != nil {
		return s.refundFn(ctx, cmd)
	}
	return services.Order{}, nil
}

func (s *stubOrderService) GetOrder(ctx context.Context, orderID string, opts services.OrderReadOptions) (services.Order, error) {
	if s.getFn != nil {
		return s.getFn(ctx, orderID, opts)
	}
	return services.Order{}, services.ErrOrderNotFound
}

func (s *stubOrderService) ListUserOrders(ctx context.Context, userID string, pager services.Pagination) ([]services.Order, error) {
	if s.listUserFn != nil {
		return s.listUserFn(ctx, userID, pager)
	}
	return nil, nil
}

func (s *stubOrderService) ListOrders(ctx context.Context, filter services.OrderListFilter) ([]services.Order, error) {
	if s.listFn != nil {
		return s.listFn(ctx, filter)
	}
	return nil, nil
}

type stubDeliveryService struct {
	provisionFn func(context.Context, services.ProvisionDeliveryCommand) (services.Delivery, error)
	shipFn      func(context.Context, string, time.Time) (services.Delivery, error)
	deliverFn   func(context.Context, string, time.Time) (services.Delivery, error)
	byOrderFn   func(context.Context, string) (services.Delivery, error)
	trackFn     func(context.Context, string) (services.TrackingInfo, error)
}

func (s *stubDeliveryService) Provision(ctx context.Context, cmd services.ProvisionDeliveryCommand) (services.Delivery, error) {
	if s.provisionFn != nil {
		return s.provisionFn(ctx, cmd)
	}
	return services.Delivery{}, nil
}

func (s *stubDeliveryService) MarkShipped(ctx context.Context, orderID string, now time.Time) (services.Delivery, error) {
	if s.shipFn != nil {
		return s.shipFn(ctx, orderID, now)
	}
	return services.Delivery{}, nil
}

func (s *stubDeliveryService) MarkDelivered(ctx context.Context, orderID string, now time.Time) (services.Delivery, error) {
	if s.deliverFn != nil {
		return s.deliverFn(ctx, orderID, now)
	}
	return services.Delivery{}, nil
}

func (s *stubDeliveryService) ByOrder(ctx context.Context, orderID string) (services.Delivery, error) {
	if s.byOrderFn != nil {
		return s.byOrderFn(ctx, orderID)
	}
	return services.Delivery{}, services.ErrDeliveryNotFound
}

func (s *stubDeliveryService) Track(ctx context.Context, trackingNumber string) (services.TrackingInfo, error) {
	if s.trackFn != nil {
		return s.trackFn(ctx, trackingNumber)
	}
	return services.TrackingInfo{}, services.ErrDeliveryNotFound
}

type stubSystemService struct {
	reportFn func(context.Context) (services.SystemHealthReport, error)
}

func (s *stubSystemService) HealthReport(ctx context.Context) (services.SystemHealthReport, error) {
	if s.reportFn != nil {
		return s.reportFn(ctx)
	}
	return services.SystemHealthReport{Healthy: true}, nil
}

// Session plumbing -----------------------------------------------------------

func newTestSessionManager(t *testing.T) *session.Manager {
	t.Helper()
	manager, err := session.NewManager(session.Config{
		HashKey:  []byte("0123456789abcdef0123456789abcdef"),
		Lifetime: time.Hour,
	})
	require.NoError(t, err)
	return manager
}

func newHandlerSession(t *testing.T, userID string, admin bool) *session.Session {
	t.Helper()
	sess := newTestSessionManager(t).New()
	if userID != "" {
		sess.SetUser(userID, admin)
	}
	return sess
}

func injectSession(sess *session.Session) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(session.WithSession(r.Context(), sess)))
		})
	}
}

// mountRoutes stands up a chi router with the session injected, mirroring how
// the real router wires handler groups behind the session middleware.
func mountRoutes(sess *session.Session, registrar RouteRegistrar) http.Handler {
	r := chi.NewRouter()
	if sess != nil {
		r.Use(injectSession(sess))
	}
	r.Group(registrar)
	return r
}

func performRequest(t *testing.T, handler http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	return payload
}
