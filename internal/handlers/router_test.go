package handlers

import (
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRouterServesHealthEndpoints(t *testing.T) {
	router := NewRouter()

	rec := performRequest(t, router, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = performRequest(t, router, http.MethodGet, "/readyz", "")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRouterUnknownRoute(t *testing.T) {
	router := NewRouter()

	rec := performRequest(t, router, http.MethodGet, "/api/v2/nothing", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "route_not_found", decodeBody(t, rec)["error"])
}

func TestRouterUnwiredGroupIsNotImplemented(t *testing.T) {
	router := NewRouter()

	rec := performRequest(t, router, http.MethodGet, "/api/v1/catalog/", "")
	require.Equal(t, http.StatusNotImplemented, rec.Code)
	assert.Equal(t, "not_implemented", decodeBody(t, rec)["error"])
}

func TestRouterMountsRegistrars(t *testing.T) {
	router := NewRouter(
		WithCatalogRoutes(func(r chi.Router) {
			r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
				writeJSONResponse(w, http.StatusOK, map[string]string{"surface": "catalog"})
			})
		}),
		WithTrackingRoutes(func(r chi.Router) {
			r.Get("/{trackingNumber}", func(w http.ResponseWriter, _ *http.Request) {
				writeJSONResponse(w, http.StatusOK, map[string]string{"surface": "tracking"})
			})
		}),
	)

	rec := performRequest(t, router, http.MethodGet, "/api/v1/catalog/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "catalog", decodeBody(t, rec)["surface"])

	rec = performRequest(t, router, http.MethodGet, "/api/v1/tracking/TRK000000000001", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "tracking", decodeBody(t, rec)["surface"])
}

func TestRouterAppliesCustomMiddleware(t *testing.T) {
	marker := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Marker", "present")
			next.ServeHTTP(w, r)
		})
	}
	router := NewRouter(WithMiddlewares(marker))

	rec := performRequest(t, router, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "present", rec.Header().Get("X-Marker"))
}

func TestRouterAdminGroupMiddleware(t *testing.T) {
	router := NewRouter(
		WithAdminRoutes(func(r chi.Router) {
			r.Get("/products", func(w http.ResponseWriter, _ *http.Request) {
				writeJSONResponse(w, http.StatusOK, map[string]string{"surface": "admin"})
			})
		}),
		WithAdminMiddlewares(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "blocked", http.StatusForbidden)
			})
		}),
	)

	rec := performRequest(t, router, http.MethodGet, "/api/v1/admin/products", "")
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRouterMethodNotAllowed(t *testing.T) {
	router := NewRouter()

	rec := performRequest(t, router, http.MethodPost, "/healthz", "")
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "method_not_allowed", decodeBody(t, rec)["error"])
}
