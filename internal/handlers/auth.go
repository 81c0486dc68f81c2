package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/elegance-boutique/api/internal/platform/httpx"
	"github.com/elegance-boutique/api/internal/platform/session"
)

const maxAuthBodySize = 4 * 1024

// AuthHandlers manages the simulated identity attached to the session.
// Identity is asserted by the caller: real authentication lives in a
// separate front-end and this API only needs to know who is shopping.
type AuthHandlers struct{}

// NewAuthHandlers constructs the session identity endpoints.
func NewAuthHandlers() *AuthHandlers {
	return &AuthHandlers{}
}

// Routes wires the /auth endpoints onto the provided router.
func (h *AuthHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/login", h.login)
	r.Post("/logout", h.logout)
	r.Get("/me", h.me)
}

// login binds a user identity to the session. The guest cart carried by the
// session survives the login so it can be reconciled on the next cart call.
func (h *AuthHandlers) login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess, ok := session.FromContext(ctx)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("session_unavailable", "session is not initialised", http.StatusInternalServerError))
		return
	}

	body, err := readLimitedBody(r, maxAuthBodySize)
	if err != nil {
		writeBodyError(r, w, err)
		return
	}
	var payload loginRequest
	if err := decodeStrictJSON(body, &payload); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	userID := strings.TrimSpace(payload.UserID)
	if userID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "user_id is required", http.StatusBadRequest))
		return
	}

	sess.SetUser(userID, payload.Admin)
	writeJSONResponse(w, http.StatusOK, identityResponse{UserID: userID, Admin: payload.Admin})
}

// logout destroys the session, dropping identity and the session cart.
func (h *AuthHandlers) logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess, ok := session.FromContext(ctx)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("session_unavailable", "session is not initialised", http.StatusInternalServerError))
		return
	}

	sess.Destroy()
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandlers) me(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess, ok := session.FromContext(ctx)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("session_unavailable", "session is not initialised", http.StatusInternalServerError))
		return
	}
	if strings.TrimSpace(sess.UserID()) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	writeJSONResponse(w, http.StatusOK, identityResponse{UserID: sess.UserID(), Admin: sess.IsAdmin()})
}

type loginRequest struct {
	UserID string `json:"user_id"`
	Admin  bool   `json:"admin,omitempty"`
}

type identityResponse struct {
	UserID string `json:"user_id"`
	Admin  bool   `json:"admin"`
}
