package session

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/securecookie"
)

const (
	defaultCookieName = "boutique_session"
	defaultCookiePath = "/"
	defaultLifetime   = 7 * 24 * time.Hour
)

// ErrInvalidConfig indicates the manager was initialised with missing or invalid options.
var ErrInvalidConfig = errors.New("session: invalid config")

// PendingPayment carries the checkout handoff between order creation and the
// payment submission request.
type PendingPayment struct {
	OrderID     string `json:"orderId"`
	AmountCents int64  `json:"amountCents"`
}

// Data represents the full persisted session payload. Cart quantities are
// keyed by product id and mirror the persisted cart backing for identified
// users.
type Data struct {
	ID             string          `json:"id"`
	Cart           map[string]int  `json:"cart,omitempty"`
	UserID         string          `json:"userId,omitempty"`
	IsAdmin        bool            `json:"isAdmin,omitempty"`
	PendingPayment *PendingPayment `json:"pendingPayment,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	ExpiresAt      time.Time       `json:"expiresAt,omitempty"`
}

// Session holds mutable state for the current request lifecycle.
type Session struct {
	data      Data
	dirty     bool
	destroyed bool
}

// Config controls cookie encoding and lifecycle limits for the session manager.
type Config struct {
	CookieName     string
	HashKey        []byte
	BlockKey       []byte
	CookiePath     string
	CookieDomain   string
	CookieSecure   bool
	CookieSameSite http.SameSite
	Lifetime       time.Duration
	Now            func() time.Time
}

// Manager decodes and persists session state via signed (and optionally encrypted) cookies.
type Manager struct {
	cfg   Config
	codec *securecookie.SecureCookie
	now   func() time.Time
}

// NewManager constructs a Manager using the provided configuration.
func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.HashKey) == 0 {
		return nil, fmt.Errorf("%w: hash key is required", ErrInvalidConfig)
	}

	if cfg.CookieName == "" {
		cfg.CookieName = defaultCookieName
	}
	if cfg.CookiePath == "" {
		cfg.CookiePath = defaultCookiePath
	}
	if cfg.Lifetime <= 0 {
		cfg.Lifetime = defaultLifetime
	}
	if cfg.CookieSameSite == http.SameSiteDefaultMode {
		cfg.CookieSameSite = http.SameSiteLaxMode
	}
	nowFn := cfg.Now
	if nowFn == nil {
		nowFn = time.Now
	}

	codec := securecookie.New(cfg.HashKey, cfg.BlockKey)
	codec.SetSerializer(securecookie.JSONEncoder{})

	return &Manager{
		cfg:   cfg,
		codec: codec,
		now:   nowFn,
	}, nil
}

// Load retrieves the session from the incoming request. Missing, invalid or
// expired cookies yield a fresh anonymous session rather than an error: a
// storefront visitor must never be locked out by a stale cookie.
func (m *Manager) Load(r *http.Request) *Session {
	cookie, err := r.Cookie(m.cfg.CookieName)
	if err != nil {
		return m.newSession(m.now())
	}

	var stored Data
	if err := m.codec.Decode(m.cfg.CookieName, cookie.Value, &stored); err != nil {
		return m.newSession(m.now())
	}

	if !stored.ExpiresAt.IsZero() && m.now().UTC().After(stored.ExpiresAt.UTC()) {
		return m.newSession(m.now())
	}
	if stored.Cart == nil {
		stored.Cart = map[string]int{}
	}
	return &Session{data: stored}
}

// Save writes the session back to the response as a cookie. Destroyed sessions clear the cookie.
func (m *Manager) Save(w http.ResponseWriter, sess *Session) error {
	if sess == nil {
		return errors.New("session: nil session")
	}

	if sess.destroyed {
		http.SetCookie(w, m.expiredCookie())
		return nil
	}

	encoded, err := m.codec.Encode(m.cfg.CookieName, sess.snapshot())
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	cookie := &http.Cookie{
		Name:     m.cfg.CookieName,
		Value:    encoded,
		Path:     m.cfg.CookiePath,
		Domain:   m.cfg.CookieDomain,
		Secure:   m.cfg.CookieSecure,
		HttpOnly: true,
		SameSite: m.cfg.CookieSameSite,
	}
	if expiry := sess.data.ExpiresAt; !expiry.IsZero() {
		cookie.Expires = expiry.UTC()
		remaining := expiry.UTC().Sub(m.now())
		if remaining <= 0 {
			cookie.MaxAge = -1
		} else {
			cookie.MaxAge = int(remaining.Round(time.Second).Seconds())
		}
	}

	http.SetCookie(w, cookie)
	return nil
}

// Destroy invalidates the session cookie immediately.
func (m *Manager) Destroy(w http.ResponseWriter) {
	http.SetCookie(w, m.expiredCookie())
}

// New returns a new empty session instance using the manager configuration.
func (m *Manager) New() *Session {
	return m.newSession(m.now())
}

func (m *Manager) newSession(now time.Time) *Session {
	now = now.UTC()
	return &Session{
		data: Data{
			ID:        mustGenerateToken(32),
			Cart:      map[string]int{},
			CreatedAt: now,
			ExpiresAt: now.Add(m.cfg.Lifetime),
		},
		dirty: true,
	}
}

func (m *Manager) expiredCookie() *http.Cookie {
	return &http.Cookie{
		Name:     m.cfg.CookieName,
		Value:    "",
		Path:     m.cfg.CookiePath,
		Domain:   m.cfg.CookieDomain,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		Secure:   m.cfg.CookieSecure,
		HttpOnly: true,
		SameSite: m.cfg.CookieSameSite,
	}
}

// ID returns the stable session identifier.
func (s *Session) ID() string { return s.data.ID }

// UserID returns the signed-in user, empty for anonymous visitors.
func (s *Session) UserID() string { return s.data.UserID }

// IsAdmin reports whether the session belongs to a staff account.
func (s *Session) IsAdmin() bool { return s.data.IsAdmin }

// SetUser records the authenticated user on the session.
func (s *Session) SetUser(userID string, isAdmin bool) {
	if s.data.UserID == userID && s.data.IsAdmin == isAdmin {
		return
	}
	s.data.UserID = userID
	s.data.IsAdmin = isAdmin
	s.dirty = true
}

// Cart returns a copy of the session-backed cart quantities.
func (s *Session) Cart() map[string]int {
	out := make(map[string]int, len(s.data.Cart))
	for id, qty := range s.data.Cart {
		out[id] = qty
	}
	return out
}

// SetCart replaces the session-backed cart. Non-positive quantities are dropped.
func (s *Session) SetCart(items map[string]int) {
	cleaned := make(map[string]int, len(items))
	for id, qty := range items {
		if id == "" || qty <= 0 {
			continue
		}
		cleaned[id] = qty
	}
	if cartsEqual(s.data.Cart, cleaned) {
		return
	}
	s.data.Cart = cleaned
	s.dirty = true
}

// ClearCart empties the session-backed cart.
func (s *Session) ClearCart() {
	if len(s.data.Cart) == 0 {
		return
	}
	s.data.Cart = map[string]int{}
	s.dirty = true
}

// PendingPayment returns the checkout handoff state, if any.
func (s *Session) PendingPayment() *PendingPayment {
	if s.data.PendingPayment == nil {
		return nil
	}
	dup := *s.data.PendingPayment
	return &dup
}

// SetPendingPayment records the order awaiting payment submission.
func (s *Session) SetPendingPayment(p *PendingPayment) {
	if p == nil && s.data.PendingPayment == nil {
		return
	}
	if p == nil {
		s.data.PendingPayment = nil
		s.dirty = true
		return
	}
	dup := *p
	s.data.PendingPayment = &dup
	s.dirty = true
}

// Destroy marks the session for deletion at the end of the request.
func (s *Session) Destroy() {
	s.destroyed = true
	s.dirty = true
}

// Destroyed exposes the destroy marker.
func (s *Session) Destroyed() bool { return s.destroyed }

// Dirty indicates whether the session contents have changed during this request.
func (s *Session) Dirty() bool { return s.dirty }

func (s *Session) snapshot() Data {
	if s.data.Cart == nil {
		s.data.Cart = map[string]int{}
	}
	return s.data
}

func cartsEqual(a, b map[string]int) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}

func mustGenerateToken(length int) string {
	token, err := generateToken(length)
	if err != nil {
		panic(err)
	}
	return token
}

func generateToken(length int) (string, error) {
	if length <= 0 {
		length = 32
	}
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(bytes), nil
}
