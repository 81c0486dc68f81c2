package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	domain "github.com/elegance-boutique/api/internal/domain"
	"github.com/elegance-boutique/api/internal/repositories"
)

var (
	errCartRepositoryRequired = errors.New("cart service: repository is required")
	errCartCatalogRequired    = errors.New("cart service: catalog is required")
	errCartClockRequired      = errors.New("cart service: clock is required")
)

const (
	maxCartLineQuantity   = 99
	maxCartDistinctLines  = 100
	cartViewFetchParallel = 4
)

// ErrCartInvalidInput indicates the caller supplied invalid input.
var ErrCartInvalidInput = errors.New("cart service: invalid input")

// ErrCartProductNotFound indicates the referenced product does not exist or is hidden.
var ErrCartProductNotFound = errors.New("cart service: product not found")

// ErrCartUnavailable indicates the cart service cannot fulfil the request due to backend issues.
var ErrCartUnavailable = errors.New("cart service: unavailable")

// productFinder is the slice of the catalogue the cart needs.
type productFinder interface {
	FindByID(ctx context.Context, productID string) (domain.Product, error)
}

// CartServiceDeps wires the repository and catalogue dependencies for cart operations.
type CartServiceDeps struct {
	Repository repositories.CartRepository
	Catalog    productFinder
	Clock      func() time.Time
	Logger     func(context.Context, string, map[string]any)
}

// cartService reconciles two cart backings with different lifetimes: the
// session copy carried by the caller and the durable per-user copy in the
// store. The session copy wins whenever both hold items.
type cartService struct {
	repo    repositories.CartRepository
	catalog productFinder
	now     func() time.Time
	logger  func(context.Context, string, map[string]any)
}

// NewCartService constructs a CartService enforcing dependency validation.
func NewCartService(deps CartServiceDeps) (CartService, error) {
	if deps.Repository == nil {
		return nil, errCartRepositoryRequired
	}
	if deps.Catalog == nil {
		return nil, errCartCatalogRequired
	}
	if deps.Clock == nil {
		return nil, errCartClockRequired
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	service := &cartService{
		repo:    deps.Repository,
		catalog: deps.Catalog,
		now:     func() time.Time { return deps.Clock().UTC() },
		logger:  logger,
	}
	return service, nil
}

// Resolve merges the two backings into the authoritative quantity map. A
// non-empty session copy wins outright; the durable copy only backfills when
// the session arrives empty, which happens after a cookie reset or on a new
// device.
func (s *cartService) Resolve(ctx context.Context, state CartState) (map[string]int, error) {
	if s == nil || s.repo == nil {
		return nil, ErrCartUnavailable
	}

	items := normaliseCartItems(state.SessionItems)
	if len(items) > 0 {
		return items, nil
	}

	uid := strings.TrimSpace(state.UserID)
	if uid == "" {
		return map[string]int{}, nil
	}

	cart, err := s.repo.GetCart(ctx, uid)
	if err != nil {
		if isRepoNotFound(err) {
			return map[string]int{}, nil
		}
		return nil, translateCartRepoError(err)
	}
	return cartItemQuantities(cart.Items), nil
}

func (s *cartService) AddItem(ctx context.Context, cmd AddCartItemCommand) (CartResult, error) {
	if s == nil || s.repo == nil {
		return CartResult{}, ErrCartUnavailable
	}

	productID := strings.TrimSpace(cmd.ProductID)
	if productID == "" {
		return CartResult{}, fmt.Errorf("%w: product id is required", ErrCartInvalidInput)
	}
	// An absent or unparsable quantity adds a single unit, matching the
	// storefront form default. Explicit removal goes through SetItemQuantity.
	quantity := cmd.Quantity
	if quantity <= 0 {
		quantity = 1
	}

	if err := s.requirePurchasable(ctx, productID); err != nil {
		return CartResult{}, err
	}

	items, err := s.Resolve(ctx, cmd.State)
	if err != nil {
		return CartResult{}, err
	}
	if _, ok := items[productID]; !ok && len(items) >= maxCartDistinctLines {
		return CartResult{}, fmt.Errorf("%w: cart holds too many distinct products", ErrCartInvalidInput)
	}

	next := items[productID] + quantity
	if next > maxCartLineQuantity {
		next = maxCartLineQuantity
	}
	items[productID] = next

	persisted := s.persistItems(ctx, cmd.State.UserID, items, productID, next)
	return CartResult{Items: items, Persisted: persisted}, nil
}

func (s *cartService) RemoveItem(ctx context.Context, cmd RemoveCartItemCommand) (CartResult, error) {
	if s == nil || s.repo == nil {
		return CartResult{}, ErrCartUnavailable
	}

	productID := strings.TrimSpace(cmd.ProductID)
	if productID == "" {
		return CartResult{}, fmt.Errorf("%w: product id is required", ErrCartInvalidInput)
	}

	items, err := s.Resolve(ctx, cmd.State)
	if err != nil {
		return CartResult{}, err
	}
	delete(items, productID)

	persisted := s.persistItems(ctx, cmd.State.UserID, items, productID, 0)
	return CartResult{Items: items, Persisted: persisted}, nil
}

func (s *cartService) SetItemQuantity(ctx context.Context, cmd SetCartQuantityCommand) (CartResult, error) {
	if s == nil || s.repo == nil {
		return CartResult{}, ErrCartUnavailable
	}

	if cmd.Quantity <= 0 {
		return s.RemoveItem(ctx, RemoveCartItemCommand{State: cmd.State, ProductID: cmd.ProductID})
	}

	productID := strings.TrimSpace(cmd.ProductID)
	if productID == "" {
		return CartResult{}, fmt.Errorf("%w: product id is required", ErrCartInvalidInput)
	}
	if err := s.requirePurchasable(ctx, productID); err != nil {
		return CartResult{}, err
	}

	items, err := s.Resolve(ctx, cmd.State)
	if err != nil {
		return CartResult{}, err
	}

	qty := cmd.Quantity
	if qty > maxCartLineQuantity {
		qty = maxCartLineQuantity
	}
	if _, ok := items[productID]; !ok && len(items) >= maxCartDistinctLines {
		return CartResult{}, fmt.Errorf("%w: cart holds too many distinct products", ErrCartInvalidInput)
	}
	items[productID] = qty

	persisted := s.persistItems(ctx, cmd.State.UserID, items, productID, qty)
	return CartResult{Items: items, Persisted: persisted}, nil
}

func (s *cartService) Clear(ctx context.Context, state CartState) (CartResult, error) {
	if s == nil || s.repo == nil {
		return CartResult{}, ErrCartUnavailable
	}

	persisted := false
	uid := strings.TrimSpace(state.UserID)
	if uid != "" {
		if err := s.repo.Clear(ctx, uid); err != nil && !isRepoNotFound(err) {
			s.logger(ctx, "cart.clear_store_failed", map[string]any{
				"userID": uid,
				"error":  err.Error(),
			})
		} else {
			persisted = true
		}
	}
	return CartResult{Items: map[string]int{}, Persisted: persisted}, nil
}

// View prices the resolved cart. Product lookups fan out with a bounded group
// so a large cart does not serialise round trips; lines whose product vanished
// or was deactivated are kept but flagged and priced at zero.
func (s *cartService) View(ctx context.Context, state CartState) (CartView, error) {
	if s == nil || s.repo == nil {
		return CartView{}, ErrCartUnavailable
	}

	items, err := s.Resolve(ctx, state)
	if err != nil {
		return CartView{}, err
	}
	if len(items) == 0 {
		return CartView{Lines: []CartViewLine{}}, nil
	}

	ids := make([]string, 0, len(items))
	for id := range items {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	products := make([]*domain.Product, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cartViewFetchParallel)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			product, err := s.catalog.FindByID(gctx, id)
			if err != nil {
				if isRepoNotFound(err) {
					return nil
				}
				return translateCartRepoError(err)
			}
			products[i] = &product
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return CartView{}, err
	}

	view := CartView{Lines: make([]CartViewLine, 0, len(ids))}
	for i, id := range ids {
		qty := items[id]
		line := CartViewLine{ProductID: id, Quantity: qty, Unavailable: true}
		if p := products[i]; p != nil && p.Active {
			line.Unavailable = false
			line.Name = p.Name
			line.UnitPriceCents = p.PriceCents
			line.LineTotalCents = p.PriceCents * int64(qty)
			view.TotalCents += line.LineTotalCents
			view.ItemCount += qty
		} else if p != nil {
			line.Name = p.Name
		}
		view.Lines = append(view.Lines, line)
	}
	return view, nil
}

// persistItems writes the authoritative cart through to the durable backing
// and verifies the write landed. Failures are logged, not returned: the
// session copy already holds the cart, so the caller's mutation succeeded.
func (s *cartService) persistItems(ctx context.Context, userID string, items map[string]int, productID string, wantQty int) bool {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return false
	}

	now := s.now()
	saved, err := s.repo.ReplaceItems(ctx, uid, cartItemsFromMap(items, now), now)
	if err != nil {
		s.logger(ctx, "cart.persist_failed", map[string]any{
			"userID":    uid,
			"productID": productID,
			"error":     err.Error(),
		})
		return false
	}

	got := cartItemQuantities(saved.Items)
	if got[productID] != wantQty {
		s.logger(ctx, "cart.persist_verify_mismatch", map[string]any{
			"userID":    uid,
			"productID": productID,
			"want":      wantQty,
			"got":       got[productID],
		})
		return false
	}
	return true
}

func (s *cartService) requirePurchasable(ctx context.Context, productID string) error {
	product, err := s.catalog.FindByID(ctx, productID)
	if err != nil {
		if isRepoNotFound(err) {
			return fmt.Errorf("%w: %s", ErrCartProductNotFound, productID)
		}
		return translateCartRepoError(err)
	}
	if !product.Active {
		return fmt.Errorf("%w: %s", ErrCartProductNotFound, productID)
	}
	return nil
}

func normaliseCartItems(items map[string]int) map[string]int {
	out := make(map[string]int, len(items))
	for id, qty := range items {
		id = strings.TrimSpace(id)
		if id == "" || qty <= 0 {
			continue
		}
		out[id] = qty
	}
	return out
}

func cartItemQuantities(items []domain.CartItem) map[string]int {
	out := make(map[string]int, len(items))
	for _, item := range items {
		if item.Quantity <= 0 {
			continue
		}
		out[item.ProductID] = item.Quantity
	}
	return out
}

func cartItemsFromMap(items map[string]int, now time.Time) []domain.CartItem {
	ids := make([]string, 0, len(items))
	for id := range items {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]domain.CartItem, 0, len(ids))
	for _, id := range ids {
		out = append(out, domain.CartItem{ProductID: id, Quantity: items[id], AddedAt: now})
	}
	return out
}

func translateCartRepoError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrCartProductNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrCartInvalidInput, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrCartUnavailable, err)
		}
	}
	return fmt.Errorf("%w: %v", ErrCartUnavailable, err)
}

func isRepoNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		return repoErr.IsNotFound()
	}
	return false
}
