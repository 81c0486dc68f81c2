package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/elegance-boutique/api/internal/repositories"
)

var (
	errCatalogRepositoryRequired = errors.New("catalog service: repository is required")
	errCatalogClockRequired      = errors.New("catalog service: clock is required")
)

const (
	maxProductNameLength        = 200
	maxProductDescriptionLength = 4000
	maxProductCategoryLength    = 80
	defaultProductPageSize      = 50
	maxProductPageSize          = 200
)

// ErrCatalogInvalidInput indicates the caller supplied invalid input.
var ErrCatalogInvalidInput = errors.New("catalog service: invalid input")

// ErrCatalogNotFound indicates the requested product does not exist.
var ErrCatalogNotFound = errors.New("catalog service: not found")

// ErrCatalogUnavailable indicates the catalog backend cannot fulfil the request.
var ErrCatalogUnavailable = errors.New("catalog service: unavailable")

// CatalogServiceDeps wires the repository and utility dependencies for catalogue operations.
type CatalogServiceDeps struct {
	Repository  repositories.ProductRepository
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(context.Context, string, map[string]any)
}

type catalogService struct {
	repo   repositories.ProductRepository
	now    func() time.Time
	newID  func() string
	logger func(context.Context, string, map[string]any)
}

// NewCatalogService constructs a CatalogService enforcing dependency validation.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Repository == nil {
		return nil, errCatalogRepositoryRequired
	}
	if deps.Clock == nil {
		return nil, errCatalogClockRequired
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return "prd_" + ulid.Make().String() }
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	service := &catalogService{
		repo:   deps.Repository,
		now:    func() time.Time { return deps.Clock().UTC() },
		newID:  idGen,
		logger: logger,
	}
	return service, nil
}

// GetProduct returns the product regardless of its active flag; availability
// filtering is the caller's concern.
func (s *catalogService) GetProduct(ctx context.Context, productID string) (Product, error) {
	if s == nil || s.repo == nil {
		return Product{}, ErrCatalogUnavailable
	}

	id := strings.TrimSpace(productID)
	if id == "" {
		return Product{}, fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}

	product, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return Product{}, translateCatalogRepoError(err)
	}
	return product, nil
}

func (s *catalogService) ListProducts(ctx context.Context, query ProductListQuery) ([]Product, error) {
	if s == nil || s.repo == nil {
		return nil, ErrCatalogUnavailable
	}

	pager := query.Pagination
	if pager.Limit <= 0 {
		pager.Limit = defaultProductPageSize
	}
	if pager.Limit > maxProductPageSize {
		pager.Limit = maxProductPageSize
	}
	if pager.Offset < 0 {
		pager.Offset = 0
	}

	filter := repositories.ProductListFilter{
		Category:      strings.TrimSpace(query.Category),
		IncludeHidden: query.IncludeHidden,
		Pagination:    pager,
	}

	products, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, translateCatalogRepoError(err)
	}
	return products, nil
}

func (s *catalogService) CreateProduct(ctx context.Context, cmd CreateProductCommand) (Product, error) {
	if s == nil || s.repo == nil {
		return Product{}, ErrCatalogUnavailable
	}

	name := strings.TrimSpace(cmd.Name)
	if name == "" {
		return Product{}, fmt.Errorf("%w: name is required", ErrCatalogInvalidInput)
	}
	if len(name) > maxProductNameLength {
		return Product{}, fmt.Errorf("%w: name exceeds %d characters", ErrCatalogInvalidInput, maxProductNameLength)
	}
	if len(cmd.Description) > maxProductDescriptionLength {
		return Product{}, fmt.Errorf("%w: description exceeds %d characters", ErrCatalogInvalidInput, maxProductDescriptionLength)
	}
	category := strings.TrimSpace(cmd.Category)
	if len(category) > maxProductCategoryLength {
		return Product{}, fmt.Errorf("%w: category exceeds %d characters", ErrCatalogInvalidInput, maxProductCategoryLength)
	}
	if cmd.PriceCents < 0 {
		return Product{}, fmt.Errorf("%w: price must not be negative", ErrCatalogInvalidInput)
	}
	if cmd.StockQty < 0 {
		return Product{}, fmt.Errorf("%w: stock must not be negative", ErrCatalogInvalidInput)
	}

	now := s.now()
	product := Product{
		ID:          s.newID(),
		Name:        name,
		Description: strings.TrimSpace(cmd.Description),
		Category:    category,
		PriceCents:  cmd.PriceCents,
		StockQty:    cmd.StockQty,
		ImageURL:    strings.TrimSpace(cmd.ImageURL),
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.repo.Insert(ctx, product); err != nil {
		return Product{}, translateCatalogRepoError(err)
	}

	s.logger(ctx, "catalog.product_created", map[string]any{
		"productID": product.ID,
		"name":      product.Name,
	})
	return product, nil
}

func (s *catalogService) UpdateProduct(ctx context.Context, cmd UpdateProductCommand) (Product, error) {
	if s == nil || s.repo == nil {
		return Product{}, ErrCatalogUnavailable
	}

	id := strings.TrimSpace(cmd.ProductID)
	if id == "" {
		return Product{}, fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}
	if cmd.Name == nil && cmd.Description == nil && cmd.Category == nil && cmd.PriceCents == nil && cmd.ImageURL == nil && cmd.Active == nil {
		return Product{}, fmt.Errorf("%w: no fields to update", ErrCatalogInvalidInput)
	}

	product, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return Product{}, translateCatalogRepoError(err)
	}

	if cmd.Name != nil {
		name := strings.TrimSpace(*cmd.Name)
		if name == "" {
			return Product{}, fmt.Errorf("%w: name must not be empty", ErrCatalogInvalidInput)
		}
		if len(name) > maxProductNameLength {
			return Product{}, fmt.Errorf("%w: name exceeds %d characters", ErrCatalogInvalidInput, maxProductNameLength)
		}
		product.Name = name
	}
	if cmd.Description != nil {
		if len(*cmd.Description) > maxProductDescriptionLength {
			return Product{}, fmt.Errorf("%w: description exceeds %d characters", ErrCatalogInvalidInput, maxProductDescriptionLength)
		}
		product.Description = strings.TrimSpace(*cmd.Description)
	}
	if cmd.Category != nil {
		category := strings.TrimSpace(*cmd.Category)
		if len(category) > maxProductCategoryLength {
			return Product{}, fmt.Errorf("%w: category exceeds %d characters", ErrCatalogInvalidInput, maxProductCategoryLength)
		}
		product.Category = category
	}
	if cmd.PriceCents != nil {
		if *cmd.PriceCents < 0 {
			return Product{}, fmt.Errorf("%w: price must not be negative", ErrCatalogInvalidInput)
		}
		product.PriceCents = *cmd.PriceCents
	}
	if cmd.ImageURL != nil {
		product.ImageURL = strings.TrimSpace(*cmd.ImageURL)
	}
	if cmd.Active != nil {
		product.Active = *cmd.Active
	}
	product.UpdatedAt = s.now()

	if err := s.repo.Update(ctx, product); err != nil {
		return Product{}, translateCatalogRepoError(err)
	}
	return product, nil
}

// SetStock overwrites the absolute stock level. Relative adjustments go through
// the order flow's reserve and release paths instead.
func (s *catalogService) SetStock(ctx context.Context, cmd SetStockCommand) (Product, error) {
	if s == nil || s.repo == nil {
		return Product{}, ErrCatalogUnavailable
	}

	id := strings.TrimSpace(cmd.ProductID)
	if id == "" {
		return Product{}, fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}
	if cmd.StockQty < 0 {
		return Product{}, fmt.Errorf("%w: stock must not be negative", ErrCatalogInvalidInput)
	}

	now := s.now()
	if err := s.repo.SetStock(ctx, id, cmd.StockQty, now); err != nil {
		return Product{}, translateCatalogRepoError(err)
	}

	product, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return Product{}, translateCatalogRepoError(err)
	}

	s.logger(ctx, "catalog.stock_set", map[string]any{
		"productID": id,
		"stockQty":  cmd.StockQty,
	})
	return product, nil
}

// DeactivateProduct hides the product from the storefront without deleting it,
// so existing order snapshots keep referring to a real row.
func (s *catalogService) DeactivateProduct(ctx context.Context, productID string) (Product, error) {
	inactive := false
	return s.UpdateProduct(ctx, UpdateProductCommand{ProductID: productID, Active: &inactive})
}

func translateCatalogRepoError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrCatalogNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrCatalogInvalidInput, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrCatalogUnavailable, err)
		}
	}
	return fmt.Errorf("%w: %v", ErrCatalogUnavailable, err)
}
