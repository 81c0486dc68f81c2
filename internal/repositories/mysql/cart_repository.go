package mysql

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	domain "github.com/elegance-boutique/api/internal/domain"
)

type cartRepository struct {
	db *sqlx.DB
}

type cartRow struct {
	ID        string    `db:"id"`
	UserID    string    `db:"user_id"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

type cartItemRow struct {
	CartID    string    `db:"cart_id"`
	ProductID string    `db:"product_id"`
	Quantity  int       `db:"quantity"`
	AddedAt   time.Time `db:"added_at"`
}

func (r *cartRepository) GetCart(ctx context.Context, userID string) (domain.Cart, error) {
	ex := chooseExecer(ctx, r.db)

	var header cartRow
	if err := ex.GetContext(ctx, &header, "SELECT id, user_id, created_at, updated_at FROM carts WHERE user_id = ?", userID); err != nil {
		return domain.Cart{}, wrapError(err, "get cart")
	}

	var items []cartItemRow
	if err := ex.SelectContext(ctx, &items,
		"SELECT cart_id, product_id, quantity, added_at FROM cart_items WHERE cart_id = ? ORDER BY product_id ASC", header.ID); err != nil {
		return domain.Cart{}, wrapError(err, "get cart items")
	}

	cart := domain.Cart{
		ID:        header.ID,
		UserID:    header.UserID,
		Items:     make([]domain.CartItem, 0, len(items)),
		CreatedAt: header.CreatedAt.UTC(),
		UpdatedAt: header.UpdatedAt.UTC(),
	}
	for _, item := range items {
		cart.Items = append(cart.Items, domain.CartItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			AddedAt:   item.AddedAt.UTC(),
		})
	}
	return cart, nil
}

func (r *cartRepository) UpsertCart(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
	if cart.ID == "" || cart.UserID == "" {
		return domain.Cart{}, errors.New("mysql: upsert cart: id and user id are required")
	}
	const query = `
		INSERT INTO carts (id, user_id, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE updated_at = VALUES(updated_at)`
	ex := chooseExecer(ctx, r.db)
	if _, err := ex.ExecContext(ctx, query, cart.ID, cart.UserID, cart.CreatedAt.UTC(), cart.UpdatedAt.UTC()); err != nil {
		return domain.Cart{}, wrapError(err, "upsert cart")
	}
	return r.GetCart(ctx, cart.UserID)
}

// ReplaceItems swaps the full line set for the user's cart in one transaction,
// creating the cart header when absent.
func (r *cartRepository) ReplaceItems(ctx context.Context, userID string, items []domain.CartItem, now time.Time) (domain.Cart, error) {
	ex := chooseExecer(ctx, r.db)

	cartID := userID
	var header cartRow
	err := ex.GetContext(ctx, &header, "SELECT id, user_id, created_at, updated_at FROM carts WHERE user_id = ?", userID)
	switch {
	case err == nil:
		cartID = header.ID
	case errors.Is(err, sql.ErrNoRows):
		if _, err := ex.ExecContext(ctx,
			"INSERT INTO carts (id, user_id, created_at, updated_at) VALUES (?, ?, ?, ?)",
			cartID, userID, now.UTC(), now.UTC()); err != nil {
			return domain.Cart{}, wrapError(err, "create cart")
		}
	default:
		return domain.Cart{}, wrapError(err, "load cart header")
	}

	if _, err := ex.ExecContext(ctx, "DELETE FROM cart_items WHERE cart_id = ?", cartID); err != nil {
		return domain.Cart{}, wrapError(err, "clear cart items")
	}

	for _, item := range items {
		if item.Quantity <= 0 {
			continue
		}
		addedAt := item.AddedAt
		if addedAt.IsZero() {
			addedAt = now
		}
		if _, err := ex.ExecContext(ctx,
			"INSERT INTO cart_items (cart_id, product_id, quantity, added_at) VALUES (?, ?, ?, ?)",
			cartID, item.ProductID, item.Quantity, addedAt.UTC()); err != nil {
			return domain.Cart{}, wrapError(err, "insert cart item")
		}
	}

	if _, err := ex.ExecContext(ctx, "UPDATE carts SET updated_at = ? WHERE id = ?", now.UTC(), cartID); err != nil {
		return domain.Cart{}, wrapError(err, "touch cart")
	}

	return r.GetCart(ctx, userID)
}

func (r *cartRepository) Clear(ctx context.Context, userID string) error {
	ex := chooseExecer(ctx, r.db)

	var cartID string
	err := ex.GetContext(ctx, &cartID, "SELECT id FROM carts WHERE user_id = ?", userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return wrapError(err, "clear cart")
	}
	if _, err := ex.ExecContext(ctx, "DELETE FROM cart_items WHERE cart_id = ?", cartID); err != nil {
		return wrapError(err, "clear cart items")
	}
	if _, err := ex.ExecContext(ctx, "UPDATE carts SET updated_at = UTC_TIMESTAMP() WHERE id = ?", cartID); err != nil {
		return wrapError(err, "touch cart")
	}
	return nil
}
