package mysql

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	domain "github.com/elegance-boutique/api/internal/domain"
	"github.com/elegance-boutique/api/internal/repositories"
)

type orderRepository struct {
	db *sqlx.DB
}

type orderRow struct {
	ID           string         `db:"id"`
	UserID       string         `db:"user_id"`
	Status       string         `db:"status"`
	TotalCents   int64          `db:"total_cents"`
	CancelReason sql.NullString `db:"cancel_reason"`
	CreatedAt    time.Time      `db:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at"`
	ValidatedAt  sql.NullTime   `db:"validated_at"`
	PaidAt       sql.NullTime   `db:"paid_at"`
	ShippedAt    sql.NullTime   `db:"shipped_at"`
	DeliveredAt  sql.NullTime   `db:"delivered_at"`
	CancelledAt  sql.NullTime   `db:"cancelled_at"`
	RefundedAt   sql.NullTime   `db:"refunded_at"`
}

type orderItemRow struct {
	ID             int64  `db:"id"`
	OrderID        string `db:"order_id"`
	ProductID      string `db:"product_id"`
	ProductName    string `db:"product_name"`
	UnitPriceCents int64  `db:"unit_price_cents"`
	Quantity       int    `db:"quantity"`
}

const orderColumns = "id, user_id, status, total_cents, cancel_reason, created_at, updated_at, validated_at, paid_at, shipped_at, delivered_at, cancelled_at, refunded_at"

func (r orderRow) toDomain() domain.Order {
	order := domain.Order{
		ID:         r.ID,
		UserID:     r.UserID,
		Status:     domain.OrderStatus(r.Status),
		TotalCents: r.TotalCents,
		CreatedAt:  r.CreatedAt.UTC(),
		UpdatedAt:  r.UpdatedAt.UTC(),
	}
	if r.CancelReason.Valid {
		order.CancelReason = r.CancelReason.String
	}
	order.ValidatedAt = nullTimePtr(r.ValidatedAt)
	order.PaidAt = nullTimePtr(r.PaidAt)
	order.ShippedAt = nullTimePtr(r.ShippedAt)
	order.DeliveredAt = nullTimePtr(r.DeliveredAt)
	order.CancelledAt = nullTimePtr(r.CancelledAt)
	order.RefundedAt = nullTimePtr(r.RefundedAt)
	return order
}

func nullTimePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	ts := t.Time.UTC()
	return &ts
}

func timePtrNull(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func stringNull(v string) sql.NullString {
	if v == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: v, Valid: true}
}

func (r *orderRepository) Insert(ctx context.Context, order domain.Order) error {
	ex := chooseExecer(ctx, r.db)

	const header = `
		INSERT INTO orders (id, user_id, status, total_cents, cancel_reason, created_at, updated_at,
		                    validated_at, paid_at, shipped_at, delivered_at, cancelled_at, refunded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := ex.ExecContext(ctx, header,
		order.ID, order.UserID, string(order.Status), order.TotalCents, stringNull(order.CancelReason),
		order.CreatedAt.UTC(), order.UpdatedAt.UTC(),
		timePtrNull(order.ValidatedAt), timePtrNull(order.PaidAt), timePtrNull(order.ShippedAt),
		timePtrNull(order.DeliveredAt), timePtrNull(order.CancelledAt), timePtrNull(order.RefundedAt)); err != nil {
		return wrapError(err, "insert order")
	}

	const line = `
		INSERT INTO order_items (order_id, product_id, product_name, unit_price_cents, quantity)
		VALUES (?, ?, ?, ?, ?)`
	for _, item := range order.Items {
		if _, err := ex.ExecContext(ctx, line,
			order.ID, item.ProductID, item.ProductName, item.UnitPriceCents, item.Quantity); err != nil {
			return wrapError(err, "insert order item")
		}
	}
	return nil
}

// Update rewrites the mutable header columns; snapshotted items never change.
func (r *orderRepository) Update(ctx context.Context, order domain.Order) error {
	const query = `
		UPDATE orders
		SET status = ?, total_cents = ?, cancel_reason = ?, updated_at = ?,
		    validated_at = ?, paid_at = ?, shipped_at = ?, delivered_at = ?, cancelled_at = ?, refunded_at = ?
		WHERE id = ?`
	res, err := chooseExecer(ctx, r.db).ExecContext(ctx, query,
		string(order.Status), order.TotalCents, stringNull(order.CancelReason), order.UpdatedAt.UTC(),
		timePtrNull(order.ValidatedAt), timePtrNull(order.PaidAt), timePtrNull(order.ShippedAt),
		timePtrNull(order.DeliveredAt), timePtrNull(order.CancelledAt), timePtrNull(order.RefundedAt),
		order.ID)
	if err != nil {
		return wrapError(err, "update order")
	}
	if rows, err := res.RowsAffected(); err == nil && rows == 0 {
		if _, findErr := r.FindByID(ctx, order.ID); findErr != nil {
			return findErr
		}
	}
	return nil
}

func (r *orderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	ex := chooseExecer(ctx, r.db)

	var row orderRow
	if err := ex.GetContext(ctx, &row, "SELECT "+orderColumns+" FROM orders WHERE id = ?", orderID); err != nil {
		return domain.Order{}, wrapError(err, "find order")
	}

	var items []orderItemRow
	if err := ex.SelectContext(ctx, &items,
		"SELECT id, order_id, product_id, product_name, unit_price_cents, quantity FROM order_items WHERE order_id = ? ORDER BY product_id ASC", orderID); err != nil {
		return domain.Order{}, wrapError(err, "find order items")
	}

	order := row.toDomain()
	order.Items = make([]domain.OrderItem, 0, len(items))
	for _, item := range items {
		order.Items = append(order.Items, domain.OrderItem{
			ID:             item.ID,
			OrderID:        item.OrderID,
			ProductID:      item.ProductID,
			ProductName:    item.ProductName,
			UnitPriceCents: item.UnitPriceCents,
			Quantity:       item.Quantity,
		})
	}
	return order, nil
}

func (r *orderRepository) List(ctx context.Context, filter repositories.OrderListFilter) ([]domain.Order, error) {
	var (
		clauses []string
		args    []any
	)
	if userID := strings.TrimSpace(filter.UserID); userID != "" {
		clauses = append(clauses, "user_id = ?")
		args = append(args, userID)
	}
	if len(filter.Status) > 0 {
		placeholders := make([]string, 0, len(filter.Status))
		for _, status := range filter.Status {
			placeholders = append(placeholders, "?")
			args = append(args, string(status))
		}
		clauses = append(clauses, "status IN ("+strings.Join(placeholders, ", ")+")")
	}
	if filter.DateRange.From != nil {
		clauses = append(clauses, "created_at >= ?")
		args = append(args, filter.DateRange.From.UTC())
	}
	if filter.DateRange.To != nil {
		clauses = append(clauses, "created_at <= ?")
		args = append(args, filter.DateRange.To.UTC())
	}

	query := "SELECT " + orderColumns + " FROM orders"
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"
	if filter.Pagination.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Pagination.Limit)
		if filter.Pagination.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, filter.Pagination.Offset)
		}
	}

	var rows []orderRow
	if err := chooseExecer(ctx, r.db).SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, wrapError(err, "list orders")
	}
	orders := make([]domain.Order, 0, len(rows))
	for _, row := range rows {
		orders = append(orders, row.toDomain())
	}
	return orders, nil
}
