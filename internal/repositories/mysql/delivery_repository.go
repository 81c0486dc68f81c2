package mysql

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	domain "github.com/elegance-boutique/api/internal/domain"
)

type deliveryRepository struct {
	db *sqlx.DB
}

type deliveryRow struct {
	ID             string       `db:"id"`
	OrderID        string       `db:"order_id"`
	TrackingNumber string       `db:"tracking_number"`
	Carrier        string       `db:"carrier"`
	Status         string       `db:"status"`
	CreatedAt      time.Time    `db:"created_at"`
	UpdatedAt      time.Time    `db:"updated_at"`
	ShippedAt      sql.NullTime `db:"shipped_at"`
	DeliveredAt    sql.NullTime `db:"delivered_at"`
}

func (r deliveryRow) toDomain() domain.Delivery {
	return domain.Delivery{
		ID:             r.ID,
		OrderID:        r.OrderID,
		TrackingNumber: r.TrackingNumber,
		Carrier:        r.Carrier,
		Status:         domain.DeliveryStatus(r.Status),
		CreatedAt:      r.CreatedAt.UTC(),
		UpdatedAt:      r.UpdatedAt.UTC(),
		ShippedAt:      nullTimePtr(r.ShippedAt),
		DeliveredAt:    nullTimePtr(r.DeliveredAt),
	}
}

const deliveryColumns = "id, order_id, tracking_number, carrier, status, created_at, updated_at, shipped_at, delivered_at"

// Insert relies on the unique index over tracking_number: a collision with an
// existing number surfaces as a conflict error so the caller can regenerate.
func (r *deliveryRepository) Insert(ctx context.Context, delivery domain.Delivery) error {
	const query = `
		INSERT INTO deliveries (id, order_id, tracking_number, carrier, status, created_at, updated_at, shipped_at, delivered_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := chooseExecer(ctx, r.db).ExecContext(ctx, query,
		delivery.ID, delivery.OrderID, delivery.TrackingNumber, delivery.Carrier, string(delivery.Status),
		delivery.CreatedAt.UTC(), delivery.UpdatedAt.UTC(),
		timePtrNull(delivery.ShippedAt), timePtrNull(delivery.DeliveredAt)); err != nil {
		return wrapError(err, "insert delivery")
	}
	return nil
}

func (r *deliveryRepository) Update(ctx context.Context, delivery domain.Delivery) error {
	const query = `
		UPDATE deliveries
		SET tracking_number = ?, carrier = ?, status = ?, updated_at = ?, shipped_at = ?, delivered_at = ?
		WHERE id = ?`
	res, err := chooseExecer(ctx, r.db).ExecContext(ctx, query,
		delivery.TrackingNumber, delivery.Carrier, string(delivery.Status), delivery.UpdatedAt.UTC(),
		timePtrNull(delivery.ShippedAt), timePtrNull(delivery.DeliveredAt), delivery.ID)
	if err != nil {
		return wrapError(err, "update delivery")
	}
	if rows, err := res.RowsAffected(); err == nil && rows == 0 {
		if _, findErr := r.FindByOrder(ctx, delivery.OrderID); findErr != nil {
			return findErr
		}
	}
	return nil
}

func (r *deliveryRepository) FindByOrder(ctx context.Context, orderID string) (domain.Delivery, error) {
	var row deliveryRow
	if err := chooseExecer(ctx, r.db).GetContext(ctx, &row,
		"SELECT "+deliveryColumns+" FROM deliveries WHERE order_id = ?", orderID); err != nil {
		return domain.Delivery{}, wrapError(err, "find delivery by order")
	}
	return row.toDomain(), nil
}

func (r *deliveryRepository) FindByTrackingNumber(ctx context.Context, trackingNumber string) (domain.Delivery, error) {
	var row deliveryRow
	if err := chooseExecer(ctx, r.db).GetContext(ctx, &row,
		"SELECT "+deliveryColumns+" FROM deliveries WHERE tracking_number = ?", trackingNumber); err != nil {
		return domain.Delivery{}, wrapError(err, "find delivery by tracking number")
	}
	return row.toDomain(), nil
}
