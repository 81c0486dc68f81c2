package mysql

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	domain "github.com/elegance-boutique/api/internal/domain"
)

type paymentRepository struct {
	db *sqlx.DB
}

type paymentRow struct {
	ID             string         `db:"id"`
	OrderID        string         `db:"order_id"`
	Provider       string         `db:"provider"`
	AmountCents    int64          `db:"amount_cents"`
	Status         string         `db:"status"`
	TransactionRef string         `db:"transaction_ref"`
	FailureReason  sql.NullString `db:"failure_reason"`
	CreatedAt      time.Time      `db:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at"`
	RefundedAt     sql.NullTime   `db:"refunded_at"`
}

func (r paymentRow) toDomain() domain.Payment {
	payment := domain.Payment{
		ID:             r.ID,
		OrderID:        r.OrderID,
		Provider:       r.Provider,
		AmountCents:    r.AmountCents,
		Status:         domain.PaymentStatus(r.Status),
		TransactionRef: r.TransactionRef,
		CreatedAt:      r.CreatedAt.UTC(),
		UpdatedAt:      r.UpdatedAt.UTC(),
	}
	if r.FailureReason.Valid {
		payment.FailureReason = r.FailureReason.String
	}
	payment.RefundedAt = nullTimePtr(r.RefundedAt)
	return payment
}

func (r *paymentRepository) Insert(ctx context.Context, payment domain.Payment) error {
	const query = `
		INSERT INTO payments (id, order_id, provider, amount_cents, status, transaction_ref, failure_reason, created_at, updated_at, refunded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := chooseExecer(ctx, r.db).ExecContext(ctx, query,
		payment.ID, payment.OrderID, payment.Provider, payment.AmountCents, string(payment.Status),
		payment.TransactionRef, stringNull(payment.FailureReason),
		payment.CreatedAt.UTC(), payment.UpdatedAt.UTC(), timePtrNull(payment.RefundedAt)); err != nil {
		return wrapError(err, "insert payment")
	}
	return nil
}

func (r *paymentRepository) Update(ctx context.Context, payment domain.Payment) error {
	const query = `
		UPDATE payments
		SET status = ?, failure_reason = ?, updated_at = ?, refunded_at = ?
		WHERE id = ?`
	res, err := chooseExecer(ctx, r.db).ExecContext(ctx, query,
		string(payment.Status), stringNull(payment.FailureReason), payment.UpdatedAt.UTC(),
		timePtrNull(payment.RefundedAt), payment.ID)
	if err != nil {
		return wrapError(err, "update payment")
	}
	if rows, err := res.RowsAffected(); err == nil && rows == 0 {
		var exists int
		if getErr := chooseExecer(ctx, r.db).GetContext(ctx, &exists, "SELECT 1 FROM payments WHERE id = ?", payment.ID); getErr != nil {
			return wrapError(getErr, "update payment")
		}
	}
	return nil
}

func (r *paymentRepository) ListByOrder(ctx context.Context, orderID string) ([]domain.Payment, error) {
	const query = `
		SELECT id, order_id, provider, amount_cents, status, transaction_ref, failure_reason, created_at, updated_at, refunded_at
		FROM payments WHERE order_id = ? ORDER BY created_at ASC, id ASC`
	var rows []paymentRow
	if err := chooseExecer(ctx, r.db).SelectContext(ctx, &rows, query, orderID); err != nil {
		return nil, wrapError(err, "list payments")
	}
	payments := make([]domain.Payment, 0, len(rows))
	for _, row := range rows {
		payments = append(payments, row.toDomain())
	}
	return payments, nil
}
