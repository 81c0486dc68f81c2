package mysql

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	domain "github.com/elegance-boutique/api/internal/domain"
)

type invoiceRepository struct {
	db *sqlx.DB
}

type invoiceRow struct {
	ID         string    `db:"id"`
	OrderID    string    `db:"order_id"`
	Number     string    `db:"number"`
	TotalCents int64     `db:"total_cents"`
	IssuedAt   time.Time `db:"issued_at"`
}

type invoiceLineRow struct {
	ID             int64  `db:"id"`
	InvoiceID      string `db:"invoice_id"`
	Description    string `db:"description"`
	UnitPriceCents int64  `db:"unit_price_cents"`
	Quantity       int    `db:"quantity"`
	TotalCents     int64  `db:"total_cents"`
}

func (r *invoiceRepository) Insert(ctx context.Context, invoice domain.Invoice) error {
	ex := chooseExecer(ctx, r.db)

	const header = `
		INSERT INTO invoices (id, order_id, number, total_cents, issued_at)
		VALUES (?, ?, ?, ?, ?)`
	if _, err := ex.ExecContext(ctx, header,
		invoice.ID, invoice.OrderID, invoice.Number, invoice.TotalCents, invoice.IssuedAt.UTC()); err != nil {
		return wrapError(err, "insert invoice")
	}

	const line = `
		INSERT INTO invoice_lines (invoice_id, description, unit_price_cents, quantity, total_cents)
		VALUES (?, ?, ?, ?, ?)`
	for _, item := range invoice.Lines {
		if _, err := ex.ExecContext(ctx, line,
			invoice.ID, item.Description, item.UnitPriceCents, item.Quantity, item.TotalCents); err != nil {
			return wrapError(err, "insert invoice line")
		}
	}
	return nil
}

func (r *invoiceRepository) FindByOrder(ctx context.Context, orderID string) (domain.Invoice, error) {
	ex := chooseExecer(ctx, r.db)

	var row invoiceRow
	if err := ex.GetContext(ctx, &row,
		"SELECT id, order_id, number, total_cents, issued_at FROM invoices WHERE order_id = ?", orderID); err != nil {
		return domain.Invoice{}, wrapError(err, "find invoice")
	}

	var lines []invoiceLineRow
	if err := ex.SelectContext(ctx, &lines,
		"SELECT id, invoice_id, description, unit_price_cents, quantity, total_cents FROM invoice_lines WHERE invoice_id = ? ORDER BY id ASC", row.ID); err != nil {
		return domain.Invoice{}, wrapError(err, "find invoice lines")
	}

	invoice := domain.Invoice{
		ID:         row.ID,
		OrderID:    row.OrderID,
		Number:     row.Number,
		TotalCents: row.TotalCents,
		IssuedAt:   row.IssuedAt.UTC(),
		Lines:      make([]domain.InvoiceLine, 0, len(lines)),
	}
	for _, item := range lines {
		invoice.Lines = append(invoice.Lines, domain.InvoiceLine{
			ID:             item.ID,
			InvoiceID:      item.InvoiceID,
			Description:    item.Description,
			UnitPriceCents: item.UnitPriceCents,
			Quantity:       item.Quantity,
			TotalCents:     item.TotalCents,
		})
	}
	return invoice, nil
}
