package mysql

import (
	"context"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/elegance-boutique/api/internal/repositories"
)

// Config carries the connection settings for the MySQL backing store.
type Config struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnectTimeout  time.Duration
}

// Open establishes a pooled connection and verifies it before returning.
func Open(ctx context.Context, cfg Config) (*sqlx.DB, error) {
	if cfg.DSN == "" {
		return nil, errors.New("mysql: dsn is required")
	}
	if _, err := mysql.ParseDSN(cfg.DSN); err != nil {
		return nil, errors.Wrap(err, "mysql: invalid dsn")
	}

	db, err := sqlx.Open("mysql", cfg.DSN)
	if err != nil {
		return nil, errors.Wrap(err, "mysql: open")
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	pingCtx := ctx
	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "mysql: ping")
	}

	return db, nil
}

// Registry bundles the MySQL repository implementations behind the shared
// repositories.Registry contract.
type Registry struct {
	db *sqlx.DB

	products   *productRepository
	carts      *cartRepository
	orders     *orderRepository
	payments   *paymentRepository
	deliveries *deliveryRepository
	invoices   *invoiceRepository
	health     *healthRepository
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry wires repositories over the provided database handle.
func NewRegistry(db *sqlx.DB) (*Registry, error) {
	if db == nil {
		return nil, errors.New("mysql: db handle is required")
	}
	return &Registry{
		db:         db,
		products:   &productRepository{db: db},
		carts:      &cartRepository{db: db},
		orders:     &orderRepository{db: db},
		payments:   &paymentRepository{db: db},
		deliveries: &deliveryRepository{db: db},
		invoices:   &invoiceRepository{db: db},
		health:     &healthRepository{db: db},
	}, nil
}

// Close releases the underlying connection pool.
func (r *Registry) Close(context.Context) error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

func (r *Registry) Products() repositories.ProductRepository    { return r.products }
func (r *Registry) Carts() repositories.CartRepository          { return r.carts }
func (r *Registry) Orders() repositories.OrderRepository        { return r.orders }
func (r *Registry) Payments() repositories.PaymentRepository    { return r.payments }
func (r *Registry) Deliveries() repositories.DeliveryRepository { return r.deliveries }
func (r *Registry) Invoices() repositories.InvoiceRepository    { return r.invoices }
func (r *Registry) Health() repositories.HealthRepository       { return r.health }

type txContextKey struct{}

// RunInTx executes fn inside a single database transaction. Repositories
// invoked with the derived context share the transaction; any error rolls the
// whole unit back, which also restores conditional stock updates.
func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if r == nil || r.db == nil {
		return errors.New("mysql: registry not initialised")
	}
	if txFromContext(ctx) != nil {
		// Nested units join the enclosing transaction.
		return fn(ctx)
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return wrapError(err, "begin transaction")
	}

	txCtx := context.WithValue(ctx, txContextKey{}, tx)
	if err := fn(txCtx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Wrapf(err, "mysql: rollback failed: %v", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return wrapError(err, "commit transaction")
	}
	return nil
}

func txFromContext(ctx context.Context) *sqlx.Tx {
	if ctx == nil {
		return nil
	}
	tx, _ := ctx.Value(txContextKey{}).(*sqlx.Tx)
	return tx
}

// execer abstracts *sqlx.DB and *sqlx.Tx so repositories transparently join
// an ambient transaction.
type execer interface {
	sqlx.ExtContext
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
}

func chooseExecer(ctx context.Context, db *sqlx.DB) execer {
	if tx := txFromContext(ctx); tx != nil {
		return tx
	}
	return db
}
