package mysql

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	domain "github.com/elegance-boutique/api/internal/domain"
)

type healthRepository struct {
	db *sqlx.DB
}

// Collect pings the database with a short deadline so readiness probes fail
// fast when the pool is exhausted or the server is gone.
func (r *healthRepository) Collect(ctx context.Context) (domain.SystemHealthReport, error) {
	checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	report := domain.SystemHealthReport{
		Healthy:    true,
		Components: map[string]domain.ComponentHealth{},
		CheckedAt:  time.Now().UTC(),
	}

	if err := r.db.PingContext(checkCtx); err != nil {
		report.Healthy = false
		report.Components["mysql"] = domain.ComponentHealth{Healthy: false, Detail: err.Error()}
		return report, nil
	}
	report.Components["mysql"] = domain.ComponentHealth{Healthy: true}
	return report, nil
}
