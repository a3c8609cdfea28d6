package services

import (
	"context"
	"time"

	"github.com/pandeptwidyaop/trp-api/internal/database"
)

// HealthService answers the liveness and readiness probes.
type HealthService struct {
	db      *database.DB
	timeout time.Duration
}

// NewHealthService creates a HealthService. Each probe is bounded by timeout.
func NewHealthService(db *database.DB, timeout time.Duration) *HealthService {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HealthService{db: db, timeout: timeout}
}

// Liveness runs SELECT 1.
func (s *HealthService) Liveness(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.db.Ping(ctx)
}

// Readiness checks that the sales table is reachable with the configured
// credentials, which is stricter than Liveness.
func (s *HealthService) Readiness(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, "SELECT id FROM "+database.RecordsTable+" LIMIT 1")
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()
	return rows.Err()
}
