package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// RecordsTable is the fully qualified, quoted name of the sales table.
const RecordsTable = `public."TRP"`

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS public."TRP" (
		id BIGSERIAL PRIMARY KEY,
		outlet TEXT,
		date DATE,
		day TEXT,
		guest_count INTEGER,
		category TEXT,
		quantity INTEGER,
		cost_price NUMERIC,
		selling_price NUMERIC,
		total_sales NUMERIC,
		total_cost_price NUMERIC,
		profit NUMERIC
	)`,
	`CREATE INDEX IF NOT EXISTS idx_trp_date ON public."TRP"(date)`,
	`CREATE INDEX IF NOT EXISTS idx_trp_outlet ON public."TRP"(outlet)`,
}

func runMigrations(ctx context.Context, db *sqlx.DB) error {
	for i, migration := range migrations {
		if _, err := db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
	}
	return nil
}
