package loader

import (
	"context"
	"fmt"

	"github.com/lib/pq"

	"github.com/pandeptwidyaop/trp-api/internal/database"
	"github.com/pandeptwidyaop/trp-api/internal/models"
)

// Copy streams records into schema.table with COPY FROM STDIN inside one
// transaction. Either every row lands or none does.
func Copy(ctx context.Context, db *database.DB, schema, table string, records []models.RecordFields) (n int64, err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, pq.CopyInSchema(schema, table, TargetColumns...))
	if err != nil {
		return 0, fmt.Errorf("failed to prepare copy: %w", err)
	}

	for i := range records {
		cols := records[i].Columns()
		args := make([]interface{}, len(cols))
		for j, c := range cols {
			args[j] = c.Value
		}
		if _, err = stmt.ExecContext(ctx, args...); err != nil {
			_ = stmt.Close()
			return 0, fmt.Errorf("row %d: %w", i+1, err)
		}
	}

	// An Exec without arguments flushes the buffered rows.
	if _, err = stmt.ExecContext(ctx); err != nil {
		_ = stmt.Close()
		return 0, fmt.Errorf("failed to flush copy: %w", err)
	}
	if err = stmt.Close(); err != nil {
		return 0, fmt.Errorf("failed to close copy: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit: %w", err)
	}
	return int64(len(records)), nil
}
