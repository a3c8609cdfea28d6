// Package services provides business logic for sales records and health checks.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/pandeptwidyaop/trp-api/internal/database"
	"github.com/pandeptwidyaop/trp-api/internal/models"
)

var (
	// ErrRecordNotFound indicates the requested record was not found.
	ErrRecordNotFound = errors.New("Record not found")
	// ErrNoFieldsToUpdate indicates an update carried no non-null fields.
	ErrNoFieldsToUpdate = errors.New("No fields to update")
	// ErrIntegrity indicates the database rejected a write on a constraint.
	ErrIntegrity = errors.New("integrity violation")
)

const (
	// DefaultListLimit is used when the caller does not pass a limit.
	DefaultListLimit = 100
	// MaxListLimit caps a single list request.
	MaxListLimit = 1000
)

const recordColumns = "id, outlet, date, day, guest_count, category, quantity, " +
	"cost_price, selling_price, total_sales, total_cost_price, profit"

// RecordService manages rows of the sales table.
type RecordService struct {
	db *database.DB
}

// NewRecordService creates a new RecordService instance.
func NewRecordService(db *database.DB) *RecordService {
	return &RecordService{db: db}
}

// List returns up to limit records ordered by id. A non-positive limit
// falls back to DefaultListLimit and limits above MaxListLimit are clamped.
func (s *RecordService) List(ctx context.Context, limit int) ([]models.Record, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}

	records := []models.Record{}
	err := s.db.SelectContext(ctx, &records,
		"SELECT "+recordColumns+" FROM "+database.RecordsTable+" ORDER BY id LIMIT $1", limit)
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Get retrieves a record by its ID.
func (s *RecordService) Get(ctx context.Context, id int64) (*models.Record, error) {
	var rec models.Record
	err := s.db.GetContext(ctx, &rec,
		"SELECT "+recordColumns+" FROM "+database.RecordsTable+" WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Create inserts a record and returns it as stored.
func (s *RecordService) Create(ctx context.Context, req *models.CreateRecordRequest) (*models.Record, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	cols := req.Columns()
	names := make([]string, len(cols))
	placeholders := make([]string, len(cols))
	args := make([]interface{}, len(cols))
	for i, c := range cols {
		names[i] = c.Name
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = c.Value
	}

	query := "INSERT INTO " + database.RecordsTable +
		" (" + strings.Join(names, ", ") + ") VALUES (" + strings.Join(placeholders, ", ") + ") RETURNING id"

	var id int64
	if err := s.db.QueryRowxContext(ctx, query, args...).Scan(&id); err != nil {
		return nil, translateWriteError(err)
	}

	rec, err := s.Get(ctx, id)
	if errors.Is(err, ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to fetch created record %d", id)
	}
	return rec, err
}

// Update writes the non-null fields of req onto an existing record.
func (s *RecordService) Update(ctx context.Context, id int64, req *models.UpdateRecordRequest) (*models.Record, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}

	cols := req.SetColumns()
	if len(cols) == 0 {
		return nil, ErrNoFieldsToUpdate
	}

	sets := make([]string, len(cols))
	args := make([]interface{}, 0, len(cols)+1)
	for i, c := range cols {
		sets[i] = fmt.Sprintf("%s = $%d", c.Name, i+1)
		args = append(args, c.Value)
	}
	args = append(args, id)

	query := "UPDATE " + database.RecordsTable + " SET " + strings.Join(sets, ", ") +
		fmt.Sprintf(" WHERE id = $%d", len(args))

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return nil, translateWriteError(err)
	}

	return s.Get(ctx, id)
}

// Delete removes a record.
func (s *RecordService) Delete(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM "+database.RecordsTable+" WHERE id = $1", id)
	if err != nil {
		return err
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// translateWriteError maps SQLSTATE class 23 (integrity constraint
// violation) onto ErrIntegrity, keeping the driver message.
func translateWriteError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code.Class() == "23" {
		return fmt.Errorf("%w: %s", ErrIntegrity, pqErr.Message)
	}
	return err
}
