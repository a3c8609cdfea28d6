package services_test

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/pandeptwidyaop/trp-api/internal/database"
	"github.com/pandeptwidyaop/trp-api/internal/models"
	"github.com/pandeptwidyaop/trp-api/internal/services"
)

var recordCols = []string{
	"id", "outlet", "date", "day", "guest_count", "category", "quantity",
	"cost_price", "selling_price", "total_sales", "total_cost_price", "profit",
}

func setupRecordTestDB(t *testing.T) (*database.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to open mock database: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })
	return &database.DB{DB: sqlx.NewDb(sqlDB, database.DriverName)}, mock
}

func sampleRow(id int64) *sqlmock.Rows {
	return sqlmock.NewRows(recordCols).AddRow(
		id, "Central", time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), "Friday", 40, "Food", 3,
		2.5, 4.0, 12.0, 7.5, 4.5,
	)
}

func selectByID() string {
	return regexp.QuoteMeta(`FROM public."TRP" WHERE id = $1`)
}

func strPtr(s string) *string     { return &s }
func intPtr(i int64) *int64       { return &i }
func floatPtr(f float64) *float64 { return &f }

func TestRecordService_List_DefaultLimit(t *testing.T) {
	db, mock := setupRecordTestDB(t)
	svc := services.NewRecordService(db)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM public."TRP" ORDER BY id LIMIT $1`)).
		WithArgs(services.DefaultListLimit).
		WillReturnRows(sampleRow(1).AddRow(2, nil, nil, nil, nil, nil, nil, nil, nil, nil, nil, nil))

	records, err := svc.List(context.Background(), 0)
	if err != nil {
		t.Fatalf("failed to list records: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].Date == nil || records[0].Date.String() != "2024-03-15" {
		t.Errorf("expected date 2024-03-15, got %v", records[0].Date)
	}
	if records[0].Profit == nil || *records[0].Profit != 4.5 {
		t.Errorf("expected profit 4.5, got %v", records[0].Profit)
	}
	if records[1].Outlet != nil || records[1].Date != nil {
		t.Errorf("expected null columns to scan as nil, got %+v", records[1])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestRecordService_List_ClampsLimit(t *testing.T) {
	db, mock := setupRecordTestDB(t)
	svc := services.NewRecordService(db)

	mock.ExpectQuery(`LIMIT`).WithArgs(services.MaxListLimit).WillReturnRows(sqlmock.NewRows(recordCols))

	records, err := svc.List(context.Background(), 50000)
	if err != nil {
		t.Fatalf("failed to list records: %v", err)
	}
	if records == nil || len(records) != 0 {
		t.Errorf("expected empty non-nil slice, got %v", records)
	}
}

func TestRecordService_Get(t *testing.T) {
	db, mock := setupRecordTestDB(t)
	svc := services.NewRecordService(db)

	mock.ExpectQuery(selectByID()).WithArgs(int64(7)).WillReturnRows(sampleRow(7))

	rec, err := svc.Get(context.Background(), 7)
	if err != nil {
		t.Fatalf("failed to get record: %v", err)
	}
	if rec.ID != 7 || rec.Outlet == nil || *rec.Outlet != "Central" {
		t.Errorf("unexpected record %+v", rec)
	}
}

func TestRecordService_Get_NotFound(t *testing.T) {
	db, mock := setupRecordTestDB(t)
	svc := services.NewRecordService(db)

	mock.ExpectQuery(selectByID()).WithArgs(int64(99)).WillReturnRows(sqlmock.NewRows(recordCols))

	_, err := svc.Get(context.Background(), 99)
	if !errors.Is(err, services.ErrRecordNotFound) {
		t.Errorf("expected ErrRecordNotFound, got %v", err)
	}
}

func TestRecordService_Create(t *testing.T) {
	db, mock := setupRecordTestDB(t)
	svc := services.NewRecordService(db)

	date, _ := models.ParseDate("2024-03-15")
	req := &models.CreateRecordRequest{RecordFields: models.RecordFields{
		Outlet:   strPtr("Central"),
		Date:     &date,
		Category: strPtr("Food"),
		Quantity: intPtr(3),
		Profit:   floatPtr(4.5),
	}}

	mock.ExpectQuery(regexp.QuoteMeta(
		`INSERT INTO public."TRP" (outlet, date, day, guest_count, category, quantity, cost_price, selling_price, total_sales, total_cost_price, profit) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11) RETURNING id`)).
		WithArgs("Central", "2024-03-15", nil, nil, "Food", int64(3), nil, nil, nil, nil, 4.5).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
	mock.ExpectQuery(selectByID()).WithArgs(int64(7)).WillReturnRows(sampleRow(7))

	rec, err := svc.Create(context.Background(), req)
	if err != nil {
		t.Fatalf("failed to create record: %v", err)
	}
	if rec.ID != 7 {
		t.Errorf("expected id 7, got %d", rec.ID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestRecordService_Create_MissingFields(t *testing.T) {
	db, _ := setupRecordTestDB(t)
	svc := services.NewRecordService(db)

	_, err := svc.Create(context.Background(), &models.CreateRecordRequest{})
	if err == nil {
		t.Fatal("expected validation error")
	}
}

func TestRecordService_Create_IntegrityViolation(t *testing.T) {
	db, mock := setupRecordTestDB(t)
	svc := services.NewRecordService(db)

	date, _ := models.ParseDate("2024-03-15")
	req := &models.CreateRecordRequest{RecordFields: models.RecordFields{
		Outlet: strPtr("Central"), Date: &date, Category: strPtr("Food"), Quantity: intPtr(1),
	}}

	mock.ExpectQuery(`INSERT INTO`).WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"})

	_, err := svc.Create(context.Background(), req)
	if !errors.Is(err, services.ErrIntegrity) {
		t.Fatalf("expected ErrIntegrity, got %v", err)
	}
	if got := err.Error(); got != "integrity violation: duplicate key value violates unique constraint" {
		t.Errorf("unexpected message %q", got)
	}
}

func TestRecordService_Update(t *testing.T) {
	db, mock := setupRecordTestDB(t)
	svc := services.NewRecordService(db)

	mock.ExpectQuery(selectByID()).WithArgs(int64(7)).WillReturnRows(sampleRow(7))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE public."TRP" SET day = $1, profit = $2 WHERE id = $3`)).
		WithArgs("Saturday", 9.5, int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(selectByID()).WithArgs(int64(7)).WillReturnRows(sampleRow(7))

	_, err := svc.Update(context.Background(), 7, &models.UpdateRecordRequest{RecordFields: models.RecordFields{
		Day: strPtr("Saturday"), Profit: floatPtr(9.5),
	}})
	if err != nil {
		t.Fatalf("failed to update record: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestRecordService_Update_NoFields(t *testing.T) {
	db, mock := setupRecordTestDB(t)
	svc := services.NewRecordService(db)

	mock.ExpectQuery(selectByID()).WithArgs(int64(7)).WillReturnRows(sampleRow(7))

	_, err := svc.Update(context.Background(), 7, &models.UpdateRecordRequest{})
	if !errors.Is(err, services.ErrNoFieldsToUpdate) {
		t.Errorf("expected ErrNoFieldsToUpdate, got %v", err)
	}
}

func TestRecordService_Update_NotFound(t *testing.T) {
	db, mock := setupRecordTestDB(t)
	svc := services.NewRecordService(db)

	mock.ExpectQuery(selectByID()).WithArgs(int64(8)).WillReturnRows(sqlmock.NewRows(recordCols))

	_, err := svc.Update(context.Background(), 8, &models.UpdateRecordRequest{RecordFields: models.RecordFields{Day: strPtr("x")}})
	if !errors.Is(err, services.ErrRecordNotFound) {
		t.Errorf("expected ErrRecordNotFound, got %v", err)
	}
}

func TestRecordService_Delete(t *testing.T) {
	db, mock := setupRecordTestDB(t)
	svc := services.NewRecordService(db)

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM public."TRP" WHERE id = $1`)).
		WithArgs(int64(7)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM`).WithArgs(int64(8)).WillReturnResult(sqlmock.NewResult(0, 0))

	if err := svc.Delete(context.Background(), 7); err != nil {
		t.Errorf("failed to delete record: %v", err)
	}
	if err := svc.Delete(context.Background(), 8); !errors.Is(err, services.ErrRecordNotFound) {
		t.Errorf("expected ErrRecordNotFound, got %v", err)
	}
}
