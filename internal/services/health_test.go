package services_test

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/pandeptwidyaop/trp-api/internal/services"
)

func TestHealthService_Liveness(t *testing.T) {
	db, mock := setupRecordTestDB(t)
	svc := services.NewHealthService(db, time.Second)

	mock.ExpectQuery(`SELECT 1`).WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectQuery(`SELECT 1`).WillReturnError(errors.New("connection refused"))

	if err := svc.Liveness(context.Background()); err != nil {
		t.Errorf("expected healthy, got %v", err)
	}
	if err := svc.Liveness(context.Background()); err == nil {
		t.Error("expected unhealthy after connection failure")
	}
}

func TestHealthService_Readiness(t *testing.T) {
	db, mock := setupRecordTestDB(t)
	svc := services.NewHealthService(db, 0)

	query := regexp.QuoteMeta(`SELECT id FROM public."TRP" LIMIT 1`)
	mock.ExpectQuery(query).WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(query).WillReturnError(errors.New(`relation "public.TRP" does not exist`))

	if err := svc.Readiness(context.Background()); err != nil {
		t.Errorf("expected ready on empty table, got %v", err)
	}
	if err := svc.Readiness(context.Background()); err == nil {
		t.Error("expected readiness failure for missing table")
	}
}
