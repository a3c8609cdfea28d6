// Package models defines the sales record and its request payloads.
package models

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the wire and storage format of Date.
const DateLayout = "2006-01-02"

// ErrInvalidDate is returned when a date is not in DateLayout.
var ErrInvalidDate = errors.New("date must be YYYY-MM-DD")

// Date is a calendar day without time-of-day or zone.
type Date struct {
	time.Time
}

// NewDate truncates t to its calendar day in UTC.
func NewDate(t time.Time) Date {
	y, m, d := t.Date()
	return Date{time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, ErrInvalidDate
	}
	return Date{t}, nil
}

func (d Date) String() string {
	return d.Format(DateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := string(b)
	if s == "null" {
		return nil
	}
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return ErrInvalidDate
	}
	parsed, err := ParseDate(s[1 : len(s)-1])
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Scan implements sql.Scanner for DATE columns.
func (d *Date) Scan(src interface{}) error {
	switch v := src.(type) {
	case time.Time:
		*d = NewDate(v)
		return nil
	case []byte:
		return d.scanString(string(v))
	case string:
		return d.scanString(v)
	}
	return fmt.Errorf("cannot scan %T into Date", src)
}

func (d *Date) scanString(s string) error {
	if len(s) > len(DateLayout) {
		s = s[:len(DateLayout)]
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Value implements driver.Valuer.
func (d Date) Value() (driver.Value, error) {
	return d.String(), nil
}

// Record is one row of the sales table. Every column except ID is nullable.
type Record struct {
	ID             int64    `json:"id" db:"id"`
	Outlet         *string  `json:"outlet" db:"outlet"`
	Date           *Date    `json:"date" db:"date"`
	Day            *string  `json:"day" db:"day"`
	GuestCount     *int64   `json:"guest_count" db:"guest_count"`
	Category       *string  `json:"category" db:"category"`
	Quantity       *int64   `json:"quantity" db:"quantity"`
	CostPrice      *float64 `json:"cost_price" db:"cost_price"`
	SellingPrice   *float64 `json:"selling_price" db:"selling_price"`
	TotalSales     *float64 `json:"total_sales" db:"total_sales"`
	TotalCostPrice *float64 `json:"total_cost_price" db:"total_cost_price"`
	Profit         *float64 `json:"profit" db:"profit"`
}

// RecordFields holds the writable columns shared by create and update.
type RecordFields struct {
	Outlet         *string  `json:"outlet"`
	Date           *Date    `json:"date"`
	Day            *string  `json:"day"`
	GuestCount     *int64   `json:"guest_count"`
	Category       *string  `json:"category"`
	Quantity       *int64   `json:"quantity"`
	CostPrice      *float64 `json:"cost_price"`
	SellingPrice   *float64 `json:"selling_price"`
	TotalSales     *float64 `json:"total_sales"`
	TotalCostPrice *float64 `json:"total_cost_price"`
	Profit         *float64 `json:"profit"`
}

// Column is a writable column name paired with its value.
type Column struct {
	Name  string
	Value interface{}
}

// Columns returns every writable column in table order, nil values included.
func (f *RecordFields) Columns() []Column {
	return []Column{
		{"outlet", f.Outlet},
		{"date", f.Date},
		{"day", f.Day},
		{"guest_count", f.GuestCount},
		{"category", f.Category},
		{"quantity", f.Quantity},
		{"cost_price", f.CostPrice},
		{"selling_price", f.SellingPrice},
		{"total_sales", f.TotalSales},
		{"total_cost_price", f.TotalCostPrice},
		{"profit", f.Profit},
	}
}

// SetColumns returns only the columns whose value is non-nil.
func (f *RecordFields) SetColumns() []Column {
	var out []Column
	for _, c := range f.Columns() {
		if !isNil(c.Value) {
			out = append(out, c)
		}
	}
	return out
}

func isNil(v interface{}) bool {
	switch p := v.(type) {
	case *string:
		return p == nil
	case *Date:
		return p == nil
	case *int64:
		return p == nil
	case *float64:
		return p == nil
	}
	return v == nil
}

// CreateRecordRequest contains the data for creating a new record.
type CreateRecordRequest struct {
	RecordFields
}

// Validate enforces the fields a new record must carry.
func (r *CreateRecordRequest) Validate() error {
	var missing []string
	if r.Outlet == nil {
		missing = append(missing, "outlet")
	}
	if r.Date == nil {
		missing = append(missing, "date")
	}
	if r.Category == nil {
		missing = append(missing, "category")
	}
	if r.Quantity == nil {
		missing = append(missing, "quantity")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required fields: %s", strings.Join(missing, ", "))
	}
	return nil
}

// UpdateRecordRequest contains the data for a partial update. Null or
// absent fields are left untouched.
type UpdateRecordRequest struct {
	RecordFields
}
