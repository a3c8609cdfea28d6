package loader

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/pandeptwidyaop/trp-api/internal/models"
)

// dateLayouts are tried in order; day-first forms come before ISO.
var dateLayouts = []string{
	"02-01-2006",
	"02/01/2006",
	"2-1-2006",
	"2/1/2006",
	"02.01.2006",
	"02-01-06",
	"02-01-2006 15:04:05",
	"02/01/2006 15:04:05",
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
}

// Values treated as missing after trimming.
var nullTokens = map[string]bool{
	"":     true,
	"nan":  true,
	"NaN":  true,
	"<NA>": true,
}

// Sheet is a header row plus raw cell text, as read from a file.
type Sheet struct {
	Headers []string
	Rows    [][]string
}

// Transform maps and coerces sheet rows into record fields. Rows where
// every cell is blank are dropped.
func Transform(sheet *Sheet) []models.RecordFields {
	mapping := MapColumns(NormalizeColumns(sheet.Headers))

	cell := func(row []string, target string) string {
		idx, ok := mapping[target]
		if !ok || idx >= len(row) {
			return ""
		}
		return row[idx]
	}

	records := make([]models.RecordFields, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		if blankRow(row) {
			continue
		}
		records = append(records, models.RecordFields{
			Outlet:         parseText(cell(row, "outlet")),
			Date:           parseDate(cell(row, "date")),
			Day:            parseText(cell(row, "day")),
			GuestCount:     parseInt(cell(row, "guest_count")),
			Category:       parseText(cell(row, "category")),
			Quantity:       parseInt(cell(row, "quantity")),
			CostPrice:      parseFloat(cell(row, "cost_price")),
			SellingPrice:   parseFloat(cell(row, "selling_price")),
			TotalSales:     parseFloat(cell(row, "total_sales")),
			TotalCostPrice: parseFloat(cell(row, "total_cost_price")),
			Profit:         parseFloat(cell(row, "profit")),
		})
	}
	return records
}

func blankRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func parseText(s string) *string {
	s = strings.TrimSpace(s)
	if nullTokens[s] {
		return nil
	}
	return &s
}

// parseDate accepts day-first text dates, ISO dates and Excel serial
// numbers. Anything else is NULL.
func parseDate(s string) *models.Date {
	s = strings.TrimSpace(s)
	if nullTokens[s] {
		return nil
	}

	if serial, err := strconv.ParseFloat(s, 64); err == nil {
		t, err := excelize.ExcelDateToTime(serial, false)
		if err != nil {
			return nil
		}
		d := models.NewDate(t)
		return &d
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			d := models.NewDate(t)
			return &d
		}
	}
	return nil
}

// parseInt accepts integers and integral floats such as "3.0".
func parseInt(s string) *int64 {
	s = strings.TrimSpace(s)
	if nullTokens[s] {
		return nil
	}
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return &v
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return nil
	}
	if f > math.MaxInt64 || f < math.MinInt64 {
		return nil
	}
	v := int64(f)
	return &v
}

func parseFloat(s string) *float64 {
	s = strings.TrimSpace(s)
	if nullTokens[s] {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}
