package loader

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/pandeptwidyaop/trp-api/internal/models"
)

const nullDisplay = "<NA>"

// Preview writes the first n records as an aligned table.
func Preview(w io.Writer, records []models.RecordFields, n int) error {
	if n > len(records) {
		n = len(records)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(TargetColumns, "\t"))
	for i := 0; i < n; i++ {
		cols := records[i].Columns()
		cells := make([]string, len(cols))
		for j, c := range cols {
			cells[j] = formatValue(c.Value)
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	return tw.Flush()
}

func formatValue(v interface{}) string {
	switch p := v.(type) {
	case *string:
		if p != nil {
			return *p
		}
	case *models.Date:
		if p != nil {
			return p.String()
		}
	case *int64:
		if p != nil {
			return strconv.FormatInt(*p, 10)
		}
	case *float64:
		if p != nil {
			return strconv.FormatFloat(*p, 'f', -1, 64)
		}
	}
	return nullDisplay
}
