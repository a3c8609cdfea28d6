package loader

import "strings"

// TargetColumns are the sales table columns in load order.
var TargetColumns = []string{
	"outlet",
	"date",
	"day",
	"guest_count",
	"category",
	"quantity",
	"cost_price",
	"selling_price",
	"total_sales",
	"total_cost_price",
	"profit",
}

// NormalizeColumns trims each header, collapses inner whitespace,
// lowercases it and turns spaces into underscores.
func NormalizeColumns(headers []string) []string {
	out := make([]string, len(headers))
	for i, h := range headers {
		out[i] = strings.ReplaceAll(strings.ToLower(strings.Join(strings.Fields(h), " ")), " ", "_")
	}
	return out
}

// MapColumns picks a source column index for each target column.
// An exact header match wins. Otherwise the first header that contains the
// target, is contained in it, or contains the target's first or last
// underscore segment is used. Targets with no match are absent from the
// result. headers must already be normalized.
func MapColumns(headers []string) map[string]int {
	mapping := make(map[string]int, len(TargetColumns))
	for _, tgt := range TargetColumns {
		if idx := indexOf(headers, tgt); idx >= 0 {
			mapping[tgt] = idx
			continue
		}

		parts := strings.Split(tgt, "_")
		first, last := parts[0], parts[len(parts)-1]
		for i, h := range headers {
			if h == "" {
				continue
			}
			if strings.Contains(h, tgt) || strings.Contains(tgt, h) ||
				strings.Contains(h, first) || strings.Contains(h, last) {
				mapping[tgt] = i
				break
			}
		}
	}
	return mapping
}

func indexOf(list []string, s string) int {
	for i, v := range list {
		if v == s {
			return i
		}
	}
	return -1
}
