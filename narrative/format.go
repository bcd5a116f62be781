package narrative

import (
	"fmt"
	"math"

	"github.com/dustin/go-humanize"

	"qbrreport/snapshot"
)

// money renders whole US dollars with thousands separators; nil renders $0.
func money(v *float64) string {
	if v == nil {
		return "$0"
	}
	return moneyValue(*v)
}

func moneyValue(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "$0"
	}
	rounded := int64(math.Round(v))
	if rounded < 0 {
		return "-$" + humanize.Comma(-rounded)
	}
	return "$" + humanize.Comma(rounded)
}

// signedPct renders a delta for prose. Absent deltas render as 0%.
func signedPct(d snapshot.Delta) string {
	if !d.Valid {
		return "0%"
	}
	return d.String()
}

func multiple(v *float64) string {
	if v == nil {
		return "0.00x"
	}
	return multipleValue(*v)
}

func multipleValue(v float64) string {
	return fmt.Sprintf("%.2fx", v)
}

func percent(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.0f%%", *v)
}
