package dispatch

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/ggonzalez94/squad-agent/internal/pricefeed"
)

// FormatQuote renders a price reply. Fallback quotes carry a note instead of
// failing.
func FormatQuote(q pricefeed.Quote) string {
	var b strings.Builder
	arrow := "📈"
	if q.Change24h < 0 {
		arrow = "📉"
	}
	fmt.Fprintf(&b, "%s %s: %s (%s 24h)", arrow, q.Symbol, formatFiat(FormatPrice(q.Price), q.Currency), FormatChange(q.Change24h))
	fmt.Fprintf(&b, "\nVolume 24h: %s", fiatOrNA(q.Volume24h, q.Currency))
	fmt.Fprintf(&b, "\nMarket cap: %s", fiatOrNA(q.MarketCap, q.Currency))
	if !q.LastUpdated.IsZero() {
		fmt.Fprintf(&b, "\nUpdated: %s", q.LastUpdated.UTC().Format(time.RFC1123))
	}
	if q.Fallback {
		b.WriteString("\n⚠️ Live price unavailable, this is an estimated value.")
	}
	return b.String()
}

// FormatPrice uses 2 decimals, or 6 below one unit of currency.
func FormatPrice(p float64) string {
	if math.Abs(p) < 1 {
		return fmt.Sprintf("%.6f", p)
	}
	return fmt.Sprintf("%.2f", p)
}

// FormatChange always carries a sign: +1.50%, -0.25%.
func FormatChange(pct float64) string {
	return fmt.Sprintf("%+.2f%%", pct)
}

var compactUnits = []struct {
	scale  float64
	suffix string
}{{1, ""}, {1e3, "K"}, {1e6, "M"}, {1e9, "B"}}

// FormatCompact abbreviates with K/M/B at 1e3/1e6/1e9. The unit is chosen on
// the rounded value, so 999999.999 is 1.00M.
func FormatCompact(v float64) string {
	for i, unit := range compactUnits {
		s := fmt.Sprintf("%.2f", v/unit.scale)
		rounded, err := strconv.ParseFloat(s, 64)
		if i == len(compactUnits)-1 || (err == nil && math.Abs(rounded) < 1e3) {
			return s + unit.suffix
		}
	}
	return fmt.Sprintf("%.2f", v)
}

func fiatOrNA(v *float64, currency string) string {
	if v == nil {
		return "n/a"
	}
	return formatFiat(FormatCompact(*v), currency)
}

func formatFiat(amount, currency string) string {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" || currency == "USD" {
		return "$" + amount
	}
	return amount + " " + currency
}
