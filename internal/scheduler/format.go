package scheduler

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"cryptopulse/internal/service"
)

// formatUSD renders a price as $1,234.56; sub-dollar prices keep six decimals.
func formatUSD(d decimal.Decimal) string {
	places := int32(2)
	if d.Abs().LessThan(decimal.NewFromInt(1)) {
		places = 6
	}
	s := d.StringFixed(places)
	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}
	intPart, frac, _ := strings.Cut(s, ".")
	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return sign + "$" + b.String() + "." + frac
}

// formatChange renders a 24h change as "📈 +1.23%" or "📉 -0.40%".
func formatChange(change decimal.Decimal, positive bool) string {
	arrow := "📉"
	if positive {
		arrow = "📈"
	}
	s := change.StringFixed(2)
	if !change.IsNegative() {
		s = "+" + s
	}
	return arrow + " " + s + "%"
}

// buildMessage returns the push title, body and data payload for a quote.
func buildMessage(q *service.Quote, ruleID string, at time.Time) (string, string, map[string]string) {
	title := q.Coin.Symbol + " Price Update"
	body := q.Coin.Name + " is currently at " + formatUSD(q.CurrentPrice)
	if q.Change24h.Valid {
		body += " (" + formatChange(q.Change24h.Decimal, q.IsPositive) + ")"
	}
	data := map[string]string{
		"coin_id":         strconv.FormatUint(uint64(q.Coin.ID), 10),
		"coin_symbol":     q.Coin.Symbol,
		"coin_name":       q.Coin.Name,
		"current_price":   q.CurrentPrice.String(),
		"is_positive":     strconv.FormatBool(q.IsPositive),
		"notification_id": ruleID,
		"timestamp":       at.UTC().Format(time.RFC3339),
	}
	if q.Change24h.Valid {
		data["price_change"] = q.Change24h.Decimal.String()
	}
	return title, body, data
}
