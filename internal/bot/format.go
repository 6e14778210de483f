package bot

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"rsi-sentry/internal/recorder"
	"rsi-sentry/pkg/types"
)

var kindLabels = map[types.NotificationKind]string{
	types.KindPriceHit:    "🚨 Price hit",
	types.KindTargetHit:   "🎯 Target hit",
	types.KindStopLossHit: "🛑 Stop loss hit",
	types.KindBuySignal:   "🔵 Buy signal",
	types.KindSellSignal:  "🔴 Sell signal",
}

func formatStatus(st types.ChatState) string {
	var b strings.Builder
	b.WriteString("📋 Alert Status\n")
	if st.Enabled {
		b.WriteString("Alerts: ON\n")
	} else {
		b.WriteString("Alerts: OFF\n")
	}
	fmt.Fprintf(&b, "RSI Low: %s | RSI High: %s\n", st.RSILow, st.RSIHigh)

	if len(st.PriceAlerts) == 0 {
		b.WriteString("Price Alerts: none\n")
	} else {
		prices := make([]string, len(st.PriceAlerts))
		for i, p := range st.PriceAlerts {
			prices[i] = p.String()
		}
		fmt.Fprintf(&b, "Price Alerts: %s\n", strings.Join(prices, ", "))
	}

	fmt.Fprintf(&b, "Target: %s\n", optional(st.TargetPrice))
	fmt.Fprintf(&b, "Stop Loss: %s\n", optional(st.StopLoss))

	signal := "none"
	if st.LastSignal != types.SignalNone {
		signal = string(st.LastSignal)
	}
	fmt.Fprintf(&b, "Last Signal: %s", signal)

	if st.PendingInput != types.PendingNone {
		fmt.Fprintf(&b, "\nWaiting for: %s", st.PendingInput)
	}
	return b.String()
}

func formatHistory(entries []recorder.Entry, loc *time.Location) string {
	var b strings.Builder
	b.WriteString("🗂 Recent Alerts")
	for _, e := range entries {
		label, ok := kindLabels[e.Kind]
		if !ok {
			label = string(e.Kind)
		}
		fmt.Fprintf(&b, "\n%s %s @ %s (RSI %.2f)", e.CreatedAt.In(loc).Format("Jan 02 03:04 PM"), label, e.Price, e.RSI)
		if !e.Delivered {
			b.WriteString(" ⚠️ undelivered")
		}
	}
	return b.String()
}

func optional(d *decimal.Decimal) string {
	if d == nil {
		return "-"
	}
	return d.String()
}
