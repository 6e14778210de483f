package analyzer

import (
	"fmt"
	"time"

	_ "time/tzdata"

	"github.com/shopspring/decimal"
)

// candleTimeLayout 只显示到分钟，12小时制
const candleTimeLayout = "03:04 pm"

// FormatCandleTime 把K线开盘时间换算到指定时区
func FormatCandleTime(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(candleTimeLayout)
}

func formatPriceHit(price, target decimal.Decimal, candle string) string {
	return fmt.Sprintf("🚨 PRICE HIT!\nPrice: %s\nTarget: %s\n🕒 Candle Time: %s", price, target, candle)
}

func formatTargetHit(price, target decimal.Decimal, candle string) string {
	return fmt.Sprintf("🎯 TARGET HIT!\nPrice: %s\nTarget: %s\n🕒 Candle Time: %s", price, target, candle)
}

func formatStopLossHit(price, stop decimal.Decimal, candle string) string {
	return fmt.Sprintf("🛑 STOP LOSS HIT!\nPrice: %s\nSL: %s\n🕒 Candle Time: %s", price, stop, candle)
}

func formatBuySignal(rsi float64, price decimal.Decimal, candle string) string {
	return fmt.Sprintf("🔵 BUY SIGNAL\nRSI: %.2f\nPrice: %s\n🕒 Candle Time: %s", rsi, price, candle)
}

func formatSellSignal(rsi float64, price decimal.Decimal, candle string) string {
	return fmt.Sprintf("🔴 SELL SIGNAL\nRSI: %.2f\nPrice: %s\n🕒 Candle Time: %s", rsi, price, candle)
}
