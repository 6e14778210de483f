package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// KLine K线数据结构
type KLine struct {
	Symbol    string          `json:"symbol"`
	OpenTime  time.Time       `json:"open_time"`
	CloseTime time.Time       `json:"close_time"`
	Open      decimal.Decimal `json:"open"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Close     decimal.Decimal `json:"close"`
	Volume    decimal.Decimal `json:"volume"`
	Interval  string          `json:"interval"` // 15m
}

// MarketSnapshot 一次轮询得到的行情快照
type MarketSnapshot struct {
	Symbol   string
	Price    decimal.Decimal // 最新K线收盘价
	OpenTime time.Time       // 最新K线开盘时间
	RSI      *RSIData        // 数据不足时为nil
}

// NewMarketSnapshot 由K线序列构建快照，K线为空时返回nil
func NewMarketSnapshot(klines []*KLine, rsi *RSIData) *MarketSnapshot {
	if len(klines) == 0 {
		return nil
	}
	last := klines[len(klines)-1]
	return &MarketSnapshot{
		Symbol:   last.Symbol,
		Price:    last.Close,
		OpenTime: last.OpenTime,
		RSI:      rsi,
	}
}
