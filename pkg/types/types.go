package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// NotificationKind 通知类型
type NotificationKind string

const (
	KindPriceHit    NotificationKind = "price_hit"
	KindTargetHit   NotificationKind = "target_hit"
	KindStopLossHit NotificationKind = "stop_loss_hit"
	KindBuySignal   NotificationKind = "buy_signal"
	KindSellSignal  NotificationKind = "sell_signal"
)

// Notification 预警触发后需要发送给某个聊天的消息
type Notification struct {
	ChatID     string           `json:"chat_id"`
	Kind       NotificationKind `json:"kind"`
	Price      decimal.Decimal  `json:"price"`     // 触发时价格
	Threshold  *decimal.Decimal `json:"threshold"` // 价格类预警的阈值，信号类为RSI阈值
	RSI        float64          `json:"rsi"`
	CandleTime time.Time        `json:"candle_time"`
	Text       string           `json:"text"`
}
