package recorder

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"rsi-sentry/pkg/types"
)

// Recorder 预警历史记录，失败只记日志，不影响通知
type Recorder interface {
	RecordAlert(ctx context.Context, n types.Notification, delivered bool, sendErr error) error
	Recent(ctx context.Context, chatID string, limit int) ([]Entry, error)
	Enabled() bool
	Close() error
}

// Entry 一条已记录的预警
type Entry struct {
	ChatID     string
	Kind       types.NotificationKind
	Price      decimal.Decimal
	Threshold  *decimal.Decimal
	RSI        float64
	CandleTime time.Time
	Delivered  bool
	Error      string
	CreatedAt  time.Time
}
