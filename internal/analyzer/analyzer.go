package analyzer

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"rsi-sentry/internal/metrics"
	"rsi-sentry/internal/notifier"
	"rsi-sentry/internal/recorder"
	"rsi-sentry/internal/storage"
	"rsi-sentry/pkg/types"
)

// AnalysisEngine 根据最新价格和RSI评估每个聊天的预警
type AnalysisEngine struct {
	loc      *time.Location
	notifier notifier.Interface
	recorder recorder.Recorder
	metrics  *metrics.Metrics
}

func NewAnalysisEngine(loc *time.Location, notifyService notifier.Interface, rec recorder.Recorder, m *metrics.Metrics) *AnalysisEngine {
	if rec == nil {
		rec = recorder.NewNoopRecorder()
	}
	return &AnalysisEngine{
		loc:      loc,
		notifier: notifyService,
		recorder: rec,
		metrics:  m,
	}
}

// Evaluate 在存储事务内调用，原地修改chats，返回待发送的通知以及状态是否变化。
// 聊天按ID排序处理，同一聊天内的通知顺序为：价格预警、目标价、止损、买入、卖出。
func (ae *AnalysisEngine) Evaluate(snap *types.MarketSnapshot, chats map[string]*types.ChatState) ([]types.Notification, bool) {
	if snap == nil || snap.RSI == nil {
		return nil, false
	}

	var notes []types.Notification
	changed := false
	for _, id := range storage.SortedChatIDs(chats) {
		chatNotes, chatChanged := ae.evaluateChat(id, chats[id], snap)
		notes = append(notes, chatNotes...)
		changed = changed || chatChanged
	}
	return notes, changed
}

func (ae *AnalysisEngine) evaluateChat(chatID string, chat *types.ChatState, snap *types.MarketSnapshot) ([]types.Notification, bool) {
	if !chat.Enabled {
		return nil, false
	}

	price := snap.Price
	rsi := snap.RSI.Value
	rsiDec := decimal.NewFromFloat(rsi)
	candle := FormatCandleTime(snap.OpenTime, ae.loc)
	changed := false

	var notes []types.Notification
	note := func(kind types.NotificationKind, threshold *decimal.Decimal, text string) {
		notes = append(notes, types.Notification{
			ChatID:     chatID,
			Kind:       kind,
			Price:      price,
			Threshold:  threshold,
			RSI:        rsi,
			CandleTime: snap.OpenTime,
			Text:       text,
		})
	}

	// 价格预警：触发后移除
	remaining := chat.PriceAlerts[:0:0]
	for _, target := range chat.PriceAlerts {
		if price.GreaterThanOrEqual(target) {
			t := target
			note(types.KindPriceHit, &t, formatPriceHit(price, target, candle))
			changed = true
			continue
		}
		remaining = append(remaining, target)
	}
	if changed {
		chat.PriceAlerts = remaining
	}

	if chat.TargetPrice != nil && price.GreaterThanOrEqual(*chat.TargetPrice) {
		note(types.KindTargetHit, chat.TargetPrice, formatTargetHit(price, *chat.TargetPrice, candle))
		chat.TargetPrice = nil
		changed = true
	}

	if chat.StopLoss != nil && price.LessThanOrEqual(*chat.StopLoss) {
		note(types.KindStopLossHit, chat.StopLoss, formatStopLossHit(price, *chat.StopLoss, candle))
		chat.StopLoss = nil
		changed = true
	}

	switch {
	case rsiDec.LessThanOrEqual(chat.RSILow):
		if chat.LastSignal != types.SignalBuy {
			low := chat.RSILow
			note(types.KindBuySignal, &low, formatBuySignal(rsi, price, candle))
			chat.LastSignal = types.SignalBuy
			changed = true
		}
	case rsiDec.GreaterThanOrEqual(chat.RSIHigh):
		if chat.LastSignal != types.SignalSell {
			high := chat.RSIHigh
			note(types.KindSellSignal, &high, formatSellSignal(rsi, price, candle))
			chat.LastSignal = types.SignalSell
			changed = true
		}
	default:
		// 回到中性区间，解除锁存
		if chat.LastSignal != types.SignalNone {
			chat.LastSignal = types.SignalNone
			changed = true
		}
	}

	return notes, changed
}

// Dispatch 在事务提交后发送通知，发送失败只记录不回滚
func (ae *AnalysisEngine) Dispatch(ctx context.Context, notes []types.Notification) {
	for _, n := range notes {
		err := ae.notifier.Send(ctx, notifier.Message{ChatID: n.ChatID, Text: n.Text})
		delivered := err == nil
		if err != nil {
			zap.L().Error("❌ 发送预警失败",
				zap.String("chat_id", n.ChatID),
				zap.String("kind", string(n.Kind)),
				zap.Error(err))
		} else {
			zap.L().Info("🚨 预警已发送",
				zap.String("chat_id", n.ChatID),
				zap.String("kind", string(n.Kind)),
				zap.String("price", n.Price.String()),
				zap.Float64("rsi", n.RSI))
		}

		if ae.metrics != nil {
			ae.metrics.ObserveNotification(string(n.Kind), delivered)
		}

		if recErr := ae.recorder.RecordAlert(ctx, n, delivered, err); recErr != nil {
			zap.L().Warn("记录预警历史失败", zap.String("chat_id", n.ChatID), zap.Error(recErr))
		}
	}
}
