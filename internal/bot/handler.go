package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"rsi-sentry/internal/analyzer"
	"rsi-sentry/internal/fetcher"
	"rsi-sentry/internal/indicators"
	"rsi-sentry/internal/notifier"
	"rsi-sentry/internal/recorder"
	"rsi-sentry/internal/storage"
	"rsi-sentry/pkg/types"
)

const (
	greeting     = "🤖 BTC RSI BOT (Binance 15m Candle Based) Started!"
	saveFailed   = "⚠️ Could not save your settings, please try again."
	historyLimit = 10
)

// errInvalidInput 携带要回复给用户的提示
type errInvalidInput struct {
	reply string
}

func (e *errInvalidInput) Error() string { return e.reply }

// Handler 处理命令、菜单回调和自由文本输入，回复通过 notifier 发出
type Handler struct {
	chatStore     *storage.ChatStore
	replies       notifier.Interface
	source        fetcher.Source
	rsiCalculator *indicators.RSICalculator
	recorder      recorder.Recorder
	loc           *time.Location
}

func NewHandler(chatStore *storage.ChatStore, replies notifier.Interface, source fetcher.Source, rsiCalculator *indicators.RSICalculator, rec recorder.Recorder, loc *time.Location) *Handler {
	if rec == nil {
		rec = recorder.NewNoopRecorder()
	}
	return &Handler{
		chatStore:     chatStore,
		replies:       replies,
		source:        source,
		rsiCalculator: rsiCalculator,
		recorder:      rec,
		loc:           loc,
	}
}

// HandleStart 确保聊天记录存在并发送菜单
func (h *Handler) HandleStart(ctx context.Context, chatID string) error {
	if _, err := h.chatStore.GetOrCreate(ctx, chatID); err != nil {
		zap.L().Error("创建聊天记录失败", zap.String("chat_id", chatID), zap.Error(err))
		return h.reply(ctx, chatID, saveFailed, false)
	}
	return h.reply(ctx, chatID, greeting, true)
}

// HandleCallback 处理菜单按钮
func (h *Handler) HandleCallback(ctx context.Context, chatID, data string) error {
	action, err := types.ParseAction(data)
	if err != nil {
		zap.L().Warn("忽略未知回调", zap.String("chat_id", chatID), zap.String("data", data))
		return nil
	}

	if _, err := h.chatStore.GetOrCreate(ctx, chatID); err != nil {
		zap.L().Error("创建聊天记录失败", zap.String("chat_id", chatID), zap.Error(err))
		return h.reply(ctx, chatID, saveFailed, false)
	}

	defaults := h.chatStore.Defaults()
	switch action {
	case types.ActionPrice:
		return h.reply(ctx, chatID, h.livePrice(ctx), false)
	case types.ActionLow:
		return h.mutateAndReply(ctx, chatID, func(st *types.ChatState) error {
			st.Enabled = true
			st.RSILow = defaults.RSILow
			return nil
		}, fmt.Sprintf("🔔 RSI <%s alert enabled!", defaults.RSILow))
	case types.ActionHigh:
		return h.mutateAndReply(ctx, chatID, func(st *types.ChatState) error {
			st.Enabled = true
			st.RSIHigh = defaults.RSIHigh
			return nil
		}, fmt.Sprintf("🔔 RSI >%s alert enabled!", defaults.RSIHigh))
	case types.ActionPriceAlert:
		return h.awaitInput(ctx, chatID, types.PendingPriceAlert, "💰 Enter price for alert:")
	case types.ActionTarget:
		return h.awaitInput(ctx, chatID, types.PendingTarget, "🎯 Enter Target Price:")
	case types.ActionStopLoss:
		return h.awaitInput(ctx, chatID, types.PendingStopLoss, "🛑 Enter Stop Loss Price:")
	case types.ActionStopAll:
		return h.mutateAndReply(ctx, chatID, func(st *types.ChatState) error {
			st.StopAll()
			return nil
		}, "❌ All alerts stopped.")
	default:
		return nil
	}
}

// HandleText 按等待中的输入类型解析价格；没有等待输入时忽略
func (h *Handler) HandleText(ctx context.Context, chatID, text string) error {
	st, err := h.chatStore.GetOrCreate(ctx, chatID)
	if err != nil {
		zap.L().Error("创建聊天记录失败", zap.String("chat_id", chatID), zap.Error(err))
		return h.reply(ctx, chatID, saveFailed, false)
	}
	if st.PendingInput == types.PendingNone {
		return nil
	}

	var confirmation string
	_, err = h.chatStore.Mutate(ctx, chatID, func(st *types.ChatState) error {
		pending := st.PendingInput
		value, ok := parsePrice(text)
		switch pending {
		case types.PendingPriceAlert:
			if !ok {
				return &errInvalidInput{"❌ Invalid price"}
			}
			st.AddPriceAlert(value)
			confirmation = fmt.Sprintf("💰 Price alert set at %s", value)
		case types.PendingTarget:
			if !ok {
				return &errInvalidInput{"❌ Invalid target price"}
			}
			st.TargetPrice = &value
			confirmation = fmt.Sprintf("🎯 Target Price set at %s", value)
		case types.PendingStopLoss:
			if !ok {
				return &errInvalidInput{"❌ Invalid stop loss"}
			}
			st.StopLoss = &value
			confirmation = fmt.Sprintf("🛑 Stop Loss set at %s", value)
		default:
			return nil
		}
		st.PendingInput = types.PendingNone
		return nil
	})

	var invalid *errInvalidInput
	switch {
	case errors.As(err, &invalid):
		return h.reply(ctx, chatID, invalid.reply, false)
	case err != nil:
		zap.L().Error("保存输入失败", zap.String("chat_id", chatID), zap.Error(err))
		return h.reply(ctx, chatID, saveFailed, false)
	case confirmation == "":
		return nil
	}

	zap.L().Info("✏️ 用户输入已保存", zap.String("chat_id", chatID), zap.String("value", strings.TrimSpace(text)))
	return h.reply(ctx, chatID, confirmation, false)
}

// HandleStatus 显示当前配置
func (h *Handler) HandleStatus(ctx context.Context, chatID string) error {
	st, err := h.chatStore.GetOrCreate(ctx, chatID)
	if err != nil {
		zap.L().Error("创建聊天记录失败", zap.String("chat_id", chatID), zap.Error(err))
		return h.reply(ctx, chatID, saveFailed, false)
	}
	return h.reply(ctx, chatID, formatStatus(st), true)
}

// HandleHistory 最近触发的预警
func (h *Handler) HandleHistory(ctx context.Context, chatID string) error {
	if !h.recorder.Enabled() {
		return h.reply(ctx, chatID, "📭 Alert history is disabled.", false)
	}

	entries, err := h.recorder.Recent(ctx, chatID, historyLimit)
	if err != nil {
		zap.L().Error("查询预警历史失败", zap.String("chat_id", chatID), zap.Error(err))
		return h.reply(ctx, chatID, "Error fetching history.", false)
	}
	if len(entries) == 0 {
		return h.reply(ctx, chatID, "📭 No alerts yet.", false)
	}
	return h.reply(ctx, chatID, formatHistory(entries, h.loc), false)
}

func (h *Handler) livePrice(ctx context.Context) string {
	klines, err := h.source.FetchKlines(ctx)
	if err != nil || len(klines) == 0 {
		zap.L().Warn("查询实时价格失败", zap.Error(err))
		return "Error fetching price."
	}

	snap := types.NewMarketSnapshot(klines, h.rsiCalculator.Calculate(klines))
	var b strings.Builder
	fmt.Fprintf(&b, "BTC Price: %s", snap.Price)
	if snap.RSI != nil {
		fmt.Fprintf(&b, "\nRSI(%d): %.2f", snap.RSI.Period, snap.RSI.Value)
	}
	fmt.Fprintf(&b, "\n🕒 Candle Time: %s", analyzer.FormatCandleTime(snap.OpenTime, h.loc))
	return b.String()
}

func (h *Handler) awaitInput(ctx context.Context, chatID string, pending types.PendingInput, prompt string) error {
	return h.mutateAndReply(ctx, chatID, func(st *types.ChatState) error {
		st.PendingInput = pending
		return nil
	}, prompt)
}

func (h *Handler) mutateAndReply(ctx context.Context, chatID string, fn func(st *types.ChatState) error, text string) error {
	if _, err := h.chatStore.Mutate(ctx, chatID, fn); err != nil {
		zap.L().Error("保存聊天状态失败", zap.String("chat_id", chatID), zap.Error(err))
		return h.reply(ctx, chatID, saveFailed, false)
	}
	return h.reply(ctx, chatID, text, false)
}

func (h *Handler) reply(ctx context.Context, chatID, text string, withMenu bool) error {
	return h.replies.Send(ctx, notifier.Message{ChatID: chatID, Text: text, WithMenu: withMenu})
}

// parsePrice 只接受正的十进制数
func parsePrice(text string) (decimal.Decimal, bool) {
	value, err := decimal.NewFromString(strings.TrimSpace(text))
	if err != nil || !value.IsPositive() {
		return decimal.Decimal{}, false
	}
	return value, true
}
