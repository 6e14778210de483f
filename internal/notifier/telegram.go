package notifier

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
	"rsi-sentry/pkg/types"
)

// TelegramNotifier 通过Telegram Bot API发送消息，失败按指数退避重试
type TelegramNotifier struct {
	bot        *tgbotapi.BotAPI
	maxRetries uint64
	newBackOff func() backoff.BackOff
}

func NewTelegramNotifier(bot *tgbotapi.BotAPI, maxRetries uint64) *TelegramNotifier {
	return &TelegramNotifier{
		bot:        bot,
		maxRetries: maxRetries,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxElapsedTime = 30 * time.Second
			return b
		},
	}
}

// MenuKeyboard 主菜单内联键盘
func MenuKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("💹 Live Price", string(types.ActionPrice)),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🔔 RSI <30 Alert", string(types.ActionLow)),
			tgbotapi.NewInlineKeyboardButtonData("🔔 RSI >70 Alert", string(types.ActionHigh)),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("💰 Set Price Alert", string(types.ActionPriceAlert)),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🎯 Set Target Price", string(types.ActionTarget)),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🛑 Set Stop Loss", string(types.ActionStopLoss)),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("❌ Stop All Alerts", string(types.ActionStopAll)),
		),
	)
}

func (t *TelegramNotifier) Send(ctx context.Context, msg Message) error {
	chatID, err := strconv.ParseInt(msg.ChatID, 10, 64)
	if err != nil {
		return fmt.Errorf("chat %q: %w", msg.ChatID, ErrInvalidChatID)
	}

	config := tgbotapi.NewMessage(chatID, msg.Text)
	if msg.WithMenu {
		config.ReplyMarkup = MenuKeyboard()
	}

	attempt := 0
	operation := func() error {
		attempt++
		_, err := t.bot.Send(config)
		if err == nil {
			return nil
		}
		if isPermanent(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(t.newBackOff(), t.maxRetries), ctx)
	err = backoff.RetryNotify(operation, policy, func(err error, wait time.Duration) {
		zap.L().Warn("⚠️ Telegram发送失败，准备重试",
			zap.String("chat_id", msg.ChatID),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err))
	})
	if err != nil {
		return fmt.Errorf("send to chat %s: %w", msg.ChatID, err)
	}
	return nil
}

// isPermanent 4xx（限流除外）的API错误重试没有意义
func isPermanent(err error) bool {
	var apiErr *tgbotapi.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Code >= 400 && apiErr.Code < 500 && apiErr.Code != http.StatusTooManyRequests
}
