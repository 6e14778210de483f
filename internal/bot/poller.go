package bot

import (
	"context"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// updateSource *tgbotapi.BotAPI 的子集
type updateSource interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Poller 长轮询Telegram更新并按顺序交给Handler
type Poller struct {
	bot         updateSource
	handler     *Handler
	pollTimeout int
}

func NewPoller(bot updateSource, handler *Handler, pollTimeout int) *Poller {
	return &Poller{
		bot:         bot,
		handler:     handler,
		pollTimeout: pollTimeout,
	}
}

// Run 阻塞直到ctx取消
func (p *Poller) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = p.pollTimeout
	updates := p.bot.GetUpdatesChan(u)

	zap.L().Info("🤖 开始接收Telegram消息")
	for {
		select {
		case <-ctx.Done():
			p.bot.StopReceivingUpdates()
			zap.L().Info("📴 停止接收Telegram消息")
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			p.route(ctx, update)
		}
	}
}

func (p *Poller) route(ctx context.Context, update tgbotapi.Update) {
	var err error
	switch {
	case update.CallbackQuery != nil:
		query := update.CallbackQuery
		if _, ackErr := p.bot.Request(tgbotapi.NewCallback(query.ID, "")); ackErr != nil {
			zap.L().Debug("应答回调失败", zap.Error(ackErr))
		}
		if query.Message == nil || query.Message.Chat == nil {
			return
		}
		err = p.handler.HandleCallback(ctx, chatKey(query.Message.Chat.ID), query.Data)

	case update.Message != nil && update.Message.Chat != nil:
		msg := update.Message
		chatID := chatKey(msg.Chat.ID)
		if msg.IsCommand() {
			switch msg.Command() {
			case "start":
				err = p.handler.HandleStart(ctx, chatID)
			case "status":
				err = p.handler.HandleStatus(ctx, chatID)
			case "history":
				err = p.handler.HandleHistory(ctx, chatID)
			default:
				zap.L().Debug("忽略未知命令", zap.String("command", msg.Command()))
			}
		} else if msg.Text != "" {
			err = p.handler.HandleText(ctx, chatID, msg.Text)
		}
	}

	if err != nil {
		zap.L().Error("❌ 回复消息失败", zap.Error(err))
	}
}

func chatKey(id int64) string {
	return strconv.FormatInt(id, 10)
}
