package bot

import (
	"context"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type fakeUpdates struct {
	mutex   sync.Mutex
	ch      chan tgbotapi.Update
	acked   []string
	stopped bool
}

func (f *fakeUpdates) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return f.ch
}

func (f *fakeUpdates) StopReceivingUpdates() {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.stopped = true
}

func (f *fakeUpdates) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	if cb, ok := c.(tgbotapi.CallbackConfig); ok {
		f.acked = append(f.acked, cb.CallbackQueryID)
	}
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func command(chatID int64, text string) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{
		Text:     text,
		Chat:     &tgbotapi.Chat{ID: chatID},
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(text)}},
	}}
}

func textMessage(chatID int64, body string) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{Text: body, Chat: &tgbotapi.Chat{ID: chatID}}}
}

func callback(chatID int64, id, data string) tgbotapi.Update {
	return tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      id,
		Data:    data,
		Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: chatID}},
	}}
}

func TestPollerRoutesUpdates(t *testing.T) {
	h := newHarness(t, nil)
	p := NewPoller(&fakeUpdates{}, h.handler, 30)
	ctx := context.Background()

	p.route(ctx, command(42, "/start"))
	if got := h.replies.last(t); got.Text != greeting || got.ChatID != "42" {
		t.Fatalf("start reply = %+v", got)
	}

	p.route(ctx, callback(42, "cb-1", "target"))
	if got := h.replies.last(t).Text; got != "🎯 Enter Target Price:" {
		t.Errorf("callback reply = %q", got)
	}

	p.route(ctx, textMessage(42, "71000"))
	if got := h.replies.last(t).Text; got != "🎯 Target Price set at 71000" {
		t.Errorf("text reply = %q", got)
	}

	p.route(ctx, command(42, "/status@sentry_bot"))
	if got := h.replies.last(t); !got.WithMenu {
		t.Errorf("status reply = %+v", got)
	}

	before := h.replies.count()
	p.route(ctx, command(42, "/unknown"))
	if h.replies.count() != before {
		t.Error("replied to unknown command")
	}

	fake := p.bot.(*fakeUpdates)
	if len(fake.acked) != 1 || fake.acked[0] != "cb-1" {
		t.Errorf("acked callbacks = %v", fake.acked)
	}
}

func TestPollerRunStopsOnCancel(t *testing.T) {
	h := newHarness(t, nil)
	updates := &fakeUpdates{ch: make(chan tgbotapi.Update, 1)}
	p := NewPoller(updates, h.handler, 30)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	updates.ch <- command(1, "/start")
	deadline := time.Now().Add(2 * time.Second)
	for h.replies.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("poller did not stop")
	}
	if !updates.stopped {
		t.Error("StopReceivingUpdates not called")
	}
	if h.replies.count() != 1 {
		t.Errorf("replies = %d, want 1", h.replies.count())
	}
}
