package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"rsi-sentry/internal/analyzer"
	"rsi-sentry/internal/bot"
	"rsi-sentry/internal/fetcher"
	"rsi-sentry/internal/indicators"
	"rsi-sentry/internal/metrics"
	"rsi-sentry/internal/notifier"
	"rsi-sentry/internal/recorder"
	"rsi-sentry/internal/scheduler"
	"rsi-sentry/internal/storage"
	"rsi-sentry/pkg/types"
)

// App 应用程序管理器
type App struct {
	config    *types.Config
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	scheduler *scheduler.Scheduler
	closers   []func() error
}

// NewApp 创建应用程序实例
func NewApp(config *types.Config) *App {
	ctx, cancel := context.WithCancel(context.Background())
	return &App{
		config: config,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start 组装各模块并启动轮询、Telegram接收和可选的指标/推送服务
func (app *App) Start() error {
	zap.L().Info("🚀 RSI Sentry 启动中...")
	cfg := app.config

	loc, err := time.LoadLocation(cfg.Alert.Timezone)
	if err != nil {
		return fmt.Errorf("load timezone: %w", err)
	}

	persister, err := app.newPersister()
	if err != nil {
		return err
	}
	defaults := types.ChatDefaults{
		RSILow:  decimal.NewFromFloat(cfg.Alert.RSILow),
		RSIHigh: decimal.NewFromFloat(cfg.Alert.RSIHigh),
	}
	chatStore, err := storage.NewChatStore(app.ctx, persister, defaults)
	if err != nil {
		return err
	}

	// 行情：REST为主，启用推送时由推送保持最新K线
	var source fetcher.Source = fetcher.NewDataFetcher(cfg.Market, fetcher.NewHTTPClient(cfg.Network))
	if cfg.Market.Stream.Enabled {
		stream := fetcher.NewStreamSource(source, cfg.Market, cfg.Network.Proxy)
		app.goRun(stream.Run)
		source = stream
	}

	// getUpdates长轮询需要比轮询超时更长的HTTP超时
	telegramClient := fetcher.NewHTTPClient(types.NetworkConfig{
		Proxy:   cfg.Network.Proxy,
		Timeout: time.Duration(cfg.Telegram.PollTimeout)*time.Second + cfg.Network.Timeout,
	})
	botAPI, err := tgbotapi.NewBotAPIWithClient(cfg.Telegram.BotToken, tgbotapi.APIEndpoint, telegramClient)
	if err != nil {
		return fmt.Errorf("connect telegram: %w", err)
	}
	zap.L().Info("✅ Telegram连接成功", zap.String("bot", botAPI.Self.UserName))

	var notifyService notifier.Interface = notifier.NewTelegramNotifier(botAPI, cfg.Telegram.SendRetries)
	if cfg.Telegram.ConsoleMirror {
		notifyService = notifier.NewMultiNotifier(notifyService, notifier.NewConsoleNotifier())
	}

	rec := app.newRecorder()
	m := metrics.NewMetrics()
	if cfg.Metrics.Listen != "" {
		app.goRun(func(ctx context.Context) {
			if err := m.Serve(ctx, cfg.Metrics.Listen); err != nil {
				zap.L().Error("❌ 指标服务异常退出", zap.Error(err))
			}
		})
	}

	rsiCalculator := indicators.NewRSICalculator(cfg.Alert.RSIPeriod)
	analysisEngine := analyzer.NewAnalysisEngine(loc, notifyService, rec, m)
	app.scheduler = scheduler.NewScheduler(source, rsiCalculator, analysisEngine, chatStore, m, cfg.Alert.PollInterval)
	if err := app.scheduler.Start(app.ctx); err != nil {
		return err
	}

	handler := bot.NewHandler(chatStore, notifyService, source, rsiCalculator, rec, loc)
	poller := bot.NewPoller(botAPI, handler, cfg.Telegram.PollTimeout)
	app.goRun(poller.Run)

	zap.L().Info("⚡ RSI Sentry 已启动",
		zap.String("symbol", cfg.Market.Symbol),
		zap.String("interval", cfg.Market.Interval),
		zap.Int("chats", chatStore.Len()))
	return nil
}

func (app *App) newPersister() (storage.Persister, error) {
	switch app.config.Storage.Backend {
	case "redis":
		persister, err := storage.NewRedisPersister(app.config.Redis)
		if err != nil {
			return nil, err
		}
		app.closers = append(app.closers, persister.Close)
		return persister, nil
	default:
		return storage.NewFilePersister(app.config.Storage.StateFile), nil
	}
}

// newRecorder MySQL不可用时退回noop，不影响预警
func (app *App) newRecorder() recorder.Recorder {
	if app.config.Database.MySQL.Host == "" {
		return recorder.NewNoopRecorder()
	}
	rec, err := recorder.NewMySQLRecorder(app.config.Database.MySQL)
	if err != nil {
		zap.L().Warn("⚠️ 预警历史不可用，使用noop", zap.Error(err))
		return recorder.NewNoopRecorder()
	}
	app.closers = append(app.closers, rec.Close)
	return rec
}

func (app *App) goRun(fn func(ctx context.Context)) {
	app.wg.Add(1)
	go func() {
		defer app.wg.Done()
		fn(app.ctx)
	}()
}

// Stop 停止应用程序
func (app *App) Stop() {
	zap.L().Info("🛑 收到停止信号，正在优雅关闭...")
	app.cancel()

	// 等待所有goroutine结束，最多等待30秒
	done := make(chan struct{})
	go func() {
		if app.scheduler != nil {
			app.scheduler.Stop()
		}
		app.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		zap.L().Info("✅ RSI Sentry 已安全关闭")
	case <-time.After(30 * time.Second):
		zap.L().Warn("⚠️ 强制关闭超时")
	}

	for _, closeFn := range app.closers {
		if err := closeFn(); err != nil {
			zap.L().Warn("关闭资源失败", zap.Error(err))
		}
	}
}

// WaitForShutdown 等待关闭信号
func (app *App) WaitForShutdown() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
}
