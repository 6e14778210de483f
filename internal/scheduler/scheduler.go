package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"rsi-sentry/internal/analyzer"
	"rsi-sentry/internal/fetcher"
	"rsi-sentry/internal/indicators"
	"rsi-sentry/internal/metrics"
	"rsi-sentry/internal/storage"
	"rsi-sentry/pkg/types"
)

// Scheduler 固定间隔轮询行情并评估预警，上一轮未结束时跳过本轮
type Scheduler struct {
	source         fetcher.Source
	rsiCalculator  *indicators.RSICalculator
	analysisEngine *analyzer.AnalysisEngine
	chatStore      *storage.ChatStore
	metrics        *metrics.Metrics
	pollInterval   time.Duration
	cron           *cron.Cron
}

func NewScheduler(source fetcher.Source, rsiCalculator *indicators.RSICalculator, analysisEngine *analyzer.AnalysisEngine, chatStore *storage.ChatStore, m *metrics.Metrics, pollInterval time.Duration) *Scheduler {
	logger := cronLogger{zap.S().Named("cron")}
	return &Scheduler{
		source:         source,
		rsiCalculator:  rsiCalculator,
		analysisEngine: analysisEngine,
		chatStore:      chatStore,
		metrics:        m,
		pollInterval:   pollInterval,
		cron: cron.New(
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
	}
}

// Start 注册轮询任务并启动，不阻塞
func (s *Scheduler) Start(ctx context.Context) error {
	spec := fmt.Sprintf("@every %s", s.pollInterval)
	if _, err := s.cron.AddFunc(spec, func() {
		if ctx.Err() != nil {
			return
		}
		s.RunOnce(ctx)
	}); err != nil {
		return fmt.Errorf("schedule poll job %q: %w", spec, err)
	}

	s.cron.Start()
	zap.L().Info("🚀 调度器已启动", zap.Duration("interval", s.pollInterval))
	return nil
}

// Stop 停止调度并等待正在执行的轮询结束
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	zap.L().Info("📴 调度器已停止")
}

// RunOnce 执行一轮：拉取K线 -> 计算RSI -> 事务内评估 -> 提交后发送通知。
// 拉取失败时本轮不做任何状态变更。
func (s *Scheduler) RunOnce(ctx context.Context) error {
	start := time.Now()
	s.observe(func(m *metrics.Metrics) { m.PollCycles.Inc() })

	klines, err := s.source.FetchKlines(ctx)
	if err != nil {
		s.observe(func(m *metrics.Metrics) { m.FetchFailures.Inc() })
		zap.L().Warn("⚠️ 获取K线失败，跳过本轮", zap.Error(err))
		return err
	}

	rsi := s.rsiCalculator.Calculate(klines)
	snap := types.NewMarketSnapshot(klines, rsi)
	if snap == nil {
		zap.L().Warn("⚠️ K线为空，跳过本轮")
		return nil
	}

	s.observe(func(m *metrics.Metrics) {
		m.LastPrice.Set(snap.Price.InexactFloat64())
		if rsi != nil {
			m.LastRSI.Set(rsi.Value)
		}
	})

	var notes []types.Notification
	err = s.chatStore.Transact(ctx, func(chats map[string]*types.ChatState) bool {
		var changed bool
		notes, changed = s.analysisEngine.Evaluate(snap, chats)
		return changed
	})
	if err != nil {
		s.observe(func(m *metrics.Metrics) { m.PersistErrors.Inc() })
		zap.L().Error("❌ 保存评估结果失败，本轮通知取消", zap.Error(err))
		return err
	}

	// 状态已提交，关机时也要把已确认的通知发完
	s.analysisEngine.Dispatch(context.WithoutCancel(ctx), notes)

	s.observe(func(m *metrics.Metrics) {
		m.Chats.Set(float64(s.chatStore.Len()))
		m.CycleDuration.Observe(time.Since(start).Seconds())
	})

	if rsi != nil {
		zap.L().Debug("轮询完成",
			zap.String("price", snap.Price.String()),
			zap.Float64("rsi", rsi.Value),
			zap.Int("notifications", len(notes)))
	}
	return nil
}

func (s *Scheduler) observe(fn func(m *metrics.Metrics)) {
	if s.metrics != nil {
		fn(s.metrics)
	}
}

// cronLogger 把cron内部日志转到zap
type cronLogger struct {
	sugar *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.sugar.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.sugar.Errorw(msg, append(keysAndValues, "error", err)...)
}
