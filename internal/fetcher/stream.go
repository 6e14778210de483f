package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"rsi-sentry/pkg/types"
)

// StreamSource 用REST拉取的K线做种子，再用WebSocket推送持续更新最后一根K线。
// 断线期间或尚未取得种子时回退到REST。
type StreamSource struct {
	rest     Source
	endpoint string
	symbol   string
	interval string
	limit    int
	proxy    string
	config   types.StreamConfig

	mu          sync.RWMutex
	isConnected bool
	needSeed    bool
	klines      []*types.KLine
}

// binanceKlineEvent Binance kline推送格式，大小写不同的字段都要声明，避免被大小写不敏感匹配覆盖
type binanceKlineEvent struct {
	EventType string `json:"e"`
	EventTime int64  `json:"E"`
	Symbol    string `json:"s"`
	Kline     struct {
		OpenTime    int64  `json:"t"`
		CloseTime   int64  `json:"T"`
		Interval    string `json:"i"`
		Open        string `json:"o"`
		Close       string `json:"c"`
		High        string `json:"h"`
		Low         string `json:"l"`
		LastTradeID int64  `json:"L"`
		Volume      string `json:"v"`
		TakerVolume string `json:"V"`
		Closed      bool   `json:"x"`
	} `json:"k"`
}

func NewStreamSource(rest Source, marketConfig types.MarketConfig, proxy string) *StreamSource {
	return &StreamSource{
		rest:     rest,
		endpoint: marketConfig.Stream.Endpoint,
		symbol:   marketConfig.Symbol,
		interval: marketConfig.Interval,
		limit:    marketConfig.Limit,
		proxy:    proxy,
		config:   marketConfig.Stream,
		needSeed: true,
	}
}

// streamURL 形如 wss://stream.binance.com:9443/ws/btcusdt@kline_15m
func (s *StreamSource) streamURL() string {
	return fmt.Sprintf("%s/%s@kline_%s", strings.TrimRight(s.endpoint, "/"), strings.ToLower(s.symbol), s.interval)
}

// FetchKlines 未连接或需要重新同步时走REST，否则返回内存中的K线副本
func (s *StreamSource) FetchKlines(ctx context.Context) ([]*types.KLine, error) {
	s.mu.RLock()
	useCache := s.isConnected && !s.needSeed && len(s.klines) > 0
	if useCache {
		out := copyKlines(s.klines)
		s.mu.RUnlock()
		return out, nil
	}
	s.mu.RUnlock()

	klines, err := s.rest.FetchKlines(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.klines = copyKlines(klines)
	s.needSeed = false
	s.mu.Unlock()

	return klines, nil
}

// Run 维持WebSocket连接直到ctx取消或超过最大重连次数
func (s *StreamSource) Run(ctx context.Context) {
	attempts := 0
	for {
		if ctx.Err() != nil {
			return
		}

		conn, err := s.connect(ctx)
		if err == nil {
			attempts = 0
			err = s.readLoop(ctx, conn)
		}
		s.markDisconnected()

		if ctx.Err() != nil {
			zap.L().Info("📴 K线推送已停止")
			return
		}

		attempts++
		if attempts > s.config.MaxReconnectAttempts {
			zap.L().Error("❌ 达到最大重连次数，停止K线推送，回退到REST轮询",
				zap.Int("max_attempts", s.config.MaxReconnectAttempts),
				zap.Error(err))
			return
		}

		zap.L().Warn("⚠️ K线推送断开，准备重连",
			zap.Error(err),
			zap.Int("attempt", attempts),
			zap.Duration("wait", s.config.ReconnectInterval))

		select {
		case <-ctx.Done():
			return
		case <-time.After(s.config.ReconnectInterval):
		}
	}
}

func (s *StreamSource) connect(ctx context.Context) (*websocket.Conn, error) {
	dialer := *websocket.DefaultDialer
	if s.proxy != "" {
		proxyURL, err := url.Parse(s.proxy)
		if err != nil {
			return nil, fmt.Errorf("parse proxy url: %w", err)
		}
		dialer.Proxy = http.ProxyURL(proxyURL)
	}

	conn, _, err := dialer.DialContext(ctx, s.streamURL(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", s.streamURL(), err)
	}

	s.markConnected()

	zap.L().Info("✅ K线推送连接成功", zap.String("url", s.streamURL()))
	return conn, nil
}

func (s *StreamSource) readLoop(ctx context.Context, conn *websocket.Conn) error {
	done := make(chan struct{})
	defer close(done)

	go func() {
		ticker := time.NewTicker(s.config.PingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				conn.Close()
				return
			case <-ticker.C:
				deadline := time.Now().Add(5 * time.Second)
				if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
					zap.L().Warn("⚠️ 发送心跳失败", zap.Error(err))
					conn.Close()
					return
				}
			}
		}
	}()
	defer conn.Close()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		kline, err := parseStreamKline(message)
		if err != nil {
			zap.L().Warn("解析K线推送失败", zap.Error(err))
			continue
		}
		if kline != nil {
			s.apply(kline)
		}
	}
}

func (s *StreamSource) markConnected() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.isConnected = true
	// 断线期间REST拉到的K线可能停在未收盘的价格，连上后再同步一次
	s.needSeed = true
}

func (s *StreamSource) markDisconnected() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.isConnected = false
	// 断线期间可能漏掉K线，重连后先用REST重新同步
	s.needSeed = true
}

// apply 合并一根推送K线：同一开盘时间则替换，更新的则追加并保持窗口长度
func (s *StreamSource) apply(k *types.KLine) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.klines) == 0 {
		return
	}

	last := s.klines[len(s.klines)-1]
	switch {
	case k.OpenTime.Equal(last.OpenTime):
		s.klines[len(s.klines)-1] = k
	case k.OpenTime.After(last.OpenTime):
		s.klines = append(s.klines, k)
		if s.limit > 0 && len(s.klines) > s.limit {
			s.klines = s.klines[len(s.klines)-s.limit:]
		}
	default:
		for i := len(s.klines) - 2; i >= 0; i-- {
			if s.klines[i].OpenTime.Equal(k.OpenTime) {
				s.klines[i] = k
				return
			}
		}
	}
}

// parseStreamKline 非kline事件返回 nil, nil
func parseStreamKline(message []byte) (*types.KLine, error) {
	var event binanceKlineEvent
	if err := json.Unmarshal(message, &event); err != nil {
		return nil, err
	}
	if event.EventType != "kline" {
		return nil, nil
	}

	fields := []string{event.Kline.Open, event.Kline.High, event.Kline.Low, event.Kline.Close, event.Kline.Volume}
	values := make([]decimal.Decimal, len(fields))
	for i, f := range fields {
		d, err := decimal.NewFromString(f)
		if err != nil {
			return nil, fmt.Errorf("parse kline field %d: %w", i, err)
		}
		values[i] = d
	}

	return &types.KLine{
		Symbol:    event.Symbol,
		OpenTime:  time.UnixMilli(event.Kline.OpenTime),
		CloseTime: time.UnixMilli(event.Kline.CloseTime),
		Open:      values[0],
		High:      values[1],
		Low:       values[2],
		Close:     values[3],
		Volume:    values[4],
		Interval:  event.Kline.Interval,
	}, nil
}

func copyKlines(in []*types.KLine) []*types.KLine {
	out := make([]*types.KLine, len(in))
	for i, k := range in {
		c := *k
		out[i] = &c
	}
	return out
}
