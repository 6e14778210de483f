package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"rsi-sentry/pkg/types"
)

// Source K线数据来源
type Source interface {
	FetchKlines(ctx context.Context) ([]*types.KLine, error)
}

// DataFetcher 通过Binance REST接口拉取K线
type DataFetcher struct {
	baseURL    string
	symbol     string
	interval   string
	limit      int
	httpClient *http.Client
}

// NewHTTPClient 按网络配置创建HTTP客户端（超时 + 可选代理）
func NewHTTPClient(networkConfig types.NetworkConfig) *http.Client {
	timeout := networkConfig.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	transport := &http.Transport{Proxy: http.ProxyFromEnvironment}
	if networkConfig.Proxy != "" {
		proxyURL, err := url.Parse(networkConfig.Proxy)
		if err == nil {
			transport.Proxy = http.ProxyURL(proxyURL)
			zap.L().Info("✅ 已配置HTTP代理", zap.String("proxy", networkConfig.Proxy))
		} else {
			zap.L().Warn("⚠️ 代理地址格式错误", zap.Error(err))
		}
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

func NewDataFetcher(marketConfig types.MarketConfig, httpClient *http.Client) *DataFetcher {
	return &DataFetcher{
		baseURL:    marketConfig.BaseURL,
		symbol:     marketConfig.Symbol,
		interval:   marketConfig.Interval,
		limit:      marketConfig.Limit,
		httpClient: httpClient,
	}
}

// FetchKlines 获取最近 limit 根K线，按开盘时间升序
func (f *DataFetcher) FetchKlines(ctx context.Context) ([]*types.KLine, error) {
	params := url.Values{}
	params.Add("symbol", f.symbol)
	params.Add("interval", f.interval)
	params.Add("limit", strconv.Itoa(f.limit))
	reqURL := fmt.Sprintf("%s/klines?%s", f.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch klines: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("binance returned status %d: %s", resp.StatusCode, string(body))
	}

	var raw [][]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode klines: %w", err)
	}

	klines := make([]*types.KLine, 0, len(raw))
	for i, row := range raw {
		kline, err := parseRESTKline(f.symbol, f.interval, row)
		if err != nil {
			return nil, fmt.Errorf("kline %d: %w", i, err)
		}
		klines = append(klines, kline)
	}

	for i := 1; i < len(klines); i++ {
		if !klines[i].OpenTime.After(klines[i-1].OpenTime) {
			return nil, fmt.Errorf("klines out of order at index %d", i)
		}
	}

	zap.L().Debug("📊 获取K线完成",
		zap.String("symbol", f.symbol),
		zap.String("interval", f.interval),
		zap.Int("count", len(klines)))

	return klines, nil
}

// parseRESTKline Binance K线格式: [openTime, open, high, low, close, volume, closeTime, ...]
func parseRESTKline(symbol, interval string, row []json.RawMessage) (*types.KLine, error) {
	if len(row) < 7 {
		return nil, fmt.Errorf("expected at least 7 fields, got %d", len(row))
	}

	var openMs, closeMs int64
	if err := json.Unmarshal(row[0], &openMs); err != nil {
		return nil, fmt.Errorf("open time: %w", err)
	}
	if err := json.Unmarshal(row[6], &closeMs); err != nil {
		return nil, fmt.Errorf("close time: %w", err)
	}

	prices := make([]decimal.Decimal, 5)
	for i := range prices {
		var s string
		if err := json.Unmarshal(row[i+1], &s); err != nil {
			return nil, fmt.Errorf("field %d: %w", i+1, err)
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return nil, fmt.Errorf("field %d: %w", i+1, err)
		}
		prices[i] = d
	}

	return &types.KLine{
		Symbol:    symbol,
		OpenTime:  time.UnixMilli(openMs),
		CloseTime: time.UnixMilli(closeMs),
		Open:      prices[0],
		High:      prices[1],
		Low:       prices[2],
		Close:     prices[3],
		Volume:    prices[4],
		Interval:  interval,
	}, nil
}
