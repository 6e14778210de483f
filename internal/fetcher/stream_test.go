package fetcher

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"rsi-sentry/pkg/types"
)

type staticSource struct {
	klines []*types.KLine
	calls  int
}

func (s *staticSource) FetchKlines(ctx context.Context) ([]*types.KLine, error) {
	s.calls++
	return copyKlines(s.klines), nil
}

func kline(openMs int64, closePrice string) *types.KLine {
	return &types.KLine{
		Symbol:   "BTCUSDT",
		OpenTime: time.UnixMilli(openMs),
		Close:    decimal.RequireFromString(closePrice),
		Interval: "15m",
	}
}

const candle = int64(15 * 60 * 1000)

func TestParseStreamKline(t *testing.T) {
	msg := []byte(`{"e":"kline","E":1700000123456,"s":"BTCUSDT","k":{"t":1700000000000,"T":1700000899999,
		"s":"BTCUSDT","i":"15m","f":100,"L":200,"o":"37000.10","c":"37050.50","h":"37100.00","l":"36900.00",
		"v":"12.5","n":100,"x":false,"q":"1.0","V":"3.0","Q":"2.0","B":"0"}}`)

	k, err := parseStreamKline(msg)
	if err != nil {
		t.Fatalf("parseStreamKline: %v", err)
	}
	if !k.Close.Equal(decimal.RequireFromString("37050.50")) {
		t.Errorf("close = %s", k.Close)
	}
	if !k.Low.Equal(decimal.RequireFromString("36900.00")) {
		t.Errorf("low = %s", k.Low)
	}
	if !k.Volume.Equal(decimal.RequireFromString("12.5")) {
		t.Errorf("volume = %s, taker volume leaked in", k.Volume)
	}
	if !k.OpenTime.Equal(time.UnixMilli(1700000000000)) || !k.CloseTime.Equal(time.UnixMilli(1700000899999)) {
		t.Errorf("times = %s / %s", k.OpenTime, k.CloseTime)
	}

	other, err := parseStreamKline([]byte(`{"e":"trade","E":1,"s":"BTCUSDT"}`))
	if err != nil || other != nil {
		t.Errorf("non-kline event: got %v, %v", other, err)
	}
}

func TestStreamSourceApply(t *testing.T) {
	rest := &staticSource{klines: []*types.KLine{kline(0, "1"), kline(candle, "2"), kline(2*candle, "3")}}
	s := NewStreamSource(rest, types.MarketConfig{Symbol: "BTCUSDT", Interval: "15m", Limit: 3}, "")

	// 尚未取得种子时忽略推送
	s.apply(kline(3*candle, "9"))

	if _, err := s.FetchKlines(context.Background()); err != nil {
		t.Fatal(err)
	}
	s.mu.Lock()
	s.isConnected = true
	s.mu.Unlock()

	s.apply(kline(2*candle, "3.5"))
	got, _ := s.FetchKlines(context.Background())
	if len(got) != 3 || !got[2].Close.Equal(decimal.RequireFromString("3.5")) {
		t.Fatalf("same candle should replace last, got %v", closes(got))
	}

	s.apply(kline(3*candle, "4"))
	got, _ = s.FetchKlines(context.Background())
	if want := []string{"2", "3.5", "4"}; !equalCloses(got, want) {
		t.Fatalf("new candle should append and trim: got %v want %v", closes(got), want)
	}

	s.apply(kline(2*candle, "3.75"))
	got, _ = s.FetchKlines(context.Background())
	if want := []string{"2", "3.75", "4"}; !equalCloses(got, want) {
		t.Fatalf("late update should replace in place: got %v want %v", closes(got), want)
	}

	if rest.calls != 1 {
		t.Errorf("rest calls = %d, want 1 while connected", rest.calls)
	}

	s.markDisconnected()
	if _, err := s.FetchKlines(context.Background()); err != nil {
		t.Fatal(err)
	}
	if rest.calls != 2 {
		t.Errorf("rest calls = %d, want REST fallback after disconnect", rest.calls)
	}
}

func TestStreamSourceResyncsAfterReconnect(t *testing.T) {
	rest := &staticSource{klines: []*types.KLine{kline(0, "1"), kline(candle, "2")}}
	s := NewStreamSource(rest, types.MarketConfig{Symbol: "BTCUSDT", Interval: "15m", Limit: 3}, "")

	s.markConnected()
	if _, err := s.FetchKlines(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := s.FetchKlines(context.Background()); err != nil {
		t.Fatal(err)
	}
	if rest.calls != 1 {
		t.Fatalf("rest calls = %d, want 1 after seeding", rest.calls)
	}

	// 断线期间的轮询走REST，此时拿到的最后一根K线尚未收盘
	s.markDisconnected()
	if _, err := s.FetchKlines(context.Background()); err != nil {
		t.Fatal(err)
	}
	if rest.calls != 2 {
		t.Fatalf("rest calls = %d, want 2 while disconnected", rest.calls)
	}

	rest.klines = []*types.KLine{kline(0, "1"), kline(candle, "2.5"), kline(2*candle, "3")}
	s.markConnected()
	got, err := s.FetchKlines(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if rest.calls != 3 {
		t.Errorf("rest calls = %d, want a resync after reconnect", rest.calls)
	}
	if want := []string{"1", "2.5", "3"}; !equalCloses(got, want) {
		t.Errorf("closes after reconnect = %v, want %v", closes(got), want)
	}

	if _, err := s.FetchKlines(context.Background()); err != nil {
		t.Fatal(err)
	}
	if rest.calls != 3 {
		t.Errorf("rest calls = %d, cache should serve once resynced", rest.calls)
	}
}

func TestStreamURL(t *testing.T) {
	s := NewStreamSource(nil, types.MarketConfig{
		Symbol:   "BTCUSDT",
		Interval: "15m",
		Stream:   types.StreamConfig{Endpoint: "wss://stream.binance.com:9443/ws/"},
	}, "")
	if got, want := s.streamURL(), "wss://stream.binance.com:9443/ws/btcusdt@kline_15m"; got != want {
		t.Errorf("streamURL = %s, want %s", got, want)
	}
}

func closes(klines []*types.KLine) []string {
	out := make([]string, len(klines))
	for i, k := range klines {
		out[i] = k.Close.String()
	}
	return out
}

func equalCloses(klines []*types.KLine, want []string) bool {
	got := closes(klines)
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}
