package indicators

import (
	"errors"

	"rsi-sentry/pkg/types"
)

// ErrInsufficientData K线数量不足 period+1
var ErrInsufficientData = errors.New("insufficient data for RSI")

// RSICalculator RSI指标计算器（Wilder平滑）
type RSICalculator struct {
	length int
}

// NewRSICalculator 创建RSI计算器
func NewRSICalculator(length int) *RSICalculator {
	return &RSICalculator{
		length: length,
	}
}

// Calculate 基于K线收盘价计算RSI，数据不足时返回nil
func (rc *RSICalculator) Calculate(klines []*types.KLine) *types.RSIData {
	closes := make([]float64, len(klines))
	for i, k := range klines {
		closes[i] = k.Close.InexactFloat64()
	}

	value, err := ComputeRSI(closes, rc.length)
	if err != nil {
		return nil
	}

	return &types.RSIData{
		Value:  value,
		Period: rc.length,
	}
}

// ComputeRSI 计算收盘价序列最后一根的RSI。
// 前 period 个差值取简单平均作为种子，之后逐根做Wilder平滑。
func ComputeRSI(closes []float64, period int) (float64, error) {
	if period <= 0 || len(closes) < period+1 {
		return 0, ErrInsufficientData
	}

	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		change := closes[i] - closes[i-1]
		if change > 0 {
			avgGain += change
		} else {
			avgLoss -= change
		}
	}
	p := float64(period)
	avgGain /= p
	avgLoss /= p

	for i := period + 1; i < len(closes); i++ {
		change := closes[i] - closes[i-1]
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		avgGain = (avgGain*(p-1) + gain) / p
		avgLoss = (avgLoss*(p-1) + loss) / p
	}

	if avgLoss == 0 {
		return 100, nil
	}

	rs := avgGain / avgLoss
	rsi := 100 - 100/(1+rs)

	switch {
	case rsi < 0:
		return 0, nil
	case rsi > 100:
		return 100, nil
	}
	return rsi, nil
}
