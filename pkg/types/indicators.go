package types

// RSIData RSI指标数据
type RSIData struct {
	Value  float64 `json:"value"`  // RSI值，范围 [0,100]
	Period int     `json:"period"` // 计算周期
}
