package types

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnknownTag 持久化数据或回调中出现未知的标签值
var ErrUnknownTag = errors.New("unknown tag")

// Signal RSI信号锁存状态，防止在同一极值区间内重复触发
type Signal string

const (
	SignalNone Signal = ""
	SignalBuy  Signal = "buy"
	SignalSell Signal = "sell"
)

// ParseSignal 解析信号标签，空串表示无信号
func ParseSignal(s string) (Signal, error) {
	switch Signal(s) {
	case SignalNone, SignalBuy, SignalSell:
		return Signal(s), nil
	default:
		return SignalNone, fmt.Errorf("signal %q: %w", s, ErrUnknownTag)
	}
}

// MarshalJSON 无信号时输出null
func (s Signal) MarshalJSON() ([]byte, error) {
	if s == SignalNone {
		return []byte("null"), nil
	}
	return json.Marshal(string(s))
}

// UnmarshalJSON 拒绝未知标签
func (s *Signal) UnmarshalJSON(data []byte) error {
	var raw *string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		*s = SignalNone
		return nil
	}
	parsed, err := ParseSignal(*raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Action 菜单按钮对应的回调动作
type Action string

const (
	ActionPrice      Action = "price"
	ActionLow        Action = "low"
	ActionHigh       Action = "high"
	ActionPriceAlert Action = "priceAlert"
	ActionTarget     Action = "target"
	ActionStopLoss   Action = "stopLoss"
	ActionStopAll    Action = "stopAll"
)

// ParseAction 解析回调数据
func ParseAction(data string) (Action, error) {
	switch a := Action(data); a {
	case ActionPrice, ActionLow, ActionHigh, ActionPriceAlert, ActionTarget, ActionStopLoss, ActionStopAll:
		return a, nil
	default:
		return "", fmt.Errorf("action %q: %w", data, ErrUnknownTag)
	}
}
