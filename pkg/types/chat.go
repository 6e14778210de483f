package types

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// PendingInput 等待用户输入的文本提示类型
type PendingInput string

const (
	PendingNone       PendingInput = ""
	PendingPriceAlert PendingInput = "priceAlert"
	PendingTarget     PendingInput = "target"
	PendingStopLoss   PendingInput = "stopLoss"
)

// ParsePendingInput 解析等待输入标签
func ParsePendingInput(s string) (PendingInput, error) {
	switch PendingInput(s) {
	case PendingNone, PendingPriceAlert, PendingTarget, PendingStopLoss:
		return PendingInput(s), nil
	default:
		return PendingNone, fmt.Errorf("pending input %q: %w", s, ErrUnknownTag)
	}
}

// MarshalJSON 无等待输入时输出null
func (p PendingInput) MarshalJSON() ([]byte, error) {
	if p == PendingNone {
		return []byte("null"), nil
	}
	return json.Marshal(string(p))
}

// UnmarshalJSON 拒绝未知标签
func (p *PendingInput) UnmarshalJSON(data []byte) error {
	var raw *string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		*p = PendingNone
		return nil
	}
	parsed, err := ParsePendingInput(*raw)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// ChatDefaults 新建聊天记录时使用的默认阈值
type ChatDefaults struct {
	RSILow  decimal.Decimal
	RSIHigh decimal.Decimal
}

// DefaultChatDefaults 默认超卖30、超买70
func DefaultChatDefaults() ChatDefaults {
	return ChatDefaults{
		RSILow:  decimal.NewFromInt(30),
		RSIHigh: decimal.NewFromInt(70),
	}
}

// ChatState 单个聊天的预警配置
type ChatState struct {
	Enabled      bool              `json:"enabled"`
	RSILow       decimal.Decimal   `json:"rsiLow"`
	RSIHigh      decimal.Decimal   `json:"rsiHigh"`
	PriceAlerts  []decimal.Decimal `json:"priceAlerts"`
	TargetPrice  *decimal.Decimal  `json:"targetPrice"`
	StopLoss     *decimal.Decimal  `json:"stopLoss"`
	PendingInput PendingInput      `json:"pendingInput"`
	LastSignal   Signal            `json:"lastSignal"`
}

// NewChatState 创建默认状态的聊天记录
func NewChatState(defaults ChatDefaults) *ChatState {
	return &ChatState{
		RSILow:      defaults.RSILow,
		RSIHigh:     defaults.RSIHigh,
		PriceAlerts: []decimal.Decimal{},
	}
}

// Clone 深拷贝
func (c *ChatState) Clone() *ChatState {
	out := *c
	out.PriceAlerts = append(make([]decimal.Decimal, 0, len(c.PriceAlerts)), c.PriceAlerts...)
	if c.TargetPrice != nil {
		v := *c.TargetPrice
		out.TargetPrice = &v
	}
	if c.StopLoss != nil {
		v := *c.StopLoss
		out.StopLoss = &v
	}
	return &out
}

// AddPriceAlert 添加价格预警，已存在相同价格时不重复添加
func (c *ChatState) AddPriceAlert(price decimal.Decimal) bool {
	for _, p := range c.PriceAlerts {
		if p.Equal(price) {
			return false
		}
	}
	c.PriceAlerts = append(c.PriceAlerts, price)
	return true
}

// StopAll 关闭所有预警并清空价格、目标价、止损和信号锁存
func (c *ChatState) StopAll() {
	c.Enabled = false
	c.PriceAlerts = []decimal.Decimal{}
	c.TargetPrice = nil
	c.StopLoss = nil
	c.PendingInput = PendingNone
	c.LastSignal = SignalNone
}

// Equal 按字段比较，价格按数值比较，价格预警与顺序无关
func (c *ChatState) Equal(o *ChatState) bool {
	if c == nil || o == nil {
		return c == o
	}
	if c.Enabled != o.Enabled || c.PendingInput != o.PendingInput || c.LastSignal != o.LastSignal {
		return false
	}
	if !c.RSILow.Equal(o.RSILow) || !c.RSIHigh.Equal(o.RSIHigh) {
		return false
	}
	if !optionalEqual(c.TargetPrice, o.TargetPrice) || !optionalEqual(c.StopLoss, o.StopLoss) {
		return false
	}
	if len(c.PriceAlerts) != len(o.PriceAlerts) {
		return false
	}
	for _, p := range c.PriceAlerts {
		found := false
		for _, q := range o.PriceAlerts {
			if p.Equal(q) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func optionalEqual(a, b *decimal.Decimal) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

// Normalize 修正反序列化后的空值，nil记录返回错误
func (c *ChatState) Normalize() error {
	if c.PriceAlerts == nil {
		c.PriceAlerts = []decimal.Decimal{}
	}
	if c.RSILow.GreaterThanOrEqual(c.RSIHigh) {
		return fmt.Errorf("rsiLow %s must be below rsiHigh %s", c.RSILow, c.RSIHigh)
	}
	return nil
}

// StateDocument 持久化文档结构
type StateDocument struct {
	Chats map[string]*ChatState `json:"chats"`
}
