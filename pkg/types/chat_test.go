package types

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestAddPriceAlertIsASet(t *testing.T) {
	chat := NewChatState(DefaultChatDefaults())

	if !chat.AddPriceAlert(decimal.RequireFromString("100")) {
		t.Fatal("first add rejected")
	}
	if chat.AddPriceAlert(decimal.RequireFromString("100.00")) {
		t.Error("numerically equal price added twice")
	}
	if !chat.AddPriceAlert(decimal.RequireFromString("101")) {
		t.Error("distinct price rejected")
	}
	if len(chat.PriceAlerts) != 2 {
		t.Errorf("price alerts = %v", chat.PriceAlerts)
	}
}

func TestStopAllClearsEverything(t *testing.T) {
	target := decimal.NewFromInt(110)
	chat := &ChatState{
		Enabled:      true,
		RSILow:       decimal.NewFromInt(30),
		RSIHigh:      decimal.NewFromInt(70),
		PriceAlerts:  []decimal.Decimal{decimal.NewFromInt(1)},
		TargetPrice:  &target,
		StopLoss:     &target,
		PendingInput: PendingTarget,
		LastSignal:   SignalSell,
	}
	chat.StopAll()

	want := NewChatState(DefaultChatDefaults())
	if !chat.Equal(want) {
		t.Errorf("after StopAll = %+v, want defaults", chat)
	}
}

func TestCloneDoesNotAlias(t *testing.T) {
	target := decimal.NewFromInt(110)
	chat := NewChatState(DefaultChatDefaults())
	chat.TargetPrice = &target
	chat.AddPriceAlert(decimal.NewFromInt(5))

	clone := chat.Clone()
	*clone.TargetPrice = decimal.NewFromInt(1)
	clone.PriceAlerts[0] = decimal.NewFromInt(6)

	if !chat.TargetPrice.Equal(target) || !chat.PriceAlerts[0].Equal(decimal.NewFromInt(5)) {
		t.Errorf("clone aliases original: %+v", chat)
	}
}

func TestEnumJSON(t *testing.T) {
	type record struct {
		Pending PendingInput `json:"pendingInput"`
		Last    Signal       `json:"lastSignal"`
	}

	data, err := json.Marshal(record{Pending: PendingNone, Last: SignalBuy})
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"pendingInput":null,"lastSignal":"buy"}` {
		t.Errorf("marshal = %s", data)
	}

	var got record
	if err := json.Unmarshal([]byte(`{"pendingInput":"stopLoss","lastSignal":null}`), &got); err != nil {
		t.Fatal(err)
	}
	if got.Pending != PendingStopLoss || got.Last != SignalNone {
		t.Errorf("unmarshal = %+v", got)
	}

	for _, bad := range []string{`{"pendingInput":"price"}`, `{"lastSignal":"hold"}`} {
		err := json.Unmarshal([]byte(bad), &got)
		if !errors.Is(err, ErrUnknownTag) {
			t.Errorf("%s: err = %v, want ErrUnknownTag", bad, err)
		}
	}
}

func TestParseAction(t *testing.T) {
	for _, tag := range []string{"price", "low", "high", "priceAlert", "target", "stopLoss", "stopAll"} {
		if _, err := ParseAction(tag); err != nil {
			t.Errorf("ParseAction(%q): %v", tag, err)
		}
	}
	if _, err := ParseAction("PRICE"); !errors.Is(err, ErrUnknownTag) {
		t.Errorf("case-sensitive tag accepted: %v", err)
	}
}

func TestNewMarketSnapshot(t *testing.T) {
	if NewMarketSnapshot(nil, nil) != nil {
		t.Error("empty klines should give nil snapshot")
	}
}

func TestNormalize(t *testing.T) {
	chat := &ChatState{RSILow: decimal.NewFromInt(30), RSIHigh: decimal.NewFromInt(70)}
	if err := chat.Normalize(); err != nil || chat.PriceAlerts == nil {
		t.Errorf("Normalize = %v, alerts = %v", err, chat.PriceAlerts)
	}

	chat.RSILow = decimal.NewFromInt(70)
	if err := chat.Normalize(); err == nil {
		t.Error("rsiLow == rsiHigh accepted")
	}
}
