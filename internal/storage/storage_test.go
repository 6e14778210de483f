package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"rsi-sentry/pkg/types"
)

type memoryPersister struct {
	saved   map[string]*types.ChatState
	saves   int
	failErr error
}

func (m *memoryPersister) Name() string { return "memory" }

func (m *memoryPersister) Load(context.Context) (map[string]*types.ChatState, error) {
	return make(map[string]*types.ChatState), nil
}

func (m *memoryPersister) Save(_ context.Context, chats map[string]*types.ChatState) error {
	if m.failErr != nil {
		return m.failErr
	}
	m.saves++
	m.saved = make(map[string]*types.ChatState, len(chats))
	for id, st := range chats {
		m.saved[id] = st.Clone()
	}
	return nil
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func TestFilePersister_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.json")
	p := NewFilePersister(path)

	original := map[string]*types.ChatState{
		"1001": {
			Enabled:      true,
			RSILow:       dec("30"),
			RSIHigh:      dec("70"),
			PriceAlerts:  []decimal.Decimal{dec("65000.5"), dec("70000")},
			TargetPrice:  decPtr("72000"),
			StopLoss:     decPtr("58000.25"),
			PendingInput: types.PendingTarget,
			LastSignal:   types.SignalBuy,
		},
		"-2002": types.NewChatState(types.DefaultChatDefaults()),
	}

	if err := p.Save(context.Background(), original); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := p.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(loaded) != len(original) {
		t.Fatalf("expected %d chats, got %d", len(original), len(loaded))
	}
	for id, want := range original {
		got, ok := loaded[id]
		if !ok {
			t.Fatalf("chat %s missing after reload", id)
		}
		if !got.Equal(want) {
			t.Errorf("chat %s: got %+v, want %+v", id, got, want)
		}
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	if !strings.Contains(string(raw), "\n  \"chats\"") {
		t.Errorf("expected indented JSON, got %s", raw)
	}
	if !strings.Contains(string(raw), `"pendingInput": null`) {
		t.Errorf("expected null pendingInput for default chat, got %s", raw)
	}
}

func TestFilePersister_MissingFile(t *testing.T) {
	p := NewFilePersister(filepath.Join(t.TempDir(), "absent.json"))
	chats, err := p.Load(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chats) != 0 {
		t.Errorf("expected empty state, got %d chats", len(chats))
	}
}

func TestFilePersister_Malformed(t *testing.T) {
	cases := map[string]string{
		"syntax":      `{"chats": {`,
		"unknown tag": `{"chats": {"1": {"rsiLow": "30", "rsiHigh": "70", "lastSignal": "hold"}}}`,
		"bad range":   `{"chats": {"1": {"rsiLow": "80", "rsiHigh": "70"}}}`,
		"null record": `{"chats": {"1": null}}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "data.json")
			if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
				t.Fatal(err)
			}
			if _, err := NewFilePersister(path).Load(context.Background()); err == nil {
				t.Error("expected load error")
			}
		})
	}
}

func TestChatStore_GetOrCreatePersists(t *testing.T) {
	mp := &memoryPersister{}
	store, err := NewChatStore(context.Background(), mp, types.DefaultChatDefaults())
	if err != nil {
		t.Fatal(err)
	}

	st, err := store.GetOrCreate(context.Background(), "42")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if st.Enabled || !st.RSILow.Equal(dec("30")) || !st.RSIHigh.Equal(dec("70")) {
		t.Errorf("unexpected defaults: %+v", st)
	}
	if mp.saves != 1 {
		t.Errorf("expected 1 save on create, got %d", mp.saves)
	}

	if _, err := store.GetOrCreate(context.Background(), "42"); err != nil {
		t.Fatal(err)
	}
	if mp.saves != 1 {
		t.Errorf("existing chat must not trigger a save, got %d saves", mp.saves)
	}
}

func TestChatStore_MutatePersistsAndIsolates(t *testing.T) {
	mp := &memoryPersister{}
	store, _ := NewChatStore(context.Background(), mp, types.DefaultChatDefaults())

	got, err := store.Mutate(context.Background(), "7", func(st *types.ChatState) error {
		st.Enabled = true
		st.AddPriceAlert(dec("100"))
		return nil
	})
	if err != nil {
		t.Fatalf("Mutate: %v", err)
	}
	if !got.Enabled || len(got.PriceAlerts) != 1 {
		t.Errorf("unexpected result %+v", got)
	}
	if saved := mp.saved["7"]; saved == nil || !saved.Enabled {
		t.Errorf("mutation not persisted: %+v", mp.saved)
	}

	// returned copies must not alias store memory
	got.PriceAlerts[0] = dec("1")
	again, _ := store.Get("7")
	if !again.PriceAlerts[0].Equal(dec("100")) {
		t.Errorf("store state leaked through returned copy: %v", again.PriceAlerts)
	}
}

func TestChatStore_MutateRollsBackOnFailure(t *testing.T) {
	mp := &memoryPersister{}
	store, _ := NewChatStore(context.Background(), mp, types.DefaultChatDefaults())
	if _, err := store.GetOrCreate(context.Background(), "7"); err != nil {
		t.Fatal(err)
	}

	mp.failErr = errors.New("disk full")
	_, err := store.Mutate(context.Background(), "7", func(st *types.ChatState) error {
		st.Enabled = true
		return nil
	})
	if err == nil {
		t.Fatal("expected persist error")
	}
	st, _ := store.Get("7")
	if st.Enabled {
		t.Error("in-memory state must roll back when persisting fails")
	}

	fnErr := errors.New("rejected")
	mp.failErr = nil
	if _, err := store.Mutate(context.Background(), "8", func(*types.ChatState) error { return fnErr }); !errors.Is(err, fnErr) {
		t.Errorf("expected fn error, got %v", err)
	}
	if _, ok := store.Get("8"); ok {
		t.Error("chat must not be created when fn fails")
	}
}

func TestChatStore_TransactRollback(t *testing.T) {
	mp := &memoryPersister{}
	store, _ := NewChatStore(context.Background(), mp, types.DefaultChatDefaults())
	_, _ = store.Mutate(context.Background(), "1", func(st *types.ChatState) error {
		st.TargetPrice = decPtr("110")
		return nil
	})

	mp.failErr = errors.New("unavailable")
	err := store.Transact(context.Background(), func(chats map[string]*types.ChatState) bool {
		chats["1"].TargetPrice = nil
		return true
	})
	if err == nil {
		t.Fatal("expected error")
	}
	st, _ := store.Get("1")
	if st.TargetPrice == nil {
		t.Error("target price must survive a failed transaction")
	}

	mp.failErr = nil
	saves := mp.saves
	if err := store.Transact(context.Background(), func(map[string]*types.ChatState) bool { return false }); err != nil {
		t.Fatal(err)
	}
	if mp.saves != saves {
		t.Error("unchanged transaction must not persist")
	}
}

func TestChatStore_LoadsExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.json")
	body := `{"chats": {"b": {"enabled": true, "rsiLow": "25", "rsiHigh": "75", "priceAlerts": ["1"]}, "a": {"rsiLow": "30", "rsiHigh": "70"}}}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	store, err := NewChatStore(context.Background(), NewFilePersister(path), types.DefaultChatDefaults())
	if err != nil {
		t.Fatal(err)
	}
	if store.Len() != 2 {
		t.Errorf("chats = %d, want 2", store.Len())
	}
	a, ok := store.Get("a")
	if !ok {
		t.Fatal("chat a not loaded")
	}
	if b, _ := store.Get("b"); !b.Enabled || len(b.PriceAlerts) != 1 {
		t.Errorf("chat b = %+v", b)
	}
	if a.PriceAlerts == nil {
		t.Error("missing priceAlerts must normalize to an empty set")
	}
}
