package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
	"rsi-sentry/pkg/types"
)

// Persister 聊天状态持久化后端，每次保存都写入完整文档
type Persister interface {
	Load(ctx context.Context) (map[string]*types.ChatState, error)
	Save(ctx context.Context, chats map[string]*types.ChatState) error
	Name() string
}

// ChatStore 聊天状态管理器。
// 所有修改都在同一把锁内完成：修改 -> 持久化 -> 解锁，持久化失败时回滚内存状态。
type ChatStore struct {
	chats     map[string]*types.ChatState
	mutex     sync.Mutex
	persister Persister
	defaults  types.ChatDefaults
}

// NewChatStore 从持久化后端加载全部聊天状态
func NewChatStore(ctx context.Context, persister Persister, defaults types.ChatDefaults) (*ChatStore, error) {
	chats, err := persister.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load chat state from %s: %w", persister.Name(), err)
	}
	if chats == nil {
		chats = make(map[string]*types.ChatState)
	}

	zap.L().Info("✅ 聊天状态加载完成",
		zap.String("backend", persister.Name()),
		zap.Int("chats", len(chats)))

	return &ChatStore{
		chats:     chats,
		persister: persister,
		defaults:  defaults,
	}, nil
}

// GetOrCreate 返回聊天状态副本，不存在时按默认值创建并立即持久化
func (s *ChatStore) GetOrCreate(ctx context.Context, chatID string) (types.ChatState, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if st, ok := s.chats[chatID]; ok {
		return *st.Clone(), nil
	}

	st := types.NewChatState(s.defaults)
	s.chats[chatID] = st
	if err := s.persister.Save(ctx, s.chats); err != nil {
		delete(s.chats, chatID)
		return types.ChatState{}, fmt.Errorf("persist new chat %s: %w", chatID, err)
	}

	zap.L().Info("🆕 创建聊天记录", zap.String("chat_id", chatID))
	return *st.Clone(), nil
}

// Get 返回聊天状态副本
func (s *ChatStore) Get(chatID string) (types.ChatState, bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	st, ok := s.chats[chatID]
	if !ok {
		return types.ChatState{}, false
	}
	return *st.Clone(), true
}

// Mutate 修改单个聊天状态（不存在时先创建），随后持久化整个存储。
// fn 返回错误或持久化失败时，内存状态保持修改前的样子。
func (s *ChatStore) Mutate(ctx context.Context, chatID string, fn func(st *types.ChatState) error) (types.ChatState, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	previous, existed := s.chats[chatID]
	working := types.NewChatState(s.defaults)
	if existed {
		working = previous.Clone()
	}

	if err := fn(working); err != nil {
		return types.ChatState{}, err
	}

	s.chats[chatID] = working
	if err := s.persister.Save(ctx, s.chats); err != nil {
		if existed {
			s.chats[chatID] = previous
		} else {
			delete(s.chats, chatID)
		}
		return types.ChatState{}, fmt.Errorf("persist chat %s: %w", chatID, err)
	}

	return *working.Clone(), nil
}

// Transact 在锁内对全部聊天状态执行 fn；fn 返回 true 时持久化。
// 持久化失败时整体回滚。
func (s *ChatStore) Transact(ctx context.Context, fn func(chats map[string]*types.ChatState) bool) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	backup := make(map[string]*types.ChatState, len(s.chats))
	for id, st := range s.chats {
		backup[id] = st.Clone()
	}

	if !fn(s.chats) {
		return nil
	}

	if err := s.persister.Save(ctx, s.chats); err != nil {
		s.chats = backup
		return fmt.Errorf("persist chat state: %w", err)
	}
	return nil
}

// Len 聊天数量
func (s *ChatStore) Len() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return len(s.chats)
}

// Defaults 新聊天的默认阈值
func (s *ChatStore) Defaults() types.ChatDefaults {
	return s.defaults
}

// SortedChatIDs 供评估器按确定顺序遍历
func SortedChatIDs(chats map[string]*types.ChatState) []string {
	ids := make([]string, 0, len(chats))
	for id := range chats {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
