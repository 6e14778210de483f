package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"rsi-sentry/pkg/types"
)

// FilePersister 将聊天状态保存为缩进格式的JSON文件
type FilePersister struct {
	path string
}

func NewFilePersister(path string) *FilePersister {
	return &FilePersister{path: path}
}

func (p *FilePersister) Name() string { return "file:" + p.path }

// Load 文件不存在时返回空状态，格式错误时返回错误
func (p *FilePersister) Load(_ context.Context) (map[string]*types.ChatState, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]*types.ChatState), nil
		}
		return nil, err
	}
	return decodeDocument(data)
}

// Save 先写临时文件再重命名，避免写到一半的文件
func (p *FilePersister) Save(_ context.Context, chats map[string]*types.ChatState) error {
	data, err := encodeDocument(chats)
	if err != nil {
		return err
	}

	dir := filepath.Dir(p.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(p.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, p.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}

func encodeDocument(chats map[string]*types.ChatState) ([]byte, error) {
	doc := types.StateDocument{Chats: chats}
	if doc.Chats == nil {
		doc.Chats = make(map[string]*types.ChatState)
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode chat state: %w", err)
	}
	return data, nil
}

func decodeDocument(data []byte) (map[string]*types.ChatState, error) {
	var doc types.StateDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode chat state: %w", err)
	}
	if doc.Chats == nil {
		return make(map[string]*types.ChatState), nil
	}
	for id, st := range doc.Chats {
		if st == nil {
			return nil, fmt.Errorf("chat %s: empty record", id)
		}
		if err := st.Normalize(); err != nil {
			return nil, fmt.Errorf("chat %s: %w", id, err)
		}
	}
	return doc.Chats, nil
}
