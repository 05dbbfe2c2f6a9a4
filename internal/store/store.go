// Package store 是设置与会话状态的 key-value 持久化契约。
//
// 核心只通过不透明的 Get/Set 读写，不关心存储介质。
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// 已知键。
const (
	KeyServers = "ammds-clients"
	KeyState   = "ammds-state"
)

// KV 是最小的持久化接口。值为不透明字节（约定为 JSON）。
type KV interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
}

// GetJSON 读取并解码；键不存在时返回 def。
func GetJSON[T any](ctx context.Context, kv KV, key string, def T) (T, error) {
	b, ok, err := kv.Get(ctx, key)
	if err != nil {
		return def, err
	}
	if !ok || len(b) == 0 {
		return def, nil
	}
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return def, fmt.Errorf("store: 解码 %q 失败：%w", key, err)
	}
	return v, nil
}

// SetJSON 编码并写入。
func SetJSON(ctx context.Context, kv KV, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("store: 编码 %q 失败：%w", key, err)
	}
	return kv.Set(ctx, key, b)
}

// Memory 是进程内实现（测试与临时会话）。
type Memory struct {
	mu sync.RWMutex
	m  map[string][]byte
}

func NewMemory() *Memory { return &Memory{m: make(map[string][]byte)} }

func (s *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.m[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), b...), true, nil
}

func (s *Memory) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = append([]byte(nil), value...)
	return nil
}
