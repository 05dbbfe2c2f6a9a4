// Package session 持有特权侧的会话状态（活动标签页、开关），只经由 relay 消息对外暴露。
package session

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"

	"github.com/John-Robertt/ammds-bridge/internal/domain"
	"github.com/John-Robertt/ammds-bridge/internal/relay"
	"github.com/John-Robertt/ammds-bridge/internal/store"
)

// Notifier 把通知推给受限侧（relay.Peer 或 relay.Hub）。
type Notifier interface {
	Notify(ctx context.Context, name string, data any) error
}

// Tracker 是会话状态的唯一持有者。
//
// 约束：
// - 状态修改后立即写回 kv（键 ammds-state）
// - Activate 记录上一个标签页，并推送 tab-active 通知（内容为新的活动标签页）
// - 标签表只保存身份信息（标题 + URL），不跟踪其他生命周期
type Tracker struct {
	kv       store.KV
	notifier Notifier
	logger   zerolog.Logger

	mu    sync.Mutex
	state domain.SessionState
	tabs  map[int]domain.TabInfo
}

// New 从 kv 恢复状态；notifier 可以为 nil。
func New(ctx context.Context, kv store.KV, notifier Notifier, logger zerolog.Logger) (*Tracker, error) {
	st, err := store.GetJSON(ctx, kv, store.KeyState, domain.SessionState{})
	if err != nil {
		return nil, err
	}
	return &Tracker{
		kv:       kv,
		notifier: notifier,
		logger:   logger.With().Str("component", "session").Logger(),
		state:    st,
		tabs:     make(map[int]domain.TabInfo),
	}, nil
}

// SetNotifier 替换通知出口（服务启动后才有 Hub）。
func (t *Tracker) SetNotifier(n Notifier) {
	t.mu.Lock()
	t.notifier = n
	t.mu.Unlock()
}

// State 返回状态快照。
func (t *Tracker) State() domain.SessionState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// UpdateTab 记录（或覆盖）标签页身份信息；若是活动标签页则推送 tab-active。
func (t *Tracker) UpdateTab(ctx context.Context, tabID int, info domain.TabInfo) error {
	t.mu.Lock()
	t.tabs[tabID] = info
	active := t.state.ActiveTabID == tabID
	if active {
		t.state.URL = info.URL
	}
	n := t.notifier
	t.mu.Unlock()

	if !active {
		return nil
	}
	if err := t.persist(ctx); err != nil {
		return err
	}
	return t.notify(ctx, n, info)
}

// Activate 切换活动标签页。
func (t *Tracker) Activate(ctx context.Context, tabID, windowID int) error {
	t.mu.Lock()
	if t.state.ActiveTabID != tabID {
		t.state.PreviousTabID = t.state.ActiveTabID
	}
	t.state.ActiveTabID = tabID
	if windowID != 0 {
		t.state.WindowID = windowID
	}
	info := t.tabs[tabID]
	t.state.URL = info.URL
	n := t.notifier
	t.mu.Unlock()

	if err := t.persist(ctx); err != nil {
		return err
	}
	return t.notify(ctx, n, info)
}

// Tab 返回指定标签页；不存在时为零值。
func (t *Tracker) Tab(tabID int) (domain.TabInfo, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	info, ok := t.tabs[tabID]
	return info, ok
}

// ActiveTab 返回 tabID 指定的标签页；tabID 为 0 时返回上一个活动标签页（没有时回退当前活动页）。
func (t *Tracker) ActiveTab(tabID int) domain.TabInfo {
	t.mu.Lock()
	defer t.mu.Unlock()
	if tabID != 0 {
		return t.tabs[tabID]
	}
	if t.state.PreviousTabID != 0 {
		return t.tabs[t.state.PreviousTabID]
	}
	return t.tabs[t.state.ActiveTabID]
}

func (t *Tracker) SetEnabled(ctx context.Context, v bool) error {
	return t.mutate(ctx, func(s *domain.SessionState) { s.Enabled = v })
}

// ToggleFavorited 翻转收藏标记并返回新值。
func (t *Tracker) ToggleFavorited(ctx context.Context) (bool, error) {
	var v bool
	err := t.mutate(ctx, func(s *domain.SessionState) {
		s.IsFavorited = !s.IsFavorited
		v = s.IsFavorited
	})
	return v, err
}

// ToggleSubscribed 翻转订阅标记并返回新值。
func (t *Tracker) ToggleSubscribed(ctx context.Context) (bool, error) {
	var v bool
	err := t.mutate(ctx, func(s *domain.SessionState) {
		s.IsSubscribed = !s.IsSubscribed
		v = s.IsSubscribed
	})
	return v, err
}

// Register 在 Peer 上注册 get-active-tab / get-tab。
func (t *Tracker) Register(p *relay.Peer) {
	p.Handle(relay.MsgGetActiveTab, t.handleGetActiveTab)
	p.Handle(relay.MsgGetTab, t.handleGetTab)
}

func (t *Tracker) handleGetActiveTab(_ context.Context, msg relay.Message) (any, error) {
	q := decodeQuery(msg)
	return t.ActiveTab(q.TabID), nil
}

func (t *Tracker) handleGetTab(_ context.Context, msg relay.Message) (any, error) {
	q := decodeQuery(msg)
	info, _ := t.Tab(q.TabID)
	return info, nil
}

func decodeQuery(msg relay.Message) relay.TabQuery {
	var q relay.TabQuery
	if len(msg.Data) > 0 {
		_ = json.Unmarshal(msg.Data, &q)
	}
	return q
}

func (t *Tracker) mutate(ctx context.Context, fn func(*domain.SessionState)) error {
	t.mu.Lock()
	fn(&t.state)
	t.mu.Unlock()
	return t.persist(ctx)
}

func (t *Tracker) persist(ctx context.Context) error {
	st := t.State()
	if err := store.SetJSON(ctx, t.kv, store.KeyState, st); err != nil {
		t.logger.Error().Err(err).Msg("保存会话状态失败")
		return err
	}
	return nil
}

func (t *Tracker) notify(ctx context.Context, n Notifier, info domain.TabInfo) error {
	if n == nil {
		return nil
	}
	if err := n.Notify(ctx, relay.MsgTabActive, info); err != nil {
		t.logger.Warn().Err(err).Msg("推送 tab-active 失败")
		return err
	}
	return nil
}
