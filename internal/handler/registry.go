package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Module 是一个可被发现的 handler 单元（编译期登记，代替运行时目录扫描）。
type Module struct {
	Path string
	New  func() (Handler, error)
}

// Registry 是 handler 的有序注册表。
//
// 约束：
// - 只追加：注册顺序即发现顺序，Resolve 返回第一个匹配者（不做“更具体优先”）
// - Discover 永不失败：非法模块记录日志后跳过
// - Resolve 在注册表为空时惰性触发 Discover；并发首调可能重复发现，
//   重复条目被容忍但不去重（只追加，不会丢失已注册的 handler）
type Registry struct {
	mu       sync.RWMutex
	handlers []Handler

	modules []Module
	logger  zerolog.Logger
}

func NewRegistry(logger zerolog.Logger, modules ...Module) *Registry {
	return &Registry{
		modules: append([]Module(nil), modules...),
		logger:  logger.With().Str("component", "handler-registry").Logger(),
	}
}

// Register 追加一个 handler。nil 或 Name 为空的 handler 被拒绝。
func (r *Registry) Register(h Handler) error {
	if err := validate(h); err != nil {
		return err
	}
	r.mu.Lock()
	r.handlers = append(r.handlers, h)
	r.mu.Unlock()
	return nil
}

// Discover 枚举全部模块并注册合法的 handler，返回本次注册的数量。
func (r *Registry) Discover(ctx context.Context) int {
	n := 0
	for _, m := range r.modules {
		if ctx.Err() != nil {
			break
		}
		h, err := construct(m)
		if err == nil {
			err = r.Register(h)
		}
		if err != nil {
			r.logger.Warn().Err(err).Str("module", m.Path).Msg("跳过非法 handler")
			continue
		}
		n++
		r.logger.Debug().Str("module", m.Path).Str("handler", h.Name()).Msg("handler 已注册")
	}
	return n
}

// Resolve 返回第一个 Matches(url) 为 true 的 handler。
// 单个 handler 的 Matches panic 会被恢复并记录，视为不匹配，不影响其他 handler。
func (r *Registry) Resolve(ctx context.Context, rawURL string) (Handler, bool) {
	if r.Len() == 0 {
		r.Discover(ctx)
	}
	for _, h := range r.Handlers() {
		ok, err := safeMatch(h, rawURL)
		if err != nil {
			r.logger.Error().Err(err).Str("handler", h.Name()).Str("url", rawURL).Msg("matches 异常")
			continue
		}
		if ok {
			return h, true
		}
	}
	return nil, false
}

// Handlers 返回注册表快照（按注册顺序）。
func (r *Registry) Handlers() []Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Handler(nil), r.handlers...)
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers)
}

func validate(h Handler) error {
	if h == nil {
		return errors.New("handler 不能为空")
	}
	if strings.TrimSpace(h.Name()) == "" {
		return errors.New("handler.Name 不能为空")
	}
	return nil
}

func construct(m Module) (h Handler, err error) {
	if m.New == nil {
		return nil, fmt.Errorf("模块 %q 缺少构造函数", m.Path)
	}
	defer func() {
		if rec := recover(); rec != nil {
			h, err = nil, fmt.Errorf("模块 %q 构造 panic：%v", m.Path, rec)
		}
	}()
	return m.New()
}

func safeMatch(h Handler, rawURL string) (ok bool, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			ok, err = false, fmt.Errorf("panic：%v", rec)
		}
	}()
	return h.Matches(rawURL), nil
}
