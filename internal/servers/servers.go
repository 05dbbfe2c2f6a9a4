// Package servers 管理 AMMDS 服务端登记（持久化于 kv 键 ammds-clients）。
package servers

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/John-Robertt/ammds-bridge/internal/domain"
	"github.com/John-Robertt/ammds-bridge/internal/store"
)

// InvalidURLError 表示 base URL 不满足 http(s)://host[:port] 且无尾部 '/'。
type InvalidURLError struct {
	URL    string
	Reason string
}

func (e *InvalidURLError) Error() string {
	return fmt.Sprintf("非法服务器地址 %q：%s", e.URL, e.Reason)
}

// ValidateBaseURL 校验服务器 base URL。
func ValidateBaseURL(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return &InvalidURLError{URL: raw, Reason: "不能为空"}
	}
	if strings.HasSuffix(raw, "/") {
		return &InvalidURLError{URL: raw, Reason: "不能以 '/' 结尾"}
	}
	u, err := url.Parse(raw)
	if err != nil {
		return &InvalidURLError{URL: raw, Reason: err.Error()}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return &InvalidURLError{URL: raw, Reason: "只支持 http/https"}
	}
	if u.Host == "" {
		return &InvalidURLError{URL: raw, Reason: "缺少主机"}
	}
	return nil
}

// Registry 是服务端登记表。
//
// 约束：
// - URL 是唯一键：重复 Add 替换原登记
// - SetDefault 之后恰好一个登记 Preferred=true（URL 不存在时全部为 false，与“取消默认”等价）
// - 读写整体序列化（读-改-写在一把锁内完成）
type Registry struct {
	KV store.KV

	mu sync.Mutex
}

func New(kv store.KV) *Registry { return &Registry{KV: kv} }

func (r *Registry) load(ctx context.Context) ([]domain.ServerRegistration, error) {
	return store.GetJSON(ctx, r.KV, store.KeyServers, []domain.ServerRegistration(nil))
}

func (r *Registry) save(ctx context.Context, list []domain.ServerRegistration) error {
	if list == nil {
		list = []domain.ServerRegistration{}
	}
	return store.SetJSON(ctx, r.KV, store.KeyServers, list)
}

// All 返回全部登记（含未启用）。
func (r *Registry) All(ctx context.Context) ([]domain.ServerRegistration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.load(ctx)
}

// List 返回已启用的登记。
func (r *Registry) List(ctx context.Context) ([]domain.ServerRegistration, error) {
	all, err := r.All(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.ServerRegistration, 0, len(all))
	for _, s := range all {
		if s.Enabled {
			out = append(out, s)
		}
	}
	return out, nil
}

// Preferred 返回第一个启用且默认的登记。
func (r *Registry) Preferred(ctx context.Context) (domain.ServerRegistration, bool, error) {
	all, err := r.All(ctx)
	if err != nil {
		return domain.ServerRegistration{}, false, err
	}
	for _, s := range all {
		if s.Enabled && s.Preferred {
			return s, true, nil
		}
	}
	return domain.ServerRegistration{}, false, nil
}

// Get 按 URL 查找。
func (r *Registry) Get(ctx context.Context, baseURL string) (domain.ServerRegistration, bool, error) {
	all, err := r.All(ctx)
	if err != nil {
		return domain.ServerRegistration{}, false, err
	}
	for _, s := range all {
		if s.URL == baseURL {
			return s, true, nil
		}
	}
	return domain.ServerRegistration{}, false, nil
}

// Add 登记服务器。名称为空时使用 AMMDS；Preferred=true 会取消其他登记的默认标记。
func (r *Registry) Add(ctx context.Context, s domain.ServerRegistration) error {
	if err := ValidateBaseURL(s.URL); err != nil {
		return err
	}
	if strings.TrimSpace(s.Name) == "" {
		s.Name = domain.DefaultServerName
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	list, err := r.load(ctx)
	if err != nil {
		return err
	}
	replaced := false
	for i := range list {
		if list[i].URL == s.URL {
			list[i] = s
			replaced = true
		} else if s.Preferred {
			list[i].Preferred = false
		}
	}
	if !replaced {
		list = append(list, s)
	}
	return r.save(ctx, list)
}

// Delete 删除登记；不存在时不报错。
func (r *Registry) Delete(ctx context.Context, baseURL string) error {
	return r.update(ctx, func(list []domain.ServerRegistration) []domain.ServerRegistration {
		out := list[:0]
		for _, s := range list {
			if s.URL != baseURL {
				out = append(out, s)
			}
		}
		return out
	})
}

// SetDefault 把 baseURL 设为唯一默认。
func (r *Registry) SetDefault(ctx context.Context, baseURL string) error {
	return r.update(ctx, func(list []domain.ServerRegistration) []domain.ServerRegistration {
		for i := range list {
			list[i].Preferred = list[i].URL == baseURL
		}
		return list
	})
}

// SetStatus 记录健康检查结果。
func (r *Registry) SetStatus(ctx context.Context, baseURL string, ok bool) error {
	return r.update(ctx, func(list []domain.ServerRegistration) []domain.ServerRegistration {
		for i := range list {
			if list[i].URL == baseURL {
				v := ok
				list[i].Status = &v
			}
		}
		return list
	})
}

func (r *Registry) update(ctx context.Context, fn func([]domain.ServerRegistration) []domain.ServerRegistration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	list, err := r.load(ctx)
	if err != nil {
		return err
	}
	return r.save(ctx, fn(list))
}
