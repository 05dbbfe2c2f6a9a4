package handler

import (
	"context"
	"fmt"

	"github.com/John-Robertt/ammds-bridge/internal/domain"
)

// Attempt 记录一次 handler 处理的阶段结果（用于解释失败原因）。
type Attempt struct {
	Handler string // handler name；Stage=="match" 且未匹配时为空
	Stage   string // "match" / "extract" / "ok"
	Err     error  // nil when Stage=="ok"
}

// Error 是 handler 阶段的可追溯错误。
type Error struct {
	Handler string
	Stage   string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("handler=%s stage=%s: %v", e.Handler, e.Stage, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Extract 按 URL 解析出 handler 并提取元数据。
func Extract(ctx context.Context, reg *Registry, p Page) (domain.Metadata, Handler, error) {
	meta, h, _, err := ExtractTrace(ctx, reg, p)
	return meta, h, err
}

// ExtractTrace 与 Extract 相同，但额外返回阶段轨迹。
//
// 解析成功后再次校验必填字段：即使 handler 实现有缺陷，也不会把缺少
// uniqueid/originalTitle 的记录交给上层。
func ExtractTrace(ctx context.Context, reg *Registry, p Page) (domain.Metadata, Handler, []Attempt, error) {
	if reg == nil {
		return domain.Metadata{}, nil, nil, fmt.Errorf("registry 不能为空")
	}
	h, ok := reg.Resolve(ctx, p.URL)
	if !ok {
		return domain.Metadata{}, nil, []Attempt{{Stage: "match", Err: ErrNoHandler}}, ErrNoHandler
	}

	attempts := []Attempt{{Handler: h.Name(), Stage: "match"}}
	meta, err := h.Extract(ctx, p)
	if err == nil {
		if verr := meta.Validate(); verr != nil {
			err = &ExtractionError{Handler: h.Name(), Field: "uniqueid/originalTitle", Err: verr}
		}
	}
	if err != nil {
		attempts = append(attempts, Attempt{Handler: h.Name(), Stage: "extract", Err: err})
		return domain.Metadata{}, h, attempts, &Error{Handler: h.Name(), Stage: "extract", Err: err}
	}
	attempts = append(attempts, Attempt{Handler: h.Name(), Stage: "ok"})
	return meta, h, attempts, nil
}
