package handler

import (
	"context"

	"github.com/John-Robertt/ammds-bridge/internal/domain"
)

// Handler 把“站点变化”限制在各自的子包内；注册表与导入流程只依赖这组能力。
//
// 约束：
// - Matches 不允许 panic 外泄、不做网络请求（URL 解析失败直接返回 false）
// - Extract 只依赖输入 Page（纯解析）；页面标记不满足返回 *UnmatchedPageError，
//   必填字段无法解析返回 *ExtractionError，其余字段缺失一律降级为空
// - 实例在发现阶段创建一次，注册后不可变
type Handler interface {
	Name() string
	Matches(rawURL string) bool
	Extract(ctx context.Context, p Page) (domain.Metadata, error)
	Author() domain.Author
	View() View
	Automate(ctx context.Context, p Page, cb AutomateFunc) error
}

// AutomateFunc 在自动化流程中接收最新解析出的元数据。
type AutomateFunc func(ctx context.Context, meta domain.Metadata) error

// Page 是一次解析所依赖的页面快照（URL + HTML）。
type Page struct {
	URL  string
	HTML []byte
}

// View 是 handler 提供的 UI 组件描述，核心流程不解释其内容。
type View struct {
	Component string `json:"component"`
}

// AutomateWith 是 Automate 的通用实现：解析当前页面并把结果交给回调。
func AutomateWith(ctx context.Context, h Handler, p Page, cb AutomateFunc) error {
	if cb == nil {
		return nil
	}
	meta, err := h.Extract(ctx, p)
	if err != nil {
		return err
	}
	return cb(ctx, meta)
}
