package handler

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoHandler 表示没有任何 handler 认领该 URL。
var ErrNoHandler = errors.New("没有匹配的 handler")

// UnmatchedPageError 表示页面标记校验失败：URL 属于该站点，但当前页面不是详情页
// （验证页、列表页、加载未完成等）。
type UnmatchedPageError struct {
	Handler string
	URL     string
	Reason  string
}

func (e *UnmatchedPageError) Error() string {
	if e == nil {
		return "页面不匹配"
	}
	msg := fmt.Sprintf("handler=%s 页面不匹配", e.Handler)
	if r := strings.TrimSpace(e.Reason); r != "" {
		msg += "：" + r
	}
	if u := strings.TrimSpace(e.URL); u != "" {
		msg += " url=" + u
	}
	return msg
}

// ExtractionError 表示必填字段（番号/标题）无法解析。
type ExtractionError struct {
	Handler string
	Field   string
	Err     error
}

func (e *ExtractionError) Error() string {
	if e == nil {
		return "解析失败"
	}
	if e.Err != nil {
		return fmt.Sprintf("handler=%s 解析 %s 失败：%v", e.Handler, e.Field, e.Err)
	}
	return fmt.Sprintf("handler=%s 解析 %s 失败", e.Handler, e.Field)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// IsUnmatchedPage 判断 err 是否为页面标记失败。
func IsUnmatchedPage(err error) bool {
	var e *UnmatchedPageError
	return errors.As(err, &e)
}

// IsExtraction 判断 err 是否为必填字段解析失败。
func IsExtraction(err error) bool {
	var e *ExtractionError
	return errors.As(err, &e)
}
