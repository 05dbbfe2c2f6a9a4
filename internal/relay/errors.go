package relay

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Kind 是 relay 失败的分类；只有 network/timeout 可重试。
type Kind string

const (
	KindNetwork     Kind = "network"
	KindTimeout     Kind = "timeout"
	KindApplication Kind = "application"
)

// ErrClosed 表示通道已关闭，未决请求不会再得到回复。
var ErrClosed = errors.New("relay 通道已关闭")

// Error 是带分类的 relay 失败。
type Error struct {
	Kind Kind
	URL  string
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return "relay error"
	}
	if e.URL != "" {
		return fmt.Sprintf("relay %s 失败 url=%s：%v", e.Kind, e.URL, e.Err)
	}
	return fmt.Sprintf("relay %s 失败：%v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// ApplicationError 表示服务端已响应，但信封 code 不在 [200,300)。不重试。
type ApplicationError struct {
	Code    int
	Message string
}

func (e *ApplicationError) Error() string {
	if e == nil {
		return "application error"
	}
	if strings.TrimSpace(e.Message) == "" {
		return fmt.Sprintf("服务端返回 code=%d", e.Code)
	}
	return fmt.Sprintf("服务端返回 code=%d：%s", e.Code, e.Message)
}

// ConfigurationError 表示没有可用的服务器登记（启用且默认）。
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e == nil || strings.TrimSpace(e.Reason) == "" {
		return "请添加默认客户端"
	}
	return "配置错误：" + e.Reason
}

// KindOf 返回 err 的分类；无法分类时返回空串。
func KindOf(err error) Kind {
	var ae *ApplicationError
	if errors.As(err, &ae) {
		return KindApplication
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsRetryable 只对 network/timeout 返回 true。
func IsRetryable(err error) bool {
	k := KindOf(err)
	return k == KindNetwork || k == KindTimeout
}

// IsConfiguration 判断 err 是否为配置错误。
func IsConfiguration(err error) bool {
	var e *ConfigurationError
	return errors.As(err, &e)
}

// classify 把通道/传输失败归类为 timeout 或 network。
//
// 约束：context.Canceled 原样返回，不归类也不重试。
func classify(url string, err error) error {
	if err == nil {
		return nil
	}
	if KindOf(err) != "" || errors.Is(err, context.Canceled) {
		return err
	}
	kind := KindNetwork
	if errors.Is(err, context.DeadlineExceeded) || strings.Contains(strings.ToLower(err.Error()), "timeout") {
		kind = KindTimeout
	}
	return &Error{Kind: kind, URL: url, Err: err}
}
