package relay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/John-Robertt/ammds-bridge/internal/domain"
)

// DefaultRetryDelay 是未显式指定 RetryDelay 时的重试间隔。
const DefaultRetryDelay = time.Second

const (
	headerContentType = "Content-Type"
	headerAPIKey      = "x-api-key"

	mimeJSON      = "application/json"
	mimeMultipart = "multipart/form-data"
	mimeURLEncode = "application/x-www-form-urlencoded"
)

// ServerSource 提供“启用且默认”的服务器登记。
type ServerSource interface {
	Preferred(ctx context.Context) (domain.ServerRegistration, bool, error)
}

// Options 是单次 Send 的选项。
type Options struct {
	Headers map[string]string
	// Form=true 时 body 按 multipart 表单替身发送。
	Form bool
	// RetryTimes 是失败后的最大重试次数（不含首次）。
	RetryTimes int
	RetryDelay time.Duration
	// Validate 在每次成功往返后检查载荷；返回的错误按原样抛出，
	// 只有被归类为 network/timeout 的错误才会触发重试。
	Validate func(data any) error
}

// Client 是受限侧的请求入口：所有网络请求都经由 relay 交给特权侧执行。
//
// 约束：
// - 相对路径 endpoint 需要绑定的目标服务器；未绑定时查找启用且默认的登记，找不到返回 *ConfigurationError
// - 绑定结果在 Client 生命周期内缓存（Bind 可显式替换）
// - 并发 Send 互不影响：不合并、不共享重试预算
type Client struct {
	Channel Channel
	Servers ServerSource
	Logger  zerolog.Logger

	mu     sync.Mutex
	target *domain.ServerRegistration
}

// Bind 显式设置目标服务器（base URL + 密钥）。
func (c *Client) Bind(reg domain.ServerRegistration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r := reg
	c.target = &r
}

// Target 返回当前绑定的服务器。
func (c *Client) Target() (domain.ServerRegistration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.target == nil {
		return domain.ServerRegistration{}, false
	}
	return *c.target, true
}

func (c *Client) Get(ctx context.Context, endpoint string, opts Options) (any, error) {
	return c.Send(ctx, http.MethodGet, endpoint, nil, opts)
}

// GetParams 把 params 编码为查询串后发送 GET。
func (c *Client) GetParams(ctx context.Context, endpoint string, params map[string]string, opts Options) (any, error) {
	q := url.Values{}
	for k, v := range params {
		q.Set(k, v)
	}
	if enc := q.Encode(); enc != "" {
		endpoint += "?" + enc
	}
	return c.Send(ctx, http.MethodGet, endpoint, nil, opts)
}

func (c *Client) Post(ctx context.Context, endpoint string, body any, opts Options) (any, error) {
	return c.Send(ctx, http.MethodPost, endpoint, body, opts)
}

// PostForm 以 multipart 表单发送 body。
func (c *Client) PostForm(ctx context.Context, endpoint string, body any, opts Options) (any, error) {
	opts.Form = true
	return c.Send(ctx, http.MethodPost, endpoint, body, opts)
}

func (c *Client) Put(ctx context.Context, endpoint string, body any, opts Options) (any, error) {
	return c.Send(ctx, http.MethodPut, endpoint, body, opts)
}

func (c *Client) Delete(ctx context.Context, endpoint string, opts Options) (any, error) {
	return c.Send(ctx, http.MethodDelete, endpoint, nil, opts)
}

// Send 经 relay 发送请求，返回特权侧回传的 data（JSON 值或文本）。
func (c *Client) Send(ctx context.Context, method, endpoint string, body any, opts Options) (any, error) {
	if c.Channel == nil {
		return nil, errors.New("relay channel 不能为空")
	}
	req, err := c.build(ctx, method, endpoint, body, opts)
	if err != nil {
		return nil, err
	}

	delay := opts.RetryDelay
	if delay <= 0 {
		delay = DefaultRetryDelay
	}
	remaining := opts.RetryTimes
	for attempt := 1; ; attempt++ {
		data, err := c.roundTrip(ctx, req)
		if err == nil && opts.Validate != nil {
			err = opts.Validate(data)
		}
		if err == nil {
			return data, nil
		}
		if remaining <= 0 || !IsRetryable(err) {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, classify(req.URL, ctx.Err())
		}
		c.Logger.Warn().Err(err).
			Str("method", req.Method).
			Str("url", req.URL).
			Int("attempt", attempt).
			Int("remaining", remaining).
			Msg("relay 请求失败，准备重试")

		t := time.NewTimer(delay)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			// 取消原样返回；截止时间到期归为 timeout。
			return nil, classify(req.URL, ctx.Err())
		}
		remaining--
	}
}

func (c *Client) build(ctx context.Context, method, endpoint string, body any, opts Options) (FetchRequest, error) {
	target, err := c.resolveTarget(ctx, endpoint)
	if err != nil {
		return FetchRequest{}, err
	}

	reqURL := endpoint
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		reqURL = strings.TrimRight(target.URL, "/") + endpoint
	}

	headers := make(map[string]string, len(opts.Headers)+2)
	for k, v := range opts.Headers {
		headers[k] = v
	}
	headers[headerContentType] = mimeJSON
	if s := strings.TrimSpace(target.Secret); s != "" {
		headers[headerAPIKey] = s
	}

	req := FetchRequest{URL: reqURL, Method: strings.ToUpper(method), Headers: headers}
	if req.Method == "" {
		req.Method = http.MethodGet
	}
	if body != nil {
		if opts.Form {
			surrogate, err := FormSurrogate(body)
			if err != nil {
				return FetchRequest{}, err
			}
			headers[headerContentType] = mimeMultipart
			req.Body = surrogate
		} else {
			req.Body = body
		}
	}
	return req, nil
}

// resolveTarget 对绝对 URL 不要求绑定；相对路径在未绑定时查找默认登记并缓存。
func (c *Client) resolveTarget(ctx context.Context, endpoint string) (domain.ServerRegistration, error) {
	if t, ok := c.Target(); ok {
		return t, nil
	}
	if !strings.HasPrefix(endpoint, "/") {
		return domain.ServerRegistration{}, nil
	}
	if c.Servers == nil {
		return domain.ServerRegistration{}, &ConfigurationError{Reason: "未配置服务器登记"}
	}
	reg, ok, err := c.Servers.Preferred(ctx)
	if err != nil {
		return domain.ServerRegistration{}, err
	}
	if !ok {
		c.Logger.Error().Str("endpoint", endpoint).Msg("请添加默认客户端")
		return domain.ServerRegistration{}, &ConfigurationError{Reason: "没有启用且默认的服务器"}
	}
	c.Bind(reg)
	return reg, nil
}

func (c *Client) roundTrip(ctx context.Context, req FetchRequest) (any, error) {
	raw, err := c.Channel.Call(ctx, MsgFetchAPI, req)
	if err != nil {
		return nil, classify(req.URL, err)
	}
	var resp FetchResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, classify(req.URL, err)
	}
	if !resp.Success {
		msg := strings.TrimSpace(resp.Error)
		if msg == "" {
			msg = "请求失败"
		}
		return nil, classify(req.URL, errors.New(msg))
	}
	return resp.Data, nil
}
