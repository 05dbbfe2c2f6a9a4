// Package httpx 构造三类出站 HTTP client：详情页抓取、图片下载、relay 服务端访问 AMMDS。
package httpx

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultTimeout    = 20 * time.Second
	defaultRetryMax   = 2
	defaultRetryDelay = 300 * time.Millisecond
	defaultLanguage   = "zh-CN,zh;q=0.9,ja;q=0.8,en;q=0.7"
)

// 详情页站点按浏览器 UA 分流内容；固定一小组常见桌面 UA 轮换使用。
var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 14_5) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.5 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:133.0) Gecko/20100101 Firefox/133.0",
}

// Transport 在 Base 之上补齐浏览器请求头并做有界重试。
//
// 约束：
// - 只重试可重放请求（GET/HEAD 且无 body）
// - 重试条件：传输错误，或 429/502/503/504
// - ctx 结束后立即返回最后一次结果
// - 调用方已设置的 User-Agent / Accept-Language 不被覆盖
type Transport struct {
	Base *http.Transport

	// RetryMax 不含首次尝试：2 表示最多 3 次。
	RetryMax   int
	RetryDelay time.Duration

	// DisableKeepAlives 为 true 时每个请求带 Close=true。
	DisableKeepAlives bool
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, errors.New("httpx: nil request")
	}
	if t.Base == nil {
		return nil, errors.New("httpx: nil base transport")
	}

	budget := 0
	if replayable(req) && t.RetryMax > 0 {
		budget = t.RetryMax
	}

	for attempt := 0; ; attempt++ {
		resp, err := t.Base.RoundTrip(t.decorate(req))
		if attempt >= budget || !shouldRetry(resp, err) {
			return resp, err
		}
		if resp != nil {
			resp.Body.Close()
		}
		if !sleep(req, t.backoff(attempt)) {
			if err == nil {
				err = req.Context().Err()
			}
			return nil, err
		}
	}
}

func (t *Transport) decorate(req *http.Request) *http.Request {
	r := req.Clone(req.Context())
	if r.Header.Get("User-Agent") == "" {
		r.Header.Set("User-Agent", userAgents[rand.IntN(len(userAgents))])
	}
	if r.Header.Get("Accept-Language") == "" {
		r.Header.Set("Accept-Language", defaultLanguage)
	}
	if t.DisableKeepAlives {
		r.Close = true
	}
	return r
}

func (t *Transport) backoff(attempt int) time.Duration {
	d := t.RetryDelay
	if d <= 0 {
		d = defaultRetryDelay
	}
	return d << attempt
}

func replayable(req *http.Request) bool {
	return (req.Method == http.MethodGet || req.Method == http.MethodHead) &&
		(req.Body == nil || req.Body == http.NoBody)
}

func shouldRetry(resp *http.Response, err error) bool {
	if err != nil {
		return true
	}
	switch resp.StatusCode {
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// sleep 等待 d；ctx 先结束时返回 false。
func sleep(req *http.Request, d time.Duration) bool {
	if req.Context().Err() != nil {
		return false
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-req.Context().Done():
		return false
	}
}

// Profile 描述一类出站流量的策略。
type Profile struct {
	ProxyURL string
	RetryMax int
	Timeout  time.Duration
}

// New 按 Profile 构造 client。设置了代理时禁用 keep-alive：代理池按连接轮换出口。
func New(p Profile) (*http.Client, error) {
	base := &http.Transport{
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 15 * time.Second,
		MaxIdleConnsPerHost:   4,
	}
	keepAlive := true
	if s := strings.TrimSpace(p.ProxyURL); s != "" {
		u, err := url.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("代理地址无效：%w", err)
		}
		base.Proxy = http.ProxyURL(u)
		base.DisableKeepAlives = true
		keepAlive = false
	}

	timeout := p.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &http.Client{
		Transport: &Transport{
			Base:              base,
			RetryMax:          max(p.RetryMax, 0),
			DisableKeepAlives: !keepAlive,
		},
		Timeout: timeout,
	}, nil
}

// NewPageClient 用于详情页抓取：proxyURL 非空时全部走代理。
func NewPageClient(proxyURL string) (*http.Client, error) {
	return New(Profile{ProxyURL: proxyURL, RetryMax: defaultRetryMax})
}

// NewImageClient 用于海报/背景图下载；imageProxy=false 时直连并忽略 proxyURL。
func NewImageClient(proxyURL string, imageProxy bool) (*http.Client, error) {
	if !imageProxy {
		return New(Profile{RetryMax: defaultRetryMax})
	}
	if strings.TrimSpace(proxyURL) == "" {
		return nil, errors.New("image_proxy=true 但 fetch.proxy_url 为空")
	}
	return New(Profile{ProxyURL: proxyURL, RetryMax: defaultRetryMax})
}

// NewRelayClient 用于 relay 服务端访问 AMMDS。
//
// 约束：不走代理，传输层不重试（重试只发生在受限侧 relay.Client）。
func NewRelayClient(timeout time.Duration) *http.Client {
	c, _ := New(Profile{Timeout: timeout})
	return c
}
