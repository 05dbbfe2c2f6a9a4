// Package page 下载详情页快照，供离线解析（CLI extract/import）使用。
package page

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/John-Robertt/ammds-bridge/internal/handler"
)

// maxBody 限制单页大小，避免异常响应撑爆内存。
const maxBody = 16 << 20

// HTTPStatusError 表示站点返回了非 2xx/3xx 的状态码。
type HTTPStatusError struct {
	URL        string
	StatusCode int
	Location   string
}

func (e *HTTPStatusError) Error() string {
	if e == nil {
		return "HTTP status error"
	}
	loc := strings.TrimSpace(e.Location)
	if loc == "" {
		return fmt.Sprintf("HTTP %d url=%s", e.StatusCode, e.URL)
	}
	return fmt.Sprintf("HTTP %d location=%s", e.StatusCode, loc)
}

// BlockedError 表示请求被引导到验证/拦截页。不尝试绕过，直接失败并提示配置代理。
type BlockedError struct {
	URL    string
	Reason string // 例如 "driver-verify"
}

func (e *BlockedError) Error() string {
	if e == nil || strings.TrimSpace(e.Reason) == "" {
		return "blocked"
	}
	return "blocked: " + strings.TrimSpace(e.Reason)
}

func IsBlocked(err error) bool {
	var e *BlockedError
	return errors.As(err, &e)
}

// Fetcher 抓取页面快照。
type Fetcher struct {
	Client *http.Client
	// Cookies 原样写入 Cookie 头（部分站点需要年龄确认 cookie）。
	Cookies string
}

// Fetch 返回 handler.Page；Page.URL 为最终落地的 URL（跟随重定向后）。
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (handler.Page, error) {
	c := f.Client
	if c == nil {
		c = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return handler.Page{}, err
	}
	if s := strings.TrimSpace(f.Cookies); s != "" {
		req.Header.Set("Cookie", s)
	}
	resp, err := c.Do(req)
	if err != nil {
		return handler.Page{}, err
	}
	defer resp.Body.Close()

	// 先读 body：302 携带详情页内容的情况需要看内容才能判断。
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return handler.Page{}, err
	}

	finalURL := rawURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
		if strings.Contains(resp.Request.URL.Path, "/doc/driver-verify") {
			return handler.Page{}, &BlockedError{URL: finalURL, Reason: "driver-verify"}
		}
	}
	loc := strings.TrimSpace(resp.Header.Get("Location"))
	if resp.StatusCode >= 300 && resp.StatusCode < 400 && strings.Contains(loc, "/doc/driver-verify") {
		if bytes.Contains(b, []byte(`id="ageVerify"`)) || bytes.Contains(b, []byte("/doc/driver-verify")) {
			return handler.Page{}, &BlockedError{URL: loc, Reason: "driver-verify"}
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		return handler.Page{}, &HTTPStatusError{URL: rawURL, StatusCode: resp.StatusCode, Location: loc}
	}
	if len(b) == 0 {
		return handler.Page{}, errors.New("empty response body")
	}
	return handler.Page{URL: finalURL, HTML: b}, nil
}

// Download 下载二进制资源（图片），返回内容与 Content-Type。
func (f *Fetcher) Download(ctx context.Context, rawURL, referer string) ([]byte, string, error) {
	c := f.Client
	if c == nil {
		c = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", err
	}
	// JavBus 图片要求 Referer 为详情页且带 age=verified。
	if referer != "" {
		req.Header.Set("Referer", referer)
	}
	if isJavbusURL(rawURL) {
		req.Header.Set("Cookie", "age=verified")
	}
	resp, err := c.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", &HTTPStatusError{URL: rawURL, StatusCode: resp.StatusCode}
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, "", err
	}
	ct := resp.Header.Get("Content-Type")
	if ct == "" || strings.HasPrefix(ct, "application/octet-stream") {
		ct = http.DetectContentType(b)
	}
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	return b, ct, nil
}

func isJavbusURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	return host == "javbus.com" || strings.HasSuffix(host, ".javbus.com")
}
