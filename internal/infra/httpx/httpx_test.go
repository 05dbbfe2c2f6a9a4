package httpx

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewPageClient_ProxyDisablesKeepAlive(t *testing.T) {
	c, err := NewPageClient("http://127.0.0.1:8080")
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	tr, ok := c.Transport.(*Transport)
	if !ok {
		t.Fatalf("期望 *Transport，实际 %T", c.Transport)
	}
	if tr.Base.Proxy == nil {
		t.Fatalf("期望启用代理，但 Proxy=nil")
	}
	if !tr.Base.DisableKeepAlives {
		t.Fatalf("期望禁用 keep-alive，但 Base.DisableKeepAlives=false")
	}
	if !tr.DisableKeepAlives {
		t.Fatalf("期望设置 Request.Close=true 的额外保险，但 DisableKeepAlives=false")
	}
}

func TestNewPageClient_NoProxyKeepsDefault(t *testing.T) {
	c, err := NewPageClient("")
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	tr, ok := c.Transport.(*Transport)
	if !ok {
		t.Fatalf("期望 *Transport，实际 %T", c.Transport)
	}
	if tr.Base.Proxy != nil {
		t.Fatalf("不期望启用代理，但 Proxy!=nil")
	}
	if tr.Base.DisableKeepAlives {
		t.Fatalf("不期望禁用 keep-alive，但 Base.DisableKeepAlives=true")
	}
}

func TestNewImageClient_ImageProxySwitch(t *testing.T) {
	c1, err := NewImageClient("http://127.0.0.1:8080", false)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	tr1 := c1.Transport.(*Transport)
	if tr1.Base.Proxy != nil {
		t.Fatalf("image_proxy=false 时不应走代理")
	}

	c2, err := NewImageClient("http://127.0.0.1:8080", true)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	tr2 := c2.Transport.(*Transport)
	if tr2.Base.Proxy == nil {
		t.Fatalf("image_proxy=true 时应走代理")
	}
	if !tr2.Base.DisableKeepAlives {
		t.Fatalf("image_proxy=true 时应禁用 keep-alive")
	}

	if _, err := NewImageClient("", true); err == nil {
		t.Fatalf("image_proxy=true 且无代理时期望错误")
	}
}

func TestNewPageClient_InvalidProxyURL(t *testing.T) {
	_, err := NewPageClient("http://[::1")
	if err == nil {
		t.Fatalf("期望错误，但得到 nil")
	}
}

func TestNewRelayClient_NoRetry(t *testing.T) {
	c := NewRelayClient(3 * time.Second)
	tr := c.Transport.(*Transport)
	if tr.RetryMax != 0 {
		t.Fatalf("relay client 不应在传输层重试，RetryMax=%d", tr.RetryMax)
	}
	if c.Timeout != 3*time.Second {
		t.Fatalf("timeout 不符：%v", c.Timeout)
	}
}

func TestTransport_SetsUserAgent(t *testing.T) {
	var ua atomic.Value
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua.Store(r.Header.Get("User-Agent"))
	}))
	defer ts.Close()

	c, err := NewPageClient("")
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	resp, err := c.Get(ts.URL)
	if err != nil {
		t.Fatalf("请求失败：%v", err)
	}
	_ = resp.Body.Close()
	if got, _ := ua.Load().(string); got == "" || got == "Go-http-client/1.1" {
		t.Fatalf("期望随机浏览器 UA，实际 %q", got)
	}
}

func TestTransport_RetriesServiceUnavailable(t *testing.T) {
	var hits atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		if r.Header.Get("Accept-Language") == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	c, err := New(Profile{RetryMax: 2})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	c.Transport.(*Transport).RetryDelay = time.Millisecond
	resp, err := c.Get(ts.URL)
	if err != nil {
		t.Fatalf("请求失败：%v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("期望第三次成功，实际 status=%d", resp.StatusCode)
	}
	if got := hits.Load(); got != 3 {
		t.Fatalf("期望 3 次尝试，实际 %d", got)
	}
}

func TestTransport_DoesNotRetryPost(t *testing.T) {
	var hits atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	c, err := New(Profile{RetryMax: 2})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	resp, err := c.Post(ts.URL, "text/plain", strings.NewReader("x"))
	if err != nil {
		t.Fatalf("请求失败：%v", err)
	}
	_ = resp.Body.Close()
	if got := hits.Load(); got != 1 {
		t.Fatalf("POST 不应重试，实际 %d 次", got)
	}
}
