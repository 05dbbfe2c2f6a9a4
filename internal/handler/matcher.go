package handler

import (
	"net/url"
	"regexp"
	"strings"
)

// Matcher 按“域名列表 + 正则列表”判断 URL 是否属于某个站点。
//
// 规则：
// - 域名：hostname 完全相等或为其子域名（a.javbus.com 匹配 javbus.com）
// - 正则：对完整 URL 做匹配
// - URL 无法解析（或没有 host）时返回 false，不向外抛错
type Matcher struct {
	Domains  []string
	Patterns []*regexp.Regexp
}

func (m Matcher) Match(rawURL string) bool {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, d := range m.Domains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d == "" {
			continue
		}
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	for _, re := range m.Patterns {
		if re != nil && re.MatchString(rawURL) {
			return true
		}
	}
	return false
}
