// Package extract 提供页面解析用的底层文本工具。
//
// 约束：所有函数都是纯函数且不会失败；匹配不到时返回 ok=false（“缺失”），
// 调用方把缺失视为“该字段不填充”，而不是错误。
package extract

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

var (
	numberRE  = regexp.MustCompile(`(\d+(\.\d+)?)`)
	dateRE    = regexp.MustCompile(`(\d{4}-\d{2}-\d{2})`)
	runtimeRE = regexp.MustCompile(`(\d+)分鐘`)
	lastSegRE = regexp.MustCompile(`/([^/]+)/?$`)
	sizeRE    = regexp.MustCompile(`(?i)(\d+(\.\d+)?)(\s*)(GB|MB|KB)`)
)

// RuntimeUnit 是 Runtime 识别的固定时长单位。
const RuntimeUnit = "分鐘"

// Number 提取第一段数字（可带小数）。
func Number(text string) (float64, bool) {
	m := numberRE.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	f, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// Date 提取严格的 YYYY-MM-DD 日期（原样返回，不做日历校验）。
func Date(text string) (string, bool) {
	m := dateRE.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// Runtime 提取“数字 + 分鐘”形式的时长（分钟）。
func Runtime(text string) (int, bool) {
	m := runtimeRE.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

// Minutes 提取第一段连续数字，用于单位不固定的站点（"155分鐘" / "160 min"）。
func Minutes(text string) (int, bool) {
	var b strings.Builder
	for _, r := range text {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
			continue
		}
		if b.Len() > 0 {
			break
		}
	}
	if b.Len() == 0 {
		return 0, false
	}
	n, err := strconv.Atoi(b.String())
	if err != nil {
		return 0, false
	}
	return n, true
}

// IDFromURL 取 URL 路径的最后一段（忽略尾部 '/'）。
func IDFromURL(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	if u, err := url.Parse(raw); err == nil && u.Path != "" {
		raw = u.Path
	}
	m := lastSegRE.FindStringSubmatch(raw)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// CleanText 去掉首尾空白并把连续空白压成一个空格；结果为空视为缺失。
func CleanText(text string) (string, bool) {
	s := NormSpace(text)
	if s == "" {
		return "", false
	}
	return s, true
}

// NormSpace 与 CleanText 相同，但直接返回字符串（空串即缺失）。
func NormSpace(s string) string { return strings.Join(strings.Fields(s), " ") }

// FullURL 把相对地址解析为绝对地址。
//
// 规则：
// - http(s):// 开头：原样返回
// - "//host/x"：补 https:
// - 其余相对地址：相对 origin 解析（origin 形如 https://www.javbus.com 或详情页 URL）
func FullURL(origin, href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" {
		return "", false
	}
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href, true
	}
	if strings.HasPrefix(href, "//") {
		return "https:" + href, true
	}
	bu, err := url.Parse(strings.TrimSpace(origin))
	if err != nil || bu.Scheme == "" || bu.Host == "" {
		return "", false
	}
	ru, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	return bu.ResolveReference(ru).String(), true
}

// Size 把 "1.5GB" / "700 MB" / "500KB" 换算为字节（1024 进制）。
// 找不到“数字 + 单位”时返回 0，永不失败。
func Size(text string) int64 {
	m := sizeRE.FindStringSubmatch(text)
	if m == nil {
		return 0
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0
	}
	switch strings.ToUpper(m[4]) {
	case "KB":
		return int64(v * 1024)
	case "MB":
		return int64(v * 1024 * 1024)
	case "GB":
		return int64(v * 1024 * 1024 * 1024)
	}
	return 0
}

// NormList 去空白、去空串、去重，保持输入顺序。
func NormList(in []string) []string {
	m := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := m[s]; ok {
			continue
		}
		m[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// NormHeader 规范化“标签: 值”里的标签文本（去空白与中英文冒号）。
func NormHeader(s string) string {
	s = NormSpace(s)
	s = strings.TrimSuffix(s, ":")
	s = strings.TrimSuffix(s, "：")
	return strings.TrimSpace(s)
}
