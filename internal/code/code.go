// Package code 从详情页 URL 推断番号，用于在抓取之前命中页面缓存。
package code

import (
	"net/url"
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/John-Robertt/ammds-bridge/internal/domain"
)

// 允许的 CODE 变体：字母段 + 分隔符变体 + 数字段。
// 分隔符至少出现一次，避免把 "SAMPLE123" 这类噪音误判成 CODE。
var candidateRE = regexp.MustCompile(`(?i)([a-z]{2,6})[\s._-]+([0-9]{2,5})`)

type UnmatchedError struct {
	// Kind: "no_match" 或 "ambiguous"
	Kind string
	// Candidates 仅在 ambiguous 时返回（已排序）。
	Candidates []domain.Code
}

func (e *UnmatchedError) Error() string {
	switch e.Kind {
	case "no_match":
		return "无法从 URL 解析出 CODE"
	case "ambiguous":
		parts := make([]string, 0, len(e.Candidates))
		for _, c := range e.Candidates {
			parts = append(parts, string(c))
		}
		return "解析到多个不同 CODE（ambiguous）：" + strings.Join(parts, ", ")
	default:
		return "unmatched"
	}
}

// FromURL 取 URL 路径的最后一段推断 CODE。
//
// 规则：
// - 最后一段本身就是规范 CODE（含无码站的 032225_001）时直接返回
// - 否则按“字母段 + 分隔符 + 数字段”找候选；恰好一个才算成功
// - 其余情况返回 *UnmatchedError（no_match / ambiguous）
func FromURL(rawURL string) (domain.Code, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", &UnmatchedError{Kind: "no_match"}
	}
	seg := path.Base(strings.TrimRight(u.Path, "/"))
	if seg == "" || seg == "." || seg == "/" {
		return "", &UnmatchedError{Kind: "no_match"}
	}
	if c, ok := domain.ParseCode(seg); ok {
		return c, nil
	}

	m := map[domain.Code]struct{}{}
	addCandidates(m, seg)
	switch len(m) {
	case 0:
		return "", &UnmatchedError{Kind: "no_match"}
	case 1:
		for c := range m {
			return c, nil
		}
	}
	cands := make([]domain.Code, 0, len(m))
	for c := range m {
		cands = append(cands, c)
	}
	sort.Slice(cands, func(i, j int) bool { return cands[i] < cands[j] })
	return "", &UnmatchedError{Kind: "ambiguous", Candidates: cands}
}

func addCandidates(dst map[domain.Code]struct{}, s string) {
	for _, m := range candidateRE.FindAllStringSubmatch(s, -1) {
		if len(m) < 3 {
			continue
		}
		if c, ok := domain.ParseCode(strings.ToUpper(m[1]) + "-" + m[2]); ok {
			dst[c] = struct{}{}
		}
	}
}
