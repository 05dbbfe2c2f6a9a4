package domain

import (
	"regexp"
	"strings"
)

// Code 是作品的唯一主键（番号、识别码），即 Metadata.UniqueID。
//
// 支持两种规范形态：
// - 字母数字段 + '-' + 字母数字段：ZMAR-132、FC2-1234567
// - 数字段 + '_' + 数字段（无码站常见）：032225_001
type Code string

var (
	dashCodeRE       = regexp.MustCompile(`^[A-Z0-9]+-[A-Z0-9]+$`)
	underscoreCodeRE = regexp.MustCompile(`^[0-9]+_[0-9]+$`)
)

// ParseCode 校验并规范化 CODE（去空白、转大写）。不合法时返回 false。
func ParseCode(s string) (Code, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if dashCodeRE.MatchString(s) || underscoreCodeRE.MatchString(s) {
		return Code(s), true
	}
	return "", false
}

func (c Code) String() string { return string(c) }
